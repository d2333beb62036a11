package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sitewatch/internal/alert"
)

type transitionRequest struct {
	User string `json:"user" binding:"required"`
	Note string `json:"note"`
}

func alertFilterForSite(siteID string) alert.EventFilter {
	return alert.EventFilter{SiteID: siteID, Limit: 50}
}

func (s *Server) listEvents(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	events, err := s.deps.Alerts.List(alert.EventFilter{
		Status:    c.Query("status"),
		Severity:  c.Query("severity"),
		EventType: c.Query("event_type"),
		SiteID:    c.Query("site_id"),
		Limit:     limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func (s *Server) listActiveEvents(c *gin.Context) {
	events, err := s.deps.Alerts.ListActive()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func (s *Server) getEvent(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	event, err := s.deps.Alerts.Get(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (s *Server) createEvent(c *gin.Context) {
	var in alert.CustomEventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	event, err := s.deps.Alerts.CreateCustom(in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

func (s *Server) acknowledgeEvent(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	event, err := s.deps.Alerts.Acknowledge(id, req.User, req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (s *Server) resolveEvent(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	event, err := s.deps.Alerts.Resolve(id, req.User, req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (s *Server) deleteEvent(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := s.deps.Alerts.Delete(id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "event deleted"})
}
