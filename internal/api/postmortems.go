package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sitewatch/internal/report"
)

type createPostMortemRequest struct {
	AlertEventID uint `json:"alert_event_id" binding:"required"`
	report.CreateInput
}

type reviewRequest struct {
	Reviewer string `json:"reviewer" binding:"required"`
}

func (s *Server) listPostMortems(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	pms, err := s.deps.PostMortems.List(c.Query("status"), limit)
	if err != nil {
		if errors.Is(err, report.ErrInvalidStatus) {
			badRequest(c, err.Error())
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pms)
}

func (s *Server) getPostMortem(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	pm, err := s.deps.PostMortems.Get(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pm)
}

func (s *Server) postMortemReport(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rep, err := s.deps.Aggregator.Report(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// postMortemMetrics aggregates incidents in [from, to). The window defaults
// to the last 30 days.
func (s *Server) postMortemMetrics(c *gin.Context) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)

	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, "invalid from: expected RFC3339")
			return
		}
		from = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, "invalid to: expected RFC3339")
			return
		}
		to = t
	}
	if !to.After(from) {
		badRequest(c, "to must be after from")
		return
	}

	summary, err := s.deps.Aggregator.Summary(from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) createPostMortem(c *gin.Context) {
	var req createPostMortemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	pm, err := s.deps.PostMortems.Create(req.AlertEventID, req.CreateInput)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pm)
}

func (s *Server) updatePostMortem(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var in report.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	pm, err := s.deps.PostMortems.Update(id, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pm)
}

func (s *Server) completePostMortem(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	pm, err := s.deps.PostMortems.Complete(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pm)
}

func (s *Server) reviewPostMortem(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	pm, err := s.deps.PostMortems.Review(id, req.Reviewer)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pm)
}

func (s *Server) deletePostMortem(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := s.deps.PostMortems.Delete(id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "post-mortem deleted"})
}
