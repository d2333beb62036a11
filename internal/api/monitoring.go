package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const stopTimeout = 30 * time.Second

func (s *Server) triggerScan(c *gin.Context) {
	summary, err := s.deps.Scheduler.TriggerNow(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) pollingStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Scheduler.Status())
}

func (s *Server) startPolling(c *gin.Context) {
	started := s.deps.Scheduler.Start()
	c.JSON(http.StatusOK, gin.H{
		"started": started,
		"status":  s.deps.Scheduler.Status(),
	})
}

func (s *Server) stopPolling(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), stopTimeout)
	defer cancel()

	if err := s.deps.Scheduler.Stop(ctx); err != nil {
		c.JSON(http.StatusOK, gin.H{
			"stopped": true,
			"warning": "in-flight pass was cancelled: " + err.Error(),
			"status":  s.deps.Scheduler.Status(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": true, "status": s.deps.Scheduler.Status()})
}

func (s *Server) listSites(c *gin.Context) {
	sites, err := s.deps.Sites.List()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sites)
}

func (s *Server) listOutages(c *gin.Context) {
	sites, err := s.deps.Sites.ListOutages()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sites)
}

func (s *Server) getSite(c *gin.Context) {
	site, err := s.deps.Sites.Get(c.Param("site_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	events, err := s.deps.Alerts.List(alertFilterForSite(site.SiteID))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"site": site, "events": events})
}
