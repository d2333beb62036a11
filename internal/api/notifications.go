package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sitewatch/internal/notify"
)

func (s *Server) listNotifications(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	filter := notify.NotificationFilter{
		Status:      c.Query("status"),
		Channel:     c.Query("channel"),
		MessageType: c.Query("message_type"),
		Limit:       limit,
	}
	if raw := c.Query("event_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			badRequest(c, "invalid event_id")
			return
		}
		filter.EventID = uint(id)
	}

	rows, err := s.deps.Dispatcher.List(filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) getNotification(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	row, err := s.deps.Dispatcher.Get(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (s *Server) retryNotification(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	row, err := s.deps.Dispatcher.Retry(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (s *Server) recoverySweep(c *gin.Context) {
	result, err := s.deps.Dispatcher.SweepRecoveries(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
