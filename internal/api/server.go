package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/sitewatch/internal/alert"
	"github.com/sitewatch/internal/database"
	"github.com/sitewatch/internal/monitor"
	"github.com/sitewatch/internal/notify"
	"github.com/sitewatch/internal/report"
	"gorm.io/gorm"
)

// Deps are the components the HTTP surface exposes.
type Deps struct {
	DB          *gorm.DB
	Scheduler   *monitor.Scheduler
	Alerts      *alert.AlertManager
	Sites       *alert.SiteStore
	PostMortems *report.Manager
	Aggregator  *report.Aggregator
	Dispatcher  *notify.Dispatcher
	Gatherer    prometheus.Gatherer
	Log         logrus.FieldLogger
}

type Server struct {
	deps   Deps
	log    logrus.FieldLogger
	router *gin.Engine
	http   *http.Server
}

func NewServer(deps Deps) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(deps.Log))

	server := &Server{
		deps:   deps,
		log:    deps.Log,
		router: router,
	}

	server.setupRoutes()
	return server
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.health)
	if s.deps.Gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := s.router.Group("/api/v1")

	monitoring := api.Group("/monitoring")
	{
		monitoring.POST("/scan", s.triggerScan)
		monitoring.GET("/polling", s.pollingStatus)
		monitoring.POST("/polling/start", s.startPolling)
		monitoring.POST("/polling/stop", s.stopPolling)
	}

	sites := api.Group("/sites")
	{
		sites.GET("", s.listSites)
		sites.GET("/outages", s.listOutages)
		sites.GET("/:site_id", s.getSite)
	}

	events := api.Group("/events")
	{
		events.GET("", s.listEvents)
		events.GET("/active", s.listActiveEvents)
		events.GET("/:id", s.getEvent)
		events.POST("", s.createEvent)
		events.POST("/:id/acknowledge", s.acknowledgeEvent)
		events.POST("/:id/resolve", s.resolveEvent)
		events.DELETE("/:id", s.deleteEvent)
	}

	postMortems := api.Group("/post-mortems")
	{
		postMortems.GET("", s.listPostMortems)
		postMortems.GET("/metrics", s.postMortemMetrics)
		postMortems.GET("/:id", s.getPostMortem)
		postMortems.GET("/:id/report", s.postMortemReport)
		postMortems.POST("", s.createPostMortem)
		postMortems.PUT("/:id", s.updatePostMortem)
		postMortems.POST("/:id/complete", s.completePostMortem)
		postMortems.POST("/:id/review", s.reviewPostMortem)
		postMortems.DELETE("/:id", s.deletePostMortem)
	}

	notifications := api.Group("/notifications")
	{
		notifications.GET("", s.listNotifications)
		notifications.GET("/:id", s.getNotification)
		notifications.POST("/:id/retry", s.retryNotification)
		notifications.POST("/recovery-sweep", s.recoverySweep)
	}
}

// Start serves on port until Shutdown is called.
func (s *Server) Start(port int) error {
	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	s.log.WithField("port", port).Info("Starting HTTP server")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("HTTP request failed")
			return
		}
		entry.Debug("HTTP request")
	}
}

func (s *Server) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "healthy"}

	if err := database.Ping(s.deps.DB); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["database"] = err.Error()
	} else {
		body["database"] = "ok"
	}
	if s.deps.Scheduler != nil {
		body["polling"] = s.deps.Scheduler.Status()
	}
	c.JSON(status, body)
}

// writeError maps domain errors onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, alert.ErrEventNotFound),
		errors.Is(err, alert.ErrSiteNotFound),
		errors.Is(err, report.ErrPostMortemNotFound),
		errors.Is(err, notify.ErrNotificationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, alert.ErrInvalidTransition),
		errors.Is(err, alert.ErrPersistenceConflict),
		errors.Is(err, report.ErrPostMortemExists),
		errors.Is(err, report.ErrInvalidStatus),
		errors.Is(err, notify.ErrNotRetryable),
		errors.Is(err, monitor.ErrPassInProgress):
		status = http.StatusConflict
	case errors.Is(err, alert.ErrInvalidInput):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return uint(id), true
}

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		badRequest(c, "invalid limit")
		return 0, false
	}
	return limit, true
}
