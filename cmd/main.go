package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/sitewatch/internal/alert"
	"github.com/sitewatch/internal/api"
	"github.com/sitewatch/internal/config"
	"github.com/sitewatch/internal/database"
	"github.com/sitewatch/internal/logging"
	"github.com/sitewatch/internal/models"
	"github.com/sitewatch/internal/monitor"
	"github.com/sitewatch/internal/notify"
	"github.com/sitewatch/internal/report"
	"gorm.io/gorm/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// Initialize configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	gormLevel := logger.Warn
	if cfg.Log.Level == "debug" {
		gormLevel = logger.Info
	}
	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN, gormLevel)
	if err != nil {
		log.WithError(err).Fatal("Failed to open database")
	}
	defer database.Close(db)
	if err := database.Migrate(db); err != nil {
		log.WithError(err).Fatal("Failed to migrate database")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitor.NewMetrics(reg)

	// Notifications
	channels := buildChannels(cfg, log)
	dispatcher := notify.NewDispatcher(db, channels, buildTargets(cfg), notify.DispatcherConfig{
		MaxRetries:  cfg.Notifications.MaxRetries,
		Backoff:     cfg.Notifications.Backoff,
		MaxBackoff:  cfg.Notifications.MaxBackoff,
		SendTimeout: cfg.Notifications.SendTimeout,
	}, log.WithField("component", "dispatcher"))
	dispatcher.SetMetrics(metrics.Notifications)

	// Incident lifecycle
	postMortems := report.NewManager(db, log.WithField("component", "postmortem"))
	reconciler, err := alert.NewReconciler(db, postMortems, alert.ReconcilerConfig{
		Thresholds: monitor.Thresholds{
			Outage:   cfg.Alerting.OutageThreshold,
			Degraded: cfg.Alerting.DegradedThreshold,
		},
		NotifyOnEscalation: cfg.Alerting.NotifyOnEscalation,
	}, log.WithField("component", "reconciler"))
	if err != nil {
		log.WithError(err).Fatal("Invalid alerting configuration")
	}

	// Monitoring
	if cfg.Provider.BaseURL == "" {
		log.Warn("provider.base_url is not set; monitoring passes will fail until it is configured")
	}
	provider := monitor.NewUISPProvider(cfg.Provider.BaseURL, cfg.Provider.Token, cfg.Provider.FetchTimeout)
	scanner := monitor.NewScanner(provider, reconciler, dispatcher, monitor.ScannerConfig{
		FetchTimeout:       cfg.Provider.FetchTimeout,
		MaxConcurrentSites: cfg.Polling.MaxConcurrentSites,
	}, metrics, log.WithField("component", "scanner"))
	scheduler := monitor.NewScheduler(scanner, dispatcher, monitor.SchedulerConfig{
		Enabled:       cfg.Polling.Enabled,
		Interval:      cfg.Polling.Interval,
		SweepInterval: cfg.Notifications.RecoverySweepInterval,
	}, log.WithField("component", "scheduler"))
	if cfg.Polling.Enabled {
		scheduler.Start()
	}

	// Initialize and start API server
	server := api.NewServer(api.Deps{
		DB:          db,
		Scheduler:   scheduler,
		Alerts:      alert.NewAlertManager(db, log.WithField("component", "alerts")),
		Sites:       alert.NewSiteStore(db),
		PostMortems: postMortems,
		Aggregator:  report.NewAggregator(db),
		Dispatcher:  dispatcher,
		Gatherer:    reg,
		Log:         log.WithField("component", "api"),
	})

	errc := make(chan error, 1)
	go func() { errc <- server.Start(cfg.Server.Port) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errc:
		if err != nil {
			log.WithError(err).Error("HTTP server failed")
		}
	}

	log.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("HTTP server forced to shut down")
	}
	if err := scheduler.Stop(ctx); err != nil {
		log.WithError(err).Warn("Scheduler stopped before its pass finished")
	}
	log.Info("Stopped")
}

// buildChannels returns every channel with enough configuration to send.
func buildChannels(cfg *config.Config, log logrus.FieldLogger) []notify.Channel {
	n := cfg.Notifications
	var channels []notify.Channel

	if n.Slack.Token != "" {
		channels = append(channels, notify.NewSlackChannel(n.Slack.Token, ""))
	}
	if n.Email.SMTPHost != "" {
		channels = append(channels, notify.NewEmailChannel(n.Email.SMTPHost, n.Email.SMTPPort, n.Email.From, n.Email.Password))
	}
	if n.Webhook.URL != "" {
		channels = append(channels, notify.NewWebhookChannel(n.Webhook.URL, n.Webhook.Timeout))
	}
	if n.NATS.URL != "" {
		nc, err := notify.ConnectNATS(n.NATS.URL, log)
		if err != nil {
			log.WithError(err).Error("Failed to connect to NATS, channel disabled")
		} else {
			channels = append(channels, notify.NewNATSChannel(nc, n.NATS.SubjectPrefix))
		}
	}

	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.Name())
	}
	log.WithField("channels", names).Info("Notification channels configured")
	return channels
}

func buildTargets(cfg *config.Config) []notify.Target {
	targets := make([]notify.Target, 0, len(cfg.Notifications.Targets))
	for _, t := range cfg.Notifications.Targets {
		targets = append(targets, notify.Target{
			Channel:     t.Channel,
			Recipient:   t.Recipient,
			MessageType: models.MessageType(t.MessageType),
		})
	}
	return targets
}
