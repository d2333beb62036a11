package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port int
	}
	Database struct {
		Driver string
		DSN    string
	}
	Log struct {
		Level  string
		Format string
	}
	Provider struct {
		BaseURL      string `mapstructure:"base_url"`
		Token        string
		FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	}
	Alerting struct {
		OutageThreshold    float64 `mapstructure:"outage_threshold"`
		DegradedThreshold  float64 `mapstructure:"degraded_threshold"`
		NotifyOnEscalation bool    `mapstructure:"notify_on_escalation"`
	}
	Polling struct {
		Enabled            bool
		Interval           time.Duration
		MaxConcurrentSites int `mapstructure:"max_concurrent_sites"`
	}
	Notifications struct {
		MaxRetries            int `mapstructure:"max_retries"`
		Backoff               time.Duration
		MaxBackoff            time.Duration `mapstructure:"max_backoff"`
		SendTimeout           time.Duration `mapstructure:"send_timeout"`
		RecoverySweepInterval time.Duration `mapstructure:"recovery_sweep_interval"`
		Targets               []Target
		Slack                 struct {
			Token string
		}
		Email struct {
			SMTPHost string `mapstructure:"smtp_host"`
			SMTPPort int    `mapstructure:"smtp_port"`
			From     string
			Password string
		}
		Webhook struct {
			URL     string
			Timeout time.Duration
		}
		NATS struct {
			URL           string
			SubjectPrefix string `mapstructure:"subject_prefix"`
		}
	}
}

// Target routes one message type to one recipient on one channel.
type Target struct {
	Channel     string
	Recipient   string
	MessageType string `mapstructure:"message_type"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "data/sitewatch.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("provider.fetch_timeout", 10*time.Second)
	v.SetDefault("alerting.outage_threshold", 95.0)
	v.SetDefault("alerting.degraded_threshold", 50.0)
	v.SetDefault("alerting.notify_on_escalation", true)
	v.SetDefault("polling.enabled", false)
	v.SetDefault("polling.interval", 5*time.Minute)
	v.SetDefault("polling.max_concurrent_sites", 8)
	v.SetDefault("notifications.max_retries", 3)
	v.SetDefault("notifications.backoff", 2*time.Second)
	v.SetDefault("notifications.max_backoff", 30*time.Second)
	v.SetDefault("notifications.send_timeout", 10*time.Second)
	v.SetDefault("notifications.recovery_sweep_interval", time.Minute)
	v.SetDefault("notifications.webhook.timeout", 30*time.Second)
	v.SetDefault("notifications.nats.subject_prefix", "sitewatch.alerts")
}

// LoadConfig loads config.yaml from the usual locations, overlaid with
// SITEWATCH_* environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/sitewatch")
	v.SetEnvPrefix("sitewatch")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, defaults and environment apply
	}

	return decode(v)
}

// Default returns the configuration with every default applied and no file read.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		panic(err)
	}
	return cfg
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	a := c.Alerting
	if a.OutageThreshold <= 0 || a.OutageThreshold > 100 {
		return fmt.Errorf("alerting.outage_threshold must be in (0, 100], got %v", a.OutageThreshold)
	}
	if a.DegradedThreshold <= 0 || a.DegradedThreshold > a.OutageThreshold {
		return fmt.Errorf("alerting.degraded_threshold must be in (0, outage_threshold], got %v", a.DegradedThreshold)
	}
	if c.Polling.Interval <= 0 {
		return fmt.Errorf("polling.interval must be positive")
	}
	if c.Notifications.MaxRetries < 0 {
		return fmt.Errorf("notifications.max_retries must not be negative")
	}
	for i, t := range c.Notifications.Targets {
		if t.Channel == "" || t.Recipient == "" {
			return fmt.Errorf("notifications.targets[%d]: channel and recipient are required", i)
		}
		switch t.MessageType {
		case "full", "summary":
		default:
			return fmt.Errorf("notifications.targets[%d]: message_type must be full or summary", i)
		}
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	return nil
}
