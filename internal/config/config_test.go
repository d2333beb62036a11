package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Alerting.OutageThreshold != 95 {
		t.Errorf("expected outage threshold 95, got %v", cfg.Alerting.OutageThreshold)
	}
	if cfg.Alerting.DegradedThreshold != 50 {
		t.Errorf("expected degraded threshold 50, got %v", cfg.Alerting.DegradedThreshold)
	}
	if !cfg.Alerting.NotifyOnEscalation {
		t.Error("expected escalation notifications enabled by default")
	}
	if cfg.Polling.Enabled {
		t.Error("expected polling disabled by default")
	}
	if cfg.Polling.Interval != 5*time.Minute {
		t.Errorf("expected 5m polling interval, got %v", cfg.Polling.Interval)
	}
	if cfg.Provider.FetchTimeout != 10*time.Second {
		t.Errorf("expected 10s fetch timeout, got %v", cfg.Provider.FetchTimeout)
	}
	if cfg.Notifications.MaxRetries != 3 {
		t.Errorf("expected 3 retries, got %d", cfg.Notifications.MaxRetries)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 9090
alerting:
  outage_threshold: 90
  degraded_threshold: 40
polling:
  interval: 30s
notifications:
  targets:
    - channel: webhook
      recipient: "5491100000000"
      message_type: full
    - channel: slack
      recipient: "#noc"
      message_type: summary
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	t.Setenv("SITEWATCH_POLLING_ENABLED", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Alerting.OutageThreshold != 90 || cfg.Alerting.DegradedThreshold != 40 {
		t.Errorf("unexpected thresholds: %+v", cfg.Alerting)
	}
	if cfg.Polling.Interval != 30*time.Second {
		t.Errorf("expected 30s interval, got %v", cfg.Polling.Interval)
	}
	if !cfg.Polling.Enabled {
		t.Error("expected env override to enable polling")
	}
	if len(cfg.Notifications.Targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(cfg.Notifications.Targets))
	}
	if cfg.Notifications.Targets[1].MessageType != "summary" {
		t.Errorf("expected summary target, got %q", cfg.Notifications.Targets[1].MessageType)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"outage above 100", func(c *Config) { c.Alerting.OutageThreshold = 101 }, true},
		{"degraded above outage", func(c *Config) { c.Alerting.DegradedThreshold = 96 }, true},
		{"zero interval", func(c *Config) { c.Polling.Interval = 0 }, true},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, true},
		{"bad message type", func(c *Config) {
			c.Notifications.Targets = []Target{{Channel: "slack", Recipient: "#x", MessageType: "recovery"}}
		}, true},
		{"missing recipient", func(c *Config) {
			c.Notifications.Targets = []Target{{Channel: "slack", MessageType: "full"}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
