package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTmpConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("write tmp config: %v", err)
	}
	return p
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeTmpConfig(t, `
netwatch:
  interface: "eth0"
  output:
    mode: "json"
  thresholds:
    large_packet_bytes: 2000
    frequent_connection_count: 50
  timers:
    resolver_refresh: "1s"
    flow_timeout: "120s"
  alerts:
    - pid: 1234
      threshold_bytes: 1000000
      action: "kill"
  log:
    level: "debug"
    format: "text"
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Interface != "eth0" {
		t.Errorf("Interface = %q, want eth0", cfg.Interface)
	}
	if cfg.Thresholds.LargePacketBytes != 2000 {
		t.Errorf("LargePacketBytes = %d, want 2000", cfg.Thresholds.LargePacketBytes)
	}
	if cfg.Timers.ResolverRefresh != time.Second {
		t.Errorf("ResolverRefresh = %v, want 1s", cfg.Timers.ResolverRefresh)
	}
	if cfg.Timers.FlowTimeout != 120*time.Second {
		t.Errorf("FlowTimeout = %v, want 120s", cfg.Timers.FlowTimeout)
	}
	// Defaults fill in anything unset.
	if cfg.Timers.AggregationPeriod != 5*time.Second {
		t.Errorf("AggregationPeriod default = %v, want 5s", cfg.Timers.AggregationPeriod)
	}
	if cfg.Timers.QueueCapacity != 1000 {
		t.Errorf("QueueCapacity default = %d, want 1000", cfg.Timers.QueueCapacity)
	}
	if len(cfg.Alerts) != 1 || cfg.Alerts[0].PID != 1234 {
		t.Fatalf("Alerts = %+v, want one alert for pid 1234", cfg.Alerts)
	}
	if cfg.Bus.URL != "redis://127.0.0.1:6379" {
		t.Errorf("Bus.URL default = %q, want redis default", cfg.Bus.URL)
	}
}

func TestLoadInvalidLogLevel(t *testing.T) {
	_, err := Load(writeTmpConfig(t, `
netwatch:
  log:
    level: "verbose"
    format: "json"
`))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
}

func TestLoadInvalidOutputMode(t *testing.T) {
	_, err := Load(writeTmpConfig(t, `
netwatch:
  output:
    mode: "xml"
`))
	if err == nil {
		t.Fatal("expected error for invalid output mode, got nil")
	}
}

func TestRedisURLEnvOverride(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://example.invalid:6380")
	cfg, err := Load(writeTmpConfig(t, `netwatch: {}`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Bus.URL != "redis://example.invalid:6380" {
		t.Errorf("Bus.URL = %q, want env override", cfg.Bus.URL)
	}
}

func TestAlertConfigToCoreAlert(t *testing.T) {
	ac := AlertConfig{PID: 42, ThresholdBytes: 1000, Action: "custom_command", CommandTemplate: "echo {{pid}}"}
	alert, err := ac.ToCoreAlert(30 * time.Second)
	if err != nil {
		t.Fatalf("ToCoreAlert failed: %v", err)
	}
	if alert.PID != 42 || alert.ThresholdBytes != 1000 || alert.Cooldown != 30*time.Second {
		t.Errorf("unexpected alert: %+v", alert)
	}
	if alert.Action.Template != "echo {{pid}}" {
		t.Errorf("Action.Template = %q", alert.Action.Template)
	}
}

func TestAlertConfigUnknownAction(t *testing.T) {
	ac := AlertConfig{PID: 1, Action: "explode"}
	if _, err := ac.ToCoreAlert(time.Second); err == nil {
		t.Fatal("expected error for unknown action, got nil")
	}
}
