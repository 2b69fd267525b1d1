// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/otus/internal/core"
)

// GlobalConfig represents the top-level static configuration. Maps to the
// `netwatch:` root key in YAML.
type GlobalConfig struct {
	Interface  string        `mapstructure:"interface"`
	Output     OutputConfig  `mapstructure:"output"`
	Container  ContainerConfig `mapstructure:"container"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Timers     TimersConfig  `mapstructure:"timers"`
	Alerts     []AlertConfig `mapstructure:"alerts"`
	Bus        BusConfig     `mapstructure:"bus"`
	Discovery  DiscoveryConfig `mapstructure:"discovery"`
	Log        LogConfig     `mapstructure:"log"`
}

// OutputConfig controls the out-of-core UI surface's rendering mode; the
// core itself only needs to know the flag values to pass through on the
// snapshot.
type OutputConfig struct {
	Mode        string `mapstructure:"mode"` // "json" | "tui"
	ShowTotals  bool   `mapstructure:"show_total_columns"`
}

// ContainerConfig toggles cgroup-based container tag extraction in the
// resolver.
type ContainerConfig struct {
	Aware bool `mapstructure:"aware"`
}

// ThresholdsConfig carries the display/alert thresholds named in the
// external interface surface.
type ThresholdsConfig struct {
	LargePacketBytes        int    `mapstructure:"large_packet_bytes"`
	FrequentConnectionCount int    `mapstructure:"frequent_connection_count"`
	SystemQuotaBytes        uint64 `mapstructure:"system_quota_bytes"`
}

// TimersConfig carries every tunable window named in §4/§5 of the design.
type TimersConfig struct {
	ResolverRefresh   time.Duration `mapstructure:"resolver_refresh"`   // R
	AggregationPeriod time.Duration `mapstructure:"aggregation_period"` // W
	CleanupPeriod     time.Duration `mapstructure:"cleanup_period"`     // C_cleanup
	FlowTimeout       time.Duration `mapstructure:"flow_timeout"`
	DeadProcessPeriod time.Duration `mapstructure:"dead_process_period"` // P
	AlertCooldown     time.Duration `mapstructure:"alert_cooldown"`
	QueueCapacity     int           `mapstructure:"queue_capacity"` // K
}

// AlertConfig is the serialized form of core.Alert read from config.
type AlertConfig struct {
	PID            int    `mapstructure:"pid"`
	ThresholdBytes uint64 `mapstructure:"threshold_bytes"`
	Action         string `mapstructure:"action"`          // "kill" | "custom_command" | "notify"
	CommandTemplate string `mapstructure:"command_template"`
}

// ToCoreAlert converts the config-level alert into the domain type, applying
// the global cooldown.
func (a AlertConfig) ToCoreAlert(cooldown time.Duration) (core.Alert, error) {
	var kind core.AlertActionKind
	switch a.Action {
	case "kill":
		kind = core.AlertActionKill
	case "custom_command":
		kind = core.AlertActionCustomCommand
	case "notify":
		kind = core.AlertActionNotify
	default:
		return core.Alert{}, fmt.Errorf("%w: unknown alert action %q", core.ErrConfigInvalid, a.Action)
	}
	return core.Alert{
		PID:            a.PID,
		ThresholdBytes: a.ThresholdBytes,
		Cooldown:       cooldown,
		Action: core.AlertAction{
			Kind:     kind,
			Template: a.CommandTemplate,
		},
	}, nil
}

// BusConfig addresses the downstream pub/sub bus.
type BusConfig struct {
	URL            string        `mapstructure:"url"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	FlowTopic      string        `mapstructure:"flow_topic"`
	DeviceTopic    string        `mapstructure:"device_topic"`
}

// DiscoveryConfig controls the ARP companion pipeline.
type DiscoveryConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	PublishInterval time.Duration `mapstructure:"publish_interval"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// configRoot is the top-level wrapper matching the YAML structure
// `netwatch: ...`.
type configRoot struct {
	Netwatch GlobalConfig `mapstructure:"netwatch"`
}

// Load loads configuration from file. The YAML file uses `netwatch:` as
// root key; env vars use NETWATCH_ prefix (e.g. NETWATCH_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Netwatch

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values matching §4's suggested windows.
func setDefaults(v *viper.Viper) {
	v.SetDefault("netwatch.interface", "any")
	v.SetDefault("netwatch.output.mode", "json")
	v.SetDefault("netwatch.output.show_total_columns", true)
	v.SetDefault("netwatch.container.aware", true)

	v.SetDefault("netwatch.thresholds.large_packet_bytes", 1500)
	v.SetDefault("netwatch.thresholds.frequent_connection_count", 100)
	v.SetDefault("netwatch.thresholds.system_quota_bytes", 0)

	v.SetDefault("netwatch.timers.resolver_refresh", "2s")
	v.SetDefault("netwatch.timers.aggregation_period", "5s")
	v.SetDefault("netwatch.timers.cleanup_period", "60s")
	v.SetDefault("netwatch.timers.flow_timeout", "300s")
	v.SetDefault("netwatch.timers.dead_process_period", "10s")
	v.SetDefault("netwatch.timers.alert_cooldown", "30s")
	v.SetDefault("netwatch.timers.queue_capacity", 1000)

	v.SetDefault("netwatch.bus.url", "redis://127.0.0.1:6379")
	v.SetDefault("netwatch.bus.publish_timeout", "2s")
	v.SetDefault("netwatch.bus.flow_topic", "network_flows")
	v.SetDefault("netwatch.bus.device_topic", "device_discovery_channel")

	v.SetDefault("netwatch.discovery.enabled", true)
	v.SetDefault("netwatch.discovery.publish_interval", "10s")

	v.SetDefault("netwatch.log.level", "info")
	v.SetDefault("netwatch.log.format", "json")
	v.SetDefault("netwatch.log.outputs.file.enabled", false)
	v.SetDefault("netwatch.log.outputs.file.path", "/var/log/netwatchd/netwatchd.log")
	v.SetDefault("netwatch.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("netwatch.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("netwatch.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("netwatch.log.outputs.file.rotation.compress", true)
}

// ValidateAndApplyDefaults validates configuration and applies the
// REDIS_URL environment override (takes precedence over both config file
// and the built-in default, per §6).
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: invalid log level %q", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("%w: invalid log format %q", core.ErrConfigInvalid, cfg.Log.Format)
	}
	if cfg.Output.Mode != "json" && cfg.Output.Mode != "tui" {
		return fmt.Errorf("%w: invalid output mode %q", core.ErrConfigInvalid, cfg.Output.Mode)
	}
	if cfg.Timers.QueueCapacity <= 0 {
		return fmt.Errorf("%w: queue_capacity must be positive", core.ErrConfigInvalid)
	}

	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Bus.URL = url
	}
	if cfg.Bus.URL == "" {
		cfg.Bus.URL = "redis://127.0.0.1:6379"
	}

	return nil
}
