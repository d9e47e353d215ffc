package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the module directory.
const FileName = "onesync.cfg.json"

// LegacyGridBelowProtocol is the first server protocol version that speaks the
// compact world grid.
const LegacyGridBelowProtocol uint64 = 0x202002271209

// DefaultEventBlacklist names the events that are never queued or executed.
// Control changes go through the ownership protocol instead.
var DefaultEventBlacklist = []string{
	"GIVE_CONTROL_EVENT",
	"BLOW_UP_VEHICLE_EVENT",
	"KICK_VOTES_EVENT",
	"NETWORK_CRC_HASH_CHECK_EVENT",
	"NETWORK_CHECK_EXE_SIZE_EVENT",
	"NETWORK_CHECK_CODE_CRCS_EVENT",
	"NETWORK_CHECK_CATALOG_CRC",
}

// RateLimit caps the number of live instances of an event name.
type RateLimit struct {
	Name   string `json:"name" mapstructure:"name"`
	Prefix bool   `json:"prefix" mapstructure:"prefix"`
	Max    int    `json:"max" mapstructure:"max"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// SetDefaults registers every default value. Load calls it; tests and the
// demo driver call it directly when there is no config file.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./onesynclogs")
	viper.SetDefault("log.maxSizeMB", 20)
	viper.SetDefault("log.maxBackups", 5)
	viper.SetDefault("log.maxAgeDays", 14)
	viper.SetDefault("log.compress", true)

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("onesync.enabled", true)
	viper.SetDefault("onesync.unresolvedOwner", "placeholder")

	viper.SetDefault("events.expiry", "5s")
	viper.SetDefault("events.maxPayload", 1024)
	viper.SetDefault("events.blacklist", DefaultEventBlacklist)
	viper.SetDefault("events.rateLimits", []map[string]any{
		{"name": "ALTER_WANTED_LEVEL_EVENT", "prefix": false, "max": 5},
		{"name": "PED_SPEECH_", "prefix": true, "max": 50},
	})
	viper.SetDefault("events.deferredBacklogWarn", 1024)

	viper.SetDefault("grid.legacyBelowProtocol", LegacyGridBelowProtocol)
	viper.SetDefault("grid.originRange", 424.0)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.flushInterval", "2s")
	viper.SetDefault("storage.queueSize", 4096)
	viper.SetDefault("storage.memory.exportDir", "")
	viper.SetDefault("storage.memory.compress", true)
	viper.SetDefault("storage.sqlite.path", "./onesync_journal.db")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "postgres")
	viper.SetDefault("storage.postgres.database", "onesync")
	viper.SetDefault("storage.postgres.sslMode", "disable")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "onesync")
	viper.SetDefault("influx.bucket", "onesync_performance")
	viper.SetDefault("influx.backupDir", "./onesynclogs")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "onesync-core")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("status.interval", "5s")
	viper.SetDefault("status.file", "status.json")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// OneSyncConfig controls the top-level switch and owner fallback.
type OneSyncConfig struct {
	Enabled bool
	// UnresolvedOwner is "placeholder" or "none".
	UnresolvedOwner string
}

// GetOneSyncConfig returns the core settings.
func GetOneSyncConfig() OneSyncConfig {
	return OneSyncConfig{
		Enabled:         viper.GetBool("onesync.enabled"),
		UnresolvedOwner: viper.GetString("onesync.unresolvedOwner"),
	}
}

// EventsConfig controls the replication queue.
type EventsConfig struct {
	Expiry              time.Duration
	MaxPayload          int
	Blacklist           []string
	RateLimits          []RateLimit
	DeferredBacklogWarn int
}

// GetEventsConfig returns the replication queue settings.
func GetEventsConfig() EventsConfig {
	cfg := EventsConfig{
		Expiry:              viper.GetDuration("events.expiry"),
		MaxPayload:          viper.GetInt("events.maxPayload"),
		Blacklist:           viper.GetStringSlice("events.blacklist"),
		DeferredBacklogWarn: viper.GetInt("events.deferredBacklogWarn"),
	}
	if err := viper.UnmarshalKey("events.rateLimits", &cfg.RateLimits); err != nil {
		cfg.RateLimits = nil
	}
	return cfg
}

// GridConfig controls the world grid partition.
type GridConfig struct {
	LegacyBelowProtocol uint64
	OriginRange         float64
}

// GetGridConfig returns the world grid settings.
func GetGridConfig() GridConfig {
	return GridConfig{
		LegacyBelowProtocol: viper.GetUint64("grid.legacyBelowProtocol"),
		OriginRange:         viper.GetFloat64("grid.originRange"),
	}
}

// PostgresConfig holds the journal database connection settings.
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
	SSLMode  string `json:"sslMode" mapstructure:"sslMode"`
}

// MemoryConfig controls the in-memory journal export.
type MemoryConfig struct {
	ExportDir string
	Compress  bool
}

// StorageConfig selects and configures the forensic journal backend.
type StorageConfig struct {
	Type          string
	FlushInterval time.Duration
	QueueSize     int
	Memory        MemoryConfig
	SQLitePath    string
	Postgres      PostgresConfig
}

// GetStorageConfig returns the journal settings.
func GetStorageConfig() StorageConfig {
	cfg := StorageConfig{
		Type:          viper.GetString("storage.type"),
		FlushInterval: viper.GetDuration("storage.flushInterval"),
		QueueSize:     viper.GetInt("storage.queueSize"),
		Memory: MemoryConfig{
			ExportDir: viper.GetString("storage.memory.exportDir"),
			Compress:  viper.GetBool("storage.memory.compress"),
		},
		SQLitePath: viper.GetString("storage.sqlite.path"),
	}
	_ = viper.UnmarshalKey("storage.postgres", &cfg.Postgres)
	return cfg
}

// InfluxConfig holds the time-series sink settings.
type InfluxConfig struct {
	Enabled   bool
	Host      string
	Port      string
	Protocol  string
	Token     string
	Org       string
	Bucket    string
	BackupDir string
}

// GetInfluxConfig returns the time-series sink settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:   viper.GetBool("influx.enabled"),
		Host:      viper.GetString("influx.host"),
		Port:      viper.GetString("influx.port"),
		Protocol:  viper.GetString("influx.protocol"),
		Token:     viper.GetString("influx.token"),
		Org:       viper.GetString("influx.org"),
		Bucket:    viper.GetString("influx.bucket"),
		BackupDir: viper.GetString("influx.backupDir"),
	}
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// GetOTelConfig returns OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level          string
	Dir            string
	MaxSizeMB      int
	MaxBackups     int
	MaxAgeDays     int
	Compress       bool
	GraylogEnabled bool
	GraylogAddress string
}

// GetLogConfig returns logging settings.
func GetLogConfig() LogConfig {
	return LogConfig{
		Level:          viper.GetString("logLevel"),
		Dir:            viper.GetString("logsDir"),
		MaxSizeMB:      viper.GetInt("log.maxSizeMB"),
		MaxBackups:     viper.GetInt("log.maxBackups"),
		MaxAgeDays:     viper.GetInt("log.maxAgeDays"),
		Compress:       viper.GetBool("log.compress"),
		GraylogEnabled: viper.GetBool("graylog.enabled"),
		GraylogAddress: viper.GetString("graylog.address"),
	}
}

// StatusConfig controls the status file writer.
type StatusConfig struct {
	Interval time.Duration
	File     string
}

// GetStatusConfig returns the status writer settings.
func GetStatusConfig() StatusConfig {
	return StatusConfig{
		Interval: viper.GetDuration("status.interval"),
		File:     viper.GetString("status.file"),
	}
}
