// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"nerdvision/internal/timeframe"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Data source kinds
const (
	WarehouseSource = "warehouse"
	HTTPSource      = "http"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName       string   `mapstructure:"appname"`
	AppPort       string   `mapstructure:"appport"`
	Environment   string   `mapstructure:"environment"`
	LogLevel      LogLevel `mapstructure:"loglevel"`
	SessionSecret string   `mapstructure:"sessionsecret"`
	Timezone      string   `mapstructure:"timezone"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"-"` // Derived from other settings
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`
	ExportDirectory       string `mapstructure:"exportdir"`
	RulesFile             string `mapstructure:"rulesfile"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseMaxOpenConns int `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int `mapstructure:"dbmaxidleconns"`

	// Analysis settings
	CurrentStart    string  `mapstructure:"currentstart"`
	CurrentEnd      string  `mapstructure:"currentend"`
	PreviousStart   string  `mapstructure:"previousstart"`
	PreviousEnd     string  `mapstructure:"previousend"`
	ThresholdPct    float64 `mapstructure:"thresholdpct"`
	TopN            int     `mapstructure:"topn"`
	BounceHigh      float64 `mapstructure:"bouncehigh"`
	BounceLow       float64 `mapstructure:"bouncelow"`
	ParallelReports bool    `mapstructure:"parallelreports"`

	// Data source settings
	DataSource            string  `mapstructure:"datasource"`
	HTTPEndpoint          string  `mapstructure:"httpendpoint"`
	HTTPToken             string  `mapstructure:"httptoken"`
	HTTPViewID            string  `mapstructure:"httpviewid"`
	HTTPTimeoutSeconds    int     `mapstructure:"httptimeoutseconds"`
	HTTPRequestsPerSecond float64 `mapstructure:"httprequestspersecond"`
	HTTPBurst             int     `mapstructure:"httpburst"`
	BreakerMaxFailures    int     `mapstructure:"breakermaxfailures"`
	BreakerTimeoutSeconds int     `mapstructure:"breakertimeoutseconds"`

	// Job scheduling settings
	RefreshSchedule string `mapstructure:"refreshschedule"`
	CleanupSchedule string `mapstructure:"cleanupschedule"`
	RetentionDays   int    `mapstructure:"retentiondays"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		defaults := timeframe.DefaultPeriods()

		v.SetDefault("appname", "nerdvision")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("sessionsecret", "88888888888888888888888888888888")
		v.SetDefault("timezone", "UTC")
		v.SetDefault("storagepath", "storage")
		v.SetDefault("publicdir", "public")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("exportdir", "exports")
		v.SetDefault("rulesfile", "")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("currentstart", defaults.Current.Start)
		v.SetDefault("currentend", defaults.Current.End)
		v.SetDefault("previousstart", defaults.Previous.Start)
		v.SetDefault("previousend", defaults.Previous.End)
		v.SetDefault("thresholdpct", 18.0)
		v.SetDefault("topn", 5)
		v.SetDefault("bouncehigh", 75.0)
		v.SetDefault("bouncelow", 40.0)
		v.SetDefault("parallelreports", true)
		v.SetDefault("datasource", WarehouseSource)
		v.SetDefault("httpendpoint", "")
		v.SetDefault("httptoken", "")
		v.SetDefault("httpviewid", "")
		v.SetDefault("httptimeoutseconds", 30)
		v.SetDefault("httprequestspersecond", 5.0)
		v.SetDefault("httpburst", 5)
		v.SetDefault("breakermaxfailures", 5)
		v.SetDefault("breakertimeoutseconds", 60)
		v.SetDefault("refreshschedule", "@every 1h")
		v.SetDefault("cleanupschedule", "@daily")
		v.SetDefault("retentiondays", 400)

		v.BindEnv("appname", "NERDVISION_APP_NAME")
		v.BindEnv("appport", "NERDVISION_APP_PORT")
		v.BindEnv("environment", "NERDVISION_ENV")
		v.BindEnv("loglevel", "NERDVISION_LOG_LEVEL")
		v.BindEnv("sessionsecret", "NERDVISION_SESSION_SECRET")
		v.BindEnv("timezone", "NERDVISION_TIMEZONE")
		v.BindEnv("storagepath", "NERDVISION_STORAGE_PATH")
		v.BindEnv("publicdir", "NERDVISION_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "NERDVISION_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("exportdir", "NERDVISION_EXPORT_DIR")
		v.BindEnv("rulesfile", "NERDVISION_RULES_FILE")
		v.BindEnv("logsdir", "NERDVISION_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "NERDVISION_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "NERDVISION_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "NERDVISION_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbmaxopenconns", "NERDVISION_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "NERDVISION_DB_MAX_IDLE_CONNS")
		v.BindEnv("currentstart", "NERDVISION_CURRENT_START")
		v.BindEnv("currentend", "NERDVISION_CURRENT_END")
		v.BindEnv("previousstart", "NERDVISION_PREVIOUS_START")
		v.BindEnv("previousend", "NERDVISION_PREVIOUS_END")
		v.BindEnv("thresholdpct", "NERDVISION_THRESHOLD_PCT")
		v.BindEnv("topn", "NERDVISION_TOP_N")
		v.BindEnv("bouncehigh", "NERDVISION_BOUNCE_HIGH")
		v.BindEnv("bouncelow", "NERDVISION_BOUNCE_LOW")
		v.BindEnv("parallelreports", "NERDVISION_PARALLEL_REPORTS")
		v.BindEnv("datasource", "NERDVISION_DATA_SOURCE")
		v.BindEnv("httpendpoint", "NERDVISION_HTTP_ENDPOINT")
		v.BindEnv("httptoken", "NERDVISION_HTTP_TOKEN")
		v.BindEnv("httpviewid", "NERDVISION_HTTP_VIEW_ID")
		v.BindEnv("httptimeoutseconds", "NERDVISION_HTTP_TIMEOUT_SECONDS")
		v.BindEnv("httprequestspersecond", "NERDVISION_HTTP_REQUESTS_PER_SECOND")
		v.BindEnv("httpburst", "NERDVISION_HTTP_BURST")
		v.BindEnv("breakermaxfailures", "NERDVISION_BREAKER_MAX_FAILURES")
		v.BindEnv("breakertimeoutseconds", "NERDVISION_BREAKER_TIMEOUT_SECONDS")
		v.BindEnv("refreshschedule", "NERDVISION_REFRESH_SCHEDULE")
		v.BindEnv("cleanupschedule", "NERDVISION_CLEANUP_SCHEDULE")
		v.BindEnv("retentiondays", "NERDVISION_RETENTION_DAYS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.Validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		// Set derived values
		cfg.DatabaseName = cfg.GetDatabasePath()

		if cfg.IsProduction() && cfg.SessionSecret == "88888888888888888888888888888888" {
			log.Fatal("Production requires a unique NERDVISION_SESSION_SECRET (cannot use default)")
		}
	})
	return cfg
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	switch c.DataSource {
	case WarehouseSource:
	case HTTPSource:
		if c.HTTPEndpoint == "" {
			return fmt.Errorf("data source %q requires an endpoint", c.DataSource)
		}
	default:
		return fmt.Errorf("invalid data source: %s", c.DataSource)
	}

	if c.ThresholdPct < 0 {
		return fmt.Errorf("threshold must not be negative: %v", c.ThresholdPct)
	}
	if c.TopN <= 0 {
		return fmt.Errorf("top n must be positive: %d", c.TopN)
	}
	if c.BounceLow < 0 || c.BounceHigh > 100 || c.BounceLow > c.BounceHigh {
		return fmt.Errorf("invalid bounce thresholds: low %v, high %v", c.BounceLow, c.BounceHigh)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	// Empty schedules disable the job
	for name, spec := range map[string]string{"refresh": c.RefreshSchedule, "cleanup": c.CleanupSchedule} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", name, spec, err)
		}
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("retention days must not be negative: %d", c.RetentionDays)
	}

	return nil
}

// Periods returns the configured current and previous windows
func (c *Config) Periods() timeframe.Periods {
	return timeframe.Periods{
		Current:  timeframe.Period{Start: c.CurrentStart, End: c.CurrentEnd},
		Previous: timeframe.Period{Start: c.PreviousStart, End: c.PreviousEnd},
	}
}

// Location returns the configured timezone, falling back to UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetHTTPTimeout returns the data source request timeout
func (c *Config) GetHTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// GetBreakerTimeout returns how long an open breaker waits before probing again
func (c *Config) GetBreakerTimeout() time.Duration {
	return time.Duration(c.BreakerTimeoutSeconds) * time.Second
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.SessionSecret
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
