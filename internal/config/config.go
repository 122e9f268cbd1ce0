// Package config loads the core's layered configuration (spec §6) using
// spf13/viper with BurntSushi/toml as the on-disk format, both direct
// teacher dependencies. Configuration is read once at process start and
// is immutable thereafter: runtime updates are read-mostly (spec §5) and
// take effect only at the next process restart.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// StorageConnection mirrors spec §6 storage.connection.
type StorageConnection struct {
	MaxConnections int           `mapstructure:"maxConnections"`
	MaxRetries     int           `mapstructure:"maxRetries"`
	RetryDelay     time.Duration `mapstructure:"retryDelay"`
	BusyTimeout    time.Duration `mapstructure:"busyTimeout"`
	IdleTimeout    time.Duration `mapstructure:"idleTimeout"`
	AcquireTimeout time.Duration `mapstructure:"acquireTimeout"`
}

// StoragePerformance mirrors spec §6 storage.performance.
type StoragePerformance struct {
	PageSize            int           `mapstructure:"pageSize"`
	CacheSizePages      int           `mapstructure:"cacheSize"`
	MmapSizeBytes       int64         `mapstructure:"mmapSize"`
	MaxMemoryBytes      int64         `mapstructure:"maxMemory"`
	CheckpointInterval  time.Duration `mapstructure:"checkpointInterval"`
	VacuumInterval      time.Duration `mapstructure:"vacuumInterval"`
	StatementCacheSize  int           `mapstructure:"statementCacheSize"`
}

// StorageJournal mirrors spec §6 storage.journal (SQLite PRAGMA vocabulary).
type StorageJournal struct {
	Mode        string `mapstructure:"mode"`
	Synchronous string `mapstructure:"synchronous"`
	TempStore   string `mapstructure:"tempStore"`
	LockingMode string `mapstructure:"lockingMode"`
	AutoVacuum  string `mapstructure:"autoVacuum"`
}

// StorageConfig mirrors spec §6 storage.
type StorageConfig struct {
	BaseDir     string             `mapstructure:"baseDir"`
	Name        string             `mapstructure:"name"`
	Connection  StorageConnection  `mapstructure:"connection"`
	Performance StoragePerformance `mapstructure:"performance"`
	Journal     StorageJournal     `mapstructure:"journal"`
}

// LoggingConfig mirrors spec §6 logging.
type LoggingConfig struct {
	MinLevel    string `mapstructure:"minLevel"`
	LogDir      string `mapstructure:"logDir"`
	Console     bool   `mapstructure:"console"`
	File        bool   `mapstructure:"file"`
	MaxFiles    int    `mapstructure:"maxFiles"`
	MaxFileSize int64  `mapstructure:"maxFileSize"`
	NoColors    bool   `mapstructure:"noColors"`
}

// CacheConfig mirrors spec §6 cache.
type CacheConfig struct {
	MaxMemoryBytes     int64         `mapstructure:"maxMemory"`
	CheckInterval      time.Duration `mapstructure:"checkInterval"`
	PressureThreshold  float64       `mapstructure:"pressureThreshold"`
	DebugMode          bool          `mapstructure:"debugMode"`
}

// TracerConfig mirrors spec §6 tracer.
type TracerConfig struct {
	MaxTraces         int           `mapstructure:"maxTraces"`
	MaxEventsPerTrace int           `mapstructure:"maxEventsPerTrace"`
	TraceRetention    time.Duration `mapstructure:"traceRetention"`
	CleanupInterval   time.Duration `mapstructure:"cleanupInterval"`
}

// BackupConfig mirrors spec §6 backup.
type BackupConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Schedule      string `mapstructure:"schedule"`
	MaxBackups    int    `mapstructure:"maxBackups"`
	BackupOnStart bool   `mapstructure:"backupOnStart"`
}

// Config is the root configuration object, built once at startup.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Tracer  TracerConfig  `mapstructure:"tracer"`
	Backup  BackupConfig  `mapstructure:"backup"`
}

// Default returns the spec-documented default configuration.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			BaseDir: ".taskcore",
			Name:    "core",
			Connection: StorageConnection{
				MaxConnections: 10,
				MaxRetries:     3,
				RetryDelay:     1000 * time.Millisecond,
				BusyTimeout:    5000 * time.Millisecond,
				IdleTimeout:    60 * time.Second,
				AcquireTimeout: 30 * time.Second,
			},
			Performance: StoragePerformance{
				PageSize:           4096,
				CacheSizePages:     2000,
				MmapSizeBytes:      64 << 20,
				MaxMemoryBytes:     256 << 20,
				CheckpointInterval: 5 * time.Minute,
				VacuumInterval:     1 * time.Hour,
				StatementCacheSize: 100,
			},
			Journal: StorageJournal{
				Mode:        "WAL",
				Synchronous: "NORMAL",
				TempStore:   "FILE",
				LockingMode: "NORMAL",
				AutoVacuum:  "NONE",
			},
		},
		Logging: LoggingConfig{
			MinLevel: "info",
			Console:  true,
			File:     false,
			MaxFiles: 5,
		},
		Cache: CacheConfig{
			MaxMemoryBytes:    512 << 20,
			CheckInterval:     60 * time.Second,
			PressureThreshold: 0.8,
		},
		Tracer: TracerConfig{
			MaxTraces:         1000,
			MaxEventsPerTrace: 100,
			TraceRetention:    1 * time.Hour,
			CleanupInterval:   1 * time.Hour,
		},
		Backup: BackupConfig{
			Enabled:    true,
			Schedule:   "0 */6 * * *",
			MaxBackups: 10,
		},
	}
}

// Load builds a Config from, in ascending precedence: built-in defaults,
// an optional TOML file (path from $TASKCORE_CONFIG or the configPath
// argument), then TASKCORE_* environment variables. Loaded once per
// process; later mutation of the file or environment has no effect on an
// already-constructed Config.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	def := Default()
	bindDefaults(v, def)

	if configPath == "" {
		configPath = os.Getenv("TASKCORE_CONFIG")
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	v.SetEnvPrefix("TASKCORE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

func bindDefaults(v *viper.Viper, def Config) {
	v.SetDefault("storage.baseDir", def.Storage.BaseDir)
	v.SetDefault("storage.name", def.Storage.Name)
	v.SetDefault("storage.connection.maxConnections", def.Storage.Connection.MaxConnections)
	v.SetDefault("storage.connection.maxRetries", def.Storage.Connection.MaxRetries)
	v.SetDefault("storage.connection.retryDelay", def.Storage.Connection.RetryDelay)
	v.SetDefault("storage.connection.busyTimeout", def.Storage.Connection.BusyTimeout)
	v.SetDefault("storage.connection.idleTimeout", def.Storage.Connection.IdleTimeout)
	v.SetDefault("storage.connection.acquireTimeout", def.Storage.Connection.AcquireTimeout)
	v.SetDefault("storage.performance.pageSize", def.Storage.Performance.PageSize)
	v.SetDefault("storage.performance.cacheSize", def.Storage.Performance.CacheSizePages)
	v.SetDefault("storage.performance.mmapSize", def.Storage.Performance.MmapSizeBytes)
	v.SetDefault("storage.performance.maxMemory", def.Storage.Performance.MaxMemoryBytes)
	v.SetDefault("storage.performance.checkpointInterval", def.Storage.Performance.CheckpointInterval)
	v.SetDefault("storage.performance.vacuumInterval", def.Storage.Performance.VacuumInterval)
	v.SetDefault("storage.performance.statementCacheSize", def.Storage.Performance.StatementCacheSize)
	v.SetDefault("storage.journal.mode", def.Storage.Journal.Mode)
	v.SetDefault("storage.journal.synchronous", def.Storage.Journal.Synchronous)
	v.SetDefault("storage.journal.tempStore", def.Storage.Journal.TempStore)
	v.SetDefault("storage.journal.lockingMode", def.Storage.Journal.LockingMode)
	v.SetDefault("storage.journal.autoVacuum", def.Storage.Journal.AutoVacuum)

	v.SetDefault("logging.minLevel", def.Logging.MinLevel)
	v.SetDefault("logging.console", def.Logging.Console)
	v.SetDefault("logging.file", def.Logging.File)
	v.SetDefault("logging.maxFiles", def.Logging.MaxFiles)
	v.SetDefault("logging.maxFileSize", def.Logging.MaxFileSize)
	v.SetDefault("logging.noColors", def.Logging.NoColors)

	v.SetDefault("cache.maxMemory", def.Cache.MaxMemoryBytes)
	v.SetDefault("cache.checkInterval", def.Cache.CheckInterval)
	v.SetDefault("cache.pressureThreshold", def.Cache.PressureThreshold)
	v.SetDefault("cache.debugMode", def.Cache.DebugMode)

	v.SetDefault("tracer.maxTraces", def.Tracer.MaxTraces)
	v.SetDefault("tracer.maxEventsPerTrace", def.Tracer.MaxEventsPerTrace)
	v.SetDefault("tracer.traceRetention", def.Tracer.TraceRetention)
	v.SetDefault("tracer.cleanupInterval", def.Tracer.CleanupInterval)

	v.SetDefault("backup.enabled", def.Backup.Enabled)
	v.SetDefault("backup.schedule", def.Backup.Schedule)
	v.SetDefault("backup.maxBackups", def.Backup.MaxBackups)
	v.SetDefault("backup.backupOnStart", def.Backup.BackupOnStart)
}
