// Package config loads the simulation core's configuration from a YAML
// file overlaid with environment variables, following the resolution
// order documented for the server entrypoint: --config flag,
// $CGS_CONFIG_PATH, then /etc/cgs/config.yaml.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// GameLoopConfig controls tick pacing.
type GameLoopConfig struct {
	TickRateHz    int     `yaml:"tick_rate_hz" env:"CGS_TICK_RATE_HZ"`
	FixedTimeStep float64 `yaml:"fixed_time_step" env:"CGS_FIXED_TIME_STEP"`
}

// SpatialConfig controls the grid spatial index.
type SpatialConfig struct {
	CellSize        float64 `yaml:"cell_size" env:"CGS_SPATIAL_CELL_SIZE"`
	VisibilityRange float64 `yaml:"visibility_range" env:"CGS_SPATIAL_VISIBILITY_RANGE"`
}

// InstanceConfig controls map instance capacity.
type InstanceConfig struct {
	MaxInstances      int `yaml:"max_instances" env:"CGS_MAX_INSTANCES"`
	MaxPlayersPerInst int `yaml:"max_players_per_instance" env:"CGS_MAX_PLAYERS_PER_INSTANCE"`
}

// PersistenceConfig controls the WAL and snapshot manager.
type PersistenceConfig struct {
	WALDir           string `yaml:"wal_dir" env:"CGS_WAL_DIR"`
	SnapshotDir      string `yaml:"snapshot_dir" env:"CGS_SNAPSHOT_DIR"`
	SnapshotInterval int    `yaml:"snapshot_interval_seconds" env:"CGS_SNAPSHOT_INTERVAL_SECONDS"`
	SnapshotRetain   int    `yaml:"snapshot_retain" env:"CGS_SNAPSHOT_RETAIN"`
	SyncOnWrite      bool   `yaml:"sync_on_write" env:"CGS_WAL_SYNC_ON_WRITE"`
}

// CacheConfig controls the dbproxy LRU+TTL query cache.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries" env:"CGS_CACHE_MAX_ENTRIES"`
	TTLSeconds int `yaml:"ttl_seconds" env:"CGS_CACHE_TTL_SECONDS"`
}

// DBEndpointConfig describes one database connection (primary or replica).
type DBEndpointConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`
	DSN    string `yaml:"dsn" env:"DSN"`
}

// DatabaseConfig controls the dbproxy's upstream connections.
type DatabaseConfig struct {
	Primary         DBEndpointConfig   `yaml:"primary"`
	Replicas        []DBEndpointConfig `yaml:"replicas"`
	MaxOpenConns    int                `yaml:"max_open_conns" env:"CGS_DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int                `yaml:"max_idle_conns" env:"CGS_DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime int                `yaml:"conn_max_lifetime_seconds" env:"CGS_DB_CONN_MAX_LIFETIME_SECONDS"`
}

// LoggingConfig controls structured logging output.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"CGS_LOG_LEVEL"`
	Format     string `yaml:"format" env:"CGS_LOG_FORMAT"`
	Output     string `yaml:"output" env:"CGS_LOG_OUTPUT"`
	FilePrefix string `yaml:"file_prefix" env:"CGS_LOG_FILE_PREFIX"`
}

// MetricsConfig controls the Prometheus collector registration surface.
type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled" env:"CGS_METRICS_ENABLED"`
	ServiceName string `yaml:"service_name" env:"CGS_METRICS_SERVICE_NAME"`
}

// Config is the top-level configuration for the simulation core.
type Config struct {
	GameLoop    GameLoopConfig    `yaml:"game_loop"`
	Spatial     SpatialConfig     `yaml:"spatial"`
	Instances   InstanceConfig    `yaml:"instances"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Cache       CacheConfig       `yaml:"cache"`
	Database    DatabaseConfig    `yaml:"database"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// New returns a configuration populated with the defaults named in spec
// §4: 20Hz tick rate, 1/60s fixed step, 32-unit spatial cells, 100-unit
// visibility range, 60s snapshot interval, 3 retained snapshots.
func New() *Config {
	return &Config{
		GameLoop: GameLoopConfig{
			TickRateHz:    20,
			FixedTimeStep: 1.0 / 60.0,
		},
		Spatial: SpatialConfig{
			CellSize:        32.0,
			VisibilityRange: 100.0,
		},
		Instances: InstanceConfig{
			MaxInstances:      64,
			MaxPlayersPerInst: 200,
		},
		Persistence: PersistenceConfig{
			WALDir:           "data/wal",
			SnapshotDir:      "data/snapshots",
			SnapshotInterval: 60,
			SnapshotRetain:   3,
			SyncOnWrite:      true,
		},
		Cache: CacheConfig{
			MaxEntries: 10000,
			TTLSeconds: 30,
		},
		Database: DatabaseConfig{
			Primary:         DBEndpointConfig{Driver: "postgres"},
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePrefix: "cgs",
		},
		Metrics: MetricsConfig{
			Enabled:     true,
			ServiceName: "cgs",
		},
	}
}

// Load resolves the config path (--config flag value passed as path,
// $CGS_CONFIG_PATH, or /etc/cgs/config.yaml) and layers environment
// overrides on top.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	resolved := strings.TrimSpace(path)
	if resolved == "" {
		resolved = strings.TrimSpace(os.Getenv("CGS_CONFIG_PATH"))
	}
	if resolved == "" {
		resolved = "/etc/cgs/config.yaml"
	}

	if err := loadFromFile(resolved, cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	return cfg, nil
}

// LoadFile reads configuration from a YAML file, ignoring a missing file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// LoadJSON loads configuration from a JSON file over the defaults.
func LoadJSON(path string) (*Config, error) {
	cfg := New()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
