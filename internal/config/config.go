// Package config provides configuration management using Viper.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
)

// EnvPrefix prefixes every environment variable, e.g. MANIPULATORS_ENGINE_TYPE.
const EnvPrefix = "MANIPULATORS"

// Engine types.
const (
	EngineNative     = "native"
	EngineSpatiaLite = "spatialite"
	EnginePostGIS    = "postgis"
)

// Config holds all application configuration.
type Config struct {
	Engine   EngineConfig   `mapstructure:"engine"`
	Geometry GeometryConfig `mapstructure:"geometry"`
	Spikes   SpikesConfig   `mapstructure:"spikes"`
	Source   SourceConfig   `mapstructure:"source"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Output   OutputConfig   `mapstructure:"output"`
}

// EngineConfig selects and configures the geometry engine.
type EngineConfig struct {
	Type       string           `mapstructure:"type"` // native, spatialite, postgis
	Timeout    time.Duration    `mapstructure:"timeout"`
	SpatiaLite SpatiaLiteConfig `mapstructure:"spatialite"`
	PostGIS    PostGISConfig    `mapstructure:"postgis"`
}

// SpatiaLiteConfig holds SpatiaLite engine configuration.
type SpatiaLiteConfig struct {
	LibraryPath string `mapstructure:"library_path"`
}

// PostGISConfig holds PostGIS engine configuration.
type PostGISConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// GeometryConfig holds SRID settings.
type GeometryConfig struct {
	InputSRID   int               `mapstructure:"input_srid"`
	WorkingSRID int               `mapstructure:"working_srid"`
	Projections map[string]string `mapstructure:"projections"` // SRID -> proj4
}

// SpikesConfig holds spike removal settings.
type SpikesConfig struct {
	Threshold float64 `mapstructure:"threshold"` // degrees
	Mode      string  `mapstructure:"mode"`      // single, exact, repeated
	MaxPasses int     `mapstructure:"max_passes"`
}

// SourceConfig holds geometry source configuration.
type SourceConfig struct {
	Type      string      `mapstructure:"type"` // s3, azure, http, local
	LocalPath string      `mapstructure:"local_path"`
	S3        S3Config    `mapstructure:"s3"`
	Azure     AzureConfig `mapstructure:"azure"`
	HTTP      HTTPConfig  `mapstructure:"http"`
}

// S3Config holds AWS S3 configuration.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string `mapstructure:"container"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Prefix           string `mapstructure:"prefix"`
}

// HTTPConfig holds HTTP source configuration.
type HTTPConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	IndexFile string        `mapstructure:"index_file"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
}

// WatchConfig holds watch mode configuration.
type WatchConfig struct {
	Debounce     time.Duration `mapstructure:"debounce"`
	PollInterval time.Duration `mapstructure:"poll_interval"` // remote sources
	OutputDir    string        `mapstructure:"output_dir"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Textfile  string `mapstructure:"textfile"`
	Namespace string `mapstructure:"namespace"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// OutputConfig holds command output settings.
type OutputConfig struct {
	Format string `mapstructure:"format"` // wkt, ewkt, geojson, wkb, ewkb, json, yaml
}

// Defaults sets the default configuration values.
func Defaults() {
	viper.SetDefault("engine.type", EngineNative)
	viper.SetDefault("engine.timeout", 30*time.Second)
	viper.SetDefault("engine.postgis.max_conns", 4)

	viper.SetDefault("geometry.input_srid", domain.SRIDWGS84)
	viper.SetDefault("geometry.working_srid", domain.DefaultWorkingSRID)

	viper.SetDefault("spikes.threshold", domain.DefaultSpikeThreshold)
	viper.SetDefault("spikes.mode", "single")
	viper.SetDefault("spikes.max_passes", 10)

	viper.SetDefault("source.type", "local")
	viper.SetDefault("source.local_path", ".")
	viper.SetDefault("source.http.index_file", "index.txt")
	viper.SetDefault("source.http.timeout", time.Minute)

	viper.SetDefault("watch.debounce", 500*time.Millisecond)
	viper.SetDefault("watch.poll_interval", 5*time.Minute)
	viper.SetDefault("watch.output_dir", "./cleaned")

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.namespace", "manipulators")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	viper.SetDefault("output.format", "wkt")
}

// Load loads configuration from environment and config file.
func Load(configPath string) (*Config, error) {
	Defaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/manipulators")
	}

	// The config file is optional unless named explicitly.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Engine.Type {
	case EngineNative, EngineSpatiaLite:
	case EnginePostGIS:
		if c.Engine.PostGIS.DSN == "" {
			return &domain.ConfigError{Field: "engine.postgis.dsn", Message: "required for the postgis engine"}
		}
	default:
		return &domain.ConfigError{Field: "engine.type", Message: fmt.Sprintf("unknown engine %q", c.Engine.Type)}
	}

	if c.Geometry.InputSRID <= 0 {
		return &domain.ConfigError{Field: "geometry.input_srid", Message: "must be a positive EPSG code"}
	}
	if c.Geometry.WorkingSRID <= 0 {
		return &domain.ConfigError{Field: "geometry.working_srid", Message: "must be a positive EPSG code"}
	}
	if _, err := c.ProjectionOverrides(); err != nil {
		return err
	}

	if c.Spikes.Threshold <= 0 {
		return &domain.ConfigError{Field: "spikes.threshold", Message: "must be positive"}
	}
	switch c.Spikes.Mode {
	case "single", "exact", "repeated":
	default:
		return &domain.ConfigError{Field: "spikes.mode", Message: fmt.Sprintf("unknown mode %q", c.Spikes.Mode)}
	}

	if err := c.Source.Validate(); err != nil {
		return err
	}

	switch c.Output.Format {
	case "wkt", "ewkt", "geojson", "wkb", "ewkb", "json", "yaml":
	default:
		return &domain.ConfigError{Field: "output.format", Message: fmt.Sprintf("unknown format %q", c.Output.Format)}
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return &domain.ConfigError{Field: "logging.format", Message: fmt.Sprintf("unknown format %q", c.Logging.Format)}
	}

	return nil
}

// Validate validates the source configuration.
func (s *SourceConfig) Validate() error {
	switch s.Type {
	case "local":
		if s.LocalPath == "" {
			return &domain.ConfigError{Field: "source.local_path", Message: "required for local sources"}
		}
	case "s3":
		if s.S3.Bucket == "" {
			return &domain.ConfigError{Field: "source.s3.bucket", Message: "required for S3 sources"}
		}
		if s.S3.Region == "" {
			return &domain.ConfigError{Field: "source.s3.region", Message: "required for S3 sources"}
		}
	case "azure":
		if s.Azure.Container == "" {
			return &domain.ConfigError{Field: "source.azure.container", Message: "required for Azure sources"}
		}
		if s.Azure.AccountName == "" && s.Azure.ConnectionString == "" {
			return &domain.ConfigError{Field: "source.azure.account_name", Message: "account name or connection string is required"}
		}
	case "http":
		if s.HTTP.BaseURL == "" {
			return &domain.ConfigError{Field: "source.http.base_url", Message: "required for HTTP sources"}
		}
	default:
		return &domain.ConfigError{Field: "source.type", Message: fmt.Sprintf("unknown source type %q", s.Type)}
	}
	return nil
}

// IsRemote reports whether the source cannot be watched on the filesystem.
func (s *SourceConfig) IsRemote() bool {
	return s.Type != "local"
}

// ProjectionOverrides returns geometry.projections keyed by SRID.
func (c *Config) ProjectionOverrides() (map[int]string, error) {
	out := make(map[int]string, len(c.Geometry.Projections))
	for key, def := range c.Geometry.Projections {
		srid, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(key), "EPSG:"))
		if err != nil || srid <= 0 {
			return nil, &domain.ConfigError{Field: "geometry.projections." + key, Message: "key must be an EPSG code"}
		}
		if strings.TrimSpace(def) == "" {
			return nil, &domain.ConfigError{Field: "geometry.projections." + key, Message: "proj4 definition is empty"}
		}
		out[srid] = def
	}
	return out, nil
}
