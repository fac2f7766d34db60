package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
)

func validConfig() Config {
	return Config{
		Engine:   EngineConfig{Type: EngineNative},
		Geometry: GeometryConfig{InputSRID: 4326, WorkingSRID: 5070},
		Spikes:   SpikesConfig{Threshold: 0.01, Mode: "single", MaxPasses: 10},
		Source:   SourceConfig{Type: "local", LocalPath: "."},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Output:   OutputConfig{Format: "wkt"},
	}
}

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Engine.Type != EngineNative {
		t.Errorf("Engine.Type = %q, want %q", cfg.Engine.Type, EngineNative)
	}
	if cfg.Geometry.WorkingSRID != domain.DefaultWorkingSRID {
		t.Errorf("WorkingSRID = %d, want %d", cfg.Geometry.WorkingSRID, domain.DefaultWorkingSRID)
	}
	if cfg.Geometry.InputSRID != domain.SRIDWGS84 {
		t.Errorf("InputSRID = %d, want %d", cfg.Geometry.InputSRID, domain.SRIDWGS84)
	}
	if cfg.Spikes.Threshold != domain.DefaultSpikeThreshold || cfg.Spikes.Mode != "single" || cfg.Spikes.MaxPasses != 10 {
		t.Errorf("Spikes = %+v", cfg.Spikes)
	}
	if cfg.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("Watch.Debounce = %v, want 500ms", cfg.Watch.Debounce)
	}
	if cfg.Engine.PostGIS.MaxConns != 4 {
		t.Errorf("PostGIS.MaxConns = %d, want 4", cfg.Engine.PostGIS.MaxConns)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	viper.Reset()

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
engine:
  type: spatialite
geometry:
  working_srid: 3310
  projections:
    "32000": "+proj=merc +datum=WGS84 +units=m +no_defs"
spikes:
  mode: repeated
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("MANIPULATORS_SPIKES_THRESHOLD", "0.5")
	t.Setenv("MANIPULATORS_LOGGING_FORMAT", "json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Engine.Type != EngineSpatiaLite {
		t.Errorf("Engine.Type = %q, want spatialite", cfg.Engine.Type)
	}
	if cfg.Geometry.WorkingSRID != 3310 {
		t.Errorf("WorkingSRID = %d, want 3310", cfg.Geometry.WorkingSRID)
	}
	if cfg.Spikes.Mode != "repeated" || cfg.Spikes.Threshold != 0.5 {
		t.Errorf("Spikes = %+v, want repeated with threshold 0.5", cfg.Spikes)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}

	overrides, err := cfg.ProjectionOverrides()
	if err != nil {
		t.Fatalf("ProjectionOverrides failed: %v", err)
	}
	if _, ok := overrides[32000]; !ok || len(overrides) != 1 {
		t.Errorf("ProjectionOverrides() = %v, want SRID 32000", overrides)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantField string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown engine", func(c *Config) { c.Engine.Type = "oracle" }, "engine.type"},
		{"postgis without dsn", func(c *Config) { c.Engine.Type = EnginePostGIS }, "engine.postgis.dsn"},
		{"postgis with dsn", func(c *Config) {
			c.Engine.Type = EnginePostGIS
			c.Engine.PostGIS.DSN = "postgres://localhost/gis"
		}, ""},
		{"zero input srid", func(c *Config) { c.Geometry.InputSRID = 0 }, "geometry.input_srid"},
		{"negative working srid", func(c *Config) { c.Geometry.WorkingSRID = -1 }, "geometry.working_srid"},
		{"bad projection key", func(c *Config) {
			c.Geometry.Projections = map[string]string{"albers": "+proj=aea"}
		}, "geometry.projections.albers"},
		{"empty projection", func(c *Config) {
			c.Geometry.Projections = map[string]string{"EPSG:32000": " "}
		}, "geometry.projections.EPSG:32000"},
		{"zero threshold", func(c *Config) { c.Spikes.Threshold = 0 }, "spikes.threshold"},
		{"exact spike mode", func(c *Config) { c.Spikes.Mode = "exact" }, ""},
		{"unknown spike mode", func(c *Config) { c.Spikes.Mode = "twice" }, "spikes.mode"},
		{"s3 without bucket", func(c *Config) { c.Source.Type = "s3" }, "source.s3.bucket"},
		{"s3 without region", func(c *Config) {
			c.Source.Type = "s3"
			c.Source.S3.Bucket = "shapes"
		}, "source.s3.region"},
		{"azure without account", func(c *Config) {
			c.Source.Type = "azure"
			c.Source.Azure.Container = "shapes"
		}, "source.azure.account_name"},
		{"http without url", func(c *Config) { c.Source.Type = "http" }, "source.http.base_url"},
		{"unknown source", func(c *Config) { c.Source.Type = "ftp" }, "source.type"},
		{"unknown output format", func(c *Config) { c.Output.Format = "kml" }, "output.format"},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}

			var cfgErr *domain.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() = %v, want ConfigError", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.wantField)
			}
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("Validate() = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestIsRemote(t *testing.T) {
	for typ, want := range map[string]bool{"local": false, "s3": true, "azure": true, "http": true} {
		s := SourceConfig{Type: typ}
		if got := s.IsRemote(); got != want {
			t.Errorf("IsRemote(%s) = %v, want %v", typ, got, want)
		}
	}
}
