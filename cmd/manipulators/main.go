// Package main provides the entry point for the manipulators command line tool.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/app"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/config"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "manipulators",
	Short: "Geometry manipulators for marine spatial planning shapes",
	Long: `manipulators cleans and normalizes user-drawn geometries.

It validates and repairs self-intersecting polygons, removes needle-like
spikes, enforces ring winding order, reduces multi-geometries and computes
3D viewer camera framing.

Geometries are read as WKT, EWKT, GeoJSON or hex WKB/EWKB from --in or stdin.
The geometry engine is selectable:
  - native      GEOS via go-geos with pure-Go reprojection
  - spatialite  SpatiaLite through an in-memory SQLite database
  - postgis     a PostGIS server`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("manipulators %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Build Date: %s\n", buildDate)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (json, text)")
	flags.String("engine", config.EngineNative, "geometry engine (native, spatialite, postgis)")
	flags.Int("srid", 4326, "SRID of input geometries that carry none")
	flags.String("output", "wkt", "output format (wkt, ewkt, geojson, wkb, ewkb, json, yaml)")
	flags.String("in", "-", "input file (- for stdin)")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", flags.Lookup("log-format"))
	_ = viper.BindPFlag("engine.type", flags.Lookup("engine"))
	_ = viper.BindPFlag("geometry.input_srid", flags.Lookup("srid"))
	_ = viper.BindPFlag("output.format", flags.Lookup("output"))

	addCommands(rootCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// runFunc is a command body that receives an initialized application.
type runFunc func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error

// withApp loads the configuration, sets up logging and the application,
// and shuts it down after fn returns. ctx is canceled on SIGINT or SIGTERM.
func withApp(fn runFunc) func(*cobra.Command, []string) error {
	return withConfig(nil, fn)
}

// withConfig is withApp with a hook to adjust the loaded configuration from
// command flags.
func withConfig(adjust func(*cobra.Command, *config.Config) error, fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if adjust != nil {
			if err := adjust(cmd, cfg); err != nil {
				return err
			}
		}

		logger := setupLogger(cfg.Logging)
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		application, err := app.New(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("initializing application: %w", err)
		}

		runErr := fn(ctx, application, cmd, args)

		if err := application.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", "error", err)
			if runErr == nil {
				runErr = err
			}
		}
		return runErr
	}
}

// setupLogger logs to stderr so stdout carries command output only.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(time.Now().UTC().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
