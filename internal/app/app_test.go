package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/adapters/watcher"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/application"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Engine:   config.EngineConfig{Type: config.EngineNative},
		Geometry: config.GeometryConfig{InputSRID: 3857, WorkingSRID: 5070},
		Spikes:   config.SpikesConfig{Threshold: 0.01, Mode: "single", MaxPasses: 10},
		Source:   config.SourceConfig{Type: "local", LocalPath: t.TempDir()},
		Watch:    config.WatchConfig{OutputDir: t.TempDir()},
		Metrics: config.MetricsConfig{
			Enabled:   true,
			Namespace: "manipulators_test",
			Textfile:  filepath.Join(t.TempDir(), "metrics", "manipulators.prom"),
		},
		Logging: config.LoggingConfig{Level: "error", Format: "text"},
		Output:  config.OutputConfig{Format: "wkt"},
	}
}

func TestNewNativeApp(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if a.Engine.Name() != "native" {
		t.Errorf("Engine.Name() = %q, want native", a.Engine.Name())
	}
	if !a.HealthService.IsReady(context.Background()) {
		t.Errorf("health = %+v, want ready", a.HealthService.GetHealthDetails(context.Background()))
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	data, err := os.ReadFile(cfg.Metrics.Textfile)
	if err != nil {
		t.Fatalf("reading metrics textfile: %v", err)
	}
	if !strings.Contains(string(data), "manipulators_test_spikes_removed_total") {
		t.Errorf("metrics textfile does not contain the spike counter:\n%s", data)
	}
}

func TestNewUnknownEngine(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.Type = "oracle"

	if _, err := New(context.Background(), cfg, testLogger()); err == nil {
		t.Error("New should fail for an unknown engine")
	}
}

func TestBatchAndFileEvents(t *testing.T) {
	cfg := testConfig(t)
	dir := cfg.Source.LocalPath

	a, err := New(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	pipeline, err := a.NewPipeline("clean,rhr", 0)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	batch, err := a.NewBatch(context.Background(), pipeline, cfg.Watch.OutputDir, "")
	if err != nil {
		t.Fatalf("NewBatch failed: %v", err)
	}

	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "sub", "bowtie.wkt")
	if err := os.WriteFile(path, []byte("POLYGON((0 0,10 10,10 0,0 10,0 0))"), 0o600); err != nil {
		t.Fatal(err)
	}

	handler := a.fileEventHandler(batch, dir)
	if err := handler(context.Background(), watcher.Event{Path: path, Operation: watcher.OpCreate}); err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.Watch.OutputDir, "bowtie.clean.wkt"))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !strings.HasPrefix(string(data), "POLYGON((") {
		t.Errorf("output = %s, want a polygon", data)
	}

	// deletes are ignored
	if err := handler(context.Background(), watcher.Event{Path: filepath.Join(dir, "gone.wkt"), Operation: watcher.OpDelete}); err != nil {
		t.Errorf("delete handler error = %v, want nil", err)
	}

	broken := filepath.Join(dir, "broken.wkt")
	if err := os.WriteFile(broken, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := handler(context.Background(), watcher.Event{Path: broken, Operation: watcher.OpModify}); err == nil {
		t.Error("handler should report an undecodable file")
	}
}

func TestPollOnSignal(t *testing.T) {
	cfg := testConfig(t)
	dir := cfg.Source.LocalPath

	a, err := New(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	pipeline, err := a.NewPipeline("clean", 0)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	batch, err := a.NewBatch(context.Background(), pipeline, cfg.Watch.OutputDir, "")
	if err != nil {
		t.Fatalf("NewBatch failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "square.wkt"), []byte("POLYGON((0 0,10 0,10 10,0 10,0 0))"), 0o600); err != nil {
		t.Fatal(err)
	}

	poll := application.NewPollService(batch, time.Hour, a.Logger)
	sig := make(chan os.Signal)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.pollOnSignal(ctx, poll, sig)
		close(done)
	}()

	// the second signal lands inside the trigger cooldown and is only logged
	sig <- syscall.SIGHUP
	sig <- syscall.SIGHUP

	if _, err := os.Stat(filepath.Join(cfg.Watch.OutputDir, "square.clean.wkt")); err != nil {
		t.Errorf("triggered poll did not write output: %v", err)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pollOnSignal did not return after cancel")
	}
}

func TestWithTimeout(t *testing.T) {
	cfg := testConfig(t)
	a := &App{Config: cfg}

	ctx, cancel := a.WithTimeout(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Error("zero timeout should not set a deadline")
	}

	cfg.Engine.Timeout = 1e9
	ctx2, cancel2 := a.WithTimeout(context.Background())
	defer cancel2()
	if _, ok := ctx2.Deadline(); !ok {
		t.Error("configured timeout should set a deadline")
	}
}
