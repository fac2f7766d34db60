package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorCounters(t *testing.T) {
	c := NewCollector("")

	c.IncOperation("clean", true)
	c.IncOperation("clean", true)
	c.IncOperation("clean", false)
	c.IncEngineCall("native", "repair", true)
	c.IncRepairs("Polygon")
	c.AddSpikesRemoved(3)
	c.AddSpikesRemoved(0)
	c.IncSourceOperations("list", false)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"clean success", testutil.ToFloat64(c.operations.WithLabelValues("clean", "success")), 2},
		{"clean error", testutil.ToFloat64(c.operations.WithLabelValues("clean", "error")), 1},
		{"engine calls", testutil.ToFloat64(c.engineCalls.WithLabelValues("native", "repair", "success")), 1},
		{"repairs", testutil.ToFloat64(c.repairs.WithLabelValues("Polygon")), 1},
		{"spikes", testutil.ToFloat64(c.spikesRemoved), 3},
		{"source errors", testutil.ToFloat64(c.sourceOperations.WithLabelValues("list", "error")), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestCollectorsAreIndependent(t *testing.T) {
	a, b := NewCollector("a"), NewCollector("a")
	a.IncOperation("angle", true)

	if got := testutil.ToFloat64(b.operations.WithLabelValues("angle", "success")); got != 0 {
		t.Errorf("second collector counter = %v, want 0", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector("test")
	c.IncOperation("clean", true)
	c.ObserveOperationDuration("clean", 2*time.Millisecond)

	path := filepath.Join(t.TempDir(), "textfile", "manipulators.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	for _, want := range []string{
		`test_operations_total{operation="clean",status="success"} 1`,
		`test_operation_duration_seconds_count{operation="clean"} 1`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("textfile missing %q", want)
		}
	}
}
