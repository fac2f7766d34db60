package application

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockEngine implements output.GeometryEngine for testing.
type mockEngine struct {
	mu sync.Mutex

	// validFn decides validity; nil reports every geometry valid.
	validFn func(domain.Geometry) bool
	// repairFn replaces RepairSelfIntersections; nil returns the input.
	repairFn func(domain.Geometry) domain.Geometry
	// projectFn maps coordinates on reprojection; nil keeps them.
	projectFn func(p orb.Point, from, to int) orb.Point

	validErr     error
	repairErr    error
	reprojectErr error
	azimuthErr   error

	validCalls     int
	repairCalls    int
	reprojectCalls int
	azimuthCalls   int
}

func (m *mockEngine) Name() string {
	return "mock"
}

func (m *mockEngine) IsValid(_ context.Context, g domain.Geometry) (bool, error) {
	m.mu.Lock()
	m.validCalls++
	m.mu.Unlock()

	if m.validErr != nil {
		return false, m.validErr
	}
	if m.validFn == nil {
		return true, nil
	}
	return m.validFn(g), nil
}

func (m *mockEngine) RepairSelfIntersections(_ context.Context, g domain.Geometry) (domain.Geometry, error) {
	m.mu.Lock()
	m.repairCalls++
	m.mu.Unlock()

	if m.repairErr != nil {
		return domain.Geometry{}, m.repairErr
	}
	if m.repairFn == nil {
		return g, nil
	}
	return m.repairFn(g), nil
}

func (m *mockEngine) Reproject(_ context.Context, g domain.Geometry, srid int) (domain.Geometry, error) {
	m.mu.Lock()
	m.reprojectCalls++
	m.mu.Unlock()

	if m.reprojectErr != nil {
		return domain.Geometry{}, m.reprojectErr
	}
	out := g.Clone()
	out.SRID = srid
	if m.projectFn != nil {
		out.Shape = mapPoints(out.Shape, func(p orb.Point) orb.Point {
			return m.projectFn(p, g.SRID, srid)
		})
	}
	return out, nil
}

func (m *mockEngine) Azimuth(_ context.Context, p1, p2 orb.Point) (float64, error) {
	m.mu.Lock()
	m.azimuthCalls++
	m.mu.Unlock()

	if m.azimuthErr != nil {
		return 0, m.azimuthErr
	}
	return domain.Azimuth(p1, p2)
}

func (m *mockEngine) Close() error {
	return nil
}

// mapPoints applies fn to every point of polygons, lines and points.
func mapPoints(g orb.Geometry, fn func(orb.Point) orb.Point) orb.Geometry {
	switch s := g.(type) {
	case orb.Point:
		return fn(s)
	case orb.LineString:
		for i := range s {
			s[i] = fn(s[i])
		}
	case orb.Polygon:
		for _, r := range s {
			for i := range r {
				r[i] = fn(r[i])
			}
		}
	case orb.MultiPolygon:
		for _, p := range s {
			mapPoints(p, fn)
		}
	}
	return g
}

// mockMetrics implements output.MetricsCollector and records calls.
type mockMetrics struct {
	output.NoOpMetrics

	mu            sync.Mutex
	operations    map[string]int
	failures      map[string]int
	repairs       int
	spikesRemoved int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{
		operations: make(map[string]int),
		failures:   make(map[string]int),
	}
}

func (m *mockMetrics) IncOperation(op string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations[op]++
	if !success {
		m.failures[op]++
	}
}

func (m *mockMetrics) IncRepairs(_ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repairs++
}

func (m *mockMetrics) AddSpikesRemoved(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spikesRemoved += count
}

// mockSource implements output.GeometrySource for testing.
type mockSource struct {
	mu      sync.Mutex
	objects []output.SourceObject
	data    map[string]string
	listErr error
}

func (m *mockSource) List(_ context.Context) ([]output.SourceObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]output.SourceObject(nil), m.objects...), nil
}

func (m *mockSource) GetReader(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	if !ok {
		return nil, &domain.SourceError{Operation: "read", Key: key, Err: os.ErrNotExist}
	}
	return io.NopCloser(bytes.NewReader([]byte(data))), nil
}

func (m *mockSource) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *mockSource) put(key, data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string]string)
	}
	m.data[key] = data
	for i, obj := range m.objects {
		if obj.Key == key {
			m.objects[i].Size = int64(len(data))
			m.objects[i].LastModified = time.Now().UnixNano()
			return
		}
	}
	m.objects = append(m.objects, output.SourceObject{
		Key:          key,
		Size:         int64(len(data)),
		LastModified: time.Now().UnixNano(),
	})
}

// wktCodec implements output.GeometryCodec for WKT only.
type wktCodec struct{}

func (wktCodec) Decode(data []byte, _ string, defaultSRID int) (domain.Geometry, error) {
	g, err := wkt.Unmarshal(string(data))
	if err != nil {
		return domain.Geometry{}, &domain.GeometryError{Op: "decode", Reason: err.Error()}
	}
	return domain.NewGeometry(g, defaultSRID), nil
}

func (wktCodec) Encode(g domain.Geometry, _ output.Format) ([]byte, error) {
	return []byte(wkt.MarshalString(g.Shape)), nil
}

func (wktCodec) DetectFormat(_ []byte, _ string) (output.Format, error) {
	return output.FormatWKT, nil
}
