// Package spatialite implements the geometry engine on an in-memory SpatiaLite
// database. All geometry travels as WKB through parameterized SQL.
package spatialite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/ports/output"
)

// Name identifies the engine in logs and errors.
const Name = "spatialite"

const (
	isValidQuery = `SELECT ST_IsValid(GeomFromWKB(?, ?))`

	repairAreaQuery = `SELECT AsBinary(ST_BuildArea(ST_UnaryUnion(ST_Boundary(GeomFromWKB(?, ?)))))`

	// ST_MakeValid needs SpatiaLite built with RTTOPO.
	makeValidQuery = `SELECT AsBinary(ST_MakeValid(GeomFromWKB(?, ?)))`

	repairLineQuery = `SELECT AsBinary(ST_UnaryUnion(GeomFromWKB(?, ?)))`

	azimuthQuery = `SELECT ST_Azimuth(MakePoint(?, ?), MakePoint(?, ?))`
)

var dbCounter atomic.Int64

// Config holds the SpatiaLite engine settings.
type Config struct {
	LibraryPath string
}

// Engine implements output.GeometryEngine with SpatiaLite.
type Engine struct {
	db          *sql.DB
	pin         *sql.Conn
	transformer *Transformer
	logger      *slog.Logger
}

var _ output.GeometryEngine = (*Engine)(nil)

// New opens a private in-memory SpatiaLite database and initializes its
// spatial metadata, which provides spatial_ref_sys for Transform.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Engine, error) {
	registerDriver(cfg.LibraryPath)

	// Connections share one in-memory database; pin keeps it alive.
	dsn := fmt.Sprintf("file:manipulators-%d?mode=memory&cache=shared", dbCounter.Add(1))
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, unavailable("open", err)
	}

	pin, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, unavailable("open", err)
	}

	var version string
	if err := pin.QueryRowContext(ctx, "SELECT spatialite_version()").Scan(&version); err != nil {
		_ = pin.Close()
		_ = db.Close()
		return nil, unavailable("open", fmt.Errorf("SpatiaLite extension not available: %w", err))
	}

	if _, err := pin.ExecContext(ctx, "SELECT InitSpatialMetaData(1)"); err != nil {
		_ = pin.Close()
		_ = db.Close()
		return nil, unavailable("init", err)
	}

	logger.Debug("SpatiaLite engine ready", "version", version, "dsn", dsn)

	return &Engine{
		db:          db,
		pin:         pin,
		transformer: NewTransformer(db),
		logger:      logger,
	}, nil
}

// Name returns the engine name.
func (e *Engine) Name() string {
	return Name
}

// IsValid reports whether g is valid. Geometries SpatiaLite cannot parse
// are reported as invalid.
func (e *Engine) IsValid(ctx context.Context, g domain.Geometry) (bool, error) {
	data, err := encode(g)
	if err != nil {
		return false, err
	}

	var valid sql.NullInt64
	if err := e.db.QueryRowContext(ctx, isValidQuery, data, g.SRID).Scan(&valid); err != nil {
		return false, &domain.EngineError{Engine: Name, Operation: "is_valid", Err: err}
	}
	if valid.Int64 < 0 {
		e.logger.Debug("geometry rejected by SpatiaLite", "type", g.Type())
	}
	return valid.Valid && valid.Int64 == 1, nil
}

// RepairSelfIntersections rebuilds polygonal input from its noded boundary
// and nodes lineal input. ST_MakeValid is tried when no area can be built.
func (e *Engine) RepairSelfIntersections(ctx context.Context, g domain.Geometry) (domain.Geometry, error) {
	var query string
	switch {
	case g.Type().IsPolygonal():
		query = repairAreaQuery
	case g.Type().IsLineal():
		query = repairLineQuery
	default:
		return domain.Geometry{}, &domain.GeometryError{Op: "repair", Type: string(g.Type()), Reason: "only polygonal and lineal geometries can be repaired"}
	}

	data, err := encode(g)
	if err != nil {
		return domain.Geometry{}, err
	}

	var out []byte
	if err := e.db.QueryRowContext(ctx, query, data, g.SRID).Scan(&out); err != nil {
		return domain.Geometry{}, &domain.EngineError{Engine: Name, Operation: "repair", Err: err}
	}
	if out == nil && query == repairAreaQuery {
		e.logger.Debug("build area empty, falling back to make valid", "type", g.Type())
		if err := e.db.QueryRowContext(ctx, makeValidQuery, data, g.SRID).Scan(&out); err != nil {
			e.logger.Debug("make valid unavailable", "error", err)
			out = nil
		}
	}
	if out == nil {
		return domain.Geometry{}, &domain.UncleanableError{Type: string(g.Type()), Reason: "repair produced no geometry"}
	}
	return decode(out, g.SRID)
}

// Reproject returns a copy of g in targetSRID using SpatiaLite's Transform.
func (e *Engine) Reproject(ctx context.Context, g domain.Geometry, targetSRID int) (domain.Geometry, error) {
	return e.transformer.Transform(ctx, g, targetSRID)
}

// Azimuth returns ST_Azimuth(p1, p2).
func (e *Engine) Azimuth(ctx context.Context, p1, p2 orb.Point) (float64, error) {
	var az sql.NullFloat64
	if err := e.db.QueryRowContext(ctx, azimuthQuery, p1.X(), p1.Y(), p2.X(), p2.Y()).Scan(&az); err != nil {
		return 0, &domain.EngineError{Engine: Name, Operation: "azimuth", Err: err}
	}
	if !az.Valid {
		return 0, &domain.GeometryError{Op: "azimuth", Type: string(domain.TypePoint), Reason: "azimuth is undefined for coincident points"}
	}
	return az.Float64, nil
}

// Close releases the pinned connection and the database.
func (e *Engine) Close() error {
	return errors.Join(e.pin.Close(), e.db.Close())
}

func encode(g domain.Geometry) ([]byte, error) {
	if g.Shape == nil {
		return nil, &domain.GeometryError{Op: "encode", Reason: "geometry is nil"}
	}
	data, err := wkb.Marshal(g.Shape)
	if err != nil {
		return nil, &domain.GeometryError{Op: "encode", Type: string(g.Type()), Reason: err.Error()}
	}
	return data, nil
}

func decode(data []byte, srid int) (domain.Geometry, error) {
	shape, err := wkb.Unmarshal(data)
	if err != nil {
		return domain.Geometry{}, &domain.EngineError{Engine: Name, Operation: "decode", Err: err}
	}
	return domain.NewGeometry(shape, srid), nil
}

func unavailable(op string, err error) error {
	return &domain.EngineError{Engine: Name, Operation: op, Err: fmt.Errorf("%w: %v", domain.ErrEngineUnavailable, err)}
}
