// Package postgis implements the geometry engine against a PostGIS database.
package postgis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/ports/output"
)

// Name identifies the engine in logs and errors.
const Name = "postgis"

// DefaultMaxConns is used when Config.MaxConns is not set.
const DefaultMaxConns = 4

const (
	isValidQuery = `SELECT ST_IsValid(ST_GeomFromWKB($1::bytea, $2::integer))`

	repairAreaQuery = `
		SELECT ST_AsBinary(COALESCE(ST_BuildArea(ST_UnaryUnion(ST_Boundary(g))), ST_MakeValid(g)))
		FROM (SELECT ST_GeomFromWKB($1::bytea, $2::integer) AS g) AS input`

	repairLineQuery = `SELECT ST_AsBinary(ST_UnaryUnion(ST_GeomFromWKB($1::bytea, $2::integer)))`

	transformQuery = `
		SELECT ST_AsBinary(ST_Transform(ST_GeomFromWKB($1::bytea, $2::integer), $3::integer))
		WHERE (SELECT count(*) FROM spatial_ref_sys WHERE srid IN ($2::integer, $3::integer)) = 2`

	azimuthQuery = `SELECT ST_Azimuth(ST_MakePoint($1, $2), ST_MakePoint($3, $4))`
)

// Config holds the PostGIS connection settings.
type Config struct {
	DSN      string
	MaxConns int32
}

// Engine implements output.GeometryEngine with PostGIS.
type Engine struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ output.GeometryEngine = (*Engine)(nil)

// New connects to PostGIS and verifies the extension is installed.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Engine, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, &domain.ConfigError{Field: "engine.postgis.dsn", Message: err.Error()}
	}

	poolCfg.MaxConns = cfg.MaxConns
	if poolCfg.MaxConns <= 0 {
		poolCfg.MaxConns = DefaultMaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, unavailable("connect", err)
	}

	var version string
	if err := pool.QueryRow(ctx, `SELECT PostGIS_Lib_Version()`).Scan(&version); err != nil {
		pool.Close()
		return nil, unavailable("connect", fmt.Errorf("PostGIS not available: %w", err))
	}

	logger.Debug("PostGIS engine ready", "version", version, "max_conns", poolCfg.MaxConns)

	return &Engine{pool: pool, logger: logger}, nil
}

// Name returns the engine name.
func (e *Engine) Name() string {
	return Name
}

// IsValid returns ST_IsValid(g).
func (e *Engine) IsValid(ctx context.Context, g domain.Geometry) (bool, error) {
	data, err := encode(g)
	if err != nil {
		return false, err
	}

	var valid *bool
	if err := e.pool.QueryRow(ctx, isValidQuery, data, g.SRID).Scan(&valid); err != nil {
		return false, &domain.EngineError{Engine: Name, Operation: "is_valid", Err: err}
	}
	return valid != nil && *valid, nil
}

// RepairSelfIntersections rebuilds polygonal input from its noded boundary,
// with ST_MakeValid as fallback, and nodes lineal input.
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
	if err := e.pool.QueryRow(ctx, query, data, g.SRID).Scan(&out); err != nil {
		return domain.Geometry{}, &domain.EngineError{Engine: Name, Operation: "repair", Err: err}
	}
	if out == nil {
		return domain.Geometry{}, &domain.UncleanableError{Type: string(g.Type()), Reason: "repair produced no geometry"}
	}
	return decode(out, g.SRID)
}

// Reproject returns ST_Transform(g, targetSRID). Both SRIDs must be in
// spatial_ref_sys.
func (e *Engine) Reproject(ctx context.Context, g domain.Geometry, targetSRID int) (domain.Geometry, error) {
	if g.SRID == targetSRID {
		return g.Clone(), nil
	}

	data, err := encode(g)
	if err != nil {
		return domain.Geometry{}, err
	}

	var out []byte
	err = e.pool.QueryRow(ctx, transformQuery, data, g.SRID, targetSRID).Scan(&out)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return domain.Geometry{}, fmt.Errorf("EPSG:%d to EPSG:%d: %w", g.SRID, targetSRID, domain.ErrUnsupportedProjection)
	case err != nil:
		return domain.Geometry{}, &domain.EngineError{Engine: Name, Operation: "reproject", Err: err}
	}
	return decode(out, targetSRID)
}

// Azimuth returns ST_Azimuth(p1, p2).
func (e *Engine) Azimuth(ctx context.Context, p1, p2 orb.Point) (float64, error) {
	var az *float64
	if err := e.pool.QueryRow(ctx, azimuthQuery, p1.X(), p1.Y(), p2.X(), p2.Y()).Scan(&az); err != nil {
		return 0, &domain.EngineError{Engine: Name, Operation: "azimuth", Err: err}
	}
	if az == nil {
		return 0, &domain.GeometryError{Op: "azimuth", Type: string(domain.TypePoint), Reason: "azimuth is undefined for coincident points"}
	}
	return *az, nil
}

// Close releases pool resources.
func (e *Engine) Close() error {
	e.pool.Close()
	return nil
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
