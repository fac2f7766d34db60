package spatialite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/ports/output"
)

// Transformer implements coordinate transformation using SpatiaLite.
type Transformer struct {
	db *sql.DB
}

var _ output.Reprojector = (*Transformer)(nil)

// NewTransformer creates a new coordinate transformer.
func NewTransformer(db *sql.DB) *Transformer {
	return &Transformer{db: db}
}

// Transform returns a copy of g in targetSRID. Both SRIDs must be listed in
// spatial_ref_sys.
func (t *Transformer) Transform(ctx context.Context, g domain.Geometry, targetSRID int) (domain.Geometry, error) {
	if g.SRID == targetSRID {
		return g.Clone(), nil
	}
	if !t.IsSupported(g.SRID, targetSRID) {
		return domain.Geometry{}, fmt.Errorf("EPSG:%d to EPSG:%d: %w", g.SRID, targetSRID, domain.ErrUnsupportedProjection)
	}

	data, err := encode(g)
	if err != nil {
		return domain.Geometry{}, err
	}

	var out []byte
	err = t.db.QueryRowContext(ctx, `SELECT AsBinary(Transform(GeomFromWKB(?, ?), ?))`, data, g.SRID, targetSRID).Scan(&out)
	if err != nil {
		return domain.Geometry{}, &domain.EngineError{Engine: Name, Operation: "reproject", Err: err}
	}
	if out == nil {
		return domain.Geometry{}, fmt.Errorf("EPSG:%d to EPSG:%d: %w", g.SRID, targetSRID, domain.ErrUnsupportedProjection)
	}
	return decode(out, targetSRID)
}

// Reproject implements output.Reprojector.
func (t *Transformer) Reproject(g domain.Geometry, targetSRID int) (domain.Geometry, error) {
	return t.Transform(context.Background(), g, targetSRID)
}

// IsSupported checks that both SRIDs are in spatial_ref_sys.
func (t *Transformer) IsSupported(sourceSRID, targetSRID int) bool {
	query := `
		SELECT COUNT(DISTINCT srid)
		FROM spatial_ref_sys
		WHERE srid IN (?, ?)
	`
	var count int
	if err := t.db.QueryRow(query, sourceSRID, targetSRID).Scan(&count); err != nil {
		return false
	}
	want := 2
	if sourceSRID == targetSRID {
		want = 1
	}
	return count == want
}
