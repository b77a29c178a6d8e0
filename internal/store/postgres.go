package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/sitescore/internal/db"
	"github.com/sells-group/sitescore/internal/grid"
	"github.com/sells-group/sitescore/internal/resilience"
)

// cellColumns are the fixed columns of the attributes table, in COPY order.
var cellColumns = []string{"grd_id", "cntr_id", "nuts_0_id", "nuts_1_id", "nuts_2_id", "nuts_3_id", "geom"}

// copyBatchSize bounds the rows sent per COPY while loading cells.
const copyBatchSize = 10000

// NewPool creates a pgx connection pool and verifies it with a ping.
func NewPool(ctx context.Context, connString string, poolCfg *PoolConfig) (*pgxpool.Pool, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return pool, nil
}

// AttributeStore is the per-cell attributes table: one row per grid cell
// with its region codes and geometry, plus a double precision column per
// attribute.
type AttributeStore struct {
	pool  db.Pool
	table string
	srid  int
	retry resilience.RetryConfig
}

// NewAttributeStore returns a store writing to table through pool.
func NewAttributeStore(pool db.Pool, table string, srid int) (*AttributeStore, error) {
	if table == "" {
		table = DefaultTable
	}
	if !db.ValidIdentifier(table) {
		return nil, eris.Errorf("postgres: invalid table name %q", table)
	}
	return &AttributeStore{pool: pool, table: table, srid: srid, retry: resilience.NoRetry()}, nil
}

// WithRetry sets the policy for retrying tile upserts. Each attempt runs in
// its own transaction.
func (s *AttributeStore) WithRetry(cfg resilience.RetryConfig) *AttributeStore {
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("postgres.upsert")
	}
	s.retry = cfg
	return s
}

// Table returns the attributes table name.
func (s *AttributeStore) Table() string { return s.table }

// Ping checks the connection.
func (s *AttributeStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// EnsureTable creates the attributes table and its spatial index.
func (s *AttributeStore) EnsureTable(ctx context.Context) error {
	table := pgx.Identifier{s.table}.Sanitize()
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	grd_id    TEXT PRIMARY KEY,
	cntr_id   TEXT,
	nuts_0_id TEXT,
	nuts_1_id TEXT,
	nuts_2_id TEXT,
	nuts_3_id TEXT,
	geom      geometry(MULTIPOLYGON, %d)
);

CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (geom);
`, table, s.srid, pgx.Identifier{"idx_" + s.table + "_geom"}.Sanitize(), table)

	_, err := s.pool.Exec(ctx, ddl)
	return eris.Wrapf(err, "postgres: ensure table %s", s.table)
}

// AddColumn adds a nullable attribute column if it does not exist yet.
func (s *AttributeStore) AddColumn(ctx context.Context, name string) error {
	if !db.ValidIdentifier(name) {
		return eris.Errorf("postgres: invalid column name %q", name)
	}
	sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s DOUBLE PRECISION",
		pgx.Identifier{s.table}.Sanitize(), pgx.Identifier{name}.Sanitize())
	_, err := s.pool.Exec(ctx, sql)
	return eris.Wrapf(err, "postgres: add column %s", name)
}

// LoadCells COPYs grid cells passing regions into the table. Geometries are
// written as EWKB multipolygons.
func (s *AttributeStore) LoadCells(ctx context.Context, rows []*grid.Row, regions grid.RegionFilter) (int64, error) {
	records := make([][]any, 0, len(rows))
	var skipped int
	for _, r := range rows {
		if !regions.Match(r.Regions) {
			skipped++
			continue
		}
		mp, ok := grid.ToMultiPolygon(r.Geometry)
		if !ok {
			return 0, eris.Errorf("postgres: cell %s: unsupported geometry %T", r.ID, r.Geometry)
		}
		wkb, err := ewkb.Marshal(mp.Clone().SetSRID(s.srid), ewkb.NDR)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: encode cell %s", r.ID)
		}
		records = append(records, []any{
			r.ID, nullable(r.Country),
			nullable(r.Regions[0]), nullable(r.Regions[1]), nullable(r.Regions[2]), nullable(r.Regions[3]),
			wkb,
		})
	}

	n, err := db.CopyInBatches(ctx, s.pool, s.table, cellColumns, records, copyBatchSize)
	if err != nil {
		return n, eris.Wrap(err, "postgres: load cells")
	}
	zap.L().Info("postgres: loaded cells",
		zap.String("table", s.table),
		zap.Int64("rows", n),
		zap.Int("filtered", skipped),
	)
	return n, nil
}

// Upsert writes columns for the tile's valid cells. Missing values are
// stored as NULL.
func (s *AttributeStore) Upsert(ctx context.Context, tile *grid.Tile, columns []string) (int64, error) {
	for _, col := range columns {
		if !db.ValidIdentifier(col) {
			return 0, eris.Errorf("postgres: invalid column name %q", col)
		}
	}
	cells := tile.ValidRows()
	records := make([][]any, len(cells))
	for i, cell := range cells {
		rec := make([]any, 0, len(columns)+1)
		rec = append(rec, cell.ID)
		for _, col := range columns {
			if v, ok := cell.Value(col); ok {
				rec = append(rec, v)
			} else {
				rec = append(rec, nil)
			}
		}
		records[i] = rec
	}

	cfg := db.UpsertConfig{
		Table:        s.table,
		Columns:      append([]string{"grd_id"}, columns...),
		ConflictKeys: []string{"grd_id"},
	}
	n, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (int64, error) {
		return db.BulkUpsert(ctx, s.pool, cfg, records)
	})
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: upsert tile %s", tile.Key())
	}
	return n, nil
}

// nullable maps an empty code to NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
