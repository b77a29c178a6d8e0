package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/sitescore/internal/grid"
)

// Run is one invocation of the grid runner.
type Run struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Tiles     int       `json:"tiles"`
	CreatedAt time.Time `json:"created_at"`
}

// Checkpoints records finished tiles per run in SQLite so an interrupted run
// can resume where it stopped.
type Checkpoints struct {
	db *sql.DB
}

// NewCheckpoints opens the SQLite database at dsn, configures WAL mode and
// applies the schema.
func NewCheckpoints(ctx context.Context, dsn string) (*Checkpoints, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	c := &Checkpoints{db: db}
	if err := c.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

const checkpointMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	label      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS tile_checkpoints (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	tile_key  TEXT NOT NULL,
	done_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (run_id, tile_key)
);

CREATE INDEX IF NOT EXISTS idx_tile_checkpoints_run_id ON tile_checkpoints(run_id);
`

func (c *Checkpoints) migrate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, checkpointMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (c *Checkpoints) Close() error {
	return c.db.Close()
}

// NewRun registers a run and returns its ID.
func (c *Checkpoints) NewRun(ctx context.Context, label string) (string, error) {
	id := uuid.New().String()
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO runs (id, label, created_at) VALUES (?, ?, ?)`,
		id, label, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert run")
	}
	return id, nil
}

// MarkDone records a finished tile. Marking a tile twice is a no-op.
func (c *Checkpoints) MarkDone(ctx context.Context, run, key string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO tile_checkpoints (run_id, tile_key, done_at) VALUES (?, ?, ?)
		 ON CONFLICT (run_id, tile_key) DO NOTHING`,
		run, key, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: mark tile %s done", key)
}

// Done returns the keys of every finished tile of run.
func (c *Checkpoints) Done(ctx context.Context, run string) (map[string]bool, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT tile_key FROM tile_checkpoints WHERE run_id = ?`, run)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list done tiles of %s", run)
	}
	defer rows.Close() //nolint:errcheck

	done := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tile key")
		}
		done[key] = true
	}
	return done, eris.Wrap(rows.Err(), "sqlite: iterate done tiles")
}

// Filter returns a descriptor filter that skips tiles already done in run.
func (c *Checkpoints) Filter(ctx context.Context, run string) (func(grid.Descriptor) bool, error) {
	done, err := c.Done(ctx, run)
	if err != nil {
		return nil, err
	}
	return func(d grid.Descriptor) bool { return !done[d.Key()] }, nil
}

// Runs lists runs, newest first, with their finished tile counts.
func (c *Checkpoints) Runs(ctx context.Context) ([]Run, error) {
	rows, err := c.db.QueryContext(ctx, `
SELECT r.id, r.label, r.created_at, COUNT(t.tile_key)
FROM runs r
LEFT JOIN tile_checkpoints t ON t.run_id = r.id
GROUP BY r.id, r.label, r.created_at
ORDER BY r.created_at DESC, r.id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Label, &r.CreatedAt, &r.Tiles); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}
