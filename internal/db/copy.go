// Package db holds the Postgres helpers shared by the grid source and the
// attribute store: the Pool interface, COPY loading and keyed bulk upserts.
package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom loads rows into a table with the COPY protocol. Table may be
// schema-qualified.
func CopyFrom(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	ident := pgx.Identifier{table}
	if schema, name, ok := strings.Cut(table, "."); ok {
		ident = pgx.Identifier{schema, name}
	}
	n, err := pool.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	return n, nil
}

// CopyInBatches splits rows into batches of at most size and COPYs each,
// returning the total row count.
func CopyInBatches(ctx context.Context, pool Pool, table string, columns []string, rows [][]any, size int) (int64, error) {
	if size <= 0 {
		size = len(rows)
	}
	var total int64
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		n, err := CopyFrom(ctx, pool, table, columns, rows[start:end])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
