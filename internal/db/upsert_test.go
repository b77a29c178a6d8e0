package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "attributes",
		Columns:      []string{"grd_id", "pop_20min_drive"},
		ConflictKeys: []string{"grd_id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "attributes",
		ConflictKeys: []string{"grd_id"},
	}, [][]any{{"a", 1.0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "attributes",
		Columns: []string{"grd_id", "pop_20min_drive"},
	}, [][]any{{"a", 1.0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_attributes"}, []string{"grd_id", "pop_20min_drive"}).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "attributes"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "attributes",
		Columns:      []string{"grd_id", "pop_20min_drive"},
		ConflictKeys: []string{"grd_id"},
	}, [][]any{{"a", 1.0}, {"b", nil}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_InsertError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_attributes"}, []string{"grd_id", "x"}).WillReturnResult(1)
	mock.ExpectExec("INSERT INTO").WillReturnError(fmt.Errorf("column \"x\" does not exist"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "attributes",
		Columns:      []string{"grd_id", "x"},
		ConflictKeys: []string{"grd_id"},
	}, [][]any{{"a", 1.0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INSERT ON CONFLICT for attributes")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertConfig_UpdateCols(t *testing.T) {
	cfg := UpsertConfig{Columns: []string{"grd_id", "a", "b"}, ConflictKeys: []string{"grd_id"}}
	assert.Equal(t, []string{"a", "b"}, cfg.updateCols())

	cfg.UpdateCols = []string{"b"}
	assert.Equal(t, []string{"b"}, cfg.updateCols())
}

func TestValidIdentifier(t *testing.T) {
	assert.True(t, ValidIdentifier("industrial_footprint_20min_drive"))
	assert.True(t, ValidIdentifier("_x1"))
	assert.False(t, ValidIdentifier("1abc"))
	assert.False(t, ValidIdentifier("pop; DROP TABLE attributes"))
	assert.False(t, ValidIdentifier("Pop"))
	assert.False(t, ValidIdentifier(""))
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"attributes", `"attributes"`},
		{"public.attributes", `"public"."attributes"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"grd_id", "a", "b"`, quoteAndJoin([]string{"grd_id", "a", "b"}))
}
