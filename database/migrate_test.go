package database

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	statements []string
	err        error
}

func (r *recordingExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.statements = append(r.statements, sql)
	return pgconn.CommandTag{}, r.err
}

func TestMigrateUp(t *testing.T) {
	t.Parallel()

	db := &recordingExecer{}
	require.NoError(t, MigrateUp(context.Background(), db))

	require.Len(t, db.statements, 1)
	assert.Contains(t, db.statements[0], "CREATE TABLE IF NOT EXISTS entries")
	assert.Contains(t, db.statements[0], "CREATE TABLE IF NOT EXISTS jobs")
	assert.Contains(t, db.statements[0], "name                       TEXT PRIMARY KEY")
}

func TestMigrateDown(t *testing.T) {
	t.Parallel()

	db := &recordingExecer{}
	require.NoError(t, MigrateDown(context.Background(), db))

	require.Len(t, db.statements, 1)
	assert.True(t, strings.Contains(db.statements[0], "DROP TABLE IF EXISTS entries"))
}

func TestMigrateUp_Error(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	err := MigrateUp(context.Background(), &recordingExecer{err: boom})
	assert.ErrorIs(t, err, boom)
}
