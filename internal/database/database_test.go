package database_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-activity/internal/database"
	"ms-activity/internal/database/dbtest"
	"ms-activity/internal/models"
)

func tableCount(t *testing.T, db *bun.DB) int {
	t.Helper()
	var n int
	err := db.NewRaw("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'").
		Scan(context.Background(), &n)
	require.NoError(t, err)
	return n
}

func TestSchema_CreateAndDrop(t *testing.T) {
	ctx := context.Background()
	db := dbtest.NewSQLite(t)
	assert.Equal(t, len(database.Models), tableCount(t, db))

	// Creating twice is harmless.
	require.NoError(t, database.CreateSchema(ctx, db))
	assert.Equal(t, len(database.Models), tableCount(t, db))

	require.NoError(t, database.DropSchema(ctx, db))
	assert.Zero(t, tableCount(t, db))
}

func TestForUpdate(t *testing.T) {
	sqlite := dbtest.NewSQLite(t)
	q := database.ForUpdate(sqlite, sqlite.NewSelect().Model((*models.Occasion)(nil)).Where("id = ?", "o1"))
	assert.NotContains(t, q.String(), "FOR UPDATE")

	sqldb, err := sql.Open("postgres", "postgres://localhost/unused?sslmode=disable")
	require.NoError(t, err)
	pg := bun.NewDB(sqldb, pgdialect.New())
	defer pg.Close()

	q = database.ForUpdate(pg, pg.NewSelect().Model((*models.Occasion)(nil)).Where("id = ?", "o1"))
	assert.Contains(t, q.String(), "FOR UPDATE")
}

func TestForUpdateSkipLocked(t *testing.T) {
	sqlite := dbtest.NewSQLite(t)
	q := database.ForUpdateSkipLocked(sqlite, sqlite.NewSelect().Model((*models.Attendee)(nil)).Where("id = ?", "a1"))
	assert.NotContains(t, q.String(), "FOR UPDATE")

	sqldb, err := sql.Open("postgres", "postgres://localhost/unused?sslmode=disable")
	require.NoError(t, err)
	pg := bun.NewDB(sqldb, pgdialect.New())
	defer pg.Close()

	q = database.ForUpdateSkipLocked(pg, pg.NewSelect().Model((*models.Attendee)(nil)).Where("id = ?", "a1"))
	assert.Contains(t, q.String(), "FOR UPDATE SKIP LOCKED")
}
