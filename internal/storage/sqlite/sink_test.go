package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleepgen/internal/storage"
)

func person(id int64, occupation string) []any {
	return []any{id, "Male", int64(30), occupation, 7.2, int64(7), int64(60), int64(5), "Normal", "120/80", int64(70), int64(8000), nil}
}

func TestSink_EnsureAndInsertIdempotent(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "export.db")

	s, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: dsn})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.EnsureTable(ctx, "sleep_health"))
	require.NoError(t, s.EnsureTable(ctx, "sleep_health"))

	rows := [][]any{person(1, "Doctor"), person(2, "Nurse"), person(3, "Engineer")}
	n, err := s.InsertPersons(ctx, "sleep_health", rows)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = s.InsertPersons(ctx, "sleep_health", append(rows, person(4, "Lawyer")))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only the new person_id is inserted on rerun")

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sleep_health`).Scan(&count))
	assert.Equal(t, 4, count)

	var occ string
	var sleep float64
	var disorder sql.NullString
	require.NoError(t, db.QueryRow(`SELECT occupation, sleep_duration, sleep_disorder FROM sleep_health WHERE person_id = 2`).Scan(&occ, &sleep, &disorder))
	assert.Equal(t, "Nurse", occ)
	assert.InDelta(t, 7.2, sleep, 1e-9)
	assert.False(t, disorder.Valid)
}

func TestSink_InsertSpansStatements(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, storage.Config{DSN: filepath.Join(t.TempDir(), "big.db")})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.EnsureTable(ctx, "people"))

	rows := make([][]any, 0, rowsPerStatement*2+7)
	for i := 1; i <= cap(rows); i++ {
		rows = append(rows, person(int64(i), "Teacher"))
	}
	n, err := s.InsertPersons(ctx, "people", rows)
	require.NoError(t, err)
	assert.Equal(t, int64(len(rows)), n)
}

func TestSink_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, storage.Config{DSN: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	defer s.Close()

	assert.Error(t, s.EnsureTable(ctx, "bad name"))
	_, err = s.InsertPersons(ctx, "t", [][]any{{1, 2}})
	assert.Error(t, err)

	n, err := s.InsertPersons(ctx, "t", nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestSink_FailedInsertLeavesNoRows(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "tx.db")
	s, err := New(ctx, storage.Config{DSN: dsn})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.EnsureTable(ctx, "people"))

	// The first statement succeeds; the second carries a value the driver
	// cannot bind, so the whole transaction must roll back.
	rows := make([][]any, 0, rowsPerStatement+1)
	for i := 1; i <= rowsPerStatement; i++ {
		rows = append(rows, person(int64(i), "Doctor"))
	}
	bad := person(int64(rowsPerStatement+1), "Doctor")
	bad[3] = struct{}{}
	rows = append(rows, bad)

	_, err = s.InsertPersons(ctx, "people", rows)
	require.Error(t, err)

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db.Close()
	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM people`).Scan(&count))
	assert.Zero(t, count)
}

func TestBuildSQL(t *testing.T) {
	create := buildCreateSQL("sleep_health")
	assert.True(t, strings.HasPrefix(create, "CREATE TABLE IF NOT EXISTS sleep_health ("))
	assert.Contains(t, create, `"person_id" INTEGER PRIMARY KEY`)
	assert.Contains(t, create, `"sleep_duration" REAL`)

	q, args := buildInsertSQL("sleep_health", [][]any{person(1, "A"), person(2, "B")})
	assert.True(t, strings.HasPrefix(q, "INSERT OR IGNORE INTO sleep_health ("))
	assert.Equal(t, 2, strings.Count(q, "(?,?,?,?,?,?,?,?,?,?,?,?,?)"))
	assert.Len(t, args, 26)
}
