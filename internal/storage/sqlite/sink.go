package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"sleepgen/internal/storage"
)

// rowsPerStatement keeps each INSERT well below SQLite's host parameter limit.
const rowsPerStatement = 500

// Sink implements storage.Sink for SQLite.
//
// Idempotency relies on person_id being the PRIMARY KEY: rows whose id already
// exists are skipped by INSERT OR IGNORE.
type Sink struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database at cfg.DSN (a file path or "file:..." URI).
func New(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Sink{db: db}, nil
}

func (s *Sink) Close() { _ = s.db.Close() }

// EnsureTable creates the person table if missing.
func (s *Sink) EnsureTable(ctx context.Context, table string) error {
	if err := storage.ValidateTableName(table); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, buildCreateSQL(table)); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// InsertPersons inserts rows in a single transaction.
func (s *Sink) InsertPersons(ctx context.Context, table string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := storage.ValidateTableName(table); err != nil {
		return 0, err
	}
	if err := storage.ValidateRows(rows); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, part := range storage.Chunk(rows, rowsPerStatement) {
		q, args := buildInsertSQL(table, part)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("insert into %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func sqlType(t storage.ColumnType) string {
	switch t {
	case storage.TypeInteger:
		return "INTEGER"
	case storage.TypeReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

func buildCreateSQL(table string) string {
	parts := make([]string, 0, len(storage.PersonColumns))
	for _, c := range storage.PersonColumns {
		def := sqlIdent(c.Name) + " " + sqlType(c.Type)
		if c.Name == storage.KeyColumn {
			def += " PRIMARY KEY"
		}
		parts = append(parts, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(parts, ", "))
}

// buildInsertSQL renders a multi-row INSERT OR IGNORE and its args.
func buildInsertSQL(table string, rows [][]any) (string, []any) {
	cols := storage.ColumnNames()
	colList := make([]string, 0, len(cols))
	for _, c := range cols {
		colList = append(colList, sqlIdent(c))
	}
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(cols)), ",") + ")"

	var b strings.Builder
	b.WriteString("INSERT OR IGNORE INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(colList, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(cols))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		args = append(args, row...)
	}
	return b.String(), args
}
