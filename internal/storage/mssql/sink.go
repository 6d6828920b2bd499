package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"sleepgen/internal/storage"
)

// maxParams stays under SQL Server's hard limit of 2100 parameters per statement.
const maxParams = 2000

// Sink implements storage.Sink for Microsoft SQL Server.
//
// Inserts use INSERT ... SELECT ... WHERE NOT EXISTS keyed on person_id. Unlike
// Postgres ON CONFLICT, SQL Server does not collapse duplicates inside the
// VALUES source, so rows are deduplicated by person_id before sending.
type Sink struct {
	db dbConn
}

func init() {
	storage.Register("mssql", New)
}

// New opens cfg.DSN with the "sqlserver" driver and validates connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Sink{db: &sqlDB{db: raw}}, nil
}

// Close releases database resources.
func (s *Sink) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// EnsureTable creates the person table when it does not exist.
func (s *Sink) EnsureTable(ctx context.Context, table string) error {
	if err := storage.ValidateTableName(table); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, buildCreateSQL(table)); err != nil {
		return fmt.Errorf("mssql: create table %s: %w", table, err)
	}
	return nil
}

// InsertPersons inserts rows whose person_id is not yet present, chunked to
// respect the parameter limit, all inside one transaction.
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
	rows = storage.DedupeByKey(rows)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var total int64
	for _, part := range storage.Chunk(rows, rowsPerStatement()) {
		q, args := buildInsertNotExistsSQL(table, part)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("mssql: insert into %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return total, nil
}

func rowsPerStatement() int {
	return max(1, maxParams/len(storage.PersonColumns))
}

func mssqlType(t storage.ColumnType) string {
	switch t {
	case storage.TypeInteger:
		return "BIGINT"
	case storage.TypeReal:
		return "FLOAT"
	default:
		return "NVARCHAR(255)"
	}
}

func buildCreateSQL(table string) string {
	parts := make([]string, 0, len(storage.PersonColumns))
	for _, c := range storage.PersonColumns {
		def := mssqlIdent(c.Name) + " " + mssqlType(c.Type)
		if c.Name == storage.KeyColumn {
			def += " NOT NULL PRIMARY KEY"
		} else {
			def += " NULL"
		}
		parts = append(parts, def)
	}
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		table,
		mssqlTableIdent(table),
		strings.Join(parts, ", "),
	)
}

// buildInsertNotExistsSQL renders INSERT ... SELECT FROM (VALUES ...) with a
// NOT EXISTS guard on person_id.
func buildInsertNotExistsSQL(table string, rows [][]any) (string, []any) {
	cols := storage.ColumnNames()
	quoted := make([]string, len(cols))
	selected := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = mssqlIdent(c)
		selected[i] = "v." + quoted[i]
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString(") SELECT ")
	b.WriteString(strings.Join(selected, ", "))
	b.WriteString(" FROM (VALUES ")

	args := make([]any, 0, len(rows)*len(cols))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fmt.Sprintf("@p%d", p))
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	key := mssqlIdent(storage.KeyColumn)
	b.WriteString(") AS v(")
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString(") WHERE NOT EXISTS (SELECT 1 FROM ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" t WHERE t.")
	b.WriteString(key)
	b.WriteString(" = v.")
	b.WriteString(key)
	b.WriteString(")")

	return b.String(), args
}

func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent quotes schema-qualified names: "dbo.people" -> [dbo].[people].
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

// ---- database/sql seam types ----

// dbConn is a small interface over *sql.DB used to make this package testable.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error)
	Close() error
}

// txConn is a small interface over *sql.Tx.
type txConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *sqlDB) Close() error { return s.db.Close() }

var _ dbConn = (*sqlDB)(nil)
