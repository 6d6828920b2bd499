package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sleepgen/internal/storage"
)

// rowsPerStatement keeps the placeholder count far below Postgres's 65535 limit.
const rowsPerStatement = 1000

/*
Sink implements storage.Sink for Postgres.

Rows are inserted with ON CONFLICT (person_id) DO NOTHING inside one
transaction, so a rerun of the same export is a no-op and a failed export
leaves no partial rows.
*/
type Sink struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

// New creates a pool for cfg.DSN and checks connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Sink{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Sink) Close() {
	s.pool.Close()
}

// EnsureTable creates the schema (if qualified) and the person table.
func (s *Sink) EnsureTable(ctx context.Context, table string) error {
	if err := storage.ValidateTableName(table); err != nil {
		return err
	}
	schemaSQL, tableSQL := buildCreateSQL(table)
	if schemaSQL != "" {
		if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema for %s: %w", table, err)
		}
	}
	if _, err := s.pool.Exec(ctx, tableSQL); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// InsertPersons inserts rows in one transaction and returns how many were new.
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

	var total int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, part := range storage.Chunk(rows, rowsPerStatement) {
			q, args := buildInsertSQL(table, part)
			tag, err := tx.Exec(ctx, q, args...)
			if err != nil {
				return fmt.Errorf("insert into %s: %w", table, err)
			}
			total += tag.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func pgIdent(id string) string {
	return pgx.Identifier{id}.Sanitize()
}

func pgTable(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

func pgType(t storage.ColumnType) string {
	switch t {
	case storage.TypeInteger:
		return "BIGINT"
	case storage.TypeReal:
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

// buildCreateSQL returns the optional CREATE SCHEMA and the CREATE TABLE.
func buildCreateSQL(table string) (schemaSQL, tableSQL string) {
	if schema, _, ok := strings.Cut(table, "."); ok {
		schemaSQL = "CREATE SCHEMA IF NOT EXISTS " + pgIdent(schema)
	}

	parts := make([]string, 0, len(storage.PersonColumns)+1)
	for _, c := range storage.PersonColumns {
		parts = append(parts, pgIdent(c.Name)+" "+pgType(c.Type))
	}
	parts = append(parts, fmt.Sprintf("PRIMARY KEY (%s)", pgIdent(storage.KeyColumn)))

	tableSQL = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", pgTable(table), strings.Join(parts, ", "))
	return schemaSQL, tableSQL
}

// buildInsertSQL constructs a single INSERT ... ON CONFLICT DO NOTHING
// statement with numbered placeholders.
func buildInsertSQL(table string, rows [][]any) (string, []any) {
	cols := storage.ColumnNames()

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgTable(table))
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

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
			b.WriteString(fmt.Sprintf("$%d", p))
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	b.WriteString(" ON CONFLICT (")
	b.WriteString(pgIdent(storage.KeyColumn))
	b.WriteString(") DO NOTHING")
	return b.String(), args
}
