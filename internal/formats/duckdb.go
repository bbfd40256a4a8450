package formats

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"marketcore/internal/errors"
	"marketcore/pkg/contracts/domain"
)

// DefaultDuckDBTable is the table written by the DuckDB writer when the
// destination does not name one.
const DefaultDuckDBTable = "market_data"

var duckdbMagic = []byte("DUCK")

// DuckDBFormat reads one table from a DuckDB database file.
type DuckDBFormat struct {
	// Table overrides the table written by WriteFile.
	Table string
}

// Format implements Reader
func (f *DuckDBFormat) Format() domain.FormatKind { return domain.FormatDuckDBTable }

// Read opens a read-only copy of content, so the database that is read is
// the one that was sniffed. The descriptor's Table selects the table;
// without one the first base table is used.
func (f *DuckDBFormat) Read(ctx context.Context, src domain.SourceDescriptor, content []byte) (*domain.NormalizedTable, error) {
	if !isDuckDB(content) {
		return nil, errors.NewReadError(domain.FormatDuckDBTable, src.Path, "missing DUCK magic", nil)
	}

	copyPath, err := writeTempDatabase(content)
	if err != nil {
		return nil, errors.NewReadError(domain.FormatDuckDBTable, src.Path, "cannot stage database", err)
	}
	defer os.Remove(copyPath)

	db, conn, err := attachDatabase(ctx, copyPath, true)
	if err != nil {
		return nil, errors.NewReadError(domain.FormatDuckDBTable, src.Path, "cannot open database", err)
	}
	defer db.Close()
	defer conn.Close()

	table := src.Table
	if table == "" {
		err := conn.QueryRowContext(ctx,
			`SELECT table_name FROM information_schema.tables
			 WHERE table_type = 'BASE TABLE' AND table_catalog = current_database()
			 ORDER BY table_schema, table_name LIMIT 1`).Scan(&table)
		if err == sql.ErrNoRows {
			return nil, errors.NewReadError(domain.FormatDuckDBTable, src.Path, "database has no tables", nil)
		}
		if err != nil {
			return nil, errors.NewReadError(domain.FormatDuckDBTable, src.Path, "cannot list tables", err)
		}
	}

	rows, err := conn.QueryContext(ctx, "SELECT * FROM "+quoteIdent(table))
	if err != nil {
		return nil, errors.NewReadError(domain.FormatDuckDBTable, src.Path,
			fmt.Sprintf("cannot query table %q", table), err)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, errors.NewReadError(domain.FormatDuckDBTable, src.Path, "cannot describe columns", err)
	}
	columns := make([]domain.Column, len(colTypes))
	for i, ct := range colTypes {
		columns[i] = domain.Column{Name: ct.Name(), Type: duckdbColumnType(ct.DatabaseTypeName())}
	}

	dest := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	for n := 0; rows.Next(); n++ {
		if err := checkContext(ctx, n); err != nil {
			return nil, err
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.NewReadError(domain.FormatDuckDBTable, src.Path, fmt.Sprintf("row %d", n), err)
		}
		for i, v := range dest {
			cv, err := duckdbValue(columns[i].Type, v)
			if err != nil {
				return nil, errors.NewReadError(domain.FormatDuckDBTable, src.Path,
					fmt.Sprintf("row %d column %q", n, columns[i].Name), err)
			}
			columns[i].Values = append(columns[i].Values, cv)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewReadError(domain.FormatDuckDBTable, src.Path, "scan failed", err)
	}

	t, err := domain.NewTable(columns)
	if err != nil {
		return nil, errors.NewReadError(domain.FormatDuckDBTable, src.Path, "invalid table", err)
	}
	return t, nil
}

// WriteFile creates a fresh database holding the table. An existing file at
// path is replaced.
func (f *DuckDBFormat) WriteFile(ctx context.Context, path string, t *domain.NormalizedTable) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	_ = os.Remove(path + ".wal")

	db, conn, err := attachDatabase(ctx, path, false)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()
	defer conn.Close()

	table := f.Table
	if table == "" {
		table = DefaultDuckDBTable
	}
	defs := make([]string, 0, t.NumColumns())
	marks := make([]string, 0, t.NumColumns())
	for _, c := range t.Columns() {
		defs = append(defs, quoteIdent(c.Name)+" "+duckdbSQLType(c.Type))
		marks = append(marks, "?")
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(table), strings.Join(marks, ", ")))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	for row := 0; row < t.NumRows(); row++ {
		if _, err := stmt.ExecContext(ctx, t.Row(row)...); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert row %d: %w", row, err)
		}
	}
	_ = stmt.Close()
	if err := tx.Commit(); err != nil {
		return err
	}
	// detaching checkpoints the file
	if _, err := conn.ExecContext(ctx, "USE memory"); err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, "DETACH "+quoteIdent(attachedAlias))
	return err
}

// attachedAlias names the database file inside the in-memory instance.
const attachedAlias = "source"

// attachDatabase starts an in-memory DuckDB instance and attaches the file
// at path through a SQL literal rather than the DSN, which would treat
// '?' and '#' in the path as options. The returned connection has the file
// as its current database.
func attachDatabase(ctx context.Context, path string, readOnly bool) (*sql.DB, *sql.Conn, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, nil, err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	stmt := fmt.Sprintf("ATTACH %s AS %s", quoteLiteral(path), quoteIdent(attachedAlias))
	if readOnly {
		stmt += " (READ_ONLY)"
	}
	for _, q := range []string{stmt, "USE " + quoteIdent(attachedAlias)} {
		if _, err := conn.ExecContext(ctx, q); err != nil {
			conn.Close()
			db.Close()
			return nil, nil, err
		}
	}
	return db, conn, nil
}

// writeTempDatabase stores content in a temporary database file.
func writeTempDatabase(content []byte) (string, error) {
	tmp, err := os.CreateTemp("", "marketcore-*.duckdb")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func isDuckDB(content []byte) bool {
	return len(content) >= 12 && bytes.Equal(content[8:12], duckdbMagic)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func duckdbSQLType(t domain.ColumnType) string {
	switch t {
	case domain.TypeInteger:
		return "BIGINT"
	case domain.TypeFloat:
		return "DOUBLE"
	case domain.TypeBoolean:
		return "BOOLEAN"
	case domain.TypeTimestamp:
		return "TIMESTAMP"
	}
	return "VARCHAR"
}

func duckdbColumnType(dbType string) domain.ColumnType {
	t := strings.ToUpper(dbType)
	switch {
	case strings.HasPrefix(t, "DECIMAL"), t == "DOUBLE", t == "FLOAT", t == "REAL":
		return domain.TypeFloat
	case strings.HasSuffix(t, "INT"), strings.HasSuffix(t, "INTEGER"):
		return domain.TypeInteger
	case t == "BOOLEAN":
		return domain.TypeBoolean
	case strings.HasPrefix(t, "TIMESTAMP"), t == "DATE":
		return domain.TypeTimestamp
	}
	return domain.TypeText
}

// duckdbValue converts a scanned driver value into the column's value type.
func duckdbValue(typ domain.ColumnType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch typ {
	case domain.TypeInteger:
		switch x := v.(type) {
		case int8:
			return int64(x), nil
		case int16:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case int64:
			return x, nil
		case uint8:
			return int64(x), nil
		case uint16:
			return int64(x), nil
		case uint32:
			return int64(x), nil
		case uint64:
			if x > 1<<63-1 {
				return nil, fmt.Errorf("value %d overflows int64", x)
			}
			return int64(x), nil
		case *big.Int:
			if !x.IsInt64() {
				return nil, fmt.Errorf("value %s overflows int64", x)
			}
			return x.Int64(), nil
		}
	case domain.TypeFloat:
		switch x := v.(type) {
		case float32:
			return float64(x), nil
		case float64:
			return x, nil
		case interface{ Float64() float64 }:
			return x.Float64(), nil
		}
	case domain.TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case domain.TypeTimestamp:
		if ts, ok := v.(time.Time); ok {
			return ts.UTC(), nil
		}
	case domain.TypeText:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		default:
			return fmt.Sprint(x), nil
		}
	}
	return nil, fmt.Errorf("unexpected %T for %s column", v, typ)
}
