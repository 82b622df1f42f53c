// Package schema renders the table definitions the model sees when it
// writes SQL.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/migrations"
	"github.com/askdb/askdb/internal/query"
)

var ErrNoTables = errors.New("database has no tables to describe")

type Provider interface {
	DescribeSchema(ctx context.Context) (string, error)
}

type Options struct {
	// Schema is the namespace read from information_schema. Ignored for sqlite.
	Schema        string
	IncludeTables []string
	SampleRows    int
}

type Describer struct {
	db      *sql.DB
	dialect database.Dialect
	opts    Options
}

func NewDescriber(handle *database.Handle, opts Options) *Describer {
	d := &Describer{opts: opts}
	if handle != nil {
		d.db = handle.DB
		d.dialect = handle.Dialect
	}
	return d
}

type table struct {
	Name string
	DDL  string
}

type column struct {
	Name     string
	Type     string
	Nullable bool
}

func (d *Describer) DescribeSchema(ctx context.Context) (string, error) {
	if d.db == nil {
		return "", &database.ConnectionError{Op: "describe schema", Err: errors.New("database handle is not initialized")}
	}

	var (
		tables []table
		err    error
	)
	switch d.dialect {
	case database.DialectSQLite:
		tables, err = d.sqliteTables(ctx)
	default:
		tables, err = d.informationSchemaTables(ctx)
	}
	if err != nil {
		return "", &database.ConnectionError{Op: "describe schema", Err: err}
	}

	tables = d.filter(tables)
	if len(tables) == 0 {
		return "", ErrNoTables
	}

	blocks := make([]string, 0, len(tables))
	for _, item := range tables {
		block := strings.TrimSpace(item.DDL)
		if d.opts.SampleRows > 0 {
			sample, err := d.sampleRows(ctx, item.Name)
			if err != nil {
				return "", &database.ConnectionError{Op: "sample rows", Err: err}
			}
			block += "\n\n" + sample
		}
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, "\n\n"), nil
}

func (d *Describer) sqliteTables(ctx context.Context) ([]table, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT name, sql FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query sqlite_master: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []table
	for rows.Next() {
		var name string
		var ddl sql.NullString
		if err := rows.Scan(&name, &ddl); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, table{Name: name, DDL: ddl.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return tables, nil
}

func (d *Describer) informationSchemaTables(ctx context.Context) ([]table, error) {
	namespace := d.opts.Schema
	if namespace == "" {
		namespace = "public"
		if d.dialect == database.DialectDuckDB {
			namespace = "main"
		}
	}

	stmt := fmt.Sprintf(`SELECT table_name, column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = %s
ORDER BY table_name, ordinal_position`, d.dialect.Placeholder(1))
	rows, err := d.db.QueryContext(ctx, stmt, namespace)
	if err != nil {
		return nil, fmt.Errorf("query information_schema.columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns := map[string][]column{}
	for rows.Next() {
		var tableName, columnName, dataType, nullable string
		if err := rows.Scan(&tableName, &columnName, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns[tableName] = append(columns[tableName], column{
			Name:     columnName,
			Type:     strings.ToUpper(dataType),
			Nullable: strings.EqualFold(nullable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)

	tables := make([]table, 0, len(names))
	for _, name := range names {
		tables = append(tables, table{Name: name, DDL: renderCreateTable(name, columns[name])})
	}
	return tables, nil
}

func renderCreateTable(name string, columns []column) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(name)
	b.WriteString(" (\n")
	for i, col := range columns {
		b.WriteString("\t")
		b.WriteString(col.Name)
		b.WriteString(" ")
		b.WriteString(col.Type)
		if !col.Nullable {
			b.WriteString(" NOT NULL")
		}
		if i < len(columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String()
}

func (d *Describer) filter(tables []table) []table {
	allowed := map[string]struct{}{}
	for _, name := range d.opts.IncludeTables {
		allowed[strings.ToLower(name)] = struct{}{}
	}
	out := make([]table, 0, len(tables))
	for _, item := range tables {
		if strings.EqualFold(item.Name, migrations.MigrationTable) {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[strings.ToLower(item.Name)]; !ok {
				continue
			}
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// sampleRows renders the first rows of a table as a comment block:
//
//	/*
//	3 rows from Artist table:
//	ArtistId	Name
//	1	AC/DC
//	*/
func (d *Describer) sampleRows(ctx context.Context, tableName string) (string, error) {
	stmt := fmt.Sprintf(`SELECT * FROM %s LIMIT %d`, quoteIdent(tableName), d.opts.SampleRows)
	rows, err := d.db.QueryContext(ctx, stmt)
	if err != nil {
		return "", fmt.Errorf("query sample rows for %q: %w", tableName, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("sample columns: %w", err)
	}

	lines := []string{strings.Join(columns, "\t")}
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return "", fmt.Errorf("scan sample row: %w", err)
		}
		cells := make([]string, len(values))
		for i, value := range values {
			cells[i] = sampleCell(value)
		}
		lines = append(lines, strings.Join(cells, "\t"))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("rows error: %w", err)
	}

	return fmt.Sprintf("/*\n%d rows from %s table:\n%s\n*/", d.opts.SampleRows, tableName, strings.Join(lines, "\n")), nil
}

func sampleCell(value any) string {
	switch typed := value.(type) {
	case nil:
		return "None"
	case []byte:
		return truncateCell(string(typed))
	case string:
		return truncateCell(typed)
	default:
		return query.RenderValue(typed)
	}
}

func truncateCell(value string) string {
	const limit = 100
	if len(value) > limit {
		return value[:limit]
	}
	return value
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
