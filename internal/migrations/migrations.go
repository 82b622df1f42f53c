package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/database"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

// MigrationTable is the bookkeeping table; schema descriptions skip it.
const MigrationTable = "askdb_schema_migrations"

var migrationNamePattern = regexp.MustCompile(`^([0-9]+)_.+\.(up|down)\.sql$`)

// Runner applies the embedded sample music catalog to a target database.
type Runner struct {
	fsys    fs.FS
	dialect database.Dialect
	now     func() time.Time
}

func NewRunner(dialect database.Dialect) *Runner {
	return &Runner{fsys: embeddedFS, dialect: dialect, now: time.Now}
}

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

// MigrationStatus reports one embedded migration and whether the target
// database has it applied.
type MigrationStatus struct {
	Version int64
	Name    string
	Applied bool
}

// Up applies pending migrations in version order; steps <= 0 applies all.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	migrations, applied, err := r.prepare(ctx, db, "ASC")
	if err != nil {
		return 0, err
	}

	runCount := 0
	for _, item := range migrations {
		if _, ok := applied[item.Version]; ok {
			continue
		}
		if steps > 0 && runCount >= steps {
			break
		}
		if err := r.applyMigration(ctx, db, item); err != nil {
			return runCount, err
		}
		runCount++
	}
	return runCount, nil
}

// Down rolls back the newest applied migrations; steps <= 0 rolls back one.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	migrations, applied, err := r.prepare(ctx, db, "DESC")
	if err != nil {
		return 0, err
	}

	runCount := 0
	for i := len(migrations) - 1; i >= 0 && runCount < steps; i-- {
		item := migrations[i]
		if _, ok := applied[item.Version]; !ok {
			continue
		}
		if err := r.rollbackMigration(ctx, db, item); err != nil {
			return runCount, err
		}
		delete(applied, item.Version)
		runCount++
	}
	if runCount < steps {
		for version := range applied {
			return runCount, fmt.Errorf("applied migration %d is missing from source", version)
		}
	}
	return runCount, nil
}

// Status lists every embedded migration in version order.
func (r *Runner) Status(ctx context.Context, db *sql.DB) ([]MigrationStatus, error) {
	migrations, applied, err := r.prepare(ctx, db, "ASC")
	if err != nil {
		return nil, err
	}
	out := make([]MigrationStatus, 0, len(migrations))
	for _, item := range migrations {
		_, ok := applied[item.Version]
		out = append(out, MigrationStatus{Version: item.Version, Name: item.Name, Applied: ok})
	}
	return out, nil
}

func (r *Runner) prepare(ctx context.Context, db *sql.DB, order string) ([]migration, map[int64]struct{}, error) {
	migrations, err := loadMigrations(r.fsys)
	if err != nil {
		return nil, nil, err
	}
	if err := ensureMigrationTable(ctx, db); err != nil {
		return nil, nil, err
	}
	versions, err := r.listAppliedVersions(ctx, db, order)
	if err != nil {
		return nil, nil, err
	}
	applied := make(map[int64]struct{}, len(versions))
	for _, version := range versions {
		applied[version] = struct{}{}
	}
	return migrations, applied, nil
}

func ensureMigrationTable(ctx context.Context, db *sql.DB) error {
	ddl := `
CREATE TABLE IF NOT EXISTS ` + MigrationTable + ` (
	version BIGINT PRIMARY KEY,
	name VARCHAR(200) NOT NULL,
	applied_at VARCHAR(64) NOT NULL
)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	return nil
}

func (r *Runner) applyMigration(ctx context.Context, db *sql.DB, item migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, statement := range SplitStatements(item.UpSQL) {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply migration %d: %w", item.Version, err)
		}
	}
	insert := fmt.Sprintf(`INSERT INTO %s (version, name, applied_at) VALUES (%s, %s, %s)`,
		MigrationTable, r.dialect.Placeholder(1), r.dialect.Placeholder(2), r.dialect.Placeholder(3))
	if _, err := tx.ExecContext(ctx, insert, item.Version, item.Name, r.now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("mark migration %d: %w", item.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", item.Version, err)
	}
	return nil
}

func (r *Runner) rollbackMigration(ctx context.Context, db *sql.DB, item migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, statement := range SplitStatements(item.DownSQL) {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("rollback migration %d: %w", item.Version, err)
		}
	}
	remove := fmt.Sprintf(`DELETE FROM %s WHERE version = %s`, MigrationTable, r.dialect.Placeholder(1))
	if _, err := tx.ExecContext(ctx, remove, item.Version); err != nil {
		return fmt.Errorf("unmark migration %d: %w", item.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollback %d: %w", item.Version, err)
	}
	return nil
}

func (r *Runner) listAppliedVersions(ctx context.Context, db *sql.DB, order string) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM `+MigrationTable+` ORDER BY version `+order)
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var versions []int64
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return versions, nil
}

// SplitStatements breaks a script on ';' terminators that sit outside
// string literals. Lines starting with "--" are dropped.
func SplitStatements(script string) []string {
	var lines []string
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		lines = append(lines, line)
	}
	script = strings.Join(lines, "\n")

	var statements []string
	var current strings.Builder
	inQuote := false
	for i := 0; i < len(script); i++ {
		c := script[i]
		if c == '\'' {
			inQuote = !inQuote
		}
		if c == ';' && !inQuote {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
			continue
		}
		current.WriteByte(c)
	}
	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}

func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, "sql")
	if err != nil {
		return nil, fmt.Errorf("read migration dir: %w", err)
	}

	items := map[int64]migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base := path.Base(entry.Name())
		matches := migrationNamePattern.FindStringSubmatch(base)
		if len(matches) != 3 {
			continue
		}
		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version for %q: %w", base, err)
		}

		script, err := fs.ReadFile(fsys, path.Join("sql", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", entry.Name(), err)
		}

		item := items[version]
		item.Version = version
		item.Name = strings.TrimSuffix(strings.TrimSuffix(base, ".up.sql"), ".down.sql")
		switch matches[2] {
		case "up":
			item.UpSQL = string(script)
		case "down":
			item.DownSQL = string(script)
		}
		items[version] = item
	}

	versions := make([]int64, 0, len(items))
	for version := range items {
		versions = append(versions, version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	migrations := make([]migration, 0, len(versions))
	for _, version := range versions {
		item := items[version]
		if strings.TrimSpace(item.UpSQL) == "" {
			return nil, fmt.Errorf("migration %d missing up SQL", version)
		}
		if strings.TrimSpace(item.DownSQL) == "" {
			return nil, fmt.Errorf("migration %d missing down SQL", version)
		}
		migrations = append(migrations, item)
	}
	return migrations, nil
}
