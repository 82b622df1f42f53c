package migrations

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/askdb/askdb/internal/database"
)

func TestLoadMigrationsSortsAndPairsUpDown(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000002_two.up.sql":   {Data: []byte("SELECT 2;")},
		"sql/000002_two.down.sql": {Data: []byte("SELECT -2;")},
		"sql/000001_one.up.sql":   {Data: []byte("SELECT 1;")},
		"sql/000001_one.down.sql": {Data: []byte("SELECT -1;")},
		"sql/README.md":           {Data: []byte("ignored")},
	}

	items, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d", len(items))
	}
	if items[0].Version != 1 || items[1].Version != 2 {
		t.Fatalf("unexpected migration order: %+v", items)
	}
	if items[0].Name != "000001_one" {
		t.Fatalf("Name = %q", items[0].Name)
	}
}

func TestLoadMigrationsErrorsWhenDownMissing(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000001_one.up.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := loadMigrations(fsys)
	if err == nil {
		t.Fatal("expected error for missing down migration")
	}
	if !strings.Contains(err.Error(), "missing down SQL") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEmbeddedCatalogDefinesSampleTables(t *testing.T) {
	body, err := embeddedFS.ReadFile("sql/000001_music_catalog.up.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	for _, snippet := range []string{
		"CREATE TABLE Artist",
		"CREATE TABLE Album",
		"CREATE TABLE Genre",
		"CREATE TABLE MediaType",
		"CREATE TABLE Track",
	} {
		if !strings.Contains(string(body), snippet) {
			t.Fatalf("migration missing required snippet: %s", snippet)
		}
	}
}

func TestSplitStatementsIgnoresSemicolonsInLiterals(t *testing.T) {
	script := "-- header; comment\nINSERT INTO t VALUES ('a;b', 'it''s');\n\nDELETE FROM t;\n"
	got := SplitStatements(script)
	if len(got) != 2 {
		t.Fatalf("SplitStatements() = %#v", got)
	}
	if got[0] != "INSERT INTO t VALUES ('a;b', 'it''s')" || got[1] != "DELETE FROM t" {
		t.Fatalf("SplitStatements() = %#v", got)
	}
}

func TestRunnerSeedsSQLiteAndRollsBack(t *testing.T) {
	ctx := context.Background()
	handle, err := database.Open(ctx, database.DBConfig{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	defer handle.Close()

	runner := NewRunner(handle.Dialect)
	applied, err := runner.Up(ctx, handle.DB, 0)
	if err != nil {
		t.Fatalf("runner.Up() error = %v", err)
	}
	if applied != 2 {
		t.Fatalf("runner.Up() applied %d, want 2", applied)
	}

	var artists int
	if err := handle.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM Artist`).Scan(&artists); err != nil {
		t.Fatalf("count artists: %v", err)
	}
	if artists < 10 {
		t.Fatalf("artists = %d, want at least 10", artists)
	}

	status, err := runner.Status(ctx, handle.DB)
	if err != nil {
		t.Fatalf("runner.Status() error = %v", err)
	}
	if len(status) != 2 || !status[0].Applied || !status[1].Applied || status[0].Name != "000001_music_catalog" {
		t.Fatalf("status = %+v", status)
	}

	again, err := runner.Up(ctx, handle.DB, 0)
	if err != nil || again != 0 {
		t.Fatalf("second runner.Up() = %d, %v", again, err)
	}

	rolledBack, err := runner.Down(ctx, handle.DB, 2)
	if err != nil {
		t.Fatalf("runner.Down() error = %v", err)
	}
	if rolledBack != 2 {
		t.Fatalf("runner.Down() rolled back %d, want 2", rolledBack)
	}
	status, err = runner.Status(ctx, handle.DB)
	if err != nil || len(status) != 2 || status[0].Applied || status[1].Applied {
		t.Fatalf("status after rollback = %+v, %v", status, err)
	}
	var tables int
	if err := handle.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'Artist'`).Scan(&tables); err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if tables != 0 {
		t.Fatal("Artist table should be dropped after full rollback")
	}
}

func TestRunnerUsesDialectPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	runner := &Runner{
		fsys: fstest.MapFS{
			"sql/000001_one.up.sql":   {Data: []byte("CREATE TABLE x (id INTEGER);")},
			"sql/000001_one.down.sql": {Data: []byte("DROP TABLE x;")},
		},
		dialect: database.DialectPostgres,
		now:     func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS " + MigrationTable)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM " + MigrationTable + " ORDER BY version ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE x (id INTEGER)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO "+MigrationTable+" (version, name, applied_at) VALUES ($1, $2, $3)")).
		WithArgs(int64(1), "000001_one", "2026-01-02T03:04:05Z").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	applied, err := runner.Up(context.Background(), db, 0)
	if err != nil {
		t.Fatalf("runner.Up() error = %v", err)
	}
	if applied != 1 {
		t.Fatalf("applied = %d", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sqlmock expectations: %v", err)
	}
}
