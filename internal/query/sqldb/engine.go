package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/askdb/askdb/internal/query"
)

// Engine runs generated statements verbatim against a database/sql pool.
type Engine struct {
	DB      *sql.DB
	MaxRows int
}

func NewEngine(db *sql.DB, maxRows int) *Engine {
	return &Engine{DB: db, MaxRows: maxRows}
}

func (e *Engine) Execute(ctx context.Context, sqlText string) query.ExecutionResult {
	result, err := e.run(ctx, sqlText)
	if err != nil {
		return query.Failed(err.Error())
	}
	return query.Succeeded(result)
}

func (e *Engine) run(ctx context.Context, sqlText string) (query.Result, error) {
	if e.DB == nil {
		return query.Result{}, fmt.Errorf("database is not initialized")
	}
	sqlText = query.StripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return query.Result{}, query.ErrEmptySQL
	}

	start := time.Now()
	rows, err := e.DB.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}

	result := query.Result{Columns: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		if e.MaxRows > 0 && len(result.Rows) >= e.MaxRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		result.Rows = append(result.Rows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
