// Package assistant sequences schema lookup, SQL generation, execution and
// answer generation for one question.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/schema"
)

const EmptyQuestionAnswer = "Please enter a question."

type Stage string

const (
	StageDescribingSchema Stage = "describing_schema"
	StageGeneratingSQL    Stage = "generating_sql"
	StageExecuting        Stage = "executing"
	StageGeneratingAnswer Stage = "generating_answer"
	StageDone             Stage = "done"
	StageFailed           Stage = "failed"
)

type Status string

const (
	StatusAnswered       Status = "answered"
	StatusEmptyQuestion  Status = "empty_question"
	StatusSchemaError    Status = "schema_error"
	StatusGenerationErr  Status = "generation_error"
	StatusExecutionError Status = "execution_error"
	StatusAnswerError    Status = "answer_error"
)

// Response carries everything a front-end shows for one question. SQL is
// set once generation succeeded, RawResult only when execution succeeded.
type Response struct {
	ID         string        `json:"id"`
	Question   string        `json:"question"`
	Answer     string        `json:"answer"`
	SQL        string        `json:"sql"`
	RawResult  string        `json:"raw_result"`
	Status     Status        `json:"status"`
	FailedAt   Stage         `json:"failed_at,omitempty"`
	Err        error         `json:"-"`
	AskedAt    time.Time     `json:"asked_at"`
	Duration   time.Duration `json:"-"`
	DurationMs int64         `json:"duration_ms"`
}

type SQLGenerator interface {
	GenerateSQL(ctx context.Context, question, schema string) (string, error)
	GenerateAnswer(ctx context.Context, input nl2sql.AnswerInput) (string, error)
}

// TranscriptSink receives every finished response. Record must not block.
type TranscriptSink interface {
	Record(ctx context.Context, response Response, model llm.Info)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Database  Pinger
	Schema    schema.Provider
	Generator SQLGenerator
	Executor  query.Executor
	Model     llm.ChatModel
	Sink      TranscriptSink
	Logger    *slog.Logger
	ReadOnly  bool
	Now       func() time.Time
}

type Assistant struct {
	deps Dependencies
}

// New verifies both collaborators before handing out an assistant: the
// database must answer a ping and a model client must be present.
func New(ctx context.Context, deps Dependencies) (*Assistant, error) {
	if deps.Database == nil {
		return nil, &database.ConnectionError{Op: "database", Err: errors.New("database handle is required")}
	}
	if err := deps.Database.Ping(ctx); err != nil {
		if database.IsConnectionError(err) {
			return nil, err
		}
		return nil, &database.ConnectionError{Op: "database", Err: err}
	}
	if deps.Model == nil {
		return nil, &database.ConnectionError{Op: "model", Err: errors.New("model client is required")}
	}
	if deps.Schema == nil || deps.Generator == nil || deps.Executor == nil {
		return nil, fmt.Errorf("schema provider, generator and executor are required")
	}
	if deps.Logger == nil {
		deps.Logger = observability.DiscardLogger()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Assistant{deps: deps}, nil
}

func (a *Assistant) ModelInfo() llm.Info {
	return a.deps.Model.Info()
}

func (a *Assistant) ReadOnly() bool {
	return a.deps.ReadOnly
}

func (a *Assistant) Ping(ctx context.Context) error {
	return a.deps.Database.Ping(ctx)
}

func (a *Assistant) DescribeSchema(ctx context.Context) (string, error) {
	return timed(ctx, a, "schema", func() (string, error) {
		return a.deps.Schema.DescribeSchema(ctx)
	})
}

func (a *Assistant) GenerateSQL(ctx context.Context, question, schemaText string) (string, error) {
	return timed(ctx, a, "sql", func() (string, error) {
		return a.deps.Generator.GenerateSQL(ctx, question, schemaText)
	})
}

// ExecuteSQL runs sqlText, applying the read-only guard when enabled.
func (a *Assistant) ExecuteSQL(ctx context.Context, sqlText string) query.ExecutionResult {
	start := time.Now()
	defer func() { observability.ObserveStage("execute", time.Since(start)) }()

	if a.deps.ReadOnly {
		if err := query.CheckReadOnly(sqlText); err != nil {
			observability.WithTrace(ctx, a.deps.Logger).WarnContext(ctx, "sql_rejected",
				slog.String("reason", err.Error()),
			)
			return query.Failed(err.Error())
		}
	}
	result := a.deps.Executor.Execute(ctx, sqlText)
	if result.OK() {
		observability.ObserveQueryRows(len(result.Result.Rows))
	}
	return result
}

func (a *Assistant) GenerateAnswer(ctx context.Context, input nl2sql.AnswerInput) (string, error) {
	return timed(ctx, a, "answer", func() (string, error) {
		return a.deps.Generator.GenerateAnswer(ctx, input)
	})
}

// Ask runs the full pipeline. It never returns an error: every failure is
// rendered into Answer and classified by Status.
func (a *Assistant) Ask(ctx context.Context, question string) Response {
	start := a.deps.Now()
	response := Response{
		ID:       uuid.NewString(),
		Question: question,
		AskedAt:  start.UTC(),
	}

	a.run(ctx, &response)

	response.Duration = a.deps.Now().Sub(start)
	response.DurationMs = response.Duration.Milliseconds()
	observability.ObserveQuestion(string(response.Status))
	if response.Status != StatusEmptyQuestion && a.deps.Sink != nil {
		a.deps.Sink.Record(ctx, response, a.deps.Model.Info())
	}
	return response
}

func (a *Assistant) run(ctx context.Context, response *Response) {
	trimmed := strings.TrimSpace(response.Question)
	if trimmed == "" {
		response.Status = StatusEmptyQuestion
		response.Answer = EmptyQuestionAnswer
		return
	}
	logger := observability.WithTrace(ctx, a.deps.Logger).With(slog.String("question_id", response.ID))
	logger.DebugContext(ctx, "question_received", slog.String("question", trimmed))

	schemaText, err := a.DescribeSchema(ctx)
	if err != nil {
		a.fail(ctx, logger, response, StageDescribingSchema, StatusSchemaError, err)
		return
	}

	sqlText, err := a.GenerateSQL(ctx, trimmed, schemaText)
	if err != nil {
		a.fail(ctx, logger, response, StageGeneratingSQL, StatusGenerationErr, err)
		return
	}
	response.SQL = sqlText
	logger.InfoContext(ctx, "sql_generated", slog.String("sql", sqlText))

	result := a.ExecuteSQL(ctx, sqlText)
	if !result.OK() {
		response.Status = StatusExecutionError
		response.FailedAt = StageExecuting
		response.Err = errors.New(result.Error)
		response.Answer = "SQL Error: " + result.Error
		logger.WarnContext(ctx, "sql_execution_failed", slog.String("error", result.Error))
		return
	}
	response.RawResult = result.Result.Text()

	answer, err := a.GenerateAnswer(ctx, nl2sql.AnswerInput{
		Question: trimmed,
		Schema:   schemaText,
		SQL:      sqlText,
		Result:   response.RawResult,
	})
	if err != nil {
		a.fail(ctx, logger, response, StageGeneratingAnswer, StatusAnswerError, err)
		return
	}

	response.Answer = answer
	response.Status = StatusAnswered
	logger.InfoContext(ctx, "question_answered",
		slog.Int("rows", len(result.Result.Rows)),
		slog.String("stage", string(StageDone)),
	)
}

func (a *Assistant) fail(ctx context.Context, logger *slog.Logger, response *Response, stage Stage, status Status, err error) {
	response.Status = status
	response.FailedAt = stage
	response.Err = err
	response.Answer = "Error: " + err.Error()
	logger.ErrorContext(ctx, "question_failed",
		slog.String("stage", string(stage)),
		slog.String("error", err.Error()),
	)
}

func timed(ctx context.Context, a *Assistant, stage string, fn func() (string, error)) (string, error) {
	start := time.Now()
	out, err := fn()
	elapsed := time.Since(start)
	observability.ObserveStage(stage, elapsed)
	observability.WithTrace(ctx, a.deps.Logger).DebugContext(ctx, "stage_finished",
		slog.String("stage", stage),
		slog.String("duration", elapsed.String()),
		slog.Bool("ok", err == nil),
	)
	return out, err
}
