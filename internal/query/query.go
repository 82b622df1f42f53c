package query

import (
	"context"
	"time"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

type Result struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
	Duration  time.Duration
}

// Text renders the rows the way the answer prompt expects them: a bracketed
// list of tuples, or the empty string when no rows came back.
func (r Result) Text() string {
	return RenderRows(r.Rows)
}

// ExecutionResult is the outcome of running one statement. Exactly one of
// Result (when Status is StatusSucceeded) or Error (when StatusFailed) is
// meaningful.
type ExecutionResult struct {
	Status Status
	Result Result
	Error  string
}

func Succeeded(result Result) ExecutionResult {
	return ExecutionResult{Status: StatusSucceeded, Result: result}
}

func Failed(message string) ExecutionResult {
	if message == "" {
		message = "query failed"
	}
	return ExecutionResult{Status: StatusFailed, Error: message}
}

func (e ExecutionResult) OK() bool {
	return e.Status == StatusSucceeded
}

// Text is the raw result handed to the answer step: the rendered rows on
// success, the error message on failure.
func (e ExecutionResult) Text() string {
	if e.OK() {
		return e.Result.Text()
	}
	return e.Error
}

// Executor runs a statement against the bound database. Failures are
// reported inside the returned value, never as a Go error.
type Executor interface {
	Execute(ctx context.Context, sqlText string) ExecutionResult
}
