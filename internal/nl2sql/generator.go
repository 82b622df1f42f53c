// Package nl2sql turns questions into SQL and query results into answers
// with two fixed prompts, one model call each.
package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/llm"
)

const (
	StageSQL    = "sql"
	StageAnswer = "answer"
)

var ErrEmptySQL = errors.New("model returned empty SQL")

// GenerationError reports a failed or empty model call.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func IsGenerationError(err error) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr)
}

type Generator struct {
	Model llm.ChatModel
	// Engine names the database product in the SQL prompt, e.g. "SQLite".
	Engine string
}

func NewGenerator(model llm.ChatModel, engine string) *Generator {
	return &Generator{Model: model, Engine: engine}
}

// GenerateSQL asks the model for a query answering question against schema.
// The reply is returned with any surrounding markdown fence and outer
// whitespace removed.
func (g *Generator) GenerateSQL(ctx context.Context, question, schema string) (string, error) {
	if g.Model == nil {
		return "", &GenerationError{Stage: StageSQL, Err: errors.New("model client is not configured")}
	}
	userPrompt, err := render(sqlUserTemplate, sqlPromptData{Schema: schema, Question: question})
	if err != nil {
		return "", &GenerationError{Stage: StageSQL, Err: err}
	}
	reply, err := g.Model.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: sqlSystem(g.Engine)},
		{Role: llm.RoleUser, Content: userPrompt},
	})
	if err != nil {
		return "", &GenerationError{Stage: StageSQL, Err: err}
	}
	sqlText := stripMarkdownSQL(reply)
	if sqlText == "" {
		return "", &GenerationError{Stage: StageSQL, Err: ErrEmptySQL}
	}
	return sqlText, nil
}

type AnswerInput struct {
	Question string
	Schema   string
	SQL      string
	Result   string
}

func (g *Generator) GenerateAnswer(ctx context.Context, input AnswerInput) (string, error) {
	if g.Model == nil {
		return "", &GenerationError{Stage: StageAnswer, Err: errors.New("model client is not configured")}
	}
	userPrompt, err := render(answerUserTemplate, input)
	if err != nil {
		return "", &GenerationError{Stage: StageAnswer, Err: err}
	}
	reply, err := g.Model.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: answerSystemPrompt},
		{Role: llm.RoleUser, Content: userPrompt},
	})
	if err != nil {
		return "", &GenerationError{Stage: StageAnswer, Err: err}
	}
	answer := strings.TrimSpace(reply)
	if answer == "" {
		return "", &GenerationError{Stage: StageAnswer, Err: llm.ErrEmptyResponse}
	}
	return answer, nil
}

// fenceTags are the language tags recognised on a single-line fence,
// where the tag cannot be told apart from the query by a line break.
var fenceTags = map[string]bool{"sql": true, "sqlite": true, "postgres": true, "postgresql": true, "duckdb": true}

// stripMarkdownSQL removes a surrounding code fence. Whatever follows the
// opening backticks on the same line is a language tag and is dropped.
func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(body, '\n'); newline >= 0 {
		body = body[newline+1:]
	} else if tag, rest, ok := strings.Cut(body, " "); ok && fenceTags[strings.ToLower(tag)] {
		body = rest
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}
