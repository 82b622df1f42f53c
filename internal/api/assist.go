package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/askdb/askdb/internal/assistant"
	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/history"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/schema"
)

type generateSQLRequest struct {
	Question string `json:"question" validate:"required,max=4000"`
	Schema   string `json:"schema,omitempty"`
}

type executeSQLRequest struct {
	SQL string `json:"sql" validate:"required,max=100000"`
}

type generateAnswerRequest struct {
	Question string `json:"question" validate:"required,max=4000"`
	SQL      string `json:"sql" validate:"required,max=100000"`
	Result   string `json:"result"`
	Schema   string `json:"schema,omitempty"`
}

type askRequest struct {
	Question string `json:"question" validate:"max=4000"`
}

type executeSQLResponse struct {
	Status    query.Status `json:"status"`
	Result    string       `json:"result"`
	Columns   []string     `json:"columns"`
	Rows      [][]any      `json:"rows"`
	Truncated bool         `json:"truncated"`
	Error     string       `json:"error,omitempty"`
	ElapsedMs int64        `json:"elapsed_ms"`
}

type askResponse struct {
	assistant.Response
	Stage assistant.Stage `json:"stage"`
	Error string          `json:"error,omitempty"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireAssistant(deps, w, r) {
		return
	}
	schemaText, err := deps.Assistant.DescribeSchema(r.Context())
	if err != nil {
		writeSchemaError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schema": schemaText})
}

func handleGenerateSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireAssistant(deps, w, r) {
		return
	}
	var req generateSQLRequest
	if !decodeRequest(w, r, &req, func() { req.Question = strings.TrimSpace(req.Question) }) {
		return
	}

	schemaText := req.Schema
	if strings.TrimSpace(schemaText) == "" {
		var err error
		schemaText, err = deps.Assistant.DescribeSchema(r.Context())
		if err != nil {
			writeSchemaError(w, r, err)
			return
		}
	}

	sqlText, err := deps.Assistant.GenerateSQL(r.Context(), req.Question, schemaText)
	if err != nil {
		writeGenerationError(w, r, err)
		return
	}
	info := deps.Assistant.ModelInfo()
	writeJSON(w, http.StatusOK, map[string]any{
		"sql":      sqlText,
		"provider": info.Provider,
		"model":    info.Model,
	})
}

// handleExecuteSQL always answers 200 for a well-formed request; execution
// failures travel in the tagged body, as they do through the core.
func handleExecuteSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireAssistant(deps, w, r) {
		return
	}
	var req executeSQLRequest
	if !decodeRequest(w, r, &req, func() { req.SQL = strings.TrimSpace(req.SQL) }) {
		return
	}

	result := deps.Assistant.ExecuteSQL(r.Context(), req.SQL)
	response := executeSQLResponse{
		Status:  result.Status,
		Result:  result.Text(),
		Columns: []string{},
		Rows:    [][]any{},
		Error:   result.Error,
	}
	if result.OK() {
		if result.Result.Columns != nil {
			response.Columns = result.Result.Columns
		}
		if result.Result.Rows != nil {
			response.Rows = result.Result.Rows
		}
		response.Truncated = result.Result.Truncated
		response.ElapsedMs = result.Result.Duration.Milliseconds()
	}
	writeJSON(w, http.StatusOK, response)
}

func handleGenerateAnswer(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireAssistant(deps, w, r) {
		return
	}
	var req generateAnswerRequest
	normalize := func() {
		req.Question = strings.TrimSpace(req.Question)
		req.SQL = strings.TrimSpace(req.SQL)
	}
	if !decodeRequest(w, r, &req, normalize) {
		return
	}

	schemaText := req.Schema
	if strings.TrimSpace(schemaText) == "" {
		var err error
		schemaText, err = deps.Assistant.DescribeSchema(r.Context())
		if err != nil {
			writeSchemaError(w, r, err)
			return
		}
	}

	answer, err := deps.Assistant.GenerateAnswer(r.Context(), nl2sql.AnswerInput{
		Question: req.Question,
		Schema:   schemaText,
		SQL:      req.SQL,
		Result:   req.Result,
	})
	if err != nil {
		writeGenerationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"answer": answer})
}

// handleAsk runs the whole pipeline. Pipeline failures are part of a normal
// 200 response; only malformed requests get an error envelope.
func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireAssistant(deps, w, r) {
		return
	}
	var req askRequest
	if !decodeRequest(w, r, &req, nil) {
		return
	}

	response := deps.Assistant.Ask(r.Context(), req.Question)
	if deps.History != nil && response.Status != assistant.StatusEmptyQuestion {
		deps.History.Add(history.Entry{
			ID:       response.ID,
			Question: strings.TrimSpace(response.Question),
			Answer:   response.Answer,
			SQL:      response.SQL,
			Status:   string(response.Status),
			AskedAt:  response.AskedAt,
		})
	}

	body := askResponse{Response: response, Stage: assistant.StageDone}
	if response.FailedAt != "" {
		body.Stage = response.FailedAt
	}
	if response.Err != nil {
		body.Error = response.Err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func requireAssistant(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant is not configured", false, nil)
		return false
	}
	return true
}

func writeSchemaError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case database.IsConnectionError(err):
		writeError(r.Context(), w, http.StatusServiceUnavailable, "DATABASE_UNAVAILABLE", err.Error(), true, nil)
	case errors.Is(err, schema.ErrNoTables):
		writeError(r.Context(), w, http.StatusConflict, "SCHEMA_EMPTY", err.Error(), false, nil)
	default:
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_FETCH_FAILED", "failed to describe schema", true, map[string]any{"details": err.Error()})
	}
}

func writeGenerationError(w http.ResponseWriter, r *http.Request, err error) {
	var genErr *nl2sql.GenerationError
	if errors.As(err, &genErr) {
		writeError(r.Context(), w, http.StatusBadGateway, "GENERATION_FAILED", err.Error(), true, map[string]any{"stage": genErr.Stage})
		return
	}
	writeError(r.Context(), w, http.StatusBadGateway, "GENERATION_FAILED", err.Error(), true, nil)
}
