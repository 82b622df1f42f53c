package api

import (
	"net/http"
	"strconv"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/history"
)

func handleListHistory(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.History == nil {
		writeJSON(w, http.StatusOK, map[string]any{"entries": []history.Entry{}, "total": 0})
		return
	}

	limit := cfg.UI.HistoryDisplay
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer", false, map[string]any{"limit": raw})
			return
		}
		limit = parsed
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": deps.History.Recent(limit),
		"total":   deps.History.Len(),
	})
}

func handleClearHistory(deps Dependencies, w http.ResponseWriter, _ *http.Request) {
	if deps.History != nil {
		deps.History.Clear()
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleSamples(deps Dependencies, w http.ResponseWriter, _ *http.Request) {
	questions := deps.Samples.Questions
	if questions == nil {
		questions = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

// handleInfo backs the configuration panel. It never echoes the API key.
func handleInfo(cfg config.Config, deps Dependencies, w http.ResponseWriter, _ *http.Request) {
	info := map[string]any{
		"service":            cfg.Service.Name,
		"provider":           cfg.AI.Provider,
		"model":              cfg.AI.Model,
		"api_key_configured": cfg.AI.APIKeyConfigured(),
		"database_driver":    cfg.Database.Driver,
		"database":           databaseLabel(cfg.Database.Driver),
		"read_only":          cfg.Guard.ReadOnly,
		"history_display":    cfg.UI.HistoryDisplay,
		"archive_enabled":    cfg.Archive.Enabled,
	}
	if deps.Assistant != nil {
		model := deps.Assistant.ModelInfo()
		info["provider"] = model.Provider
		info["model"] = model.Model
		info["read_only"] = deps.Assistant.ReadOnly()
	}
	writeJSON(w, http.StatusOK, info)
}

func databaseLabel(driver string) string {
	dialect, err := database.ParseDialect(driver)
	if err != nil {
		return driver
	}
	return dialect.DisplayName()
}
