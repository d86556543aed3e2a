// Package api exposes the admin HTTP surface: manual sync, history, settings.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"example.com/healthsync/internal/auth"
	"example.com/healthsync/internal/health"
	"example.com/healthsync/internal/prefs"
	syncpipe "example.com/healthsync/internal/sync"
)

// defaultManualWindow is used when a manual sync request omits its period.
const defaultManualWindow = 48 * time.Hour

// Handler coordinates HTTP requests with the sync pipeline.
type Handler struct {
	syncer   syncpipe.KindSyncer
	history  syncpipe.HistoryStore
	settings *prefs.Store
	logger   zerolog.Logger
}

// NewHandler builds a Handler.
func NewHandler(syncer syncpipe.KindSyncer, history syncpipe.HistoryStore, settings *prefs.Store, logger zerolog.Logger) *Handler {
	return &Handler{
		syncer:   syncer,
		history:  history,
		settings: settings,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/sync", h.sync)
	mux.HandleFunc("/v1/history", h.listHistory)
	mux.HandleFunc("/v1/settings", h.settingsHandler)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// SyncRequest triggers a manual sync over an optional explicit window.
type SyncRequest struct {
	Kinds           []string   `json:"kinds"`
	Start           *time.Time `json:"start,omitempty"`
	End             *time.Time `json:"end,omitempty"`
	AllowDuplicates *bool      `json:"allowDuplicates,omitempty"`
}

// SyncOutcomeResponse is the per-kind result of a manual sync.
type SyncOutcomeResponse struct {
	Kind      string `json:"kind"`
	Fetched   int    `json:"fetched"`
	Uploaded  int    `json:"uploaded"`
	Truncated bool   `json:"truncated"`
	Reason    string `json:"reason,omitempty"`
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeSyncTrigger) {
		writeError(w, http.StatusForbidden, "forbidden", "scope sync:trigger required")
		return
	}

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if len(req.Kinds) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "at least one kind is required")
		return
	}

	end := time.Now().UTC()
	if req.End != nil {
		end = req.End.UTC()
	}
	start := end.Add(-defaultManualWindow)
	if req.Start != nil {
		start = req.Start.UTC()
	}
	if start.After(end) {
		writeError(w, http.StatusBadRequest, "invalid_request", "start must not be after end")
		return
	}

	allowDuplicates := h.settings.AllowDuplicates()
	if req.AllowDuplicates != nil {
		allowDuplicates = *req.AllowDuplicates
	}

	outcomes := make([]SyncOutcomeResponse, 0, len(req.Kinds))
	for _, name := range req.Kinds {
		kind, err := health.ParseKind(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unknown kind: "+name)
			return
		}
		outcome := h.syncer.SyncKind(r.Context(), kind, start, end, syncpipe.Options{
			AllowDuplicates: allowDuplicates,
			Trigger:         syncpipe.TriggerManual,
		})
		outcomes = append(outcomes, SyncOutcomeResponse{
			Kind:      outcome.Kind.String(),
			Fetched:   outcome.Fetched,
			Uploaded:  outcome.Uploaded,
			Truncated: outcome.Truncated,
			Reason:    outcome.Reason,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes})
}

// HistoryEntryResponse is one logged sync operation.
type HistoryEntryResponse struct {
	ID          int64  `json:"id"`
	Timestamp   int64  `json:"timestamp"`
	DataType    string `json:"dataType"`
	PointCount  int    `json:"pointCount"`
	PeriodStart int64  `json:"periodStart"`
	PeriodEnd   int64  `json:"periodEnd"`
	Source      string `json:"source"`
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeSyncRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope sync:read required")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries, err := h.history.ListHistory(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("history listing failed")
		writeError(w, http.StatusInternalServerError, "internal", "unable to list history")
		return
	}

	out := make([]HistoryEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, HistoryEntryResponse{
			ID:          entry.ID,
			Timestamp:   entry.Timestamp,
			DataType:    entry.DataType,
			PointCount:  entry.PointCount,
			PeriodStart: entry.PeriodStart,
			PeriodEnd:   entry.PeriodEnd,
			Source:      entry.Source,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

// SettingsRequest updates sync settings; omitted fields are left unchanged.
type SettingsRequest struct {
	AllowDuplicates   *bool    `json:"allowDuplicates,omitempty"`
	CleanupAgeDays    *int     `json:"cleanupAgeDays,omitempty"`
	AutoSyncFrequency *int     `json:"autoSyncFrequency,omitempty"`
	AutoSyncKinds     []string `json:"autoSyncKinds,omitempty"`
}

// SettingsResponse reflects the current settings.
type SettingsResponse struct {
	AllowDuplicates   bool     `json:"allowDuplicates"`
	CleanupAgeDays    int      `json:"cleanupAgeDays"`
	AutoSyncFrequency int      `json:"autoSyncFrequency"`
	AutoSyncKinds     []string `json:"autoSyncKinds"`
}

func (h *Handler) settingsHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !claims.HasScope(auth.ScopeSyncRead) {
			writeError(w, http.StatusForbidden, "forbidden", "scope sync:read required")
			return
		}
	case http.MethodPut:
		if !claims.HasScope(auth.ScopeSyncTrigger) {
			writeError(w, http.StatusForbidden, "forbidden", "scope sync:trigger required")
			return
		}
		var req SettingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		if err := h.applySettings(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	writeJSON(w, http.StatusOK, SettingsResponse{
		AllowDuplicates:   h.settings.AllowDuplicates(),
		CleanupAgeDays:    h.settings.CleanupAgeDays(),
		AutoSyncFrequency: h.settings.AutoSyncFrequency(),
		AutoSyncKinds:     h.settings.AutoSyncKinds(),
	})
}

func (h *Handler) applySettings(req SettingsRequest) error {
	if req.AutoSyncFrequency != nil {
		if _, err := syncpipe.ParseFrequency(*req.AutoSyncFrequency); err != nil {
			return err
		}
	}
	for _, name := range req.AutoSyncKinds {
		if _, err := health.ParseKind(name); err != nil {
			return err
		}
	}

	if req.AllowDuplicates != nil {
		h.settings.SetAllowDuplicates(*req.AllowDuplicates)
	}
	if req.CleanupAgeDays != nil {
		h.settings.SetCleanupAgeDays(*req.CleanupAgeDays)
	}
	if req.AutoSyncFrequency != nil {
		h.settings.SetAutoSyncFrequency(*req.AutoSyncFrequency)
	}
	if req.AutoSyncKinds != nil {
		h.settings.SetAutoSyncKinds(req.AutoSyncKinds)
	}
	return nil
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
