package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"churnguard/analytics"
	"churnguard/client"
	"churnguard/customer"
	"churnguard/history"
)

// DashboardDeps are the long-lived objects the dashboard routes share.
type DashboardDeps struct {
	Store     history.Store
	Predictor client.Predictor
	Bounds    customer.Bounds
	// Live, when set, serves the websocket history feed.
	Live   http.Handler
	Logger *zap.Logger
}

// RegisterDashboardRoutes mounts predict-and-save, the history CRUD routes
// and the analytics summary.
func RegisterDashboardRoutes(deps DashboardDeps) RouteRegistrar {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &dashboardHandler{deps: deps}
	return func(mux *http.ServeMux) {
		mux.HandleFunc("POST /api/predictions", h.handleCreatePrediction)
		mux.HandleFunc("GET /api/history", h.handleListHistory)
		mux.HandleFunc("DELETE /api/history/{position}", h.handleDeleteOne)
		mux.HandleFunc("POST /api/history/delete", h.handleDeleteMany)
		mux.HandleFunc("DELETE /api/history", h.handleClear)
		mux.HandleFunc("GET /api/analytics", h.handleAnalytics)
		mux.HandleFunc("GET /api/health", h.handleHealth)
		if deps.Live != nil {
			mux.Handle("GET /api/ws/history", deps.Live)
		}
	}
}

type dashboardHandler struct {
	deps DashboardDeps
}

// HistoryRow is a stored record with its current position.
type HistoryRow struct {
	Position int `json:"position"`
	customer.Record
}

type historyResponse struct {
	Records []HistoryRow `json:"records"`
	Count   int          `json:"count"`
}

type deleteManyRequest struct {
	Positions []int `json:"positions"`
}

type deletedResponse struct {
	Deleted int `json:"deleted"`
}

func (h *dashboardHandler) handleCreatePrediction(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(r)
	if err != nil {
		respondError(w, r, h.deps.Logger, err)
		return
	}
	record, err := customer.FromPayload(payload, h.deps.Bounds)
	if err != nil {
		respondError(w, r, h.deps.Logger, err)
		return
	}

	result, err := client.PredictAndRecord(r.Context(), h.deps.Predictor, h.deps.Store, record)
	if err != nil {
		respondError(w, r, h.deps.Logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (h *dashboardHandler) handleListHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.deps.Store.LoadAll(r.Context())
	if err != nil {
		respondError(w, r, h.deps.Logger, err)
		return
	}
	rows := make([]HistoryRow, len(records))
	for i, rec := range records {
		rows[i] = HistoryRow{Position: i, Record: rec}
	}
	respondJSON(w, http.StatusOK, historyResponse{Records: rows, Count: len(rows)})
}

func (h *dashboardHandler) handleDeleteOne(w http.ResponseWriter, r *http.Request) {
	position, err := strconv.Atoi(r.PathValue("position"))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "position must be an integer", Field: "position"})
		return
	}
	if err := h.deps.Store.DeleteAt(r.Context(), position); err != nil {
		respondError(w, r, h.deps.Logger, err)
		return
	}
	respondJSON(w, http.StatusOK, deletedResponse{Deleted: 1})
}

func (h *dashboardHandler) handleDeleteMany(w http.ResponseWriter, r *http.Request) {
	var req deleteManyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "malformed JSON body: " + err.Error()})
		return
	}
	n, err := h.deps.Store.DeleteMany(r.Context(), req.Positions)
	if err != nil {
		respondError(w, r, h.deps.Logger, err)
		return
	}
	respondJSON(w, http.StatusOK, deletedResponse{Deleted: n})
}

func (h *dashboardHandler) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Store.Clear(r.Context()); err != nil {
		respondError(w, r, h.deps.Logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *dashboardHandler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	records, err := h.deps.Store.LoadAll(r.Context())
	if err != nil {
		respondError(w, r, h.deps.Logger, err)
		return
	}
	respondJSON(w, http.StatusOK, analytics.Summarize(records))
}

func (h *dashboardHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.Store.Len(r.Context())
	if err != nil {
		respondError(w, r, h.deps.Logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "history": n})
}
