package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"churnguard/client"
	"churnguard/customer"
	"churnguard/history"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// respondJSON 统一JSON响应
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError maps the typed errors of the domain packages onto statuses.
// Anything unrecognised is a 500 and is logged with the request id.
func respondError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var (
		inErr    *customer.InvalidInputError
		rangeErr *history.IndexOutOfRangeError
		unErr    *client.UnreachableServiceError
	)
	switch {
	case errors.As(err, &inErr):
		respondJSON(w, http.StatusBadRequest, errorBody{Error: inErr.Reason, Field: inErr.Field})
	case errors.As(err, &rangeErr):
		respondJSON(w, http.StatusNotFound, errorBody{Error: rangeErr.Error()})
	case errors.As(err, &unErr):
		logger.Warn("inference service unavailable", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		respondJSON(w, http.StatusBadGateway, errorBody{Error: unErr.Error()})
	default:
		logger.Error("request failed", zap.String("request_id", GetRequestID(r.Context())), zap.String("path", r.URL.Path), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}

// decodePayload reads a JSON object keeping numbers exact, so integral
// checks see what the caller sent.
func decodePayload(r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, &customer.InvalidInputError{Reason: "request body too large"}
		}
		return nil, &customer.InvalidInputError{Reason: "malformed JSON body: " + err.Error()}
	}
	if payload == nil {
		return nil, &customer.InvalidInputError{Reason: "request body must be a JSON object"}
	}
	return payload, nil
}
