package http

import (
	"net/http"

	"go.uber.org/zap"

	"churnguard/client"
)

// RegisterInferenceRoutes mounts the prediction endpoint under its original
// path and under /api, plus a health check naming the loaded model type.
func RegisterInferenceRoutes(predictor client.Predictor, modelType string, logger *zap.Logger) RouteRegistrar {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &inferenceHandler{predictor: predictor, modelType: modelType, logger: logger}
	return func(mux *http.ServeMux) {
		mux.HandleFunc("POST /predict", h.handlePredict)
		mux.HandleFunc("POST /api/predict", h.handlePredict)
		mux.HandleFunc("GET /api/health", h.handleHealth)
	}
}

type inferenceHandler struct {
	predictor client.Predictor
	modelType string
	logger    *zap.Logger
}

func (h *inferenceHandler) handlePredict(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	result, err := h.predictor.Predict(r.Context(), payload)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *inferenceHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "model": h.modelType})
}
