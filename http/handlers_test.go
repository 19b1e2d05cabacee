package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"churnguard/customer"
	"churnguard/inference"
)

type fakeModel struct {
	label      int
	confidence float64
	err        error
}

func (f *fakeModel) Predict(features []float64) (int, float64, error) {
	return f.label, f.confidence, f.err
}

func sampleRecord() customer.Record {
	return customer.Record{
		Gender:          1,
		Tenure:          12,
		PhoneService:    1,
		InternetService: 2,
		OnlineSecurity:  2,
		PaymentMethod:   0,
		MonthlyCharges:  70.35,
		TotalCharges:    844.2,
	}
}

func payloadBody(t *testing.T, payload map[string]any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(data)
}

func newInferenceHandler(t *testing.T, model *fakeModel) http.Handler {
	t.Helper()
	svc, err := inference.New(model, customer.DefaultBounds(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return NewHandler(DefaultServerConfig(), nil, RegisterInferenceRoutes(svc, "decision_tree", nil))
}

func TestHandlePredict(t *testing.T) {
	handler := newInferenceHandler(t, &fakeModel{label: 1, confidence: 0.8})

	for _, path := range []string{"/predict", "/api/predict"} {
		req := httptest.NewRequest(http.MethodPost, path, payloadBody(t, sampleRecord().Payload()))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d (%s)", path, w.Code, w.Body.String())
		}
		var result inference.Result
		if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		if result.Label != 1 || result.Message != "Likely to Leave" {
			t.Fatalf("unexpected result: %+v", result)
		}
		if w.Header().Get("X-Request-ID") == "" {
			t.Fatal("expected request id header")
		}
	}
}

func TestHandlePredictInvalidInput(t *testing.T) {
	handler := newInferenceHandler(t, &fakeModel{label: 0})

	missing := sampleRecord().Payload()
	delete(missing, "tenure")
	extra := sampleRecord().Payload()
	extra["customerID"] = "7590-VHVEG"
	badCode := sampleRecord().Payload()
	badCode["Contract"] = 7

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing field", mustJSON(t, missing), "tenure"},
		{"unknown field", mustJSON(t, extra), "customerID"},
		{"out of enumeration", mustJSON(t, badCode), "Contract"},
		{"malformed", `{"gender":`, ""},
		{"not an object", `[1,2,3]`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d (%s)", w.Code, w.Body.String())
			}
			var body errorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if body.Field != tt.field || body.Error == "" {
				t.Fatalf("unexpected error body %+v", body)
			}
		})
	}
}

func TestHandlePredictModelFailure(t *testing.T) {
	handler := newInferenceHandler(t, &fakeModel{err: errors.New("tree exploded")})

	req := httptest.NewRequest(http.MethodPost, "/predict", payloadBody(t, sampleRecord().Payload()))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	handler := newInferenceHandler(t, &fakeModel{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	expected := `{"model":"decision_tree","status":"ok"}`
	if strings.TrimSpace(rr.Body.String()) != expected {
		t.Errorf("handler returned unexpected body: got %v want %v", rr.Body.String(), expected)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	handler := newInferenceHandler(t, &fakeModel{label: 0})
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/predict", payloadBody(t, sampleRecord().Payload())))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "churnguard_predictions_total") {
		t.Fatal("prediction counter not exported")
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
