package customer

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func samplePayload() map[string]any {
	return map[string]any{
		"gender": 1.0, "SeniorCitizen": 0.0, "Partner": 1.0, "Dependents": 0.0,
		"tenure": 12.0, "PhoneService": 1.0, "MultipleLines": 0.0, "InternetService": 2.0,
		"OnlineSecurity": 0.0, "OnlineBackup": 1.0, "DeviceProtection": 2.0,
		"TechSupport": 0.0, "StreamingTV": 1.0, "StreamingMovies": 1.0, "Contract": 0.0,
		"PaperlessBilling": 1.0, "PaymentMethod": 3.0, "MonthlyCharges": 70.35,
		"TotalCharges": 844.2,
	}
}

func TestColumnsOrder(t *testing.T) {
	cols := Columns()
	if len(cols) != 20 {
		t.Fatalf("expected 20 columns, got %d", len(cols))
	}
	if cols[0] != "gender" || cols[4] != "tenure" || cols[16] != "PaymentMethod" {
		t.Fatalf("unexpected column order: %v", cols)
	}
	if cols[17] != "MonthlyCharges" || cols[18] != "TotalCharges" || cols[19] != PredictionColumn {
		t.Fatalf("unexpected trailing columns: %v", cols[17:])
	}
}

func TestFromPayload(t *testing.T) {
	r, err := FromPayload(samplePayload(), DefaultBounds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Gender != 1 || r.Tenure != 12 || r.InternetService != 2 || r.PaymentMethod != 3 {
		t.Fatalf("unexpected record: %+v", r)
	}
	if r.MonthlyCharges != 70.35 || r.TotalCharges != 844.2 {
		t.Fatalf("unexpected charges: %+v", r)
	}
	if r.Prediction != nil {
		t.Fatal("expected no prediction")
	}
}

func TestFromPayloadJSONNumbers(t *testing.T) {
	body, _ := json.Marshal(samplePayload())
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if _, err := FromPayload(payload, DefaultBounds()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFromPayloadRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		field  string
	}{
		{"missing field", func(p map[string]any) { delete(p, "Contract") }, "Contract"},
		{"unknown field", func(p map[string]any) { p["Churn"] = 1.0 }, "Churn"},
		{"wrong type", func(p map[string]any) { p["gender"] = "Male" }, "gender"},
		{"out of enumeration", func(p map[string]any) { p["InternetService"] = 3.0 }, "InternetService"},
		{"negative code", func(p map[string]any) { p["Partner"] = -1.0 }, "Partner"},
		{"fractional code", func(p map[string]any) { p["Contract"] = 1.5 }, "Contract"},
		{"tenure too large", func(p map[string]any) { p["tenure"] = 73.0 }, "tenure"},
		{"charges too large", func(p map[string]any) { p["MonthlyCharges"] = 500.01 }, "MonthlyCharges"},
		{"negative charges", func(p map[string]any) { p["TotalCharges"] = -1.0 }, "TotalCharges"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := samplePayload()
			tt.mutate(p)
			_, err := FromPayload(p, DefaultBounds())
			var inErr *InvalidInputError
			if !errors.As(err, &inErr) {
				t.Fatalf("expected InvalidInputError, got %v", err)
			}
			if inErr.Field != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, inErr.Field)
			}
		})
	}
}

func TestFromPayloadHugeIntegerNamesValue(t *testing.T) {
	p := samplePayload()
	p["tenure"] = 1e19
	_, err := FromPayload(p, DefaultBounds())
	var inErr *InvalidInputError
	if !errors.As(err, &inErr) || inErr.Field != "tenure" {
		t.Fatalf("expected tenure InvalidInputError, got %v", err)
	}
	if !strings.Contains(err.Error(), "1e+19") || strings.Contains(err.Error(), "-9223372036854775808") {
		t.Fatalf("error should name the value sent: %v", err)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	r, err := FromPayload(samplePayload(), DefaultBounds())
	if err != nil {
		t.Fatal(err)
	}
	again, err := FromPayload(r.Payload(), DefaultBounds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != r {
		t.Fatalf("payload round trip mismatch: %+v vs %+v", again, r)
	}
}

func TestRowRoundTrip(t *testing.T) {
	r, _ := FromPayload(samplePayload(), DefaultBounds())
	r = r.WithPrediction(1)

	got, err := FromRow(r.Row())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label, ok := got.Label()
	if !ok || label != 1 {
		t.Fatalf("expected prediction 1, got %v", got.Prediction)
	}
	got.Prediction, r.Prediction = nil, nil
	if got != r {
		t.Fatalf("row round trip mismatch: %+v vs %+v", got, r)
	}
}

func TestFromRowAcceptsFloatCodes(t *testing.T) {
	r, _ := FromPayload(samplePayload(), DefaultBounds())
	row := r.WithPrediction(0).Row()
	row[0] = "1.0"
	row[19] = "0.0"
	got, err := FromRow(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Gender != 1 || *got.Prediction != 0 {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestValidateRequiresPrediction(t *testing.T) {
	r, _ := FromPayload(samplePayload(), DefaultBounds())
	if err := r.Validate(DefaultBounds(), true); err == nil {
		t.Fatal("expected missing prediction error")
	}
	if err := r.WithPrediction(2).Validate(DefaultBounds(), true); err == nil {
		t.Fatal("expected out-of-range prediction error")
	}
	if err := r.WithPrediction(0).Validate(DefaultBounds(), true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVectorOrder(t *testing.T) {
	r, _ := FromPayload(samplePayload(), DefaultBounds())
	vec := r.Vector()
	if len(vec) != len(InputColumns()) {
		t.Fatalf("unexpected vector length %d", len(vec))
	}
	if vec[4] != 12 || vec[17] != 70.35 || vec[18] != 844.2 {
		t.Fatalf("unexpected vector: %v", vec)
	}
}

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		field string
		label string
		code  int
	}{
		{"gender", "Male", 1},
		{"gender", "female", 0},
		{"InternetService", "  FIBER OPTIC ", 2},
		{"OnlineSecurity", "not available", 0},
		{"Contract", "two year", 2},
		{"PaymentMethod", "Credit Card", 3},
	}
	for _, tt := range tests {
		code, err := Encode(tt.field, tt.label)
		if err != nil {
			t.Fatalf("Encode(%q, %q): %v", tt.field, tt.label, err)
		}
		if code != tt.code {
			t.Fatalf("Encode(%q, %q) = %d, want %d", tt.field, tt.label, code, tt.code)
		}
		if _, err := Decode(tt.field, code); err != nil {
			t.Fatalf("Decode(%q, %d): %v", tt.field, code, err)
		}
	}

	if _, err := Encode("Contract", "weekly"); err == nil {
		t.Fatal("expected unknown label error")
	}
	if _, err := Encode("tenure", "12"); err == nil {
		t.Fatal("expected error for uncoded field")
	}
	if _, err := Decode("PaymentMethod", 4); err == nil {
		t.Fatal("expected out-of-range code error")
	}
}
