// Package customer defines the feature record scored by the churn model and
// persisted in the prediction history.
package customer

import (
	"fmt"
	"math"
	"strconv"
)

// MaxTenure is the upper bound of the tenure field, in months.
const MaxTenure = 72

// PredictionColumn is the header of the outcome column in the history table.
const PredictionColumn = "Prediction"

// Record is one customer snapshot plus its predicted outcome.
// Prediction is nil until the record has been scored.
type Record struct {
	Gender           int     `json:"gender"`
	SeniorCitizen    int     `json:"SeniorCitizen"`
	Partner          int     `json:"Partner"`
	Dependents       int     `json:"Dependents"`
	Tenure           int     `json:"tenure"`
	PhoneService     int     `json:"PhoneService"`
	MultipleLines    int     `json:"MultipleLines"`
	InternetService  int     `json:"InternetService"`
	OnlineSecurity   int     `json:"OnlineSecurity"`
	OnlineBackup     int     `json:"OnlineBackup"`
	DeviceProtection int     `json:"DeviceProtection"`
	TechSupport      int     `json:"TechSupport"`
	StreamingTV      int     `json:"StreamingTV"`
	StreamingMovies  int     `json:"StreamingMovies"`
	Contract         int     `json:"Contract"`
	PaperlessBilling int     `json:"PaperlessBilling"`
	PaymentMethod    int     `json:"PaymentMethod"`
	MonthlyCharges   float64 `json:"MonthlyCharges"`
	TotalCharges     float64 `json:"TotalCharges"`
	Prediction       *int    `json:"Prediction"`
}

// Bounds holds the configured maxima of the charge fields.
type Bounds struct {
	MaxMonthlyCharges float64
	MaxTotalCharges   float64
}

// DefaultBounds mirrors the limits of the input form.
func DefaultBounds() Bounds {
	return Bounds{
		MaxMonthlyCharges: 500,
		MaxTotalCharges:   10000,
	}
}

// InvalidInputError reports a malformed or out-of-enumeration field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *InvalidInputError {
	return &InvalidInputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Columns returns the history table header in order.
func Columns() []string {
	cols := InputColumns()
	return append(cols, PredictionColumn)
}

// InputColumns returns the model input fields in column order.
func InputColumns() []string {
	names := make([]string, len(inputFields))
	for i, f := range inputFields {
		names[i] = f.name
	}
	return names
}

// WithPrediction returns a copy of r carrying label.
func (r Record) WithPrediction(label int) Record {
	l := label
	r.Prediction = &l
	return r
}

// Label returns the prediction and whether one is set.
func (r Record) Label() (int, bool) {
	if r.Prediction == nil {
		return 0, false
	}
	return *r.Prediction, true
}

// Validate checks every field against its enumeration or range.
func (r Record) Validate(b Bounds, requirePrediction bool) error {
	for _, f := range inputFields {
		if err := f.check(&r, b); err != nil {
			return err
		}
	}
	if r.Prediction == nil {
		if requirePrediction {
			return invalid(PredictionColumn, "missing")
		}
		return nil
	}
	if p := *r.Prediction; p != 0 && p != 1 {
		return invalid(PredictionColumn, "must be 0 or 1, got %d", p)
	}
	return nil
}

// Vector returns the model inputs in column order.
func (r Record) Vector() []float64 {
	vec := make([]float64, len(inputFields))
	for i, f := range inputFields {
		vec[i] = f.value(&r)
	}
	return vec
}

// Payload returns the inference request body for r.
func (r Record) Payload() map[string]any {
	payload := make(map[string]any, len(inputFields))
	for _, f := range inputFields {
		if f.floats != nil {
			payload[f.name] = *f.floats(&r)
		} else {
			payload[f.name] = *f.ints(&r)
		}
	}
	return payload
}

// Row encodes r as a table row matching Columns.
func (r Record) Row() []string {
	row := make([]string, 0, len(inputFields)+1)
	for _, f := range inputFields {
		if f.floats != nil {
			row = append(row, strconv.FormatFloat(*f.floats(&r), 'f', -1, 64))
		} else {
			row = append(row, strconv.Itoa(*f.ints(&r)))
		}
	}
	if r.Prediction == nil {
		return append(row, "")
	}
	return append(row, strconv.Itoa(*r.Prediction))
}

// FromRow decodes a table row written by Row. The record is not validated.
func FromRow(row []string) (Record, error) {
	var r Record
	if len(row) != len(inputFields)+1 {
		return r, &InvalidInputError{Reason: fmt.Sprintf("expected %d columns, got %d", len(inputFields)+1, len(row))}
	}
	for i, f := range inputFields {
		v, err := strconv.ParseFloat(row[i], 64)
		if err != nil {
			return r, invalid(f.name, "not a number: %q", row[i])
		}
		if err := f.set(&r, v); err != nil {
			return r, err
		}
	}
	if last := row[len(inputFields)]; last != "" {
		p, err := parseIntegral(last)
		if err != nil {
			return r, invalid(PredictionColumn, "not an integer: %q", last)
		}
		r.Prediction = &p
	}
	return r, nil
}

// FromVector rebuilds a record from model inputs in column order.
func FromVector(vec []float64, prediction *int) (Record, error) {
	var r Record
	if len(vec) != len(inputFields) {
		return r, &InvalidInputError{Reason: fmt.Sprintf("expected %d values, got %d", len(inputFields), len(vec))}
	}
	for i := range inputFields {
		if err := inputFields[i].set(&r, vec[i]); err != nil {
			return r, err
		}
	}
	if prediction != nil {
		p := *prediction
		r.Prediction = &p
	}
	return r, nil
}

func parseIntegral(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("%q is not integral", s)
	}
	return int(v), nil
}
