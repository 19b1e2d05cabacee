// Package inference turns raw request payloads into churn predictions.
package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"churnguard/customer"
	"churnguard/ml"
)

const (
	LabelStay  = 0
	LabelLeave = 1

	MessageStay  = "Likely to Stay"
	MessageLeave = "Likely to Leave"
)

var (
	predictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "churnguard_predictions_total",
		Help: "Total number of predictions served, by label.",
	}, []string{"label"})
	predictionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "churnguard_prediction_failures_total",
		Help: "Total number of rejected or failed predictions, by reason.",
	}, []string{"reason"})
	predictionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "churnguard_prediction_duration_seconds",
		Help:    "Duration of a single prediction.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})
)

// Result is the answer returned for one payload.
type Result struct {
	Label   int    `json:"prediction"`
	Message string `json:"message"`
}

// Service wraps a loaded model. It holds no per-request state and is safe for
// concurrent use.
type Service struct {
	model  ml.Model
	bounds customer.Bounds
	logger *zap.Logger
}

// New returns a service for model. A nil model or one that reads more inputs
// than a record carries is a *ml.ModelUnavailableError.
func New(model ml.Model, bounds customer.Bounds, logger *zap.Logger) (*Service, error) {
	if model == nil {
		return nil, &ml.ModelUnavailableError{Err: errors.New("no model loaded")}
	}
	if w, ok := model.(ml.FeatureWidther); ok {
		if width, max := w.FeatureWidth(), len(customer.InputColumns()); width > max {
			return nil, &ml.ModelUnavailableError{Err: fmt.Errorf("model reads %d features, records carry %d", width, max)}
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{model: model, bounds: bounds, logger: logger}, nil
}

// Predict scores one payload.
func (s *Service) Predict(ctx context.Context, payload map[string]any) (Result, error) {
	start := time.Now()
	defer func() {
		predictionDuration.Observe(time.Since(start).Seconds())
	}()

	if err := ctx.Err(); err != nil {
		predictionFailures.WithLabelValues("canceled").Inc()
		return Result{}, err
	}

	record, err := customer.FromPayload(payload, s.bounds)
	if err != nil {
		predictionFailures.WithLabelValues("invalid_input").Inc()
		return Result{}, err
	}

	label, confidence, err := s.model.Predict(record.Vector())
	if err != nil {
		predictionFailures.WithLabelValues("model").Inc()
		return Result{}, fmt.Errorf("model predict: %w", err)
	}
	message, err := MessageFor(label)
	if err != nil {
		predictionFailures.WithLabelValues("model").Inc()
		return Result{}, err
	}

	predictionsTotal.WithLabelValues(fmt.Sprint(label)).Inc()
	s.logger.Debug("prediction served",
		zap.Int("label", label),
		zap.Float64("confidence", confidence),
		zap.Int("tenure", record.Tenure),
		zap.Int("contract", record.Contract))

	return Result{Label: label, Message: message}, nil
}

// MessageFor maps a label to its human-readable message.
func MessageFor(label int) (string, error) {
	switch label {
	case LabelLeave:
		return MessageLeave, nil
	case LabelStay:
		return MessageStay, nil
	default:
		return "", fmt.Errorf("model returned label %d outside {0, 1}", label)
	}
}

// LabelFromMessage recovers the label implied by a message.
func LabelFromMessage(message string) (int, bool) {
	switch {
	case strings.Contains(message, "Leave"):
		return LabelLeave, true
	case strings.Contains(message, "Stay"):
		return LabelStay, true
	default:
		return 0, false
	}
}
