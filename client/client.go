// Package client talks to the inference server and records the answers in
// the prediction history.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"churnguard/customer"
	"churnguard/history"
	"churnguard/inference"
)

const predictPath = "/predict"

// Predictor is anything that scores a payload, remote or in-process.
type Predictor interface {
	Predict(ctx context.Context, payload map[string]any) (inference.Result, error)
}

// UnreachableServiceError covers transport failures, timeouts and 5xx
// replies from the inference server.
type UnreachableServiceError struct {
	URL    string
	Status int
	Err    error
}

func (e *UnreachableServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("inference service %s unavailable: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("inference service %s unreachable: %v", e.URL, e.Err)
}

func (e *UnreachableServiceError) Unwrap() error {
	return e.Err
}

// Client is an HTTP Predictor.
type Client struct {
	url  string
	http *http.Client
}

// New returns a client for the server at baseURL. Every call is bounded by
// timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		url:  strings.TrimRight(baseURL, "/") + predictPath,
		http: &http.Client{Timeout: timeout},
	}
}

type errorReply struct {
	Error string `json:"error"`
	Field string `json:"field"`
}

func (c *Client) Predict(ctx context.Context, payload map[string]any) (inference.Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return inference.Result{}, &customer.InvalidInputError{Reason: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return inference.Result{}, &UnreachableServiceError{URL: c.url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return inference.Result{}, &UnreachableServiceError{URL: c.url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return inference.Result{}, &UnreachableServiceError{URL: c.url, Status: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest:
		var reply errorReply
		if err := json.Unmarshal(data, &reply); err != nil || reply.Error == "" {
			reply.Error = strings.TrimSpace(string(data))
		}
		return inference.Result{}, &customer.InvalidInputError{Field: reply.Field, Reason: reply.Error}
	case resp.StatusCode >= 500:
		return inference.Result{}, &UnreachableServiceError{URL: c.url, Status: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(data)))}
	default:
		return inference.Result{}, fmt.Errorf("inference service %s: unexpected status %d", c.url, resp.StatusCode)
	}

	var result inference.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return inference.Result{}, fmt.Errorf("decode inference reply: %w", err)
	}
	if err := checkResult(result); err != nil {
		return inference.Result{}, err
	}
	return result, nil
}

// checkResult rejects replies whose label is not binary or whose message
// names the other class.
func checkResult(r inference.Result) error {
	want, err := inference.MessageFor(r.Label)
	if err != nil {
		return fmt.Errorf("inference reply: %w", err)
	}
	if label, ok := inference.LabelFromMessage(r.Message); !ok || label != r.Label {
		return fmt.Errorf("inference reply: message %q does not match label %d (want %q)", r.Message, r.Label, want)
	}
	return nil
}

// PredictAndRecord scores record and appends it with its label. Nothing is
// appended when prediction fails.
func PredictAndRecord(ctx context.Context, p Predictor, store history.Store, record customer.Record) (inference.Result, error) {
	result, err := p.Predict(ctx, record.Payload())
	if err != nil {
		return inference.Result{}, err
	}
	if err := store.Append(ctx, record.WithPrediction(result.Label)); err != nil {
		return inference.Result{}, err
	}
	return result, nil
}
