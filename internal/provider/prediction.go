package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/pkg/logger"
)

// PredictionStatus is the lifecycle state of an async prediction.
type PredictionStatus string

const (
	PredictionStarting   PredictionStatus = "starting"
	PredictionProcessing PredictionStatus = "processing"
	PredictionSucceeded  PredictionStatus = "succeeded"
	PredictionFailed     PredictionStatus = "failed"
	PredictionCanceled   PredictionStatus = "canceled"
)

// Terminal reports whether the prediction will not change again.
func (s PredictionStatus) Terminal() bool {
	switch s {
	case PredictionSucceeded, PredictionFailed, PredictionCanceled:
		return true
	default:
		return false
	}
}

const (
	defaultPollInterval = 2 * time.Second
	defaultPollTimeout  = 90 * time.Second
)

// Prediction mirrors the provider's prediction object.
type Prediction struct {
	ID     string           `json:"id"`
	Status PredictionStatus `json:"status"`
	Output json.RawMessage  `json:"output,omitempty"`
	Error  json.RawMessage  `json:"error,omitempty"`
}

// OutputURL extracts the first URL from the output, which is either a
// string or a list of strings.
func (p Prediction) OutputURL() string {
	if len(p.Output) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil {
		return single
	}
	var list []string
	if err := json.Unmarshal(p.Output, &list); err == nil {
		for _, u := range list {
			if u != "" {
				return u
			}
		}
	}
	return ""
}

// FailureMessage returns the provider's error text, if any.
func (p Prediction) FailureMessage() string {
	if len(p.Error) == 0 || string(p.Error) == "null" {
		return string(p.Status)
	}
	var s string
	if err := json.Unmarshal(p.Error, &s); err == nil {
		return s
	}
	return string(p.Error)
}

// PredictionClient creates and polls async predictions.
type PredictionClient struct {
	api          *apiClient
	pollInterval time.Duration
	pollTimeout  time.Duration
}

func NewPredictionClient(api APIConfig, pollInterval, pollTimeout time.Duration, opts ...Option) *PredictionClient {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	return &PredictionClient{
		api:          newAPIClient(api, opts...),
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
	}
}

// Configured reports whether the client has credentials.
func (c *PredictionClient) Configured() bool {
	return c != nil && c.api.configured()
}

// Create starts a prediction. model is either "owner/name" (latest
// version), "owner/name:version" or a bare version ID.
func (c *PredictionClient) Create(ctx context.Context, model string, input map[string]any) (Prediction, error) {
	path := "predictions"
	body := map[string]any{"input": input}
	switch {
	case strings.Contains(model, ":"):
		body["version"] = model[strings.LastIndex(model, ":")+1:]
	case strings.Contains(model, "/"):
		path = "models/" + model + "/predictions"
	default:
		body["version"] = model
	}
	var p Prediction
	if err := c.api.doJSON(ctx, http.MethodPost, path, body, &p); err != nil {
		return Prediction{}, classify(err)
	}
	if p.ID == "" {
		return Prediction{}, fmt.Errorf("%w: prediction without id", ErrProvider)
	}
	return p, nil
}

// Get fetches the current state of a prediction.
func (c *PredictionClient) Get(ctx context.Context, id string) (Prediction, error) {
	if !ValidID(id) {
		return Prediction{}, invalid("predictionId", "is malformed")
	}
	var p Prediction
	if err := c.api.doJSON(ctx, http.MethodGet, "predictions/"+id, nil, &p); err != nil {
		return Prediction{}, classify(err)
	}
	return p, nil
}

// Wait polls until the prediction is terminal or the poll budget is
// spent. On budget exhaustion the last seen state is returned without
// error; callers check Status.Terminal().
func (c *PredictionClient) Wait(ctx context.Context, p Prediction) (Prediction, error) {
	deadline := c.api.now().Add(c.pollTimeout)
	for !p.Status.Terminal() {
		if !c.api.now().Before(deadline) {
			logger.Info("prediction still running after poll budget",
				zap.String("prediction_id", p.ID),
				zap.String("status", string(p.Status)),
			)
			if p.Status == PredictionStarting || p.Status == "" {
				p.Status = PredictionProcessing
			}
			return p, nil
		}
		if err := c.api.sleeper(ctx, c.pollInterval); err != nil {
			return p, classify(err)
		}
		next, err := c.Get(ctx, p.ID)
		if err != nil {
			return p, err
		}
		p = next
	}
	return p, nil
}
