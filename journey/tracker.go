// Package journey reports finished onboarding tasks to the wellness-journey
// backend so the patient's step tracker advances without polling.
package journey

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/drshumard/bookingflow/models"
	"github.com/drshumard/bookingflow/utils"
)

const (
	idempotencyHeader = "Idempotency-Key"

	defaultTimeout = 15 * time.Second
	defaultRetries = 2
	backoffBase    = 1 * time.Second
	backoffCap     = 10 * time.Second
)

// TrackerConfig carries the journey backend settings. Steps maps task ids to
// tracker step ordinals; the mapping is data, not code, so reordering the
// journey page never needs a client release.
type TrackerConfig struct {
	BaseURL string
	Token   string
	Steps   map[string]int
	Retries int
}

// Tracker delivers task completions at least once. The receiver dedupes on
// the idempotency key, so a retried delivery can never advance the tracker
// twice.
type Tracker struct {
	baseURL     string
	token       string
	steps       map[string]int
	retries     uint64
	backoffBase time.Duration
	httpClient  *http.Client
	logger      *zap.Logger
}

type completeTaskRequest struct {
	TaskID         string `json:"task_id"`
	Step           int    `json:"step"`
	SessionID      string `json:"session_id"`
	ClientRecordID string `json:"client_record_id"`
	IsNewClient    bool   `json:"is_new_client"`
}

// NewTracker builds a journey tracker client. A zero-value Retries falls
// back to the standard two.
func NewTracker(cfg TrackerConfig, logger *zap.Logger) *Tracker {
	retries := cfg.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	steps := make(map[string]int, len(cfg.Steps))
	for task, step := range cfg.Steps {
		steps[task] = step
	}
	return &Tracker{
		baseURL:     cfg.BaseURL,
		token:       cfg.Token,
		steps:       steps,
		retries:     uint64(retries),
		backoffBase: backoffBase,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
}

// TaskCompleted posts one finished task, keyed by the booking session id.
// Transient failures are retried; a task missing from the step table is a
// configuration error and fails immediately.
func (t *Tracker) TaskCompleted(ctx context.Context, taskID string, result models.BookingResult) error {
	step, ok := t.steps[taskID]
	if !ok {
		return fmt.Errorf("journey task %q has no step mapping", taskID)
	}

	payload, err := json.Marshal(completeTaskRequest{
		TaskID:         taskID,
		Step:           step,
		SessionID:      result.SessionID,
		ClientRecordID: result.ClientRecordID,
		IsNewClient:    result.IsNewClient,
	})
	if err != nil {
		return fmt.Errorf("encode complete-task request: %w", err)
	}

	url := t.baseURL + "/api/journey/complete-task"

	b := retry.NewExponential(t.backoffBase)
	b = retry.WithCappedDuration(backoffCap, b)
	b = retry.WithMaxRetries(t.retries, b)

	err = retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create complete-task request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(utils.CorrelationHeader, utils.NewCorrelationID())
		req.Header.Set(idempotencyHeader, result.SessionID)
		if t.token != "" {
			req.Header.Set("Authorization", "Bearer "+t.token)
		}

		resp, err := t.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("post complete-task: %w", err))
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
			return nil
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("journey backend returned %d", resp.StatusCode))
		default:
			return fmt.Errorf("journey backend rejected completion with %d", resp.StatusCode)
		}
	})
	if err != nil {
		return err
	}

	t.logger.Info("journey step advanced",
		zap.String("task_id", taskID),
		zap.Int("step", step),
		zap.String("session_id", result.SessionID))
	return nil
}
