package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/drshumard/bookingflow/models"
	"github.com/drshumard/bookingflow/utils"
)

const (
	backoffBase = 1 * time.Second
	backoffCap  = 10 * time.Second

	defaultTimeout = 15 * time.Second
	defaultRetries = 2
)

// ClientConfig carries the connection settings for one portal.
type ClientConfig struct {
	BaseURL     string
	BearerToken string        // optional; empty for sandbox use
	Timeout     time.Duration // per attempt, body read included
	Retries     int           // extra attempts after the first
	Timezone    string        // IANA zone for slot timestamps sent without an offset
}

// Client talks to the portal booking API. Availability reads and the booking
// write share one retry policy (exponential, 1s base, 10s cap); the 409
// slot-taken answer is the one failure that is never retried.
type Client struct {
	baseURL     string
	token       string
	timezone    string
	retries     uint64
	backoffBase time.Duration
	backoffCap  time.Duration
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewClient builds a portal client. Zero-value config fields fall back to
// the standard 15s timeout and two retries; an empty Timezone reads naive
// timestamps as UTC.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		token:       cfg.BearerToken,
		timezone:    cfg.Timezone,
		retries:     uint64(retries),
		backoffBase: backoffBase,
		backoffCap:  backoffCap,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// wireSlot is a slot as the scheduling vendor serializes it. The timestamp
// arrives as a string because vendors mix offset, UTC and naive clinic-local
// forms; decodeAvailability normalizes all three.
type wireSlot struct {
	StartTime    string `json:"start_time"`
	ConsultantID string `json:"consultant_id"`
}

type wireAvailability struct {
	Slots                 []wireSlot `json:"slots"`
	DatesWithAvailability []string   `json:"dates_with_availability"`
}

// FetchAvailability loads the slot window beginning at startDate
// ("2006-01-02") spanning the given number of days.
func (c *Client) FetchAvailability(ctx context.Context, startDate string, days int) (*models.AvailabilityResponse, error) {
	url := fmt.Sprintf("%s/api/booking/availability?start_date=%s&days=%d", c.baseURL, startDate, days)
	return c.fetch(ctx, url)
}

// FetchDayAvailability loads the slots of a single date ("2006-01-02").
func (c *Client) FetchDayAvailability(ctx context.Context, date string) (*models.AvailabilityResponse, error) {
	url := fmt.Sprintf("%s/api/booking/availability/%s", c.baseURL, date)
	return c.fetch(ctx, url)
}

func (c *Client) fetch(ctx context.Context, url string) (*models.AvailabilityResponse, error) {
	var out *models.AvailabilityResponse

	err := c.withRetry(ctx, func(ctx context.Context) error {
		resp, err := c.get(ctx, url)
		if err != nil {
			return retry.RetryableError(models.NewFetchError("could not reach the booking service"))
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			detail := readDetail(resp.Body)
			if detail == "" {
				detail = fmt.Sprintf("availability request failed with status %d", resp.StatusCode)
			}
			return retry.RetryableError(models.NewFetchError(detail))
		}

		decoded, err := c.decodeAvailability(resp.Body)
		if err != nil {
			c.logger.Warn("unreadable availability response", zap.Error(err))
			return retry.RetryableError(models.NewFetchError("unreadable availability response"))
		}
		out = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// decodeAvailability reads one availability body, parsing each slot timestamp
// in the configured zone when the vendor omitted the offset.
func (c *Client) decodeAvailability(r io.Reader) (*models.AvailabilityResponse, error) {
	var decoded wireAvailability
	if err := json.NewDecoder(r).Decode(&decoded); err != nil {
		return nil, err
	}
	out := &models.AvailabilityResponse{
		Slots:                 make([]models.Slot, 0, len(decoded.Slots)),
		DatesWithAvailability: decoded.DatesWithAvailability,
	}
	for _, raw := range decoded.Slots {
		start, err := utils.ParseSlotTime(raw.StartTime, c.timezone)
		if err != nil {
			return nil, err
		}
		out.Slots = append(out.Slots, models.Slot{StartTime: start, ConsultantID: raw.ConsultantID})
	}
	return out, nil
}

// BookSession submits a reservation. A 409 comes back as
// *models.SlotUnavailableError and is returned after a single attempt; other
// failures are retried like reads.
func (c *Client) BookSession(ctx context.Context, req models.BookingRequest) (*models.BookingResult, error) {
	url := c.baseURL + "/api/booking/book"

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, models.NewBookingError(0, fmt.Sprintf("encode booking request: %v", err))
	}

	var out *models.BookingResult

	err = c.withRetry(ctx, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return models.NewBookingError(0, fmt.Sprintf("create booking request: %v", err))
		}
		correlationID := c.decorate(httpReq)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			c.logger.Warn("booking request failed",
				zap.String("correlation_id", correlationID),
				zap.Error(err))
			return retry.RetryableError(models.NewBookingError(0, "could not reach the booking service"))
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated:
			// fall through to decode
		case http.StatusConflict:
			detail := readDetail(resp.Body)
			c.logger.Info("slot already taken",
				zap.String("correlation_id", correlationID),
				zap.String("detail", detail))
			return &models.SlotUnavailableError{Detail: detail}
		default:
			detail := readDetail(resp.Body)
			if detail == "" {
				detail = "booking request rejected"
			}
			c.logger.Warn("booking rejected",
				zap.String("correlation_id", correlationID),
				zap.Int("status", resp.StatusCode))
			return retry.RetryableError(models.NewBookingError(resp.StatusCode, detail))
		}

		var decoded models.BookingResult
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return models.NewBookingError(resp.StatusCode, "unreadable booking confirmation")
		}
		out = &decoded
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("booking confirmed",
		zap.String("session_id", out.SessionID),
		zap.Bool("is_new_client", out.IsNewClient))
	return out, nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.decorate(req)
	return c.httpClient.Do(req)
}

// decorate sets the shared headers and returns the attempt's correlation id.
func (c *Client) decorate(req *http.Request) string {
	correlationID := utils.NewCorrelationID()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(utils.CorrelationHeader, correlationID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return correlationID
}

func (c *Client) withRetry(ctx context.Context, op retry.RetryFunc) error {
	b := retry.NewExponential(c.backoffBase)
	b = retry.WithCappedDuration(c.backoffCap, b)
	b = retry.WithMaxRetries(c.retries, b)
	return retry.Do(ctx, b, op)
}

// readDetail pulls the {"detail": "..."} message portal errors carry.
func readDetail(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	var e struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	return e.Detail
}
