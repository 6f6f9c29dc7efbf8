package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/drshumard/bookingflow/models"
	"github.com/drshumard/bookingflow/utils"
)

// newTestClient points a client at the test server with retry delays shrunk
// so exhaustion tests finish in milliseconds.
func newTestClient(t *testing.T, baseURL string, retries int) *Client {
	t.Helper()
	c := NewClient(ClientConfig{
		BaseURL:     baseURL,
		BearerToken: "portal-token",
		Timeout:     2 * time.Second,
		Retries:     retries,
	}, zap.NewNop())
	c.backoffBase = time.Millisecond
	c.backoffCap = 5 * time.Millisecond
	return c
}

type attemptLog struct {
	mu           sync.Mutex
	count        int
	correlations []string
}

func (a *attemptLog) record(r *http.Request) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.count++
	a.correlations = append(a.correlations, r.Header.Get(utils.CorrelationHeader))
	return a.count
}

func (a *attemptLog) attempts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

func TestFetchAvailabilityDecodesWindow(t *testing.T) {
	start := time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/booking/availability", r.URL.Path)
		require.Equal(t, "2026-03-10", r.URL.Query().Get("start_date"))
		require.Equal(t, "14", r.URL.Query().Get("days"))
		require.Equal(t, "Bearer portal-token", r.Header.Get("Authorization"))
		require.Len(t, r.Header.Get(utils.CorrelationHeader), 8)

		json.NewEncoder(w).Encode(models.AvailabilityResponse{
			Slots: []models.Slot{
				{StartTime: start, ConsultantID: "c-101"},
				{StartTime: start.Add(time.Hour), ConsultantID: "c-102"},
			},
			DatesWithAvailability: []string{"2026-03-10"},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	resp, err := c.FetchAvailability(context.Background(), "2026-03-10", 14)
	require.NoError(t, err)
	require.Len(t, resp.Slots, 2)
	require.True(t, resp.Slots[0].StartTime.Equal(start))
	require.Equal(t, "c-101", resp.Slots[0].ConsultantID)
	require.Equal(t, []string{"2026-03-10"}, resp.DatesWithAvailability)
}

func TestFetchAvailabilityReadsVendorTimestamps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"slots": [
				{"start_time": "2026-03-10T09:00:00-07:00", "consultant_id": "c-101"},
				{"start_time": "2026-03-10T16:00:00Z", "consultant_id": "c-102"},
				{"start_time": "2026-03-10T09:30:00", "consultant_id": "c-101"}
			],
			"dates_with_availability": ["2026-03-10"]
		}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Timezone: "America/Los_Angeles"}, zap.NewNop())
	resp, err := c.FetchAvailability(context.Background(), "2026-03-10", 14)
	require.NoError(t, err)
	require.Len(t, resp.Slots, 3)

	// March 10 is PDT, so clinic-local 9:00 and naive 9:30 land on 16:00Z
	// and 16:30Z.
	require.True(t, resp.Slots[0].StartTime.Equal(time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC)))
	require.True(t, resp.Slots[1].StartTime.Equal(time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC)))
	require.True(t, resp.Slots[2].StartTime.Equal(time.Date(2026, 3, 10, 16, 30, 0, 0, time.UTC)))
}

func TestFetchAvailabilityRejectsMalformedTimestamp(t *testing.T) {
	var attempts attemptLog
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.record(r)
		w.Write([]byte(`{"slots": [{"start_time": "next tuesday", "consultant_id": "c-101"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	_, err := c.FetchAvailability(context.Background(), "2026-03-10", 14)
	require.Error(t, err)

	var fetchErr *models.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, "unreadable availability response", fetchErr.Message)
	require.Equal(t, 3, attempts.attempts(), "an unreadable body is retried like any fetch failure")
}

func TestFetchDayAvailabilityPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/booking/availability/2026-03-11", r.URL.Path)
		json.NewEncoder(w).Encode(models.AvailabilityResponse{DatesWithAvailability: []string{"2026-03-11"}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	resp, err := c.FetchDayAvailability(context.Background(), "2026-03-11")
	require.NoError(t, err)
	require.Equal(t, []string{"2026-03-11"}, resp.DatesWithAvailability)
}

func TestFetchAvailabilityExhaustsRetries(t *testing.T) {
	var attempts attemptLog
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.record(r)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(utils.ErrorBody{Detail: "portal exploded"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	_, err := c.FetchAvailability(context.Background(), "2026-03-10", 14)
	require.Error(t, err)

	var fetchErr *models.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, "portal exploded", fetchErr.Message)
	require.Equal(t, 3, attempts.attempts(), "one try plus two retries")

	// Every attempt is tagged with its own correlation id.
	attempts.mu.Lock()
	defer attempts.mu.Unlock()
	seen := make(map[string]bool)
	for _, id := range attempts.correlations {
		require.Len(t, id, 8)
		require.False(t, seen[id], "correlation id %q reused across attempts", id)
		seen[id] = true
	}
}

func TestFetchAvailabilityRecoversAfterTransientFailure(t *testing.T) {
	var attempts attemptLog
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.record(r) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(models.AvailabilityResponse{
			Slots: []models.Slot{{StartTime: time.Now().Add(time.Hour), ConsultantID: "c-101"}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	resp, err := c.FetchAvailability(context.Background(), "2026-03-10", 14)
	require.NoError(t, err)
	require.Len(t, resp.Slots, 1)
	require.Equal(t, 2, attempts.attempts())
}

func TestClientDefaultsApplyToZeroValueConfig(t *testing.T) {
	var attempts attemptLog
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.record(r) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(models.AvailabilityResponse{DatesWithAvailability: []string{"2026-03-10"}})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL}, zap.NewNop())
	require.Equal(t, defaultTimeout, c.httpClient.Timeout)
	c.backoffBase = time.Millisecond
	c.backoffCap = 5 * time.Millisecond

	resp, err := c.FetchAvailability(context.Background(), "2026-03-10", 14)
	require.NoError(t, err)
	require.Equal(t, []string{"2026-03-10"}, resp.DatesWithAvailability)
	require.Equal(t, 3, attempts.attempts(), "zero-value config still retries twice")
}

func TestBookSessionSendsWireFormat(t *testing.T) {
	start := time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/booking/book", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req models.BookingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "Dana", req.FirstName)
		require.Equal(t, "dana@example.com", req.Email)
		require.Equal(t, "America/Los_Angeles", req.Timezone)
		require.True(t, req.SlotStartTime.Equal(start))
		require.Equal(t, "c-101", req.ConsultantID)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.BookingResult{
			SessionID:      "sess-42",
			ClientRecordID: "rec-42",
			IsNewClient:    true,
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	result, err := c.BookSession(context.Background(), models.BookingRequest{
		FirstName:     "Dana",
		LastName:      "Reyes",
		Email:         "dana@example.com",
		Timezone:      "America/Los_Angeles",
		SlotStartTime: start,
		ConsultantID:  "c-101",
	})
	require.NoError(t, err)
	require.Equal(t, "sess-42", result.SessionID)
	require.Equal(t, "rec-42", result.ClientRecordID)
	require.True(t, result.IsNewClient)
}

func TestBookSessionConflictNeverRetried(t *testing.T) {
	var attempts attemptLog
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.record(r)
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(utils.ErrorBody{Detail: "This time slot is no longer available."})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	_, err := c.BookSession(context.Background(), models.BookingRequest{ConsultantID: "c-101"})
	require.Error(t, err)

	var taken *models.SlotUnavailableError
	require.ErrorAs(t, err, &taken)
	require.Equal(t, "This time slot is no longer available.", taken.Detail)
	require.Equal(t, 1, attempts.attempts(), "a lost slot race must not be replayed")
}

func TestBookSessionServerErrorRetried(t *testing.T) {
	var attempts attemptLog
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.record(r)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	_, err := c.BookSession(context.Background(), models.BookingRequest{ConsultantID: "c-101"})
	require.Error(t, err)

	var bookErr *models.BookingError
	require.ErrorAs(t, err, &bookErr)
	require.Equal(t, http.StatusBadGateway, bookErr.StatusCode)
	require.Equal(t, 3, attempts.attempts())
}
