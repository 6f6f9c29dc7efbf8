package sandbox

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/drshumard/bookingflow/middleware"
	"github.com/drshumard/bookingflow/models"
	"github.com/drshumard/bookingflow/utils"
)

// stealHeader lets a test or demo mark the requested slot taken right before
// the booking is processed, forcing the lost-race answer on demand.
const stealHeader = "X-Sandbox-Steal"

// maxWindowDays caps how far ahead one availability request may reach.
const maxWindowDays = 60

var bookingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "booking_attempts_total",
	Help: "Booking attempts by outcome.",
}, []string{"outcome"})

// Handler serves the fake portal endpoints.
type Handler struct {
	inv          *Inventory
	logger       *zap.Logger
	defaultDays  int
	journeyToken string

	keysMu   sync.Mutex
	seenKeys map[string]bool
}

// NewHandler wires the endpoints around an inventory. journeyToken guards
// the journey group when non-empty.
func NewHandler(inv *Inventory, defaultDays int, journeyToken string, logger *zap.Logger) *Handler {
	if defaultDays <= 0 {
		defaultDays = 14
	}
	return &Handler{
		inv:          inv,
		logger:       logger,
		defaultDays:  defaultDays,
		journeyToken: journeyToken,
		seenKeys:     make(map[string]bool),
	}
}

// GetAvailability answers GET /api/booking/availability.
func (h *Handler) GetAvailability(c *gin.Context) {
	startDate := c.Query("start_date")
	days := h.defaultDays
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			utils.JSONError(c, http.StatusUnprocessableEntity, "days must be a positive integer")
			return
		}
		days = parsed
	}
	if days > maxWindowDays {
		days = maxWindowDays
	}

	slots := h.inv.Available(startDate, days)
	c.JSON(http.StatusOK, models.AvailabilityResponse{
		Slots:                 slots,
		DatesWithAvailability: datesOf(slots),
	})
}

// GetDayAvailability answers GET /api/booking/availability/:date.
func (h *Handler) GetDayAvailability(c *gin.Context) {
	date := c.Param("date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		utils.JSONError(c, http.StatusUnprocessableEntity, "date must look like 2006-01-02")
		return
	}
	slots := h.inv.Available(date, 1)
	c.JSON(http.StatusOK, models.AvailabilityResponse{
		Slots:                 slots,
		DatesWithAvailability: datesOf(slots),
	})
}

// Book answers POST /api/booking/book.
func (h *Handler) Book(c *gin.Context) {
	var req models.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bookingsTotal.WithLabelValues("rejected").Inc()
		utils.JSONError(c, http.StatusUnprocessableEntity, "invalid booking payload")
		return
	}
	if req.FirstName == "" || req.LastName == "" || req.Email == "" ||
		req.ConsultantID == "" || req.SlotStartTime.IsZero() {
		bookingsTotal.WithLabelValues("rejected").Inc()
		utils.JSONError(c, http.StatusUnprocessableEntity, "first name, last name, email and slot are required")
		return
	}

	if c.GetHeader(stealHeader) != "" {
		h.inv.Steal(req.SlotStartTime, req.ConsultantID)
	}

	result, err := h.inv.Book(req)
	if err != nil {
		var unavailable *models.SlotUnavailableError
		if errors.As(err, &unavailable) {
			bookingsTotal.WithLabelValues("conflict").Inc()
			h.logger.Info("booking lost slot race",
				zap.String("correlation_id", middleware.CorrelationID(c)),
				zap.Time("slot_start", req.SlotStartTime))
			utils.JSONError(c, http.StatusConflict, unavailable.Detail)
			return
		}
		bookingsTotal.WithLabelValues("rejected").Inc()
		utils.JSONError(c, http.StatusInternalServerError, "could not process booking")
		return
	}

	bookingsTotal.WithLabelValues("confirmed").Inc()
	h.logger.Info("sandbox booking confirmed",
		zap.String("correlation_id", middleware.CorrelationID(c)),
		zap.String("session_id", result.SessionID),
		zap.Bool("is_new_client", result.IsNewClient))
	c.JSON(http.StatusOK, result)
}

type completeTaskRequest struct {
	TaskID    string `json:"task_id" binding:"required"`
	Step      int    `json:"step" binding:"required"`
	SessionID string `json:"session_id"`
}

// CompleteTask answers POST /api/journey/complete-task. Deliveries dedupe on
// the Idempotency-Key header: a retried completion advances nothing twice.
func (h *Handler) CompleteTask(c *gin.Context) {
	if h.journeyToken != "" && c.GetHeader("Authorization") != "Bearer "+h.journeyToken {
		utils.JSONError(c, http.StatusUnauthorized, "missing or invalid bearer token")
		return
	}

	key := c.GetHeader("Idempotency-Key")
	if key == "" {
		utils.JSONError(c, http.StatusBadRequest, "Idempotency-Key header is required")
		return
	}

	var req completeTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusUnprocessableEntity, "invalid completion payload")
		return
	}

	h.keysMu.Lock()
	seen := h.seenKeys[key]
	h.seenKeys[key] = true
	h.keysMu.Unlock()

	if seen {
		h.logger.Debug("duplicate journey completion ignored", zap.String("key", key))
	} else {
		h.logger.Info("journey task completed",
			zap.String("task_id", req.TaskID),
			zap.Int("step", req.Step),
			zap.String("session_id", req.SessionID))
	}
	c.Status(http.StatusNoContent)
}

// Health answers GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "booking sandbox ready"})
}

func datesOf(slots []models.Slot) []string {
	var dates []string
	var last string
	for _, slot := range slots {
		key := utils.DateKeyUTC(slot.StartTime)
		if key != last {
			dates = append(dates, key)
			last = key
		}
	}
	return dates
}
