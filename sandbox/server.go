package sandbox

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drshumard/bookingflow/middleware"
	"github.com/drshumard/bookingflow/utils"
)

// RouterConfig carries the assembly knobs for the sandbox server.
type RouterConfig struct {
	MaxRequestsPerMin int
	AllowedOrigins    []string // extra browser origins beside the React dev servers
}

// Router assembles the sandbox gin engine: recovery, correlation echo, rate
// limiting, metrics and CORS around the booking and journey groups.
func Router(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(utils.ErrorHandler())
	r.Use(middleware.CorrelationMiddleware())
	r.Use(middleware.RateLimitMiddleware(cfg.MaxRequestsPerMin))
	r.Use(middleware.MetricsMiddleware())

	origins := []string{"http://localhost:3000", "http://localhost:5173"}
	origins = append(origins, cfg.AllowedOrigins...)
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", utils.CorrelationHeader, "Idempotency-Key", stealHeader},
		ExposeHeaders:    []string{"Content-Length", utils.CorrelationHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	booking := r.Group("/api/booking")
	{
		booking.GET("/availability", h.GetAvailability)
		booking.GET("/availability/:date", h.GetDayAvailability)
		booking.POST("/book", h.Book)
	}

	journey := r.Group("/api/journey")
	{
		journey.POST("/complete-task", h.CompleteTask)
	}

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// Server bundles a seeded inventory with a ready-to-serve engine.
type Server struct {
	Inventory *Inventory
	Engine    *gin.Engine
}

// New builds a seeded sandbox. days controls both the seeded schedule span
// and the default availability window.
func New(days int, journeyToken string, cfg RouterConfig) *Server {
	logger := utils.GetLogger().Named("sandbox")
	inv := NewInventory(nil)
	inv.Seed(days)
	h := NewHandler(inv, days, journeyToken, logger)
	return &Server{
		Inventory: inv,
		Engine:    Router(h, cfg),
	}
}

// Handler exposes the engine as an http.Handler for embedding in tests and
// the demo binary.
func (s *Server) Handler() http.Handler {
	return s.Engine
}
