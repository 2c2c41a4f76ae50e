package api

import (
	"net/http"
	"time"

	"github.com/allsmog/zkcp-go/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RouterConfig controls the middleware stack around the handlers
type RouterConfig struct {
	RateLimit      int           // Requests per minute per client; 0 disables
	RequestTimeout time.Duration // Per-request deadline; 0 disables
	CORS           bool          // Permissive CORS headers for development
}

// Router is the gateway's HTTP handler plus the resources it owns
type Router struct {
	chi.Router
	limiter *middleware.RateLimiter
}

// Close stops background work started by the middleware
func (rt *Router) Close() {
	if rt.limiter != nil {
		rt.limiter.Stop()
	}
}

// NewRouter mounts the handlers on a chi router
func NewRouter(h *Handlers, logger *zap.Logger, config RouterConfig) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	rt := &Router{Router: r}

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))
	if config.RequestTimeout > 0 {
		r.Use(chimw.Timeout(config.RequestTimeout))
	}
	if config.RateLimit > 0 {
		rt.limiter = middleware.NewRateLimiter(config.RateLimit, time.Minute)
		r.Use(rt.limiter.Handler)
	}
	if config.CORS {
		r.Use(middleware.CORS)
	}

	r.Get("/health", h.Health)
	r.Get("/params", h.Params)

	r.Post("/register", h.Register)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/challenge", h.IssueChallenge)
		r.Post("/verify", h.Verify)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Get("/stats", h.Stats)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.respond(w, r, http.StatusNotFound, ErrorResponse{Error: "no such endpoint"})
	})

	return rt
}
