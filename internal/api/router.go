package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nikhilbhutani/studywise/internal/api/handlers"
	"github.com/nikhilbhutani/studywise/internal/api/middleware"
	"github.com/nikhilbhutani/studywise/internal/auth"
	"github.com/nikhilbhutani/studywise/internal/config"
	"github.com/nikhilbhutani/studywise/internal/logger"
	"github.com/nikhilbhutani/studywise/internal/metrics"
)

// Dependencies are constructed once in cmd/api and injected.
type Dependencies struct {
	Config    *config.Config
	Log       *logger.Logger
	Documents handlers.DocumentService
	Chat      handlers.ChatService
	Checks    map[string]handlers.CheckFunc
	// Gatherer serves /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

type Router struct {
	mux  *chi.Mux
	deps Dependencies
	jwt  *auth.JWTMiddleware
	rl   *middleware.RateLimiter
}

func NewRouter(deps Dependencies) *Router {
	return &Router{
		mux:  chi.NewRouter(),
		deps: deps,
		jwt:  auth.NewJWTMiddleware(deps.Config.Auth.JWTSecret),
		rl:   middleware.NewRateLimiter(deps.Config.Server.RateLimitPerSecond, deps.Config.Server.RateLimitBurst),
	}
}

// Close stops background work owned by the router.
func (rt *Router) Close() {
	rt.rl.Stop()
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux
	cfg := rt.deps.Config

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(rt.deps.Log, cfg.Server.SlowRequestThreshold))
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.Middleware())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(rt.rl.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.deps.Checks)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	gatherer := rt.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)

		docH := handlers.NewDocumentHandler(rt.deps.Documents)
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", docH.Upload)
			r.Get("/{id}", docH.Get)
			r.Delete("/{id}", docH.Delete)
			r.Post("/{id}/reingest", docH.ReIngest)
		})

		chatH := handlers.NewChatHandler(rt.deps.Chat)
		r.Route("/chapters/{chapterID}", func(r chi.Router) {
			r.Get("/documents", docH.ListByChapter)
			r.Post("/chat", chatH.Ask)
			r.Get("/chat/messages", chatH.Messages)
		})
	})

	return r
}
