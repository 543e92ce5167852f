package api

import (
	"net/http"
	"time"

	"agent-arena/internal/bridge"
	"agent-arena/internal/catalog"
	"agent-arena/internal/game"
	"agent-arena/internal/observability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// EngineInterface defines the engine methods used by the API.
// Keep this minimal - only include methods the API layer actually calls.
type EngineInterface interface {
	Stats() game.EngineStats
	Running() bool
	WorldSize() (width, height float64)
	Leaderboard(n int) []game.LeaderboardEntry
	Catalog() *catalog.Catalog
}

// AgentBridge is the agent command surface.
type AgentBridge interface {
	Register(agentID, username string) (bridge.Registration, error)
	Command(agentID string, action bridge.Action) (bridge.CommandResult, error)
	State(agentID string) (*bridge.AgentState, error)
	Remove(agentID string) error
	Agents() int
}

// clientCounter reports live WebSocket connections for the status page.
type clientCounter interface {
	ClientCount() int
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	router := api.NewRouter(api.RouterConfig{
//	    Engine: engine,
//	    Bridge: br,
//	    RateLimitConfig: &api.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Engine and Bridge are required
	Engine EngineInterface
	Bridge AgentBridge

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is only used if RateLimiter is nil. If both are nil,
	// uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	CORSOrigins []string

	// Auth guards /api/agent/* when non-nil.
	Auth *TokenAuth

	Process *observability.ProcessSampler

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool

	clients clientCounter
}

// routerHandlers holds the handler dependencies.
type routerHandlers struct {
	engine  EngineInterface
	bridge  AgentBridge
	process *observability.ProcessSampler
	clients clientCounter
	auth    *TokenAuth
}

// NewRouter constructs the HTTP router with all middleware and routes.
// It has no side effects beyond creating the rate limiter when one is not
// supplied, which makes it safe to use with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)

	// Rate limiting before CORS to reject early
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := &routerHandlers{
		engine:  cfg.Engine,
		bridge:  cfg.Bridge,
		process: cfg.Process,
		clients: cfg.clients,
		auth:    cfg.Auth,
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.handleStatus)
		r.Get("/leaderboard", h.handleLeaderboard)

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/weapons", h.handleWeapons)
			r.Get("/obstacles", h.handleObstacles)
		})

		r.Route("/agent", func(r chi.Router) {
			if cfg.Auth != nil {
				r.Use(cfg.Auth.Middleware)
			}
			r.Post("/register", h.handleAgentRegister)
			r.Post("/command", h.handleAgentCommand)
			r.Get("/state/{agentID}", h.handleAgentState)
			r.Delete("/{agentID}", h.handleAgentRemove)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	return r
}

// requestMetrics records latency and status per route pattern.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, route, status, time.Since(start))
	})
}
