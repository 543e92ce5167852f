package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"agent-arena/internal/bridge"
	"agent-arena/internal/game"
	"agent-arena/internal/observability"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ServerConfig gathers the HTTP surface settings.
type ServerConfig struct {
	Addr        string
	RateLimit   RateLimitConfig
	CORSOrigins []string
	Hub         HubConfig
	JWTSecret   string
	Logging     bool
}

// Server is the HTTP API server with WebSocket support.
type Server struct {
	engine      *game.Engine
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	metrics     *metricsRecorder
	httpServer  *http.Server
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewServer wires the router, hub and metrics around engine and br.
// Background workers do not start until Start is called.
func NewServer(engine *game.Engine, br *bridge.Bridge, cfg ServerConfig) *Server {
	s := &Server{
		engine:      engine,
		wsHub:       NewWebSocketHub(engine, cfg.Hub),
		rateLimiter: NewIPRateLimiter(cfg.RateLimit),
		metrics:     &metricsRecorder{},
	}

	s.router = NewRouter(RouterConfig{
		Engine:         engine,
		Bridge:         br,
		RateLimiter:    s.rateLimiter,
		CORSOrigins:    cfg.CORSOrigins,
		Auth:           NewTokenAuth(cfg.JWTSecret),
		Process:        observability.NewProcessSampler(2 * time.Second),
		DisableLogging: !cfg.Logging,
		clients:        s.wsHub,
	})
	s.router.Get("/ws", s.wsHub.HandleWebSocket)

	engine.OnTick(s.recordTick)
	br.OnCommand(RecordBridgeCommand)

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if cfg.JWTSecret != "" {
		log.Println("🔐 Agent API requires bearer tokens")
	}
	return s
}

func (s *Server) recordTick(snap *game.Snapshot, d time.Duration) {
	s.metrics.RecordTick(snap, d)
	if snap.Tick%40 == 0 {
		s.metrics.UpdateEventLogStats(s.engine.EventLogCounts())
	}
}

// Handler returns the instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "arena-api",
		otelhttp.WithFilter(func(r *http.Request) bool { return r.URL.Path != "/ws" }),
	)
}

// Router returns the bare router for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub exposes the WebSocket hub.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Start runs the broadcast loop and serves HTTP until Shutdown. It returns
// nil after a clean shutdown.
func (s *Server) Start() error {
	go s.wsHub.Run(s.ctx)

	log.Printf("🌐 API server starting on %s", s.httpServer.Addr)
	log.Printf("🔌 Live clients: ws://%s/ws", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown disconnects clients, stops background workers and drains
// in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsHub.Close("server shutting down")
	s.cancel()
	s.rateLimiter.Stop()
	return s.httpServer.Shutdown(ctx)
}
