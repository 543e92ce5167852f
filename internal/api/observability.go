package api

import (
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"agent-arena/internal/bridge"
	"agent-arena/internal/game"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics with bounded cardinality (no per-agent labels)
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_tick_duration_seconds",
		Help:    "Time spent in one simulation tick",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
	})

	entityCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arena_entities",
		Help: "Entities in the world by kind",
	}, []string{"kind"}) // character, bullet, obstacle, loot

	eventLogTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_event_log_total",
		Help: "Total events logged",
	})

	eventLogDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_event_log_dropped_total",
		Help: "Events dropped by rate limiting or a full buffer",
	})

	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // rate_limit, origin, ws_total_limit, ws_ip_limit, auth

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arena_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "code"})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_websocket_frames_total",
		Help: "Total WebSocket frames queued",
	})

	wsFramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_websocket_frames_dropped_total",
		Help: "Frames dropped because a connection's send queue was full",
	})

	bridgeCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_bridge_commands_total",
		Help: "Agent commands processed by tool",
	}, []string{"tool", "applied"})
)

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string
	AllowExternal bool
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
}

// DefaultObservabilityConfig returns safe defaults
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// DebugMux serves pprof, Prometheus metrics and a health check.
func DebugMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// StartDebugServer starts the internal observability server. Unless
// AllowExternal is set it only binds to loopback.
func StartDebugServer(cfg ObservabilityConfig) *http.Server {
	if !cfg.Enabled {
		log.Println("📊 Debug server disabled")
		return nil
	}

	if !cfg.AllowExternal && !isLoopback(cfg.ListenAddr) {
		log.Printf("⚠️ Debug server address %s is not loopback, forcing 127.0.0.1:6060", cfg.ListenAddr)
		cfg.ListenAddr = "127.0.0.1:6060"
	}

	var handler http.Handler = DebugMux()
	if cfg.BasicAuthUser != "" {
		handler = basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, handler)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("📊 Debug server starting on %s", cfg.ListenAddr)
		log.Printf("   - pprof:   http://%s/debug/pprof/", cfg.ListenAddr)
		log.Printf("   - metrics: http://%s/metrics", cfg.ListenAddr)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()
	return srv
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// basicAuthMiddleware adds basic authentication to the handler
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// metricsRecorder turns engine ticks into metric samples. Event log
// totals are cumulative, so it tracks the last value to add deltas.
type metricsRecorder struct {
	lastEvents  uint64
	lastDropped uint64
}

// RecordTick records one tick's duration and entity counts.
func (m *metricsRecorder) RecordTick(s *game.Snapshot, d time.Duration) {
	tickDuration.Observe(d.Seconds())
	entityCount.WithLabelValues("character").Set(float64(len(s.Players)))
	entityCount.WithLabelValues("bullet").Set(float64(len(s.Bullets)))
	entityCount.WithLabelValues("obstacle").Set(float64(len(s.Obstacles)))
	entityCount.WithLabelValues("loot").Set(float64(len(s.Loot)))
}

// UpdateEventLogStats adds the growth of the event log counters since the
// last call.
func (m *metricsRecorder) UpdateEventLogStats(total, dropped uint64) {
	if total > m.lastEvents {
		eventLogTotal.Add(float64(total - m.lastEvents))
	}
	if dropped > m.lastDropped {
		eventLogDropped.Add(float64(dropped - m.lastDropped))
	}
	m.lastEvents, m.lastDropped = total, dropped
}

// RecordConnectionRejected increments the rejection counter
// reason must be one of: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit", "auth"
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics. route is the chi pattern,
// never the raw path.
func RecordRequest(method, route string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, route).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// RecordBridgeCommand counts one processed agent command.
func RecordBridgeCommand(tool bridge.ToolType, applied bool) {
	name := string(tool)
	if name == "" {
		name = "unknown"
	}
	bridgeCommands.WithLabelValues(name, strconv.FormatBool(applied)).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSFrames increments the queued frame counter
func IncrementWSFrames() {
	wsFramesTotal.Inc()
}

// RecordFrameDropped counts a frame evicted from a full send queue.
func RecordFrameDropped() {
	wsFramesDropped.Inc()
}
