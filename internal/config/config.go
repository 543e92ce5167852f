// Package config provides centralized configuration management.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file named by ARENA_CONFIG, then environment variables. Later layers win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	CORSOrigins    []string `yaml:"cors_origins"`
	WSOrigins      []string `yaml:"ws_origins"`
	RequestLogging bool     `yaml:"request_logging"`
	RequestsPerSec float64  `yaml:"requests_per_sec"`
	RequestBurst   int      `yaml:"request_burst"`
	MaxWSClients   int      `yaml:"max_ws_clients"`
	MaxWSPerIP     int      `yaml:"max_ws_per_ip"`
	SendQueueSize  int      `yaml:"send_queue_size"`
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:           3000,
		RequestLogging: true,
		RequestsPerSec: 50,
		RequestBurst:   100,
		MaxWSClients:   500,
		MaxWSPerIP:     10,
		SendQueueSize:  16,
	}
}

// Addr is the listen address.
func (s ServerConfig) Addr() string { return fmt.Sprintf(":%d", s.Port) }

// =============================================================================
// WORLD CONFIGURATION
// =============================================================================

// WorldConfig holds simulation settings.
type WorldConfig struct {
	Width        float64       `yaml:"width"`
	Height       float64       `yaml:"height"`
	CellSize     float64       `yaml:"cell_size"`
	TickRate     int           `yaml:"tick_rate"`
	RespawnDelay time.Duration `yaml:"respawn_delay"`
	Seed         int64         `yaml:"seed"` // 0 picks a time-based seed
	PopulateMap  bool          `yaml:"populate_map"`
	CatalogPath  string        `yaml:"catalog_path"` // empty uses the embedded catalog
	EventLogPath string        `yaml:"event_log_path"`
}

// DefaultWorld returns the default world configuration.
func DefaultWorld() WorldConfig {
	return WorldConfig{
		Width:        2000,
		Height:       1600,
		CellSize:     200,
		TickRate:     40,
		RespawnDelay: 3 * time.Second,
		PopulateMap:  true,
		EventLogPath: "events.jsonl",
	}
}

// TickInterval converts the tick rate to a duration.
func (w WorldConfig) TickInterval() time.Duration {
	if w.TickRate <= 0 {
		return 25 * time.Millisecond
	}
	return time.Second / time.Duration(w.TickRate)
}

// =============================================================================
// RESOURCE LIMITS
// =============================================================================

// LimitsConfig controls DoS protection and performance limits.
type LimitsConfig struct {
	MaxCharacters int `yaml:"max_characters"`
	MaxAgents     int `yaml:"max_agents"`
	MaxBullets    int `yaml:"max_bullets"`
	MaxLoot       int `yaml:"max_loot"`
}

// DefaultLimits returns the default resource limits.
func DefaultLimits() LimitsConfig {
	return LimitsConfig{
		MaxCharacters: 200,
		MaxAgents:     64,
		MaxBullets:    1024,
		MaxLoot:       512,
	}
}

// =============================================================================
// AGENT BRIDGE
// =============================================================================

// BridgeConfig holds agent bridge settings.
type BridgeConfig struct {
	DetectionRadius   float64       `yaml:"detection_radius"`
	CommandsPerWindow int           `yaml:"commands_per_window"`
	CommandWindow     time.Duration `yaml:"command_window"`
	CommandCooldown   time.Duration `yaml:"command_cooldown"`
}

// DefaultBridge returns the default bridge configuration.
func DefaultBridge() BridgeConfig {
	return BridgeConfig{
		DetectionRadius:   450,
		CommandsPerWindow: 40,
		CommandWindow:     time.Second,
	}
}

// =============================================================================
// AUTH & TELEMETRY
// =============================================================================

// AuthConfig holds agent API auth settings. An empty secret disables auth.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	DebugEnabled     bool    `yaml:"debug_enabled"`
	DebugAddr        string  `yaml:"debug_addr"`
	DebugExternal    bool    `yaml:"debug_external"`
	DebugUser        string  `yaml:"debug_user"`
	DebugPass        string  `yaml:"debug_pass"`
	OTLPEndpoint     string  `yaml:"otlp_endpoint"`
	OTLPInsecure     bool    `yaml:"otlp_insecure"`
	ServiceName      string  `yaml:"service_name"`
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// DefaultTelemetry returns the default telemetry configuration.
func DefaultTelemetry() TelemetryConfig {
	return TelemetryConfig{
		DebugEnabled:     true,
		DebugAddr:        "127.0.0.1:6060",
		OTLPInsecure:     true,
		ServiceName:      "agent-arena",
		TraceSampleRatio: 1,
	}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	World     WorldConfig     `yaml:"world"`
	Limits    LimitsConfig    `yaml:"limits"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// Default returns the built-in configuration.
func Default() AppConfig {
	return AppConfig{
		Server:    DefaultServer(),
		World:     DefaultWorld(),
		Limits:    DefaultLimits(),
		Bridge:    DefaultBridge(),
		Telemetry: DefaultTelemetry(),
	}
}

// Load returns the complete configuration: defaults, then the YAML file
// named by ARENA_CONFIG (if any), then environment overrides.
func Load() (AppConfig, error) {
	cfg := Default()
	if path := os.Getenv("ARENA_CONFIG"); path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

// MergeFile overlays the YAML file at path. Keys absent from the file keep
// their current values.
func (c *AppConfig) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv applies environment variable overrides.
func (c *AppConfig) ApplyEnv() {
	if p := getEnvInt("PORT", 0); p > 0 {
		c.Server.Port = p
	}
	if v := getEnvList("CORS_ORIGINS"); v != nil {
		c.Server.CORSOrigins = v
	}
	if v := getEnvList("WS_ORIGINS"); v != nil {
		c.Server.WSOrigins = v
	}
	if v, ok := getEnvBool("REQUEST_LOGGING"); ok {
		c.Server.RequestLogging = v
	}

	if r := getEnvInt("TICK_RATE", 0); r > 0 {
		c.World.TickRate = r
	}
	if s := getEnvInt64("WORLD_SEED", 0); s != 0 {
		c.World.Seed = s
	}
	if v, ok := getEnvBool("POPULATE_MAP"); ok {
		c.World.PopulateMap = v
	}
	if v, ok := os.LookupEnv("CATALOG_PATH"); ok {
		c.World.CatalogPath = v
	}
	if v, ok := os.LookupEnv("EVENT_LOG_PATH"); ok {
		c.World.EventLogPath = v
	}

	if n := getEnvInt("MAX_PLAYERS", 0); n > 0 {
		c.Limits.MaxCharacters = n
	}
	if n := getEnvInt("MAX_AGENTS", 0); n > 0 {
		c.Limits.MaxAgents = n
	}

	if r := getEnvFloat("DETECTION_RADIUS", 0); r > 0 {
		c.Bridge.DetectionRadius = r
	}

	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}

	if v, ok := getEnvBool("DEBUG_SERVER"); ok {
		c.Telemetry.DebugEnabled = v
	}
	if v := os.Getenv("DEBUG_ADDR"); v != "" {
		c.Telemetry.DebugAddr = v
	}
	if v, ok := getEnvBool("ALLOW_DEBUG_EXTERNAL"); ok {
		c.Telemetry.DebugExternal = v
	}
	if v := os.Getenv("DEBUG_USER"); v != "" {
		c.Telemetry.DebugUser = v
		c.Telemetry.DebugPass = os.Getenv("DEBUG_PASS")
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.OTLPEndpoint = strings.TrimPrefix(strings.TrimPrefix(v, "http://"), "https://")
		c.Telemetry.OTLPInsecure = strings.HasPrefix(v, "http://")
	}
	if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	}
}

// Validate rejects settings the server cannot run with.
func (c AppConfig) Validate() error {
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("config: port %d out of range", c.Server.Port)
	case c.World.Width <= 0 || c.World.Height <= 0:
		return fmt.Errorf("config: world size %gx%g must be positive", c.World.Width, c.World.Height)
	case c.World.CellSize <= 0:
		return fmt.Errorf("config: cell size must be positive")
	case c.World.TickRate <= 0 || c.World.TickRate > 240:
		return fmt.Errorf("config: tick rate %d out of range", c.World.TickRate)
	case c.Limits.MaxAgents > c.Limits.MaxCharacters:
		return fmt.Errorf("config: max agents %d exceeds max characters %d", c.Limits.MaxAgents, c.Limits.MaxCharacters)
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string) (value, ok bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// getEnvList splits a comma-separated variable, or returns nil if unset.
func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
