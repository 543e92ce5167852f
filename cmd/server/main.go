package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agent-arena/internal/api"
	"agent-arena/internal/bridge"
	"agent-arena/internal/catalog"
	"agent-arena/internal/config"
	"agent-arena/internal/game"
	"agent-arena/internal/observability"

	"github.com/joho/godotenv"
)

func main() {
	issueToken := flag.Bool("issue-token", false, "print an agent API token signed with JWT_SECRET and exit")
	tokenAgent := flag.String("token-agent", "", "agent id the issued token is scoped to (empty for an orchestrator token)")
	tokenTTL := flag.Duration("token-ttl", 30*24*time.Hour, "lifetime of the issued token")
	flag.Parse()

	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🎮 ================================")
	log.Println("🎮  AGENT ARENA")
	log.Println("🎮 ================================")

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	if *issueToken {
		auth := api.NewTokenAuth(appConfig.Auth.JWTSecret)
		if auth == nil {
			log.Fatal("❌ JWT_SECRET is not set, agent API auth is disabled")
		}
		token, err := auth.Issue(*tokenAgent, *tokenTTL)
		if err != nil {
			log.Fatalf("❌ Issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	cat := catalog.Default()
	if path := appConfig.World.CatalogPath; path != "" {
		cat, err = catalog.Load(path)
		if err != nil {
			log.Fatalf("❌ Catalog error: %v", err)
		}
		log.Printf("📦 Catalog loaded from %s", path)
	}
	log.Printf("📦 Catalog: %d weapons, %d obstacle types", len(cat.Weapons), len(cat.Obstacles))

	shutdownTracing, err := observability.InitTelemetry(context.Background(), observability.TelemetryConfig{
		Endpoint:    appConfig.Telemetry.OTLPEndpoint,
		Insecure:    appConfig.Telemetry.OTLPInsecure,
		ServiceName: appConfig.Telemetry.ServiceName,
		SampleRatio: appConfig.Telemetry.TraceSampleRatio,
	})
	if err != nil {
		log.Printf("⚠️ Tracing disabled: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	engine := game.NewEngine(game.EngineConfig{
		World:        worldConfig(appConfig),
		Catalog:      cat,
		PopulateMap:  appConfig.World.PopulateMap,
		EventLogPath: appConfig.World.EventLogPath,
	})
	limits := appConfig.Limits
	log.Printf("🛡️ Resource limits: %d characters, %d agents, %d bullets",
		limits.MaxCharacters, limits.MaxAgents, limits.MaxBullets)
	if appConfig.World.EventLogPath != "" {
		log.Printf("📝 Event log: %s", appConfig.World.EventLogPath)
	}

	br := bridge.New(engine, bridge.Config{
		DetectionRadius: appConfig.Bridge.DetectionRadius,
		RateLimit: bridge.RateLimitConfig{
			MaxPerWindow:     appConfig.Bridge.CommandsPerWindow,
			WindowDuration:   appConfig.Bridge.CommandWindow,
			CooldownDuration: appConfig.Bridge.CommandCooldown,
		},
	})

	debugServer := api.StartDebugServer(api.ObservabilityConfig{
		Enabled:       appConfig.Telemetry.DebugEnabled,
		ListenAddr:    appConfig.Telemetry.DebugAddr,
		AllowExternal: appConfig.Telemetry.DebugExternal,
		BasicAuthUser: appConfig.Telemetry.DebugUser,
		BasicAuthPass: appConfig.Telemetry.DebugPass,
	})

	srv := appConfig.Server
	server := api.NewServer(engine, br, api.ServerConfig{
		Addr: srv.Addr(),
		RateLimit: api.RateLimitConfig{
			RequestsPerSecond: srv.RequestsPerSec,
			Burst:             srv.RequestBurst,
			CleanupInterval:   5 * time.Minute,
		},
		CORSOrigins: srv.CORSOrigins,
		Hub: api.HubConfig{
			MaxConnections: srv.MaxWSClients,
			MaxPerIP:       srv.MaxWSPerIP,
			SendQueueSize:  srv.SendQueueSize,
			AllowedOrigins: srv.WSOrigins,
		},
		JWTSecret: appConfig.Auth.JWTSecret,
		Logging:   srv.RequestLogging,
	})

	engine.Start()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	log.Println("✅ Arena ready")
	log.Printf("🤖 Agent API: http://localhost%s/api/agent", srv.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("🛑 Received %s, shutting down...", sig)
	case err := <-serverErr:
		if err != nil {
			log.Printf("❌ API server error: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ API shutdown: %v", err)
	}
	if debugServer != nil {
		debugServer.Shutdown(ctx)
	}
	br.Close()
	engine.Stop()
	if err := shutdownTracing(ctx); err != nil {
		log.Printf("⚠️ Tracing shutdown: %v", err)
	}
	log.Println("👋 Goodbye!")
}

func worldConfig(c config.AppConfig) game.WorldConfig {
	w := game.DefaultWorldConfig()
	w.Width = c.World.Width
	w.Height = c.World.Height
	w.CellSize = c.World.CellSize
	w.TickInterval = c.World.TickInterval()
	w.RespawnDelay = c.World.RespawnDelay
	if c.World.Seed != 0 {
		w.Seed = c.World.Seed
	}
	w.Limits = game.ResourceLimits{
		MaxCharacters: c.Limits.MaxCharacters,
		MaxAgents:     c.Limits.MaxAgents,
		MaxBullets:    c.Limits.MaxBullets,
		MaxLoot:       c.Limits.MaxLoot,
	}
	return w
}
