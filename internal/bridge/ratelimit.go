package bridge

import (
	"sync"
	"time"
)

// RateLimiter implements per-agent command rate limiting
type RateLimiter struct {
	mu          sync.Mutex
	agentCounts map[string]*agentLimit
	config      RateLimitConfig
	stop        chan struct{}
	stopOnce    sync.Once
}

type agentLimit struct {
	count     int
	windowEnd time.Time
	lastCmd   time.Time
}

// RateLimitConfig configures rate limiting behavior
type RateLimitConfig struct {
	// MaxPerWindow is max commands per window
	MaxPerWindow int
	// WindowDuration is the fixed window size
	WindowDuration time.Duration
	// CooldownDuration is minimum time between commands
	CooldownDuration time.Duration
}

// DefaultRateLimitConfig allows roughly one command per tick.
var DefaultRateLimitConfig = RateLimitConfig{
	MaxPerWindow:     40,
	WindowDuration:   time.Second,
	CooldownDuration: 0,
}

// NewRateLimiter creates a new rate limiter. Call Stop to end its
// cleanup goroutine.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		agentCounts: make(map[string]*agentLimit),
		config:      cfg,
		stop:        make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Allow checks if an agent can execute a command now.
func (rl *RateLimiter) Allow(agentID string) bool {
	return rl.AllowAt(agentID, time.Now())
}

// AllowAt is Allow with an explicit clock.
func (rl *RateLimiter) AllowAt(agentID string, now time.Time) bool {
	if rl.config.MaxPerWindow <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	limit, exists := rl.agentCounts[agentID]
	if !exists {
		rl.agentCounts[agentID] = &agentLimit{
			count:     1,
			windowEnd: now.Add(rl.config.WindowDuration),
			lastCmd:   now,
		}
		return true
	}

	if now.Sub(limit.lastCmd) < rl.config.CooldownDuration {
		return false
	}

	if now.After(limit.windowEnd) {
		limit.count = 1
		limit.windowEnd = now.Add(rl.config.WindowDuration)
		limit.lastCmd = now
		return true
	}

	if limit.count >= rl.config.MaxPerWindow {
		return false
	}

	limit.count++
	limit.lastCmd = now
	return true
}

// Forget drops an agent's counters.
func (rl *RateLimiter) Forget(agentID string) {
	rl.mu.Lock()
	delete(rl.agentCounts, agentID)
	rl.mu.Unlock()
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// cleanup removes idle entries every minute
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			cutoff := now.Add(-5 * time.Minute)
			rl.mu.Lock()
			for key, limit := range rl.agentCounts {
				if limit.lastCmd.Before(cutoff) {
					delete(rl.agentCounts, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}
