// Package bridge translates decisions from an external agent service into
// simulation inputs and gives each agent a filtered view of the arena.
package bridge

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"agent-arena/internal/game"
	"agent-arena/internal/game/geom"
)

var (
	ErrInvalidAgentID = errors.New("invalid agent id")
	ErrUnknownAgent   = errors.New("unknown agent")
	ErrRateLimited    = errors.New("agent rate limited")
	ErrAgentLimit     = errors.New("agent limit reached")
)

const (
	MaxAgentIDLength = 64
	MaxPlanLength    = 2000
)

// Config tunes the bridge.
type Config struct {
	DetectionRadius float64
	RateLimit       RateLimitConfig
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		DetectionRadius: 450,
		RateLimit:       DefaultRateLimitConfig,
	}
}

// CommandHook observes every processed command.
type CommandHook func(tool ToolType, applied bool)

// Bridge maps external agent ids onto engine characters and processes
// their commands. It is safe for concurrent use.
type Bridge struct {
	engine  *game.Engine
	cfg     Config
	limiter *RateLimiter

	mu     sync.RWMutex
	agents map[string]game.EntityID

	hooksMu sync.RWMutex
	hooks   []CommandHook
}

// New creates a bridge over engine.
func New(engine *game.Engine, cfg Config) *Bridge {
	if cfg.DetectionRadius <= 0 {
		cfg.DetectionRadius = DefaultConfig().DetectionRadius
	}
	return &Bridge{
		engine:  engine,
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateLimit),
		agents:  make(map[string]game.EntityID),
	}
}

// Close releases background resources.
func (b *Bridge) Close() {
	b.limiter.Stop()
}

// OnCommand registers a hook called after each command.
func (b *Bridge) OnCommand(fn CommandHook) {
	b.hooksMu.Lock()
	b.hooks = append(b.hooks, fn)
	b.hooksMu.Unlock()
}

func (b *Bridge) notify(tool ToolType, applied bool) {
	b.hooksMu.RLock()
	defer b.hooksMu.RUnlock()
	for _, fn := range b.hooks {
		fn(tool, applied)
	}
}

// Agents returns the number of registered agents.
func (b *Bridge) Agents() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.agents)
}

func (b *Bridge) lookup(agentID string) (game.EntityID, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.agents[agentID]
	return id, ok
}

func validAgentID(agentID string) bool {
	return agentID != "" && len(agentID) <= MaxAgentIDLength && strings.TrimSpace(agentID) == agentID
}

// Register spawns a character for agentID. Registering an id that is
// already in the arena returns the existing character.
func (b *Bridge) Register(agentID, username string) (Registration, error) {
	if !validAgentID(agentID) {
		return Registration{}, ErrInvalidAgentID
	}
	name := strings.TrimSpace(username)
	if name == "" {
		name = agentID
	}
	if utf8.RuneCountInString(name) > MaxAgentIDLength {
		name = string([]rune(name)[:MaxAgentIDLength])
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if id, ok := b.agents[agentID]; ok {
		if reg, found := b.registration(agentID, id); found {
			reg.Existing = true
			return reg, nil
		}
		delete(b.agents, agentID)
	}

	id, err := b.engine.AddAgent(agentID, name)
	if err != nil {
		if errors.Is(err, game.ErrWorldFull) {
			return Registration{}, fmt.Errorf("%w: %v", ErrAgentLimit, err)
		}
		return Registration{}, err
	}
	b.agents[agentID] = id
	reg, _ := b.registration(agentID, id)
	return reg, nil
}

func (b *Bridge) registration(agentID string, id game.EntityID) (Registration, bool) {
	var reg Registration
	found := false
	b.engine.WithWorld(func(w *game.World) {
		c := w.Character(id)
		if c == nil {
			return
		}
		found = true
		reg = Registration{
			AgentID:  agentID,
			EntityID: uint32(id),
			Name:     c.Name,
			Position: Position{X: c.Pos.X, Y: c.Pos.Y},
		}
	})
	return reg, found
}

// Command translates action for agentID and buffers the resulting input
// for the next tick. An action that cannot be applied (unknown target, bad
// parameters) is logged and reported with Applied=false rather than as an
// error.
func (b *Bridge) Command(agentID string, action Action) (CommandResult, error) {
	id, ok := b.lookup(agentID)
	if !ok {
		return CommandResult{}, ErrUnknownAgent
	}
	if !b.limiter.Allow(agentID) {
		return CommandResult{}, ErrRateLimited
	}

	tool, _ := ParseToolType(action.ToolType)
	var res CommandResult
	b.engine.WithWorld(func(w *game.World) {
		agent := w.Character(id)
		if agent == nil {
			return
		}
		in, applied := ActionToInput(w, agent, action)
		if applied {
			b.engine.SubmitInput(id, in)
			agent.LastAction = describe(tool, action)
		}
		w.Emit(game.EventTypeAgentCommand, id, game.AgentCommandPayload{
			AgentID: agentID, Action: string(tool), Applied: applied,
		})
		res = CommandResult{
			Success:   true,
			Applied:   applied,
			GameState: StateForAgent(w, agent, b.cfg.DetectionRadius),
		}
	})
	if !res.Success {
		return CommandResult{}, ErrUnknownAgent
	}
	b.notify(tool, res.Applied)
	return res, nil
}

// State returns the agent's current view. Reading it clears the agent's
// just-died flag.
func (b *Bridge) State(agentID string) (*AgentState, error) {
	id, ok := b.lookup(agentID)
	if !ok {
		return nil, ErrUnknownAgent
	}
	var st *AgentState
	b.engine.WithWorld(func(w *game.World) {
		if agent := w.Character(id); agent != nil {
			st = StateForAgent(w, agent, b.cfg.DetectionRadius)
		}
	})
	if st == nil {
		return nil, ErrUnknownAgent
	}
	return st, nil
}

// Remove unregisters an agent and deletes its character immediately.
func (b *Bridge) Remove(agentID string) error {
	b.mu.Lock()
	id, ok := b.agents[agentID]
	delete(b.agents, agentID)
	b.mu.Unlock()
	if !ok {
		return ErrUnknownAgent
	}
	b.limiter.Forget(agentID)
	b.engine.RemoveNow(id)
	log.Printf("👋 Agent removed: %s (#%d)", agentID, id)
	return nil
}

// ActionToInput maps a symbolic action onto the same Input a live client
// produces. ok is false when the action should not be submitted: unknown
// tool, dead agent, bad parameters, or an attack on a target that cannot be
// found. w must be locked by the caller.
func ActionToInput(w *game.World, agent *game.Character, action Action) (in game.Input, ok bool) {
	tool, known := ParseToolType(action.ToolType)
	if !known {
		log.Printf("⚠️ %s: unknown tool %q", agent.AgentID, action.ToolType)
		return in, false
	}
	if !agent.Alive {
		log.Printf("⚠️ %s is dead (tried %s)", agent.AgentID, tool)
		return in, false
	}

	switch tool {
	case ToolMove:
		dx, okX := numberParam(action.Parameters, "x", "dx")
		dy, okY := numberParam(action.Parameters, "y", "dy")
		offset := geom.V(dx, dy)
		if (!okX && !okY) || !offset.IsFinite() || offset.IsZero() {
			log.Printf("⚠️ %s: move needs a non-zero x/y offset, got %v", agent.AgentID, action.Parameters)
			return in, false
		}
		in.MoveBy = &offset

	case ToolAttack:
		ref := stringParam(action.Parameters, "target_player_id", "target_id", "target")
		target := resolveTarget(w, ref)
		if target == nil || target == agent || !target.Alive {
			log.Printf("⚠️ %s: attack target %q not found", agent.AgentID, ref)
			return in, false
		}
		in.Aim = target.Pos
		in.HasAim = true
		in.Attacking = true

	case ToolCollect:
		in.Pickup = true
		in.Additive = true

	case ToolPlan:
		text := strings.TrimSpace(stringParam(action.Parameters, "text", "plan", "content"))
		if utf8.RuneCountInString(text) > MaxPlanLength {
			text = string([]rune(text)[:MaxPlanLength])
		}
		in.Plan = &text
		in.Additive = true
	}
	return in, true
}

// resolveTarget finds a character by agent id, then by decimal entity id,
// then by display name.
func resolveTarget(w *game.World, ref string) *game.Character {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	for _, c := range w.Characters() {
		if c.IsAgent() && c.AgentID == ref {
			return c
		}
	}
	if n, err := strconv.ParseUint(ref, 10, 32); err == nil {
		if c := w.Character(game.EntityID(n)); c != nil {
			return c
		}
	}
	for _, c := range w.Characters() {
		if strings.EqualFold(c.Name, ref) {
			return c
		}
	}
	return nil
}

func describe(tool ToolType, action Action) string {
	switch tool {
	case ToolMove:
		dx, _ := numberParam(action.Parameters, "x", "dx")
		dy, _ := numberParam(action.Parameters, "y", "dy")
		return fmt.Sprintf("move(%g, %g)", dx, dy)
	case ToolAttack:
		return fmt.Sprintf("attack(%s)", stringParam(action.Parameters, "target_player_id", "target_id", "target"))
	default:
		return string(tool)
	}
}

// numberParam reads the first present key as a number. JSON numbers arrive
// as float64; numeric strings are accepted too.
func numberParam(params map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := params[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true
		case float32:
			return float64(n), true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// stringParam reads the first present key as a string. Numbers are
// formatted so a JSON entity id works as a target.
func stringParam(params map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := params[k]
		if !ok || v == nil {
			continue
		}
		switch s := v.(type) {
		case string:
			return s
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64)
		default:
			return fmt.Sprint(s)
		}
	}
	return ""
}
