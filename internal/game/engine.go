package game

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"agent-arena/internal/catalog"
)

// EngineConfig configures an Engine.
type EngineConfig struct {
	World        WorldConfig
	Catalog      *catalog.Catalog // nil uses the embedded default
	PopulateMap  bool
	EventLogPath string // empty keeps the event log in memory
}

// TickListener is called after every tick with the published snapshot.
// Listeners run on the tick goroutine outside the world lock and must not
// block.
type TickListener func(s *Snapshot, tickDuration time.Duration)

// Engine owns the World and drives it at a fixed rate. Network and bridge
// goroutines talk to it through SubmitInput and WithWorld; the tick itself
// holds the world lock for its full duration so nothing observes a
// half-applied step.
type Engine struct {
	mu    sync.Mutex
	world *World

	inputs    *InputBuffer
	snapshots SnapshotStore
	eventLog  *EventLog

	tickInterval time.Duration
	ticker       *time.Ticker
	stopChan     chan struct{}
	doneChan     chan struct{}
	running      atomic.Bool
	stopOnce     sync.Once

	listenersMu sync.RWMutex
	listeners   []TickListener

	lastTickNanos atomic.Int64
	overruns      atomic.Uint64
}

// NewEngine creates an engine with an empty (or map-populated) world.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.World.TickInterval <= 0 {
		cfg.World.TickInterval = 25 * time.Millisecond
	}
	e := &Engine{
		inputs:       NewInputBuffer(),
		eventLog:     NewEventLog(),
		tickInterval: cfg.World.TickInterval,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	if err := e.eventLog.Start(cfg.EventLogPath); err != nil {
		log.Printf("⚠️ Event log disabled: %v", err)
	}
	e.world = NewWorld(cfg.World, cfg.Catalog, e.eventLog)
	if cfg.PopulateMap {
		if err := e.world.PopulateMap(); err != nil {
			log.Printf("⚠️ Map population failed: %v", err)
		}
	}
	e.snapshots.Publish(e.world.Snapshot())
	return e
}

// Start begins the game loop.
func (e *Engine) Start() {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	e.ticker = time.NewTicker(e.tickInterval)

	go func() {
		defer close(e.doneChan)
		for {
			select {
			case now := <-e.ticker.C:
				e.Step(now)
			case <-e.stopChan:
				return
			}
		}
	}()

	log.Printf("🎮 Game engine started at %d TPS", e.TickRate())
}

// Stop halts the loop, waits for the in-flight tick and flushes the event
// log. It is safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		if e.running.Load() {
			e.ticker.Stop()
			close(e.stopChan)
			<-e.doneChan
			e.running.Store(false)
		}
		e.eventLog.Stop()
		log.Println("🛑 Game engine stopped")
	})
}

// Step runs exactly one tick at now. The loop calls it from the ticker;
// tests call it directly with synthetic time.
func (e *Engine) Step(now time.Time) *Snapshot {
	start := time.Now()

	e.mu.Lock()
	e.world.Step(now, e.inputs.Drain())
	snap := e.world.Snapshot()
	e.mu.Unlock()

	e.snapshots.Publish(snap)
	elapsed := time.Since(start)
	e.lastTickNanos.Store(int64(elapsed))
	if elapsed > e.tickInterval {
		if e.overruns.Add(1)%100 == 1 {
			log.Printf("⚠️ Tick %d took %v (interval %v)", snap.Tick, elapsed, e.tickInterval)
		}
	}

	e.listenersMu.RLock()
	for _, fn := range e.listeners {
		fn(snap, elapsed)
	}
	e.listenersMu.RUnlock()
	return snap
}

// OnTick registers a listener for published snapshots.
func (e *Engine) OnTick(fn TickListener) {
	e.listenersMu.Lock()
	e.listeners = append(e.listeners, fn)
	e.listenersMu.Unlock()
}

// SubmitInput buffers an input for the next tick. Later inputs for the
// same entity overwrite earlier ones.
func (e *Engine) SubmitInput(id EntityID, in Input) {
	e.inputs.Put(id, in)
}

// WithWorld runs fn while holding the world lock. fn must not retain the
// world or any entity pointer after it returns.
func (e *Engine) WithWorld(fn func(w *World)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.world)
}

// JoinPlayer spawns a human player, or respawns existing if it is dead.
// Passing existing=0 always spawns.
func (e *Engine) JoinPlayer(existing EntityID, name string) (EntityID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if existing != 0 {
		if c := e.world.Character(existing); c != nil {
			if !c.Alive {
				e.world.Respawn(existing)
			}
			return existing, nil
		}
	}

	c, err := e.world.SpawnCharacter(name, ControlHuman)
	if err != nil {
		log.Printf("⚠️ Player limit reached (%d), rejecting: %s", e.world.cfg.Limits.MaxCharacters, name)
		return 0, err
	}
	log.Printf("👤 Player joined: %s (#%d)", name, c.ID)
	return c.ID, nil
}

// AddAgent spawns a bridge-controlled character. It fails with
// ErrWorldFull when either the agent or the overall character cap is hit.
func (e *Engine) AddAgent(agentID, name string) (EntityID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	agents := 0
	for _, c := range e.world.characters {
		if c.IsAgent() {
			agents++
		}
	}
	if agents >= e.world.cfg.Limits.MaxAgents {
		log.Printf("⚠️ Agent limit reached (%d), rejecting: %s", e.world.cfg.Limits.MaxAgents, agentID)
		return 0, ErrWorldFull
	}
	c, err := e.world.SpawnCharacter(name, ControlAgent)
	if err != nil {
		log.Printf("⚠️ Player limit reached (%d), rejecting agent: %s", e.world.cfg.Limits.MaxCharacters, agentID)
		return 0, err
	}
	c.AgentID = agentID
	log.Printf("🤖 Agent registered: %s as %s (#%d)", agentID, name, c.ID)
	return c.ID, nil
}

// RemoveNow deletes a character immediately instead of waiting for the
// next tick.
func (e *Engine) RemoveNow(id EntityID) bool {
	e.inputs.Discard(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.world.RemoveCharacter(id)
}

// Disconnect removes a character at the start of the next tick.
func (e *Engine) Disconnect(id EntityID) {
	if id == 0 {
		return
	}
	e.inputs.Discard(id)
	e.mu.Lock()
	e.world.QueueRemoval(id)
	e.mu.Unlock()
}

// Snapshot returns the latest published snapshot.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshots.Latest()
}

// TickRate returns ticks per second.
func (e *Engine) TickRate() int {
	return int(time.Second / e.tickInterval)
}

// WorldSize returns the arena dimensions.
func (e *Engine) WorldSize() (width, height float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.world.cfg.Width, e.world.cfg.Height
}

// Catalog returns the static definitions in use.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.world.catalog
}

// Running reports whether the loop is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// LastTickDuration is the wall time the most recent tick took.
func (e *Engine) LastTickDuration() time.Duration {
	return time.Duration(e.lastTickNanos.Load())
}

// EngineStats summarizes engine health for the status endpoint.
type EngineStats struct {
	Tick           uint64         `json:"tick"`
	TickRate       int            `json:"tickRate"`
	Characters     int            `json:"characters"`
	Agents         int            `json:"agents"`
	Bullets        int            `json:"bullets"`
	Obstacles      int            `json:"obstacles"`
	Loot           int            `json:"loot"`
	LastTickMicros int64          `json:"lastTickMicros"`
	Overruns       uint64         `json:"overruns"`
	InputsMerged   uint64         `json:"inputsCoalesced"`
	Events         map[string]any `json:"events"`
}

// Stats returns a consistent view of engine counters.
func (e *Engine) Stats() EngineStats {
	e.mu.Lock()
	s := EngineStats{
		Tick:       e.world.tick,
		TickRate:   e.TickRate(),
		Characters: len(e.world.characters),
		Bullets:    len(e.world.bullets),
		Loot:       len(e.world.loot),
	}
	for _, c := range e.world.characters {
		if c.IsAgent() {
			s.Agents++
		}
	}
	for _, o := range e.world.obstacles {
		if o.Alive {
			s.Obstacles++
		}
	}
	e.mu.Unlock()

	s.LastTickMicros = e.LastTickDuration().Microseconds()
	s.Overruns = e.overruns.Load()
	s.InputsMerged = e.inputs.Coalesced()
	s.Events = e.eventLog.GetStats()
	return s
}

// EventLogCounts returns the event log's accepted and dropped totals.
func (e *Engine) EventLogCounts() (total, dropped uint64) {
	return e.eventLog.GetTotalCount(), e.eventLog.GetDroppedCount()
}
