package game

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	EventBufferSize      = 1024                   // Ring buffer size
	MaxEventsPerSec      = 10000                  // Global rate limit
	MaxEventsPerSource   = 100                    // Per-entity rate limit per second
	BatchFlushSize       = 64                     // Events per batch write
	BatchFlushInterval   = 100 * time.Millisecond // How often to flush
	SourceLimiterCleanup = 5 * time.Minute        // Cleanup interval for per-entity limiters
)

// EventLog is a bounded, rate-limited JSONL audit log. Emit never blocks
// the tick: when the ring is full the oldest pending event is dropped.
type EventLog struct {
	mu      sync.Mutex
	buffer  [EventBufferSize]Event
	head    uint64 // next sequence to write
	tail    uint64 // next sequence to flush
	limiter *rate.Limiter
	sources map[EntityID]*sourceLimiter

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	file   *os.File
	fileMu sync.Mutex

	droppedCount atomic.Uint64
	totalCount   atomic.Uint64
}

type sourceLimiter struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewEventLog creates a new bounded event log
func NewEventLog() *EventLog {
	return &EventLog{
		limiter:  rate.NewLimiter(MaxEventsPerSec, MaxEventsPerSec/10),
		sources:  make(map[EntityID]*sourceLimiter),
		stopChan: make(chan struct{}),
	}
}

// Start begins the async writer. An empty path keeps events in memory
// only, which still exercises rate limiting and the stats.
func (el *EventLog) Start(filePath string) error {
	if el.running.Load() {
		return nil
	}
	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		el.file = file
	}

	el.running.Store(true)
	el.writerWg.Add(1)
	go el.writerLoop()
	return nil
}

// Stop flushes pending events and closes the file.
func (el *EventLog) Stop() {
	el.stopOnce.Do(func() {
		el.running.Store(false)
		close(el.stopChan)
		el.writerWg.Wait()

		el.fileMu.Lock()
		if el.file != nil {
			el.file.Close()
		}
		el.fileMu.Unlock()
	})
}

// Emit appends an event. It returns false if the event was rate limited
// or the log is not running.
func (el *EventLog) Emit(event Event) bool {
	if !el.running.Load() {
		return false
	}

	el.mu.Lock()
	defer el.mu.Unlock()

	if !el.limiter.Allow() || !el.sourceAllow(event.SourceID) {
		el.droppedCount.Add(1)
		return false
	}

	if el.head-el.tail >= EventBufferSize {
		el.tail++
		el.droppedCount.Add(1)
	}
	event.Sequence = el.head
	el.buffer[el.head%EventBufferSize] = event
	el.head++
	el.totalCount.Add(1)
	return true
}

// EmitSimple builds and emits an event.
func (el *EventLog) EmitSimple(eventType EventType, tickNum uint64, source EntityID, payload any) bool {
	if !el.running.Load() {
		return false
	}
	return el.Emit(NewEvent(eventType, tickNum, source, payload))
}

// sourceAllow applies the per-entity limit. Caller holds el.mu.
func (el *EventLog) sourceAllow(id EntityID) bool {
	if id == 0 {
		return true
	}
	now := time.Now()
	s, ok := el.sources[id]
	if !ok {
		s = &sourceLimiter{limiter: rate.NewLimiter(MaxEventsPerSource, MaxEventsPerSource/10)}
		el.sources[id] = s
	}
	s.lastUsed = now
	return s.limiter.AllowN(now, 1)
}

func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()

	flush := time.NewTicker(BatchFlushInterval)
	defer flush.Stop()
	cleanup := time.NewTicker(SourceLimiterCleanup)
	defer cleanup.Stop()

	batch := make([]Event, 0, BatchFlushSize)
	for {
		select {
		case <-el.stopChan:
			for {
				batch = el.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				el.flushBatch(batch)
			}
		case <-flush.C:
			batch = el.collectBatch(batch[:0])
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
		case <-cleanup.C:
			el.cleanupSources()
		}
	}
}

func (el *EventLog) cleanupSources() {
	cutoff := time.Now().Add(-SourceLimiterCleanup)
	el.mu.Lock()
	defer el.mu.Unlock()
	for id, s := range el.sources {
		if s.lastUsed.Before(cutoff) {
			delete(el.sources, id)
		}
	}
}

func (el *EventLog) collectBatch(batch []Event) []Event {
	el.mu.Lock()
	defer el.mu.Unlock()
	for el.tail < el.head && len(batch) < BatchFlushSize {
		batch = append(batch, el.buffer[el.tail%EventBufferSize])
		el.tail++
	}
	return batch
}

// flushBatch writes events as newline-delimited JSON.
func (el *EventLog) flushBatch(batch []Event) {
	el.fileMu.Lock()
	defer el.fileMu.Unlock()

	if el.file == nil {
		return
	}
	w := bufio.NewWriter(el.file)
	for _, event := range batch {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	w.Flush()
}

// GetStats returns counters for the status endpoint.
func (el *EventLog) GetStats() map[string]any {
	el.mu.Lock()
	pending := el.head - el.tail
	el.mu.Unlock()

	return map[string]any{
		"total":   el.totalCount.Load(),
		"dropped": el.droppedCount.Load(),
		"pending": pending,
		"running": el.running.Load(),
	}
}

// GetDroppedCount returns the number of dropped events
func (el *EventLog) GetDroppedCount() uint64 {
	return el.droppedCount.Load()
}

// GetTotalCount returns the total number of events accepted
func (el *EventLog) GetTotalCount() uint64 {
	return el.totalCount.Load()
}
