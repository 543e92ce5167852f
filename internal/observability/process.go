package observability

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats is a point-in-time view of this process.
type ProcessStats struct {
	CPUPercent float64 `json:"cpuPercent"`
	RSSMB      float64 `json:"rssMB"`
	HeapMB     float64 `json:"heapMB"`
	Goroutines int     `json:"goroutines"`
	Threads    int32   `json:"threads,omitempty"`
	UptimeSec  int64   `json:"uptimeSec"`
}

// ProcessSampler reads process statistics, caching them briefly so a
// polled status endpoint does not hammer /proc.
type ProcessSampler struct {
	started time.Time
	ttl     time.Duration

	mu      sync.Mutex
	proc    *process.Process
	last    ProcessStats
	sampled time.Time
}

// NewProcessSampler creates a sampler for the current process.
func NewProcessSampler(ttl time.Duration) *ProcessSampler {
	s := &ProcessSampler{started: time.Now(), ttl: ttl}
	// gopsutil may be unsupported on the platform; Sample then falls back
	// to runtime figures only.
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = p
	}
	return s
}

// Sample returns current statistics.
func (s *ProcessSampler) Sample() ProcessStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if !s.sampled.IsZero() && now.Sub(s.sampled) < s.ttl {
		return s.last
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	st := ProcessStats{
		HeapMB:     float64(m.HeapAlloc) / 1024 / 1024,
		Goroutines: runtime.NumGoroutine(),
		UptimeSec:  int64(now.Sub(s.started).Seconds()),
	}
	if s.proc != nil {
		if cpu, err := s.proc.CPUPercent(); err == nil {
			st.CPUPercent = cpu
		}
		if mem, err := s.proc.MemoryInfo(); err == nil && mem != nil {
			st.RSSMB = float64(mem.RSS) / 1024 / 1024
		}
		if n, err := s.proc.NumThreads(); err == nil {
			st.Threads = n
		}
	}

	s.last, s.sampled = st, now
	return st
}
