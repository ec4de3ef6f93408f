package core

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/searchktools/tiny-httpd/core/observability"
	"github.com/searchktools/tiny-httpd/core/pools"
)

// EngineStats combines the server counters with the engine's internal tables
type EngineStats struct {
	Server  observability.Snapshot `json:"server"`
	Workers pools.WorkerPoolStats  `json:"workers"`
	Slots   SlotStats              `json:"slots"`
	Timers  int                    `json:"timers"`
	Runtime pools.GCStats          `json:"runtime"`
}

// SlotStats describes connection slot reuse
type SlotStats struct {
	Capacity int     `json:"capacity"`
	Gets     uint64  `json:"gets"`
	News     uint64  `json:"news"`
	HitRate  float64 `json:"hit_rate"`
}

// Counters returns the shared counter set
func (e *Engine) Counters() *observability.Stats {
	return e.stats
}

// Stats returns a point-in-time view of the engine
func (e *Engine) Stats() EngineStats {
	stats := EngineStats{
		Server:  e.stats.Snapshot(),
		Timers:  e.timers.Len(),
		Runtime: pools.GetGCStats(),
	}

	if e.pool != nil {
		stats.Workers = e.pool.Stats()
	}

	gets, news, hitRate := e.conns.Stats()
	stats.Slots = SlotStats{
		Capacity: e.conns.Cap(),
		Gets:     gets,
		News:     news,
		HitRate:  hitRate,
	}

	return stats
}

// StatsJSON returns engine statistics as JSON string
func (e *Engine) StatsJSON() string {
	data, _ := json.MarshalIndent(e.Stats(), "", "  ")
	return string(data)
}

// StatsText returns engine statistics as human-readable text
func (e *Engine) StatsText() string {
	stats := e.Stats()
	return stats.Server.Text() + fmt.Sprintf(`
Workers:
  Count:     %d
  Queue max: %d
  Submitted: %d
  Completed: %d
  Rejected:  %d
  Panicked:  %d

Connection Slots:
  Capacity: %d
  Gets:     %d
  News:     %d
  Hit Rate: %.2f%%

Pending timers: %d

Runtime:
  Goroutines: %d
  GC cycles:  %d
  Heap:       %d bytes
`,
		stats.Workers.NumWorkers, stats.Workers.MaxRequests,
		stats.Workers.TasksSubmitted, stats.Workers.TasksCompleted, stats.Workers.TasksRejected, stats.Workers.TasksPanicked,
		stats.Slots.Capacity, stats.Slots.Gets, stats.Slots.News, stats.Slots.HitRate*100,
		stats.Timers,
		stats.Runtime.NumGoroutine, stats.Runtime.NumGC, stats.Runtime.HeapAlloc,
	)
}
