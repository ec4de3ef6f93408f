package pools

import (
	"runtime"
	"runtime/debug"
	"time"
)

// GCConfig holds GC tuning parameters
type GCConfig struct {
	// Percent sets the collection target percentage; 0 keeps the runtime's
	Percent int

	// MemoryLimit sets a soft memory limit in bytes; 0 means no limit
	MemoryLimit int64
}

// ApplyGCConfig applies cfg and returns the previous GC percentage
func ApplyGCConfig(cfg GCConfig) int {
	prev := debug.SetGCPercent(-1)
	debug.SetGCPercent(prev)

	if cfg.Percent > 0 {
		debug.SetGCPercent(cfg.Percent)
	}
	if cfg.MemoryLimit > 0 {
		debug.SetMemoryLimit(cfg.MemoryLimit)
	}
	return prev
}

// GCStats holds garbage collection statistics
type GCStats struct {
	NumGC        uint32        `json:"num_gc"`
	PauseTotal   time.Duration `json:"pause_total_ns"`
	LastPause    time.Duration `json:"last_pause_ns"`
	HeapAlloc    uint64        `json:"heap_alloc"`
	Sys          uint64        `json:"sys"`
	NumGoroutine int           `json:"goroutines"`
}

// GetGCStats returns current GC statistics
func GetGCStats() GCStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	stats := GCStats{
		NumGC:        ms.NumGC,
		PauseTotal:   time.Duration(ms.PauseTotalNs),
		HeapAlloc:    ms.HeapAlloc,
		Sys:          ms.Sys,
		NumGoroutine: runtime.NumGoroutine(),
	}
	if ms.NumGC > 0 {
		stats.LastPause = time.Duration(ms.PauseNs[(ms.NumGC+255)%256])
	}

	return stats
}
