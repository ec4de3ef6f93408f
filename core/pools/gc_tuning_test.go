package pools

import (
	"runtime/debug"
	"testing"
)

func TestApplyGCConfig(t *testing.T) {
	orig := debug.SetGCPercent(100)
	defer debug.SetGCPercent(orig)

	if prev := ApplyGCConfig(GCConfig{Percent: 250}); prev != 100 {
		t.Errorf("Expected previous percent 100, got %d", prev)
	}
	if prev := ApplyGCConfig(GCConfig{}); prev != 250 {
		t.Errorf("Expected percent 250 to be in effect, got %d", prev)
	}
}

func TestGetGCStats(t *testing.T) {
	stats := GetGCStats()
	if stats.NumGoroutine < 1 {
		t.Errorf("Expected at least one goroutine, got %d", stats.NumGoroutine)
	}
	if stats.Sys == 0 {
		t.Error("Expected non-zero memory obtained from the OS")
	}
}
