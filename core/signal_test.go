package core

import (
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// waitNotice polls the bridge until something arrives or the deadline passes
func waitNotice(t *testing.T, b *bridge, within time.Duration) notice {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		n, err := b.drain()
		if err != nil {
			t.Fatalf("drain: %v", err)
		}
		if n != (notice{}) {
			return n
		}
		time.Sleep(5 * time.Millisecond)
	}
	return notice{}
}

func TestBridgeDecodesNotifications(t *testing.T) {
	b, err := newBridge()
	if err != nil {
		t.Fatalf("newBridge: %v", err)
	}
	defer b.close()

	if n, _ := b.drain(); n != (notice{}) {
		t.Fatalf("Expected empty bridge, got %+v", n)
	}

	b.send(unix.SIGALRM)
	b.send(unix.SIGALRM)
	b.send(unix.SIGTERM)

	n, err := b.drain()
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if !n.tick || !n.stop || n.dump {
		t.Errorf("Expected tick and stop, got %+v", n)
	}
}

func TestBridgeAlarm(t *testing.T) {
	b, err := newBridge()
	if err != nil {
		t.Fatalf("newBridge: %v", err)
	}
	defer b.close()

	b.schedule(20 * time.Millisecond)

	if n := waitNotice(t, b, 2*time.Second); !n.tick {
		t.Errorf("Expected alarm tick, got %+v", n)
	}
}

func TestBridgeForwardsProcessSignal(t *testing.T) {
	b, err := newBridge()
	if err != nil {
		t.Fatalf("newBridge: %v", err)
	}
	defer b.close()

	if err := unix.Kill(os.Getpid(), unix.SIGUSR1); err != nil {
		t.Fatalf("kill: %v", err)
	}

	if n := waitNotice(t, b, 2*time.Second); !n.dump {
		t.Errorf("Expected stats dump request, got %+v", n)
	}
}

func TestBridgeSendAfterClose(t *testing.T) {
	b, err := newBridge()
	if err != nil {
		t.Fatalf("newBridge: %v", err)
	}
	b.close()
	b.close()

	if b.send(unix.SIGTERM) {
		t.Error("Expected send on a closed bridge to fail")
	}
	b.schedule(time.Millisecond)
}
