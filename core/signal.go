package core

import (
	"errors"
	"os"
	"os/signal"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// notice is what one drain of the bridge decoded
type notice struct {
	tick bool
	stop bool
	dump bool
}

// bridge turns asynchronous notifications into bytes on a socket the
// reactor polls, so signals and the periodic alarm are handled on the
// reactor goroutine between event batches
type bridge struct {
	rfd int
	wfd int

	sigs chan os.Signal
	done chan struct{}

	mu     sync.Mutex
	alarm  *time.Timer
	closed bool
}

func newBridge() (*bridge, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}

	b := &bridge{
		rfd:  fds[0],
		wfd:  fds[1],
		sigs: make(chan os.Signal, 8),
		done: make(chan struct{}),
	}

	signal.Ignore(unix.SIGPIPE)
	signal.Notify(b.sigs, unix.SIGTERM, unix.SIGINT, unix.SIGUSR1)
	go b.forward()

	return b, nil
}

func (b *bridge) forward() {
	for {
		select {
		case sig := <-b.sigs:
			if s, ok := sig.(unix.Signal); ok {
				b.send(s)
			}
		case <-b.done:
			return
		}
	}
}

// send queues sig for the reactor. A full socket already holds
// undelivered notifications, so the byte is dropped.
func (b *bridge) send(sig unix.Signal) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	_, err := unix.Write(b.wfd, []byte{byte(sig)})
	return err == nil
}

// schedule arms the next alarm after d
func (b *bridge) schedule(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if b.alarm != nil {
		b.alarm.Stop()
	}
	b.alarm = time.AfterFunc(d, func() { b.send(unix.SIGALRM) })
}

// drain reads every pending byte and decodes it
func (b *bridge) drain() (notice, error) {
	var n notice
	var buf [64]byte

	for {
		k, err := unix.Read(b.rfd, buf[:])
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return n, nil
			}
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return n, err
		}
		if k == 0 {
			return n, nil
		}

		for _, c := range buf[:k] {
			switch unix.Signal(c) {
			case unix.SIGALRM:
				n.tick = true
			case unix.SIGTERM, unix.SIGINT:
				n.stop = true
			case unix.SIGUSR1:
				n.dump = true
			}
		}
	}
}

func (b *bridge) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	if b.alarm != nil {
		b.alarm.Stop()
	}
	b.mu.Unlock()

	signal.Stop(b.sigs)
	close(b.done)
	unix.Close(b.rfd)
	unix.Close(b.wfd)
}
