//go:build linux
// +build linux

package poller

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Readiness interests
const (
	Readable Interest = unix.EPOLLIN
	Writable Interest = unix.EPOLLOUT
)

// EpollPoller is an epoll-based I/O multiplexer
type EpollPoller struct {
	epfd   int
	events []unix.EpollEvent
}

// NewPoller creates a new Poller (Linux) reporting at most maxEvents per Wait
func NewPoller(maxEvents int) (Poller, error) {
	return NewEpollPoller(maxEvents)
}

// NewEpollPoller creates an epoll instance that reports at most maxEvents per Wait
func NewEpollPoller(maxEvents int) (*EpollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	return &EpollPoller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, maxEvents),
	}, nil
}

// Add adds a file descriptor to the watch list
func (p *EpollPoller) Add(fd int, in Interest, oneShot bool) error {
	ev := unix.EpollEvent{
		Events: uint32(in),
		Fd:     int32(fd),
	}
	if oneShot {
		// Edge-triggered + one-shot: exactly one wakeup until Mod re-arms,
		// so a connection is never dispatched to two workers at once.
		ev.Events |= unix.EPOLLET | unix.EPOLLONESHOT | unix.EPOLLRDHUP
	}

	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// Mod re-arms a one-shot descriptor
func (p *EpollPoller) Mod(fd int, in Interest) error {
	ev := unix.EpollEvent{
		Events: uint32(in) | unix.EPOLLET | unix.EPOLLONESHOT | unix.EPOLLRDHUP,
		Fd:     int32(fd),
	}

	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// Remove removes a file descriptor from the watch list
func (p *EpollPoller) Remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait waits for I/O events and copies them into events.
// An interrupted wait reports zero events and no error.
func (p *EpollPoller) Wait(events []Event, timeout int) (int, error) {
	max := len(events)
	if max > len(p.events) {
		max = len(p.events)
	}
	if max == 0 {
		return 0, nil
	}

	n, err := unix.EpollWait(p.epfd, p.events[:max], timeout)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, err
	}

	for i := 0; i < n; i++ {
		events[i] = Event{
			Fd:     int(p.events[i].Fd),
			Events: p.events[i].Events,
		}
	}

	return n, nil
}

// Close closes the Poller
func (p *EpollPoller) Close() error {
	return unix.Close(p.epfd)
}

// HangUp reports peer shutdown or an error condition
func (e Event) HangUp() bool {
	return e.Events&(unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0
}

// Readable reports read readiness
func (e Event) Readable() bool {
	return e.Events&unix.EPOLLIN != 0
}

// Writable reports write readiness
func (e Event) Writable() bool {
	return e.Events&unix.EPOLLOUT != 0
}
