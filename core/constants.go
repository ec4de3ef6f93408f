package core

import "errors"

// Reactor limits
const (
	// MaxEvents sizes the poller's event buffer, the most readiness events
	// handled per wakeup
	MaxEvents = 10000
	// listenBacklog is the accept queue length of the listening socket
	listenBacklog = 5
)

// Error definitions
var (
	ErrListen       = errors.New("core: cannot set up listening socket")
	ErrEngineClosed = errors.New("core: engine is not running")
	ErrTableFull    = errors.New("core: connection table is full")
)

// busyMessage is written to clients turned away at accept
var busyMessage = []byte("Internal server busy")
