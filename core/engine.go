package core

import (
	"errors"
	"fmt"
	"net/netip"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/searchktools/tiny-httpd/core/http"
	"github.com/searchktools/tiny-httpd/core/observability"
	"github.com/searchktools/tiny-httpd/core/poller"
	"github.com/searchktools/tiny-httpd/core/pools"
	"github.com/searchktools/tiny-httpd/core/timer"
)

// Engine states
const (
	stateNew int32 = iota
	stateListening
	stateServing
	stateClosed
)

// Options configures an Engine
type Options struct {
	Port        int
	Workers     int
	MaxRequests int
	DocRoot     string
	DefaultPage string
	TimeSlot    time.Duration
	IdleTimeout time.Duration
	MaxFD       int
	Logger      logrus.FieldLogger
}

// Engine is a single-reactor static file server. One goroutine waits on
// epoll and does all socket I/O; a worker pool parses requests and builds
// responses. Idle connections are evicted by a timer list swept on every
// alarm tick.
type Engine struct {
	opts  Options
	log   logrus.FieldLogger
	state atomic.Int32

	lfd    int
	port   int
	poller poller.Poller
	bridge *bridge

	pool   *pools.WorkerPool
	conns  *pools.SlotTable[*http.Conn]
	timers *timer.List[pools.Handle]
	stats  *observability.Stats
	env    *http.Env

	done chan struct{}
}

// dispatch hands one readable connection to a worker. The generation pins
// the dispatch to the socket it was made for.
type dispatch struct {
	conn *http.Conn
	gen  uint32
}

func (d dispatch) Process() {
	d.conn.ProcessGen(d.gen)
}

// NewEngine creates a new engine instance
func NewEngine(opts Options) (*Engine, error) {
	if opts.Workers <= 0 || opts.MaxRequests <= 0 {
		return nil, pools.ErrInvalidPoolSize
	}
	if opts.MaxFD <= 0 || opts.TimeSlot <= 0 || opts.IdleTimeout <= 0 {
		return nil, fmt.Errorf("core: max fd, time slot and idle timeout must be positive")
	}
	if opts.DefaultPage == "" {
		opts.DefaultPage = "index.html"
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	e := &Engine{
		opts:   opts,
		log:    opts.Logger.WithField("component", "engine"),
		lfd:    -1,
		conns:  pools.NewSlotTable(opts.MaxFD, http.NewConn),
		timers: timer.NewList[pools.Handle](1024),
		stats:  observability.NewStats(),
		done:   make(chan struct{}),
	}

	return e, nil
}

// Listen opens the listening socket, the poller, the signal bridge and the
// worker pool. Port 0 binds an ephemeral port; Addr reports the result.
func (e *Engine) Listen() error {
	if !e.state.CompareAndSwap(stateNew, stateListening) {
		return ErrEngineClosed
	}

	if err := e.listen(); err != nil {
		e.release()
		e.state.Store(stateClosed)
		close(e.done)
		return err
	}

	e.log.WithFields(logrus.Fields{
		"addr":    e.Addr(),
		"workers": e.opts.Workers,
		"docroot": e.opts.DocRoot,
	}).Info("listening")

	return nil
}

func (e *Engine) listen() error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("%w: socket: %v", ErrListen, err)
	}
	e.lfd = fd

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("%w: setsockopt: %v", ErrListen, err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: e.opts.Port}); err != nil {
		return fmt.Errorf("%w: bind port %d: %v", ErrListen, e.opts.Port, err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		return fmt.Errorf("%w: listen: %v", ErrListen, err)
	}

	sa, err := unix.Getsockname(fd)
	if err != nil {
		return fmt.Errorf("%w: getsockname: %v", ErrListen, err)
	}
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		e.port = in4.Port
	}

	if e.poller, err = poller.NewPoller(MaxEvents); err != nil {
		return fmt.Errorf("%w: poller: %v", ErrListen, err)
	}
	if err := e.poller.Add(fd, poller.Readable, false); err != nil {
		return fmt.Errorf("%w: register listener: %v", ErrListen, err)
	}

	if e.bridge, err = newBridge(); err != nil {
		return fmt.Errorf("%w: signal bridge: %v", ErrListen, err)
	}
	if err := e.poller.Add(e.bridge.rfd, poller.Readable, false); err != nil {
		return fmt.Errorf("%w: register bridge: %v", ErrListen, err)
	}

	if e.pool, err = pools.NewWorkerPool(e.opts.Workers, e.opts.MaxRequests); err != nil {
		return err
	}

	e.env = &http.Env{
		DocRoot:     e.opts.DocRoot,
		DefaultPage: e.opts.DefaultPage,
		Poller:      e.poller,
		Stats:       e.stats,
		Log:         e.opts.Logger,
	}

	return nil
}

// Addr returns the bound listening address
func (e *Engine) Addr() string {
	return "0.0.0.0:" + strconv.Itoa(e.port)
}

// Port returns the bound port
func (e *Engine) Port() int {
	return e.port
}

// Run listens and serves until stopped
func (e *Engine) Run() error {
	if err := e.Listen(); err != nil {
		return err
	}
	return e.Serve()
}

// Serve runs the reactor on the calling goroutine until a stop signal,
// a call to Stop or a poller failure, then tears everything down.
func (e *Engine) Serve() error {
	if !e.state.CompareAndSwap(stateListening, stateServing) {
		return ErrEngineClosed
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	defer e.shutdown()

	events := make([]poller.Event, MaxEvents)
	e.bridge.schedule(e.opts.TimeSlot)

	for {
		n, err := e.poller.Wait(events, -1)
		if err != nil {
			e.log.WithError(err).Error("epoll failure")
			return err
		}

		tick, stop := false, false
		for _, ev := range events[:n] {
			switch {
			case ev.Fd == e.lfd:
				e.accept()

			case ev.Fd == e.bridge.rfd:
				nt, err := e.bridge.drain()
				if err != nil {
					e.log.WithError(err).Warn("signal bridge read failed")
					continue
				}
				tick = tick || nt.tick
				stop = stop || nt.stop
				if nt.dump {
					e.dumpStats()
				}

			default:
				e.handleEvent(ev)
			}
		}

		if tick {
			e.timers.Tick(time.Now(), e.evict)
			e.bridge.schedule(e.opts.TimeSlot)
		}
		if stop {
			e.log.Info("stop requested")
			return nil
		}
	}
}

// Stop asks a serving engine to leave its loop
func (e *Engine) Stop() error {
	s := e.state.Load()
	if (s != stateListening && s != stateServing) || e.bridge == nil || !e.bridge.send(unix.SIGTERM) {
		return ErrEngineClosed
	}
	return nil
}

// Done is closed once the engine has released every resource
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

func (e *Engine) accept() {
	nfd, sa, err := unix.Accept4(e.lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EINTR) {
			e.log.WithError(err).Warn("accept failed")
		}
		return
	}

	if e.stats.Active.Value() >= int64(e.opts.MaxFD) || nfd >= e.conns.Cap() {
		e.stats.Rejected.Inc()
		e.log.WithField("fd", nfd).Warn("internal server busy")
		unix.Write(nfd, busyMessage)
		unix.Close(nfd)
		return
	}

	unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

	conn, h, err := e.conns.Acquire(nfd)
	if err != nil {
		e.log.WithError(fmt.Errorf("%w: %v", ErrTableFull, err)).Warn("accept dropped")
		unix.Close(nfd)
		return
	}
	conn.Init(nfd, h.Gen, peerString(sa), e.env)
	conn.SetTimer(e.timers.Add(time.Now().Add(e.opts.IdleTimeout), h))

	if err := e.poller.Add(nfd, poller.Readable, true); err != nil {
		e.log.WithError(err).WithField("fd", nfd).Warn("register connection failed")
		e.closeConn(conn, h)
	}
}

func (e *Engine) handleEvent(ev poller.Event) {
	conn, h, ok := e.conns.Get(ev.Fd)
	if !ok {
		e.log.WithField("fd", ev.Fd).Debug("event for unknown descriptor")
		return
	}

	switch {
	case ev.HangUp():
		e.closeConn(conn, h)

	case ev.Readable():
		if !conn.Read() {
			e.closeConn(conn, h)
			return
		}
		e.refresh(conn, h)
		if !e.pool.Append(dispatch{conn: conn, gen: h.Gen}) {
			// the connection stays disarmed until the idle timer evicts it
			e.stats.Dropped.Inc()
			e.log.WithField("fd", ev.Fd).Warn("worker queue full, request dropped")
		}

	case ev.Writable():
		if !conn.Write() {
			e.closeConn(conn, h)
			return
		}
		e.refresh(conn, h)
	}
}

// refresh pushes the idle deadline of conn forward
func (e *Engine) refresh(conn *http.Conn, h pools.Handle) {
	expire := time.Now().Add(e.opts.IdleTimeout)
	if !e.timers.Adjust(conn.Timer(), expire) {
		conn.SetTimer(e.timers.Add(expire, h))
	}
}

func (e *Engine) closeConn(conn *http.Conn, h pools.Handle) {
	e.timers.Delete(conn.Timer())
	conn.SetTimer(timer.NoID)
	conn.Close()
	e.conns.Release(h)
}

// evict closes a connection whose idle deadline passed
func (e *Engine) evict(h pools.Handle) {
	conn, ok := e.conns.Resolve(h)
	if !ok {
		return
	}
	if !conn.Closed() {
		e.stats.Evicted.Inc()
		e.log.WithFields(logrus.Fields{"fd": h.FD, "peer": conn.Peer()}).Debug("idle connection evicted")
	}
	conn.SetTimer(timer.NoID)
	conn.Close()
	e.conns.Release(h)
}

func (e *Engine) dumpStats() {
	data, err := json.Marshal(e.Stats())
	if err != nil {
		e.log.WithError(err).Warn("encode stats")
		return
	}
	e.log.WithField("stats", string(data)).Info("stats")
}

func (e *Engine) shutdown() {
	e.pool.Close()

	e.conns.Range(func(h pools.Handle, conn *http.Conn) bool {
		e.closeConn(conn, h)
		return true
	})

	e.release()
	e.state.Store(stateClosed)
	close(e.done)

	e.log.Info("engine stopped")
}

// release closes whatever Listen managed to open
func (e *Engine) release() {
	if e.pool != nil {
		e.pool.Close()
	}
	if e.bridge != nil {
		e.bridge.close()
	}
	if e.poller != nil {
		e.poller.Close()
	}
	if e.lfd >= 0 {
		unix.Close(e.lfd)
		e.lfd = -1
	}
}

func peerString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(a.Addr), uint16(a.Port)).String()
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(a.Addr), uint16(a.Port)).String()
	}
	return "unknown"
}
