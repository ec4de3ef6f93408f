package http

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/searchktools/tiny-httpd/core/observability"
	"github.com/searchktools/tiny-httpd/core/poller"
	"github.com/searchktools/tiny-httpd/core/timer"
)

// Buffer sizes
const (
	ReadBufferSize  = 2048
	WriteBufferSize = 1024
)

// Env is the state every connection of one engine shares
type Env struct {
	DocRoot     string
	DefaultPage string
	Poller      poller.Registrar
	Stats       *observability.Stats
	Log         logrus.FieldLogger
}

// Conn is one HTTP connection: its buffers, the parser state and the
// response being written. A slot is reinitialized for every accepted socket.
//
// The mutex serializes the worker running Process with the reactor's Read,
// Write and Close, so idle eviction can never tear down a connection while
// it is being processed.
type Conn struct {
	mu   sync.Mutex
	fd   int
	gen  uint32
	peer string
	env  *Env
	log  *logrus.Entry

	readBuf    [ReadBufferSize]byte
	readIdx    int // end of valid bytes
	checkedIdx int // next byte to analyze
	startLine  int // start of the line being parsed
	state      CheckState
	req        Request

	writeBuf [WriteBufferSize]byte
	writeIdx int
	status   int

	realFile string
	file     []byte
	fileSize int64

	iv            [2][]byte
	ivCount       int
	bytesToSend   int
	bytesHaveSend int

	timer timer.ID
}

// NewConn returns an unused connection slot
func NewConn() *Conn {
	return &Conn{fd: -1, timer: timer.NoID}
}

// Init binds the slot to a freshly accepted socket
func (c *Conn) Init(fd int, gen uint32, peer string, env *Env) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fd = fd
	c.gen = gen
	c.peer = peer
	c.env = env
	c.log = env.Log.WithFields(logrus.Fields{"fd": fd, "peer": peer})
	c.timer = timer.NoID
	c.reset()

	env.Stats.Active.Inc()
	env.Stats.Accepted.Inc()
}

// Reset implements pools.SlotPoolable
func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file != nil {
		c.unmap()
	}
	c.fd = -1
	c.timer = timer.NoID
	c.reset()
}

// reset prepares for the next request on the same socket
func (c *Conn) reset() {
	clear(c.readBuf[:c.readIdx])
	c.readIdx = 0
	c.checkedIdx = 0
	c.startLine = 0
	c.state = StateRequestLine
	c.req.Reset()

	c.writeIdx = 0
	c.status = 0
	c.realFile = ""
	c.fileSize = 0
	c.iv[0], c.iv[1] = nil, nil
	c.ivCount = 0
	c.bytesToSend = 0
	c.bytesHaveSend = 0
}

// FD returns the socket, or -1 once closed
func (c *Conn) FD() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fd
}

// Peer returns the remote address
func (c *Conn) Peer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

// Timer returns the id of this connection's timer entry
func (c *Conn) Timer() timer.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer
}

// SetTimer records the id of this connection's timer entry
func (c *Conn) SetTimer(id timer.ID) {
	c.mu.Lock()
	c.timer = id
	c.mu.Unlock()
}

// Request returns a copy of the parsed request
func (c *Conn) Request() Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.req
}

// Read drains everything the socket has to offer into the read buffer.
// It returns true when the socket would block, which means all available
// bytes were consumed, not that a whole request arrived.
func (c *Conn) Read() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fd < 0 || c.readIdx >= len(c.readBuf) {
		return false
	}

	for c.readIdx < len(c.readBuf) {
		n, err := unix.Read(c.fd, c.readBuf[c.readIdx:])
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				break
			}
			if errors.Is(err, unix.EINTR) {
				continue
			}
			c.log.WithError(err).Debug("recv failed")
			return false
		}
		if n == 0 {
			// peer closed
			return false
		}
		c.readIdx += n
	}

	return true
}

// Process implements pools.Task: it parses what has been read and, once a
// request is complete, builds the response and arms the socket for writing
func (c *Conn) Process() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.process()
}

// ProcessGen runs Process only if the slot still belongs to the socket
// generation gen, so a dispatch queued before the descriptor was reused is
// discarded
func (c *Conn) ProcessGen(gen uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		return
	}
	c.process()
}

func (c *Conn) process() {
	if c.fd < 0 {
		return
	}

	began := time.Now()
	code := c.processRead()
	if code == NoRequest {
		if !c.rearm(poller.Readable) {
			c.close()
		}
		return
	}

	if !c.respond(code) {
		c.close()
		return
	}

	c.env.Stats.RecordResponse(c.status, time.Since(began))
	c.log.WithFields(logrus.Fields{
		"url":    c.req.URL,
		"status": c.status,
		"linger": c.req.Linger,
	}).Debug("request served")

	if !c.rearm(poller.Writable) {
		c.unmap()
		c.close()
	}
}

// respond composes the response for code, falling back to a 500 when it
// cannot be built. It returns false if not even the 500 fits.
func (c *Conn) respond(code Code) bool {
	if c.processWrite(code) {
		return true
	}
	c.log.WithField("code", code).Warn("response does not fit the write buffer")
	c.unmap()
	return c.processWrite(InternalError)
}

// Write sends the pending response with writev, resuming where a previous
// call stopped. It returns false when the connection must be closed.
func (c *Conn) Write() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fd < 0 {
		return false
	}

	if c.bytesToSend == 0 {
		c.reset()
		return c.rearm(poller.Readable)
	}

	for {
		n, err := unix.Writev(c.fd, c.pending())
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return c.rearm(poller.Writable)
			}
			if errors.Is(err, unix.EINTR) {
				continue
			}
			c.log.WithError(err).Debug("writev failed")
			c.unmap()
			return false
		}

		c.bytesHaveSend += n
		c.bytesToSend -= n
		c.env.Stats.BytesSent.Add(int64(n))

		if c.bytesHaveSend >= c.writeIdx {
			c.iv[0] = nil
			if c.ivCount == 2 {
				c.iv[1] = c.file[c.bytesHaveSend-c.writeIdx:]
			}
		} else {
			c.iv[0] = c.writeBuf[c.bytesHaveSend:c.writeIdx]
		}

		if c.bytesToSend <= 0 {
			c.unmap()
			if !c.req.Linger {
				return false
			}
			c.reset()
			return c.rearm(poller.Readable)
		}
	}
}

// pending returns the non-empty parts of the scatter-gather list
func (c *Conn) pending() [][]byte {
	out := make([][]byte, 0, 2)
	for i := 0; i < c.ivCount; i++ {
		if len(c.iv[i]) > 0 {
			out = append(out, c.iv[i])
		}
	}
	return out
}

func (c *Conn) rearm(in poller.Interest) bool {
	if err := c.env.Poller.Mod(c.fd, in); err != nil {
		c.log.WithError(err).Warn("re-arm failed")
		return false
	}
	return true
}

// Close deregisters and closes the socket. Only the first call has any
// effect, so the active counter is decremented exactly once.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.close()
}

// Closed reports whether Close has run since the last Init
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fd < 0
}

func (c *Conn) close() {
	if c.fd < 0 {
		return
	}

	if err := c.env.Poller.Remove(c.fd); err != nil {
		c.log.WithError(err).Debug("deregister failed")
	}
	if err := unix.Close(c.fd); err != nil {
		c.log.WithError(err).Debug("close failed")
	}
	c.fd = -1
	c.unmap()
	c.env.Stats.Active.Dec()
	c.log.Debug("connection closed")
}
