package observability

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/puzpuzpuz/xsync/v3"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Latency bucket upper bounds; the last bucket is open-ended
var latencyBounds = [...]time.Duration{
	50 * time.Microsecond,
	100 * time.Microsecond,
	250 * time.Microsecond,
	500 * time.Microsecond,
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
}

// Stats holds the process-wide counters shared by the reactor, the workers
// and every connection. One instance is created per engine and passed down.
type Stats struct {
	started time.Time

	Accepted  *xsync.Counter
	Active    *xsync.Counter
	Requests  *xsync.Counter
	Dropped   *xsync.Counter
	Evicted   *xsync.Counter
	Rejected  *xsync.Counter
	BytesSent *xsync.Counter

	statuses *xsync.MapOf[int, *xsync.Counter]
	latency  [len(latencyBounds) + 1]*xsync.Counter
}

// NewStats creates a zeroed counter set
func NewStats() *Stats {
	s := &Stats{
		started:   time.Now(),
		Accepted:  xsync.NewCounter(),
		Active:    xsync.NewCounter(),
		Requests:  xsync.NewCounter(),
		Dropped:   xsync.NewCounter(),
		Evicted:   xsync.NewCounter(),
		Rejected:  xsync.NewCounter(),
		BytesSent: xsync.NewCounter(),
		statuses:  xsync.NewMapOf[int, *xsync.Counter](),
	}
	for i := range s.latency {
		s.latency[i] = xsync.NewCounter()
	}
	return s
}

// RecordResponse counts one built response with its status and the time
// spent parsing and composing it
func (s *Stats) RecordResponse(status int, took time.Duration) {
	s.Requests.Inc()

	c, _ := s.statuses.LoadOrCompute(status, xsync.NewCounter)
	c.Inc()

	idx := len(latencyBounds)
	for i, bound := range latencyBounds {
		if took < bound {
			idx = i
			break
		}
	}
	s.latency[idx].Inc()
}

// Snapshot is a point-in-time copy of Stats
type Snapshot struct {
	UptimeSeconds float64          `json:"uptime_seconds"`
	Accepted      int64            `json:"accepted"`
	Active        int64            `json:"active"`
	Requests      int64            `json:"requests"`
	Dropped       int64            `json:"dropped"`
	Evicted       int64            `json:"evicted"`
	Rejected      int64            `json:"rejected"`
	BytesSent     int64            `json:"bytes_sent"`
	Statuses      map[string]int64 `json:"statuses"`
	Latency       map[string]int64 `json:"latency"`
}

// Snapshot copies the current counter values
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		UptimeSeconds: time.Since(s.started).Seconds(),
		Accepted:      s.Accepted.Value(),
		Active:        s.Active.Value(),
		Requests:      s.Requests.Value(),
		Dropped:       s.Dropped.Value(),
		Evicted:       s.Evicted.Value(),
		Rejected:      s.Rejected.Value(),
		BytesSent:     s.BytesSent.Value(),
		Statuses:      make(map[string]int64),
		Latency:       make(map[string]int64, len(s.latency)),
	}

	s.statuses.Range(func(status int, c *xsync.Counter) bool {
		snap.Statuses[strconv.Itoa(status)] = c.Value()
		return true
	})

	for i, c := range s.latency {
		snap.Latency[bucketName(i)] = c.Value()
	}

	return snap
}

func bucketName(i int) string {
	if i < len(latencyBounds) {
		return "lt_" + latencyBounds[i].String()
	}
	return "ge_" + latencyBounds[len(latencyBounds)-1].String()
}

// MarshalJSONIndent encodes the snapshot as indented JSON
func (snap Snapshot) MarshalJSONIndent() ([]byte, error) {
	return json.MarshalIndent(snap, "", "  ")
}

// Proto converts the snapshot to a protobuf Struct
func (snap Snapshot) Proto() (*structpb.Struct, error) {
	statuses := make(map[string]any, len(snap.Statuses))
	for k, v := range snap.Statuses {
		statuses[k] = v
	}
	latency := make(map[string]any, len(snap.Latency))
	for k, v := range snap.Latency {
		latency[k] = v
	}

	return structpb.NewStruct(map[string]any{
		"uptime_seconds": snap.UptimeSeconds,
		"accepted":       snap.Accepted,
		"active":         snap.Active,
		"requests":       snap.Requests,
		"dropped":        snap.Dropped,
		"evicted":        snap.Evicted,
		"rejected":       snap.Rejected,
		"bytes_sent":     snap.BytesSent,
		"statuses":       statuses,
		"latency":        latency,
	})
}

// MarshalProto encodes the snapshot in protobuf wire format
func (snap Snapshot) MarshalProto() ([]byte, error) {
	st, err := snap.Proto()
	if err != nil {
		return nil, fmt.Errorf("stats: build struct: %w", err)
	}
	return proto.Marshal(st)
}

// Text renders the snapshot for humans
func (snap Snapshot) Text() string {
	codes := make([]string, 0, len(snap.Statuses))
	for code := range snap.Statuses {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	statusLine := ""
	for _, code := range codes {
		statusLine += fmt.Sprintf(" %s=%d", code, snap.Statuses[code])
	}

	return fmt.Sprintf(`Server Statistics
=================

Connections:
  Accepted: %d
  Active:   %d
  Evicted:  %d
  Rejected: %d

Requests:
  Total:    %d
  Dropped:  %d
  Statuses:%s

Bytes sent: %d
Uptime:     %.0fs
`,
		snap.Accepted, snap.Active, snap.Evicted, snap.Rejected,
		snap.Requests, snap.Dropped, statusLine,
		snap.BytesSent, snap.UptimeSeconds,
	)
}
