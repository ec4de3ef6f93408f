package pools

import (
	"errors"
	"sync"
)

// ErrSlotOutOfRange is returned for descriptors beyond the table capacity
var ErrSlotOutOfRange = errors.New("pools: descriptor outside slot table")

// Handle is a stable reference to one occupancy of a slot.
// A handle taken before the descriptor was closed and reused no longer resolves.
type Handle struct {
	FD  int
	Gen uint32
}

// SlotPoolable defines the interface for objects stored in a SlotTable
type SlotPoolable interface {
	// Reset clears per-occupancy state before the slot is reused
	Reset()
}

type slot[T SlotPoolable] struct {
	obj  T
	gen  uint32
	used bool
}

// SlotTable is a fixed-capacity arena addressed directly by descriptor.
// Objects are created lazily per slot and reset, never freed, on reuse.
type SlotTable[T SlotPoolable] struct {
	mu      sync.RWMutex
	slots   []slot[T]
	newFunc func() T

	gets uint64
	news uint64
}

// NewSlotTable creates a table accepting descriptors in [0, capacity)
func NewSlotTable[T SlotPoolable](capacity int, newFunc func() T) *SlotTable[T] {
	return &SlotTable[T]{
		slots:   make([]slot[T], capacity),
		newFunc: newFunc,
	}
}

// Cap returns the table capacity
func (st *SlotTable[T]) Cap() int {
	return len(st.slots)
}

// Acquire reinitializes the slot for fd and returns its object with a fresh handle
func (st *SlotTable[T]) Acquire(fd int) (T, Handle, error) {
	var zero T
	if fd < 0 || fd >= len(st.slots) {
		return zero, Handle{}, ErrSlotOutOfRange
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	s := &st.slots[fd]
	st.gets++
	if !s.used && s.gen == 0 {
		s.obj = st.newFunc()
		st.news++
	} else {
		s.obj.Reset()
	}
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.used = true

	return s.obj, Handle{FD: fd, Gen: s.gen}, nil
}

// Get resolves the current occupant of fd regardless of generation
func (st *SlotTable[T]) Get(fd int) (T, Handle, bool) {
	var zero T
	if fd < 0 || fd >= len(st.slots) {
		return zero, Handle{}, false
	}

	st.mu.RLock()
	defer st.mu.RUnlock()

	s := &st.slots[fd]
	if !s.used {
		return zero, Handle{}, false
	}
	return s.obj, Handle{FD: fd, Gen: s.gen}, true
}

// Resolve returns the object only if h still names the current occupancy
func (st *SlotTable[T]) Resolve(h Handle) (T, bool) {
	obj, cur, ok := st.Get(h.FD)
	if !ok || cur.Gen != h.Gen {
		var zero T
		return zero, false
	}
	return obj, true
}

// Release marks the occupancy h as ended. A stale handle is ignored.
func (st *SlotTable[T]) Release(h Handle) bool {
	if h.FD < 0 || h.FD >= len(st.slots) {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	s := &st.slots[h.FD]
	if !s.used || s.gen != h.Gen {
		return false
	}
	s.used = false
	return true
}

// Range calls fn for every occupied slot until fn returns false
func (st *SlotTable[T]) Range(fn func(h Handle, obj T) bool) {
	st.mu.RLock()
	type occupant struct {
		h   Handle
		obj T
	}
	live := make([]occupant, 0, 64)
	for fd := range st.slots {
		if s := &st.slots[fd]; s.used {
			live = append(live, occupant{Handle{FD: fd, Gen: s.gen}, s.obj})
		}
	}
	st.mu.RUnlock()

	for _, o := range live {
		if !fn(o.h, o.obj) {
			return
		}
	}
}

// Stats returns table statistics
func (st *SlotTable[T]) Stats() (gets, news uint64, hitRate float64) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if st.gets > 0 {
		hitRate = float64(st.gets-st.news) / float64(st.gets)
	}
	return st.gets, st.news, hitRate
}
