// Package timer keeps per-connection expiry entries in ascending order so the
// reactor can evict idle connections by walking from the head.
package timer

import (
	"sync"
	"time"
)

const nilIndex = -1

// ID addresses an entry in a List. The generation makes an ID stale once its
// entry is removed, so a late Adjust or Delete can never touch a reused slot.
type ID struct {
	index int32
	gen   uint32
}

// NoID is the zero-value "no entry" id
var NoID = ID{index: nilIndex}

// Valid reports whether the id was ever issued
func (id ID) Valid() bool {
	return id.index >= 0 && id.gen != 0
}

type entry[T any] struct {
	expire time.Time
	value  T
	prev   int32
	next   int32
	gen    uint32
	live   bool
}

// List is an arena-backed doubly linked list sorted by expiry
type List[T any] struct {
	mu      sync.Mutex
	entries []entry[T]
	free    []int32
	head    int32
	tail    int32
	size    int
}

// NewList creates a list with room for capacity entries before growing
func NewList[T any](capacity int) *List[T] {
	return &List[T]{
		entries: make([]entry[T], 0, capacity),
		head:    nilIndex,
		tail:    nilIndex,
	}
}

// Add inserts value with the given expiry and returns its id
func (l *List[T]) Add(expire time.Time, value T) ID {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.alloc()
	e := &l.entries[idx]
	e.expire = expire
	e.value = value
	e.live = true
	e.gen++
	if e.gen == 0 {
		e.gen = 1
	}

	l.insert(idx)
	l.size++

	return ID{index: idx, gen: e.gen}
}

// Adjust moves the entry to a new expiry, keeping the list sorted.
// It returns false if id no longer refers to a live entry.
func (l *List[T]) Adjust(id ID, expire time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.owns(id) {
		return false
	}

	l.unlink(id.index)
	l.entries[id.index].expire = expire
	l.insert(id.index)

	return true
}

// Delete unlinks the entry. Deleting a stale id is a no-op returning false.
func (l *List[T]) Delete(id ID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.owns(id) {
		return false
	}

	l.release(id.index)
	return true
}

// Tick removes every entry whose expiry is not after now and calls expired
// for each removed value, oldest first. The callback runs without the list
// lock held, so it may call back into the list.
func (l *List[T]) Tick(now time.Time, expired func(T)) int {
	l.mu.Lock()
	var due []T
	for l.head != nilIndex {
		e := &l.entries[l.head]
		if e.expire.After(now) {
			break
		}
		due = append(due, e.value)
		l.release(l.head)
	}
	l.mu.Unlock()

	if expired != nil {
		for _, v := range due {
			expired(v)
		}
	}

	return len(due)
}

// Len returns the number of live entries
func (l *List[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Next returns the earliest expiry
func (l *List[T]) Next() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.head == nilIndex {
		return time.Time{}, false
	}
	return l.entries[l.head].expire, true
}

// Expiries returns the expiry of every entry in list order
func (l *List[T]) Expiries() []time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]time.Time, 0, l.size)
	for i := l.head; i != nilIndex; i = l.entries[i].next {
		out = append(out, l.entries[i].expire)
	}
	return out
}

func (l *List[T]) owns(id ID) bool {
	if id.index < 0 || int(id.index) >= len(l.entries) {
		return false
	}
	e := &l.entries[id.index]
	return e.live && e.gen == id.gen
}

func (l *List[T]) alloc() int32 {
	if n := len(l.free); n > 0 {
		idx := l.free[n-1]
		l.free = l.free[:n-1]
		return idx
	}
	l.entries = append(l.entries, entry[T]{prev: nilIndex, next: nilIndex})
	return int32(len(l.entries) - 1)
}

func (l *List[T]) release(idx int32) {
	l.unlink(idx)

	var zero T
	e := &l.entries[idx]
	e.value = zero
	e.live = false
	l.free = append(l.free, idx)
	l.size--
}

// insert links idx in sorted position. Refreshed entries usually carry the
// latest expiry, so the scan starts from the tail.
func (l *List[T]) insert(idx int32) {
	e := &l.entries[idx]

	at := l.tail
	for at != nilIndex && l.entries[at].expire.After(e.expire) {
		at = l.entries[at].prev
	}

	e.prev = at
	if at == nilIndex {
		e.next = l.head
		l.head = idx
	} else {
		e.next = l.entries[at].next
		l.entries[at].next = idx
	}

	if e.next == nilIndex {
		l.tail = idx
	} else {
		l.entries[e.next].prev = idx
	}
}

func (l *List[T]) unlink(idx int32) {
	e := &l.entries[idx]

	if e.prev == nilIndex {
		l.head = e.next
	} else {
		l.entries[e.prev].next = e.next
	}
	if e.next == nilIndex {
		l.tail = e.prev
	} else {
		l.entries[e.next].prev = e.prev
	}

	e.prev = nilIndex
	e.next = nilIndex
}
