package timer

import (
	"math/rand"
	"sort"
	"testing"
	"time"
)

func assertSorted(t *testing.T, l *List[int]) {
	t.Helper()
	exp := l.Expiries()
	if len(exp) != l.Len() {
		t.Fatalf("Expected %d entries in order walk, got %d", l.Len(), len(exp))
	}
	for i := 1; i < len(exp); i++ {
		if exp[i].Before(exp[i-1]) {
			t.Fatalf("List not sorted at %d: %v before %v", i, exp[i], exp[i-1])
		}
	}
}

func TestTickEvictsExactlyExpiredPrefix(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	rng := rand.New(rand.NewSource(42))
	l := NewList[int](16)

	offsets := make([]int, 200)
	for i := range offsets {
		offsets[i] = rng.Intn(100)
		l.Add(base.Add(time.Duration(offsets[i])*time.Second), offsets[i])
	}
	assertSorted(t, l)

	sorted := append([]int(nil), offsets...)
	sort.Ints(sorted)

	evictedTotal := 0
	for now := 0; now <= 105; now += 7 {
		var evicted []int
		l.Tick(base.Add(time.Duration(now)*time.Second), func(v int) {
			evicted = append(evicted, v)
		})

		for _, v := range evicted {
			if v > now {
				t.Fatalf("Evicted entry %d before its expiry at now=%d", v, now)
			}
		}
		for i, v := range evicted {
			if sorted[evictedTotal+i] != v {
				t.Fatalf("Expected evictions in sorted order, got %d want %d", v, sorted[evictedTotal+i])
			}
		}
		evictedTotal += len(evicted)

		if next, ok := l.Next(); ok && !next.After(base.Add(time.Duration(now)*time.Second)) {
			t.Fatalf("Live head %v is already expired at now=%d", next, now)
		}
		assertSorted(t, l)
	}

	if evictedTotal != len(offsets) {
		t.Errorf("Expected all %d entries evicted, got %d", len(offsets), evictedTotal)
	}
	if l.Len() != 0 {
		t.Errorf("Expected empty list, got %d", l.Len())
	}
}

func TestAdjustRelocates(t *testing.T) {
	base := time.Unix(0, 0)
	l := NewList[int](4)

	a := l.Add(base.Add(1*time.Second), 1)
	l.Add(base.Add(2*time.Second), 2)
	l.Add(base.Add(3*time.Second), 3)

	if !l.Adjust(a, base.Add(10*time.Second)) {
		t.Fatal("Adjust on live id should succeed")
	}
	assertSorted(t, l)

	var got []int
	l.Tick(base.Add(5*time.Second), func(v int) { got = append(got, v) })
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("Expected [2 3] evicted, got %v", got)
	}
	if l.Len() != 1 {
		t.Errorf("Expected refreshed entry to survive, got len %d", l.Len())
	}

	// Moving an entry earlier works too.
	b := l.Add(base.Add(20*time.Second), 4)
	l.Adjust(b, base.Add(6*time.Second))
	next, _ := l.Next()
	if !next.Equal(base.Add(6 * time.Second)) {
		t.Errorf("Expected head at 6s, got %v", next)
	}
	assertSorted(t, l)
}

func TestDeleteAndStaleIDs(t *testing.T) {
	base := time.Unix(0, 0)
	l := NewList[string](4)

	a := l.Add(base.Add(time.Second), "a")
	if !l.Delete(a) {
		t.Fatal("Delete on live id should succeed")
	}
	if l.Delete(a) {
		t.Error("Second Delete should be a no-op")
	}

	// The freed slot is reused; the old id must not reach the new entry.
	b := l.Add(base.Add(2*time.Second), "b")
	if l.Delete(a) || l.Adjust(a, base) {
		t.Error("Stale id must not affect a reused slot")
	}
	if l.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", l.Len())
	}

	n := l.Tick(base.Add(3*time.Second), nil)
	if n != 1 {
		t.Errorf("Expected 1 eviction, got %d", n)
	}
	if l.Delete(b) {
		t.Error("Entry evicted by Tick should be stale")
	}
}

func TestTickCallbackMayReenterList(t *testing.T) {
	base := time.Unix(0, 0)
	l := NewList[int](4)
	l.Add(base, 1)

	l.Tick(base, func(v int) {
		l.Add(base.Add(time.Hour), v+1)
	})
	if l.Len() != 1 {
		t.Errorf("Expected re-added entry, got len %d", l.Len())
	}
}

func TestZeroIDInvalid(t *testing.T) {
	var id ID
	if id.Valid() || NoID.Valid() {
		t.Error("Zero and NoID must not be valid")
	}
	l := NewList[int](1)
	if l.Delete(id) {
		t.Error("Delete of zero id should fail")
	}
	if !l.Add(time.Now(), 1).Valid() {
		t.Error("Issued id should be valid")
	}
}
