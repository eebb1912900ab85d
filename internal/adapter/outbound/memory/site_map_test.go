package memory

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Sentinel-Gate/ratelog/internal/domain/logsite"
	"github.com/Sentinel-Gate/ratelog/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/ratelog/internal/domain/scope"
)

var siteA = logsite.Site{Function: "svc.Fetch", File: "fetch.go", Line: 12}

func TestSiteMap_GetCreatesOnce(t *testing.T) {
	t.Parallel()

	m := NewSiteMap[*ratelimit.CountLimiter]()
	var created int
	create := func() *ratelimit.CountLimiter {
		created++
		return ratelimit.NewCountLimiter()
	}

	first := m.Get(siteA, create)
	second := m.Get(siteA, create)

	if first != second {
		t.Error("Get() should return the same instance for the same key")
	}
	if created != 1 {
		t.Errorf("create called %d times, want 1", created)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestSiteMap_DifferentKeys(t *testing.T) {
	t.Parallel()

	m := NewSiteMap[*ratelimit.SkipCounter]()
	newCounter := func() *ratelimit.SkipCounter { return &ratelimit.SkipCounter{} }

	a := m.Get(siteA, newCounter)
	b := m.Get(logsite.Specialize(siteA, 1), newCounter)
	c := m.Get(logsite.Specialize(siteA, 2), newCounter)

	if a == b || b == c || a == c {
		t.Error("distinct keys must have distinct state")
	}
	if m.Len() != 3 {
		t.Errorf("Len() = %d, want 3", m.Len())
	}

	keys := 0
	m.Range(func(logsite.Key, *ratelimit.SkipCounter) bool {
		keys++
		return true
	})
	if keys != 3 {
		t.Errorf("Range visited %d keys, want 3", keys)
	}
}

func TestSiteMap_ConcurrentFirstAccess(t *testing.T) {
	t.Parallel()

	m := NewSiteMap[*ratelimit.DurationLimiter]()

	const goroutines = 32
	results := make([]*ratelimit.DurationLimiter, goroutines)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i] = m.Get(siteA, ratelimit.NewDurationLimiter)
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		if results[i] != results[0] {
			t.Fatalf("goroutine %d observed a different instance", i)
		}
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestSiteMap_ScopeCloseRemovesEntries(t *testing.T) {
	t.Parallel()

	m := NewSiteMap[*ratelimit.CountLimiter]()
	s1 := scope.Create("request-1")
	s2 := scope.Create("request-2")

	m.Get(siteA, ratelimit.NewCountLimiter)
	m.Get(s1.Specialize(siteA), ratelimit.NewCountLimiter)
	m.Get(logsite.Specialize(s1.Specialize(siteA), "bucket"), ratelimit.NewCountLimiter)
	kept := m.Get(s2.Specialize(siteA), ratelimit.NewCountLimiter)

	if m.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", m.Len())
	}

	closed := logsite.Lifetimes(s1.Specialize(siteA))[0]
	s1.Close()

	if m.Len() != 2 {
		t.Errorf("Len() after close = %d, want 2", m.Len())
	}
	m.Range(func(k logsite.Key, _ *ratelimit.CountLimiter) bool {
		for _, lt := range logsite.Lifetimes(k) {
			if lt == closed {
				t.Errorf("entry %s of a closed scope survived", k)
			}
		}
		return true
	})
	if m.Get(s2.Specialize(siteA), ratelimit.NewCountLimiter) != kept {
		t.Error("entries of other scopes must be untouched")
	}
}

func TestSiteMap_GetOnClosedScope(t *testing.T) {
	t.Parallel()

	m := NewSiteMap[*ratelimit.SkipCounter]()
	s := scope.Create("closed")
	s.Close()

	v := m.Get(s.Specialize(siteA), func() *ratelimit.SkipCounter { return &ratelimit.SkipCounter{} })
	if v == nil {
		t.Fatal("Get() must still return a value")
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0 for a closed scope", m.Len())
	}
}

func TestSiteMap_UnreachableScopeIsCleaned(t *testing.T) {
	m := NewSiteMap[*ratelimit.CountLimiter]()

	func() {
		s := scope.Create("")
		m.Get(s.Specialize(siteA), ratelimit.NewCountLimiter)
	}()
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}

	deadline := time.Now().Add(5 * time.Second)
	for m.Len() != 0 && time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
		scope.Drain()
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after the scope was collected", m.Len())
	}
}

func TestSiteMap_ManyScopesNoLeak(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m := NewSiteMap[*ratelimit.SkipCounter]()
	var created atomic.Int32
	newCounter := func() *ratelimit.SkipCounter {
		created.Add(1)
		return &ratelimit.SkipCounter{}
	}

	for i := 0; i < 1000; i++ {
		s := scope.Create("")
		m.Get(s.Specialize(siteA), newCounter)
		s.Close()
	}

	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
	if created.Load() != 1000 {
		t.Errorf("created = %d, want 1000", created.Load())
	}
}

func TestNewStores(t *testing.T) {
	t.Parallel()

	stores := NewStores()
	stores.Counts.Get(siteA, ratelimit.NewCountLimiter)
	stores.Skips.Get(siteA, func() *ratelimit.SkipCounter { return &ratelimit.SkipCounter{} })

	if stores.Len() != 2 {
		t.Errorf("Stores.Len() = %d, want 2", stores.Len())
	}
}
