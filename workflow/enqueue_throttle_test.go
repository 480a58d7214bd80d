package workflow

import (
	"sync"
	"testing"
	"time"

	"github.com/nordfaktur/invoicing_backend/models"
)

// NOTE: These tests are intentionally DB-free. They validate the intended
// validation-enqueue semantics:
// - the conditional UPDATE on last_enqueued_at is a compare-and-set, so
//   concurrent enqueue attempts for one identity yield exactly one job
// - a second attempt inside the throttle window is suppressed, an attempt
//   after the window wins again
//
// Full DB integration tests should be added in an environment that can run
// MySQL.

type fakeEnqueueSlot struct {
	mu             sync.Mutex
	lastEnqueuedAt map[int]time.Time
	jobs           int
}

func newFakeEnqueueSlot() *fakeEnqueueSlot {
	return &fakeEnqueueSlot{lastEnqueuedAt: map[int]time.Time{}}
}

// claim mirrors the single conditional UPDATE: the caller whose write is
// applied sees one affected row and schedules the job.
func (f *fakeEnqueueSlot) claim(identityId int, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	last, ok := f.lastEnqueuedAt[identityId]
	if ok && !last.Before(now.Add(-models.EnqueueThrottleWindow)) {
		return false
	}
	f.lastEnqueuedAt[identityId] = now
	f.jobs++
	return true
}

func TestEnqueueThrottle_ConcurrentCallers_OneWinner(t *testing.T) {
	f := newFakeEnqueueSlot()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	const callers = 50
	var wg sync.WaitGroup
	var winners int
	var winnersMu sync.Mutex
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.claim(7, now) {
				winnersMu.Lock()
				winners++
				winnersMu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	if f.jobs != 1 {
		t.Fatalf("expected exactly one job scheduled, got %d", f.jobs)
	}
}

func TestEnqueueThrottle_WindowSuppressesSecondAttempt(t *testing.T) {
	f := newFakeEnqueueSlot()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	if !f.claim(7, now) {
		t.Fatal("first attempt should win")
	}
	if f.claim(7, now.Add(5*time.Minute)) {
		t.Fatal("attempt inside the throttle window should be suppressed")
	}
	if !f.claim(7, now.Add(models.EnqueueThrottleWindow+time.Second)) {
		t.Fatal("attempt after the throttle window should win")
	}
	if f.jobs != 2 {
		t.Fatalf("expected two jobs scheduled, got %d", f.jobs)
	}
}

func TestEnqueueThrottle_DistinctIdentitiesIndependent(t *testing.T) {
	f := newFakeEnqueueSlot()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	if !f.claim(1, now) || !f.claim(2, now) {
		t.Fatal("first attempt per identity should win")
	}
	if f.jobs != 2 {
		t.Fatalf("expected one job per identity, got %d", f.jobs)
	}
}
