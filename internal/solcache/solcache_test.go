package solcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hailam/chesstrainer/internal/board"
	cterrors "github.com/hailam/chesstrainer/internal/errors"
	"github.com/hailam/chesstrainer/internal/solver"
	"github.com/hailam/chesstrainer/internal/testutil"
)

const forkFEN = "4k3/1r6/8/8/2N5/8/8/K7 w - - 0 1"

var forkKey = Key{FEN: forkFEN, FirstMove: "c4d6", Depth: 12}

func forkEvaluator() *testutil.ScriptedEvaluator {
	ev := testutil.NewScriptedEvaluator()
	ev.Fallback = func(*board.Position) []testutil.Line { return []testutil.Line{testutil.CP(0)} }
	ev.Script(testutil.Play(forkFEN, "c4d6"), testutil.CP(-450, "e8f8"))
	ev.Script(testutil.Play(forkFEN, "c4d6", "e8f8"), testutil.CP(480, "d6b7"))
	return ev
}

// memStore is a Store backed by a map, optionally failing every call.
type memStore struct {
	mu    sync.Mutex
	lines map[string]solver.Line
	fail  error
	puts  int
}

func newMemStore() *memStore { return &memStore{lines: make(map[string]solver.Line)} }

func (s *memStore) Get(key string) (solver.Line, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return solver.Line{}, false, s.fail
	}
	l, ok := s.lines[key]
	return l, ok, nil
}

func (s *memStore) Put(key string, line solver.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.fail != nil {
		return s.fail
	}
	s.lines[key] = line
	return nil
}

func TestScheduleComputesOnce(t *testing.T) {
	ev := forkEvaluator()
	ev.Gate = make(chan struct{})
	c := New(solver.New(ev))
	defer c.Close()

	const n = 20
	handles := make([]*Handle, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i] = c.Schedule(forkKey, 4)
		}(i)
	}
	wg.Wait()

	if _, ok := c.Lookup(forkKey); ok {
		t.Error("line visible before it was computed")
	}
	close(ev.Gate)

	want := []string{"c4d6", "e8f8", "d6b7"}
	for i, h := range handles {
		if h != handles[0] {
			t.Fatalf("request %d got its own handle", i)
		}
		line, err := h.Wait(context.Background())
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, line.UCI(), want)
	}
	if ev.Calls() != 2 {
		t.Errorf("engine calls = %d, want one search of two queries", ev.Calls())
	}
	stats := c.Stats()
	if stats.Computed != 1 || stats.Misses != 1 || stats.Hits != n-1 {
		t.Errorf("stats = %+v", stats)
	}

	line, ok := c.Lookup(forkKey)
	if !ok {
		t.Fatal("finished line not found")
	}
	testutil.AssertEqual(t, line.UCI(), want)
}

func TestWaitIsNotCancellation(t *testing.T) {
	ev := forkEvaluator()
	ev.Gate = make(chan struct{})
	c := New(solver.New(ev))
	defer c.Close()

	h := c.Schedule(forkKey, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := h.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, want deadline exceeded", err)
	}

	close(ev.Gate)
	<-h.Done()
	if _, ok := c.Lookup(forkKey); !ok {
		t.Error("abandoned computation did not populate the cache")
	}
}

func TestDistinctKeys(t *testing.T) {
	c := New(solver.New(forkEvaluator()), WithWorkers(2))
	defer c.Close()

	deeper := forkKey
	deeper.Depth = 14
	a := c.Schedule(forkKey, 4)
	b := c.Schedule(deeper, 4)
	if a == b {
		t.Fatal("different depths shared a handle")
	}
	for _, h := range []*Handle{a, b} {
		_, err := h.Wait(context.Background())
		testutil.AssertNoError(t, err)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestFailedComputationIsRetried(t *testing.T) {
	ev := forkEvaluator()
	ev.Fail(testutil.Play(forkFEN, "c4d6"), fmt.Errorf("engine exited: %w", cterrors.ErrOracleUnavailable))
	c := New(solver.New(ev))
	defer c.Close()

	_, err := c.Schedule(forkKey, 4).Wait(context.Background())
	testutil.AssertErrorIs(t, err, cterrors.ErrOracleUnavailable)
	if _, ok := c.Lookup(forkKey); ok {
		t.Error("failure exposed as a line")
	}
	if c.Len() != 0 {
		t.Error("failed entry kept")
	}

	bad := Key{FEN: forkFEN, FirstMove: "a1a8", Depth: 12}
	_, err = c.Schedule(bad, 4).Wait(context.Background())
	testutil.AssertErrorIs(t, err, cterrors.ErrIllegalMove)
}

func TestStore(t *testing.T) {
	store := newMemStore()
	ev := forkEvaluator()
	c := New(solver.New(ev), WithStore(store))

	_, err := c.Schedule(forkKey, 4).Wait(context.Background())
	testutil.AssertNoError(t, err)
	c.Close()
	if _, ok := store.lines[storeKey(forkKey, 3)]; !ok {
		t.Fatal("line not written to the store")
	}

	// A new cache finds the line without searching.
	fresh := forkEvaluator()
	c = New(solver.New(fresh), WithStore(store))
	defer c.Close()
	line, err := c.Schedule(forkKey, 4).Wait(context.Background())
	testutil.AssertNoError(t, err)
	if line.Len() != 3 || fresh.Calls() != 0 {
		t.Errorf("line %v after %d engine calls", line.UCI(), fresh.Calls())
	}
}

func TestStoreFailuresAreIgnored(t *testing.T) {
	store := newMemStore()
	store.fail = errors.New("disk full")
	c := New(solver.New(forkEvaluator()), WithStore(store))
	defer c.Close()

	line, err := c.Schedule(forkKey, 4).Wait(context.Background())
	testutil.AssertNoError(t, err)
	if line.Len() != 3 || store.puts != 1 {
		t.Errorf("line %v, puts %d", line.UCI(), store.puts)
	}
}

func TestInvalidStoredLineIsRecomputed(t *testing.T) {
	store := newMemStore()
	store.lines[storeKey(forkKey, 3)] = solver.Line{FEN: forkFEN}
	ev := forkEvaluator()
	c := New(solver.New(ev), WithStore(store))
	defer c.Close()

	line, err := c.Schedule(forkKey, 4).Wait(context.Background())
	testutil.AssertNoError(t, err)
	if line.Len() != 3 || ev.Calls() == 0 {
		t.Errorf("line %v after %d engine calls", line.UCI(), ev.Calls())
	}
}

func TestClear(t *testing.T) {
	ev := forkEvaluator()
	c := New(solver.New(ev))
	defer c.Close()

	h := c.Schedule(forkKey, 4)
	<-h.Done()
	c.Clear()
	if _, ok := c.Lookup(forkKey); ok {
		t.Error("Clear kept a finished line")
	}
	<-c.Schedule(forkKey, 4).Done()
	if got := c.Stats().Computed; got != 2 {
		t.Errorf("computed %d times, want 2 after Clear", got)
	}
}

func TestClose(t *testing.T) {
	c := New(solver.New(forkEvaluator()))
	c.Close()
	c.Close()
	_, err := c.Schedule(forkKey, 4).Wait(context.Background())
	if !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestKeyString(t *testing.T) {
	testutil.AssertEqual(t, forkKey.String(), forkFEN+"|c4d6|12")
}

func TestScheduleByPlyBound(t *testing.T) {
	const ladderFEN = "7k/8/8/8/8/8/1R6/R3K3 w - - 0 1"
	ev := testutil.NewScriptedEvaluator()
	ev.Script(testutil.Play(ladderFEN, "a1a7", "h8g8"), testutil.Mate(1, "b2b8"))
	c := New(solver.New(ev))
	defer c.Close()
	key := Key{FEN: ladderFEN, FirstMove: "a1a7", Depth: 12}

	short := c.Schedule(key, 1)
	line, err := short.Wait(context.Background())
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, line.UCI(), []string{"a1a7"})

	// The one-ply line was cut by its bound, so a deeper request searches again.
	deep := c.Schedule(key, 6)
	if deep == short {
		t.Fatal("shallow entry reused for a deeper request")
	}
	line, err = deep.Wait(context.Background())
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, line.UCI(), []string{"a1a7", "h8g8", "b2b8"})

	// Shallower and deeper requests now share the finished mate.
	if h := c.Schedule(key, 1); h != deep {
		t.Error("shallower request did not share the deeper entry")
	}
	if h := c.Schedule(key, 9); h != deep {
		t.Error("line that ended in mate was searched again")
	}
	if got := c.Stats().Computed; got != 2 {
		t.Errorf("computed %d searches, want 2", got)
	}
	testutil.AssertEqual(t, line.Truncate(2).UCI(), []string{"a1a7"})
}
