// Package solcache computes solution lines in the background and caches
// them.
//
// Requests are keyed by position, first move and search depth. At most one
// computation runs per key: a second request for a key that is already
// queued or running shares the first request's Handle, as long as that
// computation searches at least as many plies. Callers cut shared lines to
// their own bound with solver.Line.Truncate. Readers only ever see
// a finished line or nothing. Dispatched work is never cancelled; a waiter
// that gives up simply stops waiting and the result still lands in the
// cache.
package solcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/hailam/chesstrainer/internal/board"
	"github.com/hailam/chesstrainer/internal/solver"
)

// ErrClosed is returned by handles scheduled after Close.
var ErrClosed = errors.New("solution cache closed")

// Key identifies one solution computation.
type Key struct {
	FEN       string
	FirstMove string // UCI
	Depth     int
}

// String is the durable form of the key.
func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%d", k.FEN, k.FirstMove, k.Depth)
}

// Searcher computes a solution line. *solver.Solver implements it.
type Searcher interface {
	Solve(ctx context.Context, pos *board.Position, first board.Move, maxPlies, depth int) (solver.Line, error)
}

// Store is durable storage for finished lines. Failures are logged by the
// cache and otherwise ignored.
type Store interface {
	Get(key string) (solver.Line, bool, error)
	Put(key string, line solver.Line) error
}

// Handle is a shared view of one computation.
type Handle struct {
	key   Key
	plies int // solver.MaxLen of the search bound
	done  chan struct{}
	line solver.Line
	err  error
}

func newHandle(key Key, maxPlies int) *Handle {
	return &Handle{key: key, plies: solver.MaxLen(maxPlies), done: make(chan struct{})}
}

// Key returns the key the handle was scheduled under.
func (h *Handle) Key() Key { return h.key }

// MaxPlies returns the longest line the computation may produce.
func (h *Handle) MaxPlies() int { return h.plies }

// covers reports whether the handle answers a request bounded by maxPlies:
// it searched at least that deep, or it finished on a line that stopped
// before its own bound and so would not grow with a deeper search.
func (h *Handle) covers(maxPlies int) bool {
	if h.plies >= solver.MaxLen(maxPlies) {
		return true
	}
	return h.Ready() && h.err == nil && h.line.Len() < h.plies
}

// Done is closed once the computation has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Ready reports whether the computation has finished.
func (h *Handle) Ready() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the line is ready or ctx ends. Ending ctx does not stop
// the computation.
func (h *Handle) Wait(ctx context.Context) (solver.Line, error) {
	select {
	case <-h.done:
		return h.line, h.err
	case <-ctx.Done():
		return solver.Line{}, ctx.Err()
	}
}

func (h *Handle) finish(line solver.Line, err error) {
	h.line, h.err = line, err
	close(h.done)
}

type job struct {
	h *Handle
}

type shard struct {
	mu      sync.Mutex
	entries map[Key]*Handle
}

const numShards = 16

// Cache schedules and remembers solution lines.
type Cache struct {
	search  Searcher
	store   Store
	log     zerolog.Logger
	workers int
	buffer  int
	timeout time.Duration

	shards [numShards]shard
	jobs   chan job
	wg     sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool

	hits     atomic.Uint64
	misses   atomic.Uint64
	computed atomic.Uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithWorkers sets the number of background workers. The evaluator is a
// single process, so the default is one.
func WithWorkers(n int) Option {
	return func(c *Cache) {
		if n >= 1 {
			c.workers = n
		}
	}
}

// WithBufferSize sets how many requests may queue before Schedule blocks.
func WithBufferSize(n int) Option {
	return func(c *Cache) {
		if n >= 1 {
			c.buffer = n
		}
	}
}

// WithStore sets durable storage.
func WithStore(s Store) Option {
	return func(c *Cache) { c.store = s }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// WithTimeout bounds a single computation. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Cache) { c.timeout = d }
}

// New starts a cache computing lines with search.
func New(search Searcher, opts ...Option) *Cache {
	c := &Cache{
		search:  search,
		log:     zerolog.Nop(),
		workers: 1,
		buffer:  64,
	}
	for _, opt := range opts {
		opt(c)
	}
	for i := range c.shards {
		c.shards[i].entries = make(map[Key]*Handle)
	}
	c.jobs = make(chan job, c.buffer)
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}
	return c
}

func (c *Cache) shardFor(k Key) *shard {
	return &c.shards[xxhash.Sum64String(k.String())%numShards]
}

// Schedule returns the handle computing key, queueing a new computation only
// when no entry covers maxPlies. A shallower entry is replaced. The returned
// line may be longer than maxPlies. It may block while the queue is full.
func (c *Cache) Schedule(key Key, maxPlies int) *Handle {
	s := c.shardFor(key)
	s.mu.Lock()
	if h, ok := s.entries[key]; ok && h.covers(maxPlies) {
		s.mu.Unlock()
		c.hits.Add(1)
		return h
	}
	h := newHandle(key, maxPlies)
	s.entries[key] = h
	s.mu.Unlock()
	c.misses.Add(1)

	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		c.forget(h)
		h.finish(solver.Line{}, ErrClosed)
		return h
	}
	c.jobs <- job{h: h}
	return h
}

// Lookup returns a finished line for key. Queued, running and failed
// computations report false.
func (c *Cache) Lookup(key Key) (solver.Line, bool) {
	s := c.shardFor(key)
	s.mu.Lock()
	h, ok := s.entries[key]
	s.mu.Unlock()
	if !ok || !h.Ready() || h.err != nil {
		return solver.Line{}, false
	}
	return h.line, true
}

// Clear drops every finished entry. Work that is queued or running is kept
// so that later requests still share it.
func (c *Cache) Clear() {
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for k, h := range s.entries {
			if h.Ready() {
				delete(s.entries, k)
			}
		}
		s.mu.Unlock()
	}
}

// Len returns the number of entries, finished or not.
func (c *Cache) Len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// Stats reports request and computation counts.
type Stats struct {
	Hits     uint64 // requests that joined an existing entry
	Misses   uint64 // requests that created one
	Computed uint64 // searches actually run
}

// Stats returns the counters so far.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Computed: c.computed.Load()}
}

// Close stops accepting work and waits for queued work to finish.
func (c *Cache) Close() {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	close(c.jobs)
	c.closeMu.Unlock()
	c.wg.Wait()
}

func (c *Cache) worker() {
	defer c.wg.Done()
	for j := range c.jobs {
		line, err := c.compute(j)
		if err != nil {
			// A failed entry is removed so the next request retries.
			c.forget(j.h)
		}
		j.h.finish(line, err)
	}
}

func (c *Cache) forget(h *Handle) {
	s := c.shardFor(h.key)
	s.mu.Lock()
	if s.entries[h.key] == h {
		delete(s.entries, h.key)
	}
	s.mu.Unlock()
}

func (c *Cache) compute(j job) (solver.Line, error) {
	key := j.h.key
	durable := storeKey(key, j.h.plies)
	log := c.log.With().Str("key", durable).Logger()

	if c.store != nil {
		line, ok, err := c.store.Get(durable)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("solution store read failed")
		case ok:
			verr := line.Verify()
			if verr == nil {
				log.Debug().Msg("solution from store")
				return line, nil
			}
			log.Warn().Err(verr).Msg("stored solution is invalid")
		}
	}

	pos, first, err := board.ParseFENAndMove(key.FEN, key.FirstMove)
	if err != nil {
		return solver.Line{}, err
	}

	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	c.computed.Add(1)
	start := time.Now()
	line, err := c.search.Solve(ctx, pos, first, j.h.plies, key.Depth)
	if err != nil {
		log.Warn().Err(err).Msg("solution search failed")
		return solver.Line{}, err
	}
	log.Debug().Int("plies", line.Len()).Dur("took", time.Since(start)).Msg("solved")

	if c.store != nil {
		if err := c.store.Put(durable, line); err != nil {
			log.Warn().Err(err).Msg("solution store write failed")
		}
	}
	return line, nil
}

// storeKey names a line in the durable store. Lines searched to different
// bounds are kept apart.
func storeKey(k Key, plies int) string {
	return fmt.Sprintf("%s|%d", k, plies)
}
