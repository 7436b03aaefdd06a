package uci

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/hailam/chesstrainer/internal/board"
	"github.com/hailam/chesstrainer/internal/errors"
	"github.com/hailam/chesstrainer/internal/oracle"
)

// Starter launches an engine process.
type Starter func(ctx context.Context, cfg Config) (*Engine, error)

// Supervisor shares one engine process between all callers. The process is
// started on first use, retired after IdleTimeout without calls and started
// again on the next call. Calls run one at a time, so callers that find no
// live process share a single start. Every failure is reported wrapping
// errors.ErrOracleUnavailable.
type Supervisor struct {
	cfg   Config
	start Starter
	log   zerolog.Logger

	mu     sync.Mutex // guards eng, idle, closed
	eng    *Engine
	idle   *time.Timer
	closed bool

	calls sync.Mutex // one search at a time; held while resolving the process

	starts   atomic.Int64
	retires  atomic.Int64
	failures atomic.Int64
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(log zerolog.Logger) SupervisorOption {
	return func(s *Supervisor) {
		s.log = log
	}
}

// WithStarter replaces the process launcher.
func WithStarter(start Starter) SupervisorOption {
	return func(s *Supervisor) {
		if start != nil {
			s.start = start
		}
	}
}

// NewSupervisor returns a supervisor for cfg. No process is started yet.
func NewSupervisor(cfg Config, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		cfg:   cfg.withDefaults(),
		start: Start,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyse implements oracle.Evaluator.
func (s *Supervisor) Analyse(ctx context.Context, pos *board.Position, depth, multiPV int) ([]oracle.Line, error) {
	s.calls.Lock()
	s.stopIdle()
	eng, err := s.engine()
	if err != nil {
		s.calls.Unlock()
		s.failures.Add(1)
		return nil, fmt.Errorf("%v: %w", err, errors.ErrOracleUnavailable)
	}
	lines, err := eng.Analyse(ctx, pos, depth, multiPV)
	s.armIdle(eng)
	s.calls.Unlock()

	if err != nil {
		s.failures.Add(1)
		if !eng.Alive() {
			s.forget(eng)
			s.log.Warn().Err(err).Str("fen", pos.ToFEN()).Msg("engine died during analysis")
		}
		return nil, fmt.Errorf("analyse %s: %v: %w", pos.ToFEN(), err, errors.ErrOracleUnavailable)
	}
	return lines, nil
}

// engine returns the live process, starting one if needed. Callers hold
// s.calls, so the idle timer cannot retire the result before it is used. The
// start runs on its own timeout so one caller's cancellation cannot fail the
// others.
func (s *Supervisor) engine() (*Engine, error) {
	if eng, err := s.current(); eng != nil || err != nil {
		return eng, err
	}

	eng, err := s.start(context.Background(), s.cfg)
	if err != nil {
		s.log.Error().Err(err).Str("path", s.cfg.Path).Msg("engine start failed")
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = eng.Close(context.Background())
		return nil, ErrEngineStopped
	}
	s.eng = eng
	s.mu.Unlock()

	n := s.starts.Add(1)
	s.log.Info().Str("path", s.cfg.Path).Int64("starts", n).Msg("engine started")
	return eng, nil
}

func (s *Supervisor) current() (*Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrEngineStopped
	}
	if s.eng != nil && s.eng.Alive() {
		return s.eng, nil
	}
	return nil, nil
}

func (s *Supervisor) forget(eng *Engine) {
	s.mu.Lock()
	if s.eng == eng {
		s.eng = nil
	}
	s.mu.Unlock()
	_ = eng.Close(context.Background())
}

func (s *Supervisor) stopIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idle != nil {
		s.idle.Stop()
		s.idle = nil
	}
}

func (s *Supervisor) armIdle(eng *Engine) {
	if s.cfg.IdleTimeout <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.idle != nil {
		s.idle.Stop()
	}
	s.idle = time.AfterFunc(s.cfg.IdleTimeout, func() { s.retire(eng) })
}

// retire closes an idle process. A call in flight keeps it alive.
func (s *Supervisor) retire(eng *Engine) {
	if !s.calls.TryLock() {
		return
	}
	defer s.calls.Unlock()

	s.mu.Lock()
	if s.eng != eng {
		s.mu.Unlock()
		return
	}
	s.eng = nil
	s.idle = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = eng.Close(ctx)
	s.retires.Add(1)
	s.log.Debug().Dur("idle", s.cfg.IdleTimeout).Msg("engine retired")
}

// Stats reports process lifecycle counters.
func (s *Supervisor) Stats() (starts, retires, failures int64) {
	return s.starts.Load(), s.retires.Load(), s.failures.Load()
}

// Close stops the process. Later calls fail with ErrOracleUnavailable.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	eng := s.eng
	s.eng = nil
	if s.idle != nil {
		s.idle.Stop()
		s.idle = nil
	}
	s.mu.Unlock()

	if eng == nil {
		return nil
	}
	return eng.Close(ctx)
}

var _ oracle.Evaluator = (*Supervisor)(nil)
