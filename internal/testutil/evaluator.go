package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hailam/chesstrainer/internal/board"
	"github.com/hailam/chesstrainer/internal/errors"
	"github.com/hailam/chesstrainer/internal/oracle"
)

// Line is a scripted engine answer: a side-to-move score and a UCI PV.
type Line struct {
	Score oracle.Score
	PV    []string
}

// CP is a shorthand for a centipawn line.
func CP(cp int, pv ...string) Line {
	return Line{Score: oracle.CP(cp), PV: pv}
}

// Mate is a shorthand for a mate line.
func Mate(n int, pv ...string) Line {
	return Line{Score: oracle.MateIn(n), PV: pv}
}

// ScriptedEvaluator answers Analyse from a table of positions. Positions are
// matched on piece placement, side to move, castling and en passant, so move
// counters do not matter. Unknown positions use Fallback when set and are
// otherwise reported as an unavailable oracle. It is safe for concurrent use.
type ScriptedEvaluator struct {
	// Fallback answers positions missing from the script.
	Fallback func(pos *board.Position) []Line

	// Gate, when set, blocks every call until it is closed.
	Gate chan struct{}

	mu     sync.Mutex
	lines  map[string][]Line
	errs   map[string]error
	calls  atomic.Int64
	perKey map[string]int
	depths []int
}

// NewScriptedEvaluator returns an empty script.
func NewScriptedEvaluator() *ScriptedEvaluator {
	return &ScriptedEvaluator{
		lines:  make(map[string][]Line),
		errs:   make(map[string]error),
		perKey: make(map[string]int),
	}
}

// Script sets the answer for fen, best line first.
func (s *ScriptedEvaluator) Script(fen string, lines ...Line) *ScriptedEvaluator {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[PositionKey(fen)] = lines
	return s
}

// Fail makes every query for fen return err.
func (s *ScriptedEvaluator) Fail(fen string, err error) *ScriptedEvaluator {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[PositionKey(fen)] = err
	return s
}

// Calls returns the number of Analyse calls so far.
func (s *ScriptedEvaluator) Calls() int {
	return int(s.calls.Load())
}

// CallsFor returns the number of Analyse calls for fen.
func (s *ScriptedEvaluator) CallsFor(fen string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.perKey[PositionKey(fen)]
}

// Depths returns the search depths requested so far, in call order.
func (s *ScriptedEvaluator) Depths() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.depths...)
}

// Analyse implements oracle.Evaluator.
func (s *ScriptedEvaluator) Analyse(ctx context.Context, pos *board.Position, depth, multiPV int) ([]oracle.Line, error) {
	s.calls.Add(1)
	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("scripted analyse: %v: %w", ctx.Err(), errors.ErrOracleUnavailable)
		}
	}

	key := PositionKey(pos.ToFEN())
	s.mu.Lock()
	s.perKey[key]++
	s.depths = append(s.depths, depth)
	script, ok := s.lines[key]
	err := s.errs[key]
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok && s.Fallback != nil {
		script, ok = s.Fallback(pos), true
	}
	if !ok {
		return nil, fmt.Errorf("no script for %s: %w", pos.ToFEN(), errors.ErrOracleUnavailable)
	}

	if multiPV < 1 {
		multiPV = 1
	}
	out := make([]oracle.Line, 0, min(multiPV, len(script)))
	for i, l := range script {
		if i == multiPV {
			break
		}
		out = append(out, oracle.Line{
			Score:   l.Score,
			PV:      resolvePV(pos, l.PV),
			Depth:   depth,
			MultiPV: i + 1,
		})
	}
	return out, nil
}

// resolvePV converts UCI text to moves, stopping at the first illegal one.
func resolvePV(pos *board.Position, pv []string) []board.Move {
	moves := make([]board.Move, 0, len(pv))
	for _, text := range pv {
		m, err := pos.ParseUCI(text)
		if err != nil {
			break
		}
		moves = append(moves, m)
		pos = pos.MustPush(m)
	}
	return moves
}

// PositionKey drops the move counters from a FEN.
func PositionKey(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return strings.Join(fields, " ")
}

// MustPosition parses fen or panics. It is meant for test tables.
func MustPosition(fen string) *board.Position {
	pos, err := board.ParseFEN(fen)
	if err != nil {
		panic(err)
	}
	return pos
}

// Play applies UCI moves to fen and returns the resulting FEN.
func Play(fen string, moves ...string) string {
	pos := MustPosition(fen)
	for _, text := range moves {
		m, err := pos.ParseUCI(text)
		if err != nil {
			panic(err)
		}
		pos = pos.MustPush(m)
	}
	return pos.ToFEN()
}
