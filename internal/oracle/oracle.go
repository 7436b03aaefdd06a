// Package oracle defines the evaluation engine contract the analysis code
// depends on, together with the score model shared by every consumer.
//
// Scores are reported from the side to move's point of view, as UCI engines
// do. White converts them to White's point of view.
package oracle

import (
	"context"
	"fmt"

	"github.com/hailam/chesstrainer/internal/board"
	"github.com/hailam/chesstrainer/internal/errors"
)

// DefaultMateScore is the centipawn value assigned to a forced mate when a
// score has to be compared with centipawn scores.
const DefaultMateScore = 10000

// Score is an engine evaluation. When IsMate is set, Mate is the signed
// distance to mate in moves (positive: side to move mates). IsMate with
// Mate == 0 means the side to move is already checkmated.
type Score struct {
	CP     int  `json:"cp,omitempty"`
	Mate   int  `json:"mate,omitempty"`
	IsMate bool `json:"is_mate,omitempty"`
}

// CP returns a centipawn score.
func CP(cp int) Score { return Score{CP: cp} }

// MateIn returns a mate score. Negative n means the side to move gets mated.
func MateIn(n int) Score { return Score{Mate: n, IsMate: true} }

// Negate flips the point of view.
func (s Score) Negate() Score {
	if s.IsMate {
		if s.Mate == 0 {
			// The mated side's opponent has delivered mate.
			return Score{Mate: 1, IsMate: true}
		}
		return Score{Mate: -s.Mate, IsMate: true}
	}
	return Score{CP: -s.CP}
}

// White converts a score reported for stm to White's point of view.
func (s Score) White(stm board.Color) Score {
	if stm == board.White {
		return s
	}
	return s.Negate()
}

// Centipawns collapses the score to centipawns. Mate in n scores
// mateScore-n, getting mated in n scores -(mateScore-n), and being mated
// already scores -mateScore.
func (s Score) Centipawns(mateScore int) int {
	if !s.IsMate {
		return s.CP
	}
	switch {
	case s.Mate > 0:
		return mateScore - s.Mate
	case s.Mate < 0:
		return -(mateScore + s.Mate)
	}
	return -mateScore
}

// String renders the score in UCI style.
func (s Score) String() string {
	if s.IsMate {
		return fmt.Sprintf("mate %d", s.Mate)
	}
	return fmt.Sprintf("cp %d", s.CP)
}

// Line is one principal variation returned by an analysis.
type Line struct {
	Score   Score
	PV      []board.Move
	Depth   int
	MultiPV int
}

// Best returns the first move of the line, or board.NoMove.
func (l Line) Best() board.Move {
	if len(l.PV) == 0 {
		return board.NoMove
	}
	return l.PV[0]
}

// Evaluator analyses a position to a fixed depth and returns up to multiPV
// lines ordered best first. Implementations must be deterministic for a
// fixed depth and must wrap errors.ErrOracleUnavailable when they cannot
// answer.
type Evaluator interface {
	Analyse(ctx context.Context, pos *board.Position, depth, multiPV int) ([]Line, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, pos *board.Position, depth, multiPV int) ([]Line, error)

// Analyse calls f.
func (f EvaluatorFunc) Analyse(ctx context.Context, pos *board.Position, depth, multiPV int) ([]Line, error) {
	return f(ctx, pos, depth, multiPV)
}

// BestMove asks ev for a single line and returns its first move after
// checking that the move is legal in pos. An empty answer or an illegal
// move is reported as errors.ErrIllegalMove.
func BestMove(ctx context.Context, ev Evaluator, pos *board.Position, depth int) (board.Move, Score, error) {
	lines, err := ev.Analyse(ctx, pos, depth, 1)
	if err != nil {
		return board.NoMove, Score{}, err
	}
	if len(lines) == 0 || lines[0].Best() == board.NoMove {
		return board.NoMove, Score{}, fmt.Errorf("no best move for %s: %w", pos.ToFEN(), errors.ErrIllegalMove)
	}
	best := lines[0].Best()
	if !pos.IsLegalMove(best) {
		return board.NoMove, Score{}, fmt.Errorf("engine move %s in %s: %w", best, pos.ToFEN(), errors.ErrIllegalMove)
	}
	return best, lines[0].Score, nil
}
