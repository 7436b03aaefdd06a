package puzzle

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hailam/chesstrainer/internal/analysis"
	"github.com/hailam/chesstrainer/internal/board"
	"github.com/hailam/chesstrainer/internal/errors"
	"github.com/hailam/chesstrainer/internal/tactics"
)

// Reason says why a move evaluation was or was not turned into a puzzle.
type Reason uint8

const (
	Accepted Reason = iota
	NotAnError
	MissingFEN
	MissingBestMove
	AlreadyDecided
	GapUnknown
	GapTooSmall
	IllegalBestMove
)

var reasonNames = [...]string{
	"accepted", "not_an_error", "missing_fen", "missing_best_move",
	"already_decided", "gap_unknown", "gap_too_small", "illegal_best_move",
}

func (r Reason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return fmt.Sprintf("reason(%d)", uint8(r))
}

// Default thresholds in centipawns.
const (
	DefaultMaxEval = 600
	DefaultMinGap  = 300
)

// Filter decides which evaluated moves become puzzles.
type Filter struct {
	// MaxEval rejects positions whose evaluation before the move is already
	// this lopsided, in either direction.
	MaxEval int
	// MinGap is the margin by which the best move must beat the second best
	// unless it was the only legal move.
	MinGap int

	Log zerolog.Logger
}

// NewFilter returns a filter with the default thresholds.
func NewFilter() *Filter {
	return &Filter{MaxEval: DefaultMaxEval, MinGap: DefaultMinGap, Log: zerolog.Nop()}
}

// Evaluate runs the cheap eligibility checks on me. It does not look at the
// board, so IllegalBestMove is only reported by Generate.
func (f *Filter) Evaluate(me analysis.MoveEvaluation) Reason {
	switch {
	case !me.Quality.IsError():
		return NotAnError
	case me.FENBefore == "":
		return MissingFEN
	case me.BestSAN == "" || me.BestUCI == "":
		return MissingBestMove
	case abs(me.EvalBefore) >= f.MaxEval:
		return AlreadyDecided
	case me.OnlyLegal:
		return Accepted
	case me.BestSecondGap == nil:
		return GapUnknown
	case *me.BestSecondGap < f.MinGap:
		return GapTooSmall
	}
	return Accepted
}

// Generate builds a puzzle from me, or returns nil when me is not eligible.
// An error means me is inconsistent: its position does not parse or its
// best move is not legal there. Such input is rejected, never corrected.
func (f *Filter) Generate(me analysis.MoveEvaluation, src Source) (*Candidate, error) {
	log := f.Log.With().Int("ply", me.Ply).Str("san", me.SAN).Logger()

	if r := f.Evaluate(me); r != Accepted {
		log.Debug().Stringer("reason", r).Msg("no puzzle")
		return nil, nil
	}

	pos, err := board.ParseFEN(me.FENBefore)
	if err != nil {
		return nil, errors.AtPly(err, me.Ply, me.UCI)
	}
	best, err := pos.ParseUCI(me.BestUCI)
	if err != nil {
		log.Warn().Err(err).Stringer("reason", IllegalBestMove).Msg("no puzzle")
		return nil, errors.AtPly(err, me.Ply, me.UCI)
	}
	if san := pos.SAN(best); san != me.BestSAN {
		return nil, fmt.Errorf("best move %s is %s in %s, not %s: %w",
			me.BestUCI, san, me.FENBefore, me.BestSAN, errors.ErrIllegalMove)
	}

	ph := me.Phase.OrDefault()
	tags := tactics.Detect(pos, best, ph)

	c := &Candidate{
		Key:           Key(me.FENBefore, me.SAN),
		FENBefore:     me.FENBefore,
		PlayedSAN:     me.SAN,
		PlayedUCI:     me.UCI,
		BestSAN:       me.BestSAN,
		BestUCI:       me.BestUCI,
		EvalLoss:      me.CPLoss,
		EvalBefore:    me.EvalBefore,
		Phase:         ph,
		Type:          TypeOf(me.Quality),
		Difficulty:    difficulty(tags, me.BestSecondGap, me.OnlyLegal),
		MoveNumber:    me.MoveNumber,
		Color:         me.Color,
		OnlyLegal:     me.OnlyLegal,
		BestSecondGap: me.BestSecondGap,
		Tags:          tags,
		Source:        src,
	}
	log.Debug().Str("key", c.Key).Stringer("tags", c.Tags).Msg("puzzle")
	return c, nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
