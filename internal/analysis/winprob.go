package analysis

import (
	"math"

	"github.com/hailam/chesstrainer/internal/board"
	"github.com/hailam/chesstrainer/internal/oracle"
)

// DefaultAccuracyDecay is the exponential decay applied to win% loss when
// converting it to an accuracy percentage.
const DefaultAccuracyDecay = 0.04354

// WinProbability maps a centipawn score to the probability of winning for
// the side the score favours, using the logistic curve 1/(1+10^(-cp/400)).
// A known mate distance overrides cp: positive mateIn gives 1 and negative
// gives 0. A mateIn of 0 counts as unknown and cp is used instead.
func WinProbability(cp int, isMate bool, mateIn int) float64 {
	if isMate && mateIn != 0 {
		if mateIn > 0 {
			return 1
		}
		return 0
	}
	return 1 / (1 + math.Pow(10, -float64(cp)/400))
}

// ScoreWinProbability is WinProbability for an engine score. A score of
// "already mated" is a certain loss.
func ScoreWinProbability(s oracle.Score) float64 {
	if s.IsMate && s.Mate == 0 {
		return 0
	}
	return WinProbability(s.CP, s.IsMate, s.Mate)
}

// AccuracyModel turns win-probability loss into a 0-100 accuracy score.
type AccuracyModel struct {
	Decay float64
}

// DefaultAccuracyModel uses DefaultAccuracyDecay.
var DefaultAccuracyModel = AccuracyModel{Decay: DefaultAccuracyDecay}

// MoveAccuracy scores a move from White win probabilities before and after
// it, seen from the mover c.
func (m AccuracyModel) MoveAccuracy(wpBefore, wpAfter float64, c board.Color) float64 {
	loss := wpBefore - wpAfter
	if c == board.Black {
		loss = -loss
	}
	lossPct := math.Max(0, loss) * 100

	acc := 103.1668*math.Exp(-m.Decay*lossPct) - 3.1668
	return math.Max(0, math.Min(100, acc))
}

// MoveAccuracy scores a move with the default model.
func MoveAccuracy(wpBefore, wpAfter float64, c board.Color) float64 {
	return DefaultAccuracyModel.MoveAccuracy(wpBefore, wpAfter, c)
}

// GameAccuracy is the mean of per-move accuracies rounded to one decimal,
// or 0 for no moves.
func GameAccuracy(accuracies []float64) float64 {
	if len(accuracies) == 0 {
		return 0
	}
	sum := 0.0
	for _, a := range accuracies {
		sum += a
	}
	return math.Round(sum/float64(len(accuracies))*10) / 10
}

// moverProbability converts a White win probability to the mover's.
func moverProbability(wp float64, c board.Color) float64 {
	if c == board.Black {
		return 1 - wp
	}
	return wp
}
