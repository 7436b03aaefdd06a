package analysis

import (
	"fmt"

	"github.com/hailam/chesstrainer/internal/board"
	"github.com/hailam/chesstrainer/internal/tactics"
)

// MoveQuality is the label given to a played move.
type MoveQuality uint8

const (
	Brilliant MoveQuality = iota + 1
	Great
	Best
	Excellent
	Good
	Inaccuracy
	Mistake
	Blunder
	MissedWin
	Forced
)

var qualityNames = [...]string{
	"", "brilliant", "great", "best", "excellent", "good",
	"inaccuracy", "mistake", "blunder", "missed_win", "forced",
}

func (q MoveQuality) String() string {
	if int(q) < len(qualityNames) && q != 0 {
		return qualityNames[q]
	}
	return fmt.Sprintf("quality(%d)", uint8(q))
}

// MarshalText encodes the quality by name.
func (q MoveQuality) MarshalText() ([]byte, error) {
	if q == 0 || int(q) >= len(qualityNames) {
		return nil, fmt.Errorf("invalid move quality %d", uint8(q))
	}
	return []byte(qualityNames[q]), nil
}

// UnmarshalText decodes a quality name.
func (q *MoveQuality) UnmarshalText(text []byte) error {
	for i := 1; i < len(qualityNames); i++ {
		if qualityNames[i] == string(text) {
			*q = MoveQuality(i)
			return nil
		}
	}
	return fmt.Errorf("unknown move quality %q", text)
}

// IsError reports whether q marks a move worth turning into a puzzle.
func (q MoveQuality) IsError() bool {
	return q == Blunder || q == Mistake || q == MissedWin
}

// Band holds the upper bounds of win% loss for each quality label. Losses
// above Mistake are blunders.
type Band struct {
	Excellent  float64 `yaml:"excellent"`
	Good       float64 `yaml:"good"`
	Inaccuracy float64 `yaml:"inaccuracy"`
	Mistake    float64 `yaml:"mistake"`
}

// Label classifies a win% loss.
func (b Band) Label(lossPct float64) MoveQuality {
	switch {
	case lossPct <= b.Excellent:
		return Excellent
	case lossPct <= b.Good:
		return Good
	case lossPct <= b.Inaccuracy:
		return Inaccuracy
	case lossPct <= b.Mistake:
		return Mistake
	}
	return Blunder
}

// Bands picks thresholds by player rating. Stronger players are judged
// more strictly.
type Bands struct {
	Low  Band `yaml:"low"`  // below 1200
	Mid  Band `yaml:"mid"`  // 1200 to 1799, and unknown ratings
	High Band `yaml:"high"` // 1800 and above
}

// DefaultBands are the stock rating bands.
var DefaultBands = Bands{
	Low:  Band{Excellent: 4, Good: 8, Inaccuracy: 15, Mistake: 25},
	Mid:  Band{Excellent: 3, Good: 6, Inaccuracy: 12, Mistake: 20},
	High: Band{Excellent: 2, Good: 5, Inaccuracy: 10, Mistake: 16},
}

// For returns the band for rating. A rating of zero or less is unknown.
func (b Bands) For(rating int) Band {
	switch {
	case rating <= 0:
		return b.Mid
	case rating < 1200:
		return b.Low
	case rating < 1800:
		return b.Mid
	}
	return b.High
}

// BandFor returns the default band for rating.
func BandFor(rating int) Band {
	return DefaultBands.For(rating)
}

// GreatMoveRule decides when a best move in a sharp position is great.
type GreatMoveRule struct {
	MinLegalMoves int     `yaml:"min_legal_moves"`
	MinCaptures   int     `yaml:"min_captures"`
	MinChecks     int     `yaml:"min_checks"`
	MinWinProb    float64 `yaml:"min_win_prob"`
}

// DefaultGreatMoveRule needs eight legal moves, three captures or two
// checks on offer, and at least a 40% win chance before the move.
var DefaultGreatMoveRule = GreatMoveRule{
	MinLegalMoves: 8,
	MinCaptures:   3,
	MinChecks:     2,
	MinWinProb:    0.4,
}

// Win-probability thresholds for the missed-win and brilliant rules, seen
// from the mover.
const (
	winningProb    = 0.75
	notWinningProb = 0.55
	missedWinLoss  = 100
	brilliantProb  = 0.55
)

// MoveInput is everything ClassifyMove looks at. Win probabilities are
// from White's point of view. Mate distances are from the mover's point of
// view: positive when the mover has a forced mate, zero when there is none.
// MateAfter is positive when the mover kept the mate or delivered it.
type MoveInput struct {
	CPLoss        int
	WinProbBefore float64
	WinProbAfter  float64
	Color         board.Color
	Before        *board.Position
	Played        board.Move
	Best          board.Move
	OnlyLegal     bool
	MateBefore    int
	MateAfter     int
	Rating        int
}

// Classifier assigns move quality labels.
type Classifier struct {
	Bands Bands
	Great GreatMoveRule
	// StrictSacrifice makes Brilliant also require that the exchange on the
	// destination loses material.
	StrictSacrifice bool
}

// DefaultClassifier uses the stock bands and great-move rule.
var DefaultClassifier = Classifier{Bands: DefaultBands, Great: DefaultGreatMoveRule}

// ClassifyMove labels a move with the default classifier.
func ClassifyMove(in MoveInput) MoveQuality {
	return DefaultClassifier.Classify(in)
}

// Classify labels a move. The rules are tried in order and the first that
// matches decides: forced, missed win, brilliant or great or best for the
// engine's move, best for an equal move, then the rating band.
func (c Classifier) Classify(in MoveInput) MoveQuality {
	if in.OnlyLegal {
		return Forced
	}

	before := moverProbability(in.WinProbBefore, in.Color)
	after := moverProbability(in.WinProbAfter, in.Color)

	if before >= winningProb && after < notWinningProb && in.CPLoss >= missedWinLoss {
		return MissedWin
	}
	if in.MateBefore > 0 && in.MateAfter <= 0 {
		return MissedWin
	}

	if in.CPLoss <= 0 {
		if in.Best == board.NoMove || in.Played != in.Best || in.Before == nil {
			return Best
		}
		if c.isSacrifice(in.Before, in.Played) && after >= brilliantProb {
			return Brilliant
		}
		if c.isGreat(in.Before, before, after) {
			return Great
		}
		return Best
	}

	loss := max(0, before-after) * 100
	return c.Bands.For(in.Rating).Label(loss)
}

func (c Classifier) isSacrifice(pos *board.Position, m board.Move) bool {
	if c.StrictSacrifice {
		return tactics.IsLosingSacrifice(pos, m)
	}
	return tactics.IsSacrifice(pos, m)
}

func (c Classifier) isGreat(pos *board.Position, before, after float64) bool {
	r := c.Great
	return pos.LegalMoveCount() >= r.MinLegalMoves &&
		after >= before &&
		before >= r.MinWinProb &&
		tactics.IsTacticalPosition(pos, r.MinCaptures, r.MinChecks)
}
