// Package puzzle turns analysed mistakes into training puzzles.
//
// A Filter looks at one MoveEvaluation at a time and either rejects it with
// a Reason or builds a Candidate: the position before the mistake, the move
// that should have been played, and the tactical themes of that move. The
// solution line is attached later, once it has been searched.
package puzzle

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/hailam/chesstrainer/internal/analysis"
	"github.com/hailam/chesstrainer/internal/board"
	"github.com/hailam/chesstrainer/internal/errors"
	"github.com/hailam/chesstrainer/internal/phase"
	"github.com/hailam/chesstrainer/internal/tactics"
)

// Type says what kind of error a puzzle comes from.
type Type uint8

const (
	BlunderPuzzle Type = iota + 1
	MistakePuzzle
	MissedWinPuzzle
)

var typeNames = [...]string{"", "blunder", "mistake", "missed_win"}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// MarshalText encodes the type by name.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a type name.
func (t *Type) UnmarshalText(text []byte) error {
	for i := 1; i < len(typeNames); i++ {
		if typeNames[i] == string(text) {
			*t = Type(i)
			return nil
		}
	}
	return fmt.Errorf("unknown puzzle type %q", text)
}

// TypeOf maps an error quality to a puzzle type, or 0.
func TypeOf(q analysis.MoveQuality) Type {
	switch q {
	case analysis.Blunder:
		return BlunderPuzzle
	case analysis.Mistake:
		return MistakePuzzle
	case analysis.MissedWin:
		return MissedWinPuzzle
	}
	return 0
}

// Difficulty grades how hard a puzzle is to find.
type Difficulty uint8

const (
	Easy Difficulty = iota + 1
	Medium
	Hard
)

var difficultyNames = [...]string{"", "easy", "medium", "hard"}

func (d Difficulty) String() string {
	if d > 0 && int(d) < len(difficultyNames) {
		return difficultyNames[d]
	}
	return "unknown"
}

// MarshalText encodes the difficulty by name.
func (d Difficulty) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a difficulty name.
func (d *Difficulty) UnmarshalText(text []byte) error {
	for i := 1; i < len(difficultyNames); i++ {
		if difficultyNames[i] == string(text) {
			*d = Difficulty(i)
			return nil
		}
	}
	return fmt.Errorf("unknown difficulty %q", text)
}

// Source identifies the game a puzzle came from.
type Source struct {
	GameID string `json:"game_id,omitempty"`
	White  string `json:"white,omitempty"`
	Black  string `json:"black,omitempty"`
}

// Candidate is an accepted puzzle. It is not changed after construction
// except through WithSolution, which returns a copy.
type Candidate struct {
	Key           string         `json:"key"`
	FENBefore     string         `json:"fen_before"`
	PlayedSAN     string         `json:"played_san"`
	PlayedUCI     string         `json:"played_uci"`
	BestSAN       string         `json:"best_san"`
	BestUCI       string         `json:"best_uci"`
	EvalLoss      int            `json:"eval_loss"`
	EvalBefore    int            `json:"eval_before"`
	Phase         phase.Phase    `json:"phase"`
	Type          Type           `json:"type"`
	Difficulty    Difficulty     `json:"difficulty"`
	MoveNumber    int            `json:"move_number"`
	Color         board.Color    `json:"color"`
	OnlyLegal     bool           `json:"only_legal,omitempty"`
	BestSecondGap *int           `json:"best_second_gap,omitempty"`
	Tags          tactics.TagSet `json:"tags"`
	Solution      []string       `json:"solution,omitempty"`
	SolutionSAN   []string       `json:"solution_san,omitempty"`
	Source        Source         `json:"source"`
}

// Key returns the content address of a puzzle: a hash of the position and
// the move that was played in it.
func Key(fen, playedSAN string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(fen+"|"+playedSAN))
}

// Position parses the puzzle's starting position.
func (c *Candidate) Position() (*board.Position, error) {
	return board.ParseFEN(c.FENBefore)
}

// BestMove returns the solution's first move, checked against the position.
func (c *Candidate) BestMove() (board.Move, error) {
	_, m, err := board.ParseFENAndMove(c.FENBefore, c.BestUCI)
	return m, err
}

// WithSolution returns a copy of c carrying moves as its solution. Every move
// must be legal after the ones before it, and the first must be the best
// move.
func (c *Candidate) WithSolution(moves []board.Move) (*Candidate, error) {
	pos, err := c.Position()
	if err != nil {
		return nil, err
	}
	if len(moves) == 0 || moves[0].String() != c.BestUCI {
		return nil, fmt.Errorf("solution for %s must start with %s: %w", c.Key, c.BestUCI, errors.ErrIllegalMove)
	}

	out := *c
	out.Solution = make([]string, 0, len(moves))
	out.SolutionSAN = make([]string, 0, len(moves))
	for i, m := range moves {
		next, err := pos.Push(m)
		if err != nil {
			return nil, errors.AtPly(err, i+1, m.String())
		}
		out.Solution = append(out.Solution, m.String())
		out.SolutionSAN = append(out.SolutionSAN, pos.SAN(m))
		pos = next
	}
	return &out, nil
}

// Dedupe keeps the first candidate for each key, in order.
func Dedupe(cands []*Candidate) []*Candidate {
	seen := make(map[string]struct{}, len(cands))
	out := cands[:0:0]
	for _, c := range cands {
		if c == nil {
			continue
		}
		if _, dup := seen[c.Key]; dup {
			continue
		}
		seen[c.Key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// difficulty grades a puzzle from the depth of its themes, how quiet its
// first move is, and how clearly it stands out from the alternatives.
func difficulty(tags tactics.TagSet, gap *int, onlyLegal bool) Difficulty {
	if onlyLegal {
		return Easy
	}
	score := 0
	switch {
	case tags.Has(tactics.MateIn2), tags.Has(tactics.Combination):
		score += 2
	case tags.Has(tactics.Pin), tags.Has(tactics.Skewer), tags.Has(tactics.DiscoveredAttack),
		tags.Has(tactics.Deflection), tags.Has(tactics.Sacrifice):
		score++
	}
	if tags.Has(tactics.Positional) {
		score++
	}
	if !tags.Has(tactics.Check) && !tags.Has(tactics.WinningCapture) && !tags.Has(tactics.MateIn1) {
		score++
	}
	if gap != nil && *gap >= obviousGap {
		score--
	}

	switch {
	case score <= 0:
		return Easy
	case score <= 2:
		return Medium
	}
	return Hard
}

// obviousGap is a best-versus-second gap beyond which the answer stands out.
const obviousGap = 800
