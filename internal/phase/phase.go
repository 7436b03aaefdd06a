// Package phase labels positions as opening, middlegame or endgame.
package phase

import (
	"fmt"

	"github.com/hailam/chesstrainer/internal/board"
)

// Phase is the game stage a position belongs to.
type Phase uint8

const (
	Unknown Phase = iota
	Opening
	Middlegame
	Endgame
)

var phaseNames = [...]string{"unknown", "opening", "middlegame", "endgame"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// OrDefault returns p, or Middlegame when p is Unknown.
func (p Phase) OrDefault() Phase {
	if p == Unknown {
		return Middlegame
	}
	return p
}

// Castled records which sides have castled so far in the game.
type Castled [2]bool

// Material thresholds in points of non-pawn material, both sides together.
const (
	bareEndgameMaterial  = 13
	queenlessMaterial    = 20
	lateMoveMaterial     = 24
	veryLateMoveMaterial = 30
	openingMaterial      = 26

	lateMove        = 40
	veryLateMove    = 50
	lastOpeningMove = 15

	fullDevelopment = 6
)

// minorHomes lists the starting squares of the knights and bishops.
var minorHomes = [...]struct {
	sq    board.Square
	piece board.Piece
}{
	{board.B1, board.WhiteKnight}, {board.G1, board.WhiteKnight},
	{board.C1, board.WhiteBishop}, {board.F1, board.WhiteBishop},
	{board.B8, board.BlackKnight}, {board.G8, board.BlackKnight},
	{board.C8, board.BlackBishop}, {board.F8, board.BlackBishop},
}

// Classify returns the phase of pos at the given full-move number. The
// endgame rules run first, so a thin-material position is never an opening.
func Classify(pos *board.Position, moveNumber int, castled Castled) Phase {
	material := pos.NonPawnPoints()

	switch {
	case material == 0:
		return Endgame
	case material <= bareEndgameMaterial:
		return Endgame
	case !hasQueens(pos) && material <= queenlessMaterial:
		return Endgame
	case moveNumber >= lateMove && material <= lateMoveMaterial:
		return Endgame
	case moveNumber >= veryLateMove && material <= veryLateMoveMaterial:
		return Endgame
	case moveNumber <= lastOpeningMove && material > openingMaterial &&
		DevelopedMinors(pos, castled) < fullDevelopment:
		return Opening
	}
	return Middlegame
}

// DevelopedMinors counts minor-piece home squares no longer holding their
// original piece. A side that has castled counts one extra development step
// for its king.
func DevelopedMinors(pos *board.Position, castled Castled) int {
	n := 0
	for _, home := range minorHomes {
		if pos.PieceAt(home.sq) != home.piece {
			n++
		}
	}
	for _, c := range castled {
		if c {
			n++
		}
	}
	return n
}

func hasQueens(pos *board.Position) bool {
	return pos.Pieces[board.White][board.Queen]|pos.Pieces[board.Black][board.Queen] != 0
}

// Tracker follows castling through a game so callers can classify each
// position without replaying history.
type Tracker struct {
	castled Castled
}

// Observe records the move m played from pos.
func (t *Tracker) Observe(pos *board.Position, m board.Move) {
	if m.IsCastling() {
		t.castled[pos.SideToMove] = true
	}
}

// Castled returns the flags seen so far.
func (t *Tracker) Castled() Castled {
	return t.castled
}
