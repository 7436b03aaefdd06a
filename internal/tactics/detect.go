package tactics

import (
	"github.com/hailam/chesstrainer/internal/board"
	"github.com/hailam/chesstrainer/internal/phase"
)

// Predicate is a motif test on a position and the move played from it.
type Predicate func(pos *board.Position, m board.Move) bool

var motifChecks = [...]struct {
	tag   Tag
	match Predicate
}{
	{Fork, IsFork},
	{Pin, IsPin},
	{Skewer, IsSkewer},
	{DiscoveredAttack, IsDiscoveredAttack},
	{BackRank, IsBackRank},
	{Deflection, IsDeflection},
	{Sacrifice, IsLosingSacrifice},
	{WinningCapture, IsWinningCapture},
}

// Detect returns the tactical themes of m played from pos. The result
// always holds a phase tag and, for a legal move, the moved piece's tag.
// Positional stands in when no tactical theme matches, so the set is never
// empty. The same inputs always give the same set.
func Detect(pos *board.Position, m board.Move, ph phase.Phase) TagSet {
	var tags TagSet

	if pos.IsLegalMove(m) {
		for _, c := range motifChecks {
			if c.match(pos, m) {
				tags = tags.Add(c.tag)
			}
		}

		switch MateIn(pos, m, MaxMateDepth) {
		case 1:
			tags = tags.Add(MateIn1).Add(CheckmatePattern)
		case 2:
			tags = tags.Add(MateIn2)
		}
		if m.IsPromotion() {
			tags = tags.Add(Promotion)
		}
		if pos.GivesCheck(m) {
			tags = tags.Add(Check)
		}
		if ph == phase.Endgame && IsKingActivity(pos, m) {
			tags = tags.Add(KingActivity)
		}
		if tags.MotifCount() >= 2 {
			tags = tags.Add(Combination)
		}
	}

	if tags.Empty() {
		tags = tags.Add(Positional)
	}
	if piece := pos.MovedPiece(m); piece != board.NoPiece {
		tags = tags.Add(PieceTag(piece.Type()))
	}
	return tags.Add(PhaseTag(ph))
}

// IsTacticalPosition reports whether the side to move has at least
// minCaptures legal captures or minChecks legal checking moves.
func IsTacticalPosition(pos *board.Position, minCaptures, minChecks int) bool {
	captures, checks := 0, 0
	for _, m := range pos.LegalMoves() {
		if m.IsCapture(pos) {
			captures++
		}
		if pos.GivesCheck(m) {
			checks++
		}
		if captures >= minCaptures || checks >= minChecks {
			return true
		}
	}
	return false
}
