// Package blunder explains why a bad move was bad.
//
// Classify compares the move that was played with the engine's best move and
// picks the single most instructive cause. The checks run in a fixed order
// and the first one that matches wins: missed tactics on the best move, then
// pieces left hanging, king safety, back-rank weakness, endgame technique and
// missed captures. Positional is the fallback.
package blunder

import (
	"fmt"

	"github.com/hailam/chesstrainer/internal/board"
	"github.com/hailam/chesstrainer/internal/errors"
	"github.com/hailam/chesstrainer/internal/phase"
	"github.com/hailam/chesstrainer/internal/tactics"
)

// Subtype names the cause of a blunder. The zero value means no subtype
// was assigned.
type Subtype uint8

const (
	None Subtype = iota
	MissedMate
	MissedFork
	MissedPin
	MissedSkewer
	MissedDiscoveredAttack
	MissedBackRank
	HangingPiece
	KingSafety
	BackRank
	EndgameTechnique
	MissedCapture
	Positional
)

var subtypeNames = [...]string{
	"", "missed_mate", "missed_fork", "missed_pin", "missed_skewer",
	"missed_discovered_attack", "missed_back_rank", "hanging_piece",
	"king_safety", "back_rank", "endgame_technique", "missed_capture",
	"positional",
}

func (s Subtype) String() string {
	if int(s) < len(subtypeNames) {
		return subtypeNames[s]
	}
	return fmt.Sprintf("subtype(%d)", uint8(s))
}

// MarshalText encodes the subtype by name.
func (s Subtype) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a subtype name. The empty string decodes to None.
func (s *Subtype) UnmarshalText(text []byte) error {
	for i, name := range subtypeNames {
		if name == string(text) {
			*s = Subtype(i)
			return nil
		}
	}
	return fmt.Errorf("unknown blunder subtype %q", text)
}

// Thresholds used by the played-move checks, in points.
const (
	minHangingValue     = 3
	minCaptureValue     = 3
	endgameEdgeMaterial = 10
	endgameFewPieces    = 8
)

// missedMotifs are tried on the best move in this order.
var missedMotifs = [...]struct {
	subtype Subtype
	match   tactics.Predicate
}{
	{MissedFork, tactics.IsFork},
	{MissedPin, tactics.IsPin},
	{MissedSkewer, tactics.IsSkewer},
	{MissedDiscoveredAttack, tactics.IsDiscoveredAttack},
	{MissedBackRank, tactics.IsBackRank},
}

// Classify returns the cause of playing played instead of best from before.
// best may be board.NoMove when no engine move is known. A best move that
// is not legal in before is ignored.
func Classify(before *board.Position, played, best board.Move, ph phase.Phase) Subtype {
	s, _ := Diagnose(before, played, best, ph)
	return s
}

// Diagnose is Classify that also reports bad input. A stale best move gives
// an error wrapping ErrStaleBestMove alongside a normal classification. An
// illegal played move gives Positional and the Push error.
func Diagnose(before *board.Position, played, best board.Move, ph phase.Phase) (Subtype, error) {
	after, err := before.Push(played)
	if err != nil {
		return Positional, err
	}

	var stale error
	haveBest := best != board.NoMove && best != played
	if haveBest && !before.IsLegalMove(best) {
		stale = fmt.Errorf("best move %s in %s: %w", best, before.ToFEN(), errors.ErrStaleBestMove)
		haveBest = false
	}

	if haveBest {
		if s := missedTactic(before, played, best); s != None {
			return s, stale
		}
	}

	us := before.SideToMove
	switch {
	case leftHanging(before, after, played, us):
		return HangingPiece, stale
	case ph != phase.Endgame && weakenedKing(before, played, us):
		return KingSafety, stale
	case weakBackRank(after, us) && !weakBackRank(before, us):
		return BackRank, stale
	case ph == phase.Endgame && poorEndgameTechnique(before, after, played, us):
		return EndgameTechnique, stale
	case haveBest && capturesPiece(before, best, minCaptureValue):
		return MissedCapture, stale
	}
	return Positional, stale
}

// missedTactic reports a pattern the best move has and the played move lacks.
func missedTactic(before *board.Position, played, best board.Move) Subtype {
	if n := tactics.MateIn(before, best, tactics.MaxMateDepth); n > 0 &&
		tactics.MateIn(before, played, n) == 0 {
		return MissedMate
	}
	for _, c := range missedMotifs {
		if c.match(before, best) && !c.match(before, played) {
			return c.subtype
		}
	}
	return None
}

// leftHanging reports whether the move leaves a piece worth three or more
// points attacked more often than it is defended. The moved piece counts
// unless it captured something at least as valuable. Other pieces count
// only if they were safe before the move.
func leftHanging(before, after *board.Position, m board.Move, us board.Color) bool {
	to := m.To()
	moved := after.PieceAt(to).Type()
	gained := 0
	if c := before.CapturedPiece(m); c != board.NoPiece {
		gained = c.Type().Points()
	}
	if gained < moved.Points() && hanging(after, to, us) {
		return true
	}

	var own board.Bitboard
	for pt := board.Knight; pt < board.King; pt++ {
		own |= after.Pieces[us][pt]
	}
	own &^= board.SquareBB(to)
	for own != 0 {
		sq := own.PopLSB()
		if hanging(after, sq, us) && (before.PieceAt(sq).Color() != us || !hanging(before, sq, us)) {
			return true
		}
	}
	return false
}

func hanging(pos *board.Position, sq board.Square, owner board.Color) bool {
	piece := pos.PieceAt(sq)
	if piece == board.NoPiece || piece.Color() != owner || piece.Type() == board.King {
		return false
	}
	if piece.Type().Points() < minHangingValue {
		return false
	}
	attackers := pos.Attackers(owner.Other(), sq).PopCount()
	defenders := pos.Attackers(owner, sq).PopCount()
	return attackers > 0 && attackers > defenders
}

// weakenedKing reports a king that leaves its back rank without castling,
// or a shield pawn in front of a back-rank king that advances or captures.
func weakenedKing(before *board.Position, m board.Move, us board.Color) bool {
	ksq := before.KingSquare[us]
	if ksq.RelativeRank(us) != 0 {
		return false
	}
	switch before.MovedPiece(m).Type() {
	case board.King:
		return !m.IsCastling() && m.To().RelativeRank(us) > 0
	case board.Pawn:
		from := m.From()
		return from.RelativeRank(us) == 1 && abs(from.File()-ksq.File()) <= 1
	}
	return false
}

// weakBackRank reports a king on its back rank with no flight square off
// it, no own rook or queen guarding the rank, and an enemy rook or queen
// still on the board.
func weakBackRank(pos *board.Position, us board.Color) bool {
	them := us.Other()
	ksq := pos.KingSquare[us]
	if ksq.RelativeRank(us) != 0 {
		return false
	}
	if pos.Pieces[them][board.Rook]|pos.Pieces[them][board.Queen] == 0 {
		return false
	}
	rank := board.RankMask[ksq.Rank()]
	if (pos.Pieces[us][board.Rook]|pos.Pieces[us][board.Queen])&rank != 0 {
		return false
	}
	flight := board.KingAttacks(ksq) &^ rank &^ pos.Occupied[us]
	for flight != 0 {
		if !pos.IsSquareAttacked(flight.PopLSB(), them) {
			return false
		}
	}
	return true
}

// poorEndgameTechnique reports an endgame move that leaves the own king on
// the edge while little material remains and another piece was moved, or
// any move once few pieces are left.
func poorEndgameTechnique(before, after *board.Position, m board.Move, us board.Color) bool {
	if after.PieceCount() <= endgameFewPieces {
		return true
	}
	if before.MovedPiece(m).Type() == board.King {
		return false
	}
	return onEdge(after.KingSquare[us]) && after.NonPawnPoints() <= endgameEdgeMaterial
}

func onEdge(sq board.Square) bool {
	f, r := sq.File(), sq.Rank()
	return f == 0 || f == 7 || r == 0 || r == 7
}

// capturesPiece reports a capture of a piece worth at least minPoints.
func capturesPiece(pos *board.Position, m board.Move, minPoints int) bool {
	c := pos.CapturedPiece(m)
	return c != board.NoPiece && c.Type() != board.King && c.Type().Points() >= minPoints
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
