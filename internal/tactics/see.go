package tactics

import "github.com/hailam/chesstrainer/internal/board"

// kingPoints stands in for the king in exchange and ordering arithmetic.
const kingPoints = 100

// points is the classical value of a piece type, with the king above all.
func points(pt board.PieceType) int {
	if pt == board.King {
		return kingPoints
	}
	return pt.Points()
}

// Exchange runs a static exchange evaluation of m and returns the expected
// material result in points for the side making it. Quiet moves are scored
// as if the moved piece could be captured on its destination.
func Exchange(pos *board.Position, m board.Move) int {
	attacker := pos.MovedPiece(m)
	if attacker == board.NoPiece {
		return 0
	}

	gain := 0
	if captured := pos.CapturedPiece(m); captured != board.NoPiece {
		gain = points(captured.Type())
	}
	first := attacker.Type()
	if m.IsPromotion() {
		gain += points(m.Promotion()) - points(board.Pawn)
		first = m.Promotion()
	}

	occupied := pos.AllOccupied &^ board.SquareBB(m.From())
	if m.IsEnPassant() {
		occupied &^= board.SquareBB(epVictim(pos, m))
	}
	return swap(pos, m.To(), occupied, attacker.Color().Other(), points(first), gain)
}

// swap simulates alternating least-valuable recaptures on target.
func swap(pos *board.Position, target board.Square, occupied board.Bitboard, side board.Color, onTarget, initialGain int) int {
	var gain [32]int
	d := 0
	gain[d] = initialGain

	for d < len(gain)-1 {
		d++
		gain[d] = onTarget - gain[d-1]

		if max(-gain[d-1], gain[d]) < 0 {
			break
		}

		sq, pt := leastValuableAttacker(pos, target, side, occupied)
		if sq == board.NoSquare {
			break
		}
		occupied &^= board.SquareBB(sq)
		onTarget = points(pt)
		side = side.Other()
	}

	for d--; d > 0; d-- {
		gain[d-1] = -max(-gain[d-1], gain[d])
	}
	return gain[0]
}

// leastValuableAttacker finds the cheapest piece of side attacking target
// through the given occupancy, so x-ray attackers appear as pieces leave.
func leastValuableAttacker(pos *board.Position, target board.Square, side board.Color, occupied board.Bitboard) (board.Square, board.PieceType) {
	diagonal := board.BishopAttacks(target, occupied)
	straight := board.RookAttacks(target, occupied)

	candidates := [...]struct {
		pt      board.PieceType
		reaches board.Bitboard
	}{
		{board.Pawn, board.PawnAttacks(target, side.Other())},
		{board.Knight, board.KnightAttacks(target)},
		{board.Bishop, diagonal},
		{board.Rook, straight},
		{board.Queen, diagonal | straight},
		{board.King, board.KingAttacks(target)},
	}
	for _, c := range candidates {
		if bb := pos.Pieces[side][c.pt] & c.reaches & occupied; bb != 0 {
			return bb.LSB(), c.pt
		}
	}
	return board.NoSquare, board.NoPieceType
}

func epVictim(pos *board.Position, m board.Move) board.Square {
	if pos.SideToMove == board.White {
		return m.To() - 8
	}
	return m.To() + 8
}
