// Package tactics detects tactical motifs from board geometry alone.
//
// Every predicate takes the position before a move and the move itself,
// and only asks the rules engine about attacks, pieces and legal moves.
// A move that is not legal in the position never matches.
package tactics

import "github.com/hailam/chesstrainer/internal/board"

// MaxMateDepth bounds MateIn. Deeper mates are not searched.
const MaxMateDepth = 2

var (
	straightDirs = [4][2]int{{0, 1}, {0, -1}, {1, 0}, {-1, 0}}
	diagonalDirs = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

// IsFork reports whether the moved piece attacks two or more enemy pieces
// that are each the king or worth more than itself. Kings never fork.
func IsFork(pos *board.Position, m board.Move) bool {
	after, err := pos.Push(m)
	if err != nil {
		return false
	}
	mover := after.PieceAt(m.To())
	if mover.Type() == board.King {
		return false
	}
	them := pos.SideToMove.Other()
	value := points(mover.Type())

	targets := after.AttacksFrom(m.To()) & after.Occupied[them]
	n := 0
	for targets != 0 {
		pt := after.PieceAt(targets.PopLSB()).Type()
		if pt == board.King || points(pt) > value {
			n++
		}
	}
	return n >= 2
}

// IsPin reports whether the moved piece pins an enemy piece to the enemy
// king: exactly one enemy non-king piece stands between the destination
// and the king on a line the moved piece slides along.
func IsPin(pos *board.Position, m board.Move) bool {
	after, err := pos.Push(m)
	if err != nil {
		return false
	}
	to := m.To()
	mover := after.PieceAt(to)
	them := pos.SideToMove.Other()
	ksq := after.KingSquare[them]

	if !slidesToward(mover.Type(), to, ksq) {
		return false
	}
	blockers := board.Between(to, ksq) & after.AllOccupied
	if blockers.PopCount() != 1 || blockers&after.Occupied[them] == 0 {
		return false
	}
	return after.PieceAt(blockers.LSB()).Type() != board.King
}

// slidesToward reports whether a slider of type pt on from moves along the
// line through to.
func slidesToward(pt board.PieceType, from, to board.Square) bool {
	if from == to {
		return false
	}
	straight := from.File() == to.File() || from.Rank() == to.Rank()
	diagonal := abs(from.File()-to.File()) == abs(from.Rank()-to.Rank())
	switch pt {
	case board.Rook:
		return straight
	case board.Bishop:
		return diagonal
	case board.Queen:
		return straight || diagonal
	}
	return false
}

// IsSkewer reports whether the moved slider, looking down one of its rays,
// sees two enemy pieces in a row with the more valuable one in front.
func IsSkewer(pos *board.Position, m board.Move) bool {
	after, err := pos.Push(m)
	if err != nil {
		return false
	}
	to := m.To()
	mover := after.PieceAt(to)
	them := pos.SideToMove.Other()

	for _, dir := range sliderDirs(mover.Type()) {
		front, behind := firstTwoOnRay(after, to, dir)
		if front == board.NoPiece || behind == board.NoPiece {
			continue
		}
		if front.Color() != them || behind.Color() != them {
			continue
		}
		if points(front.Type()) > points(behind.Type()) {
			return true
		}
	}
	return false
}

func sliderDirs(pt board.PieceType) [][2]int {
	switch pt {
	case board.Bishop:
		return diagonalDirs[:]
	case board.Rook:
		return straightDirs[:]
	case board.Queen:
		return append(append([][2]int{}, straightDirs[:]...), diagonalDirs[:]...)
	}
	return nil
}

// firstTwoOnRay returns the first two pieces met walking from sq in dir.
func firstTwoOnRay(pos *board.Position, sq board.Square, dir [2]int) (board.Piece, board.Piece) {
	found := [2]board.Piece{board.NoPiece, board.NoPiece}
	n := 0
	f, r := sq.File()+dir[0], sq.Rank()+dir[1]
	for f >= 0 && f < 8 && r >= 0 && r < 8 && n < 2 {
		if p := pos.PieceAt(board.NewSquare(f, r)); p != board.NoPiece {
			found[n] = p
			n++
		}
		f += dir[0]
		r += dir[1]
	}
	return found[0], found[1]
}

// IsDiscoveredAttack reports whether moving a piece out of the way gives
// another own slider a new attack on an enemy piece worth three or more
// points, or on the king. Castling never counts.
func IsDiscoveredAttack(pos *board.Position, m board.Move) bool {
	if m.IsCastling() {
		return false
	}
	after, err := pos.Push(m)
	if err != nil {
		return false
	}
	us := pos.SideToMove
	them := us.Other()

	var valuable board.Bitboard
	for pt := board.Knight; pt <= board.King; pt++ {
		valuable |= after.Pieces[them][pt]
	}

	sliders := (after.Pieces[us][board.Bishop] | after.Pieces[us][board.Rook] | after.Pieces[us][board.Queen]) &^
		board.SquareBB(m.To())
	for sliders != 0 {
		sq := sliders.PopLSB()
		gained := after.AttacksFrom(sq) &^ pos.AttacksFrom(sq)
		if gained&valuable != 0 {
			return true
		}
	}
	return false
}

// IsBackRank reports whether the move checks a king standing on its own
// back rank with a rook or queen on that rank, and the king cannot step
// off the rank (which includes checkmate).
func IsBackRank(pos *board.Position, m board.Move) bool {
	after, err := pos.Push(m)
	if err != nil || !after.InCheck() {
		return false
	}
	us := pos.SideToMove
	them := us.Other()
	ksq := after.KingSquare[them]
	if ksq.RelativeRank(them) != 0 {
		return false
	}

	rank := board.RankMask[ksq.Rank()]
	heavy := after.Pieces[us][board.Rook] | after.Pieces[us][board.Queen]
	if after.Checkers&heavy&rank == 0 {
		return false
	}
	if after.IsCheckmate() {
		return true
	}
	for _, reply := range after.LegalMoves() {
		if reply.From() == ksq && reply.To().RelativeRank(them) != 0 {
			return false
		}
	}
	return true
}

// IsDeflection reports whether a capture removes a defender: some enemy
// piece the captured piece was protecting is afterwards attacked by more of
// our pieces than it has defenders left.
func IsDeflection(pos *board.Position, m board.Move) bool {
	captured := pos.CapturedPiece(m)
	if captured == board.NoPiece {
		return false
	}
	after, err := pos.Push(m)
	if err != nil {
		return false
	}
	us := pos.SideToMove
	them := us.Other()

	captureSq := m.To()
	if m.IsEnPassant() {
		captureSq = epVictim(pos, m)
	}
	defended := pos.AttacksFrom(captureSq) & pos.Occupied[them] &^ pos.Pieces[them][board.King]
	for defended != 0 {
		sq := defended.PopLSB()
		if sq == m.To() || after.PieceAt(sq).Color() != them {
			continue
		}
		attackers := after.Attackers(us, sq).PopCount()
		defenders := after.Attackers(them, sq).PopCount()
		if attackers > 0 && attackers > defenders {
			return true
		}
	}
	return false
}

// MateIn returns 1 if m mates at once, 2 if every reply to m allows a mate
// in one, and 0 otherwise. maxDepth is capped at MaxMateDepth.
func MateIn(pos *board.Position, m board.Move, maxDepth int) int {
	after, err := pos.Push(m)
	if err != nil {
		return 0
	}
	if after.IsCheckmate() {
		return 1
	}
	if min(maxDepth, MaxMateDepth) < 2 {
		return 0
	}
	replies := after.LegalMoves()
	if len(replies) == 0 {
		return 0
	}
	for _, reply := range replies {
		if !HasMateInOne(after.MustPush(reply)) {
			return 0
		}
	}
	return 2
}

// HasMateInOne reports whether the side to move can mate immediately.
func HasMateInOne(pos *board.Position) bool {
	for _, m := range pos.LegalMoves() {
		if pos.GivesMate(m) {
			return true
		}
	}
	return false
}

// MateMove returns a move of pos that satisfies MateIn within maxDepth,
// preferring the shortest mate, or NoMove.
func MateMove(pos *board.Position, maxDepth int) (board.Move, int) {
	moves := pos.LegalMoves()
	for _, m := range moves {
		if pos.GivesMate(m) {
			return m, 1
		}
	}
	if min(maxDepth, MaxMateDepth) < 2 {
		return board.NoMove, 0
	}
	for _, m := range moves {
		if MateIn(pos, m, 2) == 2 {
			return m, 2
		}
	}
	return board.NoMove, 0
}

// IsSacrifice reports whether m moves a piece worth more than what it
// captures onto a square the opponent attacks.
func IsSacrifice(pos *board.Position, m board.Move) bool {
	mover := pos.MovedPiece(m).Type()
	if mover == board.NoPieceType {
		return false
	}
	captured := 0
	if c := pos.CapturedPiece(m); c != board.NoPiece {
		captured = points(c.Type())
	}
	if points(mover) <= captured {
		return false
	}
	after, err := pos.Push(m)
	if err != nil {
		return false
	}
	return after.Attackers(pos.SideToMove.Other(), m.To()) != 0
}

// IsLosingSacrifice is IsSacrifice where the exchange that follows also
// loses material.
func IsLosingSacrifice(pos *board.Position, m board.Move) bool {
	return IsSacrifice(pos, m) && Exchange(pos, m) < 0
}

// IsWinningCapture reports a capture that nets material after the
// exchange on its destination is played out.
func IsWinningCapture(pos *board.Position, m board.Move) bool {
	if pos.CapturedPiece(m) == board.NoPiece || !pos.IsLegalMove(m) {
		return false
	}
	return Exchange(pos, m) > 0
}

// IsKingActivity reports a king move in the endgame toward the centre or
// into the opponent's half.
func IsKingActivity(pos *board.Position, m board.Move) bool {
	if pos.MovedPiece(m).Type() != board.King || m.IsCastling() {
		return false
	}
	from, to := m.From(), m.To()
	us := pos.SideToMove
	if to.RelativeRank(us) > from.RelativeRank(us) && to.RelativeRank(us) >= 3 {
		return true
	}
	return centreDistance(to) < centreDistance(from)
}

func centreDistance(sq board.Square) int {
	f, r := sq.File(), sq.Rank()
	return max(abs(2*f-7), abs(2*r-7))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
