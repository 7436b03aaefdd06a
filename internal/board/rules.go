package board

import (
	"fmt"

	"github.com/hailam/chesstrainer/internal/errors"
)

// A *Position handed out by this package is never modified afterwards.
// Push copies the receiver and applies the move to the copy, so positions can
// be shared between goroutines and reused by recursive searches freely.

// LegalMoves returns every legal move in generation order.
func (p *Position) LegalMoves() []Move {
	ml := p.generateLegal()
	moves := make([]Move, ml.Len())
	copy(moves, ml.Slice())
	return moves
}

// LegalMoveCount returns the number of legal moves.
func (p *Position) LegalMoveCount() int {
	return p.generateLegal().Len()
}

// IsLegalMove reports whether m is legal in this position.
func (p *Position) IsLegalMove(m Move) bool {
	if m == NoMove {
		return false
	}
	return p.generateLegal().Contains(m)
}

// Push returns the position after m. The receiver is left untouched.
// An illegal move returns an error wrapping errors.ErrIllegalMove.
func (p *Position) Push(m Move) (*Position, error) {
	if !p.IsLegalMove(m) {
		return nil, fmt.Errorf("%s in %s: %w", m, p.ToFEN(), errors.ErrIllegalMove)
	}
	next := *p
	next.apply(m)
	return &next, nil
}

// MustPush is Push for moves taken from LegalMoves. It panics on an illegal move.
func (p *Position) MustPush(m Move) *Position {
	next, err := p.Push(m)
	if err != nil {
		panic(err)
	}
	return next
}

// Attackers returns the pieces of color c attacking sq.
func (p *Position) Attackers(c Color, sq Square) Bitboard {
	return p.AttackersByColor(sq, c, p.AllOccupied)
}

// AttacksFrom returns the squares attacked by the piece standing on sq,
// or an empty set if sq is empty.
func (p *Position) AttacksFrom(sq Square) Bitboard {
	piece := p.PieceAt(sq)
	switch piece.Type() {
	case Pawn:
		return PawnAttacks(sq, piece.Color())
	case Knight:
		return KnightAttacks(sq)
	case Bishop:
		return BishopAttacks(sq, p.AllOccupied)
	case Rook:
		return RookAttacks(sq, p.AllOccupied)
	case Queen:
		return QueenAttacks(sq, p.AllOccupied)
	case King:
		return KingAttacks(sq)
	}
	return Empty
}

// IsGameOver reports checkmate, stalemate, the fifty-move rule or
// insufficient material. Repetition needs game history and is not tracked.
func (p *Position) IsGameOver() bool {
	return !p.HasLegalMoves() || p.HalfMoveClock >= 100 || p.IsInsufficientMaterial()
}

// GivesCheck reports whether the legal move m checks the opponent.
func (p *Position) GivesCheck(m Move) bool {
	next := *p
	if !next.apply(m) {
		return false
	}
	return next.InCheck()
}

// GivesMate reports whether the legal move m checkmates the opponent.
func (p *Position) GivesMate(m Move) bool {
	next := *p
	if !next.apply(m) {
		return false
	}
	return next.IsCheckmate()
}

// MovedPiece returns the piece standing on the origin square of m.
func (p *Position) MovedPiece(m Move) Piece {
	return p.PieceAt(m.From())
}

// CapturedPiece returns the piece m removes from the board, or NoPiece.
func (p *Position) CapturedPiece(m Move) Piece {
	if m.IsEnPassant() {
		return NewPiece(Pawn, p.SideToMove.Other())
	}
	if m.IsCastling() {
		return NoPiece
	}
	return p.PieceAt(m.To())
}

// ParseUCI resolves long algebraic text ("e2e4", "e7e8q") to a legal move.
// Anything that does not name a legal move wraps errors.ErrIllegalMove.
func (p *Position) ParseUCI(s string) (Move, error) {
	m, err := ParseMove(s, p)
	if err != nil {
		return NoMove, fmt.Errorf("uci %q: %v: %w", s, err, errors.ErrIllegalMove)
	}
	if !p.IsLegalMove(m) {
		return NoMove, fmt.Errorf("uci %q in %s: %w", s, p.ToFEN(), errors.ErrIllegalMove)
	}
	return m, nil
}

// ParseFENAndMove parses a position and a move given in either UCI or SAN.
func ParseFENAndMove(fen, move string) (*Position, Move, error) {
	pos, err := ParseFEN(fen)
	if err != nil {
		return nil, NoMove, err
	}
	if m, err := pos.ParseUCI(move); err == nil {
		return pos, m, nil
	}
	m, err := pos.ParseSAN(move)
	if err != nil {
		return nil, NoMove, err
	}
	return pos, m, nil
}
