package board

import (
	"fmt"
	"strings"

	"github.com/hailam/chesstrainer/internal/errors"
)

// SAN converts a legal move to Standard Algebraic Notation.
// Moves with no piece on their origin square fall back to UCI text.
func (p *Position) SAN(m Move) string {
	if m == NoMove {
		return "-"
	}

	from := m.From()
	to := m.To()
	piece := p.PieceAt(from)
	if piece == NoPiece {
		return m.String()
	}

	var sb strings.Builder

	if m.IsCastling() {
		if to > from {
			sb.WriteString("O-O")
		} else {
			sb.WriteString("O-O-O")
		}
	} else {
		pt := piece.Type()
		if pt != Pawn {
			sb.WriteByte("PNBRQK"[pt])
			sb.WriteString(p.disambiguation(m, pt))
		}

		if m.IsCapture(p) {
			if pt == Pawn {
				sb.WriteByte('a' + byte(from.File()))
			}
			sb.WriteByte('x')
		}

		sb.WriteString(to.String())

		if m.IsPromotion() {
			sb.WriteByte('=')
			sb.WriteByte("PNBRQK"[m.Promotion()])
		}
	}

	next := *p
	if next.apply(m) {
		if next.IsCheckmate() {
			sb.WriteByte('#')
		} else if next.InCheck() {
			sb.WriteByte('+')
		}
	}

	return sb.String()
}

// disambiguation returns the origin file, rank or square needed when another
// piece of the same type can reach the same destination.
func (p *Position) disambiguation(m Move, pt PieceType) string {
	from := m.From()
	to := m.To()
	pieces := p.Pieces[p.SideToMove][pt]

	var candidates []Square
	legal := p.generateLegal()
	for i := 0; i < legal.Len(); i++ {
		other := legal.Get(i)
		if other.To() != to || other.From() == from {
			continue
		}
		if pieces.IsSet(other.From()) {
			candidates = append(candidates, other.From())
		}
	}

	if len(candidates) == 0 {
		return ""
	}

	sameFile, sameRank := false, false
	for _, sq := range candidates {
		if sq.File() == from.File() {
			sameFile = true
		}
		if sq.Rank() == from.Rank() {
			sameRank = true
		}
	}

	if !sameFile {
		return string(rune('a' + from.File()))
	}
	if !sameRank {
		return string(rune('1' + from.Rank()))
	}
	return from.String()
}

// ParseSAN resolves SAN text to a legal move in this position. Annotation
// suffixes (+, #, !, ?) are ignored. Text that does not name exactly one
// legal move returns an error wrapping errors.ErrIllegalMove.
func (p *Position) ParseSAN(s string) (Move, error) {
	text := strings.TrimSpace(s)
	text = strings.TrimRight(text, "+#!?")

	legal := p.generateLegal()

	if text == "O-O" || text == "0-0" || text == "O-O-O" || text == "0-0-0" {
		kingSide := len(text) == 3
		for i := 0; i < legal.Len(); i++ {
			m := legal.Get(i)
			if m.IsCastling() && (m.To() > m.From()) == kingSide {
				return m, nil
			}
		}
		return NoMove, fmt.Errorf("san %q: %w", s, errors.ErrIllegalMove)
	}

	promo := NoPieceType
	if idx := strings.IndexByte(text, '='); idx >= 0 {
		if idx+1 >= len(text) {
			return NoMove, fmt.Errorf("san %q: missing promotion piece: %w", s, errors.ErrIllegalMove)
		}
		promo = pieceTypeFromLetter(text[idx+1])
		if promo == NoPieceType || promo == Pawn || promo == King {
			return NoMove, fmt.Errorf("san %q: bad promotion piece: %w", s, errors.ErrIllegalMove)
		}
		text = text[:idx]
	}

	isCapture := strings.Contains(text, "x")
	text = strings.ReplaceAll(text, "x", "")

	pt := Pawn
	if len(text) > 0 && text[0] >= 'A' && text[0] <= 'Z' {
		pt = pieceTypeFromLetter(text[0])
		if pt == NoPieceType || pt == Pawn {
			return NoMove, fmt.Errorf("san %q: unknown piece: %w", s, errors.ErrIllegalMove)
		}
		text = text[1:]
	}

	if len(text) < 2 {
		return NoMove, fmt.Errorf("san %q: missing destination: %w", s, errors.ErrIllegalMove)
	}
	dest, err := ParseSquare(text[len(text)-2:])
	if err != nil {
		return NoMove, fmt.Errorf("san %q: %v: %w", s, err, errors.ErrIllegalMove)
	}
	text = text[:len(text)-2]

	fileHint, rankHint := -1, -1
	for _, c := range text {
		switch {
		case c >= 'a' && c <= 'h':
			fileHint = int(c - 'a')
		case c >= '1' && c <= '8':
			rankHint = int(c - '1')
		default:
			return NoMove, fmt.Errorf("san %q: bad disambiguation: %w", s, errors.ErrIllegalMove)
		}
	}

	found := NoMove
	for i := 0; i < legal.Len(); i++ {
		m := legal.Get(i)
		if m.To() != dest || m.IsCastling() {
			continue
		}
		from := m.From()
		if p.PieceAt(from).Type() != pt {
			continue
		}
		if fileHint >= 0 && from.File() != fileHint {
			continue
		}
		if rankHint >= 0 && from.Rank() != rankHint {
			continue
		}
		if isCapture && !m.IsCapture(p) {
			continue
		}
		if m.IsPromotion() != (promo != NoPieceType) {
			continue
		}
		if promo != NoPieceType && m.Promotion() != promo {
			continue
		}
		if found != NoMove {
			return NoMove, fmt.Errorf("san %q: ambiguous: %w", s, errors.ErrIllegalMove)
		}
		found = m
	}

	if found == NoMove {
		return NoMove, fmt.Errorf("san %q in %s: %w", s, p.ToFEN(), errors.ErrIllegalMove)
	}
	return found, nil
}

func pieceTypeFromLetter(c byte) PieceType {
	switch c {
	case 'P':
		return Pawn
	case 'N':
		return Knight
	case 'B':
		return Bishop
	case 'R':
		return Rook
	case 'Q':
		return Queen
	case 'K':
		return King
	}
	return NoPieceType
}

// LineSAN renders a sequence of moves played from p in SAN.
// Rendering stops at the first move that is not legal in its position.
func (p *Position) LineSAN(moves []Move) []string {
	result := make([]string, 0, len(moves))
	cur := p
	for _, m := range moves {
		next, err := cur.Push(m)
		if err != nil {
			break
		}
		result = append(result, cur.SAN(m))
		cur = next
	}
	return result
}
