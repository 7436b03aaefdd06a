package board

import (
	"errors"
	"testing"

	cterrors "github.com/hailam/chesstrainer/internal/errors"
)

func mustFEN(t *testing.T, fen string) *Position {
	t.Helper()
	pos, err := ParseFEN(fen)
	if err != nil {
		t.Fatalf("ParseFEN(%q): %v", fen, err)
	}
	return pos
}

func TestCheckmate(t *testing.T) {
	tests := []struct {
		name string
		fen  string
		mate bool
	}{
		// Rook on the back rank, pawns block the escape squares.
		{"back rank", "R6k/6pp/8/8/8/8/8/K7 b - - 0 1", true},
		// The king can take the unprotected rook.
		{"capturable checker", "6Rk/8/8/8/8/8/8/K7 b - - 0 1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := mustFEN(t, tt.fen)
			if !pos.InCheck() {
				t.Fatal("expected side to move in check")
			}
			if got := pos.IsCheckmate(); got != tt.mate {
				t.Errorf("IsCheckmate() = %v, want %v", got, tt.mate)
			}
			if got := pos.IsGameOver(); got != tt.mate {
				t.Errorf("IsGameOver() = %v, want %v", got, tt.mate)
			}
		})
	}
}

func TestPushLeavesReceiverUntouched(t *testing.T) {
	pos := NewPosition()
	before := pos.ToFEN()
	hash := pos.Hash

	m, err := pos.ParseUCI("e2e4")
	if err != nil {
		t.Fatal(err)
	}
	next, err := pos.Push(m)
	if err != nil {
		t.Fatal(err)
	}

	if pos.ToFEN() != before || pos.Hash != hash {
		t.Errorf("Push mutated the receiver: %s", pos.ToFEN())
	}
	want := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	if got := next.ToFEN(); got != want {
		t.Errorf("after e4 FEN = %s, want %s", got, want)
	}
	if next.Hash != next.ComputeHash() {
		t.Error("incremental hash diverged from recomputed hash")
	}
}

func TestPushRejectsIllegalMove(t *testing.T) {
	pos := NewPosition()
	_, err := pos.Push(NewMove(E2, E5))
	if !errors.Is(err, cterrors.ErrIllegalMove) {
		t.Errorf("Push(e2e5) error = %v, want ErrIllegalMove", err)
	}
}

func TestSANRoundTrip(t *testing.T) {
	pos := NewPosition()
	line := []string{"e4", "e5", "Qh5", "Nc6", "Bc4", "Nf6", "Qxf7#"}
	for _, san := range line {
		m, err := pos.ParseSAN(san)
		if err != nil {
			t.Fatalf("ParseSAN(%q): %v", san, err)
		}
		if got := pos.SAN(m); got != san {
			t.Errorf("SAN(%s) = %q, want %q", m, got, san)
		}
		pos = pos.MustPush(m)
	}
	if !pos.IsCheckmate() {
		t.Error("scholar's mate should end in checkmate")
	}
}

func TestSANDisambiguation(t *testing.T) {
	pos := mustFEN(t, "4k3/8/8/8/8/5N2/8/1N2K3 w - - 0 1")

	if got := pos.SAN(NewMove(B1, D2)); got != "Nbd2" {
		t.Errorf("SAN(b1d2) = %q, want Nbd2", got)
	}
	if _, err := pos.ParseSAN("Nd2"); !errors.Is(err, cterrors.ErrIllegalMove) {
		t.Errorf("ParseSAN(Nd2) error = %v, want ambiguous ErrIllegalMove", err)
	}
	m, err := pos.ParseSAN("Nfd2")
	if err != nil {
		t.Fatal(err)
	}
	if m != NewMove(F3, D2) {
		t.Errorf("ParseSAN(Nfd2) = %s, want f3d2", m)
	}
}

func TestParseSANErrors(t *testing.T) {
	pos := NewPosition()
	for _, san := range []string{"Ke2", "e5", "Nf4", "", "Zf3", "O-O", "exd5"} {
		if _, err := pos.ParseSAN(san); !errors.Is(err, cterrors.ErrIllegalMove) {
			t.Errorf("ParseSAN(%q) error = %v, want ErrIllegalMove", san, err)
		}
	}
}

func TestPromotionAndCastling(t *testing.T) {
	pos := mustFEN(t, "8/4P1k1/8/8/8/8/8/4K3 w - - 0 1")
	m, err := pos.ParseUCI("e7e8q")
	if err != nil {
		t.Fatal(err)
	}
	if got := pos.SAN(m); got != "e8=Q" {
		t.Errorf("SAN = %q, want e8=Q", got)
	}
	if _, err := pos.ParseUCI("e7e8"); !errors.Is(err, cterrors.ErrIllegalMove) {
		t.Errorf("promotion without piece should be illegal, got %v", err)
	}

	pos = mustFEN(t, "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1")
	m, err = pos.ParseSAN("O-O")
	if err != nil {
		t.Fatal(err)
	}
	if m.String() != "e1g1" || pos.SAN(m) != "O-O" {
		t.Errorf("O-O parsed as %s (%s)", m, pos.SAN(m))
	}
	next := pos.MustPush(m)
	if next.PieceAt(F1) != WhiteRook || next.PieceAt(G1) != WhiteKing {
		t.Error("castling did not relocate king and rook")
	}
	if next.CastlingRights&(WhiteKingSideCastle|WhiteQueenSideCastle) != 0 {
		t.Error("white should lose both castling rights")
	}
}

func TestParseFENValidation(t *testing.T) {
	bad := []string{
		"",
		"garbage",
		"8/8/8/8/8/8/8/8 w - - 0 1",
		"4k2R/8/8/8/8/8/8/4K3 w - - 0 1",
		"P3k3/8/8/8/8/8/8/4K3 w - - 0 1",
	}
	for _, fen := range bad {
		if _, err := ParseFEN(fen); !errors.Is(err, cterrors.ErrInvalidFEN) {
			t.Errorf("ParseFEN(%q) error = %v, want ErrInvalidFEN", fen, err)
		}
	}

	pos := mustFEN(t, "4k3/8/8/8/8/8/8/4K3 w KQkq - 0 1")
	if pos.CastlingRights != NoCastling {
		t.Errorf("castling rights without rooks = %s, want -", pos.CastlingRights)
	}
}

func TestGameOver(t *testing.T) {
	tests := []struct {
		name string
		fen  string
		want bool
	}{
		{"stalemate", "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1", true},
		{"bare kings", "8/8/8/4k3/8/8/8/4K3 w - - 0 1", true},
		{"fifty moves", "4k3/8/8/8/8/8/4P3/4K3 w - - 100 80", true},
		{"start", StartFEN, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustFEN(t, tt.fen).IsGameOver(); got != tt.want {
				t.Errorf("IsGameOver() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCapturedPieceAndAttacks(t *testing.T) {
	pos := mustFEN(t, "4k3/8/8/3pP3/8/8/8/4K3 w - d6 0 2")
	m, err := pos.ParseUCI("e5d6")
	if err != nil {
		t.Fatal(err)
	}
	if !m.IsEnPassant() {
		t.Fatal("e5d6 should be en passant")
	}
	if got := pos.CapturedPiece(m); got != BlackPawn {
		t.Errorf("CapturedPiece = %v, want black pawn", got)
	}
	if pos.Attackers(White, D6) == 0 {
		t.Error("white pawn on e5 attacks d6")
	}
	if got := pos.AttacksFrom(E1); got != KingAttacks(E1) {
		t.Errorf("AttacksFrom(e1) = %v", got)
	}
}
