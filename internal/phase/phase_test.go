package phase

import (
	"testing"

	"github.com/hailam/chesstrainer/internal/board"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		fen     string
		move    int
		castled Castled
		want    Phase
	}{
		{"start position", board.StartFEN, 1, Castled{}, Opening},
		{"bare kings and pawns", "4k3/pppp4/8/8/8/8/PPPP4/4K3 w - - 0 30", 30, Castled{}, Endgame},
		{"rook ending", "3rk3/8/8/8/8/8/8/3RK3 w - - 0 25", 25, Castled{}, Endgame},
		// Two rooks and a bishop each: 26 points, no queens, move 60.
		{"late heavy", "r3kb1r/8/8/8/8/8/8/R3KB1R w - - 0 60", 60, Castled{}, Endgame},
		{"same material earlier", "r3kb1r/8/8/8/8/8/8/R3KB1R w - - 0 30", 30, Castled{}, Middlegame},
		// Queens plus two rooks each, every minor home square empty.
		{"queens and rooks early", "r2qk2r/pppppppp/8/8/8/8/PPPPPPPP/R2QK2R w KQkq - 0 8", 8, Castled{}, Middlegame},
		// Full material, every minor developed, both castled.
		{"developed", "r2q1rk1/ppp2ppp/2nbbn2/3pp3/3PP3/2NBBN2/PPP2PPP/R2Q1RK1 w - - 0 10", 10, Castled{true, true}, Middlegame},
		{"thin material early", "4k3/pppppppp/8/8/8/8/PPPPPPPP/3QK3 w - - 0 5", 5, Castled{}, Endgame},
		{"full material move 20", "r1bqkbnr/pppppppp/2n5/8/8/2N5/PPPPPPPP/R1BQKBNR w KQkq - 0 20", 20, Castled{}, Middlegame},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, err := board.ParseFEN(tt.fen)
			if err != nil {
				t.Fatal(err)
			}
			if got := Classify(pos, tt.move, tt.castled); got != tt.want {
				t.Errorf("Classify() = %s, want %s (material %d)", got, tt.want, pos.NonPawnPoints())
			}
		})
	}
}

func TestDevelopedMinors(t *testing.T) {
	pos := board.NewPosition()
	if got := DevelopedMinors(pos, Castled{}); got != 0 {
		t.Errorf("start position developed = %d", got)
	}
	pos, _ = board.ParseFEN("r1bqkb1r/pppppppp/2n2n2/8/8/2N2N2/PPPPPPPP/R1BQKB1R w KQkq - 0 3")
	if got := DevelopedMinors(pos, Castled{}); got != 4 {
		t.Errorf("four knights developed = %d, want 4", got)
	}
	if got := DevelopedMinors(pos, Castled{true, false}); got != 5 {
		t.Errorf("castled white adds one, got %d", got)
	}
}

func TestTracker(t *testing.T) {
	pos, _ := board.ParseFEN("r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1")
	var tr Tracker
	tr.Observe(pos, board.NewMove(board.A1, board.A2))
	if tr.Castled() != (Castled{}) {
		t.Fatal("rook move is not castling")
	}
	tr.Observe(pos, board.NewCastling(board.E1, board.G1))
	if tr.Castled() != (Castled{true, false}) {
		t.Errorf("castled = %v", tr.Castled())
	}
}

func TestPhaseText(t *testing.T) {
	var p Phase
	if err := p.UnmarshalText([]byte("endgame")); err != nil || p != Endgame {
		t.Errorf("UnmarshalText = %v %v", p, err)
	}
	if err := p.UnmarshalText([]byte("late")); err == nil {
		t.Error("unknown name should fail")
	}
	if Unknown.OrDefault() != Middlegame || Opening.OrDefault() != Opening {
		t.Error("OrDefault")
	}
}
