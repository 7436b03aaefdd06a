package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/hailam/chesstrainer/internal/board"
	cterrors "github.com/hailam/chesstrainer/internal/errors"
)

func TestScoreCentipawns(t *testing.T) {
	tests := []struct {
		score Score
		want  int
	}{
		{CP(35), 35},
		{CP(-120), -120},
		{MateIn(3), DefaultMateScore - 3},
		{MateIn(-2), -DefaultMateScore + 2},
		{Score{IsMate: true}, -DefaultMateScore},
	}
	for _, tt := range tests {
		if got := tt.score.Centipawns(DefaultMateScore); got != tt.want {
			t.Errorf("%s.Centipawns() = %d, want %d", tt.score, got, tt.want)
		}
	}
}

func TestScoreWhitePOV(t *testing.T) {
	if got := CP(50).White(board.Black); got != CP(-50) {
		t.Errorf("black +50 from white POV = %s", got)
	}
	if got := MateIn(2).White(board.Black); got != MateIn(-2) {
		t.Errorf("black mate 2 from white POV = %s", got)
	}
	if got := CP(50).White(board.White); got != CP(50) {
		t.Errorf("white POV should be unchanged, got %s", got)
	}
	if got := (Score{IsMate: true}).Negate(); !got.IsMate || got.Mate <= 0 {
		t.Errorf("opponent of a mated side should hold a winning mate score, got %s", got)
	}
}

func TestBestMoveValidatesLegality(t *testing.T) {
	pos := board.NewPosition()
	ctx := context.Background()

	stale := EvaluatorFunc(func(context.Context, *board.Position, int, int) ([]Line, error) {
		return []Line{{Score: CP(10), PV: []board.Move{board.NewMove(board.E2, board.E5)}}}, nil
	})
	if _, _, err := BestMove(ctx, stale, pos, 8); !errors.Is(err, cterrors.ErrIllegalMove) {
		t.Errorf("illegal engine move error = %v, want ErrIllegalMove", err)
	}

	empty := EvaluatorFunc(func(context.Context, *board.Position, int, int) ([]Line, error) {
		return nil, nil
	})
	if _, _, err := BestMove(ctx, empty, pos, 8); !errors.Is(err, cterrors.ErrIllegalMove) {
		t.Errorf("empty answer error = %v, want ErrIllegalMove", err)
	}

	good := EvaluatorFunc(func(context.Context, *board.Position, int, int) ([]Line, error) {
		return []Line{{Score: CP(30), PV: []board.Move{board.NewMove(board.E2, board.E4)}}}, nil
	})
	m, s, err := BestMove(ctx, good, pos, 8)
	if err != nil {
		t.Fatal(err)
	}
	if m.String() != "e2e4" || s != CP(30) {
		t.Errorf("BestMove = %s %s", m, s)
	}
}
