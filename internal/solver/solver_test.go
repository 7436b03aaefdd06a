package solver

import (
	"context"
	"fmt"
	"testing"

	"github.com/hailam/chesstrainer/internal/board"
	cterrors "github.com/hailam/chesstrainer/internal/errors"
	"github.com/hailam/chesstrainer/internal/testutil"
)

const (
	forkFEN       = "4k3/1r6/8/8/2N5/8/8/K7 w - - 0 1"
	deflectionFEN = "7k/8/2n5/4b3/8/8/8/2R1R2K w - - 0 1"
	backRankFEN   = "3r2k1/5ppp/8/8/8/8/5PPP/6K1 b - - 0 1"
	ladderFEN     = "7k/7p/8/8/8/8/8/R5K1 w - - 0 1"
)

func move(t *testing.T, fen, uci string) (*board.Position, board.Move) {
	t.Helper()
	pos := testutil.MustPosition(fen)
	m, err := pos.ParseUCI(uci)
	if err != nil {
		t.Fatal(err)
	}
	return pos, m
}

// forkScript answers the knight fork: Kf8 then Nxb7. Anything else has no
// usable best move.
func forkScript() *testutil.ScriptedEvaluator {
	ev := testutil.NewScriptedEvaluator()
	ev.Fallback = func(*board.Position) []testutil.Line { return []testutil.Line{testutil.CP(0)} }
	ev.Script(testutil.Play(forkFEN, "c4d6"), testutil.CP(-450, "e8f8"))
	ev.Script(testutil.Play(forkFEN, "c4d6", "e8f8"), testutil.CP(480, "d6b7"))
	return ev
}

func TestSolve(t *testing.T) {
	tests := []struct {
		name     string
		fen      string
		first    string
		script   func(*testutil.ScriptedEvaluator)
		maxPlies int
		want     []string
		calls    int
	}{
		{
			name:     "fork wins the rook",
			fen:      forkFEN,
			first:    "c4d6",
			maxPlies: 4,
			want:     []string{"c4d6", "e8f8", "d6b7"},
			calls:    2,
		},
		{
			name:  "mate ends the line",
			fen:   backRankFEN,
			first: "d8d1",
			want:  []string{"d8d1"},
		},
		{
			name:  "decisive capture needs no cleanup",
			fen:   deflectionFEN,
			first: "c1c6",
			script: func(ev *testutil.ScriptedEvaluator) {
				ev.Script(testutil.Play(deflectionFEN, "c1c6"), testutil.CP(-700, "e5d4"))
			},
			want:  []string{"c1c6"},
			calls: 1,
		},
		{
			name:  "quiet follow-up ends the line",
			fen:   forkFEN,
			first: "c4d6",
			script: func(ev *testutil.ScriptedEvaluator) {
				ev.Script(testutil.Play(forkFEN, "c4d6", "e8f8"), testutil.CP(480, "a1a2"))
			},
			want:  []string{"c4d6"},
			calls: 2,
		},
		{
			name:  "forced reply is not queried",
			fen:   ladderFEN,
			first: "a1a8",
			script: func(ev *testutil.ScriptedEvaluator) {
				ev.Script(testutil.Play(ladderFEN, "a1a8", "h8g7"), testutil.CP(300, "g1f2"))
			},
			want:  []string{"a1a8"},
			calls: 1,
		},
		{
			name:     "ply limit",
			fen:      forkFEN,
			first:    "c4d6",
			maxPlies: 2,
			want:     []string{"c4d6"},
		},
		{
			name:  "illegal engine reply cuts the line",
			fen:   forkFEN,
			first: "c4d6",
			script: func(ev *testutil.ScriptedEvaluator) {
				ev.Script(testutil.Play(forkFEN, "c4d6"), testutil.CP(-450, "a1a2"))
			},
			want:  []string{"c4d6"},
			calls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := forkScript()
			if tt.script != nil {
				tt.script(ev)
			}
			pos, first := move(t, tt.fen, tt.first)

			line, err := New(ev).Solve(context.Background(), pos, first, tt.maxPlies, 12)
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, line.UCI(), tt.want)
			testutil.AssertNoError(t, line.Verify())
			if ev.Calls() != tt.calls {
				t.Errorf("engine calls = %d, want %d", ev.Calls(), tt.calls)
			}
			for _, d := range ev.Depths() {
				if d != 12 {
					t.Errorf("queried at depth %d, want 12", d)
				}
			}
		})
	}
}

func TestSolveForcedReplySkipsQuery(t *testing.T) {
	ev := testutil.NewScriptedEvaluator()
	ev.Script(testutil.Play(ladderFEN, "a1a8", "h8g7"), testutil.CP(300, "g1f2"))
	pos, first := move(t, ladderFEN, "a1a8")

	_, err := New(ev).Solve(context.Background(), pos, first, 0, 12)
	testutil.AssertNoError(t, err)
	if n := ev.CallsFor(testutil.Play(ladderFEN, "a1a8")); n != 0 {
		t.Errorf("queried the forced position %d times", n)
	}
}

func TestSolveIsDeterministic(t *testing.T) {
	pos, first := move(t, forkFEN, "c4d6")
	a, err := New(forkScript()).Solve(context.Background(), pos, first, 0, 12)
	testutil.AssertNoError(t, err)
	b, err := New(forkScript()).Solve(context.Background(), pos, first, 0, 12)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, a.UCI(), b.UCI())
	if a.Len()%2 != 1 {
		t.Errorf("line of %d plies does not end on a solver move", a.Len())
	}
}

func TestSolveErrors(t *testing.T) {
	pos := testutil.MustPosition(forkFEN)
	bad := board.NewMove(board.A1, board.A8)
	_, err := New(forkScript()).Solve(context.Background(), pos, bad, 0, 12)
	testutil.AssertErrorIs(t, err, cterrors.ErrIllegalMove)

	ev := forkScript()
	ev.Fail(testutil.Play(forkFEN, "c4d6"), fmt.Errorf("engine exited: %w", cterrors.ErrOracleUnavailable))
	_, first := move(t, forkFEN, "c4d6")
	line, err := New(ev).Solve(context.Background(), pos, first, 0, 12)
	testutil.AssertErrorIs(t, err, cterrors.ErrOracleUnavailable)
	if line.Len() != 0 {
		t.Errorf("partial line %v returned with an error", line.UCI())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(forkScript()).Solve(ctx, pos, first, 0, 12)
	testutil.AssertErrorIs(t, err, context.Canceled)
}

func TestIsForcing(t *testing.T) {
	tests := []struct {
		fen, uci string
		want     bool
	}{
		{forkFEN, "c4d6", true},
		{forkFEN, "c4e5", false},
		{deflectionFEN, "c1c6", true},
		{backRankFEN, "d8d1", true},
		{board.StartFEN, "e2e4", false},
	}
	for _, tt := range tests {
		pos, m := move(t, tt.fen, tt.uci)
		if got := IsForcing(pos, m); got != tt.want {
			t.Errorf("IsForcing(%s, %s) = %v, want %v", tt.fen, tt.uci, got, tt.want)
		}
	}
}

func TestParseLine(t *testing.T) {
	line, err := ParseLine(forkFEN, []string{"c4d6", "e8f8", "d6b7"})
	testutil.AssertNoError(t, err)
	san, err := line.SAN()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, san, []string{"Nd6+", "Kf8", "Nxb7"})

	_, err = ParseLine(forkFEN, []string{"c4d6", "d6b7"})
	testutil.AssertErrorIs(t, err, cterrors.ErrIllegalMove)

	_, err = ParseLine(forkFEN, []string{"c4d6", "e8f8"})
	testutil.AssertErrorIs(t, err, cterrors.ErrIllegalMove)

	_, err = ParseLine("nonsense", []string{"c4d6"})
	testutil.AssertErrorIs(t, err, cterrors.ErrInvalidFEN)
}

func TestTruncate(t *testing.T) {
	line, err := ParseLine(forkFEN, []string{"c4d6", "e8f8", "d6b7"})
	testutil.AssertNoError(t, err)

	tests := []struct {
		maxPlies int
		maxLen   int
		want     int
	}{
		{1, 1, 1},
		{2, 1, 1},
		{3, 3, 3},
		{6, 5, 3},
		{0, 5, 3},
	}
	for _, tt := range tests {
		if got := MaxLen(tt.maxPlies); got != tt.maxLen {
			t.Errorf("MaxLen(%d) = %d, want %d", tt.maxPlies, got, tt.maxLen)
		}
		cut := line.Truncate(tt.maxPlies)
		if cut.Len() != tt.want {
			t.Errorf("Truncate(%d) has %d plies, want %d", tt.maxPlies, cut.Len(), tt.want)
		}
		testutil.AssertNoError(t, cut.Verify())
	}
	if line.Len() != 3 {
		t.Error("Truncate changed the original line")
	}
}
