package trainer

import (
	"context"
	"sync"
	"testing"

	"github.com/hailam/chesstrainer/internal/analysis"
	"github.com/hailam/chesstrainer/internal/board"
	"github.com/hailam/chesstrainer/internal/config"
	cterrors "github.com/hailam/chesstrainer/internal/errors"
	"github.com/hailam/chesstrainer/internal/puzzle"
	"github.com/hailam/chesstrainer/internal/storage"
	"github.com/hailam/chesstrainer/internal/testutil"
)

var scholarsMate = []string{"e4", "e5", "Qh5", "Nc6", "Bc4", "Nf6", "Qxf7#"}

var beforeNf6 = testutil.Play(board.StartFEN, "e2e4", "e7e5", "d1h5", "b8c6", "f1c4")

// scholarsScript has Black's only good defence be ...Qe7, far ahead of the
// next move, so ...Nf6 makes a puzzle.
func scholarsScript() *testutil.ScriptedEvaluator {
	ev := testutil.NewScriptedEvaluator()
	ev.Fallback = func(*board.Position) []testutil.Line {
		return []testutil.Line{testutil.CP(0)}
	}
	ev.Script(board.StartFEN, testutil.CP(30, "e2e4"), testutil.CP(20, "d2d4"))
	ev.Script(beforeNf6, testutil.CP(-50, "d8e7"), testutil.CP(-600, "g7g6"))
	ev.Script(testutil.Play(beforeNf6, "g8f6"), testutil.Mate(1, "h5f7"))
	return ev
}

func TestProcessGame(t *testing.T) {
	store, err := storage.Open("")
	testutil.AssertNoError(t, err)
	defer store.Close()

	svc := New(scholarsScript(), nil, WithPuzzleStore(store), WithSolutionStore(store))
	defer svc.Close()

	src := puzzle.Source{GameID: "scholar", White: "W", Black: "B"}
	res := svc.ProcessGame(context.Background(), Job{Source: src, Game: analysis.Game{Moves: scholarsMate}})
	testutil.AssertNoError(t, res.Err)

	if len(res.Evaluations) != len(scholarsMate) || res.Report.Analyzed != len(scholarsMate) {
		t.Fatalf("evaluations %d, report %+v", len(res.Evaluations), res.Report)
	}
	if len(res.Puzzles) != 1 {
		t.Fatalf("got %d puzzles, want 1", len(res.Puzzles))
	}
	p := res.Puzzles[0]
	if p.PlayedSAN != "Nf6" || p.BestSAN != "Qe7" || p.Type != puzzle.BlunderPuzzle || p.Source != src {
		t.Errorf("puzzle = %+v", p)
	}
	if p.Tags.Empty() {
		t.Error("puzzle has no tags")
	}
	testutil.AssertEqual(t, p.Solution, []string{"d8e7"})
	testutil.AssertEqual(t, p.SolutionSAN, []string{"Qe7"})
	if res.Unsolved != 0 {
		t.Errorf("unsolved = %d", res.Unsolved)
	}

	saved, err := store.LoadPuzzle(p.Key)
	testutil.AssertNoError(t, err)
	if saved == nil || len(saved.Solution) != 1 {
		t.Errorf("saved puzzle = %+v", saved)
	}
}

func TestProcessGameKeepsUnsolvedPuzzles(t *testing.T) {
	ev := scholarsScript()
	// The solver needs White's reply to ...Qe7, which now fails.
	ev.Fail(testutil.Play(beforeNf6, "d8e7"), cterrors.ErrOracleUnavailable)
	svc := New(ev, nil)
	defer svc.Close()

	res := svc.ProcessGame(context.Background(), Job{Game: analysis.Game{Moves: scholarsMate}})
	testutil.AssertNoError(t, res.Err)
	if len(res.Puzzles) != 1 || res.Unsolved != 1 || res.Puzzles[0].Solution != nil {
		t.Errorf("puzzles %d, unsolved %d", len(res.Puzzles), res.Unsolved)
	}
}

func TestProcessGames(t *testing.T) {
	svc := New(scholarsScript(), nil)
	defer svc.Close()

	jobs := []Job{
		{Source: puzzle.Source{GameID: "good"}, Game: analysis.Game{Moves: scholarsMate}},
		{Source: puzzle.Source{GameID: "bad"}, Game: analysis.Game{StartFEN: "garbage", Moves: []string{"e4"}}},
		{Source: puzzle.Source{GameID: "short"}, Game: analysis.Game{Moves: []string{"e4", "e5"}}},
	}
	results, err := svc.ProcessGames(context.Background(), jobs, 2)
	testutil.AssertNoError(t, err)

	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	for i, r := range results {
		if r.Source != jobs[i].Source {
			t.Errorf("result %d is for %s", i, r.Source.GameID)
		}
	}
	if len(results[0].Puzzles) != 1 {
		t.Errorf("first game: %d puzzles", len(results[0].Puzzles))
	}
	testutil.AssertErrorIs(t, results[1].Err, cterrors.ErrInvalidFEN)
	if results[2].Err != nil || results[2].Report.Analyzed != 2 {
		t.Errorf("third game: %+v", results[2].Report)
	}
}

func TestSolvePuzzleSharesSearches(t *testing.T) {
	ev := scholarsScript()
	ev.Gate = make(chan struct{})
	svc := New(ev, nil)
	defer svc.Close()

	// SAN and UCI spellings of the same move share a search.
	firsts := []string{"Qe7", "d8e7"}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(first string) {
			defer wg.Done()
			line, err := svc.SolvePuzzle(context.Background(), beforeNf6, first, 0, 12)
			if err != nil {
				t.Errorf("SolvePuzzle(%s): %v", first, err)
				return
			}
			if line.Len() != 1 {
				t.Errorf("line %v", line.UCI())
			}
		}(firsts[i%2])
	}
	close(ev.Gate)
	wg.Wait()

	if got := svc.CacheStats().Computed; got != 1 {
		t.Errorf("computed %d searches, want 1", got)
	}
}

func TestSolvePuzzleRejectsBadInput(t *testing.T) {
	svc := New(scholarsScript(), nil)
	defer svc.Close()

	_, err := svc.SolvePuzzle(context.Background(), beforeNf6, "Qd8", 0, 0)
	testutil.AssertErrorIs(t, err, cterrors.ErrIllegalMove)
	_, err = svc.SolvePuzzle(context.Background(), "garbage", "e4", 0, 0)
	testutil.AssertErrorIs(t, err, cterrors.ErrInvalidFEN)
}

// ladderFEN is mate in two: Ra7 leaves only Kg8, then Rb8#.
const ladderFEN = "7k/8/8/8/8/8/1R6/R3K3 w - - 0 1"

func ladderScript() *testutil.ScriptedEvaluator {
	ev := testutil.NewScriptedEvaluator()
	ev.Script(testutil.Play(ladderFEN, "a1a7", "h8g8"), testutil.Mate(1, "b2b8"))
	return ev
}

func TestSolvePuzzleHonoursMaxPlies(t *testing.T) {
	mate := []string{"a1a7", "h8g8", "b2b8"}
	tests := []struct {
		name  string
		order []int
		want  [][]string
	}{
		{"long then short", []int{6, 1}, [][]string{mate, {"a1a7"}}},
		{"short then long", []int{1, 6}, [][]string{{"a1a7"}, mate}},
		{"even bound", []int{2, 4}, [][]string{{"a1a7"}, mate}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New(ladderScript(), nil)
			defer svc.Close()
			for i, plies := range tt.order {
				line, err := svc.SolvePuzzle(context.Background(), ladderFEN, "Ra7", plies, 12)
				testutil.AssertNoError(t, err)
				testutil.AssertEqual(t, line.UCI(), tt.want[i])
			}
		})
	}
}

func TestSolvePuzzleSearchesDeeperWhenAsked(t *testing.T) {
	cfg := config.Default()
	cfg.Solver.MaxPlies = 1
	svc := New(ladderScript(), cfg)
	defer svc.Close()

	short, err := svc.SolvePuzzle(context.Background(), ladderFEN, "a1a7", 0, 12)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, short.UCI(), []string{"a1a7"})

	long, err := svc.SolvePuzzle(context.Background(), ladderFEN, "a1a7", 5, 12)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, long.UCI(), []string{"a1a7", "h8g8", "b2b8"})
	if got := svc.CacheStats().Computed; got != 2 {
		t.Errorf("computed %d searches, want 2", got)
	}
}
