package storage

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	cterrors "github.com/hailam/chesstrainer/internal/errors"
	"github.com/hailam/chesstrainer/internal/puzzle"
	"github.com/hailam/chesstrainer/internal/solver"
	"github.com/hailam/chesstrainer/internal/tactics"
	"github.com/hailam/chesstrainer/internal/testutil"
)

const forkFEN = "4k3/1r6/8/8/2N5/8/8/K7 w - - 0 1"

func openMemory(t *testing.T) *Storage {
	t.Helper()
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func forkLine(t *testing.T) solver.Line {
	t.Helper()
	line, err := solver.ParseLine(forkFEN, []string{"c4d6", "e8f8", "d6b7"})
	testutil.AssertNoError(t, err)
	return line
}

func TestSolutions(t *testing.T) {
	s := openMemory(t)

	if _, ok, err := s.Get("missing"); ok || err != nil {
		t.Errorf("missing key: ok=%v err=%v", ok, err)
	}

	testutil.AssertNoError(t, s.Put("k", forkLine(t)))
	got, ok, err := s.Get("k")
	testutil.AssertNoError(t, err)
	if !ok {
		t.Fatal("stored line not found")
	}
	testutil.AssertEqual(t, got.UCI(), []string{"c4d6", "e8f8", "d6b7"})
	testutil.AssertEqual(t, got.FEN, forkFEN)
}

func TestCorruptSolution(t *testing.T) {
	s := openMemory(t)
	// Two plies cannot be a solution.
	testutil.AssertNoError(t, s.put(prefixSolution+"bad", storedLine{FEN: forkFEN, Moves: []string{"c4d6", "e8f8"}}))

	_, ok, err := s.Get("bad")
	if ok {
		t.Error("invalid line returned")
	}
	testutil.AssertErrorIs(t, err, cterrors.ErrIllegalMove)
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, s.Put("k", forkLine(t)))
	testutil.AssertNoError(t, s.Close())

	s, err = Open(dir)
	testutil.AssertNoError(t, err)
	defer s.Close()
	if _, ok, err := s.Get("k"); !ok || err != nil {
		t.Errorf("line lost across reopen: ok=%v err=%v", ok, err)
	}
}

func TestPuzzles(t *testing.T) {
	s := openMemory(t)
	gap := 480
	a := &puzzle.Candidate{
		Key:           puzzle.Key(forkFEN, "Ka2"),
		FENBefore:     forkFEN,
		PlayedSAN:     "Ka2",
		BestSAN:       "Nd6+",
		BestUCI:       "c4d6",
		Type:          puzzle.BlunderPuzzle,
		Difficulty:    puzzle.Medium,
		BestSecondGap: &gap,
		Tags:          tactics.Of(tactics.Fork, tactics.Check, tactics.KnightTag),
		Solution:      []string{"c4d6", "e8f8", "d6b7"},
	}
	b := &puzzle.Candidate{Key: "0000000000000001", FENBefore: forkFEN, Type: puzzle.MistakePuzzle, Difficulty: puzzle.Easy}

	testutil.AssertNoError(t, s.SavePuzzle(a))
	testutil.AssertNoError(t, s.SavePuzzle(b))
	testutil.AssertNoError(t, s.SavePuzzle(b))

	got, err := s.LoadPuzzle(a.Key)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got, a)

	if missing, err := s.LoadPuzzle("nope"); missing != nil || err != nil {
		t.Errorf("unknown key: %v, %v", missing, err)
	}

	n, err := s.PuzzleCount()
	testutil.AssertNoError(t, err)
	if n != 2 {
		t.Errorf("PuzzleCount = %d, want 2", n)
	}

	var keys []string
	testutil.AssertNoError(t, s.Puzzles(func(c *puzzle.Candidate) bool {
		keys = append(keys, c.Key)
		return true
	}))
	testutil.AssertEqual(t, keys, []string{b.Key, a.Key})

	// Solutions and puzzles do not see each other.
	testutil.AssertNoError(t, s.Put("k", forkLine(t)))
	if n, _ := s.PuzzleCount(); n != 2 {
		t.Errorf("solution counted as a puzzle")
	}
}

func TestDataPaths(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_DATA_HOME is only consulted on linux")
	}
	base := t.TempDir()
	t.Setenv("XDG_DATA_HOME", base)

	dir, err := GetDatabaseDir()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, dir, filepath.Join(base, appName, "solutions"))
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("database directory was not created: %v", err)
	}
}
