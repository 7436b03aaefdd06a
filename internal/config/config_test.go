package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hailam/chesstrainer/internal/analysis"
	cterrors "github.com/hailam/chesstrainer/internal/errors"
	"github.com/hailam/chesstrainer/internal/testutil"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	testutil.AssertNoError(t, cfg.Validate())
	testutil.AssertEqual(t, cfg.Classifier(), analysis.DefaultClassifier)
	testutil.AssertEqual(t, cfg.AccuracyModel(), analysis.DefaultAccuracyModel)
	if cfg.Cache.Workers != 1 {
		t.Errorf("default workers = %d, want 1", cfg.Cache.Workers)
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
engine:
  path: /usr/local/bin/stockfish
  depth: 22
  idle_timeout: 30s
analysis:
  bands:
    high: {excellent: 1, good: 4, inaccuracy: 8, mistake: 14}
  great_move:
    min_legal_moves: 10
  strict_sacrifice: true
puzzle:
  min_gap: 250
cache:
  workers: 2
  db: /tmp/solutions
log:
  level: debug
`))
	testutil.AssertNoError(t, err)

	if cfg.Engine.Path != "/usr/local/bin/stockfish" || cfg.Engine.Depth != 22 {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Engine.IdleTimeout != 30*time.Second {
		t.Errorf("idle timeout = %v, want 30s", cfg.Engine.IdleTimeout)
	}
	// Keys not in the file keep their defaults.
	if cfg.Engine.HashMB != 64 || cfg.Puzzle.MaxEval != 600 {
		t.Errorf("defaults lost: hash %d, max eval %d", cfg.Engine.HashMB, cfg.Puzzle.MaxEval)
	}
	testutil.AssertEqual(t, cfg.Analysis.Bands.High, analysis.Band{Excellent: 1, Good: 4, Inaccuracy: 8, Mistake: 14})
	testutil.AssertEqual(t, cfg.Analysis.Bands.Low, analysis.DefaultBands.Low)
	if cfg.Analysis.Great.MinLegalMoves != 10 || cfg.Analysis.Great.MinCaptures != analysis.DefaultGreatMoveRule.MinCaptures {
		t.Errorf("great move rule = %+v", cfg.Analysis.Great)
	}
	if c := cfg.Classifier(); !c.StrictSacrifice || Default().Classifier().StrictSacrifice {
		t.Errorf("strict sacrifice not carried into the classifier")
	}
	if f := cfg.Filter(zerolog.Nop()); f.MinGap != 250 || f.MaxEval != 600 {
		t.Errorf("filter = %+v", f)
	}
	if cfg.Level() != zerolog.DebugLevel {
		t.Errorf("level = %v", cfg.Level())
	}
	if u := cfg.UCI(); u.Path != cfg.Engine.Path || u.IdleTimeout != 30*time.Second {
		t.Errorf("uci config = %+v", u)
	}
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, cfg, Default())
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "engine:\n  paht: sf\n"},
		{"bad yaml", "engine: [\n"},
		{"no engine", "engine:\n  path: \"\"\n"},
		{"zero workers", "cache:\n  workers: 0\n"},
		{"bands out of order", "analysis:\n  bands:\n    mid: {excellent: 5, good: 3, inaccuracy: 12, mistake: 20}\n"},
		{"win prob above one", "analysis:\n  great_move:\n    min_win_prob: 1.5\n"},
		{"negative gap", "puzzle:\n  min_gap: -1\n"},
		{"zero plies", "solver:\n  max_plies: 0\n"},
		{"bad level", "log:\n  level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			testutil.AssertErrorIs(t, err, cterrors.ErrInvalidConfig)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trainer.yaml")
	if err := os.WriteFile(path, []byte("solver:\n  max_plies: 8\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	testutil.AssertNoError(t, err)
	if cfg.Solver.MaxPlies != 8 {
		t.Errorf("max plies = %d, want 8", cfg.Solver.MaxPlies)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file loaded")
	}
}
