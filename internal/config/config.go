// Package config loads chesstrainer settings from YAML.
//
// Every field has a default, so a file only needs the values it changes.
// Command-line flags are applied on top of the loaded file by the caller.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/hailam/chesstrainer/internal/analysis"
	"github.com/hailam/chesstrainer/internal/errors"
	"github.com/hailam/chesstrainer/internal/puzzle"
	"github.com/hailam/chesstrainer/internal/solver"
	"github.com/hailam/chesstrainer/internal/uci"
)

// Config is the full set of settings.
type Config struct {
	Engine   Engine   `yaml:"engine"`
	Analysis Analysis `yaml:"analysis"`
	Puzzle   Puzzle   `yaml:"puzzle"`
	Solver   Solver   `yaml:"solver"`
	Cache    Cache    `yaml:"cache"`
	Log      Log      `yaml:"log"`
}

// Engine configures the UCI evaluator process.
type Engine struct {
	Path         string        `yaml:"path"`
	Args         []string      `yaml:"args"`
	Threads      int           `yaml:"threads"`
	HashMB       int           `yaml:"hash_mb"`
	Depth        int           `yaml:"depth"`
	StartTimeout time.Duration `yaml:"start_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// Analysis configures move classification. StrictSacrifice counts only
// material-losing sacrifices as brilliant.
type Analysis struct {
	MaxCPLoss       int                    `yaml:"max_cp_loss"`
	AccuracyDecay   float64                `yaml:"accuracy_decay"`
	Bands           analysis.Bands         `yaml:"bands"`
	Great           analysis.GreatMoveRule `yaml:"great_move"`
	StrictSacrifice bool                   `yaml:"strict_sacrifice"`
}

// Puzzle configures the puzzle filter.
type Puzzle struct {
	MaxEval int `yaml:"max_eval"`
	MinGap  int `yaml:"min_gap"`
}

// Solver configures solution search.
type Solver struct {
	MaxPlies      int `yaml:"max_plies"`
	Depth         int `yaml:"depth"`
	DecisiveSwing int `yaml:"decisive_swing"`
}

// Cache configures background solving.
type Cache struct {
	Workers int           `yaml:"workers"`
	Buffer  int           `yaml:"buffer"`
	Timeout time.Duration `yaml:"timeout"`
	// DB is the solution database directory. Empty keeps solutions in
	// memory only.
	DB string `yaml:"db"`
}

// Log configures logging.
type Log struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Default returns the stock settings.
func Default() *Config {
	return &Config{
		Engine: Engine{
			Path:         "stockfish",
			Threads:      1,
			HashMB:       64,
			Depth:        18,
			StartTimeout: 10 * time.Second,
			IdleTimeout:  2 * time.Minute,
		},
		Analysis: Analysis{
			MaxCPLoss:     analysis.DefaultMaxCPLoss,
			AccuracyDecay: analysis.DefaultAccuracyDecay,
			Bands:         analysis.DefaultBands,
			Great:         analysis.DefaultGreatMoveRule,
		},
		Puzzle: Puzzle{
			MaxEval: puzzle.DefaultMaxEval,
			MinGap:  puzzle.DefaultMinGap,
		},
		Solver: Solver{
			MaxPlies:      solver.DefaultMaxPlies,
			Depth:         solver.DefaultDepth,
			DecisiveSwing: solver.DefaultDecisiveSwing,
		},
		Cache: Cache{
			Workers: 1,
			Buffer:  64,
			Timeout: time.Minute,
		},
		Log: Log{Level: "info", Console: true},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(errors.ErrInvalidConfig, err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.Engine.Path != "", "engine.path is empty")
	check(c.Engine.Threads >= 1, "engine.threads must be at least 1, got %d", c.Engine.Threads)
	check(c.Engine.HashMB >= 1, "engine.hash_mb must be at least 1, got %d", c.Engine.HashMB)
	check(c.Engine.Depth >= 1, "engine.depth must be at least 1, got %d", c.Engine.Depth)
	check(c.Engine.IdleTimeout >= 0, "engine.idle_timeout is negative")

	check(c.Analysis.MaxCPLoss > 0, "analysis.max_cp_loss must be positive, got %d", c.Analysis.MaxCPLoss)
	check(c.Analysis.AccuracyDecay > 0, "analysis.accuracy_decay must be positive, got %g", c.Analysis.AccuracyDecay)
	bands := []struct {
		name string
		b    analysis.Band
	}{{"low", c.Analysis.Bands.Low}, {"mid", c.Analysis.Bands.Mid}, {"high", c.Analysis.Bands.High}}
	for _, nb := range bands {
		b := nb.b
		check(b.Excellent > 0 && b.Excellent < b.Good && b.Good < b.Inaccuracy && b.Inaccuracy < b.Mistake,
			"analysis.bands.%s thresholds must be positive and increasing", nb.name)
	}
	g := c.Analysis.Great
	check(g.MinLegalMoves >= 0 && g.MinCaptures >= 0 && g.MinChecks >= 0, "analysis.great_move counts must not be negative")
	check(g.MinWinProb >= 0 && g.MinWinProb <= 1, "analysis.great_move.min_win_prob must be within [0,1], got %g", g.MinWinProb)

	check(c.Puzzle.MaxEval > 0, "puzzle.max_eval must be positive, got %d", c.Puzzle.MaxEval)
	check(c.Puzzle.MinGap >= 0, "puzzle.min_gap must not be negative, got %d", c.Puzzle.MinGap)

	check(c.Solver.MaxPlies >= 1, "solver.max_plies must be at least 1, got %d", c.Solver.MaxPlies)
	check(c.Solver.Depth >= 1, "solver.depth must be at least 1, got %d", c.Solver.Depth)
	check(c.Solver.DecisiveSwing >= 1, "solver.decisive_swing must be at least 1, got %d", c.Solver.DecisiveSwing)

	check(c.Cache.Workers >= 1, "cache.workers must be at least 1, got %d", c.Cache.Workers)
	check(c.Cache.Buffer >= 1, "cache.buffer must be at least 1, got %d", c.Cache.Buffer)
	check(c.Cache.Timeout >= 0, "cache.timeout is negative")

	_, err := zerolog.ParseLevel(c.Log.Level)
	check(err == nil, "log.level %q is not a level", c.Log.Level)

	if len(problems) > 0 {
		return errors.Wrapf(errors.ErrInvalidConfig, "%d problem(s): %v", len(problems), problems)
	}
	return nil
}

// UCI returns the engine process settings.
func (c *Config) UCI() uci.Config {
	return uci.Config{
		Path:         c.Engine.Path,
		Args:         c.Engine.Args,
		Threads:      c.Engine.Threads,
		HashMB:       c.Engine.HashMB,
		StartTimeout: c.Engine.StartTimeout,
		IdleTimeout:  c.Engine.IdleTimeout,
	}
}

// Classifier returns the move classifier.
func (c *Config) Classifier() analysis.Classifier {
	return analysis.Classifier{
		Bands:           c.Analysis.Bands,
		Great:           c.Analysis.Great,
		StrictSacrifice: c.Analysis.StrictSacrifice,
	}
}

// AccuracyModel returns the accuracy model.
func (c *Config) AccuracyModel() analysis.AccuracyModel {
	return analysis.AccuracyModel{Decay: c.Analysis.AccuracyDecay}
}

// Filter returns a puzzle filter logging to log.
func (c *Config) Filter(log zerolog.Logger) *puzzle.Filter {
	return &puzzle.Filter{MaxEval: c.Puzzle.MaxEval, MinGap: c.Puzzle.MinGap, Log: log}
}

// Level returns the parsed log level. Validate has already checked it.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
