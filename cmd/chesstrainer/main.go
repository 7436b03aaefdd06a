// Command chesstrainer analyses PGN games with a UCI engine and prints move
// judgments and solved puzzles as JSON lines.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"

	"github.com/hailam/chesstrainer/internal/config"
	"github.com/hailam/chesstrainer/internal/pgnio"
	"github.com/hailam/chesstrainer/internal/puzzle"
	"github.com/hailam/chesstrainer/internal/storage"
	"github.com/hailam/chesstrainer/internal/trainer"
	"github.com/hailam/chesstrainer/internal/uci"
)

var (
	pgnPath     = flag.String("pgn", "-", "PGN file to read, - for stdin")
	configPath  = flag.String("config", "", "YAML config file")
	enginePath  = flag.String("engine", "", "UCI engine binary (overrides config)")
	depth       = flag.Int("depth", 0, "analysis depth (overrides config)")
	dbPath      = flag.String("db", "", `solution and puzzle database directory, "default" for the user data dir`)
	puzzlesOnly = flag.Bool("puzzles", false, "print puzzles only, without move evaluations")
	workers     = flag.Int("workers", 1, "games analysed at once")
	logLevel    = flag.String("log-level", "", "log level (overrides config)")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "chesstrainer:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	games, err := readGames(*pgnPath, log)
	if err != nil {
		return err
	}
	log.Info().Int("games", len(games)).Str("pgn", *pgnPath).Msg("games loaded")

	engine := uci.NewSupervisor(cfg.UCI(), uci.WithLogger(log.With().Str("component", "uci").Logger()))
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := engine.Close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("engine did not stop cleanly")
		}
	}()

	opts := []trainer.Option{trainer.WithLogger(log)}
	store, err := openStore(cfg.Cache.DB)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		opts = append(opts, trainer.WithSolutionStore(store), trainer.WithPuzzleStore(store))
	}
	svc := trainer.New(engine, cfg, opts...)
	defer svc.Close()

	jobs := make([]trainer.Job, len(games))
	for i, g := range games {
		jobs[i] = trainer.Job{
			Source: puzzle.Source{GameID: g.ID(), White: g.Tags["White"], Black: g.Tags["Black"]},
			Game:   g.Game,
		}
	}
	results, err := svc.ProcessGames(ctx, jobs, *workers)

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	if werr := writeResults(out, results, *puzzlesOnly); werr != nil {
		return werr
	}

	st := svc.CacheStats()
	starts, retires, failures := engine.Stats()
	log.Info().
		Uint64("solutions_computed", st.Computed).
		Uint64("solution_hits", st.Hits).
		Int64("engine_starts", starts).
		Int64("engine_retires", retires).
		Int64("engine_failures", failures).
		Msg("done")
	return err
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	if *enginePath != "" {
		cfg.Engine.Path = *enginePath
	}
	if *depth > 0 {
		cfg.Engine.Depth = *depth
	}
	if *dbPath != "" {
		cfg.Cache.DB = *dbPath
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) zerolog.Logger {
	var w io.Writer = os.Stderr
	if cfg.Log.Console {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).Level(cfg.Level()).With().Timestamp().Logger()
}

func openStore(dir string) (*storage.Storage, error) {
	switch dir {
	case "":
		return nil, nil
	case "default":
		return storage.OpenDefault()
	default:
		return storage.Open(dir)
	}
}

// readGames reads every game it can. A game the PGN reader rejects is logged
// and left out.
func readGames(path string, log zerolog.Logger) ([]pgnio.Game, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	pr := pgnio.NewReader(r)
	var games []pgnio.Game
	for {
		g, err := pr.Next()
		if err == io.EOF {
			return games, nil
		}
		if err != nil {
			log.Warn().Err(err).Msg("game skipped")
			continue
		}
		games = append(games, g)
	}
}

type gameRecord struct {
	Type string `json:"type"`
	trainer.Result
	Error string `json:"error,omitempty"`
}

type puzzleRecord struct {
	Type string `json:"type"`
	*puzzle.Candidate
}

func writeResults(w io.Writer, results []trainer.Result, puzzlesOnly bool) error {
	enc := json.NewEncoder(w)
	for _, res := range results {
		if !puzzlesOnly {
			rec := gameRecord{Type: "game", Result: res}
			rec.Puzzles = nil
			if res.Err != nil {
				rec.Error = res.Err.Error()
			}
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		for _, p := range res.Puzzles {
			if err := enc.Encode(puzzleRecord{Type: "puzzle", Candidate: p}); err != nil {
				return err
			}
		}
	}
	return nil
}
