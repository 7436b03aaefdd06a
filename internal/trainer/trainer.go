// Package trainer is the entry point for analysing games and producing
// solved puzzles from them.
package trainer

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hailam/chesstrainer/internal/analysis"
	"github.com/hailam/chesstrainer/internal/board"
	"github.com/hailam/chesstrainer/internal/config"
	"github.com/hailam/chesstrainer/internal/errors"
	"github.com/hailam/chesstrainer/internal/oracle"
	"github.com/hailam/chesstrainer/internal/puzzle"
	"github.com/hailam/chesstrainer/internal/solcache"
	"github.com/hailam/chesstrainer/internal/solver"
)

// PuzzleStore keeps generated puzzles.
type PuzzleStore interface {
	SavePuzzle(c *puzzle.Candidate) error
}

// Service ties the analysis pipeline together. It is safe for concurrent use.
type Service struct {
	cfg      *config.Config
	analyzer *analysis.Analyzer
	filter   *puzzle.Filter
	cache    *solcache.Cache
	puzzles  PuzzleStore
	log      zerolog.Logger
}

// Option configures a Service.
type Option func(*options)

type options struct {
	log       zerolog.Logger
	solutions solcache.Store
	puzzles   PuzzleStore
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithSolutionStore keeps solution lines across runs.
func WithSolutionStore(s solcache.Store) Option {
	return func(o *options) { o.solutions = s }
}

// WithPuzzleStore saves every generated puzzle.
func WithPuzzleStore(s PuzzleStore) Option {
	return func(o *options) { o.puzzles = s }
}

// New builds a service evaluating with ev. A nil cfg uses config.Default.
func New(ev oracle.Evaluator, cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	search := solver.New(ev,
		solver.WithLogger(o.log.With().Str("component", "solver").Logger()),
		solver.WithDecisiveSwing(cfg.Solver.DecisiveSwing))
	cacheOpts := []solcache.Option{
		solcache.WithWorkers(cfg.Cache.Workers),
		solcache.WithBufferSize(cfg.Cache.Buffer),
		solcache.WithTimeout(cfg.Cache.Timeout),
		solcache.WithLogger(o.log.With().Str("component", "solcache").Logger()),
	}
	if o.solutions != nil {
		cacheOpts = append(cacheOpts, solcache.WithStore(o.solutions))
	}

	return &Service{
		cfg: cfg,
		analyzer: analysis.NewAnalyzer(ev,
			analysis.WithLogger(o.log.With().Str("component", "analysis").Logger()),
			analysis.WithClassifier(cfg.Classifier()),
			analysis.WithAccuracyModel(cfg.AccuracyModel()),
			analysis.WithMaxCPLoss(cfg.Analysis.MaxCPLoss)),
		filter:  cfg.Filter(o.log.With().Str("component", "puzzle").Logger()),
		cache:   solcache.New(search, cacheOpts...),
		puzzles: o.puzzles,
		log:     o.log,
	}
}

// Close waits for background solving to finish.
func (s *Service) Close() {
	s.cache.Close()
}

// AnalyzeGame judges every move of g at the given depth. A non-positive
// depth uses the configured engine depth.
func (s *Service) AnalyzeGame(ctx context.Context, g analysis.Game, depth int) ([]analysis.MoveEvaluation, analysis.Report, error) {
	if depth <= 0 {
		depth = s.cfg.Engine.Depth
	}
	return s.analyzer.AnalyzeGame(ctx, g, depth)
}

// GeneratePuzzle turns one evaluation into a puzzle, or returns nil when it
// does not make one.
func (s *Service) GeneratePuzzle(me analysis.MoveEvaluation, src puzzle.Source) (*puzzle.Candidate, error) {
	return s.filter.Generate(me, src)
}

// SolvePuzzle returns the solution line for first in fen, never longer than
// maxPlies. Calls for the same position, move and depth share one search at
// the configured ply bound; a larger maxPlies searches deeper. Non-positive
// maxPlies and depth use the configured values.
func (s *Service) SolvePuzzle(ctx context.Context, fen, first string, maxPlies, depth int) (solver.Line, error) {
	key, err := s.key(fen, first, depth)
	if err != nil {
		return solver.Line{}, err
	}
	if maxPlies <= 0 {
		maxPlies = s.cfg.Solver.MaxPlies
	}
	line, err := s.cache.Schedule(key, max(maxPlies, s.cfg.Solver.MaxPlies)).Wait(ctx)
	if err != nil {
		return solver.Line{}, err
	}
	return line.Truncate(maxPlies), nil
}

// key normalises a solve request so equal requests share a cache entry.
func (s *Service) key(fen, first string, depth int) (solcache.Key, error) {
	pos, m, err := board.ParseFENAndMove(fen, first)
	if err != nil {
		return solcache.Key{}, err
	}
	if depth <= 0 {
		depth = s.cfg.Solver.Depth
	}
	return solcache.Key{FEN: pos.ToFEN(), FirstMove: m.String(), Depth: depth}, nil
}

// Job is one game to process.
type Job struct {
	Source puzzle.Source
	Game   analysis.Game
}

// Result is everything produced for one game. Err is set only when the game
// could not be analysed at all.
type Result struct {
	Source      puzzle.Source             `json:"source"`
	Evaluations []analysis.MoveEvaluation `json:"evaluations,omitempty"`
	Report      analysis.Report           `json:"report"`
	Puzzles     []*puzzle.Candidate       `json:"puzzles,omitempty"`
	Unsolved    int                       `json:"unsolved,omitempty"`
	Err         error                     `json:"-"`
	Took        time.Duration             `json:"took"`
}

// ProcessGame analyses a game, builds its puzzles and solves them. Puzzles
// whose solution cannot be found are kept without one.
func (s *Service) ProcessGame(ctx context.Context, job Job) Result {
	start := time.Now()
	log := s.log.With().Str("game", job.Source.GameID).Logger()
	res := Result{Source: job.Source}

	evals, report, err := s.AnalyzeGame(ctx, job.Game, 0)
	res.Evaluations, res.Report = evals, report
	if err != nil {
		res.Err = err
		res.Took = time.Since(start)
		log.Error().Err(err).Msg("game not analysed")
		return res
	}

	var cands []*puzzle.Candidate
	for _, me := range evals {
		c, err := s.GeneratePuzzle(me, job.Source)
		if err != nil {
			// A best move the engine reported but that is not legal is
			// missing data, not a failure of the game.
			log.Warn().Err(err).Int("ply", me.Ply).Msg("puzzle dropped")
			continue
		}
		if c != nil {
			cands = append(cands, c)
		}
	}
	cands = puzzle.Dedupe(cands)

	// Queue every solution before waiting on any so the workers stay busy.
	handles := make([]*solcache.Handle, len(cands))
	for i, c := range cands {
		key, err := s.key(c.FENBefore, c.BestUCI, 0)
		if err != nil {
			continue
		}
		handles[i] = s.cache.Schedule(key, s.cfg.Solver.MaxPlies)
	}
	for i, c := range cands {
		solved := c
		if h := handles[i]; h != nil {
			line, err := h.Wait(ctx)
			if err == nil {
				solved, err = c.WithSolution(line.Truncate(s.cfg.Solver.MaxPlies).Moves)
			}
			if err != nil {
				log.Warn().Err(err).Str("puzzle", c.Key).Msg("puzzle left unsolved")
				solved = c
				res.Unsolved++
			}
		}
		if s.puzzles != nil {
			if err := s.puzzles.SavePuzzle(solved); err != nil {
				log.Warn().Err(err).Str("puzzle", c.Key).Msg("puzzle not saved")
			}
		}
		res.Puzzles = append(res.Puzzles, solved)
	}

	res.Took = time.Since(start)
	log.Info().
		Int("analyzed", report.Analyzed).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Int("puzzles", len(res.Puzzles)).
		Dur("took", res.Took).
		Msg("game done")
	return res
}

// ProcessGames runs ProcessGame over jobs with at most workers games in
// flight and returns results in job order. A game that fails does not stop
// the others; only ctx ending does.
func (s *Service) ProcessGames(ctx context.Context, jobs []Job, workers int) ([]Result, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]Result, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = s.ProcessGame(ctx, job)
			if err := results[i].Err; err != nil && errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

// CacheStats reports solution cache counters.
func (s *Service) CacheStats() solcache.Stats {
	return s.cache.Stats()
}
