// Package analysis turns engine scores for a game into per-move judgments.
//
// A game is analysed in a single forward pass. Each played move gets a
// MoveEvaluation holding its centipawn loss, win probabilities, accuracy,
// phase, quality label and, for errors, a blunder subtype. Evaluations are
// built once and never changed.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hailam/chesstrainer/internal/blunder"
	"github.com/hailam/chesstrainer/internal/board"
	"github.com/hailam/chesstrainer/internal/errors"
	"github.com/hailam/chesstrainer/internal/oracle"
	"github.com/hailam/chesstrainer/internal/phase"
)

// DefaultMaxCPLoss caps the centipawn loss of a single move.
const DefaultMaxCPLoss = 1000

// analysisMultiPV is the number of lines requested per position. The second
// line gives the best-versus-second-best gap.
const analysisMultiPV = 2

// Game is a move list to analyse. Moves are SAN, or UCI as a fallback.
// Clocks, when present, hold the mover's remaining time after each ply.
type Game struct {
	StartFEN string
	Moves    []string
	Clocks   []time.Duration
	WhiteElo int
	BlackElo int
	Tags     map[string]string
}

// Rating returns the Elo of the player of color c, or 0 when unknown.
func (g Game) Rating(c board.Color) int {
	if c == board.White {
		return g.WhiteElo
	}
	return g.BlackElo
}

// MoveEvaluation is the judgment on one played move. Evaluations and win
// probabilities are from White's point of view. CPLoss and BestSecondGap
// are the mover's.
type MoveEvaluation struct {
	Ply           int             `json:"ply"`
	MoveNumber    int             `json:"move_number"`
	Color         board.Color     `json:"color"`
	SAN           string          `json:"san"`
	UCI           string          `json:"uci"`
	FENBefore     string          `json:"fen_before"`
	BestSAN       string          `json:"best_san,omitempty"`
	BestUCI       string          `json:"best_uci,omitempty"`
	EvalBefore    int             `json:"eval_before"`
	EvalAfter     int             `json:"eval_after"`
	CPLoss        int             `json:"cp_loss"`
	BestSecondGap *int            `json:"best_second_gap,omitempty"`
	OnlyLegal     bool            `json:"only_legal,omitempty"`
	Phase         phase.Phase     `json:"phase"`
	Quality       MoveQuality     `json:"quality"`
	WinProbBefore float64         `json:"win_prob_before"`
	WinProbAfter  float64         `json:"win_prob_after"`
	Accuracy      float64         `json:"accuracy"`
	Blunder       blunder.Subtype `json:"blunder_subtype,omitempty"`
	Clock         time.Duration   `json:"clock,omitempty"`
	Rating        int             `json:"rating,omitempty"`
}

// Report summarises a game analysis. Skipped counts moves that could not be
// judged, for example because the engine was unavailable, and moves after
// an unplayable one. Failed counts unplayable moves. Errors holds one
// ItemError per skipped or failed move that had a cause.
type Report struct {
	Analyzed      int                 `json:"analyzed"`
	Skipped       int                 `json:"skipped"`
	Failed        int                 `json:"failed"`
	WhiteAccuracy float64             `json:"white_accuracy"`
	BlackAccuracy float64             `json:"black_accuracy"`
	Counts        map[MoveQuality]int `json:"counts"`
	Errors        []error             `json:"-"`
}

// Analyzer runs the forward pass over games.
type Analyzer struct {
	eval       oracle.Evaluator
	classifier Classifier
	accuracy   AccuracyModel
	maxCPLoss  int
	mateScore  int
	log        zerolog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Analyzer) { a.log = l }
}

// WithClassifier replaces the move classifier.
func WithClassifier(c Classifier) Option {
	return func(a *Analyzer) { a.classifier = c }
}

// WithAccuracyModel replaces the accuracy model.
func WithAccuracyModel(m AccuracyModel) Option {
	return func(a *Analyzer) { a.accuracy = m }
}

// WithMaxCPLoss caps per-move centipawn loss. Non-positive values are ignored.
func WithMaxCPLoss(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxCPLoss = n
		}
	}
}

// NewAnalyzer creates an analyzer that scores positions with ev.
func NewAnalyzer(ev oracle.Evaluator, opts ...Option) *Analyzer {
	a := &Analyzer{
		eval:       ev,
		classifier: DefaultClassifier,
		accuracy:   DefaultAccuracyModel,
		maxCPLoss:  DefaultMaxCPLoss,
		mateScore:  oracle.DefaultMateScore,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// scored is a position with its engine lines, or the reason it has none.
type scored struct {
	pos   *board.Position
	lines []oracle.Line
	err   error
}

// score returns the side-to-move score of the best line.
func (s scored) score() oracle.Score {
	return s.lines[0].Score
}

// AnalyzeGame evaluates every move of g at the given engine depth. Moves the
// engine cannot score are skipped and counted. An unplayable move ends the
// game there. Only an invalid start position or a cancelled context returns
// an error; the evaluations gathered so far are returned with it.
func (a *Analyzer) AnalyzeGame(ctx context.Context, g Game, depth int) ([]MoveEvaluation, Report, error) {
	report := Report{Counts: make(map[MoveQuality]int)}

	fen := g.StartFEN
	if fen == "" {
		fen = board.StartFEN
	}
	pos, err := board.ParseFEN(fen)
	if err != nil {
		return nil, report, err
	}

	var (
		evals    = make([]MoveEvaluation, 0, len(g.Moves))
		tracker  phase.Tracker
		accuracy [2][]float64
	)
	prev := a.analyse(ctx, pos, depth)

	for i, text := range g.Moves {
		ply := i + 1
		if err := ctx.Err(); err != nil {
			return evals, a.finish(report, accuracy), err
		}

		before := prev.pos
		m, err := parseMove(before, text)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, errors.AtPly(err, ply, text))
			report.Skipped += len(g.Moves) - ply
			a.log.Warn().Int("ply", ply).Str("move", text).Err(err).Msg("stopping game at unplayable move")
			break
		}

		moveNumber := before.FullMoveNumber
		ph := phase.Classify(before, moveNumber, tracker.Castled())
		tracker.Observe(before, m)

		cur := prev
		prev = a.analyse(ctx, before.MustPush(m), depth)

		if err := firstErr(cur.err, prev.err); err != nil {
			if ctx.Err() != nil {
				return evals, a.finish(report, accuracy), ctx.Err()
			}
			report.Skipped++
			report.Errors = append(report.Errors, errors.AtPly(err, ply, text))
			a.log.Warn().Int("ply", ply).Str("move", text).Err(err).Msg("skipping move without engine score")
			continue
		}

		ev := a.evaluate(cur, prev, m, ply, moveNumber, ph, g.Rating(before.SideToMove))
		if i < len(g.Clocks) {
			ev.Clock = g.Clocks[i]
		}
		evals = append(evals, ev)

		report.Analyzed++
		report.Counts[ev.Quality]++
		accuracy[ev.Color] = append(accuracy[ev.Color], ev.Accuracy)
	}
	return evals, a.finish(report, accuracy), nil
}

func (a *Analyzer) finish(r Report, accuracy [2][]float64) Report {
	r.WhiteAccuracy = GameAccuracy(accuracy[board.White])
	r.BlackAccuracy = GameAccuracy(accuracy[board.Black])
	return r
}

// analyse scores pos. Finished games are scored without the engine.
func (a *Analyzer) analyse(ctx context.Context, pos *board.Position, depth int) scored {
	switch {
	case pos.IsCheckmate():
		return scored{pos: pos, lines: []oracle.Line{{Score: oracle.MateIn(0)}}}
	case pos.IsGameOver():
		return scored{pos: pos, lines: []oracle.Line{{Score: oracle.CP(0)}}}
	}

	lines, err := a.eval.Analyse(ctx, pos, depth, analysisMultiPV)
	if err == nil && len(lines) == 0 {
		err = fmt.Errorf("no lines for %s: %w", pos.ToFEN(), errors.ErrOracleUnavailable)
	}
	return scored{pos: pos, lines: lines, err: err}
}

// evaluate builds the judgment on m, played from cur and leading to next.
func (a *Analyzer) evaluate(cur, next scored, m board.Move, ply, moveNumber int, ph phase.Phase, rating int) MoveEvaluation {
	before := cur.pos
	mover := before.SideToMove
	log := a.log.With().Int("ply", ply).Str("fen", before.ToFEN()).Logger()

	best := cur.lines[0].Best()
	if best != board.NoMove && !before.IsLegalMove(best) {
		log.Debug().Str("best", best.String()).Msg("ignoring illegal engine move")
		best = board.NoMove
	}

	bestScore := cur.score()
	afterScore := next.score().Negate()

	cpLoss := bestScore.Centipawns(a.mateScore) - afterScore.Centipawns(a.mateScore)
	if m == best {
		cpLoss = 0
	}
	cpLoss = min(max(cpLoss, 0), a.maxCPLoss)

	wpBefore := ScoreWinProbability(bestScore.White(mover))
	wpAfter := ScoreWinProbability(afterScore.White(mover))

	ev := MoveEvaluation{
		Ply:           ply,
		MoveNumber:    moveNumber,
		Color:         mover,
		SAN:           before.SAN(m),
		UCI:           m.String(),
		FENBefore:     before.ToFEN(),
		EvalBefore:    bestScore.White(mover).Centipawns(a.mateScore),
		EvalAfter:     afterScore.White(mover).Centipawns(a.mateScore),
		CPLoss:        cpLoss,
		BestSecondGap: bestSecondGap(cur.lines, a.mateScore),
		OnlyLegal:     before.LegalMoveCount() == 1,
		Phase:         ph,
		WinProbBefore: wpBefore,
		WinProbAfter:  wpAfter,
		Rating:        rating,
	}
	if best != board.NoMove {
		ev.BestSAN = before.SAN(best)
		ev.BestUCI = best.String()
	}

	ev.Quality = a.classifier.Classify(MoveInput{
		CPLoss:        cpLoss,
		WinProbBefore: wpBefore,
		WinProbAfter:  wpAfter,
		Color:         mover,
		Before:        before,
		Played:        m,
		Best:          best,
		OnlyLegal:     ev.OnlyLegal,
		MateBefore:    mateDistance(bestScore),
		MateAfter:     mateDistance(afterScore),
		Rating:        rating,
	})
	ev.Accuracy = a.accuracy.MoveAccuracy(wpBefore, wpAfter, mover)

	if ev.Quality.IsError() {
		sub, err := blunder.Diagnose(before, m, best, ev.Phase)
		if err != nil {
			log.Debug().Err(err).Msg("blunder classification without best move")
		}
		ev.Blunder = sub
	}
	return ev
}

// bestSecondGap returns how much better the best line is than the second,
// or nil when only one line is known.
func bestSecondGap(lines []oracle.Line, mateScore int) *int {
	if len(lines) < 2 || lines[1].Best() == board.NoMove {
		return nil
	}
	gap := max(0, lines[0].Score.Centipawns(mateScore)-lines[1].Score.Centipawns(mateScore))
	return &gap
}

// mateDistance returns the mover's forced mate distance, or 0.
func mateDistance(s oracle.Score) int {
	if s.IsMate && s.Mate > 0 {
		return s.Mate
	}
	return 0
}

// parseMove reads SAN first and UCI as a fallback.
func parseMove(pos *board.Position, text string) (board.Move, error) {
	m, err := pos.ParseSAN(text)
	if err == nil {
		return m, nil
	}
	if um, uerr := pos.ParseUCI(text); uerr == nil {
		return um, nil
	}
	return board.NoMove, err
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
