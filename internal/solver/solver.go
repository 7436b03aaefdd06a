// Package solver finds the forced continuation that answers a puzzle.
//
// Starting from the solver's first move, the searcher alternates between
// the opponent's best reply and the solver's best forcing move, asking the
// evaluator at a fixed depth each time. It stops as soon as the line is no
// longer forced: a quiet best move, a finished game, a decisive material
// swing or the ply limit.
package solver

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hailam/chesstrainer/internal/board"
	"github.com/hailam/chesstrainer/internal/errors"
	"github.com/hailam/chesstrainer/internal/oracle"
)

const (
	// DefaultMaxPlies bounds a solution to three solver moves.
	DefaultMaxPlies = 6
	// DefaultDepth is the evaluator depth used when none is given.
	DefaultDepth = 18
	// DefaultDecisiveSwing is the material gain, in points, after which
	// further moves are only cleanup.
	DefaultDecisiveSwing = 3
)

// Solver searches solution lines with one evaluator.
type Solver struct {
	ev            oracle.Evaluator
	decisiveSwing int
	log           zerolog.Logger
}

// Option configures a Solver.
type Option func(*Solver)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Solver) { s.log = l }
}

// WithDecisiveSwing sets the material swing that ends a line.
func WithDecisiveSwing(points int) Option {
	return func(s *Solver) { s.decisiveSwing = points }
}

// New returns a solver querying ev.
func New(ev oracle.Evaluator, opts ...Option) *Solver {
	s := &Solver{ev: ev, decisiveSwing: DefaultDecisiveSwing, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Solve returns the forced line starting with first in pos. The line always
// ends on a solver move and never holds more than maxPlies moves. Every move
// is checked for legality before it is played.
//
// An illegal move from the evaluator ends the line where it stands. Other
// evaluator failures are returned with no line, so a caller never sees a
// partial answer.
func (s *Solver) Solve(ctx context.Context, pos *board.Position, first board.Move, maxPlies, depth int) (Line, error) {
	if maxPlies <= 0 {
		maxPlies = DefaultMaxPlies
	}
	if depth <= 0 {
		depth = DefaultDepth
	}
	log := s.log.With().Str("fen", pos.ToFEN()).Str("first", first.String()).Logger()

	cur, err := pos.Push(first)
	if err != nil {
		return Line{}, err
	}
	line := Line{FEN: pos.ToFEN(), Moves: []board.Move{first}}
	solverSide := pos.SideToMove
	base := balance(pos, solverSide)

	for remaining := maxPlies - 1; remaining >= 2; remaining -= 2 {
		if err := ctx.Err(); err != nil {
			return Line{}, err
		}
		if cur.IsGameOver() {
			break
		}

		reply, err := s.reply(ctx, cur, depth)
		if err != nil {
			if errors.Is(err, errors.ErrIllegalMove) {
				log.Warn().Err(err).Msg("line cut at bad reply")
				break
			}
			return Line{}, err
		}
		next := cur.MustPush(reply)
		if swing := balance(next, solverSide) - base; swing >= s.decisiveSwing {
			log.Debug().Int("swing", swing).Int("plies", line.Len()).Msg("decisive")
			break
		}
		if next.IsGameOver() {
			break
		}

		follow, _, err := oracle.BestMove(ctx, s.ev, next, depth)
		if err != nil {
			if errors.Is(err, errors.ErrIllegalMove) {
				log.Warn().Err(err).Msg("line cut at bad solver move")
				break
			}
			return Line{}, err
		}
		if !IsForcing(next, follow) {
			log.Debug().Str("quiet", follow.String()).Int("plies", line.Len()).Msg("not forcing")
			break
		}

		line.Moves = append(line.Moves, reply, follow)
		cur = next.MustPush(follow)
	}
	return line, nil
}

// reply is the opponent's best answer in pos. A single legal move needs no
// evaluator query.
func (s *Solver) reply(ctx context.Context, pos *board.Position, depth int) (board.Move, error) {
	moves := pos.LegalMoves()
	if len(moves) == 1 {
		return moves[0], nil
	}
	m, _, err := oracle.BestMove(ctx, s.ev, pos, depth)
	return m, err
}

// IsForcing reports whether m checks, captures or mates. m must be legal.
func IsForcing(pos *board.Position, m board.Move) bool {
	return m.IsCapture(pos) || pos.GivesCheck(m)
}

// balance is c's material lead in points.
func balance(pos *board.Position, c board.Color) int {
	diff := 0
	for pt := board.Pawn; pt < board.King; pt++ {
		diff += (pos.Pieces[c][pt].PopCount() - pos.Pieces[c.Other()][pt].PopCount()) * pt.Points()
	}
	return diff
}

// Line is a solution: moves from FEN, solver moves at even indexes.
type Line struct {
	FEN   string
	Moves []board.Move
}

// Len returns the number of plies.
func (l Line) Len() int { return len(l.Moves) }

// MaxLen is the longest line a search bounded by maxPlies can return: the
// largest odd number not above it. Non-positive bounds use DefaultMaxPlies.
func MaxLen(maxPlies int) int {
	if maxPlies <= 0 {
		maxPlies = DefaultMaxPlies
	}
	if maxPlies%2 == 0 {
		maxPlies--
	}
	return maxPlies
}

// Truncate returns the line cut to MaxLen(maxPlies) plies. Every odd-length
// prefix of a forced line is itself the line a shorter search finds.
func (l Line) Truncate(maxPlies int) Line {
	if n := MaxLen(maxPlies); len(l.Moves) > n {
		l.Moves = l.Moves[:n:n]
	}
	return l
}

// UCI returns the moves in coordinate notation.
func (l Line) UCI() []string {
	out := make([]string, len(l.Moves))
	for i, m := range l.Moves {
		out[i] = m.String()
	}
	return out
}

// SAN replays the line and returns the moves in algebraic notation.
func (l Line) SAN() ([]string, error) {
	pos, err := board.ParseFEN(l.FEN)
	if err != nil {
		return nil, err
	}
	return pos.LineSAN(l.Moves), nil
}

// Verify replays the line and checks every move against the position it is
// played in, and that it ends on a solver move.
func (l Line) Verify() error {
	pos, err := board.ParseFEN(l.FEN)
	if err != nil {
		return err
	}
	if len(l.Moves)%2 == 0 {
		return fmt.Errorf("line of %d plies ends on the opponent: %w", len(l.Moves), errors.ErrIllegalMove)
	}
	for i, m := range l.Moves {
		if pos, err = pos.Push(m); err != nil {
			return errors.AtPly(err, i+1, m.String())
		}
	}
	return nil
}

// ParseLine rebuilds a line from its FEN and UCI moves and verifies it.
func ParseLine(fen string, uci []string) (Line, error) {
	pos, err := board.ParseFEN(fen)
	if err != nil {
		return Line{}, err
	}
	line := Line{FEN: fen, Moves: make([]board.Move, 0, len(uci))}
	for i, text := range uci {
		m, err := pos.ParseUCI(text)
		if err != nil {
			return Line{}, errors.AtPly(err, i+1, text)
		}
		line.Moves = append(line.Moves, m)
		pos = pos.MustPush(m)
	}
	if err := line.Verify(); err != nil {
		return Line{}, err
	}
	return line, nil
}
