// Package pgnio reads PGN files into games ready for analysis.
package pgnio

import (
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/notnil/chess"

	"github.com/hailam/chesstrainer/internal/analysis"
	"github.com/hailam/chesstrainer/internal/errors"
)

// Game is one game from a PGN stream.
type Game struct {
	Index int // 0-based position in the stream
	analysis.Game
}

// ID names the game for puzzle sources: the Site tag when present,
// otherwise the players, date and round.
func (g Game) ID() string {
	if site := g.Tags["Site"]; site != "" && site != "?" {
		return site
	}
	return fmt.Sprintf("%s-%s-%s-%s#%d", g.Tags["White"], g.Tags["Black"], g.Tags["Date"], g.Tags["Round"], g.Index)
}

// Reader scans games one at a time.
type Reader struct {
	scanner *chess.Scanner
	index   int
	done    bool
}

// NewReader reads PGN text from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{scanner: chess.NewScanner(r)}
}

// Next returns the next game. It returns io.EOF after the last one. Blank
// stretches that hold neither tags nor moves are skipped. A game that cannot
// be converted is returned with an error and reading can go on; a broken
// stream ends reading.
func (r *Reader) Next() (Game, error) {
	for !r.done {
		if !r.scanner.Scan() {
			r.done = true
			if err := r.scanner.Err(); err != nil && err != io.EOF {
				return Game{}, errors.Wrapf(err, "pgn game %d", r.index+1)
			}
			break
		}
		cg := r.scanner.Next()
		if cg == nil || blank(cg) {
			continue
		}
		g, err := convert(cg)
		g.Index = r.index
		r.index++
		return g, err
	}
	return Game{}, io.EOF
}

func blank(cg *chess.Game) bool {
	return len(cg.TagPairs()) == 0 && len(cg.Moves()) == 0
}

// ReadAll reads every game from r.
func ReadAll(r io.Reader) ([]Game, error) {
	pr := NewReader(r)
	var games []Game
	for {
		g, err := pr.Next()
		if err == io.EOF {
			return games, nil
		}
		if err != nil {
			return games, err
		}
		games = append(games, g)
	}
}

func convert(cg *chess.Game) (Game, error) {
	var g Game
	g.Tags = make(map[string]string, len(cg.TagPairs()))
	for _, tp := range cg.TagPairs() {
		g.Tags[tp.Key] = tp.Value
	}
	if fen := g.Tags["FEN"]; fen != "" {
		g.StartFEN = fen
	}
	g.WhiteElo = elo(g.Tags["WhiteElo"])
	g.BlackElo = elo(g.Tags["BlackElo"])

	positions := cg.Positions()
	moves := cg.Moves()
	if len(positions) < len(moves) {
		return g, fmt.Errorf("pgn: %d moves but %d positions", len(moves), len(positions))
	}
	g.Moves = make([]string, len(moves))
	for i, m := range moves {
		g.Moves[i] = chess.UCINotation{}.Encode(positions[i], m)
	}
	g.Clocks = clocks(cg.Comments(), len(moves))
	return g, nil
}

func elo(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

var clockRe = regexp.MustCompile(`\[%clk\s+(\d+):(\d{1,2}):(\d{1,2}(?:\.\d+)?)\]`)

// clocks extracts [%clk h:mm:ss] annotations per move. Moves without one get
// zero; if no move has one the result is nil.
func clocks(comments [][]string, n int) []time.Duration {
	out := make([]time.Duration, n)
	found := false
	for i := 0; i < n && i < len(comments); i++ {
		if d, ok := ParseClock(strings.Join(comments[i], " ")); ok {
			out[i] = d
			found = true
		}
	}
	if !found {
		return nil
	}
	return out
}

// ParseClock finds a [%clk h:mm:ss] annotation in a comment.
func ParseClock(comment string) (time.Duration, bool) {
	m := clockRe.FindStringSubmatch(comment)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	sec, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute + time.Duration(math.Round(sec*1000))*time.Millisecond, true
}
