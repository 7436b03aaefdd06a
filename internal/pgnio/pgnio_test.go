package pgnio

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/hailam/chesstrainer/internal/testutil"
)

const twoGames = `[Event "Casual"]
[Site "https://example.org/abc123"]
[White "Alice"]
[Black "Bob"]
[WhiteElo "1450"]
[BlackElo "?"]
[Result "1-0"]

1. e4 { [%clk 0:05:00] } 1... e5 { [%clk 0:04:58.5] } 2. Qh5 { [%clk 0:04:55] } 2... Nc6 { [%clk 0:04:50] }
3. Bc4 { [%clk 0:04:51] } 3... Nf6 { [%clk 0:04:40] } 4. Qxf7# { [%clk 0:04:49] } 1-0

[Event "Blitz"]
[Site "?"]
[White "Carol"]
[Black "Dan"]
[Date "2024.01.02"]
[Round "3"]
[Result "*"]

1. d4 d5 2. c4 *
`

func TestReadAll(t *testing.T) {
	games, err := ReadAll(strings.NewReader(twoGames))
	testutil.AssertNoError(t, err)
	if len(games) != 2 {
		t.Fatalf("read %d games, want 2", len(games))
	}

	g := games[0]
	testutil.AssertEqual(t, g.Moves, []string{"e2e4", "e7e5", "d1h5", "b8c6", "f1c4", "g8f6", "h5f7"})
	if g.WhiteElo != 1450 || g.BlackElo != 0 {
		t.Errorf("elo = %d/%d, want 1450/0", g.WhiteElo, g.BlackElo)
	}
	if g.StartFEN != "" {
		t.Errorf("start fen = %q, want the standard start", g.StartFEN)
	}
	if g.ID() != "https://example.org/abc123" {
		t.Errorf("ID = %q", g.ID())
	}
	if len(g.Clocks) != 7 || g.Clocks[0] != 5*time.Minute || g.Clocks[1] != 4*time.Minute+58500*time.Millisecond {
		t.Errorf("clocks = %v", g.Clocks)
	}

	g = games[1]
	testutil.AssertEqual(t, g.Moves, []string{"d2d4", "d7d5", "c2c4"})
	if g.Clocks != nil {
		t.Errorf("clocks = %v, want none", g.Clocks)
	}
	if g.ID() != "Carol-Dan-2024.01.02-3#1" {
		t.Errorf("ID = %q", g.ID())
	}
}

func TestReaderEOF(t *testing.T) {
	r := NewReader(strings.NewReader(""))
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("empty input: %v, want io.EOF", err)
	}
}

func TestReaderSkipsBlankInput(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"blank lines", "\n\n\n", 0},
		{"spaces", "  \n\t\n", 0},
		{"trailing blank lines", twoGames + "\n\n\n", 2},
		{"leading blank lines", "\n\n" + twoGames, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(strings.NewReader(tt.in))
			n := 0
			for {
				g, err := r.Next()
				if err == io.EOF {
					break
				}
				testutil.AssertNoError(t, err)
				if len(g.Moves) == 0 {
					t.Errorf("game %d has no moves", g.Index)
				}
				n++
			}
			if n != tt.want {
				t.Errorf("read %d games, want %d", n, tt.want)
			}
			if _, err := r.Next(); err != io.EOF {
				t.Errorf("after the last game: %v, want io.EOF", err)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"[%clk 0:03:00]", 3 * time.Minute, true},
		{"book move [%clk 1:02:03] [%eval 0.3]", time.Hour + 2*time.Minute + 3*time.Second, true},
		{"[%clk 0:00:09.7]", 9700 * time.Millisecond, true},
		{"[%eval 0.17]", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseClock(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseClock(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
