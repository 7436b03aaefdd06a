package uci

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hailam/chesstrainer/internal/oracle"
)

// ErrEngineStopped is returned when the engine process is not running.
var ErrEngineStopped = errors.New("uci engine is not running")

// OpError records which protocol step failed.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("uci %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Config describes how to launch and talk to the engine.
type Config struct {
	Path         string
	Args         []string
	Env          []string
	Threads      int
	HashMB       int
	MaxMultiPV   int
	StartTimeout time.Duration
	// IdleTimeout retires the process after this long without calls.
	// Zero keeps it running until Close.
	IdleTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxMultiPV <= 0 {
		c.MaxMultiPV = 5
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = 10 * time.Second
	}
	return c
}

type infoUpdate struct {
	multiPV  int
	depth    int
	score    oracle.Score
	hasScore bool
	bound    bool
	pv       []string
}

// parseInfoLine parses an "info" line. Lines without a score (currmove,
// string, hashfull) come back with hasScore unset.
func parseInfoLine(line string) (infoUpdate, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "info" {
		return infoUpdate{}, false
	}

	var update infoUpdate
	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "string":
			return update, true
		case "multipv":
			if i+1 < len(fields) {
				if v, err := strconv.Atoi(fields[i+1]); err == nil {
					update.multiPV = v
				}
				i++
			}
		case "depth":
			if i+1 < len(fields) {
				if v, err := strconv.Atoi(fields[i+1]); err == nil {
					update.depth = v
				}
				i++
			}
		case "score":
			if i+2 < len(fields) {
				v, err := strconv.Atoi(fields[i+2])
				if err == nil {
					switch fields[i+1] {
					case "cp":
						update.score = oracle.CP(v)
						update.hasScore = true
					case "mate":
						update.score = oracle.MateIn(v)
						update.hasScore = true
					}
				}
				i += 2
			}
		case "lowerbound", "upperbound":
			update.bound = true
		case "pv":
			update.pv = append([]string(nil), fields[i+1:]...)
			return update, true
		}
	}
	return update, true
}

// parseBestMoveLine returns the move of a "bestmove" line. "(none)" and
// "0000" come back as an empty move with ok set.
func parseBestMoveLine(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "bestmove" {
		return "", false
	}
	switch fields[1] {
	case "(none)", "0000":
		return "", true
	}
	return fields[1], true
}
