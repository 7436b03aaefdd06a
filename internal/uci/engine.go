// Package uci drives an external UCI chess engine as the evaluation oracle.
//
// Engine owns one engine process and speaks the protocol to it. Supervisor
// wraps an Engine with lazy start, idle retirement and restart, and is what
// the rest of the program uses as an oracle.Evaluator.
package uci

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hailam/chesstrainer/internal/board"
	"github.com/hailam/chesstrainer/internal/oracle"
)

// Engine is a running UCI engine process. Calls are serialised internally.
type Engine struct {
	cfg Config

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	lines    chan string
	readErr  chan error
	waitDone chan struct{}
	stopCh   chan struct{}

	waitErrMu sync.RWMutex
	waitErr   error

	mu        sync.Mutex
	closeOnce sync.Once
	alive     atomic.Bool
	multiPV   int
}

// Start launches the engine binary and completes the uci/isready handshake.
func Start(ctx context.Context, cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()

	cmd := exec.Command(cfg.Path, cfg.Args...)
	cmd.Env = cfg.Env
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &OpError{Op: "stdin pipe", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &OpError{Op: "stdout pipe", Err: err}
	}
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, &OpError{Op: "start process", Err: err}
	}

	e := &Engine{
		cfg:      cfg,
		cmd:      cmd,
		stdin:    stdin,
		stdout:   stdout,
		lines:    make(chan string, 1024),
		readErr:  make(chan error, 1),
		waitDone: make(chan struct{}),
		stopCh:   make(chan struct{}),
	}
	e.alive.Store(true)

	go e.readLoop()
	go func() {
		err := cmd.Wait()
		e.alive.Store(false)
		if err != nil {
			e.setWaitErr(&OpError{Op: "wait process", Err: err})
		}
		close(e.waitDone)
	}()

	startCtx, cancel := context.WithTimeout(ctx, cfg.StartTimeout)
	defer cancel()
	if err := e.handshake(startCtx); err != nil {
		_ = e.Close(context.Background())
		return nil, err
	}
	return e, nil
}

func (e *Engine) handshake(ctx context.Context) error {
	if err := e.send("uci"); err != nil {
		return err
	}
	if err := e.waitFor(ctx, func(line string) bool { return line == "uciok" }); err != nil {
		return &OpError{Op: "wait uciok", Err: err}
	}
	if e.cfg.Threads > 0 {
		if err := e.send(fmt.Sprintf("setoption name Threads value %d", e.cfg.Threads)); err != nil {
			return err
		}
	}
	if e.cfg.HashMB > 0 {
		if err := e.send(fmt.Sprintf("setoption name Hash value %d", e.cfg.HashMB)); err != nil {
			return err
		}
	}
	if err := e.send("setoption name MultiPV value 1"); err != nil {
		return err
	}
	e.multiPV = 1
	return e.sync(ctx)
}

// sync sends isready and waits for readyok.
func (e *Engine) sync(ctx context.Context) error {
	if err := e.send("isready"); err != nil {
		return err
	}
	if err := e.waitFor(ctx, func(line string) bool { return line == "readyok" }); err != nil {
		return &OpError{Op: "wait readyok", Err: err}
	}
	return nil
}

// Analyse searches pos to a fixed depth and returns up to multiPV lines,
// best first. PV moves are converted and legality-checked; a PV is cut at
// the first move the engine reports that is not legal in sequence.
func (e *Engine) Analyse(ctx context.Context, pos *board.Position, depth, multiPV int) ([]oracle.Line, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.alive.Load() {
		return nil, ErrEngineStopped
	}
	if depth <= 0 {
		return nil, fmt.Errorf("depth %d must be positive", depth)
	}
	if multiPV <= 0 {
		multiPV = 1
	}
	if multiPV > e.cfg.MaxMultiPV {
		return nil, fmt.Errorf("multipv %d exceeds configured max %d", multiPV, e.cfg.MaxMultiPV)
	}

	if multiPV != e.multiPV {
		if err := e.send("setoption name MultiPV value " + strconv.Itoa(multiPV)); err != nil {
			return nil, err
		}
		e.multiPV = multiPV
	}
	if err := e.sync(ctx); err != nil {
		return nil, err
	}
	if err := e.send("position fen " + pos.ToFEN()); err != nil {
		return nil, err
	}
	if err := e.send("go depth " + strconv.Itoa(depth)); err != nil {
		return nil, err
	}

	byPV := make(map[int]infoUpdate, multiPV)
	for {
		select {
		case <-ctx.Done():
			e.abandonSearch()
			return nil, ctx.Err()
		case err := <-e.readErr:
			e.alive.Store(false)
			if err == nil {
				return nil, ErrEngineStopped
			}
			return nil, err
		case <-e.waitDone:
			e.alive.Store(false)
			if err := e.getWaitErr(); err != nil {
				return nil, err
			}
			return nil, ErrEngineStopped
		case line, ok := <-e.lines:
			if !ok {
				e.alive.Store(false)
				return nil, ErrEngineStopped
			}
			if update, matched := parseInfoLine(line); matched {
				if !update.hasScore || update.bound {
					continue
				}
				id := update.multiPV
				if id <= 0 {
					id = 1
				}
				if id > multiPV {
					continue
				}
				prev := byPV[id]
				if len(update.pv) == 0 {
					update.pv = prev.pv
				}
				byPV[id] = update
				continue
			}
			if strings.HasPrefix(line, "bestmove") {
				best, ok := parseBestMoveLine(line)
				if !ok {
					return nil, &OpError{Op: "parse bestmove", Err: fmt.Errorf("invalid line: %s", line)}
				}
				return buildLines(pos, byPV, best), nil
			}
		}
	}
}

// abandonSearch stops a search whose caller went away and drains the
// bestmove so the next call starts clean. A silent engine is marked dead.
func (e *Engine) abandonSearch() {
	if err := e.send("stop"); err != nil {
		e.alive.Store(false)
		return
	}
	drainCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := e.waitFor(drainCtx, func(line string) bool {
		return strings.HasPrefix(line, "bestmove")
	}); err != nil {
		e.alive.Store(false)
	}
}

func buildLines(pos *board.Position, byPV map[int]infoUpdate, best string) []oracle.Line {
	ids := make([]int, 0, len(byPV))
	for id := range byPV {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	lines := make([]oracle.Line, 0, len(ids))
	for _, id := range ids {
		update := byPV[id]
		pv := update.pv
		if id == 1 && len(pv) == 0 && best != "" {
			pv = []string{best}
		}
		lines = append(lines, oracle.Line{
			Score:   update.score,
			PV:      convertPV(pos, pv),
			Depth:   update.depth,
			MultiPV: id,
		})
	}
	return lines
}

// convertPV turns UCI move text into moves, stopping at the first entry
// that is not legal after the preceding ones.
func convertPV(pos *board.Position, pv []string) []board.Move {
	moves := make([]board.Move, 0, len(pv))
	cur := pos
	for _, text := range pv {
		m, err := cur.ParseUCI(text)
		if err != nil {
			break
		}
		moves = append(moves, m)
		cur = cur.MustPush(m)
	}
	return moves
}

// Alive reports whether the process is still running.
func (e *Engine) Alive() bool {
	return e.alive.Load()
}

// Close asks the engine to quit and kills it if ctx expires first.
func (e *Engine) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var closeErr error
	e.closeOnce.Do(func() {
		_ = e.send("quit")
		close(e.stopCh)

		select {
		case <-ctx.Done():
			if e.cmd.Process != nil {
				if err := e.cmd.Process.Kill(); err != nil {
					closeErr = &OpError{Op: "kill process", Err: err}
				}
			}
			<-e.waitDone
		case <-e.waitDone:
		}

		e.alive.Store(false)
		_ = e.stdin.Close()
	})
	return closeErr
}

func (e *Engine) send(command string) error {
	if !e.alive.Load() {
		return ErrEngineStopped
	}
	if _, err := io.WriteString(e.stdin, command+"\n"); err != nil {
		e.alive.Store(false)
		return &OpError{Op: "write command", Err: err}
	}
	return nil
}

func (e *Engine) waitFor(ctx context.Context, match func(string) bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-e.readErr:
			if err == nil {
				return ErrEngineStopped
			}
			return err
		case <-e.waitDone:
			if err := e.getWaitErr(); err != nil {
				return err
			}
			return ErrEngineStopped
		case line, ok := <-e.lines:
			if !ok {
				return ErrEngineStopped
			}
			if match(line) {
				return nil
			}
		}
	}
}

func (e *Engine) readLoop() {
	scanner := bufio.NewScanner(e.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		select {
		case <-e.stopCh:
			close(e.lines)
			return
		case e.lines <- line:
		}
	}

	var err error
	if scanErr := scanner.Err(); scanErr != nil {
		err = &OpError{Op: "read output", Err: scanErr}
	}
	select {
	case e.readErr <- err:
	default:
	}
	close(e.lines)
}

func (e *Engine) setWaitErr(err error) {
	e.waitErrMu.Lock()
	defer e.waitErrMu.Unlock()
	e.waitErr = err
}

func (e *Engine) getWaitErr() error {
	e.waitErrMu.RLock()
	defer e.waitErrMu.RUnlock()
	return e.waitErr
}
