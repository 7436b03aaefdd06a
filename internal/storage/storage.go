package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"

	"github.com/hailam/chesstrainer/internal/puzzle"
	"github.com/hailam/chesstrainer/internal/solver"
)

// Key prefixes
const (
	prefixSolution = "sol/"
	prefixPuzzle   = "puz/"
)

// storedLine is the on-disk form of a solution line.
type storedLine struct {
	FEN   string   `json:"fen"`
	Moves []string `json:"moves"`
}

// Storage wraps BadgerDB for solution lines and puzzles. Values are JSON
// compressed with zstd.
type Storage struct {
	db      *badger.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Open opens the database in dir. An empty dir opens an in-memory database.
func Open(dir string) (*Storage, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", dir, err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		db.Close()
		return nil, err
	}
	return &Storage{db: db, encoder: encoder, decoder: decoder}, nil
}

// OpenDefault opens the database in the platform data directory.
func OpenDefault() (*Storage, error) {
	dir, err := GetDatabaseDir()
	if err != nil {
		return nil, err
	}
	return Open(dir)
}

// Close closes the database
func (s *Storage) Close() error {
	s.decoder.Close()
	s.encoder.Close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Storage) put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	packed := s.encoder.EncodeAll(data, nil)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), packed)
	})
}

// get decodes key into v and reports whether it was present.
func (s *Storage) get(key string, v any) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return s.decode(val, v)
		})
	})
	return found, err
}

func (s *Storage) decode(val []byte, v any) error {
	data, err := s.decoder.DecodeAll(val, nil)
	if err != nil {
		return fmt.Errorf("decompress: %w", err)
	}
	return json.Unmarshal(data, v)
}

// Put stores a solution line. It implements solcache.Store.
func (s *Storage) Put(key string, line solver.Line) error {
	return s.put(prefixSolution+key, storedLine{FEN: line.FEN, Moves: line.UCI()})
}

// Get loads a solution line. Stored moves are replayed and checked, so a
// line that no longer parses is reported as an error rather than returned.
func (s *Storage) Get(key string) (solver.Line, bool, error) {
	var sl storedLine
	found, err := s.get(prefixSolution+key, &sl)
	if err != nil || !found {
		return solver.Line{}, false, err
	}
	line, err := solver.ParseLine(sl.FEN, sl.Moves)
	if err != nil {
		return solver.Line{}, false, fmt.Errorf("stored line %s: %w", key, err)
	}
	return line, true, nil
}

// SavePuzzle stores a puzzle under its key, replacing any earlier copy.
func (s *Storage) SavePuzzle(c *puzzle.Candidate) error {
	return s.put(prefixPuzzle+c.Key, c)
}

// LoadPuzzle loads a puzzle by key. It returns nil when the key is unknown.
func (s *Storage) LoadPuzzle(key string) (*puzzle.Candidate, error) {
	c := new(puzzle.Candidate)
	found, err := s.get(prefixPuzzle+key, c)
	if err != nil || !found {
		return nil, err
	}
	return c, nil
}

// Puzzles calls fn for every stored puzzle in key order until fn returns
// false.
func (s *Storage) Puzzles(fn func(*puzzle.Candidate) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixPuzzle)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			c := new(puzzle.Candidate)
			if err := it.Item().Value(func(val []byte) error {
				return s.decode(val, c)
			}); err != nil {
				return fmt.Errorf("puzzle %s: %w", it.Item().Key(), err)
			}
			if !fn(c) {
				return nil
			}
		}
		return nil
	})
}

// PuzzleCount returns the number of stored puzzles.
func (s *Storage) PuzzleCount() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixPuzzle)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
