package persistence

import (
	"context"
	"errors"
	"log"
	"os"

	"clipvox/internal/clipmap"
	"clipvox/internal/profiling"
)

// Store pairs the edit journal with the periodic snapshot. Either path may
// be empty, which disables that half.
type Store struct {
	journal      *Journal
	snapshotPath string
	logger       *log.Logger
}

// Open opens the journal, if any, and remembers the snapshot path.
func Open(journalPath, snapshotPath string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	s := &Store{snapshotPath: snapshotPath, logger: logger}
	if journalPath != "" {
		j, err := OpenJournal(journalPath, logger)
		if err != nil {
			return nil, err
		}
		s.journal = j
	}
	return s, nil
}

// Sink returns the EditSink to hand to the controller, or nil.
func (s *Store) Sink() clipmap.EditSink {
	if s.journal == nil {
		return nil
	}
	return s.journal
}

// Restore replays the snapshot and then the journal into c. It returns the
// number of edits replayed.
func (s *Store) Restore(ctx context.Context, c *clipmap.Controller) (int, error) {
	defer profiling.Track("persistence.Restore")()
	var edits []clipmap.Edit
	if s.snapshotPath != "" {
		snap, err := ReadSnapshot(s.snapshotPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return 0, err
		default:
			edits = append(edits, snap.ClipmapEdits()...)
		}
	}
	if s.journal != nil {
		journaled, err := s.journal.Load(ctx)
		if err != nil {
			return 0, err
		}
		edits = append(edits, journaled...)
	}
	if len(edits) > 0 {
		c.RestoreEdits(edits)
		s.logger.Printf("restored %d edits", len(edits))
	}
	return len(edits), nil
}

// Checkpoint writes the controller's overlay to the snapshot and empties
// the journal. Call it from the frame goroutine.
func (s *Store) Checkpoint(c *clipmap.Controller, h Header) error {
	if s.snapshotPath == "" {
		return nil
	}
	defer profiling.Track("persistence.Checkpoint")()
	h.Frame = c.Stats().Frame
	if err := WriteSnapshot(s.snapshotPath, NewSnapshot(h, c.Edits())); err != nil {
		return err
	}
	if s.journal != nil {
		return s.journal.Truncate()
	}
	return nil
}

// Close closes the journal.
func (s *Store) Close() error {
	if s.journal == nil {
		return nil
	}
	return s.journal.Close()
}
