package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"clipvox/internal/clipmap"
	"clipvox/internal/metrics"
	"clipvox/internal/voxel"
)

// Journal is an append log of accepted edits in SQLite. One writer
// goroutine owns every write; the frame thread only enqueues.
type Journal struct {
	db *sql.DB

	ch   chan journalReq
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	logger  *log.Logger
	maxWait time.Duration
}

// An open batch commits after commitEvery edits or commitMaxWait, whichever
// comes first.
const commitEvery = 4096

var commitMaxWait = 500 * time.Millisecond

type journalReq struct {
	edits    []clipmap.Edit
	truncate bool
	done     chan error
}

// OpenJournal opens or creates the journal at path.
func OpenJournal(path string, logger *log.Logger) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("persistence: empty journal path")
	}
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	j := &Journal{
		db:      db,
		ch:      make(chan journalReq, 1024),
		logger:  logger,
		maxWait: commitMaxWait,
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop()
	}()
	return j, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS edits (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			material INTEGER NOT NULL,
			recorded_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS edits_pos ON edits(x,y,z);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Record implements clipmap.EditSink. It blocks only when the writer is
// more than a queue behind; edits are never dropped.
func (j *Journal) Record(edits []clipmap.Edit) {
	if j == nil || j.closed.Load() || len(edits) == 0 {
		return
	}
	batch := make([]clipmap.Edit, len(edits))
	copy(batch, edits)
	j.ch <- journalReq{edits: batch}
}

// Flush waits until everything recorded so far is committed.
func (j *Journal) Flush() error {
	return j.call(journalReq{})
}

// Truncate drops every journaled edit, once a snapshot holds them.
func (j *Journal) Truncate() error {
	return j.call(journalReq{truncate: true})
}

func (j *Journal) call(r journalReq) error {
	if j == nil || j.closed.Load() {
		return nil
	}
	r.done = make(chan error, 1)
	j.ch <- r
	return <-r.done
}

// Load returns the journaled edits in recording order.
func (j *Journal) Load(ctx context.Context) ([]clipmap.Edit, error) {
	if err := j.Flush(); err != nil {
		return nil, err
	}
	rows, err := j.db.QueryContext(ctx, `SELECT x,y,z,material FROM edits ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []clipmap.Edit
	for rows.Next() {
		var e clipmap.Edit
		var m int64
		if err := rows.Scan(&e.Pos.X, &e.Pos.Y, &e.Pos.Z, &m); err != nil {
			return nil, err
		}
		e.Material = voxel.Material(m)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close commits pending edits and closes the database.
func (j *Journal) Close() error {
	var err error
	j.once.Do(func() {
		j.closed.Store(true)
		close(j.ch)
		j.wg.Wait()
		err = j.db.Close()
	})
	return err
}

func (j *Journal) loop() {
	ctx := context.Background()

	var (
		tx      *sql.Tx
		insert  *sql.Stmt
		pending int
		// due fires maxWait after a batch opens; nil while none is open
		timer *time.Timer
		due   <-chan time.Time
	)

	closeBatch := func() {
		tx, insert = nil, nil
		pending = 0
		if timer != nil {
			timer.Stop()
			timer, due = nil, nil
		}
	}
	begin := func() error {
		if tx != nil {
			return nil
		}
		t, err := j.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		stmt, err := t.Prepare(`INSERT INTO edits(x,y,z,material,recorded_at) VALUES(?,?,?,?,?)`)
		if err != nil {
			_ = t.Rollback()
			return err
		}
		tx, insert = t, stmt
		timer = time.NewTimer(j.maxWait)
		due = timer.C
		return nil
	}
	commit := func() error {
		if tx == nil {
			return nil
		}
		_ = insert.Close()
		err := tx.Commit()
		if err == nil {
			metrics.InstrumentJournal(pending)
		}
		closeBatch()
		return err
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = insert.Close()
		_ = tx.Rollback()
		closeBatch()
	}

	handle := func(r journalReq) {
		var err error
		switch {
		case r.truncate:
			if err = commit(); err == nil {
				_, err = j.db.ExecContext(ctx, `DELETE FROM edits`)
			}
		case len(r.edits) > 0:
			if err = begin(); err != nil {
				break
			}
			now := time.Now().UnixMilli()
			for _, e := range r.edits {
				if _, err = insert.Exec(e.Pos.X, e.Pos.Y, e.Pos.Z, int64(e.Material), now); err != nil {
					rollback()
					break
				}
				pending++
			}
			if err == nil && pending >= commitEvery {
				err = commit()
			}
		}
		if r.done != nil {
			if err == nil {
				err = commit()
			}
			r.done <- err
		} else if err != nil {
			j.logger.Printf("journal: %v", err)
		}
	}

	for {
		select {
		case r, ok := <-j.ch:
			if !ok {
				if err := commit(); err != nil {
					j.logger.Printf("journal: final commit: %v", err)
				}
				return
			}
			handle(r)
		case <-due:
			timer, due = nil, nil
			if err := commit(); err != nil {
				j.logger.Printf("journal: %v", err)
			}
		}
	}
}
