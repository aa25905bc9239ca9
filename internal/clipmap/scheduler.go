package clipmap

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"clipvox/internal/brick"
)

// fillJob asks the workers for one brick of one page slot. epoch pins the
// job to the slot contents it was issued for; a result whose epoch no longer
// matches is discarded.
type fillJob struct {
	lod     int
	page    PageCoord
	coord   BrickCoord
	slot    int
	index   int
	epoch   uint32
	initial bool
}

type fillResult struct {
	job    fillJob
	voxels brick.Voxels
	err    error
}

// completionQueue is the hand-off between workers and the frame thread.
type completionQueue struct {
	mu    sync.Mutex
	items []fillResult
}

func (q *completionQueue) push(r fillResult) {
	q.mu.Lock()
	q.items = append(q.items, r)
	q.mu.Unlock()
}

// take removes up to n results in completion order.
func (q *completionQueue) take(n int) []fillResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || len(q.items) == 0 {
		return nil
	}
	if n > len(q.items) {
		n = len(q.items)
	}
	out := make([]fillResult, n)
	copy(out, q.items[:n])
	rest := copy(q.items, q.items[n:])
	clear(q.items[rest:])
	q.items = q.items[:rest]
	return out
}

func (q *completionQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// scheduler runs brick generation on a fixed set of goroutines.
type scheduler struct {
	jobs    chan fillJob
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	gen     TerrainGenerator
	timeout time.Duration

	done [MaxLODCount]completionQueue

	inflight    atomic.Int64
	maxInflight int64
}

func newScheduler(gen TerrainGenerator, workers, maxInflight int, timeout time.Duration) *scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &scheduler{
		jobs:        make(chan fillJob, maxInflight),
		ctx:         ctx,
		cancel:      cancel,
		gen:         gen,
		timeout:     timeout,
		maxInflight: int64(maxInflight),
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// submit queues job without blocking. It returns false when the in-flight
// limit is reached or the queue is full.
func (s *scheduler) submit(job fillJob) bool {
	if s.inflight.Add(1) > s.maxInflight {
		s.inflight.Add(-1)
		return false
	}
	select {
	case s.jobs <- job:
		return true
	default:
		// queue full: rollback
		s.inflight.Add(-1)
		return false
	}
}

// room returns how many more jobs submit would accept.
func (s *scheduler) room() int {
	return int(s.maxInflight - s.inflight.Load())
}

// settle marks one result as consumed by the frame thread.
func (s *scheduler) settle() {
	s.inflight.Add(-1)
}

func (s *scheduler) worker() {
	defer s.wg.Done()
	for {
		select {
		case job, ok := <-s.jobs:
			if !ok {
				return
			}
			s.done[job.lod].push(s.fill(job))
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *scheduler) shutdown() {
	s.cancel()
	s.wg.Wait()
}
