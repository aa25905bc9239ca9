package clipmap

import (
	"errors"
	"fmt"
	"log"
	"math"
	"runtime"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"clipvox/internal/brick"
	"clipvox/internal/metrics"
	"clipvox/internal/profiling"
)

var (
	// ErrWorkingSetExceedsCeiling means a pool stayed exhausted after a forced
	// eviction. The pool ceilings are too small for the configured windows.
	ErrWorkingSetExceedsCeiling = errors.New("brick working set exceeds pool ceiling")
	// ErrOutOfRange rejects edits outside every active LOD window.
	ErrOutOfRange = errors.New("coordinate outside clipmap range")
	// ErrRegionTooLarge rejects region edits above the configured voxel limit.
	ErrRegionTooLarge = errors.New("edit region too large")
)

// SyncEditLODs is the number of finest levels re-encoded synchronously by
// SetVoxel. Coarser levels are patched under the apply budget.
const SyncEditLODs = 2

// Options configures a Controller.
type Options struct {
	LODCount        int
	VisiblePageGrid int
	Workers         int
	MaxInflight     int
	RetentionFrames uint64
	GenerateTimeout time.Duration
	Ceilings        brick.Ceilings
	MaxRegionVoxels int
	RegionBricks    int
	Journal         EditSink
	Logger          *log.Logger
}

// DefaultOptions returns the reference configuration.
func DefaultOptions() Options {
	return Options{
		LODCount:        MaxLODCount,
		VisiblePageGrid: PageGrid,
		Workers:         max(runtime.NumCPU(), 1),
		MaxInflight:     8192,
		RetentionFrames: 3,
		GenerateTimeout: 2 * time.Second,
		MaxRegionVoxels: 1 << 22,
		RegionBricks:    64,
	}
}

func (o *Options) normalize() {
	d := DefaultOptions()
	if o.LODCount <= 0 || o.LODCount > MaxLODCount {
		o.LODCount = d.LODCount
	}
	o.VisiblePageGrid = clampGrid(o.VisiblePageGrid)
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.MaxInflight < BricksPerPage {
		o.MaxInflight = d.MaxInflight
	}
	if o.GenerateTimeout <= 0 {
		o.GenerateTimeout = d.GenerateTimeout
	}
	if o.MaxRegionVoxels <= 0 {
		o.MaxRegionVoxels = d.MaxRegionVoxels
	}
	if o.RegionBricks <= 0 {
		o.RegionBricks = d.RegionBricks
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
}

func clampGrid(n int) int {
	if n <= 0 {
		return PageGrid
	}
	if n < MinVisiblePageGrid {
		return MinVisiblePageGrid
	}
	if n > PageGrid {
		return PageGrid
	}
	return n
}

// Controller owns every LOD's page table and the brick store. Update,
// ApplyBudget, the edit methods and the runtime setters must be called from
// the frame goroutine; the views it hands out are read between those calls.
type Controller struct {
	opts   Options
	gen    TerrainGenerator
	store  *brick.Store
	sched  *scheduler
	logger *log.Logger

	levels  [MaxLODCount]*level
	active  int
	visible int
	cursor  int

	frame     uint64
	camera    WorldCoord
	cameraPos mgl64.Vec3
	err       error

	dirty   dirtyTracker
	edits   *editLayer
	patches []brickPatch
	regions []*regionEdit

	scratch []brick.ID
}

// New starts the generation workers and returns an unseeded controller. The
// first Update builds every window.
func New(gen TerrainGenerator, opts Options) *Controller {
	opts.normalize()
	c := &Controller{
		opts:    opts,
		gen:     gen,
		store:   brick.NewStore(opts.Ceilings),
		sched:   newScheduler(gen, opts.Workers, opts.MaxInflight, opts.GenerateTimeout),
		logger:  opts.Logger,
		active:  opts.LODCount,
		visible: opts.VisiblePageGrid,
		edits:   newEditLayer(),
		dirty:   newDirtyTracker(),
	}
	for i := range c.levels {
		c.levels[i] = newLevel(i)
	}
	return c
}

// Close stops the generation workers.
func (c *Controller) Close() {
	c.sched.shutdown()
}

// Store exposes the brick store for read-only use.
func (c *Controller) Store() *brick.Store { return c.store }

// Frame returns the number of Update calls so far.
func (c *Controller) Frame() uint64 { return c.frame }

// Err returns the fatal error that stopped streaming, if any.
func (c *Controller) Err() error { return c.err }

// ActiveLODCount returns the number of levels currently streamed.
func (c *Controller) ActiveLODCount() int { return c.active }

// VisiblePageGrid returns the window size in pages per axis.
func (c *Controller) VisiblePageGrid() int { return c.visible }

// LODState returns the streaming state of lod.
func (c *Controller) LODState(lod int) LODState { return c.levels[lod].state }

// Window returns the current window of lod.
func (c *Controller) Window(lod int) Window { return c.levels[lod].window }

// PageTable returns the page table of lod for read-only use.
func (c *Controller) PageTable(lod int) *PageTable { return c.levels[lod].table }

// Update moves the windows to follow camera. LOD0 is updated every frame,
// coarser levels one per frame in turn. Unseeded levels are built
// immediately. The returned error is fatal.
func (c *Controller) Update(camera mgl64.Vec3) error {
	defer profiling.Track("clipmap.Update")()
	if c.err != nil {
		return c.err
	}
	c.frame++
	c.cameraPos = camera
	c.camera = WorldCoord{
		int64(math.Floor(camera.X())),
		int64(math.Floor(camera.Y())),
		int64(math.Floor(camera.Z())),
	}

	for lod := 0; lod < c.active; lod++ {
		if !c.levels[lod].seeded {
			c.updateLevel(lod)
		}
	}
	c.updateLevel(0)
	if c.active > 1 {
		c.updateLevel(1 + c.cursor%(c.active-1))
		c.cursor++
	}

	c.streamRegions()
	c.dispatch()
	c.EvictUnreferenced(false)
	metrics.SetInflightBricks(int(c.sched.inflight.Load()))
	return c.err
}

func (c *Controller) updateLevel(lod int) {
	lv := c.levels[lod]
	next := windowFor(lod, c.camera, c.visible)
	if !lv.seeded {
		c.rebuildLevel(lv, next)
		return
	}
	d := PageCoord{
		next.Origin.X - lv.window.Origin.X,
		next.Origin.Y - lv.window.Origin.Y,
		next.Origin.Z - lv.window.Origin.Z,
	}
	if d == (PageCoord{}) {
		return
	}
	n := int64(c.visible)
	if abs64(d.X) >= n || abs64(d.Y) >= n || abs64(d.Z) >= n {
		c.rebuildLevel(lv, next)
		return
	}

	lv.state = OriginShifting
	prev := lv.window
	lv.window = next
	prev.ForEach(func(p PageCoord) {
		if next.Contains(p) {
			return
		}
		if slot, ok := lv.table.Lookup(p); ok {
			c.releaseSlot(lv, slot)
		}
	})
	revealed := 0
	next.ForEach(func(p PageCoord) {
		if !prev.Contains(p) {
			c.invalidatePage(lv, p)
			revealed++
		}
	})
	lv.state = Rebuilding
	lv.sortQueue(c.camera)
	c.dirty.markOrigin()
	metrics.InstrumentPagesInvalidated(lod, revealed)
}

// rebuildLevel discards everything lod holds and reseeds it at next. The
// level stays ineligible for traversal until the new window is complete.
func (c *Controller) rebuildLevel(lv *level, next Window) {
	for slot := 0; slot < PageSlots; slot++ {
		if lv.table.state[slot] != PageEmpty {
			c.releaseSlot(lv, slot)
		}
	}
	lv.queue = lv.queue[:0]
	lv.rebuilding = 0
	lv.ready = false
	lv.seeded = true
	lv.window = next
	lv.state = Rebuilding
	next.ForEach(func(p PageCoord) {
		c.invalidatePage(lv, p)
	})
	lv.sortQueue(c.camera)
	c.dirty.markOrigin()
	metrics.InstrumentFullRebuild(lv.index)
	metrics.InstrumentPagesInvalidated(lv.index, next.Pages*next.Pages*next.Pages)
}

func (c *Controller) invalidatePage(lv *level, p PageCoord) {
	slot := SlotIndex(p)
	if lv.table.state[slot] != PageRebuilding {
		lv.rebuilding++
	}
	c.scratch = lv.table.invalidate(slot, p, c.scratch[:0])
	c.dropAll(c.scratch)
	c.dirty.markPage(lv.index, slot)
	lv.queue = append(lv.queue, pendingPage{page: p, slot: slot, epoch: lv.table.epoch[slot]})
}

func (c *Controller) releaseSlot(lv *level, slot int) {
	if lv.table.state[slot] == PageRebuilding {
		lv.rebuilding--
	}
	c.scratch = lv.table.release(slot, c.scratch[:0])
	c.dropAll(c.scratch)
	c.dirty.markPage(lv.index, slot)
}

func (c *Controller) dropAll(ids []brick.ID) {
	for _, id := range ids {
		c.store.Drop(id, c.frame)
	}
}

// dispatch submits whole pages to the workers, finest level first, while the
// in-flight limit has room for a full page.
func (c *Controller) dispatch() {
	defer profiling.Track("clipmap.dispatch")()
	for lod := 0; lod < c.active; lod++ {
		lv := c.levels[lod]
		for len(lv.queue) > 0 {
			p := lv.queue[0]
			if lv.stale(p) {
				lv.queue = lv.queue[1:]
				continue
			}
			if c.sched.room() < BricksPerPage {
				return
			}
			for i := 0; i < BricksPerPage; i++ {
				c.sched.submit(fillJob{
					lod:     lod,
					page:    p.page,
					coord:   p.page.Brick(i),
					slot:    p.slot,
					index:   i,
					epoch:   p.epoch,
					initial: true,
				})
			}
			lv.queue = lv.queue[1:]
		}
	}
}

// RequestBrickFill regenerates one brick of a page currently in lod's
// window. It never blocks and returns false when the page is not held or the
// workers are saturated.
func (c *Controller) RequestBrickFill(lod int, b BrickCoord) bool {
	if lod < 0 || lod >= c.active {
		return false
	}
	lv := c.levels[lod]
	page, idx := b.Page()
	if !lv.window.Contains(page) {
		return false
	}
	slot, ok := lv.table.Lookup(page)
	if !ok {
		return false
	}
	return c.sched.submit(fillJob{
		lod:   lod,
		page:  page,
		coord: b,
		slot:  slot,
		index: idx,
		epoch: lv.table.epoch[slot],
	})
}

// ApplyBudget installs at most n completed bricks, finest level first.
// Results for slots that were invalidated since dispatch are dropped and
// still count against n. Queued edit patches use what is left of the budget.
func (c *Controller) ApplyBudget(n int) int {
	defer profiling.Track("clipmap.ApplyBudget")()
	start := time.Now()
	applied := 0
	for lod := 0; lod < MaxLODCount && applied < n && c.err == nil; lod++ {
		for _, r := range c.sched.done[lod].take(n - applied) {
			c.sched.settle()
			applied++
			c.applyResult(r)
		}
	}
	if c.err == nil {
		applied += c.applyPatches(n - applied)
	}
	for lod := 0; lod < c.active; lod++ {
		c.MarkLODReady(lod)
		c.levels[lod].settle()
	}
	metrics.ObserveApply(time.Since(start))
	return applied
}

func (c *Controller) applyResult(r fillResult) {
	job := r.job
	lv := c.levels[job.lod]
	t := lv.table
	if job.lod >= c.active || t.tags[job.slot] != job.page || t.epoch[job.slot] != job.epoch || t.state[job.slot] == PageEmpty {
		metrics.InstrumentBrickFill(job.lod, metrics.OutcomeStale)
		return
	}

	v := r.voxels
	if r.err != nil {
		c.logger.Printf("clipmap: %v; brick left empty until the page is rebuilt", r.err)
		metrics.InstrumentBrickFill(job.lod, metrics.OutcomeFailed)
		v = brick.Voxels{}
	} else {
		metrics.InstrumentBrickFill(job.lod, metrics.OutcomeApplied)
	}
	c.edits.apply(job.lod, job.coord, &v)

	id, err := c.allocate(&v)
	if err != nil {
		c.err = err
		return
	}
	c.install(lv, job.slot, job.index, id)
	if job.initial && t.fillDone(job.slot) {
		lv.rebuilding--
	}
}

// install points brick i of slot at id. The header and payload of id are
// already published.
func (c *Controller) install(lv *level, slot, i int, id brick.ID) {
	old := lv.table.set(slot, i, id)
	if old == id {
		return
	}
	c.store.Retain(id, c.frame)
	c.store.Drop(old, c.frame)
	c.dirty.markPage(lv.index, slot)
}

func (c *Controller) allocate(v *brick.Voxels) (brick.ID, error) {
	id, err := c.store.Allocate(v, c.frame)
	if !errors.Is(err, brick.ErrPoolExhausted) {
		return id, err
	}
	freed := c.EvictUnreferenced(true)
	c.logger.Printf("clipmap: %v; forced eviction freed %d bricks", err, freed)
	id, err = c.store.Allocate(v, c.frame)
	if err != nil {
		return brick.Empty, fmt.Errorf("%w: %v", ErrWorkingSetExceedsCeiling, err)
	}
	return id, nil
}

func (c *Controller) rewrite(id brick.ID, v *brick.Voxels) (brick.ID, error) {
	next, err := c.store.Rewrite(id, v, c.frame)
	if !errors.Is(err, brick.ErrPoolExhausted) {
		return next, err
	}
	freed := c.EvictUnreferenced(true)
	c.logger.Printf("clipmap: %v; forced eviction freed %d bricks", err, freed)
	next, err = c.store.Rewrite(id, v, c.frame)
	if err != nil {
		return brick.Empty, fmt.Errorf("%w: %v", ErrWorkingSetExceedsCeiling, err)
	}
	return next, nil
}

// MarkLODReady latches lod as eligible for traversal once every page of its
// window has been filled at least once. Only a full rebuild clears the latch.
func (c *Controller) MarkLODReady(lod int) bool {
	if lod < 0 || lod >= c.active {
		return false
	}
	lv := c.levels[lod]
	if lv.ready {
		return true
	}
	if lv.seeded && lv.rebuilding == 0 {
		lv.ready = true
		c.logger.Printf("clipmap: lod %d ready at frame %d", lod, c.frame)
	}
	return lv.ready
}

// EvictUnreferenced reclaims bricks no page has referenced for the
// retention window. force ignores the window.
func (c *Controller) EvictUnreferenced(force bool) int {
	n := c.store.Evict(c.frame, c.opts.RetentionFrames, force)
	metrics.InstrumentEvictions(n)
	return n
}

// SetVisiblePageGrid changes the window size of every level. Values are
// clamped to [MinVisiblePageGrid, PageGrid]; a change rebuilds all levels on
// the next Update.
func (c *Controller) SetVisiblePageGrid(n int) int {
	n = clampGrid(n)
	if n == c.visible {
		return n
	}
	c.visible = n
	for _, lv := range c.levels {
		lv.seeded = false
	}
	return n
}

// SetActiveLODCount changes how many levels are streamed and traced.
// Dropped levels release their pages; added levels are built on the next
// Update.
func (c *Controller) SetActiveLODCount(n int) int {
	if n < 1 {
		n = 1
	}
	if n > c.opts.LODCount {
		n = c.opts.LODCount
	}
	for lod := n; lod < c.active; lod++ {
		lv := c.levels[lod]
		for slot := 0; slot < PageSlots; slot++ {
			if lv.table.state[slot] != PageEmpty {
				c.releaseSlot(lv, slot)
			}
		}
		lv.queue = lv.queue[:0]
		lv.rebuilding = 0
		lv.seeded = false
		lv.ready = false
		lv.state = Stable
	}
	c.active = n
	c.dirty.markOrigin()
	return n
}

// Stats is a snapshot of streaming progress.
type Stats struct {
	Frame        uint64
	ActiveLODs   int
	Inflight     int
	QueuedPages  []int
	Completed    []int
	Rebuilding   []int
	Ready        []bool
	States       []string
	PendingEdits int
	Store        brick.Stats
}

// Stats summarizes the controller.
func (c *Controller) Stats() Stats {
	s := Stats{
		Frame:        c.frame,
		ActiveLODs:   c.active,
		Inflight:     int(c.sched.inflight.Load()),
		PendingEdits: len(c.patches) + len(c.regions),
		Store:        c.store.Stats(),
	}
	for lod := 0; lod < c.active; lod++ {
		lv := c.levels[lod]
		s.QueuedPages = append(s.QueuedPages, len(lv.queue))
		s.Completed = append(s.Completed, c.sched.done[lod].len())
		s.Rebuilding = append(s.Rebuilding, lv.rebuilding)
		s.Ready = append(s.Ready, lv.ready)
		s.States = append(s.States, lv.state.String())
	}
	for i, n := range s.Store.PoolBytes {
		metrics.SetPoolBytes(brick.Encoding(i).String(), n)
	}
	return s
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
