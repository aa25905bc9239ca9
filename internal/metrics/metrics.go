package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	lodLabel      = "lod"
	encodingLabel = "encoding"
	outcomeLabel  = "outcome"
	bufferLabel   = "buffer"
)

var (
	brickFillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipvox_brick_fills_total",
		Help: "The total number of brick fills drained from the completion queues.",
	}, []string{lodLabel, outcomeLabel})

	pagesInvalidatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipvox_pages_invalidated_total",
		Help: "The total number of pages marked for rebuild.",
	}, []string{lodLabel})

	fullRebuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipvox_full_rebuilds_total",
		Help: "The total number of whole-window rebuilds.",
	}, []string{lodLabel})

	bricksEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipvox_bricks_evicted_total",
		Help: "The total number of bricks reclaimed by eviction sweeps.",
	})

	editsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipvox_voxel_edits_total",
		Help: "The total number of voxel edits accepted.",
	})

	inflightBricks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clipvox_inflight_bricks",
		Help: "The number of brick fills submitted and not yet applied.",
	})

	poolBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clipvox_pool_bytes",
		Help: "The bytes backing each brick pool.",
	}, []string{encodingLabel})

	mirrorUploadBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipvox_mirror_upload_bytes_total",
		Help: "The total number of bytes written to the GPU mirror.",
	}, []string{bufferLabel})

	journalEditsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipvox_journal_edits_total",
		Help: "The total number of edits committed to the journal.",
	})

	observerClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clipvox_observer_clients",
		Help: "The number of connected observer websockets.",
	})

	applyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clipvox_apply_duration_seconds",
		Help:    "The time spent applying completed bricks per frame.",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.004, 0.008, 0.016},
	})

	frameDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clipvox_frame_duration_seconds",
		Help:    "The wall time of one rendered frame.",
		Buckets: prometheus.ExponentialBuckets(0.002, 2, 8),
	})
)

// Fill outcomes.
const (
	OutcomeApplied = "applied"
	OutcomeStale   = "stale"
	OutcomeFailed  = "failed"
)

func lodValue(lod int) string {
	return strconv.Itoa(lod)
}

func InstrumentBrickFill(lod int, outcome string) {
	brickFillsTotal.
		With(prometheus.Labels{lodLabel: lodValue(lod), outcomeLabel: outcome}).
		Inc()
}

func InstrumentPagesInvalidated(lod, n int) {
	pagesInvalidatedTotal.
		With(prometheus.Labels{lodLabel: lodValue(lod)}).
		Add(float64(n))
}

func InstrumentFullRebuild(lod int) {
	fullRebuildsTotal.
		With(prometheus.Labels{lodLabel: lodValue(lod)}).
		Inc()
}

func InstrumentEvictions(n int) {
	if n > 0 {
		bricksEvictedTotal.Add(float64(n))
	}
}

func InstrumentEdits(n int) {
	editsTotal.Add(float64(n))
}

func SetInflightBricks(n int) {
	inflightBricks.Set(float64(n))
}

func SetPoolBytes(encoding string, n int) {
	poolBytes.
		With(prometheus.Labels{encodingLabel: encoding}).
		Set(float64(n))
}

func InstrumentUpload(buffer string, n int) {
	if n > 0 {
		mirrorUploadBytes.
			With(prometheus.Labels{bufferLabel: buffer}).
			Add(float64(n))
	}
}

func InstrumentJournal(n int) {
	journalEditsTotal.Add(float64(n))
}

func SetObserverClients(n int) {
	observerClients.Set(float64(n))
}

func ObserveApply(d time.Duration) {
	applyDuration.Observe(d.Seconds())
}

func ObserveFrame(d time.Duration) {
	frameDuration.Observe(d.Seconds())
}
