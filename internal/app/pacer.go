package app

import (
	"time"

	"clipvox/internal/config"
)

// pausedFPS caps the frame rate while paused. Streaming keeps running, so
// the tracer still costs something every frame.
const pausedFPS = 30

// spinWindow is the tail of each frame spent spinning instead of sleeping.
const spinWindow = 200 * time.Microsecond

// Pacer holds the frame loop to the configured rate.
type Pacer struct {
	next time.Time
	// Late counts frames that overran their slot and forced a resync.
	Late int

	now   func() time.Time
	sleep func(time.Duration)
}

func NewPacer() *Pacer {
	return &Pacer{now: time.Now, sleep: time.Sleep}
}

func pacerLimit(paused bool) int {
	if paused {
		return pausedFPS
	}
	return config.GetFPSLimit()
}

// Wait blocks until the next frame slot and returns how long it waited.
func (p *Pacer) Wait(paused bool) time.Duration {
	limit := pacerLimit(paused)
	if limit <= 0 {
		p.next = time.Time{}
		return 0
	}
	slot := time.Second / time.Duration(limit)
	start := p.now()
	if p.next.IsZero() {
		p.next = start.Add(slot)
	} else {
		p.next = p.next.Add(slot)
	}

	for {
		remaining := p.next.Sub(p.now())
		if remaining <= 0 {
			break
		}
		if remaining > spinWindow {
			p.sleep(remaining - spinWindow)
		}
	}

	end := p.now()
	if end.Sub(p.next) > slot {
		p.Late++
		p.next = end.Add(slot)
	}
	return end.Sub(start)
}
