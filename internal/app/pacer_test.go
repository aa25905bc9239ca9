package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"clipvox/internal/config"
)

// fakeClock moves forward by tick on every reading so the spin phase ends.
type fakeClock struct {
	t    time.Time
	tick time.Duration
}

func (c *fakeClock) now() time.Time {
	t := c.t
	c.t = c.t.Add(c.tick)
	return t
}

func (c *fakeClock) sleep(d time.Duration) { c.t = c.t.Add(d) }

func fakePacer(t *testing.T, limit int) (*Pacer, *fakeClock) {
	prev := config.GetFPSLimit()
	t.Cleanup(func() { config.SetFPSLimit(prev) })
	config.SetFPSLimit(limit)
	clk := &fakeClock{t: time.Unix(1000, 0), tick: 50 * time.Microsecond}
	return &Pacer{now: clk.now, sleep: clk.sleep}, clk
}

func TestPacerUnlimited(t *testing.T) {
	p, _ := fakePacer(t, 0)
	require.Zero(t, p.Wait(false))
}

func TestPacerPausedHoldsSlot(t *testing.T) {
	p, _ := fakePacer(t, 0)
	waited := p.Wait(true)
	require.GreaterOrEqual(t, waited, time.Second/pausedFPS)
	require.Less(t, waited, time.Second/pausedFPS+time.Millisecond)
}

func TestPacerResyncsAfterHitch(t *testing.T) {
	p, clk := fakePacer(t, 100)
	p.Wait(false)
	require.Zero(t, p.Late)

	clk.sleep(time.Second)
	waited := p.Wait(false)
	require.Less(t, waited, time.Millisecond)
	require.Equal(t, 1, p.Late)
	require.Equal(t, clk.t.Add(-clk.tick).Add(10*time.Millisecond), p.next)
}
