package profiling

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Per-frame CPU timings for the streaming and traversal stages.

type entry struct {
	total time.Duration
	calls int
}

var (
	mu     sync.Mutex
	frame  = make(map[string]entry)
	totals = make(map[string]entry)
)

// Track returns a stop function that records the elapsed time under name.
// Usage: defer profiling.Track("clipmap.Update")()
func Track(name string) func() {
	start := time.Now()
	return func() {
		d := time.Since(start)
		mu.Lock()
		e := frame[name]
		e.total += d
		e.calls++
		frame[name] = e
		t := totals[name]
		t.total += d
		t.calls++
		totals[name] = t
		mu.Unlock()
	}
}

// ResetFrame clears the current frame. Call at the start of each frame.
func ResetFrame() {
	mu.Lock()
	clear(frame)
	mu.Unlock()
}

// Snapshot returns a copy of the current frame totals.
func Snapshot() map[string]time.Duration {
	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]time.Duration, len(frame))
	for k, v := range frame {
		out[k] = v.total
	}
	return out
}

// Stat is the accumulated time of one tracked name since process start.
type Stat struct {
	Name  string
	Total time.Duration
	Calls int
}

// Totals returns every tracked name sorted by accumulated time, longest first.
func Totals() []Stat {
	mu.Lock()
	out := make([]Stat, 0, len(totals))
	for k, v := range totals {
		out = append(out, Stat{Name: k, Total: v.total, Calls: v.calls})
	}
	mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// TopN formats the n slowest names of the current frame.
// Example: "traversal.Render:4.2ms, clipmap.ApplyBudget:2.1ms"
func TopN(n int) string {
	ss := Snapshot()
	list := make([]Stat, 0, len(ss))
	for k, v := range ss {
		list = append(list, Stat{Name: k, Total: v})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Total > list[j].Total })
	if n > len(list) {
		n = len(list)
	}
	parts := make([]string, 0, n)
	for _, s := range list[:n] {
		parts = append(parts, s.Name+":"+FormatMs(s.Total))
	}
	return strings.Join(parts, ", ")
}

// FormatMs renders d in milliseconds with one decimal, dropping ".0".
func FormatMs(d time.Duration) string {
	ms := float64(d.Microseconds()) / 1000.0
	s := strconv.FormatFloat(ms, 'f', 1, 64)
	return strings.TrimSuffix(s, ".0") + "ms"
}
