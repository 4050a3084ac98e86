package profiling

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Per-frame CPU timing for the streaming loop. Totals accumulate across
// goroutines until the host calls ResetFrame.

var (
	mu          sync.Mutex
	frameTotals = make(map[string]time.Duration)
	frameCalls  = make(map[string]int)
)

// Track returns a stop function that records the elapsed time under name.
// Usage: defer profiling.Track("world.SetCenter")()
func Track(name string) func() {
	start := time.Now()
	return func() {
		d := time.Since(start)
		mu.Lock()
		frameTotals[name] += d
		frameCalls[name]++
		mu.Unlock()
	}
}

// ResetFrame clears the current totals. Call at the start of each frame.
func ResetFrame() {
	mu.Lock()
	clear(frameTotals)
	clear(frameCalls)
	mu.Unlock()
}

// Entry is one named total.
type Entry struct {
	Name  string
	Total time.Duration
	Calls int
}

// Snapshot returns the current totals, longest first.
func Snapshot() []Entry {
	mu.Lock()
	out := make([]Entry, 0, len(frameTotals))
	for k, v := range frameTotals {
		out = append(out, Entry{Name: k, Total: v, Calls: frameCalls[k]})
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

// TopN formats the n longest totals of the current frame.
// Example: "world.ProcessPending:4.2ms, world.SetCenter:0.3ms"
func TopN(n int) string {
	list := Snapshot()
	if n > len(list) {
		n = len(list)
	}
	parts := make([]string, 0, n)
	for _, e := range list[:n] {
		ms := float64(e.Total.Microseconds()) / 1000.0
		parts = append(parts, fmt.Sprintf("%s:%.1fms", e.Name, ms))
	}
	return strings.Join(parts, ", ")
}
