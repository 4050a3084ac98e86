package config

import "sync"

// Bounds for the live render radius, in chunks.
const (
	MinRenderRadius = 1
	MaxRenderRadius = 64
)

// RuntimeSettings holds values the host may change while running.
type RuntimeSettings struct {
	mu           sync.RWMutex
	renderRadius int
	fpsLimit     int
}

var globalRuntime = &RuntimeSettings{
	renderRadius: 8,
	fpsLimit:     60,
}

// GetRenderRadius returns the current render radius in chunks.
func GetRenderRadius() int {
	globalRuntime.mu.RLock()
	defer globalRuntime.mu.RUnlock()
	return globalRuntime.renderRadius
}

// SetRenderRadius sets the render radius, clamped to the supported range.
func SetRenderRadius(radius int) {
	globalRuntime.mu.Lock()
	defer globalRuntime.mu.Unlock()
	globalRuntime.renderRadius = min(max(radius, MinRenderRadius), MaxRenderRadius)
}

// GetFPSLimit returns the frame cap; 0 means uncapped.
func GetFPSLimit() int {
	globalRuntime.mu.RLock()
	defer globalRuntime.mu.RUnlock()
	return globalRuntime.fpsLimit
}

// SetFPSLimit sets the frame cap; negative values mean uncapped.
func SetFPSLimit(limit int) {
	globalRuntime.mu.Lock()
	defer globalRuntime.mu.Unlock()
	globalRuntime.fpsLimit = max(limit, 0)
}

// Apply copies the live values of s into the runtime settings.
func Apply(s Settings) {
	SetRenderRadius(s.RenderRadius)
	SetFPSLimit(s.FPSLimit)
}
