package game

import (
	"context"
	"log"
	"time"

	"terrain-stream/internal/profiling"
)

// App runs a Session in a paced frame loop.
type App struct {
	session    *Session
	fpsLimiter *FPSLimiter
	lastTime   time.Time

	// SlowFrame is the processing time above which a frame is logged.
	SlowFrame time.Duration
	// StatsEvery is the interval between periodic stats lines; 0 disables them.
	StatsEvery time.Duration
}

func NewApp(s *Session) *App {
	return &App{
		session:    s,
		fpsLimiter: NewFPSLimiter(),
		SlowFrame:  16 * time.Millisecond,
		StatsEvery: time.Second,
	}
}

// Run ticks until ctx is done or frames frames have run (frames <= 0 means
// no frame limit).
func (a *App) Run(ctx context.Context, frames int) {
	a.lastTime = time.Now()
	lastStats := a.lastTime
	for n := 0; frames <= 0 || n < frames; n++ {
		if ctx.Err() != nil {
			return
		}
		a.tick()

		if a.StatsEvery > 0 && time.Since(lastStats) >= a.StatsEvery {
			lastStats = time.Now()
			a.logStats()
		}
		if a.fpsLimiter.Wait(ctx) != nil {
			return
		}
	}
}

func (a *App) tick() {
	profiling.ResetFrame()
	start := time.Now()
	dt := start.Sub(a.lastTime).Seconds()
	a.lastTime = start

	a.session.Tick(dt)

	if d := time.Since(start); d > a.SlowFrame {
		log.Printf("Slow frame: %v. Top tasks: %s", d, profiling.TopN(5))
	}
}

func (a *App) logStats() {
	st := a.session.Manager.Stats()
	log.Printf("frame %d center %v loaded %d queued %d loading %d upload %d workers %d | %d draws %d tris | resident %d KiB",
		a.session.Frames, st.Center, st.Loaded, st.PendingGeneration, st.Loading, st.PendingUpload, st.Workers,
		a.session.LastFrame.DrawCalls, a.session.LastFrame.Triangles, a.session.Uploader.ResidentBytes()/1024)
}
