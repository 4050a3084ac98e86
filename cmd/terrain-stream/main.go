package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"terrain-stream/internal/config"
	"terrain-stream/internal/game"
	"terrain-stream/internal/render"
)

func main() {
	configPath := flag.String("config", "", "YAML settings file (optional)")
	frames := flag.Int("frames", 600, "frames to run; 0 runs until interrupted")
	radius := flag.Int("radius", 0, "render radius in chunks (overrides config)")
	seed := flag.Int64("seed", 0, "terrain seed (overrides config)")
	workers := flag.Int("workers", -1, "generation workers; 0 = NumCPU (overrides config)")
	fps := flag.Int("fps", -1, "frame cap; 0 = uncapped (overrides config)")
	speed := flag.Float64("speed", -1, "viewer speed in world units per second (overrides config)")
	cachePath := flag.String("cache", "", "SQLite chunk cache path (overrides config)")
	snapshot := flag.String("snapshot", "", "write a minimap PNG of the final window here")
	flag.Parse()

	settings := config.Default()
	if *configPath != "" {
		s, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		settings = s
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "radius":
			settings.RenderRadius = *radius
		case "seed":
			settings.Seed = *seed
		case "workers":
			settings.Workers = *workers
		case "fps":
			settings.FPSLimit = *fps
		case "speed":
			settings.Viewer.Speed = float32(*speed)
		case "cache":
			settings.CachePath = *cachePath
		}
	})
	if err := settings.Validate(); err != nil {
		log.Fatalf("invalid settings: %v", err)
	}
	config.Apply(settings)

	session, err := game.NewSession(settings)
	if err != nil {
		log.Fatalf("start session: %v", err)
	}
	defer session.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	game.NewApp(session).Run(ctx, *frames)

	st := session.Manager.Stats()
	fmt.Printf("frames:     %d\n", session.Frames)
	fmt.Printf("center:     %v (radius %d)\n", st.Center, session.Manager.Radius())
	fmt.Printf("loaded:     %d (queued %d, loading %d, upload %d)\n", st.Loaded, st.PendingGeneration, st.Loading, st.PendingUpload)
	fmt.Printf("generated:  %d placed %d discarded %d disposed %d failed %d\n", st.Generated, st.Placed, st.Discarded, st.Disposed, st.Failed)
	fmt.Printf("resident:   %d KiB in %d chunks\n", session.Uploader.ResidentBytes()/1024, session.Uploader.ResidentChunks())
	if hits, misses := session.CacheStats(); hits+misses > 0 {
		fmt.Printf("cache:      %d hits, %d misses\n", hits, misses)
	}

	if *snapshot != "" {
		if err := render.WriteMinimap(*snapshot, session.Manager, 8); err != nil {
			log.Printf("write minimap: %v", err)
		} else {
			fmt.Printf("minimap:    %s\n", *snapshot)
		}
	}
}
