package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the on-disk configuration of the streaming host.
type Settings struct {
	RenderRadius       int           `yaml:"render_radius"`
	RoundRadius        bool          `yaml:"round_radius"`
	Workers            int           `yaml:"workers"`
	TaskTimeout        time.Duration `yaml:"task_timeout"`
	MaxUploadsPerFrame int           `yaml:"max_uploads_per_frame"`

	Seed       int64   `yaml:"seed"`
	ChunkQuads int     `yaml:"chunk_quads"`
	CellSize   float32 `yaml:"cell_size"`
	CachePath  string  `yaml:"cache_path"`

	FPSLimit int    `yaml:"fps_limit"`
	Viewer   Viewer `yaml:"viewer"`
}

// Viewer describes the scripted camera path of the headless host.
type Viewer struct {
	StartX  float32 `yaml:"start_x"`
	StartZ  float32 `yaml:"start_z"`
	Speed   float32 `yaml:"speed"`   // world units per second
	Heading float32 `yaml:"heading"` // degrees, 0 = +X, 90 = +Z
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		RenderRadius:       8,
		Workers:            0,
		TaskTimeout:        2 * time.Second,
		MaxUploadsPerFrame: 8,
		Seed:               1,
		ChunkQuads:         32,
		CellSize:           1,
		FPSLimit:           60,
		Viewer:             Viewer{Speed: 40, Heading: 30},
	}
}

// Load reads a YAML file on top of Default and validates the result.
func Load(path string) (Settings, error) {
	s := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate reports every invalid field at once.
func (s Settings) Validate() error {
	var errs []error
	if s.RenderRadius <= 0 {
		errs = append(errs, fmt.Errorf("render_radius must be positive, got %d", s.RenderRadius))
	}
	if s.RenderRadius > MaxRenderRadius {
		errs = append(errs, fmt.Errorf("render_radius must be at most %d, got %d", MaxRenderRadius, s.RenderRadius))
	}
	if s.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", s.Workers))
	}
	if s.TaskTimeout < 0 {
		errs = append(errs, fmt.Errorf("task_timeout must not be negative, got %v", s.TaskTimeout))
	}
	if s.MaxUploadsPerFrame < 0 {
		errs = append(errs, fmt.Errorf("max_uploads_per_frame must not be negative, got %d", s.MaxUploadsPerFrame))
	}
	if s.ChunkQuads <= 0 {
		errs = append(errs, fmt.Errorf("chunk_quads must be positive, got %d", s.ChunkQuads))
	}
	if s.CellSize <= 0 {
		errs = append(errs, fmt.Errorf("cell_size must be positive, got %v", s.CellSize))
	}
	if s.FPSLimit < 0 {
		errs = append(errs, fmt.Errorf("fps_limit must not be negative, got %d", s.FPSLimit))
	}
	return errors.Join(errs...)
}
