package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"volfusion/pkg/fusion"
)

// TestDefaultConfig verifies the defaults documented for the engine
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Processing.TargetSpacing != 1.0 {
		t.Errorf("Expected target spacing 1.0, got %f", cfg.Processing.TargetSpacing)
	}
	if cfg.Processing.MovingOpacity != 0.5 {
		t.Errorf("Expected moving opacity 0.5, got %f", cfg.Processing.MovingOpacity)
	}
	if cfg.Display.InitialWindow != 2000 || cfg.Display.InitialLevel != 40 {
		t.Errorf("Expected initial window/level 2000/40, got %f/%f",
			cfg.Display.InitialWindow, cfg.Display.InitialLevel)
	}
	if cfg.Display.PlaceholderWindow != 255 || cfg.Display.PlaceholderLevel != 127 {
		t.Errorf("Expected placeholder window/level 255/127, got %f/%f",
			cfg.Display.PlaceholderWindow, cfg.Display.PlaceholderLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestValidateOpacity(t *testing.T) {
	for _, o := range []float64{-0.1, 1.01, math.NaN()} {
		cfg := DefaultConfig()
		cfg.Processing.MovingOpacity = o
		err := cfg.Validate()
		if !errors.Is(err, fusion.ErrOpacityOutOfRange) {
			t.Errorf("Opacity %v: expected ErrOpacityOutOfRange, got %v", o, err)
		}
		if cfg.Processing.MovingOpacity != o && !math.IsNaN(o) {
			t.Errorf("Opacity %v was modified by validation", o)
		}
	}

	for _, o := range []float64{0, 0.5, 1} {
		cfg := DefaultConfig()
		cfg.Processing.MovingOpacity = o
		if err := cfg.Validate(); err != nil {
			t.Errorf("Opacity %v should be valid: %v", o, err)
		}
	}
}

func TestValidateProcessing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Processing.TargetSpacing = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for zero target spacing")
	}

	cfg = DefaultConfig()
	cfg.Processing.NumWorkers = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for zero workers")
	}
}

// TestLoadSaveConfig verifies YAML round trip through the file system
func TestLoadSaveConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "volfusion.yaml")

	cfg := DefaultConfig()
	cfg.Processing.MovingOpacity = 0.25
	cfg.Output.LogFile = "volfusion.log"
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if loaded.Processing.MovingOpacity != 0.25 {
		t.Errorf("Expected opacity 0.25, got %f", loaded.Processing.MovingOpacity)
	}
	if loaded.Output.LogFile != "volfusion.log" {
		t.Errorf("Expected log file to survive, got %q", loaded.Output.LogFile)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Missing file should yield defaults, got %v", err)
	}
	if cfg.Processing.TargetSpacing != 1.0 {
		t.Errorf("Expected default spacing, got %f", cfg.Processing.TargetSpacing)
	}
}

func TestLoadConfigRejectsBadOpacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	data := []byte("processing:\n  movingOpacity: 1.5\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadConfig(path)
	if !errors.Is(err, fusion.ErrOpacityOutOfRange) {
		t.Errorf("Expected ErrOpacityOutOfRange, got %v", err)
	}
}

func TestLoadConfigPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	data := []byte("display:\n  initialWindow: 400\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load partial config: %v", err)
	}
	if cfg.Display.InitialWindow != 400 {
		t.Errorf("Expected window 400, got %f", cfg.Display.InitialWindow)
	}
	if cfg.Display.InitialLevel != 40 {
		t.Errorf("Expected default level to be kept, got %f", cfg.Display.InitialLevel)
	}
}
