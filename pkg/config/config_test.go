package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestDefaultConfig verifies the documented defaults
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Realign.WithinLoops != 2 {
		t.Errorf("Expected withinLoops 2, got %d", cfg.Realign.WithinLoops)
	}
	if cfg.Realign.BetweenLoops != 5 {
		t.Errorf("Expected betweenLoops 5, got %d", cfg.Realign.BetweenLoops)
	}
	if cfg.Realign.Speedup != 4 {
		t.Errorf("Expected speedup 4, got %d", cfg.Realign.Speedup)
	}
	if cfg.Realign.Optimizer != "powell" {
		t.Errorf("Expected optimizer powell, got %q", cfg.Realign.Optimizer)
	}
	if cfg.Acquisition.TRSlices != -1 {
		t.Errorf("Expected trSlices -1 (TR/nslices default), got %g", cfg.Acquisition.TRSlices)
	}
}

// TestLoadMissingFile verifies defaults are returned when no file exists
func TestLoadMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Expected defaults for missing file, got error: %v", err)
	}
	if cfg.Realign.Optimizer != "powell" {
		t.Errorf("Expected default optimizer, got %q", cfg.Realign.Optimizer)
	}
}

// TestSaveAndLoad verifies the YAML round-trip
func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "realign4d.yaml")
	cfg := DefaultConfig()
	cfg.Realign.Optimizer = "simplex"
	cfg.Realign.Speedup = 2
	cfg.Acquisition.TR = 3.0
	cfg.Acquisition.Interleaved = true

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Realign.Optimizer != "simplex" {
		t.Errorf("Expected optimizer simplex, got %q", loaded.Realign.Optimizer)
	}
	if loaded.Realign.Speedup != 2 {
		t.Errorf("Expected speedup 2, got %d", loaded.Realign.Speedup)
	}
	if loaded.Acquisition.TR != 3.0 {
		t.Errorf("Expected tr 3.0, got %g", loaded.Acquisition.TR)
	}
	if !loaded.Acquisition.Interleaved {
		t.Error("Expected interleaved true")
	}
}

// TestLoadInvalidYAML verifies parse errors surface
func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("realign: [not a map"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for invalid YAML")
	}
}
