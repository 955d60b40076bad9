package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"volfusion/pkg/config"
)

func TestRunFailedLoadWritesLogFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "volfusion.log")

	cfg := config.DefaultConfig()
	cfg.Output.LogFile = logPath
	cfg.Display.SliceCacheMB = 0
	cfgPath := filepath.Join(dir, "volfusion.yaml")
	if err := config.SaveConfig(cfg, cfgPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	var out bytes.Buffer
	code := run(context.Background(), []string{"-config", cfgPath, "-fixed", filepath.Join(dir, "missing")}, strings.NewReader(""), &out)
	if code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
	if !strings.Contains(out.String(), "Failed to load fixed series") {
		t.Errorf("Expected the load failure on stdout, got:\n%s", out.String())
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Expected a log file: %v", err)
	}
	if !strings.Contains(string(data), "load of") || !strings.Contains(string(data), "failed") {
		t.Errorf("Expected the load failure in the log file, got:\n%s", data)
	}
}

func TestRunWriteConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "conf", "volfusion.yaml")
	var out bytes.Buffer
	if code := run(context.Background(), []string{"-config", cfgPath, "-write-config"}, nil, &out); code != 0 {
		t.Fatalf("Expected exit code 0, got %d", code)
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("Written config does not load: %v", err)
	}
	if cfg.Processing.TargetSpacing != 1.0 {
		t.Errorf("Expected default spacing 1.0, got %v", cfg.Processing.TargetSpacing)
	}
}

func TestRunRejectsBadArguments(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.yaml")
	tests := []struct {
		name string
		args []string
	}{
		{"nothing to load", []string{"-config", missing}},
		{"opacity out of range", []string{"-config", missing, "-fixed", "x", "-opacity", "1.5"}},
		{"bad orientation", []string{"-config", missing, "-fixed", "x", "-orientation", "oblique"}},
		{"unknown flag", []string{"-bogus"}},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if code := run(context.Background(), tt.args, nil, &out); code == 0 {
			t.Errorf("%s: expected a non-zero exit code", tt.name)
		}
	}
}
