package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "evalzoo.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := LoadWithEnv("", noEnv)
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
models_dir: s3://zoo/run1/models
bucket: eval-games
max_tasks: 400
min_tasks: 40
ranking_command: python3 ratings/ratings.py
`)
	cfg, err := LoadWithEnv(path, envMap(map[string]string{
		"EVALZOO_MIN_TASKS": "10",
		"EVALZOO_EVAL_DIR":  "/data/eval",
	}))
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}

	want := Default()
	want.ModelsDir = "s3://zoo/run1/models"
	want.Bucket = "eval-games"
	want.MaxTasks = 400
	want.MinTasks = 10
	want.EvalDir = "/data/eval"
	want.RankingCommand = "python3 ratings/ratings.py"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"python3", "ratings/ratings.py"}, cfg.RankingArgv()); diff != "" {
		t.Errorf("RankingArgv mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := LoadWithEnv(writeConfig(t, ""), noEnv)
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if cfg.MaxTasks != 250 {
		t.Errorf("MaxTasks = %d, want 250", cfg.MaxTasks)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.yaml"), noEnv); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadWithEnv(writeConfig(t, "max_taks: 3\n"), noEnv); err == nil {
		t.Error("expected error for unknown key")
	}
	if _, err := LoadWithEnv("", envMap(map[string]string{"EVALZOO_MAX_TASKS": "lots"})); err == nil {
		t.Error("expected error for non-numeric env override")
	}
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.ModelsDir = "/models"
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate(valid) = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max", func(c *Config) { c.MaxTasks = 0 }},
		{"negative min", func(c *Config) { c.MinTasks = -1 }},
		{"min not below max", func(c *Config) { c.MinTasks = c.MaxTasks }},
		{"zero completions", func(c *Config) { c.Completions = 0 }},
		{"negative conflicts", func(c *Config) { c.MaxConflicts = -1 }},
		{"no models dir", func(c *Config) { c.ModelsDir = "" }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("Validate succeeded, want error")
			}
		})
	}
}

func TestCapMaxJobs(t *testing.T) {
	c := Default()
	c.CapMaxJobs(0)
	if c.MaxTasks != 250 {
		t.Errorf("CapMaxJobs(0): MaxTasks = %d, want 250", c.MaxTasks)
	}
	c.CapMaxJobs(20) // 20 * 4 * 2
	if c.MaxTasks != 160 {
		t.Errorf("CapMaxJobs(20): MaxTasks = %d, want 160", c.MaxTasks)
	}
	c.CapMaxJobs(100)
	if c.MaxTasks != 160 {
		t.Errorf("CapMaxJobs(100): MaxTasks = %d, want 160 (never raised)", c.MaxTasks)
	}
	if c.MinTasks != 20 {
		t.Errorf("MinTasks = %d, want 20 untouched", c.MinTasks)
	}
}

func TestCapMaxJobs_KeepsMinBelowMax(t *testing.T) {
	tests := []struct {
		maxJobs, completions int
		wantMax, wantMin     int
	}{
		{maxJobs: 2, completions: 4, wantMax: 16, wantMin: 10},
		{maxJobs: 1, completions: 1, wantMax: 2, wantMin: 1},
		{maxJobs: 1, completions: 2, wantMax: 4, wantMin: 2},
	}
	for _, tt := range tests {
		c := Default()
		c.ModelsDir = "/models"
		c.Completions = tt.completions
		c.CapMaxJobs(tt.maxJobs)
		if c.MaxTasks != tt.wantMax || c.MinTasks != tt.wantMin {
			t.Errorf("CapMaxJobs(%d) with completions %d: max=%d min=%d, want max=%d min=%d",
				tt.maxJobs, tt.completions, c.MaxTasks, c.MinTasks, tt.wantMax, tt.wantMin)
		}
		if err := c.Validate(); err != nil {
			t.Errorf("Validate after CapMaxJobs(%d): %v", tt.maxJobs, err)
		}
	}
}
