package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/me/evalzoo/internal/backpressure"
	"github.com/me/evalzoo/internal/logging"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. EVALZOO_MODELS_DIR.
const EnvPrefix = "EVALZOO_"

// Config holds configuration for evalzoo.
type Config struct {
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json

	StatePath string `yaml:"state"`      // directory of JSON records, or a .db SQLite file
	ModelsDir string `yaml:"models_dir"` // local directory or s3://bucket/prefix
	EvalDir   string `yaml:"eval_dir"`   // finished evaluation games; empty disables refill
	Bucket    string `yaml:"bucket"`     // where evaluation jobs write games

	Kubeconfig  string `yaml:"kubeconfig"`   // empty: in-cluster, then default rules
	Namespace   string `yaml:"namespace"`    // used when the job template names none
	JobTemplate string `yaml:"job_template"` // path; empty uses the built-in template
	EvalImage   string `yaml:"eval_image"`   // substituted for ${EVAL_IMAGE}

	RankingCommand string `yaml:"ranking_command"` // e.g. "python3 ratings/ratings.py"

	MaxTasks     int `yaml:"max_tasks"`
	MinTasks     int `yaml:"min_tasks"`
	Completions  int `yaml:"completions"`
	MaxConflicts int `yaml:"max_conflicts"` // 0 retries forever

	MetricsAddr string `yaml:"metrics_addr"` // status and metrics listener; empty disables
}

// Default returns sensible defaults.
func Default() Config {
	return Config{
		LogLevel:     "info",
		LogFormat:    "text",
		StatePath:    ".",
		Namespace:    "default",
		MaxTasks:     backpressure.DefaultMaxTasks,
		MinTasks:     backpressure.DefaultMinTasks,
		Completions:  4,
		MaxConflicts: 6,
	}
}

// Load returns the defaults overlaid with the YAML file at path (if any) and
// then with EVALZOO_* environment variables.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"LOG_LEVEL":       &c.LogLevel,
		"LOG_FORMAT":      &c.LogFormat,
		"STATE":           &c.StatePath,
		"MODELS_DIR":      &c.ModelsDir,
		"EVAL_DIR":        &c.EvalDir,
		"BUCKET":          &c.Bucket,
		"KUBECONFIG":      &c.Kubeconfig,
		"NAMESPACE":       &c.Namespace,
		"JOB_TEMPLATE":    &c.JobTemplate,
		"EVAL_IMAGE":      &c.EvalImage,
		"RANKING_COMMAND": &c.RankingCommand,
		"METRICS_ADDR":    &c.MetricsAddr,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MAX_TASKS":     &c.MaxTasks,
		"MIN_TASKS":     &c.MinTasks,
		"COMPLETIONS":   &c.Completions,
		"MAX_CONFLICTS": &c.MaxConflicts,
	}
	for key, dst := range ints {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.MaxTasks <= 0:
		return fmt.Errorf("max_tasks must be positive, got %d", c.MaxTasks)
	case c.MinTasks < 0:
		return fmt.Errorf("min_tasks must not be negative, got %d", c.MinTasks)
	case c.MinTasks >= c.MaxTasks:
		return fmt.Errorf("min_tasks (%d) must be below max_tasks (%d)", c.MinTasks, c.MaxTasks)
	case c.Completions <= 0:
		return fmt.Errorf("completions must be positive, got %d", c.Completions)
	case c.MaxConflicts < 0:
		return fmt.Errorf("max_conflicts must not be negative, got %d", c.MaxConflicts)
	case c.ModelsDir == "":
		return errors.New("models_dir is required")
	case !logging.ValidFormat(c.LogFormat):
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// RankingArgv splits RankingCommand into program and arguments.
func (c Config) RankingArgv() []string {
	return strings.Fields(c.RankingCommand)
}

// CapMaxJobs lowers MaxTasks to maxJobs matches' worth of completions: each
// match is two jobs of Completions tasks. MinTasks is halved until it sits
// below the new cap. maxJobs <= 0 leaves both unchanged.
func (c *Config) CapMaxJobs(maxJobs int) {
	if maxJobs <= 0 {
		return
	}
	c.MaxTasks = min(c.MaxTasks, maxJobs*c.Completions*2)
	for c.MinTasks > 0 && c.MinTasks >= c.MaxTasks {
		c.MinTasks /= 2
	}
}
