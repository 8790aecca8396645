// Package execconfig decodes the executor's tuning file using
// gopkg.in/yaml.v3.
package execconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config tunes the executor and the services built on top of it.
// Zero values mean "use the package default" everywhere.
type Config struct {
	// MaxWorkers overrides runtime.NumCPU() as the upper bound in
	// the degree-of-parallelism formula. 0 means no override.
	MaxWorkers int `yaml:"max_workers"`

	// Batch is consulted only by internal/batchsvc.
	Batch BatchConfig `yaml:"batch"`
}

// BatchConfig configures the cron-driven block-intake service.
type BatchConfig struct {
	// CronExpr schedules a periodic drain of the intake queue, in
	// robfig/cron's 6-field (seconds first) or "@every" syntax. Empty
	// disables the cron trigger; the service still drains on its
	// one-second fallback tick.
	CronExpr string `yaml:"cron_expr"`
	// MaxRuntime bounds one block's execution; zero means the
	// five-minute package default.
	MaxRuntime time.Duration `yaml:"max_runtime"`
}

// Default returns sensible zero-ish defaults.
func Default() Config {
	return Config{
		Batch: BatchConfig{
			CronExpr:   "@every 1s",
			MaxRuntime: 5 * time.Minute,
		},
	}
}

// Load reads and decodes a YAML file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("execconfig: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("execconfig: parse %s: %w", path, err)
	}
	return cfg, nil
}
