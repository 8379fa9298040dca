package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/lowtide/lowtide/pkg/errdefs"
)

// Options holds the solver's runtime-tunable settings. Reads and updates are
// serialized; the solver takes a Snapshot per drain pass so a concurrent update
// never changes the rules mid-pass.
type Options struct {
	mu   sync.RWMutex
	opts OptionValues
}

// OptionValues is one consistent view of the solver options
type OptionValues struct {
	MaxGasPrice       int64         `json:"max_gas_price"`
	OptimalGasPrice   int64         `json:"optimal_gas_price"`
	ExecutionBuffer   time.Duration `json:"execution_buffer"`
	MaxExecutionDelay time.Duration `json:"max_execution_delay"`
	AutoExecution     bool          `json:"auto_execution"`
}

// Validate checks option values for consistency
func (v OptionValues) Validate() error {
	if v.MaxGasPrice <= 0 {
		return errdefs.Validation("max gas price must be positive, got %d", v.MaxGasPrice)
	}
	if v.OptimalGasPrice <= 0 {
		return errdefs.Validation("optimal gas price must be positive, got %d", v.OptimalGasPrice)
	}
	if v.OptimalGasPrice > v.MaxGasPrice {
		return errdefs.Validation("optimal gas price %d exceeds max gas price %d", v.OptimalGasPrice, v.MaxGasPrice)
	}
	if v.ExecutionBuffer <= 0 {
		return errdefs.Validation("execution buffer must be positive")
	}
	if v.MaxExecutionDelay < v.ExecutionBuffer {
		return errdefs.Validation("max execution delay must be at least the execution buffer")
	}
	return nil
}

// NewOptions creates runtime options seeded from the loaded solver config
func NewOptions(cfg SolverConfig) (*Options, error) {
	values := OptionValues{
		MaxGasPrice:       cfg.MaxGasPrice,
		OptimalGasPrice:   cfg.OptimalGasPrice,
		ExecutionBuffer:   cfg.ExecutionBuffer,
		MaxExecutionDelay: cfg.MaxExecutionDelay,
		AutoExecution:     cfg.AutoExecution,
	}
	if err := values.Validate(); err != nil {
		return nil, err
	}
	return &Options{opts: values}, nil
}

// Snapshot returns the current option values
func (o *Options) Snapshot() OptionValues {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.opts
}

// Update replaces the option values atomically. Invalid values are rejected
// without changing the current ones.
func (o *Options) Update(values OptionValues) error {
	if err := values.Validate(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opts = values
	return nil
}

// LoadFromFile reads option values from a JSON file and applies them
func (o *Options) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read options file: %w", err)
	}
	var values OptionValues
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse options file: %w", err)
	}
	return o.Update(values)
}

// Watch reloads the options whenever the file changes, until ctx is cancelled.
// A reload that fails validation keeps the previous values and is logged.
func (o *Options) Watch(ctx context.Context, path string, log *logrus.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory; editors replace files rather than writing in place
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if err := o.LoadFromFile(path); err != nil {
					log.WithError(err).WithField("path", path).Warn("Ignoring invalid options file update")
					continue
				}
				log.WithField("path", path).Info("Reloaded solver options")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("Options watcher error")
			}
		}
	}()

	return nil
}
