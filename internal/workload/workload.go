// Package workload generates synthetic write traffic against a Cask, mostly
// to produce many segments for testing recovery and rotation.
package workload

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/aethne0/banana-cask/core"
	"golang.org/x/sync/errgroup"
)

const progressEvery = 100_000

// Config describes the generated traffic. Keys are lowercase letters and
// values are decimal digits, so the data stays readable from the shell.
type Config struct {
	Workers     int
	Operations  int // per worker
	KeyLen      int
	ValueLen    int
	DeleteRatio float64 // share of operations that delete a random key
	Seed        int64
}

// DefaultConfig mimics a churn-heavy load: a tiny key universe, so most
// writes overwrite an existing key.
func DefaultConfig() Config {
	return Config{
		Workers:     4,
		Operations:  250_000,
		KeyLen:      2,
		ValueLen:    14,
		DeleteRatio: 0,
		Seed:        time.Now().UnixNano(),
	}
}

type Stats struct {
	Puts    int64
	Deletes int64
	Elapsed time.Duration
}

func (cfg Config) validate() error {
	if cfg.Workers <= 0 || cfg.Operations < 0 {
		return fmt.Errorf("workers must be positive and operations non-negative, got %d and %d", cfg.Workers, cfg.Operations)
	}
	if cfg.KeyLen < 0 || cfg.ValueLen < 0 {
		return fmt.Errorf("key and value lengths must be non-negative")
	}
	if cfg.DeleteRatio < 0 || cfg.DeleteRatio > 1 {
		return fmt.Errorf("delete ratio must be within [0, 1], got %v", cfg.DeleteRatio)
	}
	return nil
}

// Run drives cfg.Workers concurrent writers until each has done
// cfg.Operations operations, ctx is cancelled or a write fails.
func Run(ctx context.Context, c *core.Cask, cfg Config, logger *slog.Logger) (Stats, error) {
	if err := cfg.validate(); err != nil {
		return Stats{}, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "workload")

	var puts, deletes atomic.Int64
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for id := 0; id < cfg.Workers; id++ {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(cfg.Seed + int64(id)))

			for op := 1; op <= cfg.Operations; op++ {
				if err := ctx.Err(); err != nil {
					return err
				}

				key := randomBytes(rng, cfg.KeyLen, 'a', 26)
				if cfg.DeleteRatio > 0 && rng.Float64() < cfg.DeleteRatio {
					if err := c.Delete(key); err != nil {
						return fmt.Errorf("worker %d delete: %w", id, err)
					}
					deletes.Add(1)
				} else {
					if err := c.Put(key, randomBytes(rng, cfg.ValueLen, '0', 10)); err != nil {
						return fmt.Errorf("worker %d put: %w", id, err)
					}
					puts.Add(1)
				}

				if op%progressEvery == 0 {
					logger.Info("Worker progress", "worker", id, "operations", op)
				}
			}
			return nil
		})
	}

	err := g.Wait()
	stats := Stats{Puts: puts.Load(), Deletes: deletes.Load(), Elapsed: time.Since(start)}
	logger.Info("Load finished", "puts", stats.Puts, "deletes", stats.Deletes, "elapsed", stats.Elapsed, "error", err)
	return stats, err
}

func randomBytes(rng *rand.Rand, n int, base byte, span int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = base + byte(rng.Intn(span))
	}
	return b
}
