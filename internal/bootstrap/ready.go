package bootstrap

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
)

// Pinger is a backing client with a health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

const (
	readyRetries = 2
	readyBackoff = 100 * time.Millisecond
)

// WaitReady pings every dependency in name order, retrying briefly so a
// binary that starts alongside its database does not crash-loop.
func WaitReady(ctx context.Context, logg *logger.Logger, deps map[string]Pinger) error {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		dep := deps[name]
		depCtx := logg.WithField(ctx, "dependency", name)
		backoff := retry.WithMaxRetries(readyRetries, retry.NewExponential(readyBackoff))
		err := retry.Do(depCtx, backoff, func(ctx context.Context) error {
			if err := dep.Ping(ctx); err != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "dependency not ready")
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			logg.Error(depCtx, "dependency ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	logg.Info(ctx, "all dependencies are ready")
	return nil
}
