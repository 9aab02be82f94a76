package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"github.com/guyvdb/tierdoc/fault"
)

// awaitOpen retries Open until the freshly written root document is visible,
// which on eventually consistent stores can take a while. A root naming a
// different database is never retried.
func (d *Database) awaitOpen(ctx context.Context, name string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.propagationInterval
	b.MaxInterval = 4 * d.propagationInterval
	b.MaxElapsedTime = d.propagationTimeout

	attempts := 0
	op := func() error {
		attempts++
		err := d.Open(ctx, name)
		if errors.Is(err, fault.ErrRootMismatch) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(b, ctx))
	if err == nil {
		d.logger.Debug("Database.awaitOpen() - root document visible", "database", name, "attempts", attempts)
		return nil
	}
	if errors.Is(err, fault.ErrRootMismatch) || ctx.Err() != nil {
		return err
	}
	d.logger.Error("database did not become available", "database", name, "attempts", attempts, "err", err)
	return fmt.Errorf("%w: %s after %d attempts: %w", fault.ErrPropagationTimeout, name, attempts, err)
}
