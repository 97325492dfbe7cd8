package eventstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/goran-ethernal/eventstore/internal/storeerr"
	"github.com/goran-ethernal/eventstore/internal/storemetrics"
	"github.com/goran-ethernal/eventstore/pkg/config"
)

// retryableSQLiteError reports whether err reflects SQLite's own
// serialization-conflict signal (SQLITE_BUSY/SQLITE_LOCKED) rather than a
// structural failure, the only condition the facade retries automatically.
func retryableSQLiteError(err error) bool {
	if err == nil {
		return false
	}
	if storeerr.Is(err, storeerr.KindSerializationConflict) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "sqlite_locked")
}

// calculateBackoff mirrors the exponential-with-jitter schedule used
// elsewhere in the store's stack, scaled to cfg's retry settings.
func calculateBackoff(attempt int, cfg *config.RetryConfig) time.Duration {
	if attempt <= 1 {
		return 0
	}

	backoff := float64(cfg.InitialBackoff.Duration) * math.Pow(cfg.BackoffMultiplier, float64(attempt-2))
	if backoff > float64(cfg.MaxBackoff.Duration) {
		backoff = float64(cfg.MaxBackoff.Duration)
	}

	jitterRange := backoff * 0.25
	jitter := (rand.Float64() * 2 * jitterRange) - jitterRange
	backoff += jitter
	if backoff < 0 {
		backoff = 0
	}

	return time.Duration(backoff)
}

// retryWithBackoff runs fn, retrying on a serialization conflict up to
// cfg.MaxAttempts times with exponential backoff and jitter between
// attempts. Any other error fails immediately.
func retryWithBackoff(ctx context.Context, cfg *config.RetryConfig, op string, fn func() error) error {
	if cfg == nil {
		return fn()
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled before attempt %d: %w", attempt, err)
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryableSQLiteError(err) {
			return err
		}
		storemetrics.SerializationConflictInc(op)

		if attempt >= cfg.MaxAttempts {
			break
		}

		backoff := calculateBackoff(attempt+1, cfg)
		if backoff > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during backoff (attempt %d/%d): %w", attempt, cfg.MaxAttempts, ctx.Err())
			}
		}
	}

	return storeerr.SerializationConflict(op, fmt.Errorf("all %d attempts failed: %w", cfg.MaxAttempts, lastErr))
}

var errNilTxFunc = errors.New("eventstore: nil transaction function")
