package translate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tanukirift/novelpress/internal/metrics"
)

// Retrying decorates a Translator with exponential-backoff retries.
// The wait before retry n is backoffBase * 2^(n-1).
type Retrying struct {
	inner       Translator
	maxAttempts int
	backoffBase time.Duration
	logger      *zap.Logger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps t so transient provider failures are retried.
func WithRetry(t Translator, maxAttempts int, backoffBase time.Duration, logger *zap.Logger) *Retrying {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Retrying{
		inner:       t,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		logger:      logger,
		sleep:       sleepCtx,
	}
}

// Name implements Translator.
func (r *Retrying) Name() string { return r.inner.Name() }

// Translate implements Translator. Every provider error is treated as
// retryable; the caller's context bounds the whole sequence.
func (r *Retrying) Translate(ctx context.Context, text, targetLang string) (string, error) {
	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			wait := r.backoffBase * (1 << (attempt - 1))
			r.logger.Warn("retrying translation",
				zap.Int("attempt", attempt+1),
				zap.Duration("wait", wait),
				zap.Error(lastErr))
			metrics.IncTranslationRetry()
			if err := r.sleep(ctx, wait); err != nil {
				return "", err
			}
		}

		out, err := r.inner.Translate(ctx, text, targetLang)
		if err == nil {
			metrics.ObserveTranslation(r.inner.Name(), "ok", time.Since(start))
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	metrics.ObserveTranslation(r.inner.Name(), "error", time.Since(start))
	return "", fmt.Errorf("translation failed after %d attempts: %w", r.maxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
