package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Policy bounds how long and how often a dependency is retried
type Policy struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Budget caps the whole loop; zero means only Attempts applies
	Budget time.Duration
}

// StartupPolicy is used for the database, which the service cannot run without
func StartupPolicy() Policy {
	return Policy{
		Attempts:     10,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Budget:       time.Minute,
	}
}

// OptionalPolicy is used for dependencies the service can degrade without
func OptionalPolicy() Policy {
	return Policy{
		Attempts:     3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Budget:       5 * time.Second,
	}
}

// Do calls fn with exponential backoff until it succeeds, the attempts run
// out or ctx ends. Every failed attempt that will be retried is logged with
// the dependency name.
func Do(ctx context.Context, p Policy, dependency string, fn func(ctx context.Context) error) error {
	if p.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Budget)
		defer cancel()
	}
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	var lastErr error
	delay := p.InitialDelay

	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return aborted(dependency, attempt-1, err, lastErr)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == p.Attempts {
			break
		}

		log.Warn().
			Str("dependency", dependency).
			Int("attempt", attempt).
			Err(lastErr).
			Dur("retry_in", delay).
			Msg("connection attempt failed")

		select {
		case <-ctx.Done():
			return aborted(dependency, attempt, ctx.Err(), lastErr)
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return fmt.Errorf("%s: gave up after %d attempts: %w", dependency, p.Attempts, lastErr)
}

func aborted(dependency string, attempts int, ctxErr, lastErr error) error {
	if lastErr == nil {
		return fmt.Errorf("%s: retry aborted: %w", dependency, ctxErr)
	}
	return fmt.Errorf("%s: retry aborted after %d attempts: %w (last error: %v)", dependency, attempts, ctxErr, lastErr)
}
