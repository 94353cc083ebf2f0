package recovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/datum/internal/logging"
	"github.com/aretw0/datum/pkg/observability"
)

// Reconnector retries an arbitrary operation against a transient
// resource (connection setup, handle acquisition) and reports when the
// resource comes back after an outage.
type Reconnector struct {
	backoff     Backoff
	logger      *slog.Logger
	metrics     *observability.Metrics
	clock       func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	onRecovered func(id string, attempts []Attempt)
}

// ReconnectOption configures a Reconnector.
type ReconnectOption func(*Reconnector)

// WithReconnectBackoff overrides the retry schedule.
func WithReconnectBackoff(b Backoff) ReconnectOption {
	return func(r *Reconnector) {
		r.backoff = b
	}
}

// WithReconnectLogger sets the logger.
func WithReconnectLogger(logger *slog.Logger) ReconnectOption {
	return func(r *Reconnector) {
		r.logger = logger
	}
}

// WithReconnectMetrics counts each retry in the io_retries_total
// collector.
func WithReconnectMetrics(m *observability.Metrics) ReconnectOption {
	return func(r *Reconnector) {
		r.metrics = m
	}
}

// OnRecovered registers a callback invoked when an operation succeeds
// after at least one failed attempt.
func OnRecovered(fn func(id string, attempts []Attempt)) ReconnectOption {
	return func(r *Reconnector) {
		r.onRecovered = fn
	}
}

func withReconnectClock(clock func() time.Time, sleep func(ctx context.Context, d time.Duration) error) ReconnectOption {
	return func(r *Reconnector) {
		r.clock = clock
		r.sleep = sleep
	}
}

// NewReconnector creates a reconnector with the default schedule.
func NewReconnector(opts ...ReconnectOption) *Reconnector {
	r := &Reconnector{
		backoff: DefaultBackoff(),
		logger:  logging.NewNop(),
		clock:   time.Now,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes op, retrying recoverable failures. Non-recoverable
// errors propagate immediately; exhausting the schedule returns a
// TerminalError with the attempt history.
func (r *Reconnector) Run(ctx context.Context, id string, op func(ctx context.Context) error) error {
	next := r.backoff.schedule()
	var attempts []Attempt

	for {
		err := op(ctx)
		if err == nil {
			if len(attempts) > 0 {
				r.logger.Info("resource recovered", "id", id, "attempts", len(attempts))
				if r.onRecovered != nil {
					r.onRecovered(id, attempts)
				}
			}
			return nil
		}

		kind, ok := Classify(err)
		if !ok {
			return err
		}

		attemptNo := len(attempts) + 1
		if attemptNo > r.backoff.MaxRetries {
			return &TerminalError{StreamID: id, Attempts: attempts, Err: err}
		}

		delay := next()
		attempts = append(attempts, Attempt{Number: attemptNo, Delay: delay, At: r.clock(), Err: err})

		r.metrics.ObserveRetry(kind.String())
		r.logger.Warn("operation failed, retrying",
			"id", id,
			"kind", kind.String(),
			"attempt", attemptNo,
			"delay", delay)

		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}
}
