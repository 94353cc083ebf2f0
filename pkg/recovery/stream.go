package recovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/datum/internal/logging"
	"github.com/aretw0/datum/pkg/observability"
)

// RecoveryState is the observable condition of a recovering stream.
type RecoveryState struct {
	StreamID           string    `json:"stream_id"`
	LastByteOffset     int64     `json:"last_byte_offset"`
	LastSuccessfulRead time.Time `json:"last_successful_read"`
	FailureCount       int       `json:"failure_count"`
	Attempts           []Attempt `json:"attempts,omitempty"`
	IsRecovering       bool      `json:"is_recovering"`
}

// ReadAt reads from the underlying stream at the given byte offset.
type ReadAt func(ctx context.Context, offset int64, buf []byte) (int, error)

// StreamRecovery wraps a stream source with offset-tracked retries.
// Reads resume from the last successfully consumed byte, so a stream
// interrupted mid-transfer never re-delivers or skips data.
type StreamRecovery struct {
	mu      sync.Mutex
	state   RecoveryState
	read    ReadAt
	backoff Backoff
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// StreamOption configures a StreamRecovery.
type StreamOption func(*StreamRecovery)

// WithStreamBackoff overrides the retry schedule.
func WithStreamBackoff(b Backoff) StreamOption {
	return func(s *StreamRecovery) {
		s.backoff = b
	}
}

// WithStreamLogger sets the logger.
func WithStreamLogger(logger *slog.Logger) StreamOption {
	return func(s *StreamRecovery) {
		s.logger = logger
	}
}

// WithStreamMetrics counts each retry in the io_retries_total collector.
func WithStreamMetrics(m *observability.Metrics) StreamOption {
	return func(s *StreamRecovery) {
		s.metrics = m
	}
}

func withStreamClock(clock func() time.Time, sleep func(ctx context.Context, d time.Duration) error) StreamOption {
	return func(s *StreamRecovery) {
		s.clock = clock
		s.sleep = sleep
	}
}

// NewStreamRecovery wraps read with recovery for the named stream.
func NewStreamRecovery(streamID string, read ReadAt, opts ...StreamOption) *StreamRecovery {
	s := &StreamRecovery{
		state:   RecoveryState{StreamID: streamID},
		read:    read,
		backoff: DefaultBackoff(),
		logger:  logging.NewNop(),
		clock:   time.Now,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Read fills buf from the stream's current offset, retrying transient
// failures per the backoff schedule. On success the offset advances by
// the bytes read. Non-recoverable errors propagate immediately without
// touching the offset; exhausted retries return a TerminalError carrying
// the attempt history.
func (s *StreamRecovery) Read(ctx context.Context, buf []byte) (int, error) {
	s.mu.Lock()
	offset := s.state.LastByteOffset
	s.mu.Unlock()

	next := s.backoff.schedule()
	var attempts []Attempt

	for {
		n, err := s.read(ctx, offset, buf)
		if err == nil {
			s.mu.Lock()
			s.state.LastByteOffset = offset + int64(n)
			s.state.LastSuccessfulRead = s.clock()
			s.state.IsRecovering = false
			s.state.Attempts = nil
			// FailureCount stays cumulative for the stream's lifetime;
			// only Reset zeroes it.
			s.mu.Unlock()
			return n, nil
		}

		kind, ok := Classify(err)
		if !ok {
			return 0, err
		}

		attemptNo := len(attempts) + 1
		if attemptNo > s.backoff.MaxRetries {
			s.mu.Lock()
			s.state.IsRecovering = false
			s.mu.Unlock()
			return 0, &TerminalError{StreamID: s.state.StreamID, Attempts: attempts, Err: err}
		}

		delay := next()
		attempt := Attempt{Number: attemptNo, Delay: delay, At: s.clock(), Err: err}
		attempts = append(attempts, attempt)

		s.mu.Lock()
		s.state.IsRecovering = true
		s.state.FailureCount++
		s.state.Attempts = attempts
		s.mu.Unlock()

		s.metrics.ObserveRetry(kind.String())
		s.logger.Warn("stream read failed, retrying",
			"stream", s.state.StreamID,
			"kind", kind.String(),
			"attempt", attemptNo,
			"delay", delay,
			"offset", offset)

		if err := s.sleep(ctx, delay); err != nil {
			return 0, err
		}
	}
}

// State returns a copy of the current recovery state.
func (s *StreamRecovery) State() RecoveryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.state
	state.Attempts = append([]Attempt(nil), s.state.Attempts...)
	return state
}

// Reset rewinds the stream to an explicit offset. This is the only way
// the offset moves backwards.
func (s *StreamRecovery) Reset(offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastByteOffset = offset
	s.state.FailureCount = 0
	s.state.Attempts = nil
	s.state.IsRecovering = false
}
