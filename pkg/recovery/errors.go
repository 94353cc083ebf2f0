// Package recovery retries transient host I/O failures. The host
// document lives behind file handles and IPC streams that fail
// transiently under contention (indexing, antivirus scans, competing
// add-ins); this package classifies those failures and drives retries
// with exponential backoff, resuming streams from their last good
// offset.
package recovery

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
	"time"
)

// Kind classifies a transient failure.
type Kind int

const (
	// KindBusy is a file or resource locked by another process.
	KindBusy Kind = iota
	// KindNotFoundYet is a path that is expected to appear shortly.
	KindNotFoundYet
	// KindAccessDeniedTemporary is a permission error that clears once a
	// scanner or competing handle releases the file.
	KindAccessDeniedTemporary
	// KindTooManyHandles is descriptor exhaustion.
	KindTooManyHandles
	// KindResourceUnavailable is EAGAIN-style pressure.
	KindResourceUnavailable
	// KindSharingViolation is a write lock held by the host itself.
	KindSharingViolation
)

func (k Kind) String() string {
	switch k {
	case KindBusy:
		return "busy"
	case KindNotFoundYet:
		return "not_found_yet"
	case KindAccessDeniedTemporary:
		return "access_denied_temporary"
	case KindTooManyHandles:
		return "too_many_handles"
	case KindResourceUnavailable:
		return "resource_unavailable"
	case KindSharingViolation:
		return "sharing_violation"
	default:
		return "unknown"
	}
}

// RecoverableError marks an error worth retrying.
type RecoverableError struct {
	Kind Kind
	Err  error
}

func (e *RecoverableError) Error() string {
	return fmt.Sprintf("recoverable (%s): %v", e.Kind, e.Err)
}

func (e *RecoverableError) Unwrap() error {
	return e.Err
}

// Recoverable wraps err as retryable with the given kind.
func Recoverable(kind Kind, err error) *RecoverableError {
	return &RecoverableError{Kind: kind, Err: err}
}

// IsRecoverable reports whether err is worth retrying, classifying raw
// syscall errors on the way.
func IsRecoverable(err error) bool {
	_, ok := Classify(err)
	return ok
}

// Classify maps an error to a transient failure kind. Explicitly
// wrapped RecoverableErrors keep their kind; raw errors are matched
// against the errno values and message fragments transient host I/O
// failures surface with.
func Classify(err error) (Kind, bool) {
	if err == nil {
		return 0, false
	}

	var recoverable *RecoverableError
	if errors.As(err, &recoverable) {
		return recoverable.Kind, true
	}

	switch {
	case errors.Is(err, syscall.EBUSY):
		return KindBusy, true
	case errors.Is(err, syscall.EAGAIN):
		return KindResourceUnavailable, true
	case errors.Is(err, syscall.EMFILE), errors.Is(err, syscall.ENFILE):
		return KindTooManyHandles, true
	case errors.Is(err, syscall.EACCES):
		return KindAccessDeniedTemporary, true
	}

	msg := strings.ToLower(err.Error())
	for fragment, kind := range messageKinds {
		if strings.Contains(msg, fragment) {
			return kind, true
		}
	}
	return 0, false
}

// messageKinds matches failure text from hosts that do not surface
// errno values, notably Windows sharing violations forwarded over the
// bridge as plain strings.
var messageKinds = map[string]Kind{
	"sharing violation":       KindSharingViolation,
	"being used by another":   KindBusy,
	"resource busy":           KindBusy,
	"temporarily unavailable": KindResourceUnavailable,
	"too many open files":     KindTooManyHandles,
}

// Attempt records one retry.
type Attempt struct {
	Number int           `json:"number"`
	Delay  time.Duration `json:"delay"`
	At     time.Time     `json:"at"`
	Err    error         `json:"-"`
}

// TerminalError reports retry exhaustion with the full attempt history.
type TerminalError struct {
	StreamID string
	Attempts []Attempt
	Err      error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("stream %s: gave up after %d attempts: %v", e.StreamID, len(e.Attempts), e.Err)
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}
