package command

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/datum/internal/logging"
	"github.com/aretw0/datum/pkg/domain"
	"github.com/aretw0/datum/pkg/event"
	"github.com/aretw0/datum/pkg/ports"
	"github.com/aretw0/datum/pkg/schema"
	"github.com/google/uuid"
)

// defaultProgressInterval paces the liveness pings emitted while a
// command is executing, so transport timeouts are not tripped by real
// work.
const defaultProgressInterval = 2 * time.Second

// Framework validates and executes commands against a host document,
// journaling every mutation as domain events.
type Framework struct {
	mu    sync.RWMutex
	specs map[string]Spec

	store            event.Store
	logger           *slog.Logger
	clock            func() time.Time
	progressInterval time.Duration
	onProgress       func(commandID string, elapsed time.Duration)
}

// Option configures the Framework.
type Option func(*Framework)

// WithLogger sets the framework logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Framework) {
		f.logger = logger
	}
}

// WithClock overrides the time source (tests).
func WithClock(clock func() time.Time) Option {
	return func(f *Framework) {
		f.clock = clock
	}
}

// WithProgress registers a liveness callback invoked on a fixed interval
// while a command executes.
func WithProgress(interval time.Duration, fn func(commandID string, elapsed time.Duration)) Option {
	return func(f *Framework) {
		if interval > 0 {
			f.progressInterval = interval
		}
		f.onProgress = fn
	}
}

// New creates a Framework journaling into the given event store.
func New(store event.Store, opts ...Option) *Framework {
	f := &Framework{
		specs:            make(map[string]Spec),
		store:            store,
		logger:           logging.NewNop(),
		clock:            time.Now,
		progressInterval: defaultProgressInterval,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Register adds a command spec. A spec with the same name is overwritten.
func (f *Framework) Register(spec Spec) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs[spec.Name()] = spec
}

// Spec looks up a registered spec by command type.
func (f *Framework) Spec(name string) (Spec, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	spec, ok := f.specs[name]
	return spec, ok
}

// Validate runs the three phases in fixed order, short-circuiting at the
// first failing phase. Later phases are not evaluated after a failure.
func (f *Framework) Validate(ctx context.Context, doc ports.HostDocument, cmd domain.Command) domain.ValidationResult {
	spec, ok := f.Spec(cmd.Type)
	if !ok {
		return domain.Invalid(domain.PhaseStatic, []domain.ValidationError{{
			Phase:    domain.PhaseStatic,
			Property: "type",
			Message:  fmt.Sprintf("unknown command type %q", cmd.Type),
		}})
	}

	// Phase 1: static, parameters only.
	if err := schema.Validate(spec.Schema(), cmd.Parameters); err != nil {
		var errs []domain.ValidationError
		for _, fe := range schema.FieldErrors(err) {
			errs = append(errs, domain.ValidationError{
				Phase:    domain.PhaseStatic,
				Property: fe.Key,
				Message:  fe.Reason,
			})
		}
		return domain.Invalid(domain.PhaseStatic, errs)
	}

	// Phase 2: contextual, against current document state.
	if errs := tagPhase(domain.PhaseContextual, spec.ValidateContextual(ctx, doc, cmd.Parameters)); len(errs) > 0 {
		return domain.Invalid(domain.PhaseContextual, errs)
	}

	// Phase 3: semantic, business rules with stable codes.
	if errs := tagPhase(domain.PhaseSemantic, spec.ValidateSemantic(ctx, cmd.Parameters)); len(errs) > 0 {
		return domain.Invalid(domain.PhaseSemantic, errs)
	}

	return domain.Valid()
}

func tagPhase(phase domain.Phase, errs []domain.ValidationError) []domain.ValidationError {
	for i := range errs {
		errs[i].Phase = phase
	}
	return errs
}

// Preview validates and then reports the command's would-be effects
// without opening a transaction or emitting events.
func (f *Framework) Preview(ctx context.Context, doc ports.HostDocument, cmd domain.Command) domain.CommandResult {
	start := f.clock()
	if res := f.Validate(ctx, doc, cmd); !res.IsValid {
		return f.validationFailure(res, start)
	}

	spec, _ := f.Spec(cmd.Type)
	result, err := spec.Preview(ctx, doc, cmd.Parameters)
	result.ExecutionTime = f.clock().Sub(start)
	if err != nil {
		return domain.Failure(fmt.Sprintf("preview failed: %v", err), err)
	}
	return result
}

// Execute validates the command, then runs it inside a single document
// transaction. Any failure rolls back, emits a rollback event carrying
// the error message, and returns a failure result; no partial state is
// observable afterward. Neither validation nor execution failures are
// retried here.
func (f *Framework) Execute(ctx context.Context, doc ports.HostDocument, cmd domain.Command, sess Session) domain.CommandResult {
	start := f.clock()

	// A command never executes without a passing validation.
	if res := f.Validate(ctx, doc, cmd); !res.IsValid {
		f.logger.WarnContext(ctx, "command rejected", "type", cmd.Type, "phase", res.FailedPhase)
		return f.validationFailure(res, start)
	}
	spec, _ := f.Spec(cmd.Type)

	commandID := uuid.NewString()

	ex := &Execution{
		Doc:       doc,
		Params:    cmd.Parameters,
		CommandID: commandID,
		session:   sess,
		store:     f.store,
		clock:     f.clock,
	}

	if cmd.MaxExecutionTime > 0 {
		ex.deadline = start.Add(cmd.MaxExecutionTime)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.MaxExecutionTime)
		defer cancel()
	}

	stopProgress := f.startProgress(commandID, start)
	defer stopProgress()

	affected, err := f.executeInTransaction(ctx, spec, ex, cmd.Type)
	elapsed := f.clock().Sub(start)
	if err != nil {
		f.logger.ErrorContext(ctx, "command failed", "type", cmd.Type, "command_id", commandID, "err", err)
		result := domain.Failure(fmt.Sprintf("%s failed: %v", cmd.Type, err), err)
		result.Data = map[string]any{"command_id": commandID}
		result.ExecutionTime = elapsed
		return result
	}

	f.logger.InfoContext(ctx, "command executed", "type", cmd.Type, "command_id", commandID, "elements_affected", affected)
	return domain.CommandResult{
		Success:          true,
		Message:          fmt.Sprintf("%s completed", cmd.Type),
		ElementsAffected: affected,
		Data:             map[string]any{"command_id": commandID},
		ExecutionTime:    elapsed,
	}
}

// executeInTransaction owns the transaction lifecycle and the
// start/commit/rollback event markers.
func (f *Framework) executeInTransaction(ctx context.Context, spec Spec, ex *Execution, name string) (int, error) {
	tx, err := ex.Doc.Begin(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	if err := ex.Emit(ctx, event.TransactionStarted{Name: name}); err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	affected, err := spec.Execute(ctx, ex)
	if err == nil {
		err = ex.Checkpoint(ctx)
	}
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			f.logger.Error("rollback failed", "command_id", ex.CommandID, "err", rbErr)
		}
		// The original ctx may already be cancelled or past deadline; the
		// rollback marker must still reach the journal.
		f.emitRollback(ctx, ex, name, err)
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		f.emitRollback(ctx, ex, name, err)
		return 0, fmt.Errorf("commit: %w", err)
	}
	if err := ex.Emit(context.WithoutCancel(ctx), event.TransactionCommitted{Name: name, ElementsAffected: affected}); err != nil {
		return 0, err
	}
	return affected, nil
}

func (f *Framework) emitRollback(ctx context.Context, ex *Execution, name string, cause error) {
	evtErr := ex.Emit(context.WithoutCancel(ctx), event.TransactionRolledBack{Name: name, Reason: cause.Error()})
	if evtErr != nil {
		f.logger.Error("rollback event lost", "command_id", ex.CommandID, "err", evtErr)
	}
}

// Undo replays the inverse of a previously executed command's events in
// reverse order inside its own transaction, and journals the inverse
// mutations under a fresh command ID.
func (f *Framework) Undo(ctx context.Context, doc ports.HostDocument, commandID string, sess Session) error {
	events, err := f.store.ByCommand(ctx, commandID)
	if err != nil {
		return fmt.Errorf("load events for %s: %w", commandID, err)
	}
	if len(events) == 0 {
		return fmt.Errorf("no events recorded for command %s", commandID)
	}

	started, ok := events[0].Payload.(event.TransactionStarted)
	if !ok {
		return fmt.Errorf("command %s has no transaction marker", commandID)
	}
	if _, committed := events[len(events)-1].Payload.(event.TransactionCommitted); !committed {
		return fmt.Errorf("command %s was not committed, nothing to undo", commandID)
	}

	spec, specOK := f.Spec(started.Name)
	if !specOK {
		return fmt.Errorf("undo %s: %w", started.Name, domain.ErrCommandUnknown)
	}

	ex := &Execution{
		Doc:       doc,
		CommandID: uuid.NewString(),
		session:   sess,
		store:     f.store,
		clock:     f.clock,
	}

	name := "undo:" + started.Name
	tx, err := doc.Begin(ctx, name)
	if err != nil {
		return fmt.Errorf("begin undo transaction: %w", err)
	}
	if err := ex.Emit(ctx, event.TransactionStarted{Name: name}); err != nil {
		_ = tx.Rollback()
		return err
	}

	affected := 0
	for i := len(events) - 1; i >= 0; i-- {
		evt := events[i]
		switch evt.Payload.(type) {
		case event.TransactionStarted, event.TransactionCommitted, event.TransactionRolledBack:
			continue
		}
		if err := spec.Undo(ctx, ex, evt); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				f.logger.Error("undo rollback failed", "command_id", commandID, "err", rbErr)
			}
			f.emitRollback(ctx, ex, name, err)
			return fmt.Errorf("undo %s event %d: %w", started.Name, evt.Seq, err)
		}
		affected++
	}

	if err := tx.Commit(); err != nil {
		f.emitRollback(ctx, ex, name, err)
		return fmt.Errorf("commit undo: %w", err)
	}
	if err := ex.Emit(context.WithoutCancel(ctx), event.TransactionCommitted{Name: name, ElementsAffected: affected}); err != nil {
		return err
	}
	f.logger.InfoContext(ctx, "command undone", "type", started.Name, "command_id", commandID)
	return nil
}

func (f *Framework) validationFailure(res domain.ValidationResult, start time.Time) domain.CommandResult {
	result := domain.Failure(
		fmt.Sprintf("validation failed in %s phase", res.FailedPhase),
		domain.ErrNotValidated,
	)
	result.Data = map[string]any{"validation": res}
	result.ExecutionTime = f.clock().Sub(start)
	return result
}

// startProgress emits liveness pings until the returned stop func runs.
func (f *Framework) startProgress(commandID string, start time.Time) func() {
	if f.onProgress == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(f.progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				f.onProgress(commandID, time.Since(start))
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
