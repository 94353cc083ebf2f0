package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/aretw0/datum/internal/logging"
	"github.com/aretw0/datum/pkg/command"
	"github.com/aretw0/datum/pkg/domain"
	"github.com/aretw0/datum/pkg/observability"
	"github.com/aretw0/datum/pkg/ports"
	"github.com/aretw0/datum/pkg/script"
)

// Dispatcher routes protocol requests onto the single goroutine allowed
// to mutate the host document. Requests arrive on arbitrary transport
// goroutines; the hand-off through the submission channel is the
// suspension point between the transport's world and the document's.
type Dispatcher struct {
	doc       ports.HostDocument
	framework *command.Framework
	scripts   *script.Bridge
	session   command.Session
	logger    *slog.Logger
	metrics   *observability.Metrics

	submissions chan submission
	closeOnce   sync.Once
	closed      chan struct{}
}

type submission struct {
	ctx   context.Context
	req   Request
	reply chan Response
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *observability.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher starts the executor goroutine. Callers must Close it.
func NewDispatcher(doc ports.HostDocument, fw *command.Framework, scripts *script.Bridge, sess command.Session, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		doc:         doc,
		framework:   fw,
		scripts:     scripts,
		session:     sess,
		logger:      logging.NewNop(),
		submissions: make(chan submission),
		closed:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.run()
	return d
}

// Close stops the executor goroutine. Pending Dispatch calls return a
// failure response.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.closed) })
}

func (d *Dispatcher) run() {
	for {
		select {
		case <-d.closed:
			return
		case sub := <-d.submissions:
			resp := d.handle(sub.ctx, sub.req)
			select {
			case sub.reply <- resp:
			case <-sub.ctx.Done():
			}
		}
	}
}

// Dispatch validates the envelope and executes the request on the
// document goroutine, blocking until the response is ready or ctx ends.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	if err := req.Validate(); err != nil {
		return failure(req, CodeBadRequest, err.Error())
	}

	sub := submission{ctx: ctx, req: req, reply: make(chan Response, 1)}
	select {
	case d.submissions <- sub:
	case <-ctx.Done():
		return failure(req, CodeExecutionFailed, ctx.Err().Error())
	case <-d.closed:
		return failure(req, CodeExecutionFailed, "dispatcher closed")
	}

	select {
	case resp := <-sub.reply:
		return resp
	case <-ctx.Done():
		return failure(req, CodeExecutionFailed, ctx.Err().Error())
	}
}

// HandleMessage decodes a raw protocol message, dispatches it, and
// encodes the response. Transport adapters call this.
func (d *Dispatcher) HandleMessage(ctx context.Context, data []byte) []byte {
	req, err := ParseRequest(data)
	var resp Response
	if err != nil {
		resp = failure(Request{}, CodeBadRequest, err.Error())
	} else {
		resp = d.Dispatch(ctx, req)
	}
	out, err := json.Marshal(resp)
	if err != nil {
		d.logger.Error("encode response failed", "err", err)
		return []byte(`{"success":false,"errorCode":"EXECUTION_FAILED"}`)
	}
	return out
}

// handle runs on the executor goroutine.
func (d *Dispatcher) handle(ctx context.Context, req Request) Response {
	d.logger.DebugContext(ctx, "request dispatched", "type", req.Type, "correlation_id", req.CorrelationID())
	switch req.Type {
	case TypeCommand:
		return d.handleCommand(ctx, req)
	case TypeScript:
		return d.handleScript(ctx, req)
	case TypeSelectionQuery:
		return d.handleSelectionQuery(ctx, req)
	default:
		return failure(req, CodeBadRequest, "unknown request type")
	}
}

func (d *Dispatcher) handleCommand(ctx context.Context, req Request) Response {
	cmd := domain.Command{
		Type:       req.CommandType,
		Parameters: req.Parameters,
	}
	result := d.framework.Execute(ctx, d.doc, cmd, d.session)
	d.metrics.ObserveCommand(cmd.Type, result.Success, result.ExecutionTime)

	resp := respond(req)
	resp.Success = result.Success
	resp.Message = result.Message
	resp.Data = commandData(result)
	if !result.Success {
		if errors.Is(result.Err, domain.ErrNotValidated) {
			resp.ErrorCode = CodeValidationFailed
		} else {
			resp.ErrorCode = CodeExecutionFailed
		}
	}
	return resp
}

func (d *Dispatcher) handleScript(ctx context.Context, req Request) Response {
	outcome, err := d.scripts.Invoke(ctx, script.InvokeRequest{
		Name:    req.ScriptName,
		Source:  req.Source,
		Params:  req.Parameters,
		Targets: req.Targets,
	})
	resp := respond(req)
	if err != nil {
		d.metrics.ObserveScript(outcome.ScriptType, false)
		resp.Message = err.Error()
		resp.ErrorCode = CodeScriptFailed
		return resp
	}
	d.metrics.ObserveScript(outcome.ScriptType, true)

	resp.Success = true
	resp.ScriptType = outcome.ScriptType
	if outcome.Result != nil {
		resp.Message = outcome.Result.Message
		resp.Data = commandData(*outcome.Result)
	}
	return resp
}

func (d *Dispatcher) handleSelectionQuery(ctx context.Context, req Request) Response {
	var (
		refs []domain.ElementRef
		err  error
	)
	switch {
	case req.Category != "":
		refs, err = d.doc.ElementsByCategory(ctx, req.Category)
	case req.TypeName != "":
		refs, err = d.doc.ElementsByType(ctx, req.TypeName)
	default:
		refs, err = d.doc.SelectedElements(ctx)
	}
	resp := respond(req)
	if err != nil {
		resp.Message = err.Error()
		resp.ErrorCode = CodeExecutionFailed
		return resp
	}
	resp.Success = true
	resp.Data = map[string]any{
		"elements": refs,
		"count":    len(refs),
	}
	return resp
}

func commandData(result domain.CommandResult) map[string]any {
	data := map[string]any{
		"elementsAffected": result.ElementsAffected,
		"executionTimeMs":  float64(result.ExecutionTime.Milliseconds()),
	}
	for k, v := range result.Data {
		data[k] = v
	}
	return data
}
