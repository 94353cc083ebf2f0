// Package gateway is the sole trusted endpoint between isolated
// (hot-loaded) code and the host document. Every capability call is
// serialized, and every mutating call runs inside a transaction opened
// on the trusted side; isolated code never holds a document handle.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/datum/internal/logging"
	"github.com/aretw0/datum/pkg/domain"
	"github.com/aretw0/datum/pkg/ports"
)

// Gateway exposes the fixed host capability surface. Only one capability
// call executes at a time, so two pieces of generated code can never
// race on the same document transaction.
type Gateway struct {
	mu     sync.Mutex
	doc    ports.HostDocument
	logger *slog.Logger

	group     ports.Transaction
	groupName string
}

// Option configures the Gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// New creates a gateway over the host document.
func New(doc ports.HostDocument, opts ...Option) *Gateway {
	g := &Gateway{
		doc:    doc,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// BeginGroup opens a transaction group. All mutating capability calls
// until CommitGroup or RollbackGroup become one atomic unit.
func (g *Gateway) BeginGroup(ctx context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.group != nil {
		return fmt.Errorf("transaction group %q already active", g.groupName)
	}
	tx, err := g.doc.Begin(ctx, name)
	if err != nil {
		return fmt.Errorf("begin group %q: %w", name, err)
	}
	g.group = tx
	g.groupName = name
	g.logger.Debug("transaction group started", "name", name)
	return nil
}

// CommitGroup commits the active transaction group.
func (g *Gateway) CommitGroup() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.group == nil {
		return errors.New("no active transaction group")
	}
	err := g.group.Commit()
	g.group = nil
	g.groupName = ""
	if err != nil {
		return fmt.Errorf("commit group: %w", err)
	}
	return nil
}

// RollbackGroup rolls back the active transaction group, discarding
// every mutation made inside it.
func (g *Gateway) RollbackGroup() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.group == nil {
		return errors.New("no active transaction group")
	}
	err := g.group.Rollback()
	name := g.groupName
	g.group = nil
	g.groupName = ""
	if err != nil {
		return fmt.Errorf("rollback group: %w", err)
	}
	g.logger.Debug("transaction group rolled back", "name", name)
	return nil
}

// mutate runs fn inside the active group, or in its own transaction when
// no group is open. Callers hold g.mu.
func (g *Gateway) mutate(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if g.group != nil {
		return fn(ctx)
	}
	return ports.Transact(ctx, g.doc, name, fn)
}

// --- Host Capability Interface ---

// SelectedElements returns the host's current selection.
func (g *Gateway) SelectedElements(ctx context.Context) ([]domain.ElementRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.doc.SelectedElements(ctx)
}

// ElementsByCategory returns all elements in a category.
func (g *Gateway) ElementsByCategory(ctx context.Context, category string) ([]domain.ElementRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.doc.ElementsByCategory(ctx, category)
}

// ElementsByType returns all elements of a named type.
func (g *Gateway) ElementsByType(ctx context.Context, typeName string) ([]domain.ElementRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.doc.ElementsByType(ctx, typeName)
}

// Element resolves an element ID.
func (g *Gateway) Element(ctx context.Context, id domain.ElementID) (domain.ElementRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.doc.Element(ctx, id)
}

// ElementParameters reads an element's parameters.
func (g *Gateway) ElementParameters(ctx context.Context, id domain.ElementID) ([]domain.Parameter, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.doc.ElementParameters(ctx, id)
}

// SetElementParameter writes a parameter value. Fails if the parameter
// is read-only or absent.
func (g *Gateway) SetElementParameter(ctx context.Context, id domain.ElementID, name string, value any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mutate(ctx, "set_parameter", func(ctx context.Context) error {
		return g.doc.SetElementParameter(ctx, id, name, value)
	})
}

// CreateInstance creates a new element and returns its ID.
func (g *Gateway) CreateInstance(ctx context.Context, spec domain.InstanceSpec) (domain.ElementID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var id domain.ElementID
	err := g.mutate(ctx, "create_instance", func(ctx context.Context) error {
		var err error
		id, err = g.doc.CreateInstance(ctx, spec)
		return err
	})
	return id, err
}

// DeleteElement removes an element.
func (g *Gateway) DeleteElement(ctx context.Context, id domain.ElementID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mutate(ctx, "delete_element", func(ctx context.Context) error {
		return g.doc.DeleteElement(ctx, id)
	})
}

// ShowMessage displays a message to the host's user.
func (g *Gateway) ShowMessage(ctx context.Context, title, body string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.doc.ShowMessage(ctx, title, body)
}

// Snapshot exposes the document snapshot for atomicity checks.
func (g *Gateway) Snapshot(ctx context.Context) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.doc.Snapshot(ctx)
}
