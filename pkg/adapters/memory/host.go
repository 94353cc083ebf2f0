// Package memory provides an in-memory ports.HostDocument used in tests
// and demos. Transactions snapshot the whole document and restore it on
// rollback, so atomicity checks can compare byte-for-byte snapshots.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/datum/pkg/domain"
	"github.com/aretw0/datum/pkg/ports"
)

type element struct {
	Ref    domain.ElementRef  `json:"ref"`
	Params []domain.Parameter `json:"params"`
}

// Message is a recorded ShowMessage call.
type Message struct {
	Title string
	Body  string
}

// Host implements ports.HostDocument in memory. Safe for concurrent use.
type Host struct {
	mu        sync.RWMutex
	elements  map[domain.ElementID]*element
	order     []domain.ElementID
	selection []domain.ElementID
	catalog   map[string][]string
	messages  []Message
	nextID    int
}

// NewHost creates an empty document.
func NewHost() *Host {
	return &Host{
		elements: make(map[domain.ElementID]*element),
		catalog:  make(map[string][]string),
	}
}

// SeedType adds type names to a category's catalog.
func (h *Host) SeedType(category string, typeNames ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.catalog[category] = append(h.catalog[category], typeNames...)
}

// SeedElement inserts an element directly, bypassing transactions (test setup).
func (h *Host) SeedElement(ref domain.ElementRef, params ...domain.Parameter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.elements[ref.ID] = &element{Ref: ref, Params: params}
	h.order = append(h.order, ref.ID)
}

// SetSelection replaces the current user selection.
func (h *Host) SetSelection(ids ...domain.ElementID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.selection = slices.Clone(ids)
}

// Messages returns recorded ShowMessage calls.
func (h *Host) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.messages)
}

func (h *Host) SelectedElements(ctx context.Context) ([]domain.ElementRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []domain.ElementRef
	for _, id := range h.selection {
		if el, ok := h.elements[id]; ok {
			out = append(out, el.Ref)
		}
	}
	return out, nil
}

func (h *Host) ElementsByCategory(ctx context.Context, category string) ([]domain.ElementRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []domain.ElementRef
	for _, id := range h.order {
		if el := h.elements[id]; el != nil && el.Ref.Category == category {
			out = append(out, el.Ref)
		}
	}
	return out, nil
}

func (h *Host) ElementsByType(ctx context.Context, typeName string) ([]domain.ElementRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []domain.ElementRef
	for _, id := range h.order {
		if el := h.elements[id]; el != nil && el.Ref.TypeName == typeName {
			out = append(out, el.Ref)
		}
	}
	return out, nil
}

func (h *Host) Element(ctx context.Context, id domain.ElementID) (domain.ElementRef, error) {
	if err := ctx.Err(); err != nil {
		return domain.ElementRef{}, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	el, ok := h.elements[id]
	if !ok {
		return domain.ElementRef{}, domain.ErrElementNotFound
	}
	return el.Ref, nil
}

func (h *Host) KnownTypes(ctx context.Context, category string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.catalog[category]), nil
}

func (h *Host) ElementParameters(ctx context.Context, id domain.ElementID) ([]domain.Parameter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	el, ok := h.elements[id]
	if !ok {
		return nil, domain.ErrElementNotFound
	}
	return slices.Clone(el.Params), nil
}

func (h *Host) SetElementParameter(ctx context.Context, id domain.ElementID, name string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	el, ok := h.elements[id]
	if !ok {
		return domain.ErrElementNotFound
	}
	for i := range el.Params {
		if el.Params[i].Name != name {
			continue
		}
		if el.Params[i].ReadOnly {
			return domain.ErrParameterReadOnly
		}
		el.Params[i].Value = value
		return nil
	}
	return domain.ErrParameterNotFound
}

func (h *Host) CreateInstance(ctx context.Context, spec domain.InstanceSpec) (domain.ElementID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := domain.ElementID(fmt.Sprintf("elem-%d", h.nextID))
	el := &element{
		Ref: domain.ElementRef{
			ID:       id,
			Category: spec.Category,
			TypeName: spec.TypeName,
			Name:     spec.Name,
		},
	}
	names := make([]string, 0, len(spec.Parameters))
	for name := range spec.Parameters {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		el.Params = append(el.Params, domain.Parameter{Name: name, Value: spec.Parameters[name]})
	}

	h.elements[id] = el
	h.order = append(h.order, id)
	return id, nil
}

func (h *Host) DeleteElement(ctx context.Context, id domain.ElementID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.elements[id]; !ok {
		return domain.ErrElementNotFound
	}
	delete(h.elements, id)
	h.order = slices.DeleteFunc(h.order, func(e domain.ElementID) bool { return e == id })
	h.selection = slices.DeleteFunc(h.selection, func(e domain.ElementID) bool { return e == id })
	return nil
}

func (h *Host) ShowMessage(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, Message{Title: title, Body: body})
	return nil
}

// Snapshot returns a deterministic JSON rendering of the document state.
func (h *Host) Snapshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	type row struct {
		Ref    domain.ElementRef  `json:"ref"`
		Params []domain.Parameter `json:"params"`
	}
	rows := make([]row, 0, len(h.order))
	for _, id := range h.order {
		el := h.elements[id]
		rows = append(rows, row{Ref: el.Ref, Params: el.Params})
	}
	return json.Marshal(rows)
}

// Begin snapshots the document; Rollback restores the snapshot.
func (h *Host) Begin(ctx context.Context, name string) (ports.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	saved := h.clone()
	h.mu.RUnlock()
	return &transaction{host: h, saved: saved}, nil
}

// clone deep-copies the mutable document state; callers hold the lock.
func (h *Host) clone() *Host {
	c := &Host{
		elements: make(map[domain.ElementID]*element, len(h.elements)),
		order:    slices.Clone(h.order),
		catalog:  make(map[string][]string, len(h.catalog)),
		nextID:   h.nextID,
	}
	c.selection = slices.Clone(h.selection)
	for id, el := range h.elements {
		c.elements[id] = &element{Ref: el.Ref, Params: slices.Clone(el.Params)}
	}
	for cat, types := range h.catalog {
		c.catalog[cat] = slices.Clone(types)
	}
	return c
}

type transaction struct {
	host  *Host
	saved *Host
	done  bool
}

func (t *transaction) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already resolved")
	}
	t.done = true
	t.saved = nil
	return nil
}

func (t *transaction) Rollback() error {
	if t.done {
		return fmt.Errorf("transaction already resolved")
	}
	t.done = true

	t.host.mu.Lock()
	defer t.host.mu.Unlock()
	t.host.elements = t.saved.elements
	t.host.order = t.saved.order
	t.host.selection = t.saved.selection
	t.host.catalog = t.saved.catalog
	t.host.nextID = t.saved.nextID
	return nil
}
