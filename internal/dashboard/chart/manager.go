// Package chart owns the chart widgets of a page: at most one live widget
// per canvas, destroyed before it is replaced.
package chart

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/hospitaltm/citas-dashboard/pkg/dom"
	"github.com/hospitaltm/citas-dashboard/pkg/errors"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
)

// DefaultSettleDelay keeps a canvas busy after a replace so pending redraws lapse.
const DefaultSettleDelay = 100 * time.Millisecond

// ErrCanvasMissing is the cause of a render error for an absent canvas.
var ErrCanvasMissing = stderrors.New("canvas element missing")

// Outcome is what a Render call did.
type Outcome int

const (
	// OutcomeCreated means a new widget is live on the canvas.
	OutcomeCreated Outcome = iota
	// OutcomeCleared means there was nothing to draw; the canvas is idle.
	OutcomeCleared
	// OutcomeDeferred means the owning pane is hidden; render again on activation.
	OutcomeDeferred
	// OutcomeDropped means a replace was already running on the canvas.
	OutcomeDropped
	// OutcomeFailed means the widget could not be built.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeCleared:
		return "cleared"
	case OutcomeDeferred:
		return "deferred"
	case OutcomeDropped:
		return "dropped"
	default:
		return "failed"
	}
}

// Request asks for canvas CanvasID to show Config. PaneID, when set, is the
// tab pane that must be visible for the widget to be built.
type Request struct {
	CanvasID string
	PaneID   string
	Config   *Config
}

type entry struct {
	widget Widget
	busy   bool
}

// Manager is the per-page chart registry.
type Manager struct {
	mu      sync.Mutex
	doc     *dom.Document
	factory Factory
	settle  time.Duration
	entries map[string]*entry
	logger  *logger.Logger
}

// NewManager creates a registry for doc. factory may be nil.
func NewManager(doc *dom.Document, factory Factory, settle time.Duration, log *logger.Logger) *Manager {
	return &Manager{
		doc:     doc,
		factory: factory,
		settle:  settle,
		entries: make(map[string]*entry),
		logger:  log.WithComponent("chart"),
	}
}

// Render replaces the widget on req.CanvasID. A canvas whose pane is hidden
// is left untouched and does not become busy.
func (m *Manager) Render(ctx context.Context, req Request) (Outcome, error) {
	m.mu.Lock()
	e := m.entry(req.CanvasID)
	if e.busy {
		m.mu.Unlock()
		m.logger.Debug().Str("canvas", req.CanvasID).Msg("chart busy, render dropped")
		return OutcomeDropped, nil
	}
	if req.Config.HasData() && req.PaneID != "" && m.doc.IsHidden(req.PaneID) {
		m.mu.Unlock()
		return OutcomeDeferred, nil
	}
	touched := e.widget != nil
	m.destroyLocked(e)
	outcome, err := m.buildLocked(req, e)
	if outcome == OutcomeCreated {
		touched = true
	}
	e.busy = touched
	m.mu.Unlock()

	if touched {
		m.scheduleRelease(req.CanvasID)
	}

	if err != nil {
		m.logger.Error().Err(err).Str("canvas", req.CanvasID).Msg("chart render failed")
	}
	return outcome, err
}

func (m *Manager) buildLocked(req Request, e *entry) (Outcome, error) {
	if !req.Config.HasData() {
		return OutcomeCleared, nil
	}
	if !m.doc.Has(req.CanvasID) {
		return OutcomeFailed, errors.Render(req.CanvasID, ErrCanvasMissing)
	}
	if m.factory == nil {
		return OutcomeFailed, errors.Unavailable("chart factory")
	}

	w, err := m.create(req)
	if err != nil {
		return OutcomeFailed, errors.Render(req.CanvasID, err)
	}
	e.widget = w
	return OutcomeCreated, nil
}

func (m *Manager) create(req Request) (w Widget, err error) {
	defer func() {
		if r := recover(); r != nil {
			w, err = nil, fmt.Errorf("widget construction panicked: %v", r)
		}
	}()
	return m.factory.Create(req.CanvasID, req.Config)
}

func (m *Manager) scheduleRelease(canvasID string) {
	if m.settle <= 0 {
		m.release(canvasID)
		return
	}
	time.AfterFunc(m.settle, func() { m.release(canvasID) })
}

func (m *Manager) release(canvasID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[canvasID]; ok {
		e.busy = false
	}
}

// Teardown destroys the widget on canvasID, if any.
func (m *Manager) Teardown(canvasID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[canvasID]; ok {
		m.destroyLocked(e)
	}
}

// TeardownAll destroys every live widget.
func (m *Manager) TeardownAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		m.destroyLocked(e)
	}
}

// Live reports whether canvasID has a widget.
func (m *Manager) Live(canvasID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[canvasID]
	return ok && e.widget != nil
}

// Busy reports whether a replace on canvasID is still settling.
func (m *Manager) Busy(canvasID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[canvasID]
	return ok && e.busy
}

// LiveCount returns how many canvases have a widget.
func (m *Manager) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.widget != nil {
			n++
		}
	}
	return n
}

func (m *Manager) entry(canvasID string) *entry {
	e, ok := m.entries[canvasID]
	if !ok {
		e = &entry{}
		m.entries[canvasID] = e
	}
	return e
}

func (m *Manager) destroyLocked(e *entry) {
	if e.widget == nil {
		return
	}
	e.widget.Destroy()
	e.widget = nil
}
