// Package controller runs dashboard refresh cycles: read filters, validate,
// fetch, discard stale responses, then render metrics, tables and charts.
package controller

import (
	"context"
	"sync"

	"github.com/hospitaltm/citas-dashboard/internal/backend"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/chart"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/fetch"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/filter"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/render"
	"github.com/hospitaltm/citas-dashboard/pkg/dom"
	"github.com/hospitaltm/citas-dashboard/pkg/errors"
	"github.com/hospitaltm/citas-dashboard/pkg/i18n"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
)

// Tab is a tab button and the pane it shows.
type Tab struct {
	Name   string
	Button string
	Pane   string
}

// Page is the per-page part of a dashboard: its filters, endpoint and widgets.
type Page interface {
	Name() string
	Reader() filter.Reader
	Request(set filter.Set) fetch.Request
	Indicator(doc *dom.Document) fetch.Indicator
	Updaters() []render.Updater
	// Reset puts numeric displays back to their placeholders after a failed fetch.
	Reset(doc *dom.Document, l *i18n.Localizer)
	Tabs() []Tab
}

// FailureMessager lets a page word its own alert for a failed fetch.
type FailureMessager interface {
	FailureMessage(err error, l *i18n.Localizer) string
}

// Cycle describes a completed refresh.
type Cycle struct {
	ID       uint64
	Page     string
	Filters  filter.Set
	Report   render.Report
	Snapshot dom.Snapshot
}

// Observer is told about every cycle that rendered.
type Observer func(ctx context.Context, c Cycle)

// Options configures a controller.
type Options struct {
	// Lock serializes every interaction on the page. It is released while a fetch is in flight.
	Lock      sync.Locker
	Localizer *i18n.Localizer
	Logger    *logger.Logger
}

// Controller drives one page document.
type Controller struct {
	page      Page
	doc       *dom.Document
	charts    *chart.Manager
	fetcher   *fetch.Fetcher
	sink      *render.Sink
	indicator fetch.Indicator
	seq       fetch.Sequence
	lock      sync.Locker
	l         *i18n.Localizer
	logger    *logger.Logger

	observersMu sync.RWMutex
	observers   []Observer

	// guarded by lock
	payload fetch.Payload
	filters filter.Set
	cycle   uint64
}

// New wires a controller.
func New(page Page, doc *dom.Document, charts *chart.Manager, fetcher *fetch.Fetcher, opts Options) *Controller {
	if opts.Lock == nil {
		opts.Lock = &sync.Mutex{}
	}
	if opts.Localizer == nil {
		opts.Localizer = i18n.NewLocalizer(i18n.DefaultLocale)
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	log := opts.Logger.WithPage(page.Name())
	return &Controller{
		page:      page,
		doc:       doc,
		charts:    charts,
		fetcher:   fetcher,
		sink:      render.NewSink(log, page.Updaters()...),
		indicator: page.Indicator(doc),
		lock:      opts.Lock,
		l:         opts.Localizer,
		logger:    log.WithComponent("controller"),
	}
}

// Observe registers o for every rendered cycle.
func (c *Controller) Observe(o Observer) {
	c.observersMu.Lock()
	defer c.observersMu.Unlock()
	c.observers = append(c.observers, o)
}

// Document returns the page document.
func (c *Controller) Document() *dom.Document {
	return c.doc
}

// Page returns the page definition.
func (c *Controller) Page() Page {
	return c.page
}

// Refresh runs one cycle. Validation failures raise a blocking alert and send
// nothing. A response that arrives after a newer cycle started is dropped with
// a stale error and leaves the document untouched.
func (c *Controller) Refresh(ctx context.Context) (Cycle, error) {
	c.lock.Lock()
	set := c.page.Reader().Read(c.doc)
	if err := c.page.Reader().Validate(set); err != nil {
		c.doc.Alert(dom.AlertWarning, errors.LocalizedMessage(err, c.l), true)
		c.lock.Unlock()
		c.logger.Info().Err(err).Msg("filters rejected")
		return Cycle{}, err
	}
	id := c.seq.Next()
	req := c.page.Request(set)
	req.Indicator = c.indicator
	c.lock.Unlock()

	log := c.logger.WithCycle(id)
	log.Debug().Interface("filters", set.Map()).Str("endpoint", req.Endpoint).Msg("refresh started")

	payload, err := c.fetcher.Fetch(ctx, req)

	c.lock.Lock()
	if !c.seq.IsLatest(id) {
		c.lock.Unlock()
		log.Info().Uint64("latest", c.seq.Current()).Msg("stale response discarded")
		return Cycle{}, errors.Stale(id)
	}
	if err != nil {
		c.doc.Alert(dom.AlertDanger, c.failureMessage(err), false)
		c.page.Reset(c.doc, c.l)
		c.lock.Unlock()
		log.Error().Err(err).Str("kind", string(errors.KindOf(err))).Msg("refresh failed")
		return Cycle{}, err
	}

	report := c.sink.Dispatch(ctx, c.input(payload, set, id, log))
	c.alertRenderFailures(report)
	c.payload, c.filters, c.cycle = payload, set, id
	cycle := Cycle{ID: id, Page: c.page.Name(), Filters: set, Report: report, Snapshot: c.doc.Snapshot()}
	c.lock.Unlock()

	log.Info().
		Int("applied", len(report.Applied)).
		Int("skipped", len(report.Skipped)).
		Int("dropped", len(report.Dropped)).
		Int("failed", len(report.Failed)).
		Msg("refresh rendered")

	c.notify(ctx, cycle)
	return cycle, nil
}

// ActivateTab shows the pane of tab, hides its siblings and renders the
// pane's charts from the last payload.
func (c *Controller) ActivateTab(ctx context.Context, name string) (render.Report, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var active *Tab
	for _, t := range c.page.Tabs() {
		if t.Name == name {
			t := t
			active = &t
		}
	}
	if active == nil {
		return render.Report{}, errors.NotFoundWithKey("tab")
	}

	for _, t := range c.page.Tabs() {
		on := t.Name == name
		c.doc.SetHidden(t.Pane, !on)
		c.doc.Update(t.Button, func(e *dom.Element) {
			e.ToggleClass("active", on)
			if on {
				e.SetAttr("aria-selected", "true")
			} else {
				e.SetAttr("aria-selected", "false")
			}
		})
	}

	if c.payload == nil {
		return render.Report{}, nil
	}
	report := c.sink.DispatchWhere(ctx, c.input(c.payload, c.filters, c.cycle, c.logger.WithCycle(c.cycle)),
		func(u render.Updater) bool { return u.Pane == active.Pane })
	c.alertRenderFailures(report)
	return report, nil
}

// Exclusive runs fn under the page lock.
func (c *Controller) Exclusive(fn func(doc *dom.Document)) {
	c.lock.Lock()
	defer c.lock.Unlock()
	fn(c.doc)
}

// Retained returns the payload and filters of the last rendered cycle.
func (c *Controller) Retained() (fetch.Payload, filter.Set, uint64) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.payload, c.filters, c.cycle
}

// Pending reports whether the controls hold edits not yet applied by a refresh.
func (c *Controller) Pending() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return !c.page.Reader().Read(c.doc).Equal(c.filters)
}

// Close destroys every chart of the page.
func (c *Controller) Close() {
	c.charts.TeardownAll()
}

func (c *Controller) input(p fetch.Payload, set filter.Set, id uint64, log *logger.Logger) *render.Input {
	return &render.Input{
		Doc:     c.doc,
		Payload: p,
		Filters: set,
		Charts:  c.charts,
		L:       c.l,
		Log:     log,
		Cycle:   id,
	}
}

func (c *Controller) failureMessage(err error) string {
	if fm, ok := c.page.(FailureMessager); ok {
		return fm.FailureMessage(err, c.l)
	}
	return DefaultFailureMessage(err, c.l)
}

// DefaultFailureMessage words a fetch failure for the user.
func DefaultFailureMessage(err error, l *i18n.Localizer) string {
	if msg := backend.ServerMessage(err); msg != "" {
		return l.T("dashboard.error_servidor", map[string]string{"error": msg})
	}
	if errors.KindOf(err) == errors.KindPayload {
		return l.T("dashboard.formato_inesperado")
	}
	return l.T("dashboard.error_carga")
}

func (c *Controller) alertRenderFailures(report render.Report) {
	seen := map[errors.Kind]bool{}
	for _, u := range c.sink.Updaters() {
		err, ok := report.Failed[u.Name]
		if !ok || u.Stage != render.StageChart {
			continue
		}
		kind := errors.KindOf(err)
		if (kind == errors.KindRender || kind == errors.KindUnavailable) && !seen[kind] {
			seen[kind] = true
			c.doc.Alert(dom.AlertDanger, errors.LocalizedMessage(err, c.l), false)
		}
	}
}

func (c *Controller) notify(ctx context.Context, cycle Cycle) {
	c.observersMu.RLock()
	observers := append([]Observer(nil), c.observers...)
	c.observersMu.RUnlock()
	for _, o := range observers {
		o(ctx, cycle)
	}
}
