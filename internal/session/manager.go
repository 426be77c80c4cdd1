package session

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hospitaltm/citas-dashboard/internal/backend"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/chart"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/controller"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/fetch"
	"github.com/hospitaltm/citas-dashboard/internal/derivacion"
	"github.com/hospitaltm/citas-dashboard/internal/notifications"
	"github.com/hospitaltm/citas-dashboard/internal/pages"
	"github.com/hospitaltm/citas-dashboard/internal/pages/asistencia"
	"github.com/hospitaltm/citas-dashboard/internal/pages/comparativas"
	"github.com/hospitaltm/citas-dashboard/internal/pages/origen"
	"github.com/hospitaltm/citas-dashboard/internal/pages/tendencias"
	"github.com/hospitaltm/citas-dashboard/internal/receta"
	"github.com/hospitaltm/citas-dashboard/internal/snapshot"
	"github.com/hospitaltm/citas-dashboard/pkg/dom"
	"github.com/hospitaltm/citas-dashboard/pkg/errors"
	"github.com/hospitaltm/citas-dashboard/pkg/i18n"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
	"github.com/hospitaltm/citas-dashboard/pkg/messaging"
)

// Client is the backend client every page is built on.
type Client interface {
	fetch.Getter
	PostJSON(ctx context.Context, path string, tokens backend.TokenSource, body, out interface{}) error
}

// Publisher emits integration events.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// NopPublisher drops every event. Used when RabbitMQ is disabled.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }

// Listener is told when a session document changed outside a request.
type Listener func(s *Session)

// Options configures a manager.
type Options struct {
	Client         Client
	ChartSettle    time.Duration
	IdleTTL        time.Duration
	SearchDebounce time.Duration
	Locale         string
	Variant        notifications.Variant
	CSRFCookie     string
	CSRFField      string
	Recorder       *snapshot.Recorder
	Events         Publisher
	Logger         *logger.Logger
	Now            func() time.Time
}

// OpenRequest describes a page to open.
type OpenRequest struct {
	Page   string `json:"page" validate:"required"`
	CitaID string `json:"cita_id"`
	Locale string `json:"locale" validate:"omitempty,oneof=es en"`
	// Especialidades are the specialty options of the host page.
	Especialidades []dom.Option   `json:"especialidades"`
	Cookies        []*http.Cookie `json:"-"`
}

type builder func(m *Manager, s *Session, req OpenRequest) error

var dashboards = map[string]func(pages.Deps) pages.Dashboard{
	pages.Asistencia:   func(d pages.Deps) pages.Dashboard { return asistencia.New(d) },
	pages.Origen:       func(d pages.Deps) pages.Dashboard { return origen.New(d) },
	pages.Tendencias:   func(d pages.Deps) pages.Dashboard { return tendencias.New(d) },
	pages.Comparativas: func(d pages.Deps) pages.Dashboard { return comparativas.New(d) },
}

// Manager is the registry of open sessions.
type Manager struct {
	opts     Options
	builders map[string]builder
	logger   *logger.Logger

	mu        sync.RWMutex
	sessions  map[string]*Session
	listeners []Listener
	closers   []func(id string)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates an empty registry.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Events == nil {
		opts.Events = NopPublisher{}
	}
	if opts.Recorder == nil {
		opts.Recorder = snapshot.NewRecorder(snapshot.NopStore{}, opts.Logger)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Locale == "" {
		opts.Locale = i18n.DefaultLocale
	}
	m := &Manager{
		opts:     opts,
		logger:   opts.Logger.WithComponent("sessions"),
		sessions: make(map[string]*Session),
	}
	m.builders = map[string]builder{
		pages.Derivacion:     (*Manager).openReferral,
		pages.Receta:         (*Manager).openPrescription,
		pages.Notificaciones: (*Manager).openNotifications,
	}
	for name := range dashboards {
		m.builders[name] = (*Manager).openDashboard
	}
	return m
}

// Pages lists the page names that can be opened.
func (m *Manager) Pages() []string {
	names := make([]string, 0, len(m.builders))
	for name := range m.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Listen registers l for background document changes.
func (m *Manager) Listen(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// OnClose registers fn to run after a session is closed, including by the sweeper.
func (m *Manager) OnClose(fn func(id string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closers = append(m.closers, fn)
}

// Broadcast tells every listener that s changed.
func (m *Manager) Broadcast(s *Session) {
	m.mu.RLock()
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.RUnlock()
	for _, l := range listeners {
		l(s)
	}
}

// Open builds the page and registers the session. Dashboards run their first
// refresh and notification centers their first count before Open returns; a
// failure there is shown on the page and does not fail the open.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	build, ok := m.builders[req.Page]
	if !ok {
		return nil, errors.InvalidInput("sesiones.pagina_desconocida", map[string]string{"pagina": req.Page})
	}
	if (req.Page == pages.Derivacion || req.Page == pages.Receta) && req.CitaID == "" {
		return nil, errors.InvalidInput("sesiones.cita_requerida", map[string]string{"pagina": req.Page})
	}
	if req.Locale == "" {
		req.Locale = m.opts.Locale
	}

	now := m.opts.Now()
	s := &Session{
		ID:        uuid.New().String(),
		Page:      req.Page,
		CitaID:    req.CitaID,
		Locale:    req.Locale,
		CreatedAt: now,
		lock:      &sync.Mutex{},
		l:         i18n.NewLocalizer(req.Locale),
		lastSeen:  now,
	}
	s.SetCookies(req.Cookies)
	if err := build(m, s, req); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.logger.Info().Str("session_id", s.ID).Str("page", s.Page).Msg("session opened")

	ctx = s.Context(ctx)
	switch {
	case s.ctrl != nil:
		if _, err := s.ctrl.Refresh(ctx); err != nil {
			m.logger.Warn().Err(err).Str("session_id", s.ID).Msg("initial refresh failed")
		}
	case s.Page == pages.Notificaciones:
		c, _ := s.Notifications()
		if _, err := c.Count(ctx); err != nil {
			m.logger.Warn().Err(err).Str("session_id", s.ID).Msg("initial count failed")
		}
	}
	return s, nil
}

func (m *Manager) log(s *Session) *logger.Logger {
	return m.opts.Logger.WithSession(s.ID)
}

func (m *Manager) openDashboard(s *Session, req OpenRequest) error {
	log := m.log(s)
	page := dashboards[req.Page](pages.Deps{
		Getter:         m.opts.Client,
		Lock:           s.lock,
		Localizer:      s.l,
		Logger:         log,
		Now:            m.opts.Now,
		Especialidades: req.Especialidades,
	})
	doc := page.Document()
	charts := chart.NewManager(doc, chart.NewDocumentFactory(doc), m.opts.ChartSettle, log)
	s.ctrl = controller.New(page, doc, charts, fetch.New(m.opts.Client, log), controller.Options{
		Lock:      s.lock,
		Localizer: s.l,
		Logger:    log,
	})
	s.view = page
	s.ctrl.Observe(m.opts.Recorder.Observer(s.ID))
	s.ctrl.Observe(m.refreshedObserver(s))
	return nil
}

func (m *Manager) openReferral(s *Session, req OpenRequest) error {
	s.view = derivacion.New(derivacion.Deps{
		Client:         m.opts.Client,
		Lock:           s.lock,
		Localizer:      s.l,
		Logger:         m.log(s),
		Now:            m.opts.Now,
		CitaID:         req.CitaID,
		Especialidades: req.Especialidades,
	})
	return nil
}

func (m *Manager) openPrescription(s *Session, req OpenRequest) error {
	s.view = receta.New(receta.Deps{
		Client:    m.opts.Client,
		Lock:      s.lock,
		Localizer: s.l,
		Logger:    m.log(s),
		CitaID:    req.CitaID,
		Debounce:  m.opts.SearchDebounce,
	})
	return nil
}

func (m *Manager) openNotifications(s *Session, _ OpenRequest) error {
	s.view = notifications.New(notifications.Deps{
		Client:     m.opts.Client,
		Variant:    m.opts.Variant,
		Lock:       s.lock,
		Localizer:  s.l,
		Logger:     m.log(s),
		CSRFCookie: m.opts.CSRFCookie,
		CSRFField:  m.opts.CSRFField,
	})
	return nil
}

func (m *Manager) refreshedObserver(s *Session) controller.Observer {
	return func(ctx context.Context, c controller.Cycle) {
		err := m.opts.Events.Publish(ctx, messaging.EventDashboardRefreshed, messaging.DashboardRefreshedEvent{
			SessionID: s.ID,
			Page:      c.Page,
			Cycle:     c.ID,
			Filters:   c.Filters.Map(),
		})
		if err != nil {
			m.logger.Error().Err(err).Str("session_id", s.ID).Uint64("cycle", c.ID).Msg("failed to publish refresh event")
		}
	}
}

// Get returns a session and marks it used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.NotFoundWithKey("session")
	}
	s.Touch(m.opts.Now())
	return s, nil
}

// List returns the open sessions, oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Len is the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close removes a session and destroys its charts.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	closers := append([]func(string){}, m.closers...)
	m.mu.Unlock()
	if !ok {
		return errors.NotFoundWithKey("session")
	}
	if s.ctrl != nil {
		s.ctrl.Close()
	}
	for _, fn := range closers {
		fn(id)
	}
	m.logger.Info().Str("session_id", id).Str("page", s.Page).Msg("session closed")
	return nil
}

// Control writes a value into a control and runs its handler.
func (m *Manager) Control(ctx context.Context, s *Session, control string, values []string) error {
	var ok bool
	s.Exclusive(func(doc *dom.Document) {
		if !doc.Has(control) {
			return
		}
		ok = true
		e, _ := doc.Get(control)
		if e.Attr("multiple") != "" {
			doc.SetValues(control, values)
			return
		}
		v := ""
		if len(values) > 0 {
			v = values[0]
		}
		doc.SetValue(control, v)
	})
	if !ok {
		return errors.NotFoundWithKey("control")
	}
	m.log(s).Debug().Str("control", control).Strs("values", values).Msg("control changed")
	return s.view.Changed(s.Context(ctx), control)
}

// Refresh runs one cycle of a dashboard session.
func (m *Manager) Refresh(ctx context.Context, s *Session) (controller.Cycle, error) {
	ctrl, err := s.Controller()
	if err != nil {
		return controller.Cycle{}, err
	}
	return ctrl.Refresh(s.Context(ctx))
}

// SubmitReferral posts the referral form and announces it.
func (m *Manager) SubmitReferral(ctx context.Context, s *Session) (derivacion.Referral, error) {
	f, err := s.Referral()
	if err != nil {
		return derivacion.Referral{}, err
	}
	r, err := f.Submit(s.Context(ctx))
	if err != nil {
		return r, err
	}
	m.publish(ctx, s, messaging.EventDerivacionCreated, messaging.DerivacionCreatedEvent{
		SessionID:      s.ID,
		CitaID:         s.CitaID,
		EspecialidadID: r.Especialidad,
		MedicoID:       r.Medico,
		Fecha:          r.Fecha,
	})
	return r, nil
}

// SubmitAttention posts the consultation with its prescription and announces it.
func (m *Manager) SubmitAttention(ctx context.Context, s *Session) (receta.Attention, error) {
	w, err := s.Prescription()
	if err != nil {
		return receta.Attention{}, err
	}
	a, err := w.Submit(s.Context(ctx))
	if err != nil {
		return a, err
	}
	m.publish(ctx, s, messaging.EventRecetaCreated, messaging.RecetaCreatedEvent{
		SessionID:    s.ID,
		CitaID:       s.CitaID,
		Medicamentos: len(a.Medicamentos),
	})
	return a, nil
}

func (m *Manager) publish(ctx context.Context, s *Session, eventType string, data interface{}) {
	if err := m.opts.Events.Publish(ctx, eventType, data); err != nil {
		m.logger.Error().Err(err).Str("session_id", s.ID).Str("event", eventType).Msg("failed to publish event")
	}
}

// RefreshCovering refreshes every dashboard whose last filters include fecha
// (YYYY-MM-DD) and returns how many were refreshed. Dashboards that never
// rendered, or whose controls carry unapplied edits, are left alone.
func (m *Manager) RefreshCovering(ctx context.Context, fecha string) int {
	n := 0
	for _, s := range m.List() {
		if s.ctrl == nil {
			continue
		}
		_, set, cycle := s.ctrl.Retained()
		if cycle == 0 || !Covers(s.ctrl.Page().Reader().Ranges, set, fecha) {
			continue
		}
		if s.ctrl.Pending() {
			m.log(s).Debug().Str("fecha", fecha).Msg("controls edited since last refresh, event refresh skipped")
			continue
		}
		if _, err := s.ctrl.Refresh(s.Context(ctx)); err != nil {
			m.log(s).Warn().Err(err).Str("fecha", fecha).Msg("event refresh failed")
		}
		m.Broadcast(s)
		n++
	}
	return n
}

// RefreshCounters re-counts the unread notifications of every notification session.
func (m *Manager) RefreshCounters(ctx context.Context) {
	for _, s := range m.List() {
		c, err := s.Notifications()
		if err != nil {
			continue
		}
		if _, err := c.Count(s.Context(ctx)); err != nil {
			m.log(s).Warn().Err(err).Msg("counter refresh failed")
			continue
		}
		m.Broadcast(s)
	}
}

// Sweep closes the sessions idle for longer than the TTL and returns how many.
func (m *Manager) Sweep(now time.Time) int {
	if m.opts.IdleTTL <= 0 {
		return 0
	}
	n := 0
	for _, s := range m.List() {
		if now.Sub(s.LastSeen()) > m.opts.IdleTTL {
			if err := m.Close(s.ID); err == nil {
				n++
			}
		}
	}
	if n > 0 {
		m.logger.Info().Int("closed", n).Msg("idle sessions swept")
	}
	return n
}

// Start sweeps idle sessions every interval until Stop.
func (m *Manager) Start(ctx context.Context, interval time.Duration) {
	if m.opts.IdleTTL <= 0 || interval <= 0 {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep(m.opts.Now())
			}
		}
	}()
}

// Stop halts the sweeper and closes every session.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
		m.cancel = nil
	}
	for _, s := range m.List() {
		_ = m.Close(s.ID)
	}
}
