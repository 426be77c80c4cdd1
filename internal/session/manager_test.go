package session_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospitaltm/citas-dashboard/internal/backend"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/filter"
	"github.com/hospitaltm/citas-dashboard/internal/notifications"
	"github.com/hospitaltm/citas-dashboard/internal/pages"
	"github.com/hospitaltm/citas-dashboard/internal/pages/asistencia"
	"github.com/hospitaltm/citas-dashboard/internal/receta"
	"github.com/hospitaltm/citas-dashboard/internal/session"
	"github.com/hospitaltm/citas-dashboard/internal/snapshot"
	apperrors "github.com/hospitaltm/citas-dashboard/pkg/errors"
	"github.com/hospitaltm/citas-dashboard/pkg/i18n"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
	"github.com/hospitaltm/citas-dashboard/pkg/messaging"
	"github.com/hospitaltm/citas-dashboard/pkg/testutil"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memStore struct {
	mu   sync.Mutex
	rows []*snapshot.Snapshot
}

func (m *memStore) Create(_ context.Context, s *snapshot.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, s)
	return nil
}

func (m *memStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type harness struct {
	backend   *testutil.FakeBackend
	publisher *testutil.MockPublisher
	store     *memStore
	clock     *clock
	manager   *session.Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fb := testutil.NewFakeBackend(t)
	client := backend.NewClientWithHTTP(fb.URL(), &http.Client{Timeout: 2 * time.Second}, logger.Nop())
	h := &harness{
		backend:   fb,
		publisher: testutil.NewMockPublisher(),
		store:     &memStore{},
		clock:     &clock{now: time.Date(2025, 6, 15, 10, 0, 0, 0, time.Local)},
	}
	h.manager = session.NewManager(session.Options{
		Client:   client,
		IdleTTL:  10 * time.Minute,
		Variant:  notifications.Panel,
		Recorder: snapshot.NewRecorder(h.store, logger.Nop()),
		Events:   h.publisher,
		Now:      h.clock.Now,
	})
	t.Cleanup(h.manager.Stop)
	return h
}

func (h *harness) serveRates() {
	h.backend.Handle(http.MethodGet, asistencia.Endpoint, http.StatusOK, map[string]any{
		"tasas":        map[string]any{"asistencia": 80.0, "inasistencia": 12.0, "cancelacion": 8.0, "recuperacion": 30.0},
		"recuperacion": map[string]any{"inasistencias_totales": 10, "inasistencias_recuperadas": 3},
	})
}

func TestOpen_DashboardRunsFirstRefresh(t *testing.T) {
	h := newHarness(t)
	h.serveRates()

	s, err := h.manager.Open(context.Background(), session.OpenRequest{Page: pages.Asistencia})
	require.NoError(t, err)

	assert.Equal(t, 1, h.backend.Hits(http.MethodGet, asistencia.Endpoint))
	ctrl, err := s.Controller()
	require.NoError(t, err)
	_, set, cycle := ctrl.Retained()
	assert.Equal(t, uint64(1), cycle)
	assert.Equal(t, "2025-03-15", set.Get("fecha_inicio"))

	assert.Equal(t, 1, h.store.Len())
	h.publisher.AssertEventPublished(t, messaging.EventDashboardRefreshed)
	ev := h.publisher.Events()[0].Payload.(messaging.DashboardRefreshedEvent)
	assert.Equal(t, s.ID, ev.SessionID)
	assert.Equal(t, "2025-06-15", ev.Filters["fecha_fin"])
}

func TestOpen_FailedFirstRefreshStillOpens(t *testing.T) {
	h := newHarness(t)
	h.backend.Handle(http.MethodGet, asistencia.Endpoint, http.StatusInternalServerError, map[string]any{"error": "db down"})

	s, err := h.manager.Open(context.Background(), session.OpenRequest{Page: pages.Asistencia})
	require.NoError(t, err)

	alerts := s.Document().Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, i18n.NewLocalizer(i18n.LocaleSpanish).T("dashboard.error_carga"), alerts[0].Message)
	h.publisher.AssertNoEventsPublished(t)
}

func TestOpen_Rejections(t *testing.T) {
	h := newHarness(t)

	_, err := h.manager.Open(context.Background(), session.OpenRequest{Page: "facturacion"})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = h.manager.Open(context.Background(), session.OpenRequest{Page: pages.Derivacion})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	assert.Equal(t, 0, h.manager.Len())
}

func TestPages(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, []string{"asistencia", "comparativas", "derivacion", "notificaciones", "origen", "receta", "tendencias"}, h.manager.Pages())
}

func TestGetAndClose(t *testing.T) {
	h := newHarness(t)
	s, err := h.manager.Open(context.Background(), session.OpenRequest{Page: pages.Receta, CitaID: "77"})
	require.NoError(t, err)

	got, err := h.manager.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, h.manager.Close(s.ID))
	_, err = h.manager.Get(s.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	assert.True(t, apperrors.Is(h.manager.Close(s.ID), apperrors.ErrNotFound))
}

func TestSession_WrongView(t *testing.T) {
	h := newHarness(t)
	s, err := h.manager.Open(context.Background(), session.OpenRequest{Page: pages.Receta, CitaID: "77"})
	require.NoError(t, err)

	_, err = s.Controller()
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
	_, err = s.Referral()
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
	_, err = h.manager.Refresh(context.Background(), s)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
	_, err = s.Prescription()
	assert.NoError(t, err)
}

func TestControl(t *testing.T) {
	h := newHarness(t)
	h.serveRates()
	s, err := h.manager.Open(context.Background(), session.OpenRequest{Page: pages.Asistencia})
	require.NoError(t, err)

	require.NoError(t, h.manager.Control(context.Background(), s, asistencia.FechaInicio, []string{"2025-05-01"}))
	el, _ := s.Document().Get(asistencia.FechaFin)
	assert.Equal(t, "2025-05-01", el.Attr("min"))

	err = h.manager.Control(context.Background(), s, "no-existe", []string{"x"})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestRefreshCovering(t *testing.T) {
	h := newHarness(t)
	h.serveRates()
	s, err := h.manager.Open(context.Background(), session.OpenRequest{Page: pages.Asistencia})
	require.NoError(t, err)
	_, err = h.manager.Open(context.Background(), session.OpenRequest{Page: pages.Receta, CitaID: "9"})
	require.NoError(t, err)

	var mu sync.Mutex
	var pushed []string
	h.manager.Listen(func(s *session.Session) {
		mu.Lock()
		defer mu.Unlock()
		pushed = append(pushed, s.ID)
	})

	assert.Equal(t, 1, h.manager.RefreshCovering(context.Background(), "2025-04-01"))
	assert.Equal(t, 0, h.manager.RefreshCovering(context.Background(), "2024-12-31"))
	assert.Equal(t, 2, h.backend.Hits(http.MethodGet, asistencia.Endpoint))
	assert.Equal(t, []string{s.ID}, pushed)
}

func TestRefreshCovering_SkipsUnappliedEdits(t *testing.T) {
	h := newHarness(t)
	h.serveRates()
	s, err := h.manager.Open(context.Background(), session.OpenRequest{Page: pages.Asistencia})
	require.NoError(t, err)
	before := len(s.Document().Alerts())

	require.NoError(t, h.manager.Control(context.Background(), s, asistencia.FechaInicio, []string{"2099-01-01"}))

	assert.Equal(t, 0, h.manager.RefreshCovering(context.Background(), "2025-04-01"))
	assert.Equal(t, 1, h.backend.Hits(http.MethodGet, asistencia.Endpoint))
	assert.Len(t, s.Document().Alerts(), before, "no validation alert from a background refresh")

	_, err = h.manager.Refresh(context.Background(), s)
	require.Error(t, err)
	assert.Len(t, s.Document().Alerts(), before+1)
}

func TestCitaEventHandler(t *testing.T) {
	h := newHarness(t)
	h.serveRates()
	_, err := h.manager.Open(context.Background(), session.OpenRequest{Page: pages.Asistencia})
	require.NoError(t, err)
	handler := session.NewCitaEventHandler(h.manager, logger.Nop())

	ev, err := messaging.NewEvent(messaging.EventCitaCancelled, "citas", "", messaging.CitaEvent{CitaID: 5, Fecha: "2025-06-01"})
	require.NoError(t, err)
	require.NoError(t, handler.Handle(context.Background(), ev))
	assert.Equal(t, 2, h.backend.Hits(http.MethodGet, asistencia.Endpoint))

	ev, err = messaging.NewEvent(messaging.EventCitaCreated, "citas", "", messaging.CitaEvent{CitaID: 6, Fecha: "01/06/2025"})
	require.NoError(t, err)
	require.NoError(t, handler.Handle(context.Background(), ev))
	assert.Equal(t, 2, h.backend.Hits(http.MethodGet, asistencia.Endpoint))

	assert.Error(t, handler.Handle(context.Background(), &messaging.Event{Type: messaging.EventCitaCreated, Data: []byte(`[]`)}))
}

func TestCovers(t *testing.T) {
	ranges := []filter.Range{
		{Start: "fecha_inicio1", End: "fecha_fin1"},
		{Start: "fecha_inicio2", End: "fecha_fin2"},
	}
	set := filter.NewSet(
		"fecha_inicio1", "2025-02-01", "fecha_fin1", "2025-02-28",
		"fecha_inicio2", "2025-03-01", "fecha_fin2", "2025-03-15",
	)

	assert.True(t, session.Covers(ranges, set, "2025-02-10"))
	assert.True(t, session.Covers(ranges, set, "2025-03-15"))
	assert.False(t, session.Covers(ranges, set, "2025-03-16"))
	assert.True(t, session.Covers(ranges[:1], filter.NewSet(), "1999-01-01"))
	assert.True(t, session.Covers(nil, set, "2030-01-01"))
}

func TestRefreshCounters(t *testing.T) {
	h := newHarness(t)
	h.backend.Handle(http.MethodGet, notifications.Panel.CounterPath, http.StatusOK, map[string]any{"success": true, "count": 2})
	s, err := h.manager.Open(context.Background(), session.OpenRequest{Page: pages.Notificaciones})
	require.NoError(t, err)
	assert.Equal(t, "2", s.Document().Text(notifications.Badge))

	h.backend.Handle(http.MethodGet, notifications.Panel.CounterPath, http.StatusOK, map[string]any{"success": true, "count": 5})
	h.manager.RefreshCounters(context.Background())
	assert.Equal(t, "5", s.Document().Text(notifications.Badge))
	assert.Equal(t, 2, h.backend.Hits(http.MethodGet, notifications.Panel.CounterPath))
}

func TestSweep_ClosesIdleSessions(t *testing.T) {
	h := newHarness(t)
	idle, err := h.manager.Open(context.Background(), session.OpenRequest{Page: pages.Receta, CitaID: "1"})
	require.NoError(t, err)
	h.clock.Advance(8 * time.Minute)
	active, err := h.manager.Open(context.Background(), session.OpenRequest{Page: pages.Receta, CitaID: "2"})
	require.NoError(t, err)
	h.clock.Advance(3 * time.Minute)
	var closed []string
	h.manager.OnClose(func(id string) { closed = append(closed, id) })

	assert.Equal(t, 1, h.manager.Sweep(h.clock.Now()))
	assert.Equal(t, []string{idle.ID}, closed)
	_, err = h.manager.Get(idle.ID)
	assert.Error(t, err)
	_, err = h.manager.Get(active.ID)
	assert.NoError(t, err)
}

func TestSubmitAttention_PublishesEvent(t *testing.T) {
	h := newHarness(t)
	h.backend.Handle(http.MethodPost, "/atencion/{id}/", http.StatusOK, map[string]any{"success": true})
	s, err := h.manager.Open(context.Background(), session.OpenRequest{Page: pages.Receta, CitaID: "77"})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, h.manager.Control(ctx, s, receta.Diagnostico, []string{"Faringitis"}))
	require.NoError(t, h.manager.Control(ctx, s, receta.Tratamiento, []string{"Reposo"}))
	require.NoError(t, h.manager.Control(ctx, s, receta.CSRFField, []string{"tok"}))

	a, err := h.manager.SubmitAttention(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, "no", a.Prescribir)

	reqs := h.backend.Requests(http.MethodPost, "/atencion/{id}/")
	require.Len(t, reqs, 1)
	assert.Equal(t, "/atencion/77/", reqs[0].Path)
	assert.Equal(t, "tok", reqs[0].Header.Get(backend.CSRFHeader))

	h.publisher.AssertEventPublished(t, messaging.EventRecetaCreated)
	ev := h.publisher.Events()[0].Payload.(messaging.RecetaCreatedEvent)
	assert.Equal(t, "77", ev.CitaID)
	assert.Zero(t, ev.Medicamentos)
}

func TestSession_ContextUsesStoredCookies(t *testing.T) {
	h := newHarness(t)
	s, err := h.manager.Open(context.Background(), session.OpenRequest{
		Page:    pages.Receta,
		CitaID:  "3",
		Cookies: []*http.Cookie{{Name: "sessionid", Value: "abc"}},
	})
	require.NoError(t, err)

	ck := backend.Cookies(s.Context(context.Background()))
	require.Len(t, ck, 1)
	assert.Equal(t, "abc", ck[0].Value)

	req := backend.WithCookies(context.Background(), []*http.Cookie{{Name: "sessionid", Value: "fresh"}})
	assert.Equal(t, "fresh", backend.Cookies(s.Context(req))[0].Value)
}
