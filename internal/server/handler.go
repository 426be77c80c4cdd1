package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hospitaltm/citas-dashboard/internal/dashboard/render"
	"github.com/hospitaltm/citas-dashboard/internal/export"
	"github.com/hospitaltm/citas-dashboard/internal/notifications"
	"github.com/hospitaltm/citas-dashboard/internal/receta"
	"github.com/hospitaltm/citas-dashboard/internal/session"
	"github.com/hospitaltm/citas-dashboard/internal/snapshot"
	"github.com/hospitaltm/citas-dashboard/pkg/dom"
	"github.com/hospitaltm/citas-dashboard/pkg/errors"
	"github.com/hospitaltm/citas-dashboard/pkg/httputil"
	"github.com/hospitaltm/citas-dashboard/pkg/i18n"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
)

// SnapshotLister reads the stored cycles of a session.
type SnapshotLister interface {
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*snapshot.Snapshot, error)
}

// SessionHandler exposes open pages over HTTP.
type SessionHandler struct {
	sessions  *session.Manager
	hub       *Hub
	snapshots SnapshotLister
	upgrader  *websocket.Upgrader
	logger    *logger.Logger
}

// NewSessionHandler creates a handler. snapshots may be nil when persistence is off.
func NewSessionHandler(sessions *session.Manager, hub *Hub, snapshots SnapshotLister, upgrader *websocket.Upgrader, log *logger.Logger) *SessionHandler {
	h := &SessionHandler{
		sessions:  sessions,
		hub:       hub,
		snapshots: snapshots,
		upgrader:  upgrader,
		logger:    log.WithComponent("session-handler"),
	}
	sessions.Listen(func(s *session.Session) { hub.Publish(s.ID, s.Snapshot()) })
	sessions.OnClose(hub.CloseSession)
	return h
}

// SessionResponse is a session with its current document.
type SessionResponse struct {
	*session.Session
	Document dom.Snapshot `json:"document"`
}

// ControlRequest sets one control. Value sets single-value controls, Values
// the selection of a multi-select.
type ControlRequest struct {
	Control string   `json:"control" validate:"required"`
	Value   *string  `json:"value"`
	Values  []string `json:"values"`
}

// RefreshResponse describes a rendered cycle.
type RefreshResponse struct {
	Cycle    uint64            `json:"cycle"`
	Filters  map[string]string `json:"filters"`
	Report   render.Report     `json:"report"`
	Document dom.Snapshot      `json:"document"`
}

// session loads the session of the request and keeps its cookies current.
func (h *SessionHandler) session(r *http.Request) (*session.Session, error) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	s.SetCookies(r.Cookies())
	return s, nil
}

// changed pushes the document and answers with it.
func (h *SessionHandler) changed(w http.ResponseWriter, s *session.Session, status int) {
	snap := s.Snapshot()
	h.hub.Publish(s.ID, snap)
	httputil.JSON(w, status, SessionResponse{Session: s, Document: snap})
}

// fail pushes the document, which may now carry an alert, and answers with the error.
func (h *SessionHandler) fail(w http.ResponseWriter, r *http.Request, s *session.Session, err error) {
	h.hub.Publish(s.ID, s.Snapshot())
	httputil.ErrorLocalized(w, r, err)
}

// Create opens a page
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req session.OpenRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if req.Locale == "" {
		req.Locale = i18n.GetLocaleFromContext(r.Context())
	}
	req.Cookies = r.Cookies()

	s, err := h.sessions.Open(r.Context(), req)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.Created(w, SessionResponse{Session: s, Document: s.Snapshot()})
}

// Pages lists the page names a session can open
func (h *SessionHandler) Pages(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, h.sessions.Pages())
}

// List lists the open sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	list := h.sessions.List()
	httputil.JSONWithMeta(w, http.StatusOK, list, &httputil.Meta{Total: len(list)})
}

// Get returns a session with its document
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, SessionResponse{Session: s, Document: s.Snapshot()})
}

// Delete closes a session and destroys its charts
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(chi.URLParam(r, "id")); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.NoContent(w)
}

// Control writes a control value and runs its handler. A failing handler
// leaves its alert on the page and the request still succeeds.
func (h *SessionHandler) Control(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	var req ControlRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	values := req.Values
	if req.Value != nil {
		values = []string{*req.Value}
	}

	if err := h.sessions.Control(r.Context(), s, req.Control, values); err != nil {
		if errors.KindOf(err) == errors.KindNotFound {
			httputil.ErrorLocalized(w, r, err)
			return
		}
		h.logger.Info().Err(err).Str("session_id", s.ID).Str("control", req.Control).Msg("control handler failed")
	}
	h.changed(w, s, http.StatusOK)
}

// Refresh runs one refresh cycle of a dashboard
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	cycle, err := h.sessions.Refresh(r.Context(), s)
	if err != nil {
		h.fail(w, r, s, err)
		return
	}
	h.hub.Publish(s.ID, cycle.Snapshot)
	httputil.JSONWithMeta(w, http.StatusOK, RefreshResponse{
		Cycle:    cycle.ID,
		Filters:  cycle.Filters.Map(),
		Report:   cycle.Report,
		Document: cycle.Snapshot,
	}, &httputil.Meta{Cycle: cycle.ID})
}

// ActivateTab shows a tab pane and renders its charts
func (h *SessionHandler) ActivateTab(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	ctrl, err := s.Controller()
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if _, err := ctrl.ActivateTab(r.Context(), chi.URLParam(r, "tab")); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	h.changed(w, s, http.StatusOK)
}

// AckAlerts clears the alerts the user has seen
func (h *SessionHandler) AckAlerts(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	var n int
	s.Exclusive(func(doc *dom.Document) { n = doc.AcknowledgeAlerts() })
	h.hub.Publish(s.ID, s.Snapshot())
	httputil.JSON(w, http.StatusOK, map[string]int{"acknowledged": n})
}

// Export downloads the rendered document as a workbook
func (h *SessionHandler) Export(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	var cycle uint64
	if ctrl, err := s.Controller(); err == nil {
		_, _, cycle = ctrl.Retained()
	}
	snap := s.Snapshot()
	data, err := export.Workbook(snap, s.Localizer())
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", s.ID).Msg("failed to build workbook")
		httputil.ErrorLocalized(w, r, errors.Internal("failed to build workbook"))
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(s.Page, cycle, time.Now())))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Snapshots lists the stored cycles of a session, newest first
func (h *SessionHandler) Snapshots(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	limit := snapshot.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit <= 0 {
			httputil.ErrorLocalized(w, r, errors.BadRequest("limit must be a positive number"))
			return
		}
	}
	if h.snapshots == nil {
		httputil.JSONWithMeta(w, http.StatusOK, []*snapshot.Snapshot{}, &httputil.Meta{Limit: limit})
		return
	}
	list, err := h.snapshots.ListBySession(r.Context(), s.ID, limit)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSONWithMeta(w, http.StatusOK, list, &httputil.Meta{Total: len(list), Limit: limit})
}

// Stream upgrades to a websocket carrying every document change
func (h *SessionHandler) Stream(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := h.hub.Serve(w, r, h.upgrader, s.ID, s.Snapshot()); err != nil {
		// the upgrader has already answered the request
		h.logger.Warn().Err(err).Str("session_id", s.ID).Msg("websocket upgrade failed")
	}
}

// SubmitReferral posts the referral form
func (h *SessionHandler) SubmitReferral(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	ref, err := h.sessions.SubmitReferral(r.Context(), s)
	if err != nil {
		h.fail(w, r, s, err)
		return
	}
	h.hub.Publish(s.ID, s.Snapshot())
	httputil.Created(w, ref)
}

// SearchMedications runs a debounced medication search
func (h *SessionHandler) SearchMedications(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	wdg, err := s.Prescription()
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	q := r.URL.Query().Get("q")
	s.Exclusive(func(doc *dom.Document) { doc.SetValue(receta.Buscador, q) })
	results, err := wdg.Search(s.Context(r.Context()), q)
	if err != nil {
		h.fail(w, r, s, err)
		return
	}
	h.hub.Publish(s.ID, s.Snapshot())
	httputil.JSONWithMeta(w, http.StatusOK, results, &httputil.Meta{Total: len(results)})
}

// AddMedicationRequest picks a search result.
type AddMedicationRequest struct {
	MedicamentoID string `json:"medicamento_id" validate:"required"`
}

// AddMedication adds a search result to the prescription
func (h *SessionHandler) AddMedication(w http.ResponseWriter, r *http.Request) {
	s, wdg, ok := h.prescription(w, r)
	if !ok {
		return
	}
	var req AddMedicationRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	line, err := wdg.Add(req.MedicamentoID)
	if err != nil {
		h.fail(w, r, s, err)
		return
	}
	h.hub.Publish(s.ID, s.Snapshot())
	httputil.Created(w, line)
}

// UpdateMedication edits the dose, frequency, duration or notes of a line
func (h *SessionHandler) UpdateMedication(w http.ResponseWriter, r *http.Request) {
	s, wdg, ok := h.prescription(w, r)
	if !ok {
		return
	}
	var req receta.LineUpdate
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	line, err := wdg.Update(chi.URLParam(r, "medID"), req)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	h.hub.Publish(s.ID, s.Snapshot())
	httputil.JSON(w, http.StatusOK, line)
}

// RemoveMedication drops a line from the prescription
func (h *SessionHandler) RemoveMedication(w http.ResponseWriter, r *http.Request) {
	s, wdg, ok := h.prescription(w, r)
	if !ok {
		return
	}
	if err := wdg.Remove(chi.URLParam(r, "medID")); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	h.hub.Publish(s.ID, s.Snapshot())
	httputil.NoContent(w)
}

// PrescribeRequest switches the prescription on or off.
type PrescribeRequest struct {
	Prescribir bool `json:"prescribir"`
}

// SetPrescribe shows or hides the prescription block
func (h *SessionHandler) SetPrescribe(w http.ResponseWriter, r *http.Request) {
	s, wdg, ok := h.prescription(w, r)
	if !ok {
		return
	}
	var req PrescribeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	wdg.SetPrescribe(req.Prescribir)
	h.changed(w, s, http.StatusOK)
}

// SubmitAttention posts the consultation with its prescription
func (h *SessionHandler) SubmitAttention(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	a, err := h.sessions.SubmitAttention(r.Context(), s)
	if err != nil {
		h.fail(w, r, s, err)
		return
	}
	h.hub.Publish(s.ID, s.Snapshot())
	httputil.Created(w, a)
}

func (h *SessionHandler) prescription(w http.ResponseWriter, r *http.Request) (*session.Session, *receta.Widget, bool) {
	s, err := h.session(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return nil, nil, false
	}
	wdg, err := s.Prescription()
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return nil, nil, false
	}
	return s, wdg, true
}

func (h *SessionHandler) center(w http.ResponseWriter, r *http.Request) (*session.Session, *notifications.Center, bool) {
	s, err := h.session(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return nil, nil, false
	}
	c, err := s.Notifications()
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return nil, nil, false
	}
	return s, c, true
}

// SeedRequest is the notification list rendered by the host page.
type SeedRequest struct {
	Items []notifications.Notification `json:"items" validate:"dive"`
}

// SeedNotifications replaces the notification list
func (h *SessionHandler) SeedNotifications(w http.ResponseWriter, r *http.Request) {
	s, c, ok := h.center(w, r)
	if !ok {
		return
	}
	var req SeedRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	c.Seed(req.Items)
	h.changed(w, s, http.StatusOK)
}

// MarkRead marks one notification as read
func (h *SessionHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	s, c, ok := h.center(w, r)
	if !ok {
		return
	}
	if err := c.MarkRead(s.Context(r.Context()), chi.URLParam(r, "notifID")); err != nil {
		h.fail(w, r, s, err)
		return
	}
	h.changed(w, s, http.StatusOK)
}

// Counter refreshes and returns the unread count
func (h *SessionHandler) Counter(w http.ResponseWriter, r *http.Request) {
	s, c, ok := h.center(w, r)
	if !ok {
		return
	}
	n, err := c.Count(s.Context(r.Context()))
	if err != nil {
		h.fail(w, r, s, err)
		return
	}
	h.hub.Publish(s.ID, s.Snapshot())
	httputil.JSON(w, http.StatusOK, map[string]int{"count": n})
}
