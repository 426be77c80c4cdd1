// Package session keeps the open pages of every browser: one document, its
// lock and its widgets per session, plus the background work that keeps
// them current.
package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/hospitaltm/citas-dashboard/internal/backend"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/controller"
	"github.com/hospitaltm/citas-dashboard/internal/derivacion"
	"github.com/hospitaltm/citas-dashboard/internal/notifications"
	"github.com/hospitaltm/citas-dashboard/internal/receta"
	"github.com/hospitaltm/citas-dashboard/pkg/dom"
	"github.com/hospitaltm/citas-dashboard/pkg/errors"
	"github.com/hospitaltm/citas-dashboard/pkg/i18n"
)

// View is an open page.
type View interface {
	Name() string
	Document() *dom.Document
	// Changed runs the handler of a control the user edited.
	Changed(ctx context.Context, control string) error
}

// Session is one open page of one browser.
type Session struct {
	ID        string    `json:"id"`
	Page      string    `json:"page"`
	CitaID    string    `json:"cita_id,omitempty"`
	Locale    string    `json:"locale"`
	CreatedAt time.Time `json:"created_at"`

	lock *sync.Mutex
	view View
	ctrl *controller.Controller
	l    *i18n.Localizer

	mu       sync.Mutex
	cookies  []*http.Cookie
	lastSeen time.Time
}

// View returns the page the session shows.
func (s *Session) View() View { return s.view }

// Localizer returns the session's localizer.
func (s *Session) Localizer() *i18n.Localizer { return s.l }

// Document returns the page document.
func (s *Session) Document() *dom.Document { return s.view.Document() }

// Snapshot copies the document.
func (s *Session) Snapshot() dom.Snapshot { return s.view.Document().Snapshot() }

// Controller returns the refresh controller of a dashboard session.
func (s *Session) Controller() (*controller.Controller, error) {
	if s.ctrl == nil {
		return nil, s.wrongView()
	}
	return s.ctrl, nil
}

// Referral returns the form of a referral session.
func (s *Session) Referral() (*derivacion.Form, error) {
	f, ok := s.view.(*derivacion.Form)
	if !ok {
		return nil, s.wrongView()
	}
	return f, nil
}

// Prescription returns the widget of a prescription session.
func (s *Session) Prescription() (*receta.Widget, error) {
	w, ok := s.view.(*receta.Widget)
	if !ok {
		return nil, s.wrongView()
	}
	return w, nil
}

// Notifications returns the center of a notification session.
func (s *Session) Notifications() (*notifications.Center, error) {
	c, ok := s.view.(*notifications.Center)
	if !ok {
		return nil, s.wrongView()
	}
	return c, nil
}

func (s *Session) wrongView() error {
	return errors.ConflictWithKey("sesiones.vista_incorrecta", map[string]string{"pagina": s.Page})
}

// Exclusive runs fn under the page lock.
func (s *Session) Exclusive(fn func(doc *dom.Document)) {
	s.lock.Lock()
	defer s.lock.Unlock()
	fn(s.view.Document())
}

// SetCookies replaces the browser cookies used for background backend calls.
// An empty list keeps the previous ones.
func (s *Session) SetCookies(cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookies = append([]*http.Cookie(nil), cookies...)
}

// Context carries the session cookies unless ctx already holds request cookies.
func (s *Session) Context(ctx context.Context) context.Context {
	if len(backend.Cookies(ctx)) > 0 {
		return ctx
	}
	s.mu.Lock()
	cookies := s.cookies
	s.mu.Unlock()
	return backend.WithCookies(ctx, cookies)
}

// Touch marks the session as used at t.
func (s *Session) Touch(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = t
}

// LastSeen is when the session was last used.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}
