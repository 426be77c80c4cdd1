// Package notifications keeps the unread-notification badge and list in
// step with the backend.
package notifications

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/hospitaltm/citas-dashboard/internal/backend"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/fetch"
	"github.com/hospitaltm/citas-dashboard/internal/pages"
	"github.com/hospitaltm/citas-dashboard/pkg/dom"
	"github.com/hospitaltm/citas-dashboard/pkg/errors"
	"github.com/hospitaltm/citas-dashboard/pkg/i18n"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
)

// Element ids.
const (
	Badge     = "notification-badge"
	List      = "notification-list"
	CSRFField = "csrfmiddlewaretoken"
)

// ClassUnread marks an unread list item.
const ClassUnread = "unread"

// Variant is one of the two notification APIs the backend exposes.
type Variant struct {
	Name string
	// MarkPath is formatted with the notification id when ByPath is set;
	// otherwise the id travels in the body as notificacion_id.
	MarkPath     string
	ByPath       bool
	CounterPath  string
	CounterField string
	// RemoveOnRead drops read items from the list instead of unmarking them.
	RemoveOnRead bool
	// CookieCSRF reads the token from the csrftoken cookie instead of the form field.
	CookieCSRF bool
}

// Panel is the drawer shown on every page.
var Panel = Variant{
	Name:         "panel",
	MarkPath:     "/api/marcar-notificacion-leida/%s/",
	ByPath:       true,
	CounterPath:  "/api/notificaciones-no-leidas-count/",
	CounterField: "count",
	CookieCSRF:   true,
}

// Dashboard is the notification list of the doctor dashboard.
var Dashboard = Variant{
	Name:         "dashboard",
	MarkPath:     "/api/notificaciones/marcar-leida/",
	CounterPath:  "/api/notificaciones/contador/",
	CounterField: "no_leidas",
	RemoveOnRead: true,
}

// VariantByName resolves a configured variant.
func VariantByName(name string) (Variant, error) {
	switch name {
	case "", Panel.Name:
		return Panel, nil
	case Dashboard.Name:
		return Dashboard, nil
	}
	return Variant{}, fmt.Errorf("unknown notification api %q", name)
}

// Client is the part of the backend client the center uses.
type Client interface {
	fetch.Getter
	PostJSON(ctx context.Context, path string, tokens backend.TokenSource, body, out interface{}) error
}

// Notification is one list entry.
type Notification struct {
	ID     string `json:"id" validate:"required"`
	Text   string `json:"text"`
	Link   string `json:"link,omitempty"`
	Unread bool   `json:"unread"`
}

// Deps are the inputs of a center.
type Deps struct {
	Client     Client
	Variant    Variant
	Lock       sync.Locker
	Localizer  *i18n.Localizer
	Logger     *logger.Logger
	CSRFCookie string
	CSRFField  string
}

// Center owns the badge and list of one user.
type Center struct {
	client  Client
	variant Variant
	lock    sync.Locker
	doc     *dom.Document
	l       *i18n.Localizer
	logger  *logger.Logger
	tokens  backend.TokenSource
}

// New builds a center with an empty list and a hidden badge.
func New(d Deps) *Center {
	if d.Lock == nil {
		d.Lock = &sync.Mutex{}
	}
	if d.Localizer == nil {
		d.Localizer = i18n.NewLocalizer(i18n.DefaultLocale)
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.CSRFCookie == "" {
		d.CSRFCookie = "csrftoken"
	}
	if d.CSRFField == "" {
		d.CSRFField = CSRFField
	}
	list := dom.Container(List, "notification-list")
	list.Tag = dom.TagListGroup
	c := &Center{
		client:  d.Client,
		variant: d.Variant,
		lock:    d.Lock,
		l:       d.Localizer,
		logger:  d.Logger.WithComponent("notifications"),
	}
	c.doc = dom.New(pages.Notificaciones,
		dom.Hide(dom.Text(Badge, "0")),
		list,
		dom.Hide(dom.Input(d.CSRFField, "")),
	)
	if d.Variant.CookieCSRF {
		c.tokens = backend.CookieToken{Name: d.CSRFCookie}
	} else {
		c.tokens = backend.FormFieldToken{Doc: c.doc, Field: d.CSRFField}
	}
	return c
}

func (c *Center) Name() string { return pages.Notificaciones }

func (c *Center) Document() *dom.Document { return c.doc }

// Changed has nothing to react to; the list is driven by MarkRead.
func (c *Center) Changed(ctx context.Context, control string) error { return nil }

// Variant returns the API variant in use.
func (c *Center) Variant() Variant { return c.variant }

// Seed replaces the list with ns.
func (c *Center) Seed(ns []Notification) {
	c.lock.Lock()
	defer c.lock.Unlock()
	items := make([]dom.Item, 0, len(ns))
	for _, n := range ns {
		classes := []string{"notification-item"}
		if n.Unread {
			classes = append(classes, ClassUnread)
		}
		fields := map[string]string{"notification_id": n.ID}
		if n.Link != "" {
			fields["link"] = n.Link
		}
		items = append(items, dom.Item{ID: n.ID, Text: n.Text, Classes: classes, Fields: fields})
	}
	c.doc.SetItems(List, items)
}

// Count fetches the unread count and updates the badge. The badge is hidden at zero.
func (c *Center) Count(ctx context.Context) (int, error) {
	raw, err := c.client.Get(ctx, c.variant.CounterPath, nil)
	var p fetch.Payload
	if err == nil {
		if p, err = fetch.Decode(raw); err != nil {
			err = errors.Payload(c.variant.CounterPath, err)
		}
	}
	if err == nil {
		if v, present := p.Lookup("success"); present {
			if ok, isBool := v.(bool); isBool && !ok {
				err = errors.Payload(c.variant.CounterPath, fmt.Errorf("counter reported failure"))
			}
		}
	}
	var n int
	if err == nil {
		var ok bool
		if n, ok = p.Int(c.variant.CounterField); !ok {
			err = errors.Payload(c.variant.CounterField, nil)
		}
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("variant", c.variant.Name).Msg("failed to refresh notification counter")
		return 0, err
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	c.doc.SetText(Badge, strconv.Itoa(n))
	c.doc.SetHidden(Badge, n <= 0)
	return n, nil
}

// MarkRead marks notification id as read, updates the list and refreshes the counter.
func (c *Center) MarkRead(ctx context.Context, id string) error {
	path := c.variant.MarkPath
	var body interface{} = struct{}{}
	if c.variant.ByPath {
		path = fmt.Sprintf(path, url.PathEscape(id))
	} else {
		body = map[string]string{"notificacion_id": id}
	}

	if err := c.client.PostJSON(ctx, path, c.tokens, body, nil); err != nil {
		c.logger.Error().Err(err).Str("notificacion", id).Msg("failed to mark notification read")
		c.lock.Lock()
		c.doc.Alert(dom.AlertDanger, c.l.T("notificaciones.error"), false)
		c.lock.Unlock()
		return err
	}

	c.lock.Lock()
	c.doc.Update(List, func(e *dom.Element) {
		kept := e.Items[:0]
		for _, it := range e.Items {
			if it.ID == id {
				if c.variant.RemoveOnRead {
					continue
				}
				it.Classes = without(it.Classes, ClassUnread)
			}
			kept = append(kept, it)
		}
		e.Items = kept
	})
	c.lock.Unlock()

	_, err := c.Count(ctx)
	return err
}

func without(classes []string, class string) []string {
	out := make([]string, 0, len(classes))
	for _, c := range classes {
		if c != class {
			out = append(out, c)
		}
	}
	return out
}
