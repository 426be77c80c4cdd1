// Package pages holds what every dashboard page shares: the dependencies a
// page is built from and the contract the session layer drives it through.
package pages

import (
	"context"
	"sync"
	"time"

	"github.com/hospitaltm/citas-dashboard/internal/dashboard/controller"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/fetch"
	"github.com/hospitaltm/citas-dashboard/pkg/dom"
	"github.com/hospitaltm/citas-dashboard/pkg/httputil"
	"github.com/hospitaltm/citas-dashboard/pkg/i18n"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
)

// Page names.
const (
	Asistencia   = "asistencia"
	Origen       = "origen"
	Tendencias   = "tendencias"
	Comparativas = "comparativas"

	Derivacion     = "derivacion"
	Receta         = "receta"
	Notificaciones = "notificaciones"
)

// Deps are the per-session inputs of a page.
type Deps struct {
	Getter fetch.Getter
	// Lock is the session lock shared with the refresh controller.
	Lock      sync.Locker
	Localizer *i18n.Localizer
	Logger    *logger.Logger
	Now       func() time.Time
	// Especialidades are the specialty options offered by the filter form.
	Especialidades []dom.Option
}

// WithDefaults fills the zero fields of d.
func (d Deps) WithDefaults() Deps {
	if d.Lock == nil {
		d.Lock = &sync.Mutex{}
	}
	if d.Localizer == nil {
		d.Localizer = i18n.NewLocalizer(i18n.DefaultLocale)
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Today is the current date at midnight.
func (d Deps) Today() time.Time {
	y, m, day := d.Now().Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.Local)
}

// Dashboard is a page the refresh controller can drive.
type Dashboard interface {
	controller.Page
	Document() *dom.Document
	// Changed reacts to a control the user edited. The new value is already
	// in the document. Called without the session lock held.
	Changed(ctx context.Context, control string) error
}

// Date formats t as a filter date.
func Date(t time.Time) string {
	return t.Format(httputil.DateLayout)
}

// SpecialtyOptions prepends the "all" option to the configured specialties.
func SpecialtyOptions(allValue, allText string, especialidades []dom.Option) []dom.Option {
	opts := make([]dom.Option, 0, len(especialidades)+1)
	opts = append(opts, dom.Option{Value: allValue, Text: allText, Selected: true})
	for _, o := range especialidades {
		o.Selected = false
		opts = append(opts, o)
	}
	return opts
}

// LinkDates keeps the min attribute of the end date at the start date.
func LinkDates(doc *dom.Document, lock sync.Locker, start, end string) {
	lock.Lock()
	defer lock.Unlock()
	v, _ := doc.Value(start)
	doc.SetAttr(end, "min", v)
}
