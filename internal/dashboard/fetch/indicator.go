package fetch

import (
	"sync"

	"github.com/hospitaltm/citas-dashboard/pkg/dom"
)

// Indicator is a loading marker shown while a request is in flight.
// Show and Hide nest: the marker clears when every Show has been matched.
type Indicator interface {
	Show()
	Hide()
}

type refcount struct {
	mu sync.Mutex
	n  int
}

// inc returns true on the 0 -> 1 transition.
func (r *refcount) inc() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n++
	return r.n == 1
}

// dec returns true on the 1 -> 0 transition.
func (r *refcount) dec() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n == 0 {
		return false
	}
	r.n--
	return r.n == 0
}

// Overlay unhides a set of elements (an overlay, a spinner row) while loading.
type Overlay struct {
	doc *dom.Document
	ids []string
	rc  refcount
}

// NewOverlay builds an overlay indicator over ids.
func NewOverlay(doc *dom.Document, ids ...string) *Overlay {
	return &Overlay{doc: doc, ids: ids}
}

// Show implements Indicator.
func (o *Overlay) Show() {
	if o.rc.inc() {
		for _, id := range o.ids {
			o.doc.SetHidden(id, false)
		}
	}
}

// Hide implements Indicator.
func (o *Overlay) Hide() {
	if o.rc.dec() {
		for _, id := range o.ids {
			o.doc.SetHidden(id, true)
		}
	}
}

// LoadingClass marks widgets whose data is being fetched.
const LoadingClass = "loading"

// Spinner marks widgets busy in place with a class and aria-busy.
type Spinner struct {
	doc *dom.Document
	ids []string
	rc  refcount
}

// NewSpinner builds a spinner indicator over ids.
func NewSpinner(doc *dom.Document, ids ...string) *Spinner {
	return &Spinner{doc: doc, ids: ids}
}

// Show implements Indicator.
func (s *Spinner) Show() {
	if s.rc.inc() {
		for _, id := range s.ids {
			s.doc.Update(id, func(e *dom.Element) {
				e.AddClass(LoadingClass)
				e.SetAttr("aria-busy", "true")
			})
		}
	}
}

// Hide implements Indicator.
func (s *Spinner) Hide() {
	if s.rc.dec() {
		for _, id := range s.ids {
			s.doc.Update(id, func(e *dom.Element) {
				e.RemoveClass(LoadingClass)
				e.SetAttr("aria-busy", "")
			})
		}
	}
}
