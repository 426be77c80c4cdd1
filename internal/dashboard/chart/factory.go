package chart

import (
	"fmt"
	"sync/atomic"

	"github.com/hospitaltm/citas-dashboard/pkg/dom"
)

// Widget is a live chart instance bound to one canvas.
type Widget interface {
	Destroy()
}

// Factory constructs widgets. A nil Factory means the charting capability is unavailable.
type Factory interface {
	Create(canvasID string, cfg *Config) (Widget, error)
}

// DocumentFactory binds chart configs to canvas elements of a document so the
// browser can draw them from the snapshot.
type DocumentFactory struct {
	doc  *dom.Document
	next atomic.Uint64
}

// NewDocumentFactory creates a factory writing into doc.
func NewDocumentFactory(doc *dom.Document) *DocumentFactory {
	return &DocumentFactory{doc: doc}
}

// Create implements Factory.
func (f *DocumentFactory) Create(canvasID string, cfg *Config) (Widget, error) {
	instance := f.next.Add(1)
	ok := f.doc.Update(canvasID, func(e *dom.Element) {
		e.Chart = &dom.ChartBinding{Instance: instance, Type: cfg.Type, Config: cfg}
	})
	if !ok {
		return nil, fmt.Errorf("canvas %q not found", canvasID)
	}
	return &boundWidget{doc: f.doc, canvasID: canvasID, instance: instance}, nil
}

type boundWidget struct {
	doc      *dom.Document
	canvasID string
	instance uint64
}

// Destroy unbinds the canvas unless a newer instance already replaced it.
func (w *boundWidget) Destroy() {
	w.doc.Update(w.canvasID, func(e *dom.Element) {
		if e.Chart != nil && e.Chart.Instance == w.instance {
			e.Chart = nil
		}
	})
}
