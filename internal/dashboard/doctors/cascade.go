// Package doctors keeps a doctor select in step with the specialty select.
package doctors

import (
	"context"
	"net/url"
	"sync"

	"github.com/hospitaltm/citas-dashboard/internal/dashboard/fetch"
	"github.com/hospitaltm/citas-dashboard/pkg/dom"
	"github.com/hospitaltm/citas-dashboard/pkg/errors"
	"github.com/hospitaltm/citas-dashboard/pkg/i18n"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
)

// Endpoint lists the doctors of a specialty: {medicos: [{id, nombre}]}.
const Endpoint = "/api/medicos-por-especialidad/"

// Variant captures how a page words and values its doctor select.
type Variant struct {
	AllValue   string
	AllKey     string
	LoadingKey string
	ErrorKey   string
	// DisableOnError leaves the select disabled after a failed load.
	DisableOnError bool
	// EmptyKey replaces the "all" option when no specialty is chosen.
	EmptyKey       string
	DisableOnEmpty bool
}

// Standard is used by the attendance and trend pages.
var Standard = Variant{
	AllValue:   "0",
	AllKey:     "medicos.todos",
	LoadingKey: "medicos.cargando",
	ErrorKey:   "medicos.error",
}

// Origin is used by the appointment-origin page.
var Origin = Variant{
	AllValue:       "",
	AllKey:         "medicos.todos_los_medicos",
	LoadingKey:     "medicos.cargando_medicos",
	ErrorKey:       "medicos.error",
	DisableOnError: true,
	EmptyKey:       "medicos.seleccione",
	DisableOnEmpty: true,
}

// Cascade reloads the doctor select when the specialty changes.
type Cascade struct {
	getter  fetch.Getter
	doc     *dom.Document
	lock    sync.Locker
	select_ string
	variant Variant
	l       *i18n.Localizer
	seq     fetch.Sequence
	logger  *logger.Logger
}

// New creates a cascade driving the select with id doctorSelect.
func New(g fetch.Getter, doc *dom.Document, lock sync.Locker, doctorSelect string, v Variant, l *i18n.Localizer, log *logger.Logger) *Cascade {
	return &Cascade{
		getter:  g,
		doc:     doc,
		lock:    lock,
		select_: doctorSelect,
		variant: v,
		l:       l,
		logger:  log.WithComponent("doctors"),
	}
}

// Load fills the doctor select for specialtyID. A sentinel specialty resets
// the select without a request. Results of superseded loads are dropped.
// Must be called without the page lock held.
func (c *Cascade) Load(ctx context.Context, specialtyID string) error {
	id := c.seq.Next()

	if fetch.IsSentinel(specialtyID) {
		c.lock.Lock()
		defer c.lock.Unlock()
		key := c.variant.AllKey
		if c.variant.EmptyKey != "" {
			key = c.variant.EmptyKey
		}
		c.doc.SetOptions(c.select_, []dom.Option{{Value: c.variant.AllValue, Text: c.l.T(key), Selected: true}})
		c.doc.SetDisabled(c.select_, c.variant.DisableOnEmpty)
		return nil
	}

	c.lock.Lock()
	c.doc.SetOptions(c.select_, []dom.Option{{Value: c.variant.AllValue, Text: c.l.T(c.variant.LoadingKey)}})
	c.doc.SetDisabled(c.select_, true)
	c.lock.Unlock()

	raw, err := c.getter.Get(ctx, Endpoint, url.Values{"especialidad_id": {specialtyID}})
	var p fetch.Payload
	if err == nil {
		if p, err = fetch.Decode(raw); err != nil {
			err = errors.Payload(Endpoint, err)
		}
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.seq.IsLatest(id) {
		c.logger.Debug().Str("especialidad", specialtyID).Msg("stale doctor list discarded")
		return errors.Stale(id)
	}

	if err != nil {
		c.logger.Error().Err(err).Str("especialidad", specialtyID).Msg("failed to load doctors")
		c.doc.SetOptions(c.select_, []dom.Option{{Value: c.variant.AllValue, Text: c.l.T(c.variant.ErrorKey)}})
		c.doc.SetDisabled(c.select_, c.variant.DisableOnError)
		return err
	}

	opts := []dom.Option{{Value: c.variant.AllValue, Text: c.l.T(c.variant.AllKey), Selected: true}}
	medicos, _ := p.Objects("medicos")
	for _, m := range medicos {
		id, okID := m.String("id")
		name, okName := m.String("nombre")
		if !okID || !okName || id == "" || name == "" {
			continue
		}
		opts = append(opts, dom.Option{Value: id, Text: name})
	}
	c.doc.SetOptions(c.select_, opts)
	c.doc.SetDisabled(c.select_, false)

	c.logger.Debug().Str("especialidad", specialtyID).Int("medicos", len(opts)-1).Msg("doctors loaded")
	return nil
}
