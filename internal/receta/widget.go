// Package receta is the prescription part of the patient-care form: a
// debounced medication search and the list of prescribed medications.
package receta

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hospitaltm/citas-dashboard/internal/backend"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/fetch"
	"github.com/hospitaltm/citas-dashboard/internal/pages"
	"github.com/hospitaltm/citas-dashboard/pkg/dom"
	"github.com/hospitaltm/citas-dashboard/pkg/errors"
	"github.com/hospitaltm/citas-dashboard/pkg/httputil"
	"github.com/hospitaltm/citas-dashboard/pkg/i18n"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
)

// Backend paths.
const (
	SearchPath = "/api/medicamentos/buscar/"
	SubmitPath = "/atencion/%s/"
)

// Element ids.
const (
	Prescribir     = "prescribir_receta"
	Bloque         = "bloque_receta_medica"
	Buscador       = "buscador_medicamento"
	Resultados     = "resultados_medicamentos"
	Seleccionados  = "medicamentos_seleccionados"
	NoMedicamentos = "no_medicamentos_alert"
	Contador       = "contador_medicamentos"
	Diagnostico    = "diagnostico"
	Tratamiento    = "tratamiento"
	CSRFField      = "csrfmiddlewaretoken"
)

const (
	// MinQuery is the shortest search that reaches the backend.
	MinQuery = 2
	// DefaultDebounce is the quiet period before a search is sent.
	DefaultDebounce = 300 * time.Millisecond
)

// Frequencies are the accepted hours between doses.
var Frequencies = []int{4, 6, 8, 12, 24}

// Client is the part of the backend client the widget uses.
type Client interface {
	fetch.Getter
	PostJSON(ctx context.Context, path string, tokens backend.TokenSource, body, out interface{}) error
}

// Deps are the per-session inputs of the widget.
type Deps struct {
	Client    Client
	Lock      sync.Locker
	Localizer *i18n.Localizer
	Logger    *logger.Logger
	CitaID    string
	Debounce  time.Duration
	// Tokens overrides the CSRF form field as token source.
	Tokens backend.TokenSource
}

// Medication is one search hit.
type Medication struct {
	ID              json.Number `json:"id"`
	NombreComercial string      `json:"nombre_comercial"`
	NombreGenerico  string      `json:"nombre_generico"`
	Presentacion    string      `json:"presentacion"`
	Stock           int         `json:"stock"`
}

// Line is one prescribed medication.
type Line struct {
	Medication
	Dosis        float64 `json:"dosis"`
	Frecuencia   int     `json:"frecuencia"`
	Duracion     int     `json:"duracion"`
	Indicaciones string  `json:"indicaciones"`
}

// Cantidad is the total quantity, 0 while the line is incomplete.
func (l Line) Cantidad() int {
	return Quantity(l.Dosis, l.Frecuencia, l.Duracion)
}

// Complete reports whether every required field is set.
func (l Line) Complete() bool {
	return l.Dosis > 0 && l.Frecuencia > 0 && l.Duracion > 0 && strings.TrimSpace(l.Indicaciones) != ""
}

// ExceedsStock reports whether the computed quantity is above stock.
func (l Line) ExceedsStock() bool {
	return l.Cantidad() > l.Stock
}

// LineUpdate carries the fields a caller changes; nil fields are kept.
type LineUpdate struct {
	Dosis        *float64 `json:"dosis" validate:"omitempty,gte=0.5"`
	Frecuencia   *int     `json:"frecuencia" validate:"omitempty,oneof=4 6 8 12 24"`
	Duracion     *int     `json:"duracion" validate:"omitempty,gte=1"`
	Indicaciones *string  `json:"indicaciones"`
}

// Quantity is ceil(dose × doses per day × days). Zero when any input is missing.
func Quantity(dosis float64, frecuencia, duracion int) int {
	if dosis <= 0 || frecuencia <= 0 || duracion <= 0 {
		return 0
	}
	return int(math.Ceil(dosis * (24 / float64(frecuencia)) * float64(duracion)))
}

// StockLevel grades stock for the result badge.
func StockLevel(stock int) string {
	switch {
	case stock > 20:
		return "success"
	case stock > 5:
		return "warning"
	default:
		return "danger"
	}
}

// Widget is one prescription widget.
type Widget struct {
	client   Client
	lock     sync.Locker
	doc      *dom.Document
	l        *i18n.Localizer
	logger   *logger.Logger
	citaID   string
	tokens   backend.TokenSource
	debounce time.Duration
	searches fetch.Sequence

	// guarded by lock
	prescribe bool
	results   []Medication
	lines     []Line
}

// New builds the widget with prescription switched off.
func New(d Deps) *Widget {
	if d.Lock == nil {
		d.Lock = &sync.Mutex{}
	}
	if d.Localizer == nil {
		d.Localizer = i18n.NewLocalizer(i18n.DefaultLocale)
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Debounce == 0 {
		d.Debounce = DefaultDebounce
	}
	w := &Widget{
		client:   d.Client,
		lock:     d.Lock,
		l:        d.Localizer,
		logger:   d.Logger.WithComponent("receta"),
		citaID:   d.CitaID,
		tokens:   d.Tokens,
		debounce: d.Debounce,
	}
	w.doc = dom.New(pages.Receta, w.layout()...)
	if w.tokens == nil {
		w.tokens = backend.FormFieldToken{Doc: w.doc, Field: CSRFField}
	}
	return w
}

func (w *Widget) layout() []dom.Element {
	diag := dom.Input(Diagnostico, "")
	diag.Tag = dom.TagTextarea
	trat := dom.Input(Tratamiento, "")
	trat.Tag = dom.TagTextarea
	results := dom.Hide(dom.Container(Resultados, "list-group"))
	results.Tag = dom.TagListGroup
	selected := dom.Container(Seleccionados)
	selected.Tag = dom.TagListGroup
	return []dom.Element{
		diag,
		trat,
		dom.Select(Prescribir,
			dom.Option{Value: "no", Text: "No", Selected: true},
			dom.Option{Value: "si", Text: "Sí"},
		),
		dom.Hide(dom.Container(Bloque)),
		dom.Input(Buscador, ""),
		results,
		selected,
		dom.Container(NoMedicamentos, "alert", "alert-info"),
		dom.Text(Contador, w.counter(0)),
		dom.Hide(dom.Input(CSRFField, "")),
	}
}

func (w *Widget) Name() string { return pages.Receta }

func (w *Widget) Document() *dom.Document { return w.doc }

// Changed reacts to the prescription switch and the search box. Called without the session lock held.
func (w *Widget) Changed(ctx context.Context, control string) error {
	switch control {
	case Prescribir:
		v, _ := w.doc.Value(Prescribir)
		w.SetPrescribe(v == "si")
	case Buscador:
		v, _ := w.doc.Value(Buscador)
		_, err := w.Search(ctx, v)
		return err
	}
	return nil
}

// SetPrescribe shows or hides the prescription block. Turning it off drops every line.
func (w *Widget) SetPrescribe(on bool) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.prescribe = on
	if on {
		w.doc.SetValue(Prescribir, "si")
	} else {
		w.doc.SetValue(Prescribir, "no")
	}
	w.doc.SetHidden(Bloque, !on)
	if !on {
		w.lines = nil
		w.renderLines()
	}
}

// Search waits for the debounce period and then queries the backend. A
// newer search started meanwhile supersedes this one, which then returns a
// stale error without touching the document.
func (w *Widget) Search(ctx context.Context, query string) ([]Medication, error) {
	id := w.searches.Next()
	query = strings.TrimSpace(query)

	if utf8.RuneCountInString(query) < MinQuery {
		w.lock.Lock()
		w.doc.SetHidden(Resultados, true)
		w.lock.Unlock()
		return nil, nil
	}

	timer := time.NewTimer(w.debounce)
	select {
	case <-ctx.Done():
		timer.Stop()
		return nil, ctx.Err()
	case <-timer.C:
	}
	if !w.searches.IsLatest(id) {
		return nil, errors.Stale(id)
	}

	var meds []Medication
	raw, err := w.client.Get(ctx, SearchPath, url.Values{"q": {query}})
	if err == nil {
		if jerr := json.Unmarshal(raw, &meds); jerr != nil {
			err = errors.Payload(SearchPath, jerr)
		}
	}

	w.lock.Lock()
	defer w.lock.Unlock()
	if !w.searches.IsLatest(id) {
		return nil, errors.Stale(id)
	}
	if err != nil {
		w.logger.Error().Err(err).Str("q", query).Msg("medication search failed")
		w.results = nil
		w.doc.SetItems(Resultados, []dom.Item{{ID: "error", Text: w.l.T("receta.error_busqueda"), Classes: []string{"text-danger"}}})
		w.doc.SetHidden(Resultados, false)
		return nil, err
	}

	w.results = meds
	items := make([]dom.Item, len(meds))
	for i, m := range meds {
		items[i] = dom.Item{
			ID:      m.ID.String(),
			Text:    m.NombreComercial,
			Classes: []string{"list-group-item", "list-group-item-action"},
			Fields: map[string]string{
				"nombre_generico": m.NombreGenerico,
				"badge":           "bg-" + StockLevel(m.Stock),
				"stock":           w.l.T("receta.en_stock", map[string]string{"stock": strconv.Itoa(m.Stock)}),
			},
		}
	}
	w.doc.SetItems(Resultados, items)
	w.doc.SetHidden(Resultados, len(items) == 0)
	return meds, nil
}

// Add puts the search hit with id on the prescription.
func (w *Widget) Add(id string) (Line, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	var med *Medication
	for i := range w.results {
		if w.results[i].ID.String() == id {
			med = &w.results[i]
		}
	}
	if med == nil {
		return Line{}, errors.NotFoundWithKey("medicamento")
	}
	if w.indexOf(id) >= 0 {
		msg := w.l.T("receta.duplicado")
		w.doc.Alert(dom.AlertWarning, msg, true)
		return Line{}, errors.InvalidInput("receta.duplicado")
	}

	line := Line{Medication: *med}
	w.lines = append(w.lines, line)
	w.doc.SetHidden(Resultados, true)
	w.doc.SetValue(Buscador, "")
	w.renderLines()
	return line, nil
}

// Update changes the fields of a prescribed medication and recomputes its quantity.
func (w *Widget) Update(id string, u LineUpdate) (Line, error) {
	if err := httputil.Validate(u); err != nil {
		return Line{}, err
	}
	w.lock.Lock()
	defer w.lock.Unlock()

	i := w.indexOf(id)
	if i < 0 {
		return Line{}, errors.NotFoundWithKey("medicamento")
	}
	line := &w.lines[i]
	if u.Dosis != nil {
		line.Dosis = *u.Dosis
	}
	if u.Frecuencia != nil {
		line.Frecuencia = *u.Frecuencia
	}
	if u.Duracion != nil {
		line.Duracion = *u.Duracion
	}
	if u.Indicaciones != nil {
		line.Indicaciones = *u.Indicaciones
	}
	w.renderLines()
	return *line, nil
}

// Remove takes a medication off the prescription.
func (w *Widget) Remove(id string) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	i := w.indexOf(id)
	if i < 0 {
		return errors.NotFoundWithKey("medicamento")
	}
	w.lines = append(w.lines[:i], w.lines[i+1:]...)
	w.renderLines()
	return nil
}

// Lines returns a copy of the prescription.
func (w *Widget) Lines() []Line {
	w.lock.Lock()
	defer w.lock.Unlock()
	return append([]Line(nil), w.lines...)
}

func (w *Widget) indexOf(id string) int {
	for i, l := range w.lines {
		if l.ID.String() == id {
			return i
		}
	}
	return -1
}

// renderLines writes the prescription into the document. Caller holds the lock.
func (w *Widget) renderLines() {
	items := make([]dom.Item, len(w.lines))
	for i, l := range w.lines {
		classes := []string{"card", "medicamento-card", "border-primary"}
		warning := ""
		if l.Cantidad() > 0 && l.ExceedsStock() {
			classes = append(classes, "stock-warning")
			warning = w.l.T("receta.advertencia_stock", map[string]string{"stock": strconv.Itoa(l.Stock)})
		}
		cantidad := ""
		if q := l.Cantidad(); q > 0 {
			cantidad = strconv.Itoa(q)
		}
		items[i] = dom.Item{
			ID:      "med_" + l.ID.String(),
			Text:    l.NombreComercial,
			Classes: classes,
			Fields: map[string]string{
				"nombre_generico":   l.NombreGenerico,
				"presentacion":      l.Presentacion,
				"dosis":             formatOptional(l.Dosis),
				"frecuencia":        intOptional(l.Frecuencia),
				"duracion":          intOptional(l.Duracion),
				"cantidad":          cantidad,
				"indicaciones":      l.Indicaciones,
				"advertencia_stock": warning,
			},
		}
	}
	w.doc.SetItems(Seleccionados, items)
	w.doc.SetHidden(NoMedicamentos, len(items) > 0)
	w.doc.SetText(Contador, w.counter(len(items)))
}

func (w *Widget) counter(n int) string {
	key := "receta.contador_plural"
	if n == 1 {
		key = "receta.contador_singular"
	}
	return w.l.T(key, map[string]string{"n": strconv.Itoa(n)})
}

func formatOptional(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func intOptional(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// Attention is the body posted when the doctor closes the appointment.
type Attention struct {
	Accion       string         `json:"accion"`
	Diagnostico  string         `json:"diagnostico"`
	Tratamiento  string         `json:"tratamiento"`
	Prescribir   string         `json:"prescribir_receta"`
	Medicamentos []Prescription `json:"medicamentos,omitempty"`
}

// Prescription is one medication line on the wire.
type Prescription struct {
	MedicamentoID string  `json:"medicamento_id"`
	Dosis         float64 `json:"dosis"`
	Frecuencia    int     `json:"frecuencia"`
	Duracion      int     `json:"duracion"`
	Cantidad      int     `json:"cantidad"`
	Indicaciones  string  `json:"indicaciones"`
}

// check applies the submission rules to the current state. Caller holds the lock.
func (w *Widget) check(diag, trat string) error {
	if diag == "" || trat == "" {
		return errors.InvalidInput("receta.diagnostico_requerido")
	}
	if !w.prescribe {
		return nil
	}
	if len(w.lines) == 0 {
		return errors.InvalidInput("receta.sin_medicamentos")
	}
	for _, l := range w.lines {
		if !l.Complete() {
			return errors.InvalidInput("receta.campos_incompletos")
		}
	}
	for _, l := range w.lines {
		if l.ExceedsStock() {
			return errors.InvalidInput("receta.excede_stock")
		}
	}
	return nil
}

// Submit validates the form and posts the attention record.
func (w *Widget) Submit(ctx context.Context) (Attention, error) {
	w.lock.Lock()
	diag, _ := w.doc.Value(Diagnostico)
	trat, _ := w.doc.Value(Tratamiento)
	diag, trat = strings.TrimSpace(diag), strings.TrimSpace(trat)
	if err := w.check(diag, trat); err != nil {
		w.doc.Alert(dom.AlertWarning, errors.LocalizedMessage(err, w.l), true)
		w.lock.Unlock()
		return Attention{}, err
	}
	a := Attention{Accion: "atender", Diagnostico: diag, Tratamiento: trat, Prescribir: "no"}
	if w.prescribe {
		a.Prescribir = "si"
		for _, l := range w.lines {
			a.Medicamentos = append(a.Medicamentos, Prescription{
				MedicamentoID: l.ID.String(),
				Dosis:         l.Dosis,
				Frecuencia:    l.Frecuencia,
				Duracion:      l.Duracion,
				Cantidad:      l.Cantidad(),
				Indicaciones:  strings.TrimSpace(l.Indicaciones),
			})
		}
	}
	w.lock.Unlock()

	path := fmt.Sprintf(SubmitPath, url.PathEscape(w.citaID))
	err := w.client.PostJSON(ctx, path, w.tokens, a, nil)

	w.lock.Lock()
	defer w.lock.Unlock()
	if err != nil {
		w.logger.Error().Err(err).Str("cita_id", w.citaID).Msg("attention submission failed")
		msg := backend.ServerMessage(err)
		if msg == "" {
			msg = errors.LocalizedMessage(err, w.l)
		}
		w.doc.Alert(dom.AlertDanger, msg, false)
		return a, err
	}
	w.logger.Info().Str("cita_id", w.citaID).Int("medicamentos", len(a.Medicamentos)).Msg("attention submitted")
	w.doc.Alert(dom.AlertSuccess, w.l.T("receta.registrada"), false)
	return a, nil
}
