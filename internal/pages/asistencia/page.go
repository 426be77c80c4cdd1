// Package asistencia is the attendance-rate dashboard: attendance, no-show,
// cancellation and no-show recovery rates with their evolution over time.
package asistencia

import (
	"context"
	"strconv"
	"strings"

	"github.com/hospitaltm/citas-dashboard/internal/dashboard/chart"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/controller"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/doctors"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/fetch"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/filter"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/render"
	"github.com/hospitaltm/citas-dashboard/internal/pages"
	"github.com/hospitaltm/citas-dashboard/pkg/dom"
	"github.com/hospitaltm/citas-dashboard/pkg/errors"
	"github.com/hospitaltm/citas-dashboard/pkg/i18n"
)

// Endpoint returns the rates for a filter window.
const Endpoint = "/api/tasas-asistencia/"

// Element ids.
const (
	FechaInicio  = "fecha_inicio"
	FechaFin     = "fecha_fin"
	Especialidad = "especialidad"
	Medico       = "medico"
	BtnFiltrar   = "btn-aplicar-filtro"

	TasaAsistencia   = "tasa-asistencia"
	TasaInasistencia = "tasa-inasistencia"
	TasaCancelacion  = "tasa-cancelacion"
	TasaRecuperacion = "tasa-recuperacion"

	TablaRecuperacion        = "tabla-recuperacion"
	InasistenciasTotal       = "inasistencias-total"
	InasistenciasRecuperadas = "inasistencias-recuperadas"
	InasistenciasNoRecup     = "inasistencias-no-recuperadas"
	PorcentajeRecuperadas    = "porcentaje-recuperadas"
	PorcentajeNoRecuperadas  = "porcentaje-no-recuperadas"
	InterpretacionContainer  = "interpretacion-container"
	InterpretacionTexto      = "interpretacion-texto"

	GraficoEvolucion = "graficoEvolucion"
)

const pathInasistencias = "recuperacion.inasistencias_totales"

var (
	metricIDs = []string{TasaAsistencia, TasaInasistencia, TasaCancelacion, TasaRecuperacion}
	tableIDs  = []string{InasistenciasTotal, InasistenciasRecuperadas, InasistenciasNoRecup, PorcentajeRecuperadas, PorcentajeNoRecuperadas}
)

// Page is one attendance dashboard.
type Page struct {
	deps    pages.Deps
	doc     *dom.Document
	doctors *doctors.Cascade
}

// New builds the page with a window of the last three months.
func New(d pages.Deps) *Page {
	d = d.WithDefaults()
	p := &Page{deps: d}
	p.doc = dom.New(pages.Asistencia, p.layout()...)
	p.doctors = doctors.New(d.Getter, p.doc, d.Lock, Medico, doctors.Standard, d.Localizer, d.Logger)
	return p
}

func (p *Page) layout() []dom.Element {
	today := p.deps.Today()
	start := pages.Date(today.AddDate(0, -3, 0))
	fin := dom.Input(FechaFin, pages.Date(today))
	fin.SetAttr("min", start)

	els := []dom.Element{
		dom.Input(FechaInicio, start),
		fin,
		dom.Select(Especialidad, pages.SpecialtyOptions("0", p.deps.Localizer.T("filtros.todas"), p.deps.Especialidades)...),
		dom.Select(Medico, dom.Option{Value: "0", Text: p.deps.Localizer.T("medicos.todos"), Selected: true}),
		dom.Button(BtnFiltrar, p.deps.Localizer.T("filtros.aplicar"), "btn", "btn-primary"),
	}
	for _, id := range metricIDs {
		els = append(els, dom.Text(id, "0%"))
	}
	els = append(els, dom.Table(TablaRecuperacion))
	for _, id := range tableIDs {
		els = append(els, dom.Text(id, "0"))
	}
	return append(els, dom.Canvas(GraficoEvolucion))
}

func (p *Page) Name() string { return pages.Asistencia }

func (p *Page) Document() *dom.Document { return p.doc }

func (p *Page) Reader() filter.Reader {
	return filter.Reader{
		Fields: []filter.Field{
			{Key: "fecha_inicio", Control: FechaInicio, Kind: filter.KindDate},
			{Key: "fecha_fin", Control: FechaFin, Kind: filter.KindDate},
			{Key: "especialidad_id", Control: Especialidad, Kind: filter.KindID, Label: "especialidad"},
			{Key: "medico_id", Control: Medico, Kind: filter.KindID, Label: "médico"},
		},
		Ranges: []filter.Range{{Start: "fecha_inicio", End: "fecha_fin"}},
	}
}

func (p *Page) Request(set filter.Set) fetch.Request {
	return fetch.Request{
		Endpoint: Endpoint,
		Query:    fetch.BuildQuery(set),
		Required: []string{pathInasistencias},
	}
}

// Indicator spins the four rate cards while the request is out.
func (p *Page) Indicator(doc *dom.Document) fetch.Indicator {
	return fetch.NewSpinner(doc, metricIDs...)
}

func (p *Page) Tabs() []controller.Tab { return nil }

// Reset zeroes the rate cards.
func (p *Page) Reset(doc *dom.Document, l *i18n.Localizer) {
	for _, id := range metricIDs {
		doc.SetText(id, "0%")
	}
}

// FailureMessage is the same generic alert for every failure.
func (p *Page) FailureMessage(err error, l *i18n.Localizer) string {
	return l.T("dashboard.error_carga")
}

// Changed reloads doctors on a specialty change and bounds the end date.
func (p *Page) Changed(ctx context.Context, control string) error {
	switch control {
	case Especialidad:
		v, _ := p.doc.Value(Especialidad)
		return p.doctors.Load(ctx, v)
	case FechaInicio:
		pages.LinkDates(p.doc, p.deps.Lock, FechaInicio, FechaFin)
	}
	return nil
}

func (p *Page) Updaters() []render.Updater {
	return []render.Updater{
		{
			Name:     "tasas",
			Stage:    render.StageMetrics,
			Requires: []string{"tasas.asistencia", "tasas.inasistencia", "tasas.cancelacion", "tasas.recuperacion"},
			Apply:    applyRates,
		},
		{
			Name:     "recuperacion",
			Stage:    render.StageTable,
			Requires: []string{pathInasistencias, "recuperacion.inasistencias_recuperadas"},
			Apply:    applyRecovery,
		},
		{
			Name:     "evolucion",
			Stage:    render.StageChart,
			Requires: []string{"evolucion.etiquetas"},
			Apply:    applyEvolution,
		},
	}
}

func applyRates(ctx context.Context, in *render.Input) error {
	in.SetText(TasaAsistencia, render.Percent(in.Payload.FloatOr("tasas.asistencia", 0)))
	in.SetText(TasaInasistencia, render.Percent(in.Payload.FloatOr("tasas.inasistencia", 0)))
	in.SetText(TasaCancelacion, render.Percent(in.Payload.FloatOr("tasas.cancelacion", 0)))

	rec := in.Payload.FloatOr("tasas.recuperacion", 0)
	ok := in.Doc.Update(TasaRecuperacion, func(e *dom.Element) {
		e.Text = render.Percent(rec)
		render.RecoveryTiers.Apply(e, rec)
	})
	if !ok {
		return errors.Render(TasaRecuperacion, render.ErrMissingElement)
	}
	return nil
}

// applyRecovery fills the recovery table. Every cell is essential: when one
// is missing nothing is written.
func applyRecovery(ctx context.Context, in *render.Input) error {
	var missing []string
	for _, id := range tableIDs {
		if !in.Doc.Has(id) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return errors.Render(strings.Join(missing, ","), render.ErrMissingElement)
	}

	total := in.Payload.FloatOr(pathInasistencias, 0)
	recovered := in.Payload.FloatOr("recuperacion.inasistencias_recuperadas", 0)
	lost := total - recovered
	pctRecovered := render.Ratio(recovered, total)

	in.Doc.SetText(InasistenciasTotal, count(total))
	in.Doc.SetText(InasistenciasRecuperadas, count(recovered))
	in.Doc.SetText(InasistenciasNoRecup, count(lost))
	in.Doc.SetText(PorcentajeRecuperadas, render.Percent(pctRecovered))
	in.Doc.SetText(PorcentajeNoRecuperadas, render.Percent(render.Ratio(lost, total)))

	in.Doc.Ensure(InterpretacionContainer, dom.TagDiv)
	in.Doc.Ensure(InterpretacionTexto, dom.TagSpan)
	in.Doc.SetText(InterpretacionTexto, Interpret(in.L, total, recovered, pctRecovered))
	in.Doc.Update(InterpretacionContainer, func(e *dom.Element) {
		for _, c := range append([]string(nil), e.Classes...) {
			if strings.HasPrefix(c, "bg-") || c == "text-white" {
				e.RemoveClass(c)
			}
		}
		e.AddClass("mt-3", "p-3", "rounded")
		e.AddClass(backgroundFor(total, pctRecovered)...)
	})
	return nil
}

func backgroundFor(total, pct float64) []string {
	switch {
	case total == 0:
		return []string{"bg-light"}
	case pct >= 70:
		return []string{"bg-success", "text-white"}
	case pct >= 40:
		return []string{"bg-warning"}
	default:
		return []string{"bg-danger", "text-white"}
	}
}

var grades = []struct {
	min float64
	key string
}{
	{80, "excelente"},
	{60, "muy_bueno"},
	{40, "aceptable"},
	{20, "bajo"},
}

// Interpret words the recovery figures for the interpretation box.
func Interpret(l *i18n.Localizer, total, recovered, pct float64) string {
	if total == 0 {
		return l.T("asistencia.sin_inasistencias")
	}
	if recovered == 0 {
		return l.T("asistencia.ninguna_recuperada", map[string]string{"total": count(total)})
	}
	grade := "critico"
	for _, g := range grades {
		if pct >= g.min {
			grade = g.key
			break
		}
	}
	return l.T("asistencia.recuperacion", map[string]string{
		"calificacion":  l.T("asistencia.calificacion." + grade),
		"recuperadas":   count(recovered),
		"total":         count(total),
		"porcentaje":    strconv.FormatFloat(pct, 'f', 1, 64),
		"recomendacion": l.T("asistencia.recomendacion." + grade),
	})
}

func applyEvolution(ctx context.Context, in *render.Input) error {
	labels, _ := in.Payload.Strings("evolucion.etiquetas")
	asistencia, _ := in.Payload.Floats("evolucion.asistencia")
	recuperacion, _ := in.Payload.Floats("evolucion.recuperacion")

	return in.Chart(ctx, GraficoEvolucion, "", &chart.Config{
		Type:   chart.TypeLine,
		Labels: labels,
		Datasets: []chart.Dataset{
			rateSeries(in.T("asistencia.serie_asistencia"), asistencia, "#4e73df"),
			rateSeries(in.T("asistencia.serie_recuperacion"), recuperacion, "#1cc88a"),
		},
		Options: map[string]interface{}{
			"responsive":          true,
			"maintainAspectRatio": false,
			"scales": map[string]interface{}{
				"y": map[string]interface{}{
					"beginAtZero": true,
					"max":         100,
					"ticks":       map[string]interface{}{"suffix": "%"},
				},
			},
		},
	})
}

func rateSeries(label string, data []float64, color string) chart.Dataset {
	return chart.Dataset{
		Label:           label,
		Data:            data,
		BorderColor:     color,
		BackgroundColor: chart.HexToRGBA(color, 0.1),
		BorderWidth:     2,
		Tension:         0.3,
	}
}

func count(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
