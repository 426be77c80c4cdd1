// Package comparativas compares two periods and breaks the combined window
// down by weekday and by shift.
package comparativas

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/hospitaltm/citas-dashboard/internal/dashboard/chart"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/controller"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/doctors"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/fetch"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/filter"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/render"
	"github.com/hospitaltm/citas-dashboard/internal/pages"
	"github.com/hospitaltm/citas-dashboard/pkg/dom"
	"github.com/hospitaltm/citas-dashboard/pkg/i18n"
)

// Endpoint compares two periods.
const Endpoint = "/api/comparativa-citas/"

// Element ids.
const (
	Periodo1     = "periodo1"
	FechaInicio1 = "fecha_inicio1"
	FechaFin1    = "fecha_fin1"
	Periodo2     = "periodo2"
	FechaInicio2 = "fecha_inicio2"
	FechaFin2    = "fecha_fin2"
	Especialidad = "especialidad"
	Medico       = "medico"
	BtnComparar  = "btn-comparar"
	Overlay      = "loading-comparativa"

	Etiqueta1 = "periodo1-etiqueta"
	Etiqueta2 = "periodo2-etiqueta"
	Total1    = "periodo1-total"
	Total2    = "periodo2-total"
	SinCitas  = "sin-citas"

	DiaTab          = "dia-tab"
	DiaContent      = "dia-content"
	GraficoDias     = "grafico-dias"
	HorarioTab      = "horario-tab"
	HorarioContent  = "horario-content"
	GraficoHorarios = "grafico-horarios"
)

// Periods are the period kinds the backend labels.
var Periods = []string{"semanal", "mensual", "trimestral", "anual", "personalizado"}

// Variation is one compared quantity: its payload key and the ids showing
// the absolute and relative change.
type Variation struct {
	Key     string
	ID      string
	Percent string
}

// Variations in display order.
var Variations = []Variation{
	{Key: "total", ID: "var-total", Percent: "var-total-pct"},
	{Key: "pendientes", ID: "var-pendientes", Percent: "var-pendientes-pct"},
	{Key: "confirmadas", ID: "var-confirmadas", Percent: "var-confirmadas-pct"},
	{Key: "atendidas", ID: "var-atendidas", Percent: "var-atendidas-pct"},
	{Key: "canceladas", ID: "var-canceladas", Percent: "var-canceladas-pct"},
	{Key: "porcentaje_asistencia", ID: "var-asistencia", Percent: "var-asistencia-pct"},
}

// TrendTiers mark a change as up, flat or down.
var TrendTiers = render.Tiers{
	{Min: math.SmallestNonzeroFloat64, Class: "variacion-positiva"},
	{Min: 0, Class: "variacion-neutra"},
	{Min: math.Inf(-1), Class: "variacion-negativa"},
}

// Page is one comparison dashboard.
type Page struct {
	deps    pages.Deps
	doc     *dom.Document
	doctors *doctors.Cascade
}

// New builds the page comparing last month with the current month to date.
func New(d pages.Deps) *Page {
	d = d.WithDefaults()
	p := &Page{deps: d}
	p.doc = dom.New(pages.Comparativas, p.layout()...)
	p.doctors = doctors.New(d.Getter, p.doc, d.Lock, Medico, doctors.Standard, d.Localizer, d.Logger)
	return p
}

func (p *Page) layout() []dom.Element {
	l := p.deps.Localizer
	today := p.deps.Today()
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
	prevStart := monthStart.AddDate(0, -1, 0)
	prevEnd := monthStart.AddDate(0, 0, -1)

	els := []dom.Element{
		dom.Select(Periodo1, periodOptions("mensual")...),
		dom.Input(FechaInicio1, pages.Date(prevStart)),
		dom.Input(FechaFin1, pages.Date(prevEnd)),
		dom.Select(Periodo2, periodOptions("mensual")...),
		dom.Input(FechaInicio2, pages.Date(monthStart)),
		dom.Input(FechaFin2, pages.Date(today)),
		dom.Select(Especialidad, pages.SpecialtyOptions("0", l.T("filtros.todas"), p.deps.Especialidades)...),
		dom.Select(Medico, dom.Option{Value: "0", Text: l.T("medicos.todos"), Selected: true}),
		dom.Button(BtnComparar, l.T("filtros.aplicar"), "btn", "btn-primary"),
		dom.Hide(dom.Container(Overlay, "loading-overlay")),
		dom.Text(Etiqueta1, l.T("comparativas.periodo1")),
		dom.Text(Etiqueta2, l.T("comparativas.periodo2")),
		dom.Text(Total1, "0"),
		dom.Text(Total2, "0"),
		dom.Hide(dom.Text(SinCitas, l.T("comparativas.sin_citas"))),
	}
	for _, v := range Variations {
		els = append(els, dom.Text(v.ID, "0"), dom.Text(v.Percent, "0%"))
	}
	diaTab := dom.Button(DiaTab, l.T("comparativas.eje_dias"), "nav-link", "active")
	diaTab.SetAttr("aria-selected", "true")
	horarioTab := dom.Button(HorarioTab, l.T("comparativas.eje_horarios"), "nav-link")
	horarioTab.SetAttr("aria-selected", "false")
	return append(els,
		diaTab,
		horarioTab,
		dom.Container(DiaContent, "tab-pane"),
		dom.Canvas(GraficoDias),
		dom.Hide(dom.Container(HorarioContent, "tab-pane")),
		dom.Canvas(GraficoHorarios),
	)
}

func periodOptions(selected string) []dom.Option {
	opts := make([]dom.Option, len(Periods))
	for i, p := range Periods {
		opts[i] = dom.Option{Value: p, Text: p, Selected: p == selected}
	}
	return opts
}

func (p *Page) Name() string { return pages.Comparativas }

func (p *Page) Document() *dom.Document { return p.doc }

func (p *Page) Reader() filter.Reader {
	return filter.Reader{
		Fields: []filter.Field{
			{Key: "periodo1", Control: Periodo1, Kind: filter.KindEnum, Allowed: Periods, Label: "periodo 1"},
			{Key: "fecha_inicio1", Control: FechaInicio1, Kind: filter.KindDate},
			{Key: "fecha_fin1", Control: FechaFin1, Kind: filter.KindDate},
			{Key: "periodo2", Control: Periodo2, Kind: filter.KindEnum, Allowed: Periods, Label: "periodo 2"},
			{Key: "fecha_inicio2", Control: FechaInicio2, Kind: filter.KindDate},
			{Key: "fecha_fin2", Control: FechaFin2, Kind: filter.KindDate},
			{Key: "especialidad", Control: Especialidad, Kind: filter.KindID},
			{Key: "medico", Control: Medico, Kind: filter.KindID, Label: "médico"},
		},
		Ranges: []filter.Range{
			{Start: "fecha_inicio1", End: "fecha_fin1"},
			{Start: "fecha_inicio2", End: "fecha_fin2"},
		},
	}
}

func (p *Page) Request(set filter.Set) fetch.Request {
	q := fetch.BuildQuery(set)
	q.Set("incluir_dimensiones", "true")
	return fetch.Request{Endpoint: Endpoint, Query: q, Required: []string{"variaciones"}}
}

func (p *Page) Indicator(doc *dom.Document) fetch.Indicator {
	return fetch.NewOverlay(doc, Overlay)
}

func (p *Page) Tabs() []controller.Tab {
	return []controller.Tab{
		{Name: "dia", Button: DiaTab, Pane: DiaContent},
		{Name: "horario", Button: HorarioTab, Pane: HorarioContent},
	}
}

// Reset zeroes the variation cards.
func (p *Page) Reset(doc *dom.Document, l *i18n.Localizer) {
	for _, v := range Variations {
		doc.SetText(v.ID, "0")
		doc.SetText(v.Percent, "0%")
		doc.RemoveClass(v.ID, TrendTiers.Classes()...)
	}
}

// Changed reloads doctors on a specialty change and keeps each end date after its start.
func (p *Page) Changed(ctx context.Context, control string) error {
	switch control {
	case Especialidad:
		v, _ := p.doc.Value(Especialidad)
		return p.doctors.Load(ctx, v)
	case FechaInicio1:
		pages.LinkDates(p.doc, p.deps.Lock, FechaInicio1, FechaFin1)
	case FechaInicio2:
		pages.LinkDates(p.doc, p.deps.Lock, FechaInicio2, FechaFin2)
	}
	return nil
}

func (p *Page) Updaters() []render.Updater {
	return []render.Updater{
		{Name: "variaciones", Stage: render.StageMetrics, Requires: []string{"variaciones"}, Apply: applyVariations},
		{Name: "periodos", Stage: render.StageMetrics, Requires: []string{"periodo1", "periodo2"}, Apply: applyPeriods},
		{
			Name:     "dias",
			Stage:    render.StageChart,
			Pane:     DiaContent,
			Requires: []string{"dimensiones_adicionales.dias_semana"},
			Apply:    breakdownChart("dias_semana", GraficoDias, DiaContent, "comparativas.titulo_dias", "comparativas.eje_dias"),
		},
		{
			Name:     "horarios",
			Stage:    render.StageChart,
			Pane:     HorarioContent,
			Requires: []string{"dimensiones_adicionales.horarios"},
			Apply:    breakdownChart("horarios", GraficoHorarios, HorarioContent, "comparativas.titulo_horarios", "comparativas.eje_horarios"),
		},
	}
}

func applyVariations(ctx context.Context, in *render.Input) error {
	for _, v := range Variations {
		abs := in.Payload.FloatOr("variaciones."+v.Key, 0)
		pct := in.Payload.FloatOr("variaciones_porcentuales."+v.Key, 0)
		in.Doc.Update(v.ID, func(e *dom.Element) {
			e.Text = Signed(abs)
			TrendTiers.Apply(e, abs)
		})
		in.SetText(v.Percent, Signed(pct)+"%")
	}
	return nil
}

func applyPeriods(ctx context.Context, in *render.Input) error {
	t1 := in.Payload.FloatOr("periodo1.datos.total", 0)
	t2 := in.Payload.FloatOr("periodo2.datos.total", 0)
	if label, ok := in.Payload.String("periodo1.etiqueta"); ok {
		in.SetText(Etiqueta1, label)
	}
	if label, ok := in.Payload.String("periodo2.etiqueta"); ok {
		in.SetText(Etiqueta2, label)
	}
	in.SetText(Total1, number(t1))
	in.SetText(Total2, number(t2))
	in.Doc.SetHidden(SinCitas, t1 > 0 || t2 > 0)
	return nil
}

// series are the per-status bars of both breakdown charts.
var series = []struct {
	key string
	rgb string
}{
	{"pendientes", "54, 162, 235"},
	{"confirmadas", "255, 193, 7"},
	{"atendidas", "40, 167, 69"},
	{"canceladas", "220, 53, 69"},
}

func breakdownChart(dimension, canvas, pane, titleKey, axisKey string) func(context.Context, *render.Input) error {
	return func(ctx context.Context, in *render.Input) error {
		path := "dimensiones_adicionales." + dimension
		labels := in.Payload.Keys(path)
		datasets := make([]chart.Dataset, 0, len(series))
		for _, s := range series {
			data := make([]float64, len(labels))
			for i, l := range labels {
				data[i] = in.Payload.FloatOr(path+"."+l+"."+s.key, 0)
			}
			datasets = append(datasets, chart.Dataset{
				Label:           in.T("estados." + s.key),
				Data:            data,
				BackgroundColor: "rgba(" + s.rgb + ", 0.7)",
				BorderColor:     "rgba(" + s.rgb + ", 1)",
				BorderWidth:     1,
			})
		}
		return in.Chart(ctx, canvas, pane, &chart.Config{
			Type:     chart.TypeBar,
			Labels:   labels,
			Datasets: datasets,
			Options: map[string]interface{}{
				"responsive": true,
				"plugins": map[string]interface{}{
					"legend": map[string]interface{}{"position": "top"},
					"title":  map[string]interface{}{"display": true, "text": in.T(titleKey)},
				},
				"scales": map[string]interface{}{
					"x": map[string]interface{}{"title": chart.AxisTitle(in.T(axisKey))},
					"y": map[string]interface{}{"beginAtZero": true, "title": chart.AxisTitle(in.T("comparativas.eje_y"))},
				},
			},
		})
	}
}

// Signed prefixes positive values with "+".
func Signed(v float64) string {
	if v > 0 {
		return "+" + number(v)
	}
	return number(v)
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
