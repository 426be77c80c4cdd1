// Package tendencias charts appointment counts per status over time.
package tendencias

import (
	"context"
	"strconv"

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

// Endpoint returns the per-status series for a filter window.
const Endpoint = "/api/tendencias-citas/"

// Element ids.
const (
	FechaInicio         = "fecha_inicio"
	FechaFin            = "fecha_fin"
	Especialidad        = "especialidad"
	Medico              = "medico"
	Agrupacion          = "agrupacion"
	Estados             = "estados"
	BtnSeleccionarTodos = "btn-seleccionar-todos"
	BtnFiltrar          = "btn-filtrar"

	Loading    = "loading"
	NoData     = "no-data"
	Contenedor = "tendencias-container"
	Grafico    = "tendencias-chart"

	TasaAtencion     = "tasa-atencion"
	TasaCancelacion  = "tasa-cancelacion"
	TendenciaMensual = "tendencia-mensual"
	TotalCitas       = "total-citas"
)

// Groupings accepted by the backend.
var Groupings = []string{"dia", "semana", "mes"}

// StatusColors are the series colours; unknown statuses are grey.
var StatusColors = map[string]string{
	"pendiente":  "#FFC107",
	"confirmada": "#2196F3",
	"atendida":   "#4CAF50",
	"cancelada":  "#F44336",
}

const unknownColor = "#999999"

var metricIDs = []string{TasaAtencion, TasaCancelacion, TendenciaMensual, TotalCitas}

// Page is one trend dashboard.
type Page struct {
	deps    pages.Deps
	doc     *dom.Document
	doctors *doctors.Cascade
}

// New builds the page with a window of the last month, daily grouping and every status selected.
func New(d pages.Deps) *Page {
	d = d.WithDefaults()
	p := &Page{deps: d}
	p.doc = dom.New(pages.Tendencias, p.layout()...)
	p.doctors = doctors.New(d.Getter, p.doc, d.Lock, Medico, doctors.Standard, d.Localizer, d.Logger)
	return p
}

func (p *Page) layout() []dom.Element {
	l := p.deps.Localizer
	today := p.deps.Today()

	grouping := make([]dom.Option, len(Groupings))
	for i, g := range Groupings {
		grouping[i] = dom.Option{Value: g, Text: l.T("tendencias.agrupacion." + g), Selected: i == 0}
	}
	statuses := make([]dom.Option, len(fetch.Statuses))
	for i, s := range fetch.Statuses {
		statuses[i] = dom.Option{Value: s, Text: l.T("estados." + s + "s"), Selected: true}
	}

	els := []dom.Element{
		dom.Input(FechaInicio, pages.Date(today.AddDate(0, -1, 0))),
		dom.Input(FechaFin, pages.Date(today)),
		dom.Select(Especialidad, pages.SpecialtyOptions("0", l.T("filtros.todas"), p.deps.Especialidades)...),
		dom.Select(Medico, dom.Option{Value: "0", Text: l.T("medicos.todos"), Selected: true}),
		dom.Select(Agrupacion, grouping...),
		dom.MultiSelect(Estados, statuses...),
		dom.Button(BtnSeleccionarTodos, l.T("tendencias.deseleccionar_todos"), "btn", "btn-sm", "btn-secondary"),
		dom.Button(BtnFiltrar, l.T("filtros.aplicar"), "btn", "btn-primary"),
		dom.Hide(dom.Container(Loading)),
		dom.Hide(dom.Container(NoData)),
		dom.Hide(dom.Container(Contenedor)),
		dom.Canvas(Grafico),
	}
	for _, id := range metricIDs {
		els = append(els, dom.Text(id, "-"))
	}
	return els
}

func (p *Page) Name() string { return pages.Tendencias }

func (p *Page) Document() *dom.Document { return p.doc }

func (p *Page) Reader() filter.Reader {
	return filter.Reader{
		Fields: []filter.Field{
			{Key: "fecha_inicio", Control: FechaInicio, Kind: filter.KindDate},
			{Key: "fecha_fin", Control: FechaFin, Kind: filter.KindDate},
			{Key: "especialidad_id", Control: Especialidad, Kind: filter.KindID, Label: "especialidad"},
			{Key: "medico_id", Control: Medico, Kind: filter.KindID, Label: "médico"},
			{Key: "agrupacion", Control: Agrupacion, Kind: filter.KindEnum, Allowed: Groupings, Label: "agrupación"},
			{Key: "estados", Control: Estados, Kind: filter.KindMulti, Allowed: fetch.Statuses, Label: "estados"},
		},
		Ranges: []filter.Range{{Start: "fecha_inicio", End: "fecha_fin"}},
	}
}

func (p *Page) Request(set filter.Set) fetch.Request {
	return fetch.Request{Endpoint: Endpoint, Query: fetch.BuildQuery(set)}
}

func (p *Page) Indicator(doc *dom.Document) fetch.Indicator {
	return &panel{doc: doc, overlay: fetch.NewOverlay(doc, Loading)}
}

// panel shows the loading block and hides the results while a request is out.
type panel struct {
	doc     *dom.Document
	overlay *fetch.Overlay
}

func (p *panel) Show() {
	p.overlay.Show()
	p.doc.SetHidden(NoData, true)
	p.doc.SetHidden(Contenedor, true)
}

func (p *panel) Hide() { p.overlay.Hide() }

func (p *Page) Tabs() []controller.Tab { return nil }

// Reset shows the error in the empty-state block in place of the chart.
func (p *Page) Reset(doc *dom.Document, l *i18n.Localizer) {
	doc.SetHidden(Contenedor, true)
	doc.SetText(NoData, l.T("dashboard.error_carga"))
	doc.SetHidden(NoData, false)
}

// FailureMessage wraps the cause in the page's own wording.
func (p *Page) FailureMessage(err error, l *i18n.Localizer) string {
	return l.T("tendencias.error_carga", map[string]string{"error": controller.DefaultFailureMessage(err, l)})
}

// Changed reloads doctors on a specialty change and toggles the status selection.
func (p *Page) Changed(ctx context.Context, control string) error {
	switch control {
	case Especialidad:
		v, _ := p.doc.Value(Especialidad)
		return p.doctors.Load(ctx, v)
	case BtnSeleccionarTodos:
		p.deps.Lock.Lock()
		defer p.deps.Lock.Unlock()
		ToggleAll(p.doc, p.deps.Localizer)
	}
	return nil
}

// ToggleAll clears the status selection when every status is selected and
// selects them all otherwise. The button label follows.
func ToggleAll(doc *dom.Document, l *i18n.Localizer) {
	selected, _ := doc.Values(Estados)
	if len(selected) == len(fetch.Statuses) {
		doc.SetValues(Estados, nil)
		doc.Update(BtnSeleccionarTodos, func(e *dom.Element) {
			e.Text = l.T("tendencias.seleccionar_todos")
			e.RemoveClass("btn-secondary")
			e.AddClass("btn-outline-secondary")
		})
		return
	}
	doc.SetValues(Estados, fetch.Statuses)
	doc.Update(BtnSeleccionarTodos, func(e *dom.Element) {
		e.Text = l.T("tendencias.deseleccionar_todos")
		e.RemoveClass("btn-outline-secondary")
		e.AddClass("btn-secondary")
	})
}

func (p *Page) Updaters() []render.Updater {
	return []render.Updater{
		{Name: "metricas", Stage: render.StageMetrics, Apply: applyMetrics},
		{Name: "tendencias", Stage: render.StageChart, Apply: applyChart},
	}
}

func applyMetrics(ctx context.Context, in *render.Input) error {
	if !in.Payload.Has("metricas") {
		for _, id := range metricIDs {
			in.SetText(id, "-")
		}
		return nil
	}
	in.SetText(TasaAtencion, number(in.Payload.FloatOr("metricas.tasa_atencion", 0))+"%")
	in.SetText(TasaCancelacion, number(in.Payload.FloatOr("metricas.tasa_cancelacion", 0))+"%")
	in.SetText(TendenciaMensual, FormatTrend(in.Payload.FloatOr("metricas.tendencia_mensual", 0)))
	in.SetText(TotalCitas, number(in.Payload.FloatOr("metricas.total_citas", 0)))
	return nil
}

// FormatTrend renders a month-over-month change as "+5%" or "-3%"; zero is "-".
func FormatTrend(v float64) string {
	switch {
	case v > 0:
		return "+" + number(v) + "%"
	case v < 0:
		return "-" + number(-v) + "%"
	default:
		return "-"
	}
}

func applyChart(ctx context.Context, in *render.Input) error {
	fechas, _ := in.Payload.Strings("fechas")
	datasets := Datasets(in.Payload, in.L)

	if len(fechas) == 0 || len(datasets) == 0 {
		in.Doc.SetText(NoData, in.T("tendencias.sin_datos"))
		in.Doc.SetHidden(NoData, false)
		in.Doc.SetHidden(Contenedor, true)
		return in.Chart(ctx, Grafico, "", &chart.Config{Type: chart.TypeLine})
	}

	in.Doc.SetHidden(NoData, true)
	in.Doc.SetHidden(Contenedor, false)
	return in.Chart(ctx, Grafico, "", &chart.Config{
		Type:     chart.TypeLine,
		Labels:   fechas,
		Datasets: datasets,
		Options: map[string]interface{}{
			"responsive":          true,
			"maintainAspectRatio": false,
			"interaction":         map[string]interface{}{"mode": "index", "intersect": false},
			"plugins": map[string]interface{}{
				"title":  map[string]interface{}{"display": true, "text": in.T("tendencias.titulo")},
				"legend": map[string]interface{}{"position": "bottom"},
			},
			"scales": map[string]interface{}{
				"x": map[string]interface{}{"title": chart.AxisTitle(GroupingTitle(in.L, in.Filters.Get("agrupacion")))},
				"y": map[string]interface{}{"beginAtZero": true, "title": chart.AxisTitle(in.T("tendencias.eje_y"))},
			},
		},
	})
}

// Datasets builds one line per status array in valores_por_estado.
func Datasets(p fetch.Payload, l *i18n.Localizer) []chart.Dataset {
	var out []chart.Dataset
	radius := 3
	for _, status := range p.Keys("valores_por_estado") {
		data, ok := p.Floats("valores_por_estado." + status)
		if !ok {
			continue
		}
		color, known := StatusColors[status]
		if !known {
			color = unknownColor
		}
		label := status
		if key := "estados." + status + "s"; known && l.Has(key) {
			label = l.T(key)
		}
		out = append(out, chart.Dataset{
			Label:           label,
			Data:            data,
			BorderColor:     color,
			BackgroundColor: chart.HexToRGBA(color, 0.1),
			BorderWidth:     2,
			Tension:         0.3,
			PointRadius:     &radius,
		})
	}
	return out
}

// GroupingTitle names the x axis for a grouping.
func GroupingTitle(l *i18n.Localizer, grouping string) string {
	for _, g := range Groupings {
		if g == grouping {
			return l.T("tendencias.agrupacion." + g)
		}
	}
	return l.T("tendencias.agrupacion.periodo")
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
