// Package origen breaks appointments down by where they came from: patient
// booking, referral, follow-up or admission.
package origen

import (
	"context"

	"github.com/hospitaltm/citas-dashboard/internal/backend"
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

// Endpoint returns the origin breakdown for a filter window.
const Endpoint = "/api/citas/origen/"

// Element ids.
const (
	FechaInicio  = "fecha_inicio"
	FechaFin     = "fecha_fin"
	Especialidad = "especialidad"
	Medico       = "medico"
	BtnFiltrar   = "btn-filtrar"
	Overlay      = "loadingOverlay"

	TotalCitas          = "totalCitas"
	TablaEspecialidades = "tablaEspecialidades"
	Interpretacion      = "interpretacion"

	DistribucionChart = "distribucionOrigenChart"
	EstadosChart      = "estadosOrigenChart"
	TendenciaChart    = "tendenciaOrigenChart"
)

// Origin is one source of appointments.
type Origin struct {
	Key   string
	Color string
	// Count and Share are the card ids.
	Count string
	Share string
}

// Origins in display order.
var Origins = []Origin{
	{Key: "paciente", Color: "#4A6FDC", Count: "citasPaciente", Share: "porcPaciente"},
	{Key: "derivacion", Color: "#FF8C00", Count: "citasDerivacion", Share: "porcDerivacion"},
	{Key: "seguimiento", Color: "#2DCE89", Count: "citasSeguimiento", Share: "porcSeguimiento"},
	{Key: "admision", Color: "#F5365C", Count: "citasAdmision", Share: "porcAdmision"},
}

// Page is one origin dashboard.
type Page struct {
	deps    pages.Deps
	doc     *dom.Document
	doctors *doctors.Cascade
}

// New builds the page with a window of the last thirty days.
func New(d pages.Deps) *Page {
	d = d.WithDefaults()
	p := &Page{deps: d}
	p.doc = dom.New(pages.Origen, p.layout()...)
	p.doctors = doctors.New(d.Getter, p.doc, d.Lock, Medico, doctors.Origin, d.Localizer, d.Logger)
	return p
}

func (p *Page) layout() []dom.Element {
	l := p.deps.Localizer
	today := p.deps.Today()
	els := []dom.Element{
		dom.Input(FechaInicio, pages.Date(today.AddDate(0, 0, -30))),
		dom.Input(FechaFin, pages.Date(today)),
		dom.Select(Especialidad, pages.SpecialtyOptions("", l.T("filtros.todas"), p.deps.Especialidades)...),
		dom.Disable(dom.Select(Medico, dom.Option{Value: "", Text: l.T("medicos.seleccione"), Selected: true})),
		dom.Button(BtnFiltrar, l.T("filtros.aplicar"), "btn", "btn-primary"),
		dom.Hide(dom.Container(Overlay, "loading-overlay")),
		dom.Text(TotalCitas, "0"),
	}
	for _, o := range Origins {
		els = append(els, dom.Text(o.Count, "0"), dom.Text(o.Share, "0%"))
	}
	return append(els,
		dom.Canvas(DistribucionChart),
		dom.Canvas(EstadosChart),
		dom.Canvas(TendenciaChart),
		dom.Table(TablaEspecialidades),
		dom.Container(Interpretacion),
	)
}

func (p *Page) Name() string { return pages.Origen }

func (p *Page) Document() *dom.Document { return p.doc }

func (p *Page) Reader() filter.Reader {
	return filter.Reader{
		Fields: []filter.Field{
			{Key: "fecha_inicio", Control: FechaInicio, Kind: filter.KindDate},
			{Key: "fecha_fin", Control: FechaFin, Kind: filter.KindDate},
			{Key: "especialidad", Control: Especialidad, Kind: filter.KindID},
			{Key: "medico", Control: Medico, Kind: filter.KindID, Label: "médico"},
		},
		Ranges: []filter.Range{{Start: "fecha_inicio", End: "fecha_fin"}},
	}
}

func (p *Page) Request(set filter.Set) fetch.Request {
	return fetch.Request{
		Endpoint: Endpoint,
		Query:    fetch.BuildQuery(set),
		Required: []string{"total_general", "distribucion_origen"},
	}
}

func (p *Page) Indicator(doc *dom.Document) fetch.Indicator {
	return fetch.NewOverlay(doc, Overlay)
}

func (p *Page) Tabs() []controller.Tab { return nil }

// Reset leaves the cards as they are; a failed load only raises the alert.
func (p *Page) Reset(doc *dom.Document, l *i18n.Localizer) {}

// FailureMessage surfaces the server's {error} or {mensaje} when it sent one.
func (p *Page) FailureMessage(err error, l *i18n.Localizer) string {
	if msg := backend.ServerMessage(err); msg != "" {
		return l.T("dashboard.error_servidor", map[string]string{"error": msg})
	}
	if errors.KindOf(err) == errors.KindPayload {
		return l.T("dashboard.formato_inesperado")
	}
	status := "error"
	var appErr *errors.AppError
	if errors.As(err, &appErr) && appErr.Details["status"] != "" {
		status = appErr.Details["status"]
	}
	return l.T("dashboard.error_carga_detalle", map[string]string{"error": status})
}

// Changed reloads doctors on a specialty change.
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
		{Name: "tarjetas", Stage: render.StageMetrics, Requires: []string{"total_general", "distribucion_origen"}, Apply: applyCards},
		{Name: "especialidades", Stage: render.StageTable, Apply: applySpecialtyTable},
		{Name: "interpretacion", Stage: render.StageTable, Requires: []string{"total_general", "distribucion_origen"}, Apply: applyInterpretation},
		{Name: "distribucion", Stage: render.StageChart, Requires: []string{"distribucion_origen"}, Apply: applyDistribution},
		{Name: "estados", Stage: render.StageChart, Requires: []string{"estados"}, Apply: applyStatuses},
		{Name: "tendencia", Stage: render.StageChart, Requires: []string{"dias_semana"}, Apply: applyTrend},
	}
}
