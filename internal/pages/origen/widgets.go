package origen

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/hospitaltm/citas-dashboard/internal/dashboard/chart"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/fetch"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/render"
	"github.com/hospitaltm/citas-dashboard/pkg/i18n"
)

const specialtyName = "medico__especialidad__nombre"

func applyCards(ctx context.Context, in *render.Input) error {
	total := in.Payload.FloatOr("total_general", 0)
	in.SetText(TotalCitas, number(total))
	for _, o := range Origins {
		n := in.Payload.FloatOr("distribucion_origen."+o.Key, 0)
		in.SetText(o.Count, number(n))
		in.SetText(o.Share, share(n, total)+"%")
	}
	return nil
}

func applyDistribution(ctx context.Context, in *render.Input) error {
	labels := make([]string, len(Origins))
	data := make([]float64, len(Origins))
	colors := make([]string, len(Origins))
	for i, o := range Origins {
		labels[i] = in.T("origen.etiqueta." + o.Key)
		data[i] = in.Payload.FloatOr("distribucion_origen."+o.Key, 0)
		colors[i] = o.Color
	}
	return in.Chart(ctx, DistribucionChart, "", &chart.Config{
		Type:     chart.TypeDoughnut,
		Labels:   labels,
		Datasets: []chart.Dataset{{Data: data, BackgroundColor: colors, BorderWidth: 2}},
		Options: map[string]interface{}{
			"responsive":          true,
			"maintainAspectRatio": false,
			"plugins": map[string]interface{}{
				"legend": map[string]interface{}{"position": "right"},
			},
		},
	})
}

func applyStatuses(ctx context.Context, in *render.Input) error {
	labels := make([]string, len(fetch.Statuses))
	for i, s := range fetch.Statuses {
		labels[i] = in.T("estados." + s)
	}
	datasets := make([]chart.Dataset, 0, len(Origins))
	for _, o := range Origins {
		data := make([]float64, len(fetch.Statuses))
		for i, s := range fetch.Statuses {
			data[i] = in.Payload.FloatOr("estados."+o.Key+"."+s, 0)
		}
		datasets = append(datasets, chart.Dataset{
			Label:           in.T("origen.etiqueta." + o.Key),
			Data:            data,
			BackgroundColor: o.Color,
			BorderColor:     o.Color,
			BorderWidth:     1,
		})
	}
	return in.Chart(ctx, EstadosChart, "", &chart.Config{
		Type:     chart.TypeBar,
		Labels:   labels,
		Datasets: datasets,
		Options: map[string]interface{}{
			"responsive":          true,
			"maintainAspectRatio": false,
			"scales": map[string]interface{}{
				"y": map[string]interface{}{"beginAtZero": true},
			},
		},
	})
}

// applyTrend merges the dates of every origin; a date an origin lacks counts as zero.
func applyTrend(ctx context.Context, in *render.Input) error {
	seen := map[string]bool{}
	var dates []string
	for _, o := range Origins {
		for _, d := range in.Payload.Keys("dias_semana." + o.Key) {
			if !seen[d] {
				seen[d] = true
				dates = append(dates, d)
			}
		}
	}
	sort.Strings(dates)

	labels := make([]string, len(dates))
	for i, d := range dates {
		labels[i] = dayMonth(d)
	}
	datasets := make([]chart.Dataset, 0, len(Origins))
	for _, o := range Origins {
		data := make([]float64, len(dates))
		for i, d := range dates {
			data[i] = in.Payload.FloatOr("dias_semana."+o.Key+"."+d, 0)
		}
		datasets = append(datasets, chart.Dataset{
			Label:           in.T("origen.etiqueta." + o.Key),
			Data:            data,
			BackgroundColor: o.Color,
			BorderColor:     o.Color,
			Tension:         0.3,
		})
	}
	return in.Chart(ctx, TendenciaChart, "", &chart.Config{
		Type:     chart.TypeLine,
		Labels:   labels,
		Datasets: datasets,
		Options: map[string]interface{}{
			"responsive":          true,
			"maintainAspectRatio": false,
			"scales": map[string]interface{}{
				"x": map[string]interface{}{"title": chart.AxisTitle(in.T("origen.eje_fecha"))},
				"y": map[string]interface{}{"beginAtZero": true, "title": chart.AxisTitle(in.T("origen.eje_cantidad"))},
			},
		},
	})
}

// dayMonth turns YYYY-MM-DD into DD/MM.
func dayMonth(date string) string {
	parts := strings.Split(date, "-")
	if len(parts) != 3 {
		return date
	}
	return parts[2] + "/" + parts[1]
}

// SpecialtyRow is one line of the specialty table.
type SpecialtyRow struct {
	Name   string
	Counts map[string]float64
	Total  float64
}

// MergeSpecialties folds the per-origin specialty lists into one row per
// specialty, largest total first.
func MergeSpecialties(p fetch.Payload) []SpecialtyRow {
	index := map[string]int{}
	var rows []SpecialtyRow
	for _, o := range Origins {
		entries, _ := p.Objects("especialidades." + o.Key)
		for _, e := range entries {
			name, _ := e.String(specialtyName)
			if name == "" {
				continue
			}
			i, ok := index[name]
			if !ok {
				i = len(rows)
				index[name] = i
				rows = append(rows, SpecialtyRow{Name: name, Counts: map[string]float64{}})
			}
			n := e.FloatOr("total", 0)
			rows[i].Counts[o.Key] = n
			rows[i].Total += n
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Total > rows[j].Total })
	return rows
}

func applySpecialtyTable(ctx context.Context, in *render.Input) error {
	merged := MergeSpecialties(in.Payload)
	if len(merged) == 0 {
		in.Doc.SetRows(TablaEspecialidades, [][]string{{in.T("origen.sin_datos_tabla")}})
		return nil
	}
	rows := make([][]string, 0, len(merged))
	for _, r := range merged {
		row := []string{r.Name}
		for _, o := range Origins {
			row = append(row, number(r.Counts[o.Key]))
		}
		rows = append(rows, append(row, number(r.Total)))
	}
	if !in.Doc.SetRows(TablaEspecialidades, rows) {
		in.Log.Debug().Str("element", TablaEspecialidades).Msg("optional element missing, skipped")
	}
	return nil
}

func applyInterpretation(ctx context.Context, in *render.Input) error {
	in.SetText(Interpretacion, Interpret(in.L, in.Payload))
	return nil
}

// Interpret summarises the breakdown in a few sentences.
func Interpret(l *i18n.Localizer, p fetch.Payload) string {
	total := p.FloatOr("total_general", 0)
	if total == 0 {
		return l.T("origen.sin_datos")
	}

	type ranked struct {
		key   string
		value float64
	}
	order := make([]ranked, len(Origins))
	for i, o := range Origins {
		order[i] = ranked{key: o.Key, value: p.FloatOr("distribucion_origen."+o.Key, 0)}
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].value > order[j].value })

	var b strings.Builder
	b.WriteString("<p>" + l.T("origen.total", map[string]string{"total": number(total)}) + "</p>")
	b.WriteString("<p>" + l.T("origen.mayoria", map[string]string{
		"porcentaje": share(order[0].value, total),
		"origen":     l.T("origen.nombre." + order[0].key),
	}))
	b.WriteString(l.T("origen.seguidas", map[string]string{
		"porcentaje": share(order[1].value, total),
		"origen":     l.T("origen.nombre." + order[1].key),
	}) + ".</p>")

	parts := make([]string, len(Origins))
	for i, o := range Origins {
		parts[i] = share(p.FloatOr("distribucion_origen."+o.Key, 0), total) + "% " + l.T("origen.etiqueta."+o.Key)
	}
	b.WriteString("<p>" + l.T("origen.distribucion") + " " + strings.Join(parts, ", ") + "</p>")

	statusTotals := map[string]float64{}
	for _, o := range Origins {
		for _, s := range fetch.Statuses {
			statusTotals[s] += p.FloatOr("estados."+o.Key+"."+s, 0)
		}
	}
	var statuses []string
	for _, s := range []string{"atendida", "pendiente", "confirmada", "cancelada"} {
		statuses = append(statuses, share(statusTotals[s], total)+"% "+l.T("estados."+s+"s"))
	}
	b.WriteString("<p>" + l.T("origen.estados") + " " + strings.Join(statuses, ", ") + "</p>")

	if top := topSpecialties(p); len(top) > 0 {
		b.WriteString("<p>" + l.T("origen.especialidades", map[string]string{"lista": joinNames(l, top)}) + "</p>")
	}
	return b.String()
}

// topSpecialties takes the two busiest specialties of each origin, sums
// repeats and keeps the three largest.
func topSpecialties(p fetch.Payload) []string {
	sums := map[string]float64{}
	var names []string
	for _, o := range Origins {
		entries, _ := p.Objects("especialidades." + o.Key)
		var named []fetch.Payload
		for _, e := range entries {
			if n, _ := e.String(specialtyName); n != "" {
				named = append(named, e)
			}
		}
		sort.SliceStable(named, func(i, j int) bool { return named[i].FloatOr("total", 0) > named[j].FloatOr("total", 0) })
		if len(named) > 2 {
			named = named[:2]
		}
		for _, e := range named {
			n, _ := e.String(specialtyName)
			if _, ok := sums[n]; !ok {
				names = append(names, n)
			}
			sums[n] += e.FloatOr("total", 0)
		}
	}
	sort.SliceStable(names, func(i, j int) bool { return sums[names[i]] > sums[names[j]] })
	if len(names) > 3 {
		names = names[:3]
	}
	return names
}

func joinNames(l *i18n.Localizer, names []string) string {
	var b strings.Builder
	for i, n := range names {
		b.WriteString("<strong>" + n + "</strong>")
		switch {
		case i == len(names)-2:
			b.WriteString(l.T("origen.conjuncion"))
		case i < len(names)-2:
			b.WriteString(", ")
		}
	}
	return b.String()
}

// share is part/total as a one-decimal percentage, "0" when total is zero.
func share(part, total float64) string {
	if total == 0 {
		return "0"
	}
	return strconv.FormatFloat(render.Ratio(part, total), 'f', 1, 64)
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
