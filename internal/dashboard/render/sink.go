// Package render fans a decoded payload out to independent widget updaters.
package render

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"

	"github.com/hospitaltm/citas-dashboard/internal/dashboard/chart"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/fetch"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/filter"
	"github.com/hospitaltm/citas-dashboard/pkg/dom"
	"github.com/hospitaltm/citas-dashboard/pkg/errors"
	"github.com/hospitaltm/citas-dashboard/pkg/i18n"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
)

// Stage orders updaters within a cycle.
type Stage int

const (
	StageMetrics Stage = iota
	StageTable
	StageChart
)

func (s Stage) String() string {
	switch s {
	case StageMetrics:
		return "metrics"
	case StageTable:
		return "table"
	default:
		return "chart"
	}
}

// ErrMissingElement is the cause of a render error for an essential element.
var ErrMissingElement = stderrors.New("element missing")

// Input is what every updater of a cycle sees.
type Input struct {
	Doc     *dom.Document
	Payload fetch.Payload
	Filters filter.Set
	Charts  *chart.Manager
	L       *i18n.Localizer
	Log     *logger.Logger
	Cycle   uint64

	charts map[string]chart.Outcome
}

// T localizes key.
func (in *Input) T(key string, params ...map[string]string) string {
	return in.L.T(key, params...)
}

// SetText writes text to a non-essential element; a missing one is logged and skipped.
func (in *Input) SetText(id, text string) {
	if !in.Doc.SetText(id, text) {
		in.Log.Debug().Str("element", id).Msg("optional element missing, skipped")
	}
}

// MustSetText writes text to an essential element.
func (in *Input) MustSetText(id, text string) error {
	if !in.Doc.SetText(id, text) {
		return errors.Render(id, ErrMissingElement)
	}
	return nil
}

// Chart hands a config to the chart manager. The outcome lands on the report.
func (in *Input) Chart(ctx context.Context, canvasID, paneID string, cfg *chart.Config) error {
	out, err := in.Charts.Render(ctx, chart.Request{CanvasID: canvasID, PaneID: paneID, Config: cfg})
	in.Log.Debug().Str("canvas", canvasID).Str("outcome", out.String()).Msg("chart render")
	if in.charts == nil {
		in.charts = make(map[string]chart.Outcome)
	}
	in.charts[canvasID] = out
	return err
}

// Updater renders one widget from the payload.
type Updater struct {
	Name  string
	Stage Stage
	// Requires lists payload paths checked before Apply runs.
	Requires []string
	// Pane ties a chart updater to a tab pane; ActivateTab re-runs it.
	Pane  string
	Apply func(ctx context.Context, in *Input) error
}

// Report is the outcome of one dispatch. An updater whose chart render was
// dropped because the canvas was busy is listed in Dropped, not Applied.
type Report struct {
	Applied []string
	Skipped []string
	Dropped []string
	Failed  map[string]error
	// Charts maps canvas ids to what the chart manager did with them.
	Charts map[string]chart.Outcome
}

// Err returns the first failure in dispatch order, or nil.
func (r Report) Err(order []string) error {
	for _, name := range order {
		if err, ok := r.Failed[name]; ok {
			return err
		}
	}
	return nil
}

// MarshalJSON writes failures as their messages.
func (r Report) MarshalJSON() ([]byte, error) {
	failed := make(map[string]string, len(r.Failed))
	for name, err := range r.Failed {
		failed[name] = err.Error()
	}
	charts := make(map[string]string, len(r.Charts))
	for canvas, out := range r.Charts {
		charts[canvas] = out.String()
	}
	return json.Marshal(struct {
		Applied []string          `json:"applied"`
		Skipped []string          `json:"skipped"`
		Dropped []string          `json:"dropped,omitempty"`
		Failed  map[string]string `json:"failed,omitempty"`
		Charts  map[string]string `json:"charts,omitempty"`
	}{r.Applied, r.Skipped, r.Dropped, failed, charts})
}

// Sink runs updaters in stage order. One updater failing never stops the others.
type Sink struct {
	updaters []Updater
	logger   *logger.Logger
}

// NewSink sorts updaters by stage, keeping declaration order within a stage.
func NewSink(log *logger.Logger, updaters ...Updater) *Sink {
	sorted := append([]Updater(nil), updaters...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Stage < sorted[j].Stage })
	return &Sink{updaters: sorted, logger: log.WithComponent("render")}
}

// Updaters returns the updaters in dispatch order.
func (s *Sink) Updaters() []Updater {
	return append([]Updater(nil), s.updaters...)
}

// Dispatch runs every updater.
func (s *Sink) Dispatch(ctx context.Context, in *Input) Report {
	return s.DispatchWhere(ctx, in, nil)
}

// DispatchWhere runs the updaters accepted by keep (all when keep is nil).
func (s *Sink) DispatchWhere(ctx context.Context, in *Input, keep func(Updater) bool) Report {
	report := Report{Failed: map[string]error{}, Charts: map[string]chart.Outcome{}}
	for _, u := range s.updaters {
		if keep != nil && !keep(u) {
			continue
		}
		if missing := firstMissing(in.Payload, u.Requires); missing != "" {
			s.logger.Warn().Str("updater", u.Name).Str("path", missing).Msg("payload section missing, updater skipped")
			report.Skipped = append(report.Skipped, u.Name)
			continue
		}
		in.charts = nil
		err := s.run(ctx, u, in)
		dropped := false
		for canvas, out := range in.charts {
			report.Charts[canvas] = out
			dropped = dropped || out == chart.OutcomeDropped
		}
		if err != nil {
			s.logger.Error().Err(err).Str("updater", u.Name).Str("stage", u.Stage.String()).Msg("updater failed")
			report.Failed[u.Name] = err
			continue
		}
		if dropped {
			report.Dropped = append(report.Dropped, u.Name)
			continue
		}
		report.Applied = append(report.Applied, u.Name)
	}
	return report
}

func (s *Sink) run(ctx context.Context, u Updater, in *Input) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Render(u.Name, fmt.Errorf("panic: %v", r))
		}
	}()
	return u.Apply(ctx, in)
}

func firstMissing(p fetch.Payload, paths []string) string {
	for _, path := range paths {
		if !p.Has(path) {
			return path
		}
	}
	return ""
}
