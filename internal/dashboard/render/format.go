package render

import (
	"fmt"
	"math"

	"github.com/hospitaltm/citas-dashboard/pkg/dom"
)

// Percent formats v with one decimal and a percent sign.
func Percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

// Ratio returns part as a percentage of whole, or 0 when whole is 0.
func Ratio(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part * 100 / whole
}

// Tier is one threshold band; values >= Min fall in it.
type Tier struct {
	Min   float64
	Class string
}

// Tiers are bands ordered from highest Min to lowest. The last band catches the rest.
type Tiers []Tier

// RecoveryTiers classifies the no-show recovery rate.
var RecoveryTiers = Tiers{
	{Min: 70, Class: "recovery-high"},
	{Min: 40, Class: "recovery-medium"},
	{Min: math.Inf(-1), Class: "recovery-low"},
}

// Classify returns the class of the band v falls in.
func (t Tiers) Classify(v float64) string {
	for _, tier := range t {
		if v >= tier.Min {
			return tier.Class
		}
	}
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1].Class
}

// Classes lists every band class.
func (t Tiers) Classes() []string {
	out := make([]string, len(t))
	for i, tier := range t {
		out[i] = tier.Class
	}
	return out
}

// Apply clears every band marker from el and sets the one for v.
func (t Tiers) Apply(el *dom.Element, v float64) string {
	el.RemoveClass(t.Classes()...)
	class := t.Classify(v)
	el.AddClass(class)
	return class
}
