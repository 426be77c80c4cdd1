package chart

import (
	"fmt"
	"strconv"
	"strings"
)

// Chart types understood by the browser widget library.
const (
	TypeLine     = "line"
	TypeBar      = "bar"
	TypeDoughnut = "doughnut"
)

// Dataset is one series of a chart.
type Dataset struct {
	Label           string      `json:"label"`
	Data            []float64   `json:"data"`
	BorderColor     interface{} `json:"borderColor,omitempty"`
	BackgroundColor interface{} `json:"backgroundColor,omitempty"`
	BorderWidth     int         `json:"borderWidth,omitempty"`
	Fill            bool        `json:"fill"`
	Tension         float64     `json:"tension,omitempty"`
	PointRadius     *int        `json:"pointRadius,omitempty"`
}

// Config is everything needed to construct one widget.
type Config struct {
	Type     string                 `json:"type"`
	Labels   []string               `json:"labels"`
	Datasets []Dataset              `json:"datasets"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// HasData reports whether the config would draw anything.
func (c *Config) HasData() bool {
	if c == nil || len(c.Labels) == 0 {
		return false
	}
	for _, ds := range c.Datasets {
		if len(ds.Data) > 0 {
			return true
		}
	}
	return false
}

// HexToRGBA converts "#rrggbb" (or "#rgb") to an rgba() string.
// Invalid input yields grey at the requested alpha.
func HexToRGBA(hex string, alpha float64) string {
	h := strings.TrimPrefix(hex, "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	a := strconv.FormatFloat(alpha, 'f', -1, 64)
	if len(h) != 6 {
		return fmt.Sprintf("rgba(153, 153, 153, %s)", a)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return fmt.Sprintf("rgba(153, 153, 153, %s)", a)
	}
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", v>>16&0xff, v>>8&0xff, v&0xff, a)
}

// AxisTitle builds the options fragment for a titled axis.
func AxisTitle(text string) map[string]interface{} {
	return map[string]interface{}{"display": true, "text": text}
}
