package dom

// Tags used by page layouts.
const (
	TagInput     = "input"
	TagSelect    = "select"
	TagButton    = "button"
	TagCanvas    = "canvas"
	TagTable     = "table"
	TagDiv       = "div"
	TagSpan      = "span"
	TagTextarea  = "textarea"
	TagCheckbox  = "checkbox"
	TagListGroup = "ul"
)

// Option is one entry of a select control.
type Option struct {
	Value    string            `json:"value"`
	Text     string            `json:"text"`
	Selected bool              `json:"selected,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
}

// ChartBinding describes the live chart widget bound to a canvas.
type ChartBinding struct {
	Instance uint64      `json:"instance"`
	Type     string      `json:"type"`
	Config   interface{} `json:"config"`
}

// Element is one addressable node of a page.
type Element struct {
	ID       string            `json:"id"`
	Tag      string            `json:"tag"`
	Text     string            `json:"text,omitempty"`
	Classes  []string          `json:"classes,omitempty"`
	Hidden   bool              `json:"hidden,omitempty"`
	Disabled bool              `json:"disabled,omitempty"`
	Value    string            `json:"value,omitempty"`
	Values   []string          `json:"values,omitempty"`
	Options  []Option          `json:"options,omitempty"`
	Rows     [][]string        `json:"rows,omitempty"`
	Items    []Item            `json:"items,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Chart    *ChartBinding     `json:"chart,omitempty"`
}

// Item is a list entry such as a notification or a selected medication.
type Item struct {
	ID      string            `json:"id"`
	Text    string            `json:"text"`
	Classes []string          `json:"classes,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// HasClass reports whether class is set.
func (e *Element) HasClass(class string) bool {
	for _, c := range e.Classes {
		if c == class {
			return true
		}
	}
	return false
}

// AddClass adds each class not already present, keeping insertion order.
func (e *Element) AddClass(classes ...string) {
	for _, c := range classes {
		if c != "" && !e.HasClass(c) {
			e.Classes = append(e.Classes, c)
		}
	}
}

// RemoveClass removes the given classes if present.
func (e *Element) RemoveClass(classes ...string) {
	if len(e.Classes) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(classes))
	for _, c := range classes {
		drop[c] = struct{}{}
	}
	kept := e.Classes[:0]
	for _, c := range e.Classes {
		if _, ok := drop[c]; !ok {
			kept = append(kept, c)
		}
	}
	e.Classes = kept
}

// ToggleClass sets or clears class.
func (e *Element) ToggleClass(class string, on bool) {
	if on {
		e.AddClass(class)
	} else {
		e.RemoveClass(class)
	}
}

// SetAttr sets an attribute; an empty value removes it.
func (e *Element) SetAttr(key, value string) {
	if value == "" {
		delete(e.Attrs, key)
		return
	}
	if e.Attrs == nil {
		e.Attrs = make(map[string]string)
	}
	e.Attrs[key] = value
}

// Attr returns an attribute value or "".
func (e *Element) Attr(key string) string {
	return e.Attrs[key]
}

// SelectValue marks the option with value as selected and mirrors it in Value.
// It returns false when no option carries value.
func (e *Element) SelectValue(value string) bool {
	found := false
	for i := range e.Options {
		e.Options[i].Selected = e.Options[i].Value == value && !found
		if e.Options[i].Selected {
			found = true
		}
	}
	if found {
		e.Value = value
	}
	return found
}

func (e Element) clone() Element {
	out := e
	out.Classes = append([]string(nil), e.Classes...)
	out.Values = append([]string(nil), e.Values...)
	if e.Options != nil {
		out.Options = make([]Option, len(e.Options))
		for i, o := range e.Options {
			o.Attrs = cloneMap(o.Attrs)
			out.Options[i] = o
		}
	}
	if e.Rows != nil {
		out.Rows = make([][]string, len(e.Rows))
		for i, r := range e.Rows {
			out.Rows[i] = append([]string(nil), r...)
		}
	}
	if e.Items != nil {
		out.Items = make([]Item, len(e.Items))
		for i, it := range e.Items {
			it.Classes = append([]string(nil), it.Classes...)
			it.Fields = cloneMap(it.Fields)
			out.Items[i] = it
		}
	}
	out.Attrs = cloneMap(e.Attrs)
	if e.Chart != nil {
		c := *e.Chart
		out.Chart = &c
	}
	return out
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
