package dom

// Input is a text or date input with an initial value.
func Input(id, value string) Element {
	return Element{ID: id, Tag: TagInput, Value: value}
}

// Select is a select control; the first selected option (or the first one) becomes its value.
func Select(id string, opts ...Option) Element {
	el := Element{ID: id, Tag: TagSelect, Options: opts}
	for _, o := range opts {
		if o.Selected {
			el.Value = o.Value
			return el
		}
	}
	if len(opts) > 0 {
		el.Value = opts[0].Value
	}
	return el
}

// MultiSelect is a select control allowing several values.
func MultiSelect(id string, opts ...Option) Element {
	el := Element{ID: id, Tag: TagSelect, Options: opts, Attrs: map[string]string{"multiple": "multiple"}}
	for _, o := range opts {
		if o.Selected {
			el.Values = append(el.Values, o.Value)
		}
	}
	return el
}

// Canvas is a chart target.
func Canvas(id string) Element {
	return Element{ID: id, Tag: TagCanvas}
}

// Text is a span holding display text.
func Text(id, text string) Element {
	return Element{ID: id, Tag: TagSpan, Text: text}
}

// Table is a table whose body rows are rendered server side.
func Table(id string) Element {
	return Element{ID: id, Tag: TagTable}
}

// Container is a div with classes.
func Container(id string, classes ...string) Element {
	return Element{ID: id, Tag: TagDiv, Classes: classes}
}

// Button is a clickable control.
func Button(id, text string, classes ...string) Element {
	return Element{ID: id, Tag: TagButton, Text: text, Classes: classes}
}

// Hide returns el hidden.
func Hide(el Element) Element {
	el.Hidden = true
	return el
}

// Disable returns el disabled.
func Disable(el Element) Element {
	el.Disabled = true
	return el
}
