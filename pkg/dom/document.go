// Package dom holds the server-side model of a dashboard page: addressable
// elements, their state and the alert queue shown to the user.
package dom

import (
	"sync"
)

// Alert levels.
const (
	AlertDanger  = "danger"
	AlertWarning = "warning"
	AlertInfo    = "info"
	AlertSuccess = "success"
)

// Alert is a message for the user. Blocking alerts must be acknowledged.
type Alert struct {
	Level    string `json:"level"`
	Message  string `json:"message"`
	Blocking bool   `json:"blocking,omitempty"`
}

// Snapshot is an immutable copy of a Document.
type Snapshot struct {
	Page     string    `json:"page"`
	Version  uint64    `json:"version"`
	Elements []Element `json:"elements"`
	Alerts   []Alert   `json:"alerts,omitempty"`
}

// Element returns the element with id from the snapshot.
func (s Snapshot) Element(id string) (Element, bool) {
	for _, e := range s.Elements {
		if e.ID == id {
			return e, true
		}
	}
	return Element{}, false
}

// Document is a page's element tree flattened by id. Safe for concurrent use.
type Document struct {
	mu       sync.RWMutex
	page     string
	order    []string
	elements map[string]*Element
	alerts   []Alert
	version  uint64
}

// New builds a document for page from its layout.
func New(page string, layout ...Element) *Document {
	d := &Document{
		page:     page,
		elements: make(map[string]*Element, len(layout)),
	}
	for _, el := range layout {
		d.addLocked(el)
	}
	return d
}

// Page returns the page name.
func (d *Document) Page() string {
	return d.page
}

// Version increases on every mutation.
func (d *Document) Version() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// Has reports whether id exists.
func (d *Document) Has(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.elements[id]
	return ok
}

// Get returns a copy of the element.
func (d *Document) Get(id string) (Element, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	el, ok := d.elements[id]
	if !ok {
		return Element{}, false
	}
	return el.clone(), true
}

// Add inserts el, replacing an element with the same id in place.
func (d *Document) Add(el Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addLocked(el)
	d.version++
}

// Ensure returns true after creating id with tag if it did not exist.
func (d *Document) Ensure(id, tag string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.elements[id]; ok {
		return false
	}
	d.addLocked(Element{ID: id, Tag: tag})
	d.version++
	return true
}

// Remove deletes id. It returns false when id did not exist.
func (d *Document) Remove(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.elements[id]; !ok {
		return false
	}
	delete(d.elements, id)
	for i, v := range d.order {
		if v == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	d.version++
	return true
}

// Update applies fn to the element under the document lock.
// It returns false, without calling fn, when id does not exist.
func (d *Document) Update(id string, fn func(*Element)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := d.elements[id]
	if !ok {
		return false
	}
	fn(el)
	d.version++
	return true
}

// SetText sets the text of id.
func (d *Document) SetText(id, text string) bool {
	return d.Update(id, func(e *Element) { e.Text = text })
}

// Text returns the text of id.
func (d *Document) Text(id string) string {
	el, _ := d.Get(id)
	return el.Text
}

// SetValue sets the value of a control. For selects the matching option is marked.
func (d *Document) SetValue(id, value string) bool {
	return d.Update(id, func(e *Element) {
		if len(e.Options) > 0 {
			if e.SelectValue(value) {
				return
			}
		}
		e.Value = value
	})
}

// SetValues sets the selection of a multi-select control.
func (d *Document) SetValues(id string, values []string) bool {
	return d.Update(id, func(e *Element) {
		e.Values = append([]string(nil), values...)
		selected := make(map[string]bool, len(values))
		for _, v := range values {
			selected[v] = true
		}
		for i := range e.Options {
			e.Options[i].Selected = selected[e.Options[i].Value]
		}
	})
}

// Value returns the current value of a control.
func (d *Document) Value(id string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	el, ok := d.elements[id]
	if !ok {
		return "", false
	}
	return el.Value, true
}

// Values returns the current selection of a multi-select control.
func (d *Document) Values(id string) ([]string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	el, ok := d.elements[id]
	if !ok {
		return nil, false
	}
	return append([]string(nil), el.Values...), true
}

// SetHidden shows or hides id.
func (d *Document) SetHidden(id string, hidden bool) bool {
	return d.Update(id, func(e *Element) { e.Hidden = hidden })
}

// IsHidden reports whether id is hidden. A missing element counts as hidden.
func (d *Document) IsHidden(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	el, ok := d.elements[id]
	return !ok || el.Hidden
}

// SetDisabled enables or disables a control.
func (d *Document) SetDisabled(id string, disabled bool) bool {
	return d.Update(id, func(e *Element) { e.Disabled = disabled })
}

// SetOptions replaces the options of a select, keeping the first selected option as value.
func (d *Document) SetOptions(id string, opts []Option) bool {
	return d.Update(id, func(e *Element) {
		e.Options = append([]Option(nil), opts...)
		e.Value = ""
		for _, o := range e.Options {
			if o.Selected {
				e.Value = o.Value
				return
			}
		}
		if len(e.Options) > 0 {
			e.Value = e.Options[0].Value
		}
	})
}

// SetRows replaces the body rows of a table.
func (d *Document) SetRows(id string, rows [][]string) bool {
	return d.Update(id, func(e *Element) { e.Rows = rows })
}

// SetItems replaces the entries of a list.
func (d *Document) SetItems(id string, items []Item) bool {
	return d.Update(id, func(e *Element) { e.Items = items })
}

// AddClass adds classes to id.
func (d *Document) AddClass(id string, classes ...string) bool {
	return d.Update(id, func(e *Element) { e.AddClass(classes...) })
}

// RemoveClass removes classes from id.
func (d *Document) RemoveClass(id string, classes ...string) bool {
	return d.Update(id, func(e *Element) { e.RemoveClass(classes...) })
}

// SetAttr sets an attribute on id.
func (d *Document) SetAttr(id, key, value string) bool {
	return d.Update(id, func(e *Element) { e.SetAttr(key, value) })
}

// Alert queues a message for the user.
func (d *Document) Alert(level, message string, blocking bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerts = append(d.alerts, Alert{Level: level, Message: message, Blocking: blocking})
	d.version++
}

// Alerts returns the pending alerts.
func (d *Document) Alerts() []Alert {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Alert(nil), d.alerts...)
}

// AcknowledgeAlerts clears the alert queue and returns how many were pending.
func (d *Document) AcknowledgeAlerts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.alerts)
	d.alerts = nil
	if n > 0 {
		d.version++
	}
	return n
}

// Snapshot copies the document in layout order.
func (d *Document) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := Snapshot{
		Page:     d.page,
		Version:  d.version,
		Elements: make([]Element, 0, len(d.order)),
		Alerts:   append([]Alert(nil), d.alerts...),
	}
	for _, id := range d.order {
		s.Elements = append(s.Elements, d.elements[id].clone())
	}
	return s
}

func (d *Document) addLocked(el Element) {
	c := el.clone()
	if _, ok := d.elements[el.ID]; !ok {
		d.order = append(d.order, el.ID)
	}
	d.elements[el.ID] = &c
}
