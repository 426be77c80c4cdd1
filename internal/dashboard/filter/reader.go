// Package filter reads the filter controls of a page into a Set and
// validates it before any request is issued.
package filter

import (
	"time"

	"github.com/hospitaltm/citas-dashboard/pkg/dom"
	"github.com/hospitaltm/citas-dashboard/pkg/errors"
	"github.com/hospitaltm/citas-dashboard/pkg/httputil"
)

// Kind tells the validator how to check a field.
type Kind int

const (
	KindText Kind = iota
	KindDate
	KindID
	KindEnum
	KindMulti
)

// Field maps one control to one query key.
type Field struct {
	Key string
	// Control is the element id; Key is used when empty.
	Control string
	Kind    Kind
	// Allowed lists the accepted values of enum and multi fields.
	Allowed []string
	// Label names the field in validation messages.
	Label string
}

func (f Field) control() string {
	if f.Control != "" {
		return f.Control
	}
	return f.Key
}

// Range pairs two date keys that must both be set with Start <= End.
type Range struct {
	Start, End string
	// Optional ranges may be left entirely empty.
	Optional bool
}

// Reader describes the filters of one page.
type Reader struct {
	Fields []Field
	Ranges []Range
}

// Read takes one reading of every configured control. Missing controls are absent from the set.
func (r Reader) Read(doc *dom.Document) Set {
	var s Set
	for _, f := range r.Fields {
		if f.Kind == KindMulti {
			if vals, ok := doc.Values(f.control()); ok {
				s = s.With(f.Key, vals...)
			}
			continue
		}
		if v, ok := doc.Value(f.control()); ok {
			s = s.With(f.Key, v)
		}
	}
	return s
}

// Validate checks date ranges and enumerations. The returned error is an
// InvalidInput AppError whose message is ready for a blocking alert.
func (r Reader) Validate(set Set) error {
	for _, rg := range r.Ranges {
		if err := validateRange(set, rg); err != nil {
			return err
		}
	}

	for _, f := range r.Fields {
		if !set.Has(f.Key) {
			continue
		}
		switch f.Kind {
		case KindDate:
			if err := httputil.Var(set.Get(f.Key), "fecha"); err != nil {
				return errors.InvalidInput("filtros.fecha_invalida")
			}
		case KindID:
			if err := httputil.Var(set.Get(f.Key), "omitempty,numeric"); err != nil {
				return invalidValue(f, set.Get(f.Key))
			}
		case KindEnum:
			if v := set.Get(f.Key); v != "" && !contains(f.Allowed, v) {
				return invalidValue(f, v)
			}
		case KindMulti:
			for _, v := range set.Values(f.Key) {
				if !contains(f.Allowed, v) {
					return invalidValue(f, v)
				}
			}
		}
	}
	return nil
}

func validateRange(set Set, rg Range) error {
	start, end := set.Get(rg.Start), set.Get(rg.End)
	if start == "" && end == "" && rg.Optional {
		return nil
	}
	if start == "" || end == "" {
		return errors.InvalidInput("filtros.ambas_fechas")
	}
	if httputil.Var(start, "required,fecha") != nil || httputil.Var(end, "required,fecha") != nil {
		return errors.InvalidInput("filtros.fecha_invalida")
	}
	s, _ := time.Parse(httputil.DateLayout, start)
	e, _ := time.Parse(httputil.DateLayout, end)
	if s.After(e) {
		return errors.InvalidInput("filtros.rango_invertido")
	}
	return nil
}

func invalidValue(f Field, v string) error {
	label := f.Label
	if label == "" {
		label = f.Key
	}
	return errors.InvalidInput("filtros.valor_invalido", map[string]string{"campo": label, "valor": v})
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
