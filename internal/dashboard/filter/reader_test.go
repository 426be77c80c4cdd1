package filter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospitaltm/citas-dashboard/internal/dashboard/filter"
	"github.com/hospitaltm/citas-dashboard/pkg/dom"
	apperrors "github.com/hospitaltm/citas-dashboard/pkg/errors"
)

var trendReader = filter.Reader{
	Fields: []filter.Field{
		{Key: "fecha_inicio", Kind: filter.KindDate},
		{Key: "fecha_fin", Kind: filter.KindDate},
		{Key: "especialidad_id", Control: "especialidad", Kind: filter.KindID},
		{Key: "agrupacion", Kind: filter.KindEnum, Allowed: []string{"dia", "semana", "mes"}},
		{Key: "estados", Kind: filter.KindMulti, Allowed: []string{"pendiente", "confirmada", "atendida", "cancelada"}},
	},
	Ranges: []filter.Range{{Start: "fecha_inicio", End: "fecha_fin"}},
}

func trendDoc(inicio, fin string) *dom.Document {
	return dom.New("tendencias",
		dom.Input("fecha_inicio", inicio),
		dom.Input("fecha_fin", fin),
		dom.Select("especialidad", dom.Option{Value: "0"}, dom.Option{Value: "4"}),
		dom.Select("agrupacion", dom.Option{Value: "dia"}, dom.Option{Value: "mes"}),
		dom.MultiSelect("estados",
			dom.Option{Value: "pendiente", Selected: true},
			dom.Option{Value: "atendida", Selected: true},
		),
	)
}

func TestRead_OrderAndValues(t *testing.T) {
	doc := trendDoc("2025-01-01", "2025-01-31")
	set := trendReader.Read(doc)

	assert.Equal(t, []string{"fecha_inicio", "fecha_fin", "especialidad_id", "agrupacion", "estados"}, set.Keys())
	assert.Equal(t, "0", set.Get("especialidad_id"))
	assert.Equal(t, []string{"pendiente", "atendida"}, set.Values("estados"))
	assert.Equal(t, "pendiente,atendida", set.Get("estados"))
}

func TestRead_MissingControlIsAbsent(t *testing.T) {
	doc := dom.New("tendencias", dom.Input("fecha_inicio", "2025-01-01"))
	set := trendReader.Read(doc)

	assert.True(t, set.Has("fecha_inicio"))
	assert.False(t, set.Has("fecha_fin"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		set     filter.Set
		wantMsg string
	}{
		{
			name: "valid",
			set:  filter.NewSet("fecha_inicio", "2025-01-01", "fecha_fin", "2025-01-31", "agrupacion", "mes"),
		},
		{
			name:    "start after end",
			set:     filter.NewSet("fecha_inicio", "2025-02-01", "fecha_fin", "2025-01-31"),
			wantMsg: "La fecha de inicio no puede ser posterior a la fecha fin",
		},
		{
			name:    "missing end",
			set:     filter.NewSet("fecha_inicio", "2025-02-01", "fecha_fin", ""),
			wantMsg: "Por favor seleccione ambas fechas",
		},
		{
			name:    "unparseable",
			set:     filter.NewSet("fecha_inicio", "01/02/2025", "fecha_fin", "2025-03-01"),
			wantMsg: "Las fechas ingresadas no son válidas",
		},
		{
			name:    "bad grouping",
			set:     filter.NewSet("fecha_inicio", "2025-01-01", "fecha_fin", "2025-01-31", "agrupacion", "hora"),
			wantMsg: "El valor seleccionado para agrupacion no es válido",
		},
		{
			name: "bad status",
			set: filter.NewSet("fecha_inicio", "2025-01-01", "fecha_fin", "2025-01-31").
				With("estados", "pendiente", "perdida"),
			wantMsg: "El valor seleccionado para estados no es válido",
		},
		{
			name:    "non numeric id",
			set:     filter.NewSet("fecha_inicio", "2025-01-01", "fecha_fin", "2025-01-31", "especialidad_id", "abc"),
			wantMsg: "El valor seleccionado para especialidad_id no es válido",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := trendReader.Validate(tt.set)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			var appErr *apperrors.AppError
			require.True(t, apperrors.As(err, &appErr))
			assert.Equal(t, apperrors.KindValidation, appErr.Kind)
			assert.Equal(t, tt.wantMsg, appErr.Message)
		})
	}
}

func TestValidate_OptionalRange(t *testing.T) {
	r := filter.Reader{Ranges: []filter.Range{{Start: "a", End: "b", Optional: true}}}

	assert.NoError(t, r.Validate(filter.NewSet("a", "", "b", "")))
	assert.Error(t, r.Validate(filter.NewSet("a", "2025-01-01", "b", "")))
}

func TestSet_WithIsCopy(t *testing.T) {
	a := filter.NewSet("fecha_inicio", "2025-01-01")
	b := a.With("fecha_inicio", "2025-02-01").With("medico_id", "3")

	assert.Equal(t, "2025-01-01", a.Get("fecha_inicio"))
	assert.Equal(t, []string{"fecha_inicio", "medico_id"}, b.Keys())
	assert.False(t, a.Equal(b))
	assert.True(t, b.Equal(b.With("medico_id", "3")))
}
