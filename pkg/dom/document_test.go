package dom_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospitaltm/citas-dashboard/pkg/dom"
)

func newDoc() *dom.Document {
	return dom.New("asistencia",
		dom.Input("fecha_inicio", "2025-01-01"),
		dom.Select("especialidad_id",
			dom.Option{Value: "0", Text: "Todas"},
			dom.Option{Value: "3", Text: "Cardiología"},
		),
		dom.Text("tasa-recuperacion", "0%"),
		dom.Canvas("graficoEvolucion"),
	)
}

func TestDocument_ClassesAreASet(t *testing.T) {
	doc := newDoc()

	require.True(t, doc.AddClass("tasa-recuperacion", "recovery-high", "recovery-high"))
	doc.RemoveClass("tasa-recuperacion", "recovery-high")
	doc.AddClass("tasa-recuperacion", "recovery-medium")

	el, ok := doc.Get("tasa-recuperacion")
	require.True(t, ok)
	assert.Equal(t, []string{"recovery-medium"}, el.Classes)
}

func TestDocument_MissingElement(t *testing.T) {
	doc := newDoc()
	called := false

	assert.False(t, doc.Update("nope", func(*dom.Element) { called = true }))
	assert.False(t, called)
	assert.True(t, doc.IsHidden("nope"))
	_, ok := doc.Value("nope")
	assert.False(t, ok)
}

func TestDocument_SelectValue(t *testing.T) {
	doc := newDoc()
	v, _ := doc.Value("especialidad_id")
	assert.Equal(t, "0", v)

	doc.SetValue("especialidad_id", "3")
	el, _ := doc.Get("especialidad_id")
	assert.Equal(t, "3", el.Value)
	assert.False(t, el.Options[0].Selected)
	assert.True(t, el.Options[1].Selected)
}

func TestDocument_SetOptionsResetsValue(t *testing.T) {
	doc := newDoc()
	doc.SetOptions("especialidad_id", []dom.Option{{Value: "", Text: "Todos"}})

	v, _ := doc.Value("especialidad_id")
	assert.Equal(t, "", v)
}

func TestDocument_SnapshotIsACopy(t *testing.T) {
	doc := newDoc()
	snap := doc.Snapshot()
	doc.SetText("tasa-recuperacion", "45.0%")

	el, ok := snap.Element("tasa-recuperacion")
	require.True(t, ok)
	assert.Equal(t, "0%", el.Text)
	assert.Equal(t, "fecha_inicio", snap.Elements[0].ID)
	assert.Greater(t, doc.Version(), snap.Version)
}

func TestDocument_Alerts(t *testing.T) {
	doc := newDoc()
	doc.Alert(dom.AlertWarning, "Seleccione ambas fechas", true)

	require.Len(t, doc.Alerts(), 1)
	assert.True(t, doc.Alerts()[0].Blocking)
	assert.Equal(t, 1, doc.AcknowledgeAlerts())
	assert.Empty(t, doc.Alerts())
}

func TestDocument_EnsureAndRemove(t *testing.T) {
	doc := newDoc()

	assert.True(t, doc.Ensure("interpretacion-container", dom.TagDiv))
	assert.False(t, doc.Ensure("interpretacion-container", dom.TagDiv))
	assert.True(t, doc.Remove("interpretacion-container"))
	assert.False(t, doc.Has("interpretacion-container"))
}

func TestDocument_ConcurrentAccess(t *testing.T) {
	doc := newDoc()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			doc.AddClass("graficoEvolucion", "loading")
			doc.RemoveClass("graficoEvolucion", "loading")
		}()
		go func() {
			defer wg.Done()
			_ = doc.Snapshot()
		}()
	}
	wg.Wait()

	el, _ := doc.Get("graficoEvolucion")
	assert.False(t, el.HasClass("loading"))
}
