// Package derivacion drives the referral form: specialty, then doctor, then
// date, then an available slot, and finally the submission to the backend.
package derivacion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hospitaltm/citas-dashboard/internal/backend"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/fetch"
	"github.com/hospitaltm/citas-dashboard/internal/pages"
	"github.com/hospitaltm/citas-dashboard/pkg/dom"
	"github.com/hospitaltm/citas-dashboard/pkg/errors"
	"github.com/hospitaltm/citas-dashboard/pkg/httputil"
	"github.com/hospitaltm/citas-dashboard/pkg/i18n"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
)

// Backend paths.
const (
	DoctorsPath = "/api/derivacion/medicos-por-especialidad/%s/"
	SlotsPath   = "/api/derivacion/horarios-disponibles/%s/%s/"
	SubmitPath  = "/atencion/%s/"
)

// Element ids.
const (
	Especialidad = "especialidad"
	Medico       = "medico_especialista"
	Fecha        = "fecha_cita"
	Horario      = "horario_cita"
	Consultorio  = "consultorio"
	Motivo       = "motivo_derivacion"
	Seccion      = "seccion-agendamiento"
	CSRFField    = "csrfmiddlewaretoken"
)

// AttrConsultorio carries the room of a slot option.
const AttrConsultorio = "data-consultorio"

// Client is the part of the backend client the form uses.
type Client interface {
	fetch.Getter
	PostJSON(ctx context.Context, path string, tokens backend.TokenSource, body, out interface{}) error
}

// Deps are the per-session inputs of the form.
type Deps struct {
	Client    Client
	Lock      sync.Locker
	Localizer *i18n.Localizer
	Logger    *logger.Logger
	Now       func() time.Time
	// CitaID is the appointment being referred.
	CitaID         string
	Especialidades []dom.Option
	// Tokens overrides the CSRF form field as token source.
	Tokens backend.TokenSource
}

// Doctor is one entry of the specialist list.
type Doctor struct {
	ID        json.Number `json:"id"`
	Nombres   string      `json:"nombres"`
	Apellidos string      `json:"apellidos"`
	CMP       string      `json:"cmp"`
}

// Slot is one free appointment slot.
type Slot struct {
	ID          json.Number `json:"id"`
	HoraInicio  string      `json:"hora_inicio"`
	HoraFin     string      `json:"hora_fin"`
	Consultorio string      `json:"consultorio"`
}

// Form is one referral form.
type Form struct {
	client   Client
	lock     sync.Locker
	doc      *dom.Document
	l        *i18n.Localizer
	logger   *logger.Logger
	citaID   string
	tokens   backend.TokenSource
	doctors  fetch.Sequence
	slots    fetch.Sequence
	now      func() time.Time
	submitMu sync.Mutex
}

// New builds the form with the scheduling section hidden until a specialty is chosen.
func New(d Deps) *Form {
	if d.Lock == nil {
		d.Lock = &sync.Mutex{}
	}
	if d.Localizer == nil {
		d.Localizer = i18n.NewLocalizer(i18n.DefaultLocale)
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	f := &Form{
		client: d.Client,
		lock:   d.Lock,
		l:      d.Localizer,
		logger: d.Logger.WithComponent("derivacion"),
		citaID: d.CitaID,
		tokens: d.Tokens,
		now:    d.Now,
	}
	f.doc = dom.New(pages.Derivacion, f.layout(d.Especialidades)...)
	if f.tokens == nil {
		f.tokens = backend.FormFieldToken{Doc: f.doc, Field: CSRFField}
	}
	return f
}

func (f *Form) layout(especialidades []dom.Option) []dom.Element {
	fecha := dom.Disable(dom.Input(Fecha, ""))
	fecha.SetAttr("min", pages.Date(f.now()))
	motivo := dom.Input(Motivo, "")
	motivo.Tag = dom.TagTextarea
	consultorio := dom.Input(Consultorio, "")
	consultorio.SetAttr("readonly", "true")
	return []dom.Element{
		dom.Select(Especialidad, pages.SpecialtyOptions("", f.l.T("derivacion.seleccione_especialidad"), especialidades)...),
		dom.Hide(dom.Container(Seccion)),
		dom.Select(Medico, dom.Option{Value: "", Text: f.l.T("derivacion.seleccione_especialidad"), Selected: true}),
		fecha,
		dom.Disable(dom.Select(Horario, dom.Option{Value: "", Text: f.l.T("derivacion.medico_primero"), Selected: true})),
		consultorio,
		motivo,
		dom.Hide(dom.Input(CSRFField, "")),
	}
}

func (f *Form) Name() string { return pages.Derivacion }

func (f *Form) Document() *dom.Document { return f.doc }

// Changed runs the cascade step of control. Called without the session lock held.
func (f *Form) Changed(ctx context.Context, control string) error {
	switch control {
	case Especialidad:
		return f.loadDoctors(ctx)
	case Medico:
		f.doctorChanged()
	case Fecha:
		return f.loadSlots(ctx)
	case Horario:
		f.slotChanged()
	}
	return nil
}

func (f *Form) value(id string) string {
	v, _ := f.doc.Value(id)
	return v
}

func (f *Form) placeholder(id, key string, disabled bool) {
	f.doc.SetOptions(id, []dom.Option{{Value: "", Text: f.l.T(key), Selected: true}})
	f.doc.SetDisabled(id, disabled)
}

func (f *Form) loadDoctors(ctx context.Context) error {
	seq := f.doctors.Next()
	f.slots.Next()

	f.lock.Lock()
	specialty := f.value(Especialidad)
	f.resetSchedule()
	if specialty == "" {
		f.doc.SetHidden(Seccion, true)
		f.placeholder(Medico, "derivacion.seleccione_especialidad", false)
		f.lock.Unlock()
		return nil
	}
	f.doc.SetHidden(Seccion, false)
	f.placeholder(Medico, "derivacion.cargando_medicos", true)
	f.lock.Unlock()

	path := fmt.Sprintf(DoctorsPath, url.PathEscape(specialty))
	var doctors []Doctor
	err := f.getList(ctx, path, &doctors)

	f.lock.Lock()
	defer f.lock.Unlock()
	if !f.doctors.IsLatest(seq) {
		return errors.Stale(seq)
	}
	if err != nil {
		f.logger.Error().Err(err).Str("especialidad", specialty).Msg("failed to load specialists")
		f.placeholder(Medico, "derivacion.error_medicos", false)
		f.doc.Alert(dom.AlertDanger, f.l.T("derivacion.error_medicos"), false)
		return err
	}
	if len(doctors) == 0 {
		f.placeholder(Medico, "derivacion.sin_medicos", false)
		return nil
	}

	opts := []dom.Option{{Value: "", Text: f.l.T("derivacion.seleccione_medico"), Selected: true}}
	for _, d := range doctors {
		opts = append(opts, dom.Option{Value: d.ID.String(), Text: DoctorLabel(f.l, d)})
	}
	f.doc.SetOptions(Medico, opts)
	f.doc.SetDisabled(Medico, false)
	return nil
}

// resetSchedule clears date, slot and room. Caller holds the lock.
func (f *Form) resetSchedule() {
	f.doc.SetValue(Fecha, "")
	f.doc.SetDisabled(Fecha, true)
	f.placeholder(Horario, "derivacion.medico_primero", true)
	f.doc.SetValue(Consultorio, "")
}

func (f *Form) doctorChanged() {
	f.slots.Next()
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.value(Medico) != "" {
		f.doc.SetDisabled(Fecha, false)
		return
	}
	f.resetSchedule()
}

func (f *Form) loadSlots(ctx context.Context) error {
	seq := f.slots.Next()

	f.lock.Lock()
	medico, fecha := f.value(Medico), f.value(Fecha)
	f.doc.SetValue(Consultorio, "")
	if medico == "" || fecha == "" {
		f.placeholder(Horario, "derivacion.medico_y_fecha", true)
		f.lock.Unlock()
		return nil
	}
	if err := httputil.Var(fecha, "fecha"); err != nil {
		f.placeholder(Horario, "derivacion.medico_y_fecha", true)
		f.lock.Unlock()
		return errors.InvalidInput("filtros.fecha_invalida")
	}
	f.placeholder(Horario, "derivacion.cargando_horarios", true)
	f.lock.Unlock()

	path := fmt.Sprintf(SlotsPath, url.PathEscape(medico), url.PathEscape(fecha))
	var slots []Slot
	err := f.getList(ctx, path, &slots)

	f.lock.Lock()
	defer f.lock.Unlock()
	if !f.slots.IsLatest(seq) {
		return errors.Stale(seq)
	}
	if err != nil {
		f.logger.Error().Err(err).Str("medico", medico).Str("fecha", fecha).Msg("failed to load slots")
		f.placeholder(Horario, "derivacion.error_horarios", true)
		f.doc.Alert(dom.AlertDanger, f.l.T("derivacion.error_horarios"), false)
		return err
	}
	if len(slots) == 0 {
		f.placeholder(Horario, "derivacion.sin_horarios", false)
		return nil
	}

	opts := []dom.Option{{Value: "", Text: f.l.T("derivacion.seleccione_horario"), Selected: true}}
	for _, s := range slots {
		opts = append(opts, dom.Option{
			Value: s.ID.String(),
			Text:  s.HoraInicio + " - " + s.HoraFin,
			Attrs: map[string]string{AttrConsultorio: s.Consultorio},
		})
	}
	f.doc.SetOptions(Horario, opts)
	f.doc.SetDisabled(Horario, false)
	return nil
}

func (f *Form) slotChanged() {
	f.lock.Lock()
	defer f.lock.Unlock()
	room := ""
	if el, ok := f.doc.Get(Horario); ok {
		for _, o := range el.Options {
			if o.Value != "" && o.Value == el.Value {
				room = o.Attrs[AttrConsultorio]
			}
		}
	}
	f.doc.SetValue(Consultorio, room)
}

func (f *Form) getList(ctx context.Context, path string, v interface{}) error {
	raw, err := f.client.Get(ctx, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Payload(path, err)
	}
	return nil
}

// DoctorLabel is the option text of a specialist.
func DoctorLabel(l *i18n.Localizer, d Doctor) string {
	cmp := d.CMP
	if cmp == "" {
		cmp = l.T("derivacion.sin_cmp")
	}
	return l.T("derivacion.opcion_medico", map[string]string{
		"nombres":   d.Nombres,
		"apellidos": d.Apellidos,
		"cmp":       cmp,
	})
}

// Referral is the submitted form.
type Referral struct {
	Accion       string `json:"accion"`
	Especialidad string `json:"especialidad_id" validate:"required"`
	Motivo       string `json:"motivo_derivacion" validate:"required"`
	Medico       string `json:"medico_id,omitempty"`
	Fecha        string `json:"fecha_cita,omitempty" validate:"required_with=Medico,fecha"`
	Horario      string `json:"horario_id,omitempty" validate:"required_with=Medico"`
}

// Check reports the first rule r breaks as a localized validation error.
func (r Referral) Check() error {
	err := httputil.Validate(r)
	if err == nil {
		return nil
	}
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		if _, ok := appErr.Details["Especialidad"]; ok {
			return errors.InvalidInput("derivacion.campos_obligatorios")
		}
		if _, ok := appErr.Details["Motivo"]; ok {
			return errors.InvalidInput("derivacion.campos_obligatorios")
		}
	}
	return errors.InvalidInput("derivacion.requiere_horario")
}

// Submit validates the form and posts the referral. Validation failures
// raise a blocking alert and send nothing.
func (f *Form) Submit(ctx context.Context) (Referral, error) {
	f.submitMu.Lock()
	defer f.submitMu.Unlock()

	f.lock.Lock()
	r := Referral{
		Accion:       "derivar",
		Especialidad: f.value(Especialidad),
		Motivo:       strings.TrimSpace(f.value(Motivo)),
		Medico:       f.value(Medico),
		Fecha:        f.value(Fecha),
		Horario:      f.value(Horario),
	}
	if err := r.Check(); err != nil {
		f.doc.Alert(dom.AlertWarning, errors.LocalizedMessage(err, f.l), true)
		f.lock.Unlock()
		return r, err
	}
	f.lock.Unlock()

	path := fmt.Sprintf(SubmitPath, url.PathEscape(f.citaID))
	err := f.client.PostJSON(ctx, path, f.tokens, r, nil)

	f.lock.Lock()
	defer f.lock.Unlock()
	if err != nil {
		f.logger.Error().Err(err).Str("cita_id", f.citaID).Msg("referral submission failed")
		msg := backend.ServerMessage(err)
		if msg == "" {
			msg = errors.LocalizedMessage(err, f.l)
		}
		f.doc.Alert(dom.AlertDanger, msg, false)
		return r, err
	}
	f.logger.Info().Str("cita_id", f.citaID).Str("especialidad", r.Especialidad).Msg("referral submitted")
	f.doc.Alert(dom.AlertSuccess, f.l.T("derivacion.registrada"), false)
	return r, nil
}
