package service

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/actiontracker/tracker-server-go/internal/model"
	"github.com/actiontracker/tracker-server-go/internal/report"
)

// textPolicy strips every tag from free text supplied by users.
var textPolicy = bluemonday.StrictPolicy()

type tone struct {
	Background string
	Border     string
	Text       string
}

var (
	toneOK      = tone{Background: "#e8f5e9", Border: "#2e7d32", Text: "#1b5e20"}
	toneInfo    = tone{Background: "#e3f2fd", Border: "#1565c0", Text: "#0d47a1"}
	toneWarning = tone{Background: "#fff3e0", Border: "#f57c00", Text: "#e65100"}
	toneError   = tone{Background: "#ffebee", Border: "#c62828", Text: "#b71c1c"}
)

type alertRow struct {
	Label string
	Value string
	Code  bool
}

type alertView struct {
	Title string
	Tone  tone
	Rows  []alertRow
	Note  string
}

var alertTemplate = template.Must(template.New("alert").Parse(`<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="background-color: {{.Tone.Background}}; padding: 10px; font-size: 20px; font-weight: bold; color: {{.Tone.Border}}; border-left: 6px solid {{.Tone.Border}};">
    {{.Title}}
  </div>
{{range .Rows}}  {{if eq .Label "-"}}<hr style="border:1px dotted black" />{{else}}<p><strong style="color: {{$.Tone.Text}};">{{.Label}}:</strong> {{if .Code}}<code>{{.Value}}</code>{{else}}{{.Value}}{{end}}</p>{{end}}
{{end}}{{if .Note}}  <div style="background-color: {{.Tone.Background}}; padding: 10px; border-left: 6px solid {{.Tone.Border}}; color: {{.Tone.Text}}; margin-top: 20px;">
    {{.Note}}
  </div>
{{end}}</body>
</html>
`))

var reportTemplate = template.Must(template.New("report").Parse(`<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <p>Hola <strong>{{.Name}}</strong>,</p>
  <p>
    Adjunto encontrará el reporte <strong>{{.Kind}}</strong>
    de sus sesiones registradas entre el <strong>{{.From}}</strong> y el <strong>{{.To}}</strong>.
  </p>
  <p>Saludos cordiales,</p>
  <p><strong>Equipo de ActionTracker</strong></p>
</body>
</html>
`))

var separator = alertRow{Label: "-"}

// AlertInput is what an alert body can draw from.
type AlertInput struct {
	Kind     AlertKind
	User     *model.User
	Session  *model.Session
	Previous *model.Session
	Delta    model.SessionDelta
	Now      time.Time
}

// RenderAlert builds the email for one reconciler alert.
func RenderAlert(in AlertInput) (model.EmailMessage, error) {
	loc := time.UTC
	if in.Session != nil {
		loc = in.Session.Location()
	} else if in.Delta.TimeZone != "" {
		loc = model.LoadLocation(in.Delta.TimeZone)
	}

	var (
		subject string
		view    alertView
	)

	switch in.Kind {
	case AlertStarted:
		subject = "Sesión iniciada correctamente"
		view = alertView{
			Title: "SESIÓN INICIADA CORRECTAMENTE",
			Tone:  toneOK,
			Rows: append(sessionRows(in.User, in.Session), separator,
				alertRow{Label: "Inicio (UTC registrado)", Value: fmtUTC(in.Session.StartDate), Code: true},
				alertRow{Label: "Inicio (reloj del usuario)", Value: orNA(in.Delta.ZonedStart), Code: true},
			),
			Note: "La sesión ha sido registrada exitosamente y está activa.",
		}
	case AlertAlreadyExists:
		subject = "ERROR: Sesión ya existe"
		view = alertView{
			Title: "INTENTO DE INICIAR UNA SESIÓN EXISTENTE",
			Tone:  toneError,
			Rows: []alertRow{
				{Label: "Usuario", Value: userLabel(in.User)},
				{Label: "Sesión ID externa", Value: in.Delta.ExternalSessionID},
				{Label: "Inicio (UTC)", Value: fmtUTC(in.Delta.Start), Code: true},
			},
			Note: "Ya existe una sesión con este identificador. El evento fue rechazado.",
		}
	case AlertCreatedFromEnd:
		subject = "Sesión creada desde cierre (no existía)"
		view = alertView{
			Title: "SESIÓN CREADA DESDE UN EVENTO DE CIERRE",
			Tone:  toneWarning,
			Rows: append(sessionRows(in.User, in.Session), separator,
				alertRow{Label: "Inicio (UTC)", Value: fmtUTC(in.Session.StartDate), Code: true},
				alertRow{Label: "Fin (UTC)", Value: fmtUTC(in.Session.EndDate), Code: true},
				alertRow{Label: "Duración", Value: fmtSeconds(in.Session.Duration)},
			),
			Note: "No se recibió el inicio de esta sesión. Se registró a partir del cierre.",
		}
	case AlertClosed:
		subject = "Sesion Finalizada"
		view = alertView{
			Title: "SESIÓN FINALIZADA",
			Tone:  toneInfo,
			Rows: append(sessionRows(in.User, in.Session), separator,
				alertRow{Label: "Inicio (UTC)", Value: fmtUTC(in.Session.StartDate), Code: true},
				alertRow{Label: "Inicio (local)", Value: fmtLocal(in.Session.StartDate, loc), Code: true},
				alertRow{Label: "Fin (UTC)", Value: fmtUTC(in.Session.EndDate), Code: true},
				alertRow{Label: "Fin (local)", Value: fmtLocal(in.Session.EndDate, loc), Code: true},
				alertRow{Label: "Duración", Value: fmtSeconds(in.Session.Duration)},
				alertRow{Label: "Overtime", Value: yesNo(in.Session.Overtime)},
			),
		}
	case AlertDiscrepancy:
		subject = "ALERTA: EDICIÓN de sesión Clockify REPORTE"
		prev := in.Previous
		if prev == nil {
			prev = &model.Session{}
		}
		view = alertView{
			Title: "EDICIÓN DE TIEMPOS DETECTADA",
			Tone:  toneWarning,
			Rows: append(sessionRows(in.User, in.Session), separator,
				alertRow{Label: "Inicio anterior (UTC)", Value: fmtUTC(prev.StartDate), Code: true},
				alertRow{Label: "Inicio anterior (local)", Value: fmtLocal(prev.StartDate, loc), Code: true},
				alertRow{Label: "Fin anterior (UTC)", Value: fmtUTC(prev.EndDate), Code: true},
				alertRow{Label: "Fin anterior (local)", Value: fmtLocal(prev.EndDate, loc), Code: true},
				separator,
				alertRow{Label: "Inicio nuevo (UTC)", Value: fmtUTC(in.Session.StartDate), Code: true},
				alertRow{Label: "Inicio nuevo (local)", Value: fmtLocal(in.Session.StartDate, loc), Code: true},
				alertRow{Label: "Fin nuevo (UTC)", Value: fmtUTC(in.Session.EndDate), Code: true},
				alertRow{Label: "Fin nuevo (local)", Value: fmtLocal(in.Session.EndDate, loc), Code: true},
				alertRow{Label: "Ediciones registradas", Value: fmt.Sprint(in.Session.UpdatingQuantity)},
			),
			Note: "Recuerde que modificar los tiempos de la sesión no está permitido, y esta acción será notificada y reportada.",
		}
	case AlertDeleted:
		subject = "Confirmación de BORRADO de sesión Clockify"
		view = alertView{
			Title: "SESIÓN ELIMINADA",
			Tone:  toneInfo,
			Rows: append(sessionRows(in.User, in.Session), separator,
				alertRow{Label: "Inicio (UTC)", Value: fmtUTC(in.Session.StartDate), Code: true},
				alertRow{Label: "Fin (UTC)", Value: fmtUTC(in.Session.EndDate), Code: true},
				alertRow{Label: "Eliminada (UTC)", Value: fmtUTC(in.Session.DisabledAt), Code: true},
			),
		}
	case AlertInvalidDelete:
		subject = "ERROR: Sesión no encontrada en borrado"
		view = alertView{
			Title: "INTENTO DE BORRADO INVÁLIDO",
			Tone:  toneError,
			Rows: []alertRow{
				{Label: "Usuario", Value: userLabel(in.User)},
				{Label: "Sesión ID externa", Value: in.Delta.ExternalSessionID},
			},
			Note: "La sesión no existe o ya había sido eliminada.",
		}
	case AlertManualCreated:
		subject = "ALERTA: Sesion creada manualmente en Clockify"
		view = alertView{
			Title: "SESIÓN CREADA MANUALMENTE",
			Tone:  toneWarning,
			Rows: append(sessionRows(in.User, in.Session), separator,
				alertRow{Label: "Inicio (UTC)", Value: fmtUTC(in.Session.StartDate), Code: true},
				alertRow{Label: "Inicio (reloj del usuario)", Value: orNA(in.Delta.ZonedStart), Code: true},
				alertRow{Label: "Fin (UTC)", Value: fmtUTC(in.Session.EndDate), Code: true},
				alertRow{Label: "Fin (reloj del usuario)", Value: orNA(in.Delta.ZonedEnd), Code: true},
				alertRow{Label: "Duración", Value: fmtSeconds(in.Session.Duration)},
			),
			Note: "Las sesiones manuales no cuentan en los totales válidos hasta ser aprobadas.",
		}
	default:
		return model.EmailMessage{}, fmt.Errorf("no template for alert %q", in.Kind)
	}

	body, err := execute(alertTemplate, view)
	if err != nil {
		return model.EmailMessage{}, err
	}

	return model.EmailMessage{
		To:      recipientOf(in.User),
		Subject: fmt.Sprintf("Clockify - %s - %s - (%s)", subject, in.User.Name, in.Now.In(loc).Format("2006-01-02 15:04")),
		Body:    body,
	}, nil
}

// RenderOvertimeAlert builds the email the monitor sends when a running
// session crosses the threshold.
func RenderOvertimeAlert(user *model.User, s *model.Session, elapsed, threshold time.Duration) (model.EmailMessage, error) {
	view := alertView{
		Title: "SESIÓN EN OVERTIME",
		Tone:  toneError,
		Rows: append(sessionRows(user, s), separator,
			alertRow{Label: "Inicio (UTC)", Value: fmtUTC(s.StartDate), Code: true},
			alertRow{Label: "Inicio (local)", Value: fmtLocal(s.StartDate, s.Location()), Code: true},
			alertRow{Label: "Duración", Value: fmt.Sprintf("%.2f horas", elapsed.Hours())},
			alertRow{Label: "Estado", Value: "Marcado como OVERTIME"},
		),
		Note: fmt.Sprintf("La sesión sigue activa y ha superado el límite de %s. Se ha registrado en la bitácora y enviado esta notificación.", hoursLabel(threshold)),
	}

	body, err := execute(alertTemplate, view)
	if err != nil {
		return model.EmailMessage{}, err
	}
	return model.EmailMessage{
		To:      recipientOf(user),
		Subject: "Clockify - SESION en OVERTIME detectada",
		Body:    body,
	}, nil
}

// RenderReportEmail builds the spreadsheet email for one user.
func RenderReportEmail(user *model.User, label string, r model.DateRange, attachment model.Attachment, to string) (model.EmailMessage, error) {
	body, err := execute(reportTemplate, map[string]string{
		"Name": user.Name,
		"Kind": label,
		"From": r.Start.Format("2006-01-02"),
		"To":   r.End.Format("2006-01-02"),
	})
	if err != nil {
		return model.EmailMessage{}, err
	}

	subject := fmt.Sprintf("Reporte %s de Clockify - %s", label, user.Name)
	if label == "" {
		subject = fmt.Sprintf("Reporte personalizado Clockify - %s", user.Name)
	}
	if to == "" {
		to = user.Email
	}

	return model.EmailMessage{
		To:          to,
		Subject:     subject,
		Body:        body,
		Attachments: model.Attachments{attachment},
	}, nil
}

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func sessionRows(user *model.User, s *model.Session) []alertRow {
	return []alertRow{
		{Label: "Usuario", Value: userLabel(user)},
		{Label: "Sesión ID externa", Value: s.ExternalSessionID},
		{Label: "Descripción", Value: plainText(s.Description)},
		{Label: "Proyecto", Value: plainText(s.ProjectName)},
		{Label: "Tarea", Value: plainText(s.TaskName)},
	}
}

// plainText strips markup; the template escapes the result itself.
func plainText(s string) string {
	return html.UnescapeString(textPolicy.Sanitize(s))
}

func recipientOf(user *model.User) string {
	if user == nil {
		return ""
	}
	return user.Email
}

func userLabel(user *model.User) string {
	if user == nil {
		return "desconocido"
	}
	return fmt.Sprintf("%s (%s)", user.Name, user.Email)
}

func fmtUTC(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.UTC().Format(time.DateTime)
}

func fmtLocal(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "N/A"
	}
	return t.In(loc).Format("2006-01-02 15:04:05 MST")
}

func fmtSeconds(s *model.Seconds) string {
	if s == nil {
		return "N/A"
	}
	d := s.Duration()
	return report.FormatHMS(&d)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "Sí"
	}
	return "No"
}

func hoursLabel(d time.Duration) string {
	h := d.Hours()
	if h == float64(int(h)) {
		return fmt.Sprintf("%d horas", int(h))
	}
	return fmt.Sprintf("%.1f horas", h)
}
