package alerting

import (
	"bytes"
	"fmt"
	"strconv"
	"text/template"
	"time"

	"github.com/good-yellow-bee/vitalwatch/internal/models"
)

const messageTimeLayout = "2006-01-02 15:04:05"

const messageTemplates = `
{{- define "vitals" -}}
Room: {{.Room}}
Time: {{.Time}}

Vital Signs:
• Heart Rate: {{.HeartRate}} bpm
• Blood Pressure: {{.SystolicBP}}/{{.DiastolicBP}} mmHg
• Temperature: {{.Temperature}}°F
• Oxygen Saturation: {{.OxygenSaturation}}%
{{- end -}}

{{- define "critical" -}}
🚨 CRITICAL ALERT - Patient {{.PatientID}}

{{template "vitals" .}}

⚡ IMMEDIATE MEDICAL ATTENTION REQUIRED
{{- end -}}

{{- define "warning" -}}
⚠️ WARNING ALERT - Patient {{.PatientID}}

{{template "vitals" .}}

Monitor patient closely.
{{- end -}}

{{- define "threshold" -}}
⚠️ THRESHOLD ALERT - Patient {{.PatientID}}
{{range .Violations}}
Vital Sign: {{.Name}}
Current Value: {{.Value}}
{{if .Below}}Below minimum threshold: {{.Bound}}{{else}}Above maximum threshold: {{.Bound}}{{end}}
{{end}}
Time: {{.Time}}
Please review patient status.
{{- end -}}
`

var messages = template.Must(template.New("messages").Parse(messageTemplates))

type messageData struct {
	PatientID        string
	Room             string
	Time             string
	HeartRate        string
	SystolicBP       string
	DiastolicBP      string
	Temperature      string
	OxygenSaturation string
	Violations       []violationLine
}

type violationLine struct {
	Name  string
	Value string
	Bound string
	Below bool
}

func newMessageData(patientID string, s *models.Sample, at time.Time) *messageData {
	room := s.RoomNumber
	if room == "" {
		room = "Unknown"
	}
	return &messageData{
		PatientID:        patientID,
		Room:             room,
		Time:             at.UTC().Format(messageTimeLayout),
		HeartRate:        vitalText(s, models.VitalHeartRate),
		SystolicBP:       vitalText(s, models.VitalSystolicBP),
		DiastolicBP:      vitalText(s, models.VitalDiastolicBP),
		Temperature:      vitalText(s, models.VitalTemperature),
		OxygenSaturation: vitalText(s, models.VitalOxygenSaturation),
	}
}

func renderMessage(kind models.AlertKind, patientID string, s *models.Sample, violations []Violation, at time.Time) (string, error) {
	data := newMessageData(patientID, s, at)

	var name string
	switch kind {
	case models.AlertKindCritical:
		name = "critical"
	case models.AlertKindWarning:
		name = "warning"
	case models.AlertKindThreshold:
		name = "threshold"
		for _, v := range violations {
			line := violationLine{Name: v.Vital.Title(), Value: formatNumber(v.Value), Below: v.Below}
			if v.Below {
				line.Bound = formatNumber(*v.Min)
			} else {
				line.Bound = formatNumber(*v.Max)
			}
			data.Violations = append(data.Violations, line)
		}
	default:
		return "", fmt.Errorf("no message template for alert kind %q", kind)
	}

	var buf bytes.Buffer
	if err := messages.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s message: %w", name, err)
	}
	return buf.String(), nil
}

func vitalText(s *models.Sample, v models.VitalType) string {
	val, ok := s.Value(v)
	if !ok {
		return "N/A"
	}
	return formatNumber(val)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
