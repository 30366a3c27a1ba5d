package notifier

import (
	"bytes"
	"html/template"

	"github.com/good-yellow-bee/vitalwatch/internal/models"
)

var emailHTML = template.Must(template.New("alert.html").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; margin: 0; padding: 20px;">
<div style="border-left: 6px solid {{.Color}}; padding: 12px 16px;">
<h2 style="margin-top: 0; color: {{.Color}};">{{.Subject}}</h2>
<pre style="font-family: inherit; white-space: pre-wrap;">{{.Body}}</pre>
<p style="color: #757575; font-size: 12px;">Alert ID: {{.AlertID}}</p>
</div>
</body>
</html>
`))

type emailData struct {
	Subject string
	Body    string
	AlertID string
	Color   string
}

func renderEmailHTML(n *Notification, body string) (string, error) {
	var buf bytes.Buffer
	err := emailHTML.Execute(&buf, emailData{
		Subject: n.Subject,
		Body:    body,
		AlertID: n.AlertID,
		Color:   kindColor(n.Kind),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// kindColor returns the accent color for an alert kind.
func kindColor(kind models.AlertKind) string {
	switch kind {
	case models.AlertKindCritical:
		return "#d32f2f" // red
	case models.AlertKindWarning:
		return "#f57c00" // orange
	case models.AlertKindThreshold:
		return "#fbc02d" // yellow
	default:
		return "#757575" // gray
	}
}

// kindEmoji returns an emoji for the alert kind.
func kindEmoji(kind models.AlertKind) string {
	switch kind {
	case models.AlertKindCritical:
		return "\U0001F534" // red circle
	case models.AlertKindWarning:
		return "\U0001F7E0" // orange circle
	case models.AlertKindThreshold:
		return "\U0001F7E1" // yellow circle
	default:
		return "⚪" // white circle
	}
}
