// Package export implements the export stage worker (spec §4.4): it
// renders the report JSON into a branded HTML email body, resolves the
// recipient list, sends the email, and marks the record complete.
package export

import (
	"bytes"
	"html/template"
)

// bodyTemplate renders whatever sections are present in Sections; an
// absent section (empty string) is skipped silently, per spec §4.4
// step 3 — each section is pre-rendered to a template.HTML fragment by
// the worker and only included here if non-empty.
var bodyTemplate = template.Must(template.New("report-email").Parse(`
<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family:Arial,Helvetica,sans-serif;color:#232f3e;">
<table width="100%" cellpadding="0" cellspacing="0" style="max-width:720px;margin:0 auto;">
  <tr><td style="background:#232f3e;padding:16px 24px;">
    <span style="color:#fff;font-size:18px;font-weight:bold;">{{.Title}}</span>
  </td></tr>
  {{range .Sections}}
  {{if .Body}}
  <tr><td style="padding:16px 24px;border-bottom:1px solid #e1e4e8;">
    <h3 style="margin:0 0 8px 0;color:#ff9900;">{{.Heading}}</h3>
    {{.Body}}
  </td></tr>
  {{end}}
  {{end}}
  <tr><td style="padding:16px 24px;color:#6b7280;font-size:12px;">
    Generated automatically. {{.MeetingID}}
  </td></tr>
</table>
</body>
</html>
`))

// section is one skippable block of the rendered email body.
type section struct {
	Heading string
	Body    template.HTML
}

type templateData struct {
	Title     string
	MeetingID string
	Sections  []section
}

func renderBody(meetingID string, title string, sections []section) (string, error) {
	var buf bytes.Buffer
	data := templateData{Title: title, MeetingID: meetingID, Sections: sections}
	if err := bodyTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
