package export

import (
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
)

// buildSections renders whatever top-level fields the report JSON
// contains into HTML sections, in a fixed presentation order. A report
// produced for a different meetingType simply omits the fields this
// function doesn't find — spec §4.4 step 3's "unknown sections are
// skipped silently" — so this renderer is schema-agnostic by design
// rather than switching on meetingType.
func buildSections(report map[string]interface{}) []section {
	var out []section

	if s, ok := str(report, "summary"); ok {
		out = append(out, section{"Summary", template.HTML(fmt.Sprintf("<p>%s</p>", esc(s)))})
	}
	if items, ok := strList(report, "keyTopics"); ok {
		out = append(out, section{"Key Topics", listHTML(items)})
	}
	if items, ok := strList(report, "highlights"); ok {
		out = append(out, section{"Highlights", listHTML(items)})
	}
	if items, ok := strList(report, "lowlights"); ok {
		out = append(out, section{"Lowlights", listHTML(items)})
	}
	if items, ok := strList(report, "decisions"); ok {
		out = append(out, section{"Decisions", listHTML(items)})
	}
	if v, ok := report["actions"]; ok {
		if html := actionsTable(v); html != "" {
			out = append(out, section{"Action Items", template.HTML(html)})
		}
	}
	if v, ok := report["teamKPI"]; ok {
		if html := teamKPIBlock(v); html != "" {
			out = append(out, section{"Team KPI", template.HTML(html)})
		}
	}
	if items, ok := strList(report, "announcements"); ok {
		out = append(out, section{"Announcements", listHTML(items)})
	}
	if v, ok := report["projectReviews"]; ok {
		if html := projectReviewsBlock(v); html != "" {
			out = append(out, section{"Project Reviews", template.HTML(html)})
		}
	}
	if v, ok := report["topics"]; ok {
		if html := topicsBlock(v); html != "" {
			out = append(out, section{"Topics", template.HTML(html)})
		}
	}
	if v, ok := report["knowledgeBase"]; ok {
		if html := kvBlock(v, "title", "content"); html != "" {
			out = append(out, section{"Knowledge Base", template.HTML(html)})
		}
	}
	if items, ok := strList(report, "techStack"); ok {
		out = append(out, section{"Tech Stack", listHTML(items)})
	}
	if v, ok := report["customerInfo"]; ok {
		if html := customerInfoBlock(v); html != "" {
			out = append(out, section{"Customer", template.HTML(html)})
		}
	}
	if items, ok := strList(report, "awsAttendees"); ok {
		out = append(out, section{"AWS Attendees", listHTML(items)})
	}
	if v, ok := report["customerNeeds"]; ok {
		if html := kvBlock(v, "need", "background"); html != "" {
			out = append(out, section{"Customer Needs", template.HTML(html)})
		}
	}
	if v, ok := report["painPoints"]; ok {
		if html := kvBlock(v, "point", "detail"); html != "" {
			out = append(out, section{"Pain Points", template.HTML(html)})
		}
	}
	if v, ok := report["solutionsDiscussed"]; ok {
		if html := kvBlock(v, "solution", "customerFeedback"); html != "" {
			out = append(out, section{"Solutions Discussed", template.HTML(html)})
		}
	}
	if v, ok := report["commitments"]; ok {
		if html := actionsTable(v); html != "" {
			out = append(out, section{"Commitments", template.HTML(html)})
		}
	}
	if v, ok := report["nextSteps"]; ok {
		if html := actionsTable(v); html != "" {
			out = append(out, section{"Next Steps", template.HTML(html)})
		}
	}
	if items, ok := strList(report, "participants"); ok {
		out = append(out, section{"Participants", listHTML(items)})
	}
	if s, ok := str(report, "duration"); ok {
		out = append(out, section{"Duration", template.HTML(fmt.Sprintf("<p>%s</p>", esc(s)))})
	}
	if s, ok := str(report, "nextMeeting"); ok {
		out = append(out, section{"Next Meeting", template.HTML(fmt.Sprintf("<p>%s</p>", esc(s)))})
	}

	return out
}

func esc(s string) string { return template.HTMLEscapeString(s) }

func str(m map[string]interface{}, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func strList(m map[string]interface{}, key string) ([]string, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	raw, ok := v.([]interface{})
	if !ok || len(raw) == 0 {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func listHTML(items []string) template.HTML {
	var b strings.Builder
	b.WriteString("<ul>")
	for _, i := range items {
		fmt.Fprintf(&b, "<li>%s</li>", esc(i))
	}
	b.WriteString("</ul>")
	return template.HTML(b.String())
}

func asMapSlice(v interface{}) []map[string]interface{} {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

// actionsTable renders a list of objects with common task/owner-style
// fields as a table; it tolerates whichever subset of columns the rows
// actually carry.
func actionsTable(v interface{}) string {
	rows := asMapSlice(v)
	if len(rows) == 0 {
		return ""
	}
	cols := []string{"task", "owner", "party", "commitment", "deadline", "priority", "estimate"}
	var b strings.Builder
	b.WriteString(`<table cellpadding="6" cellspacing="0" style="border-collapse:collapse;width:100%;">`)
	for _, row := range rows {
		b.WriteString("<tr>")
		for _, c := range cols {
			if s, ok := str(row, c); ok {
				fmt.Fprintf(&b, `<td style="border:1px solid #e1e4e8;">%s</td>`, esc(s))
			}
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</table>")
	return b.String()
}

func kvBlock(v interface{}, primaryKey, secondaryKey string) string {
	rows := asMapSlice(v)
	if len(rows) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<ul>")
	for _, row := range rows {
		primary, _ := str(row, primaryKey)
		secondary, _ := str(row, secondaryKey)
		if secondary != "" {
			fmt.Fprintf(&b, "<li><strong>%s</strong>: %s</li>", esc(primary), esc(secondary))
		} else {
			fmt.Fprintf(&b, "<li>%s</li>", esc(primary))
		}
	}
	b.WriteString("</ul>")
	return b.String()
}

func topicsBlock(v interface{}) string {
	rows := asMapSlice(v)
	if len(rows) == 0 {
		return ""
	}
	var b strings.Builder
	for _, row := range rows {
		topic, _ := str(row, "topic")
		discussion, _ := str(row, "discussion")
		conclusion, _ := str(row, "conclusion")
		fmt.Fprintf(&b, "<p><strong>%s</strong><br>%s<br><em>%s</em></p>", esc(topic), esc(discussion), esc(conclusion))
	}
	return b.String()
}

func projectReviewsBlock(v interface{}) string {
	rows := asMapSlice(v)
	if len(rows) == 0 {
		return ""
	}
	var b strings.Builder
	for _, row := range rows {
		project, _ := str(row, "project")
		progress, _ := str(row, "progress")
		fmt.Fprintf(&b, "<p><strong>%s</strong>: %s</p>", esc(project), esc(progress))
	}
	return b.String()
}

func teamKPIBlock(v interface{}) string {
	m, ok := v.(map[string]interface{})
	if !ok {
		return ""
	}
	overview, _ := str(m, "overview")
	var b strings.Builder
	if overview != "" {
		fmt.Fprintf(&b, "<p>%s</p>", esc(overview))
	}
	if individuals := asMapSlice(m["individuals"]); len(individuals) > 0 {
		b.WriteString("<ul>")
		for _, ind := range individuals {
			name, _ := str(ind, "name")
			kpi, _ := str(ind, "kpi")
			status, _ := str(ind, "status")
			fmt.Fprintf(&b, "<li>%s — %s (%s)</li>", esc(name), esc(kpi), esc(status))
		}
		b.WriteString("</ul>")
	}
	return b.String()
}

func customerInfoBlock(v interface{}) string {
	m, ok := v.(map[string]interface{})
	if !ok {
		return ""
	}
	company, _ := str(m, "company")
	attendees, _ := strList(m, "attendees")
	var b strings.Builder
	if company != "" {
		fmt.Fprintf(&b, "<p><strong>%s</strong></p>", esc(company))
	}
	if len(attendees) > 0 {
		b.WriteString(string(listHTML(attendees)))
	}
	return b.String()
}

// decodeReport unmarshals the report blob into a generic map, tolerating
// whichever meetingType schema produced it.
func decodeReport(body []byte) (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	return m, nil
}
