package export

import (
	"bytes"
	"html/template"
	"strings"
)

var htmlTemplate = template.Must(template.New("minutes").Parse(`<!DOCTYPE html>
<html lang="ja">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: "Hiragino Sans", "Yu Gothic", Meiryo, sans-serif; line-height: 1.7; margin: 2em; }
pre { white-space: pre-wrap; font-family: inherit; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<h2>{{.SummaryHeading}}</h2>
<p>{{.Summary}}</p>
<h2>{{.MinutesHeading}}</h2>
<pre>{{.Minutes}}</pre>
{{- if .Transcript}}
<h2>{{.TranscriptHeading}}</h2>
<pre>{{.Transcript}}</pre>
{{- end}}
</body>
</html>
`))

// HTML renders doc as a standalone UTF-8 page. All text is escaped.
func HTML(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	err := htmlTemplate.Execute(&buf, map[string]string{
		"Title":             doc.Title,
		"Summary":           strings.TrimSpace(doc.Summary),
		"Minutes":           strings.TrimSpace(doc.Minutes),
		"Transcript":        strings.TrimSpace(doc.Transcript),
		"SummaryHeading":    headingSummary,
		"MinutesHeading":    headingMinutes,
		"TranscriptHeading": headingTranscript,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
