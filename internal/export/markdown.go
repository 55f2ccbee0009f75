// Package export renders history as markdown and moves it in and out of a
// versioned JSON document.
package export

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/dmitrijs2005/moments/internal/models"
	"github.com/dmitrijs2005/moments/internal/youtube"
)

// FormatTimestamp renders seconds as m:ss, or h:mm:ss from one hour up.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func hashtags(tags []string) string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, "#"+strings.ReplaceAll(t, " ", "_"))
	}
	return strings.Join(out, " ")
}

var funcs = template.FuncMap{
	"ts":   FormatTimestamp,
	"link": youtube.TimestampURL,
	"tags": hashtags,
	"quote": func(s string) string {
		return "> " + strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n> ")
	},
}

const videoTmpl = `## {{ .Title }}
{{ if .Author }}
by {{ .Author }}
{{ end }}
{{ .URL }}
{{ range .Moments }}
- [{{ ts .Timestamp }}]({{ link .VideoID .Timestamp }}) {{ .Title }}
{{- if .Notes }}

{{ quote .Notes }}
{{ end }}
{{- if .Tags }}
  {{ tags .Tags }}
{{- end }}
{{ end }}`

const docTmpl = `# Moments
{{ range . }}
{{ template "video" . }}{{ end }}`

var (
	videoTemplate = template.Must(template.New("video").Funcs(funcs).Parse(videoTmpl))
	docTemplate   = template.Must(template.Must(videoTemplate.Clone()).New("doc").Parse(docTmpl))
)

// VideoMarkdown renders one video with a timestamped link per moment.
func VideoMarkdown(v models.Video) (string, error) {
	var b strings.Builder
	if err := videoTemplate.Execute(&b, v); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", v.ID, err)
	}
	return b.String(), nil
}

// Markdown renders every video under a single heading.
func Markdown(videos []models.Video) (string, error) {
	var b strings.Builder
	if err := docTemplate.ExecuteTemplate(&b, "doc", videos); err != nil {
		return "", fmt.Errorf("failed to render export: %w", err)
	}
	return b.String(), nil
}
