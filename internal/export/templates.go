package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var postTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}
	postTemplate = template.Must(template.New("post").Funcs(funcMap).Parse(postTemplateHTML))
}

// TemplateData holds data for post template rendering
type TemplateData struct {
	Title       string
	Excerpt     string
	ContentHTML template.HTML
	Author      string
	Tags        []string
	UpdatedAt   time.Time
	Comments    []Comment
}

// RenderPostHTML renders the post template with provided data
func RenderPostHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := postTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ContentToHTML converts plain post content into escaped HTML paragraphs.
// Blank lines separate paragraphs; single newlines become <br>.
func ContentToHTML(content string) template.HTML {
	var b strings.Builder
	paragraphs := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n")
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		lines := strings.Split(p, "\n")
		escaped := make([]string, 0, len(lines))
		for _, line := range lines {
			escaped = append(escaped, template.HTMLEscapeString(line))
		}
		b.WriteString("<p>")
		b.WriteString(strings.Join(escaped, "<br>"))
		b.WriteString("</p>")
	}
	return template.HTML(b.String())
}

const postTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Georgia, serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .excerpt { font-style: italic; color: #444; }
    .tag { background: #eee; border-radius: 3px; padding: 0 0.4em; margin-right: 0.3em; font-size: 0.85em; }
    .comment { background: #f5f5f5; padding: 0.75rem 1rem; margin: 0.75rem 0; border-left: 3px solid #333; }
    .comment .comment { margin-left: 1.5rem; border-left-color: #999; }
    .comment-meta { color: #666; font-size: 0.85em; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.Author}} | {{formatDate .UpdatedAt "Jan 2, 2006"}}
    {{- range .Tags}} <span class="tag">{{.}}</span>{{end}}</div>
  {{if .Excerpt}}<p class="excerpt">{{.Excerpt}}</p>{{end}}
  <div>{{.ContentHTML}}</div>
  {{if .Comments}}
  <h2>Comments</h2>
  {{range .Comments}}{{template "comment" .}}{{end}}
  {{end}}
</body>
</html>
{{define "comment"}}<div class="comment">
  <div class="comment-meta">{{.Author}} | {{formatDate .CreatedAt "Jan 2, 2006 15:04"}}</div>
  <div>{{.Content}}</div>
  {{range .Replies}}{{template "comment" .}}{{end}}
</div>{{end}}`
