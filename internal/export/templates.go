package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var contractTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/contract.html")
	if err != nil {
		contractTemplate = template.Must(template.New("contract").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	contractTemplate = template.Must(template.New("contract").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for contract template rendering.
type TemplateData struct {
	Title      string
	CohortName string
	UpdatedAt  time.Time
	Clauses    []TemplateClause
}

// TemplateClause holds one clause for the template.
type TemplateClause struct {
	Number     int
	Content    template.HTML
	Author     string
	Amendments []TemplateAmendment
}

// TemplateAmendment holds one amendment for the appendix.
type TemplateAmendment struct {
	ProposedContent string
	Author          string
	Status          string
	CreatedAt       time.Time
}

// RenderContractHTML renders the contract template with provided data.
func RenderContractHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := contractTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load.
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .clause { margin: 1rem 0; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.CohortName}} | {{.UpdatedAt.Format "Jan 2, 2006"}}</div>
  {{range .Clauses}}<div class="clause"><strong>{{.Number}}.</strong> {{.Content}}</div>{{end}}
</body>
</html>`
