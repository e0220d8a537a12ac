package server

import (
	"embed"
	"html/template"
	"io"

	"github.com/sebas/outdial/internal/outdial/widget"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Templates holds all parsed templates
type Templates struct {
	page          *template.Template
	widgetPartial *template.Template
	logPartial    *template.Template
}

// TemplateData holds data for rendering templates
type TemplateData struct {
	Title  string
	Uptime string
	widget.Snapshot
	Log []LogData
}

// LogData holds one activity log line for display, newest first
type LogData struct {
	Time     string
	Severity string
	Message  string
}

// NewTemplates parses and returns all templates
func NewTemplates() (*Templates, error) {
	t := &Templates{}

	var err error

	// The page embeds both partials by file name
	t.page, err = template.New("page.html").ParseFS(templatesFS,
		"templates/page.html", "templates/widget.html", "templates/log.html")
	if err != nil {
		return nil, err
	}

	t.widgetPartial, err = template.New("widget.html").ParseFS(templatesFS, "templates/widget.html")
	if err != nil {
		return nil, err
	}

	t.logPartial, err = template.New("log.html").ParseFS(templatesFS, "templates/log.html")
	if err != nil {
		return nil, err
	}

	return t, nil
}

// RenderPage renders the full widget page
func (t *Templates) RenderPage(w io.Writer, data TemplateData) error {
	return t.page.Execute(w, data)
}

// RenderWidget renders the form and action button partial
func (t *Templates) RenderWidget(w io.Writer, data TemplateData) error {
	return t.widgetPartial.Execute(w, data)
}

// RenderLog renders the activity log partial
func (t *Templates) RenderLog(w io.Writer, data TemplateData) error {
	return t.logPartial.Execute(w, data)
}
