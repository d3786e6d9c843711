package server

import (
	"embed"
	"html/template"

	"github.com/pkg/errors"
)

//go:embed templates/*.html
var templateFiles embed.FS

// ParseTemplate parses an embedded page together with the shared layout.
func ParseTemplate(name string) (*template.Template, error) {
	tmpl, err := template.New(name).ParseFS(templateFiles, "templates/layout.html", "templates/"+name)
	if err != nil {
		return nil, errors.Wrapf(err, "ParseTemplate %s", name)
	}
	return tmpl, nil
}
