package notify

import (
	"bytes"
	"errors"
	"text/template"
)

// DefaultLeftTemplate renders the message for a device leaving its
// geofence.
const DefaultLeftTemplate = `Device {{.Device}} left its geofence.
Position: {{.Lat}}, {{.Lon}}
Time: {{.Time}}`

// DefaultReturnedTemplate renders the message for a device returning
// into its geofence.
const DefaultReturnedTemplate = `Device {{.Device}} returned to its geofence.
Position: {{.Lat}}, {{.Lon}}
Time: {{.Time}}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Device string
	Lat    string
	Lon    string
	Time   string
	Kind   string
}

// Template renders notification content for both transition kinds.
type Template struct {
	left     *template.Template
	returned *template.Template
}

// NewTemplate parses the two notification templates, falling back to
// the defaults when empty.
func NewTemplate(left, returned string) (*Template, error) {
	if left == "" {
		left = DefaultLeftTemplate
	}
	if returned == "" {
		returned = DefaultReturnedTemplate
	}
	parsedLeft, err := template.New("geofence-left").Parse(left)
	if err != nil {
		return nil, err
	}
	parsedReturned, err := template.New("geofence-returned").Parse(returned)
	if err != nil {
		return nil, err
	}
	return &Template{left: parsedLeft, returned: parsedReturned}, nil
}

// Render applies the template for the given kind to data.
func (t *Template) Render(kind string, data TemplateData) (string, error) {
	if t == nil {
		return "", errors.New("notify template: nil")
	}
	tpl := t.left
	if kind == "returned" {
		tpl = t.returned
	}
	if tpl == nil {
		return "", errors.New("notify template: nil")
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
