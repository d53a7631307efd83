// Package render evaluates payload schema templates. An indexing policy may
// declare per-field templates that shape the payload stored alongside each
// vector point.
package render

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/levkin/ragbase/helper"
)

// Renderer produces a payload from a field template schema and input data.
type Renderer interface {
	// Render evaluates every schema field template against data.
	Render(schema map[string]string, data map[string]any) (map[string]any, error)
}

// TemplateRenderer renders payload fields with text/template. Parsed
// templates are cached by their source text.
type TemplateRenderer struct {
	cache map[string]*template.Template
}

// NewTemplateRenderer creates a renderer with an empty template cache.
// The renderer is not safe for concurrent use.
func NewTemplateRenderer() *TemplateRenderer {
	return &TemplateRenderer{cache: map[string]*template.Template{}}
}

func (r *TemplateRenderer) Render(schema map[string]string, data map[string]any) (map[string]any, error) {
	payload := make(map[string]any, len(schema))
	for field, source := range schema {
		tmpl, err := r.lookup(source)
		if err != nil {
			return nil, helper.NewError(fmt.Sprintf("payload field %s", field), err)
		}
		var buf strings.Builder
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, helper.NewError(fmt.Sprintf("payload field %s", field), err)
		}
		payload[field] = buf.String()
	}
	return payload, nil
}

func (r *TemplateRenderer) lookup(source string) (*template.Template, error) {
	if tmpl, ok := r.cache[source]; ok {
		return tmpl, nil
	}
	tmpl, err := template.New("payload").Option("missingkey=zero").Parse(source)
	if err != nil {
		return nil, err
	}
	r.cache[source] = tmpl
	return tmpl, nil
}

// AsString converts a payload value to a string, tolerating missing keys.
func AsString(payload map[string]any, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// AsStringSlice converts a payload value to a string slice. JSON decoding
// yields []any, so both forms are accepted.
func AsStringSlice(payload map[string]any, key string) []string {
	value, ok := payload[key]
	if !ok || value == nil {
		return nil
	}
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

var _ Renderer = (*TemplateRenderer)(nil)
