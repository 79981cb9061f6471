// Package render turns named reply templates into comment bodies.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
)

// Template names.
const (
	CommentSuccess    = "comment_success"
	CommentCuration   = "comment_curation"
	CommentFail       = "comment_fail"
	CommentDailyLimit = "comment_daily_limit"
	CommentOutOfStock = "comment_outofstock"
)

// SpanishPrefix marks the Spanish variant of a template.
const SpanishPrefix = "esp_"

const ext = ".tmpl"

//go:embed templates/*.tmpl
var defaults embed.FS

// Params are the named values a template may reference, e.g. token_name.
type Params map[string]any

type Renderer struct {
	tmpl *template.Template
}

// New loads the built-in templates. Files named <template>.tmpl in
// overrideDir, when set, replace the built-in template of the same name.
func New(overrideDir string) (*Renderer, error) {
	tmpl, err := template.New("").
		Option("missingkey=error").
		Funcs(template.FuncMap{"amount": formatAmount}).
		ParseFS(defaults, "templates/*"+ext)
	if err != nil {
		return nil, fmt.Errorf("parse built-in templates: %w", err)
	}
	if overrideDir != "" {
		if err := loadOverrides(tmpl, overrideDir); err != nil {
			return nil, err
		}
	}
	return &Renderer{tmpl: tmpl}, nil
}

func loadOverrides(tmpl *template.Template, dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*"+ext))
	if err != nil {
		return fmt.Errorf("list template overrides: %w", err)
	}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read template %s: %w", file, err)
		}
		if _, err := tmpl.New(filepath.Base(file)).Parse(string(data)); err != nil {
			return fmt.Errorf("parse template %s: %w", file, err)
		}
	}
	return nil
}

// Render executes the template called name. The result is trimmed of
// surrounding whitespace.
func (r *Renderer) Render(name string, params Params) (string, error) {
	t := r.tmpl.Lookup(name + ext)
	if t == nil {
		return "", fmt.Errorf("render: unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, map[string]any(params)); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Has reports whether a template called name is loaded.
func (r *Renderer) Has(name string) bool {
	return r.tmpl.Lookup(name+ext) != nil
}

// Localized picks the Spanish variant of base when spanish is set and such a
// variant exists.
func (r *Renderer) Localized(base string, spanish bool) string {
	if spanish && r.Has(SpanishPrefix+base) {
		return SpanishPrefix + base
	}
	return base
}

func formatAmount(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	default:
		return fmt.Sprint(v)
	}
}
