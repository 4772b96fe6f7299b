// Package task renders the shared task template for each input file.
package task

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Placeholder must appear in every task template.
const Placeholder = "{{INPUT_FILE}}"

// Legacy tokens, substituted when present.
const (
	legacyFileToken = "{input_file}"
	legacyPathToken = "{input_path}"
)

var ErrMissingPlaceholder = errors.New("placeholder token '" + Placeholder + "' not found")

type Template struct {
	text string
}

// New validates text and returns a Template.
func New(text string) (*Template, error) {
	if !strings.Contains(text, Placeholder) {
		return nil, ErrMissingPlaceholder
	}
	return &Template{text: text}, nil
}

// Load reads and validates a template file.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task template: %w", err)
	}
	t, err := New(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w in %s", err, path)
	}
	return t, nil
}

// Render substitutes name (base name) and rel (relative path) into the template.
func (t *Template) Render(name, rel string) string {
	r := strings.NewReplacer(
		Placeholder, rel,
		legacyFileToken, name,
		legacyPathToken, rel,
	)
	return r.Replace(t.text)
}
