// Package renderer renders a pipeline stage's prompt template against the
// accumulated record context (unit fields merged with every prior stage's
// validated output), per §3 "Validated Record".
package renderer

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"text/template"
)

// Renderer caches parsed templates per stage so a chunk of many units
// reuses one parse per stage rather than re-parsing per unit.
type Renderer struct {
	templateDir string

	mu    sync.RWMutex
	cache map[string]*template.Template
}

// New creates a Renderer rooted at templateDir (prompts.template_dir).
func New(templateDir string) *Renderer {
	return &Renderer{templateDir: templateDir, cache: make(map[string]*template.Template)}
}

// Render renders the named template file against context, returning the
// prompt text. context typically holds {**stage_input, **global_context}.
func (r *Renderer) Render(templateFile string, context map[string]any) (string, error) {
	tmpl, err := r.load(templateFile)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, context); err != nil {
		return "", fmt.Errorf("renderer: executing template %s: %w", templateFile, err)
	}
	return buf.String(), nil
}

func (r *Renderer) load(templateFile string) (*template.Template, error) {
	r.mu.RLock()
	tmpl, ok := r.cache[templateFile]
	r.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if tmpl, ok := r.cache[templateFile]; ok {
		return tmpl, nil
	}

	path := filepath.Join(r.templateDir, templateFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("renderer: reading template %s: %w", path, err)
	}

	tmpl, err = template.New(templateFile).Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("renderer: parsing template %s: %w", path, err)
	}

	r.cache[templateFile] = tmpl
	return tmpl, nil
}

// Merge combines the unit's accumulated fields, the global prompt context,
// and any caller-supplied overrides into one rendering context. Later maps
// take precedence over earlier ones, following the spec's
// `{**stage_input, **parsed_response}` merge order.
func Merge(layers ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}
