package mailer

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/osteele/liquid"
	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var builtinTemplates []byte

type templateSource struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

type compiled struct {
	subject *liquid.Template
	body    *liquid.Template
}

// Templates renders named notification emails. Sources are parsed once on
// first use.
type Templates struct {
	engine  *liquid.Engine
	sources map[string]templateSource
	cache   sync.Map // name -> *compiled
}

// NewTemplates loads the built-in notification templates.
func NewTemplates() (*Templates, error) {
	return ParseTemplates(builtinTemplates)
}

// ParseTemplates loads templates from a YAML document mapping names to
// subject and body sources.
func ParseTemplates(doc []byte) (*Templates, error) {
	var sources map[string]templateSource
	if err := yaml.Unmarshal(doc, &sources); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Templates{engine: liquid.NewEngine(), sources: sources}, nil
}

// Render renders the named template's subject and body.
func (t *Templates) Render(name string, bindings map[string]any) (string, string, error) {
	c, err := t.compile(name)
	if err != nil {
		return "", "", err
	}
	subject, serr := c.subject.RenderString(bindings)
	if serr != nil {
		return "", "", fmt.Errorf("render %s subject: %w", name, serr)
	}
	body, berr := c.body.RenderString(bindings)
	if berr != nil {
		return "", "", fmt.Errorf("render %s body: %w", name, berr)
	}
	return subject, body, nil
}

func (t *Templates) compile(name string) (*compiled, error) {
	if c, ok := t.cache.Load(name); ok {
		return c.(*compiled), nil
	}
	src, ok := t.sources[name]
	if !ok {
		return nil, fmt.Errorf("unknown template %q", name)
	}
	subject, err := t.engine.ParseString(src.Subject)
	if err != nil {
		return nil, fmt.Errorf("parse %s subject: %w", name, err)
	}
	body, err := t.engine.ParseString(src.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s body: %w", name, err)
	}
	c := &compiled{subject: subject, body: body}
	t.cache.Store(name, c)
	return c, nil
}
