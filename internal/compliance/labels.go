package compliance

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/wolfman30/leadcapture/internal/leads"
)

//go:embed labels.yaml
var defaultLabels []byte

type labelRule struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

type compiledLabel struct {
	key  string
	tmpl *template.Template
}

// Labels maps form-specific lead fields onto the summary entries sent to
// moderation and the frequency endpoint.
type Labels struct {
	forms map[leads.FormType][]compiledLabel
}

// LoadLabels reads a label file, or the built-in mapping when path is empty.
func LoadLabels(path string) (*Labels, error) {
	if strings.TrimSpace(path) == "" {
		return ParseLabels(defaultLabels)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("compliance: read labels: %w", err)
	}
	return ParseLabels(data)
}

// DefaultLabels returns the built-in mapping.
func DefaultLabels() *Labels {
	l, err := ParseLabels(defaultLabels)
	if err != nil {
		panic(err)
	}
	return l
}

// ParseLabels compiles a YAML label mapping keyed by form type.
func ParseLabels(data []byte) (*Labels, error) {
	var raw map[string][]labelRule
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("compliance: parse labels: %w", err)
	}
	out := &Labels{forms: make(map[leads.FormType][]compiledLabel, len(raw))}
	for form, rules := range raw {
		formType := leads.FormTypeOf(form)
		if formType == leads.FormOther {
			return nil, fmt.Errorf("compliance: labels: unknown form type %q", form)
		}
		compiled := make([]compiledLabel, 0, len(rules))
		for _, rule := range rules {
			if rule.Key == "" {
				return nil, fmt.Errorf("compliance: labels: %s: empty key", form)
			}
			tmpl, err := template.New(form + "/" + rule.Key).Option("missingkey=zero").Parse(rule.Value)
			if err != nil {
				return nil, fmt.Errorf("compliance: labels: %s/%s: %w", form, rule.Key, err)
			}
			compiled = append(compiled, compiledLabel{key: rule.Key, tmpl: tmpl})
		}
		out.forms[formType] = compiled
	}
	return out, nil
}

// Render builds the additional data entries for the lead's form type. Forms
// without a mapping produce no entries.
func (l *Labels) Render(view leads.LeadView) ([]leads.Field, error) {
	rules := l.forms[leads.FormTypeOf(view.String("form_type"))]
	if len(rules) == 0 {
		return []leads.Field{}, nil
	}
	data := make(map[string]string, len(view))
	for k := range view {
		data[k] = view.String(k)
	}
	out := make([]leads.Field, 0, len(rules))
	for _, rule := range rules {
		var b strings.Builder
		if err := rule.tmpl.Execute(&b, data); err != nil {
			return nil, fmt.Errorf("compliance: render %s: %w", rule.key, err)
		}
		out = append(out, leads.Field{Key: rule.key, Value: b.String()})
	}
	return out, nil
}
