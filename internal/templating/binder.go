package templating

import (
	"regexp"
	"strings"

	"github.com/onurcolak/bulk-dispatch-service/internal/domain"
	"github.com/onurcolak/bulk-dispatch-service/pkg/logger"
	"github.com/onurcolak/bulk-dispatch-service/pkg/whatsapp"
)

var placeholderPattern = regexp.MustCompile(`\{\{([\p{L}\p{N}_]+)\}\}`)

// DefaultMapping binds the common Spanish and English placeholder names to
// recipient fields.
var DefaultMapping = map[string]string{
	"nombre":       "name",
	"name":         "name",
	"empresa":      "company",
	"company":      "company",
	"cargo":        "position",
	"position":     "position",
	"departamento": "department",
	"department":   "department",
}

// ExtractPlaceholders returns the {{name}} placeholders of text in order of
// appearance. Repeated placeholders are kept.
func ExtractPlaceholders(text string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(text, -1)

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// Definition is a template name with the ordered placeholders of its body.
type Definition struct {
	Name         string
	Placeholders []string
}

// ParseDefinition reads the placeholders of the BODY component.
func ParseDefinition(tpl whatsapp.Template) Definition {
	def := Definition{Name: tpl.Name}
	for _, c := range tpl.Components {
		if strings.EqualFold(c.Type, "BODY") {
			def.Placeholders = ExtractPlaceholders(c.Text)
			break
		}
	}
	return def
}

// Binder turns a recipient into template parameters for one Definition.
type Binder struct {
	def     Definition
	mapping map[string]string
}

// NewBinder lowercases mapping keys. An empty mapping falls back to
// DefaultMapping.
func NewBinder(def Definition, mapping map[string]string) *Binder {
	if len(mapping) == 0 {
		mapping = DefaultMapping
	}

	lowered := make(map[string]string, len(mapping))
	for k, v := range mapping {
		lowered[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}

	return &Binder{def: def, mapping: lowered}
}

// Bind returns one text parameter per placeholder in order. Placeholders
// with no mapping or a blank value are omitted.
func (b *Binder) Bind(r domain.Recipient) []whatsapp.Parameter {
	params := make([]whatsapp.Parameter, 0, len(b.def.Placeholders))

	for _, placeholder := range b.def.Placeholders {
		field, ok := b.mapping[strings.ToLower(placeholder)]
		if !ok {
			logger.Warnf("No mapping for template variable {{%s}}", placeholder)
			continue
		}

		value, _ := r.Field(field)
		value = strings.TrimSpace(value)
		if value == "" {
			logger.Debugf("Template variable {{%s}} maps to %q which is empty for %s", placeholder, field, r.Name)
			continue
		}

		params = append(params, whatsapp.Parameter{
			Type:          "text",
			ParameterName: placeholder,
			Text:          value,
		})
	}

	return params
}

// Components wraps the bound parameters in a body component, or returns nil
// when nothing was bound.
func (b *Binder) Components(r domain.Recipient) []whatsapp.Component {
	params := b.Bind(r)
	if len(params) == 0 {
		return nil
	}
	return []whatsapp.Component{{Type: "body", Parameters: params}}
}
