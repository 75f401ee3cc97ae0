package templating

import (
	"strings"

	"github.com/onurcolak/bulk-dispatch-service/pkg/whatsapp"
)

type TextBlock struct {
	Format string `json:"format,omitempty"`
	Text   string `json:"text"`
}

// TemplateView is a template flattened for display.
type TemplateView struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Status        string            `json:"status"`
	Category      string            `json:"category"`
	Language      string            `json:"language"`
	Header        *TextBlock        `json:"header,omitempty"`
	Body          *TextBlock        `json:"body,omitempty"`
	Footer        *TextBlock        `json:"footer,omitempty"`
	Buttons       []whatsapp.Button `json:"buttons"`
	VariableNames []string          `json:"variableNames"`
}

// Describe collects header and body variables in order along with the
// display parts of a template.
func Describe(tpl whatsapp.Template) TemplateView {
	view := TemplateView{
		ID:            tpl.ID,
		Name:          tpl.Name,
		Status:        tpl.Status,
		Category:      tpl.Category,
		Language:      tpl.Language,
		Buttons:       []whatsapp.Button{},
		VariableNames: []string{},
	}

	for _, c := range tpl.Components {
		switch strings.ToUpper(c.Type) {
		case "HEADER":
			format := c.Format
			if format == "" {
				format = "TEXT"
			}
			view.Header = &TextBlock{Format: format, Text: c.Text}
			view.VariableNames = append(view.VariableNames, ExtractPlaceholders(c.Text)...)
		case "BODY":
			view.Body = &TextBlock{Text: c.Text}
			view.VariableNames = append(view.VariableNames, ExtractPlaceholders(c.Text)...)
		case "FOOTER":
			view.Footer = &TextBlock{Text: c.Text}
		case "BUTTONS":
			view.Buttons = append(view.Buttons, c.Buttons...)
		}
	}

	return view
}
