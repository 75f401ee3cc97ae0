// Package templating personalizes free-text messages and binds recipient
// fields to WhatsApp template placeholders.
package templating

import (
	"strings"

	"github.com/onurcolak/bulk-dispatch-service/internal/domain"
)

// Render substitutes the single-brace personalization variables of a bulk
// message. Supported variables with no value become empty; any other brace
// text is left untouched.
func Render(content string, r domain.Recipient) string {
	name := strings.TrimSpace(r.Name)

	var firstName string
	if fields := strings.Fields(name); len(fields) > 0 {
		firstName = fields[0]
	}

	return strings.NewReplacer(
		"{nombre}", name,
		"{name}", name,
		"{email}", strings.TrimSpace(r.Email),
		"{telefono}", strings.TrimSpace(r.Phone),
		"{phone}", strings.TrimSpace(r.Phone),
		"{primer_nombre}", firstName,
		"{first_name}", firstName,
	).Replace(content)
}
