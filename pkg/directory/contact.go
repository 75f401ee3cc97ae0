package directory

import (
	"strconv"
	"strings"

	"github.com/onurcolak/bulk-dispatch-service/internal/domain"
	"github.com/onurcolak/bulk-dispatch-service/pkg/phone"
)

// RawContact is a directory record as served by the contacts endpoint.
type RawContact struct {
	Name         string `json:"name"`
	LastName     string `json:"lastName"`
	FullName     string `json:"fullName"`
	CustomerName string `json:"customerName"`
	PhoneNumber  string `json:"phoneNumber"`
	Email        string `json:"email"`
	IsCustomer   any    `json:"isCustomer"`
	State        string `json:"state"`
}

const unnamed = "Sin nombre"

// ToContact maps a raw record to a Contact with a 1-based positional id.
func ToContact(raw RawContact, index int) domain.Contact {
	isCustomer := parseFlag(raw.IsCustomer)

	department := domain.DepartmentOperational
	switch {
	case raw.State == "N":
		department = domain.DepartmentInactive
	case isCustomer:
		department = domain.DepartmentCustomer
	}

	return domain.Contact{
		ID:           strconv.Itoa(index + 1),
		Name:         displayName(raw),
		Phone:        domain.StringPtr(phone.WithPlus(raw.PhoneNumber)),
		Email:        domain.StringPtr(raw.Email),
		Department:   department,
		IsCustomer:   isCustomer,
		CustomerName: domain.StringPtr(raw.CustomerName),
		State:        domain.StringPtr(raw.State),
	}
}

func ToContacts(raws []RawContact) []domain.Contact {
	contacts := make([]domain.Contact, 0, len(raws))
	for i, raw := range raws {
		contacts = append(contacts, ToContact(raw, i))
	}
	return contacts
}

// displayName prefers customerName, then fullName, then name + lastName.
func displayName(raw RawContact) string {
	if v := strings.TrimSpace(raw.CustomerName); v != "" {
		return v
	}
	if v := strings.TrimSpace(raw.FullName); v != "" {
		return v
	}
	if v := strings.TrimSpace(raw.Name + " " + raw.LastName); v != "" {
		return v
	}
	return unnamed
}

func parseFlag(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "si", "sí":
			return true
		}
	}
	return false
}
