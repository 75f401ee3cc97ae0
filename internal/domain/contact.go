package domain

// Contact departments derived from the directory record.
const (
	DepartmentInactive    = "Inactivo"
	DepartmentCustomer    = "Apostador"
	DepartmentOperational = "Operacional"
)

type Contact struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Phone        *string `json:"phone,omitempty"`
	Email        *string `json:"email,omitempty"`
	Department   string  `json:"department,omitempty"`
	Position     *string `json:"position,omitempty"`
	IsCustomer   bool    `json:"isCustomer"`
	CustomerName *string `json:"customerName,omitempty"`
	State        *string `json:"state,omitempty"`
}

type ContactFilter struct {
	Search     string
	Department string
	Limit      int
	Offset     int
}

type ContactPage struct {
	Total    int       `json:"total"`
	Contacts []Contact `json:"contacts"`
}
