package shared

import "strings"

// AdminUser identifies the signed-in admin for attribution fields.
type AdminUser struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email,omitempty"`
}

// FullName joins first and last name.
func (u AdminUser) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
