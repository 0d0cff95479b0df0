package domain

import "strings"

// User is the identity snapshot supplied by the identity provider.
type User struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Email    string   `json:"email,omitempty"`
	ImageURL string   `json:"imageUrl,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// HasRole reports whether the user carries role, compared case-insensitively.
func (u *User) HasRole(role string) bool {
	if u == nil {
		return false
	}
	role = strings.TrimSpace(role)
	if role == "" {
		return false
	}
	for _, r := range u.Roles {
		if strings.EqualFold(strings.TrimSpace(r), role) {
			return true
		}
	}
	return false
}
