package identity

import (
	"context"

	"storefront/internal/domain"
)

// Static always returns the same user. It backs local development and demos.
type Static struct {
	user domain.User
}

func NewStatic(user domain.User) *Static {
	return &Static{user: user}
}

// DemoUser is the user served when no identity provider is configured.
func DemoUser() domain.User {
	return domain.User{
		ID:       "user_2sZFHS1UIIysJyDVzCpQhUhTIhw",
		Name:     "GreatStack",
		Email:    "admin@example.com",
		ImageURL: "https://images.example.com/avatar/greatstack.png",
		Roles:    []string{"seller"},
	}
}

func (s *Static) CurrentUser(ctx context.Context) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u := s.user
	u.Roles = append([]string(nil), s.user.Roles...)
	return &u, nil
}
