package account

import (
	"context"
	"strings"
)

// Account is a directory entry as seen by the import pipeline.
type Account struct {
	ID        int64
	Email     string
	Username  string
	Firstname string
	Lastname  string
	Suspended bool
}

// Directory is the read side of the host platform's user store.
// Both lookups are bulk queries and must be called once per batch.
type Directory interface {
	FindByEmails(ctx context.Context, emails []string) ([]Account, error)
	FindByUsernames(ctx context.Context, usernames []string) ([]Account, error)
}

type CreateParams struct {
	Email      string
	Username   string
	Firstname  string
	Lastname   string
	Credential string
}

// Store adds the mutations the commit phase needs.
type Store interface {
	Directory
	Create(ctx context.Context, params CreateParams) (Account, error)
	// Reactivate clears the suspended flag and reports whether it was set.
	Reactivate(ctx context.Context, id int64) (bool, error)
	UpdateProfile(ctx context.Context, id int64, firstname, lastname string) error
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
