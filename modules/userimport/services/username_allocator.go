package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/iota-uz/lms-admin/modules/userimport/domain/aggregates/account"
	"github.com/iota-uz/lms-admin/modules/userimport/domain/entities/reservation"
)

const maxUsernameAttempts = 1000

var ErrUsernameExhausted = errors.New("no free username candidate")

// UsernameAllocator finds a free username for a new account. Every candidate
// is checked against the live directory; results are never cached because
// earlier rows of the same batch may have taken a name.
type UsernameAllocator struct {
	directory    account.Directory
	reservations reservation.Store
}

func NewUsernameAllocator(directory account.Directory, reservations reservation.Store) *UsernameAllocator {
	return &UsernameAllocator{directory: directory, reservations: reservations}
}

// Allocate returns the first free candidate for email and reserves it for owner.
// The caller releases the reservation once the account exists.
func (a *UsernameAllocator) Allocate(ctx context.Context, email, owner string) (string, error) {
	base := account.DeriveBaseUsername(email)
	for attempt := 0; attempt < maxUsernameAttempts; attempt++ {
		candidate := account.UsernameCandidate(base, attempt)

		taken, err := a.directory.FindByUsernames(ctx, []string{candidate})
		if err != nil {
			return "", fmt.Errorf("check username %q: %w", candidate, err)
		}
		if len(taken) > 0 {
			continue
		}
		if a.reservations == nil {
			return candidate, nil
		}
		reserved, err := a.reservations.IsReserved(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check reservation %q: %w", candidate, err)
		}
		if reserved {
			continue
		}
		ok, err := a.reservations.Reserve(ctx, candidate, owner)
		if err != nil {
			return "", fmt.Errorf("reserve %q: %w", candidate, err)
		}
		if ok {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w for %s after %d attempts", ErrUsernameExhausted, email, maxUsernameAttempts)
}

func (a *UsernameAllocator) Release(ctx context.Context, username, owner string) error {
	if a.reservations == nil {
		return nil
	}
	return a.reservations.Release(ctx, username, owner)
}

// PlaceholderCredential hashes a random secret that is thrown away, so the
// stored credential cannot be used to log in until one is issued out of band.
func PlaceholderCredential() (string, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword(secret, bcrypt.MinCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
