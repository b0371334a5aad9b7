package account_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iota-uz/lms-admin/modules/userimport/domain/aggregates/account"
)

func TestDeriveBaseUsername(t *testing.T) {
	t.Parallel()

	cases := []struct {
		email string
		want  string
	}{
		{"john@ex.com", "john@ex.com"},
		{"  John.Doe@Ex.COM ", "john.doe@ex.com"},
		{"john+tag@ex.com", "john_tag@ex.com"},
		{"o'brien@ex.com", "o_brien@ex.com"},
		{"zoé@ex.com", "zo_@ex.com"},
		{"a-b_c@ex.com", "a-b_c@ex.com"},
	}
	for _, tc := range cases {
		t.Run(tc.email, func(t *testing.T) {
			assert.Equal(t, tc.want, account.DeriveBaseUsername(tc.email))
		})
	}
}

func TestUsernameCandidate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "john@ex.com", account.UsernameCandidate("john@ex.com", 0))
	assert.Equal(t, "john@ex.com1", account.UsernameCandidate("john@ex.com", 1))
	assert.Equal(t, "john@ex.com12", account.UsernameCandidate("john@ex.com", 12))
}
