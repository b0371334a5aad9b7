package persistence

import (
	"context"
	"errors"
	"strings"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iota-uz/lms-admin/modules/userimport/domain/aggregates/account"
	"github.com/iota-uz/lms-admin/pkg/composables"
)

var (
	ErrAccountNotFound = gerrors.New("account not found")
	ErrUsernameTaken   = gerrors.New("username already taken")
)

const accountColumns = `id, email, username, firstname, lastname, suspended`

type AccountRepository struct{}

func NewAccountRepository() account.Store {
	return &AccountRepository{}
}

func (r *AccountRepository) FindByEmails(ctx context.Context, emails []string) ([]account.Account, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	return r.query(ctx, `
SELECT `+accountColumns+`
FROM accounts
WHERE lower(email) = ANY($1)
ORDER BY id
`, lowered(emails))
}

func (r *AccountRepository) FindByUsernames(ctx context.Context, usernames []string) ([]account.Account, error) {
	if len(usernames) == 0 {
		return nil, nil
	}
	return r.query(ctx, `
SELECT `+accountColumns+`
FROM accounts
WHERE lower(username) = ANY($1)
ORDER BY id
`, lowered(usernames))
}

func (r *AccountRepository) query(ctx context.Context, sql string, args ...any) ([]account.Account, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, gerrors.Wrap(err, "query accounts")
	}
	defer rows.Close()

	var out []account.Account
	for rows.Next() {
		var a account.Account
		if err := rows.Scan(&a.ID, &a.Email, &a.Username, &a.Firstname, &a.Lastname, &a.Suspended); err != nil {
			return nil, gerrors.Wrap(err, "scan account")
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *AccountRepository) Create(ctx context.Context, params account.CreateParams) (account.Account, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return account.Account{}, err
	}
	a := account.Account{
		Email:     params.Email,
		Username:  params.Username,
		Firstname: params.Firstname,
		Lastname:  params.Lastname,
	}
	err = tx.QueryRow(ctx, `
INSERT INTO accounts (email, username, firstname, lastname, credential)
VALUES ($1, $2, $3, $4, $5)
RETURNING id
`, params.Email, params.Username, params.Firstname, params.Lastname, params.Credential).Scan(&a.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return account.Account{}, ErrUsernameTaken
		}
		return account.Account{}, gerrors.Wrap(err, "failed to create account")
	}
	return a, nil
}

func (r *AccountRepository) Reactivate(ctx context.Context, id int64) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	tag, err := tx.Exec(ctx, `
UPDATE accounts
SET suspended = FALSE, updated_at = now()
WHERE id = $1 AND suspended
`, id)
	if err != nil {
		return false, gerrors.Wrap(err, "failed to reactivate account")
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, gerrors.Wrap(err, "check account")
	}
	if !exists {
		return false, ErrAccountNotFound
	}
	return false, nil
}

func (r *AccountRepository) UpdateProfile(ctx context.Context, id int64, firstname, lastname string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
UPDATE accounts
SET firstname = $2, lastname = $3, updated_at = now()
WHERE id = $1
`, id, firstname, lastname)
	if err != nil {
		return gerrors.Wrap(err, "failed to update account profile")
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func lowered(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}
