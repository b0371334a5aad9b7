// Package memory holds process-local implementations of the import stores.
// They back the --memory CLI mode and the service tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/iota-uz/lms-admin/modules/userimport/domain/aggregates/account"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrUsernameTaken   = errors.New("username already taken")
)

// Directory is a mutex-guarded account store. Emails are not unique, which
// lets callers reproduce duplicate-email directories.
type Directory struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]*record

	// EmailLookups and UsernameLookups count bulk reads.
	EmailLookups    int
	UsernameLookups int
}

type record struct {
	account.Account
	Credential string
}

func NewDirectory() *Directory {
	return &Directory{nextID: 1, accounts: map[int64]*record{}}
}

// Seed inserts a pre-existing account and returns it with its id set.
func (d *Directory) Seed(a account.Account) account.Account {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a.ID == 0 {
		a.ID = d.nextID
	}
	if a.ID >= d.nextID {
		d.nextID = a.ID + 1
	}
	d.accounts[a.ID] = &record{Account: a}
	return a
}

func (d *Directory) Get(id int64) (account.Account, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.accounts[id]
	if !ok {
		return account.Account{}, false
	}
	return r.Account, true
}

// Credential returns the stored credential of id.
func (d *Directory) Credential(id int64) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.accounts[id]; ok {
		return r.Credential
	}
	return ""
}

func (d *Directory) All() []account.Account {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]account.Account, 0, len(d.accounts))
	for _, r := range d.accounts {
		out = append(out, r.Account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Directory) FindByEmails(_ context.Context, emails []string) ([]account.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.EmailLookups++
	want := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		want[account.NormalizeEmail(e)] = struct{}{}
	}
	return d.collect(func(a account.Account) bool {
		_, ok := want[account.NormalizeEmail(a.Email)]
		return ok
	}), nil
}

func (d *Directory) FindByUsernames(_ context.Context, usernames []string) ([]account.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.UsernameLookups++
	want := make(map[string]struct{}, len(usernames))
	for _, u := range usernames {
		want[strings.ToLower(u)] = struct{}{}
	}
	return d.collect(func(a account.Account) bool {
		_, ok := want[strings.ToLower(a.Username)]
		return ok
	}), nil
}

func (d *Directory) collect(match func(account.Account) bool) []account.Account {
	var out []account.Account
	for _, r := range d.accounts {
		if match(r.Account) {
			out = append(out, r.Account)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Directory) Create(_ context.Context, params account.CreateParams) (account.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.accounts {
		if strings.EqualFold(r.Username, params.Username) {
			return account.Account{}, ErrUsernameTaken
		}
	}
	a := account.Account{
		ID:        d.nextID,
		Email:     params.Email,
		Username:  params.Username,
		Firstname: params.Firstname,
		Lastname:  params.Lastname,
	}
	d.nextID++
	d.accounts[a.ID] = &record{Account: a, Credential: params.Credential}
	return a, nil
}

func (d *Directory) Reactivate(_ context.Context, id int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.accounts[id]
	if !ok {
		return false, ErrAccountNotFound
	}
	if !r.Suspended {
		return false, nil
	}
	r.Suspended = false
	return true, nil
}

func (d *Directory) UpdateProfile(_ context.Context, id int64, firstname, lastname string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	r.Firstname, r.Lastname = firstname, lastname
	return nil
}
