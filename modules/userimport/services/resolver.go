package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/iota-uz/lms-admin/modules/userimport/domain/aggregates/account"
	"github.com/iota-uz/lms-admin/modules/userimport/domain/entities/course"
)

// IdentitySnapshot is a single read of the directory for a batch.
type IdentitySnapshot struct {
	ByEmail    map[string][]account.Account
	ByUsername map[string][]account.Account
}

// FetchSnapshot issues exactly one email lookup and one username lookup for
// every candidate in rows.
func FetchSnapshot(ctx context.Context, dir account.Directory, rows []ValidatedRow) (IdentitySnapshot, error) {
	snap := IdentitySnapshot{
		ByEmail:    map[string][]account.Account{},
		ByUsername: map[string][]account.Account{},
	}
	if len(rows) == 0 {
		return snap, nil
	}

	emailSet := map[string]struct{}{}
	usernameSet := map[string]struct{}{}
	for _, r := range rows {
		emailSet[r.Email] = struct{}{}
		usernameSet[r.Email] = struct{}{}
		usernameSet[account.DeriveBaseUsername(r.Email)] = struct{}{}
	}

	byEmail, err := dir.FindByEmails(ctx, sortedKeys(emailSet))
	if err != nil {
		return snap, fmt.Errorf("find accounts by email: %w", err)
	}
	for _, a := range byEmail {
		key := account.NormalizeEmail(a.Email)
		snap.ByEmail[key] = append(snap.ByEmail[key], a)
	}

	byUsername, err := dir.FindByUsernames(ctx, sortedKeys(usernameSet))
	if err != nil {
		return snap, fmt.Errorf("find accounts by username: %w", err)
	}
	for _, a := range byUsername {
		key := strings.ToLower(a.Username)
		snap.ByUsername[key] = append(snap.ByUsername[key], a)
	}
	return snap, nil
}

// usernameHolders counts distinct accounts whose login equals the email or the
// username derived from it.
func (s IdentitySnapshot) usernameHolders(email string) int {
	ids := map[int64]struct{}{}
	for _, key := range []string{email, account.DeriveBaseUsername(email)} {
		for _, a := range s.ByUsername[key] {
			ids[a.ID] = struct{}{}
		}
	}
	return len(ids)
}

// Resolution is the classified view of a batch.
type Resolution struct {
	Rows                 []ClassifiedRow
	Diagnostics          []Diagnostic
	Rejected             map[int]Diagnostic
	ValidForCreation     int
	ValidForReactivation map[string]account.Account
}

type Resolver struct {
	courses course.Gateway
	policy  RolePolicy
}

func NewResolver(courses course.Gateway, policy RolePolicy) *Resolver {
	return &Resolver{courses: courses, policy: policy}
}

// Resolve classifies every row from snap alone. The only additional query is
// one batched read of current course roles when rows request a role.
func (r *Resolver) Resolve(ctx context.Context, rows []ValidatedRow, snap IdentitySnapshot, cc *CourseContext, actorID int64) (Resolution, error) {
	res := Resolution{
		Rejected:             map[int]Diagnostic{},
		ValidForReactivation: map[string]account.Account{},
	}

	current, err := r.currentRoles(ctx, rows, snap, cc)
	if err != nil {
		return res, err
	}

	newEmails := map[string]struct{}{}
	warnedExisting := map[string]struct{}{}

	// Reactivations are collected first so the "already exists" warning can
	// skip emails that are pending reactivation anywhere in the file.
	for _, row := range rows {
		if matches := snap.ByEmail[row.Email]; len(matches) == 1 && matches[0].Suspended {
			res.ValidForReactivation[row.Email] = matches[0]
		}
	}

	for _, row := range rows {
		matches := snap.ByEmail[row.Email]
		cr := ClassifiedRow{ValidatedRow: row}

		switch {
		case len(matches) > 1:
			cr.Classification = AmbiguousDuplicate
			res.reject(row.Line, SeverityWarning, CodeEmailAlreadyUsed,
				fmt.Sprintf("email already used by %d accounts", len(matches)))

		case len(matches) == 0:
			cr.Classification = NewAccount
			if _, seen := newEmails[row.Email]; !seen {
				newEmails[row.Email] = struct{}{}
				res.ValidForCreation++
			}

		case matches[0].Suspended:
			acc := matches[0]
			cr.Account = &acc
			cr.Classification = ExistingSuspendedReactivate
			res.warn(row.Line, CodeReactivation, fmt.Sprintf("account %s is suspended and will be reactivated", acc.Username))

		case snap.usernameHolders(row.Email) > 1:
			cr.Classification = AmbiguousDuplicate
			res.reject(row.Line, SeverityWarning, CodeEmailAlreadyUsed, "email already used as a username by another account")

		default:
			acc := matches[0]
			cr.Account = &acc
			cr.Classification = r.classifyActive(&res, row, acc, current[acc.ID], cc, actorID)
			cr.CurrentRoles = current[acc.ID]
			if cr.Classification == ExistingActiveNoChange && cc == nil {
				_, pending := res.ValidForReactivation[row.Email]
				if _, warned := warnedExisting[row.Email]; !warned && !pending {
					warnedExisting[row.Email] = struct{}{}
					res.warn(row.Line, CodeUserExists, "user already exists")
				}
			}
		}

		if cr.Classification.Eligible() {
			res.Rows = append(res.Rows, cr)
		}
	}
	return res, nil
}

func (r *Resolver) classifyActive(res *Resolution, row ValidatedRow, acc account.Account, held []course.Role, cc *CourseContext, actorID int64) Classification {
	if cc == nil || row.Role == nil || len(held) == 0 || course.ContainsRole(held, row.Role.ID) {
		return ExistingActiveNoChange
	}

	names := course.JoinDisplayNames(held)
	allowed := r.policy.Allow(RoleTransition{
		ActorID:      actorID,
		SubjectID:    acc.ID,
		Current:      held,
		Requested:    *row.Role,
		CurrentNames: names,
	})
	if !allowed {
		res.reject(row.Line, SeverityError, CodeLosePrivilege,
			fmt.Sprintf("would lose privilege: %s -> %s", names, row.Role.DisplayName()))
		return Rejected
	}
	res.warn(row.Line, CodeRoleChange, fmt.Sprintf("role change: %s -> %s", names, row.Role.DisplayName()))
	return ExistingActiveRoleChange
}

func (r *Resolver) currentRoles(ctx context.Context, rows []ValidatedRow, snap IdentitySnapshot, cc *CourseContext) (map[int64][]course.Role, error) {
	if cc == nil {
		return nil, nil
	}
	idSet := map[int64]struct{}{}
	for _, row := range rows {
		matches := snap.ByEmail[row.Email]
		if row.Role != nil && len(matches) == 1 && !matches[0].Suspended {
			idSet[matches[0].ID] = struct{}{}
		}
	}
	if len(idSet) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	held, err := r.courses.RolesFor(ctx, cc.Course.ID, ids)
	if err != nil {
		return nil, fmt.Errorf("load course roles: %w", err)
	}
	return held, nil
}

func (res *Resolution) warn(line int, code DiagnosticCode, msg string) {
	res.Diagnostics = append(res.Diagnostics, Diagnostic{Line: line, Severity: SeverityWarning, Code: code, Message: msg})
}

func (res *Resolution) reject(line int, sev Severity, code DiagnosticCode, msg string) {
	d := Diagnostic{Line: line, Severity: sev, Code: code, Message: msg}
	res.Diagnostics = append(res.Diagnostics, d)
	res.Rejected[line] = d
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
