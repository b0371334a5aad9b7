package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/lms-admin/modules/userimport/domain/aggregates/account"
	"github.com/iota-uz/lms-admin/modules/userimport/domain/entities/course"
	"github.com/iota-uz/lms-admin/pkg/composables"
)

var ErrAmbiguousAtCommit = errors.New("email matches several accounts at commit time")

// Transactor scopes the mutations of one row.
type Transactor interface {
	InTx(ctx context.Context, fn func(context.Context) error) error
}

// TransactorFunc adapts a function such as composables.InTx.
type TransactorFunc func(ctx context.Context, fn func(context.Context) error) error

func (f TransactorFunc) InTx(ctx context.Context, fn func(context.Context) error) error {
	return f(ctx, fn)
}

// PgTransactor runs each row in its own database transaction.
var PgTransactor Transactor = TransactorFunc(composables.InTx)

// CommitEngine applies the previewed rows one at a time. A failing row is
// reported and the batch moves on; earlier rows stay committed.
type CommitEngine struct {
	accounts   account.Store
	courses    course.Gateway
	usernames  *UsernameAllocator
	tx         Transactor
	credential func() (string, error)
}

func NewCommitEngine(accounts account.Store, courses course.Gateway, usernames *UsernameAllocator, tx Transactor) *CommitEngine {
	return &CommitEngine{
		accounts:   accounts,
		courses:    courses,
		usernames:  usernames,
		tx:         tx,
		credential: PlaceholderCredential,
	}
}

type rowEffects struct {
	created     bool
	reactivated bool
	enrolled    bool
	roleUpdated bool
	joinedGroup bool
	// reserved is the username held for this row until its transaction ends.
	reserved string
}

func (e rowEffects) outcome() Outcome {
	switch {
	case e.created && e.enrolled:
		return OutcomeCreatedAndEnrolled
	case e.created:
		return OutcomeCreated
	case e.reactivated && e.enrolled:
		return OutcomeReactivatedAndEnrolled
	case e.reactivated:
		return OutcomeReactivated
	case e.enrolled:
		return OutcomeEnrolled
	case e.roleUpdated:
		return OutcomeRoleUpdated
	default:
		return OutcomeAlreadyExists
	}
}

// Commit applies every row of p in file order and returns one report line per
// data line of the input.
func (e *CommitEngine) Commit(ctx context.Context, p *Preview) *CommitResult {
	log := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"batch": p.BatchID.String(),
		"file":  p.Name,
	})

	outcomes := make(map[int]string, len(p.Outcomes)+len(p.Rows))
	for line, text := range p.Outcomes {
		outcomes[line] = text
	}

	res := &CommitResult{BatchID: p.BatchID, Counts: map[Outcome]int{}}
	for _, row := range p.Rows {
		var effects rowEffects
		err := e.tx.InTx(ctx, func(txCtx context.Context) error {
			var err error
			effects, err = e.commitRow(txCtx, p, row)
			return err
		})
		if effects.reserved != "" {
			if rErr := e.usernames.Release(ctx, effects.reserved, p.BatchID.String()); rErr != nil {
				log.WithError(rErr).Warn("userimport: release username reservation")
			}
		}
		if err != nil {
			res.Failed++
			res.Counts[OutcomeFailed]++
			outcomes[row.Line] = fmt.Sprintf("%s: %v", OutcomeFailed, err)
			log.WithError(err).WithField("line", row.Line).Warn("userimport: row commit failed")
			recordRow(OutcomeFailed)
			continue
		}
		o := effects.outcome()
		res.Counts[o]++
		outcomes[row.Line] = string(o)
		recordRow(o)
		log.WithFields(logrus.Fields{
			"line":    row.Line,
			"outcome": o,
			"group":   effects.joinedGroup,
		}).Debug("userimport: row committed")
	}

	res.Lines = reportLines(p.File, outcomes)
	return res
}

func (e *CommitEngine) commitRow(ctx context.Context, p *Preview, row ClassifiedRow) (rowEffects, error) {
	var fx rowEffects

	if pending, ok := p.ValidForReactivation[row.Email]; ok {
		changed, err := e.accounts.Reactivate(ctx, pending.ID)
		if err != nil {
			return fx, fmt.Errorf("reactivate: %w", err)
		}
		fx.reactivated = changed
	}

	acc, reserved, err := e.lookupOrCreate(ctx, p, row)
	fx.reserved = reserved
	if err != nil {
		return fx, err
	}
	fx.created = reserved != ""

	if p.Course == nil {
		return fx, nil
	}
	courseID := p.Course.Course.ID

	enrolled, err := e.courses.IsEnrolled(ctx, courseID, acc.ID)
	if err != nil {
		return fx, fmt.Errorf("check enrolment: %w", err)
	}
	if !enrolled {
		roleID := p.Course.Course.DefaultRoleID
		if row.Role != nil {
			roleID = row.Role.ID
		}
		if err := e.courses.Enrol(ctx, courseID, acc.ID, roleID); err != nil {
			return fx, fmt.Errorf("enrol: %w", err)
		}
		fx.enrolled = true
	} else if row.Role != nil {
		held, err := e.courses.RolesFor(ctx, courseID, []int64{acc.ID})
		if err != nil {
			return fx, fmt.Errorf("load roles: %w", err)
		}
		if !course.ContainsRole(held[acc.ID], row.Role.ID) {
			if err := e.courses.ReplaceRoles(ctx, courseID, acc.ID, row.Role.ID); err != nil {
				return fx, fmt.Errorf("replace roles: %w", err)
			}
			fx.roleUpdated = true
		}
	}

	if row.Group != "" {
		g, err := e.courses.EnsureGroup(ctx, courseID, row.Group)
		if err != nil {
			return fx, fmt.Errorf("ensure group %q: %w", row.Group, err)
		}
		added, err := e.courses.AddMember(ctx, g.ID, acc.ID)
		if err != nil {
			return fx, fmt.Errorf("add to group %q: %w", row.Group, err)
		}
		fx.joinedGroup = added
	}
	return fx, nil
}

// lookupOrCreate re-reads the account by email so rows earlier in the batch
// that created it are seen. When an account is created the reserved username
// is returned.
func (e *CommitEngine) lookupOrCreate(ctx context.Context, p *Preview, row ClassifiedRow) (account.Account, string, error) {
	found, err := e.accounts.FindByEmails(ctx, []string{row.Email})
	if err != nil {
		return account.Account{}, "", fmt.Errorf("lookup: %w", err)
	}
	switch len(found) {
	case 0:
	case 1:
		acc := found[0]
		if acc.Firstname != row.Firstname || acc.Lastname != row.Lastname {
			if err := e.accounts.UpdateProfile(ctx, acc.ID, row.Firstname, row.Lastname); err != nil {
				return acc, "", fmt.Errorf("update profile: %w", err)
			}
			acc.Firstname, acc.Lastname = row.Firstname, row.Lastname
		}
		return acc, "", nil
	default:
		return account.Account{}, "", ErrAmbiguousAtCommit
	}

	username, err := e.usernames.Allocate(ctx, row.Email, p.BatchID.String())
	if err != nil {
		return account.Account{}, "", err
	}

	credential, err := e.credential()
	if err != nil {
		return account.Account{}, username, fmt.Errorf("placeholder credential: %w", err)
	}
	acc, err := e.accounts.Create(ctx, account.CreateParams{
		Email:      row.Email,
		Username:   username,
		Firstname:  row.Firstname,
		Lastname:   row.Lastname,
		Credential: credential,
	})
	if err != nil {
		return account.Account{}, username, fmt.Errorf("create: %w", err)
	}
	return acc, username, nil
}
