package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/lms-admin/modules/userimport/domain/aggregates/account"
	"github.com/iota-uz/lms-admin/modules/userimport/domain/entities/course"
)

const (
	minColumns       = 3
	minCourseColumns = 5

	forbiddenNameChars  = "<>\"&/\\;:*?|{}[]=+#%$^~`"
	forbiddenEmailChars = "<>\"'\\/;:*?|{}[]()=, "
)

// CourseContext is the course a session import enrols into, loaded once per batch.
type CourseContext struct {
	Course course.Course
	Roles  []course.Role
	// Groups holds existing course groups keyed by lowercased name.
	Groups map[string]course.Group
}

func (cc *CourseContext) findRole(name string) (course.Role, bool) {
	for _, r := range cc.Roles {
		if r.Matches(name) {
			return r, true
		}
	}
	return course.Role{}, false
}

func (cc *CourseContext) suggestRole(name string) string {
	targets := make([]string, 0, len(cc.Roles)*2)
	for _, r := range cc.Roles {
		targets = append(targets, r.Shortname)
		if r.Name != "" {
			targets = append(targets, r.Name)
		}
	}
	ranks := fuzzy.RankFindNormalizedFold(name, targets)
	if len(ranks) == 0 {
		return ""
	}
	best := ranks[0]
	for _, rk := range ranks[1:] {
		if rk.Distance < best.Distance {
			best = rk
		}
	}
	return best.Target
}

// RowValidation is the outcome of checking one raw row.
type RowValidation struct {
	Line        int
	Row         *ValidatedRow
	Diagnostics []Diagnostic
	// UnknownGroup is set when the row names a group the course lacks.
	UnknownGroup string
}

// Rejected reports whether the row was excluded.
func (v RowValidation) Rejected() bool {
	return v.Row == nil
}

// ValidationResult accumulates row validations in file order.
type ValidationResult struct {
	Rows        []ValidatedRow
	Diagnostics []Diagnostic
	// Rejected maps a line to the diagnostic that excluded it.
	Rejected map[int]Diagnostic
	// NewGroups lists unknown groups named by accepted rows.
	NewGroups []string

	seenGroups    map[string]struct{}
	createdGroups map[string]struct{}
}

func NewValidationResult() ValidationResult {
	return ValidationResult{
		Rejected:      map[int]Diagnostic{},
		seenGroups:    map[string]struct{}{},
		createdGroups: map[string]struct{}{},
	}
}

// Merge appends v. The unknown-group warning is emitted only the first time a
// group name is seen in the batch, rejected rows included, and precedes the
// row's own diagnostics.
func (r *ValidationResult) Merge(v RowValidation) {
	key := strings.ToLower(v.UnknownGroup)
	if v.UnknownGroup != "" {
		if _, seen := r.seenGroups[key]; !seen {
			r.seenGroups[key] = struct{}{}
			r.Diagnostics = append(r.Diagnostics, Diagnostic{
				Line:     v.Line,
				Severity: SeverityWarning,
				Code:     CodeUnknownGroup,
				Message:  fmt.Sprintf("group %q does not exist and will be created", v.UnknownGroup),
			})
		}
	}
	r.Diagnostics = append(r.Diagnostics, v.Diagnostics...)
	if v.Rejected() {
		for _, d := range v.Diagnostics {
			if d.Severity >= SeverityError {
				r.Rejected[v.Line] = d
				break
			}
		}
		return
	}
	if v.UnknownGroup != "" {
		if _, listed := r.createdGroups[key]; !listed {
			r.createdGroups[key] = struct{}{}
			r.NewGroups = append(r.NewGroups, v.UnknownGroup)
		}
	}
	r.Rows = append(r.Rows, *v.Row)
}

type Validator struct {
	validate *validator.Validate
	workers  int
}

func NewValidator(workers int) *Validator {
	if workers < 1 {
		workers = 1
	}
	return &Validator{validate: validator.New(), workers: workers}
}

// ValidateAll checks every row concurrently and merges the results in file order.
func (v *Validator) ValidateAll(ctx context.Context, rows []RawRow, cols ColumnMap, cc *CourseContext) (ValidationResult, error) {
	results := make([]RowValidation, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)
	for i := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = v.ValidateRow(rows[i], cols, cc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ValidationResult{}, err
	}

	out := NewValidationResult()
	for _, r := range results {
		out.Merge(r)
	}
	return out, nil
}

func rowError(line int, code DiagnosticCode, format string, args ...any) RowValidation {
	return RowValidation{
		Line: line,
		Diagnostics: []Diagnostic{{
			Line:     line,
			Severity: SeverityError,
			Code:     code,
			Message:  fmt.Sprintf(format, args...),
		}},
	}
}

// ValidateRow applies the row checks in order and stops at the first one that
// rejects the row.
func (v *Validator) ValidateRow(raw RawRow, cols ColumnMap, cc *CourseContext) RowValidation {
	need := minColumns
	if cc != nil && cols.HasRoleAndGroup() {
		need = minCourseColumns
	}
	if len(raw.Cells) < need {
		return rowError(raw.Line, CodeMissingField, "missing field: expected %d columns, got %d", need, len(raw.Cells))
	}

	email := account.NormalizeEmail(cols.cell(raw.Cells, cols.Email))
	lastname := cols.cell(raw.Cells, cols.Lastname)
	firstname := cols.cell(raw.Cells, cols.Firstname)

	for _, f := range []struct{ name, value string }{
		{ColumnLastname, lastname},
		{ColumnFirstname, firstname},
		{ColumnEmail, email},
	} {
		if f.value == "" {
			return rowError(raw.Line, CodeMissingField, "missing field: %s", f.name)
		}
	}

	if strings.ContainsAny(lastname, forbiddenNameChars) {
		return rowError(raw.Line, CodeSpecialCharacters, "special characters in %s", ColumnLastname)
	}
	if strings.ContainsAny(firstname, forbiddenNameChars) {
		return rowError(raw.Line, CodeSpecialCharacters, "special characters in %s", ColumnFirstname)
	}
	if strings.ContainsAny(email, forbiddenEmailChars) {
		return rowError(raw.Line, CodeSpecialCharacters, "special characters in %s", ColumnEmail)
	}

	if err := v.validate.Var(email, "required,email"); err != nil {
		return rowError(raw.Line, CodeInvalidEmail, "invalid email: %s", email)
	}

	row := &ValidatedRow{
		Line:      raw.Line,
		Email:     email,
		Lastname:  lastname,
		Firstname: firstname,
	}
	result := RowValidation{Line: raw.Line}
	if cc == nil {
		result.Row = row
		return result
	}

	if group := cols.cell(raw.Cells, cols.Group); group != "" {
		if _, ok := cc.Groups[strings.ToLower(group)]; !ok {
			result.UnknownGroup = group
		}
		row.Group = group
	}

	if roleName := cols.cell(raw.Cells, cols.Role); roleName != "" {
		r, ok := cc.findRole(roleName)
		if !ok {
			rejected := rowError(raw.Line, CodeInvalidRole, "invalid role: %s", roleName)
			if hint := cc.suggestRole(roleName); hint != "" {
				rejected = rowError(raw.Line, CodeInvalidRole, "invalid role: %s (did you mean %s?)", roleName, hint)
			}
			rejected.UnknownGroup = result.UnknownGroup
			return rejected
		}
		row.Role = &r
	}

	result.Row = row
	return result
}
