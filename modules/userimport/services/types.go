package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/lms-admin/modules/userimport/domain/aggregates/account"
	"github.com/iota-uz/lms-admin/modules/userimport/domain/entities/course"
	"github.com/iota-uz/lms-admin/pkg/serrors"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityFatal:
		return "fatal"
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type DiagnosticCode string

const (
	CodeMissingHeaders    DiagnosticCode = "missing_headers"
	CodeUnexpectedHeader  DiagnosticCode = "unexpected_header"
	CodeTooManyRows       DiagnosticCode = "too_many_rows"
	CodeNoValidRows       DiagnosticCode = "no_valid_rows"
	CodeEncoding          DiagnosticCode = "encoding"
	CodeMissingField      DiagnosticCode = "missing_field"
	CodeSpecialCharacters DiagnosticCode = "special_characters"
	CodeInvalidEmail      DiagnosticCode = "invalid_email"
	CodeInvalidRole       DiagnosticCode = "invalid_role"
	CodeUnknownGroup      DiagnosticCode = "unknown_group"
	CodeEmailAlreadyUsed  DiagnosticCode = "email_already_used"
	CodeLosePrivilege     DiagnosticCode = "would_lose_privilege"
	CodeRoleChange        DiagnosticCode = "role_change"
	CodeUserExists        DiagnosticCode = "user_already_exists"
	CodeReactivation      DiagnosticCode = "reactivation"
)

// Diagnostic is one finding attached to a line; Line is 0 for batch-level findings.
type Diagnostic struct {
	Line     int            `json:"line"`
	Severity Severity       `json:"severity"`
	Code     DiagnosticCode `json:"code"`
	Message  string         `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Line == 0 {
		return fmt.Sprintf("%s: %s", d.Severity, d.Message)
	}
	return fmt.Sprintf("line %d: %s: %s", d.Line, d.Severity, d.Message)
}

var ErrFatal = serrors.NewError("USERIMPORT_FATAL", "import aborted", "")

// FatalError aborts the whole batch before anything is committed.
type FatalError struct {
	Diagnostic Diagnostic
}

func fatal(code DiagnosticCode, format string, args ...any) *FatalError {
	return &FatalError{Diagnostic: Diagnostic{
		Severity: SeverityFatal,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
	}}
}

func (e *FatalError) Error() string {
	return e.Diagnostic.Message
}

func (e *FatalError) Unwrap() error {
	return ErrFatal
}

// RawRow is one non-blank input line split into cells. Line is 1-based and
// counts non-blank lines only, so the header is always line 1.
type RawRow struct {
	Line  int
	Cells []string
}

// ValidatedRow is a row that passed every rejecting check.
type ValidatedRow struct {
	Line      int
	Email     string
	Lastname  string
	Firstname string
	Role      *course.Role
	Group     string
}

type Classification int

const (
	Rejected Classification = iota
	NewAccount
	ExistingActiveNoChange
	ExistingActiveRoleChange
	ExistingSuspendedReactivate
	AmbiguousDuplicate
)

func (c Classification) String() string {
	switch c {
	case NewAccount:
		return "new_account"
	case ExistingActiveNoChange:
		return "existing_active_no_change"
	case ExistingActiveRoleChange:
		return "existing_active_role_change"
	case ExistingSuspendedReactivate:
		return "existing_suspended_reactivate"
	case AmbiguousDuplicate:
		return "ambiguous_duplicate"
	default:
		return "rejected"
	}
}

func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Eligible reports whether rows of this class reach the commit phase.
func (c Classification) Eligible() bool {
	switch c {
	case NewAccount, ExistingActiveNoChange, ExistingActiveRoleChange, ExistingSuspendedReactivate:
		return true
	default:
		return false
	}
}

type ClassifiedRow struct {
	ValidatedRow
	Classification Classification
	Account        *account.Account
	CurrentRoles   []course.Role
}

// Outcome is the text written in the report's Result column.
type Outcome string

const (
	OutcomeNotProcessed           Outcome = "NotProcessed"
	OutcomeCreated                Outcome = "Created"
	OutcomeReactivated            Outcome = "Reactivated"
	OutcomeEnrolled               Outcome = "Enrolled"
	OutcomeCreatedAndEnrolled     Outcome = "CreatedAndEnrolled"
	OutcomeReactivatedAndEnrolled Outcome = "ReactivatedAndEnrolled"
	OutcomeRoleUpdated            Outcome = "RoleUpdated"
	OutcomeAlreadyExists          Outcome = "AlreadyExists"
	OutcomeFailed                 Outcome = "Failed"
)

type ReportLine struct {
	Line    int    `json:"line"`
	Outcome string `json:"outcome"`
}

// Preview is the read-only result of the first pass.
type Preview struct {
	BatchID    uuid.UUID
	Name       string
	ActorID    int64
	ActorEmail string
	CreatedAt  time.Time

	File   *ParsedFile
	Course *CourseContext

	ValidLines           int
	ValidForCreation     int
	ValidForReactivation map[string]account.Account
	Rows                 []ClassifiedRow
	Diagnostics          []Diagnostic
	// Outcomes holds the report text of lines excluded before commit.
	Outcomes map[int]string
}

// IsSessionImport reports whether the batch enrols into a course.
func (p *Preview) IsSessionImport() bool {
	return p.Course != nil
}

type CommitResult struct {
	BatchID    uuid.UUID
	Lines      []ReportLine
	Counts     map[Outcome]int
	Failed     int
	Report     []byte
	ReportName string
	// NotifyErr is set when the report could not be delivered.
	NotifyErr error
}
