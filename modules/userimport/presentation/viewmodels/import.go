package viewmodels

import "time"

type Diagnostic struct {
	Line     int    `json:"line"`
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

type PreviewRow struct {
	Line           int      `json:"line"`
	Email          string   `json:"email"`
	Firstname      string   `json:"firstname"`
	Lastname       string   `json:"lastname"`
	Classification string   `json:"classification"`
	Role           string   `json:"role,omitempty"`
	Group          string   `json:"group,omitempty"`
	AccountID      int64    `json:"account_id,omitempty"`
	CurrentRoles   []string `json:"current_roles,omitempty"`
}

type Preview struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	CourseID             int64        `json:"course_id,omitempty"`
	Course               string       `json:"course,omitempty"`
	Encoding             string       `json:"encoding"`
	Delimiter            string       `json:"delimiter"`
	DataLines            int          `json:"data_lines"`
	ValidLines           int          `json:"valid_lines"`
	ValidForCreation     int          `json:"valid_for_creation"`
	ValidForReactivation []string     `json:"valid_for_reactivation"`
	Rows                 []PreviewRow `json:"rows"`
	Diagnostics          []Diagnostic `json:"diagnostics"`
	ExpiresAt            *time.Time   `json:"expires_at,omitempty"`
}

type ReportLine struct {
	Line    int    `json:"line"`
	Outcome string `json:"outcome"`
}

type CommitResult struct {
	ID         string         `json:"id"`
	Counts     map[string]int `json:"counts"`
	Failed     int            `json:"failed"`
	Lines      []ReportLine   `json:"lines"`
	ReportName string         `json:"report_name"`
	ReportURL  string         `json:"report_url,omitempty"`
	NotifyErr  string         `json:"notify_error,omitempty"`
}
