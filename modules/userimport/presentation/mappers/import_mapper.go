package mappers

import (
	"sort"
	"time"

	"github.com/iota-uz/lms-admin/modules/userimport/presentation/viewmodels"
	"github.com/iota-uz/lms-admin/modules/userimport/services"
)

func DiagnosticsToViewModels(ds []services.Diagnostic) []viewmodels.Diagnostic {
	out := make([]viewmodels.Diagnostic, 0, len(ds))
	for _, d := range ds {
		out = append(out, viewmodels.Diagnostic{
			Line:     d.Line,
			Severity: d.Severity.String(),
			Code:     string(d.Code),
			Message:  d.Message,
		})
	}
	return out
}

func PreviewToViewModel(p *services.Preview, expiresAt time.Time) *viewmodels.Preview {
	vm := &viewmodels.Preview{
		ID:                   p.BatchID.String(),
		Name:                 p.Name,
		Encoding:             p.File.Encoding,
		Delimiter:            services.DelimiterName(p.File.Delimiter),
		DataLines:            len(p.File.Rows),
		ValidLines:           p.ValidLines,
		ValidForCreation:     p.ValidForCreation,
		ValidForReactivation: make([]string, 0, len(p.ValidForReactivation)),
		Rows:                 make([]viewmodels.PreviewRow, 0, len(p.Rows)),
		Diagnostics:          DiagnosticsToViewModels(p.Diagnostics),
	}
	if !expiresAt.IsZero() {
		vm.ExpiresAt = &expiresAt
	}
	if p.IsSessionImport() {
		vm.CourseID = p.Course.Course.ID
		vm.Course = p.Course.Course.Fullname
	}
	for email := range p.ValidForReactivation {
		vm.ValidForReactivation = append(vm.ValidForReactivation, email)
	}
	sort.Strings(vm.ValidForReactivation)

	for _, row := range p.Rows {
		item := viewmodels.PreviewRow{
			Line:           row.Line,
			Email:          row.Email,
			Firstname:      row.Firstname,
			Lastname:       row.Lastname,
			Classification: row.Classification.String(),
			Group:          row.Group,
		}
		if row.Role != nil {
			item.Role = row.Role.Shortname
		}
		if row.Account != nil {
			item.AccountID = row.Account.ID
		}
		for _, r := range row.CurrentRoles {
			item.CurrentRoles = append(item.CurrentRoles, r.Shortname)
		}
		vm.Rows = append(vm.Rows, item)
	}
	return vm
}

func CommitResultToViewModel(res *services.CommitResult) *viewmodels.CommitResult {
	vm := &viewmodels.CommitResult{
		ID:         res.BatchID.String(),
		Counts:     make(map[string]int, len(res.Counts)),
		Failed:     res.Failed,
		Lines:      make([]viewmodels.ReportLine, 0, len(res.Lines)),
		ReportName: res.ReportName,
	}
	for o, n := range res.Counts {
		vm.Counts[string(o)] = n
	}
	for _, l := range res.Lines {
		vm.Lines = append(vm.Lines, viewmodels.ReportLine{Line: l.Line, Outcome: l.Outcome})
	}
	if res.NotifyErr != nil {
		vm.NotifyErr = res.NotifyErr.Error()
	}
	return vm
}
