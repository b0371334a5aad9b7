package services

import (
	"sort"
	"strings"
)

const (
	ColumnEmail     = "email"
	ColumnLastname  = "lastname"
	ColumnFirstname = "firstname"
	ColumnRole      = "role"
	ColumnGroup     = "group"
)

var (
	requiredColumns = []string{ColumnEmail, ColumnLastname, ColumnFirstname}
	optionalColumns = []string{ColumnRole, ColumnGroup}
)

// ColumnMap resolves logical fields to cell indexes. Role and Group are -1
// when the header does not carry them.
type ColumnMap struct {
	Email     int
	Lastname  int
	Firstname int
	Role      int
	Group     int
}

// HasRoleAndGroup reports whether both optional columns are present.
func (m ColumnMap) HasRoleAndGroup() bool {
	return m.Role >= 0 && m.Group >= 0
}

// BuildColumnMap maps header cells (case-insensitive) to logical fields.
// Empty header cells, such as one left by a trailing delimiter, leave their
// column unmapped. Missing required columns, unknown columns and duplicates
// are fatal.
func BuildColumnMap(header []string) (ColumnMap, error) {
	m := ColumnMap{Email: -1, Lastname: -1, Firstname: -1, Role: -1, Group: -1}
	slots := map[string]*int{
		ColumnEmail:     &m.Email,
		ColumnLastname:  &m.Lastname,
		ColumnFirstname: &m.Firstname,
		ColumnRole:      &m.Role,
		ColumnGroup:     &m.Group,
	}

	for i, cell := range header {
		name := strings.ToLower(strings.TrimSpace(cell))
		if name == "" {
			continue
		}
		slot, ok := slots[name]
		if !ok {
			return m, fatal(CodeUnexpectedHeader, "unexpected header column: %q (allowed: %s)",
				cell, strings.Join(append(append([]string{}, requiredColumns...), optionalColumns...), ", "))
		}
		if *slot >= 0 {
			return m, fatal(CodeUnexpectedHeader, "duplicate header column: %s", name)
		}
		*slot = i
	}

	var missing []string
	for _, name := range requiredColumns {
		if *slots[name] < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return m, fatal(CodeMissingHeaders, "missing headers: %s", strings.Join(missing, ", "))
	}
	return m, nil
}

func (m ColumnMap) cell(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}
