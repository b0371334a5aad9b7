package course

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// RoleLadder lists role shortnames from lowest to highest privilege.
type RoleLadder []string

var DefaultRoleLadder = RoleLadder{"student", "teacher", "editingteacher", "manager"}

type ladderFile struct {
	Roles []string `yaml:"roles" toml:"roles"`
}

// LoadRoleLadder reads a YAML file of the form `roles: [student, teacher, ...]`,
// or its TOML equivalent when the file ends in .toml.
// An empty path yields DefaultRoleLadder.
func LoadRoleLadder(path string) (RoleLadder, error) {
	if path == "" {
		return DefaultRoleLadder, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read role ladder: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return parseRoleLadder(raw, toml.Unmarshal)
	}
	return ParseRoleLadder(raw)
}

func ParseRoleLadder(raw []byte) (RoleLadder, error) {
	return parseRoleLadder(raw, yaml.Unmarshal)
}

func parseRoleLadder(raw []byte, unmarshal func([]byte, any) error) (RoleLadder, error) {
	var f ladderFile
	if err := unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse role ladder: %w", err)
	}
	if len(f.Roles) < 2 {
		return nil, fmt.Errorf("role ladder needs at least two roles, got %d", len(f.Roles))
	}
	seen := make(map[string]struct{}, len(f.Roles))
	out := make(RoleLadder, 0, len(f.Roles))
	for _, r := range f.Roles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" {
			return nil, fmt.Errorf("role ladder contains an empty role")
		}
		if _, dup := seen[r]; dup {
			return nil, fmt.Errorf("role ladder lists %q twice", r)
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}

func (l RoleLadder) Lowest() string {
	if len(l) == 0 {
		return ""
	}
	return l[0]
}

// NextHigher is the role directly above Lowest.
func (l RoleLadder) NextHigher() string {
	if len(l) < 2 {
		return ""
	}
	return l[1]
}
