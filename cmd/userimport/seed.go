package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/iota-uz/lms-admin/modules/userimport/domain/aggregates/account"
	"github.com/iota-uz/lms-admin/modules/userimport/domain/entities/course"
	"github.com/iota-uz/lms-admin/modules/userimport/infrastructure/memory"
)

// Roles every seeded course offers, mirroring the baseline schema.
var seedRoles = []course.Role{
	{ID: 1, Shortname: "manager", Name: "Manager"},
	{ID: 3, Shortname: "editingteacher", Name: "Teacher"},
	{ID: 4, Shortname: "teacher", Name: "Non-editing teacher"},
	{ID: 5, Shortname: "student", Name: "Student"},
}

type seedFile struct {
	Accounts []seedAccount `yaml:"accounts"`
	Courses  []seedCourse  `yaml:"courses"`
}

type seedAccount struct {
	ID        int64  `yaml:"id"`
	Email     string `yaml:"email"`
	Username  string `yaml:"username"`
	Firstname string `yaml:"firstname"`
	Lastname  string `yaml:"lastname"`
	Suspended bool   `yaml:"suspended"`
}

type seedCourse struct {
	ID          int64           `yaml:"id"`
	Shortname   string          `yaml:"shortname"`
	Fullname    string          `yaml:"fullname"`
	DefaultRole string          `yaml:"default_role"`
	Groups      []string        `yaml:"groups"`
	Enrolments  []seedEnrolment `yaml:"enrolments"`
}

type seedEnrolment struct {
	Email string `yaml:"email"`
	Role  string `yaml:"role"`
}

func seedRole(shortname string) (course.Role, bool) {
	for _, r := range seedRoles {
		if strings.EqualFold(r.Shortname, shortname) {
			return r, true
		}
	}
	return course.Role{}, false
}

func loadSeed(path string, dir *memory.Directory, courses *memory.Courses) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse seed %s: %w", path, err)
	}

	byEmail := map[string]int64{}
	for _, a := range f.Accounts {
		if a.Email == "" {
			return fmt.Errorf("seed account without email")
		}
		username := a.Username
		if username == "" {
			username = account.NormalizeEmail(a.Email)
		}
		seeded := dir.Seed(account.Account{
			ID:        a.ID,
			Email:     a.Email,
			Username:  username,
			Firstname: a.Firstname,
			Lastname:  a.Lastname,
			Suspended: a.Suspended,
		})
		byEmail[account.NormalizeEmail(a.Email)] = seeded.ID
	}

	for _, c := range f.Courses {
		if c.ID <= 0 {
			return fmt.Errorf("seed course %q needs a positive id", c.Shortname)
		}
		def := c.DefaultRole
		if def == "" {
			def = "student"
		}
		defRole, ok := seedRole(def)
		if !ok {
			return fmt.Errorf("seed course %d: unknown default role %q", c.ID, def)
		}
		courses.AddCourse(course.Course{ID: c.ID, Shortname: c.Shortname, Fullname: c.Fullname, DefaultRoleID: defRole.ID}, seedRoles...)
		for _, g := range c.Groups {
			courses.AddGroup(c.ID, g)
		}
		for _, e := range c.Enrolments {
			id, ok := byEmail[account.NormalizeEmail(e.Email)]
			if !ok {
				return fmt.Errorf("seed course %d: enrolment of unknown account %q", c.ID, e.Email)
			}
			role := defRole
			if e.Role != "" {
				if role, ok = seedRole(e.Role); !ok {
					return fmt.Errorf("seed course %d: unknown role %q", c.ID, e.Role)
				}
			}
			courses.SetRoles(c.ID, id, role.ID)
		}
	}
	return nil
}
