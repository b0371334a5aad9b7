package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/iota-uz/lms-admin/modules/userimport/domain/entities/course"
)

var ErrCourseNotFound = course.ErrCourseNotFound

type courseState struct {
	course course.Course
	roles  []course.Role
	// enrolments maps an account to the role ids it holds.
	enrolments map[int64][]int64
}

// Courses is an in-memory course.Gateway.
type Courses struct {
	mu          sync.Mutex
	courses     map[int64]*courseState
	groups      map[int64]course.Group
	members     map[int64]map[int64]struct{}
	nextGroupID int64

	// FailEnrol makes Enrol fail for the given account ids.
	FailEnrol map[int64]error
}

func NewCourses() *Courses {
	return &Courses{
		courses:     map[int64]*courseState{},
		groups:      map[int64]course.Group{},
		members:     map[int64]map[int64]struct{}{},
		nextGroupID: 1,
		FailEnrol:   map[int64]error{},
	}
}

// AddCourse registers c with the roles that may be assigned in it.
func (c *Courses) AddCourse(crs course.Course, roles ...course.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.courses[crs.ID] = &courseState{
		course:     crs,
		roles:      append([]course.Role(nil), roles...),
		enrolments: map[int64][]int64{},
	}
}

func (c *Courses) AddGroup(courseID int64, name string) course.Group {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addGroup(courseID, name)
}

func (c *Courses) addGroup(courseID int64, name string) course.Group {
	g := course.Group{ID: c.nextGroupID, CourseID: courseID, Name: name}
	c.nextGroupID++
	c.groups[g.ID] = g
	return g
}

// Members returns the account ids in group id, sorted.
func (c *Courses) Members(groupID int64) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, 0, len(c.members[groupID]))
	for id := range c.members[groupID] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Groups returns the groups of courseID ordered by id.
func (c *Courses) Groups(courseID int64) []course.Group {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []course.Group
	for _, g := range c.groups {
		if g.CourseID == courseID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetRoles enrols accountID with exactly roleIDs.
func (c *Courses) SetRoles(courseID, accountID int64, roleIDs ...int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.courses[courseID]; ok {
		st.enrolments[accountID] = append([]int64(nil), roleIDs...)
	}
}

func (c *Courses) state(courseID int64) (*courseState, error) {
	st, ok := c.courses[courseID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrCourseNotFound, courseID)
	}
	return st, nil
}

func (c *Courses) role(st *courseState, id int64) (course.Role, bool) {
	for _, r := range st.roles {
		if r.ID == id {
			return r, true
		}
	}
	return course.Role{}, false
}

func (c *Courses) GetCourse(_ context.Context, id int64) (course.Course, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.state(id)
	if err != nil {
		return course.Course{}, err
	}
	return st.course, nil
}

func (c *Courses) AllowedRoles(_ context.Context, courseID int64) ([]course.Role, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.state(courseID)
	if err != nil {
		return nil, err
	}
	return append([]course.Role(nil), st.roles...), nil
}

func (c *Courses) GroupsByName(_ context.Context, courseID int64, names []string) (map[string]course.Group, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[strings.ToLower(n)] = struct{}{}
	}
	out := map[string]course.Group{}
	for _, g := range c.groups {
		key := strings.ToLower(g.Name)
		if _, ok := want[key]; ok && g.CourseID == courseID {
			out[key] = g
		}
	}
	return out, nil
}

func (c *Courses) RolesFor(_ context.Context, courseID int64, accountIDs []int64) (map[int64][]course.Role, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.state(courseID)
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]course.Role, len(accountIDs))
	for _, id := range accountIDs {
		for _, rid := range st.enrolments[id] {
			if r, ok := c.role(st, rid); ok {
				out[id] = append(out[id], r)
			}
		}
	}
	return out, nil
}

func (c *Courses) IsEnrolled(_ context.Context, courseID, accountID int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.state(courseID)
	if err != nil {
		return false, err
	}
	_, ok := st.enrolments[accountID]
	return ok, nil
}

func (c *Courses) Enrol(_ context.Context, courseID, accountID, roleID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.FailEnrol[accountID]; err != nil {
		return err
	}
	st, err := c.state(courseID)
	if err != nil {
		return err
	}
	if _, ok := st.enrolments[accountID]; ok {
		return nil
	}
	st.enrolments[accountID] = []int64{roleID}
	return nil
}

func (c *Courses) ReplaceRoles(_ context.Context, courseID, accountID, roleID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.state(courseID)
	if err != nil {
		return err
	}
	st.enrolments[accountID] = []int64{roleID}
	return nil
}

func (c *Courses) EnsureGroup(_ context.Context, courseID int64, name string) (course.Group, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.state(courseID); err != nil {
		return course.Group{}, err
	}
	for _, g := range c.groups {
		if g.CourseID == courseID && strings.EqualFold(g.Name, name) {
			return g, nil
		}
	}
	return c.addGroup(courseID, name), nil
}

func (c *Courses) AddMember(_ context.Context, groupID, accountID int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.members[groupID]
	if !ok {
		set = map[int64]struct{}{}
		c.members[groupID] = set
	}
	if _, exists := set[accountID]; exists {
		return false, nil
	}
	set[accountID] = struct{}{}
	return true, nil
}
