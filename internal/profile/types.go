package profile

import (
	"errors"
	"strings"
)

// ErrNameRequired is returned by Validate when core.name is blank.
var ErrNameRequired = errors.New("core.name is required")

// Profile is a member's card: an always-visible identity block plus an
// optional personal block that carries the member's sharing settings.
type Profile struct {
	Core     Core      `json:"core"`
	Personal *Personal `json:"personal,omitempty"`
}

// Core is the identity block. Name is the only required field.
type Core struct {
	Name       string   `json:"name"`
	MainTitle  string   `json:"mainTitle,omitempty"`
	PhotoURL   string   `json:"photoUrl,omitempty"`
	MainSkills []string `json:"mainSkills,omitempty"`
	TeamIDs    []string `json:"teamIds,omitempty"`
}

// Personal holds opt-in details and the per-section sharing configuration.
type Personal struct {
	Motto      string           `json:"motto,omitempty"`
	Hobbies    []string         `json:"hobbies,omitempty"`
	Favorites  []string         `json:"favorites,omitempty"`
	Learning   []string         `json:"learning,omitempty"`
	Activities []string         `json:"activities,omitempty"`
	Show       VisibilityConfig `json:"show,omitempty"`
}

// ListItem pairs a profile with the account id it belongs to.
type ListItem struct {
	ID      string  `json:"id"`
	Profile Profile `json:"profile"`
}

// Section names a top-level block of a profile that can be shared or hidden.
type Section string

const (
	SectionCore       Section = "core"
	SectionSkills     Section = "skills"
	SectionPersonal   Section = "personal"
	SectionExperience Section = "experience"
	SectionContact    Section = "contact"
)

// Sections lists every section in display order.
var Sections = []Section{SectionCore, SectionSkills, SectionPersonal, SectionExperience, SectionContact}

// Skills returns core.mainSkills, never nil.
func (p Profile) Skills() []string { return nonNil(p.Core.MainSkills) }

// Teams returns core.teamIds, never nil.
func (p Profile) Teams() []string { return nonNil(p.Core.TeamIDs) }

// Interests returns personal.hobbies, never nil.
func (p Profile) Interests() []string {
	if p.Personal == nil {
		return []string{}
	}
	return nonNil(p.Personal.Hobbies)
}

// Show returns the sharing configuration, or nil when none was set.
func (p Profile) Show() VisibilityConfig {
	if p.Personal == nil {
		return nil
	}
	return p.Personal.Show
}

// Validate checks the invariants a stored profile must satisfy.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Core.Name) == "" {
		return ErrNameRequired
	}
	return nil
}

// Clone returns a deep copy of p.
func (p Profile) Clone() Profile {
	cp := Profile{Core: p.Core}
	cp.Core.MainSkills = copyStrings(p.Core.MainSkills)
	cp.Core.TeamIDs = copyStrings(p.Core.TeamIDs)

	if p.Personal != nil {
		pers := *p.Personal
		pers.Hobbies = copyStrings(p.Personal.Hobbies)
		pers.Favorites = copyStrings(p.Personal.Favorites)
		pers.Learning = copyStrings(p.Personal.Learning)
		pers.Activities = copyStrings(p.Personal.Activities)
		pers.Show = p.Personal.Show.Clone()
		cp.Personal = &pers
	}
	return cp
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	cp := make([]string, len(s))
	copy(cp, s)
	return cp
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
