// Package listing filters, sorts and pages collections of profile list items.
// Every function returns a new slice and leaves its input untouched.
package listing

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/aboutme/cards/internal/profile"
)

// Criteria selects items. Zero-valued fields do not constrain the result.
type Criteria struct {
	SearchTerm string
	Skills     []string
	Teams      []string
}

// Filter returns the items matching every active criterion.
//
// The search term matches name, title or any skill, case-insensitively.
// Skills and Teams match when the item lists at least one of the values,
// compared exactly.
func Filter(items []profile.ListItem, c Criteria) []profile.ListItem {
	term := strings.ToLower(strings.TrimSpace(c.SearchTerm))

	out := make([]profile.ListItem, 0, len(items))
	for _, it := range items {
		if term != "" && !matchesSearch(it.Profile, term) {
			continue
		}
		if len(c.Skills) > 0 && !containsAny(it.Profile.Core.MainSkills, c.Skills) {
			continue
		}
		if len(c.Teams) > 0 && !containsAny(it.Profile.Core.TeamIDs, c.Teams) {
			continue
		}
		out = append(out, it)
	}
	return out
}

func matchesSearch(p profile.Profile, term string) bool {
	if strings.Contains(strings.ToLower(p.Core.Name), term) ||
		strings.Contains(strings.ToLower(p.Core.MainTitle), term) {
		return true
	}
	for _, s := range p.Core.MainSkills {
		if strings.Contains(strings.ToLower(s), term) {
			return true
		}
	}
	return false
}

func containsAny(have, want []string) bool {
	for _, w := range want {
		if slices.Contains(have, w) {
			return true
		}
	}
	return false
}

// Field is a sort key.
type Field string

const (
	FieldName       Field = "name"
	FieldTitle      Field = "title"
	FieldSkillCount Field = "skillCount"
	FieldTeamCount  Field = "teamCount"
)

// Direction is a sort order.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseField maps a query value to a Field. An empty string means name.
func ParseField(s string) (Field, error) {
	switch Field(s) {
	case "":
		return FieldName, nil
	case FieldName, FieldTitle, FieldSkillCount, FieldTeamCount:
		return Field(s), nil
	}
	return "", fmt.Errorf("unknown sort field %q (valid: name, title, skillCount, teamCount)", s)
}

// ParseDirection maps a query value to a Direction. An empty string means asc.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(s)) {
	case "", Asc:
		return Asc, nil
	case Desc:
		return Desc, nil
	}
	return "", fmt.Errorf("unknown sort direction %q (valid: asc, desc)", s)
}

// Sort returns a sorted copy of items. Items with equal keys keep their
// relative order in both directions. An unknown field leaves the order as is.
func Sort(items []profile.ListItem, field Field, dir Direction) []profile.ListItem {
	out := slices.Clone(items)
	if out == nil {
		out = []profile.ListItem{}
	}

	var less func(a, b profile.ListItem) bool
	switch field {
	case FieldName:
		less = func(a, b profile.ListItem) bool {
			return strings.ToLower(a.Profile.Core.Name) < strings.ToLower(b.Profile.Core.Name)
		}
	case FieldTitle:
		less = func(a, b profile.ListItem) bool {
			return strings.ToLower(a.Profile.Core.MainTitle) < strings.ToLower(b.Profile.Core.MainTitle)
		}
	case FieldSkillCount:
		less = func(a, b profile.ListItem) bool {
			return len(a.Profile.Core.MainSkills) < len(b.Profile.Core.MainSkills)
		}
	case FieldTeamCount:
		less = func(a, b profile.ListItem) bool {
			return len(a.Profile.Core.TeamIDs) < len(b.Profile.Core.TeamIDs)
		}
	default:
		return out
	}

	if dir == Desc {
		sort.SliceStable(out, func(i, j int) bool { return less(out[j], out[i]) })
	} else {
		sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	}
	return out
}

// Page returns the window [offset, offset+limit) of items and whether more
// items follow it. A non-positive limit returns everything from offset.
func Page(items []profile.ListItem, offset, limit int) ([]profile.ListItem, bool) {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []profile.ListItem{}, false
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return slices.Clone(items[offset:end]), end < len(items)
}

// FacetValues are the distinct skills and teams present in a collection,
// used to populate filter pickers.
type FacetValues struct {
	Skills []string `json:"skills"`
	Teams  []string `json:"teams"`
}

// Facets collects the distinct skills and teams of items, sorted.
func Facets(items []profile.ListItem) FacetValues {
	skills := map[string]struct{}{}
	teams := map[string]struct{}{}
	for _, it := range items {
		for _, s := range it.Profile.Core.MainSkills {
			skills[s] = struct{}{}
		}
		for _, t := range it.Profile.Core.TeamIDs {
			teams[t] = struct{}{}
		}
	}
	return FacetValues{Skills: sortedKeys(skills), Teams: sortedKeys(teams)}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
