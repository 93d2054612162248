// Package visibility decides which sections of a profile a viewer may see
// and produces the redacted view that is safe to hand to that viewer.
package visibility

import (
	"strings"

	"github.com/aboutme/cards/internal/profile"
)

// ViewingContext describes who is looking at a profile. It is built per
// request and never stored.
type ViewingContext struct {
	IsOwnProfile   bool
	OrganizationID string
	ViewerUserID   string
	ViewerRole     string
}

// Result is the outcome of evaluating one profile for one viewer.
type Result struct {
	VisibleProfile profile.Profile
	Sections       map[profile.Section]bool
	Reasons        map[profile.Section]string
}

const (
	reasonPersonal = "User has kept personal information private"
	reasonContact  = "Contact information is private"
)

// DefaultPolicy returns the visibility used for sections without an explicit
// setting. Skills and team affiliation are directory information; personal
// details and contact info stay private until the member opts in.
func DefaultPolicy() map[profile.Section]bool {
	return map[profile.Section]bool{
		profile.SectionCore:       true,
		profile.SectionSkills:     true,
		profile.SectionPersonal:   false,
		profile.SectionExperience: true,
		profile.SectionContact:    false,
	}
}

// Resolve reports whether section is visible to the viewer.
func Resolve(p profile.Profile, ctx ViewingContext, section profile.Section) bool {
	if ctx.IsOwnProfile || section == profile.SectionCore {
		return true
	}
	if setting, ok := p.Show()[section]; ok {
		if v, decided := setting.ForOrganization(ctx.OrganizationID); decided {
			return v
		}
	}
	return DefaultPolicy()[section]
}

// Evaluate computes section visibility for the viewer and returns a copy of
// p with hidden sections stripped. The input is never modified.
func Evaluate(p profile.Profile, ctx ViewingContext) Result {
	res := Result{
		VisibleProfile: p.Clone(),
		Sections:       make(map[profile.Section]bool, len(profile.Sections)),
		Reasons:        make(map[profile.Section]string, len(profile.Sections)),
	}

	for _, section := range profile.Sections {
		visible := Resolve(p, ctx, section)
		res.Sections[section] = visible
		if visible {
			res.Reasons[section] = ""
			continue
		}
		res.Reasons[section] = reason(section)
		redact(&res.VisibleProfile, section)
	}
	return res
}

func redact(p *profile.Profile, section profile.Section) {
	switch section {
	case profile.SectionSkills:
		p.Core.MainSkills = []string{}
	case profile.SectionExperience:
		p.Core.TeamIDs = []string{}
	case profile.SectionPersonal:
		p.Personal = nil
	case profile.SectionContact:
		// No contact fields exist yet; the section is still reported.
	}
}

func reason(section profile.Section) string {
	switch section {
	case profile.SectionPersonal:
		return reasonPersonal
	case profile.SectionContact:
		return reasonContact
	}
	name := string(section)
	return strings.ToUpper(name[:1]) + name[1:] + " information is private"
}
