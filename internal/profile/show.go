package profile

import (
	"bytes"
	"encoding/json"
)

// ShowKind tags which shape a ShowSetting holds.
type ShowKind int

const (
	// ShowUnset means no explicit setting: the default policy applies.
	ShowUnset ShowKind = iota
	// ShowBool is a flat true/false for every viewer.
	ShowBool
	// ShowPerOrg maps organization ids (and the reserved "all" key) to booleans.
	ShowPerOrg
	// ShowMalformed is any stored value of an unrecognised shape.
	ShowMalformed
)

// AllOrganizations is the fallback key of a per-organization setting.
const AllOrganizations = "all"

// ShowSetting is the sharing setting of one section. Decoding never fails:
// unknown shapes become ShowMalformed and keep their raw bytes so that a
// re-save does not destroy what the client wrote.
type ShowSetting struct {
	Kind ShowKind
	Bool bool
	Orgs map[string]bool
	Raw  json.RawMessage
}

// Visible returns a flat setting.
func Visible(v bool) ShowSetting { return ShowSetting{Kind: ShowBool, Bool: v} }

// PerOrg returns a per-organization setting.
func PerOrg(orgs map[string]bool) ShowSetting {
	cp := make(map[string]bool, len(orgs))
	for k, v := range orgs {
		cp[k] = v
	}
	return ShowSetting{Kind: ShowPerOrg, Orgs: cp}
}

// ForOrganization resolves the setting for orgID. ok is false when the
// setting does not decide, and the caller should use its default.
func (s ShowSetting) ForOrganization(orgID string) (visible bool, ok bool) {
	switch s.Kind {
	case ShowBool:
		return s.Bool, true
	case ShowPerOrg:
		if orgID != "" {
			if v, found := s.Orgs[orgID]; found {
				return v, true
			}
		}
		if v, found := s.Orgs[AllOrganizations]; found {
			return v, true
		}
	}
	return false, false
}

// MarshalJSON writes a bool, or an org id to bool object for per-org settings.
func (s ShowSetting) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case ShowBool:
		return json.Marshal(s.Bool)
	case ShowPerOrg:
		if s.Orgs == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(s.Orgs)
	case ShowMalformed:
		if len(s.Raw) > 0 {
			return s.Raw, nil
		}
	}
	return []byte("null"), nil
}

// UnmarshalJSON reads the forms MarshalJSON writes.
func (s *ShowSetting) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	*s = ShowSetting{}

	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	var b bool
	if err := json.Unmarshal(trimmed, &b); err == nil {
		*s = ShowSetting{Kind: ShowBool, Bool: b}
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err == nil {
		orgs := make(map[string]bool, len(obj))
		for k, raw := range obj {
			var v bool
			if json.Unmarshal(raw, &v) == nil {
				orgs[k] = v
			}
		}
		if len(obj) > 0 && len(orgs) == 0 {
			*s = ShowSetting{Kind: ShowMalformed, Raw: append(json.RawMessage(nil), trimmed...)}
			return nil
		}
		*s = ShowSetting{Kind: ShowPerOrg, Orgs: orgs}
		return nil
	}

	*s = ShowSetting{Kind: ShowMalformed, Raw: append(json.RawMessage(nil), trimmed...)}
	return nil
}

// VisibilityConfig is personal.show: section name to sharing setting.
type VisibilityConfig map[Section]ShowSetting

// UnmarshalJSON accepts any JSON value. Anything other than an object
// decodes to an empty config so a corrupt show block cannot break a profile.
func (c *VisibilityConfig) UnmarshalJSON(data []byte) error {
	var obj map[Section]ShowSetting
	if err := json.Unmarshal(data, &obj); err != nil {
		*c = nil
		return nil
	}
	*c = obj
	return nil
}

// Clone returns a deep copy of c.
func (c VisibilityConfig) Clone() VisibilityConfig {
	if c == nil {
		return nil
	}
	cp := make(VisibilityConfig, len(c))
	for k, v := range c {
		if v.Orgs != nil {
			v = PerOrg(v.Orgs)
		}
		if v.Raw != nil {
			v.Raw = append(json.RawMessage(nil), v.Raw...)
		}
		cp[k] = v
	}
	return cp
}
