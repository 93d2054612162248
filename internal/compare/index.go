package compare

import "github.com/aboutme/cards/internal/profile"

// Index looks profiles up by id. Unknown ids yield empty results.
type Index struct {
	byID map[string]profile.Profile
}

// NewIndex indexes items by id. A later item with a repeated id wins.
func NewIndex(items []profile.ListItem) *Index {
	idx := &Index{byID: make(map[string]profile.Profile, len(items))}
	for _, it := range items {
		idx.byID[it.ID] = it.Profile
	}
	return idx
}

func (x *Index) Skills(id string) []string    { return x.byID[id].Skills() }
func (x *Index) Interests(id string) []string { return x.byID[id].Interests() }
func (x *Index) Teams(id string) []string     { return x.byID[id].Teams() }

// Has reports whether id is indexed.
func (x *Index) Has(id string) bool {
	_, ok := x.byID[id]
	return ok
}

// Profiles returns the profiles for ids in the given order, skipping ids
// that are not indexed.
func (x *Index) Profiles(ids []string) []profile.Profile {
	out := make([]profile.Profile, 0, len(ids))
	for _, id := range ids {
		if p, ok := x.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out
}
