package compare

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aboutme/cards/internal/profile"
)

func mk(skills, hobbies, teams []string) profile.Profile {
	p := profile.Profile{Core: profile.Core{Name: "x", MainSkills: skills, TeamIDs: teams}}
	if hobbies != nil {
		p.Personal = &profile.Personal{Hobbies: hobbies}
	}
	return p
}

func lower(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.ToLower(v)
	}
	return out
}

func TestCompare_AliceAndBob(t *testing.T) {
	alice := mk([]string{"JavaScript", "React"}, nil, []string{"team1"})
	bob := mk([]string{"javascript", "Vue"}, nil, []string{"team1", "team2"})

	res := Compare(alice, bob)
	assert.Equal(t, []string{"JavaScript"}, res.CommonSkills)
	assert.Equal(t, []string{"team1"}, res.CommonTeams)
	assert.Equal(t, []string{}, res.CommonInterests)
	assert.Equal(t, 2, res.TotalCommon)
	// Raw union: JavaScript, React, team1, javascript, Vue, team2.
	assert.Equal(t, 33, res.SimilarityScore)

	assert.Equal(t, []string{"javascript"}, Compare(bob, alice).CommonSkills)
}

func TestCompare_Symmetric(t *testing.T) {
	pairs := [][2]profile.Profile{
		{mk([]string{"Go", "SQL", "k8s"}, []string{"chess"}, nil), mk([]string{"sql", "GO"}, []string{"Chess", "golf"}, nil)},
		{mk(nil, nil, nil), mk([]string{"Go"}, nil, []string{"t"})},
		{mk([]string{"A", "a", "B"}, nil, nil), mk([]string{"b", "A"}, nil, nil)},
	}

	for _, pr := range pairs {
		ab, ba := Compare(pr[0], pr[1]), Compare(pr[1], pr[0])
		assert.ElementsMatch(t, lower(ab.CommonSkills), lower(ba.CommonSkills))
		assert.ElementsMatch(t, lower(ab.CommonInterests), lower(ba.CommonInterests))
		assert.Equal(t, ab.TotalCommon, ba.TotalCommon)
		assert.Equal(t, ab.SimilarityScore, ba.SimilarityScore)
	}
}

func TestCompare_Reflexive(t *testing.T) {
	profiles := []profile.Profile{
		mk([]string{"Go", "Rust"}, []string{"climbing"}, []string{"platform"}),
		mk([]string{"Go"}, nil, nil),
		mk(nil, []string{"piano", "chess"}, []string{"t1", "t2"}),
	}
	for _, p := range profiles {
		assert.Equal(t, 100, Compare(p, p).SimilarityScore)
	}
}

func TestCompare_ReflexiveEdgeCases(t *testing.T) {
	// Nothing to share: the score is 0, as for disjoint profiles.
	empty := mk(nil, nil, nil)
	assert.Equal(t, 0, Compare(empty, empty).SimilarityScore)
	assert.Equal(t, 0, Compare(profile.Profile{}, profile.Profile{}).SimilarityScore)

	// Case variants within one class count twice in the raw union.
	variants := mk([]string{"Go", "go"}, nil, nil)
	res := Compare(variants, variants)
	assert.Equal(t, []string{"Go"}, res.CommonSkills)
	assert.Equal(t, 50, res.SimilarityScore)
}

func TestCompare_Disjoint(t *testing.T) {
	a := mk([]string{"Go"}, []string{"chess"}, []string{"t1"})
	b := mk([]string{"Python"}, []string{"golf"}, []string{"t2"})

	res := Compare(a, b)
	assert.Equal(t, 0, res.TotalCommon)
	assert.Equal(t, 0, res.SimilarityScore)
	assert.Empty(t, res.CommonSkills)
	assert.Empty(t, res.CommonInterests)
	assert.Empty(t, res.CommonTeams)
}

func TestCompare_EmptyProfiles(t *testing.T) {
	res := Compare(profile.Profile{}, profile.Profile{})
	assert.Equal(t, 0, res.SimilarityScore)
	assert.NotNil(t, res.CommonSkills)
}

func TestCompare_DeduplicatesFirstArgument(t *testing.T) {
	a := mk([]string{"Go", "go", "GO"}, nil, nil)
	b := mk([]string{"go"}, nil, nil)

	assert.Equal(t, []string{"Go"}, Compare(a, b).CommonSkills)
}

func TestIntersectAll_ThreeProfiles(t *testing.T) {
	p1 := mk([]string{"JS", "React", "Node"}, nil, nil)
	p2 := mk([]string{"JS", "Vue", "CSS"}, nil, nil)
	p3 := mk([]string{"Python", "Django"}, nil, nil)

	assert.Equal(t, []string{}, IntersectAll([]profile.Profile{p1, p2, p3}).Skills)
	assert.Equal(t, []string{"JS"}, IntersectAll([]profile.Profile{p1, p2}).Skills)
}

func TestIntersectAll_EveryMember(t *testing.T) {
	p1 := mk([]string{"Go", "SQL", "Docker"}, []string{"Chess"}, []string{"core"})
	p2 := mk([]string{"docker", "go"}, []string{"chess", "golf"}, []string{"core", "web"})
	p3 := mk([]string{"GO", "Docker", "Rust"}, []string{"CHESS"}, []string{"Core"})

	got := IntersectAll([]profile.Profile{p1, p2, p3})
	assert.Equal(t, []string{"Go", "Docker"}, got.Skills)
	assert.Equal(t, []string{"Chess"}, got.Interests)
	assert.Equal(t, []string{"core"}, got.Teams)
}

func TestIntersectAll_FewerThanTwo(t *testing.T) {
	for _, in := range [][]profile.Profile{nil, {mk([]string{"Go"}, nil, nil)}} {
		got := IntersectAll(in)
		assert.Equal(t, CommonElements{Skills: []string{}, Interests: []string{}, Teams: []string{}}, got)
	}
}

func TestGroupSimilarity(t *testing.T) {
	p1 := mk([]string{"JS", "React", "Node"}, nil, nil)
	p2 := mk([]string{"JS", "Vue", "CSS"}, nil, nil)
	p3 := mk([]string{"Python", "Django"}, nil, nil)

	// p1/p2 score 20, the other pairs 0.
	assert.Equal(t, 7, GroupSimilarity([]profile.Profile{p1, p2, p3}))
	assert.Equal(t, 100, GroupSimilarity([]profile.Profile{p1, p1}))
	assert.Equal(t, 0, GroupSimilarity([]profile.Profile{p1}))
	assert.Equal(t, 0, GroupSimilarity(nil))
}

func TestIndex(t *testing.T) {
	idx := NewIndex([]profile.ListItem{
		{ID: "1", Profile: mk([]string{"Go"}, []string{"chess"}, []string{"t1"})},
		{ID: "2", Profile: mk(nil, nil, nil)},
	})

	assert.Equal(t, []string{"Go"}, idx.Skills("1"))
	assert.Equal(t, []string{"chess"}, idx.Interests("1"))
	assert.Equal(t, []string{"t1"}, idx.Teams("1"))
	assert.Equal(t, []string{}, idx.Skills("2"))

	assert.Equal(t, []string{}, idx.Skills("missing"))
	assert.Equal(t, []string{}, idx.Interests("missing"))
	assert.Equal(t, []string{}, idx.Teams("missing"))
	assert.False(t, idx.Has("missing"))

	got := idx.Profiles([]string{"2", "missing", "1"})
	require.Len(t, got, 2)
	assert.Equal(t, []string{"Go"}, got[1].Core.MainSkills)
}
