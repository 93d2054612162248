// Package compare finds what a set of profiles has in common.
//
// Matching is case-insensitive: "JavaScript" and "javascript" are the same
// skill, and results keep the casing of the first profile that lists it.
// The similarity denominator is the raw union of values, so case variants
// of one skill count as distinct members there.
package compare

import (
	"math"
	"strings"

	"github.com/aboutme/cards/internal/profile"
)

// Result is the pairwise comparison of two profiles.
type Result struct {
	CommonSkills    []string `json:"commonSkills"`
	CommonInterests []string `json:"commonInterests"`
	CommonTeams     []string `json:"commonTeams"`
	TotalCommon     int      `json:"totalCommon"`
	SimilarityScore int      `json:"similarityScore"`
}

// CommonElements holds the values shared by every profile of a group.
type CommonElements struct {
	Skills    []string `json:"skills"`
	Interests []string `json:"interests"`
	Teams     []string `json:"teams"`
}

// Compare intersects the skills, interests and teams of a and b and scores
// their overlap from 0 to 100.
func Compare(a, b profile.Profile) Result {
	res := Result{
		CommonSkills:    intersect(a.Skills(), b.Skills()),
		CommonInterests: intersect(a.Interests(), b.Interests()),
		CommonTeams:     intersect(a.Teams(), b.Teams()),
	}
	res.TotalCommon = len(res.CommonSkills) + len(res.CommonInterests) + len(res.CommonTeams)

	union := rawUnion(
		a.Skills(), a.Interests(), a.Teams(),
		b.Skills(), b.Interests(), b.Teams(),
	)
	res.SimilarityScore = score(res.TotalCommon, union)
	return res
}

// IntersectAll returns the values present in every profile. Fewer than two
// profiles have nothing in common with anyone, so the result is empty.
func IntersectAll(profiles []profile.Profile) CommonElements {
	out := CommonElements{Skills: []string{}, Interests: []string{}, Teams: []string{}}
	if len(profiles) < 2 {
		return out
	}

	out.Skills = intersectN(profiles, profile.Profile.Skills)
	out.Interests = intersectN(profiles, profile.Profile.Interests)
	out.Teams = intersectN(profiles, profile.Profile.Teams)
	return out
}

// GroupSimilarity is the mean pairwise similarity score over every
// unordered pair, rounded to the nearest integer.
func GroupSimilarity(profiles []profile.Profile) int {
	if len(profiles) < 2 {
		return 0
	}
	var sum, pairs int
	for i := 0; i < len(profiles); i++ {
		for j := i + 1; j < len(profiles); j++ {
			sum += Compare(profiles[i], profiles[j]).SimilarityScore
			pairs++
		}
	}
	return int(math.Round(float64(sum) / float64(pairs)))
}

func score(common, union int) int {
	if union == 0 {
		return 0
	}
	s := int(math.Round(float64(common) / float64(union) * 100))
	// The same string may appear in two classes and be counted twice in
	// common but once in the union.
	if s > 100 {
		s = 100
	}
	return s
}

func intersect(a, b []string) []string {
	inB := make(map[string]struct{}, len(b))
	for _, v := range b {
		inB[fold(v)] = struct{}{}
	}

	out := []string{}
	seen := make(map[string]struct{}, len(a))
	for _, v := range a {
		k := fold(v)
		if _, ok := inB[k]; !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

func intersectN(profiles []profile.Profile, values func(profile.Profile) []string) []string {
	common := values(profiles[0])
	for _, p := range profiles[1:] {
		common = intersect(common, values(p))
		if len(common) == 0 {
			break
		}
	}
	return common
}

func rawUnion(lists ...[]string) int {
	set := make(map[string]struct{})
	for _, l := range lists {
		for _, v := range l {
			set[v] = struct{}{}
		}
	}
	return len(set)
}

func fold(s string) string { return strings.ToLower(s) }
