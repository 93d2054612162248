package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aboutme/cards/internal/compare"
	"github.com/aboutme/cards/internal/listing"
	"github.com/aboutme/cards/internal/profile"
	"github.com/aboutme/cards/internal/skillgraph"
	"github.com/aboutme/cards/internal/storage"
	"github.com/aboutme/cards/internal/visibility"
)

// BrowseQuery selects, orders and pages an organization's cards.
type BrowseQuery struct {
	listing.Criteria
	Field     listing.Field
	Direction listing.Direction
	Offset    int
	Limit     int
}

type BrowseResult struct {
	Items   []Card              `json:"items"`
	Total   int                 `json:"total"`
	HasMore bool                `json:"has_more"`
	Facets  listing.FacetValues `json:"facets"`
}

// redacted evaluates every item for viewer. The returned list items hold
// the redacted profiles so that filtering never matches hidden data.
func redacted(items []profile.ListItem, viewer storage.Membership) ([]profile.ListItem, map[string]Card) {
	views := make([]profile.ListItem, len(items))
	cards := make(map[string]Card, len(items))
	for i, it := range items {
		vc := viewingContext(viewer, it.ID)
		res := visibility.Evaluate(it.Profile, vc)
		views[i] = profile.ListItem{ID: it.ID, Profile: res.VisibleProfile}
		cards[it.ID] = newCard(it.ID, res, vc.IsOwnProfile)
	}
	return views, cards
}

// Browse lists the cards of orgID visible to viewerID.
func (s *Service) Browse(ctx context.Context, viewerID, orgID string, q BrowseQuery) (BrowseResult, error) {
	viewer, err := s.requireMember(ctx, orgID, viewerID)
	if err != nil {
		return BrowseResult{}, err
	}
	items, err := s.snapshot(ctx, orgID)
	if err != nil {
		return BrowseResult{}, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = s.pageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	field := q.Field
	if field == "" {
		field = listing.FieldName
	}

	views, cards := redacted(items, viewer)
	matched := listing.Sort(listing.Filter(views, q.Criteria), field, q.Direction)
	page, more := listing.Page(matched, q.Offset, limit)

	res := BrowseResult{
		Items:   make([]Card, len(page)),
		Total:   len(matched),
		HasMore: more,
		Facets:  listing.Facets(views),
	}
	for i, it := range page {
		res.Items[i] = cards[it.ID]
	}
	return res, nil
}

// GetCard returns targetID's card as viewerID sees it within orgID.
func (s *Service) GetCard(ctx context.Context, viewerID, orgID, targetID string) (Card, error) {
	viewer, err := s.requireMember(ctx, orgID, viewerID)
	if err != nil {
		return Card{}, err
	}
	if targetID != viewerID {
		if _, err := s.members.GetMembership(ctx, orgID, targetID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return Card{}, storage.ErrNotFound
			}
			return Card{}, fmt.Errorf("checking target membership: %w", err)
		}
	}

	p, err := s.profiles.GetProfile(ctx, targetID)
	if err != nil {
		return Card{}, fmt.Errorf("loading profile %s: %w", targetID, err)
	}
	vc := viewingContext(viewer, targetID)
	return newCard(targetID, visibility.Evaluate(p, vc), vc.IsOwnProfile), nil
}

// Pair is the comparison of two selected profiles.
type Pair struct {
	A      string         `json:"a"`
	B      string         `json:"b"`
	Result compare.Result `json:"result"`
}

type Comparison struct {
	IDs             []string               `json:"ids"`
	Pairs           []Pair                 `json:"pairs"`
	Common          compare.CommonElements `json:"common"`
	GroupSimilarity int                    `json:"group_similarity"`
}

// Compare compares the selected members of orgID on what viewerID can see
// of them. Between 2 and MaxCompare distinct ids are accepted.
func (s *Service) Compare(ctx context.Context, viewerID, orgID string, ids []string) (Comparison, error) {
	selected := dedupe(ids)
	if len(selected) < 2 {
		return Comparison{}, fmt.Errorf("%w: select at least two profiles", ErrInvalidInput)
	}
	if len(selected) > s.maxCompare {
		return Comparison{}, fmt.Errorf("%w: at most %d profiles can be compared", ErrTooManySelected, s.maxCompare)
	}

	viewer, err := s.requireMember(ctx, orgID, viewerID)
	if err != nil {
		return Comparison{}, err
	}
	items, err := s.snapshot(ctx, orgID)
	if err != nil {
		return Comparison{}, err
	}

	views, _ := redacted(items, viewer)
	idx := compare.NewIndex(views)
	for _, id := range selected {
		if !idx.Has(id) {
			return Comparison{}, fmt.Errorf("profile %s: %w", id, storage.ErrNotFound)
		}
	}

	profiles := idx.Profiles(selected)
	out := Comparison{IDs: selected, Pairs: []Pair{}}
	for i := 0; i < len(selected); i++ {
		for j := i + 1; j < len(selected); j++ {
			out.Pairs = append(out.Pairs, Pair{
				A:      selected[i],
				B:      selected[j],
				Result: compare.Compare(profiles[i], profiles[j]),
			})
		}
	}
	out.Common = compare.IntersectAll(profiles)
	out.GroupSimilarity = compare.GroupSimilarity(profiles)
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// GraphResult is a skills graph and when it was built.
type GraphResult struct {
	Graph   skillgraph.Graph `json:"graph"`
	BuiltAt time.Time        `json:"built_at"`
	Live    bool             `json:"live"`
}

// SkillGraph returns orgID's skills graph limited to the top most frequent
// skills (all when top <= 0). The stored graph is used when one exists;
// otherwise it is built on the fly.
func (s *Service) SkillGraph(ctx context.Context, viewerID, orgID string, top int) (GraphResult, error) {
	if _, err := s.requireMember(ctx, orgID, viewerID); err != nil {
		return GraphResult{}, err
	}

	stored, err := s.graphs.GetSkillGraph(ctx, orgID)
	switch {
	case err == nil:
		return GraphResult{Graph: stored.Graph.Top(top), BuiltAt: stored.BuiltAt}, nil
	case !errors.Is(err, storage.ErrNotFound):
		return GraphResult{}, fmt.Errorf("loading skills graph: %w", err)
	}

	items, err := s.snapshot(ctx, orgID)
	if err != nil {
		return GraphResult{}, err
	}
	g := orgGraph(items, orgID)
	return GraphResult{Graph: g.Top(top), BuiltAt: time.Now().UTC(), Live: true}, nil
}

// RebuildSkillGraph rebuilds and stores orgID's skills graph from fresh data.
func (s *Service) RebuildSkillGraph(ctx context.Context, orgID string) error {
	items, err := s.loadSnapshot(ctx, orgID)
	if err != nil {
		return err
	}
	g := orgGraph(items, orgID)
	if err := s.graphs.SaveSkillGraph(ctx, storage.StoredGraph{OrgID: orgID, Graph: g, BuiltAt: time.Now().UTC()}); err != nil {
		return fmt.Errorf("saving skills graph: %w", err)
	}
	s.logger.Info("skills graph rebuilt", "org_id", orgID, "nodes", len(g.Nodes), "edges", len(g.Edges))
	return nil
}

// orgGraph builds the graph from what any member of orgID, other than the
// profile owner, is allowed to see.
func orgGraph(items []profile.ListItem, orgID string) skillgraph.Graph {
	views, _ := redacted(items, storage.Membership{OrgID: orgID})
	return skillgraph.Build(views)
}
