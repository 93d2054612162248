package directory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aboutme/cards/internal/cache"
	"github.com/aboutme/cards/internal/listing"
	"github.com/aboutme/cards/internal/profile"
	"github.com/aboutme/cards/internal/storage"
)

type fixture struct {
	store *storage.Store
	svc   *Service
}

// newFixture builds the "acme" organization: alice (admin), bob and carol.
// Bob hides his skills from acme.
func newFixture(t *testing.T) fixture {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.CreateOrganization(ctx, storage.Organization{ID: "acme", Name: "Acme", CreatedBy: "alice"}))
	require.NoError(t, store.AddMember(ctx, storage.Membership{OrgID: "acme", UserID: "bob"}))
	require.NoError(t, store.AddMember(ctx, storage.Membership{OrgID: "acme", UserID: "carol"}))

	profiles := map[string]profile.Profile{
		"alice": {Core: profile.Core{Name: "Alice", MainTitle: "Engineer", MainSkills: []string{"Go", "SQL"}, TeamIDs: []string{"t1"}}},
		"bob": {
			Core: profile.Core{Name: "Bob", MainSkills: []string{"Go", "Rust"}, TeamIDs: []string{"t2"}},
			Personal: &profile.Personal{
				Hobbies: []string{"chess"},
				Show: profile.VisibilityConfig{
					profile.SectionSkills: profile.PerOrg(map[string]bool{"acme": false}),
				},
			},
		},
		"carol": {Core: profile.Core{Name: "Carol", MainTitle: "Designer", MainSkills: []string{"Python"}, TeamIDs: []string{"t1"}}},
	}
	for id, p := range profiles {
		require.NoError(t, store.PutProfile(ctx, id, p))
	}

	svc := New(Deps{
		Members:  store,
		Profiles: store,
		Graphs:   store,
		Jobs:     store,
		Cache:    cache.NewMemory(),
	})
	return fixture{store: store, svc: svc}
}

func cardIDs(cards []Card) []string {
	ids := make([]string, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
	}
	return ids
}

func TestBrowse(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Browse(context.Background(), "alice", "acme", BrowseQuery{})
	require.NoError(t, err)

	assert.Equal(t, []string{"alice", "bob", "carol"}, cardIDs(res.Items))
	assert.Equal(t, 3, res.Total)
	assert.False(t, res.HasMore)
	assert.True(t, res.Items[0].Own)
	assert.False(t, res.Items[1].Own)

	bob := res.Items[1]
	assert.Empty(t, bob.Profile.Core.MainSkills)
	assert.False(t, bob.Sections[profile.SectionSkills])
	assert.Nil(t, bob.Profile.Personal, "personal is private by default")

	assert.Equal(t, []string{"Go", "Python", "SQL"}, res.Facets.Skills)
	assert.Equal(t, []string{"t1", "t2"}, res.Facets.Teams)
}

func TestBrowse_FilterSeesOnlyVisibleData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q := BrowseQuery{Criteria: listing.Criteria{Skills: []string{"Rust"}}}

	res, err := f.svc.Browse(ctx, "alice", "acme", q)
	require.NoError(t, err)
	assert.Empty(t, res.Items, "hidden skills must not match")

	res, err = f.svc.Browse(ctx, "bob", "acme", q)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, cardIDs(res.Items), "owners see their own skills")
}

func TestBrowse_SortAndPage(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Browse(context.Background(), "alice", "acme", BrowseQuery{
		Field:     listing.FieldName,
		Direction: listing.Desc,
		Limit:     2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"carol", "bob"}, cardIDs(res.Items))
	assert.Equal(t, 3, res.Total)
	assert.True(t, res.HasMore)

	res, err = f.svc.Browse(context.Background(), "alice", "acme", BrowseQuery{
		Criteria: listing.Criteria{SearchTerm: "  ENGINEER "},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, cardIDs(res.Items))
}

func TestBrowse_NotMember(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Browse(context.Background(), "mallory", "acme", BrowseQuery{})
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestBrowse_SeesUpdatesAfterProfileChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Browse(ctx, "alice", "acme", BrowseQuery{})
	require.NoError(t, err)

	p, err := f.svc.MyProfile(ctx, "carol")
	require.NoError(t, err)
	p.Core.Name = "Caroline"
	_, err = f.svc.UpdateProfile(ctx, "carol", p)
	require.NoError(t, err)

	res, err := f.svc.Browse(ctx, "alice", "acme", BrowseQuery{Criteria: listing.Criteria{SearchTerm: "caroline"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, cardIDs(res.Items))
}

// pausingProfiles holds the next GetProfiles call after it has read, until
// release is closed.
type pausingProfiles struct {
	ProfileStore

	mu      sync.Mutex
	armed   bool
	read    chan struct{}
	release chan struct{}
}

func (p *pausingProfiles) GetProfiles(ctx context.Context, ids []string) ([]profile.ListItem, error) {
	items, err := p.ProfileStore.GetProfiles(ctx, ids)
	p.mu.Lock()
	armed := p.armed
	p.armed = false
	p.mu.Unlock()
	if armed {
		close(p.read)
		<-p.release
	}
	return items, err
}

func TestBrowse_LoadRacingUpdateIsNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	profiles := &pausingProfiles{
		ProfileStore: f.store,
		armed:        true,
		read:         make(chan struct{}),
		release:      make(chan struct{}),
	}
	svc := New(Deps{Members: f.store, Profiles: profiles, Graphs: f.store, Jobs: f.store, Cache: cache.NewMemory()})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Browse(ctx, "alice", "acme", BrowseQuery{})
		done <- err
	}()
	<-profiles.read

	_, err := svc.UpdateProfile(ctx, "carol", profile.Profile{Core: profile.Core{Name: "Caroline", MainSkills: []string{"Python"}, TeamIDs: []string{"t1"}}})
	require.NoError(t, err)

	close(profiles.release)
	require.NoError(t, <-done)

	res, err := svc.Browse(ctx, "alice", "acme", BrowseQuery{})
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	assert.Equal(t, "carol", res.Items[2].ID)
	assert.Equal(t, "Caroline", res.Items[2].Profile.Core.Name)
}

func TestBrowse_RemovedMemberDisappears(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Browse(ctx, "alice", "acme", BrowseQuery{})
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveMember(ctx, "alice", "acme", "bob"))

	res, err := f.svc.Browse(ctx, "alice", "acme", BrowseQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol"}, cardIDs(res.Items))
}

func TestGetCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	card, err := f.svc.GetCard(ctx, "alice", "acme", "bob")
	require.NoError(t, err)
	assert.Empty(t, card.Profile.Core.MainSkills)
	assert.NotEmpty(t, card.Reasons[profile.SectionSkills])

	own, err := f.svc.GetCard(ctx, "bob", "acme", "bob")
	require.NoError(t, err)
	assert.True(t, own.Own)
	assert.Equal(t, []string{"Go", "Rust"}, own.Profile.Core.MainSkills)
	require.NotNil(t, own.Profile.Personal)

	_, err = f.svc.GetCard(ctx, "alice", "acme", "stranger")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCompare(t *testing.T) {
	f := newFixture(t)

	cmp, err := f.svc.Compare(context.Background(), "alice", "acme", []string{"alice", "carol", "alice"})
	require.NoError(t, err)

	assert.Equal(t, []string{"alice", "carol"}, cmp.IDs)
	require.Len(t, cmp.Pairs, 1)
	assert.Equal(t, []string{"t1"}, cmp.Pairs[0].Result.CommonTeams)
	assert.Equal(t, 1, cmp.Pairs[0].Result.TotalCommon)
	assert.Equal(t, 25, cmp.Pairs[0].Result.SimilarityScore)
	assert.Equal(t, []string{"t1"}, cmp.Common.Teams)
	assert.Equal(t, 25, cmp.GroupSimilarity)
}

func TestCompare_UsesRedactedSkills(t *testing.T) {
	f := newFixture(t)

	cmp, err := f.svc.Compare(context.Background(), "alice", "acme", []string{"alice", "bob"})
	require.NoError(t, err)
	assert.Empty(t, cmp.Pairs[0].Result.CommonSkills, "bob's Go is hidden from acme")
}

func TestCompare_Limits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Compare(ctx, "alice", "acme", []string{"alice"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Compare(ctx, "alice", "acme", []string{"a", "b", "c", "d", "e"})
	assert.ErrorIs(t, err, ErrTooManySelected)

	_, err = f.svc.Compare(ctx, "alice", "acme", []string{"alice", "stranger"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = f.svc.Compare(ctx, "mallory", "acme", []string{"alice", "bob"})
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateProfile(ctx, "alice", profile.Profile{Core: profile.Core{Name: "   "}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	p, err := f.svc.UpdateProfile(ctx, "alice", profile.Profile{Core: profile.Core{Name: "  Alice A. "}})
	require.NoError(t, err)
	assert.Equal(t, "Alice A.", p.Core.Name)

	job, err := f.store.ClaimNextJob(ctx, []string{JobSkillGraphRebuild})
	require.NoError(t, err)
	require.NotNil(t, job, "a rebuild job should be queued")
	orgID, err := ParseRebuildPayload(*job)
	require.NoError(t, err)
	assert.Equal(t, "acme", orgID)
}

func TestUpdateProfile_CoalescesRebuilds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"Alice A.", "Alice B.", "Alice C."} {
		_, err := f.svc.UpdateProfile(ctx, "alice", profile.Profile{Core: profile.Core{Name: name}})
		require.NoError(t, err)
	}

	var pending int
	require.NoError(t, f.store.DB().QueryRow(
		`SELECT COUNT(*) FROM jobs WHERE type = ? AND coalesce_key = 'acme' AND status = 'pending'`,
		JobSkillGraphRebuild,
	).Scan(&pending))
	assert.Equal(t, 1, pending)
}

func TestImportSkills(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.ImportSkills(ctx, "alice", "Five years of python and go. Some rust on the side.")
	require.NoError(t, err)

	assert.Equal(t, []string{"Go", "Python"}, res.Matched, "rust is hidden and not part of the vocabulary")
	assert.Equal(t, []string{"Python"}, res.Added)
	assert.Equal(t, []string{"Go", "SQL", "Python"}, res.Profile.Core.MainSkills)

	stored, err := f.svc.MyProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, res.Profile.Core.MainSkills, stored.Core.MainSkills)

	again, err := f.svc.ImportSkills(ctx, "alice", "python")
	require.NoError(t, err)
	assert.Empty(t, again.Added)
}

func TestOrganizations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateOrganization(ctx, "dave", "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	org, err := f.svc.CreateOrganization(ctx, "dave", " Globex ")
	require.NoError(t, err)
	assert.Equal(t, "Globex", org.Name)
	assert.NotEmpty(t, org.ID)

	orgs, err := f.svc.ListOrganizations(ctx, "dave")
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, storage.RoleAdmin, orgs[0].Role)
}

func TestMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.AddMember(ctx, "bob", "acme", "dave", ""), ErrForbidden)
	assert.ErrorIs(t, f.svc.AddMember(ctx, "alice", "acme", "dave", "owner"), ErrInvalidInput)
	assert.ErrorIs(t, f.svc.AddMember(ctx, "mallory", "acme", "dave", ""), ErrNotMember)

	require.NoError(t, f.svc.AddMember(ctx, "alice", "acme", "dave", storage.RoleMember))
	res, err := f.svc.Browse(ctx, "dave", "acme", BrowseQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total, "dave has no profile yet")

	assert.ErrorIs(t, f.svc.RemoveMember(ctx, "bob", "acme", "carol"), ErrForbidden)
	require.NoError(t, f.svc.RemoveMember(ctx, "bob", "acme", "bob"))
	require.NoError(t, f.svc.RemoveMember(ctx, "alice", "acme", "carol"))

	res, err = f.svc.Browse(ctx, "alice", "acme", BrowseQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, cardIDs(res.Items))
}

func TestSkillGraph(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	live, err := f.svc.SkillGraph(ctx, "alice", "acme", 0)
	require.NoError(t, err)
	assert.True(t, live.Live)

	labels := make([]string, len(live.Graph.Nodes))
	for i, n := range live.Graph.Nodes {
		labels[i] = n.Label
	}
	assert.ElementsMatch(t, []string{"Go", "SQL", "Python"}, labels, "bob's hidden skills stay out of the graph")

	require.NoError(t, f.svc.RebuildSkillGraph(ctx, "acme"))
	stored, err := f.svc.SkillGraph(ctx, "alice", "acme", 1)
	require.NoError(t, err)
	assert.False(t, stored.Live)
	assert.Len(t, stored.Graph.Nodes, 1)

	_, err = f.svc.SkillGraph(ctx, "mallory", "acme", 0)
	assert.ErrorIs(t, err, ErrNotMember)
}
