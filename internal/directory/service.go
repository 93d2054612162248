// Package directory is the organization-scoped profile directory. It loads
// member profiles, redacts them for the viewer and runs the listing and
// comparison operations over the redacted views.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aboutme/cards/internal/cache"
	"github.com/aboutme/cards/internal/profile"
	"github.com/aboutme/cards/internal/storage"
	"github.com/aboutme/cards/internal/visibility"
)

var (
	// ErrForbidden is returned when the caller's role does not allow the action.
	ErrForbidden = errors.New("forbidden")
	// ErrNotMember is returned when the caller does not belong to the organization.
	ErrNotMember = errors.New("not a member of this organization")
	// ErrInvalidInput wraps validation failures of caller-supplied data.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTooManySelected is returned when more profiles are compared than allowed.
	ErrTooManySelected = errors.New("too many profiles selected")
)

// JobSkillGraphRebuild is the job type that rebuilds an organization's skills graph.
const JobSkillGraphRebuild = "skillgraph_rebuild"

const (
	defaultMaxCompare = 4
	defaultPageSize   = 20
	maxPageSize       = 100
	defaultCacheTTL   = 60 * time.Second
)

// MemberStore manages organizations and their memberships.
// Implemented by storage.Store.
type MemberStore interface {
	CreateOrganization(ctx context.Context, org storage.Organization) error
	GetOrganization(ctx context.Context, id string) (storage.Organization, error)
	ListOrganizationsForUser(ctx context.Context, userID string) ([]storage.OrgWithRole, error)
	AddMember(ctx context.Context, m storage.Membership) error
	RemoveMember(ctx context.Context, orgID, userID string) error
	GetMembership(ctx context.Context, orgID, userID string) (storage.Membership, error)
	ListMemberIDs(ctx context.Context, orgID string) ([]string, error)
}

// ProfileStore holds profile documents.
// Implemented by storage.Store and docstore.Store.
type ProfileStore interface {
	PutProfile(ctx context.Context, userID string, p profile.Profile) error
	GetProfile(ctx context.Context, userID string) (profile.Profile, error)
	GetProfiles(ctx context.Context, ids []string) ([]profile.ListItem, error)
}

// GraphStore persists built skills graphs.
type GraphStore interface {
	SaveSkillGraph(ctx context.Context, g storage.StoredGraph) error
	GetSkillGraph(ctx context.Context, orgID string) (storage.StoredGraph, error)
}

// JobQueue accepts background jobs. EnqueueJob reports false when the job
// was absorbed by an equivalent pending one.
type JobQueue interface {
	EnqueueJob(ctx context.Context, job storage.Job) (bool, error)
}

// Deps configures a Service. Cache defaults to an in-process cache; zero
// limits take their defaults.
type Deps struct {
	Members  MemberStore
	Profiles ProfileStore
	Graphs   GraphStore
	Jobs     JobQueue
	Cache    cache.Cache
	CacheTTL time.Duration

	MaxCompare int
	PageSize   int
	Logger     *slog.Logger
}

// Service implements the directory operations.
type Service struct {
	members  MemberStore
	profiles ProfileStore
	graphs   GraphStore
	jobs     JobQueue
	cache    cache.Cache
	ttl      time.Duration

	maxCompare int
	pageSize   int
	logger     *slog.Logger

	loads singleflight.Group

	// versions counts invalidations per organization. A load only caches
	// its result when no invalidation happened since it started.
	versionsMu sync.Mutex
	versions   map[string]uint64
}

func New(d Deps) *Service {
	s := &Service{
		members:    d.Members,
		profiles:   d.Profiles,
		graphs:     d.Graphs,
		jobs:       d.Jobs,
		cache:      d.Cache,
		ttl:        d.CacheTTL,
		maxCompare: d.MaxCompare,
		pageSize:   d.PageSize,
		logger:     d.Logger,
		versions:   make(map[string]uint64),
	}
	if s.cache == nil {
		s.cache = cache.NewMemory()
	}
	if s.ttl <= 0 {
		s.ttl = defaultCacheTTL
	}
	if s.maxCompare < 2 {
		s.maxCompare = defaultMaxCompare
	}
	if s.pageSize <= 0 {
		s.pageSize = defaultPageSize
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// MaxCompare is the largest number of profiles Compare accepts.
func (s *Service) MaxCompare() int { return s.maxCompare }

// Card is one profile as a particular viewer is allowed to see it.
type Card struct {
	ID       string                     `json:"id"`
	Profile  profile.Profile            `json:"profile"`
	Sections map[profile.Section]bool   `json:"sections"`
	Reasons  map[profile.Section]string `json:"reasons"`
	Own      bool                       `json:"own"`
}

func newCard(id string, res visibility.Result, own bool) Card {
	return Card{ID: id, Profile: res.VisibleProfile, Sections: res.Sections, Reasons: res.Reasons, Own: own}
}

func (s *Service) requireMember(ctx context.Context, orgID, userID string) (storage.Membership, error) {
	m, err := s.members.GetMembership(ctx, orgID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Membership{}, ErrNotMember
	}
	if err != nil {
		return storage.Membership{}, fmt.Errorf("checking membership: %w", err)
	}
	return m, nil
}

func viewingContext(viewer storage.Membership, targetID string) visibility.ViewingContext {
	return visibility.ViewingContext{
		IsOwnProfile:   viewer.UserID != "" && viewer.UserID == targetID,
		OrganizationID: viewer.OrgID,
		ViewerUserID:   viewer.UserID,
		ViewerRole:     viewer.Role,
	}
}

// --- Organization snapshots ---

type snapshot struct {
	Items []profile.ListItem `json:"items"`
}

func snapshotKey(orgID string) string { return "org:" + orgID + ":profiles" }

// snapshot returns the stored profiles of orgID's members, in join order.
// Concurrent misses for the same organization share one load, unless an
// invalidation happened in between.
func (s *Service) snapshot(ctx context.Context, orgID string) ([]profile.ListItem, error) {
	var snap snapshot
	hit, err := s.cache.GetJSON(ctx, snapshotKey(orgID), &snap)
	if err != nil {
		s.logger.Warn("profile cache read failed", "org_id", orgID, "error", err)
	}
	if hit {
		return snap.Items, nil
	}

	ver := s.snapshotVersion(orgID)
	v, err, _ := s.loads.Do(loadKey(orgID, ver), func() (any, error) {
		items, err := s.loadSnapshot(ctx, orgID)
		if err != nil {
			return nil, err
		}
		s.storeSnapshot(ctx, orgID, ver, items)
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]profile.ListItem), nil
}

func loadKey(orgID string, ver uint64) string {
	return orgID + "@" + strconv.FormatUint(ver, 10)
}

func (s *Service) snapshotVersion(orgID string) uint64 {
	s.versionsMu.Lock()
	defer s.versionsMu.Unlock()
	return s.versions[orgID]
}

// storeSnapshot caches items loaded at version ver. invalidate bumps the
// version before deleting, so re-checking after the write catches an
// invalidation that raced with it.
func (s *Service) storeSnapshot(ctx context.Context, orgID string, ver uint64, items []profile.ListItem) {
	if s.snapshotVersion(orgID) != ver {
		return
	}
	if err := s.cache.SetJSON(ctx, snapshotKey(orgID), snapshot{Items: items}, s.ttl); err != nil {
		s.logger.Warn("profile cache write failed", "org_id", orgID, "error", err)
		return
	}
	if s.snapshotVersion(orgID) != ver {
		if err := s.cache.Del(ctx, snapshotKey(orgID)); err != nil {
			s.logger.Warn("profile cache invalidation failed", "orgs", []string{orgID}, "error", err)
		}
	}
}

func (s *Service) loadSnapshot(ctx context.Context, orgID string) ([]profile.ListItem, error) {
	ids, err := s.members.ListMemberIDs(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing members of %s: %w", orgID, err)
	}
	items, err := s.profiles.GetProfiles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading profiles of %s: %w", orgID, err)
	}
	return items, nil
}

func (s *Service) invalidate(ctx context.Context, orgIDs ...string) {
	if len(orgIDs) == 0 {
		return
	}
	keys := make([]string, len(orgIDs))
	s.versionsMu.Lock()
	for i, id := range orgIDs {
		s.versions[id]++
		keys[i] = snapshotKey(id)
	}
	s.versionsMu.Unlock()
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.logger.Warn("profile cache invalidation failed", "orgs", orgIDs, "error", err)
	}
}
