package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/aboutme/cards/internal/importer"
	"github.com/aboutme/cards/internal/profile"
	"github.com/aboutme/cards/internal/storage"
)

// MyProfile returns the caller's own, unredacted profile.
func (s *Service) MyProfile(ctx context.Context, userID string) (profile.Profile, error) {
	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("loading profile %s: %w", userID, err)
	}
	return p, nil
}

// UpdateProfile validates and stores p as userID's profile, then refreshes
// every organization the user belongs to.
func (s *Service) UpdateProfile(ctx context.Context, userID string, p profile.Profile) (profile.Profile, error) {
	if err := p.Validate(); err != nil {
		return profile.Profile{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	p.Core.Name = strings.TrimSpace(p.Core.Name)

	if err := s.profiles.PutProfile(ctx, userID, p); err != nil {
		return profile.Profile{}, fmt.Errorf("storing profile: %w", err)
	}

	orgs, err := s.members.ListOrganizationsForUser(ctx, userID)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("listing organizations: %w", err)
	}
	ids := make([]string, len(orgs))
	for i, o := range orgs {
		ids[i] = o.ID
	}
	s.orgsChanged(ctx, ids...)

	s.logger.Info("profile updated", "user_id", userID, "orgs", len(ids))
	return p, nil
}

// ImportResult reports the skills an import added.
type ImportResult struct {
	Matched []string        `json:"matched"`
	Added   []string        `json:"added"`
	Profile profile.Profile `json:"profile"`
}

// ImportSkills finds known skills in text (typically a résumé) and merges
// them into userID's main skills. Known skills are those visible on the
// cards of the user's organizations.
func (s *Service) ImportSkills(ctx context.Context, userID, text string) (ImportResult, error) {
	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return ImportResult{}, fmt.Errorf("loading profile %s: %w", userID, err)
	}

	vocab, err := s.skillVocabulary(ctx, userID)
	if err != nil {
		return ImportResult{}, err
	}

	matched := importer.MatchSkills(text, vocab)
	res := ImportResult{Matched: matched, Added: []string{}}

	have := make(map[string]struct{}, len(p.Core.MainSkills))
	for _, sk := range p.Core.MainSkills {
		have[strings.ToLower(sk)] = struct{}{}
	}
	for _, sk := range matched {
		if _, ok := have[strings.ToLower(sk)]; ok {
			continue
		}
		have[strings.ToLower(sk)] = struct{}{}
		p.Core.MainSkills = append(p.Core.MainSkills, sk)
		res.Added = append(res.Added, sk)
	}

	if len(res.Added) == 0 {
		res.Profile = p
		return res, nil
	}
	if res.Profile, err = s.UpdateProfile(ctx, userID, p); err != nil {
		return ImportResult{}, err
	}
	return res, nil
}

// skillVocabulary is the sorted, case-insensitively distinct set of skills
// userID can see across their organizations.
func (s *Service) skillVocabulary(ctx context.Context, userID string) ([]string, error) {
	orgs, err := s.members.ListOrganizationsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing organizations: %w", err)
	}

	seen := map[string]string{}
	for _, o := range orgs {
		items, err := s.snapshot(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		views, _ := redacted(items, storage.Membership{OrgID: o.ID, UserID: userID, Role: o.Role})
		for _, it := range views {
			for _, sk := range it.Profile.Core.MainSkills {
				k := strings.ToLower(strings.TrimSpace(sk))
				if k == "" {
					continue
				}
				if _, ok := seen[k]; !ok {
					seen[k] = strings.TrimSpace(sk)
				}
			}
		}
	}

	vocab := make([]string, 0, len(seen))
	for _, label := range seen {
		vocab = append(vocab, label)
	}
	sort.Strings(vocab)
	return vocab, nil
}

type rebuildPayload struct {
	OrgID string `json:"org_id"`
}

// orgsChanged drops cached snapshots and schedules skills graph rebuilds.
// Enqueue failures are logged; the next change schedules another rebuild.
func (s *Service) orgsChanged(ctx context.Context, orgIDs ...string) {
	s.invalidate(ctx, orgIDs...)
	if s.jobs == nil {
		return
	}
	for _, id := range orgIDs {
		payload, _ := json.Marshal(rebuildPayload{OrgID: id})
		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        JobSkillGraphRebuild,
			PayloadJSON: string(payload),
			CoalesceKey: id,
		}
		added, err := s.jobs.EnqueueJob(ctx, job)
		if err != nil {
			s.logger.Warn("enqueue skills graph rebuild failed", "org_id", id, "error", err)
			continue
		}
		if !added {
			s.logger.Debug("skills graph rebuild already queued", "org_id", id)
		}
	}
}

// ParseRebuildPayload extracts the organization id of a rebuild job.
func ParseRebuildPayload(job storage.Job) (string, error) {
	var p rebuildPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		return "", fmt.Errorf("parsing payload: %w", err)
	}
	if p.OrgID == "" {
		return "", errors.New("payload has no org_id")
	}
	return p.OrgID, nil
}
