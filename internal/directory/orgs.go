package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/aboutme/cards/internal/storage"
)

// CreateOrganization creates an organization with creatorID as its admin.
func (s *Service) CreateOrganization(ctx context.Context, creatorID, name string) (storage.Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.Organization{}, fmt.Errorf("%w: organization name is required", ErrInvalidInput)
	}

	org := storage.Organization{ID: uuid.New().String(), Name: name, CreatedBy: creatorID}
	if err := s.members.CreateOrganization(ctx, org); err != nil {
		return storage.Organization{}, fmt.Errorf("creating organization: %w", err)
	}
	created, err := s.members.GetOrganization(ctx, org.ID)
	if err != nil {
		return storage.Organization{}, fmt.Errorf("reading back organization: %w", err)
	}
	s.logger.Info("organization created", "org_id", org.ID, "created_by", creatorID)
	return created, nil
}

// ListOrganizations returns the organizations userID belongs to.
func (s *Service) ListOrganizations(ctx context.Context, userID string) ([]storage.OrgWithRole, error) {
	return s.members.ListOrganizationsForUser(ctx, userID)
}

// AddMember adds userID to orgID with role. Only admins may add members.
func (s *Service) AddMember(ctx context.Context, actorID, orgID, userID, role string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	switch role {
	case "":
		role = storage.RoleMember
	case storage.RoleMember, storage.RoleAdmin:
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	if err := s.requireAdmin(ctx, orgID, actorID); err != nil {
		return err
	}
	if err := s.members.AddMember(ctx, storage.Membership{OrgID: orgID, UserID: userID, Role: role}); err != nil {
		return fmt.Errorf("adding member: %w", err)
	}
	s.orgsChanged(ctx, orgID)
	s.logger.Info("member added", "org_id", orgID, "user_id", userID, "role", role, "by", actorID)
	return nil
}

// RemoveMember removes userID from orgID. Admins may remove anyone; other
// members may only remove themselves.
func (s *Service) RemoveMember(ctx context.Context, actorID, orgID, userID string) error {
	if actorID != userID {
		if err := s.requireAdmin(ctx, orgID, actorID); err != nil {
			return err
		}
	} else if _, err := s.requireMember(ctx, orgID, actorID); err != nil {
		return err
	}

	if err := s.members.RemoveMember(ctx, orgID, userID); err != nil {
		return fmt.Errorf("removing member: %w", err)
	}
	s.orgsChanged(ctx, orgID)
	s.logger.Info("member removed", "org_id", orgID, "user_id", userID, "by", actorID)
	return nil
}

func (s *Service) requireAdmin(ctx context.Context, orgID, userID string) error {
	m, err := s.requireMember(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if m.Role != storage.RoleAdmin {
		return ErrForbidden
	}
	return nil
}
