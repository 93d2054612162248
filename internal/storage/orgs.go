package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// --- Organizations ---

// CreateOrganization inserts org and makes its creator an admin member in
// one transaction.
func (s *Store) CreateOrganization(ctx context.Context, org Organization) error {
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
	}
	created := org.CreatedAt.UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning create organization transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO organizations (id, name, created_by, created_at) VALUES (?, ?, ?, ?)`,
		org.ID, org.Name, org.CreatedBy, created,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("inserting organization: %w", err)
	}

	if org.CreatedBy != "" {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memberships (org_id, user_id, role, created_at) VALUES (?, ?, ?, ?)`,
			org.ID, org.CreatedBy, RoleAdmin, created,
		); err != nil {
			return fmt.Errorf("inserting creator membership: %w", err)
		}
	}

	return tx.Commit()
}

func (s *Store) GetOrganization(ctx context.Context, id string) (Organization, error) {
	var o Organization
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_by, created_at FROM organizations WHERE id = ?`, id,
	).Scan(&o.ID, &o.Name, &o.CreatedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Organization{}, ErrNotFound
	}
	if err != nil {
		return Organization{}, err
	}
	if o.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Organization{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return o, nil
}

// ListOrganizationsForUser returns every organization userID belongs to,
// oldest membership first.
func (s *Store) ListOrganizationsForUser(ctx context.Context, userID string) ([]OrgWithRole, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.name, o.created_by, o.created_at, m.role
		FROM memberships m JOIN organizations o ON o.id = m.org_id
		WHERE m.user_id = ?
		ORDER BY m.created_at ASC, o.id ASC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []OrgWithRole{}
	for rows.Next() {
		var o OrgWithRole
		var createdAt string
		if err := rows.Scan(&o.ID, &o.Name, &o.CreatedBy, &createdAt, &o.Role); err != nil {
			return nil, err
		}
		if o.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, o)
	}
	return results, rows.Err()
}

// --- Memberships ---

// AddMember upserts a membership. Re-adding an existing member updates the role.
func (s *Store) AddMember(ctx context.Context, m Membership) error {
	if m.Role == "" {
		m.Role = RoleMember
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memberships (org_id, user_id, role, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(org_id, user_id) DO UPDATE SET role = excluded.role`,
		m.OrgID, m.UserID, m.Role, m.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil && strings.Contains(err.Error(), "FOREIGN KEY") {
		return ErrNotFound
	}
	return err
}

func (s *Store) RemoveMember(ctx context.Context, orgID, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memberships WHERE org_id = ? AND user_id = ?`, orgID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetMembership(ctx context.Context, orgID, userID string) (Membership, error) {
	var m Membership
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT org_id, user_id, role, created_at FROM memberships WHERE org_id = ? AND user_id = ?`,
		orgID, userID,
	).Scan(&m.OrgID, &m.UserID, &m.Role, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Membership{}, ErrNotFound
	}
	if err != nil {
		return Membership{}, err
	}
	if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Membership{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return m, nil
}

// ListMemberIDs returns the user ids of orgID's members in join order.
func (s *Store) ListMemberIDs(ctx context.Context, orgID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM memberships WHERE org_id = ? ORDER BY created_at ASC, user_id ASC`, orgID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
