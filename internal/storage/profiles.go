package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aboutme/cards/internal/profile"
)

// --- Profiles ---

// PutProfile stores p as userID's profile document, replacing any previous one.
func (s *Store) PutProfile(ctx context.Context, userID string, p profile.Profile) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, document, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		userID, string(doc), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetProfile(ctx context.Context, userID string) (profile.Profile, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM profiles WHERE user_id = ?`, userID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.Profile{}, ErrNotFound
	}
	if err != nil {
		return profile.Profile{}, err
	}

	var p profile.Profile
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return profile.Profile{}, fmt.Errorf("decoding profile %s: %w", userID, err)
	}
	return p, nil
}

// GetProfiles returns the stored profiles for ids, in the order of ids.
// Ids without a profile are skipped.
func (s *Store) GetProfiles(ctx context.Context, ids []string) ([]profile.ListItem, error) {
	if len(ids) == 0 {
		return []profile.ListItem{}, nil
	}

	placeholders := strings.Repeat(",?", len(ids)-1)
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, document FROM profiles WHERE user_id IN (?`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[string]profile.Profile, len(ids))
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		var p profile.Profile
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			return nil, fmt.Errorf("decoding profile %s: %w", id, err)
		}
		found[id] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items := make([]profile.ListItem, 0, len(found))
	for _, id := range ids {
		if p, ok := found[id]; ok {
			items = append(items, profile.ListItem{ID: id, Profile: p})
			delete(found, id)
		}
	}
	return items, nil
}

func (s *Store) DeleteProfile(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE user_id = ?`, userID)
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

// --- Skills graphs ---

// SaveSkillGraph replaces the stored graph of g.OrgID.
func (s *Store) SaveSkillGraph(ctx context.Context, g StoredGraph) error {
	data, err := json.Marshal(g.Graph)
	if err != nil {
		return fmt.Errorf("encoding skills graph: %w", err)
	}
	if g.BuiltAt.IsZero() {
		g.BuiltAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO skill_graphs (org_id, graph, built_at) VALUES (?, ?, ?)
		ON CONFLICT(org_id) DO UPDATE SET graph = excluded.graph, built_at = excluded.built_at`,
		g.OrgID, string(data), g.BuiltAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetSkillGraph(ctx context.Context, orgID string) (StoredGraph, error) {
	var data, builtAt string
	err := s.db.QueryRowContext(ctx, `SELECT graph, built_at FROM skill_graphs WHERE org_id = ?`, orgID).Scan(&data, &builtAt)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredGraph{}, ErrNotFound
	}
	if err != nil {
		return StoredGraph{}, err
	}

	g := StoredGraph{OrgID: orgID}
	if err := json.Unmarshal([]byte(data), &g.Graph); err != nil {
		return StoredGraph{}, fmt.Errorf("decoding skills graph: %w", err)
	}
	if g.BuiltAt, err = time.Parse(time.RFC3339, builtAt); err != nil {
		return StoredGraph{}, fmt.Errorf("parsing built_at: %w", err)
	}
	return g, nil
}
