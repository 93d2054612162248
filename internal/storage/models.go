package storage

import (
	"errors"
	"time"

	"github.com/aboutme/cards/internal/skillgraph"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a record with the same key already exists.
	ErrConflict = errors.New("already exists")
)

// Membership roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type Membership struct {
	OrgID     string    `json:"org_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// OrgWithRole is an organization together with the caller's role in it.
type OrgWithRole struct {
	Organization
	Role string `json:"role"`
}

// StoredGraph is the last skills graph built for an organization.
type StoredGraph struct {
	OrgID   string           `json:"org_id"`
	Graph   skillgraph.Graph `json:"graph"`
	BuiltAt time.Time        `json:"built_at"`
}

// Job is a queued unit of background work.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	CoalesceKey string
	Status      string
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
