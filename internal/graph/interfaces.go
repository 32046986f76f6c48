// Package graph defines the storage contract for the lattice knowledge graph:
// a persisted set of named, typed content entities and directed labeled
// relations between them.
//
// The graph is deliberately relaxed. Relations carry soft references only:
// no existence check is performed on either endpoint at write time, and
// deleting an entity never cascades to the relations that mention it. Callers
// that need referential integrity must enforce it themselves.
package graph

import (
	"context"
	"errors"

	"github.com/gridloom/lattice/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// SearchLimit is the hard cap on the number of entities a Search call returns.
const SearchLimit = 50

// Store provides atomic, per-operation access to the entity-relation graph.
//
// Every method is an independent atomic write or consistent read; no
// multi-operation transaction spans a tool call. Implementations must be safe
// for concurrent use.
type Store interface {
	// CreateEntity persists a new entity, minting a fresh ID (and timestamps)
	// when unset. It always creates: a duplicate name is not a conflict.
	CreateEntity(ctx context.Context, entity *types.Entity) error

	// UpdateEntity rewrites the content (and metadata, when non-nil) of the
	// entity with the given ID and bumps updated_at. It reports false, not an
	// error, when no such entity exists.
	UpdateEntity(ctx context.Context, id, content string, metadata map[string]interface{}) (bool, error)

	// GetEntity retrieves an entity by exact ID.
	// Returns ErrNotFound if the entity doesn't exist.
	GetEntity(ctx context.Context, id string) (*types.Entity, error)

	// FindEntityByName retrieves the most recently updated entity with the
	// given exact name. Returns ErrNotFound when no entity has that name.
	FindEntityByName(ctx context.Context, name string) (*types.Entity, error)

	// Search returns entities whose name or content contains the query
	// (case-insensitive), optionally filtered by type, ordered by updated_at
	// descending and capped at SearchLimit.
	Search(ctx context.Context, query, entityType string) ([]types.Entity, error)

	// List returns entities ordered by updated_at descending, optionally
	// filtered by type, capped at limit.
	List(ctx context.Context, entityType string, limit int) ([]types.Entity, error)

	// DeleteEntity removes the entity only. Relations referencing it are left
	// dangling on purpose. It reports false when no such entity exists.
	DeleteEntity(ctx context.Context, id string) (bool, error)

	// CreateRelation persists a new relation, minting a fresh ID when unset.
	// Endpoints are not checked for existence and duplicates are permitted.
	CreateRelation(ctx context.Context, relation *types.Relation) error

	// Relations returns every relation where entityID is either endpoint,
	// annotated with best-effort denormalized endpoint names and types
	// (empty for endpoints whose entity was deleted).
	Relations(ctx context.Context, entityID string) ([]types.RelationEdge, error)

	// Close releases any resources held by the store.
	Close() error
}
