package types

import "time"

// Relation is a directed, labeled edge between two entities.
//
// Endpoints are soft references: neither FromID nor ToID is required to name
// an existing entity, and deleting an entity leaves its relations in place.
// Duplicate (from, to, type) triples are permitted.
type Relation struct {
	ID           string `json:"id"`            // Unique identifier (format: rel:uuid)
	FromID       string `json:"from_id"`       // Source entity ID (soft reference)
	ToID         string `json:"to_id"`         // Target entity ID (soft reference)
	RelationType string `json:"relation_type"` // Edge label (e.g. "depends_on")

	Metadata map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// RelationEdge is a relation annotated with best-effort denormalized endpoint
// details. Name and type fields are empty when the endpoint entity has been
// deleted (a dangling edge).
type RelationEdge struct {
	Relation

	FromName string `json:"from_name,omitempty"`
	FromType string `json:"from_type,omitempty"`
	ToName   string `json:"to_name,omitempty"`
	ToType   string `json:"to_type,omitempty"`
}

// Dangling reports whether either endpoint of the edge no longer resolves to
// a live entity.
func (e *RelationEdge) Dangling() bool {
	return e.FromName == "" || e.ToName == ""
}
