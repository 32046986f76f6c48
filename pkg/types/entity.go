package types

import "time"

// Entity is a named, typed content node in the knowledge graph.
// Names are labels, not keys: two entities may share a name and each keeps
// its own generated ID.
type Entity struct {
	// Core identification fields
	ID      string `json:"id"`      // Unique identifier (format: ent:uuid)
	Name    string `json:"name"`    // Display name, commonly used as a lookup key
	Type    string `json:"type"`    // Category tag (e.g. "project", "person", "note")
	Content string `json:"content"` // Opaque text payload

	// Arbitrary key-value metadata
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Preview returns the entity content truncated to max runes, for use in
// search results and listings.
func (e *Entity) Preview(max int) string {
	runes := []rune(e.Content)
	if len(runes) <= max {
		return e.Content
	}
	return string(runes[:max]) + "..."
}
