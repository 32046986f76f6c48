// Package tools defines the MCP tool groups lattice exposes: the
// entity-relation memory tools, plain filesystem tools, and the platform
// adapter tools.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gridloom/lattice/internal/api/mcp"
	"github.com/gridloom/lattice/internal/events"
	"github.com/gridloom/lattice/internal/graph"
	"github.com/gridloom/lattice/pkg/types"
)

// PreviewLength is the maximum content length returned in search and list
// results. Full content comes back only from memory_recall.
const PreviewLength = 200

// GraphTools is the MCP surface over the entity-relation store.
type GraphTools struct {
	store graph.Store
	hub   *events.Hub
}

// NewGraphTools creates the memory tool group. hub may be nil, in which case
// mutation events are not published.
func NewGraphTools(store graph.Store, hub *events.Hub) *GraphTools {
	return &GraphTools{store: store, hub: hub}
}

// StoreArgs are the arguments for memory_store.
type StoreArgs struct {
	Name     string                 `json:"name"`
	Type     string                 `json:"type"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// StoreResult is the result of memory_store.
type StoreResult struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// UpdateArgs are the arguments for memory_update.
type UpdateArgs struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// UpdateResult is the result of memory_update.
type UpdateResult struct {
	Updated bool   `json:"updated"`
	Message string `json:"message,omitempty"`
}

// RecallArgs are the arguments for memory_recall.
type RecallArgs struct {
	NameOrID string `json:"name_or_id"`
}

// RecallResult is the result of memory_recall. Found is false when nothing
// matched; that is a normal result, not an error.
type RecallResult struct {
	Found  bool          `json:"found"`
	Entity *types.Entity `json:"entity,omitempty"`
}

// SearchArgs are the arguments for memory_search.
type SearchArgs struct {
	Query string `json:"query"`
	Type  string `json:"type,omitempty"`
}

// SearchResult is the result of memory_search and memory_list. Content in
// Entities is truncated to PreviewLength.
type SearchResult struct {
	Entities []types.Entity `json:"entities"`
	Count    int            `json:"count"`
}

// ListArgs are the arguments for memory_list.
type ListArgs struct {
	Type  string `json:"type,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// DeleteArgs are the arguments for memory_delete.
type DeleteArgs struct {
	ID string `json:"id"`
}

// DeleteResult is the result of memory_delete.
type DeleteResult struct {
	Deleted bool   `json:"deleted"`
	Message string `json:"message,omitempty"`
}

// RelateArgs are the arguments for memory_relate.
type RelateArgs struct {
	FromID       string                 `json:"from_id"`
	ToID         string                 `json:"to_id"`
	RelationType string                 `json:"relation_type"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// RelateResult is the result of memory_relate.
type RelateResult struct {
	ID string `json:"id"`
}

// RelationsArgs are the arguments for memory_relations.
type RelationsArgs struct {
	EntityID string `json:"entity_id"`
}

// RelationsResult is the result of memory_relations.
type RelationsResult struct {
	Relations []types.RelationEdge `json:"relations"`
	Count     int                  `json:"count"`
}

// Register adds the memory tool group to the registry.
func (g *GraphTools) Register(reg *mcp.Registry) {
	reg.Register(mcp.Descriptor{
		Name:        "memory_store",
		Description: "Store a new entity in the knowledge graph. Always creates a new entity; name is a label, not a key.",
		InputSchema: objectSchema(map[string]interface{}{
			"name":     stringProp("Entity name (label, duplicates allowed)"),
			"type":     stringProp("Entity type, e.g. project, decision, note"),
			"content":  stringProp("Entity content"),
			"metadata": objectProp("Arbitrary metadata"),
		}, "name", "type", "content"),
		Handler: g.handleStore,
	})
	reg.Register(mcp.Descriptor{
		Name:        "memory_update",
		Description: "Rewrite an entity's content (and metadata if supplied). Returns updated=false when the id does not exist.",
		InputSchema: objectSchema(map[string]interface{}{
			"id":       stringProp("Entity id"),
			"content":  stringProp("New content"),
			"metadata": objectProp("Replacement metadata (optional)"),
		}, "id", "content"),
		Handler: g.handleUpdate,
	})
	reg.Register(mcp.Descriptor{
		Name:        "memory_recall",
		Description: "Fetch one entity by exact id or exact name. Id takes precedence. Not-found is a normal result.",
		InputSchema: objectSchema(map[string]interface{}{
			"name_or_id": stringProp("Entity id or exact name"),
		}, "name_or_id"),
		Handler: g.handleRecall,
	})
	reg.Register(mcp.Descriptor{
		Name:        "memory_search",
		Description: "Case-insensitive substring search over entity names and content, newest first, at most 50 results with truncated previews.",
		InputSchema: objectSchema(map[string]interface{}{
			"query": stringProp("Substring to match"),
			"type":  stringProp("Optional entity type filter"),
		}, "query"),
		Handler: g.handleSearch,
	})
	reg.Register(mcp.Descriptor{
		Name:        "memory_list",
		Description: "List entities, newest first, optionally filtered by type.",
		InputSchema: objectSchema(map[string]interface{}{
			"type":  stringProp("Optional entity type filter"),
			"limit": map[string]interface{}{"type": "number", "description": "Maximum results (default 20)"},
		}),
		Handler: g.handleList,
	})
	reg.Register(mcp.Descriptor{
		Name:        "memory_delete",
		Description: "Delete one entity. Relations touching it are kept and become dangling.",
		InputSchema: objectSchema(map[string]interface{}{
			"id": stringProp("Entity id"),
		}, "id"),
		Handler: g.handleDelete,
	})
	reg.Register(mcp.Descriptor{
		Name:        "memory_relate",
		Description: "Create a typed relation between two entity ids. Endpoints are not checked for existence; duplicates are allowed.",
		InputSchema: objectSchema(map[string]interface{}{
			"from_id":       stringProp("Source entity id"),
			"to_id":         stringProp("Target entity id"),
			"relation_type": stringProp("Relation type, e.g. depends_on"),
			"metadata":      objectProp("Arbitrary metadata"),
		}, "from_id", "to_id", "relation_type"),
		Handler: g.handleRelate,
	})
	reg.Register(mcp.Descriptor{
		Name:        "memory_relations",
		Description: "List all relations where the entity is either endpoint, with best-effort endpoint names (empty for deleted endpoints).",
		InputSchema: objectSchema(map[string]interface{}{
			"entity_id": stringProp("Entity id"),
		}, "entity_id"),
		Handler: g.handleRelations,
	})
}

func (g *GraphTools) handleStore(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args StoreArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.Name == "" || args.Type == "" {
		return nil, fmt.Errorf("%w: name and type are required", graph.ErrInvalidInput)
	}
	entity := &types.Entity{
		Name:     args.Name,
		Type:     args.Type,
		Content:  args.Content,
		Metadata: args.Metadata,
	}
	if err := g.store.CreateEntity(ctx, entity); err != nil {
		return nil, err
	}
	g.publish(events.Event{Type: "entity.created", EntityID: entity.ID, Name: entity.Name})
	return &StoreResult{ID: entity.ID, Message: "entity stored"}, nil
}

func (g *GraphTools) handleUpdate(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args UpdateArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.ID == "" {
		return nil, fmt.Errorf("%w: id is required", graph.ErrInvalidInput)
	}
	updated, err := g.store.UpdateEntity(ctx, args.ID, args.Content, args.Metadata)
	if err != nil {
		return nil, err
	}
	result := &UpdateResult{Updated: updated}
	if !updated {
		result.Message = fmt.Sprintf("no entity with id %s", args.ID)
	}
	if updated {
		g.publish(events.Event{Type: "entity.updated", EntityID: args.ID})
	}
	return result, nil
}

func (g *GraphTools) handleRecall(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args RecallArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.NameOrID == "" {
		return nil, fmt.Errorf("%w: name_or_id is required", graph.ErrInvalidInput)
	}

	// Id match first, then exact name.
	entity, err := g.store.GetEntity(ctx, args.NameOrID)
	if errors.Is(err, graph.ErrNotFound) {
		entity, err = g.store.FindEntityByName(ctx, args.NameOrID)
	}
	if errors.Is(err, graph.ErrNotFound) {
		return &RecallResult{Found: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return &RecallResult{Found: true, Entity: entity}, nil
}

func (g *GraphTools) handleSearch(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args SearchArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.Query == "" {
		return nil, fmt.Errorf("%w: query is required", graph.ErrInvalidInput)
	}
	entities, err := g.store.Search(ctx, args.Query, args.Type)
	if err != nil {
		return nil, err
	}
	return previewResult(entities), nil
}

func (g *GraphTools) handleList(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args ListArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.Limit <= 0 {
		args.Limit = 20
	}
	entities, err := g.store.List(ctx, args.Type, args.Limit)
	if err != nil {
		return nil, err
	}
	return previewResult(entities), nil
}

func (g *GraphTools) handleDelete(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args DeleteArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.ID == "" {
		return nil, fmt.Errorf("%w: id is required", graph.ErrInvalidInput)
	}
	deleted, err := g.store.DeleteEntity(ctx, args.ID)
	if err != nil {
		return nil, err
	}
	result := &DeleteResult{Deleted: deleted}
	if !deleted {
		result.Message = fmt.Sprintf("no entity with id %s", args.ID)
	}
	if deleted {
		g.publish(events.Event{Type: "entity.deleted", EntityID: args.ID})
	}
	return result, nil
}

func (g *GraphTools) handleRelate(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args RelateArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.FromID == "" || args.ToID == "" || args.RelationType == "" {
		return nil, fmt.Errorf("%w: from_id, to_id and relation_type are required", graph.ErrInvalidInput)
	}
	relation := &types.Relation{
		FromID:       args.FromID,
		ToID:         args.ToID,
		RelationType: args.RelationType,
		Metadata:     args.Metadata,
	}
	if err := g.store.CreateRelation(ctx, relation); err != nil {
		return nil, err
	}
	g.publish(events.Event{Type: "relation.created", RelationID: relation.ID})
	return &RelateResult{ID: relation.ID}, nil
}

func (g *GraphTools) handleRelations(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args RelationsArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.EntityID == "" {
		return nil, fmt.Errorf("%w: entity_id is required", graph.ErrInvalidInput)
	}
	edges, err := g.store.Relations(ctx, args.EntityID)
	if err != nil {
		return nil, err
	}
	if edges == nil {
		edges = []types.RelationEdge{}
	}
	return &RelationsResult{Relations: edges, Count: len(edges)}, nil
}

func (g *GraphTools) publish(event events.Event) {
	if g.hub != nil {
		g.hub.Publish(event)
	}
}

// previewResult truncates content for list-shaped results.
func previewResult(entities []types.Entity) *SearchResult {
	out := make([]types.Entity, len(entities))
	for i, e := range entities {
		e.Content = e.Preview(PreviewLength)
		out[i] = e
	}
	return &SearchResult{Entities: out, Count: len(out)}
}

// Schema helpers shared by the tool groups.

func objectSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func objectProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "object", "description": description}
}
