// Package sqlite implements graph.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/gridloom/lattice/internal/graph"
	"github.com/gridloom/lattice/pkg/types"
)

// Schema creates the entity and relation tables. Relations carry no foreign
// keys: endpoints are soft references and dangling edges are tolerated.
const Schema = `
CREATE TABLE IF NOT EXISTS entities (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	type       TEXT NOT NULL,
	content    TEXT NOT NULL,
	metadata   TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE INDEX IF NOT EXISTS idx_entities_updated_at ON entities(updated_at);

CREATE TABLE IF NOT EXISTS relations (
	id            TEXT PRIMARY KEY,
	from_id       TEXT NOT NULL,
	to_id         TEXT NOT NULL,
	relation_type TEXT NOT NULL,
	metadata      TEXT,
	created_at    TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relations_from ON relations(from_id);
CREATE INDEX IF NOT EXISTS idx_relations_to ON relations(to_id);
`

// Store implements graph.Store using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dsn, configures WAL mode, and creates
// the schema.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Using a single open
	// connection serialises writes and avoids SQLITE_BUSY errors under
	// concurrent load. WAL mode lets readers proceed without blocking the
	// writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Wait instead of failing with SQLITE_BUSY when the connection is held
	// by another goroutine.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying database handle, used by the backup service.
func (s *Store) DB() *sql.DB {
	return s.db
}

// CreateEntity persists a new entity. A fresh ID and timestamps are minted
// when unset so callers can pass a bare {name, type, content} value.
func (s *Store) CreateEntity(ctx context.Context, entity *types.Entity) error {
	if entity == nil {
		return graph.ErrInvalidInput
	}
	if entity.Name == "" {
		return fmt.Errorf("%w: entity name is required", graph.ErrInvalidInput)
	}

	if entity.ID == "" {
		entity.ID = "ent:" + uuid.New().String()
	}
	now := time.Now().UTC()
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = now
	}
	if entity.UpdatedAt.IsZero() {
		entity.UpdatedAt = now
	}

	metadataJSON, err := marshalMetadata(entity.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (id, name, type, content, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		entity.ID,
		entity.Name,
		entity.Type,
		entity.Content,
		nullableString(metadataJSON),
		entity.CreatedAt,
		entity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store entity: %w", err)
	}
	return nil
}

// UpdateEntity rewrites content (and metadata, when non-nil) and bumps
// updated_at. Reports false when no entity has the given ID.
func (s *Store) UpdateEntity(ctx context.Context, id, content string, metadata map[string]interface{}) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: entity ID is required", graph.ErrInvalidInput)
	}

	now := time.Now().UTC()

	var (
		res sql.Result
		err error
	)
	if metadata != nil {
		metadataJSON, merr := marshalMetadata(metadata)
		if merr != nil {
			return false, merr
		}
		res, err = s.db.ExecContext(ctx,
			`UPDATE entities SET content = ?, metadata = ?, updated_at = ? WHERE id = ?`,
			content, nullableString(metadataJSON), now, id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE entities SET content = ?, updated_at = ? WHERE id = ?`,
			content, now, id)
	}
	if err != nil {
		return false, fmt.Errorf("failed to update entity: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	return affected > 0, nil
}

// GetEntity retrieves an entity by exact ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: entity ID is required", graph.ErrInvalidInput)
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, content, metadata, created_at, updated_at
		FROM entities WHERE id = ?
	`, id)
	return scanEntity(row)
}

// FindEntityByName retrieves the most recently updated entity with the given
// exact name.
func (s *Store) FindEntityByName(ctx context.Context, name string) (*types.Entity, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: entity name is required", graph.ErrInvalidInput)
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, content, metadata, created_at, updated_at
		FROM entities WHERE name = ?
		ORDER BY updated_at DESC LIMIT 1
	`, name)
	return scanEntity(row)
}

// Search returns entities matching the query as a case-insensitive substring
// of name or content, newest updates first, capped at graph.SearchLimit.
func (s *Store) Search(ctx context.Context, query, entityType string) ([]types.Entity, error) {
	pattern := "%" + strings.ToLower(query) + "%"

	sqlQuery := `
		SELECT id, name, type, content, metadata, created_at, updated_at
		FROM entities
		WHERE (LOWER(name) LIKE ? OR LOWER(content) LIKE ?)
	`
	args := []interface{}{pattern, pattern}
	if entityType != "" {
		sqlQuery += " AND type = ?"
		args = append(args, entityType)
	}
	sqlQuery += " ORDER BY updated_at DESC LIMIT ?"
	args = append(args, graph.SearchLimit)

	return s.queryEntities(ctx, sqlQuery, args...)
}

// List returns entities ordered by updated_at descending, optionally filtered
// by type, capped at limit.
func (s *Store) List(ctx context.Context, entityType string, limit int) ([]types.Entity, error) {
	if limit < 1 {
		limit = 10
	}

	sqlQuery := `
		SELECT id, name, type, content, metadata, created_at, updated_at
		FROM entities
	`
	var args []interface{}
	if entityType != "" {
		sqlQuery += " WHERE type = ?"
		args = append(args, entityType)
	}
	sqlQuery += " ORDER BY updated_at DESC LIMIT ?"
	args = append(args, limit)

	return s.queryEntities(ctx, sqlQuery, args...)
}

// DeleteEntity removes the entity row only. Relations that reference it are
// intentionally left in place as dangling edges.
func (s *Store) DeleteEntity(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: entity ID is required", graph.ErrInvalidInput)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete entity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected > 0, nil
}

// CreateRelation persists a new relation. Endpoints are not validated and
// duplicate triples are permitted.
func (s *Store) CreateRelation(ctx context.Context, relation *types.Relation) error {
	if relation == nil {
		return graph.ErrInvalidInput
	}
	if relation.FromID == "" || relation.ToID == "" {
		return fmt.Errorf("%w: relation endpoints are required", graph.ErrInvalidInput)
	}
	if relation.RelationType == "" {
		return fmt.Errorf("%w: relation type is required", graph.ErrInvalidInput)
	}

	if relation.ID == "" {
		relation.ID = "rel:" + uuid.New().String()
	}
	if relation.CreatedAt.IsZero() {
		relation.CreatedAt = time.Now().UTC()
	}

	metadataJSON, err := marshalMetadata(relation.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO relations (id, from_id, to_id, relation_type, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		relation.ID,
		relation.FromID,
		relation.ToID,
		relation.RelationType,
		nullableString(metadataJSON),
		relation.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store relation: %w", err)
	}
	return nil
}

// Relations returns every relation touching entityID, annotated with
// denormalized endpoint names and types via LEFT JOINs so that dangling
// endpoints come back empty instead of failing.
func (s *Store) Relations(ctx context.Context, entityID string) ([]types.RelationEdge, error) {
	if entityID == "" {
		return nil, fmt.Errorf("%w: entity ID is required", graph.ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.from_id, r.to_id, r.relation_type, r.metadata, r.created_at,
		       ef.name, ef.type, et.name, et.type
		FROM relations r
		LEFT JOIN entities ef ON ef.id = r.from_id
		LEFT JOIN entities et ON et.id = r.to_id
		WHERE r.from_id = ? OR r.to_id = ?
		ORDER BY r.created_at DESC
	`, entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list relations: %w", err)
	}
	defer rows.Close()

	var edges []types.RelationEdge
	for rows.Next() {
		var edge types.RelationEdge
		var metadataJSON sql.NullString
		var fromName, fromType, toName, toType sql.NullString

		if err := rows.Scan(
			&edge.ID,
			&edge.FromID,
			&edge.ToID,
			&edge.RelationType,
			&metadataJSON,
			&edge.CreatedAt,
			&fromName,
			&fromType,
			&toName,
			&toType,
		); err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}

		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &edge.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal relation metadata: %w", err)
			}
		}
		edge.FromName = fromName.String
		edge.FromType = fromType.String
		edge.ToName = toName.String
		edge.ToType = toType.String

		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate relations: %w", err)
	}
	return edges, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// queryEntities runs an entity SELECT and scans the result rows.
func (s *Store) queryEntities(ctx context.Context, query string, args ...interface{}) ([]types.Entity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var entities []types.Entity
	for rows.Next() {
		var entity types.Entity
		var metadataJSON sql.NullString

		if err := rows.Scan(
			&entity.ID,
			&entity.Name,
			&entity.Type,
			&entity.Content,
			&metadataJSON,
			&entity.CreatedAt,
			&entity.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}

		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &entity.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal entity metadata: %w", err)
			}
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entities: %w", err)
	}
	return entities, nil
}

// scanEntity scans a single-row entity query, mapping sql.ErrNoRows to
// graph.ErrNotFound.
func scanEntity(row *sql.Row) (*types.Entity, error) {
	var entity types.Entity
	var metadataJSON sql.NullString

	err := row.Scan(
		&entity.ID,
		&entity.Name,
		&entity.Type,
		&entity.Content,
		&metadataJSON,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, graph.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &entity.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entity metadata: %w", err)
		}
	}
	return &entity, nil
}

// marshalMetadata serialises a metadata map to JSON, returning "" for nil.
func marshalMetadata(metadata map[string]interface{}) (string, error) {
	if metadata == nil {
		return "", nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}

// nullableString converts an empty string to a NULL column value.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
