package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nuance-hq/cortex/internal/domain"
)

// EntityStore is the Postgres-backed entity collaborator. Each entity kind
// lives in its own table with a JSONB field map; deletes are soft so that
// ledger rows keep valid source linkage.
type EntityStore struct {
	db *pgxpool.Pool
}

func NewEntityStore(db *pgxpool.Pool) *EntityStore {
	return &EntityStore{db: db}
}

// entityTable maps a validated entity type to its table. The closed map is
// what keeps dynamic SQL here safe: unknown types never reach a query.
var entityTable = map[domain.EntityType]string{
	domain.EntityAction:       "actions",
	domain.EntityConversation: "conversations",
	domain.EntityMessage:      "messages",
	domain.EntityProfile:      "profiles",
}

func tableFor(t domain.EntityType) (string, error) {
	table, ok := entityTable[t]
	if !ok {
		return "", fmt.Errorf("unknown entity type %q", t)
	}
	return table, nil
}

func (s *EntityStore) Lookup(ctx context.Context, entityType domain.EntityType, id uuid.UUID) (bool, error) {
	table, err := tableFor(entityType)
	if err != nil {
		return false, err
	}

	var exists bool
	err = s.db.QueryRow(ctx, fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1 AND deleted_at IS NULL)`, table,
	), id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", entityType, err)
	}
	return exists, nil
}

func (s *EntityStore) Create(ctx context.Context, userID uuid.UUID, entityType domain.EntityType, fields map[string]any) (uuid.UUID, error) {
	table, err := tableFor(entityType)
	if err != nil {
		return uuid.Nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}

	var id uuid.UUID
	err = s.db.QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO %s (user_id, fields) VALUES ($1, $2) RETURNING id`, table,
	), userID, fields).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create %s: %w", entityType, err)
	}
	return id, nil
}

// Update merges changes into the stored field map. Keys absent from changes
// are untouched.
func (s *EntityStore) Update(ctx context.Context, entityType domain.EntityType, id uuid.UUID, changes map[string]any) error {
	table, err := tableFor(entityType)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET fields = fields || $2, updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, table,
	), id, changes)
	if err != nil {
		return fmt.Errorf("update %s: %w", entityType, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *EntityStore) Delete(ctx context.Context, entityType domain.EntityType, id uuid.UUID) error {
	table, err := tableFor(entityType)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, table,
	), id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", entityType, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetFields returns the current field map for an entity.
func (s *EntityStore) GetFields(ctx context.Context, entityType domain.EntityType, id uuid.UUID) (map[string]any, error) {
	table, err := tableFor(entityType)
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	err = s.db.QueryRow(ctx, fmt.Sprintf(
		`SELECT fields FROM %s WHERE id = $1 AND deleted_at IS NULL`, table,
	), id).Scan(&fields)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s fields: %w", entityType, err)
	}
	return fields, nil
}
