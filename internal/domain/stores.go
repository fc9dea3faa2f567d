package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type UserStore interface {
	Create(ctx context.Context, u *User, apiKeyHash string) error
	GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*User, error)
}

// KnowledgeStore persists the knowledge object ledger.
type KnowledgeStore interface {
	// Upsert writes one derived fact. With a non-nil natural key the write is
	// idempotent on (user_id, type, natural_key) and the conflict policy of
	// ShouldReplace decides whether the stored row is replaced; with a nil key
	// the object is always inserted fresh. turnAt is the producing turn's
	// timestamp; refresh marks an explicit supersede.
	Upsert(ctx context.Context, obj *KnowledgeObject, turnAt time.Time, refresh bool) (UpsertOutcome, error)
	GetByID(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*KnowledgeObject, error)
	GetByNaturalKey(ctx context.Context, userID uuid.UUID, t KnowledgeObjectType, key string) (*KnowledgeObject, error)
	Query(ctx context.Context, userID uuid.UUID, q KnowledgeQuery) (*KnowledgeSearchResult, error)
	// Expire closes the validity window now. Idempotent.
	Expire(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
	// CountExpired counts rows whose validity window has closed.
	CountExpired(ctx context.Context) (int64, error)
	// DeleteExpiredBefore removes rows whose valid_to passed before cutoff.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TurnLogStore is the append-only audit trail. Records are never updated.
type TurnLogStore interface {
	Append(ctx context.Context, rec *TurnRecord) error
	QueryByUser(ctx context.Context, userID uuid.UUID, from, to time.Time, limit, offset int) ([]TurnRecord, error)
	StatsByUser(ctx context.Context, userID uuid.UUID, from, to time.Time) (*TurnStats, error)
}

// EntityStore is the external entity collaborator mutated by state updates.
// Delete semantics (hard vs soft) belong to the store; the applier only
// issues the intent.
type EntityStore interface {
	Lookup(ctx context.Context, entityType EntityType, id uuid.UUID) (bool, error)
	Create(ctx context.Context, userID uuid.UUID, entityType EntityType, fields map[string]any) (uuid.UUID, error)
	// Update merges changes into the entity's existing fields; absent fields
	// are untouched. Returns store.ErrNotFound when the entity does not exist.
	Update(ctx context.Context, entityType EntityType, id uuid.UUID, changes map[string]any) error
	Delete(ctx context.Context, entityType EntityType, id uuid.UUID) error
}
