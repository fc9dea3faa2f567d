package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nuance-hq/cortex/internal/domain"
)

type KnowledgeStore struct {
	db *pgxpool.Pool
}

func NewKnowledgeStore(db *pgxpool.Pool) *KnowledgeStore {
	return &KnowledgeStore{db: db}
}

const knowledgeColumns = `id, user_id, type, payload, confidence, importance,
	source_message_id, source_conversation_id, source_action_id, natural_key,
	valid_from, valid_to, model_id, prompt_version, request_id, created_at, updated_at`

// Upsert writes one derived fact. The ON CONFLICT clause is the concurrency
// safety net: when two writers race on the same (user_id, type, natural_key),
// the unique index forces one of them through the conditional update instead
// of duplicating the row. The DO UPDATE WHERE clause mirrors
// domain.ShouldReplace: replace when incoming confidence >= stored, or when
// the producing turn is strictly newer and the write is a refresh.
func (s *KnowledgeStore) Upsert(ctx context.Context, obj *domain.KnowledgeObject, turnAt time.Time, refresh bool) (domain.UpsertOutcome, error) {
	if err := obj.Validate(); err != nil {
		return "", err
	}

	var inserted bool
	err := s.db.QueryRow(ctx,
		`INSERT INTO knowledge_objects
		   (user_id, type, payload, confidence, importance,
		    source_message_id, source_conversation_id, source_action_id,
		    natural_key, valid_from, valid_to, model_id, prompt_version, request_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, NOW()), $11, $12, $13, $14)
		 ON CONFLICT (user_id, type, natural_key) WHERE natural_key IS NOT NULL
		 DO UPDATE SET
		   payload        = EXCLUDED.payload,
		   confidence     = EXCLUDED.confidence,
		   importance     = EXCLUDED.importance,
		   source_message_id      = EXCLUDED.source_message_id,
		   source_conversation_id = EXCLUDED.source_conversation_id,
		   source_action_id       = EXCLUDED.source_action_id,
		   valid_to       = EXCLUDED.valid_to,
		   model_id       = EXCLUDED.model_id,
		   prompt_version = EXCLUDED.prompt_version,
		   request_id     = EXCLUDED.request_id,
		   updated_at     = NOW()
		 WHERE EXCLUDED.confidence >= knowledge_objects.confidence
		    OR ($15 AND $16 > knowledge_objects.created_at)
		 RETURNING id, valid_from, created_at, updated_at, (xmax = 0)`,
		obj.UserID, obj.Type, obj.Payload, obj.Confidence, obj.Importance,
		obj.SourceMessageID, obj.SourceConversationID, obj.SourceActionID,
		obj.NaturalKey, nullableTime(obj.ValidFrom), obj.ValidTo,
		obj.ModelID, obj.PromptVersion, obj.RequestID,
		refresh, turnAt,
	).Scan(&obj.ID, &obj.ValidFrom, &obj.CreatedAt, &obj.UpdatedAt, &inserted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Conflict hit but the policy retained the stored row. Read it back
			// so the caller sees the surviving state.
			return s.retained(ctx, obj)
		}
		return "", fmt.Errorf("upsert knowledge object: %w", err)
	}

	if inserted {
		return domain.UpsertInserted, nil
	}
	return domain.UpsertReplaced, nil
}

func (s *KnowledgeStore) retained(ctx context.Context, obj *domain.KnowledgeObject) (domain.UpsertOutcome, error) {
	if obj.NaturalKey == nil {
		return "", fmt.Errorf("upsert knowledge object: no row returned without natural key")
	}
	stored, err := s.GetByNaturalKey(ctx, obj.UserID, obj.Type, *obj.NaturalKey)
	if err != nil {
		return "", fmt.Errorf("read back retained row: %w", err)
	}
	*obj = *stored
	return domain.UpsertRetained, nil
}

func (s *KnowledgeStore) GetByID(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*domain.KnowledgeObject, error) {
	k := &domain.KnowledgeObject{}
	err := s.db.QueryRow(ctx,
		`SELECT `+knowledgeColumns+` FROM knowledge_objects WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(scanTargets(k)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return k, nil
}

func (s *KnowledgeStore) GetByNaturalKey(ctx context.Context, userID uuid.UUID, t domain.KnowledgeObjectType, key string) (*domain.KnowledgeObject, error) {
	k := &domain.KnowledgeObject{}
	err := s.db.QueryRow(ctx,
		`SELECT `+knowledgeColumns+` FROM knowledge_objects
		 WHERE user_id = $1 AND type = $2 AND natural_key = $3`,
		userID, t, key,
	).Scan(scanTargets(k)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return k, nil
}

func (s *KnowledgeStore) Query(ctx context.Context, userID uuid.UUID, q domain.KnowledgeQuery) (*domain.KnowledgeSearchResult, error) {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	conditions := []string{"user_id = $1"}
	args := []any{userID}

	if len(q.Types) > 0 {
		types := make([]string, len(q.Types))
		for i, t := range q.Types {
			types[i] = string(t)
		}
		conditions = append(conditions, fmt.Sprintf("type = ANY($%d)", len(args)+1))
		args = append(args, types)
	}
	if q.SourceMessageID != "" {
		conditions = append(conditions, fmt.Sprintf("source_message_id = $%d", len(args)+1))
		args = append(args, q.SourceMessageID)
	}
	if q.SourceConversationID != "" {
		conditions = append(conditions, fmt.Sprintf("source_conversation_id = $%d", len(args)+1))
		args = append(args, q.SourceConversationID)
	}
	if q.SourceActionID != "" {
		conditions = append(conditions, fmt.Sprintf("source_action_id = $%d", len(args)+1))
		args = append(args, q.SourceActionID)
	}
	if q.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, *q.From)
	}
	if q.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)+1))
		args = append(args, *q.To)
	}
	if !q.IncludeExpired {
		// A row is active while its validity window is open; valid_to = NULL
		// means unbounded.
		conditions = append(conditions, "(valid_to IS NULL OR valid_to > NOW())")
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM knowledge_objects WHERE `+where, args...,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("count knowledge objects: %w", err)
	}

	limitParam := len(args) + 1
	offsetParam := len(args) + 2
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM knowledge_objects WHERE %s
		 ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		knowledgeColumns, where, limitParam, offsetParam,
	), args...)
	if err != nil {
		return nil, fmt.Errorf("query knowledge objects: %w", err)
	}
	defer rows.Close()

	var objects []domain.KnowledgeObject
	for rows.Next() {
		var k domain.KnowledgeObject
		if err := rows.Scan(scanTargets(&k)...); err != nil {
			return nil, fmt.Errorf("scan knowledge object: %w", err)
		}
		objects = append(objects, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("knowledge object rows: %w", err)
	}

	return &domain.KnowledgeSearchResult{
		Objects: objects,
		Total:   total,
		HasMore: q.Offset+len(objects) < total,
	}, nil
}

func (s *KnowledgeStore) Expire(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE knowledge_objects SET valid_to = NOW(), updated_at = NOW()
		 WHERE id = $1 AND user_id = $2 AND (valid_to IS NULL OR valid_to > NOW())`,
		id, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already expired; distinguish for the caller.
		if _, err := s.GetByID(ctx, id, userID); err != nil {
			return err
		}
		return nil
	}
	return nil
}

func (s *KnowledgeStore) Delete(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM knowledge_objects WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *KnowledgeStore) CountExpired(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM knowledge_objects WHERE valid_to IS NOT NULL AND valid_to <= NOW()`,
	).Scan(&count)
	return count, err
}

func (s *KnowledgeStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM knowledge_objects WHERE valid_to IS NOT NULL AND valid_to < $1`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanTargets(k *domain.KnowledgeObject) []any {
	return []any{
		&k.ID, &k.UserID, &k.Type, &k.Payload, &k.Confidence, &k.Importance,
		&k.SourceMessageID, &k.SourceConversationID, &k.SourceActionID, &k.NaturalKey,
		&k.ValidFrom, &k.ValidTo, &k.ModelID, &k.PromptVersion, &k.RequestID,
		&k.CreatedAt, &k.UpdatedAt,
	}
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
