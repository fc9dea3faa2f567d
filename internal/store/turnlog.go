package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nuance-hq/cortex/internal/domain"
)

// TurnLogStore is append-only: rows are inserted once and never updated.
type TurnLogStore struct {
	db *pgxpool.Pool
}

func NewTurnLogStore(db *pgxpool.Pool) *TurnLogStore {
	return &TurnLogStore{db: db}
}

func (s *TurnLogStore) Append(ctx context.Context, rec *domain.TurnRecord) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO turn_log
		   (user_id, request_id, raw_input, classified_intent, extraction_result,
		    ai_response, prompt_version, input_tokens, output_tokens,
		    processing_time_ms, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at`,
		rec.UserID, rec.RequestID, rec.RawInput, rec.ClassifiedIntent, rec.ExtractionResult,
		rec.AIResponse, rec.PromptVersion, rec.InputTokens, rec.OutputTokens,
		rec.ProcessingTimeMS, rec.Status,
	).Scan(&rec.ID, &rec.CreatedAt)
}

func (s *TurnLogStore) QueryByUser(ctx context.Context, userID uuid.UUID, from, to time.Time, limit, offset int) ([]domain.TurnRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, request_id, raw_input, classified_intent, extraction_result,
		        ai_response, prompt_version, input_tokens, output_tokens,
		        processing_time_ms, status, created_at
		 FROM turn_log
		 WHERE user_id = $1 AND created_at >= $2 AND created_at <= $3
		 ORDER BY created_at DESC
		 LIMIT $4 OFFSET $5`,
		userID, from, to, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query turn log: %w", err)
	}
	defer rows.Close()

	var records []domain.TurnRecord
	for rows.Next() {
		var r domain.TurnRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.RequestID, &r.RawInput, &r.ClassifiedIntent,
			&r.ExtractionResult, &r.AIResponse, &r.PromptVersion, &r.InputTokens,
			&r.OutputTokens, &r.ProcessingTimeMS, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *TurnLogStore) StatsByUser(ctx context.Context, userID uuid.UUID, from, to time.Time) (*domain.TurnStats, error) {
	rows, err := s.db.Query(ctx,
		`SELECT COALESCE(classified_intent, ''), COUNT(*),
		        COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0)
		 FROM turn_log
		 WHERE user_id = $1 AND created_at >= $2 AND created_at <= $3
		 GROUP BY classified_intent`,
		userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("turn stats query: %w", err)
	}
	defer rows.Close()

	stats := &domain.TurnStats{ByIntent: make(map[string]int)}
	for rows.Next() {
		var intent string
		var count int
		var inTok, outTok int64
		if err := rows.Scan(&intent, &count, &inTok, &outTok); err != nil {
			return nil, fmt.Errorf("scan turn stats: %w", err)
		}
		if intent == "" {
			intent = "unclassified"
		}
		stats.ByIntent[intent] = count
		stats.Total += count
		stats.InputTokens += inTok
		stats.OutputTokens += outTok
	}
	return stats, rows.Err()
}
