package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nuance-hq/cortex/internal/domain"
	"go.uber.org/zap"
)

var ErrTurnRecordUserMissing = errors.New("user_id is required")

// ProvenanceService writes the append-only turn audit trail. Recording never
// fails the pipeline: a failed append is logged and swallowed so ledger
// writes and state updates are not held hostage by the audit path.
type ProvenanceService struct {
	turnLogStore domain.TurnLogStore
	logger       *zap.Logger
}

func NewProvenanceService(ts domain.TurnLogStore, logger *zap.Logger) *ProvenanceService {
	return &ProvenanceService{turnLogStore: ts, logger: logger}
}

// Record appends one provenance row. Always called, whatever the turn's fate.
func (s *ProvenanceService) Record(ctx context.Context, rec *domain.TurnRecord) {
	if rec.UserID == uuid.Nil {
		s.logger.Error("turn record dropped", zap.Error(ErrTurnRecordUserMissing))
		return
	}
	if err := s.turnLogStore.Append(ctx, rec); err != nil {
		s.logger.Error("failed to append turn record",
			zap.String("request_id", rec.RequestID),
			zap.String("status", string(rec.Status)),
			zap.Error(err))
	}
}

// RecordFromContract builds and appends the provenance row for a validated
// turn.
func (s *ProvenanceService) RecordFromContract(ctx context.Context, userID uuid.UUID, c *domain.AgentOutputContract, label domain.DispatchLabel, status domain.TurnStatus, extraction map[string]any) *domain.TurnRecord {
	rec := &domain.TurnRecord{
		UserID:           userID,
		RequestID:        c.RequestID,
		RawInput:         c.Output.RawInput,
		ClassifiedIntent: string(label),
		ExtractionResult: extraction,
		AIResponse:       c.Output.UserFacingSummary,
		PromptVersion:    c.PrimaryPromptVersion(),
		Status:           status,
	}
	if c.Provenance != nil {
		rec.ProcessingTimeMS = c.Provenance.ProcessingTimeMS
		if c.Provenance.TokenUsage != nil {
			rec.InputTokens = c.Provenance.TokenUsage.InputTokens
			rec.OutputTokens = c.Provenance.TokenUsage.OutputTokens
		}
	}
	s.Record(ctx, rec)
	return rec
}

// Query returns a user's turn records within a time range, newest first.
func (s *ProvenanceService) Query(ctx context.Context, userID uuid.UUID, from, to time.Time, limit, offset int) ([]domain.TurnRecord, error) {
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, -1, 0)
	}
	return s.turnLogStore.QueryByUser(ctx, userID, from, to, limit, offset)
}

// Stats aggregates a user's turn log over a time range.
func (s *ProvenanceService) Stats(ctx context.Context, userID uuid.UUID, from, to time.Time) (*domain.TurnStats, error) {
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, -1, 0)
	}
	return s.turnLogStore.StatsByUser(ctx, userID, from, to)
}
