package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/nuance-hq/cortex/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TurnResult is the full outcome of ingesting one model turn.
type TurnResult struct {
	RequestID string                      `json:"request_id"`
	Label     domain.DispatchLabel        `json:"label"`
	Status    domain.TurnStatus           `json:"status"`
	Writeback *WritebackResult            `json:"writeback"`
	Apply     *domain.ApplyReport         `json:"apply"`
	Contract  *domain.AgentOutputContract `json:"contract,omitempty"`
}

// TurnService runs the ingestion pipeline for one turn: validate, route,
// then fan out ledger writes and state updates, and always record provenance.
// Writes for one user are serialized at the apply boundary; inference calls
// upstream may overlap freely.
type TurnService struct {
	contract   *ContractService
	writeback  *WritebackService
	applier    *ApplierService
	provenance *ProvenanceService
	logger     *zap.Logger

	mu        sync.Mutex
	userLocks map[uuid.UUID]*sync.Mutex
}

func NewTurnService(cs *ContractService, ws *WritebackService, as *ApplierService, ps *ProvenanceService, logger *zap.Logger) *TurnService {
	return &TurnService{
		contract:   cs,
		writeback:  ws,
		applier:    as,
		provenance: ps,
		logger:     logger,
		userLocks:  make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *TurnService) userLock(userID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	return lock
}

// Process ingests one raw model turn. A contract violation rejects the whole
// turn and persists nothing but its provenance record; per-fact and
// per-update failures downgrade the turn to partial without aborting
// siblings.
func (s *TurnService) Process(ctx context.Context, userID uuid.UUID, raw []byte, src domain.SourceRef, refresh bool) (*TurnResult, error) {
	c, err := s.contract.Parse(raw)
	if err != nil {
		rec := &domain.TurnRecord{
			UserID:    userID,
			RequestID: "req_" + shortID(),
			RawInput:  string(raw),
			Status:    domain.TurnInvalid,
			ExtractionResult: map[string]any{
				"error": err.Error(),
			},
		}
		s.provenance.Record(ctx, rec)
		return nil, err
	}

	label := RouteIntent(c)

	// Serialize the write side per user. Concurrent turns for one user apply
	// in lock-acquisition order; the last writer wins on conflicting entity
	// changes.
	lock := s.userLock(userID)
	lock.Lock()

	var (
		wbResult *WritebackResult
		report   *domain.ApplyReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		wbResult = s.writeback.Writeback(gctx, userID, c, src, refresh)
		return nil
	})
	g.Go(func() error {
		report = s.applier.Apply(gctx, userID, c.Output.StateUpdates)
		return nil
	})
	_ = g.Wait() // both branches report through their results, never an error

	lock.Unlock()

	status := domain.TurnOK
	if wbResult.Failed > 0 || report.PartiallyApplied() {
		status = domain.TurnPartial
	}

	s.provenance.RecordFromContract(ctx, userID, c, label, status, map[string]any{
		"captures":      len(c.Output.Captures),
		"atomic_tasks":  len(c.Output.AtomicTasks),
		"state_updates": len(c.Output.StateUpdates),
		"questions":     len(c.Output.Questions),
		"insights":      len(c.Output.Insights),
		"written":       wbResult.Written,
		"write_failed":  wbResult.Failed,
		"applied":       report.Applied,
		"skipped":       report.Skipped,
	})

	s.logger.Info("turn processed",
		zap.String("request_id", c.RequestID),
		zap.String("user_id", userID.String()),
		zap.String("label", string(label)),
		zap.String("status", string(status)),
		zap.Int("written", wbResult.Written),
		zap.Int("applied", report.Applied))

	return &TurnResult{
		RequestID: c.RequestID,
		Label:     label,
		Status:    status,
		Writeback: wbResult,
		Apply:     report,
		Contract:  c,
	}, nil
}

// RecordAborted logs a turn whose inference call was cancelled or timed out
// before any output existed. Nothing else is persisted for such a turn, but
// it must stay auditable.
func (s *TurnService) RecordAborted(ctx context.Context, userID uuid.UUID, requestID, rawInput, reason string) *domain.TurnRecord {
	if requestID == "" {
		requestID = "req_" + shortID()
	}
	rec := &domain.TurnRecord{
		UserID:    userID,
		RequestID: requestID,
		RawInput:  rawInput,
		Status:    domain.TurnFailed,
		ExtractionResult: map[string]any{
			"aborted": true,
			"reason":  reason,
		},
	}
	s.provenance.Record(ctx, rec)
	return rec
}
