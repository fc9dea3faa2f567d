package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nuance-hq/cortex/internal/domain"
	"github.com/nuance-hq/cortex/internal/store"
	"go.uber.org/zap"
)

// ApplierService applies one turn's state updates to the entity store.
// Updates apply strictly in the given order; a failed update skips itself
// only, so the report may come back partially applied.
type ApplierService struct {
	entityStore domain.EntityStore
	logger      *zap.Logger
}

func NewApplierService(es domain.EntityStore, logger *zap.Logger) *ApplierService {
	return &ApplierService{entityStore: es, logger: logger}
}

// Apply resolves temp ids and applies each update in order. A temp id
// resolves to the entity created by the first prior created operation that
// used it; forward references are unresolvable and skip the update.
func (s *ApplierService) Apply(ctx context.Context, userID uuid.UUID, updates []domain.StateUpdate) *domain.ApplyReport {
	report := &domain.ApplyReport{
		Results: make([]domain.UpdateResult, 0, len(updates)),
	}

	// Resolution map filled as creates land. A temp id is only resolvable
	// after its created operation has applied, so forward references skip.
	resolved := make(map[string]uuid.UUID)

	for i, u := range updates {
		res := domain.UpdateResult{
			Index:      i,
			Operation:  u.Operation,
			EntityType: u.EntityType,
		}

		id, err := s.applyOne(ctx, userID, &u, resolved)
		if err != nil {
			res.Skipped = true
			res.Reason = err.Error()
			report.Skipped++

			var unresolved *domain.UnresolvedReference
			if !errors.As(err, &unresolved) {
				s.logger.Warn("state update failed",
					zap.Int("index", i),
					zap.String("entity_type", string(u.EntityType)),
					zap.Error(err))
			}
		} else {
			res.EntityID = id.String()
			report.Applied++
			if u.Operation == domain.OpCreated && u.TempID != "" {
				resolved[u.TempID] = id
			}
		}

		report.Results = append(report.Results, res)
	}

	return report
}

func (s *ApplierService) applyOne(ctx context.Context, userID uuid.UUID, u *domain.StateUpdate, resolved map[string]uuid.UUID) (uuid.UUID, error) {
	if u.Operation == domain.OpCreated {
		if u.EntityID != "" {
			return uuid.Nil, fmt.Errorf("created operation cannot target an existing entity")
		}
		return s.entityStore.Create(ctx, userID, u.EntityType, u.Changes)
	}

	id, err := s.resolveTarget(u, resolved)
	if err != nil {
		return uuid.Nil, err
	}

	switch u.Operation {
	case domain.OpUpdated:
		err = s.entityStore.Update(ctx, u.EntityType, id, u.Changes)
	case domain.OpDeleted:
		err = s.entityStore.Delete(ctx, u.EntityType, id)
	}
	if errors.Is(err, store.ErrNotFound) {
		return uuid.Nil, &domain.UnresolvedReference{
			EntityType: u.EntityType,
			Ref:        id.String(),
			Reason:     "entity does not exist",
		}
	}
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (s *ApplierService) resolveTarget(u *domain.StateUpdate, resolved map[string]uuid.UUID) (uuid.UUID, error) {
	if u.TempID != "" {
		id, ok := resolved[u.TempID]
		if !ok {
			return uuid.Nil, &domain.UnresolvedReference{
				EntityType: u.EntityType,
				Ref:        u.TempID,
				Reason:     "temp_id has no prior created operation in this turn",
			}
		}
		return id, nil
	}

	id, err := uuid.Parse(u.EntityID)
	if err != nil {
		return uuid.Nil, &domain.UnresolvedReference{
			EntityType: u.EntityType,
			Ref:        u.EntityID,
			Reason:     "entity_id is not a valid identifier",
		}
	}
	return id, nil
}
