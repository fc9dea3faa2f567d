package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/nuance-hq/cortex/internal/domain"
	"github.com/nuance-hq/cortex/internal/store"
	"go.uber.org/zap"
)

var (
	ErrKnowledgeNotFound    = errors.New("knowledge object not found")
	ErrInvalidKnowledgeType = errors.New("invalid knowledge object type")
)

// KnowledgeService is the read and curation surface over the ledger.
type KnowledgeService struct {
	knowledgeStore domain.KnowledgeStore
	logger         *zap.Logger
}

func NewKnowledgeService(ks domain.KnowledgeStore, logger *zap.Logger) *KnowledgeService {
	return &KnowledgeService{knowledgeStore: ks, logger: logger}
}

func (s *KnowledgeService) Get(ctx context.Context, id, userID uuid.UUID) (*domain.KnowledgeObject, error) {
	obj, err := s.knowledgeStore.GetByID(ctx, id, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrKnowledgeNotFound
		}
		return nil, err
	}
	return obj, nil
}

func (s *KnowledgeService) Query(ctx context.Context, userID uuid.UUID, q domain.KnowledgeQuery) (*domain.KnowledgeSearchResult, error) {
	for _, t := range q.Types {
		if !domain.ValidKnowledgeObjectType(string(t)) {
			return nil, ErrInvalidKnowledgeType
		}
	}
	return s.knowledgeStore.Query(ctx, userID, q)
}

// Expire closes an object's validity window now. Expiring an already expired
// object is a no-op.
func (s *KnowledgeService) Expire(ctx context.Context, id, userID uuid.UUID) error {
	err := s.knowledgeStore.Expire(ctx, id, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrKnowledgeNotFound
	}
	return err
}

func (s *KnowledgeService) Delete(ctx context.Context, id, userID uuid.UUID) error {
	err := s.knowledgeStore.Delete(ctx, id, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrKnowledgeNotFound
	}
	return err
}
