package service

import (
	"context"
	"sync"
	"time"

	"github.com/nuance-hq/cortex/internal/domain"
	"go.uber.org/zap"
)

const defaultSweepInterval = 1 * time.Hour

// SweepResult reports one decay sweep over the ledger.
type SweepResult struct {
	Expired int64 `json:"expired"`
	Deleted int64 `json:"deleted"`
}

// DecayService periodically sweeps the ledger for rows whose validity window
// has closed. Expiry itself happens by the clock (queries filter on valid_to),
// so the sweep only observes and, when a retention window is configured,
// physically deletes rows expired longer than that window. It never touches
// payloads, so it is safe to run concurrently with ledger writes.
type DecayService struct {
	knowledgeStore domain.KnowledgeStore
	logger         *zap.Logger

	interval      time.Duration
	retentionDays int
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

func NewDecayService(ks domain.KnowledgeStore, retentionDays int, logger *zap.Logger) *DecayService {
	return &DecayService{
		knowledgeStore: ks,
		logger:         logger,
		interval:       defaultSweepInterval,
		retentionDays:  retentionDays,
		stopCh:         make(chan struct{}),
	}
}

func (s *DecayService) SetInterval(d time.Duration) {
	s.interval = d
}

func (s *DecayService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("decay sweep worker started",
			zap.Duration("interval", s.interval),
			zap.Int("retention_days", s.retentionDays))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				s.RunSweep(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("decay sweep worker stopped")
				return
			}
		}
	}()
}

func (s *DecayService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// RunSweep counts expired rows and applies the retention policy. With
// retention disabled (zero days) expired rows are kept forever and only
// filtered from active queries.
func (s *DecayService) RunSweep(ctx context.Context) *SweepResult {
	result := &SweepResult{}

	expired, err := s.knowledgeStore.CountExpired(ctx)
	if err != nil {
		s.logger.Error("decay sweep count failed", zap.Error(err))
		return result
	}
	result.Expired = expired

	if s.retentionDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
		deleted, err := s.knowledgeStore.DeleteExpiredBefore(ctx, cutoff)
		if err != nil {
			s.logger.Error("decay retention delete failed", zap.Error(err))
			return result
		}
		result.Deleted = deleted
	}

	if result.Expired > 0 || result.Deleted > 0 {
		s.logger.Info("decay sweep complete",
			zap.Int64("expired", result.Expired),
			zap.Int64("deleted", result.Deleted))
	}

	return result
}
