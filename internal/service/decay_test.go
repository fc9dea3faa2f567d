package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nuance-hq/cortex/internal/domain"
)

func seedExpired(ks *mockKnowledgeStore, userID uuid.UUID, expiredAt time.Time) uuid.UUID {
	id := uuid.New()
	ks.objects[id] = &domain.KnowledgeObject{
		ID:         id,
		UserID:     userID,
		Type:       domain.KnowledgeInsight,
		Payload:    map[string]any{"pattern_name": "x"},
		Confidence: 0.5,
		ValidFrom:  expiredAt.AddDate(0, 0, -1),
		ValidTo:    &expiredAt,
		CreatedAt:  expiredAt.AddDate(0, 0, -1),
	}
	return id
}

func TestDecay_SweepCountsExpired(t *testing.T) {
	ks := newMockKnowledgeStore()
	userID := uuid.New()
	seedExpired(ks, userID, time.Now().Add(-time.Hour))
	seedExpired(ks, userID, time.Now().Add(-2*time.Hour))

	svc := NewDecayService(ks, 0, testLogger())
	result := svc.RunSweep(context.Background())

	if result.Expired != 2 {
		t.Fatalf("expected 2 expired rows, got %d", result.Expired)
	}
	if result.Deleted != 0 {
		t.Fatalf("expected no deletions with retention disabled, got %d", result.Deleted)
	}
	if len(ks.objects) != 2 {
		t.Fatalf("expected rows kept with retention disabled, got %d", len(ks.objects))
	}
}

func TestDecay_RetentionDeletesOldRows(t *testing.T) {
	ks := newMockKnowledgeStore()
	userID := uuid.New()
	old := seedExpired(ks, userID, time.Now().AddDate(0, 0, -40))
	recent := seedExpired(ks, userID, time.Now().Add(-time.Hour))

	svc := NewDecayService(ks, 30, testLogger())
	result := svc.RunSweep(context.Background())

	if result.Deleted != 1 {
		t.Fatalf("expected 1 deletion, got %d", result.Deleted)
	}
	if _, ok := ks.objects[old]; ok {
		t.Fatal("expected old expired row deleted")
	}
	if _, ok := ks.objects[recent]; !ok {
		t.Fatal("expected recently expired row kept")
	}
}

func TestDecay_ExpiredExcludedFromActiveQueries(t *testing.T) {
	ks := newMockKnowledgeStore()
	userID := uuid.New()
	seedExpired(ks, userID, time.Now().Add(-time.Hour))

	active, err := ks.Query(context.Background(), userID, domain.KnowledgeQuery{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(active.Objects) != 0 {
		t.Fatalf("expected expired row excluded, got %d", len(active.Objects))
	}

	all, err := ks.Query(context.Background(), userID, domain.KnowledgeQuery{IncludeExpired: true})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(all.Objects) != 1 {
		t.Fatalf("expected expired row included, got %d", len(all.Objects))
	}
}

func TestDecay_StartStop(t *testing.T) {
	ks := newMockKnowledgeStore()
	svc := NewDecayService(ks, 0, testLogger())
	svc.SetInterval(10 * time.Millisecond)

	svc.Start()
	time.Sleep(35 * time.Millisecond)
	svc.Stop()

	ks.mu.Lock()
	sweeps := ks.countCalls
	ks.mu.Unlock()
	if sweeps == 0 {
		t.Fatal("expected at least one sweep while running")
	}
}
