package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nuance-hq/cortex/internal/domain"
	"github.com/nuance-hq/cortex/internal/store"
)

// mockKnowledgeStore implements domain.KnowledgeStore in memory, honoring the
// same conflict policy as the real store.
type mockKnowledgeStore struct {
	mu         sync.Mutex
	objects    map[uuid.UUID]*domain.KnowledgeObject
	failType   domain.KnowledgeObjectType
	upserts    int
	countCalls int
}

func newMockKnowledgeStore() *mockKnowledgeStore {
	return &mockKnowledgeStore{objects: make(map[uuid.UUID]*domain.KnowledgeObject)}
}

func (m *mockKnowledgeStore) findByKey(userID uuid.UUID, t domain.KnowledgeObjectType, key string) *domain.KnowledgeObject {
	for _, obj := range m.objects {
		if obj.UserID == userID && obj.Type == t && obj.NaturalKey != nil && *obj.NaturalKey == key {
			return obj
		}
	}
	return nil
}

func (m *mockKnowledgeStore) Upsert(ctx context.Context, obj *domain.KnowledgeObject, turnAt time.Time, refresh bool) (domain.UpsertOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.failType != "" && obj.Type == m.failType {
		return "", errors.New("store unavailable")
	}
	if err := obj.Validate(); err != nil {
		return "", err
	}

	now := time.Now()
	if obj.NaturalKey != nil {
		if stored := m.findByKey(obj.UserID, obj.Type, *obj.NaturalKey); stored != nil {
			if !domain.ShouldReplace(stored, obj, turnAt, refresh) {
				*obj = *stored
				return domain.UpsertRetained, nil
			}
			stored.Payload = obj.Payload
			stored.Confidence = obj.Confidence
			stored.Importance = obj.Importance
			stored.UpdatedAt = now
			*obj = *stored
			return domain.UpsertReplaced, nil
		}
	}

	obj.ID = uuid.New()
	if obj.ValidFrom.IsZero() {
		obj.ValidFrom = now
	}
	obj.CreatedAt = now
	obj.UpdatedAt = now
	stored := *obj
	m.objects[obj.ID] = &stored
	return domain.UpsertInserted, nil
}

func (m *mockKnowledgeStore) GetByID(ctx context.Context, id, userID uuid.UUID) (*domain.KnowledgeObject, error) {
	obj, ok := m.objects[id]
	if !ok || obj.UserID != userID {
		return nil, store.ErrNotFound
	}
	return obj, nil
}

func (m *mockKnowledgeStore) GetByNaturalKey(ctx context.Context, userID uuid.UUID, t domain.KnowledgeObjectType, key string) (*domain.KnowledgeObject, error) {
	if obj := m.findByKey(userID, t, key); obj != nil {
		return obj, nil
	}
	return nil, store.ErrNotFound
}

func (m *mockKnowledgeStore) Query(ctx context.Context, userID uuid.UUID, q domain.KnowledgeQuery) (*domain.KnowledgeSearchResult, error) {
	result := &domain.KnowledgeSearchResult{}
	now := time.Now()
	for _, obj := range m.objects {
		if obj.UserID != userID {
			continue
		}
		if !q.IncludeExpired && !obj.Active(now) {
			continue
		}
		result.Objects = append(result.Objects, *obj)
	}
	result.Total = len(result.Objects)
	return result, nil
}

func (m *mockKnowledgeStore) Expire(ctx context.Context, id, userID uuid.UUID) error {
	obj, ok := m.objects[id]
	if !ok || obj.UserID != userID {
		return store.ErrNotFound
	}
	now := time.Now()
	obj.ValidTo = &now
	return nil
}

func (m *mockKnowledgeStore) Delete(ctx context.Context, id, userID uuid.UUID) error {
	obj, ok := m.objects[id]
	if !ok || obj.UserID != userID {
		return store.ErrNotFound
	}
	delete(m.objects, id)
	return nil
}

func (m *mockKnowledgeStore) CountExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.countCalls++
	var count int64
	now := time.Now()
	for _, obj := range m.objects {
		if obj.ValidTo != nil && !obj.ValidTo.After(now) {
			count++
		}
	}
	return count, nil
}

func (m *mockKnowledgeStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, obj := range m.objects {
		if obj.ValidTo != nil && obj.ValidTo.Before(cutoff) {
			delete(m.objects, id)
			deleted++
		}
	}
	return deleted, nil
}

func fullContract() *domain.AgentOutputContract {
	return &domain.AgentOutputContract{
		ContractVersion: domain.ContractVersion,
		RequestID:       "req_test",
		Timestamp:       time.Now(),
		Intent:          domain.IntentClassification{Type: domain.IntentCapture, Confidence: 0.9},
		Output: domain.AgentOutput{
			RawInput: "plan the launch and build a morning routine",
			Captures: []domain.Capture{
				{
					ID: "cap_1", Type: domain.CaptureGoal, Title: "Launch the product",
					RawSegment: "plan the launch", AvoidanceWeight: 2, Confidence: 0.8,
					Labels: &domain.TaxonomyLabels{
						IntentLayer: domain.IntentLayerCapture, SurvivalFunction: domain.SurvivalGrowth,
						CognitiveLoad: domain.CognitiveLoadRoutine, TimeHorizon: domain.HorizonThisMonth,
						AgencyLevel: domain.AgencyAutonomous, PsychSource: domain.PsychIntrinsic,
						SystemRole: domain.RoleTrack,
					},
					State: &domain.StateInference{Stage: domain.StageNotStarted, EnergyRequired: domain.EnergyHigh},
				},
				{
					ID: "cap_2", Type: domain.CaptureHabit, Title: "Morning routine",
					RawSegment: "build a morning routine", AvoidanceWeight: 4, Confidence: 0.7,
					NeedsBreakdown: true,
				},
			},
			AtomicTasks: []domain.AtomicTask{
				{ID: "task_1", ParentCaptureID: "cap_2", Verb: "lay out", Object: "running shoes", EstimatedMinutes: 2, EnergyLevel: domain.EnergyLow, IsFirstAction: true, IsPhysical: true},
				{ID: "task_2", ParentCaptureID: "cap_2", Verb: "set", Object: "alarm for 6:30", EstimatedMinutes: 1, EnergyLevel: domain.EnergyLow},
			},
			Insights: []domain.Insight{
				{PatternName: "evening avoidance", Description: "defers hard tasks to evening", SuggestedStrategy: "morning first-action", Confidence: 0.75},
			},
			CoachingMessage:   "Start with the shoes tonight.",
			OverallConfidence: 0.8,
			CognitiveLoad:     domain.CognitiveLoadRoutine,
		},
	}
}

func TestWriteback_FanOut(t *testing.T) {
	ks := newMockKnowledgeStore()
	svc := NewWritebackService(ks, testLogger())
	userID := uuid.New()
	src := domain.SourceRef{ConversationID: "conv-1"}

	result := svc.Writeback(context.Background(), userID, fullContract(), src, false)

	// cap_1: taxonomy_label + state_snapshot + goal; cap_2: habit;
	// one breakdown group; one insight; one coaching note.
	if result.Failed != 0 {
		t.Fatalf("expected no failures, got %d: %v", result.Failed, result.Errors)
	}
	if result.Written != 7 {
		t.Fatalf("expected 7 objects written, got %d", result.Written)
	}
	if result.Inserted != 7 {
		t.Fatalf("expected 7 inserts, got %d", result.Inserted)
	}
}

func TestWriteback_IdempotentRepeat(t *testing.T) {
	ks := newMockKnowledgeStore()
	svc := NewWritebackService(ks, testLogger())
	userID := uuid.New()
	src := domain.SourceRef{ConversationID: "conv-1"}

	first := svc.Writeback(context.Background(), userID, fullContract(), src, false)
	second := svc.Writeback(context.Background(), userID, fullContract(), src, false)

	if second.Inserted != 0 {
		t.Fatalf("expected no new rows on repeat, got %d inserts", second.Inserted)
	}
	if len(ks.objects) != first.Written {
		t.Fatalf("expected %d rows after repeat, got %d", first.Written, len(ks.objects))
	}
}

func TestWriteback_LowerConfidenceRetained(t *testing.T) {
	ks := newMockKnowledgeStore()
	svc := NewWritebackService(ks, testLogger())
	userID := uuid.New()
	src := domain.SourceRef{ConversationID: "conv-1"}

	svc.Writeback(context.Background(), userID, fullContract(), src, false)

	weaker := fullContract()
	for i := range weaker.Output.Captures {
		weaker.Output.Captures[i].Confidence = 0.1
	}
	weaker.Output.Insights[0].Confidence = 0.1
	weaker.Output.OverallConfidence = 0.1
	result := svc.Writeback(context.Background(), userID, weaker, src, false)

	if result.Replaced != 0 {
		t.Fatalf("expected no replacements from weaker repeat, got %d", result.Replaced)
	}
	if result.Retained == 0 {
		t.Fatal("expected retained outcomes from weaker repeat")
	}
}

func TestWriteback_FailureIsolation(t *testing.T) {
	ks := newMockKnowledgeStore()
	ks.failType = domain.KnowledgeInsight
	svc := NewWritebackService(ks, testLogger())
	userID := uuid.New()
	src := domain.SourceRef{ConversationID: "conv-1"}

	result := svc.Writeback(context.Background(), userID, fullContract(), src, false)

	if result.Failed != 1 {
		t.Fatalf("expected 1 failure, got %d", result.Failed)
	}
	if result.Written != 6 {
		t.Fatalf("expected siblings to still write, got %d written", result.Written)
	}
}

func TestWriteback_NoSourceNeverCollapses(t *testing.T) {
	ks := newMockKnowledgeStore()
	svc := NewWritebackService(ks, testLogger())
	userID := uuid.New()

	svc.Writeback(context.Background(), userID, fullContract(), domain.SourceRef{}, false)
	svc.Writeback(context.Background(), userID, fullContract(), domain.SourceRef{}, false)

	// 7 objects per pass, all with nil natural keys: 14 distinct rows.
	if len(ks.objects) != 14 {
		t.Fatalf("expected 14 rows without source linkage, got %d", len(ks.objects))
	}
}

func TestCaptureImportance(t *testing.T) {
	cp := &domain.Capture{AvoidanceWeight: 5, Confidence: 0.5, NeedsBreakdown: true}
	// 50 + 40 + 10 + 10 = 110, capped.
	if got := captureImportance(cp); got != 100 {
		t.Fatalf("expected importance capped at 100, got %d", got)
	}

	cp = &domain.Capture{AvoidanceWeight: 1, Confidence: 1}
	if got := captureImportance(cp); got != 50 {
		t.Fatalf("expected baseline importance 50, got %d", got)
	}
}
