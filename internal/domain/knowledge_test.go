package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func baseObject() *KnowledgeObject {
	return &KnowledgeObject{
		UserID:     uuid.New(),
		Type:       KnowledgeInsight,
		Payload:    map[string]any{"pattern_name": "x"},
		Confidence: 0.8,
		Importance: 60,
		ValidFrom:  time.Now().Add(-time.Hour),
	}
}

func TestKnowledgeObject_Active(t *testing.T) {
	now := time.Now()

	obj := baseObject()
	if !obj.Active(now) {
		t.Fatal("expected unbounded object active")
	}

	past := now.Add(-time.Minute)
	obj.ValidTo = &past
	if obj.Active(now) {
		t.Fatal("expected expired object inactive")
	}

	future := now.Add(time.Hour)
	obj.ValidTo = &future
	if !obj.Active(now) {
		t.Fatal("expected object with open window active")
	}

	obj.ValidFrom = now.Add(time.Minute)
	if obj.Active(now) {
		t.Fatal("expected object before valid_from inactive")
	}
}

func TestKnowledgeObject_ValidateBounds(t *testing.T) {
	obj := baseObject()
	if err := obj.Validate(); err != nil {
		t.Fatalf("expected valid object, got %v", err)
	}

	obj = baseObject()
	obj.Confidence = 1.5
	if err := obj.Validate(); err == nil {
		t.Fatal("expected confidence bound violation")
	}

	obj = baseObject()
	obj.Importance = 101
	if err := obj.Validate(); err == nil {
		t.Fatal("expected importance bound violation")
	}

	obj = baseObject()
	obj.UserID = uuid.Nil
	if err := obj.Validate(); err == nil {
		t.Fatal("expected missing user violation")
	}

	obj = baseObject()
	obj.Type = "vibe"
	if err := obj.Validate(); err == nil {
		t.Fatal("expected unknown type violation")
	}

	obj = baseObject()
	before := obj.ValidFrom.Add(-time.Minute)
	obj.ValidTo = &before
	if err := obj.Validate(); err == nil {
		t.Fatal("expected inverted validity window violation")
	}
}

func TestShouldReplace(t *testing.T) {
	now := time.Now()
	stored := baseObject()
	stored.CreatedAt = now.Add(-time.Hour)

	higher := baseObject()
	higher.Confidence = 0.9
	if !ShouldReplace(stored, higher, now, false) {
		t.Fatal("expected higher confidence to replace")
	}

	equal := baseObject()
	equal.Confidence = stored.Confidence
	if !ShouldReplace(stored, equal, now, false) {
		t.Fatal("expected equal confidence to replace")
	}

	lower := baseObject()
	lower.Confidence = 0.2
	if ShouldReplace(stored, lower, now, false) {
		t.Fatal("expected lower confidence repeat to be retained")
	}
	if !ShouldReplace(stored, lower, now, true) {
		t.Fatal("expected newer refresh to replace despite lower confidence")
	}
	if ShouldReplace(stored, lower, stored.CreatedAt.Add(-time.Minute), true) {
		t.Fatal("expected stale refresh to be retained")
	}
}
