package service

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nuance-hq/cortex/internal/domain"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func validContractJSON() map[string]any {
	return map[string]any{
		"contract_version": "0.1.0",
		"request_id":       "req_abc123",
		"timestamp":        "2026-08-01T10:00:00Z",
		"intent": map[string]any{
			"type":       "capture",
			"confidence": 0.9,
		},
		"output": map[string]any{
			"raw_input": "finish the report by friday",
			"captures": []any{
				map[string]any{
					"id":                "cap_1",
					"type":              "task",
					"title":             "Finish the report",
					"raw_segment":       "finish the report by friday",
					"estimated_minutes": 120,
					"avoidance_weight":  3,
					"confidence":        0.85,
					"needs_breakdown":   true,
				},
			},
			"overall_confidence": 0.8,
			"cognitive_load":     "routine",
		},
	}
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func parseDoc(t *testing.T, doc map[string]any) (*domain.AgentOutputContract, error) {
	t.Helper()
	svc := NewContractService(testLogger())
	return svc.Parse(mustMarshal(t, doc))
}

func TestContractService_ParseValid(t *testing.T) {
	c, err := parseDoc(t, validContractJSON())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := domain.Capture{
		ID:               "cap_1",
		Type:             domain.CaptureTask,
		Title:            "Finish the report",
		RawSegment:       "finish the report by friday",
		EstimatedMinutes: 120,
		AvoidanceWeight:  3,
		Confidence:       0.85,
		NeedsBreakdown:   true,
	}
	if len(c.Output.Captures) != 1 {
		t.Fatalf("expected 1 capture, got %d", len(c.Output.Captures))
	}
	if diff := cmp.Diff(want, c.Output.Captures[0]); diff != "" {
		t.Fatalf("capture mismatch (-want +got):\n%s", diff)
	}
	if c.RequestID != "req_abc123" {
		t.Fatalf("expected request id preserved, got %q", c.RequestID)
	}
}

func TestContractService_MalformedJSON(t *testing.T) {
	svc := NewContractService(testLogger())
	_, err := svc.Parse([]byte("{not json"))
	var violation *domain.ContractViolation
	if !errors.As(err, &violation) {
		t.Fatalf("expected ContractViolation, got %v", err)
	}
}

func TestContractService_GeneratesRequestIDAndTimestamp(t *testing.T) {
	doc := validContractJSON()
	delete(doc, "request_id")
	delete(doc, "timestamp")

	c, err := parseDoc(t, doc)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.HasPrefix(c.RequestID, "req_") {
		t.Fatalf("expected generated request id, got %q", c.RequestID)
	}
	if c.Timestamp.IsZero() || time.Since(c.Timestamp) > time.Minute {
		t.Fatalf("expected fresh timestamp, got %v", c.Timestamp)
	}
}

func TestContractService_InvalidVersion(t *testing.T) {
	doc := validContractJSON()
	doc["contract_version"] = "v1"

	_, err := parseDoc(t, doc)
	assertViolationAt(t, err, "contract_version")
}

func TestContractService_InvalidIntentType(t *testing.T) {
	doc := validContractJSON()
	doc["intent"] = map[string]any{"type": "banter", "confidence": 0.5}

	_, err := parseDoc(t, doc)
	assertViolationAt(t, err, "intent.type")
}

func TestContractService_ConfidenceOutOfBounds(t *testing.T) {
	doc := validContractJSON()
	doc["output"].(map[string]any)["captures"].([]any)[0].(map[string]any)["confidence"] = 1.2

	_, err := parseDoc(t, doc)
	assertViolationAt(t, err, "output.captures[0].confidence")
}

func TestContractService_AvoidanceWeightOutOfBounds(t *testing.T) {
	doc := validContractJSON()
	doc["output"].(map[string]any)["captures"].([]any)[0].(map[string]any)["avoidance_weight"] = 6

	_, err := parseDoc(t, doc)
	assertViolationAt(t, err, "output.captures[0].avoidance_weight")
}

func TestContractService_TaskMinutesBounds(t *testing.T) {
	doc := validContractJSON()
	doc["output"].(map[string]any)["atomic_tasks"] = []any{
		map[string]any{
			"id":                "task_1",
			"verb":              "open",
			"object":            "the report doc",
			"estimated_minutes": 45,
			"energy_level":      "low",
		},
	}

	_, err := parseDoc(t, doc)
	assertViolationAt(t, err, "output.atomic_tasks[0].estimated_minutes")
}

func TestContractService_OrphanParentCaptureID(t *testing.T) {
	doc := validContractJSON()
	doc["output"].(map[string]any)["atomic_tasks"] = []any{
		map[string]any{
			"id":                "task_1",
			"parent_capture_id": "cap_missing",
			"verb":              "open",
			"object":            "the report doc",
			"estimated_minutes": 5,
			"energy_level":      "low",
		},
	}

	_, err := parseDoc(t, doc)
	assertViolationAt(t, err, "output.atomic_tasks[0].parent_capture_id")
}

func TestContractService_StateUpdateBothRefs(t *testing.T) {
	doc := validContractJSON()
	doc["output"].(map[string]any)["state_updates"] = []any{
		map[string]any{
			"entity_type": "action",
			"entity_id":   "7a1e8f00-0000-0000-0000-000000000001",
			"temp_id":     "tmp_1",
			"operation":   "updated",
			"changes":     map[string]any{"status": "done"},
		},
	}

	_, err := parseDoc(t, doc)
	assertViolationAt(t, err, "output.state_updates[0]")
}

func TestContractService_StateUpdateNeitherRef(t *testing.T) {
	doc := validContractJSON()
	doc["output"].(map[string]any)["state_updates"] = []any{
		map[string]any{
			"entity_type": "action",
			"operation":   "updated",
			"changes":     map[string]any{"status": "done"},
		},
	}

	_, err := parseDoc(t, doc)
	assertViolationAt(t, err, "output.state_updates[0]")
}

func TestContractService_UnknownOperationRejected(t *testing.T) {
	doc := validContractJSON()
	doc["output"].(map[string]any)["state_updates"] = []any{
		map[string]any{
			"entity_type": "action",
			"temp_id":     "tmp_1",
			"operation":   "archived",
		},
	}

	_, err := parseDoc(t, doc)
	assertViolationAt(t, err, "output.state_updates[0].operation")
}

func TestContractService_UpdatedRequiresChanges(t *testing.T) {
	doc := validContractJSON()
	doc["output"].(map[string]any)["state_updates"] = []any{
		map[string]any{
			"entity_type": "action",
			"entity_id":   "7a1e8f00-0000-0000-0000-000000000001",
			"operation":   "updated",
		},
	}

	_, err := parseDoc(t, doc)
	assertViolationAt(t, err, "output.state_updates[0].changes")
}

func TestContractService_DeletedClearsChanges(t *testing.T) {
	doc := validContractJSON()
	doc["output"].(map[string]any)["state_updates"] = []any{
		map[string]any{
			"entity_type": "action",
			"entity_id":   "7a1e8f00-0000-0000-0000-000000000001",
			"operation":   "deleted",
			"changes":     map[string]any{"status": "gone"},
		},
	}

	c, err := parseDoc(t, doc)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Output.StateUpdates[0].Changes != nil {
		t.Fatalf("expected changes cleared on delete, got %v", c.Output.StateUpdates[0].Changes)
	}
}

func TestContractService_TaxonomyCoercion(t *testing.T) {
	doc := validContractJSON()
	doc["output"].(map[string]any)["captures"].([]any)[0].(map[string]any)["labels"] = map[string]any{
		"intent_layer":      "capture",
		"survival_function": "galactic",
		"cognitive_load":    "routine",
		"time_horizon":      "someday",
		"agency_level":      "autonomous",
		"psych_source":      "intrinsic",
		"system_role":       "capture",
	}

	c, err := parseDoc(t, doc)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	labels := c.Output.Captures[0].Labels
	if labels.SurvivalFunction != domain.SurvivalUnknown {
		t.Fatalf("expected survival_function coerced to unknown, got %q", labels.SurvivalFunction)
	}
	if labels.TimeHorizon != domain.HorizonUnknown {
		t.Fatalf("expected time_horizon coerced to unknown, got %q", labels.TimeHorizon)
	}
	if labels.IntentLayer != domain.IntentLayerCapture {
		t.Fatalf("expected valid intent_layer preserved, got %q", labels.IntentLayer)
	}
}

func TestContractService_UnknownScopeRejected(t *testing.T) {
	doc := validContractJSON()
	doc["output"].(map[string]any)["captures"].([]any)[0].(map[string]any)["magnitude"] = map[string]any{
		"scope":       "cosmic",
		"complexity":  3,
		"uncertainty": 0.4,
	}

	_, err := parseDoc(t, doc)
	assertViolationAt(t, err, "output.captures[0].magnitude.scope")
}

func TestContractService_MintsCaptureIDs(t *testing.T) {
	doc := validContractJSON()
	delete(doc["output"].(map[string]any)["captures"].([]any)[0].(map[string]any), "id")

	c, err := parseDoc(t, doc)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.HasPrefix(c.Output.Captures[0].ID, "cap_") {
		t.Fatalf("expected minted capture id, got %q", c.Output.Captures[0].ID)
	}
}

func assertViolationAt(t *testing.T, err error, path string) {
	t.Helper()
	var violation *domain.ContractViolation
	if !errors.As(err, &violation) {
		t.Fatalf("expected ContractViolation, got %v", err)
	}
	if violation.Path != path {
		t.Fatalf("expected violation at %q, got %q", path, violation.Path)
	}
}
