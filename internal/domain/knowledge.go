package domain

import (
	"time"

	"github.com/google/uuid"
)

type KnowledgeObjectType string

const (
	KnowledgeTaxonomyLabel KnowledgeObjectType = "taxonomy_label"
	KnowledgeBreakdown     KnowledgeObjectType = "breakdown"
	KnowledgeInsight       KnowledgeObjectType = "insight"
	KnowledgeCheckpoint    KnowledgeObjectType = "checkpoint"
	KnowledgeGoal          KnowledgeObjectType = "goal"
	KnowledgePlan          KnowledgeObjectType = "plan"
	KnowledgeHabit         KnowledgeObjectType = "habit"
	KnowledgeStateSnapshot KnowledgeObjectType = "state_snapshot"
	KnowledgeUserPattern   KnowledgeObjectType = "user_pattern"
	KnowledgeCoachingNote  KnowledgeObjectType = "coaching_note"
)

func ValidKnowledgeObjectType(t string) bool {
	switch KnowledgeObjectType(t) {
	case KnowledgeTaxonomyLabel, KnowledgeBreakdown, KnowledgeInsight, KnowledgeCheckpoint,
		KnowledgeGoal, KnowledgePlan, KnowledgeHabit, KnowledgeStateSnapshot,
		KnowledgeUserPattern, KnowledgeCoachingNote:
		return true
	}
	return false
}

// KnowledgeObject is one durable ledger row. Rows are only ever mutated by
// re-submission with the same natural key; a row with natural_key == nil is
// never deduplicated.
type KnowledgeObject struct {
	ID                   uuid.UUID           `json:"id"`
	UserID               uuid.UUID           `json:"user_id"`
	Type                 KnowledgeObjectType `json:"type"`
	Payload              map[string]any      `json:"payload"`
	Confidence           float64             `json:"confidence"`
	Importance           int                 `json:"importance"`
	SourceMessageID      *string             `json:"source_message_id,omitempty"`
	SourceConversationID *string             `json:"source_conversation_id,omitempty"`
	SourceActionID       *string             `json:"source_action_id,omitempty"`
	NaturalKey           *string             `json:"natural_key,omitempty"`
	ValidFrom            time.Time           `json:"valid_from"`
	ValidTo              *time.Time          `json:"valid_to,omitempty"`
	ModelID              *string             `json:"model_id,omitempty"`
	PromptVersion        *string             `json:"prompt_version,omitempty"`
	RequestID            *string             `json:"request_id,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// Active reports whether the object's validity window covers now.
func (k *KnowledgeObject) Active(now time.Time) bool {
	if now.Before(k.ValidFrom) {
		return false
	}
	return k.ValidTo == nil || k.ValidTo.After(now)
}

// Validate enforces the ledger row invariants.
func (k *KnowledgeObject) Validate() error {
	if k.UserID == uuid.Nil {
		return &ContractViolation{Path: "user_id", Reason: "required"}
	}
	if !ValidKnowledgeObjectType(string(k.Type)) {
		return &ContractViolation{Path: "type", Reason: "unknown knowledge object type"}
	}
	if k.Confidence < 0 || k.Confidence > 1 {
		return &ContractViolation{Path: "confidence", Reason: "must be within [0, 1]"}
	}
	if k.Importance < 0 || k.Importance > 100 {
		return &ContractViolation{Path: "importance", Reason: "must be within [0, 100]"}
	}
	if k.ValidTo != nil && !k.ValidTo.After(k.ValidFrom) {
		return &ContractViolation{Path: "valid_to", Reason: "must be after valid_from"}
	}
	return nil
}

// ShouldReplace is the ledger conflict-resolution policy: an incoming object
// replaces the stored one only when its confidence is at least the stored
// confidence, or when the producing turn is strictly newer than the stored
// row and the writer marked the write as a refresh. The SQL upsert clause in
// the store mirrors this function exactly.
func ShouldReplace(stored *KnowledgeObject, incoming *KnowledgeObject, turnAt time.Time, refresh bool) bool {
	if incoming.Confidence >= stored.Confidence {
		return true
	}
	return refresh && turnAt.After(stored.CreatedAt)
}

// UpsertOutcome reports what a ledger write did.
type UpsertOutcome string

const (
	UpsertInserted UpsertOutcome = "inserted"
	UpsertReplaced UpsertOutcome = "replaced"
	UpsertRetained UpsertOutcome = "retained"
)

// KnowledgeQuery filters a ledger search. Zero values mean "no filter".
type KnowledgeQuery struct {
	Types                []KnowledgeObjectType
	SourceMessageID      string
	SourceConversationID string
	SourceActionID       string
	From                 *time.Time
	To                   *time.Time
	IncludeExpired       bool
	Limit                int
	Offset               int
}

type KnowledgeSearchResult struct {
	Objects []KnowledgeObject `json:"objects"`
	Total   int               `json:"total"`
	HasMore bool              `json:"has_more"`
}
