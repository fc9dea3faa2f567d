package domain

import (
	"time"

	"github.com/google/uuid"
)

// DispatchLabel is the downstream routing label for a validated turn. It is
// informational: consumers use it for branching and audit, never to re-derive
// facts.
type DispatchLabel string

const (
	DispatchCapture  DispatchLabel = "capture"
	DispatchCoaching DispatchLabel = "coaching"
	DispatchCommand  DispatchLabel = "command"
	DispatchClarify  DispatchLabel = "clarify"
)

// TurnStatus marks how far a turn made it through the pipeline.
type TurnStatus string

const (
	// TurnOK means the turn validated and all derived writes succeeded.
	TurnOK TurnStatus = "ok"
	// TurnPartial means the turn validated but some writes were skipped or failed.
	TurnPartial TurnStatus = "partial"
	// TurnInvalid means the turn was rejected by the contract validator.
	TurnInvalid TurnStatus = "invalid"
	// TurnFailed means the inference call was aborted before any output existed.
	TurnFailed TurnStatus = "failed"
)

// TurnRecord is one append-only provenance row, written for every processed
// turn regardless of downstream success.
type TurnRecord struct {
	ID               uuid.UUID      `json:"id"`
	UserID           uuid.UUID      `json:"user_id"`
	RequestID        string         `json:"request_id"`
	RawInput         string         `json:"raw_input"`
	ClassifiedIntent string         `json:"classified_intent,omitempty"`
	ExtractionResult map[string]any `json:"extraction_result,omitempty"`
	AIResponse       string         `json:"ai_response,omitempty"`
	PromptVersion    string         `json:"prompt_version,omitempty"`
	InputTokens      int            `json:"input_tokens"`
	OutputTokens     int            `json:"output_tokens"`
	ProcessingTimeMS int            `json:"processing_time_ms"`
	Status           TurnStatus     `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
}

// TurnStats aggregates the turn log for one user over a time range.
type TurnStats struct {
	Total        int            `json:"total"`
	ByIntent     map[string]int `json:"by_intent"`
	InputTokens  int64          `json:"input_tokens"`
	OutputTokens int64          `json:"output_tokens"`
}

// UpdateResult reports the outcome of one state update within a turn.
type UpdateResult struct {
	Index      int        `json:"index"`
	Operation  Operation  `json:"operation"`
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id,omitempty"`
	Skipped    bool       `json:"skipped"`
	Reason     string     `json:"reason,omitempty"`
}

// ApplyReport is the per-turn state update summary. A turn with any skipped
// update is reported as partially applied, never as fully successful.
type ApplyReport struct {
	Applied int            `json:"applied"`
	Skipped int            `json:"skipped"`
	Results []UpdateResult `json:"results"`
}

func (r *ApplyReport) PartiallyApplied() bool {
	return r.Skipped > 0
}

// SourceRef is the source linkage for a turn's derived facts.
type SourceRef struct {
	MessageID      string `json:"source_message_id,omitempty"`
	ConversationID string `json:"source_conversation_id,omitempty"`
	ActionID       string `json:"source_action_id,omitempty"`
}

// User is the owner of turns and ledger rows. Authentication itself is an
// external concern; this service only resolves an API key to a user row.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
