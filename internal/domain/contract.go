package domain

import (
	"sort"
	"time"
)

// ContractVersion is the current agent output contract version.
const ContractVersion = "0.1.0"

type IntentType string

const (
	IntentCapture  IntentType = "capture"
	IntentCoaching IntentType = "coaching"
	IntentCommand  IntentType = "command"
	IntentClarify  IntentType = "clarify"
)

func ValidIntentType(t string) bool {
	switch IntentType(t) {
	case IntentCapture, IntentCoaching, IntentCommand, IntentClarify:
		return true
	}
	return false
}

type CaptureType string

const (
	CaptureGoal       CaptureType = "goal"
	CapturePlan       CaptureType = "plan"
	CaptureHabit      CaptureType = "habit"
	CaptureTask       CaptureType = "task"
	CaptureReflection CaptureType = "reflection"
	CaptureBlocker    CaptureType = "blocker"
	CaptureMetric     CaptureType = "metric"
)

func ValidCaptureType(t string) bool {
	switch CaptureType(t) {
	case CaptureGoal, CapturePlan, CaptureHabit, CaptureTask, CaptureReflection, CaptureBlocker, CaptureMetric:
		return true
	}
	return false
}

// Taxonomy enums. Each carries an "unknown" sentinel so an out-of-set value
// from the model can be coerced instead of rejecting the whole turn.

type IntentLayer string

const (
	IntentLayerCapture IntentLayer = "capture"
	IntentLayerClarify IntentLayer = "clarify"
	IntentLayerExecute IntentLayer = "execute"
	IntentLayerReflect IntentLayer = "reflect"
	IntentLayerUnknown IntentLayer = "unknown"
)

func (l IntentLayer) Valid() bool {
	switch l {
	case IntentLayerCapture, IntentLayerClarify, IntentLayerExecute, IntentLayerReflect, IntentLayerUnknown:
		return true
	}
	return false
}

type SurvivalFunction string

const (
	SurvivalMaintenance SurvivalFunction = "maintenance"
	SurvivalGrowth      SurvivalFunction = "growth"
	SurvivalProtection  SurvivalFunction = "protection"
	SurvivalConnection  SurvivalFunction = "connection"
	SurvivalUnknown     SurvivalFunction = "unknown"
)

func (f SurvivalFunction) Valid() bool {
	switch f {
	case SurvivalMaintenance, SurvivalGrowth, SurvivalProtection, SurvivalConnection, SurvivalUnknown:
		return true
	}
	return false
}

type CognitiveLoad string

const (
	CognitiveLoadRoutine      CognitiveLoad = "routine"
	CognitiveLoadHighFriction CognitiveLoad = "high_friction"
	CognitiveLoadUnknown      CognitiveLoad = "unknown"
)

func (c CognitiveLoad) Valid() bool {
	switch c {
	case CognitiveLoadRoutine, CognitiveLoadHighFriction, CognitiveLoadUnknown:
		return true
	}
	return false
}

type TimeHorizon string

const (
	HorizonImmediate TimeHorizon = "immediate"
	HorizonToday     TimeHorizon = "today"
	HorizonThisWeek  TimeHorizon = "this_week"
	HorizonThisMonth TimeHorizon = "this_month"
	HorizonLongTerm  TimeHorizon = "long_term"
	HorizonUnknown   TimeHorizon = "unknown"
)

func (h TimeHorizon) Valid() bool {
	switch h {
	case HorizonImmediate, HorizonToday, HorizonThisWeek, HorizonThisMonth, HorizonLongTerm, HorizonUnknown:
		return true
	}
	return false
}

type AgencyLevel string

const (
	AgencyAutonomous AgencyLevel = "autonomous"
	AgencyDelegated  AgencyLevel = "delegated"
	AgencyBlocked    AgencyLevel = "blocked"
	AgencyUnknown    AgencyLevel = "unknown"
)

func (a AgencyLevel) Valid() bool {
	switch a {
	case AgencyAutonomous, AgencyDelegated, AgencyBlocked, AgencyUnknown:
		return true
	}
	return false
}

type PsychSource string

const (
	PsychIntrinsic PsychSource = "intrinsic"
	PsychExtrinsic PsychSource = "extrinsic"
	PsychAvoidance PsychSource = "avoidance"
	PsychUnknown   PsychSource = "unknown"
)

func (p PsychSource) Valid() bool {
	switch p {
	case PsychIntrinsic, PsychExtrinsic, PsychAvoidance, PsychUnknown:
		return true
	}
	return false
}

type SystemRole string

const (
	RoleCapture  SystemRole = "capture"
	RoleScaffold SystemRole = "scaffold"
	RoleTrack    SystemRole = "track"
	RoleRemind   SystemRole = "remind"
	RoleCoach    SystemRole = "coach"
	RoleUnknown  SystemRole = "unknown"
)

func (r SystemRole) Valid() bool {
	switch r {
	case RoleCapture, RoleScaffold, RoleTrack, RoleRemind, RoleCoach, RoleUnknown:
		return true
	}
	return false
}

// Scope has no unknown sentinel: an out-of-set value is a contract violation.
type Scope string

const (
	ScopeAtomic    Scope = "atomic"
	ScopeComposite Scope = "composite"
	ScopeProject   Scope = "project"
)

func ValidScope(s string) bool {
	switch Scope(s) {
	case ScopeAtomic, ScopeComposite, ScopeProject:
		return true
	}
	return false
}

type Stage string

const (
	StageNotStarted Stage = "not_started"
	StageInProgress Stage = "in_progress"
	StageBlocked    Stage = "blocked"
	StageWaiting    Stage = "waiting"
	StageDone       Stage = "done"
	StageUnknown    Stage = "unknown"
)

func (s Stage) Valid() bool {
	switch s {
	case StageNotStarted, StageInProgress, StageBlocked, StageWaiting, StageDone, StageUnknown:
		return true
	}
	return false
}

type EnergyLevel string

const (
	EnergyLow     EnergyLevel = "low"
	EnergyMedium  EnergyLevel = "medium"
	EnergyHigh    EnergyLevel = "high"
	EnergyUnknown EnergyLevel = "unknown"
)

func (e EnergyLevel) Valid() bool {
	switch e {
	case EnergyLow, EnergyMedium, EnergyHigh, EnergyUnknown:
		return true
	}
	return false
}

// EntityType names the kinds of pre-existing entities a turn may mutate.
// No sentinel: an unknown entity type is a contract violation.
type EntityType string

const (
	EntityAction       EntityType = "action"
	EntityConversation EntityType = "conversation"
	EntityMessage      EntityType = "message"
	EntityProfile      EntityType = "profile"
)

func ValidEntityType(t string) bool {
	switch EntityType(t) {
	case EntityAction, EntityConversation, EntityMessage, EntityProfile:
		return true
	}
	return false
}

// Operation names the kind of entity change. No sentinel.
type Operation string

const (
	OpCreated Operation = "created"
	OpUpdated Operation = "updated"
	OpDeleted Operation = "deleted"
)

func ValidOperation(o string) bool {
	switch Operation(o) {
	case OpCreated, OpUpdated, OpDeleted:
		return true
	}
	return false
}

type QuestionType string

const (
	QuestionScope    QuestionType = "scope"
	QuestionTimeline QuestionType = "timeline"
	QuestionPriority QuestionType = "priority"
	QuestionBlocker  QuestionType = "blocker"
	QuestionOther    QuestionType = "other"
)

func (q QuestionType) Valid() bool {
	switch q {
	case QuestionScope, QuestionTimeline, QuestionPriority, QuestionBlocker, QuestionOther:
		return true
	}
	return false
}

type UIBlockType string

const (
	UIBlockCaptureList     UIBlockType = "capture_list"
	UIBlockBreakdownSteps  UIBlockType = "breakdown_steps"
	UIBlockCoachingMessage UIBlockType = "coaching_message"
	UIBlockInsightCard     UIBlockType = "insight_card"
	UIBlockQuestionPrompt  UIBlockType = "question_prompt"
	UIBlockCommandResult   UIBlockType = "command_result"
)

func ValidUIBlockType(t string) bool {
	switch UIBlockType(t) {
	case UIBlockCaptureList, UIBlockBreakdownSteps, UIBlockCoachingMessage,
		UIBlockInsightCard, UIBlockQuestionPrompt, UIBlockCommandResult:
		return true
	}
	return false
}

// TaxonomyLabels is the 7-layer classification attached to a capture.
type TaxonomyLabels struct {
	IntentLayer      IntentLayer      `json:"intent_layer"`
	SurvivalFunction SurvivalFunction `json:"survival_function"`
	CognitiveLoad    CognitiveLoad    `json:"cognitive_load"`
	TimeHorizon      TimeHorizon      `json:"time_horizon"`
	AgencyLevel      AgencyLevel      `json:"agency_level"`
	PsychSource      PsychSource      `json:"psych_source"`
	SystemRole       SystemRole       `json:"system_role"`
}

// Magnitude is the inferred scope and complexity of a capture.
type Magnitude struct {
	Scope        Scope   `json:"scope"`
	Complexity   int     `json:"complexity"`
	Dependencies int     `json:"dependencies"`
	Uncertainty  float64 `json:"uncertainty"`
}

// StateInference is the inferred current state of a capture.
type StateInference struct {
	Stage          Stage       `json:"stage"`
	Bottleneck     string      `json:"bottleneck,omitempty"`
	EnergyRequired EnergyLevel `json:"energy_required"`
}

// Capture is a candidate unit of commitment extracted from user input.
type Capture struct {
	ID               string          `json:"id"`
	Type             CaptureType     `json:"type"`
	Title            string          `json:"title"`
	RawSegment       string          `json:"raw_segment"`
	EstimatedMinutes int             `json:"estimated_minutes"`
	AvoidanceWeight  int             `json:"avoidance_weight"`
	Confidence       float64         `json:"confidence"`
	Ambiguities      []string        `json:"ambiguities,omitempty"`
	Labels           *TaxonomyLabels `json:"labels,omitempty"`
	Magnitude        *Magnitude      `json:"magnitude,omitempty"`
	State            *StateInference `json:"state,omitempty"`
	NeedsBreakdown   bool            `json:"needs_breakdown"`
}

// AtomicTask is a decomposed micro-step, optionally linked to a parent capture.
type AtomicTask struct {
	ID               string      `json:"id"`
	ParentCaptureID  string      `json:"parent_capture_id,omitempty"`
	Verb             string      `json:"verb"`
	Object           string      `json:"object"`
	FullDescription  string      `json:"full_description,omitempty"`
	DefinitionOfDone string      `json:"definition_of_done,omitempty"`
	EstimatedMinutes int         `json:"estimated_minutes"`
	EnergyLevel      EnergyLevel `json:"energy_level"`
	Prerequisites    []string    `json:"prerequisites,omitempty"`
	IsFirstAction    bool        `json:"is_first_action"`
	IsPhysical       bool        `json:"is_physical"`
}

// StateUpdate is an instruction to mutate a pre-existing entity. Exactly one
// of EntityID and TempID is set; TempID refers to an entity created earlier
// in the same turn's update list.
type StateUpdate struct {
	EntityType EntityType     `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	TempID     string         `json:"temp_id,omitempty"`
	Operation  Operation      `json:"operation"`
	Changes    map[string]any `json:"changes,omitempty"`
}

type ClarificationQuestion struct {
	ID               string       `json:"id"`
	Question         string       `json:"question"`
	TargetCaptureID  string       `json:"target_capture_id"`
	QuestionType     QuestionType `json:"question_type"`
	SuggestedAnswers []string     `json:"suggested_answers,omitempty"`
}

// Insight is a detected psychological pattern.
type Insight struct {
	PatternName       string  `json:"pattern_name"`
	Description       string  `json:"description"`
	SuggestedStrategy string  `json:"suggested_strategy"`
	Confidence        float64 `json:"confidence"`
}

type CommandResult struct {
	Command string         `json:"command"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

type UIBlock struct {
	Type     UIBlockType    `json:"type"`
	Data     map[string]any `json:"data,omitempty"`
	Priority int            `json:"priority"`
}

type IntentClassification struct {
	Type       IntentType `json:"type"`
	Confidence float64    `json:"confidence"`
	Reasoning  string     `json:"reasoning,omitempty"`
}

type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// TurnProvenance describes which model and prompts produced a turn's output.
type TurnProvenance struct {
	ModelID          string            `json:"model_id,omitempty"`
	PromptVersions   map[string]string `json:"prompt_versions,omitempty"`
	ProcessingTimeMS int               `json:"processing_time_ms"`
	TokenUsage       *TokenUsage       `json:"token_usage,omitempty"`
}

// AgentOutput is the payload bundle of one model turn.
type AgentOutput struct {
	RawInput            string                  `json:"raw_input"`
	Captures            []Capture               `json:"captures,omitempty"`
	AtomicTasks         []AtomicTask            `json:"atomic_tasks,omitempty"`
	StateUpdates        []StateUpdate           `json:"state_updates,omitempty"`
	Questions           []ClarificationQuestion `json:"questions,omitempty"`
	Insights            []Insight               `json:"insights,omitempty"`
	CoachingMessage     string                  `json:"coaching_message,omitempty"`
	CommandResult       *CommandResult          `json:"command_result,omitempty"`
	UserFacingSummary   string                  `json:"user_facing_summary,omitempty"`
	UIBlocks            []UIBlock               `json:"ui_blocks,omitempty"`
	OverallConfidence   float64                 `json:"overall_confidence"`
	CognitiveLoad       CognitiveLoad           `json:"cognitive_load"`
	NeedsScaffolding    bool                    `json:"needs_scaffolding"`
	ScaffoldingQuestion string                  `json:"scaffolding_question,omitempty"`
}

// AgentOutputContract is the validated shape of one model turn. Immutable
// once recorded.
type AgentOutputContract struct {
	ContractVersion string               `json:"contract_version"`
	RequestID       string               `json:"request_id"`
	TraceID         string               `json:"trace_id,omitempty"`
	Timestamp       time.Time            `json:"timestamp"`
	Intent          IntentClassification `json:"intent"`
	Output          AgentOutput          `json:"output"`
	Provenance      *TurnProvenance      `json:"provenance,omitempty"`
}

// PrimaryPromptVersion returns the prompt version for the lexically first
// prompt name in the provenance map, or empty when none was recorded. The
// ordering keeps the choice deterministic across turns.
func (c *AgentOutputContract) PrimaryPromptVersion() string {
	if c.Provenance == nil || len(c.Provenance.PromptVersions) == 0 {
		return ""
	}
	keys := make([]string, 0, len(c.Provenance.PromptVersions))
	for k := range c.Provenance.PromptVersions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return c.Provenance.PromptVersions[keys[0]]
}
