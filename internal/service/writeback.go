package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nuance-hq/cortex/internal/domain"
	"go.uber.org/zap"
)

// WritebackResult summarizes one turn's fan-out into the ledger. Failures are
// collected per fact; a failed write never blocks sibling writes.
type WritebackResult struct {
	Written  int      `json:"written"`
	Inserted int      `json:"inserted"`
	Replaced int      `json:"replaced"`
	Retained int      `json:"retained"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// WritebackService fans a validated turn out into knowledge objects: taxonomy
// labels, state snapshots, goal/plan/habit captures, task breakdowns,
// insights and coaching notes, each written independently.
type WritebackService struct {
	knowledgeStore domain.KnowledgeStore
	logger         *zap.Logger
}

func NewWritebackService(ks domain.KnowledgeStore, logger *zap.Logger) *WritebackService {
	return &WritebackService{knowledgeStore: ks, logger: logger}
}

var captureKnowledgeType = map[domain.CaptureType]domain.KnowledgeObjectType{
	domain.CaptureGoal:  domain.KnowledgeGoal,
	domain.CapturePlan:  domain.KnowledgePlan,
	domain.CaptureHabit: domain.KnowledgeHabit,
}

// Writeback derives and upserts every knowledge object a turn produced.
// The returned error is non-nil only when the whole fan-out could not run;
// per-fact failures land in the result.
func (s *WritebackService) Writeback(ctx context.Context, userID uuid.UUID, c *domain.AgentOutputContract, src domain.SourceRef, refresh bool) *WritebackResult {
	result := &WritebackResult{}
	out := &c.Output

	for i := range out.Captures {
		cp := &out.Captures[i]

		if cp.Labels != nil {
			s.write(ctx, result, s.newObject(userID, c, src, domain.KnowledgeTaxonomyLabel,
				cp.Title, cp.Confidence, captureImportance(cp), map[string]any{
					"capture_id":        cp.ID,
					"capture_type":      string(cp.Type),
					"title":             cp.Title,
					"intent_layer":      string(cp.Labels.IntentLayer),
					"survival_function": string(cp.Labels.SurvivalFunction),
					"cognitive_load":    string(cp.Labels.CognitiveLoad),
					"time_horizon":      string(cp.Labels.TimeHorizon),
					"agency_level":      string(cp.Labels.AgencyLevel),
					"psych_source":      string(cp.Labels.PsychSource),
					"system_role":       string(cp.Labels.SystemRole),
				}), c.Timestamp, refresh)
		}

		if cp.State != nil {
			s.write(ctx, result, s.newObject(userID, c, src, domain.KnowledgeStateSnapshot,
				cp.Title, cp.Confidence, captureImportance(cp), map[string]any{
					"capture_id":      cp.ID,
					"title":           cp.Title,
					"stage":           string(cp.State.Stage),
					"bottleneck":      cp.State.Bottleneck,
					"energy_required": string(cp.State.EnergyRequired),
				}), c.Timestamp, refresh)
		}

		if koType, ok := captureKnowledgeType[cp.Type]; ok {
			payload := map[string]any{
				"capture_id":        cp.ID,
				"title":             cp.Title,
				"raw_segment":       cp.RawSegment,
				"estimated_minutes": cp.EstimatedMinutes,
				"avoidance_weight":  cp.AvoidanceWeight,
				"needs_breakdown":   cp.NeedsBreakdown,
			}
			if len(cp.Ambiguities) > 0 {
				payload["ambiguities"] = cp.Ambiguities
			}
			s.write(ctx, result, s.newObject(userID, c, src, koType,
				cp.Title, cp.Confidence, captureImportance(cp), payload), c.Timestamp, refresh)
		}
	}

	for parentID, tasks := range groupTasksByParent(out.AtomicTasks) {
		steps := make([]map[string]any, 0, len(tasks))
		for _, t := range tasks {
			steps = append(steps, map[string]any{
				"task_id":            t.ID,
				"verb":               t.Verb,
				"object":             t.Object,
				"full_description":   t.FullDescription,
				"definition_of_done": t.DefinitionOfDone,
				"estimated_minutes":  t.EstimatedMinutes,
				"energy_level":       string(t.EnergyLevel),
				"is_first_action":    t.IsFirstAction,
				"is_physical":        t.IsPhysical,
			})
		}
		s.write(ctx, result, s.newObject(userID, c, src, domain.KnowledgeBreakdown,
			parentID, out.OverallConfidence, breakdownImportance(len(tasks)), map[string]any{
				"parent_capture_id": parentID,
				"steps":             steps,
			}), c.Timestamp, refresh)
	}

	for i := range out.Insights {
		ins := &out.Insights[i]
		s.write(ctx, result, s.newObject(userID, c, src, domain.KnowledgeInsight,
			ins.PatternName, ins.Confidence, insightImportance(ins), map[string]any{
				"pattern_name":       ins.PatternName,
				"description":        ins.Description,
				"suggested_strategy": ins.SuggestedStrategy,
			}), c.Timestamp, refresh)
	}

	if out.CoachingMessage != "" {
		s.write(ctx, result, s.newObject(userID, c, src, domain.KnowledgeCoachingNote,
			"", out.OverallConfidence, 50, map[string]any{
				"message":           out.CoachingMessage,
				"cognitive_load":    string(out.CognitiveLoad),
				"needs_scaffolding": out.NeedsScaffolding,
			}), c.Timestamp, refresh)
	}

	return result
}

func (s *WritebackService) newObject(userID uuid.UUID, c *domain.AgentOutputContract, src domain.SourceRef, t domain.KnowledgeObjectType, discriminator string, confidence float64, importance int, payload map[string]any) *domain.KnowledgeObject {
	obj := &domain.KnowledgeObject{
		UserID:     userID,
		Type:       t,
		Payload:    payload,
		Confidence: confidence,
		Importance: importance,
		NaturalKey: NaturalKey(t, src, discriminator),
		RequestID:  &c.RequestID,
	}
	if src.MessageID != "" {
		obj.SourceMessageID = &src.MessageID
	}
	if src.ConversationID != "" {
		obj.SourceConversationID = &src.ConversationID
	}
	if src.ActionID != "" {
		obj.SourceActionID = &src.ActionID
	}
	if c.Provenance != nil && c.Provenance.ModelID != "" {
		obj.ModelID = &c.Provenance.ModelID
	}
	if pv := c.PrimaryPromptVersion(); pv != "" {
		obj.PromptVersion = &pv
	}
	return obj
}

func (s *WritebackService) write(ctx context.Context, result *WritebackResult, obj *domain.KnowledgeObject, turnAt time.Time, refresh bool) {
	outcome, err := s.knowledgeStore.Upsert(ctx, obj, turnAt, refresh)
	if err != nil {
		result.Failed++
		result.Errors = append(result.Errors, string(obj.Type)+": "+err.Error())
		s.logger.Warn("knowledge writeback failed",
			zap.String("type", string(obj.Type)),
			zap.Error(err))
		return
	}

	result.Written++
	switch outcome {
	case domain.UpsertInserted:
		result.Inserted++
	case domain.UpsertReplaced:
		result.Replaced++
	case domain.UpsertRetained:
		result.Retained++
	}
}

// groupTasksByParent buckets atomic tasks under their parent capture id.
// Orphan tasks share a synthetic bucket so a breakdown object still exists
// for them.
func groupTasksByParent(tasks []domain.AtomicTask) map[string][]domain.AtomicTask {
	if len(tasks) == 0 {
		return nil
	}
	groups := make(map[string][]domain.AtomicTask)
	for _, t := range tasks {
		parent := t.ParentCaptureID
		if parent == "" {
			parent = "unparented"
		}
		groups[parent] = append(groups[parent], t)
	}
	return groups
}

// captureImportance scores a capture: a baseline of 50 pushed up by avoidance
// weight, uncertainty and the need for scaffolding, capped at 100. Higher
// avoidance means the fact matters more to surface later.
func captureImportance(cp *domain.Capture) int {
	importance := 50
	importance += (cp.AvoidanceWeight - 1) * 10
	importance += int((1 - cp.Confidence) * 20)
	if cp.NeedsBreakdown {
		importance += 10
	}
	if importance > 100 {
		importance = 100
	}
	return importance
}

func breakdownImportance(steps int) int {
	importance := 60 + steps*5
	if importance > 100 {
		importance = 100
	}
	return importance
}

func insightImportance(ins *domain.Insight) int {
	importance := 40 + int(ins.Confidence*40)
	if importance > 100 {
		importance = 100
	}
	return importance
}
