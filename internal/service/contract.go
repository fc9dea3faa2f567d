package service

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nuance-hq/cortex/internal/domain"
	"go.uber.org/zap"
)

var semverRe = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// ContractService validates untrusted model output against the agent output
// contract. A turn is either fully normalized or fully rejected: no single
// capture or update is silently dropped from a malformed turn.
type ContractService struct {
	logger *zap.Logger
}

func NewContractService(logger *zap.Logger) *ContractService {
	return &ContractService{logger: logger}
}

// Parse unmarshals and validates one raw model turn. On success the returned
// contract is normalized: missing ids are minted, zero timestamps are set to
// now, and taxonomy enums outside their closed set are coerced to unknown.
// On failure the error is a *domain.ContractViolation naming the offending
// field path.
func (s *ContractService) Parse(raw []byte) (*domain.AgentOutputContract, error) {
	var c domain.AgentOutputContract
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, &domain.ContractViolation{Path: "$", Reason: "malformed json: " + err.Error()}
	}

	if err := s.normalize(&c); err != nil {
		s.logger.Warn("contract rejected",
			zap.String("request_id", c.RequestID),
			zap.Error(err))
		return nil, err
	}
	return &c, nil
}

func (s *ContractService) normalize(c *domain.AgentOutputContract) error {
	if c.ContractVersion == "" {
		c.ContractVersion = domain.ContractVersion
	} else if !semverRe.MatchString(c.ContractVersion) {
		return &domain.ContractViolation{Path: "contract_version", Reason: "not a semantic version"}
	}
	if c.RequestID == "" {
		c.RequestID = "req_" + shortID()
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}

	if !domain.ValidIntentType(string(c.Intent.Type)) {
		return &domain.ContractViolation{Path: "intent.type", Reason: "unknown intent type"}
	}
	if err := boundUnit(c.Intent.Confidence, "intent.confidence"); err != nil {
		return err
	}

	out := &c.Output
	if err := boundUnit(out.OverallConfidence, "output.overall_confidence"); err != nil {
		return err
	}
	out.CognitiveLoad = coerceCognitiveLoad(out.CognitiveLoad)

	captureIDs := make(map[string]bool, len(out.Captures))
	for i := range out.Captures {
		if err := normalizeCapture(&out.Captures[i], i); err != nil {
			return err
		}
		captureIDs[out.Captures[i].ID] = true
	}

	for i := range out.AtomicTasks {
		if err := normalizeTask(&out.AtomicTasks[i], i, captureIDs); err != nil {
			return err
		}
	}

	for i := range out.StateUpdates {
		if err := validateStateUpdate(&out.StateUpdates[i], i); err != nil {
			return err
		}
	}

	for i := range out.Questions {
		q := &out.Questions[i]
		path := fmt.Sprintf("output.questions[%d]", i)
		if q.Question == "" {
			return &domain.ContractViolation{Path: path + ".question", Reason: "required"}
		}
		if q.ID == "" {
			q.ID = "q_" + shortID()
		}
		if !q.QuestionType.Valid() {
			q.QuestionType = domain.QuestionOther
		}
	}

	for i := range out.Insights {
		ins := &out.Insights[i]
		path := fmt.Sprintf("output.insights[%d]", i)
		if ins.PatternName == "" {
			return &domain.ContractViolation{Path: path + ".pattern_name", Reason: "required"}
		}
		if err := boundUnit(ins.Confidence, path+".confidence"); err != nil {
			return err
		}
	}

	if out.CommandResult != nil && out.CommandResult.Command == "" {
		return &domain.ContractViolation{Path: "output.command_result.command", Reason: "required"}
	}

	for i := range out.UIBlocks {
		if !domain.ValidUIBlockType(string(out.UIBlocks[i].Type)) {
			return &domain.ContractViolation{
				Path:   fmt.Sprintf("output.ui_blocks[%d].type", i),
				Reason: "unknown ui block type",
			}
		}
	}

	return nil
}

func normalizeCapture(c *domain.Capture, i int) error {
	path := fmt.Sprintf("output.captures[%d]", i)

	if !domain.ValidCaptureType(string(c.Type)) {
		return &domain.ContractViolation{Path: path + ".type", Reason: "unknown capture type"}
	}
	if c.Title == "" {
		return &domain.ContractViolation{Path: path + ".title", Reason: "required"}
	}
	if c.RawSegment == "" {
		return &domain.ContractViolation{Path: path + ".raw_segment", Reason: "required"}
	}
	if c.ID == "" {
		c.ID = "cap_" + shortID()
	}
	if c.EstimatedMinutes < 0 {
		return &domain.ContractViolation{Path: path + ".estimated_minutes", Reason: "must be >= 0"}
	}
	if c.AvoidanceWeight < 1 || c.AvoidanceWeight > 5 {
		return &domain.ContractViolation{Path: path + ".avoidance_weight", Reason: "must be within [1, 5]"}
	}
	if err := boundUnit(c.Confidence, path+".confidence"); err != nil {
		return err
	}

	if c.Labels != nil {
		coerceLabels(c.Labels)
	}
	if c.Magnitude != nil {
		m := c.Magnitude
		if !domain.ValidScope(string(m.Scope)) {
			return &domain.ContractViolation{Path: path + ".magnitude.scope", Reason: "unknown scope"}
		}
		if m.Complexity < 1 || m.Complexity > 5 {
			return &domain.ContractViolation{Path: path + ".magnitude.complexity", Reason: "must be within [1, 5]"}
		}
		if m.Dependencies < 0 {
			return &domain.ContractViolation{Path: path + ".magnitude.dependencies", Reason: "must be >= 0"}
		}
		if err := boundUnit(m.Uncertainty, path+".magnitude.uncertainty"); err != nil {
			return err
		}
	}
	if c.State != nil {
		if !c.State.Stage.Valid() {
			c.State.Stage = domain.StageUnknown
		}
		if !c.State.EnergyRequired.Valid() {
			c.State.EnergyRequired = domain.EnergyUnknown
		}
	}
	return nil
}

func normalizeTask(t *domain.AtomicTask, i int, captureIDs map[string]bool) error {
	path := fmt.Sprintf("output.atomic_tasks[%d]", i)

	if t.Verb == "" {
		return &domain.ContractViolation{Path: path + ".verb", Reason: "required"}
	}
	if t.Object == "" {
		return &domain.ContractViolation{Path: path + ".object", Reason: "required"}
	}
	if t.ID == "" {
		t.ID = "task_" + shortID()
	}
	if t.EstimatedMinutes < 1 || t.EstimatedMinutes > 30 {
		return &domain.ContractViolation{Path: path + ".estimated_minutes", Reason: "must be within [1, 30]"}
	}
	if !t.EnergyLevel.Valid() {
		t.EnergyLevel = domain.EnergyUnknown
	}
	if t.ParentCaptureID != "" && !captureIDs[t.ParentCaptureID] {
		return &domain.ContractViolation{
			Path:   path + ".parent_capture_id",
			Reason: "does not reference a capture in this turn",
		}
	}
	return nil
}

func validateStateUpdate(u *domain.StateUpdate, i int) error {
	path := fmt.Sprintf("output.state_updates[%d]", i)

	if !domain.ValidEntityType(string(u.EntityType)) {
		return &domain.ContractViolation{Path: path + ".entity_type", Reason: "unknown entity type"}
	}
	if !domain.ValidOperation(string(u.Operation)) {
		return &domain.ContractViolation{Path: path + ".operation", Reason: "unknown operation"}
	}
	hasEntity := u.EntityID != ""
	hasTemp := u.TempID != ""
	if hasEntity == hasTemp {
		return &domain.ContractViolation{
			Path:   path,
			Reason: "exactly one of entity_id and temp_id is required",
		}
	}
	switch u.Operation {
	case domain.OpUpdated:
		if len(u.Changes) == 0 {
			return &domain.ContractViolation{Path: path + ".changes", Reason: "required for updated"}
		}
	case domain.OpDeleted:
		// Changes carry no meaning on delete; drop them so downstream
		// consumers never act on them.
		u.Changes = nil
	}
	return nil
}

func coerceLabels(l *domain.TaxonomyLabels) {
	if !l.IntentLayer.Valid() {
		l.IntentLayer = domain.IntentLayerUnknown
	}
	if !l.SurvivalFunction.Valid() {
		l.SurvivalFunction = domain.SurvivalUnknown
	}
	if !l.CognitiveLoad.Valid() {
		l.CognitiveLoad = domain.CognitiveLoadUnknown
	}
	if !l.TimeHorizon.Valid() {
		l.TimeHorizon = domain.HorizonUnknown
	}
	if !l.AgencyLevel.Valid() {
		l.AgencyLevel = domain.AgencyUnknown
	}
	if !l.PsychSource.Valid() {
		l.PsychSource = domain.PsychUnknown
	}
	if !l.SystemRole.Valid() {
		l.SystemRole = domain.RoleUnknown
	}
}

func coerceCognitiveLoad(c domain.CognitiveLoad) domain.CognitiveLoad {
	if !c.Valid() {
		return domain.CognitiveLoadUnknown
	}
	return c
}

func boundUnit(v float64, path string) error {
	if v < 0 || v > 1 {
		return &domain.ContractViolation{Path: path, Reason: "must be within [0, 1]"}
	}
	return nil
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
