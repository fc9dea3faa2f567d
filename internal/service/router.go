package service

import (
	"github.com/nuance-hq/cortex/internal/domain"
)

// RouteIntent maps a validated contract to its downstream dispatch label.
// Pure and deterministic: identical contracts always route identically. The
// label is used for branching and audit only, never to re-derive facts.
func RouteIntent(c *domain.AgentOutputContract) domain.DispatchLabel {
	out := &c.Output

	// A command result always wins: the turn already executed something and
	// the caller needs the result surfaced.
	if out.CommandResult != nil {
		return domain.DispatchCommand
	}

	// A coaching message with nothing captured is pure coaching, whatever the
	// classifier said.
	if out.CoachingMessage != "" && len(out.Captures) == 0 {
		return domain.DispatchCoaching
	}

	// A capture-classified turn that produced only questions needs the user,
	// not the ledger.
	if c.Intent.Type == domain.IntentCapture && len(out.Captures) == 0 && len(out.Questions) > 0 {
		return domain.DispatchClarify
	}

	switch c.Intent.Type {
	case domain.IntentCoaching:
		return domain.DispatchCoaching
	case domain.IntentCommand:
		return domain.DispatchCommand
	case domain.IntentClarify:
		return domain.DispatchClarify
	default:
		return domain.DispatchCapture
	}
}
