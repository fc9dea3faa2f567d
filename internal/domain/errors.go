package domain

import "fmt"

// ContractViolation rejects a whole turn (or a single derived fact) and
// names the offending field path. Nothing from a violating turn is persisted
// except its provenance record.
type ContractViolation struct {
	Path   string
	Reason string
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("contract violation at %s: %s", e.Path, e.Reason)
}

// UnresolvedReference marks a single state update whose target entity could
// not be resolved. It skips that update only; sibling updates still apply.
type UnresolvedReference struct {
	Index      int
	EntityType EntityType
	Ref        string
	Reason     string
}

func (e *UnresolvedReference) Error() string {
	return fmt.Sprintf("unresolved reference at state_updates[%d] (%s %q): %s",
		e.Index, e.EntityType, e.Ref, e.Reason)
}
