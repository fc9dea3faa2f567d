package service

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/nuance-hq/cortex/internal/domain"
)

// NaturalKey derives the idempotency key for a ledger row. The key combines
// the object type, its highest-priority source identifier (conversation over
// action over message) and an optional content discriminator, hashed so that
// re-processing the same source collapses onto one row while distinct facts
// from the same source stay distinct. Without any source identifier the key
// is nil and the row is never deduplicated.
func NaturalKey(t domain.KnowledgeObjectType, src domain.SourceRef, discriminator string) *string {
	var source string
	switch {
	case src.ConversationID != "":
		source = "conv:" + src.ConversationID
	case src.ActionID != "":
		source = "action:" + src.ActionID
	case src.MessageID != "":
		source = "msg:" + src.MessageID
	default:
		return nil
	}

	parts := []string{string(t), source}
	if d := normalizeDiscriminator(discriminator); d != "" {
		parts = append(parts, d)
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	key := hex.EncodeToString(sum[:])[:32]
	return &key
}

// normalizeDiscriminator makes content-derived discriminators stable across
// trivial formatting differences: case, surrounding whitespace and internal
// whitespace runs.
func normalizeDiscriminator(d string) string {
	return strings.Join(strings.Fields(strings.ToLower(d)), " ")
}
