package insight

import (
	"strings"

	"github.com/google/uuid"
)

// Identifier prefixes used in detection payloads.
const (
	QuestionIDPrefix = "q_"
	ActionIDPrefix   = "a_"
)

// MintQuestionID returns a fresh q_<uuid> identifier.
func MintQuestionID() string {
	return QuestionIDPrefix + uuid.NewString()
}

// MintActionID returns a fresh a_<uuid> identifier.
func MintActionID() string {
	return ActionIDPrefix + uuid.NewString()
}

// ValidID reports whether raw is a well-formed identifier for the given
// prefix, i.e. prefix followed by a parseable UUID.
func ValidID(prefix, raw string) bool {
	if !strings.HasPrefix(raw, prefix) {
		return false
	}
	_, err := uuid.Parse(strings.TrimPrefix(raw, prefix))
	return err == nil
}

// RepairID returns raw unchanged when it is well-formed, otherwise a freshly
// minted identifier. The second return is true when a substitution happened;
// callers log the substitution. Invalid identifiers are never propagated.
func RepairID(prefix, raw string) (string, bool) {
	if ValidID(prefix, raw) {
		return raw, false
	}
	return prefix + uuid.NewString(), true
}

// PrefixFor returns the identifier prefix expected for a detection type.
// Answer detections carry no identifier of their own.
func PrefixFor(t DetectionType) string {
	switch t {
	case DetectionQuestion:
		return QuestionIDPrefix
	case DetectionAction, DetectionActionUpdate:
		return ActionIDPrefix
	}
	return ""
}
