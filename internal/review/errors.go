package review

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRationaleRequired is returned when a rejection omits its
	// rationale. Rejections without a recorded reason are not auditable.
	ErrRationaleRequired = errors.New("a non-empty rationale is required")

	// ErrUnknownTemplate is returned for a QA submission referencing a
	// checklist template that is not configured.
	ErrUnknownTemplate = errors.New("unknown checklist template")
)

// PolicyViolationError names the specific unmet guard of a refused
// transition. It is never retried; the caller must change the world
// (role, QA result, signoff) before trying again.
type PolicyViolationError struct {
	Guard  string // e.g. "required_role", "qa_checklist", "expert_signoff", "status"
	Detail string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("policy violation (%s): %s", e.Guard, e.Detail)
}

// QAValidationError reports a rejected checklist submission. Nothing is
// persisted when it is returned.
type QAValidationError struct {
	MissingItems    []string // required items absent or unchecked
	MissingEvidence []string // checked items lacking mandated evidence
}

func (e *QAValidationError) Error() string {
	var parts []string
	if len(e.MissingItems) > 0 {
		parts = append(parts, "missing required items: "+strings.Join(e.MissingItems, ", "))
	}
	if len(e.MissingEvidence) > 0 {
		parts = append(parts, "missing evidence for: "+strings.Join(e.MissingEvidence, ", "))
	}
	return "qa checklist validation failed: " + strings.Join(parts, "; ")
}
