package dto

import (
	"github.com/a1davida1/DomainEmpire-sub003/internal/review"
)

// ActorRequest identifies who performs an editorial action. Identity is
// asserted by the caller; authentication lives at the edge, not here.
type ActorRequest struct {
	ActorID   string `json:"actor_id" binding:"required"`
	ActorRole string `json:"actor_role" binding:"required"`
}

type SubmitReviewRequest struct {
	ActorRequest
}

// ApproveRequest carries the rationale and its structured details the
// audit ledger records alongside the approval.
type ApproveRequest struct {
	ActorRequest
	Rationale string `json:"rationale"`
	Details   struct {
		Summary           string   `json:"summary"`
		EvidenceQuality   string   `json:"evidence_quality"`
		RiskLevel         string   `json:"risk_level"`
		ConfidenceScore   float64  `json:"confidence_score"`
		IssueCodes        []string `json:"issue_codes"`
		ChecklistVerified bool     `json:"checklist_verified"`
		SourcesVerified   bool     `json:"sources_verified"`
	} `json:"details"`
}

type RejectRequest struct {
	ActorRequest
	Rationale string `json:"rationale" binding:"required"`
}

type PublishRequest struct {
	ActorRequest
}

type ArchiveRequest struct {
	ActorRequest
	Reason string `json:"reason"`
}

type SignoffRequest struct {
	ActorRequest
	Rationale string `json:"rationale"`
}

type CommentRequest struct {
	ActorRequest
	Text string `json:"text" binding:"required"`
}

type QASubmitRequest struct {
	ActorRequest
	TemplateID string                       `json:"template_id" binding:"required"`
	Items      map[string]review.ItemResult `json:"items" binding:"required"`
	Evidence   map[string]review.Evidence   `json:"evidence"`
}

// ErrorResponse is the typed failure surface. Guard is set on policy
// violations; the QA fields are set on checklist validation failures.
type ErrorResponse struct {
	Error           string   `json:"error"`
	Guard           string   `json:"guard,omitempty"`
	Detail          string   `json:"detail,omitempty"`
	MissingItems    []string `json:"missing_items,omitempty"`
	MissingEvidence []string `json:"missing_evidence,omitempty"`
}
