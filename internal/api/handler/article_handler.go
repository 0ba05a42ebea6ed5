package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/a1davida1/DomainEmpire-sub003/internal/api/dto"
	"github.com/a1davida1/DomainEmpire-sub003/internal/content"
	"github.com/a1davida1/DomainEmpire-sub003/internal/review"
)

// ArticleHandler handles editorial state-machine HTTP requests
type ArticleHandler struct {
	logger   *slog.Logger
	articles content.Store
	reviews  *review.Service
	qa       *review.QAEngine
}

// NewArticleHandler creates a new ArticleHandler instance
func NewArticleHandler(deps *Dependencies) *ArticleHandler {
	return &ArticleHandler{
		logger:   deps.Logger,
		articles: deps.Articles,
		reviews:  deps.Reviews,
		qa:       deps.QA,
	}
}

func actorFrom(req dto.ActorRequest) (review.Actor, bool) {
	role := review.Role(req.ActorRole)
	if !role.Valid() {
		return review.Actor{}, false
	}
	return review.Actor{ID: req.ActorID, Role: role}, true
}

// writeReviewError maps the review package's typed errors onto the
// HTTP surface: policy violations name the unmet guard, QA validation
// failures name the missing items, conflicts stay conflicts.
func (h *ArticleHandler) writeReviewError(c *gin.Context, err error) {
	var pv *review.PolicyViolationError
	if errors.As(err, &pv) {
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error:  "transition not permitted",
			Guard:  pv.Guard,
			Detail: pv.Detail,
		})
		return
	}

	var qv *review.QAValidationError
	if errors.As(err, &qv) {
		c.JSON(http.StatusUnprocessableEntity, dto.ErrorResponse{
			Error:           "checklist validation failed",
			MissingItems:    qv.MissingItems,
			MissingEvidence: qv.MissingEvidence,
		})
		return
	}

	switch {
	case errors.Is(err, content.ErrArticleNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "article not found"})
	case errors.Is(err, content.ErrStatusConflict):
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: "article status changed concurrently"})
	case errors.Is(err, review.ErrRationaleRequired):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "rationale is required"})
	case errors.Is(err, review.ErrUnknownTemplate):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "unknown checklist template", Detail: err.Error()})
	default:
		h.logger.Error("Editorial operation failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error"})
	}
}

// GetArticle handles GET /api/v1/articles/:article_id
func (h *ArticleHandler) GetArticle(c *gin.Context) {
	article, err := h.articles.GetByID(c.Request.Context(), c.Param("article_id"))
	if err != nil {
		h.writeReviewError(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

// SubmitForReview handles POST /api/v1/articles/:article_id/submit-review
func (h *ArticleHandler) SubmitForReview(c *gin.Context) {
	var req dto.SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body", Detail: err.Error()})
		return
	}
	actor, ok := actorFrom(req.ActorRequest)
	if !ok {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "unknown actor_role", Detail: req.ActorRole})
		return
	}

	article, err := h.reviews.SubmitForReview(c.Request.Context(), c.Param("article_id"), actor)
	if err != nil {
		h.writeReviewError(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

// Approve handles POST /api/v1/articles/:article_id/approve
func (h *ArticleHandler) Approve(c *gin.Context) {
	var req dto.ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body", Detail: err.Error()})
		return
	}
	actor, ok := actorFrom(req.ActorRequest)
	if !ok {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "unknown actor_role", Detail: req.ActorRole})
		return
	}

	details := review.ApprovalDetails{
		Summary:           req.Details.Summary,
		EvidenceQuality:   req.Details.EvidenceQuality,
		RiskLevel:         req.Details.RiskLevel,
		ConfidenceScore:   req.Details.ConfidenceScore,
		IssueCodes:        req.Details.IssueCodes,
		ChecklistVerified: req.Details.ChecklistVerified,
		SourcesVerified:   req.Details.SourcesVerified,
	}

	article, err := h.reviews.Approve(c.Request.Context(), c.Param("article_id"), actor, req.Rationale, details)
	if err != nil {
		h.writeReviewError(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

// Reject handles POST /api/v1/articles/:article_id/reject
func (h *ArticleHandler) Reject(c *gin.Context) {
	var req dto.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body", Detail: err.Error()})
		return
	}
	actor, ok := actorFrom(req.ActorRequest)
	if !ok {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "unknown actor_role", Detail: req.ActorRole})
		return
	}

	article, err := h.reviews.Reject(c.Request.Context(), c.Param("article_id"), actor, req.Rationale)
	if err != nil {
		h.writeReviewError(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

// Publish handles POST /api/v1/articles/:article_id/publish
func (h *ArticleHandler) Publish(c *gin.Context) {
	var req dto.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body", Detail: err.Error()})
		return
	}
	actor, ok := actorFrom(req.ActorRequest)
	if !ok {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "unknown actor_role", Detail: req.ActorRole})
		return
	}

	article, err := h.reviews.Publish(c.Request.Context(), c.Param("article_id"), actor, false)
	if err != nil {
		h.writeReviewError(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

// Archive handles POST /api/v1/articles/:article_id/archive
func (h *ArticleHandler) Archive(c *gin.Context) {
	var req dto.ArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body", Detail: err.Error()})
		return
	}
	actor, ok := actorFrom(req.ActorRequest)
	if !ok {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "unknown actor_role", Detail: req.ActorRole})
		return
	}

	article, err := h.reviews.Archive(c.Request.Context(), c.Param("article_id"), actor, req.Reason)
	if err != nil {
		h.writeReviewError(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

// ExpertSignoff handles POST /api/v1/articles/:article_id/expert-signoff
func (h *ArticleHandler) ExpertSignoff(c *gin.Context) {
	var req dto.SignoffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body", Detail: err.Error()})
		return
	}
	actor, ok := actorFrom(req.ActorRequest)
	if !ok {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "unknown actor_role", Detail: req.ActorRole})
		return
	}

	if err := h.reviews.RecordExpertSignoff(c.Request.Context(), c.Param("article_id"), actor, req.Rationale); err != nil {
		h.writeReviewError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recorded": true})
}

// Comment handles POST /api/v1/articles/:article_id/comments
func (h *ArticleHandler) Comment(c *gin.Context) {
	var req dto.CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body", Detail: err.Error()})
		return
	}
	actor, ok := actorFrom(req.ActorRequest)
	if !ok {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "unknown actor_role", Detail: req.ActorRole})
		return
	}

	if err := h.reviews.Comment(c.Request.Context(), c.Param("article_id"), actor, req.Text); err != nil {
		h.writeReviewError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"recorded": true})
}

// SubmitQA handles POST /api/v1/articles/:article_id/qa
func (h *ArticleHandler) SubmitQA(c *gin.Context) {
	var req dto.QASubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body", Detail: err.Error()})
		return
	}
	actor, ok := actorFrom(req.ActorRequest)
	if !ok {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "unknown actor_role", Detail: req.ActorRole})
		return
	}

	result, err := h.qa.Submit(c.Request.Context(), c.Param("article_id"), req.TemplateID, actor, req.Items, req.Evidence)
	if err != nil {
		h.writeReviewError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListEvents handles GET /api/v1/articles/:article_id/events
func (h *ArticleHandler) ListEvents(c *gin.Context) {
	filter := review.EventFilter{Type: review.EventType(c.Query("type"))}

	events, err := h.reviews.Events(c.Request.Context(), c.Param("article_id"), filter)
	if err != nil {
		h.writeReviewError(c, err)
		return
	}
	if events == nil {
		events = []review.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
