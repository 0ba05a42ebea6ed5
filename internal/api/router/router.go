package router

import (
	"github.com/gin-gonic/gin"

	"github.com/a1davida1/DomainEmpire-sub003/internal/api/handler"
	"github.com/a1davida1/DomainEmpire-sub003/internal/idempotency"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, idem idempotency.Store) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	healthHandler := handler.NewHealthHandler(deps)
	r.GET("/health", healthHandler.Health)

	jobHandler := handler.NewJobHandler(deps)
	articleHandler := handler.NewArticleHandler(deps)

	// API v1 routes; mutations get replay protection when the client
	// supplies an idempotency key.
	v1 := r.Group("/api/v1")
	v1.Use(IdempotencyMiddleware(idem, deps.Logger))
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Enqueue a new job
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job details
			jobs.GET("/:job_id", jobHandler.GetJob)

			// POST /api/v1/jobs/:job_id/cancel - Cancel a job
			jobs.POST("/:job_id/cancel", jobHandler.CancelJob)
		}

		articles := v1.Group("/articles")
		{
			articles.GET("/:article_id", articleHandler.GetArticle)
			articles.GET("/:article_id/events", articleHandler.ListEvents)

			// Editorial state machine transitions
			articles.POST("/:article_id/submit-review", articleHandler.SubmitForReview)
			articles.POST("/:article_id/approve", articleHandler.Approve)
			articles.POST("/:article_id/reject", articleHandler.Reject)
			articles.POST("/:article_id/publish", articleHandler.Publish)
			articles.POST("/:article_id/archive", articleHandler.Archive)

			// Review support
			articles.POST("/:article_id/qa", articleHandler.SubmitQA)
			articles.POST("/:article_id/expert-signoff", articleHandler.ExpertSignoff)
			articles.POST("/:article_id/comments", articleHandler.Comment)
		}
	}

	return r
}
