package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/a1davida1/DomainEmpire-sub003/shared/postgresql"
	"github.com/a1davida1/DomainEmpire-sub003/shared/rabbitmq"
)

// HealthHandler reports service and dependency health
type HealthHandler struct {
	logger       *slog.Logger
	dbClient     *postgresql.Client
	rabbitClient *rabbitmq.Client
}

func NewHealthHandler(deps *Dependencies) *HealthHandler {
	return &HealthHandler{
		logger:       deps.Logger,
		dbClient:     deps.DBClient,
		rabbitClient: deps.RabbitClient,
	}
}

// Health handles GET /health. The response carries a point-in-time
// snapshot of the connection pool so operators can see saturation
// without a separate metrics endpoint.
func (h *HealthHandler) Health(c *gin.Context) {
	resp := gin.H{
		"status":  "healthy",
		"service": "content-pipeline-api",
	}
	status := http.StatusOK

	if h.dbClient != nil {
		if err := h.dbClient.HealthCheck(c.Request.Context()); err != nil {
			h.logger.Error("Database health check failed", slog.Any("error", err))
			resp["status"] = "unhealthy"
			resp["database"] = gin.H{"healthy": false, "error": err.Error()}
			status = http.StatusServiceUnavailable
		} else {
			resp["database"] = gin.H{"healthy": true, "pool": h.dbClient.Metrics()}
		}
	}

	if h.rabbitClient != nil {
		resp["rabbitmq"] = gin.H{"connected": h.rabbitClient.IsConnected()}
	}

	c.JSON(status, resp)
}
