package handler

import (
	"log/slog"

	"github.com/a1davida1/DomainEmpire-sub003/internal/content"
	"github.com/a1davida1/DomainEmpire-sub003/internal/queue"
	"github.com/a1davida1/DomainEmpire-sub003/internal/review"
	"github.com/a1davida1/DomainEmpire-sub003/shared/postgresql"
	"github.com/a1davida1/DomainEmpire-sub003/shared/rabbitmq"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	DBClient     *postgresql.Client
	RabbitClient *rabbitmq.Client
	Jobs         queue.Store
	Articles     content.Store
	Reviews      *review.Service
	QA           *review.QAEngine
}
