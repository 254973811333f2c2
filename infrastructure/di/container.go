package di

import (
	"go.uber.org/zap"

	"north-backend/infrastructure/config"
	"north-backend/interfaces/http/rest"
	"north-backend/pkg/observability"
)

// Container holds the wired application.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics
	Tracing observability.ShutdownFunc
	Stores  *Stores
	Limits  *config.LimitSet
	Watcher *config.Watcher
	Router  *rest.Router
}
