package di

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"north-backend/application/decomposition"
	"north-backend/application/ports"
	"north-backend/application/proposals"
	"north-backend/application/refinement"
	"north-backend/application/trees"
	"north-backend/infrastructure/config"
	"north-backend/infrastructure/llm"
	"north-backend/infrastructure/llm/providers"
	"north-backend/infrastructure/messaging/eventbridge"
	"north-backend/infrastructure/persistence/dynamodb"
	"north-backend/infrastructure/persistence/memory"
	"north-backend/infrastructure/persistence/sqlite"
	"north-backend/infrastructure/research"
	"north-backend/interfaces/http/rest"
	"north-backend/interfaces/http/rest/middleware"
	apperrors "north-backend/pkg/errors"
	"north-backend/pkg/observability"
)

// requestsPerMinute bounds request bursts per user.
const requestsPerMinute = 120

// Stores are the persistence backends selected by STORE_BACKEND.
type Stores struct {
	Trees ports.TreeRepository
	Usage ports.UsageStore
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// ProvideMetrics returns nil when metrics are disabled; every recorder
// accepts a nil receiver.
func ProvideMetrics(cfg *config.Config) *observability.Metrics {
	if !cfg.EnableMetrics {
		return nil
	}
	return observability.NewMetrics("north")
}

// ProvideTracing installs the OTLP exporter when tracing is enabled.
func ProvideTracing(ctx context.Context, cfg *config.Config) (observability.ShutdownFunc, error) {
	return observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.EnableTracing,
		ServiceName: "north-backend",
		Environment: cfg.Environment,
		Endpoint:    cfg.OTLPEndpoint,
	})
}

// ProvideStores opens the configured backend. The cleanup closes any
// database handle.
func ProvideStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, func(), error) {
	switch cfg.StoreBackend {
	case "dynamodb":
		client, err := dynamodb.NewClient(ctx, cfg.AWSRegion, cfg.DynamoDBEndpoint)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using DynamoDB store", zap.String("table", cfg.TableName))
		return &Stores{
			Trees: dynamodb.NewTreeRepository(client, cfg.TableName, logger),
			Usage: dynamodb.NewUsageStore(client, cfg.TableName),
		}, func() {}, nil

	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using SQLite store", zap.String("path", cfg.SQLitePath))
		return &Stores{
			Trees: sqlite.NewTreeRepository(db),
			Usage: sqlite.NewUsageStore(db),
		}, closeDB(db, logger), nil

	default:
		logger.Warn("Using in-memory store; data is lost on restart")
		return &Stores{
			Trees: memory.NewTreeRepository(),
			Usage: memory.NewUsageStore(),
		}, func() {}, nil
	}
}

func closeDB(db *sql.DB, logger *zap.Logger) func() {
	return func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database", zap.Error(err))
		}
	}
}

// ProvideTreeRepository exposes the tree backend.
func ProvideTreeRepository(s *Stores) ports.TreeRepository { return s.Trees }

// ProvideUsageStore exposes the usage backend.
func ProvideUsageStore(s *Stores) ports.UsageStore { return s.Usage }

// ProvidePinger exposes the tree backend's health check.
func ProvidePinger(s *Stores) rest.Pinger { return s.Trees }

// ProvideEventPublisher publishes to EventBridge when a bus is configured
// and only logs otherwise.
func ProvideEventPublisher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.EventPublisher, error) {
	if cfg.EventBusName == "" {
		return eventbridge.NewLogPublisher(logger), nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return eventbridge.NewPublisher(awseventbridge.NewFromConfig(awsCfg), cfg.EventBusName, logger), nil
}

// ProvideCompleter builds the completion client around the configured
// provider.
func ProvideCompleter(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) ports.Completer {
	model := cfg.GeminiModel
	apiKey := cfg.GeminiAPIKey
	if cfg.LLMProvider == "anthropic" {
		model, apiKey = cfg.AnthropicModel, cfg.AnthropicAPIKey
	}
	provider := providers.New(cfg.LLMProvider, apiKey, model, cfg.AnthropicBaseURL)

	llmCfg := llm.DefaultConfig()
	llmCfg.Timeout = cfg.LLMTimeout
	llmCfg.Retry.MaxRetries = cfg.LLMMaxRetries
	llmCfg.Retry.InitialDelay = cfg.LLMRetryDelay

	logger.Info("Completion client configured",
		zap.String("provider", provider.Name()),
		zap.String("model", model),
		zap.Duration("timeout", cfg.LLMTimeout),
	)
	return llm.NewClient(provider, llmCfg, logger, metrics)
}

// ProvideBrowser creates the shared headless browser. Chrome starts on
// first use; the cleanup shuts it down.
func ProvideBrowser(cfg *config.Config, logger *zap.Logger) (research.Browser, func()) {
	browser := research.NewRodBrowser(research.BrowserConfig{
		Bin:        cfg.BrowserBin,
		MaxPages:   cfg.BrowserMaxPages,
		NavTimeout: cfg.ResearchTimeout,
		DisableSHM: cfg.IsLambda,
	}, logger)
	return browser, func() {
		if err := browser.Close(); err != nil {
			logger.Warn("Failed to close browser", zap.Error(err))
		}
	}
}

// ProvideAggregator creates the research aggregator.
func ProvideAggregator(
	cfg *config.Config,
	browser research.Browser,
	completer ports.Completer,
	metrics *observability.Metrics,
	logger *zap.Logger,
) ports.ResearchAggregator {
	rcfg := research.DefaultConfig()
	rcfg.Language = cfg.PromptLanguage
	return research.NewAggregator(rcfg, browser, completer, metrics, logger)
}

// ProvideLimitSet seeds the hot-reloadable caps from the loaded config.
func ProvideLimitSet(cfg *config.Config) *config.LimitSet {
	return config.NewLimitSet(cfg.Limits)
}

// ProvideWatcher returns nil when no config file is in use.
func ProvideWatcher(cfg *config.Config, set *config.LimitSet, logger *zap.Logger) *config.Watcher {
	if cfg.ConfigFile == "" {
		return nil
	}
	return config.NewWatcher(cfg.ConfigFile, set, logger)
}

// ProvideTreeService creates the tree store.
func ProvideTreeService(repo ports.TreeRepository, publisher ports.EventPublisher, cfg *config.Config, logger *zap.Logger) *trees.Service {
	return trees.NewService(repo, publisher, cfg.MaxTrees, logger)
}

// ProvideTracker creates the proposal status tracker.
func ProvideTracker(store ports.TreeStore, publisher ports.EventPublisher, metrics *observability.Metrics, logger *zap.Logger) *proposals.Tracker {
	return proposals.NewTracker(store, publisher, metrics, logger)
}

// ProvideDecomposition creates the decomposition engine.
func ProvideDecomposition(
	store ports.TreeStore,
	completer ports.Completer,
	tracker *proposals.Tracker,
	cfg *config.Config,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *decomposition.Engine {
	return decomposition.NewEngine(store, completer, tracker, cfg.PromptLanguage, metrics, logger)
}

// ProvideRefinement creates the refinement engine.
func ProvideRefinement(
	store ports.TreeStore,
	completer ports.Completer,
	tracker *proposals.Tracker,
	cfg *config.Config,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *refinement.Engine {
	return refinement.NewEngine(store, completer, tracker, cfg.PromptLanguage, metrics, logger)
}

// ProvideErrorHandler echoes error causes outside production.
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *apperrors.ErrorHandler {
	return apperrors.NewErrorHandler(logger, !cfg.IsProduction())
}

// ProvideAuthConfig builds the token validation settings.
func ProvideAuthConfig(cfg *config.Config, logger *zap.Logger) (middleware.AuthConfig, error) {
	if cfg.AuthInsecureEmulator {
		logger.Warn("Auth emulator mode: token signatures are not verified")
	}
	return rest.NewAuthConfig(cfg.JWTSecret, cfg.JWTPublicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AuthInsecureEmulator, requestsPerMinute)
}

// ProvideRouter creates the HTTP router.
func ProvideRouter(
	services rest.Services,
	authCfg middleware.AuthConfig,
	store rest.Pinger,
	metrics *observability.Metrics,
	errs *apperrors.ErrorHandler,
	cfg *config.Config,
	logger *zap.Logger,
) *rest.Router {
	return rest.NewRouter(services, authCfg, store, metrics, errs, rest.RouterConfig{
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: 30 * time.Second,
	}, logger)
}
