package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/adwatch/internal/common"
	"github.com/ternarybob/adwatch/internal/handlers"
	"github.com/ternarybob/adwatch/internal/interfaces"
	"github.com/ternarybob/adwatch/internal/models"
	"github.com/ternarybob/adwatch/internal/services/auth"
	"github.com/ternarybob/adwatch/internal/services/browser"
	"github.com/ternarybob/adwatch/internal/services/events"
	"github.com/ternarybob/adwatch/internal/services/metrics"
	"github.com/ternarybob/adwatch/internal/services/registry"
	"github.com/ternarybob/adwatch/internal/services/scheduler"
	"github.com/ternarybob/adwatch/internal/services/session"
	badgerstore "github.com/ternarybob/adwatch/internal/storage/badger"
	"github.com/ternarybob/arbor"
)

// App holds all application services and handlers, wired once at startup.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	DB           *badgerstore.BadgerDB
	Storage      interfaces.CredentialStorage
	EventService interfaces.EventService
	Validator    *session.Validator
	Metrics      *metrics.Client
	Browser      *browser.Service
	Queue        *auth.Queue
	Worker       *auth.Worker
	Registry     *registry.Service
	Scheduler    interfaces.SchedulerService

	WSHandler      *handlers.WebSocketHandler
	AccountHandler *handlers.AccountHandler
	AuthHandler    *handlers.AuthHandler
	StatusHandler  *handlers.StatusHandler
}

// New creates and wires the application. Construction order matters:
// storage, then the domain services, then the worker/registry pair (which
// reference each other through narrow interfaces), then the HTTP handlers.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	db, err := badgerstore.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	storage := badgerstore.NewCredentialStorage(db, logger)
	eventService := events.NewService(logger)
	validator := session.NewValidator(&config.Platform, logger)
	metricsClient := metrics.NewClient(&config.Platform, config.Refresh.FetchTimeout, logger)
	browserService := browser.NewService(&config.Platform, &config.Auth, validator, logger)

	queue := auth.NewQueue()
	accountRegistry := registry.NewService(queue, storage, validator, metricsClient, eventService, logger)
	worker := auth.NewWorker(queue, storage, validator, browserService, metricsClient, accountRegistry, eventService, logger)
	accountRegistry.SetDrainTrigger(worker)

	schedulerService := scheduler.NewService(logger)
	err = schedulerService.RegisterJob(
		"metrics_sweep",
		config.Refresh.Schedule,
		"Periodic metrics fetch for all monitored accounts",
		func(ctx context.Context) error {
			accountRegistry.RefreshAll(ctx, config.Refresh.FetchTimeout)
			return nil
		},
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register metrics sweep: %w", err)
	}

	// Advisory daily probe of the agent session. Read-only: the drain is the
	// sole writer of the agent credential, this job only surfaces staleness
	// to the UI before the next batch discovers it.
	err = schedulerService.RegisterJob(
		"agent_revalidation",
		"0 6 * * *",
		"Daily advisory probe of the shared agent session",
		func(ctx context.Context) error {
			agent, err := storage.GetAgent(ctx)
			if err != nil {
				return nil // never logged in yet
			}
			if agent.Cookies.Empty() || !validator.ValidateAgent(ctx, agent.Cookies) {
				logger.Warn().Msg("Agent session no longer validates - next batch will re-login")
				eventService.Publish(ctx, interfaces.Event{
					Type:    interfaces.EventAgentStatusChanged,
					Payload: map[string]string{"status": string(models.CredentialStatusInvalid)},
				})
			}
			return nil
		},
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register agent revalidation: %w", err)
	}

	a := &App{
		Config:       config,
		Logger:       logger,
		DB:           db,
		Storage:      storage,
		EventService: eventService,
		Validator:    validator,
		Metrics:      metricsClient,
		Browser:      browserService,
		Queue:        queue,
		Worker:       worker,
		Registry:     accountRegistry,
		Scheduler:    schedulerService,
	}

	a.WSHandler = handlers.NewWebSocketHandler(eventService, logger, &config.WebSocket)
	a.AccountHandler = handlers.NewAccountHandler(accountRegistry, logger)
	a.AuthHandler = handlers.NewAuthHandler(accountRegistry, worker, storage, logger)
	a.StatusHandler = handlers.NewStatusHandler(accountRegistry, worker, schedulerService, logger)

	logger.Info().Msg("Application services initialized")
	return a, nil
}

// Start loads stored accounts into the registry and begins the refresh
// scheduler. Accounts whose stored sessions no longer validate are already
// queued (and a drain triggered) when this returns.
func (a *App) Start(ctx context.Context) error {
	if err := a.Registry.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize account registry: %w", err)
	}

	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	return nil
}

// Close shuts down services in reverse dependency order.
func (a *App) Close() {
	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Scheduler stop failed")
		}
	}

	if a.Worker != nil {
		a.Worker.Close()
	}

	if a.WSHandler != nil {
		a.WSHandler.Close()
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Event service close failed")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Database close failed")
		}
	}

	a.Logger.Info().Msg("Application closed")
}
