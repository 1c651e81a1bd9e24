package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/facilitydesk/taskdispatch/internal/api/middleware"
	"github.com/facilitydesk/taskdispatch/internal/channel"
	"github.com/facilitydesk/taskdispatch/internal/config"
	"github.com/facilitydesk/taskdispatch/internal/dispatch"
	"github.com/facilitydesk/taskdispatch/internal/events"
	"github.com/facilitydesk/taskdispatch/internal/message"
	"github.com/facilitydesk/taskdispatch/internal/store"
)

// appDeps are the external collaborators of the application.
type appDeps struct {
	// db is closed on shutdown when set.
	db          *sql.DB
	occurrences store.OccurrenceStore
	recipients  store.RecipientStore
	clients     channel.ClientFactory
}

// application holds the wired components of the server.
type application struct {
	config   *config.Config
	logger   *slog.Logger
	db       *sql.DB
	emitter  *events.Bus
	broker   *events.Broker
	session  *channel.Session
	catalog  *message.Store
	service  *dispatch.Service
	verifier *middleware.HMACVerifier
}

// newApplication wires the session, dispatch pipeline and event fan-out.
func newApplication(cfg *config.Config, logger *slog.Logger, deps appDeps) (*application, error) {
	if deps.occurrences == nil || deps.recipients == nil || deps.clients == nil {
		return nil, fmt.Errorf("application dependencies cannot be nil")
	}

	verifier, err := middleware.NewHMACVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create token verifier: %w", err)
	}

	catalog, err := message.NewStore(cfg.Dispatch.TemplatesPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load message catalog: %w", err)
	}

	emitter := events.NewBus(logger)
	broker := events.NewBroker(logger)
	emitter.RegisterHandler(broker)
	emitter.RegisterHandler(newChannelEventLogger(logger),
		events.TypeChannelReady,
		events.TypeChannelBroken,
		events.TypeChannelAuthFailed,
		events.TypeChannelInitTimeout)

	session := channel.NewSession(deps.clients, emitter, channel.SessionConfig{
		InitTimeout:     cfg.Channel.InitTimeout(),
		TeardownTimeout: cfg.Channel.TeardownTimeout(),
	}, logger)

	executor := dispatch.NewExecutor(session, catalog, dispatch.ExecutorConfig{
		CountryCode: cfg.Channel.DefaultCountryCode,
		SendDelay:   cfg.Channel.SendDelay(),
	}, logger)
	reconciler := dispatch.NewReconciler(deps.occurrences, emitter, logger)
	service := dispatch.NewService(deps.occurrences, deps.recipients, executor, reconciler, dispatch.ServiceConfig{
		PlanTTL:  cfg.Dispatch.PlanTTL(),
		Location: cfg.Dispatch.Location(),
	}, logger)

	return &application{
		config:   cfg,
		logger:   logger,
		db:       deps.db,
		emitter:  emitter,
		broker:   broker,
		session:  session,
		catalog:  catalog,
		service:  service,
		verifier: verifier,
	}, nil
}

// cleanup releases the channel session and the database pool.
func (app *application) cleanup(ctx context.Context) {
	if _, err := app.session.Disconnect(ctx); err != nil {
		app.logger.Warn("failed to disconnect channel session", "error", err)
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database connection", "error", err)
		}
	}
}

// channelEventLogger records channel lifecycle events that need operator attention.
type channelEventLogger struct {
	logger *slog.Logger
}

func newChannelEventLogger(logger *slog.Logger) *channelEventLogger {
	return &channelEventLogger{logger: logger.With("component", "channel_events")}
}

// HandleEvent implements events.EventHandler.
func (h *channelEventLogger) HandleEvent(ctx context.Context, event *events.Event) error {
	switch event.Type {
	case events.TypeChannelBroken, events.TypeChannelAuthFailed, events.TypeChannelInitTimeout:
		var failure channel.Failure
		if err := event.UnmarshalPayload(&failure); err != nil {
			return fmt.Errorf("decode %s payload: %w", event.Type, err)
		}
		h.logger.WarnContext(ctx, "channel needs attention",
			"event_type", event.Type,
			"event_id", event.ID.String(),
			"reason", failure.Reason)
	case events.TypeChannelReady:
		h.logger.InfoContext(ctx, "channel ready", "event_id", event.ID.String())
	}
	return nil
}

var _ events.EventHandler = (*channelEventLogger)(nil)
