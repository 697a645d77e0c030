package app

import (
	"context"

	"github.com/go-redis/redis"
	"github.com/xpanvictor/xarvis-gateway/internal/config"
	"github.com/xpanvictor/xarvis-gateway/internal/domains/conversation"
	"github.com/xpanvictor/xarvis-gateway/internal/domains/session"
	"github.com/xpanvictor/xarvis-gateway/internal/domains/sys_manager/pipeline"
	"github.com/xpanvictor/xarvis-gateway/internal/domains/user"
	"github.com/xpanvictor/xarvis-gateway/internal/events"
	"github.com/xpanvictor/xarvis-gateway/internal/handlers"
	"github.com/xpanvictor/xarvis-gateway/internal/handlers/websocket"
	"github.com/xpanvictor/xarvis-gateway/internal/metrics"
	"github.com/xpanvictor/xarvis-gateway/internal/repository/apikey"
	userRepo "github.com/xpanvictor/xarvis-gateway/internal/repository/user"
	"github.com/xpanvictor/xarvis-gateway/internal/server"
	"github.com/xpanvictor/xarvis-gateway/internal/telemetry"
	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
	"github.com/xpanvictor/xarvis-gateway/pkg/assistant/router"
	gwio "github.com/xpanvictor/xarvis-gateway/pkg/io"
	"github.com/xpanvictor/xarvis-gateway/pkg/io/registry"
	memoryregistry "github.com/xpanvictor/xarvis-gateway/pkg/io/registry/memoryRegistry"
	"github.com/xpanvictor/xarvis-gateway/pkg/io/stt"
	"github.com/xpanvictor/xarvis-gateway/pkg/io/stt/whisper"
	"github.com/xpanvictor/xarvis-gateway/pkg/io/tts"
	"github.com/xpanvictor/xarvis-gateway/pkg/io/tts/piper"
	"gorm.io/gorm"
)

// App represents the application with all its dependencies
type App struct {
	Config    *config.Settings
	Logger    *Logger.Logger
	DB        *gorm.DB
	RC        *redis.Client
	Metrics   *metrics.Metrics
	Sessions  *session.Manager
	Registry  registry.Registry
	LLMRouter *router.Mux
	Accounts  user.AccountRepository
	WSHandler *websocket.WebSocketHandler
	Events    *events.Bus
	Audit     *events.Store
	NATS      *events.NATSSink

	ServerDeps server.Dependencies
	closers    []func() error
	tracing    telemetry.Shutdown
}

// NewApp creates a new application instance with all dependencies properly
// wired. db and rc may be nil.
func NewApp(ctx context.Context, cfg *config.Settings, logger *Logger.Logger, db *gorm.DB, rc *redis.Client) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
		DB:     db,
		RC:     rc,
	}

	if err := app.setupDependencies(ctx); err != nil {
		return nil, err
	}

	return app, nil
}

// setupDependencies initializes all application dependencies
func (a *App) setupDependencies(ctx context.Context) error {
	tracing, err := telemetry.Setup(ctx, a.Config.Telemetry, a.Config.Env, a.Logger)
	if err != nil {
		return err
	}
	a.tracing = tracing
	a.Metrics = metrics.New()

	// 1. session table and socket registry
	sc := a.Config.Session
	a.Sessions = session.NewManager(session.Config{
		SessionTimeout:         sc.SessionTimeout,
		InactivityTimeout:      sc.InactivityTimeout,
		HeartbeatTimeout:       sc.HeartbeatTimeout,
		SweepInterval:          sc.SweepInterval,
		DeepValidationInterval: sc.DeepValidationInterval,
		AutoCleanup:            sc.AutoCleanup,
		HeartbeatMonitoring:    sc.HeartbeatMonitoring,
	}, a.Logger.With("component", "sessions"))
	a.Metrics.TrackSessions(a.Sessions.Count)
	a.Registry = memoryregistry.New(a.Logger.With("component", "registry"))

	if err := a.setupEvents(ctx); err != nil {
		return err
	}

	// 2. LLM providers and router
	if err := a.setupLLMRouter(ctx); err != nil {
		return err
	}

	// 3. repositories
	if a.DB != nil {
		a.Accounts = userRepo.NewGormAccountRepo(a.DB)
	} else {
		a.Logger.Warn("database not configured, accounts are kept in memory")
		a.Accounts = user.NewMemoryRepository()
	}
	var keyStore *apikey.RedisKeyStore
	if a.RC != nil {
		keyStore = apikey.NewRedisKeyStore(a.RC, a.Config.Auth.RedisKeySet)
	}

	// 4. services
	authOpts := user.Options{
		StaticKeys: a.Config.Auth.APIKeys,
		JWTSecret:  a.Config.Auth.JWTSecret,
		Accounts:   a.Accounts,
	}
	var keyIssuer user.KeyIssuer
	if keyStore != nil {
		authOpts.Keys = keyStore
		keyIssuer = keyStore
	}
	if a.Config.Auth.JWTSecret == "" {
		a.Logger.Warn("JWT secret not configured, gateway tokens are disabled")
	}
	auth := user.NewAuthenticator(authOpts, a.Logger.With("component", "auth"))
	accounts := user.NewAccountService(a.Accounts, keyIssuer, a.Config.Auth.JWTSecret, a.Config.Auth.TokenTTL, a.Logger)

	var synth tts.Synthesizer
	if a.Config.Voice.PiperURL != "" {
		synth = piper.New(a.Config.Voice.PiperURL, a.Config.Voice.PiperVoice, a.Config.Voice.Timeout)
	} else {
		a.Logger.Warn("voice.piper_url not set, replies are text only")
	}
	var transcriber stt.Transcriber
	if a.Config.Voice.WhisperURL != "" {
		transcriber = whisper.NewWhisperClient(a.Config.Voice.WhisperURL, a.Config.Voice.Timeout, a.Logger)
	} else {
		a.Logger.Warn("voice.whisper_url not set, voice requests are rejected")
	}

	pub := gwio.New(a.Registry)
	pc := a.Config.Pipeline
	pipe := pipeline.New(&pub, synth, pipeline.Config{
		MinSentenceChars: pc.MinSentenceChars,
		MaxSentenceChars: pc.MaxSentenceChars,
		AudioChunkBytes:  pc.AudioChunkBytes,
	}, a.Logger.With("component", "pipeline"))
	turns := conversation.New(a.LLMRouter, pipe, transcriber, pc.TurnTimeout, a.Metrics, a.Logger.With("component", "conversation"))

	// 5. transports
	a.WSHandler = websocket.NewWebSocketHandler(
		a.Logger.With("component", "ws"),
		a.Sessions,
		a.Registry,
		auth,
		turns,
		a.Metrics,
		a.Config.Gateway,
		websocket.WithEvents(a.Events),
	)

	var audit handlers.EventLister
	if a.Audit != nil {
		audit = a.Audit
	}
	a.ServerDeps = server.Dependencies{
		WebSocket:  a.WSHandler,
		Users:      handlers.NewUserHandler(accounts, a.Logger),
		SessionAPI: handlers.NewSessionHandler(a.Sessions, audit, accounts, a.Logger),
		Sessions:   a.Sessions,
		Metrics:    a.Metrics,
		Logger:     a.Logger,
	}
	return nil
}

// setupEvents builds the lifecycle event bus over the configured sinks.
func (a *App) setupEvents(ctx context.Context) error {
	ec := a.Config.Events
	var sinks []events.Sink

	if ec.StorePath != "" {
		store, err := events.OpenStore(ctx, ec.StorePath, ec.RetentionDays, a.Logger.With("component", "audit"))
		if err != nil {
			return err
		}
		a.Audit = store
		sinks = append(sinks, store)
	}

	if ec.NATSURL != "" {
		sink, err := events.ConnectNATS(ec.NATSURL, ec.SubjectPrefix, a.Logger.With("component", "nats"))
		if err != nil {
			return err
		}
		a.NATS = sink
		sinks = append(sinks, sink)
		err = sink.OnEvictRequest(func(sessionID string) {
			if a.Sessions.Unregister(sessionID, session.ReasonForced) {
				a.Logger.Infof("session %s evicted on request", sessionID)
			}
		})
		if err != nil {
			return err
		}
	}

	a.Events = events.NewBus(ec.Buffer, a.Logger.With("component", "events"), sinks...)
	return nil
}

// setupLLMRouter configures the LLM providers and creates the router
func (a *App) setupLLMRouter(ctx context.Context) error {
	factory := NewLLMRouterFactory(a.Config.LLM, a.Logger)

	mux, closers, err := factory.CreateRouter(ctx)
	if err != nil {
		return err
	}

	a.LLMRouter = mux
	a.closers = append(a.closers, closers...)
	return nil
}

// Start launches background work.
func (a *App) Start() {
	a.Sessions.Start()
}

// Shutdown closes every socket and waits for their cleanup, stops the
// sweep, flushes lifecycle events and releases clients.
func (a *App) Shutdown() {
	if err := a.WSHandler.Close(); err != nil {
		a.Logger.Errorf("closing websocket handler: %v", err)
	}
	a.Sessions.Stop()
	// socket cleanups have recorded their evictions by now
	a.Events.Close()
	if a.NATS != nil {
		a.NATS.Close()
	}
	if a.Audit != nil {
		if err := a.Audit.Close(); err != nil {
			a.Logger.Warnf("closing event store: %v", err)
		}
	}
	if err := a.tracing(context.Background()); err != nil {
		a.Logger.Warnf("flushing traces: %v", err)
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.Logger.Warnf("closing provider: %v", err)
		}
	}
	if a.RC != nil {
		_ = a.RC.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// GetServerDependencies returns the server dependencies
func (a *App) GetServerDependencies() server.Dependencies {
	return a.ServerDeps
}
