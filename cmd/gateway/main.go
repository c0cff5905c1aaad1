// In file: cmd/gateway/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/backend"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/commands"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/commands/handlers"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/obs"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/pipeline"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/security"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/session"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/wirecapture"
)

// main is the entry point for the application. Its primary role is the
// "Composition Root": it loads configuration, initializes all services,
// injects dependencies, and starts the server. Grounded on the teacher's
// main.go, which structures startup the same way (load config, build
// collaborators, wire the handler, run with graceful shutdown); the
// RAG/router/tool-manager collaborators it built are replaced here by the
// command registry, backend registry, and request pipeline this proxy
// actually needs.
func main() {
	buildInfo := GetBuildInfo()

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: configuration error: %v", err)
	}

	zapLogger, err := obs.NewLogger(obs.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		log.Fatalf("FATAL: logger init failed: %v", err)
	}
	defer zapLogger.Sync()
	sugar := zapLogger.Sugar()
	sugar.Infow("starting llm-interactive-proxy", "version", buildInfo.Version, "commit", buildInfo.GitCommit)

	redactor := security.NewRedactor(nil, sugar)
	redactor.DiscoverSecrets(collectConfiguredKeys(cfg))
	commandFilter := security.NewCommandFilter(cfg.CommandPrefix, sugar)

	sessions, err := buildSessionStore(cfg)
	if err != nil {
		log.Fatalf("FATAL: session store init failed: %v", err)
	}

	helloHandler := &handlers.HelloHandler{}
	cmdRegistry := buildCommandRegistry(cfg, helloHandler)
	parser := commands.NewParser(cfg.CommandPrefix)
	cmdSvc := commands.NewService(cmdRegistry, parser)

	healthTracker := backend.NewHealthTracker()
	backendRegistry := backend.NewRegistry(healthTracker, sugar)
	registerBackends(backendRegistry, cfg)
	backendRegistry.Initialize(context.Background())

	helloHandler.FunctionalBackends = backendRegistry.FunctionalBackends

	capture := buildWireCapture(cfg, redactor)

	metrics := obs.NewMetrics()

	pl := pipeline.New(
		pipeline.Config{
			APIKeys:        cfg.APIKeys(),
			DisableAuth:    cfg.DisableAuth(),
			ForceProject:   cfg.ForceProject,
			DefaultBackend: cfg.DefaultBackend,
			DefaultModel:   cfg.DefaultModel,
		},
		sessions,
		cmdSvc,
		backendRegistry,
		capture,
		metrics,
		sugar,
	)
	pl = pl.WithSecurity(redactor, commandFilter)

	gin.SetMode(ginMode())
	engine := gin.New()
	engine.Use(gin.Recovery())
	registerRoutes(engine, pl, backendRegistry, metrics, sugar)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: engine}
	runServerWithGracefulShutdown(srv, sugar)
}

func ginMode() string {
	if m := os.Getenv("GIN_MODE"); m != "" {
		return m
	}
	return gin.ReleaseMode
}

// collectConfiguredKeys gathers every backend API key and proxy credential
// configured so the Redactor masks them in logs and wire capture from the
// first request onward, before DiscoverSecrets' environment sweep even
// runs.
func collectConfiguredKeys(cfg *AppConfig) []string {
	var keys []string
	keys = append(keys, cfg.APIKeys()...)
	for _, b := range cfg.Backends {
		keys = append(keys, resolveAPIKeys(b)...)
	}
	return keys
}

func buildSessionStore(cfg *AppConfig) (session.Store, error) {
	if cfg.SessionStore != "redis" {
		return session.NewMemoryStore(cfg.SessionTTL), nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	return session.NewRedisStore(rdb, cfg.SessionTTL), nil
}

// buildCommandRegistry registers every command handler named in spec §4.5.
// The reasoning-effort aliases (max/medium/low/no-think) and the no-think
// synonym set are registered under every alias name via handlers.NewAlias,
// generalizing the teacher's decorator-per-name registration into an
// explicit loop.
func buildCommandRegistry(cfg *AppConfig, hello *handlers.HelloHandler) *commands.Registry {
	reg := commands.NewRegistry()
	aliases := &cfg.ReasoningAliases

	reg.Register(hello)
	reg.Register(&handlers.HelpHandler{})
	reg.Register(&handlers.SetHandler{})
	reg.Register(&handlers.UnsetHandler{})
	reg.Register(&handlers.ModelHandler{})
	reg.Register(&handlers.WorkspaceHandler{})
	reg.Register(&handlers.ProviderHandler{})
	reg.Register(&handlers.ModeHandler{Cfg: aliases})

	for _, kind := range []string{
		"create-failover-route", "delete-failover-route", "list-failover-routes",
		"route-append", "route-prepend", "route-clear", "route-list",
	} {
		reg.Register(&handlers.FailoverHandler{Kind: kind})
	}

	reg.Register(&handlers.LoopDetectionHandler{ToolVariant: false})
	reg.Register(&handlers.LoopDetectionHandler{ToolVariant: true})
	reg.Register(&handlers.ToolLoopModeHandler{})
	reg.Register(&handlers.ToolLoopMaxRepeatsHandler{})
	reg.Register(&handlers.ToolLoopTTLHandler{})

	reg.Register(handlers.NewMaxHandler(aliases))
	reg.Register(handlers.NewMediumHandler(aliases))
	reg.Register(handlers.NewLowHandler(aliases))
	noThink := handlers.NewNoThinkHandler(aliases)
	reg.Register(noThink)
	for _, alias := range handlers.NoThinkAliases {
		if alias == "no-think" {
			continue
		}
		reg.Register(handlers.NewAlias(noThink, alias))
	}

	return reg
}

// registerBackends installs a Factory per configured backend, dispatching
// on Kind the way the teacher's initializeLLMClients switched on a model
// prefix string, generalized to the Backend Registry's explicit Kind enum.
func registerBackends(reg *backend.Registry, cfg *AppConfig) {
	for _, spec := range cfg.Backends {
		spec := spec
		keys := resolveAPIKeys(spec)
		kind := connectorKind(spec.Kind)

		var factory backend.Factory
		switch kind {
		case backend.KindSubprocessBatch:
			factory = func() backend.Connector {
				return backend.NewSubprocessBatchConnector(spec.Name, spec.Executable, spec.Models)
			}
		case backend.KindSubprocessInteractive:
			factory = func() backend.Connector {
				return backend.NewSubprocessInteractiveConnector(spec.Name, spec.Executable, spec.Models)
			}
		case backend.KindOAuthGated:
			factory = func() backend.Connector {
				return backend.NewOAuthGatedConnector(spec.Name, connectorDialect(spec.Dialect), spec.BaseURL, spec.CredentialPath, nil, spec.Models)
			}
		case backend.KindGeminiNative:
			factory = func() backend.Connector {
				return backend.NewGeminiNativeConnector(spec.Name, spec.Models)
			}
		default:
			factory = func() backend.Connector {
				return backend.NewHTTPSJSONConnector(spec.Name, connectorDialect(spec.Dialect), spec.BaseURL, spec.Models)
			}
		}

		reg.Register(spec.Name, kind, keys, spec.BaseURL, factory)
	}
}

func buildWireCapture(cfg *AppConfig, redactor *security.Redactor) wirecapture.Capture {
	switch cfg.WireCapture.Mode {
	case "structured":
		return wirecapture.NewStructured(wirecapture.StructuredConfig{
			FilePath:       cfg.WireCapture.FilePath,
			MaxBytes:       cfg.WireCapture.MaxBytes,
			MaxFiles:       cfg.WireCapture.MaxFiles,
			RotateInterval: cfg.WireCapture.RotateInterval,
			TotalMaxBytes:  cfg.WireCapture.TotalMaxBytes,
		})
	case "buffered":
		return wirecapture.NewBuffered(wirecapture.Config{
			FilePath:           cfg.WireCapture.FilePath,
			MaxEntriesPerFlush: cfg.WireCapture.MaxEntriesPerFlush,
			FlushInterval:      cfg.WireCapture.FlushInterval,
			MaxBytes:           cfg.WireCapture.MaxBytes,
			MaxFiles:           cfg.WireCapture.MaxFiles,
		}, redactor)
	default:
		return wirecapture.NewBuffered(wirecapture.Config{}, redactor)
	}
}

func runServerWithGracefulShutdown(srv *http.Server, log *zap.SugaredLogger) {
	go func() {
		log.Infow("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("listen error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server shutdown failed", "error", err)
	}
	log.Info("server exited gracefully")
}
