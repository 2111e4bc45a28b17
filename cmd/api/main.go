// Package main is the entry point for the assistant API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/nimbus-tasks/assistant/internal/agent"
	"github.com/nimbus-tasks/assistant/internal/config"
	"github.com/nimbus-tasks/assistant/internal/events"
	"github.com/nimbus-tasks/assistant/internal/handler"
	"github.com/nimbus-tasks/assistant/internal/llm"
	natsclient "github.com/nimbus-tasks/assistant/internal/nats"
	"github.com/nimbus-tasks/assistant/internal/service"
	"github.com/nimbus-tasks/assistant/internal/store"
	"github.com/nimbus-tasks/assistant/internal/tools"
	"github.com/nimbus-tasks/assistant/pkg/logger"
	"github.com/nimbus-tasks/assistant/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	var log *logger.Logger
	if cfg.Logging.Development {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx := context.Background()
	log.Info("starting API server",
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("events_backend", cfg.Events.Backend),
	)

	if cfg.UsesDevSecret() {
		log.Warn("using the development JWT secret, set JWT_SECRET in production")
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(ctx, "nimbus-assistant", cfg.Tracing.Endpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	db, err := store.Open(ctx, store.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	publisher, err := events.New(ctx, eventsConfig(cfg), log)
	if err != nil {
		return fmt.Errorf("connect events backend: %w", err)
	}
	defer publisher.Close()

	llmClient := newLLMClient(cfg, log)
	if llmClient != nil && !llm.SupportsModel(llmClient, cfg.LLM.Model) {
		log.Warn("configured model is not a known model of the provider",
			zap.String("provider", llmClient.Name()),
			zap.String("model", cfg.LLM.Model),
			zap.Strings("known_models", llmClient.Models()),
		)
	}

	dispatcher := tools.NewDispatcher(db, log)
	runner := agent.New(llmClient, dispatcher,
		agent.WithMaxIterations(cfg.Agent.MaxIterations),
		agent.WithLLMTimeout(cfg.Agent.LLMTimeout),
		agent.WithModel(cfg.LLM.Model),
		agent.WithLogger(log),
	)

	conversationSvc := service.NewConversationService(db, log)
	history := service.NewHistoryAdapter(db, cfg.Agent.HistoryLimit)
	chatSvc := service.NewChatService(conversationSvc, history, runner, publisher, log)
	taskSvc := service.NewTaskService(db, log)

	checks := map[string]handler.Pinger{"database": db}
	checks["events:"+publisher.Name()] = publisher

	router := handler.NewRouter(handler.RouterConfig{
		Health:          handler.NewHealthHandler(checks),
		Chat:            handler.NewChatHandler(chatSvc, log),
		Stream:          handler.NewStreamHandler(chatSvc, log),
		Conversations:   handler.NewConversationHandler(conversationSvc, log),
		Tasks:           handler.NewTaskHandler(taskSvc, log),
		JWTSecret:       cfg.Auth.JWTSecret,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		RateLimit:       cfg.RateLimit.Requests,
		RateLimitWindow: cfg.RateLimit.Window,
		Logger:          log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case sig := <-quit:
		log.Info("shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

// newLLMClient builds the configured provider. Without an API key the
// agent has no model and answers every turn with its fallback reply.
func newLLMClient(cfg *config.Config, log *logger.Logger) llm.Client {
	apiKey := cfg.APIKey()
	if apiKey == "" {
		log.Warn("no API key for LLM provider, assistant replies are disabled",
			zap.String("provider", cfg.LLM.Provider))
		return nil
	}

	if llm.Provider(cfg.LLM.Provider) == llm.ProviderOpenAI && cfg.LLM.OpenAIBaseURL != "" {
		oc := openai.DefaultConfig(apiKey)
		oc.BaseURL = cfg.LLM.OpenAIBaseURL
		return llm.NewOpenAIClientWithConfig(oc)
	}

	client, err := llm.NewClient(llm.Provider(cfg.LLM.Provider), apiKey)
	if err != nil {
		log.Warn("failed to create LLM client, assistant replies are disabled", zap.Error(err))
		return nil
	}
	return client
}

func eventsConfig(cfg *config.Config) events.Config {
	ec := cfg.Events
	return events.Config{
		Backend: ec.Backend,
		NATS: natsclient.Config{
			URL:      ec.NATSURL,
			CAFile:   ec.NATSCAFile,
			CertFile: ec.NATSCertFile,
			KeyFile:  ec.NATSKeyFile,
			Token:    ec.NATSToken,
			Stream:   ec.NATSStream,
		},
		Redis: events.RedisConfig{
			Address:  ec.RedisAddr,
			Password: ec.RedisPassword,
			DB:       ec.RedisDB,
			Stream:   ec.RedisStream,
			MaxLen:   ec.RedisMaxLen,
		},
		RabbitMQ: events.RabbitMQConfig{
			URL:   ec.RabbitMQURL,
			Queue: ec.RabbitMQQueue,
		},
	}
}
