package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/suPer8Hu/chatcore/internal/ai"
	"github.com/suPer8Hu/chatcore/internal/chat"
	"github.com/suPer8Hu/chatcore/internal/config"
	"github.com/suPer8Hu/chatcore/internal/db"
	"github.com/suPer8Hu/chatcore/internal/httpapi"
	"github.com/suPer8Hu/chatcore/internal/store/gormstore"
	"github.com/suPer8Hu/chatcore/internal/store/rabbitmq"
	"github.com/suPer8Hu/chatcore/internal/store/redisstore"
)

func historyStore(cfg config.Config) (chat.HistoryStore, error) {
	switch cfg.HistoryBackend {
	case "", "db":
		gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		if err := gormstore.AutoMigrate(gdb); err != nil {
			return nil, err
		}
		return gormstore.New(gdb), nil
	case "redis":
		st := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Ping(pingCtx); err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, errors.New("unsupported HISTORY_BACKEND=" + cfg.HistoryBackend)
	}
}

func providerRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()

	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})

	reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenRouterModel
		}
		return ai.NewOpenRouterProvider(
			cfg.OpenRouterBaseURL,
			cfg.OpenRouterAPIKey,
			m,
			cfg.OpenRouterSiteURL,
			cfg.OpenRouterAppName,
		), nil
	})

	return reg
}

func main() {
	cfg := config.Load()

	store, err := historyStore(cfg)
	if err != nil {
		log.Fatalf("history store: %v", err)
	}

	var notifier chat.Notifier = chat.NopNotifier{}
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Fatalf("rabbit publisher: %v", err)
		}
		defer pub.Close()
		notifier = pub
	}

	registry := chat.NewRegistry(store, chat.SessionConfig{
		Provider:      cfg.AIProvider,
		Model:         "",
		MaxConcurrent: cfg.MaxConcurrentRequests,
	})

	ctrl := chat.NewController(registry, providerRegistry(cfg), chat.Options{
		Store:          store,
		Notifier:       notifier,
		ContextBudget:  cfg.ContextBudgetChars,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.NewRouter(cfg, ctrl),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("api listening on %s (provider=%s backend=%s)", cfg.Addr, cfg.AIProvider, cfg.HistoryBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
