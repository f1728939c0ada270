package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-study/internal/ai"
	"github.com/p-n-ai/pai-study/internal/bot"
	"github.com/p-n-ai/pai-study/internal/chat"
	"github.com/p-n-ai/pai-study/internal/httpapi"
	"github.com/p-n-ai/pai-study/internal/platform/cache"
	"github.com/p-n-ai/pai-study/internal/platform/config"
	"github.com/p-n-ai/pai-study/internal/platform/database"
	"github.com/p-n-ai/pai-study/internal/platform/logger"
	"github.com/p-n-ai/pai-study/internal/platform/tracing"
	"github.com/p-n-ai/pai-study/internal/prompts"
	"github.com/p-n-ai/pai-study/internal/study"
	"github.com/p-n-ai/pai-study/internal/video"
)

const probeTimeout = 2 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(logger.New(os.Stdout, cfg.Log))

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("tracing shutdown error", "error", err)
		}
	}()

	router := newAIRouter(cfg)

	searcher, err := newSearcher(ctx, cfg.YouTube)
	if err != nil {
		return err
	}

	promptSet, err := prompts.Load(cfg.PromptsPath)
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}

	var probes []probe

	store, closeStore, err := newStore(ctx, cfg, &probes)
	if err != nil {
		return err
	}
	defer closeStore()

	recorder, closeRecorder, err := newRecorder(ctx, cfg, &probes)
	if err != nil {
		return err
	}
	defer closeRecorder()

	engine := study.NewEngine(study.EngineConfig{
		Generator:           router,
		Searcher:            searcher,
		Store:               store,
		Recorder:            recorder,
		Prompts:             promptSet,
		ChecklistMin:        cfg.Study.ChecklistMin,
		ChecklistMax:        cfg.Study.ChecklistMax,
		ChecklistTarget:     cfg.Study.ChecklistTarget,
		QuestionConcurrency: cfg.Study.QuestionConcurrency,
		QuestionAttempts:    cfg.Study.QuestionAttempts,
		MaxQuizQuestions:    cfg.Study.MaxQuizQuestions,
		LookupConcurrency:   cfg.YouTube.Concurrency,
		LookupTimeout:       cfg.YouTube.Timeout,
		GenerateTimeout:     cfg.AI.Timeout,
	})

	mux := newMux(probes...)
	httpapi.New(engine, cfg.Session.Secret, cfg.Session.TTL).Register(mux)

	gw, err := startChat(ctx, cfg.Telegram, engine)
	if err != nil {
		return err
	}
	defer gw.StopAll()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 3 * time.Minute, // checklist and quiz generation can be slow
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	return nil
}

// newAIRouter registers every configured provider in fallback order.
func newAIRouter(cfg *config.Config) *ai.Router {
	router := ai.NewRouter()

	opts := []ai.OpenAIOption{ai.WithHTTPClient(&http.Client{Timeout: cfg.AI.Timeout})}
	if cfg.AI.Model != "" {
		opts = append(opts, ai.WithDefaultModel(cfg.AI.Model))
	}

	if key := cfg.AI.OpenAI.APIKey; key != "" {
		router.Register("openai", ai.NewOpenAIProvider(key, opts...))
	}
	if key := cfg.AI.Groq.APIKey; key != "" {
		router.Register("groq", ai.NewGroqProvider(key, opts...))
	}
	if key := cfg.AI.DeepSeek.APIKey; key != "" {
		router.Register("deepseek", ai.NewDeepSeekProvider(key, opts...))
	}
	if key := cfg.AI.OpenRouter.APIKey; key != "" {
		router.Register("openrouter", ai.NewOpenRouterProvider(key, opts...))
	}
	if cfg.AI.Ollama.Enabled {
		router.Register("ollama", ai.NewOllamaProvider(cfg.AI.Ollama.URL, opts...))
	}

	if cfg.AI.TokenBudget > 0 {
		router.SetBudget(ai.NewInMemoryBudget(cfg.AI.TokenBudget))
		slog.Info("per-session token budget enabled", "tokens", cfg.AI.TokenBudget)
	}
	return router
}

// newSearcher returns nil when no API key is set; checklists then carry no
// links.
func newSearcher(ctx context.Context, cfg config.YouTubeConfig) (video.Searcher, error) {
	if cfg.APIKey == "" {
		slog.Warn("LEARN_YOUTUBE_API_KEY not set, checklist items will have no video links")
		return nil, nil
	}
	yt, err := video.NewYouTubeSearcher(ctx, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("init youtube searcher: %w", err)
	}
	return yt, nil
}

func newStore(ctx context.Context, cfg *config.Config, probes *[]probe) (study.Store, func(), error) {
	if cfg.Session.Store != "redis" {
		return study.NewMemoryStore(), func() {}, nil
	}

	c, err := cache.New(ctx, cfg.Cache.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect session cache: %w", err)
	}
	store, err := study.NewRedisStore(c, cfg.Session.TTL)
	if err != nil {
		_ = c.Close()
		return nil, nil, err
	}
	*probes = append(*probes, probe{name: "redis", check: c.HealthCheck})
	slog.Info("session store: redis", "ttl", cfg.Session.TTL)
	return store, func() { _ = c.Close() }, nil
}

func newRecorder(ctx context.Context, cfg *config.Config, probes *[]probe) (study.ResultRecorder, func(), error) {
	switch cfg.History.Backend {
	case "postgres":
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		if err := db.Migrate(ctx, study.PostgresSchema...); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		rec, err := study.NewPostgresRecorder(db.Pool)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		*probes = append(*probes, probe{name: "postgres", check: db.HealthCheck})
		slog.Info("score archive: postgres")
		return rec, db.Close, nil
	case "sqlite":
		rec, err := study.OpenSQLiteRecorder(ctx, cfg.History.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("score archive: sqlite", "path", cfg.History.SQLitePath)
		return rec, func() { _ = rec.Close() }, nil
	default:
		return study.NopRecorder{}, func() {}, nil
	}
}

// startChat starts the Telegram bot when a token is configured. The
// returned gateway is empty otherwise.
func startChat(ctx context.Context, cfg config.TelegramConfig, engine *study.Engine) (*chat.Gateway, error) {
	gw := chat.NewGateway()
	if cfg.BotToken == "" {
		return gw, nil
	}

	tg, err := chat.NewTelegramChannel(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	tg.SetCommands(bot.Commands)
	gw.Register("telegram", tg)

	handler := bot.NewHandler(engine)
	if err := gw.StartAll(ctx, handler.Listen(ctx, gw)); err != nil {
		return nil, fmt.Errorf("start chat channels: %w", err)
	}
	return gw, nil
}

// probe is a named readiness check.
type probe struct {
	name  string
	check func(context.Context) error
}

// newMux creates the HTTP router with health check endpoints.
func newMux(probes ...probe) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(probes))
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func handleReadyz(probes []probe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		failed := make(map[string]string)
		for _, p := range probes {
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			err := p.check(ctx)
			cancel()
			if err != nil {
				slog.Warn("readiness probe failed", "probe", p.name, "error", err)
				failed[p.name] = err.Error()
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if len(failed) == 0 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ready"}`))
			return
		}
		body, _ := json.Marshal(map[string]any{"status": "not ready", "failed": failed})
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write(body)
	}
}
