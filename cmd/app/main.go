// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"telegram-ai-storyteller/internal/application"
	"telegram-ai-storyteller/internal/config"
	"telegram-ai-storyteller/internal/domain/ports/adapter"
	"telegram-ai-storyteller/internal/domain/ports/repository"
	aiAdapters "telegram-ai-storyteller/internal/infra/adapters/ai"
	tele "telegram-ai-storyteller/internal/infra/adapters/telegram"
	pg "telegram-ai-storyteller/internal/infra/db/postgres"
	"telegram-ai-storyteller/internal/infra/filestore"
	"telegram-ai-storyteller/internal/infra/i18n"
	"telegram-ai-storyteller/internal/infra/logging"
	"telegram-ai-storyteller/internal/infra/metrics"
	red "telegram-ai-storyteller/internal/infra/redis"
	"telegram-ai-storyteller/internal/infra/web"
	"telegram-ai-storyteller/internal/usecase"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, config.ErrTemplateWritten) {
			fmt.Fprintf(os.Stderr, "wrote a template to %s; fill it in and restart\n", *cfgPath)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	cfgMgr := config.NewManager(*cfgPath, cfg)

	log := logging.New(cfg.Log)
	metrics.MustRegister()

	tr, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	if err != nil {
		log.Fatal().Err(err).Msg("translator")
	}

	promptRepo, err := filestore.NewPromptRepository(cfg.Chat.PromptsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("prompt store")
	}

	// ---- Optional Redis (dialogue rate limiting) ----
	var limiter application.RateLimiter
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		limiter = red.NewRateLimiter(redisClient, 20, time.Minute)
		log.Info().Str("addr", cfg.Redis.URL).Msg("redis rate limiter enabled")
	}

	// ---- Optional Postgres (turn archive) ----
	var archive repository.TurnArchive
	if cfg.Database.URL != "" {
		pool, err := pg.Connect(ctx, cfg.Database.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres")
		}
		defer pool.Close()
		if err := pg.EnsureSchema(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("postgres schema")
		}
		archive = pg.NewTurnArchiveRepo(pool)
		log.Info().Msg("turn archive enabled")
	}

	ai, err := buildAI(ctx, &cfg.AI, log)
	if err != nil {
		log.Fatal().Err(err).Msg("ai adapter")
	}

	// ---- Use cases ----
	contexts := usecase.NewConversationStore(cfg.Chat.MemoryLimit)
	prompts := usecase.NewPromptUseCase(cfg.Chat.DefaultPrompt, promptRepo)
	subs := usecase.NewSubscriptionUseCase(cfg.Chat.Subscriptions, cfgMgr, contexts, cfg.Chat.DefaultPrompt)
	reply := usecase.NewReplyUseCase(contexts, ai, archive, usecase.Models{
		Text:       cfg.AI.TextModel,
		Image:      cfg.AI.ImageModel,
		Transcribe: cfg.AI.TranscribeModel,
	}, log)

	facade := application.NewBotFacade(log, tr, cfgMgr, contexts, subs, prompts, reply, limiter)

	// ---- Transport ----
	// Without a token the bot runs transportless: inbound messages only
	// arrive through the admin API and outbound sends go to the log.
	var messenger adapter.MessengerAdapter
	var bot *tele.RealBotAdapter
	if cfg.Bot.Token == "" {
		log.Warn().Msg("bot.token empty, telegram transport disabled")
		messenger = tele.NewNoopBotAdapter(log)
	} else {
		bot, err = tele.NewRealBotAdapter(&cfg.Bot, facade, log)
		if err != nil {
			log.Fatal().Err(err).Msg("telegram")
		}
		messenger = bot
		go func() {
			if err := bot.StartPolling(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("telegram polling stopped")
			}
		}()
	}

	// ---- Admin/ops HTTP server (optional) ----
	var server *http.Server
	if cfg.Admin.Port > 0 {
		adminSrv := web.NewServer(facade, messenger, &cfg.Admin, log)
		server = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Admin.Port),
			Handler: adminSrv.Router(),
		}
		go func() {
			log.Info().Str("addr", server.Addr).Msg("admin http listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("admin http server")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutdown requested")

	if bot != nil {
		bot.StopPolling()
	}
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("admin http shutdown")
		}
	}
}

// buildAI assembles the provider stack from whatever keys are present. With
// several providers configured the multi adapter routes per model name; with
// none the noop adapter keeps local runs alive.
func buildAI(ctx context.Context, cfg *config.AIConfig, log *zerolog.Logger) (adapter.AIServiceAdapter, error) {
	providers := map[string]adapter.AIServiceAdapter{}
	fallback := ""

	if cfg.WorkersAPIKey != "" && cfg.WorkersAccountID != "" {
		w, err := aiAdapters.NewWorkersAdapter(cfg.WorkersAccountID, cfg.WorkersAPIKey, cfg.WorkersBaseURL)
		if err != nil {
			return nil, fmt.Errorf("workers adapter: %w", err)
		}
		providers["workers"] = w
		fallback = "workers"
		log.Info().Msg("ai provider: cloudflare workers")
	}
	if cfg.OpenAIKey != "" {
		o, err := aiAdapters.NewOpenAIAdapter(cfg.OpenAIKey, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, fmt.Errorf("openai adapter: %w", err)
		}
		providers["openai"] = o
		if fallback == "" {
			fallback = "openai"
		}
		log.Info().Msg("ai provider: openai")
	}
	if cfg.GeminiKey != "" {
		g, err := aiAdapters.NewGeminiAdapter(ctx, cfg.GeminiKey, cfg.GeminiURL, 1024)
		if err != nil {
			return nil, fmt.Errorf("gemini adapter: %w", err)
		}
		providers["gemini"] = g
		if fallback == "" {
			fallback = "gemini"
		}
		log.Info().Msg("ai provider: gemini")
	}

	switch len(providers) {
	case 0:
		log.Warn().Msg("no ai provider configured, replies will echo input")
		return aiAdapters.NewNoopAdapter(), nil
	case 1:
		return providers[fallback], nil
	default:
		return aiAdapters.NewMultiAdapter(providers, cfg.ModelProviders, fallback)
	}
}
