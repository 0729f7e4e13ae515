package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"supportbridge/internal/config"
	"supportbridge/internal/crm"
	"supportbridge/internal/httpserver"
	"supportbridge/internal/identity"
	"supportbridge/internal/platform/discord"
	"supportbridge/internal/relay"
	"supportbridge/internal/session"
	"supportbridge/internal/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.Debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	db, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := sqlite.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	userRepo := sqlite.NewUserRepo(db)
	threadRepo := sqlite.NewThreadRepo(db)
	messageRepo := sqlite.NewMessageRepo(db)
	reactionRepo := sqlite.NewReactionRepo(db)

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create discord session")
	}
	dg.Identify.Intents = discord.Intents()

	adapter := discord.NewClient(dg, cfg.GuildID, cfg.SupportChannelID, cfg.WebhookID, cfg.WebhookToken, logger)
	verifier := identity.NewClient(cfg.IdentityURL, logger)
	notifier := crm.NewNotifier(cfg.CRMURL, logger)
	registry := session.NewRegistry()

	engine := relay.NewEngine(relay.Options{
		Users:       userRepo,
		Threads:     threadRepo,
		Messages:    messageRepo,
		Reactions:   reactionRepo,
		Registry:    registry,
		Adapter:     adapter,
		Verifier:    verifier,
		Notifier:    notifier,
		StaffRoleID: cfg.StaffRoleID,
		PageSize:    cfg.PageSize,
		Logger:      logger,
	})

	discord.NewGateway(engine, logger).Attach(dg)

	if err := dg.Open(); err != nil {
		logger.Fatal().Err(err).Msg("failed to open discord gateway")
	}
	defer dg.Close()

	bootCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := adapter.VerifySetup(bootCtx, cfg.StaffRoleID); err != nil {
		cancel()
		logger.Fatal().Err(err).Msg("discord setup verification failed")
	}
	cancel()

	router := httpserver.NewRouter(cfg, engine, logger)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr()).Str("env", cfg.Env).Msg("starting supportbridge")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	ctx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
