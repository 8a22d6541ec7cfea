package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"matchchat/backend/internal/api/handler"
	"matchchat/backend/internal/chathub"
	"matchchat/backend/internal/config"
	"matchchat/backend/internal/localization"
	"matchchat/backend/internal/storage"
	"matchchat/backend/internal/telegram"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// setupDependencies opens whichever backends are configured and closes
// archive rows left active by a previous run.
func setupDependencies(cfg *config.Config) *storage.Service {
	s := storage.NewStorageService(nil, nil)

	if cfg.ArchiveEnabled() {
		db, err := storage.OpenDatabase(cfg.DatabaseDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		s.DB = db
		log.Info().Msg("database connected, room archive enabled")
	} else {
		log.Info().Msg("DATABASE_DSN not set, room archive disabled")
	}

	if cfg.StatsEnabled() {
		rdb, err := storage.OpenRedis(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		s.Redis = rdb
		log.Info().Msg("redis connected, stats publishing enabled")
	} else {
		log.Info().Msg("REDIS_URL not set, stats publishing disabled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.StorageOpTimeout)
	defer cancel()
	closed, err := s.CloseStaleRooms(ctx, time.Now())
	if err != nil {
		log.Warn().Err(err).Msg("failed to close stale rooms")
	} else if closed > 0 {
		log.Info().Int64("rooms", closed).Msg("closed rooms left open by previous run")
	}

	return s
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	log.Info().Msg("Starting MatchChat backend...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setLogLevel(cfg.LogLevel)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	texts, err := localization.Default()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load translations")
	}

	// 1. Ініціалізація залежностей
	s := setupDependencies(cfg)
	defer func() {
		if err := s.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close storage")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Ініціалізація Chat Hub
	journal := make(chan chathub.JournalEvent, cfg.JournalBufferSize)
	coordinator := chathub.NewCoordinator(texts,
		chathub.WithLanguage(cfg.Language),
		chathub.WithJournal(journal),
		chathub.WithMaxMessageLength(cfg.MaxMessageLength),
	)
	hub := chathub.NewManagerService(coordinator)
	recorder := chathub.NewRecorder(s, journal)

	// 3. Запуск основних Goroutines
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	recorderCtx, stopRecorder := context.WithCancel(context.Background())
	defer stopRecorder()
	recorderDone := make(chan struct{})
	go func() {
		recorder.Run(recorderCtx)
		close(recorderDone)
	}()

	if cfg.TelegramEnabled() {
		bot, err := telegram.NewBotService(cfg.TelegramBotToken, hub, texts, cfg.Language, cfg.SendBufferSize)
		if err != nil {
			log.Error().Err(err).Msg("failed to start telegram bot, continuing without it")
		} else {
			go bot.Run(ctx)
		}
	}

	// 4. Налаштування Gin та роутингу
	router := handler.NewRouter(handler.NewHandler(hub, cfg.AllowedOrigins, cfg.SendBufferSize))

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// The hub disconnects every remaining client; the recorder then flushes
	// what those disconnects journaled.
	stopHub()
	select {
	case <-hub.Done():
	case <-shutdownCtx.Done():
		log.Warn().Msg("hub did not stop in time")
	}
	stopRecorder()
	select {
	case <-recorderDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("recorder did not stop in time")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
