package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/config"
	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/database"
	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/events"
	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/generation"
	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/handlers"
	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/logging"
	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/middleware"
	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/repository"
	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/router"
	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/scheduler"
	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/services"
	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/wake"
	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/websocket"
	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/worker"
)

func main() {
	// ──── Step 1: Environment ────
	cfg := config.Load()
	logger := logging.New(cfg.Env, "logs")
	logger.Info("starting StartSmart backend", "env", cfg.Env)

	// ──── Step 2: PostgreSQL ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("postgres connection failed", "error", err)
	}
	defer pool.Close()
	logger.Info("✓ PostgreSQL connected")

	// ──── Step 3: Redis ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis connection failed", "error", err)
	}
	defer redisClients.Close()
	logger.Info("✓ Redis connected")

	// ──── Step 4: Migrations ────
	if err := database.RunMigrations(pool, "migrations", logger); err != nil {
		logger.Fatal("database migration failed", "error", err)
	}
	logger.Info("✓ Database migrations applied")

	// ──── Repositories ────
	alarmRepo := repository.NewAlarmRepo(pool)
	intentRepo := repository.NewIntentRepo(pool)

	// ──── Wake delivery core ────
	clock := scheduler.SystemClock()
	dispatcher := wake.NewDispatcher(logger)
	queue := worker.NewQueue(redisClients.Queue, logger)
	publisher := events.NewPublisher(redisClients.Queue, logger)
	failsafe := scheduler.NewFailSafeMonitor(dispatcher, cfg.FailSafeGrace, cfg.BackupSoundID, logger)
	delivery := scheduler.NewDeliveryScheduler(
		scheduler.NewTriggerCalculator(),
		dispatcher,
		failsafe,
		alarmRepo,
		intentRepo,
		queue,
		publisher,
		clock,
		logger,
	)
	dispatcher.Bind(delivery.HandleWake)
	snoozeCtl := scheduler.NewSnoozeController(delivery, dispatcher, failsafe, alarmRepo, publisher, clock, logger)
	logger.Info("✓ Wake scheduler ready", "failsafe_grace", cfg.FailSafeGrace)

	// ──── Step 5: Generation pipeline ────
	scriptService, err := services.NewScriptService(cfg.GeminiAPIKey, cfg.ScriptModel, cfg.GeminiConcurrentReqs, logger)
	if err != nil {
		logger.Fatal("gemini client initialization failed", "error", err)
	}
	defer scriptService.Close()

	speechService, err := services.NewSpeechService(context.Background(), cfg.GoogleTTSAPIKey, cfg.DefaultVoice, logger)
	if err != nil {
		logger.Fatal("text-to-speech client initialization failed", "error", err)
	}

	audioStore, err := services.NewAudioStore(cfg.StoragePath, logger)
	if err != nil {
		logger.Fatal("audio storage initialization failed", "error", err)
	}

	orchestrator := generation.NewOrchestrator(
		intentRepo,
		alarmRepo,
		scriptService,
		speechService,
		audioStore,
		services.NewWeatherService(logger),
		services.NewCalendarService(logger),
		delivery,
		publisher,
		clock,
		generation.Config{
			LeadTime:      cfg.GenerationLeadTime,
			RetryInterval: cfg.GenerationRetryInterval,
			CallTimeout:   cfg.GenerationCallTimeout,
			ScriptModel:   cfg.ScriptModel,
			TTSModel:      cfg.TTSModel,
		},
		logger,
	)
	logger.Info("✓ Generation pipeline ready", "model", cfg.ScriptModel)

	// ──── Step 6: Worker pool ────
	workerPool := worker.NewPool(redisClients.Queue, queue, orchestrator, cfg.GenerationRetryInterval, cfg.WorkerCount, logger)
	workerPool.Start()
	logger.Info("✓ Worker pool started", "workers", cfg.WorkerCount)

	// ──── Step 7: Replay armed wakes ────
	// In-process timers do not survive a restart.
	restoreCtx, cancelRestore := context.WithTimeout(context.Background(), 30*time.Second)
	if err := delivery.RestoreAll(restoreCtx); err != nil {
		logger.Error("alarm restore failed", "error", err)
	}
	cancelRestore()

	// ──── Step 8: WebSocket hub ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth, logger)
	logger.Info("✓ WebSocket hub started")

	// ──── Step 9: HTTP server ────
	alarmHandler := handlers.NewAlarmHandler(
		alarmRepo,
		intentRepo,
		delivery,
		snoozeCtl,
		audioStore,
		handlers.AlarmDefaults{
			Tone:            cfg.DefaultTone,
			VoiceID:         cfg.DefaultVoice,
			FallbackSoundID: cfg.FallbackSoundID,
			SnoozeDuration:  cfg.DefaultSnoozeDuration,
			MaxSnoozeCount:  cfg.DefaultMaxSnoozes,
		},
		logger,
	)
	intentHandler := handlers.NewIntentHandler(intentRepo, alarmRepo, delivery, queue, logger)

	r := router.New(jwtAuth, alarmHandler, intentHandler, wsHub, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down")
		workerPool.Stop()
		dispatcher.Shutdown()
		wsHub.CloseAll()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	logger.Info("✓ StartSmart backend ready",
		"api", fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port),
		"ws", fmt.Sprintf("ws://localhost:%s/api/v1/ws", cfg.Port),
	)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", "error", err)
	}
}
