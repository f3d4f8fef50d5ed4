// Package server exposes the HTTP and WebSocket surface of RapLab.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"RapLab/cache"
	"RapLab/config"
	"RapLab/core/auth"
	"RapLab/core/live"
	"RapLab/core/lyrics"
	"RapLab/core/pipeline"
	"RapLab/core/synth"
	"RapLab/core/track"
	"RapLab/core/worker"
	"RapLab/db"
	"RapLab/logger"
	"RapLab/repository"
	"RapLab/storage"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps 服务器依赖
type Deps struct {
	Auth         *auth.Service
	Store        *track.Store
	Orchestrator *pipeline.Orchestrator
	Queue        repository.QueueRepository
	Hub          *live.Hub
	Media        *storage.AudioStore // 可为空
	RatePerMin   int
}

// Server holds the handlers' dependencies.
type Server struct {
	auth    *auth.Service
	store   *track.Store
	orch    *pipeline.Orchestrator
	queue   repository.QueueRepository
	hub     *live.Hub
	media   *storage.AudioStore
	limiter *userLimiter

	// 后台生成任务的生命周期跟随服务器，而不是请求
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// New creates a Server.
func New(d Deps) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		auth:     d.Auth,
		store:    d.Store,
		orch:     d.Orchestrator,
		queue:    d.Queue,
		hub:      d.Hub,
		media:    d.Media,
		limiter:  newUserLimiter(d.RatePerMin),
		bgCtx:    ctx,
		bgCancel: cancel,
	}
}

// Close cancels background generation and waits for it to stop.
func (s *Server) Close() {
	s.bgCancel()
	s.bg.Wait()
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	router := mux.NewRouter()

	standard := alice.New(s.recoverPanic, s.logRequest, s.cors)
	optional := alice.New(s.authenticate)
	protected := optional.Append(s.requireAuth)
	limited := protected.Append(s.rateLimit)

	router.Handle("/healthz", http.HandlerFunc(s.handleHealth)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// 认证
	router.Handle("/api/auth/register", http.HandlerFunc(s.handleRegister)).Methods(http.MethodPost)
	router.Handle("/api/auth/login", http.HandlerFunc(s.handleLogin)).Methods(http.MethodPost)
	router.Handle("/api/auth/guest", http.HandlerFunc(s.handleGuest)).Methods(http.MethodPost)

	router.Handle("/api/artists", http.HandlerFunc(s.handleArtists)).Methods(http.MethodGet)

	// 曲目
	router.Handle("/api/tracks", optional.ThenFunc(s.handleListTracks)).Methods(http.MethodGet)
	router.Handle("/api/tracks", limited.ThenFunc(s.handleCreateTrack)).Methods(http.MethodPost)
	router.Handle("/api/tracks/{id}", http.HandlerFunc(s.handleGetTrack)).Methods(http.MethodGet)
	router.Handle("/api/tracks/{id}", protected.ThenFunc(s.handleDeleteTrack)).Methods(http.MethodDelete)

	// 生成
	router.Handle("/api/tracks/{id}/lyrics", limited.ThenFunc(s.handleGenerateLyrics)).Methods(http.MethodPost)
	router.Handle("/api/tracks/{id}/audio", limited.ThenFunc(s.handleGenerateAudio)).Methods(http.MethodPost)
	router.Handle("/api/tracks/{id}/generate", limited.ThenFunc(s.handleGenerate)).Methods(http.MethodPost)

	router.Handle("/api/queue/stats", protected.ThenFunc(s.handleQueueStats)).Methods(http.MethodGet)

	router.HandleFunc("/ws/tracks", s.handleTrackSocket)
	router.PathPrefix("/media/").HandlerFunc(s.handleMedia).Methods(http.MethodGet, http.MethodHead)

	return standard.Then(router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Start wires every component from cfg and serves until SIGINT/SIGTERM.
func Start(cfg *config.Config) error {
	if err := db.ConnectGormDB(cfg); err != nil {
		return err
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrate(db.GormDB); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := live.NewHub()
	go hub.Run()
	defer hub.Stop()

	var (
		events track.Publisher = hub
		locker pipeline.Locker
	)
	if cfg.RedisEnabled {
		if err := db.ConnectRedis(cfg); err != nil {
			return err
		}
		defer db.CloseRedis()
		logger.Info("Successfully connected to Redis")

		bus := cache.NewTrackEventBus(db.RedisClient)
		events = bus
		locker = cache.NewStepLocker(db.RedisClient, cfg.StepLockTTL)
		go func() {
			if err := bus.Relay(ctx, hub); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("[Server] track event relay stopped", logger.ErrorField(err))
			}
		}()
	}

	var (
		media   *storage.AudioStore
		objects track.ObjectRemover
	)
	if cfg.MinioEnabled {
		audioStore, err := storage.NewAudioStore(cfg)
		if err != nil {
			return err
		}
		media = audioStore
		objects = audioStore
	}

	var lyricsGen lyrics.Generator = lyrics.TemplateLyrics{}
	if cfg.LLMAPIURL != "" {
		lyricsGen = lyrics.NewChatLyrics(lyrics.ChatConfig{
			APIBaseURL:  cfg.LLMAPIURL,
			APIKey:      cfg.LLMAPIKey,
			Model:       cfg.LLMModel,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
		})
	}

	var audioGen synth.Generator = synth.PlaceholderAudio{Delay: cfg.AudioStubDelay}
	if cfg.SynthAPIURL != "" {
		var uploader synth.Uploader
		if media != nil {
			uploader = media
		}
		audioGen = synth.NewRemoteAudio(synth.RemoteConfig{
			APIURL:    cfg.SynthAPIURL,
			APIKey:    cfg.SynthAPIKey,
			OutputDir: cfg.SynthOutputDir,
			Duration:  cfg.SynthDuration,
		}, uploader)
	}

	trackRepo := repository.NewGormTrackRepository(db.GormDB)
	queueRepo := repository.NewGormQueueRepository(db.GormDB)
	userRepo := repository.NewGormUserRepository(db.GormDB)

	store := track.NewStore(trackRepo, events, objects)
	orch := pipeline.NewOrchestrator(store, queueRepo, lyricsGen, audioGen, locker)

	if cfg.QueueEnabled {
		// running 条目的重置窗口不短于步骤锁的 TTL
		runningTimeout := 4 * cfg.QueueStaleAfter
		if cfg.StepLockTTL > runningTimeout {
			runningTimeout = cfg.StepLockTTL
		}
		consumer := worker.NewConsumer(queueRepo, orch, worker.Config{
			PollInterval:   cfg.QueuePollInterval,
			StaleAfter:     cfg.QueueStaleAfter,
			RunningTimeout: runningTimeout,
			Batch:          cfg.QueueBatch,
			Workers:        cfg.QueueWorkers,
		})
		go consumer.Start(ctx)
	}

	srv := New(Deps{
		Auth:         auth.NewService(userRepo, auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)),
		Store:        store,
		Orchestrator: orch,
		Queue:        queueRepo,
		Hub:          hub,
		Media:        media,
		RatePerMin:   cfg.GenerateRatePerMin,
	})
	defer srv.Close()

	// 设置服务器超时
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // 音频步骤是同步请求
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("[Server] listening",
			logger.String("addr", cfg.HTTPAddr),
			logger.Bool("redis", cfg.RedisEnabled),
			logger.Bool("minio", cfg.MinioEnabled),
			logger.Bool("queue", cfg.QueueEnabled))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return err
	}
	logger.Info("[Server] shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("[Server] stopped")
	return nil
}
