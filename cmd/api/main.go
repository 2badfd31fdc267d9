//	@title			Radif Media API
//	@version		1.0
//	@description	Attachment and avatar uploads, staged media association and orphan reclamation.
//
//	@host		localhost:8080
//	@BasePath	/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: **Bearer {token}**
//
//	@securityDefinitions.apikey	CronSecret
//	@in							header
//	@name						Authorization
//	@description				Shared secret for the scheduler and the post service. Format: **Bearer {secret}**

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/radif/media/internal/avatar"
	"github.com/radif/media/internal/config"
	"github.com/radif/media/internal/db"
	"github.com/radif/media/internal/logger"
	"github.com/radif/media/internal/media"
	"github.com/radif/media/internal/metrics"
	appMiddleware "github.com/radif/media/internal/middleware"
	"github.com/radif/media/internal/presence"
	"github.com/radif/media/internal/reaper"
	"github.com/radif/media/internal/storage"
	"github.com/radif/media/internal/user"

	_ "github.com/radif/media/docs/swagger"
)

func main() {
	cfg := config.Load()

	sugar, err := logger.New(!cfg.IsProduction())
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer sugar.Sync() //nolint:errcheck

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	pool, err := db.Connect(startCtx, cfg.DatabaseURL)
	if err != nil {
		sugar.Fatalw("database connection failed", "error", err)
	}
	defer pool.Close()

	applied, err := db.Migrate(cfg.DatabaseURL)
	if err != nil {
		sugar.Fatalw("database migration failed", "error", err)
	}
	sugar.Infow("database ready", "migrations_applied", applied)

	store, err := storage.New(startCtx, storage.Config{
		Driver:     cfg.StorageDriver,
		Endpoint:   cfg.StorageEndpoint,
		Region:     cfg.StorageRegion,
		AccessKey:  cfg.StorageAccessKey,
		SecretKey:  cfg.StorageSecretKey,
		Bucket:     cfg.StorageBucket,
		UseSSL:     cfg.StorageUseSSL,
		PublicBase: cfg.StoragePublicBase,
	})
	if err != nil {
		sugar.Fatalw("object storage init failed", "error", err)
	}
	if cfg.StorageProvision {
		switch err := store.Provision(startCtx); {
		case errors.Is(err, storage.ErrCORSNotApplied):
			sugar.Warnw("bucket ready without cors rules", "bucket", cfg.StorageBucket, "error", err)
		case err != nil:
			sugar.Fatalw("bucket provisioning failed", "bucket", cfg.StorageBucket, "error", err)
		}
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		sugar.Fatalw("invalid REDIS_URL", "error", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(startCtx).Err(); err != nil {
		// Avatar updates report ProfileUpdateFailed until the cache is reachable.
		sugar.Warnw("presence cache unreachable", "error", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Wire dependencies: repository → service → handler
	userRepo := user.NewRepository(pool)
	userSvc := user.NewService(userRepo)
	userHandler := user.NewHandler(userSvc)

	mediaRepo := media.NewRepository(pool)
	mediaSvc := media.NewService(mediaRepo, store, m, sugar.Named("media"))
	mediaHandler := media.NewHandler(mediaSvc, sugar.Named("media"))

	profiles := presence.NewStore(rdb, cfg.PresenceKeyPrefix)
	replacer := avatar.NewReplacer(userSvc, profiles, store, m, sugar.Named("avatar"))
	avatarHandler := avatar.NewHandler(replacer, sugar.Named("avatar"))

	orphanReaper := reaper.New(mediaRepo, store, reaper.Config{
		Grace:        cfg.ReaperGracePeriod,
		EnforceGrace: cfg.ReaperEnforceAge,
		Concurrency:  cfg.ReaperConcurrency,
	}, m, sugar.Named("reaper"))
	reaperHandler := reaper.NewHandler(orphanReaper, sugar.Named("reaper"))

	var scheduler *reaper.Scheduler
	if cfg.ReaperSchedule != "" {
		scheduler, err = reaper.NewScheduler(cfg.ReaperSchedule, orphanReaper, sugar.Named("reaper"))
		if err != nil {
			sugar.Fatalw("reaper scheduler init failed", "error", err)
		}
		scheduler.Start()
		sugar.Infow("in-process reaper scheduled", "schedule", cfg.ReaperSchedule)
	}

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger(sugar.Named("http")))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/metrics", metrics.Handler(reg))

	// Swagger UI at http://localhost:8080/swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	requireSecret := appMiddleware.RequireSecret(cfg.CronSecret)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/uploads", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(appMiddleware.RequireAuth(cfg.JWTSecret))
				r.Post("/attachments", mediaHandler.UploadAttachments)
				r.Post("/avatar", avatarHandler.Upload)
			})

			// Called by the external scheduler
			r.With(requireSecret).Get("/cleanup", reaperHandler.Cleanup)
			r.With(requireSecret).Post("/cleanup", reaperHandler.Cleanup)
		})

		// Service-to-service endpoints for the post service
		r.Route("/internal/media", func(r chi.Router) {
			r.Use(requireSecret)
			r.Post("/attach", mediaHandler.Attach)
			r.Delete("/{id}", mediaHandler.Delete)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(appMiddleware.RequireAuth(cfg.JWTSecret))
			r.Get("/me", userHandler.GetMe)
		})
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine; wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sugar.Infow("server listening", "port", cfg.Port, "env", cfg.AppEnv, "bucket", cfg.StorageBucket)
		sugar.Infof("swagger UI at http://localhost:%s/swagger/", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("server error", "error", err)
		}
	}()

	<-quit
	sugar.Info("shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if scheduler != nil {
		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
			sugar.Warn("reaper sweep still running at shutdown")
		}
	}

	if err := srv.Shutdown(ctx); err != nil {
		sugar.Fatalw("forced shutdown", "error", err)
	}

	sugar.Info("server stopped")
}
