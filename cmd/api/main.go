package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gazette/api/internal/app"
	"gazette/api/internal/cache"
	"gazette/api/internal/config"
	"gazette/api/internal/email"
	"gazette/api/internal/export"
	"gazette/api/internal/media"
	"gazette/api/internal/revisions"
	"gazette/api/internal/search"
	"gazette/api/internal/session"
	"gazette/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.RevisionsDir, 0o755); err != nil {
		log.Fatalf("failed to create revisions dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	deps := app.Deps{
		Revisions: revisions.New(cfg.RevisionsDir),
		Export:    export.NewService(),
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	deps.Search = search.NewService(meiliClient, pgfts)
	deps.Search.ReindexAllFromPG(ctx)

	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for refresh token storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		deps.Sessions = redisStore
		deps.Cache = cache.NewRedisCache(redisStore.Client(), cfg.PostCacheTTL)
	} else {
		log.Printf("Using PostgreSQL for refresh token storage")
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		mediaStore, err := media.New(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL, cfg.MediaBaseURL)
		if err != nil {
			log.Fatalf("media storage setup failed: %v", err)
		}
		deps.Media = mediaStore
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mailer.IsConfigured() {
		deps.Email = mailer
	}

	service := app.New(cfg, dataStore, deps)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Gazette API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
