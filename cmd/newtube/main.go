package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/newtube/newtube/internal/database"
	"github.com/newtube/newtube/internal/geoip"
	"github.com/newtube/newtube/internal/server"
	"github.com/newtube/newtube/internal/storage"
	"github.com/newtube/newtube/internal/workflow"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("could not load .env: %v", err)
	}

	port := getEnv("PORT", "8080")

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, databaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(databaseURL); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}
	if err := workflow.Migrate(ctx, db.Pool); err != nil {
		log.Fatalf("job queue migration failed: %v", err)
	}
	log.Println("database migrations applied")

	maxUploadBytes := getEnvInt64("MAX_UPLOAD_BYTES", 2*1024*1024*1024)
	baseURL := getEnv("BASE_URL", "http://localhost:8080")

	store, err := storage.New(ctx, storage.Config{
		Endpoint:       getEnv("S3_ENDPOINT", "http://localhost:9000"),
		PublicEndpoint: os.Getenv("S3_PUBLIC_ENDPOINT"),
		Bucket:         getEnv("S3_BUCKET", "newtube"),
		AccessKey:      os.Getenv("S3_ACCESS_KEY"),
		SecretKey:      os.Getenv("S3_SECRET_KEY"),
		Region:         getEnv("S3_REGION", "us-east-1"),
		MaxUploadBytes: maxUploadBytes,
	})
	if err != nil {
		log.Fatalf("storage initialization failed: %v", err)
	}
	if err := store.EnsureBucket(ctx, allowedOrigins(baseURL)); err != nil {
		log.Fatalf("storage bucket check failed: %v", err)
	}
	log.Println("storage bucket ready")

	locator := geoip.Open(os.Getenv("GEOIP_DB_PATH"))
	defer locator.Close()

	cfg := server.Config{
		DB:               db.Pool,
		Pinger:           db,
		Storage:          store,
		JWTSecret:        jwtSecret,
		BaseURL:          baseURL,
		MaxUploadBytes:   maxUploadBytes,
		S3PublicEndpoint: os.Getenv("S3_PUBLIC_ENDPOINT"),
		Locator:          locator,
		WebhookSecret:    os.Getenv("TRANSCODER_WEBHOOK_SECRET"),
	}

	var jobs *workflow.Client
	if getEnvBool("AI_ENABLED", false) {
		model := getEnv("AI_MODEL", "gpt-4o-mini")
		aiClient := workflow.NewAIClient(
			getEnv("AI_BASE_URL", "https://api.openai.com"),
			os.Getenv("AI_API_KEY"),
			model,
			getEnv("AI_IMAGE_MODEL", "dall-e-3"),
		)
		jobs, err = workflow.New(db.Pool, workflow.Deps{
			DB:      db.Pool,
			AI:      aiClient,
			Storage: store,
		}, int(getEnvInt64("JOB_WORKERS", 4)))
		if err != nil {
			log.Fatalf("job queue initialization failed: %v", err)
		}
		if err := jobs.Start(context.Background()); err != nil {
			log.Fatalf("job queue start failed: %v", err)
		}
		cfg.Generator = jobs
		log.Printf("AI generation enabled (model: %s)", model)
	}

	srv := server.New(cfg)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("newtube listening on :%s", port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-shutdownCh
	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	if jobs != nil {
		if err := jobs.Stop(shutdownCtx); err != nil {
			slog.Error("job queue shutdown failed", "error", err)
		}
	}
	log.Println("shutdown complete")
}

// allowedOrigins lists the browser origins allowed to PUT uploads straight
// to the bucket.
func allowedOrigins(baseURL string) []string {
	origin := strings.TrimRight(baseURL, "/")
	if origin == "" {
		return nil
	}
	return []string{origin}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
