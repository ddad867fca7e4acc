package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/zombar/imagefinder"
	"github.com/zombar/imagefinder/api"
	"github.com/zombar/imagefinder/db"
	"github.com/zombar/imagefinder/search"
	"github.com/zombar/imagefinder/storage"
	"github.com/zombar/imagefinder/tracing"
)

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("imagefinder service initializing", "version", "1.0.0")

	// Initialize tracing
	tp, err := tracing.InitTracer("imagefinder")
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
		logger.Info("tracing initialized successfully")
	}

	// Default values
	defaultPort := getEnv("PORT", "8080")
	defaultSearchURL := getEnv("SEARCH_URL", "http://localhost:8888")
	defaultArchivePath := getEnv("ARCHIVE_BASE_PATH", "./archive")

	// Command-line flags (override environment variables)
	port := flag.String("port", defaultPort, "Server port")
	searchURL := flag.String("search-url", defaultSearchURL, "Fallback search endpoint base URL")
	archivePath := flag.String("archive-path", defaultArchivePath, "Base directory for archived winning images")
	pageTimeout := flag.Duration("page-timeout", 10*time.Second, "Timeout for fetching candidate pages")
	imageTimeout := flag.Duration("image-timeout", 12*time.Second, "Timeout for fetching candidate images")
	disableCORS := flag.Bool("disable-cors", false, "Disable CORS")
	flag.Parse()

	// PostgreSQL database configuration (required)
	dbHost := getEnv("DB_HOST", "")
	if dbHost == "" {
		logger.Error("DB_HOST environment variable is required")
		os.Exit(1)
	}

	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "imagefinder")
	dbPassword := getEnv("DB_PASSWORD", "imagefinder_dev_pass")
	dbName := getEnv("DB_NAME", "imagefinder")

	dbConfig := db.Config{
		DSN: fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", dbHost, dbPort, dbUser, dbPassword, dbName),
	}
	logger.Info("using PostgreSQL database", "host", dbHost, "port", dbPort, "database", dbName)

	finderConfig := imagefinder.DefaultConfig()
	finderConfig.PageTimeout = *pageTimeout
	finderConfig.ImageTimeout = *imageTimeout

	// Object-storage archiving takes over when an S3 bucket is configured
	var s3Config *storage.S3Config
	if bucket := getEnv("S3_BUCKET", ""); bucket != "" {
		s3Config = &storage.S3Config{
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Bucket:          bucket,
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnv("S3_USE_PATH_STYLE", "") == "true",
		}
		logger.Info("using S3 archive storage", "bucket", bucket, "region", s3Config.Region)
	}

	config := api.Config{
		Addr:         ":" + *port,
		DBConfig:     dbConfig,
		FinderConfig: finderConfig,
		SearchConfig: search.Config{
			BaseURL: *searchURL,
			Timeout: 10 * time.Second,
		},
		ArchivePath: *archivePath,
		S3Config:    s3Config,
		CORSEnabled: !*disableCORS,
	}

	server, err := api.NewServer(config)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Start server in a goroutine
	go func() {
		logger.Info("imagefinder service starting",
			"port", *port,
			"database_host", dbHost,
			"database_name", dbName,
			"search_url", *searchURL,
			"archive_path", *archivePath,
			"page_timeout", pageTimeout.String(),
			"image_timeout", imageTimeout.String(),
		)

		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	logger.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
