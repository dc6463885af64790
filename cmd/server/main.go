package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mesikahq/patient-monitoring/internal/api"
	"github.com/mesikahq/patient-monitoring/internal/audit"
	"github.com/mesikahq/patient-monitoring/internal/auth"
	"github.com/mesikahq/patient-monitoring/internal/config"
	"github.com/mesikahq/patient-monitoring/internal/database"
	"github.com/mesikahq/patient-monitoring/internal/encryption"
	"github.com/mesikahq/patient-monitoring/internal/group"
	"github.com/mesikahq/patient-monitoring/internal/patient"
	"github.com/mesikahq/patient-monitoring/internal/profile"
	"github.com/mesikahq/patient-monitoring/internal/rbac"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Error loading .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	pgPort := cfg.Database.Port
	if portEnv := os.Getenv("POSTGRES_PORT"); portEnv != "" {
		pgPort, err = strconv.Atoi(portEnv)
		if err != nil {
			logger.Fatal("Invalid POSTGRES_PORT", zap.Error(err))
		}
	}

	postgresConfig := database.PostgresConfig{
		Host:        os.Getenv("POSTGRES_HOST"),
		Port:        pgPort,
		Database:    os.Getenv("POSTGRES_DB"),
		User:        os.Getenv("POSTGRES_USER"),
		Password:    os.Getenv("POSTGRES_PASSWORD"),
		SSLMode:     os.Getenv("POSTGRES_SSLMODE"),
		MaxPoolSize: 10,
		ConnTimeout: 5 * time.Second,
	}

	ctx := context.Background()
	db, err := database.Connect(ctx, postgresConfig)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer database.Disconnect(db)

	esClient, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{os.Getenv("ELASTICSEARCH_URL")},
		Username:  os.Getenv("ELASTICSEARCH_USERNAME"),
		Password:  os.Getenv("ELASTICSEARCH_PASSWORD"),
	})
	if err != nil {
		logger.Fatal("Failed to connect to Elasticsearch", zap.Error(err))
	}
	auditService := audit.NewService(esClient)

	encryptService, err := encryption.NewService()
	if err != nil {
		logger.Fatal("Failed to initialize encryption service", zap.Error(err))
	}

	engine := rbac.NewEngine()
	groupService := group.NewService(group.NewPostgresStore(db), auditService, nil)
	profileService := profile.NewService(profile.NewPostgresStore(db), engine, groupService, encryptService, auditService)
	patientService := patient.NewService(patient.NewPostgresStore(db), engine, encryptService, auditService)

	authService := auth.NewService(db, profileService, auditService, auth.ServiceConfig{
		JWTSecret:   os.Getenv("JWT_SECRET"),
		TokenExpiry: cfg.Auth.TokenExpiry,
	})
	if err := authService.Initialize(ctx); err != nil {
		logger.Fatal("Failed to initialize auth service", zap.Error(err))
	}

	handler := api.NewHandler(authService, profileService, patientService, groupService)
	router := api.NewRouter(handler, authService)
	engineHTTP := router.SetupRouter(logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: engineHTTP,
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	go func() {
		log.Printf("Starting server on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if cfg.Server.TLS.Enabled {
			if err := srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		} else {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
