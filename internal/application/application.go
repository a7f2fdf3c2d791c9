package application

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/fieldops/request-service/internal/artifact"
	"github.com/fieldops/request-service/internal/auth"
	"github.com/fieldops/request-service/internal/config"
	"github.com/fieldops/request-service/internal/database"
	"github.com/fieldops/request-service/internal/engine"
	"github.com/fieldops/request-service/internal/handler"
	"github.com/fieldops/request-service/internal/kafka"
	"github.com/fieldops/request-service/internal/query"
	"github.com/fieldops/request-service/internal/router"
	"github.com/fieldops/request-service/internal/store"
)

// API wires the HTTP server for the api mode.
type API struct {
	cfg      *config.Config
	httpSrv  *http.Server
	producer *kafka.Producer
}

func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	requestStore := store.New(db)
	artifactStore := artifact.NewStore(db)
	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicRequest)
	eng := engine.New(requestStore, requestStore, artifactStore, producer)
	querySvc := query.NewService(requestStore)
	verifier := auth.NewVerifier(cfg.JWTSecret)
	requestHandler := handler.NewRequestHandler(eng, querySvc, artifactStore)

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.New(verifier, requestHandler),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{cfg: cfg, httpSrv: httpSrv, producer: producer}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	log.Printf("HTTP server listening on %s", a.httpSrv.Addr)
	log.Printf("  Swagger UI:    %s/swagger", base)
	log.Printf("  Swagger spec:  %s/swagger/openapi.json", base)
	log.Printf("  Health:        %s/health", base)
	log.Printf("  Ready:         %s/ready", base)
	log.Printf("  API v1:        %s/api/v1/", base)

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := a.producer.Close(); err != nil {
		log.Printf("kafka close: %v", err)
	}
	return nil
}
