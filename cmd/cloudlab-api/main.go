// Command cloudlab-api serves the lab simulation and validation API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloudlab/internal/blob"
	"cloudlab/internal/catalog"
	"cloudlab/internal/core"
	"cloudlab/internal/httpapi"
	"cloudlab/internal/telemetry"
)

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func main() {
	log := telemetry.NewLogger(os.Stderr, getEnv("CLOUDLAB_LOG_LEVEL", "info"), os.Getenv("CLOUDLAB_LOG_FORMAT"))
	metrics := telemetry.NewMetrics()
	ctx := context.Background()

	labs, err := catalog.Open()
	if err != nil {
		log.WithError(err).Fatal("failed to load lab catalog")
	}

	engine := core.NewDefaultRulesEngine()
	store, err := core.OpenPersistentStore(engine)
	if err != nil {
		log.WithError(err).Fatal("failed to open persistent store")
	}

	artifacts, err := blob.Open(ctx)
	if err != nil {
		log.WithError(err).Fatal("failed to open artifact store")
	}

	svc := core.NewService(store, labs,
		core.WithArtifactStore(artifacts),
		core.WithLogger(log.NewComponentLogger("core")),
		core.WithMetrics(metrics),
	)

	server := httpapi.NewServer(svc, log, metrics)
	addr := getEnv("CLOUDLAB_LISTEN_ADDR", ":8080")

	go func() {
		log.Infof("listening on %s", addr)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown was not clean")
	}
	log.Info("server stopped")
}
