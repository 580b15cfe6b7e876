// Command modeldb-stub serves an in-memory tracking service for local
// development against the client.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"modeldb-client/internal/testutil/fakeserver"
	"modeldb-client/pkg/config"
)

// deployPolls keeps a deployment "deploying" for a few status checks so
// waiting clients exercise their poll loop.
const deployPolls = 3

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	config.InitLogger(cfg)

	sc, err := loadStubConfig()
	if err != nil {
		log.Fatalf("load stub config: %v", err)
	}

	stub := fakeserver.New(fakeserver.Options{
		Email:       cfg.Email,
		DevKey:      cfg.DevKey,
		DeployPolls: deployPolls,
		Logger:      log.WithField("component", "modeldb-stub"),
	})
	if cfg.Email == "" {
		log.Warn("no credentials configured, accepting every caller")
	}

	addr := sc.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           stub.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("starting stub on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down stub...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced shutdown: %v", err)
	}

	log.Info("stub stopped")
}
