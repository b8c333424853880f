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

	"github.com/go-chi/cors"

	"fieldops/internal/api"
	"fieldops/internal/config"
	"fieldops/internal/maintenance"
	"fieldops/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := log.New(os.Stderr, "", log.LstdFlags)
	metrics.RegisterDefault()

	srvDeps, err := api.NewServer(cfg, logger)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	defer srvDeps.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MaintenanceRules != "" {
		w, err := maintenance.NewWatcher(cfg.MaintenanceRules, srvDeps.Evaluator, logger)
		if err != nil {
			log.Fatalf("maintenance rules: %v", err)
		}
		go w.Run(ctx)
	}

	handler := http.Handler(srvDeps.Routes())
	handler = api.RateLimit(cfg.RateRPS, cfg.RateBurst, handler)
	handler = cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Role", "X-Operator-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	})(handler)
	handler = api.Instrument(handler)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           logMiddleware(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Start webhook worker
	worker := srvDeps.NewWebhookWorker()
	worker.Start()
	defer close(worker.Stop)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("API listening on %s (store=%s)", srv.Addr, storeName(cfg.DBDriver))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

func storeName(driver string) string {
	if driver == "" {
		return "memory"
	}
	return driver
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		dur := time.Since(start)
		log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
	})
}
