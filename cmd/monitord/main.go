package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Praj460/PowerPulse-AI/internal/config"
	"github.com/Praj460/PowerPulse-AI/internal/health"
	"github.com/Praj460/PowerPulse-AI/internal/monitor"
)

func main() {
	cfgPath := flag.String("config", "configs/dev/monitord.yaml", "path to config")
	flag.Parse()

	cfg, err := config.LoadMonitor(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner, err := monitor.New(cfg)
	if err != nil {
		log.Fatalf("new runner: %v", err)
	}
	defer runner.Close()

	if err := runner.Start(ctx); err != nil {
		log.Fatalf("start runner: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", health.Handler(cfg.Service.Name))
	mux.Handle("/readyz", health.ReadyHandler(runner.Checks()))
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         cfg.Service.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("monitor listening on %s", cfg.Service.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
