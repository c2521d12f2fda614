package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Praj460/PowerPulse-AI/internal/config"
	"github.com/Praj460/PowerPulse-AI/internal/health"
	"github.com/Praj460/PowerPulse-AI/internal/httpapi"
	"github.com/Praj460/PowerPulse-AI/internal/sim"
	"github.com/Praj460/PowerPulse-AI/pkg/storage"
)

func main() {
	cfgPath := flag.String("config", "configs/dev/apiserver.yaml", "path to config")
	flag.Parse()

	cfg, err := config.LoadAPI(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := storage.New(cfg.Storage.PostgresDSN)
	if err != nil {
		log.Fatalf("create storage: %v", err)
	}
	defer store.Close()

	engine, err := sim.New(cfg.Device)
	if err != nil {
		log.Fatalf("simulation engine: %v", err)
	}

	checks := map[string]func() error{
		"postgres": func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return store.Ping(ctx)
		},
	}

	var cache httpapi.SweepCache
	if cfg.Cache.Enabled {
		redisCache, err := httpapi.NewRedisCache(cfg.Cache.RedisAddr, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
		if err != nil {
			log.Fatalf("connect redis: %v", err)
		}
		defer redisCache.Close()
		cache = redisCache
		checks["redis"] = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisCache.Ping(ctx)
		}
	}

	// Acknowledgements need the control subject; the API degrades to 503
	// on that endpoint when the bus is down instead of refusing to start.
	var control httpapi.Publisher
	nc, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		log.Printf("nats unavailable, acknowledgements disabled: %v", err)
	} else {
		defer nc.Close()
		control = nc
		checks["nats"] = func() error {
			if !nc.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}
	}

	router := mux.NewRouter()
	router.Handle("/healthz", health.Handler(cfg.Service.Name))
	router.Handle("/readyz", health.ReadyHandler(checks))
	router.Handle("/metrics", promhttp.Handler())

	api := httpapi.New(store, engine, cache, control, cfg.NATS.SubjectControl)
	api.Register(router)

	logged := handlers.LoggingHandler(os.Stdout, router)
	recovered := handlers.RecoveryHandler()(logged)

	srv := &http.Server{
		Addr:         cfg.Service.HTTPAddr,
		Handler:      recovered,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("api server listening on %s", cfg.Service.HTTPAddr)
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
