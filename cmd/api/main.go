package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rfqtrack.org/internal/auth"
	"rfqtrack.org/internal/config"
	"rfqtrack.org/internal/httpapi"
	"rfqtrack.org/internal/obs"
	"rfqtrack.org/internal/store/pg"
	"rfqtrack.org/internal/stream"
)

var version = "1.0.0"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store, err := pg.Open(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	tokens, err := auth.NewAuthenticator(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("authenticator: %v", err)
	}

	tmpl, err := httpapi.LoadTemplates(cfg.TemplateDir)
	if err != nil {
		log.Fatalf("templates: %v", err)
	}

	api := httpapi.New(
		store,
		auth.NewService(store, tokens),
		tokens,
		stream.New(),
		tmpl,
		httpapi.ReadyProbe{DB: store.DB()},
		cfg.StaticDir,
		version,
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(cfg.RateBurst, cfg.RatePerSec, cfg.MaxBodyBytes),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting rfqtrack %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = store.Close()
	log.Println("Stopped")
}
