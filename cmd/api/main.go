package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docbridge.org/internal/gemini"
	"docbridge.org/internal/httpapi"
	"docbridge.org/internal/obs"
	"docbridge.org/internal/stream"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	addr := envOr("DOCBRIDGE_ADDR", ":8080")

	var opts []gemini.Option
	if base := os.Getenv("DOCBRIDGE_GEMINI_BASE_URL"); base != "" {
		opts = append(opts, gemini.WithBaseURL(base))
	}
	if model := os.Getenv("DOCBRIDGE_MODEL"); model != "" {
		opts = append(opts, gemini.WithModel(model))
	}
	client := gemini.NewClient(opts...)

	api := httpapi.New(client, stream.New(), version)

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       5 * time.Minute, // large PDF uploads
		ReadHeaderTimeout: 15 * time.Second,
		// No write timeout: sync conversions block on the model and
		// /v1/events holds the connection open indefinitely.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Starting docbridge-api %s on %s", version, srv.Addr)

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
	log.Println("Stopped")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
