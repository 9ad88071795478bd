package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"orderstream/internal/auth"
	"orderstream/internal/config"
	"orderstream/internal/redis"
	db "orderstream/internal/repository/postgres"
	"orderstream/internal/rest"
	"orderstream/internal/ws"
)

func main() {
	cfg := config.MustLoad()
	setupLogger(cfg.Service.LogLevel)

	repo := db.New(cfg)
	defer repo.Close()

	redisClient := redis.NewClient(cfg.Redis.URL)
	defer redisClient.Close()

	authSvc := auth.New(cfg.JWT.Secret, cfg.JWT.TTL)

	// Create hub
	hub := ws.NewHub()
	go hub.Run(context.Background())

	// Subscribe to the event bus
	go redis.SubscribeToEvents(redisClient, hub)

	// Routes
	handler := rest.New(repo, redisClient)
	router := rest.NewRouter(handler, authSvc)
	router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, authSvc, w, r)
	})

	slog.Info("orderstream server starting", "port", cfg.Service.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Service.Port, router))
}

func setupLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
