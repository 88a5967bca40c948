package main

import (
	"flag"
	"log"

	"hydrogauge/internal/anomaly"
	"hydrogauge/internal/auth"
	"hydrogauge/internal/config"
	"hydrogauge/internal/database"
	"hydrogauge/internal/forecast"
	"hydrogauge/internal/ingest"
	"hydrogauge/internal/server"

	"github.com/go-redis/redis/v8"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := database.NewDB(config.GetDatabaseDSN())
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Anomaly event stream consumer side lives elsewhere; the engine only
	// publishes.
	events := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ingestor := ingest.NewIngestor(db, cfg.Ingest.DeviceSecret)
	forecasts := forecast.NewEngine(db, forecast.Config{
		Alpha:   cfg.Forecast.Alpha,
		Horizon: cfg.Forecast.Horizon,
	})
	anomalies := anomaly.NewEngine(db, cfg.Anomaly.Window, events, cfg.Redis.AnomalyStream)
	tokens := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTLHours)

	httpServer := server.NewServer(db, ingestor, forecasts, anomalies, tokens)

	log.Printf("Starting server on %s", cfg.Server.Addr)
	if err := httpServer.Start(cfg.Server.Addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
