// Command forecastjob recomputes the forecast snapshot for every site with
// submissions. By default it runs the batch once and exits; with -cron it
// stays up and runs on the given schedule. Overlapping runs are the
// scheduler's responsibility to avoid.
package main

import (
	"flag"
	"log"

	"hydrogauge/internal/config"
	"hydrogauge/internal/database"
	"hydrogauge/internal/forecast"

	"github.com/robfig/cron/v3"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config file")
	schedule := flag.String("cron", "", "cron schedule (e.g. \"0 * * * *\"); empty runs once")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewDB(config.GetDatabaseDSN())
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	job := forecast.NewBatchJob(db, forecast.Config{
		Alpha:   cfg.Forecast.Alpha,
		Horizon: cfg.Forecast.Horizon,
	})

	if *schedule == "" {
		if _, err := job.Run(); err != nil {
			log.Fatalf("Forecast batch failed: %v", err)
		}
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(*schedule, func() {
		if _, err := job.Run(); err != nil {
			log.Printf("Forecast batch failed: %v", err)
		}
	}); err != nil {
		log.Fatalf("Invalid cron schedule %q: %v", *schedule, err)
	}

	log.Printf("Running forecast batch on schedule %q", *schedule)
	c.Run()
}
