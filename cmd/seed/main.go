// Command seed loads monitoring sites from a CSV, creates a default
// supervisor account, and optionally generates signed sample submissions
// so the derived-signal endpoints have data to work with.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"

	"hydrogauge/internal/auth"
	"hydrogauge/internal/config"
	"hydrogauge/internal/database"
	"hydrogauge/internal/ingest"
	"hydrogauge/internal/models"
	"hydrogauge/internal/signature"

	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config file")
	csvPath := flag.String("sites", "sites_seed.csv", "CSV of sites: id,name,location,lat,lng")
	sampleCount := flag.Int("submissions", 0, "sample submissions to generate per site")
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

	seedSupervisor(db)
	sites := seedSites(db, *csvPath)

	if *sampleCount > 0 {
		seedSubmissions(db, sites, *sampleCount, cfg.Ingest.DeviceSecret)
	}
}

func seedSupervisor(db *database.DB) {
	hash, err := auth.HashPassword("changeme123")
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	user := &models.User{
		Username:  "admin",
		Password:  hash,
		Name:      "Administrator",
		Role:      "Supervisor",
		CreatedAt: time.Now().UTC(),
	}
	if err := db.InsertUser(user); err != nil {
		if err == database.ErrDuplicate {
			log.Printf("Supervisor account already exists")
			return
		}
		log.Fatalf("Failed to create supervisor account: %v", err)
	}
	log.Printf("Created supervisor account 'admin' (change the password)")
}

func seedSites(db *database.DB, csvPath string) []models.Site {
	file, err := os.Open(csvPath)
	if err != nil {
		log.Fatalf("Failed to open CSV file: %v", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header row
	header, err := reader.Read()
	if err != nil {
		log.Fatalf("Failed to read CSV header: %v", err)
	}
	log.Printf("CSV Header: %v", header)

	var sites []models.Site
	count := 0
	skipped := 0

	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			log.Fatalf("Failed to read CSV record: %v", err)
		}

		if len(record) < 5 {
			log.Printf("Skipping invalid record: %v", record)
			skipped++
			continue
		}

		lat, err := strconv.ParseFloat(record[3], 64)
		if err != nil {
			log.Printf("Skipping record with invalid latitude: %v", record)
			skipped++
			continue
		}

		lng, err := strconv.ParseFloat(record[4], 64)
		if err != nil {
			log.Printf("Skipping record with invalid longitude: %v", record)
			skipped++
			continue
		}

		now := time.Now().UTC()
		site := models.Site{
			ID:        record[0],
			Name:      record[1],
			Location:  record[2],
			Lat:       lat,
			Lng:       lng,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := db.InsertSite(&site); err != nil {
			if err == database.ErrDuplicate {
				log.Printf("Site already exists: %s", site.ID)
			} else {
				log.Printf("Failed to insert site %s: %v", site.ID, err)
			}
			skipped++
			continue
		}

		sites = append(sites, site)
		count++
	}

	log.Printf("Import complete! Successfully inserted %d sites, skipped %d", count, skipped)
	return sites
}

// seedSubmissions pushes signed sample readings through the real ingest
// pipeline, so the seed data went through the same signature and
// validation checks a device submission would.
func seedSubmissions(db *database.DB, sites []models.Site, perSite int, deviceSecret string) {
	ingestor := ingest.NewIngestor(db, deviceSecret)
	secret := []byte(deviceSecret)
	count := 0

	for _, site := range sites {
		base := 1.0 + rand.Float64()*3.0
		for i := 0; i < perSite; i++ {
			capturedAt := time.Now().UTC().Add(-time.Duration(perSite-i) * time.Hour).Format(time.RFC3339)
			id := "sub_" + uuid.NewString()
			deviceID := fmt.Sprintf("seed-device-%s", site.ID)
			level := base + rand.NormFloat64()*0.15
			imageURL := fmt.Sprintf("https://example.invalid/seed/%s.jpg", id)

			payload := &ingest.Payload{
				ID:               &id,
				SiteID:           &site.ID,
				SiteName:         &site.Name,
				WaterLevelMeters: &level,
				Lat:              &site.Lat,
				Lng:              &site.Lng,
				CapturedAt:       &capturedAt,
				ImageURL:         &imageURL,
				DeviceID:         deviceID,
			}
			sig := signature.Compute(id, capturedAt, deviceID, secret)

			if _, err := ingestor.Ingest(payload, sig, nil); err != nil {
				log.Printf("Failed to ingest submission for site %s: %v", site.ID, err)
				continue
			}
			count++
		}
	}

	log.Printf("Generated %d sample submissions across %d sites", count, len(sites))
}
