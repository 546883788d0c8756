// Command main runs the demo data seeder for Folio.
package main

import (
	"context"
	"flag"
	"log"

	"folio/internal/bootstrap"
	"folio/internal/config"
	"folio/internal/database"
	"folio/internal/seed"
)

func main() {
	defaults := seed.DefaultOptions()
	users := flag.Int("users", defaults.Users, "Number of users to create")
	pages := flag.Int("pages", defaults.PagesPerUser, "Pages per user")
	views := flag.Int("views", defaults.MaxViewsPerPage, "Maximum views per live page")
	waitlist := flag.Int("waitlist", defaults.Waitlist, "Number of waitlist entries")
	days := flag.Int("days", defaults.MaxDays, "Spread timestamps over this many days")
	pro := flag.Int("pro", defaults.ProPercent, "Percentage of users on the pro plan")
	randSeed := flag.Int64("seed", 0, "Random seed; 0 uses the clock")
	clean := flag.Bool("clean", defaults.Clean, "Remove existing data before seeding")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	ctx := context.Background()
	db, _, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{SkipRedis: true})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	summary, err := seed.NewSeeder(db, nil).Run(ctx, seed.Options{
		Users:           *users,
		PagesPerUser:    *pages,
		MaxViewsPerPage: *views,
		Waitlist:        *waitlist,
		MaxDays:         *days,
		ProPercent:      *pro,
		RandomSeed:      *randSeed,
		Clean:           *clean,
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Seeded %d users, %d pages, %d views, %d waitlist entries",
		summary.Users, summary.Pages, summary.Views, summary.Waitlist)
	log.Printf("All demo users have the password: %s", seed.DemoPassword)
}
