// Package seed fills a database with demo accounts, pages and view history
// for development. Nothing here runs in production paths.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"folio/internal/auth"
	"folio/internal/middleware"
	"folio/internal/models"
	"folio/internal/themes"

	"gorm.io/gorm"
)

// DemoPassword is the password every seeded account is created with.
const DemoPassword = "folio-demo-123"

const batchSize = 200

// Options configures a seeding run.
type Options struct {
	Users           int
	PagesPerUser    int
	MaxViewsPerPage int
	Waitlist        int
	MaxDays         int
	ProPercent      int
	RandomSeed      int64
	Clean           bool
}

// DefaultOptions returns a small but useful data set.
func DefaultOptions() Options {
	return Options{
		Users:           25,
		PagesPerUser:    2,
		MaxViewsPerPage: 40,
		Waitlist:        20,
		MaxDays:         60,
		ProPercent:      20,
		Clean:           true,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxDays <= 0 {
		o.MaxDays = 60
	}
	if o.PagesPerUser <= 0 {
		o.PagesPerUser = 1
	}
	if o.ProPercent < 0 {
		o.ProPercent = 0
	}
	return o
}

// Summary counts the rows a run inserted.
type Summary struct {
	Users    int `json:"users"`
	Pages    int `json:"pages"`
	Views    int `json:"views"`
	Waitlist int `json:"waitlist"`
}

// Seeder writes factory output to the database.
type Seeder struct {
	db      *gorm.DB
	catalog *themes.Catalog
}

// NewSeeder binds a Seeder to db. A nil catalog uses the built-in themes.
func NewSeeder(db *gorm.DB, catalog *themes.Catalog) *Seeder {
	if catalog == nil {
		catalog = themes.Builtin()
	}
	return &Seeder{db: db, catalog: catalog}
}

// ClearAll removes every user, page, view and waitlist entry. Children go
// first so foreign keys hold on both sqlite and postgres.
func (s *Seeder) ClearAll(ctx context.Context) error {
	tx := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, model := range []any{&models.PageView{}, &models.Page{}, &models.WaitlistEntry{}, &models.User{}} {
		if err := tx.Delete(model).Error; err != nil {
			return fmt.Errorf("clear %T: %w", model, err)
		}
	}
	middleware.Logger.Info("cleared demo data")
	return nil
}

// Run inserts demo data according to opts.
func (s *Seeder) Run(ctx context.Context, opts Options) (*Summary, error) {
	opts = opts.withDefaults()
	if opts.Clean {
		if err := s.ClearAll(ctx); err != nil {
			return nil, err
		}
	}

	hash, err := auth.HashPassword(DemoPassword)
	if err != nil {
		return nil, fmt.Errorf("hash demo password: %w", err)
	}

	f := NewFactory(opts, s.catalog)
	db := s.db.WithContext(ctx)
	summary := &Summary{}

	users := make([]models.User, 0, opts.Users)
	for i := 0; i < opts.Users; i++ {
		users = append(users, f.BuildUser(i, hash))
	}
	if len(users) > 0 {
		if err := db.CreateInBatches(&users, batchSize).Error; err != nil {
			return nil, fmt.Errorf("insert users: %w", err)
		}
	}
	summary.Users = len(users)

	pages := make([]models.Page, 0, len(users)*opts.PagesPerUser)
	for i := range users {
		for n := 0; n < opts.PagesPerUser; n++ {
			pages = append(pages, f.BuildPage(&users[i], n))
		}
	}
	if len(pages) > 0 {
		if err := db.CreateInBatches(&pages, batchSize).Error; err != nil {
			return nil, fmt.Errorf("insert pages: %w", err)
		}
	}
	summary.Pages = len(pages)

	for i := range pages {
		views := f.BuildViews(&pages[i])
		if len(views) == 0 {
			continue
		}
		if err := db.CreateInBatches(&views, batchSize).Error; err != nil {
			return nil, fmt.Errorf("insert views for page %s: %w", pages[i].ID, err)
		}
		if err := db.Model(&models.Page{}).Where("id = ?", pages[i].ID).
			Update("view_count", len(views)).Error; err != nil {
			return nil, fmt.Errorf("update view count for page %s: %w", pages[i].ID, err)
		}
		summary.Views += len(views)
	}

	entries := make([]models.WaitlistEntry, 0, opts.Waitlist)
	for i := 0; i < opts.Waitlist; i++ {
		entries = append(entries, f.BuildWaitlistEntry(i))
	}
	if len(entries) > 0 {
		if err := db.CreateInBatches(&entries, batchSize).Error; err != nil {
			return nil, fmt.Errorf("insert waitlist: %w", err)
		}
	}
	summary.Waitlist = len(entries)

	middleware.Logger.Info("seeded demo data",
		slog.Int("users", summary.Users),
		slog.Int("pages", summary.Pages),
		slog.Int("views", summary.Views),
		slog.Int("waitlist", summary.Waitlist))
	return summary, nil
}
