package seed

import (
	"fmt"
	"strings"
	"time"

	"folio/internal/analytics"
	"folio/internal/models"
	"folio/internal/themes"
	"folio/internal/validation"

	"github.com/brianvoe/gofakeit/v6"
)

var referrers = []string{
	"",
	"",
	"https://www.linkedin.com/feed/",
	"https://github.com/",
	"https://www.google.com/search?q=resume",
	"https://news.ycombinator.com/",
	"https://twitter.com/home",
	"https://mail.google.com/",
}

// Factory builds demo entities. It never touches the database, so batches
// can be assembled up front and inserted by the Seeder.
type Factory struct {
	faker *gofakeit.Faker
	opts  Options
	free  []string
	all   []string
	now   func() time.Time
}

// NewFactory creates a Factory. A zero opts.RandomSeed seeds from the clock.
func NewFactory(opts Options, catalog *themes.Catalog) *Factory {
	seed := opts.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	f := &Factory{faker: gofakeit.New(seed), opts: opts.withDefaults(), now: time.Now}
	for _, t := range catalog.List() {
		f.all = append(f.all, t.ID)
		if t.Plan == "" || t.Plan == models.PlanFree {
			f.free = append(f.free, t.ID)
		}
	}
	if len(f.free) == 0 {
		f.free = []string{themes.DefaultThemeID}
	}
	return f
}

// BuildUser returns the i-th demo account. Usernames and emails embed i so
// they stay unique within one run.
func (f *Factory) BuildUser(i int, passwordHash string) models.User {
	first := f.faker.FirstName()
	last := f.faker.LastName()
	suffix := fmt.Sprintf("%d", i+1)
	handle := validation.FitHandle(validation.NormalizeHandle(first+"."+last), suffix)

	plan := models.PlanFree
	if f.faker.Number(1, 100) <= f.opts.ProPercent {
		plan = models.PlanPro
	}

	created := f.pastTime()
	return models.User{
		Email:        strings.ToLower(handle) + "@example.com",
		DisplayName:  first + " " + last,
		Username:     handle,
		AvatarURL:    fmt.Sprintf("https://i.pravatar.cc/256?u=%s", handle),
		Plan:         plan,
		Password:     passwordHash,
		AuthProvider: models.ProviderEmail,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

// BuildPage returns the n-th page of user. The first page uses the username
// as its slug so it is served at /public/<username>.
func (f *Factory) BuildPage(user *models.User, n int) models.Page {
	slug := user.Username
	if n > 0 {
		slug = validation.FitHandle(user.Username, fmt.Sprintf("-%d", n+1))
	}

	choices := f.free
	if user.Plan == models.PlanPro {
		choices = f.all
	}

	status := models.PageStatusLive
	visibility := models.VisibilityPublic
	switch roll := f.faker.Number(1, 10); {
	case roll == 1:
		status = models.PageStatusDraft
	case roll == 2:
		visibility = models.VisibilityUnlisted
	}

	created := f.pastTime()
	if created.Before(user.CreatedAt) {
		created = user.CreatedAt
	}
	page := models.Page{
		UserID:     user.ID,
		Slug:       slug,
		Title:      fmt.Sprintf("%s | %s", user.DisplayName, f.faker.JobTitle()),
		Status:     status,
		Visibility: visibility,
		ThemeID:    f.faker.RandomString(choices),
		ResumeData: f.BuildResume(user),
		PageConfig: map[string]any{"show_avatar": f.faker.Bool(), "accent": f.faker.HexColor()},
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	if status == models.PageStatusLive {
		published := created
		page.PublishedAt = &published
	}
	return page
}

// BuildResume returns structured resume content for user.
func (f *Factory) BuildResume(user *models.User) map[string]any {
	jobs := make([]any, 0, 3)
	year := f.now().Year()
	for i := 0; i < f.faker.Number(1, 3); i++ {
		start := year - f.faker.Number(1, 4)
		jobs = append(jobs, map[string]any{
			"company":    f.faker.Company(),
			"title":      f.faker.JobTitle(),
			"start":      fmt.Sprintf("%d", start),
			"end":        fmt.Sprintf("%d", year),
			"highlights": []any{f.faker.Sentence(10), f.faker.Sentence(8)},
		})
		year = start
	}

	skills := make([]any, 0, 6)
	for i := 0; i < 6; i++ {
		skills = append(skills, f.faker.ProgrammingLanguage())
	}

	return map[string]any{
		"name":     user.DisplayName,
		"headline": f.faker.JobTitle(),
		"summary":  f.faker.Paragraph(1, 3, 12, " "),
		"contact": map[string]any{
			"email":    user.Email,
			"location": f.faker.City(),
			"website":  f.faker.URL(),
		},
		"experience": jobs,
		"education": []any{map[string]any{
			"school": "University of " + f.faker.City(),
			"degree": "B.Sc. " + f.faker.JobDescriptor(),
		}},
		"skills": skills,
	}
}

// BuildViews returns up to opts.MaxViewsPerPage visits spread over the last
// opts.MaxDays days. Visits never predate the page.
func (f *Factory) BuildViews(page *models.Page) []models.PageView {
	if page.Status != models.PageStatusLive || f.opts.MaxViewsPerPage <= 0 {
		return nil
	}
	n := f.faker.Number(0, f.opts.MaxViewsPerPage)
	views := make([]models.PageView, 0, n)
	for i := 0; i < n; i++ {
		at := f.pastTime()
		if at.Before(page.CreatedAt) {
			at = page.CreatedAt
		}
		views = append(views, models.PageView{
			PageID:    page.ID,
			IPHash:    analytics.HashIP(f.faker.IPv4Address()),
			Referrer:  f.faker.RandomString(referrers),
			UserAgent: f.faker.UserAgent(),
			CreatedAt: at,
		})
	}
	return views
}

// BuildWaitlistEntry returns a waitlist signup with a unique email.
func (f *Factory) BuildWaitlistEntry(i int) models.WaitlistEntry {
	entry := models.WaitlistEntry{
		Email:     fmt.Sprintf("waitlist%d.%s@example.com", i+1, strings.ToLower(f.faker.LetterN(6))),
		CreatedAt: f.pastTime(),
	}
	if f.faker.Bool() {
		entry.ReferralCode = strings.ToLower(f.faker.LetterN(8))
	}
	return entry
}

func (f *Factory) pastTime() time.Time {
	now := f.now()
	return f.faker.DateRange(now.AddDate(0, 0, -f.opts.MaxDays), now).UTC()
}
