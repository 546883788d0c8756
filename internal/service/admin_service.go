package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"folio/internal/featureflags"
	"folio/internal/models"
	"folio/internal/repository"
	"folio/internal/validation"
)

// Overview is the admin dashboard headline.
type Overview struct {
	Users        int64 `json:"users"`
	Pages        int64 `json:"pages"`
	LivePages    int64 `json:"live_pages"`
	TotalViews   int64 `json:"total_views"`
	Views30d     int64 `json:"views_30d"`
	WaitlistSize int64 `json:"waitlist"`
}

// UserRow is one identity with its page totals.
type UserRow struct {
	ID           uint       `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	DisplayName  string     `json:"display_name"`
	Plan         string     `json:"plan"`
	IsAdmin      bool       `json:"is_admin"`
	AuthProvider string     `json:"auth_provider"`
	SignInCount  int        `json:"sign_in_count"`
	LastSignInAt *time.Time `json:"last_sign_in_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	PageCount    int        `json:"page_count"`
	TotalViews   int64      `json:"total_views"`
}

// PageRow is one page with its owner's handle.
type PageRow struct {
	ID            string     `json:"id"`
	Slug          string     `json:"slug"`
	Title         string     `json:"title"`
	Status        string     `json:"status"`
	Visibility    string     `json:"visibility"`
	ThemeID       string     `json:"theme_id"`
	ViewCount     int64      `json:"view_count"`
	OwnerID       uint       `json:"owner_id"`
	OwnerUsername string     `json:"owner_username"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// AdminService builds read-only dashboard views by joining full collections
// in memory, plus a few account switches.
type AdminService struct {
	users    repository.UserRepository
	pages    repository.PageRepository
	views    repository.PageViewRepository
	waitlist repository.WaitlistRepository
	flags    *featureflags.Manager
	now      func() time.Time
}

func NewAdminService(
	users repository.UserRepository,
	pages repository.PageRepository,
	views repository.PageViewRepository,
	waitlist repository.WaitlistRepository,
	flags *featureflags.Manager,
) *AdminService {
	return &AdminService{users: users, pages: pages, views: views, waitlist: waitlist, flags: flags, now: time.Now}
}

func (s *AdminService) Overview(ctx context.Context) (*Overview, error) {
	users, err := s.users.Count(ctx)
	if err != nil {
		return nil, err
	}
	pages, err := s.pages.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.views.CountSince(ctx, s.now().UTC().AddDate(0, 0, -30))
	if err != nil {
		return nil, err
	}
	waiting, err := s.waitlist.Count(ctx)
	if err != nil {
		return nil, err
	}

	out := &Overview{Users: users, Pages: int64(len(pages)), Views30d: recent, WaitlistSize: waiting}
	for _, p := range pages {
		out.TotalViews += p.ViewCount
		if p.Status == models.PageStatusLive {
			out.LivePages++
		}
	}
	return out, nil
}

// Users returns every identity with its page count and summed views,
// newest account first.
func (s *AdminService) Users(ctx context.Context) ([]UserRow, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	pages, err := s.pages.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	type totals struct {
		pages int
		views int64
	}
	byOwner := make(map[uint]*totals, len(users))
	for _, p := range pages {
		t, ok := byOwner[p.UserID]
		if !ok {
			t = &totals{}
			byOwner[p.UserID] = t
		}
		t.pages++
		t.views += p.ViewCount
	}

	rows := make([]UserRow, 0, len(users))
	for _, u := range users {
		row := UserRow{
			ID:           u.ID,
			Email:        u.Email,
			Username:     u.Username,
			DisplayName:  u.DisplayName,
			Plan:         u.Plan,
			IsAdmin:      u.IsAdmin,
			AuthProvider: u.AuthProvider,
			SignInCount:  u.SignInCount,
			LastSignInAt: u.LastSignInAt,
			CreatedAt:    u.CreatedAt,
		}
		if t, ok := byOwner[u.ID]; ok {
			row.PageCount = t.pages
			row.TotalViews = t.views
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	return rows, nil
}

// Pages returns every page with its owner's username, most viewed first.
func (s *AdminService) Pages(ctx context.Context) ([]PageRow, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	pages, err := s.pages.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	handles := make(map[uint]string, len(users))
	for _, u := range users {
		handles[u.ID] = u.Username
	}

	rows := make([]PageRow, 0, len(pages))
	for _, p := range pages {
		rows = append(rows, PageRow{
			ID:            p.ID,
			Slug:          p.Slug,
			Title:         p.Title,
			Status:        p.Status,
			Visibility:    p.Visibility,
			ThemeID:       p.ThemeID,
			ViewCount:     p.ViewCount,
			OwnerID:       p.UserID,
			OwnerUsername: handles[p.UserID],
			PublishedAt:   p.PublishedAt,
			CreatedAt:     p.CreatedAt,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].ViewCount != rows[j].ViewCount {
			return rows[i].ViewCount > rows[j].ViewCount
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	return rows, nil
}

func (s *AdminService) Waitlist(ctx context.Context) ([]models.WaitlistEntry, error) {
	return s.waitlist.List(ctx)
}

// SetPlan moves a user between plans.
func (s *AdminService) SetPlan(ctx context.Context, userID uint, plan string) (*models.User, error) {
	plan = strings.ToLower(strings.TrimSpace(plan))
	if plan != models.PlanFree && plan != models.PlanPro {
		return nil, models.NewValidationError("plan must be one of free, pro")
	}
	if err := s.users.SetPlan(ctx, userID, plan); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, userID)
}

func (s *AdminService) FeatureFlags(userID uint) []featureflags.State {
	return s.flags.Describe(userID)
}

// SetAdminByEmail grants or revokes admin rights for the account with email.
func (s *AdminService) SetAdminByEmail(ctx context.Context, email string, isAdmin bool) (*models.User, error) {
	email = validation.NormalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewNotFoundError("User", email)
	}
	if err := s.users.SetAdmin(ctx, user.ID, isAdmin); err != nil {
		return nil, err
	}
	user.IsAdmin = isAdmin
	return user, nil
}

func (s *AdminService) ListAdmins(ctx context.Context) ([]models.User, error) {
	return s.users.ListAdmins(ctx)
}
