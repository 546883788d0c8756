package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"folio/internal/cache"
	"folio/internal/events"
	"folio/internal/models"
	"folio/internal/repository"
	"folio/internal/themes"
	"folio/internal/validation"
)

// patchableColumns is the allow-list for PATCH /api/pages/:id. Keys outside
// it are ignored.
var patchableColumns = map[string]struct{}{
	"title":       {},
	"theme_id":    {},
	"resume_data": {},
	"raw_text":    {},
	"page_config": {},
	"status":      {},
	"visibility":  {},
}

// OwnerCard is the public part of a page owner's profile.
type OwnerCard struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// PublicPage is what anonymous visitors receive.
type PublicPage struct {
	ID          string         `json:"id"`
	Slug        string         `json:"slug"`
	Title       string         `json:"title"`
	ThemeID     string         `json:"theme_id"`
	ResumeData  map[string]any `json:"resume_data"`
	PageConfig  map[string]any `json:"page_config,omitempty"`
	ViewCount   int64          `json:"view_count"`
	PublishedAt string         `json:"published_at,omitempty"`
	Owner       OwnerCard      `json:"owner"`
}

// PageService serves single-page reads and owner mutations.
type PageService struct {
	pages   repository.PageRepository
	users   repository.UserRepository
	catalog *themes.Catalog
	events  *events.Dispatcher
	cache   *cache.Store
}

func NewPageService(
	pages repository.PageRepository,
	users repository.UserRepository,
	catalog *themes.Catalog,
	dispatcher *events.Dispatcher,
	pageCache *cache.Store,
) *PageService {
	return &PageService{pages: pages, users: users, catalog: catalog, events: dispatcher, cache: pageCache}
}

func (s *PageService) List(ctx context.Context, userID uint) ([]models.Page, error) {
	return s.pages.ListByOwner(ctx, userID)
}

func (s *PageService) Get(ctx context.Context, id string, userID uint) (*models.Page, error) {
	return s.pages.GetOwned(ctx, id, userID)
}

// Update applies the allow-listed keys of patch to the caller's page.
func (s *PageService) Update(ctx context.Context, id string, userID uint, patch map[string]any) (*models.Page, error) {
	page, err := s.pages.GetOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(patch))
	for k := range patch {
		if _, ok := patchableColumns[k]; ok {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, models.NewValidationError("No updatable fields supplied")
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := s.applyPatchValue(ctx, page, userID, k, patch[k]); err != nil {
			return nil, err
		}
	}

	if err := s.pages.UpdateColumns(ctx, page, keys); err != nil {
		return nil, err
	}
	s.invalidate(ctx, page)
	return page, nil
}

func (s *PageService) applyPatchValue(ctx context.Context, page *models.Page, userID uint, key string, value any) error {
	switch key {
	case "title":
		title, ok := value.(string)
		if !ok {
			return models.NewValidationError("title must be a string")
		}
		title = strings.TrimSpace(title)
		if len(title) > 200 {
			return models.NewValidationError("title must be at most 200 characters")
		}
		page.Title = title
	case "raw_text":
		text, ok := value.(string)
		if !ok {
			return models.NewValidationError("raw_text must be a string")
		}
		page.RawText = text
	case "resume_data":
		data, ok := value.(map[string]any)
		if !ok || len(data) == 0 {
			return models.NewValidationError("resume_data must be a non-empty object")
		}
		page.ResumeData = data
	case "page_config":
		if value == nil {
			page.PageConfig = nil
			return nil
		}
		cfg, ok := value.(map[string]any)
		if !ok {
			return models.NewValidationError("page_config must be an object")
		}
		page.PageConfig = cfg
	case "theme_id":
		themeID, ok := value.(string)
		if !ok {
			return models.NewValidationError("theme_id must be a string")
		}
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if err := s.catalog.Check(themeID, user.Plan); err != nil {
			return err
		}
		page.ThemeID = themeID
	case "status":
		status, _ := value.(string)
		switch status {
		case models.PageStatusDraft, models.PageStatusLive, models.PageStatusArchived:
			page.Status = status
		default:
			return models.NewValidationError("status must be one of draft, live, archived")
		}
	case "visibility":
		visibility, _ := value.(string)
		switch visibility {
		case models.VisibilityPublic, models.VisibilityUnlisted, models.VisibilityPrivate:
			page.Visibility = visibility
		default:
			return models.NewValidationError("visibility must be one of public, unlisted, private")
		}
	default:
		return models.NewValidationError(fmt.Sprintf("%s cannot be updated", key))
	}
	return nil
}

func (s *PageService) Delete(ctx context.Context, id string, userID uint) error {
	page, err := s.pages.GetOwned(ctx, id, userID)
	if err != nil {
		return err
	}
	if err := s.pages.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, page)
	s.events.Dispatch(ctx, events.Event{
		Name:       events.PageDeleted,
		UserID:     userID,
		Properties: map[string]any{"slug": page.Slug},
	})
	return nil
}

// Public returns the live page of username at slug. An empty slug means the
// page addressed by the username itself.
func (s *PageService) Public(ctx context.Context, username, slug string) (*PublicPage, error) {
	username = validation.NormalizeHandle(username)
	slug = strings.ToLower(strings.TrimSpace(slug))

	var out PublicPage
	err := s.cache.Aside(ctx, cache.PublicPageKey(username, slug), &out, cache.PublicPageTTL, func() error {
		owner, err := s.users.GetByUsername(ctx, username)
		if err != nil {
			return err
		}
		if owner == nil {
			return models.NewNotFoundError("Page", username)
		}
		target := slug
		if target == "" {
			target = owner.Username
		}
		page, err := s.pages.FindPublic(ctx, owner.ID, target)
		if err != nil {
			return err
		}
		out = toPublicPage(page, owner)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *PageService) invalidate(ctx context.Context, page *models.Page) {
	owner, err := s.users.GetByID(ctx, page.UserID)
	if err != nil {
		return
	}
	s.cache.InvalidatePublicPage(ctx, owner.Username, page.Slug)
}

func toPublicPage(page *models.Page, owner *models.User) PublicPage {
	out := PublicPage{
		ID:         page.ID,
		Slug:       page.Slug,
		Title:      page.Title,
		ThemeID:    page.ThemeID,
		ResumeData: page.ResumeData,
		PageConfig: page.PageConfig,
		ViewCount:  page.ViewCount,
		Owner: OwnerCard{
			Username:    owner.Username,
			DisplayName: owner.DisplayName,
			AvatarURL:   owner.AvatarURL,
		},
	}
	if page.PublishedAt != nil {
		out.PublishedAt = page.PublishedAt.UTC().Format(time.RFC3339)
	}
	return out
}
