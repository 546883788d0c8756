package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"folio/internal/cache"
	"folio/internal/events"
	"folio/internal/middleware"
	"folio/internal/models"
	"folio/internal/observability"
	"folio/internal/repository"
	"folio/internal/themes"
	"folio/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

// PublishInput is the body of POST /api/pages/publish.
type PublishInput struct {
	Slug       string         `json:"slug" validate:"required"`
	Title      string         `json:"title" validate:"max=200"`
	ThemeID    string         `json:"theme_id" validate:"required"`
	ResumeData map[string]any `json:"resume_data" validate:"required,min=1"`
	RawText    string         `json:"raw_text"`
	PageConfig map[string]any `json:"page_config"`
}

// PublishResult describes what a publish did.
type PublishResult struct {
	Page    *models.Page `json:"page"`
	Updated bool         `json:"updated"`
	Tier    string       `json:"write_tier"`
}

// PublishService runs the publish pipeline.
type PublishService struct {
	pages   repository.PageRepository
	users   repository.UserRepository
	catalog *themes.Catalog
	events  *events.Dispatcher
	cache   *cache.Store
	now     func() time.Time
}

func NewPublishService(
	pages repository.PageRepository,
	users repository.UserRepository,
	catalog *themes.Catalog,
	dispatcher *events.Dispatcher,
	pageCache *cache.Store,
) *PublishService {
	return &PublishService{
		pages:   pages,
		users:   users,
		catalog: catalog,
		events:  dispatcher,
		cache:   pageCache,
		now:     time.Now,
	}
}

// Publish creates or updates the caller's page at in.Slug and makes it live.
// Republishing a slug updates the same row.
func (s *PublishService) Publish(ctx context.Context, userID uint, in PublishInput) (*PublishResult, error) {
	ctx, span := observability.StartSpan(ctx, "publish.page", attribute.Int("user.id", int(userID)))
	result, err := s.publish(ctx, userID, in)
	observability.EndSpan(span, err)
	return result, err
}

func (s *PublishService) publish(ctx context.Context, userID uint, in PublishInput) (*PublishResult, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	slug := validation.NormalizeHandle(in.Slug)
	if err := validation.ValidateHandle(slug); err != nil {
		return nil, models.NewValidationError("slug " + err.Error())
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	themeID := strings.TrimSpace(in.ThemeID)
	if err := s.catalog.Check(themeID, user.Plan); err != nil {
		return nil, err
	}

	existing, err := s.pages.FindOwnedBySlug(ctx, userID, slug)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	page := &models.Page{
		UserID:      userID,
		Slug:        slug,
		Title:       strings.TrimSpace(in.Title),
		Status:      models.PageStatusLive,
		Visibility:  models.VisibilityPublic,
		ThemeID:     themeID,
		ResumeData:  in.ResumeData,
		RawText:     in.RawText,
		PageConfig:  in.PageConfig,
		PublishedAt: &now,
	}

	var tier repository.WriteTier
	updated := existing != nil
	if updated {
		page.ID = existing.ID
		page.UserID = existing.UserID
		page.OwnerID = existing.OwnerID
		page.CreatedAt = existing.CreatedAt
		page.ViewCount = existing.ViewCount
		tier, err = s.writeWithFallback(ctx, "update", page, s.pages.Update)
	} else {
		tier, err = s.writeWithFallback(ctx, "insert", page, s.pages.Insert)
	}
	if err != nil {
		return nil, err
	}

	outcome := "insert"
	if updated {
		outcome = "update"
	}
	observability.PagesPublished.WithLabelValues(outcome).Inc()
	s.cache.InvalidatePublicPage(ctx, user.Username, slug)

	s.events.Dispatch(ctx, events.Event{
		Name:   events.PagePublished,
		UserID: userID,
		Properties: map[string]any{
			"theme_id":  themeID,
			"slug":      slug,
			"is_update": updated,
		},
	})

	return &PublishResult{Page: page, Updated: updated, Tier: tier.String()}, nil
}

type pageWrite func(ctx context.Context, page *models.Page, tier repository.WriteTier) error

// writeWithFallback tries FullWrite and, only when the schema rejected it,
// MinimalWrite.
func (s *PublishService) writeWithFallback(ctx context.Context, op string, page *models.Page, write pageWrite) (repository.WriteTier, error) {
	err := write(ctx, page, repository.FullWrite)
	if err == nil {
		return repository.FullWrite, nil
	}
	if !errors.Is(err, repository.ErrSchemaRejected) {
		return repository.FullWrite, err
	}

	middleware.Logger.WarnContext(ctx, "page write rejected by schema, retrying with minimal columns",
		slog.String("operation", op),
		slog.String("slug", page.Slug),
		slog.String("error", err.Error()),
	)
	if op == "insert" {
		page.OwnerID = nil
	}
	if err := write(ctx, page, repository.MinimalWrite); err != nil {
		observability.PublishFallbacks.WithLabelValues(op, "error").Inc()
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return repository.MinimalWrite, err
		}
		return repository.MinimalWrite, models.NewInternalError(err)
	}
	observability.PublishFallbacks.WithLabelValues(op, "ok").Inc()
	return repository.MinimalWrite, nil
}
