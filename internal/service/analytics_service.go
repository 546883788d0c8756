package service

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"folio/internal/analytics"
	"folio/internal/middleware"
	"folio/internal/models"
	"folio/internal/notifications"
	"folio/internal/observability"
	"folio/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

const (
	maxReferrerLength  = 2048
	maxUserAgentLength = 1024
)

// ViewPublisher pushes view events to connected owners.
type ViewPublisher interface {
	PublishView(ctx context.Context, ownerID uint, ev notifications.ViewEvent) error
}

// RecordViewInput is one anonymous page visit.
type RecordViewInput struct {
	PageID    string
	IP        string
	Referrer  string
	UserAgent string
}

// AnalyticsService records views and aggregates them on demand.
type AnalyticsService struct {
	pages     repository.PageRepository
	views     repository.PageViewRepository
	publisher ViewPublisher
	now       func() time.Time
}

func NewAnalyticsService(
	pages repository.PageRepository,
	views repository.PageViewRepository,
	publisher ViewPublisher,
) *AnalyticsService {
	return &AnalyticsService{pages: pages, views: views, publisher: publisher, now: time.Now}
}

// RecordView appends a PageView with the hashed client address and bumps the
// page's counter. Pages the public cannot render answer not found. Live feed
// delivery is best effort.
func (s *AnalyticsService) RecordView(ctx context.Context, in RecordViewInput) error {
	pageID := strings.TrimSpace(in.PageID)
	if pageID == "" {
		return models.NewValidationError("pageId is required")
	}
	page, err := s.pages.GetByID(ctx, pageID)
	if err != nil {
		return err
	}
	if !page.IsPubliclyVisible() {
		return models.NewNotFoundError("Page", pageID)
	}

	view := &models.PageView{
		PageID:    page.ID,
		IPHash:    analytics.HashIP(in.IP),
		Referrer:  truncate(in.Referrer, maxReferrerLength),
		UserAgent: truncate(in.UserAgent, maxUserAgentLength),
		CreatedAt: s.now().UTC(),
	}
	if err := s.views.Create(ctx, view); err != nil {
		return err
	}
	if err := s.pages.IncrementViewCount(ctx, page.ID); err != nil {
		return err
	}
	observability.PageViewsRecorded.Inc()

	if s.publisher != nil {
		ev := notifications.ViewEvent{
			PageID:    page.ID,
			Slug:      page.Slug,
			Referrer:  analytics.ReferrerDomain(view.Referrer),
			Device:    analytics.ClassifyDevice(view.UserAgent),
			ViewCount: page.ViewCount + 1,
			ViewedAt:  view.CreatedAt,
		}
		if err := s.publisher.PublishView(ctx, page.UserID, ev); err != nil {
			middleware.Logger.DebugContext(ctx, "live view publish failed",
				slog.String("page_id", page.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// Summary recomputes the page's analytics from raw views on every call.
func (s *AnalyticsService) Summary(ctx context.Context, pageID string, userID uint) (*analytics.Summary, error) {
	ctx, span := observability.StartSpan(ctx, "analytics.summary", attribute.String("page.id", pageID))
	defer span.End()

	page, err := s.pages.GetOwned(ctx, pageID, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views, err := s.views.ListSince(ctx, page.ID, now.UTC().Add(-analytics.Window))
	if err != nil {
		return nil, err
	}
	summary := analytics.Summarize(page, views, now)
	span.SetAttributes(attribute.Int("views.window", summary.WindowViews))
	return &summary, nil
}

// truncate caps s at n bytes on a rune boundary. Invalid UTF-8 from raw
// headers is replaced first since Postgres text columns reject it.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
