package server

import (
	"encoding/json"
	"strings"

	"folio/internal/middleware"
	"folio/internal/service"

	"github.com/gofiber/fiber/v2"
)

// PublishPage handles POST /api/pages/publish
// @Summary Publish a page
// @Description Creates the caller's page at slug, or updates it when it already exists, and makes it live
// @Tags pages
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body service.PublishInput true "Page content"
// @Success 201 {object} service.PublishResult
// @Success 200 {object} service.PublishResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /pages/publish [post]
func (s *Server) PublishPage(c *fiber.Ctx) error {
	var req service.PublishInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	result, err := s.publishService.Publish(c.UserContext(), currentUserID(c), req)
	if err != nil {
		return s.respondError(c, err)
	}

	status := fiber.StatusCreated
	if result.Updated {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(result)
}

// ListPages handles GET /api/pages
// @Summary List my pages
// @Tags pages
// @Security BearerAuth
// @Produce json
// @Success 200 {array} models.Page
// @Router /pages [get]
func (s *Server) ListPages(c *fiber.Ctx) error {
	pages, err := s.pageService.List(c.UserContext(), currentUserID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(pages)
}

// GetPage handles GET /api/pages/:id
// @Summary Get one of my pages
// @Tags pages
// @Security BearerAuth
// @Produce json
// @Param id path string true "Page ID"
// @Success 200 {object} models.Page
// @Failure 404 {object} models.ErrorResponse
// @Router /pages/{id} [get]
func (s *Server) GetPage(c *fiber.Ctx) error {
	page, err := s.pageService.Get(c.UserContext(), c.Params("id"), currentUserID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(page)
}

// UpdatePage handles PATCH /api/pages/:id
// @Summary Update one of my pages
// @Description Only title, theme_id, resume_data, raw_text, page_config, status and visibility are applied; other keys are ignored
// @Tags pages
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Page ID"
// @Param request body object true "Fields to change"
// @Success 200 {object} models.Page
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /pages/{id} [patch]
func (s *Server) UpdatePage(c *fiber.Ctx) error {
	var patch map[string]any
	if err := json.Unmarshal(c.Body(), &patch); err != nil || patch == nil {
		return badRequest(c, "Request body must be a JSON object")
	}

	page, err := s.pageService.Update(c.UserContext(), c.Params("id"), currentUserID(c), patch)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(page)
}

// DeletePage handles DELETE /api/pages/:id
// @Summary Delete one of my pages
// @Tags pages
// @Security BearerAuth
// @Param id path string true "Page ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Router /pages/{id} [delete]
func (s *Server) DeletePage(c *fiber.Ctx) error {
	if err := s.pageService.Delete(c.UserContext(), c.Params("id"), currentUserID(c)); err != nil {
		return s.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetPageAnalytics handles GET /api/pages/:id/analytics
// @Summary View analytics for one of my pages
// @Tags pages
// @Security BearerAuth
// @Produce json
// @Param id path string true "Page ID"
// @Success 200 {object} analytics.Summary
// @Failure 404 {object} models.ErrorResponse
// @Router /pages/{id}/analytics [get]
func (s *Server) GetPageAnalytics(c *fiber.Ctx) error {
	summary, err := s.analyticsService.Summary(c.UserContext(), c.Params("id"), currentUserID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(summary)
}

// RecordView handles POST /api/pages/view
// @Summary Record a page view
// @Tags pages
// @Accept json
// @Produce json
// @Param request body object{pageId=string,referrer=string} true "Viewed page"
// @Success 200 {object} object{ok=bool}
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /pages/view [post]
func (s *Server) RecordView(c *fiber.Ctx) error {
	var req struct {
		PageID      string `json:"pageId"`
		PageIDSnake string `json:"page_id"`
		Referrer    string `json:"referrer"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.PageID == "" {
		req.PageID = req.PageIDSnake
	}
	// The page script forwards document.referrer; the header only names our own site.
	referrer := req.Referrer
	if referrer == "" {
		referrer = c.Get(fiber.HeaderReferer)
	}

	err := s.analyticsService.RecordView(c.UserContext(), service.RecordViewInput{
		PageID:    req.PageID,
		IP:        middleware.ClientIP(c),
		Referrer:  referrer,
		UserAgent: c.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// GetPublicPage handles GET /api/public/:username and /api/public/:username/:slug
// @Summary Fetch a published page
// @Description Without a slug the page whose slug equals the username is returned
// @Tags public
// @Produce json
// @Param username path string true "Owner username"
// @Param slug path string false "Page slug"
// @Success 200 {object} service.PublicPage
// @Failure 404 {object} models.ErrorResponse
// @Router /public/{username}/{slug} [get]
func (s *Server) GetPublicPage(c *fiber.Ctx) error {
	page, err := s.pageService.Public(c.UserContext(), c.Params("username"), strings.TrimSpace(c.Params("slug")))
	if err != nil {
		return s.respondError(c, err)
	}
	c.Set(fiber.HeaderCacheControl, "public, max-age=60")
	return c.JSON(page)
}

// ListThemes handles GET /api/themes
// @Summary List page themes
// @Tags public
// @Produce json
// @Success 200 {array} themes.Theme
// @Router /themes [get]
func (s *Server) ListThemes(c *fiber.Ctx) error {
	return c.JSON(s.catalog.List())
}
