package server

import (
	"github.com/gofiber/fiber/v2"
)

// window returns rows unchanged unless the caller passes limit or offset.
// The dashboard reads the full joined lists by default.
func window[T any](c *fiber.Ctx, rows []T) []T {
	if c.Query("limit") == "" && c.Query("offset") == "" {
		if rows == nil {
			return []T{}
		}
		return rows
	}
	return paginate(rows, parsePagination(c, maxPaginationLimit))
}

// AdminOverview handles GET /api/admin/overview
// @Summary Dashboard totals
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} service.Overview
// @Failure 403 {object} models.ErrorResponse
// @Router /admin/overview [get]
func (s *Server) AdminOverview(c *fiber.Ctx) error {
	overview, err := s.adminService.Overview(c.UserContext())
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(overview)
}

// AdminUsers handles GET /api/admin/users
// @Summary List accounts with page totals
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} object{items=[]service.UserRow,total=int}
// @Failure 403 {object} models.ErrorResponse
// @Router /admin/users [get]
func (s *Server) AdminUsers(c *fiber.Ctx) error {
	rows, err := s.adminService.Users(c.UserContext())
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"items": window(c, rows),
		"total": len(rows),
	})
}

// AdminPages handles GET /api/admin/pages
// @Summary List all pages, most viewed first
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} object{items=[]service.PageRow,total=int}
// @Failure 403 {object} models.ErrorResponse
// @Router /admin/pages [get]
func (s *Server) AdminPages(c *fiber.Ctx) error {
	rows, err := s.adminService.Pages(c.UserContext())
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"items": window(c, rows),
		"total": len(rows),
	})
}

// AdminWaitlist handles GET /api/admin/waitlist
// @Summary List waitlist signups
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} object{items=[]models.WaitlistEntry,total=int}
// @Failure 403 {object} models.ErrorResponse
// @Router /admin/waitlist [get]
func (s *Server) AdminWaitlist(c *fiber.Ctx) error {
	entries, err := s.adminService.Waitlist(c.UserContext())
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"items": window(c, entries),
		"total": len(entries),
	})
}

// AdminSetPlan handles PATCH /api/admin/users/:id/plan
// @Summary Change an account's plan
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param request body object{plan=string} true "free or pro"
// @Success 200 {object} models.User
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /admin/users/{id}/plan [patch]
func (s *Server) AdminSetPlan(c *fiber.Ctx) error {
	userID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Plan string `json:"plan"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	user, err := s.adminService.SetPlan(c.UserContext(), userID, req.Plan)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(user)
}

// GetFeatureFlags returns configured feature flags and evaluated state for current user.
// @Summary Feature flags
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} object{raw=map[string]string,flags=[]featureflags.State}
// @Router /admin/feature-flags [get]
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"raw":   s.featureFlags.Raw(),
		"flags": s.adminService.FeatureFlags(currentUserID(c)),
	})
}
