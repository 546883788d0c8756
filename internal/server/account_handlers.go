package server

import (
	"io"
	"mime/multipart"

	"folio/internal/middleware"
	"folio/internal/service"

	"github.com/gofiber/fiber/v2"
)

// avatarFormFields are the multipart field names accepted for an avatar.
var avatarFormFields = []string{"avatar", "file"}

// GetAccount handles GET /api/account
// @Summary Get my account
// @Tags account
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.User
// @Failure 401 {object} models.ErrorResponse
// @Router /account [get]
func (s *Server) GetAccount(c *fiber.Ctx) error {
	user, err := s.accountService.Profile(c.UserContext(), currentUserID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(user)
}

// UpdateAccount handles PATCH /api/account
// @Summary Update my profile
// @Tags account
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body object{display_name=string} true "Profile fields"
// @Success 200 {object} models.User
// @Failure 400 {object} models.ErrorResponse
// @Router /account [patch]
func (s *Server) UpdateAccount(c *fiber.Ctx) error {
	var req struct {
		DisplayName *string `json:"display_name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.DisplayName == nil {
		return badRequest(c, "display_name is required")
	}

	user, err := s.accountService.UpdateProfile(c.UserContext(), currentUserID(c), *req.DisplayName)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(user)
}

// DeleteAccount handles POST /api/account/delete
// @Summary Delete my account
// @Description Removes all pages, their views, stored files and the account, then revokes the session
// @Tags account
// @Security BearerAuth
// @Produce json
// @Success 200 {object} object{ok=bool}
// @Failure 401 {object} models.ErrorResponse
// @Router /account/delete [post]
func (s *Server) DeleteAccount(c *fiber.Ctx) error {
	jti, _ := c.Locals(middleware.LocalTokenJTI).(string)
	if err := s.accountService.Delete(c.UserContext(), currentUserID(c), jti); err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// CheckUsername handles GET /api/username?slug=
// @Summary Check username availability
// @Description The caller's own username is reported as available
// @Tags username
// @Produce json
// @Param slug query string true "Desired username"
// @Success 200 {object} service.Availability
// @Failure 400 {object} models.ErrorResponse
// @Router /username [get]
func (s *Server) CheckUsername(c *fiber.Ctx) error {
	raw := c.Query("slug")
	if raw == "" {
		raw = c.Query("username")
	}

	availability, err := s.usernameService.Check(c.UserContext(), raw, currentUserID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(availability)
}

// RenameUsername handles PATCH /api/username
// @Summary Change my username
// @Description Pages addressed by the old username move to the new one
// @Tags username
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body object{username=string} true "New username"
// @Success 200 {object} models.User
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /username [patch]
func (s *Server) RenameUsername(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Slug     string `json:"slug"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Username == "" {
		req.Username = req.Slug
	}

	user, err := s.usernameService.Rename(c.UserContext(), currentUserID(c), req.Username)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(user)
}

// UploadAvatar handles POST /api/avatar
// @Summary Upload my avatar
// @Description JPEG, PNG or WebP up to the configured limit. The image is cropped square and stored as WebP.
// @Tags account
// @Security BearerAuth
// @Accept mpfd
// @Produce json
// @Param avatar formData file true "Image file"
// @Success 200 {object} object{avatar_url=string}
// @Failure 400 {object} models.ErrorResponse
// @Router /avatar [post]
func (s *Server) UploadAvatar(c *fiber.Ctx) error {
	var (
		file *multipart.FileHeader
		err  error
	)
	for _, field := range avatarFormFields {
		if file, err = c.FormFile(field); err == nil {
			break
		}
	}
	if file == nil {
		return badRequest(c, "No file uploaded")
	}
	if file.Size > s.avatarService.MaxBytes() {
		return badRequest(c, "File is too large")
	}

	src, err := file.Open()
	if err != nil {
		return badRequest(c, "Unable to read uploaded file")
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(io.LimitReader(src, s.avatarService.MaxBytes()+1))
	if err != nil {
		return badRequest(c, "Unable to read uploaded file")
	}

	avatarURL, err := s.avatarService.Upload(c.UserContext(), currentUserID(c), content)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"avatar_url": avatarURL})
}

// DeleteAvatar handles DELETE /api/avatar
// @Summary Remove my avatar
// @Tags account
// @Security BearerAuth
// @Success 204
// @Router /avatar [delete]
func (s *Server) DeleteAvatar(c *fiber.Ctx) error {
	if err := s.avatarService.Remove(c.UserContext(), currentUserID(c)); err != nil {
		return s.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// JoinWaitlist handles POST /api/waitlist
// @Summary Join the waitlist
// @Description Joining twice with the same email is not an error
// @Tags waitlist
// @Accept json
// @Produce json
// @Param request body service.WaitlistInput true "Email"
// @Success 201 {object} object{ok=bool,created=bool}
// @Success 200 {object} object{ok=bool,created=bool}
// @Failure 400 {object} models.ErrorResponse
// @Router /waitlist [post]
func (s *Server) JoinWaitlist(c *fiber.Ctx) error {
	var req service.WaitlistInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	created, err := s.waitlistService.Join(c.UserContext(), req)
	if err != nil {
		return s.respondError(c, err)
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"ok": true, "created": created})
}
