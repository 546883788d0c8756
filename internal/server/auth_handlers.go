package server

import (
	"net/url"
	"strings"

	"folio/internal/middleware"
	"folio/internal/models"
	"folio/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Signup handles POST /api/auth/signup
// @Summary Register a new account
// @Description Create an email/password account; the username is allocated from the email
// @Tags auth
// @Accept json
// @Produce json
// @Param request body service.SignupInput true "Signup data"
// @Success 201 {object} service.Session
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /auth/signup [post]
func (s *Server) Signup(c *fiber.Ctx) error {
	var req service.SignupInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	session, err := s.authService.Signup(c.UserContext(), req)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

// Login handles POST /api/auth/login
// @Summary User login
// @Description Authenticate user and return JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Login credentials"
// @Success 200 {object} service.Session
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	session, err := s.authService.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(session)
}

// Logout handles POST /api/auth/logout
// @Summary Log out
// @Description Revoke the current session token
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} object{ok=bool}
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	jti, _ := c.Locals(middleware.LocalTokenJTI).(string)
	if err := s.authService.Logout(c.UserContext(), jti); err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// Me handles GET /api/auth/me
// @Summary Current user
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} object{user=models.User,is_admin=bool}
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/me [get]
func (s *Server) Me(c *fiber.Ctx) error {
	user, err := s.authService.Me(c.UserContext(), currentUserID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"user":     user,
		"is_admin": s.authService.IsAdmin(user),
	})
}

// OAuthStart handles GET /api/auth/oauth/:provider
// @Summary Start OAuth sign-in
// @Description Returns the provider authorization URL. Pass redirect=1 to be redirected instead.
// @Tags auth
// @Produce json
// @Param provider path string true "github or google"
// @Param redirect query bool false "Redirect to the provider"
// @Success 200 {object} object{url=string}
// @Failure 404 {object} models.ErrorResponse
// @Router /auth/oauth/{provider} [get]
func (s *Server) OAuthStart(c *fiber.Ctx) error {
	authURL, err := s.oauthService.AuthURL(c.UserContext(), c.Params("provider"))
	if err != nil {
		return s.respondError(c, err)
	}
	if c.QueryBool("redirect") {
		return c.Redirect(authURL, fiber.StatusFound)
	}
	return c.JSON(fiber.Map{"url": authURL})
}

// OAuthCallback handles GET /api/auth/oauth/:provider/callback
// @Summary Finish OAuth sign-in
// @Description Exchanges the code and redirects to the frontend with the session token in the URL fragment. Without FRONTEND_URL the session is returned as JSON.
// @Tags auth
// @Produce json
// @Param provider path string true "github or google"
// @Param state query string true "OAuth state"
// @Param code query string true "Authorization code"
// @Success 302
// @Success 200 {object} service.Session
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/oauth/{provider}/callback [get]
func (s *Server) OAuthCallback(c *fiber.Ctx) error {
	provider := c.Params("provider")
	frontend := strings.TrimRight(s.config.FrontendURL, "/")

	if providerErr := c.Query("error"); providerErr != "" {
		if frontend == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Sign-in was cancelled"))
		}
		return c.Redirect(frontend+"/login?error="+url.QueryEscape(providerErr), fiber.StatusFound)
	}

	session, err := s.oauthService.Callback(c.UserContext(), provider, c.Query("state"), c.Query("code"))
	if err != nil {
		if frontend == "" {
			return s.respondError(c, err)
		}
		code := models.ErrorCode(err)
		if code == "" {
			code = models.CodeInternal
		}
		return c.Redirect(frontend+"/login?error="+url.QueryEscape(strings.ToLower(code)), fiber.StatusFound)
	}

	if frontend == "" {
		return c.JSON(session)
	}
	fragment := url.Values{}
	fragment.Set("token", session.Token)
	fragment.Set("provider", strings.ToLower(provider))
	return c.Redirect(frontend+"/auth/callback#"+fragment.Encode(), fiber.StatusFound)
}
