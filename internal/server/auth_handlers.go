package server

import (
	"chitchat/internal/middleware"
	"chitchat/internal/service"

	"github.com/gofiber/fiber/v2"
)

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// UpdateMeRequest is the body of PATCH /auth/me. Absent fields are left alone.
type UpdateMeRequest struct {
	Profile *struct {
		DisplayName *string `json:"displayName"`
		Bio         *string `json:"bio"`
		Location    *string `json:"location"`
		Website     *string `json:"website"`
		Avatar      *string `json:"avatar"`
	} `json:"profile"`
	IsPrivate *bool `json:"isPrivate"`
}

// Register handles POST /api/auth/register
// @Summary Register
// @Description Create an account and return a session token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration"
// @Success 201 {object} object{message=string,token=string,user=models.User}
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /auth/register [post]
func (s *Server) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return s.respondError(c, badBody())
	}

	user, tok, err := s.authService.Register(c.UserContext(), service.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		return s.respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User registered successfully",
		"token":   tok,
		"user":    user,
	})
}

// Login handles POST /api/auth/login
// @Summary Login
// @Description Authenticate with username or email
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} object{message=string,token=string,user=models.User}
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return s.respondError(c, badBody())
	}

	user, tok, err := s.authService.Login(c.UserContext(), req.Identifier, req.Password)
	if err != nil {
		return s.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Login successful",
		"token":   tok,
		"user":    user,
	})
}

// GetMe handles GET /api/auth/me
// @Summary Current account
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{user=service.Account}
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /auth/me [get]
func (s *Server) GetMe(c *fiber.Ctx) error {
	account, err := s.userService.Me(c.UserContext(), viewer(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"user": account})
}

// UpdateMe handles PATCH /api/auth/me
// @Summary Update profile
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UpdateMeRequest true "Profile fields"
// @Success 200 {object} object{message=string,user=models.User}
// @Failure 400 {object} models.ErrorResponse
// @Router /auth/me [patch]
func (s *Server) UpdateMe(c *fiber.Ctx) error {
	var req UpdateMeRequest
	if err := c.BodyParser(&req); err != nil {
		return s.respondError(c, badBody())
	}

	in := service.UpdateProfileInput{IsPrivate: req.IsPrivate}
	if p := req.Profile; p != nil {
		in.DisplayName, in.Bio, in.Location, in.Website, in.Avatar = p.DisplayName, p.Bio, p.Location, p.Website, p.Avatar
	}

	user, err := s.userService.UpdateProfile(c.UserContext(), viewer(c), in)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Profile updated successfully",
		"user":    user,
	})
}

// Logout handles POST /api/auth/logout
// @Summary Logout
// @Description Revoke the presented token
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{message=string}
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	if err := s.authService.Logout(c.UserContext(), middleware.CurrentClaims(c)); err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}

// Refresh handles POST /api/auth/refresh
// @Summary Refresh token
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{message=string,token=string}
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/refresh [post]
func (s *Server) Refresh(c *fiber.Ctx) error {
	tok, err := s.authService.Refresh(viewer(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Token refreshed successfully",
		"token":   tok,
	})
}
