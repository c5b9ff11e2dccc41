package handlers

import (
	"errors"
	"net/http"

	"wainbox/internal/auth"
	"wainbox/internal/http/middleware"
	"wainbox/internal/services"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *auth.Service
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Login godoc
// @Summary Login user
// @Description Authenticate user and return a JWT access token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body auth.LoginRequest true "Login credentials"
// @Success 200 {object} auth.LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request")
	}

	if err := c.Validate(&req); err != nil {
		return badRequest(c, validationMessage(err))
	}

	response, err := h.authService.Login(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrUserDisabled) {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   string(services.KindUnauthenticated),
				Message: err.Error(),
			})
		}
		log.Error().Err(err).Str("username", req.Username).Msg("Login failed")
		return respondError(c, services.StoreError("login", err))
	}

	return c.JSON(http.StatusOK, response)
}

// Me godoc
// @Summary Current principal
// @Description Return the authenticated user with the numbers they can see
// @Tags auth
// @Produce json
// @Success 200 {object} auth.Principal
// @Failure 401 {object} ErrorResponse
// @Security BearerAuth
// @Router /auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, middleware.GetPrincipal(c))
}
