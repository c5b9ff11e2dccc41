package handlers

import (
	"errors"
	"net/http"
	"strings"

	"wainbox/internal/auth"
	"wainbox/internal/repo"
	"wainbox/internal/services"
	"wainbox/pkg/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// AdminHandler manages users, numbers and assignments
type AdminHandler struct {
	users   *repo.UserRepository
	numbers *repo.NumberRepository
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(users *repo.UserRepository, numbers *repo.NumberRepository) *AdminHandler {
	return &AdminHandler{users: users, numbers: numbers}
}

// CreateUserRequest represents a new agent or administrator
type CreateUserRequest struct {
	Username string `json:"username" validate:"required,max=120"`
	Name     string `json:"name" validate:"max=200"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=admin employee"`
}

// CreateNumberRequest represents a new provider number
type CreateNumberRequest struct {
	DisplayName   string `json:"display_name" validate:"required,max=200"`
	PhoneNumberID string `json:"phone_number_id" validate:"required,max=64"`
}

// AssignRequest replaces the numbers assigned to a user
type AssignRequest struct {
	UserID      uint   `json:"user_id" validate:"required"`
	WaNumberIDs []uint `json:"wa_number_ids"`
}

// CreatedResponse reports the id of a created record
type CreatedResponse struct {
	OK bool `json:"ok"`
	ID uint `json:"id"`
}

// ListUsers godoc
// @Summary List users
// @Tags admin
// @Produce json
// @Success 200 {array} models.User
// @Security BearerAuth
// @Router /admin/users [get]
func (h *AdminHandler) ListUsers(c echo.Context) error {
	users, err := h.users.List(c.Request().Context())
	if err != nil {
		return respondError(c, services.StoreError("list users", err))
	}
	return c.JSON(http.StatusOK, users)
}

// CreateUser godoc
// @Summary Create user
// @Tags admin
// @Accept json
// @Produce json
// @Param request body CreateUserRequest true "User data"
// @Success 201 {object} CreatedResponse
// @Failure 400 {object} ErrorResponse
// @Security BearerAuth
// @Router /admin/users [post]
func (h *AdminHandler) CreateUser(c echo.Context) error {
	var req CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request")
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Name = strings.TrimSpace(req.Name)
	req.Password = strings.TrimSpace(req.Password)
	if err := c.Validate(&req); err != nil {
		return badRequest(c, validationMessage(err))
	}

	if req.Name == "" {
		req.Name = req.Username
	}
	if req.Role == "" {
		req.Role = models.RoleEmployee
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return badRequest(c, err.Error())
	}

	user := &models.User{
		Username:     req.Username,
		Name:         req.Name,
		PasswordHash: hash,
		Role:         req.Role,
		IsActive:     true,
	}
	if err := h.users.Create(c.Request().Context(), user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return badRequest(c, "Username already exists")
		}
		return respondError(c, services.StoreError("create user", err))
	}

	log.Info().Uint("user_id", user.ID).Str("username", user.Username).Str("role", user.Role).Msg("User created")
	return c.JSON(http.StatusCreated, CreatedResponse{OK: true, ID: user.ID})
}

// ToggleUser godoc
// @Summary Enable or disable a user
// @Tags admin
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} models.User
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /admin/users/{id}/toggle [post]
func (h *AdminHandler) ToggleUser(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "Invalid user ID")
	}

	user, err := h.users.ToggleActive(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, services.NotFound("user not found"))
		}
		return respondError(c, services.StoreError("toggle user", err))
	}
	return c.JSON(http.StatusOK, user)
}

// Assign godoc
// @Summary Assign numbers to a user
// @Description Replaces every assignment of the user with the given numbers
// @Tags admin
// @Accept json
// @Produce json
// @Param request body AssignRequest true "Assignments"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /admin/assign [post]
func (h *AdminHandler) Assign(c echo.Context) error {
	var req AssignRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, validationMessage(err))
	}

	ctx := c.Request().Context()
	if _, err := h.users.GetByID(ctx, req.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, services.NotFound("user not found"))
		}
		return respondError(c, services.StoreError("load user", err))
	}
	for _, numberID := range req.WaNumberIDs {
		if _, err := h.numbers.GetByID(ctx, numberID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return badRequest(c, "Unknown number in wa_number_ids")
			}
			return respondError(c, services.StoreError("load number", err))
		}
	}

	if err := h.users.ReplaceAssignments(ctx, req.UserID, req.WaNumberIDs); err != nil {
		return respondError(c, services.StoreError("replace assignments", err))
	}

	log.Info().Uint("user_id", req.UserID).Interface("wa_number_ids", req.WaNumberIDs).Msg("Assignments replaced")
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// ListNumbers godoc
// @Summary List every number
// @Tags admin
// @Produce json
// @Success 200 {array} models.WhatsAppNumber
// @Security BearerAuth
// @Router /admin/numbers [get]
func (h *AdminHandler) ListNumbers(c echo.Context) error {
	numbers, err := h.numbers.List(c.Request().Context())
	if err != nil {
		return respondError(c, services.StoreError("list numbers", err))
	}
	return c.JSON(http.StatusOK, numbers)
}

// CreateNumber godoc
// @Summary Register a number
// @Tags admin
// @Accept json
// @Produce json
// @Param request body CreateNumberRequest true "Number data"
// @Success 201 {object} CreatedResponse
// @Failure 400 {object} ErrorResponse
// @Security BearerAuth
// @Router /admin/numbers [post]
func (h *AdminHandler) CreateNumber(c echo.Context) error {
	var req CreateNumberRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request")
	}
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.PhoneNumberID = strings.TrimSpace(req.PhoneNumberID)
	if err := c.Validate(&req); err != nil {
		return badRequest(c, validationMessage(err))
	}

	number := &models.WhatsAppNumber{
		DisplayName:   req.DisplayName,
		PhoneNumberID: req.PhoneNumberID,
		IsActive:      true,
	}
	if err := h.numbers.Create(c.Request().Context(), number); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return badRequest(c, "phone_number_id already registered")
		}
		return respondError(c, services.StoreError("create number", err))
	}

	log.Info().Uint("number_id", number.ID).Str("phone_number_id", number.PhoneNumberID).Msg("Number registered")
	return c.JSON(http.StatusCreated, CreatedResponse{OK: true, ID: number.ID})
}

// ToggleNumber godoc
// @Summary Activate or deactivate a number
// @Description Inactive numbers are hidden from the inbox and ignored by ingestion
// @Tags admin
// @Produce json
// @Param id path int true "Number ID"
// @Success 200 {object} models.WhatsAppNumber
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /admin/numbers/{id}/toggle [post]
func (h *AdminHandler) ToggleNumber(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "Invalid number ID")
	}

	number, err := h.numbers.ToggleActive(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, services.NotFound("number not found"))
		}
		return respondError(c, services.StoreError("toggle number", err))
	}
	return c.JSON(http.StatusOK, number)
}
