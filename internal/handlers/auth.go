package handlers

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"chatsync/internal/logger"
	"chatsync/internal/media"
	"chatsync/internal/middleware"
	"chatsync/internal/models"
	"chatsync/internal/store"
	"chatsync/internal/utils"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// SignupRequest represents signup request body
type SignupRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateProfileRequest represents update profile request body
type UpdateProfileRequest struct {
	ProfilePic string `json:"profilePic"`
}

func (h *Handler) setSessionCookie(c *fiber.Ctx, token string, maxAge time.Duration) {
	// Set HTTP-Only Cookie for the session token
	c.Cookie(&fiber.Cookie{
		Name:     utils.CookieName,
		Value:    token,
		Path:     "/",
		HTTPOnly: true,
		Secure:   h.secureCookies,
		SameSite: "Strict",
		MaxAge:   int(maxAge.Seconds()),
	})
}

func (h *Handler) issueSession(c *fiber.Ctx, user *models.User) error {
	token, err := h.tokens.GenerateToken(user.ID)
	if err != nil {
		return err
	}
	h.setSessionCookie(c, token, h.tokens.TTL())
	return nil
}

// Signup handles user registration
func (h *Handler) Signup(c *fiber.Ctx) error {
	var req SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	// Validate input
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.TrimSpace(req.Email)
	if req.FullName == "" || req.Email == "" || req.Password == "" {
		return badRequest(c, "All fields are required")
	}
	if !emailPattern.MatchString(req.Email) {
		return badRequest(c, "Invalid email format")
	}
	if len(req.Password) < utils.MinPasswordLength {
		return badRequest(c, "Password must be at least 6 characters")
	}

	// Hash password
	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return respondError(c, err)
	}

	user, err := h.users.Create(c.UserContext(), models.UserDraft{
		FullName:     req.FullName,
		Email:        req.Email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return badRequest(c, "Email already exists")
		}
		return respondError(c, err)
	}

	if err := h.issueSession(c, user); err != nil {
		return respondError(c, err)
	}

	l := logger.Ctx(c.UserContext())
	l.Info().Str(logger.FieldUserID, user.ID).Msg("user signed up")

	return c.Status(fiber.StatusCreated).JSON(user)
}

// Login handles user login
func (h *Handler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if req.Email == "" || req.Password == "" {
		return badRequest(c, "Email and password are required")
	}

	user, err := h.users.FindByEmail(c.UserContext(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return badRequest(c, "Invalid credentials")
		}
		return respondError(c, err)
	}

	// Verify password
	if !utils.CheckPassword(user.Password, req.Password) {
		return badRequest(c, "Invalid credentials")
	}

	if err := h.issueSession(c, user); err != nil {
		return respondError(c, err)
	}

	return c.JSON(user)
}

// Logout clears the session cookie
func (h *Handler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     utils.CookieName,
		Value:    "",
		Path:     "/",
		HTTPOnly: true,
		Secure:   h.secureCookies,
		SameSite: "Strict",
		Expires:  time.Unix(0, 0),
	})

	return c.JSON(fiber.Map{
		"message": "Logged out successfully",
	})
}

// CheckAuth returns the authenticated user
func (h *Handler) CheckAuth(c *fiber.Ctx) error {
	user := middleware.GetUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"message": "Unauthorized",
		})
	}
	return c.JSON(user)
}

// UpdateProfile sets the profile picture of the authenticated user
func (h *Handler) UpdateProfile(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	pic := strings.TrimSpace(req.ProfilePic)
	if pic == "" {
		return badRequest(c, "Profile pic is required")
	}

	if media.IsDataURI(pic) {
		url, err := h.uploader.Upload(c.UserContext(), pic)
		if err != nil {
			if errors.Is(err, media.ErrInvalidImage) || errors.Is(err, media.ErrImageTooLarge) {
				return badRequest(c, err.Error())
			}
			return respondError(c, err)
		}
		pic = url
	}

	user, err := h.users.UpdateProfilePic(c.UserContext(), userID, pic)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}
