package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/verdant/internal/config"
	"github.com/example/verdant/internal/models"
	"github.com/example/verdant/internal/services"
	"github.com/example/verdant/internal/utils"
)

// AuthHandler bundles dependencies for authentication endpoints.
type AuthHandler struct {
	db        *gorm.DB
	cfg       *config.Config
	email     *services.EmailService
	reconcile *services.ReconcileService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, cfg *config.Config, email *services.EmailService, reconcile *services.ReconcileService) *AuthHandler {
	return &AuthHandler{db: db, cfg: cfg, email: email, reconcile: reconcile}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a new user account with local credentials.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	email := services.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing required fields")
	}

	var existing models.User
	if err := h.db.Where("email = ?", email).First(&existing).Error; err == nil {
		return fiber.NewError(fiber.StatusConflict, "user already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}

	user := models.User{
		Email:         email,
		Name:          req.Name,
		AccountStatus: models.AccountStatusActive,
		PasswordHash:  passwordHash,
	}

	if err := h.db.Create(&user).Error; err != nil {
		return err
	}

	// A guest may have checked out with this email before registering.
	if backfilled, err := h.reconcile.BackfillGuestOrders(c.Context(), user.ID, email); err != nil {
		log.Printf("[Auth] guest order backfill for %s failed: %v", email, err)
	} else if backfilled > 0 {
		log.Printf("[Auth] attached %d guest orders to new account %s", backfilled, email)
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"user": fiber.Map{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
		},
		"token": token,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates an existing user with local credentials.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var user models.User
	if err := h.db.Where("email = ?", services.NormalizeEmail(req.Email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
		}
		return err
	}

	if user.AccountStatus == models.AccountStatusDisabled {
		return fiber.NewError(fiber.StatusForbidden, "account disabled")
	}

	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user": fiber.Map{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
		},
		"token": token,
	})
}

type magicLinkRequest struct {
	Email string `json:"email"`
}

// RequestMagicLink issues a single-use sign-in token and emails the link.
func (h *AuthHandler) RequestMagicLink(c *fiber.Ctx) error {
	var req magicLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	email := services.NormalizeEmail(req.Email)
	if email == "" {
		return fiber.NewError(fiber.StatusBadRequest, "email is required")
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}
	token := hex.EncodeToString(tokenBytes)

	// Expire any previous unused links for this email.
	h.db.Model(&models.MagicLinkToken{}).
		Where("email = ? AND used_at IS NULL", email).
		Update("expires_at", time.Now())

	record := models.MagicLinkToken{
		Email:     email,
		Token:     token,
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}
	if err := h.db.Create(&record).Error; err != nil {
		return err
	}

	link := fmt.Sprintf("%s/auth/verify?token=%s", h.cfg.BaseURL, token)
	go func() {
		if err := h.email.SendMagicLink(email, link); err != nil {
			log.Printf("[Auth] magic link email to %s failed: %v", email, err)
		}
	}()

	return c.JSON(fiber.Map{"success": true, "message": "sign-in link sent"})
}

type magicLinkVerifyRequest struct {
	Token string `json:"token"`
}

// VerifyMagicLink exchanges a valid link token for a session. First sign-in
// creates the account and backfills guest orders.
func (h *AuthHandler) VerifyMagicLink(c *fiber.Ctx) error {
	var req magicLinkVerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Token == "" {
		return fiber.NewError(fiber.StatusBadRequest, "token is required")
	}

	var record models.MagicLinkToken
	if err := h.db.Where("token = ?", req.Token).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "invalid sign-in token")
		}
		return err
	}

	if record.UsedAt != nil {
		return fiber.NewError(fiber.StatusBadRequest, "token already used")
	}
	if record.ExpiresAt.Before(time.Now()) {
		return fiber.NewError(fiber.StatusBadRequest, "token expired")
	}

	user, err := h.reconcile.FindOrCreateUser(c.Context(), record.Email, "")
	if err != nil {
		return err
	}

	if backfilled, err := h.reconcile.BackfillGuestOrders(c.Context(), user.ID, record.Email); err != nil {
		log.Printf("[Auth] guest order backfill for %s failed: %v", record.Email, err)
	} else if backfilled > 0 {
		log.Printf("[Auth] attached %d guest orders to account %s", backfilled, record.Email)
	}

	now := time.Now()
	record.UsedAt = &now
	if err := h.db.Save(&record).Error; err != nil {
		return err
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user": fiber.Map{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
		},
		"token": token,
	})
}
