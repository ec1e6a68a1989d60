package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/auth"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// AuthHandler manages registration and login.
type AuthHandler struct {
	users   repositories.UserRepository
	tokens  repositories.TokenRepository
	emitter *telemetry.AuditEmitter
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(users repositories.UserRepository, tokens repositories.TokenRepository, emitter *telemetry.AuditEmitter) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, emitter: emitter}
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register creates an account and issues its bearer token.
func (h *AuthHandler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password required"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create user"})
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), req.Username, hash)
	if err != nil {
		if errors.Is(err, repositories.ErrUsernameExists) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create user"})
		return
	}

	token, err := h.issueToken(c, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}

	userID := int64(user.ID)
	h.emitter.Emit(c.Request.Context(), "INFO", "user registered", requestIDFromContext(c), &userID)
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Login verifies credentials and returns the account's token, issuing one on
// first login when absent.
func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password required"})
		return
	}

	user, err := h.users.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not verify credentials"})
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.tokens.GetTokenForUser(c.Request.Context(), user.ID)
	if errors.Is(err, repositories.ErrTokenNotFound) {
		token, err = h.issueToken(c, user.ID)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}

	userID := int64(user.ID)
	h.emitter.Emit(c.Request.Context(), "INFO", "user logged in", requestIDFromContext(c), &userID)
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *AuthHandler) issueToken(c *gin.Context, userID int) (string, error) {
	token, err := auth.NewToken()
	if err != nil {
		return "", err
	}
	if err := h.tokens.CreateToken(c.Request.Context(), token, userID); err != nil {
		return "", err
	}
	return token, nil
}
