package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/BusyMan009/my-thrift-backend/internal/config"
	"github.com/BusyMan009/my-thrift-backend/internal/mail"
	"github.com/BusyMan009/my-thrift-backend/internal/model"
	registrystore "github.com/BusyMan009/my-thrift-backend/internal/registry/store"
	"github.com/BusyMan009/my-thrift-backend/internal/security"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// MountRoutes mounts the account lifecycle routes.
func MountRoutes(r *gin.Engine, store registrystore.MarketStore, cfg *config.Config, resolver *security.TokenResolver, mailer mail.Mailer) {
	g := r.Group("/api/auth")

	g.POST("/register", func(c *gin.Context) {
		register(c, store, cfg, resolver)
	})
	g.POST("/login", func(c *gin.Context) {
		login(c, store, resolver)
	})
	g.POST("/logout", func(c *gin.Context) {
		// Tokens are stateless; the client just discards its copy.
		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
	})
	g.POST("/forgot-password", func(c *gin.Context) {
		forgotPassword(c, store, cfg, mailer)
	})
	g.GET("/reset-password/:token", func(c *gin.Context) {
		checkResetToken(c, store)
	})
	g.POST("/reset-password/:token", func(c *gin.Context) {
		resetPassword(c, store, cfg)
	})
}

// authResponse pairs a fresh token with the account it belongs to.
func authResponse(token string, user *model.User) gin.H {
	return gin.H{"token": token, "user": user}
}

func register(c *gin.Context, store registrystore.MarketStore, cfg *config.Config, resolver *security.TokenResolver) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name == "" || req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and email are required"})
		return
	}
	if len(req.Password) < cfg.MinPasswordLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("password must be at least %d characters", cfg.MinPasswordLen)})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	user, err := store.CreateUser(c.Request.Context(), req.Name, req.Email, string(hash), defaultAvatarURL(req.Name))
	if err != nil {
		handleError(c, err)
		return
	}

	token, err := resolver.Issue(security.Identity{UserID: user.ID, Email: user.Email})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusCreated, authResponse(token, user))
}

func login(c *gin.Context, store registrystore.MarketStore, resolver *security.TokenResolver) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := store.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		var notFound *registrystore.NotFoundError
		if errors.As(err, &notFound) {
			// Unknown email and wrong password are indistinguishable.
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}
		handleError(c, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	token, err := resolver.Issue(security.Identity{UserID: user.ID, Email: user.Email})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, authResponse(token, user))
}

func forgotPassword(c *gin.Context, store registrystore.MarketStore, cfg *config.Config, mailer mail.Mailer) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := randomToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	user, err := store.SetResetToken(c.Request.Context(), req.Email, token, time.Now().Add(cfg.ResetTokenTTL))
	if err != nil {
		handleError(c, err)
		return
	}

	resetURL := fmt.Sprintf("%s/%s", cfg.ResetURLBase, token)
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>You asked to reset your password. The link below is valid for %s.</p><p><a href=%q>Reset password</a></p>",
		user.Name, cfg.ResetTokenTTL, resetURL)
	if err := mailer.Send(c.Request.Context(), user.Email, "Reset your password", body); err != nil {
		log.Error("Failed to send password reset mail", "email", user.Email, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send reset email"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "reset email sent"})
}

func checkResetToken(c *gin.Context, store registrystore.MarketStore) {
	_, err := store.FindUserByResetToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		var notFound *registrystore.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": "invalid or expired token"})
			return
		}
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

func resetPassword(c *gin.Context, store registrystore.MarketStore, cfg *config.Config) {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Password) < cfg.MinPasswordLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("password must be at least %d characters", cfg.MinPasswordLen)})
		return
	}

	user, err := store.FindUserByResetToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		var notFound *registrystore.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired token"})
			return
		}
		handleError(c, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if err := store.UpdatePassword(c.Request.Context(), user.ID, string(hash)); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}

// randomToken returns 32 hex chars of cryptographic randomness.
func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func defaultAvatarURL(name string) string {
	return "https://ui-avatars.com/api/?background=random&name=" + url.QueryEscape(name)
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
