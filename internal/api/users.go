package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pulsefeed/pulse/internal/auth"
	"github.com/pulsefeed/pulse/internal/models"
)

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// register creates a new user account
func (r *Router) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	existing, err := r.users.GetByUsername(c.Request.Context(), req.Username)
	if err != nil {
		r.logger.Error("Failed to look up user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal error"})
		return
	}
	if existing != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Username already registered"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		r.logger.Error("Failed to hash password", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal error"})
		return
	}

	user := &models.User{
		Username:       req.Username,
		Email:          req.Email,
		HashedPassword: hash,
	}
	if err := r.users.Create(c.Request.Context(), user); err != nil {
		r.logger.Error("Failed to create user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
	})
}

// login verifies credentials and issues an access token
func (r *Router) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	user, err := r.users.GetByUsername(c.Request.Context(), req.Username)
	if err != nil {
		r.logger.Error("Failed to look up user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal error"})
		return
	}
	if user == nil || !auth.CheckPassword(user.HashedPassword, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Incorrect username or password"})
		return
	}

	token, err := r.tokens.Issue(user.ID)
	if err != nil {
		r.logger.Error("Failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
	})
}
