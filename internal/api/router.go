package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pulsefeed/pulse/internal/auth"
	"github.com/pulsefeed/pulse/internal/db"
	"github.com/pulsefeed/pulse/internal/engage"
	"github.com/pulsefeed/pulse/pkg/logging"
)

// Router sets up API routes
type Router struct {
	posts  *engage.Service
	engine *engage.Engine
	users  *db.UserRepository
	tokens *auth.Manager
	logger *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(posts *engage.Service, engine *engage.Engine, users *db.UserRepository, tokens *auth.Manager) *Router {
	return &Router{
		posts:  posts,
		engine: engine,
		users:  users,
		tokens: tokens,
		logger: logging.GetLogger().With(zap.String("component", "api-router")),
	}
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.GET("/health", r.healthHandler)

	users := engine.Group("/api/users")
	{
		users.POST("/", r.register)
		users.POST("/token", r.login)
	}

	posts := engine.Group("/api/posts")
	{
		posts.GET("/", r.listPosts)
		posts.GET("/:id", r.getPost)

		authed := posts.Group("", RequireAuth(r.tokens))
		authed.POST("/", r.createPost)
		authed.PATCH("/:id", r.updatePost)
		authed.DELETE("/:id", r.deletePost)
		authed.POST("/like/:id", r.toggleLike)
		authed.POST("/dislike/:id", r.toggleDislike)
	}
}

// healthHandler handles health check requests
func (r *Router) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "OK",
		"service": "pulse-api",
	})
}
