package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pulsefeed/pulse/internal/cache"
	"github.com/pulsefeed/pulse/internal/engage"
	"github.com/pulsefeed/pulse/internal/models"
)

// PostView is the API representation of a post with its engagement counts
type PostView struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Author      int64  `json:"author"`
	Likes       int64  `json:"likes"`
	Dislikes    int64  `json:"dislikes"`
}

func toView(rec *cache.Record) PostView {
	return PostView{
		ID:          rec.ID,
		Title:       rec.Title,
		Description: rec.Description,
		Author:      rec.Author,
		Likes:       rec.Likes,
		Dislikes:    rec.Dislikes,
	}
}

type createPostRequest struct {
	Title       string `json:"title" binding:"required,min=1,max=150"`
	Description string `json:"description" binding:"required,min=1,max=5000"`
}

type updatePostRequest struct {
	Title       *string `json:"title" binding:"omitempty,min=1,max=150"`
	Description *string `json:"description" binding:"omitempty,min=1,max=5000"`
}

func postIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid post id"})
		return 0, false
	}
	return id, true
}

// listPosts returns cache-backed views of posts 1..limit
func (r *Router) listPosts(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid limit"})
			return
		}
		limit = parsed
	}

	records, err := r.posts.ListPosts(c.Request.Context(), limit)
	if err != nil {
		r.logger.Error("Failed to list posts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal error"})
		return
	}

	views := make([]PostView, 0, len(records))
	for _, rec := range records {
		views = append(views, toView(rec))
	}
	c.JSON(http.StatusOK, views)
}

// getPost returns a single post view
func (r *Router) getPost(c *gin.Context) {
	postID, ok := postIDParam(c)
	if !ok {
		return
	}

	rec, err := r.posts.GetPost(c.Request.Context(), postID)
	if err != nil {
		if errors.Is(err, engage.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Post not exist"})
			return
		}
		r.logger.Error("Failed to get post", zap.Int64("post_id", postID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal error"})
		return
	}

	c.JSON(http.StatusOK, toView(rec))
}

// createPost stores a new post authored by the current user
func (r *Router) createPost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	post, err := r.posts.CreatePost(c.Request.Context(), currentUserID(c), req.Title, req.Description)
	if err != nil {
		r.logger.Error("Failed to create post", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal error"})
		return
	}

	c.JSON(http.StatusCreated, post)
}

// updatePost edits a post's metadata; only the author may edit
func (r *Router) updatePost(c *gin.Context) {
	postID, ok := postIDParam(c)
	if !ok {
		return
	}

	var req updatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	isAuthor, err := r.posts.IsAuthor(c.Request.Context(), postID, currentUserID(c))
	if err != nil {
		r.logger.Error("Failed to check post author", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal error"})
		return
	}
	if !isAuthor {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "You can't edit this post. Permission denied."})
		return
	}

	fields := map[string]interface{}{}
	if req.Title != nil {
		fields["title"] = *req.Title
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if len(fields) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Nothing to update"})
		return
	}

	post, err := r.posts.UpdatePost(c.Request.Context(), postID, fields)
	if err != nil {
		if errors.Is(err, engage.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Post not exist"})
			return
		}
		r.logger.Error("Failed to update post", zap.Int64("post_id", postID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal error"})
		return
	}

	c.JSON(http.StatusCreated, post)
}

// deletePost removes a post; only the author may delete
func (r *Router) deletePost(c *gin.Context) {
	postID, ok := postIDParam(c)
	if !ok {
		return
	}

	isAuthor, err := r.posts.IsAuthor(c.Request.Context(), postID, currentUserID(c))
	if err != nil {
		r.logger.Error("Failed to check post author", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal error"})
		return
	}
	if !isAuthor {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "You can't delete this post. Permission denied."})
		return
	}

	if err := r.posts.DeletePost(c.Request.Context(), postID); err != nil {
		if errors.Is(err, engage.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Post not exist"})
			return
		}
		r.logger.Error("Failed to delete post", zap.Int64("post_id", postID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"Message": "Post deleted"})
}

func (r *Router) toggleLike(c *gin.Context) {
	r.toggle(c, models.KindLike)
}

func (r *Router) toggleDislike(c *gin.Context) {
	r.toggle(c, models.KindDislike)
}

// toggle flips the current user's reaction; authors may not react to
// their own posts
func (r *Router) toggle(c *gin.Context, kind models.Kind) {
	postID, ok := postIDParam(c)
	if !ok {
		return
	}
	userID := currentUserID(c)

	isAuthor, err := r.posts.IsAuthor(c.Request.Context(), postID, userID)
	if err != nil {
		r.logger.Error("Failed to check post author", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal error"})
		return
	}
	if isAuthor {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "You can't like or dislike your own posts"})
		return
	}

	count, err := r.engine.Toggle(c.Request.Context(), postID, userID, kind)
	if err != nil {
		if errors.Is(err, engage.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Post not exist"})
			return
		}
		r.logger.Error("Failed to toggle reaction",
			zap.Int64("post_id", postID),
			zap.Int64("user_id", userID),
			zap.String("kind", kind.String()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{kind.String(): count})
}
