package engage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pulsefeed/pulse/internal/cache"
	"github.com/pulsefeed/pulse/internal/models"
	"github.com/pulsefeed/pulse/pkg/logging"
	"github.com/pulsefeed/pulse/pkg/telemetry"
)

// PostStore is the slice of the store of record the post service writes to.
type PostStore interface {
	PostSource
	Create(ctx context.Context, post *models.Post) error
	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error
	Delete(ctx context.Context, id int64) error
	IsAuthor(ctx context.Context, postID, userID int64) (bool, error)
}

// Service provides cache-backed post reads and write-through post
// mutations. Reads populate the cache lazily on miss; when the cache is
// down they are served straight from the store of record.
type Service struct {
	cache     *cache.Store
	assembler RecordAssembler
	posts     PostStore
	ttl       time.Duration
	logger    *zap.Logger
}

// NewService creates a new post service
func NewService(cacheStore *cache.Store, assembler RecordAssembler, posts PostStore, ttl time.Duration) *Service {
	return &Service{
		cache:     cacheStore,
		assembler: assembler,
		posts:     posts,
		ttl:       ttl,
		logger:    logging.GetLogger().With(zap.String("component", "post-service")),
	}
}

// GetPost returns the post record, from the cache when possible.
// A miss assembles the record from the store of record and caches it
// with the default TTL.
func (s *Service) GetPost(ctx context.Context, postID int64) (*cache.Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "engage.get_post")
	defer span.End()

	rec, err := s.cache.GetRecord(ctx, postID)
	if err != nil {
		s.logger.Warn("Cache unavailable, serving post from store of record",
			zap.Int64("post_id", postID), zap.Error(err))
		return s.assembleOrNotFound(ctx, postID)
	}
	if rec != nil {
		return rec, nil
	}

	rec, err = s.assembleOrNotFound(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetRecord(ctx, rec, s.ttl); err != nil {
		// Serve the record anyway; the next read retries the populate.
		s.logger.Warn("Failed to populate cache",
			zap.Int64("post_id", postID), zap.Error(err))
	}
	return rec, nil
}

func (s *Service) assembleOrNotFound(ctx context.Context, postID int64) (*cache.Record, error) {
	rec, err := s.assembler.Assemble(ctx, postID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrPostNotFound
	}
	return rec, nil
}

// ListPosts returns records for post ids 1..limit, skipping ids with no
// post, in ascending id order.
func (s *Service) ListPosts(ctx context.Context, limit int) ([]*cache.Record, error) {
	records := make([]*cache.Record, 0, limit)
	for id := int64(1); id <= int64(limit); id++ {
		rec, err := s.GetPost(ctx, id)
		if err != nil {
			if errors.Is(err, ErrPostNotFound) {
				continue
			}
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// CreatePost stores a new post. The cache entry appears lazily on the
// first read or toggle.
func (s *Service) CreatePost(ctx context.Context, authorID int64, title, description string) (*models.Post, error) {
	post := &models.Post{
		Title:       title,
		Description: description,
		Author:      authorID,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}
	return post, nil
}

// UpdatePost updates post metadata in the store of record and, if the
// post is currently cached, mirrors the change into the cache entry.
func (s *Service) UpdatePost(ctx context.Context, postID int64, fields map[string]interface{}) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrPostNotFound
	}

	if err := s.posts.UpdateFields(ctx, postID, fields); err != nil {
		return nil, fmt.Errorf("failed to update post: %w", err)
	}
	if err := s.cache.UpdateFields(ctx, postID, fields); err != nil {
		s.logger.Warn("Failed to update cached post",
			zap.Int64("post_id", postID), zap.Error(err))
	}

	return s.posts.GetByID(ctx, postID)
}

// DeletePost removes a post from the store of record and drops its cache
// entry explicitly rather than waiting for TTL expiry.
func (s *Service) DeletePost(ctx context.Context, postID int64) error {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return ErrPostNotFound
	}

	if err := s.posts.Delete(ctx, postID); err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	if err := s.cache.DeleteRecord(ctx, postID); err != nil {
		s.logger.Warn("Failed to delete cached post",
			zap.Int64("post_id", postID), zap.Error(err))
	}
	return nil
}

// IsAuthor reports whether userID authored the post
func (s *Service) IsAuthor(ctx context.Context, postID, userID int64) (bool, error) {
	return s.posts.IsAuthor(ctx, postID, userID)
}
