package db

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pulsefeed/pulse/internal/models"
)

// Repository provides database access methods
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// UserRepository provides user-related database operations
type UserRepository struct {
	*Repository
}

// NewUserRepository creates a new user repository
func NewUserRepository(repo *Repository) *UserRepository {
	return &UserRepository{Repository: repo}
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetByUsername retrieves a user by username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// PostRepository provides post-related database operations
type PostRepository struct {
	*Repository
}

// NewPostRepository creates a new post repository
func NewPostRepository(repo *Repository) *PostRepository {
	return &PostRepository{Repository: repo}
}

// GetByID retrieves a post by ID
func (r *PostRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &post, nil
}

// Create creates a new post
func (r *PostRepository) Create(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

// UpdateFields updates the named columns of a post
func (r *PostRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).Updates(fields).Error
}

// Delete removes a post and its vote rows
func (r *PostRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&models.Dislike{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Post{}, id).Error
	})
}

// IsAuthor reports whether userID authored the post
func (r *PostRepository) IsAuthor(ctx context.Context, postID, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ? AND author = ?", postID, userID).
		Count(&count).Error
	return count > 0, err
}

// VoteRepository provides like/dislike row operations for both kinds
type VoteRepository struct {
	*Repository
}

// NewVoteRepository creates a new vote repository
func NewVoteRepository(repo *Repository) *VoteRepository {
	return &VoteRepository{Repository: repo}
}

func (r *VoteRepository) model(kind models.Kind) interface{} {
	if kind == models.KindDislike {
		return &models.Dislike{}
	}
	return &models.Like{}
}

// Count returns the number of vote rows for the post under the given kind
func (r *VoteRepository) Count(ctx context.Context, postID int64, kind models.Kind) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(r.model(kind)).
		Where("post_id = ?", postID).
		Count(&count).Error
	return count, err
}

// ListVoterIDs returns the ids of users holding a vote row for the post,
// in ascending user id order
func (r *VoteRepository) ListVoterIDs(ctx context.Context, postID int64, kind models.Kind) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(r.model(kind)).
		Where("post_id = ?", postID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "user"}}).
		Pluck("user", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// HasVote reports whether a vote row exists for (postID, userID)
func (r *VoteRepository) HasVote(ctx context.Context, postID, userID int64, kind models.Kind) (bool, error) {
	var count int64
	// "user" must be quoted: unquoted it parses as current_user on postgres
	err := r.db.WithContext(ctx).Model(r.model(kind)).
		Where(`post_id = ? AND "user" = ?`, postID, userID).
		Count(&count).Error
	return count > 0, err
}

// Insert creates a vote row
func (r *VoteRepository) Insert(ctx context.Context, postID, userID int64, kind models.Kind) error {
	if kind == models.KindDislike {
		return r.db.WithContext(ctx).Create(&models.Dislike{PostID: postID, User: userID}).Error
	}
	return r.db.WithContext(ctx).Create(&models.Like{PostID: postID, User: userID}).Error
}

// Delete removes the vote row for (postID, userID)
func (r *VoteRepository) Delete(ctx context.Context, postID, userID int64, kind models.Kind) error {
	return r.db.WithContext(ctx).
		Where(`post_id = ? AND "user" = ?`, postID, userID).
		Delete(r.model(kind)).Error
}

// InsertBatch creates vote rows for every user in userIDs
func (r *VoteRepository) InsertBatch(ctx context.Context, postID int64, userIDs []int64, kind models.Kind) error {
	if len(userIDs) == 0 {
		return nil
	}
	if kind == models.KindDislike {
		rows := make([]models.Dislike, 0, len(userIDs))
		for _, id := range userIDs {
			rows = append(rows, models.Dislike{PostID: postID, User: id})
		}
		return r.db.WithContext(ctx).Create(&rows).Error
	}
	rows := make([]models.Like, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, models.Like{PostID: postID, User: id})
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// DeleteBatch removes the vote rows of every user in userIDs
func (r *VoteRepository) DeleteBatch(ctx context.Context, postID int64, userIDs []int64, kind models.Kind) error {
	if len(userIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where(`post_id = ? AND "user" IN ?`, postID, userIDs).
		Delete(r.model(kind)).Error
}
