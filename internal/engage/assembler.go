package engage

import (
	"context"
	"fmt"

	"github.com/pulsefeed/pulse/internal/cache"
	"github.com/pulsefeed/pulse/internal/models"
	"github.com/pulsefeed/pulse/pkg/telemetry"
)

// PostSource is the slice of the store of record the assembler reads
// post metadata from.
type PostSource interface {
	GetByID(ctx context.Context, id int64) (*models.Post, error)
}

// VoteSource reads and writes individual vote rows in the store of record.
type VoteSource interface {
	Count(ctx context.Context, postID int64, kind models.Kind) (int64, error)
	ListVoterIDs(ctx context.Context, postID int64, kind models.Kind) ([]int64, error)
	HasVote(ctx context.Context, postID, userID int64, kind models.Kind) (bool, error)
	Insert(ctx context.Context, postID, userID int64, kind models.Kind) error
	Delete(ctx context.Context, postID, userID int64, kind models.Kind) error
}

// RecordAssembler rebuilds a canonical post record from authoritative data.
type RecordAssembler interface {
	Assemble(ctx context.Context, postID int64) (*cache.Record, error)
}

// Assembler builds cache records from the store of record. It is the
// sole path that reconstructs a cache entry from authoritative data:
// both the cache-miss path and reconciliation depend on it.
type Assembler struct {
	posts PostSource
	votes VoteSource
}

// NewAssembler creates a new assembler
func NewAssembler(posts PostSource, votes VoteSource) *Assembler {
	return &Assembler{posts: posts, votes: votes}
}

// Assemble returns the canonical record for a post: metadata, derived
// counts and voter id sets. Returns nil when the post does not exist.
func (a *Assembler) Assemble(ctx context.Context, postID int64) (*cache.Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "engage.assemble")
	defer span.End()

	post, err := a.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to load post %d: %w", postID, err)
	}
	if post == nil {
		return nil, nil
	}

	rec := &cache.Record{
		ID:          post.ID,
		Title:       post.Title,
		Description: post.Description,
		Author:      post.Author,
	}

	for _, kind := range []models.Kind{models.KindLike, models.KindDislike} {
		count, err := a.votes.Count(ctx, postID, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s for post %d: %w", kind, postID, err)
		}
		voters, err := a.votes.ListVoterIDs(ctx, postID, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s voters for post %d: %w", kind, postID, err)
		}
		if kind == models.KindDislike {
			rec.Dislikes = count
			rec.DislikeUsers = voters
		} else {
			rec.Likes = count
			rec.LikeUsers = voters
		}
	}

	return rec, nil
}
