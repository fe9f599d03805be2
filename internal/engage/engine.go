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

// Engine implements the like/dislike toggle protocol against the cache,
// with a direct store-of-record path when the cache is unavailable.
type Engine struct {
	cache     *cache.Store
	assembler RecordAssembler
	votes     VoteSource
	ttl       time.Duration
	logger    *zap.Logger
}

// NewEngine creates a new toggle engine
func NewEngine(cacheStore *cache.Store, assembler RecordAssembler, votes VoteSource, ttl time.Duration) *Engine {
	return &Engine{
		cache:     cacheStore,
		assembler: assembler,
		votes:     votes,
		ttl:       ttl,
		logger:    logging.GetLogger().With(zap.String("component", "toggle-engine")),
	}
}

// Toggle flips the user's reaction of the given kind on the post and
// returns the post-update count for that kind. Applying it twice restores
// the original state. Toggling one kind never inspects the other kind's
// voter set; a user may hold both a like and a dislike on the same post.
//
// When any cache operation fails, the toggle is applied directly to the
// store of record and the reconciliation job folds later cache state back
// in. Cache errors are never surfaced to the caller.
func (e *Engine) Toggle(ctx context.Context, postID, userID int64, kind models.Kind) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "engage.toggle")
	defer span.End()

	count, err := e.toggleCached(ctx, postID, userID, kind)
	if err == nil {
		return count, nil
	}
	if errors.Is(err, cache.ErrUnavailable) {
		e.logger.Warn("Cache unavailable, toggling against store of record",
			zap.Int64("post_id", postID),
			zap.Int64("user_id", userID),
			zap.String("kind", kind.String()),
			zap.Error(err))
		return e.toggleDirect(ctx, postID, userID, kind)
	}
	return 0, err
}

func (e *Engine) toggleCached(ctx context.Context, postID, userID int64, kind models.Kind) (int64, error) {
	rec, err := e.cache.GetRecord(ctx, postID)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		rec, err = e.assembler.Assemble(ctx, postID)
		if err != nil {
			return 0, err
		}
		if rec == nil {
			return 0, ErrPostNotFound
		}
		if err := e.cache.SetRecord(ctx, rec, e.ttl); err != nil {
			return 0, err
		}
	}

	// SADD is the atomic decision point: exactly one of two concurrent
	// toggles for the same (post, user, kind) observes the add.
	added, err := e.cache.AddVoter(ctx, postID, userID, kind)
	if err != nil {
		return 0, err
	}

	delta := int64(1)
	if !added {
		if _, err := e.cache.RemoveVoter(ctx, postID, userID, kind); err != nil {
			return 0, err
		}
		delta = -1
	}

	count, err := e.cache.IncrCount(ctx, postID, kind, delta)
	if err != nil {
		return 0, err
	}

	if err := e.cache.MarkDirty(ctx, postID); err != nil {
		// The toggle itself landed; the next successful toggle or
		// repopulation re-marks the post.
		e.logger.Warn("Failed to mark post dirty",
			zap.Int64("post_id", postID), zap.Error(err))
	}

	return count, nil
}

// toggleDirect applies the flip straight to the vote tables and recomputes
// the count. It never touches the cache.
func (e *Engine) toggleDirect(ctx context.Context, postID, userID int64, kind models.Kind) (int64, error) {
	has, err := e.votes.HasVote(ctx, postID, userID, kind)
	if err != nil {
		return 0, fmt.Errorf("failed to query vote rows: %w", err)
	}

	if has {
		if err := e.votes.Delete(ctx, postID, userID, kind); err != nil {
			return 0, fmt.Errorf("failed to delete vote row: %w", err)
		}
	} else {
		if err := e.votes.Insert(ctx, postID, userID, kind); err != nil {
			return 0, fmt.Errorf("failed to insert vote row: %w", err)
		}
	}

	count, err := e.votes.Count(ctx, postID, kind)
	if err != nil {
		return 0, fmt.Errorf("failed to count votes: %w", err)
	}
	return count, nil
}
