package jobs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pulsefeed/pulse/internal/cache"
	"github.com/pulsefeed/pulse/internal/models"
	"github.com/pulsefeed/pulse/pkg/logging"
	"github.com/pulsefeed/pulse/pkg/telemetry"
)

// VoteBatchStore is the slice of the store of record the reconciler
// diffs against and applies fix-ups to.
type VoteBatchStore interface {
	ListVoterIDs(ctx context.Context, postID int64, kind models.Kind) ([]int64, error)
	InsertBatch(ctx context.Context, postID int64, userIDs []int64, kind models.Kind) error
	DeleteBatch(ctx context.Context, postID int64, userIDs []int64, kind models.Kind) error
}

// Reconciler folds cached engagement state back into the store of record.
// It walks the posts marked dirty since the last run, computes voter-set
// differences per kind and applies the minimal batch fix-up, converging
// the store of record toward what the cache last observed. A failure on
// one post is logged and skipped; the run continues.
type Reconciler struct {
	cache  *cache.Store
	votes  VoteBatchStore
	logger *zap.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(cacheStore *cache.Store, votes VoteBatchStore) *Reconciler {
	return &Reconciler{
		cache:  cacheStore,
		votes:  votes,
		logger: logging.GetLogger().With(zap.String("component", "reconciler")),
	}
}

// Run executes one reconciliation pass
func (r *Reconciler) Run(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "jobs.reconcile")
	defer span.End()

	postIDs, err := r.cache.DirtyPosts(ctx)
	if err != nil {
		// Cache down means no cache-side changes to fold back; try again
		// next run.
		return fmt.Errorf("failed to read dirty posts: %w", err)
	}
	if len(postIDs) == 0 {
		r.logger.Debug("No dirty posts, nothing to reconcile")
		return nil
	}

	r.logger.Info("Reconciling posts", zap.Int("count", len(postIDs)))

	healed := 0
	for _, postID := range postIDs {
		if err := r.reconcilePost(ctx, postID); err != nil {
			r.logger.Error("Failed to reconcile post",
				zap.Int64("post_id", postID),
				zap.Error(err))
			continue
		}
		healed++
	}

	r.logger.Info("Reconciliation run complete",
		zap.Int("reconciled", healed),
		zap.Int("skipped", len(postIDs)-healed))
	return nil
}

func (r *Reconciler) reconcilePost(ctx context.Context, postID int64) error {
	rec, err := r.cache.GetRecord(ctx, postID)
	if err != nil {
		return err
	}
	if rec == nil {
		// Entry expired or was evicted; the store of record is
		// authoritative again, so the dirty mark is stale.
		return r.cache.ClearDirty(ctx, postID)
	}

	for _, kind := range []models.Kind{models.KindLike, models.KindDislike} {
		dbVoters, err := r.votes.ListVoterIDs(ctx, postID, kind)
		if err != nil {
			return fmt.Errorf("failed to list %s voters: %w", kind, err)
		}
		cacheVoters := rec.Voters(kind)

		toDelete := difference(dbVoters, cacheVoters)
		toAdd := difference(cacheVoters, dbVoters)

		if len(toDelete) > 0 {
			if err := r.votes.DeleteBatch(ctx, postID, toDelete, kind); err != nil {
				return fmt.Errorf("failed to delete %s rows: %w", kind, err)
			}
		}
		if len(toAdd) > 0 {
			if err := r.votes.InsertBatch(ctx, postID, toAdd, kind); err != nil {
				return fmt.Errorf("failed to insert %s rows: %w", kind, err)
			}
		}

		if len(toDelete) > 0 || len(toAdd) > 0 {
			r.logger.Info("Healed divergence",
				zap.Int64("post_id", postID),
				zap.String("kind", kind.String()),
				zap.Int64s("deleted", toDelete),
				zap.Int64s("added", toAdd))
		}
	}

	if err := r.cache.ClearDirty(ctx, postID); err != nil {
		// The fix-up landed; a stale mark only causes a redundant diff
		// next run.
		r.logger.Warn("Failed to clear dirty mark",
			zap.Int64("post_id", postID), zap.Error(err))
	}
	return nil
}

// difference returns the elements of a that are not in b
func difference(a, b []int64) []int64 {
	inB := make(map[int64]struct{}, len(b))
	for _, v := range b {
		inB[v] = struct{}{}
	}
	var out []int64
	for _, v := range a {
		if _, ok := inB[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}
