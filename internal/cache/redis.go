package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/pulsefeed/pulse/internal/models"
	"github.com/pulsefeed/pulse/pkg/config"
	"github.com/pulsefeed/pulse/pkg/logging"
)

// ErrUnavailable is returned when the cache cannot serve an operation.
// Callers treat it as a degradation signal and fall back to the store
// of record, never as a fatal error.
var ErrUnavailable = errors.New("cache unavailable")

const (
	namespace = "pulse:"
	dirtyKey  = namespace + "dirty_posts"
)

// Record is the cached view of a post: metadata, counts and voter sets.
// Counts may momentarily disagree with the voter sets under concurrent
// toggles; reconciliation converges them.
type Record struct {
	ID           int64
	Title        string
	Description  string
	Author       int64
	Likes        int64
	Dislikes     int64
	LikeUsers    []int64
	DislikeUsers []int64
}

// Count returns the count field for the kind
func (r *Record) Count(kind models.Kind) int64 {
	if kind == models.KindDislike {
		return r.Dislikes
	}
	return r.Likes
}

// Voters returns the voter set for the kind
func (r *Record) Voters(kind models.Kind) []int64 {
	if kind == models.KindDislike {
		return r.DislikeUsers
	}
	return r.LikeUsers
}

// Store is the engagement-counter cache. It is injected where needed;
// construct it at startup and Close it at shutdown.
type Store struct {
	client    *redis.Client
	opTimeout time.Duration
}

// New creates a cache store from configuration and verifies connectivity
func New(cfg *config.RedisConfig) (*Store, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetLogger().Info("Redis connection established")

	return &Store{client: client, opTimeout: cfg.OpTimeout}, nil
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(client *redis.Client, opTimeout time.Duration) *Store {
	return &Store{client: client, opTimeout: opTimeout}
}

func postKey(postID int64) string {
	return fmt.Sprintf("%spost:%d", namespace, postID)
}

func votersKey(postID int64, kind models.Kind) string {
	return fmt.Sprintf("%svoters:%s:%d", namespace, kind, postID)
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// wrap classifies any non-nil cache error as ErrUnavailable
func wrap(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// GetRecord returns the cached record for a post, or nil on a miss
func (s *Store) GetRecord(ctx context.Context, postID int64) (*Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	fields, err := s.client.HGetAll(ctx, postKey(postID)).Result()
	if err != nil {
		return nil, wrap(err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	rec := &Record{
		ID:          parseInt(fields["id"]),
		Title:       fields["title"],
		Description: fields["description"],
		Author:      parseInt(fields["author"]),
		Likes:       parseInt(fields["likes"]),
		Dislikes:    parseInt(fields["dislikes"]),
	}

	for _, kind := range []models.Kind{models.KindLike, models.KindDislike} {
		members, err := s.client.SMembers(ctx, votersKey(postID, kind)).Result()
		if err != nil {
			return nil, wrap(err)
		}
		ids := parseIDs(members)
		if kind == models.KindDislike {
			rec.DislikeUsers = ids
		} else {
			rec.LikeUsers = ids
		}
	}

	return rec, nil
}

// SetRecord stores a record with the given TTL, replacing any previous
// voter sets so the entry matches the record exactly
func (s *Store) SetRecord(ctx context.Context, rec *Record, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	key := postKey(rec.ID)
	likeKey := votersKey(rec.ID, models.KindLike)
	dislikeKey := votersKey(rec.ID, models.KindDislike)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, likeKey, dislikeKey)
	pipe.HSet(ctx, key, map[string]interface{}{
		"id":          rec.ID,
		"title":       rec.Title,
		"description": rec.Description,
		"author":      rec.Author,
		"likes":       rec.Likes,
		"dislikes":    rec.Dislikes,
	})
	if len(rec.LikeUsers) > 0 {
		pipe.SAdd(ctx, likeKey, toArgs(rec.LikeUsers)...)
	}
	if len(rec.DislikeUsers) > 0 {
		pipe.SAdd(ctx, dislikeKey, toArgs(rec.DislikeUsers)...)
	}
	pipe.Expire(ctx, key, ttl)
	pipe.Expire(ctx, likeKey, ttl)
	pipe.Expire(ctx, dislikeKey, ttl)

	_, err := pipe.Exec(ctx)
	return wrap(err)
}

// UpdateFields writes the given hash fields if the post is cached.
// A post absent from the cache is left absent.
func (s *Store) UpdateFields(ctx context.Context, postID int64, fields map[string]interface{}) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	exists, err := s.client.Exists(ctx, postKey(postID)).Result()
	if err != nil {
		return wrap(err)
	}
	if exists == 0 {
		return nil
	}
	return wrap(s.client.HSet(ctx, postKey(postID), fields).Err())
}

// AddVoter adds a user to the voter set for the kind. The reported bool
// is true only when the user was not already a member, which makes the
// single SADD the atomic decision point of a toggle.
func (s *Store) AddVoter(ctx context.Context, postID, userID int64, kind models.Kind) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	added, err := s.client.SAdd(ctx, votersKey(postID, kind), userID).Result()
	if err != nil {
		return false, wrap(err)
	}
	return added == 1, nil
}

// RemoveVoter removes a user from the voter set for the kind
func (s *Store) RemoveVoter(ctx context.Context, postID, userID int64, kind models.Kind) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	removed, err := s.client.SRem(ctx, votersKey(postID, kind), userID).Result()
	if err != nil {
		return false, wrap(err)
	}
	return removed == 1, nil
}

// IncrCount adjusts the count field for the kind and returns the new value
func (s *Store) IncrCount(ctx context.Context, postID int64, kind models.Kind, delta int64) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	val, err := s.client.HIncrBy(ctx, postKey(postID), kind.String(), delta).Result()
	if err != nil {
		return 0, wrap(err)
	}
	return val, nil
}

// DeleteRecord removes a post's cache entry, voter sets and dirty mark
func (s *Store) DeleteRecord(ctx context.Context, postID int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, postKey(postID), votersKey(postID, models.KindLike), votersKey(postID, models.KindDislike))
	pipe.SRem(ctx, dirtyKey, postID)
	_, err := pipe.Exec(ctx)
	return wrap(err)
}

// ScanPostIDs returns the ids of every cached post via a cursor scan
func (s *Store) ScanPostIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	var cursor uint64
	prefix := namespace + "post:"

	for {
		scanCtx, cancel := s.withTimeout(ctx)
		keys, next, err := s.client.Scan(scanCtx, cursor, prefix+"*", 100).Result()
		cancel()
		if err != nil {
			return nil, wrap(err)
		}
		for _, key := range keys {
			if id, ok := parsePostKey(key, prefix); ok {
				ids = append(ids, id)
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// TTLRemaining returns the remaining TTL of a post's cache entry.
// The bool is false when the entry is absent.
func (s *Store) TTLRemaining(ctx context.Context, postID int64) (time.Duration, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	d, err := s.client.TTL(ctx, postKey(postID)).Result()
	if err != nil {
		return 0, false, wrap(err)
	}
	if d == -1*time.Nanosecond {
		// Key exists without expiry
		return 0, true, nil
	}
	if d < 0 {
		return 0, false, nil
	}
	return d, true, nil
}

// MarkDirty records that a post's cached engagement state changed and
// must be folded back into the store of record
func (s *Store) MarkDirty(ctx context.Context, postID int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return wrap(s.client.SAdd(ctx, dirtyKey, postID).Err())
}

// DirtyPosts returns the ids of posts marked dirty, ascending
func (s *Store) DirtyPosts(ctx context.Context) ([]int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	members, err := s.client.SMembers(ctx, dirtyKey).Result()
	if err != nil {
		return nil, wrap(err)
	}
	ids := parseIDs(members)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ClearDirty drops a post's dirty mark after reconciliation
func (s *Store) ClearDirty(ctx context.Context, postID int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return wrap(s.client.SRem(ctx, dirtyKey, postID).Err())
}

// FlushAll wipes the entire cache database, forcing every subsequent
// read to repopulate from the store of record
func (s *Store) FlushAll(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return wrap(s.client.FlushDB(ctx).Err())
}

// Ping checks cache health
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return wrap(s.client.Ping(ctx).Err())
}

// Close closes the Redis connection
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func parseIDs(members []string) []int64 {
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		if m == "" {
			continue
		}
		if id, err := strconv.ParseInt(m, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func parsePostKey(key, prefix string) (int64, bool) {
	rest := strings.TrimPrefix(key, prefix)
	if rest == key || strings.Contains(rest, ":") {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func toArgs(ids []int64) []interface{} {
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}
