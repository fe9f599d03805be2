package engage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pulsefeed/pulse/internal/cache"
	"github.com/pulsefeed/pulse/internal/db"
	"github.com/pulsefeed/pulse/internal/models"
)

type testEnv struct {
	cache *cache.Store
	redis *miniredis.Miniredis
	posts *db.PostRepository
	votes *db.VoteRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	path := filepath.Join(t.TempDir(), "test.db")
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.Like{},
		&models.Dislike{},
	))

	base := db.NewRepository(gdb)
	return &testEnv{
		cache: cache.NewWithClient(client, time.Second),
		redis: mr,
		posts: db.NewPostRepository(base),
		votes: db.NewVoteRepository(base),
	}
}

func (env *testEnv) newEngine() *Engine {
	assembler := NewAssembler(env.posts, env.votes)
	return NewEngine(env.cache, assembler, env.votes, time.Hour)
}

func (env *testEnv) createPost(t *testing.T, author int64) *models.Post {
	t.Helper()
	post := &models.Post{Title: "post", Description: "body", Author: author}
	require.NoError(t, env.posts.Create(context.Background(), post))
	return post
}

func TestToggleFlipsReaction(t *testing.T) {
	env := newTestEnv(t)
	engine := env.newEngine()
	ctx := context.Background()
	post := env.createPost(t, 1)

	count, err := engine.Toggle(ctx, post.ID, 2, models.KindLike)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	rec, err := env.cache.GetRecord(ctx, post.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []int64{2}, rec.LikeUsers)

	// Same toggle again restores the original state
	count, err = engine.Toggle(ctx, post.ID, 2, models.KindLike)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	rec, err = env.cache.GetRecord(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, rec.LikeUsers)
}

func TestToggleKindsIndependent(t *testing.T) {
	env := newTestEnv(t)
	engine := env.newEngine()
	ctx := context.Background()
	post := env.createPost(t, 1)

	likes, err := engine.Toggle(ctx, post.ID, 2, models.KindLike)
	require.NoError(t, err)
	assert.Equal(t, int64(1), likes)

	// A dislike by the same user does not clear the like
	dislikes, err := engine.Toggle(ctx, post.ID, 2, models.KindDislike)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dislikes)

	rec, err := env.cache.GetRecord(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, rec.LikeUsers)
	assert.Equal(t, []int64{2}, rec.DislikeUsers)
	assert.Equal(t, int64(1), rec.Likes)
	assert.Equal(t, int64(1), rec.Dislikes)
}

func TestTogglePopulatesOnMiss(t *testing.T) {
	env := newTestEnv(t)
	engine := env.newEngine()
	ctx := context.Background()
	post := env.createPost(t, 1)

	// Existing vote rows, nothing cached yet
	require.NoError(t, env.votes.Insert(ctx, post.ID, 5, models.KindLike))
	require.NoError(t, env.votes.Insert(ctx, post.ID, 6, models.KindLike))

	count, err := engine.Toggle(ctx, post.ID, 7, models.KindLike)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	rec, err := env.cache.GetRecord(ctx, post.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{5, 6, 7}, rec.LikeUsers)
}

func TestToggleMissingPost(t *testing.T) {
	env := newTestEnv(t)
	engine := env.newEngine()

	_, err := engine.Toggle(context.Background(), 99, 2, models.KindLike)
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestToggleMarksDirty(t *testing.T) {
	env := newTestEnv(t)
	engine := env.newEngine()
	ctx := context.Background()
	post := env.createPost(t, 1)

	_, err := engine.Toggle(ctx, post.ID, 2, models.KindLike)
	require.NoError(t, err)

	dirty, err := env.cache.DirtyPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{post.ID}, dirty)
}

func TestToggleCacheDownFallsBack(t *testing.T) {
	env := newTestEnv(t)
	engine := env.newEngine()
	ctx := context.Background()
	post := env.createPost(t, 1)

	env.redis.Close()

	count, err := engine.Toggle(ctx, post.ID, 2, models.KindLike)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	has, err := env.votes.HasVote(ctx, post.ID, 2, models.KindLike)
	require.NoError(t, err)
	assert.True(t, has)

	// Second toggle removes the vote row again
	count, err = engine.Toggle(ctx, post.ID, 2, models.KindLike)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	has, err = env.votes.HasVote(ctx, post.ID, 2, models.KindLike)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestAssembleMissingPost(t *testing.T) {
	env := newTestEnv(t)
	assembler := NewAssembler(env.posts, env.votes)

	rec, err := assembler.Assemble(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestAssembleBuildsRecord(t *testing.T) {
	env := newTestEnv(t)
	assembler := NewAssembler(env.posts, env.votes)
	ctx := context.Background()
	post := env.createPost(t, 1)

	require.NoError(t, env.votes.Insert(ctx, post.ID, 3, models.KindLike))
	require.NoError(t, env.votes.Insert(ctx, post.ID, 2, models.KindLike))
	require.NoError(t, env.votes.Insert(ctx, post.ID, 4, models.KindDislike))

	rec, err := assembler.Assemble(ctx, post.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, post.ID, rec.ID)
	assert.Equal(t, "post", rec.Title)
	assert.Equal(t, int64(2), rec.Likes)
	assert.Equal(t, int64(1), rec.Dislikes)
	assert.Equal(t, []int64{2, 3}, rec.LikeUsers)
	assert.Equal(t, []int64{4}, rec.DislikeUsers)
}
