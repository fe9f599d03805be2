package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pulsefeed/pulse/internal/auth"
	"github.com/pulsefeed/pulse/internal/cache"
	"github.com/pulsefeed/pulse/internal/db"
	"github.com/pulsefeed/pulse/internal/engage"
	"github.com/pulsefeed/pulse/internal/models"
	"github.com/pulsefeed/pulse/pkg/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestAPI(t *testing.T) *gin.Engine {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := cache.NewWithClient(client, time.Second)

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
	posts := db.NewPostRepository(base)
	votes := db.NewVoteRepository(base)
	users := db.NewUserRepository(base)

	assembler := engage.NewAssembler(posts, votes)
	service := engage.NewService(store, assembler, posts, time.Hour)
	engine := engage.NewEngine(store, assembler, votes, time.Hour)
	tokens := auth.NewManager(&config.AuthConfig{Secret: "test-secret", AccessTTL: time.Minute})

	router := gin.New()
	NewRouter(service, engine, users, tokens).SetupRoutes(router)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// signUp registers a user and returns an access token for them
func signUp(t *testing.T, router *gin.Engine, username string) string {
	t.Helper()

	w := doJSON(t, router, http.MethodPost, "/api/users/", "", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodPost, "/api/users/token", "", gin.H{
		"username": username,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode(t, w)["access_token"].(string)
}

func createTestPost(t *testing.T, router *gin.Engine, token string) int64 {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/posts/", token, gin.H{
		"title":       "a post",
		"description": "its body",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return int64(decode(t, w)["id"].(float64))
}

func TestHealth(t *testing.T) {
	router := newTestAPI(t)

	w := doJSON(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", decode(t, w)["status"])
}

func TestRegisterAndLogin(t *testing.T) {
	router := newTestAPI(t)

	w := doJSON(t, router, http.MethodPost, "/api/users/", "", gin.H{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, "alice", body["username"])
	assert.NotContains(t, body, "hashed_password")

	// Duplicate username
	w = doJSON(t, router, http.MethodPost, "/api/users/", "", gin.H{
		"username": "alice",
		"email":    "other@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Wrong password
	w = doJSON(t, router, http.MethodPost, "/api/users/token", "", gin.H{
		"username": "alice",
		"password": "wrongwrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/users/token", "", gin.H{
		"username": "alice",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bearer", decode(t, w)["token_type"])
}

func TestCreatePostRequiresAuth(t *testing.T) {
	router := newTestAPI(t)

	w := doJSON(t, router, http.MethodPost, "/api/posts/", "", gin.H{
		"title":       "a post",
		"description": "its body",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/posts/", "garbage-token", gin.H{
		"title":       "a post",
		"description": "its body",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetPost(t *testing.T) {
	router := newTestAPI(t)
	token := signUp(t, router, "alice")
	postID := createTestPost(t, router, token)

	w := doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/posts/%d", postID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "a post", body["title"])
	assert.Equal(t, float64(0), body["likes"])
	assert.Equal(t, float64(0), body["dislikes"])

	w = doJSON(t, router, http.MethodGet, "/api/posts/999", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/posts/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListPosts(t *testing.T) {
	router := newTestAPI(t)
	token := signUp(t, router, "alice")
	createTestPost(t, router, token)
	createTestPost(t, router, token)

	w := doJSON(t, router, http.MethodGet, "/api/posts/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var views []PostView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	assert.Len(t, views, 2)
}

func TestToggleReactions(t *testing.T) {
	router := newTestAPI(t)
	author := signUp(t, router, "alice")
	reader := signUp(t, router, "bob")
	postID := createTestPost(t, router, author)

	path := fmt.Sprintf("/api/posts/like/%d", postID)

	w := doJSON(t, router, http.MethodPost, path, reader, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, float64(1), decode(t, w)["likes"])

	// Toggling again removes the like
	w = doJSON(t, router, http.MethodPost, path, reader, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["likes"])

	// Dislikes are tracked separately
	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/posts/dislike/%d", postID), reader, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["dislikes"])

	w = doJSON(t, router, http.MethodPost, "/api/posts/like/999", reader, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthorCannotReactToOwnPost(t *testing.T) {
	router := newTestAPI(t)
	author := signUp(t, router, "alice")
	postID := createTestPost(t, router, author)

	w := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/posts/like/%d", postID), author, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/posts/dislike/%d", postID), author, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdatePostAuthorOnly(t *testing.T) {
	router := newTestAPI(t)
	author := signUp(t, router, "alice")
	other := signUp(t, router, "bob")
	postID := createTestPost(t, router, author)

	path := fmt.Sprintf("/api/posts/%d", postID)

	w := doJSON(t, router, http.MethodPatch, path, other, gin.H{"title": "hijacked"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPatch, path, author, gin.H{"title": "renamed"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "renamed", decode(t, w)["title"])
}

func TestDeletePostAuthorOnly(t *testing.T) {
	router := newTestAPI(t)
	author := signUp(t, router, "alice")
	other := signUp(t, router, "bob")
	postID := createTestPost(t, router, author)

	path := fmt.Sprintf("/api/posts/%d", postID)

	w := doJSON(t, router, http.MethodDelete, path, other, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodDelete, path, author, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Post deleted", decode(t, w)["Message"])

	w = doJSON(t, router, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
