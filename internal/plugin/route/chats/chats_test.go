package chats_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BusyMan009/my-thrift-backend/internal/config"
	"github.com/BusyMan009/my-thrift-backend/internal/plugin/route/chats"
	"github.com/BusyMan009/my-thrift-backend/internal/plugin/store/mongo"
	"github.com/BusyMan009/my-thrift-backend/internal/realtime"
	registrystore "github.com/BusyMan009/my-thrift-backend/internal/registry/store"
	"github.com/BusyMan009/my-thrift-backend/internal/security"
	"github.com/BusyMan009/my-thrift-backend/internal/testutil/testmongo"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func setupChatsRouter(t *testing.T) (*gin.Engine, registrystore.MarketStore) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DBURL = testmongo.StartMongo(t)
	cfg.DBName = testmongo.UniqueDBName("chats_routes")
	ctx := config.WithContext(context.Background(), &cfg)

	_ = mongo.ForceImport
	require.NoError(t, registrystore.MigrateAll(ctx))

	plugin, err := registrystore.Select("mongo")
	require.NoError(t, err)
	store, err := plugin.Loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	gin.SetMode(gin.TestMode)
	router := gin.New()
	chats.MountRoutes(router, store, realtime.NewGateway(&cfg), stubAuth)
	return router, store
}

// stubAuth trusts the bearer token as a raw user id.
func stubAuth(c *gin.Context) {
	userID, err := uuid.Parse(c.GetHeader("Authorization"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	c.Set(security.ContextKeyUserID, userID.String())
	c.Set(security.ContextKeyIdentity, &security.Identity{UserID: userID})
	c.Next()
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, userID uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", userID.String())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func seedUser(t *testing.T, store registrystore.MarketStore, name string) uuid.UUID {
	t.Helper()
	u, err := store.CreateUser(context.Background(), name, name+"@example.com", "x", "")
	require.NoError(t, err)
	return u.ID
}

func TestStartChat(t *testing.T) {
	router, store := setupChatsRouter(t)
	alice := seedUser(t, store, "route-alice")
	bob := seedUser(t, store, "route-bob")

	w := doJSON(t, router, http.MethodPost, "/api/chats/start", alice, gin.H{"otherUserId": bob.String()})
	require.Equal(t, http.StatusCreated, w.Code)
	chatID := decodeBody(t, w)["id"].(string)

	// Starting again from either side lands on the same chat.
	w = doJSON(t, router, http.MethodPost, "/api/chats/start", bob, gin.H{"otherUserId": alice.String()})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, chatID, decodeBody(t, w)["id"])
}

func TestStartChat_BadRequests(t *testing.T) {
	router, store := setupChatsRouter(t)
	alice := seedUser(t, store, "route-carol")

	w := doJSON(t, router, http.MethodPost, "/api/chats/start", alice, gin.H{"otherUserId": "not-a-uuid"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/chats/start", alice, gin.H{"otherUserId": alice.String()})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/chats/start", alice, gin.H{"otherUserId": uuid.New().String()})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendAndReadMessages(t *testing.T) {
	router, store := setupChatsRouter(t)
	alice := seedUser(t, store, "route-dave")
	bob := seedUser(t, store, "route-erin")

	w := doJSON(t, router, http.MethodPost, "/api/chats/start", alice, gin.H{"otherUserId": bob.String()})
	require.Equal(t, http.StatusCreated, w.Code)
	chatID := decodeBody(t, w)["id"].(string)

	w = doJSON(t, router, http.MethodPost, "/api/chats/"+chatID+"/message", alice, gin.H{"content": "hi bob"})
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "hi bob", decodeBody(t, w)["content"])

	w = doJSON(t, router, http.MethodGet, "/api/chats/unread/count", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), decodeBody(t, w)["unreadCount"])

	// Opening the chat marks the message read for bob.
	w = doJSON(t, router, http.MethodGet, "/api/chats/"+chatID, bob, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/chats/unread/count", bob, nil)
	require.Equal(t, float64(0), decodeBody(t, w)["unreadCount"])
}

func TestSendMessage_Validation(t *testing.T) {
	router, store := setupChatsRouter(t)
	alice := seedUser(t, store, "route-frank")
	bob := seedUser(t, store, "route-grace")

	w := doJSON(t, router, http.MethodPost, "/api/chats/start", alice, gin.H{"otherUserId": bob.String()})
	chatID := decodeBody(t, w)["id"].(string)

	w = doJSON(t, router, http.MethodPost, "/api/chats/"+chatID+"/message", alice, gin.H{"content": "   "})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/chats/not-a-uuid/message", alice, gin.H{"content": "hi"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatAccessControl(t *testing.T) {
	router, store := setupChatsRouter(t)
	alice := seedUser(t, store, "route-heidi")
	bob := seedUser(t, store, "route-ivan")
	mallory := seedUser(t, store, "route-mallory")

	w := doJSON(t, router, http.MethodPost, "/api/chats/start", alice, gin.H{"otherUserId": bob.String()})
	chatID := decodeBody(t, w)["id"].(string)

	w = doJSON(t, router, http.MethodGet, "/api/chats/"+chatID, mallory, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/chats/"+chatID+"/message", mallory, gin.H{"content": "let me in"})
	require.Equal(t, http.StatusForbidden, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListChats_ReflectsLatestMessage(t *testing.T) {
	router, store := setupChatsRouter(t)
	alice := seedUser(t, store, "route-judy")
	bob := seedUser(t, store, "route-ken")

	w := doJSON(t, router, http.MethodPost, "/api/chats/start", alice, gin.H{"otherUserId": bob.String()})
	chatID := decodeBody(t, w)["id"].(string)
	doJSON(t, router, http.MethodPost, "/api/chats/"+chatID+"/message", alice, gin.H{"content": "first"})
	doJSON(t, router, http.MethodPost, "/api/chats/"+chatID+"/message", alice, gin.H{"content": "second"})

	w = doJSON(t, router, http.MethodGet, "/api/chats", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	require.Equal(t, float64(2), list[0]["unreadCount"])
	last := list[0]["lastMessage"].(map[string]any)
	require.Equal(t, "second", last["content"])
}

func TestDeleteChat(t *testing.T) {
	router, store := setupChatsRouter(t)
	alice := seedUser(t, store, "route-leo")
	bob := seedUser(t, store, "route-mia")

	w := doJSON(t, router, http.MethodPost, "/api/chats/start", alice, gin.H{"otherUserId": bob.String()})
	chatID := decodeBody(t, w)["id"].(string)

	w = doJSON(t, router, http.MethodDelete, "/api/chats/"+chatID, alice, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/chats/"+chatID, alice, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
