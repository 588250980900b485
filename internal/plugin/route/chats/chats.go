package chats

import (
	"errors"
	"net/http"

	"github.com/BusyMan009/my-thrift-backend/internal/realtime"
	registrystore "github.com/BusyMan009/my-thrift-backend/internal/registry/store"
	"github.com/BusyMan009/my-thrift-backend/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MountRoutes mounts chat routes on the given router. Called after store
// initialization so the store is available.
func MountRoutes(r *gin.Engine, store registrystore.MarketStore, gateway *realtime.Gateway, auth gin.HandlerFunc) {
	g := r.Group("/api/chats", auth)

	g.GET("", func(c *gin.Context) {
		listChats(c, store)
	})
	g.POST("/start", func(c *gin.Context) {
		startChat(c, store)
	})
	g.GET("/unread/count", func(c *gin.Context) {
		unreadCount(c, store)
	})
	g.GET("/:chatId", func(c *gin.Context) {
		getChat(c, store)
	})
	g.POST("/:chatId/message", func(c *gin.Context) {
		sendMessage(c, store, gateway)
	})
	g.DELETE("/:chatId", func(c *gin.Context) {
		deleteChat(c, store)
	})
}

func listChats(c *gin.Context, store registrystore.MarketStore) {
	userID := security.GetUserID(c)
	chats, err := store.ListChats(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, chats)
}

func startChat(c *gin.Context, store registrystore.MarketStore) {
	userID := security.GetUserID(c)
	var req struct {
		OtherUserID string `json:"otherUserId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	otherUserID, err := uuid.Parse(req.OtherUserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid otherUserId"})
		return
	}

	chat, created, err := store.FindOrCreateChat(c.Request.Context(), userID, otherUserID)
	if err != nil {
		handleError(c, err)
		return
	}
	if created {
		c.JSON(http.StatusCreated, chat)
	} else {
		c.JSON(http.StatusOK, chat)
	}
}

func getChat(c *gin.Context, store registrystore.MarketStore) {
	userID := security.GetUserID(c)
	chatID, err := uuid.Parse(c.Param("chatId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	chat, err := store.GetChatWithMessages(c.Request.Context(), chatID, userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

func sendMessage(c *gin.Context, store registrystore.MarketStore, gateway *realtime.Gateway) {
	userID := security.GetUserID(c)
	chatID, err := uuid.Parse(c.Param("chatId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, chat, err := store.AppendChatMessage(c.Request.Context(), chatID, userID, req.Content)
	if err != nil {
		handleError(c, err)
		return
	}

	// Events go out only after the write stuck; their delivery is
	// fire-and-forget and never affects the response.
	gateway.BroadcastNewMessage(realtime.NewMessagePayload{
		ChatID:       chat.ID,
		Message:      *msg,
		LastMessage:  chat.LastMessage,
		LastActivity: chat.LastActivity,
	})
	for _, participantID := range chat.ParticipantIDs() {
		gateway.BroadcastListUpdate(realtime.ConversationListUpdatePayload{
			UserID:       participantID,
			ChatID:       chat.ID,
			LastMessage:  chat.LastMessage,
			LastActivity: chat.LastActivity,
		})
	}

	c.JSON(http.StatusCreated, msg)
}

func deleteChat(c *gin.Context, store registrystore.MarketStore) {
	userID := security.GetUserID(c)
	chatID, err := uuid.Parse(c.Param("chatId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	if err := store.DeleteChat(c.Request.Context(), chatID, userID); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "chat deleted"})
}

func unreadCount(c *gin.Context, store registrystore.MarketStore) {
	userID := security.GetUserID(c)
	total, err := store.UnreadChatTotal(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unreadCount": total})
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var forbidden *registrystore.ForbiddenError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
