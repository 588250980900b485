package metrics

import (
	"context"
	"time"

	"github.com/BusyMan009/my-thrift-backend/internal/model"
	"github.com/BusyMan009/my-thrift-backend/internal/registry/store"
	"github.com/BusyMan009/my-thrift-backend/internal/security"
	"github.com/google/uuid"
)

// Wrap returns a MarketStore that records StoreLatency for every operation.
func Wrap(inner store.MarketStore) store.MarketStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.MarketStore
}

func observe(op string, start time.Time) {
	security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metricsStore) CreateUser(ctx context.Context, name, email, passwordHash, profileImage string) (*model.User, error) {
	defer observe("create_user", time.Now())
	return m.inner.CreateUser(ctx, name, email, passwordHash, profileImage)
}

func (m *metricsStore) GetUser(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	defer observe("get_user", time.Now())
	return m.inner.GetUser(ctx, userID)
}

func (m *metricsStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	defer observe("get_user_by_email", time.Now())
	return m.inner.GetUserByEmail(ctx, email)
}

func (m *metricsStore) ListUsers(ctx context.Context) ([]model.User, error) {
	defer observe("list_users", time.Now())
	return m.inner.ListUsers(ctx)
}

func (m *metricsStore) UpdateUser(ctx context.Context, userID uuid.UUID, update store.UserUpdate) (*model.User, error) {
	defer observe("update_user", time.Now())
	return m.inner.UpdateUser(ctx, userID, update)
}

func (m *metricsStore) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	defer observe("delete_user", time.Now())
	return m.inner.DeleteUser(ctx, userID)
}

func (m *metricsStore) AddFavorite(ctx context.Context, userID, productID uuid.UUID) error {
	defer observe("add_favorite", time.Now())
	return m.inner.AddFavorite(ctx, userID, productID)
}

func (m *metricsStore) RemoveFavorite(ctx context.Context, userID, productID uuid.UUID) error {
	defer observe("remove_favorite", time.Now())
	return m.inner.RemoveFavorite(ctx, userID, productID)
}

func (m *metricsStore) ListFavorites(ctx context.Context, userID uuid.UUID) ([]model.Product, error) {
	defer observe("list_favorites", time.Now())
	return m.inner.ListFavorites(ctx, userID)
}

func (m *metricsStore) SetResetToken(ctx context.Context, email, token string, expires time.Time) (*model.User, error) {
	defer observe("set_reset_token", time.Now())
	return m.inner.SetResetToken(ctx, email, token, expires)
}

func (m *metricsStore) FindUserByResetToken(ctx context.Context, token string) (*model.User, error) {
	defer observe("find_user_by_reset_token", time.Now())
	return m.inner.FindUserByResetToken(ctx, token)
}

func (m *metricsStore) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	defer observe("update_password", time.Now())
	return m.inner.UpdatePassword(ctx, userID, passwordHash)
}

func (m *metricsStore) ListProducts(ctx context.Context, query store.ProductQuery) (*store.PagedProducts, error) {
	defer observe("list_products", time.Now())
	return m.inner.ListProducts(ctx, query)
}

func (m *metricsStore) GetProduct(ctx context.Context, productID uuid.UUID) (*model.Product, error) {
	defer observe("get_product", time.Now())
	return m.inner.GetProduct(ctx, productID)
}

func (m *metricsStore) IncrementProductViews(ctx context.Context, productID uuid.UUID) (*model.Product, error) {
	defer observe("increment_product_views", time.Now())
	return m.inner.IncrementProductViews(ctx, productID)
}

func (m *metricsStore) ListUserProducts(ctx context.Context, userID uuid.UUID) ([]model.Product, error) {
	defer observe("list_user_products", time.Now())
	return m.inner.ListUserProducts(ctx, userID)
}

func (m *metricsStore) CreateProduct(ctx context.Context, product model.Product) (*model.Product, error) {
	defer observe("create_product", time.Now())
	return m.inner.CreateProduct(ctx, product)
}

func (m *metricsStore) UpdateProduct(ctx context.Context, productID, requesterID uuid.UUID, update store.ProductUpdate) (*model.Product, error) {
	defer observe("update_product", time.Now())
	return m.inner.UpdateProduct(ctx, productID, requesterID, update)
}

func (m *metricsStore) DeleteProduct(ctx context.Context, productID, requesterID uuid.UUID) error {
	defer observe("delete_product", time.Now())
	return m.inner.DeleteProduct(ctx, productID, requesterID)
}

func (m *metricsStore) ListProductComments(ctx context.Context, productID uuid.UUID) ([]model.Comment, error) {
	defer observe("list_product_comments", time.Now())
	return m.inner.ListProductComments(ctx, productID)
}

func (m *metricsStore) CreateComment(ctx context.Context, userID, productID uuid.UUID, text string) (*model.Comment, error) {
	defer observe("create_comment", time.Now())
	return m.inner.CreateComment(ctx, userID, productID, text)
}

func (m *metricsStore) UpdateComment(ctx context.Context, commentID, requesterID uuid.UUID, text string) (*model.Comment, error) {
	defer observe("update_comment", time.Now())
	return m.inner.UpdateComment(ctx, commentID, requesterID, text)
}

func (m *metricsStore) DeleteComment(ctx context.Context, commentID, requesterID uuid.UUID) error {
	defer observe("delete_comment", time.Now())
	return m.inner.DeleteComment(ctx, commentID, requesterID)
}

func (m *metricsStore) FindOrCreateChat(ctx context.Context, userID, otherUserID uuid.UUID) (*store.ChatDetail, bool, error) {
	defer observe("find_or_create_chat", time.Now())
	return m.inner.FindOrCreateChat(ctx, userID, otherUserID)
}

func (m *metricsStore) ListChats(ctx context.Context, userID uuid.UUID) ([]store.ChatSummary, error) {
	defer observe("list_chats", time.Now())
	return m.inner.ListChats(ctx, userID)
}

func (m *metricsStore) GetChatWithMessages(ctx context.Context, chatID, requesterID uuid.UUID) (*store.ChatDetail, error) {
	defer observe("get_chat_with_messages", time.Now())
	return m.inner.GetChatWithMessages(ctx, chatID, requesterID)
}

func (m *metricsStore) AppendChatMessage(ctx context.Context, chatID, senderID uuid.UUID, content string) (*model.ChatMessage, *store.ChatDetail, error) {
	defer observe("append_chat_message", time.Now())
	return m.inner.AppendChatMessage(ctx, chatID, senderID, content)
}

func (m *metricsStore) DeleteChat(ctx context.Context, chatID, requesterID uuid.UUID) error {
	defer observe("delete_chat", time.Now())
	return m.inner.DeleteChat(ctx, chatID, requesterID)
}

func (m *metricsStore) UnreadChatTotal(ctx context.Context, userID uuid.UUID) (int64, error) {
	defer observe("unread_chat_total", time.Now())
	return m.inner.UnreadChatTotal(ctx, userID)
}

func (m *metricsStore) Close(ctx context.Context) error {
	return m.inner.Close(ctx)
}
