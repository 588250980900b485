package store

import (
	"context"
	"fmt"
	"time"

	"github.com/BusyMan009/my-thrift-backend/internal/model"
	"github.com/google/uuid"
)

// ChatSummary is the lightweight chat representation for the chat list.
type ChatSummary struct {
	ID           uuid.UUID          `json:"id"`
	OtherUser    model.UserSummary  `json:"otherUser"`
	LastMessage  *model.LastMessage `json:"lastMessage,omitempty"`
	LastActivity time.Time          `json:"lastActivity"`
	UnreadCount  int64              `json:"unreadCount"`
}

// ChatDetail is the full chat document including messages.
type ChatDetail struct {
	ID           uuid.UUID           `json:"id"`
	Participants []model.UserSummary `json:"participants"`
	Messages     []model.ChatMessage `json:"messages"`
	LastMessage  *model.LastMessage  `json:"lastMessage,omitempty"`
	LastActivity time.Time           `json:"lastActivity"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

// ParticipantIDs returns the ids of both chat participants.
func (c *ChatDetail) ParticipantIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(c.Participants))
	for i, p := range c.Participants {
		ids[i] = p.ID
	}
	return ids
}

// ProductQuery holds the filters for listing products.
type ProductQuery struct {
	Search   string
	Category string
	Location string
	MinPrice *float64
	MaxPrice *float64
	SortBy   string // newest|oldest|price_low|price_high|popular
	Page     *int
	Limit    *int
}

// PagedProducts is a paginated product listing.
type PagedProducts struct {
	Data       []model.Product `json:"data"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	TotalPages int             `json:"totalPages"`
	Paginated  bool            `json:"-"`
}

// UserUpdate defines the mutable user fields; nil means unchanged.
type UserUpdate struct {
	Name         *string
	ProfileImage *string
	Phone        *string
	Location     *string
	Bio          *string
}

// ProductUpdate defines the mutable product fields; nil means unchanged.
type ProductUpdate struct {
	Name        *string
	Description *string
	Images      []string
	Price       *float64
	Condition   *model.Condition
	Category    *string
	Location    *string
	PhoneNumber *string
}

// MarketStore defines the primary data access interface for the marketplace.
type MarketStore interface {
	// Users
	CreateUser(ctx context.Context, name, email, passwordHash, profileImage string) (*model.User, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateUser(ctx context.Context, userID uuid.UUID, update UserUpdate) (*model.User, error)
	DeleteUser(ctx context.Context, userID uuid.UUID) error
	AddFavorite(ctx context.Context, userID, productID uuid.UUID) error
	RemoveFavorite(ctx context.Context, userID, productID uuid.UUID) error
	ListFavorites(ctx context.Context, userID uuid.UUID) ([]model.Product, error)
	SetResetToken(ctx context.Context, email, token string, expires time.Time) (*model.User, error)
	FindUserByResetToken(ctx context.Context, token string) (*model.User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error

	// Products
	ListProducts(ctx context.Context, query ProductQuery) (*PagedProducts, error)
	GetProduct(ctx context.Context, productID uuid.UUID) (*model.Product, error)
	IncrementProductViews(ctx context.Context, productID uuid.UUID) (*model.Product, error)
	ListUserProducts(ctx context.Context, userID uuid.UUID) ([]model.Product, error)
	CreateProduct(ctx context.Context, product model.Product) (*model.Product, error)
	UpdateProduct(ctx context.Context, productID, requesterID uuid.UUID, update ProductUpdate) (*model.Product, error)
	DeleteProduct(ctx context.Context, productID, requesterID uuid.UUID) error

	// Comments
	ListProductComments(ctx context.Context, productID uuid.UUID) ([]model.Comment, error)
	CreateComment(ctx context.Context, userID, productID uuid.UUID, text string) (*model.Comment, error)
	UpdateComment(ctx context.Context, commentID, requesterID uuid.UUID, text string) (*model.Comment, error)
	DeleteComment(ctx context.Context, commentID, requesterID uuid.UUID) error

	// Chats
	FindOrCreateChat(ctx context.Context, userID, otherUserID uuid.UUID) (*ChatDetail, bool, error)
	ListChats(ctx context.Context, userID uuid.UUID) ([]ChatSummary, error)
	GetChatWithMessages(ctx context.Context, chatID, requesterID uuid.UUID) (*ChatDetail, error)
	AppendChatMessage(ctx context.Context, chatID, senderID uuid.UUID, content string) (*model.ChatMessage, *ChatDetail, error)
	DeleteChat(ctx context.Context, chatID, requesterID uuid.UUID) error
	UnreadChatTotal(ctx context.Context, userID uuid.UUID) (int64, error)

	// Close releases the underlying connections.
	Close(ctx context.Context) error
}

// Migrator creates collections and indexes for a store backend.
type Migrator interface {
	Name() string
	Migrate(ctx context.Context) error
}

// Loader creates a MarketStore from config carried in ctx.
type Loader func(ctx context.Context) (MarketStore, error)

// MigratorLoader creates a Migrator from config carried in ctx.
type MigratorLoader func(ctx context.Context) (Migrator, error)

// Plugin represents a store backend.
type Plugin struct {
	Name     string
	Loader   Loader
	Migrator MigratorLoader // optional
}

var plugins []Plugin

// Register adds a store plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the named store plugin.
func Select(name string) (*Plugin, error) {
	for i := range plugins {
		if plugins[i].Name == name {
			return &plugins[i], nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}

// MigrateAll runs the migrators of every registered plugin that has one.
func MigrateAll(ctx context.Context) error {
	for _, p := range plugins {
		if p.Migrator == nil {
			continue
		}
		m, err := p.Migrator(ctx)
		if err != nil {
			return fmt.Errorf("loading migrator for store %s: %w", p.Name, err)
		}
		if err := m.Migrate(ctx); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Name(), err)
		}
	}
	return nil
}
