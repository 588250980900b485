package mongo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BusyMan009/my-thrift-backend/internal/config"
	"github.com/BusyMan009/my-thrift-backend/internal/model"
	registrystore "github.com/BusyMan009/my-thrift-backend/internal/registry/store"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "mongo",
		Loader: func(ctx context.Context) (registrystore.MarketStore, error) {
			cfg := config.FromContext(ctx)
			opts := options.Client().ApplyURI(cfg.DBURL)
			if cfg.DBMaxOpenConns > 0 {
				opts.SetMaxPoolSize(uint64(cfg.DBMaxOpenConns))
			}
			if cfg.DBMaxIdleConns > 0 {
				opts.SetMinPoolSize(uint64(cfg.DBMaxIdleConns))
			}
			client, err := mongo.Connect(opts)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
			}
			if err := client.Ping(ctx, nil); err != nil {
				return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
			}
			return &MongoStore{
				client: client,
				db:     client.Database(cfg.DBName),
			}, nil
		},
		Migrator: func(ctx context.Context) (registrystore.Migrator, error) {
			return &mongoMigrator{}, nil
		},
	})
}

type mongoMigrator struct{}

func (m *mongoMigrator) Name() string { return "mongo-schema" }

func (m *mongoMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return fmt.Errorf("mongo migration: no config in context")
	}
	if !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "mongo" {
		return nil // skip if not using mongo
	}

	log.Info("Running migration", "name", m.Name())
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DBURL))
	if err != nil {
		return fmt.Errorf("mongo migration: failed to connect: %w", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database(cfg.DBName)

	collections := map[string][]mongo.IndexModel{
		"users": {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "reset_password_token", Value: 1}}, Options: options.Index().SetSparse(true)},
		},
		"products": {
			{Keys: bson.D{{Key: "user", Value: 1}}},
			{Keys: bson.D{{Key: "category", Value: 1}}},
			{Keys: bson.D{{Key: "location", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		"comments": {
			{Keys: bson.D{{Key: "product", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "user", Value: 1}}},
		},
		"chats": {
			// One chat per user pair; concurrent starts race on this index.
			{
				Keys:    bson.D{{Key: "participants_key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "participants", Value: 1}}},
			{Keys: bson.D{{Key: "last_activity", Value: -1}}},
		},
	}

	for name, indexes := range collections {
		db.CreateCollection(ctx, name)
		if len(indexes) > 0 {
			if _, err := db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
				return fmt.Errorf("mongo migration: failed to create indexes for %s: %w", name, err)
			}
		}
	}

	log.Info("MongoDB schema migration complete")
	return nil
}

// MongoStore implements MarketStore using MongoDB.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// --- MongoDB document types ---

type userDoc struct {
	ID                   string     `bson:"_id"`
	Name                 string     `bson:"name"`
	Email                string     `bson:"email"`
	Password             string     `bson:"password"`
	ProfileImage         string     `bson:"profile_image"`
	Phone                string     `bson:"phone,omitempty"`
	Location             string     `bson:"location,omitempty"`
	Bio                  string     `bson:"bio,omitempty"`
	Favorites            []string   `bson:"favorites"`
	ResetPasswordToken   *string    `bson:"reset_password_token,omitempty"`
	ResetPasswordExpires *time.Time `bson:"reset_password_expires,omitempty"`
	CreatedAt            time.Time  `bson:"created_at"`
	UpdatedAt            time.Time  `bson:"updated_at"`
}

func (d *userDoc) toModel() *model.User {
	favorites := make([]uuid.UUID, len(d.Favorites))
	for i, f := range d.Favorites {
		favorites[i] = strToUUID(f)
	}
	return &model.User{
		ID:           strToUUID(d.ID),
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.Password,
		ProfileImage: d.ProfileImage,
		Phone:        d.Phone,
		Location:     d.Location,
		Bio:          d.Bio,
		Favorites:    favorites,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func (d *userDoc) summary() model.UserSummary {
	return model.UserSummary{ID: strToUUID(d.ID), Name: d.Name, ProfileImage: d.ProfileImage}
}

type productDoc struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Description  string    `bson:"description"`
	Images       []string  `bson:"images"`
	Price        float64   `bson:"price"`
	Condition    string    `bson:"condition"`
	Category     string    `bson:"category"`
	Location     string    `bson:"location"`
	PhoneNumber  string    `bson:"phone_number,omitempty"`
	UserID       string    `bson:"user"`
	Views        int64     `bson:"views"`
	CommentCount int64     `bson:"comment_count"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func (d *productDoc) toModel() *model.Product {
	images := d.Images
	if images == nil {
		images = []string{}
	}
	return &model.Product{
		ID:           strToUUID(d.ID),
		Name:         d.Name,
		Description:  d.Description,
		Images:       images,
		Price:        d.Price,
		Condition:    model.Condition(d.Condition),
		Category:     d.Category,
		Location:     d.Location,
		PhoneNumber:  d.PhoneNumber,
		UserID:       strToUUID(d.UserID),
		Views:        d.Views,
		CommentCount: d.CommentCount,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type commentDoc struct {
	ID        string    `bson:"_id"`
	Text      string    `bson:"text"`
	UserID    string    `bson:"user"`
	ProductID string    `bson:"product"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (d *commentDoc) toModel() *model.Comment {
	return &model.Comment{
		ID:        strToUUID(d.ID),
		Text:      d.Text,
		UserID:    strToUUID(d.UserID),
		ProductID: strToUUID(d.ProductID),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type chatMessageDoc struct {
	ID        string    `bson:"_id"`
	Sender    string    `bson:"sender"`
	Content   string    `bson:"content"`
	Timestamp time.Time `bson:"timestamp"`
	IsRead    bool      `bson:"is_read"`
}

func (d *chatMessageDoc) toModel() model.ChatMessage {
	return model.ChatMessage{
		ID:        strToUUID(d.ID),
		Sender:    strToUUID(d.Sender),
		Content:   d.Content,
		Timestamp: d.Timestamp,
		IsRead:    d.IsRead,
	}
}

type lastMessageDoc struct {
	Content   string    `bson:"content"`
	Sender    string    `bson:"sender"`
	Timestamp time.Time `bson:"timestamp"`
}

func (d *lastMessageDoc) toModel() *model.LastMessage {
	if d == nil {
		return nil
	}
	return &model.LastMessage{
		Content:   d.Content,
		Sender:    strToUUID(d.Sender),
		Timestamp: d.Timestamp,
	}
}

type chatDoc struct {
	ID              string           `bson:"_id"`
	Participants    []string         `bson:"participants"`
	ParticipantsKey string           `bson:"participants_key"`
	Messages        []chatMessageDoc `bson:"messages"`
	LastMessage     *lastMessageDoc  `bson:"last_message,omitempty"`
	LastActivity    time.Time        `bson:"last_activity"`
	CreatedAt       time.Time        `bson:"created_at"`
	UpdatedAt       time.Time        `bson:"updated_at"`
}

func (d *chatDoc) hasParticipant(userID string) bool {
	for _, p := range d.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

func (d *chatDoc) otherParticipant(userID string) string {
	for _, p := range d.Participants {
		if p != userID {
			return p
		}
	}
	return userID
}

// --- Collection accessors ---

func (s *MongoStore) users() *mongo.Collection    { return s.db.Collection("users") }
func (s *MongoStore) products() *mongo.Collection { return s.db.Collection("products") }
func (s *MongoStore) comments() *mongo.Collection { return s.db.Collection("comments") }
func (s *MongoStore) chats() *mongo.Collection    { return s.db.Collection("chats") }

// --- UUID helpers ---

func uuidToStr(id uuid.UUID) string { return id.String() }
func strToUUID(s string) uuid.UUID  { u, _ := uuid.Parse(s); return u }

// participantsKey yields the same key regardless of argument order.
func participantsKey(a, b uuid.UUID) string {
	ids := []string{a.String(), b.String()}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}

// userSummaries fetches the public slice of the given users in one query.
func (s *MongoStore) userSummaries(ctx context.Context, ids []string) (map[string]model.UserSummary, error) {
	out := make(map[string]model.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.users().Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	for i := range docs {
		out[docs[i].ID] = docs[i].summary()
	}
	return out, nil
}
