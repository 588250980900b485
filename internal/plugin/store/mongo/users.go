package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BusyMan009/my-thrift-backend/internal/model"
	registrystore "github.com/BusyMan009/my-thrift-backend/internal/registry/store"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func (s *MongoStore) CreateUser(ctx context.Context, name, email, passwordHash, profileImage string) (*model.User, error) {
	now := time.Now()
	doc := userDoc{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		Password:     passwordHash,
		ProfileImage: profileImage,
		Favorites:    []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.users().InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, &registrystore.ConflictError{Message: "email already registered"}
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) GetUser(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	var doc userDoc
	err := s.users().FindOne(ctx, bson.M{"_id": uuidToStr(userID)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &registrystore.NotFoundError{Resource: "user", ID: userID.String()}
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var doc userDoc
	err := s.users().FindOne(ctx, bson.M{"email": email}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &registrystore.NotFoundError{Resource: "user", ID: email}
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) ListUsers(ctx context.Context) ([]model.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.users().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	users := make([]model.User, len(docs))
	for i := range docs {
		users[i] = *docs[i].toModel()
	}
	return users, nil
}

func (s *MongoStore) UpdateUser(ctx context.Context, userID uuid.UUID, update registrystore.UserUpdate) (*model.User, error) {
	set := bson.M{"updated_at": time.Now()}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.ProfileImage != nil {
		set["profile_image"] = *update.ProfileImage
	}
	if update.Phone != nil {
		set["phone"] = *update.Phone
	}
	if update.Location != nil {
		set["location"] = *update.Location
	}
	if update.Bio != nil {
		set["bio"] = *update.Bio
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc userDoc
	err := s.users().FindOneAndUpdate(ctx, bson.M{"_id": uuidToStr(userID)}, bson.M{"$set": set}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &registrystore.NotFoundError{Resource: "user", ID: userID.String()}
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	res, err := s.users().DeleteOne(ctx, bson.M{"_id": uuidToStr(userID)})
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return &registrystore.NotFoundError{Resource: "user", ID: userID.String()}
	}
	return nil
}

func (s *MongoStore) AddFavorite(ctx context.Context, userID, productID uuid.UUID) error {
	if err := s.products().FindOne(ctx, bson.M{"_id": uuidToStr(productID)}).Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &registrystore.NotFoundError{Resource: "product", ID: productID.String()}
		}
		return fmt.Errorf("failed to check product: %w", err)
	}
	res, err := s.users().UpdateOne(ctx,
		bson.M{"_id": uuidToStr(userID)},
		bson.M{
			"$addToSet": bson.M{"favorites": uuidToStr(productID)},
			"$set":      bson.M{"updated_at": time.Now()},
		})
	if err != nil {
		return fmt.Errorf("failed to add favorite: %w", err)
	}
	if res.MatchedCount == 0 {
		return &registrystore.NotFoundError{Resource: "user", ID: userID.String()}
	}
	return nil
}

func (s *MongoStore) RemoveFavorite(ctx context.Context, userID, productID uuid.UUID) error {
	res, err := s.users().UpdateOne(ctx,
		bson.M{"_id": uuidToStr(userID)},
		bson.M{
			"$pull": bson.M{"favorites": uuidToStr(productID)},
			"$set":  bson.M{"updated_at": time.Now()},
		})
	if err != nil {
		return fmt.Errorf("failed to remove favorite: %w", err)
	}
	if res.MatchedCount == 0 {
		return &registrystore.NotFoundError{Resource: "user", ID: userID.String()}
	}
	return nil
}

func (s *MongoStore) ListFavorites(ctx context.Context, userID uuid.UUID) ([]model.Product, error) {
	var user userDoc
	err := s.users().FindOne(ctx, bson.M{"_id": uuidToStr(userID)}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &registrystore.NotFoundError{Resource: "user", ID: userID.String()}
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(user.Favorites) == 0 {
		return []model.Product{}, nil
	}
	cur, err := s.products().Find(ctx, bson.M{"_id": bson.M{"$in": user.Favorites}})
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode favorites: %w", err)
	}
	out := make([]model.Product, len(docs))
	for i := range docs {
		out[i] = *docs[i].toModel()
	}
	return out, nil
}

func (s *MongoStore) SetResetToken(ctx context.Context, email, token string, expires time.Time) (*model.User, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc userDoc
	err := s.users().FindOneAndUpdate(ctx,
		bson.M{"email": email},
		bson.M{"$set": bson.M{
			"reset_password_token":   token,
			"reset_password_expires": expires,
			"updated_at":             time.Now(),
		}}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &registrystore.NotFoundError{Resource: "user", ID: email}
		}
		return nil, fmt.Errorf("failed to set reset token: %w", err)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) FindUserByResetToken(ctx context.Context, token string) (*model.User, error) {
	var doc userDoc
	err := s.users().FindOne(ctx, bson.M{
		"reset_password_token":   token,
		"reset_password_expires": bson.M{"$gt": time.Now()},
	}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &registrystore.NotFoundError{Resource: "reset token", ID: token}
		}
		return nil, fmt.Errorf("failed to find user by reset token: %w", err)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	res, err := s.users().UpdateOne(ctx,
		bson.M{"_id": uuidToStr(userID)},
		bson.M{
			"$set":   bson.M{"password": passwordHash, "updated_at": time.Now()},
			"$unset": bson.M{"reset_password_token": "", "reset_password_expires": ""},
		})
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if res.MatchedCount == 0 {
		return &registrystore.NotFoundError{Resource: "user", ID: userID.String()}
	}
	return nil
}
