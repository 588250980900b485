package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BusyMan009/my-thrift-backend/internal/model"
	registrystore "github.com/BusyMan009/my-thrift-backend/internal/registry/store"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// withAuthors attaches author summaries to the comments in one user lookup.
func (s *MongoStore) withAuthors(ctx context.Context, docs []commentDoc) ([]model.Comment, error) {
	ids := make([]string, 0, len(docs))
	seen := map[string]bool{}
	for i := range docs {
		if !seen[docs[i].UserID] {
			seen[docs[i].UserID] = true
			ids = append(ids, docs[i].UserID)
		}
	}
	authors, err := s.userSummaries(ctx, ids)
	if err != nil {
		return nil, err
	}
	comments := make([]model.Comment, len(docs))
	for i := range docs {
		comments[i] = *docs[i].toModel()
		if author, ok := authors[docs[i].UserID]; ok {
			comments[i].Author = &author
		}
	}
	return comments, nil
}

func (s *MongoStore) ListProductComments(ctx context.Context, productID uuid.UUID) ([]model.Comment, error) {
	if err := s.products().FindOne(ctx, bson.M{"_id": uuidToStr(productID)}).Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &registrystore.NotFoundError{Resource: "product", ID: productID.String()}
		}
		return nil, fmt.Errorf("failed to check product: %w", err)
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.comments().Find(ctx, bson.M{"product": uuidToStr(productID)}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	var docs []commentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode comments: %w", err)
	}
	return s.withAuthors(ctx, docs)
}

func (s *MongoStore) CreateComment(ctx context.Context, userID, productID uuid.UUID, text string) (*model.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &registrystore.ValidationError{Field: "text", Message: "must not be empty"}
	}
	if err := s.products().FindOne(ctx, bson.M{"_id": uuidToStr(productID)}).Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &registrystore.NotFoundError{Resource: "product", ID: productID.String()}
		}
		return nil, fmt.Errorf("failed to check product: %w", err)
	}

	now := time.Now()
	doc := commentDoc{
		ID:        uuid.New().String(),
		Text:      text,
		UserID:    uuidToStr(userID),
		ProductID: uuidToStr(productID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.comments().InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}
	if _, err := s.products().UpdateOne(ctx,
		bson.M{"_id": uuidToStr(productID)},
		bson.M{"$inc": bson.M{"comment_count": 1}}); err != nil {
		return nil, fmt.Errorf("failed to bump comment count: %w", err)
	}

	comments, err := s.withAuthors(ctx, []commentDoc{doc})
	if err != nil {
		return nil, err
	}
	return &comments[0], nil
}

func (s *MongoStore) UpdateComment(ctx context.Context, commentID, requesterID uuid.UUID, text string) (*model.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &registrystore.ValidationError{Field: "text", Message: "must not be empty"}
	}
	var current commentDoc
	err := s.comments().FindOne(ctx, bson.M{"_id": uuidToStr(commentID)}).Decode(&current)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &registrystore.NotFoundError{Resource: "comment", ID: commentID.String()}
		}
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}
	if current.UserID != uuidToStr(requesterID) {
		return nil, &registrystore.ForbiddenError{}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc commentDoc
	err = s.comments().FindOneAndUpdate(ctx,
		bson.M{"_id": uuidToStr(commentID)},
		bson.M{"$set": bson.M{"text": text, "updated_at": time.Now()}}, opts).Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to update comment: %w", err)
	}
	comments, err := s.withAuthors(ctx, []commentDoc{doc})
	if err != nil {
		return nil, err
	}
	return &comments[0], nil
}

func (s *MongoStore) DeleteComment(ctx context.Context, commentID, requesterID uuid.UUID) error {
	var current commentDoc
	err := s.comments().FindOne(ctx, bson.M{"_id": uuidToStr(commentID)}).Decode(&current)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &registrystore.NotFoundError{Resource: "comment", ID: commentID.String()}
		}
		return fmt.Errorf("failed to get comment: %w", err)
	}
	if current.UserID != uuidToStr(requesterID) {
		return &registrystore.ForbiddenError{}
	}

	if _, err := s.comments().DeleteOne(ctx, bson.M{"_id": uuidToStr(commentID)}); err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	if _, err := s.products().UpdateOne(ctx,
		bson.M{"_id": current.ProductID},
		bson.M{"$inc": bson.M{"comment_count": -1}}); err != nil {
		return fmt.Errorf("failed to bump comment count: %w", err)
	}
	return nil
}
