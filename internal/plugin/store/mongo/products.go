package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/BusyMan009/my-thrift-backend/internal/model"
	registrystore "github.com/BusyMan009/my-thrift-backend/internal/registry/store"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func productSort(sortBy string) bson.D {
	switch sortBy {
	case "oldest":
		return bson.D{{Key: "created_at", Value: 1}}
	case "price_low":
		return bson.D{{Key: "price", Value: 1}}
	case "price_high":
		return bson.D{{Key: "price", Value: -1}}
	case "popular":
		return bson.D{{Key: "views", Value: -1}}
	default: // newest
		return bson.D{{Key: "created_at", Value: -1}}
	}
}

func (s *MongoStore) ListProducts(ctx context.Context, query registrystore.ProductQuery) (*registrystore.PagedProducts, error) {
	filter := bson.M{}
	if query.Search != "" {
		pattern := regexp.QuoteMeta(query.Search)
		filter["$or"] = bson.A{
			bson.M{"name": bson.M{"$regex": pattern, "$options": "i"}},
			bson.M{"description": bson.M{"$regex": pattern, "$options": "i"}},
		}
	}
	if query.Category != "" {
		filter["category"] = query.Category
	}
	if query.Location != "" {
		filter["location"] = query.Location
	}
	if query.MinPrice != nil || query.MaxPrice != nil {
		price := bson.M{}
		if query.MinPrice != nil {
			price["$gte"] = *query.MinPrice
		}
		if query.MaxPrice != nil {
			price["$lte"] = *query.MaxPrice
		}
		filter["price"] = price
	}

	opts := options.Find().SetSort(productSort(query.SortBy))

	result := &registrystore.PagedProducts{Page: 1}
	if query.Page != nil || query.Limit != nil {
		page, limit := 1, 20
		if query.Page != nil && *query.Page > 0 {
			page = *query.Page
		}
		if query.Limit != nil && *query.Limit > 0 {
			limit = *query.Limit
		}
		total, err := s.products().CountDocuments(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to count products: %w", err)
		}
		result.Paginated = true
		result.Total = total
		result.Page = page
		result.TotalPages = int((total + int64(limit) - 1) / int64(limit))
		opts.SetSkip(int64((page - 1) * limit)).SetLimit(int64(limit))
	}

	cur, err := s.products().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}

	products, err := s.withSellers(ctx, docs)
	if err != nil {
		return nil, err
	}
	result.Data = products
	if !result.Paginated {
		result.Total = int64(len(products))
	}
	return result, nil
}

// withSellers attaches seller summaries to the products in one user lookup.
func (s *MongoStore) withSellers(ctx context.Context, docs []productDoc) ([]model.Product, error) {
	ids := make([]string, 0, len(docs))
	seen := map[string]bool{}
	for i := range docs {
		if !seen[docs[i].UserID] {
			seen[docs[i].UserID] = true
			ids = append(ids, docs[i].UserID)
		}
	}
	sellers, err := s.userSummaries(ctx, ids)
	if err != nil {
		return nil, err
	}
	products := make([]model.Product, len(docs))
	for i := range docs {
		products[i] = *docs[i].toModel()
		if seller, ok := sellers[docs[i].UserID]; ok {
			products[i].Seller = &seller
		}
	}
	return products, nil
}

func (s *MongoStore) GetProduct(ctx context.Context, productID uuid.UUID) (*model.Product, error) {
	var doc productDoc
	err := s.products().FindOne(ctx, bson.M{"_id": uuidToStr(productID)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &registrystore.NotFoundError{Resource: "product", ID: productID.String()}
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	products, err := s.withSellers(ctx, []productDoc{doc})
	if err != nil {
		return nil, err
	}
	return &products[0], nil
}

func (s *MongoStore) IncrementProductViews(ctx context.Context, productID uuid.UUID) (*model.Product, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc productDoc
	err := s.products().FindOneAndUpdate(ctx,
		bson.M{"_id": uuidToStr(productID)},
		bson.M{"$inc": bson.M{"views": 1}}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &registrystore.NotFoundError{Resource: "product", ID: productID.String()}
		}
		return nil, fmt.Errorf("failed to increment product views: %w", err)
	}
	products, err := s.withSellers(ctx, []productDoc{doc})
	if err != nil {
		return nil, err
	}
	return &products[0], nil
}

func (s *MongoStore) ListUserProducts(ctx context.Context, userID uuid.UUID) ([]model.Product, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.products().Find(ctx, bson.M{"user": uuidToStr(userID)}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list user products: %w", err)
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	return s.withSellers(ctx, docs)
}

func (s *MongoStore) CreateProduct(ctx context.Context, product model.Product) (*model.Product, error) {
	if !product.Condition.Valid() {
		return nil, &registrystore.ValidationError{Field: "condition", Message: "must be one of New, Used, Vintage, Heritage"}
	}
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	now := time.Now()
	images := product.Images
	if images == nil {
		images = []string{}
	}
	doc := productDoc{
		ID:          uuidToStr(product.ID),
		Name:        product.Name,
		Description: product.Description,
		Images:      images,
		Price:       product.Price,
		Condition:   string(product.Condition),
		Category:    product.Category,
		Location:    product.Location,
		PhoneNumber: product.PhoneNumber,
		UserID:      uuidToStr(product.UserID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.products().InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	products, err := s.withSellers(ctx, []productDoc{doc})
	if err != nil {
		return nil, err
	}
	return &products[0], nil
}

func (s *MongoStore) UpdateProduct(ctx context.Context, productID, requesterID uuid.UUID, update registrystore.ProductUpdate) (*model.Product, error) {
	var current productDoc
	err := s.products().FindOne(ctx, bson.M{"_id": uuidToStr(productID)}).Decode(&current)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &registrystore.NotFoundError{Resource: "product", ID: productID.String()}
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if current.UserID != uuidToStr(requesterID) {
		return nil, &registrystore.ForbiddenError{}
	}

	set := bson.M{"updated_at": time.Now()}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.Description != nil {
		set["description"] = *update.Description
	}
	if update.Images != nil {
		set["images"] = update.Images
	}
	if update.Price != nil {
		set["price"] = *update.Price
	}
	if update.Condition != nil {
		if !update.Condition.Valid() {
			return nil, &registrystore.ValidationError{Field: "condition", Message: "must be one of New, Used, Vintage, Heritage"}
		}
		set["condition"] = string(*update.Condition)
	}
	if update.Category != nil {
		set["category"] = *update.Category
	}
	if update.Location != nil {
		set["location"] = *update.Location
	}
	if update.PhoneNumber != nil {
		set["phone_number"] = *update.PhoneNumber
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc productDoc
	err = s.products().FindOneAndUpdate(ctx, bson.M{"_id": uuidToStr(productID)}, bson.M{"$set": set}, opts).Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	products, err := s.withSellers(ctx, []productDoc{doc})
	if err != nil {
		return nil, err
	}
	return &products[0], nil
}

func (s *MongoStore) DeleteProduct(ctx context.Context, productID, requesterID uuid.UUID) error {
	var current productDoc
	err := s.products().FindOne(ctx, bson.M{"_id": uuidToStr(productID)}).Decode(&current)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &registrystore.NotFoundError{Resource: "product", ID: productID.String()}
		}
		return fmt.Errorf("failed to get product: %w", err)
	}
	if current.UserID != uuidToStr(requesterID) {
		return &registrystore.ForbiddenError{}
	}

	if _, err := s.products().DeleteOne(ctx, bson.M{"_id": uuidToStr(productID)}); err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	// Cascade comments and favorites references.
	if _, err := s.comments().DeleteMany(ctx, bson.M{"product": uuidToStr(productID)}); err != nil {
		return fmt.Errorf("failed to delete product comments: %w", err)
	}
	if _, err := s.users().UpdateMany(ctx,
		bson.M{"favorites": uuidToStr(productID)},
		bson.M{"$pull": bson.M{"favorites": uuidToStr(productID)}}); err != nil {
		return fmt.Errorf("failed to clear favorites: %w", err)
	}
	return nil
}
