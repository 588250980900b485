package products

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/BusyMan009/my-thrift-backend/internal/config"
	"github.com/BusyMan009/my-thrift-backend/internal/model"
	registryimages "github.com/BusyMan009/my-thrift-backend/internal/registry/images"
	registrystore "github.com/BusyMan009/my-thrift-backend/internal/registry/store"
	"github.com/BusyMan009/my-thrift-backend/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MountRoutes mounts product listing routes. images may be nil, in which
// case uploads are rejected and products carry caller-provided image URLs.
func MountRoutes(r *gin.Engine, store registrystore.MarketStore, images registryimages.ImageStore, cfg *config.Config, auth gin.HandlerFunc) {
	g := r.Group("/api/products")

	g.GET("", func(c *gin.Context) {
		listProducts(c, store)
	})
	g.GET("/:id", func(c *gin.Context) {
		getProduct(c, store)
	})
	g.PUT("/:id/view", func(c *gin.Context) {
		bumpViews(c, store)
	})
	g.POST("", auth, func(c *gin.Context) {
		createProduct(c, store, images, cfg)
	})
	g.PUT("/:id", auth, func(c *gin.Context) {
		updateProduct(c, store)
	})
	g.DELETE("/:id", auth, func(c *gin.Context) {
		deleteProduct(c, store)
	})
}

func listProducts(c *gin.Context, store registrystore.MarketStore) {
	query := registrystore.ProductQuery{
		Search:   c.Query("search"),
		Category: c.Query("category"),
		Location: c.Query("location"),
		SortBy:   c.DefaultQuery("sortBy", "newest"),
		MinPrice: queryFloat(c, "minPrice"),
		MaxPrice: queryFloat(c, "maxPrice"),
		Page:     queryInt(c, "page"),
		Limit:    queryInt(c, "limit"),
	}

	result, err := store.ListProducts(c.Request.Context(), query)
	if err != nil {
		handleError(c, err)
		return
	}
	if result.Paginated {
		c.JSON(http.StatusOK, gin.H{
			"products":   result.Data,
			"total":      result.Total,
			"page":       result.Page,
			"totalPages": result.TotalPages,
		})
		return
	}
	c.JSON(http.StatusOK, result.Data)
}

// getProduct returns the product and counts the visit.
func getProduct(c *gin.Context, store registrystore.MarketStore) {
	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	product, err := store.IncrementProductViews(c.Request.Context(), productID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func bumpViews(c *gin.Context, store registrystore.MarketStore) {
	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	product, err := store.IncrementProductViews(c.Request.Context(), productID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"views": product.Views})
}

func createProduct(c *gin.Context, store registrystore.MarketStore, images registryimages.ImageStore, cfg *config.Config) {
	userID := security.GetUserID(c)

	product := model.Product{UserID: userID}
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		if !bindMultipart(c, &product, images, cfg) {
			return
		}
	} else {
		var req struct {
			Name        string   `json:"name"`
			Description string   `json:"description"`
			Images      []string `json:"images"`
			Price       float64  `json:"price"`
			Condition   string   `json:"condition"`
			Category    string   `json:"category"`
			Location    string   `json:"location"`
			PhoneNumber string   `json:"phoneNumber"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		product.Name = req.Name
		product.Description = req.Description
		product.Images = req.Images
		product.Price = req.Price
		product.Condition = model.Condition(req.Condition)
		product.Category = req.Category
		product.Location = req.Location
		product.PhoneNumber = req.PhoneNumber
	}

	if product.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	created, err := store.CreateProduct(c.Request.Context(), product)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// bindMultipart fills the product from form fields and uploads attached
// image files. Reports false after writing an error response.
func bindMultipart(c *gin.Context, product *model.Product, images registryimages.ImageStore, cfg *config.Config) bool {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}

	product.Name = c.PostForm("name")
	product.Description = c.PostForm("description")
	product.Condition = model.Condition(c.PostForm("condition"))
	product.Category = c.PostForm("category")
	product.Location = c.PostForm("location")
	product.PhoneNumber = c.PostForm("phoneNumber")
	if raw := c.PostForm("price"); raw != "" {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
			return false
		}
		product.Price = price
	}

	files := form.File["images"]
	if len(files) == 0 {
		return true
	}
	if images == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image uploads are not enabled"})
		return false
	}
	if len(files) > cfg.ImageMaxPerUpload {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("at most %d images per product", cfg.ImageMaxPerUpload)})
		return false
	}
	for _, header := range files {
		file, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return false
		}
		result, err := images.Store(c.Request.Context(), file, cfg.ImageMaxSize, header.Header.Get("Content-Type"))
		file.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return false
		}
		product.Images = append(product.Images, result.URL)
	}
	return true
}

func updateProduct(c *gin.Context, store registrystore.MarketStore) {
	userID := security.GetUserID(c)
	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	var req struct {
		Name        *string  `json:"name"`
		Description *string  `json:"description"`
		Images      []string `json:"images"`
		Price       *float64 `json:"price"`
		Condition   *string  `json:"condition"`
		Category    *string  `json:"category"`
		Location    *string  `json:"location"`
		PhoneNumber *string  `json:"phoneNumber"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	update := registrystore.ProductUpdate{
		Name:        req.Name,
		Description: req.Description,
		Images:      req.Images,
		Price:       req.Price,
		Category:    req.Category,
		Location:    req.Location,
		PhoneNumber: req.PhoneNumber,
	}
	if req.Condition != nil {
		condition := model.Condition(*req.Condition)
		update.Condition = &condition
	}

	product, err := store.UpdateProduct(c.Request.Context(), productID, userID, update)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func deleteProduct(c *gin.Context, store registrystore.MarketStore) {
	userID := security.GetUserID(c)
	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	if err := store.DeleteProduct(c.Request.Context(), productID, userID); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "product deleted"})
}

func queryFloat(c *gin.Context, key string) *float64 {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

func queryInt(c *gin.Context, key string) *int {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &v
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var forbidden *registrystore.ForbiddenError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
