package users

import (
	"errors"
	"net/http"

	registrystore "github.com/BusyMan009/my-thrift-backend/internal/registry/store"
	"github.com/BusyMan009/my-thrift-backend/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MountRoutes mounts user profile and favorites routes.
func MountRoutes(r *gin.Engine, store registrystore.MarketStore, auth gin.HandlerFunc) {
	g := r.Group("/api/users")

	g.GET("", func(c *gin.Context) {
		listUsers(c, store)
	})
	g.GET("/:id", func(c *gin.Context) {
		getUser(c, store)
	})
	g.PUT("/:id", auth, func(c *gin.Context) {
		updateUser(c, store)
	})
	g.DELETE("/:id", auth, func(c *gin.Context) {
		deleteUser(c, store)
	})
	g.GET("/:id/favorites", auth, func(c *gin.Context) {
		listFavorites(c, store)
	})
	g.POST("/:id/favorites/:productId", auth, func(c *gin.Context) {
		addFavorite(c, store)
	})
	g.DELETE("/:id/favorites/:productId", auth, func(c *gin.Context) {
		removeFavorite(c, store)
	})
}

func listUsers(c *gin.Context, store registrystore.MarketStore) {
	users, err := store.ListUsers(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func getUser(c *gin.Context, store registrystore.MarketStore) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	user, err := store.GetUser(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	products, err := store.ListUserProducts(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "products": products})
}

// pathOwner parses the :id param and rejects callers who do not own it.
func pathOwner(c *gin.Context) (uuid.UUID, bool) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return uuid.Nil, false
	}
	if err := security.RequireOwner(security.GetIdentity(c), userID); err != nil {
		handleError(c, err)
		return uuid.Nil, false
	}
	return userID, true
}

func updateUser(c *gin.Context, store registrystore.MarketStore) {
	userID, ok := pathOwner(c)
	if !ok {
		return
	}
	var req struct {
		Name         *string `json:"name"`
		ProfileImage *string `json:"profileImage"`
		Phone        *string `json:"phone"`
		Location     *string `json:"location"`
		Bio          *string `json:"bio"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := store.UpdateUser(c.Request.Context(), userID, registrystore.UserUpdate{
		Name:         req.Name,
		ProfileImage: req.ProfileImage,
		Phone:        req.Phone,
		Location:     req.Location,
		Bio:          req.Bio,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func deleteUser(c *gin.Context, store registrystore.MarketStore) {
	userID, ok := pathOwner(c)
	if !ok {
		return
	}
	if err := store.DeleteUser(c.Request.Context(), userID); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}

func listFavorites(c *gin.Context, store registrystore.MarketStore) {
	userID, ok := pathOwner(c)
	if !ok {
		return
	}
	products, err := store.ListFavorites(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func addFavorite(c *gin.Context, store registrystore.MarketStore) {
	userID, ok := pathOwner(c)
	if !ok {
		return
	}
	productID, err := uuid.Parse(c.Param("productId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	if err := store.AddFavorite(c.Request.Context(), userID, productID); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "favorite added"})
}

func removeFavorite(c *gin.Context, store registrystore.MarketStore) {
	userID, ok := pathOwner(c)
	if !ok {
		return
	}
	productID, err := uuid.Parse(c.Param("productId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	if err := store.RemoveFavorite(c.Request.Context(), userID, productID); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "favorite removed"})
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
