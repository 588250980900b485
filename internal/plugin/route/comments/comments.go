package comments

import (
	"errors"
	"net/http"

	registrystore "github.com/BusyMan009/my-thrift-backend/internal/registry/store"
	"github.com/BusyMan009/my-thrift-backend/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MountRoutes mounts comment routes. Reading is public, writing requires auth.
func MountRoutes(r *gin.Engine, store registrystore.MarketStore, auth gin.HandlerFunc) {
	g := r.Group("/api/comments")

	g.GET("/product/:productId", func(c *gin.Context) {
		listProductComments(c, store)
	})
	g.POST("", auth, func(c *gin.Context) {
		createComment(c, store)
	})
	g.PUT("/:id", auth, func(c *gin.Context) {
		updateComment(c, store)
	})
	g.DELETE("/:id", auth, func(c *gin.Context) {
		deleteComment(c, store)
	})
}

func listProductComments(c *gin.Context, store registrystore.MarketStore) {
	productID, err := uuid.Parse(c.Param("productId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	comments, err := store.ListProductComments(c.Request.Context(), productID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

func createComment(c *gin.Context, store registrystore.MarketStore) {
	userID := security.GetUserID(c)
	var req struct {
		ProductID string `json:"productId" binding:"required"`
		Text      string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	comment, err := store.CreateComment(c.Request.Context(), userID, productID, req.Text)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func updateComment(c *gin.Context, store registrystore.MarketStore) {
	userID := security.GetUserID(c)
	commentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid comment id"})
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	comment, err := store.UpdateComment(c.Request.Context(), commentID, userID, req.Text)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, comment)
}

func deleteComment(c *gin.Context, store registrystore.MarketStore) {
	userID := security.GetUserID(c)
	commentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid comment id"})
		return
	}
	if err := store.DeleteComment(c.Request.Context(), commentID, userID); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "comment deleted"})
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
