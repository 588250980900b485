package security

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/BusyMan009/my-thrift-backend/internal/config"
	"github.com/BusyMan009/my-thrift-backend/internal/model"
	registrystore "github.com/BusyMan009/my-thrift-backend/internal/registry/store"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// ContextKeyUserID is the gin context key for the authenticated user ID.
	ContextKeyUserID = "userID"
	// ContextKeyIdentity is the gin context key for the resolved identity.
	ContextKeyIdentity = "identity"
)

var (
	// ErrMissingCredential means no Authorization header was sent.
	ErrMissingCredential = errors.New("missing credential")
	// ErrInvalidCredential means the bearer token is malformed or its signature is wrong.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrExpiredCredential means the bearer token is past its expiry.
	ErrExpiredCredential = errors.New("expired credential")
	// ErrUnknownUser means the token verified but its subject no longer exists.
	ErrUnknownUser = errors.New("unknown user")
)

// Identity is the authenticated caller.
type Identity struct {
	UserID uuid.UUID
	Email  string
}

// UserLookup is the slice of the store the resolver needs to verify token subjects.
type UserLookup interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*model.User, error)
}

type tokenClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenResolver issues and verifies HS256 bearer tokens.
type TokenResolver struct {
	secret      []byte
	expiry      time.Duration
	users       UserLookup
	testingMode bool
}

// NewTokenResolver builds a resolver from config. users may be nil, in which
// case token subjects are not checked against the store.
func NewTokenResolver(cfg *config.Config, users UserLookup) *TokenResolver {
	return &TokenResolver{
		secret:      []byte(cfg.JWTSecret),
		expiry:      cfg.JWTExpiry,
		users:       users,
		testingMode: cfg.Mode == config.ModeTesting,
	}
}

// Issue signs a token for the given identity.
func (r *TokenResolver) Issue(identity Identity) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		UserID: identity.UserID.String(),
		Email:  identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

// Resolve verifies a raw bearer token (without the "Bearer " prefix) and
// returns the caller identity.
func (r *TokenResolver) Resolve(ctx context.Context, bearerToken string) (*Identity, error) {
	if bearerToken == "" {
		return nil, ErrMissingCredential
	}
	// Testing mode: accept a bare user id as the token. Signed tokens
	// contain dots and never parse as a uuid, so the two cannot collide.
	if r.testingMode {
		if userID, err := uuid.Parse(bearerToken); err == nil {
			return r.lookup(ctx, userID, "")
		}
	}
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(bearerToken, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCredential
		}
		return r.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredCredential
		}
		return nil, ErrInvalidCredential
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, ErrInvalidCredential
	}
	return r.lookup(ctx, userID, claims.Email)
}

func (r *TokenResolver) lookup(ctx context.Context, userID uuid.UUID, email string) (*Identity, error) {
	if r.users != nil {
		if _, err := r.users.GetUser(ctx, userID); err != nil {
			var notFound *registrystore.NotFoundError
			if errors.As(err, &notFound) {
				return nil, ErrUnknownUser
			}
			return nil, err
		}
	}
	return &Identity{UserID: userID, Email: email}, nil
}

// AuthMiddleware authenticates requests with the resolver and stores the
// identity in the gin context. Missing or unknown credentials get 401,
// bad or expired tokens get 403.
func AuthMiddleware(resolver *TokenResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token == "" {
			log.Info("Auth rejected: invalid Authorization header; expected Bearer token",
				"method", c.Request.Method, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header; expected Bearer token"})
			return
		}

		id, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, ErrExpiredCredential):
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "token expired"})
			case errors.Is(err, ErrInvalidCredential):
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid token"})
			case errors.Is(err, ErrUnknownUser):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
			}
			return
		}

		c.Set(ContextKeyUserID, id.UserID.String())
		c.Set(ContextKeyIdentity, id)
		c.Next()
	}
}

// GetIdentity returns the identity set by AuthMiddleware, or nil.
func GetIdentity(c *gin.Context) *Identity {
	v, _ := c.Get(ContextKeyIdentity)
	id, _ := v.(*Identity)
	return id
}

// GetUserID returns the authenticated user id, or uuid.Nil.
func GetUserID(c *gin.Context) uuid.UUID {
	id := GetIdentity(c)
	if id == nil {
		return uuid.Nil
	}
	return id.UserID
}

// RequireOwner returns a ForbiddenError unless the identity owns the resource.
func RequireOwner(identity *Identity, ownerID uuid.UUID) error {
	if identity == nil || identity.UserID != ownerID {
		return &registrystore.ForbiddenError{}
	}
	return nil
}
