package security

import (
	"context"
	"testing"
	"time"

	"github.com/BusyMan009/my-thrift-backend/internal/config"
	"github.com/BusyMan009/my-thrift-backend/internal/model"
	registrystore "github.com/BusyMan009/my-thrift-backend/internal/registry/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserLookup struct {
	known map[uuid.UUID]bool
}

func (f *fakeUserLookup) GetUser(_ context.Context, userID uuid.UUID) (*model.User, error) {
	if f.known[userID] {
		return &model.User{ID: userID}, nil
	}
	return nil, &registrystore.NotFoundError{Resource: "user", ID: userID.String()}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.JWTSecret = "test-secret"
	return &cfg
}

func TestIssueAndResolve(t *testing.T) {
	userID := uuid.New()
	resolver := NewTokenResolver(testConfig(), &fakeUserLookup{known: map[uuid.UUID]bool{userID: true}})

	token, err := resolver.Issue(Identity{UserID: userID, Email: "a@example.com"})
	require.NoError(t, err)

	id, err := resolver.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, userID, id.UserID)
	assert.Equal(t, "a@example.com", id.Email)
}

func TestResolve_MissingToken(t *testing.T) {
	resolver := NewTokenResolver(testConfig(), nil)
	_, err := resolver.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingCredential)
}

func TestResolve_Garbage(t *testing.T) {
	resolver := NewTokenResolver(testConfig(), nil)
	_, err := resolver.Resolve(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestResolve_WrongSecret(t *testing.T) {
	userID := uuid.New()
	resolver := NewTokenResolver(testConfig(), nil)
	token, err := resolver.Issue(Identity{UserID: userID})
	require.NoError(t, err)

	otherCfg := testConfig()
	otherCfg.JWTSecret = "other-secret"
	other := NewTokenResolver(otherCfg, nil)
	_, err = other.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestResolve_Expired(t *testing.T) {
	cfg := testConfig()
	cfg.JWTExpiry = -time.Minute
	resolver := NewTokenResolver(cfg, nil)

	token, err := resolver.Issue(Identity{UserID: uuid.New()})
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, ErrExpiredCredential)
}

func TestResolve_UnknownUser(t *testing.T) {
	resolver := NewTokenResolver(testConfig(), &fakeUserLookup{known: map[uuid.UUID]bool{}})

	token, err := resolver.Issue(Identity{UserID: uuid.New()})
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestResolve_TestingModeAcceptsBareUserID(t *testing.T) {
	userID := uuid.New()
	lookup := &fakeUserLookup{known: map[uuid.UUID]bool{userID: true}}

	cfg := testConfig()
	cfg.Mode = config.ModeTesting
	resolver := NewTokenResolver(cfg, lookup)

	id, err := resolver.Resolve(context.Background(), userID.String())
	require.NoError(t, err)
	assert.Equal(t, userID, id.UserID)

	// Only known users are accepted.
	_, err = resolver.Resolve(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, ErrUnknownUser)

	// Signed tokens still work in testing mode.
	token, err := resolver.Issue(Identity{UserID: userID})
	require.NoError(t, err)
	_, err = resolver.Resolve(context.Background(), token)
	assert.NoError(t, err)
}

func TestResolve_ProdModeRejectsBareUserID(t *testing.T) {
	userID := uuid.New()
	resolver := NewTokenResolver(testConfig(), &fakeUserLookup{known: map[uuid.UUID]bool{userID: true}})

	_, err := resolver.Resolve(context.Background(), userID.String())
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestRequireOwner(t *testing.T) {
	owner := uuid.New()
	id := &Identity{UserID: owner}

	assert.NoError(t, RequireOwner(id, owner))

	err := RequireOwner(id, uuid.New())
	var forbidden *registrystore.ForbiddenError
	assert.ErrorAs(t, err, &forbidden)

	assert.Error(t, RequireOwner(nil, owner))
}
