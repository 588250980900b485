package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPingPeriod_ShorterThanPongWait(t *testing.T) {
	cfg := DefaultConfig()
	assert.Less(t, cfg.PingPeriod(), cfg.WSPongWait)
}

func TestPingPeriod_ScalesWithPongWait(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WSPongWait = 10 * time.Second
	assert.Equal(t, 9*time.Second, cfg.PingPeriod())
}

func TestParsedCORSOrigins(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CORSOrigins = " http://localhost:5173 , https://mythrift.app ,"
	assert.Equal(t, []string{"http://localhost:5173", "https://mythrift.app"}, cfg.ParsedCORSOrigins())
}

func TestParsedCORSOrigins_Empty(t *testing.T) {
	cfg := DefaultConfig()
	assert.Empty(t, cfg.ParsedCORSOrigins())
}

func TestFromContext_RoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	ctx := WithContext(context.Background(), &cfg)
	require.Same(t, &cfg, FromContext(ctx))
}

func TestFromContext_MissingReturnsNil(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
}
