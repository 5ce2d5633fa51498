package neo4jdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

func TestNewWithoutURIIsDisabled(t *testing.T) {
	c, err := New(context.Background(), logger.Nop(), Config{URI: "  "})
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.False(t, c.Enabled())
	assert.NoError(t, c.Close(context.Background()))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{URI: " bolt://localhost:7687 "}.withDefaults()
	assert.Equal(t, "bolt://localhost:7687", cfg.URI)
	assert.Equal(t, "neo4j", cfg.User)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 50, cfg.MaxPoolSize)
}

func TestWriteOnDisabledClient(t *testing.T) {
	var c *Client
	c.EnsureSchema(context.Background(), "RETURN 1")
	require.Error(t, c.Write(context.Background(), nil))
}
