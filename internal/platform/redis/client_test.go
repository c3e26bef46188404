package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medledger/internal/platform/config"
)

func TestNew(t *testing.T) {
	t.Run("empty url disables redis", func(t *testing.T) {
		client, err := New(context.Background(), config.RedisConfig{})
		require.NoError(t, err)
		assert.Nil(t, client)
	})

	t.Run("malformed url fails", func(t *testing.T) {
		_, err := New(context.Background(), config.RedisConfig{URL: "not a url"})
		assert.ErrorContains(t, err, "parse redis URL")
	})
}
