package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearMemstackEnv(t *testing.T) {
	t.Helper()
	for _, e := range os.Environ() {
		for i := 0; i < len(e); i++ {
			if e[i] == '=' {
				if len(e) > 9 && e[:9] == "MEMSTACK_" {
					os.Unsetenv(e[:i])
				}
				break
			}
		}
	}
}

func TestLoadRequiresEncryptionKey(t *testing.T) {
	clearMemstackEnv(t)
	_, err := Load()
	require.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	clearMemstackEnv(t)
	t.Setenv("MEMSTACK_ENCRYPTION_KEY", "dGVzdC1rZXktMzItYnl0ZXMtbG9uZy1wYWRkZWQhISE=")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, 60, int(cfg.Session.RRFK))
	assert.InDelta(t, 0.6, cfg.Session.VectorWeight, 0.0001)
	assert.InDelta(t, 0.4, cfg.Session.KeywordWeight, 0.0001)
	assert.Equal(t, 20, cfg.Session.MaxSteps)
	assert.True(t, cfg.Retry.Jitter)
}

func TestLoadOverrides(t *testing.T) {
	clearMemstackEnv(t)
	t.Setenv("MEMSTACK_ENCRYPTION_KEY", "dGVzdC1rZXktMzItYnl0ZXMtbG9uZy1wYWRkZWQhISE=")
	t.Setenv("MEMSTACK_PG_PORT", "6543")
	t.Setenv("MEMSTACK_SEARCH_MMR_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 6543, cfg.Postgres.Port)
	assert.False(t, cfg.Session.MMREnabled)
}
