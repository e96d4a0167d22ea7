package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "both", cfg.Server.EventSource)
	assert.True(t, cfg.Server.WatchDocuments)
	assert.Equal(t, "stories", cfg.Storage.Bucket)
	assert.Equal(t, "mongo", cfg.DocStore.Driver)
	assert.Equal(t, 5, cfg.DocStore.MaxAttempts)
	assert.Equal(t, "stories", cfg.Pipeline.RootToken)
	assert.Equal(t, "append", cfg.Pipeline.AudioSegments)
	assert.Equal(t, "stories_shareId", cfg.Pipeline.ShareIDCounter)
	assert.Equal(t, "counters", cfg.Counter.Collection)
	assert.Equal(t, int64(1), cfg.Counter.Start)
	assert.Equal(t, 400, cfg.Reconcile.BatchSize)
	assert.True(t, cfg.Reconcile.AuditOnStart)
	assert.Equal(t, "new_stories", cfg.Push.Topic)
	assert.Equal(t, 5.0, cfg.Push.RatePerSecond)
	assert.Equal(t, 3600, cfg.Redis.TTLSeconds)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PIPELINE_AUDIO_SEGMENTS", "replace")
	t.Setenv("DOCSTORE_DRIVER", "memory")
	t.Setenv("COUNTER_START", "114")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "replace", cfg.Pipeline.AudioSegments)
	assert.Equal(t, "memory", cfg.DocStore.Driver)
	assert.Equal(t, int64(114), cfg.Counter.Start)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PUSH_TOPIC=staging_stories\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("PUSH_TOPIC") })

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "staging_stories", cfg.Push.Topic)
}
