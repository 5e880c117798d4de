package workload

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/aethne0/banana-cask/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunFillsSegments(t *testing.T) {
	dir := t.TempDir()
	c, err := core.Open(dir, 1024, core.WithLogger(testLogger()))
	require.NoError(t, err)

	cfg := Config{Workers: 3, Operations: 200, KeyLen: 2, ValueLen: 14, DeleteRatio: 0.2, Seed: 42}
	stats, err := Run(context.Background(), c, cfg, testLogger())
	require.NoError(t, err)
	assert.Equal(t, int64(600), stats.Puts+stats.Deletes)
	assert.Positive(t, stats.Deletes)

	segments, err := c.Segments()
	require.NoError(t, err)
	assert.Greater(t, len(segments), 1)

	keys, err := c.Keys()
	require.NoError(t, err)
	for _, k := range keys {
		require.Len(t, k, 2)
		v, found, err := c.Get(k)
		require.NoError(t, err)
		require.True(t, found)
		assert.Len(t, v, 14)
		for _, d := range v {
			assert.True(t, d >= '0' && d <= '9')
		}
	}
	require.NoError(t, c.Close())

	// Everything generated must survive a reopen.
	c2, err := core.Open(dir, 1024, core.WithLogger(testLogger()))
	require.NoError(t, err)
	defer c2.Close()
	keys2, err := c2.Keys()
	require.NoError(t, err)
	assert.Equal(t, keys, keys2)
}

func TestRunStopsOnCancel(t *testing.T) {
	c, err := core.Open(t.TempDir(), 1024, core.WithLogger(testLogger()))
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := Run(ctx, c, Config{Workers: 2, Operations: 1000, KeyLen: 2, ValueLen: 2}, testLogger())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stats.Puts)
}

func TestRunReportsWriteErrors(t *testing.T) {
	c, err := core.Open(t.TempDir(), 64, core.WithLogger(testLogger()))
	require.NoError(t, err)
	defer c.Close()

	_, err = Run(context.Background(), c, Config{Workers: 1, Operations: 1, KeyLen: 8, ValueLen: 64}, testLogger())
	assert.ErrorIs(t, err, core.ErrRecordTooLarge)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no workers", Config{Workers: 0, Operations: 1}},
		{"negative operations", Config{Workers: 1, Operations: -1}},
		{"negative length", Config{Workers: 1, KeyLen: -1}},
		{"ratio above one", Config{Workers: 1, DeleteRatio: 1.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.validate())
		})
	}

	assert.NoError(t, DefaultConfig().validate())
}
