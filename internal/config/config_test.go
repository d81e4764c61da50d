package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"chessbot/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "stockfish", cfg.Engine.Path)
	assert.Equal(t, 2*time.Second, cfg.Engine.WatchdogInterval)
	assert.Equal(t, 10*time.Second, cfg.Engine.StallTimeout)
	assert.Equal(t, time.Second, cfg.Delivery.AckDelay)
	assert.Equal(t, 200*time.Millisecond, cfg.Delivery.SecondaryDelay)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		300 * time.Millisecond,
		800 * time.Millisecond,
		2 * time.Second,
		5 * time.Second,
	}, cfg.Delivery.Backoff)
	assert.Equal(t, 5, cfg.Delivery.MaxRetries)
	assert.Equal(t, 16, cfg.Search.Depth.DepthFor(core.PhaseMiddlegame))
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chessbot.yaml")
	content := `
engine:
  path: /opt/stockfish
  multipv: 4
delivery:
  max_retries: 2
  backoff: [50ms, 1s]
transport:
  aux:
    lag: 20
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/stockfish", cfg.Engine.Path)
	assert.Equal(t, 4, cfg.Engine.MultiPV)
	assert.Equal(t, 2, cfg.Delivery.MaxRetries)
	assert.Equal(t, []time.Duration{50 * time.Millisecond, time.Second}, cfg.Delivery.Backoff)
	assert.EqualValues(t, 20, cfg.Transport.Aux["lag"])
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CHESSBOT_ENGINE_PATH", "/usr/games/stockfish")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/usr/games/stockfish", cfg.Engine.Path)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("validator:\n  imprecision: 1.5\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Engine.MultiPV)
}
