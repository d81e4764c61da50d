package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chessbot/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDatabaseLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	var out bytes.Buffer

	require.NoError(t, run([]string{"init", "-path", path}, &out))
	assert.Contains(t, out.String(), "Database initialized")

	out.Reset()
	require.NoError(t, run([]string{"query", "-path", path}, &out))
	assert.Contains(t, out.String(), "No games found")

	// Seed one game with a delivery
	gameID := uuid.NewString()
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	store, err := storage.NewStore(path, false, zap.NewNop())
	require.NoError(t, err)
	store.RecordNewGame(storage.GameRecord{GameID: gameID, InitialFEN: "8/8/8/8/8/8/8/K6k w - - 0 1", MyColor: "b", StartTimeUTC: start})
	store.RecordDelivery(storage.DeliveryRecord{
		EntryID: uuid.NewString(), GameID: gameID, Ply: 1, MoveUCI: "h1g1", FEN: "8/8/8/8/8/8/8/K6k b - - 0 1",
		Status: "failed", Via: "secondary", Retries: 5, Error: "endpoint unresolved",
		CreatedUTC: start, FinishedUTC: start.Add(10 * time.Second),
	})
	require.NoError(t, store.Close())

	out.Reset()
	require.NoError(t, run([]string{"query", "-path", path, "-gameId", "*"}, &out))
	assert.Contains(t, out.String(), gameID[:8])
	assert.Contains(t, out.String(), "Found 1 game(s)")
	assert.NotContains(t, out.String(), "h1g1")

	out.Reset()
	require.NoError(t, run([]string{"query", "-path", path, "-gameId", gameID}, &out))
	assert.Contains(t, out.String(), "h1g1")
	assert.Contains(t, out.String(), "endpoint unresolved")
	assert.Contains(t, out.String(), "Found 1 deliveries")

	out.Reset()
	require.NoError(t, run([]string{"delete", "-path", path}, &out))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRunErrors(t *testing.T) {
	var out bytes.Buffer

	assert.Error(t, run(nil, &out))
	assert.Error(t, run([]string{"vacuum"}, &out))
	assert.Error(t, run([]string{"init"}, &out))

	path := filepath.Join(t.TempDir(), "journal.db")
	require.NoError(t, run([]string{"init", "-path", path}, &out))
	assert.Error(t, run([]string{"query", "-path", path, "-gameId", "not-a-uuid"}, &out))
}
