package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opticash/internal/config"
	"opticash/internal/core"
	"opticash/internal/overlay"
	"opticash/internal/storage"
	"opticash/internal/store/rest"
)

func TestBackendTypes(t *testing.T) {
	assert.True(t, MemoryBackend.IsValid())
	assert.True(t, RESTBackend.IsValid())
	assert.False(t, BackendType("sheets").IsValid())
	assert.Equal(t, []string{"sqlite", "rest", "memory"}, GetBackendTypeStrings())
}

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	assert.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{
		DataBackend: "rest",
		APIBaseURL:  "https://api.example.com",
		APIToken:    "t",
		APITimeout:  time.Second,
		CacheSize:   8,
		CacheTTL:    time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, RESTBackend, cfg.Type)
	assert.Equal(t, 8, cfg.CacheSize)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{Type: SQLiteBackend}.Validate())
	assert.Error(t, Config{Type: RESTBackend, APIToken: "t"}.Validate())
	assert.Error(t, Config{Type: RESTBackend, APIBaseURL: "https://x"}.Validate())
	assert.Error(t, Config{Type: MemoryBackend, CacheSize: -1}.Validate())
	assert.NoError(t, Config{Type: MemoryBackend}.Validate())
}

func TestCreateMemoryBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	seed := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte(`{
		"households": [{"id": "h-1", "name": "Casa"}],
		"members": [{"userId": "a", "householdId": "h-1"}],
		"bills": [{"id": "b-1", "householdId": "h-1", "amount": 12.5, "date": "2025-01-31"}]
	}`), 0644))

	result, err := NewFactory(nil).CreateBackend(ctx, Config{
		Type:        MemoryBackend,
		SeedFile:    seed,
		StateDBPath: filepath.Join(dir, "state.db"),
		CacheSize:   16,
		CacheTTL:    time.Minute,
	})
	require.NoError(t, err)
	defer func() { assert.NoError(t, result.Cleanup()) }()

	require.NotNil(t, result.Cache)
	bill, err := result.Store.GetBill(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1250), bill.Amount.Cents)

	_, ok := result.State.(*storage.SQLiteRepository)
	assert.True(t, ok, "state lives in the state database")
}

func TestCreateMemoryBackendWithoutState(t *testing.T) {
	result, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend})
	require.NoError(t, err)
	defer result.Cleanup()

	assert.Nil(t, result.Cache)
	_, ok := result.State.(*overlay.MemoryKV)
	assert.True(t, ok)
}

func TestCreateSQLiteBackendSharesStateDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "opticash.db")

	result, err := NewFactory(nil).CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: path})
	require.NoError(t, err)
	defer result.Cleanup()

	assert.Same(t, result.Store, result.State)

	o := overlay.New()
	_, err = o.RecordLocalPayment("mc-1", core.NewMoney(500))
	require.NoError(t, err)
	require.NoError(t, overlay.Save(ctx, result.State, o))

	restored, err := overlay.Load(ctx, result.State)
	require.NoError(t, err)
	assert.Equal(t, []string{"mc-1"}, restored.IDs())
}

func TestCreateRESTBackend(t *testing.T) {
	result, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:       RESTBackend,
		APIBaseURL: "https://api.example.com",
		APIToken:   "secret",
		APITimeout: time.Second,
	})
	require.NoError(t, err)
	defer result.Cleanup()

	_, ok := result.Store.(*rest.Client)
	assert.True(t, ok)
}

func TestCreateBackendRejectsInvalidConfig(t *testing.T) {
	_, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: "sheets"})
	assert.Error(t, err)
}
