package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DealScanner/internal/domain"
)

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "delivered.ledger")
	at := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

	store, err := OpenFileStore(path, true)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, domain.LedgerEntry{ID: "https://jiji.ng/a", DeliveredAt: at}))
	require.NoError(t, store.Append(ctx, domain.LedgerEntry{ID: "https://jiji.ng/b", DeliveredAt: at.Add(time.Minute)}))
	require.NoError(t, store.Close())

	reopened, err := OpenFileStore(path, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	entries, err := reopened.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "https://jiji.ng/a", entries[0].ID)
	assert.True(t, at.Equal(entries[0].DeliveredAt))
	assert.Equal(t, "https://jiji.ng/b", entries[1].ID)
}

func TestFileStoreToleratesBareIDsAndBlankLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "delivered.ledger")
	raw := "https://a.example/1\n\n   \nhttps://a.example/2\t2024-01-02T03:04:05Z\nhttps://a.example/3\tgarbage\n"
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	store, err := OpenFileStore(path, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	entries, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "https://a.example/1", entries[0].ID)
	assert.True(t, entries[0].DeliveredAt.IsZero())
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), entries[1].DeliveredAt)
	assert.True(t, entries[2].DeliveredAt.IsZero())
}

func TestFileStoreBuffersUntilFlush(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "delivered.ledger")

	store, err := OpenFileStore(path, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Append(ctx, domain.LedgerEntry{ID: "x", DeliveredAt: time.Now()}))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, raw)

	require.NoError(t, store.Flush(ctx))
	raw, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "x\t")
}

func TestFileStoreRejectsSeparatorInID(t *testing.T) {
	t.Parallel()

	store, err := OpenFileStore(filepath.Join(t.TempDir(), "l"), true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	err = store.Append(context.Background(), domain.LedgerEntry{ID: "a\tb"})
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(domain.LedgerEntry{ID: "seed"})
	require.NoError(t, store.Append(ctx, domain.LedgerEntry{ID: "new"}))

	entries, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Len(t, store.Entries(), 2)
}
