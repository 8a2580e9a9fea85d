package accounts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleAccount(worker, n int, cats ...Category) Account {
	return Account{
		ID:         fmt.Sprintf("acc-%d-%d", worker, n),
		Name:       fmt.Sprintf("KNX%d_%d", worker, n),
		Region:     "IND",
		Worker:     worker,
		CreatedAt:  time.Unix(1700000000, 0).UTC(),
		Categories: cats,
	}
}

func TestParseCategory(t *testing.T) {
	t.Parallel()

	c, ok := ParseCategory(" Couples")
	require.True(t, ok)
	require.Equal(t, Couples, c)

	_, ok = ParseCategory("legendary")
	require.False(t, ok)
}

func TestAccountIn(t *testing.T) {
	t.Parallel()

	acc := sampleAccount(1, 1, Rare)
	require.True(t, acc.In(All))
	require.True(t, acc.In(Rare))
	require.False(t, acc.In(Couples))
}

func TestMemoryStoreFiltersAndCaps(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	for i := range 120 {
		cats := []Category{}
		if i%2 == 0 {
			cats = append(cats, Rare)
		}
		require.NoError(t, store.Record(ctx, sampleAccount(1, i, cats...)))
	}

	listed, err := store.List(ctx, All, 0)
	require.NoError(t, err)
	require.Len(t, listed, ListLimit)

	rare, err := store.All(ctx, Rare)
	require.NoError(t, err)
	require.Len(t, rare, 60)

	few, err := store.List(ctx, Rare, 5)
	require.NoError(t, err)
	require.Len(t, few, 5)

	none, err := store.List(ctx, Activated, 0)
	require.NoError(t, err)
	require.NotNil(t, none)
	require.Empty(t, none)

	_, err = store.List(ctx, Category("bogus"), 10)
	require.ErrorIs(t, err, ErrUnknownCategory)
}

func TestFileStoreLayoutAndListingCaps(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	for worker := 1; worker <= 3; worker++ {
		for i := range 60 {
			require.NoError(t, store.Record(ctx, sampleAccount(worker, i, Couples)))
		}
	}
	require.FileExists(t, filepath.Join(dir, "all", "accounts_worker_1.json"))
	require.FileExists(t, filepath.Join(dir, "couples", "accounts_worker_3.json"))
	require.NoFileExists(t, filepath.Join(dir, "rare", "accounts_worker_1.json"))

	listed, err := store.List(ctx, Couples, 0)
	require.NoError(t, err)
	require.Len(t, listed, ListLimit)
	require.Equal(t, "acc-1-0", listed[0].ID)
	require.Equal(t, "acc-2-0", listed[PerFileLimit].ID)

	all, err := store.All(ctx, All)
	require.NoError(t, err)
	require.Len(t, all, 180)
}

func TestFileStoreSkipsCorruptFiles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, sampleAccount(2, 1, Rare)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rare", "accounts_worker_1.json"), []byte("{"), 0o600))

	listed, err := store.List(ctx, Rare, 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, "acc-2-1", listed[0].ID)
}

func TestFileStoreAppendsWithoutRewriting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	path := filepath.Join(dir, "all", "accounts_worker_4.json")
	require.NoError(t, writeFile(path, []Account{sampleAccount(4, 0)}))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, store.Record(ctx, sampleAccount(4, i)))
	}
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(after, before[:len(before)-len(arrayTail)]))

	all, err := store.All(ctx, All)
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, "acc-4-3", all[3].ID)
}

func TestFileStoreRewritesEmptyArray(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	path := filepath.Join(dir, "rare", "accounts_worker_1.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o600))
	require.NoError(t, store.Record(ctx, sampleAccount(1, 7, Rare)))
	require.NoError(t, store.Record(ctx, sampleAccount(1, 8, Rare)))

	listed, err := store.List(ctx, Rare, 0)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, "acc-1-7", listed[0].ID)
}

func TestNewFileStoreRequiresDir(t *testing.T) {
	t.Parallel()

	_, err := NewFileStore("  ")
	require.Error(t, err)
}
