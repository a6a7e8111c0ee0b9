package rpc

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/taikoxyz/raiko-sub001/statedb"
)

// fakeHashProvider only needs to satisfy statedb.BlockDataProvider's
// GetBlockHashes for the cache's parent-hash validation; the other methods
// are never exercised by DiskCache.
type fakeHashProvider struct {
	hashes map[uint64]common.Hash
}

func (f *fakeHashProvider) GetAccounts(context.Context, []common.Address) ([]statedb.AccountInfo, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeHashProvider) GetStorageValues(context.Context, []statedb.StorageKey) ([]common.Hash, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeHashProvider) GetBlockHashes(_ context.Context, numbers []uint64) ([]common.Hash, error) {
	out := make([]common.Hash, len(numbers))
	for i, n := range numbers {
		out[i] = f.hashes[n]
	}
	return out, nil
}

func (f *fakeHashProvider) GetMerkleProofs(context.Context, uint64, map[common.Address][]common.Hash, int, int) (map[common.Address]statedb.AccountProof, error) {
	return nil, errors.New("not implemented")
}

func TestDiskCacheStoreThenLoadRoundTrips(t *testing.T) {
	parentHash := common.HexToHash("0xabc")
	provider := &fakeHashProvider{hashes: map[uint64]common.Hash{99: parentHash}}
	cache := NewDiskCache(t.TempDir(), "taiko_mainnet", provider)

	require.NoError(t, cache.Store(100, parentHash, []byte("witness-bytes")))

	got, err := cache.Load(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, []byte("witness-bytes"), got)
}

func TestDiskCacheLoadMissesWhenFileAbsent(t *testing.T) {
	provider := &fakeHashProvider{hashes: map[uint64]common.Hash{}}
	cache := NewDiskCache(t.TempDir(), "taiko_mainnet", provider)

	_, err := cache.Load(context.Background(), 100)
	require.ErrorIs(t, err, ErrCacheMiss)
}

// TestDiskCacheLoadDiscardsStaleEntrySilently covers P8: a cached entry
// whose parent hash no longer matches the provider's current view of
// block_number-1 (e.g. after a reorg) is a miss, not a hard error.
func TestDiskCacheLoadDiscardsStaleEntrySilently(t *testing.T) {
	stale := common.HexToHash("0xdead")
	live := common.HexToHash("0xbeef")
	provider := &fakeHashProvider{hashes: map[uint64]common.Hash{99: live}}
	cache := NewDiskCache(t.TempDir(), "taiko_mainnet", provider)

	require.NoError(t, cache.Store(100, stale, []byte("witness-bytes")))

	_, err := cache.Load(context.Background(), 100)
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestDiskCacheValidateGenesisHasNoParent(t *testing.T) {
	provider := &fakeHashProvider{hashes: map[uint64]common.Hash{}}
	cache := NewDiskCache(t.TempDir(), "taiko_mainnet", provider)

	ok, err := cache.Validate(context.Background(), 0, common.Hash{})
	require.NoError(t, err)
	require.True(t, ok)
}
