package statedb

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	accounts map[common.Address]AccountInfo
	storage  map[StorageKey]common.Hash
	hashes   map[uint64]common.Hash
	proofs   map[common.Address]AccountProof
	calls    int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		accounts: make(map[common.Address]AccountInfo),
		storage:  make(map[StorageKey]common.Hash),
		hashes:   make(map[uint64]common.Hash),
	}
}

func (f *fakeProvider) GetAccounts(_ context.Context, addrs []common.Address) ([]AccountInfo, error) {
	f.calls++
	out := make([]AccountInfo, len(addrs))
	for i, a := range addrs {
		out[i] = f.accounts[a]
	}
	return out, nil
}

func (f *fakeProvider) GetStorageValues(_ context.Context, keys []StorageKey) ([]common.Hash, error) {
	f.calls++
	out := make([]common.Hash, len(keys))
	for i, k := range keys {
		out[i] = f.storage[k]
	}
	return out, nil
}

func (f *fakeProvider) GetBlockHashes(_ context.Context, numbers []uint64) ([]common.Hash, error) {
	f.calls++
	out := make([]common.Hash, len(numbers))
	for i, n := range numbers {
		out[i] = f.hashes[n]
	}
	return out, nil
}

func (f *fakeProvider) GetMerkleProofs(_ context.Context, blockNumber uint64, slots map[common.Address][]common.Hash, offset, totalExpected int) (map[common.Address]AccountProof, error) {
	f.calls++
	out := make(map[common.Address]AccountProof, len(slots))
	for addr := range slots {
		if p, ok := f.proofs[addr]; ok {
			out[addr] = p
			continue
		}
		out[addr] = AccountProof{Address: addr}
	}
	return out, nil
}

func TestProviderDBOptimisticMissThenFetchPromotes(t *testing.T) {
	addr := common.HexToAddress("0x1")
	provider := newFakeProvider()
	provider.accounts[addr] = AccountInfo{Nonce: 7, Balance: big.NewInt(42)}

	db := NewProviderDB(provider, 100, true)

	info, err := db.Basic(context.Background(), addr)
	require.NoError(t, err)
	require.Equal(t, ^uint64(0), info.Nonce, "expected placeholder nonce on optimistic miss")
	require.False(t, db.IsValidRun())

	validRun, err := db.FetchData(context.Background())
	require.NoError(t, err)
	require.True(t, validRun)
	require.True(t, db.IsValidRun())

	info, err = db.Basic(context.Background(), addr)
	require.NoError(t, err)
	require.Equal(t, uint64(7), info.Nonce)
}

func TestProviderDBInvalidRunDiscardsCurrentDB(t *testing.T) {
	addr := common.HexToAddress("0x2")
	other := common.HexToAddress("0x3")
	provider := newFakeProvider()
	provider.accounts[addr] = AccountInfo{Nonce: 1}

	db := NewProviderDB(provider, 100, true)

	db.Commit(map[common.Address]AccountChange{
		other: {Touched: true, Info: AccountInfo{Nonce: 1, Balance: big.NewInt(1)}},
	})
	require.NotEmpty(t, db.currentDB.Accounts)

	_, err := db.Basic(context.Background(), addr)
	require.NoError(t, err)
	require.False(t, db.IsValidRun())

	validRun, err := db.FetchData(context.Background())
	require.NoError(t, err)
	require.False(t, validRun)
	require.Empty(t, db.currentDB.Accounts, "invalid run must discard current_db writes")
}

func TestProviderDBEagerBlocksAndInsertsImmediately(t *testing.T) {
	addr := common.HexToAddress("0x4")
	provider := newFakeProvider()
	provider.accounts[addr] = AccountInfo{Nonce: 9}

	db := NewProviderDB(provider, 100, false)
	info, err := db.Basic(context.Background(), addr)
	require.NoError(t, err)
	require.Equal(t, uint64(9), info.Nonce)
	require.True(t, db.IsValidRun())

	_, ok := db.initialDB.Basic(addr)
	require.True(t, ok, "eager miss must install directly into initial_db")
}

func TestProviderDBGetProofsCoversUnionOfTouchedSlots(t *testing.T) {
	addr := common.HexToAddress("0x8")
	slotA := common.HexToHash("0xa")
	slotB := common.HexToHash("0xb")
	provider := newFakeProvider()
	provider.proofs = map[common.Address]AccountProof{
		addr: {Address: addr, AccountProof: []string{"0xdead"}},
	}

	db := NewProviderDB(provider, 100, false)
	require.NoError(t, db.initialDB.InsertAccountStorage(addr, slotA, common.HexToHash("0x1")))
	db.currentDB.Commit(map[common.Address]AccountChange{
		addr: {
			Touched: true,
			Info:    AccountInfo{Nonce: 1, Balance: big.NewInt(1)},
			Storage: map[common.Hash]StorageWrite{slotB: {Value: common.HexToHash("0x2"), Changed: true}},
		},
	})

	proofs, err := db.GetProofs(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, proofs.TotalSlots, "1 account leaf + 2 distinct slots")
	require.Contains(t, proofs.PreProofs, addr)
	require.Contains(t, proofs.PostProofs, addr)
	require.Equal(t, []string{"0xdead"}, proofs.PreProofs[addr].AccountProof)
}

func TestProviderDBGetAncestorHeadersFillsGaps(t *testing.T) {
	provider := newFakeProvider()
	provider.hashes[97] = common.HexToHash("0x97")
	provider.hashes[98] = common.HexToHash("0x98")
	provider.hashes[99] = common.HexToHash("0x99")
	provider.hashes[100] = common.HexToHash("0x100")

	db := NewProviderDB(provider, 100, false)
	require.NoError(t, db.initialDB.InsertBlockHash(99, common.HexToHash("0x99")))

	err := db.GetAncestorHeaders(context.Background())
	require.NoError(t, err)

	for n := uint64(0); n <= 100; n++ {
		h, ok := db.initialDB.GetBlockHash(n)
		require.True(t, ok, "block hash %d must be cached", n)
		require.Equal(t, provider.hashes[n], h)
	}
}

func TestMemDBCommitSelfdestructUnseenIsNoop(t *testing.T) {
	m := NewMemDB()
	addr := common.HexToAddress("0x5")
	m.Commit(map[common.Address]AccountChange{
		addr: {SelfDestructed: true},
	})
	_, ok := m.Accounts[addr]
	require.False(t, ok)
}

func TestMemDBCommitTouchedEmptyDeletes(t *testing.T) {
	m := NewMemDB()
	addr := common.HexToAddress("0x6")
	require.NoError(t, m.InsertAccountInfo(addr, AccountInfo{Nonce: 1, Balance: big.NewInt(1)}))

	m.Commit(map[common.Address]AccountChange{
		addr: {Touched: true, Info: AccountInfo{}},
	})

	_, ok := m.Basic(addr)
	require.False(t, ok)
}

func TestMemDBCommitOnlyAppliesChangedSlots(t *testing.T) {
	m := NewMemDB()
	addr := common.HexToAddress("0x7")
	slotA := common.HexToHash("0xa")
	slotB := common.HexToHash("0xb")

	m.Commit(map[common.Address]AccountChange{
		addr: {
			Touched: true,
			Info:    AccountInfo{Nonce: 1, Balance: big.NewInt(1)},
			Storage: map[common.Hash]StorageWrite{
				slotA: {Value: common.HexToHash("0x1"), Changed: true},
				slotB: {Value: common.HexToHash("0x2"), Changed: false},
			},
		},
	})

	v, ok := m.GetStorage(addr, slotA)
	require.True(t, ok)
	require.Equal(t, common.HexToHash("0x1"), v)

	_, ok = m.GetStorage(addr, slotB)
	require.False(t, ok)
}
