package builder

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"

	"github.com/taikoxyz/raiko-sub001/statedb"
)

// stateAccount is the RLP-encoded leaf value of the state trie, matching
// go-ethereum's own state account shape (and the original raiko's
// StateAccount{nonce, balance, storage_root, code_hash}).
type stateAccount struct {
	Nonce    uint64
	Balance  *big.Int
	Root     common.Hash
	CodeHash []byte
}

// FinalizeStateRoot writes every account held in either tier into a fresh
// state trie and returns its root hash, implementing spec §4.4 step
// 8/finalize: where both tiers hold an account, current's entry wins;
// deleted accounts are omitted from the trie; each account's storage root
// is computed from the slots recorded in its winning entry. Keys are
// inserted in ascending hashed-key order, as the stack trie requires.
// Grounded on the original raiko RethBlockBuilder::finalize's state-trie
// walk.
func FinalizeStateRoot(initial, current *statedb.MemDB) (common.Hash, error) {
	merged := mergeTiers(initial, current)

	addrs := make([]common.Address, 0, len(merged))
	for addr := range merged {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(crypto.Keccak256(addrs[i].Bytes()), crypto.Keccak256(addrs[j].Bytes())) < 0
	})

	stateTrie := trie.NewStackTrie(nil)
	for _, addr := range addrs {
		acc := merged[addr]
		if acc.State == statedb.AccountStateDeleted {
			continue
		}

		storageRoot, err := computeStorageRoot(acc.Storage)
		if err != nil {
			return common.Hash{}, err
		}

		balance := acc.Info.Balance
		if balance == nil {
			balance = new(big.Int)
		}

		enc, err := rlp.EncodeToBytes(stateAccount{
			Nonce:    acc.Info.Nonce,
			Balance:  balance,
			Root:     storageRoot,
			CodeHash: acc.Info.CodeHash.Bytes(),
		})
		if err != nil {
			return common.Hash{}, err
		}

		if err := stateTrie.Update(crypto.Keccak256(addr.Bytes()), enc); err != nil {
			return common.Hash{}, err
		}
	}

	return stateTrie.Hash(), nil
}

func computeStorageRoot(storage map[common.Hash]common.Hash) (common.Hash, error) {
	if len(storage) == 0 {
		return types.EmptyRootHash, nil
	}
	slots := make([]common.Hash, 0, len(storage))
	for slot := range storage {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool {
		return bytes.Compare(crypto.Keccak256(slots[i].Bytes()), crypto.Keccak256(slots[j].Bytes())) < 0
	})

	storageTrie := trie.NewStackTrie(nil)
	for _, slot := range slots {
		value := storage[slot]
		if value == (common.Hash{}) {
			continue
		}
		enc, err := rlp.EncodeToBytes(value.Bytes())
		if err != nil {
			return common.Hash{}, err
		}
		if err := storageTrie.Update(crypto.Keccak256(slot.Bytes()), enc); err != nil {
			return common.Hash{}, err
		}
	}
	return storageTrie.Hash(), nil
}

// mergeTiers layers current's accounts on top of initial's, so the trie walk
// sees the post-execution view of every account either tier has touched.
func mergeTiers(initial, current *statedb.MemDB) map[common.Address]*statedb.DbAccount {
	merged := make(map[common.Address]*statedb.DbAccount, len(initial.Accounts)+len(current.Accounts))
	for addr, acc := range initial.Accounts {
		merged[addr] = acc
	}
	for addr, acc := range current.Accounts {
		merged[addr] = acc
	}
	return merged
}
