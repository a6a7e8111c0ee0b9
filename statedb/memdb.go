// Package statedb implements the three-tier optimistic/eager state database
// (C3): MemDB is the single committed tier; ProviderDB layers initial,
// staging, and current MemDB instances on top of a block-data provider.
package statedb

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// AccountState tracks why an account entry exists in a MemDB tier, mirroring
// the reconciliation states of spec §4.3's commit algorithm.
type AccountState uint8

const (
	// AccountStateNone is an account that has only been read, never
	// written or deleted.
	AccountStateNone AccountState = iota
	// AccountStateTouched is an account written by a commit but whose
	// storage was not cleared.
	AccountStateTouched
	// AccountStateStorageCleared marks an account whose storage must be
	// treated as empty regardless of what is recorded in Storage from a
	// prior (stale) entry — set for newly created accounts.
	AccountStateStorageCleared
	// AccountStateDeleted marks a selfdestructed or touched-and-empty
	// account; reads must behave as if the account does not exist.
	AccountStateDeleted
)

// AccountInfo is the non-storage portion of an account: balance, nonce, and
// code (identified by hash).
type AccountInfo struct {
	Balance  *big.Int
	Nonce    uint64
	CodeHash common.Hash
	Code     []byte
}

// IsEmpty reports whether the account is "empty" in the EIP-161 sense: zero
// nonce, zero balance, no code. Spec §4.3's "touched-and-empty" deletion
// rule relies on this.
func (a AccountInfo) IsEmpty() bool {
	return a.Nonce == 0 && (a.Balance == nil || a.Balance.Sign() == 0) &&
		(a.CodeHash == (common.Hash{}) || a.CodeHash == types.EmptyCodeHash)
}

// DbAccount is one account entry in a MemDB tier.
type DbAccount struct {
	Info    AccountInfo
	State   AccountState
	Storage map[common.Hash]common.Hash
}

func newDbAccount(info AccountInfo) *DbAccount {
	return &DbAccount{Info: info, State: AccountStateNone, Storage: make(map[common.Hash]common.Hash)}
}

// MemDB is a single in-memory state tier: accounts plus a block-hash cache,
// directly grounded on the original raiko MemDb (accounts + block_hashes).
type MemDB struct {
	Accounts    map[common.Address]*DbAccount
	BlockHashes map[uint64]common.Hash
}

// NewMemDB returns an empty tier.
func NewMemDB() *MemDB {
	return &MemDB{
		Accounts:    make(map[common.Address]*DbAccount),
		BlockHashes: make(map[uint64]common.Hash),
	}
}

// InsertAccountInfo records account info fetched from the provider. It
// errors if an entry already exists with conflicting info, since a witness
// tier must never silently overwrite a previously observed account with
// different data.
func (m *MemDB) InsertAccountInfo(addr common.Address, info AccountInfo) error {
	if existing, ok := m.Accounts[addr]; ok {
		if !accountInfoEqual(existing.Info, info) {
			return fmt.Errorf("statedb: account info mismatch for %s", addr)
		}
		return nil
	}
	m.Accounts[addr] = newDbAccount(info)
	return nil
}

// InsertAccountStorage records one storage slot fetched from the provider,
// creating the account entry if it does not yet exist.
func (m *MemDB) InsertAccountStorage(addr common.Address, slot, value common.Hash) error {
	acc, ok := m.Accounts[addr]
	if !ok {
		acc = newDbAccount(AccountInfo{})
		m.Accounts[addr] = acc
	}
	if existing, ok := acc.Storage[slot]; ok && existing != value {
		return fmt.Errorf("statedb: storage mismatch for %s slot %s", addr, slot)
	}
	acc.Storage[slot] = value
	return nil
}

// InsertBlockHash records one ancestor block hash.
func (m *MemDB) InsertBlockHash(number uint64, hash common.Hash) error {
	if existing, ok := m.BlockHashes[number]; ok && existing != hash {
		return fmt.Errorf("statedb: block hash mismatch at height %d", number)
	}
	m.BlockHashes[number] = hash
	return nil
}

// Basic returns the account info for addr, following the Deleted/None
// semantics described in spec §4.3: a deleted account reads as absent.
func (m *MemDB) Basic(addr common.Address) (AccountInfo, bool) {
	acc, ok := m.Accounts[addr]
	if !ok || acc.State == AccountStateDeleted {
		return AccountInfo{}, false
	}
	return acc.Info, true
}

// GetStorage returns the value at (addr, slot). A StorageCleared account
// with no recorded entry for slot reads as the zero value rather than a
// miss, per the original MemDb's "return zero rather than erroring" rule
// for cleared accounts.
func (m *MemDB) GetStorage(addr common.Address, slot common.Hash) (common.Hash, bool) {
	acc, ok := m.Accounts[addr]
	if !ok {
		return common.Hash{}, false
	}
	if v, ok := acc.Storage[slot]; ok {
		return v, true
	}
	if acc.State == AccountStateStorageCleared {
		return common.Hash{}, true
	}
	return common.Hash{}, false
}

// GetBlockHash returns the cached ancestor hash for number, if known.
func (m *MemDB) GetBlockHash(number uint64) (common.Hash, bool) {
	h, ok := m.BlockHashes[number]
	return h, ok
}

func accountInfoEqual(a, b AccountInfo) bool {
	if a.Nonce != b.Nonce || a.CodeHash != b.CodeHash {
		return false
	}
	if (a.Balance == nil) != (b.Balance == nil) {
		return a.Balance == nil && b.Balance == nil
	}
	if a.Balance != nil && a.Balance.Cmp(b.Balance) != 0 {
		return false
	}
	return true
}

// StorageWrite is one storage-slot write produced by EVM execution, carrying
// whether the slot's value actually changed from its pre-execution value —
// spec §4.3's commit only applies slots where Changed is true.
type StorageWrite struct {
	Value   common.Hash
	Changed bool
}

// AccountChange is the per-account diff produced by executing a block,
// mirroring revm's bundle-state account entry closely enough to drive the
// MemDB commit reconciliation of spec §4.3.
type AccountChange struct {
	SelfDestructed bool
	Created        bool
	Touched        bool
	Info           AccountInfo
	Storage        map[common.Hash]StorageWrite
}

// Commit reconciles a set of per-account EVM changes into m, implementing
// the algorithm of spec §4.3 verbatim:
//   - selfdestruct on an account m has never seen is a no-op;
//   - touched-and-empty accounts are deleted;
//   - newly created accounts have their storage marked StorageCleared;
//   - StorageCleared is sticky: a later commit that does not recreate the
//     account leaves it StorageCleared;
//   - only storage slots whose value changed are applied.
func (m *MemDB) Commit(changes map[common.Address]AccountChange) {
	for addr, change := range changes {
		existing, known := m.Accounts[addr]

		if change.SelfDestructed {
			if !known {
				continue
			}
			existing.State = AccountStateDeleted
			existing.Storage = make(map[common.Hash]common.Hash)
			continue
		}

		if !known {
			existing = newDbAccount(change.Info)
			m.Accounts[addr] = existing
		}

		existing.Info = change.Info

		if change.Touched && change.Info.IsEmpty() {
			existing.State = AccountStateDeleted
			existing.Storage = make(map[common.Hash]common.Hash)
			continue
		}

		switch {
		case change.Created:
			existing.State = AccountStateStorageCleared
			existing.Storage = make(map[common.Hash]common.Hash)
		case existing.State == AccountStateStorageCleared:
			// sticky: remains cleared unless this change recreated the
			// account (handled above).
		default:
			existing.State = AccountStateTouched
		}

		for slot, write := range change.Storage {
			if !write.Changed {
				continue
			}
			existing.Storage[slot] = write.Value
		}
	}
}
