package statedb

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BlockDataProvider is the block-data provider contract (C1): an abstract,
// batching collaborator over a remote full node, per spec §4.1.
type BlockDataProvider interface {
	// GetAccounts returns account info for each address, in the same
	// order, at the provider's implicit pinned block.
	GetAccounts(ctx context.Context, addrs []common.Address) ([]AccountInfo, error)
	// GetStorageValues returns one value per (address, slot) pair, in
	// order.
	GetStorageValues(ctx context.Context, keys []StorageKey) ([]common.Hash, error)
	// GetBlockHashes returns the hash of each requested block number, in
	// order.
	GetBlockHashes(ctx context.Context, numbers []uint64) ([]common.Hash, error)
	// GetMerkleProofs returns the eth_getProof-style account+storage proof
	// for every address in slots, pinned at blockNumber. offset and
	// totalExpected are advisory progress-reporting values only (spec
	// §4.1): a caller issuing several GetMerkleProofs calls that together
	// cover totalExpected leaves passes its running offset so an
	// implementation can log/report progress; they never change which
	// proofs are returned.
	GetMerkleProofs(ctx context.Context, blockNumber uint64, slots map[common.Address][]common.Hash, offset, totalExpected int) (map[common.Address]AccountProof, error)
}

// StorageKey identifies one (address, slot) pair for a batched storage
// fetch.
type StorageKey struct {
	Address common.Address
	Slot    common.Hash
}

// StorageProof is the merkle proof for one storage slot, mirroring
// eth_getProof's storageProof entries.
type StorageProof struct {
	Slot  common.Hash
	Value common.Hash
	Proof []string
}

// AccountProof is the merkle-proof pair for one address at one block,
// mirroring eth_getProof's response shape: an account proof plus one proof
// per requested storage slot, per spec §4.1's get_merkle_proofs.
type AccountProof struct {
	Address      common.Address
	Balance      *big.Int
	Nonce        uint64
	CodeHash     common.Hash
	StorageHash  common.Hash
	AccountProof []string
	StorageProof []StorageProof
}

// ProofSet is the result of GetProofs: the merkle proof pair bracketing one
// block's state transition, per spec §4.3's get_proofs.
type ProofSet struct {
	// PreProofs is pinned at the parent block (the state the transition
	// reads from).
	PreProofs map[common.Address]AccountProof
	// PostProofs is pinned at parent+1 (the state the transition produces).
	PostProofs map[common.Address]AccountProof
	// TotalSlots is the shared expected-total leaf count passed to both
	// underlying GetMerkleProofs calls.
	TotalSlots int
}

// ProviderDB is the three-tier layered database of spec §4.3: initial_db is
// the accumulating witness, staging_db holds speculative reads from a prior
// optimistic iteration, and current_db holds writes from the in-progress
// EVM execution.
type ProviderDB struct {
	provider    BlockDataProvider
	blockNumber uint64
	optimistic  bool

	initialDB *MemDB
	stagingDB *MemDB
	currentDB *MemDB

	pendingAccounts    map[common.Address]struct{}
	pendingSlots       map[StorageKey]struct{}
	pendingBlockHashes map[uint64]struct{}
}

// NewProviderDB constructs a ProviderDB pinned at parentBlockNumber (the
// parent of the block under preflight, per spec §4.2 step 2). When
// optimistic is true, misses synthesize placeholders instead of blocking;
// callers run FetchData between optimistic iterations to promote pending
// reads into stagingDB.
func NewProviderDB(provider BlockDataProvider, parentBlockNumber uint64, optimistic bool) *ProviderDB {
	return &ProviderDB{
		provider:           provider,
		blockNumber:        parentBlockNumber,
		optimistic:         optimistic,
		initialDB:          NewMemDB(),
		stagingDB:          NewMemDB(),
		currentDB:          NewMemDB(),
		pendingAccounts:    make(map[common.Address]struct{}),
		pendingSlots:       make(map[StorageKey]struct{}),
		pendingBlockHashes: make(map[uint64]struct{}),
	}
}

// SeedAncestorHashes seeds initial_db's block-hash cache with the 256
// preceding block hashes for a Taiko chain, per spec §4.2 step 2 and the
// BLOCKHASH-256 invariant of spec §3.
func (p *ProviderDB) SeedAncestorHashes(ctx context.Context) error {
	start := uint64(0)
	if p.blockNumber > 255 {
		start = p.blockNumber - 255
	}
	numbers := make([]uint64, 0, p.blockNumber-start+1)
	for n := start; n <= p.blockNumber; n++ {
		numbers = append(numbers, n)
	}
	hashes, err := p.provider.GetBlockHashes(ctx, numbers)
	if err != nil {
		return err
	}
	for i, n := range numbers {
		if err := p.initialDB.InsertBlockHash(n, hashes[i]); err != nil {
			return err
		}
	}
	return nil
}

// SetCurrentDB replaces current_db. FetchData does not call it; it resets
// current_db itself when an invalid optimistic run must discard its
// speculative writes.
func (p *ProviderDB) SetCurrentDB(db *MemDB) { p.currentDB = db }

// SetInitialDB replaces initial_db, used to seed a fresh eager-mode
// ProviderDB with the converged witness accumulated by a prior optimistic
// run (preflight's final eager pass, spec §4.2 step 6).
func (p *ProviderDB) SetInitialDB(db *MemDB) { p.initialDB = db }

// InitialTier exposes the committed witness tier, read-only by convention,
// for callers (the block builder's finalize step) that need to walk every
// touched account to recompute the state root.
func (p *ProviderDB) InitialTier() *MemDB { return p.initialDB }

// CurrentTier exposes the in-progress execution tier, read-only by
// convention, for the same reason as InitialTier.
func (p *ProviderDB) CurrentTier() *MemDB { return p.currentDB }

// IsValidRun reports whether every pending set is empty — i.e. nothing has
// been scheduled for remote fetch since the last FetchData, the "valid run"
// predicate of spec §4.3.
func (p *ProviderDB) IsValidRun() bool {
	return len(p.pendingAccounts) == 0 && len(p.pendingSlots) == 0 && len(p.pendingBlockHashes) == 0
}

// PendingCount reports the total number of outstanding reads, used by the
// preflight engine to detect convergence (spec §4.2 step 6 / P5): at each
// iteration the pending count must shrink or the algorithm fails.
func (p *ProviderDB) PendingCount() int {
	return len(p.pendingAccounts) + len(p.pendingSlots) + len(p.pendingBlockHashes)
}

// Basic implements the read-order of spec §4.3: current_db -> initial_db ->
// staging_db (promoting into initial_db when the run is valid) -> pending
// (optimistic) or remote fetch (eager).
func (p *ProviderDB) Basic(ctx context.Context, addr common.Address) (AccountInfo, error) {
	if info, ok := p.currentDB.Basic(addr); ok {
		return info, nil
	}
	if info, ok := p.initialDB.Basic(addr); ok {
		return info, nil
	}
	if info, ok := p.stagingDB.Basic(addr); ok {
		if p.IsValidRun() {
			_ = p.initialDB.InsertAccountInfo(addr, info)
		}
		return info, nil
	}
	if p.optimistic {
		p.pendingAccounts[addr] = struct{}{}
		return placeholderAccountInfo(), nil
	}
	infos, err := p.provider.GetAccounts(ctx, []common.Address{addr})
	if err != nil {
		return AccountInfo{}, err
	}
	if err := p.initialDB.InsertAccountInfo(addr, infos[0]); err != nil {
		return AccountInfo{}, err
	}
	return infos[0], nil
}

// GetStorage implements the same three-tier read order as Basic, for a
// single storage slot.
func (p *ProviderDB) GetStorage(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	key := StorageKey{Address: addr, Slot: slot}

	if v, ok := p.currentDB.GetStorage(addr, slot); ok {
		return v, nil
	}
	if v, ok := p.initialDB.GetStorage(addr, slot); ok {
		return v, nil
	}
	if v, ok := p.stagingDB.GetStorage(addr, slot); ok {
		if p.IsValidRun() {
			_ = p.initialDB.InsertAccountStorage(addr, slot, v)
		}
		return v, nil
	}
	if p.optimistic {
		p.pendingSlots[key] = struct{}{}
		return common.Hash{}, nil
	}
	values, err := p.provider.GetStorageValues(ctx, []StorageKey{key})
	if err != nil {
		return common.Hash{}, err
	}
	if err := p.initialDB.InsertAccountStorage(addr, slot, values[0]); err != nil {
		return common.Hash{}, err
	}
	return values[0], nil
}

// GetBlockHash implements the same three-tier read order for ancestor block
// hashes, feeding the BLOCKHASH opcode.
func (p *ProviderDB) GetBlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	if h, ok := p.currentDB.GetBlockHash(number); ok {
		return h, nil
	}
	if h, ok := p.initialDB.GetBlockHash(number); ok {
		return h, nil
	}
	if h, ok := p.stagingDB.GetBlockHash(number); ok {
		if p.IsValidRun() {
			_ = p.initialDB.InsertBlockHash(number, h)
		}
		return h, nil
	}
	if p.optimistic {
		p.pendingBlockHashes[number] = struct{}{}
		return common.Hash{}, nil
	}
	hashes, err := p.provider.GetBlockHashes(ctx, []uint64{number})
	if err != nil {
		return common.Hash{}, err
	}
	if err := p.initialDB.InsertBlockHash(number, hashes[0]); err != nil {
		return common.Hash{}, err
	}
	return hashes[0], nil
}

// GetProofs implements spec §4.3's get_proofs: pre-proofs pinned at
// p.blockNumber (the parent, i.e. the state the in-progress block reads
// from) and post-proofs pinned at p.blockNumber+1 (the state it produces),
// over the union of every address/slot touched across initial_db and
// current_db. Both eth_getProof-style calls share one expected-total leaf
// counter so the provider can report progress consistently across the pair.
func (p *ProviderDB) GetProofs(ctx context.Context) (ProofSet, error) {
	slots := touchedSlots(p.initialDB, p.currentDB)

	total := 0
	for _, s := range slots {
		total += 1 + len(s)
	}

	pre, err := p.provider.GetMerkleProofs(ctx, p.blockNumber, slots, 0, total)
	if err != nil {
		return ProofSet{}, fmt.Errorf("statedb: get pre-proofs: %w", err)
	}
	post, err := p.provider.GetMerkleProofs(ctx, p.blockNumber+1, slots, total, total)
	if err != nil {
		return ProofSet{}, fmt.Errorf("statedb: get post-proofs: %w", err)
	}

	return ProofSet{PreProofs: pre, PostProofs: post, TotalSlots: total}, nil
}

// touchedSlots unions the storage slots recorded against each address
// across tiers, the "union of slot sets ... computed across initial_db and
// current_db per address" wording of spec §4.3.
func touchedSlots(tiers ...*MemDB) map[common.Address][]common.Hash {
	union := make(map[common.Address]map[common.Hash]struct{})
	for _, tier := range tiers {
		for addr, acc := range tier.Accounts {
			set, ok := union[addr]
			if !ok {
				set = make(map[common.Hash]struct{})
				union[addr] = set
			}
			for slot := range acc.Storage {
				set[slot] = struct{}{}
			}
		}
	}

	out := make(map[common.Address][]common.Hash, len(union))
	for addr, set := range union {
		slots := make([]common.Hash, 0, len(set))
		for slot := range set {
			slots = append(slots, slot)
		}
		out[addr] = slots
	}
	return out
}

// GetAncestorHeaders implements spec §4.3's get_ancestor_headers: it walks
// from the earliest ancestor number touched so far (either by
// SeedAncestorHashes's 256-block window or by a BLOCKHASH read outside that
// window) up to the current block number, fetching and caching in
// initial_db any hash the walk finds missing. This guarantees the
// BLOCKHASH-256 verification of spec §3/§4.4 sees a gap-free ancestor chain
// by the time the final witness is built, rather than only the numbers an
// optimistic iteration happened to read.
func (p *ProviderDB) GetAncestorHeaders(ctx context.Context) error {
	earliest := uint64(0)
	if p.blockNumber > 255 {
		earliest = p.blockNumber - 255
	}
	for n := range p.initialDB.BlockHashes {
		if n < earliest {
			earliest = n
		}
	}

	var missing []uint64
	for n := earliest; n <= p.blockNumber; n++ {
		if _, ok := p.initialDB.GetBlockHash(n); !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	hashes, err := p.provider.GetBlockHashes(ctx, missing)
	if err != nil {
		return fmt.Errorf("statedb: get ancestor headers: %w", err)
	}
	for i, n := range missing {
		if err := p.initialDB.InsertBlockHash(n, hashes[i]); err != nil {
			return fmt.Errorf("statedb: get ancestor headers: %w", err)
		}
	}
	return nil
}

// Commit delegates straight to current_db, per spec §4.3.
func (p *ProviderDB) Commit(changes map[common.Address]AccountChange) {
	p.currentDB.Commit(changes)
}

// FetchData batch-fetches every pending set through the provider, installs
// the results in staging_db, and reports whether the run that scheduled
// these pending reads was valid. An invalid run means the offending reads
// happened after the worker had already started writing (current_db is
// non-empty with no prior flush), so current_db is discarded: its
// speculative writes cannot be trusted to replay correctly against the
// now-refined witness. This is the Go analogue of
// OptimisticDatabase::fetch_data in the original raiko builder.
func (p *ProviderDB) FetchData(ctx context.Context) (bool, error) {
	validRun := p.IsValidRun() || len(p.currentDB.Accounts) == 0

	if len(p.pendingAccounts) > 0 {
		addrs := make([]common.Address, 0, len(p.pendingAccounts))
		for a := range p.pendingAccounts {
			addrs = append(addrs, a)
		}
		infos, err := p.provider.GetAccounts(ctx, addrs)
		if err != nil {
			return false, err
		}
		for i, a := range addrs {
			if err := p.stagingDB.InsertAccountInfo(a, infos[i]); err != nil {
				return false, err
			}
		}
	}

	if len(p.pendingSlots) > 0 {
		keys := make([]StorageKey, 0, len(p.pendingSlots))
		for k := range p.pendingSlots {
			keys = append(keys, k)
		}
		values, err := p.provider.GetStorageValues(ctx, keys)
		if err != nil {
			return false, err
		}
		for i, k := range keys {
			if err := p.stagingDB.InsertAccountStorage(k.Address, k.Slot, values[i]); err != nil {
				return false, err
			}
		}
	}

	if len(p.pendingBlockHashes) > 0 {
		numbers := make([]uint64, 0, len(p.pendingBlockHashes))
		for n := range p.pendingBlockHashes {
			numbers = append(numbers, n)
		}
		hashes, err := p.provider.GetBlockHashes(ctx, numbers)
		if err != nil {
			return false, err
		}
		for i, n := range numbers {
			if err := p.stagingDB.InsertBlockHash(n, hashes[i]); err != nil {
				return false, err
			}
		}
	}

	p.pendingAccounts = make(map[common.Address]struct{})
	p.pendingSlots = make(map[StorageKey]struct{})
	p.pendingBlockHashes = make(map[uint64]struct{})

	if !validRun {
		p.currentDB = NewMemDB()
	}

	return validRun, nil
}

// placeholderAccountInfo synthesizes the optimistic-miss placeholder of
// spec §4.3: max-nonce, empty code, zero balance. Using the maximum nonce
// rather than zero ensures a speculative nonce check inside the EVM (e.g.
// comparing tx.nonce against the sender's nonce) cannot spuriously pass
// against a placeholder that was never actually fetched.
func placeholderAccountInfo() AccountInfo {
	return AccountInfo{Balance: new(big.Int), Nonce: ^uint64(0), CodeHash: common.Hash{}}
}
