package pool

import (
	"context"
	"sync"
	"time"

	"github.com/taikoxyz/raiko-sub001/pkg/proofrequest"
)

type memoryRecord struct {
	entity  Entity
	history proofrequest.StatusRecords
	id      string
	hasID   bool
}

// MemoryPool is the single-node Pool backend: a mutex-guarded map retained
// forever (pruning is explicit, per spec §3's lifecycle note). Grounded on
// the original raiko in-memory task manager's map-of-chains shape.
type MemoryPool struct {
	mu      sync.Mutex
	records map[proofrequest.Key]*memoryRecord
	now     func() time.Time
}

// NewMemoryPool constructs an empty MemoryPool.
func NewMemoryPool() *MemoryPool {
	return &MemoryPool{
		records: make(map[proofrequest.Key]*memoryRecord),
		now:     time.Now,
	}
}

func (p *MemoryPool) Enqueue(_ context.Context, key proofrequest.Key, entity Entity, initialStatus proofrequest.TaskStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.records[key]; exists {
		return nil
	}
	p.records[key] = &memoryRecord{
		entity:  entity,
		history: proofrequest.StatusRecords{{Status: initialStatus, Timestamp: p.now()}},
	}
	return nil
}

func (p *MemoryPool) Get(_ context.Context, key proofrequest.Key) (Record, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[key]
	if !ok {
		return Record{}, false, nil
	}
	latest, _ := rec.history.Latest()
	return Record{Entity: rec.entity, Status: latest.Status}, true, nil
}

func (p *MemoryPool) UpdateStatus(
	_ context.Context,
	key proofrequest.Key,
	newStatus proofrequest.TaskStatus,
	proofHex string,
) (proofrequest.TaskStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[key]
	if !ok {
		return proofrequest.ZeroStatus, ErrNotFound
	}

	updated, prior, _ := rec.history.AppendIfChanged(proofrequest.StatusRecord{
		Status:    newStatus,
		ProofHex:  proofHex,
		Timestamp: p.now(),
	})
	rec.history = updated
	return prior, nil
}

func (p *MemoryPool) GetStatusHistory(_ context.Context, key proofrequest.Key) (proofrequest.StatusRecords, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make(proofrequest.StatusRecords, len(rec.history))
	copy(out, rec.history)
	return out, nil
}

func (p *MemoryPool) Remove(_ context.Context, key proofrequest.Key) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.records[key]; !ok {
		return 0, nil
	}
	delete(p.records, key)
	return 1, nil
}

func (p *MemoryPool) List(_ context.Context) (map[proofrequest.Key]Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[proofrequest.Key]Record, len(p.records))
	for key, rec := range p.records {
		latest, _ := rec.history.Latest()
		out[key] = Record{Entity: rec.entity, Status: latest.Status}
	}
	return out, nil
}

func (p *MemoryPool) StoreID(_ context.Context, key proofrequest.Key, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[key]
	if !ok {
		return ErrNotFound
	}
	rec.id, rec.hasID = id, true
	return nil
}

func (p *MemoryPool) ReadID(_ context.Context, key proofrequest.Key) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[key]
	if !ok {
		return "", false, nil
	}
	return rec.id, rec.hasID, nil
}

func (p *MemoryPool) RemoveID(_ context.Context, key proofrequest.Key) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[key]
	if !ok {
		return ErrNotFound
	}
	rec.id, rec.hasID = "", false
	return nil
}

// Close is a no-op: MemoryPool holds no external connection.
func (p *MemoryPool) Close() error { return nil }

var _ Pool = (*MemoryPool)(nil)
