package pool

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/taikoxyz/raiko-sub001/pkg/proofrequest"
)

func testKey() proofrequest.Key {
	return proofrequest.NewKey(1, 101368, common.HexToHash("0xabc"), proofrequest.ProofTypeNative, common.HexToAddress("0x1"))
}

// TestEnqueueIdempotent is property P1: enqueue(k); enqueue(k); produces
// exactly one record chain with latest status Registered.
func TestEnqueueIdempotent(t *testing.T) {
	p := NewMemoryPool()
	ctx := context.Background()
	key := testKey()

	require.NoError(t, p.Enqueue(ctx, key, Entity{}, proofrequest.StatusRegistered))
	require.NoError(t, p.Enqueue(ctx, key, Entity{}, proofrequest.StatusRegistered))

	history, err := p.GetStatusHistory(ctx, key)
	require.NoError(t, err)
	require.Len(t, history, 1)

	rec, ok, err := p.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, proofrequest.StatusRegistered, rec.Status)
}

// TestUpdateStatusMonotonicity is property P2: updating to the same status
// twice does not append a second record.
func TestUpdateStatusMonotonicity(t *testing.T) {
	p := NewMemoryPool()
	ctx := context.Background()
	key := testKey()

	require.NoError(t, p.Enqueue(ctx, key, Entity{}, proofrequest.StatusRegistered))

	prior, err := p.UpdateStatus(ctx, key, proofrequest.StatusWorkInProgress, "")
	require.NoError(t, err)
	require.Equal(t, proofrequest.StatusRegistered, prior)

	prior, err = p.UpdateStatus(ctx, key, proofrequest.StatusWorkInProgress, "")
	require.NoError(t, err)
	require.Equal(t, proofrequest.StatusWorkInProgress, prior)

	history, err := p.GetStatusHistory(ctx, key)
	require.NoError(t, err)
	require.Len(t, history, 2)
}

func TestUpdateStatusUnknownKey(t *testing.T) {
	p := NewMemoryPool()
	_, err := p.UpdateStatus(context.Background(), testKey(), proofrequest.StatusSuccess, "0x1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreReadRemoveID(t *testing.T) {
	p := NewMemoryPool()
	ctx := context.Background()
	key := testKey()
	require.NoError(t, p.Enqueue(ctx, key, Entity{}, proofrequest.StatusRegistered))

	_, ok, err := p.ReadID(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, p.StoreID(ctx, key, "remote-handle-123"))
	id, ok, err := p.ReadID(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "remote-handle-123", id)

	require.NoError(t, p.RemoveID(ctx, key))
	_, ok, err = p.ReadID(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRemoveAndList(t *testing.T) {
	p := NewMemoryPool()
	ctx := context.Background()
	key := testKey()
	require.NoError(t, p.Enqueue(ctx, key, Entity{}, proofrequest.StatusRegistered))

	all, err := p.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	n, err := p.Remove(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = p.Remove(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
