package producer

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/taikoxyz/raiko-sub001/pkg/proofrequest"
	"github.com/taikoxyz/raiko-sub001/pkg/witness"
)

func testKey() proofrequest.Key {
	return proofrequest.NewKey(1, 101368, common.HexToHash("0xabc"), proofrequest.ProofTypeNative, common.HexToAddress("0x1"))
}

func testOutput() *witness.GuestOutput {
	return &witness.GuestOutput{InstanceHash: common.HexToHash("0xdeadbeef")}
}

func TestNativeProducerRun(t *testing.T) {
	p := NativeProducer{}
	proof, err := p.Run(context.Background(), testKey(), &witness.GuestInput{}, testOutput(), nil)
	require.NoError(t, err)
	require.True(t, proof.IsEmpty())
	require.Equal(t, common.HexToHash("0xdeadbeef"), *proof.Input)
	require.Equal(t, proofrequest.ProofTypeNative, p.ProofType())
}

func TestTEEProducerRunProducesSignedProof(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(priv.PublicKey)

	p := NewTEEProducer(proofrequest.ProofTypeSgx, 1, func(context.Context) (*SealedKey, error) {
		return &SealedKey{PrivateKey: priv, Address: addr, Quote: []byte("quote")}, nil
	})

	proof, err := p.Run(context.Background(), testKey(), &witness.GuestInput{}, testOutput(), nil)
	require.NoError(t, err)
	require.False(t, proof.IsEmpty())
	require.Equal(t, common.Bytes2Hex([]byte("quote")), proof.Quote)

	proofBytes := common.Hex2Bytes(proof.Proof[2:])
	require.Len(t, proofBytes, 89)
	require.Equal(t, addr.Bytes(), proofBytes[4:24])

	// the second run must reuse the bootstrapped key, not re-bootstrap.
	proof2, err := p.Run(context.Background(), testKey(), &witness.GuestInput{}, testOutput(), nil)
	require.NoError(t, err)
	require.Equal(t, proof.Proof, proof2.Proof)
}

type fakeZKProver struct {
	proof    []byte
	uuid     string
	verifyOK bool
}

func (f *fakeZKProver) Prove(context.Context, []byte) ([]byte, string, error) {
	return f.proof, f.uuid, nil
}

func (f *fakeZKProver) Verify(context.Context, []byte, []byte) (bool, error) {
	return f.verifyOK, nil
}

func TestZKProducerRunVerifies(t *testing.T) {
	prover := &fakeZKProver{proof: []byte{0x01, 0x02}, uuid: "run-1", verifyOK: true}
	p := NewZKProducer(proofrequest.ProofTypeSp1, prover, true)

	proof, err := p.Run(context.Background(), testKey(), &witness.GuestInput{}, testOutput(), nil)
	require.NoError(t, err)
	require.Equal(t, "0x0102", proof.Proof)
	require.Equal(t, "run-1", proof.UUID)
}

func TestZKProducerRunFailsVerification(t *testing.T) {
	prover := &fakeZKProver{proof: []byte{0x01}, verifyOK: false}
	p := NewZKProducer(proofrequest.ProofTypeRisc0, prover, true)

	_, err := p.Run(context.Background(), testKey(), &witness.GuestInput{}, testOutput(), nil)
	require.Error(t, err)
}

type fakeIDStore struct {
	ids map[proofrequest.Key]string
}

func newFakeIDStore() *fakeIDStore { return &fakeIDStore{ids: make(map[proofrequest.Key]string)} }

func (f *fakeIDStore) StoreID(_ context.Context, key proofrequest.Key, id string) error {
	f.ids[key] = id
	return nil
}

func (f *fakeIDStore) ReadID(_ context.Context, key proofrequest.Key) (string, bool, error) {
	id, ok := f.ids[key]
	return id, ok, nil
}

func (f *fakeIDStore) RemoveID(_ context.Context, key proofrequest.Key) error {
	delete(f.ids, key)
	return nil
}

type fakeMarket struct {
	polls int
}

func (m *fakeMarket) Submit(context.Context, []byte) (string, error) {
	return "market-order-1", nil
}

func (m *fakeMarket) PollStatus(context.Context, string) ([]byte, bool, error) {
	m.polls++
	if m.polls < 2 {
		return nil, false, nil
	}
	return []byte{0xaa}, true, nil
}

func (m *fakeMarket) Cancel(context.Context, string) error { return nil }

func TestBoundlessProducerRunPollsToCompletion(t *testing.T) {
	market := &fakeMarket{}
	p := NewBoundlessProducer(market, time.Millisecond)
	idStore := newFakeIDStore()

	proof, err := p.Run(context.Background(), testKey(), &witness.GuestInput{}, testOutput(), idStore)
	require.NoError(t, err)
	require.Equal(t, "0xaa", proof.Proof)
	require.Equal(t, "market-order-1", proof.UUID)

	_, ok, _ := idStore.ReadID(context.Background(), testKey())
	require.False(t, ok, "market id must be removed once the order completes")
}

func TestBoundlessProducerCancel(t *testing.T) {
	market := &fakeMarket{}
	p := NewBoundlessProducer(market, time.Millisecond)
	idStore := newFakeIDStore()
	require.NoError(t, idStore.StoreID(context.Background(), testKey(), "market-order-2"))

	require.NoError(t, p.Cancel(context.Background(), testKey(), idStore))
	_, ok, _ := idStore.ReadID(context.Background(), testKey())
	require.False(t, ok)
}
