package producer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/taikoxyz/raiko-sub001/pkg/proofrequest"
	"github.com/taikoxyz/raiko-sub001/pkg/witness"
)

// SealedKey is the enclave-sealed signing key bootstrapped on first run and
// reused on subsequent runs, per spec §4.5's "on first run a bootstrap
// generates an enclave-sealed keypair". The caller is responsible for
// persisting/loading it from the 0o600 key file described in spec §6; this
// package only consumes the already-loaded key.
type SealedKey struct {
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address
	Quote      []byte
}

// TEEProducer implements the SGX/Nitro backend shape: a 89-byte proof of
// instance_id(4) || new_pubkey_addr(20) || ecdsa_sig(65) over the instance
// hash, with the attestation blob carried in Quote. SGX and Nitro differ
// only in how the attestation quote is produced (an external collaborator,
// spec §1); the envelope and signing path are identical, so one type
// parameterized by InstanceID serves both, grounded on the teacher's
// sgx_producer.go state-machine shape.
type TEEProducer struct {
	proofType proofrequest.ProofType
	instance  uint32

	mu   sync.Mutex
	key  *SealedKey
	boot func(ctx context.Context) (*SealedKey, error)
}

// NewTEEProducer constructs a TEE producer for either SGX or Nitro. boot is
// invoked once, lazily, the first time a proof is requested with no sealed
// key loaded yet — it stands in for the external bootstrap call described
// in spec §6 (`{base}/bootstrap`).
func NewTEEProducer(proofType proofrequest.ProofType, instanceID uint32, boot func(ctx context.Context) (*SealedKey, error)) *TEEProducer {
	return &TEEProducer{proofType: proofType, instance: instanceID, boot: boot}
}

func (p *TEEProducer) ensureKey(ctx context.Context) (*SealedKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.key != nil {
		return p.key, nil
	}
	key, err := p.boot(ctx)
	if err != nil {
		return nil, fmt.Errorf("tee producer: bootstrap: %w: %w", ErrGuestFailure, err)
	}
	p.key = key
	return key, nil
}

func (p *TEEProducer) Run(
	ctx context.Context,
	_ proofrequest.Key,
	_ *witness.GuestInput,
	output *witness.GuestOutput,
	_ IDStore,
) (*witness.Proof, error) {
	key, err := p.ensureKey(ctx)
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(output.InstanceHash.Bytes(), key.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("tee producer: sign instance hash: %w: %w", ErrGuestFailure, err)
	}

	proofBytes := make([]byte, 0, 89)
	proofBytes = append(proofBytes, instanceIDBytes(p.instance)...)
	proofBytes = append(proofBytes, key.Address.Bytes()...)
	proofBytes = append(proofBytes, sig...)

	hash := output.InstanceHash
	return &witness.Proof{
		Proof: "0x" + common.Bytes2Hex(proofBytes),
		Quote: common.Bytes2Hex(key.Quote),
		Input: &hash,
	}, nil
}

// BatchRun signs the batch's folded instance hash with the same 89-byte
// envelope Run uses, per spec §4.5's batch_run.
func (p *TEEProducer) BatchRun(
	ctx context.Context,
	_ proofrequest.Key,
	_ []*witness.GuestInput,
	outputs []*witness.GuestOutput,
	_ IDStore,
) (*witness.Proof, error) {
	if len(outputs) == 0 {
		return nil, fmt.Errorf("tee producer: batch_run requires at least one block: %w", ErrInvalidRequest)
	}

	key, err := p.ensureKey(ctx)
	if err != nil {
		return nil, err
	}

	hash := batchInstanceHash(outputs)
	sig, err := crypto.Sign(hash.Bytes(), key.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("tee producer: sign batch instance hash: %w: %w", ErrGuestFailure, err)
	}

	proofBytes := make([]byte, 0, 89)
	proofBytes = append(proofBytes, instanceIDBytes(p.instance)...)
	proofBytes = append(proofBytes, key.Address.Bytes()...)
	proofBytes = append(proofBytes, sig...)

	return &witness.Proof{
		Proof: "0x" + common.Bytes2Hex(proofBytes),
		Quote: common.Bytes2Hex(key.Quote),
		Input: &hash,
	}, nil
}

// Cancel is a no-op for TEE backends: a single local proving step has no
// remote job to abort, matching the teacher's sgx_producer.go RequestCancel.
func (p *TEEProducer) Cancel(context.Context, proofrequest.Key, IDStore) error { return nil }

func (p *TEEProducer) ProofType() proofrequest.ProofType { return p.proofType }

func instanceIDBytes(id uint32) []byte {
	return []byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}
}

var _ ProofProducer = (*TEEProducer)(nil)
