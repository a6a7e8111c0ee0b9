package proofrequest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReduceWorstCase(t *testing.T) {
	statuses := []TaskStatus{StatusSuccess, StatusWorkInProgress, StatusProofFailureGeneric, StatusRegistered}
	require.Equal(t, StatusProofFailureGeneric, Reduce(statuses))
}

func TestReduceSingleton(t *testing.T) {
	require.Equal(t, StatusSuccess, Reduce([]TaskStatus{StatusSuccess}))
}

func TestIsTerminal(t *testing.T) {
	require.True(t, StatusSuccess.IsTerminal())
	require.True(t, StatusCancelledAborted.IsTerminal())
	require.True(t, StatusUnspecifiedFailureReason.IsTerminal())
	require.False(t, StatusRegistered.IsTerminal())
	require.False(t, StatusWorkInProgress.IsTerminal())
	require.False(t, StatusSystemPaused.IsTerminal())
}

func TestIsCancellation(t *testing.T) {
	require.True(t, StatusCancelled.IsCancellation())
	require.True(t, StatusCancelledNeverStarted.IsCancellation())
	require.False(t, StatusProofFailureGeneric.IsCancellation())
}

func TestAppendIfChangedIdempotent(t *testing.T) {
	var chain StatusRecords
	chain, _, appended := chain.AppendIfChanged(StatusRecord{Status: StatusRegistered, Timestamp: time.Now()})
	require.True(t, appended)

	chain, prior, appended := chain.AppendIfChanged(StatusRecord{Status: StatusRegistered, Timestamp: time.Now()})
	require.False(t, appended)
	require.Equal(t, StatusRegistered, prior)
	require.Len(t, chain, 1)

	chain, prior, appended = chain.AppendIfChanged(StatusRecord{Status: StatusWorkInProgress, Timestamp: time.Now()})
	require.True(t, appended)
	require.Equal(t, StatusRegistered, prior)
	require.Len(t, chain, 2)
}

func TestParseProofTypeCaseInsensitive(t *testing.T) {
	pt, err := ParseProofType("SGX")
	require.NoError(t, err)
	require.Equal(t, ProofTypeSgx, pt)

	_, err = ParseProofType("not-a-backend")
	require.ErrorIs(t, err, ErrInvalidProofType)
}

func TestProofRequestOptValidateMissingFields(t *testing.T) {
	opt := ProofRequestOpt{}
	_, err := opt.Validate()
	require.Error(t, err)
}

func TestProofRequestOptMergeAndValidate(t *testing.T) {
	blockNumber := uint64(101368)
	network := "taiko_a7"
	l1Network := "holesky"
	prover := "0x0000000000000000000000000000000000000000"
	proofType := "native"

	defaults := ProofRequestOpt{Network: &network, L1Network: &l1Network}
	override := ProofRequestOpt{BlockNumber: &blockNumber, Prover: &prover, ProofType: &proofType}

	merged := defaults.Merge(override)
	req, err := merged.Validate()
	require.NoError(t, err)
	require.Equal(t, blockNumber, req.BlockNumber)
	require.Equal(t, ProofTypeNative, req.ProofType)
}
