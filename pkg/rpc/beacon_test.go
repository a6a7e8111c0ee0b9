package rpc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionedHashMatchesFormula(t *testing.T) {
	commitment := []byte("fake-kzg-commitment")
	sum := sha256.Sum256(commitment)

	got := versionedHash(commitment)
	require.Equal(t, byte(0x01), got[0])
	require.Equal(t, sum[1:], got[1:])
}

func TestFetchBySlotFindsMatchingSidecar(t *testing.T) {
	blob := []byte("blob-bytes")
	commitment := []byte("commitment-bytes")
	want := versionedHash(commitment)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"data":[{"blob":"0x%s","kzg_commitment":"0x%s","versioned_hash":"0x%x"}]}`,
			hex.EncodeToString(blob), hex.EncodeToString(commitment), want)
	}))
	defer srv.Close()

	c := NewBlobClient(&BeaconConfig{BeaconEndpoint: srv.URL})
	gotBlob, gotCommitment, err := c.FetchBySlot(42, want)
	require.NoError(t, err)
	require.Equal(t, blob, gotBlob)
	require.Equal(t, commitment, gotCommitment)
}

func TestFetchBySlotFallsBackToBlobscan(t *testing.T) {
	blob := []byte("blob-bytes")
	commitment := []byte("commitment-bytes")
	want := versionedHash(commitment)

	beacon := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"data":[]}`)
	}))
	defer beacon.Close()

	blobscan := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"commitment":"0x%s","data":"0x%s"}`, hex.EncodeToString(commitment), hex.EncodeToString(blob))
	}))
	defer blobscan.Close()

	c := NewBlobClient(&BeaconConfig{BeaconEndpoint: beacon.URL, BlobscanEndpoint: blobscan.URL})
	gotBlob, gotCommitment, err := c.FetchBySlot(42, want)
	require.NoError(t, err)
	require.Equal(t, blob, gotBlob)
	require.Equal(t, commitment, gotCommitment)
}

func TestFetchFromBlobscanRejectsCommitmentMismatch(t *testing.T) {
	commitment := []byte("commitment-bytes")
	wrongWant := versionedHash([]byte("other-commitment"))

	blobscan := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"commitment":"0x%s","data":"0x%s"}`, hex.EncodeToString(commitment), hex.EncodeToString([]byte("blob")))
	}))
	defer blobscan.Close()

	c := NewBlobClient(&BeaconConfig{BlobscanEndpoint: blobscan.URL})
	_, _, err := c.FetchBySlot(1, wrongWant)
	require.Error(t, err)
}
