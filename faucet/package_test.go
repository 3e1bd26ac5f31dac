package faucet

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"vocwallet/crypto"
)

const (
	vectorKey = "91f86dd7a9ac258c4908ca8fbdd3157f84d1f74ffffcb9fa428fba14a1d40150"
	// Signature produced by the Go reference node for (1, vectorRecipient, 10).
	vectorSignature = "f0584eb5aa4125a7ffd770d0112eefaca641fbe2367d0034651cfb3b800126403752a1e725b1a6d9237d2babee9c3a1b8e767f2f9d519ef848d68ddbbc59010201"
)

type failingSigner struct{ err error }

func (f failingSigner) SignMessage([]byte) ([]byte, error) {
	return nil, f.err
}

func (failingSigner) Address() common.Address {
	return common.Address{}
}

func vectorHolder(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.PrivateKeyFromHex(vectorKey)
	require.NoError(t, err)
	return key
}

func TestSignMatchesReferenceSignature(t *testing.T) {
	holder := vectorHolder(t)
	pkg, err := Sign(holder, 1, common.HexToAddress(vectorRecipient).Bytes(), 10)
	require.NoError(t, err)
	require.Equal(t, vectorSignature, hex.EncodeToString(pkg.Signature))
	require.Equal(t, "08011214f7fb77ee1f309d9468fb6dcb71add0f934a33c6b180a", hex.EncodeToString(pkg.PayloadBytes()))
}

func TestReferenceSignatureVerifies(t *testing.T) {
	holder := vectorHolder(t)
	payload, err := NewPayload(1, common.HexToAddress(vectorRecipient).Bytes(), 10)
	require.NoError(t, err)

	pkg := &Package{Payload: payload, Signature: mustHex(t, vectorSignature)}
	require.NoError(t, pkg.Verify(holder.Address()))
}

func TestSignRecoversHolderAddress(t *testing.T) {
	holder, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	recipient, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	pkg, err := Sign(holder, 42, recipient.Address().Bytes(), 500)
	require.NoError(t, err)
	require.Len(t, pkg.Signature, crypto.SignatureLength)

	signer, err := pkg.Signer()
	require.NoError(t, err)
	require.Equal(t, holder.Address(), signer)
	require.NoError(t, pkg.Verify(holder.Address()))
	require.ErrorIs(t, pkg.Verify(recipient.Address()), ErrInvalidSignature)
}

func TestTamperedPayloadFailsVerification(t *testing.T) {
	holder := vectorHolder(t)
	pkg, err := Sign(holder, 1, common.HexToAddress(vectorRecipient).Bytes(), 10)
	require.NoError(t, err)

	forged := &Package{Payload: pkg.Payload, Signature: pkg.Signature}
	forged.Payload.Amount = 1_000
	require.ErrorIs(t, forged.Verify(holder.Address()), ErrInvalidSignature)
}

func TestSignPropagatesErrors(t *testing.T) {
	cause := errors.New("hsm offline")
	_, err := Sign(failingSigner{err: cause}, 1, common.HexToAddress(vectorRecipient).Bytes(), 10)
	require.ErrorIs(t, err, ErrSigning)
	require.ErrorIs(t, err, cause)

	_, err = Sign(vectorHolder(t), 1, []byte{0x01}, 10)
	require.ErrorIs(t, err, ErrInvalidAddress)
	require.NotErrorIs(t, err, ErrSigning)

	_, err = Sign(nil, 1, common.HexToAddress(vectorRecipient).Bytes(), 10)
	require.ErrorIs(t, err, ErrSigning)
}

func TestPackageJSONRoundTrip(t *testing.T) {
	holder := vectorHolder(t)
	pkg, err := Sign(holder, 9, common.HexToAddress(vectorRecipient).Bytes(), 77)
	require.NoError(t, err)

	data, err := json.Marshal(pkg)
	require.NoError(t, err)

	var decoded Package
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, pkg.Payload, decoded.Payload)
	require.Equal(t, pkg.Signature, decoded.Signature)
	require.NoError(t, decoded.Verify(holder.Address()))
}

func TestPackageVerifiesAgainstReceivedBytes(t *testing.T) {
	holder := vectorHolder(t)
	raw := append(mustHex(t, "08011214f7fb77ee1f309d9468fb6dcb71add0f934a33c6b180a"), 0x20, 0x05)
	sig, err := holder.SignMessage(raw)
	require.NoError(t, err)

	data, err := json.Marshal(map[string]string{
		"faucetPayload": "0x" + hex.EncodeToString(raw),
		"signature":     "0x" + hex.EncodeToString(sig),
	})
	require.NoError(t, err)

	var pkg Package
	require.NoError(t, json.Unmarshal(data, &pkg))
	require.Equal(t, uint64(10), pkg.Payload.Amount)
	require.NoError(t, pkg.Verify(holder.Address()))

	// Re-encoding drops the unknown field and no longer matches the signature.
	reencoded := &Package{Payload: pkg.Payload, Signature: pkg.Signature}
	require.ErrorIs(t, reencoded.Verify(holder.Address()), ErrInvalidSignature)
}

func TestPackageUnmarshalRejectsMalformedPayload(t *testing.T) {
	var pkg Package
	err := json.Unmarshal([]byte(`{"faucetPayload":"0x0801","signature":"0x00"}`), &pkg)
	require.ErrorIs(t, err, ErrDecode)
}

func TestEditedPayloadNoLongerVerifies(t *testing.T) {
	holder := vectorHolder(t)
	pkg, err := Sign(holder, 1, common.HexToAddress(vectorRecipient).Bytes(), 10)
	require.NoError(t, err)
	require.NoError(t, pkg.Verify(holder.Address()))

	pkg.Payload.Amount = 999
	decoded, err := Decode(pkg.PayloadBytes())
	require.NoError(t, err)
	require.Equal(t, uint64(999), decoded.Amount)
	require.ErrorIs(t, pkg.Verify(holder.Address()), ErrInvalidSignature)

	data, err := json.Marshal(pkg)
	require.NoError(t, err)
	var received Package
	require.NoError(t, json.Unmarshal(data, &received))
	require.Equal(t, uint64(999), received.Payload.Amount)
	require.ErrorIs(t, received.Verify(holder.Address()), ErrInvalidSignature)

	pkg.Payload.Amount = 10
	require.NoError(t, pkg.Verify(holder.Address()))
}
