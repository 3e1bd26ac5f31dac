package crypto

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignMessageRecoversSigner(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	msg := []byte("set account info")
	sig, err := key.SignMessage(msg)
	require.NoError(t, err)
	require.Len(t, sig, SignatureLength)
	require.LessOrEqual(t, sig[64], byte(1))

	addr, err := RecoverMessageSigner(msg, sig)
	require.NoError(t, err)
	require.Equal(t, key.Address(), addr)

	// ethers.js style recovery ids must recover the same address.
	legacy := append([]byte(nil), sig...)
	legacy[64] += 27
	addr, err = RecoverMessageSigner(msg, legacy)
	require.NoError(t, err)
	require.Equal(t, key.Address(), addr)
}

func TestRecoverMessageSignerRejectsMalformed(t *testing.T) {
	_, err := RecoverMessageSigner([]byte("x"), make([]byte, 10))
	require.ErrorIs(t, err, ErrInvalidSignature)

	sig := make([]byte, SignatureLength)
	sig[64] = 9
	_, err = RecoverMessageSigner([]byte("x"), sig)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestSignMessageWithoutKey(t *testing.T) {
	var key *PrivateKey
	_, err := key.SignMessage([]byte("x"))
	require.ErrorIs(t, err, ErrNoPrivateKey)
}

func TestAddressHelpers(t *testing.T) {
	addr, err := ParseAddress("0xf7FB77ee1F309D9468fB6DCB71aDD0f934a33c6B")
	require.NoError(t, err)

	round, err := AddressFromBytes(addr.Bytes())
	require.NoError(t, err)
	require.Equal(t, addr, round)

	_, err = AddressFromBytes(addr.Bytes()[:19])
	require.ErrorIs(t, err, ErrInvalidAddress)

	_, err = ParseAddress("nhb1notahexaddress")
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := PrivateKeyFromHex("0x91f86dd7a9ac258c4908ca8fbdd3157f84d1f74ffffcb9fa428fba14a1d40150")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys", "holder.json")
	require.NoError(t, SaveToKeystore(path, key, "secret"))

	loaded, err := LoadFromKeystore(path, "secret")
	require.NoError(t, err)
	require.Equal(t, key.Bytes(), loaded.Bytes())

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}

func TestKeystoreRefusesOverwrite(t *testing.T) {
	first, err := GeneratePrivateKey()
	require.NoError(t, err)
	second, err := GeneratePrivateKey()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "wallet.keystore")
	require.NoError(t, SaveToKeystore(path, first, "secret"))
	require.ErrorIs(t, SaveToKeystore(path, second, "secret"), ErrKeystoreExists)

	loaded, err := LoadFromKeystore(path, "secret")
	require.NoError(t, err)
	require.Equal(t, first.Address(), loaded.Address())

	require.NoError(t, SaveToKeystore(path, second, "secret", WithOverwrite(true)))
	loaded, err = LoadFromKeystore(path, "secret")
	require.NoError(t, err)
	require.Equal(t, second.Address(), loaded.Address())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestKeystoreScryptCost(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "cheap.keystore")
	require.NoError(t, SaveToKeystore(path, key, "secret", WithScrypt(1<<8, 1)))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var file struct {
		Crypto struct {
			KDFParams map[string]interface{} `json:"kdfparams"`
		} `json:"crypto"`
	}
	require.NoError(t, json.Unmarshal(raw, &file))
	require.Equal(t, float64(1<<8), file.Crypto.KDFParams["n"])

	loaded, err := LoadFromKeystore(path, "secret")
	require.NoError(t, err)
	require.Equal(t, key.Bytes(), loaded.Bytes())
}

func TestKeystoreDetectsAddressMismatch(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	other, err := GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "wallet.keystore")
	require.NoError(t, SaveToKeystore(path, key, "secret"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	recorded := strings.ToLower(strings.TrimPrefix(key.Address().Hex(), "0x"))
	forged := strings.ToLower(strings.TrimPrefix(other.Address().Hex(), "0x"))
	require.Contains(t, string(raw), recorded)
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(string(raw), recorded, forged, 1)), 0o600))

	_, err = LoadFromKeystore(path, "secret")
	require.ErrorIs(t, err, ErrKeystoreMismatch)
}
