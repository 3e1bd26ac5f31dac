package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressLength is the byte length of a ledger address.
const AddressLength = common.AddressLength

// SignatureLength is the byte length of a recoverable signature (r || s || v).
const SignatureLength = crypto.SignatureLength

var (
	// ErrInvalidAddress reports an address that is not AddressLength bytes long.
	ErrInvalidAddress = errors.New("crypto: invalid address")
	// ErrInvalidSignature reports a signature that cannot be parsed or recovered.
	ErrInvalidSignature = errors.New("crypto: invalid signature")
	// ErrNoPrivateKey reports a signer without key material.
	ErrNoPrivateKey = errors.New("crypto: private key unavailable")
)

// Signer is the key capability consumed by the wallet: it signs arbitrary
// bytes with a recoverable signature and exposes the derived address.
type Signer interface {
	SignMessage(message []byte) ([]byte, error)
	Address() common.Address
}

// AddressFromBytes validates the length of b and converts it to an address.
func AddressFromBytes(b []byte) (common.Address, error) {
	if len(b) != AddressLength {
		return common.Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, AddressLength, len(b))
	}
	return common.BytesToAddress(b), nil
}

// ParseAddress decodes a 0x-prefixed (or bare) hex address.
func ParseAddress(s string) (common.Address, error) {
	trimmed := strings.TrimSpace(s)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(trimmed), nil
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address returns the ledger address derived from the key's public half.
func (k *PrivateKey) Address() common.Address {
	if k == nil || k.PrivateKey == nil {
		return common.Address{}
	}
	return k.PubKey().Address()
}

// SignMessage signs message as an EIP-191 personal message. The returned
// signature is 65 bytes with the recovery id (0 or 1) in the last byte.
func (k *PrivateKey) SignMessage(message []byte) ([]byte, error) {
	if k == nil || k.PrivateKey == nil {
		return nil, ErrNoPrivateKey
	}
	return crypto.Sign(accounts.TextHash(message), k.PrivateKey)
}

func (k *PublicKey) Address() common.Address {
	return crypto.PubkeyToAddress(*k.PublicKey)
}

// PrivateKeyFromHex parses a hex encoded private key, with or without 0x.
func PrivateKeyFromHex(s string) (*PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// RecoverMessageSigner returns the address that produced signature over
// message with SignMessage. Recovery ids 27/28 are accepted as well.
func RecoverMessageSigner(message, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, SignatureLength, len(signature))
	}
	sig := append([]byte(nil), signature...)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return common.Address{}, fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, signature[64])
	}
	pub, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
