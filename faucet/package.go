package faucet

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"vocwallet/crypto"
)

var (
	// ErrSigning reports a failure of the key capability while signing a payload.
	ErrSigning = errors.New("faucet: signing failed")
	// ErrInvalidSignature reports a package whose signature does not authenticate its payload.
	ErrInvalidSignature = errors.New("faucet: invalid signature")
)

// Package is a payload together with the issuer's signature over its exact bytes.
//
// A package keeps the payload bytes it was signed or decoded with and reuses
// them while Payload is unchanged. Editing Payload switches PayloadBytes,
// MarshalJSON and Verify over to the canonical encoding of the new values, so
// an edited package no longer verifies against the original signature.
type Package struct {
	Payload   Payload
	Signature []byte

	raw    []byte
	rawFor Payload
}

// Sign encodes the grant and signs the canonical bytes with signer.
func Sign(signer crypto.Signer, identifier uint64, to []byte, amount uint64) (*Package, error) {
	if signer == nil {
		return nil, fmt.Errorf("%w: signer required", ErrSigning)
	}
	payload, err := NewPayload(identifier, to, amount)
	if err != nil {
		return nil, err
	}
	return SignPayload(signer, payload)
}

// SignPayload signs an already validated payload.
func SignPayload(signer crypto.Signer, payload Payload) (*Package, error) {
	if signer == nil {
		return nil, fmt.Errorf("%w: signer required", ErrSigning)
	}
	raw := payload.Marshal()
	sig, err := signer.SignMessage(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("%w: signature is %d bytes", ErrSigning, len(sig))
	}
	return &Package{Payload: payload, Signature: sig, raw: raw, rawFor: payload}, nil
}

// PayloadBytes returns the bytes covered by the signature.
func (p *Package) PayloadBytes() []byte {
	if p == nil {
		return nil
	}
	if p.raw != nil && p.Payload == p.rawFor {
		return append([]byte(nil), p.raw...)
	}
	return p.Payload.Marshal()
}

// Signer recovers the address of the key that signed the package.
func (p *Package) Signer() (common.Address, error) {
	if p == nil {
		return common.Address{}, fmt.Errorf("%w: package required", ErrInvalidSignature)
	}
	addr, err := crypto.RecoverMessageSigner(p.PayloadBytes(), p.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return addr, nil
}

// Verify checks that the package was signed by issuer.
func (p *Package) Verify(issuer common.Address) error {
	signer, err := p.Signer()
	if err != nil {
		return err
	}
	if signer != issuer {
		return fmt.Errorf("%w: signed by %s, expected %s", ErrInvalidSignature, signer.Hex(), issuer.Hex())
	}
	return nil
}

type packageJSON struct {
	FaucetPayload hexutil.Bytes `json:"faucetPayload"`
	Signature     hexutil.Bytes `json:"signature"`
}

// MarshalJSON emits the payload bytes and signature as hex strings.
func (p Package) MarshalJSON() ([]byte, error) {
	return json.Marshal(packageJSON{FaucetPayload: p.PayloadBytes(), Signature: p.Signature})
}

// UnmarshalJSON decodes the payload and keeps its original bytes for verification.
func (p *Package) UnmarshalJSON(data []byte) error {
	var wire packageJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("faucet: decode package: %w", err)
	}
	payload, err := Decode(wire.FaucetPayload)
	if err != nil {
		return err
	}
	p.Payload = payload
	p.Signature = append([]byte(nil), wire.Signature...)
	p.raw = append([]byte(nil), wire.FaucetPayload...)
	p.rawFor = payload
	return nil
}
