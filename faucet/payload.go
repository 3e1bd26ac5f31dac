// Package faucet builds, signs and verifies faucet grants: a payload naming a
// recipient, an amount and an issuer-chosen identifier, plus a recoverable
// signature from the issuer authorising its claim.
package faucet

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/protobuf/encoding/protowire"

	"vocwallet/crypto"
)

// Field numbers of the payload wire format.
const (
	fieldIdentifier protowire.Number = 1
	fieldTo         protowire.Number = 2
	fieldAmount     protowire.Number = 3
)

var (
	// ErrInvalidAddress reports a recipient that is not crypto.AddressLength bytes.
	ErrInvalidAddress = errors.New("faucet: invalid address")
	// ErrValueOutOfRange reports an identifier or amount outside the uint64 domain.
	ErrValueOutOfRange = errors.New("faucet: value out of range")
	// ErrDecode reports truncated or malformed payload bytes.
	ErrDecode = errors.New("faucet: decode payload")
)

// Payload is a single grant of Amount tokens to To.
type Payload struct {
	Identifier uint64
	To         common.Address
	Amount     uint64
}

// NewPayload validates the recipient length and assembles a payload.
func NewPayload(identifier uint64, to []byte, amount uint64) (Payload, error) {
	if len(to) != crypto.AddressLength {
		return Payload{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, crypto.AddressLength, len(to))
	}
	return Payload{Identifier: identifier, To: common.BytesToAddress(to), Amount: amount}, nil
}

// Encode returns the canonical bytes of the payload described by the fields.
func Encode(identifier uint64, to []byte, amount uint64) ([]byte, error) {
	p, err := NewPayload(identifier, to, amount)
	if err != nil {
		return nil, err
	}
	return p.Marshal(), nil
}

// Marshal returns the canonical encoding: ascending field order, varint
// integers, and every zero-valued field omitted.
func (p Payload) Marshal() []byte {
	buf := make([]byte, 0, 48)
	if p.Identifier != 0 {
		buf = protowire.AppendTag(buf, fieldIdentifier, protowire.VarintType)
		buf = protowire.AppendVarint(buf, p.Identifier)
	}
	buf = protowire.AppendTag(buf, fieldTo, protowire.BytesType)
	buf = protowire.AppendBytes(buf, p.To.Bytes())
	if p.Amount != 0 {
		buf = protowire.AppendTag(buf, fieldAmount, protowire.VarintType)
		buf = protowire.AppendVarint(buf, p.Amount)
	}
	return buf
}

// Decode parses payload bytes. Unknown fields are skipped; a repeated known
// field keeps its last value.
func Decode(b []byte) (Payload, error) {
	var (
		p      Payload
		haveTo bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Payload{}, fmt.Errorf("%w: tag: %v", ErrDecode, protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldIdentifier, fieldAmount:
			if typ != protowire.VarintType {
				return Payload{}, fmt.Errorf("%w: field %d has wire type %d", ErrDecode, num, typ)
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Payload{}, fmt.Errorf("%w: field %d: %v", ErrDecode, num, protowire.ParseError(n))
			}
			b = b[n:]
			if num == fieldIdentifier {
				p.Identifier = v
			} else {
				p.Amount = v
			}
		case fieldTo:
			if typ != protowire.BytesType {
				return Payload{}, fmt.Errorf("%w: field %d has wire type %d", ErrDecode, num, typ)
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Payload{}, fmt.Errorf("%w: field %d: %v", ErrDecode, num, protowire.ParseError(n))
			}
			b = b[n:]
			if len(v) != crypto.AddressLength {
				return Payload{}, fmt.Errorf("%w: %w: recipient is %d bytes", ErrDecode, ErrInvalidAddress, len(v))
			}
			p.To = common.BytesToAddress(v)
			haveTo = true
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Payload{}, fmt.Errorf("%w: field %d: %v", ErrDecode, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if !haveTo {
		return Payload{}, fmt.Errorf("%w: recipient missing", ErrDecode)
	}
	return p, nil
}

// ParseValue parses a decimal identifier or amount. Negative numbers and
// numbers that do not fit in 64 bits report ErrValueOutOfRange.
func ParseValue(s string) (uint64, error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "-") {
		return 0, fmt.Errorf("%w: %s", ErrValueOutOfRange, trimmed)
	}
	v, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, fmt.Errorf("%w: %s", ErrValueOutOfRange, trimmed)
		}
		return 0, fmt.Errorf("faucet: parse value %q: %w", s, err)
	}
	return v, nil
}
