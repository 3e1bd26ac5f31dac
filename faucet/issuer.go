package faucet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"vocwallet/crypto"
	"vocwallet/observability/metrics"
	"vocwallet/storage"
)

var issuerKeyPrefix = []byte("faucet/next-id/")

// Issuer signs faucet packages with identifiers drawn from a per-signer
// counter persisted in db. Identifiers start at 1 and never repeat for the
// same signer and database.
type Issuer struct {
	signer crypto.Signer
	db     storage.Database

	mu sync.Mutex
}

// NewIssuer binds a signer to the counter store.
func NewIssuer(signer crypto.Signer, db storage.Database) (*Issuer, error) {
	if signer == nil {
		return nil, errors.New("faucet: issuer signer required")
	}
	if db == nil {
		return nil, errors.New("faucet: issuer database required")
	}
	return &Issuer{signer: signer, db: db}, nil
}

// Address returns the address whose key signs the issued packages.
func (i *Issuer) Address() common.Address {
	return i.signer.Address()
}

// Issue allocates the next identifier and signs a package granting amount to to.
// The counter advances only when signing succeeds.
func (i *Issuer) Issue(to []byte, amount uint64) (*Package, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	next, err := i.peek()
	if err != nil {
		return nil, err
	}
	if next == ^uint64(0) {
		return nil, fmt.Errorf("%w: identifier space exhausted", ErrValueOutOfRange)
	}
	pkg, err := Sign(i.signer, next, to, amount)
	if err != nil {
		return nil, err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], next+1)
	if err := i.db.Put(i.key(), buf[:]); err != nil {
		return nil, fmt.Errorf("faucet: persist identifier: %w", err)
	}
	metrics.Wallet().ObserveFaucetIssued(amount)
	return pkg, nil
}

// Next reports the identifier the next Issue call will use.
func (i *Issuer) Next() (uint64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.peek()
}

func (i *Issuer) peek() (uint64, error) {
	raw, err := i.db.Get(i.key())
	if errors.Is(err, storage.ErrNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("faucet: load identifier: %w", err)
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("faucet: corrupt identifier record (%d bytes)", len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (i *Issuer) key() []byte {
	return append(append([]byte(nil), issuerKeyPrefix...), i.Address().Bytes()...)
}
