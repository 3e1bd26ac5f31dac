package types

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// ErrAccountNotFound is returned by gateways when the ledger has no record of an address.
var ErrAccountNotFound = errors.New("account not found")

// AccountInfo is the ledger's view of an account as returned by the gateway.
type AccountInfo struct {
	Address   common.Address   `json:"address"`
	InfoURI   string           `json:"infoURI"`
	Balance   uint64           `json:"balance"`
	Nonce     uint64           `json:"nonce"`
	Delegates []common.Address `json:"delegates,omitempty"`
}

// Copy returns a deep copy so cached snapshots cannot be mutated by callers.
func (a *AccountInfo) Copy() *AccountInfo {
	if a == nil {
		return nil
	}
	out := *a
	if a.Delegates != nil {
		out.Delegates = append([]common.Address(nil), a.Delegates...)
	}
	return &out
}

// HasDelegate reports whether addr is in the delegate set.
func (a *AccountInfo) HasDelegate(addr common.Address) bool {
	if a == nil {
		return false
	}
	for _, d := range a.Delegates {
		if d == addr {
			return true
		}
	}
	return false
}
