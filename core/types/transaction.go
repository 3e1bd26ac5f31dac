package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"vocwallet/crypto"
)

// TxType defines the purpose of a transaction.
type TxType byte

const (
	TxTypeSetAccountInfo TxType = 0x01 // Create the account or update its info URI
	TxTypeMintTokens     TxType = 0x02 // Treasurer mints tokens to an account
	TxTypeCollectFaucet  TxType = 0x03 // Recipient claims a signed faucet package
	TxTypeAddDelegate    TxType = 0x04
	TxTypeDelDelegate    TxType = 0x05
)

var txTypeNames = map[TxType]string{
	TxTypeSetAccountInfo: "set_account_info",
	TxTypeMintTokens:     "mint_tokens",
	TxTypeCollectFaucet:  "collect_faucet",
	TxTypeAddDelegate:    "add_delegate",
	TxTypeDelDelegate:    "del_delegate",
}

func (t TxType) String() string {
	if name, ok := txTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tx_type_%d", byte(t))
}

// ErrUnsigned is returned when the sender of an unsigned transaction is requested.
var ErrUnsigned = errors.New("transaction not signed")

// Transaction carries one state change for the ledger. Only the fields
// relevant to Type are populated.
type Transaction struct {
	Type     TxType          `json:"type"`
	Nonce    uint64          `json:"nonce"`
	To       *common.Address `json:"to,omitempty"`
	Amount   uint64          `json:"amount,omitempty"`
	InfoURI  string          `json:"infoURI,omitempty"`
	Delegate *common.Address `json:"delegate,omitempty"`

	FaucetPayload   hexutil.Bytes `json:"faucetPayload,omitempty"`
	FaucetSignature hexutil.Bytes `json:"faucetSignature,omitempty"`

	Signature hexutil.Bytes `json:"signature,omitempty"`
}

// SigningBytes returns the JSON encoding of every field except the signature.
func (tx *Transaction) SigningBytes() ([]byte, error) {
	body := *tx
	body.Signature = nil
	return json.Marshal(body)
}

// Sign signs the transaction with signer.
func (tx *Transaction) Sign(signer crypto.Signer) error {
	if signer == nil {
		return crypto.ErrNoPrivateKey
	}
	msg, err := tx.SigningBytes()
	if err != nil {
		return err
	}
	sig, err := signer.SignMessage(msg)
	if err != nil {
		return err
	}
	tx.Signature = sig
	return nil
}

// From recovers the sender from the signature over the current fields.
func (tx *Transaction) From() (common.Address, error) {
	if len(tx.Signature) == 0 {
		return common.Address{}, ErrUnsigned
	}
	msg, err := tx.SigningBytes()
	if err != nil {
		return common.Address{}, err
	}
	return crypto.RecoverMessageSigner(msg, tx.Signature)
}
