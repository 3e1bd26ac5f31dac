// Package account wraps a key and a gateway into the wallet workflow: it
// submits account transactions, keeps the last observed ledger snapshot and
// polls until submitted changes become visible.
package account

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"vocwallet/core/types"
	"vocwallet/crypto"
	"vocwallet/faucet"
	"vocwallet/observability/metrics"
	"vocwallet/retry"
)

// DefaultRetryPolicy matches a three second block period with five polls.
var DefaultRetryPolicy = retry.Policy{MaxAttempts: 5, Interval: 3 * time.Second}

var (
	// ErrNotTreasurer is returned when a non-treasurer account tries to mint.
	ErrNotTreasurer = errors.New("account: mint requires treasurer account")
	// ErrGatewayRequired is returned when an account has no gateway capability.
	ErrGatewayRequired = errors.New("account: gateway required")
	// ErrIssuerMismatch is returned when a faucet issuer signs with a key other
	// than the account's.
	ErrIssuerMismatch = errors.New("account: faucet issuer belongs to another key")
)

// Gateway is the ledger capability an account needs.
type Gateway interface {
	SubmitTransaction(ctx context.Context, tx *types.Transaction) (string, error)
	AccountInfo(ctx context.Context, addr common.Address) (*types.AccountInfo, error)
}

// Account is a single key holder's view of the ledger.
type Account struct {
	signer    crypto.Signer
	gw        Gateway
	treasurer bool
	issuer    *faucet.Issuer
	policy    retry.Policy
	logger    *slog.Logger

	mu   sync.RWMutex
	info *types.AccountInfo
}

// Option configures an Account.
type Option func(*Account)

// WithTreasurer marks the account as allowed to mint tokens.
func WithTreasurer() Option {
	return func(a *Account) {
		a.treasurer = true
	}
}

// WithIssuer draws faucet identifiers from a persistent issuer instead of random values.
func WithIssuer(issuer *faucet.Issuer) Option {
	return func(a *Account) {
		a.issuer = issuer
	}
}

// WithRetryPolicy overrides the polling budget used by WaitFor.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(a *Account) {
		a.policy = policy
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Account) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New binds signer to gw. The gateway may be shared between accounts.
func New(signer crypto.Signer, gw Gateway, opts ...Option) (*Account, error) {
	if signer == nil {
		return nil, fmt.Errorf("account: %w", crypto.ErrNoPrivateKey)
	}
	if gw == nil {
		return nil, ErrGatewayRequired
	}
	a := &Account{
		signer: signer,
		gw:     gw,
		policy: DefaultRetryPolicy,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if err := a.policy.Validate(); err != nil {
		return nil, err
	}
	if a.issuer != nil && a.issuer.Address() != signer.Address() {
		return nil, fmt.Errorf("%w: issuer %s, account %s", ErrIssuerMismatch, a.issuer.Address().Hex(), signer.Address().Hex())
	}
	a.logger = a.logger.With(slog.String("component", "account"), slog.String("address", a.Address().Hex()))
	return a, nil
}

// Address returns the account's ledger address.
func (a *Account) Address() common.Address {
	return a.signer.Address()
}

// Info returns a copy of the last snapshot observed by Refresh, or nil.
func (a *Account) Info() *types.AccountInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.info.Copy()
}

// Refresh queries the gateway and caches the result.
func (a *Account) Refresh(ctx context.Context) (*types.AccountInfo, error) {
	info, err := a.gw.AccountInfo(ctx, a.Address())
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.info = info.Copy()
	a.mu.Unlock()
	return info.Copy(), nil
}

// WaitFor polls Refresh until cond accepts the snapshot. A missing account and
// a cond error are treated as not yet converged; anything else aborts.
// A nil cond waits for the account to exist.
func (a *Account) WaitFor(ctx context.Context, cond func(*types.AccountInfo) error) (*types.AccountInfo, error) {
	return retry.Do(ctx, a.policy, func(ctx context.Context) (*types.AccountInfo, error) {
		info, err := a.Refresh(ctx)
		if errors.Is(err, types.ErrAccountNotFound) {
			return nil, retry.Recoverable(err)
		}
		if err != nil {
			return nil, err
		}
		if cond != nil {
			if err := cond(info); err != nil {
				return nil, retry.Recoverable(err)
			}
		}
		return info, nil
	}, retry.WithName("account_wait"), retry.WithLogger(a.logger))
}

// SetInfo creates the account or updates its info URI.
func (a *Account) SetInfo(ctx context.Context, uri string) (string, error) {
	return a.submit(ctx, &types.Transaction{Type: types.TxTypeSetAccountInfo, InfoURI: uri})
}

// Mint grants amount freshly minted tokens to to. Only treasurer accounts may mint.
func (a *Account) Mint(ctx context.Context, to common.Address, amount uint64) (string, error) {
	if !a.treasurer {
		return "", ErrNotTreasurer
	}
	return a.submit(ctx, &types.Transaction{Type: types.TxTypeMintTokens, To: &to, Amount: amount})
}

// GenFaucet signs a package granting amount of this account's tokens to to.
// No transaction is submitted; the recipient claims it with ClaimFaucet.
func (a *Account) GenFaucet(to common.Address, amount uint64) (*faucet.Package, error) {
	if a.issuer != nil {
		return a.issuer.Issue(to.Bytes(), amount)
	}
	id, err := randomIdentifier()
	if err != nil {
		return nil, err
	}
	pkg, err := faucet.Sign(a.signer, id, to.Bytes(), amount)
	if err != nil {
		return nil, err
	}
	metrics.Wallet().ObserveFaucetIssued(amount)
	return pkg, nil
}

// ClaimFaucet submits a claim for pkg. The package must name this account as
// recipient and carry a recoverable signature.
func (a *Account) ClaimFaucet(ctx context.Context, pkg *faucet.Package) (string, error) {
	if pkg == nil {
		return "", errors.New("account: faucet package required")
	}
	if pkg.Payload.To != a.Address() {
		return "", fmt.Errorf("account: faucet package is for %s", pkg.Payload.To.Hex())
	}
	issuer, err := pkg.Signer()
	if err != nil {
		return "", err
	}
	a.logger.Info("claiming faucet package",
		slog.String("issuer", issuer.Hex()),
		slog.Uint64("identifier", pkg.Payload.Identifier),
		slog.Uint64("amount", pkg.Payload.Amount))
	return a.submit(ctx, &types.Transaction{
		Type:            types.TxTypeCollectFaucet,
		FaucetPayload:   pkg.PayloadBytes(),
		FaucetSignature: append([]byte(nil), pkg.Signature...),
	})
}

// AddDelegate authorises delegate to act for this account.
func (a *Account) AddDelegate(ctx context.Context, delegate common.Address) (string, error) {
	return a.submit(ctx, &types.Transaction{Type: types.TxTypeAddDelegate, Delegate: &delegate})
}

// DelDelegate revokes delegate.
func (a *Account) DelDelegate(ctx context.Context, delegate common.Address) (string, error) {
	return a.submit(ctx, &types.Transaction{Type: types.TxTypeDelDelegate, Delegate: &delegate})
}

func (a *Account) submit(ctx context.Context, tx *types.Transaction) (string, error) {
	nonce, err := a.nextNonce(ctx)
	if err != nil {
		return "", err
	}
	tx.Nonce = nonce
	if err := tx.Sign(a.signer); err != nil {
		return "", fmt.Errorf("account: sign %s: %w", tx.Type, err)
	}
	hash, err := a.gw.SubmitTransaction(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("account: submit %s: %w", tx.Type, err)
	}
	metrics.Wallet().ObserveTxSubmitted(tx.Type.String())
	a.logger.Info("transaction submitted",
		slog.String("type", tx.Type.String()),
		slog.Uint64("nonce", nonce),
		slog.String("hash", hash))
	return hash, nil
}

func (a *Account) nextNonce(ctx context.Context) (uint64, error) {
	info, err := a.Refresh(ctx)
	if errors.Is(err, types.ErrAccountNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("account: fetch nonce: %w", err)
	}
	return info.Nonce, nil
}

func randomIdentifier() (uint64, error) {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("account: faucet identifier: %w", err)
		}
		// zero would be omitted on the wire and collide across grants
		if id := binary.BigEndian.Uint64(buf[:]); id != 0 {
			return id, nil
		}
	}
}
