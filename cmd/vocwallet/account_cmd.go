package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/ethereum/go-ethereum/common"

	"vocwallet/core/types"
	"vocwallet/crypto"
	"vocwallet/faucet"
	"vocwallet/retry"
)

func runInfo(ctx context.Context, a *app, args []string) error {
	fs, _ := a.newFlagSet("info", false)
	rest, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	addr, err := crypto.ParseAddress(rest[0])
	if err != nil {
		return err
	}
	info, err := a.gateway.AccountInfo(ctx, addr)
	if err != nil {
		return err
	}
	return a.printJSON(info)
}

func runSetInfo(ctx context.Context, a *app, args []string) error {
	fs, wait := a.newFlagSet("set-info", true)
	rest, err := a.keystoreArgs(fs, args, 2)
	if err != nil {
		return err
	}
	acc, closeAcc, err := a.openAccount(rest[0])
	if err != nil {
		return err
	}
	defer closeAcc()

	uri := rest[1]
	hash, err := acc.SetInfo(ctx, uri)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, hash)
	if !*wait {
		return nil
	}
	info, err := acc.WaitFor(ctx, func(info *types.AccountInfo) error {
		if info.InfoURI != uri {
			return fmt.Errorf("info URI is %q: %w", info.InfoURI, retry.ErrNotConverged)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return a.printJSON(info)
}

func runMint(ctx context.Context, a *app, args []string) error {
	fs, wait := a.newFlagSet("mint", true)
	rest, err := a.keystoreArgs(fs, args, 3)
	if err != nil {
		return err
	}
	to, err := crypto.ParseAddress(rest[1])
	if err != nil {
		return err
	}
	amount, err := faucet.ParseValue(rest[2])
	if err != nil {
		return err
	}
	acc, closeAcc, err := a.openAccount(rest[0])
	if err != nil {
		return err
	}
	defer closeAcc()

	var want uint64
	if *wait {
		before, err := a.balanceOf(ctx, to)
		if err != nil {
			return err
		}
		if want, err = balanceTarget(before, amount); err != nil {
			return err
		}
	}
	hash, err := acc.Mint(ctx, to, amount)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, hash)
	if !*wait {
		return nil
	}
	info, err := a.waitForBalance(ctx, to, want)
	if err != nil {
		return err
	}
	return a.printJSON(info)
}

func runDelegate(ctx context.Context, a *app, args []string) error {
	if len(args) < 1 || (args[0] != "add" && args[0] != "del") {
		return errUsage
	}
	adding := args[0] == "add"
	fs, wait := a.newFlagSet("delegate "+args[0], true)
	rest, err := a.keystoreArgs(fs, args[1:], 2)
	if err != nil {
		return err
	}
	delegate, err := crypto.ParseAddress(rest[1])
	if err != nil {
		return err
	}
	acc, closeAcc, err := a.openAccount(rest[0])
	if err != nil {
		return err
	}
	defer closeAcc()

	var hash string
	if adding {
		hash, err = acc.AddDelegate(ctx, delegate)
	} else {
		hash, err = acc.DelDelegate(ctx, delegate)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, hash)
	if !*wait {
		return nil
	}
	info, err := acc.WaitFor(ctx, func(info *types.AccountInfo) error {
		if info.HasDelegate(delegate) != adding {
			return fmt.Errorf("delegate %s: %w", delegate.Hex(), retry.ErrNotConverged)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return a.printJSON(info)
}

// balanceOf reads the current balance of addr. Accounts the ledger has not
// seen yet hold nothing.
func (a *app) balanceOf(ctx context.Context, addr common.Address) (uint64, error) {
	info, err := a.gateway.AccountInfo(ctx, addr)
	if errors.Is(err, types.ErrAccountNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Balance, nil
}

// balanceTarget returns the balance expected once amount lands on before.
// Sums that wrap around uint64 are refused.
func balanceTarget(before, amount uint64) (uint64, error) {
	if amount > math.MaxUint64-before {
		return 0, fmt.Errorf("%w: balance %d plus %d overflows", faucet.ErrValueOutOfRange, before, amount)
	}
	return before + amount, nil
}

// waitForBalance polls addr until its balance reaches at least want. It is
// used for accounts the CLI holds no key for.
func (a *app) waitForBalance(ctx context.Context, addr common.Address, want uint64) (*types.AccountInfo, error) {
	return retry.Do(ctx, a.cfg.RetryPolicy(), func(ctx context.Context) (*types.AccountInfo, error) {
		info, err := a.gateway.AccountInfo(ctx, addr)
		if errors.Is(err, types.ErrAccountNotFound) {
			return nil, retry.Recoverable(err)
		}
		if err != nil {
			return nil, err
		}
		if info.Balance < want {
			return nil, fmt.Errorf("balance %d below %d: %w", info.Balance, want, retry.ErrNotConverged)
		}
		return info, nil
	}, retry.WithName("balance_wait"), retry.WithLogger(a.logger.With(slog.String("address", addr.Hex()))))
}

func (a *app) printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, string(out))
	return nil
}

