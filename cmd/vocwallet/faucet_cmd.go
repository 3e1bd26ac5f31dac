package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"vocwallet/core/types"
	"vocwallet/crypto"
	"vocwallet/faucet"
	"vocwallet/retry"
)

func runFaucetGen(_ context.Context, a *app, args []string) error {
	fs, _ := a.newFlagSet("faucet-gen", false)
	out := fs.String("out", "", "Write the package to this file instead of stdout")
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

	pkg, err := acc.GenFaucet(to, amount)
	if err != nil {
		return err
	}
	if *out == "" {
		return a.printJSON(pkg)
	}
	data, err := json.MarshalIndent(pkg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write faucet package: %w", err)
	}
	fmt.Fprintln(a.stdout, *out)
	return nil
}

func runFaucetClaim(ctx context.Context, a *app, args []string) error {
	fs, wait := a.newFlagSet("faucet-claim", true)
	rest, err := a.keystoreArgs(fs, args, 2)
	if err != nil {
		return err
	}
	pkg, err := readPackage(rest[1])
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
		before, err := a.balanceOf(ctx, acc.Address())
		if err != nil {
			return err
		}
		if want, err = balanceTarget(before, pkg.Payload.Amount); err != nil {
			return err
		}
	}
	hash, err := acc.ClaimFaucet(ctx, pkg)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, hash)
	if !*wait {
		return nil
	}
	info, err := acc.WaitFor(ctx, func(info *types.AccountInfo) error {
		if info.Balance < want {
			return fmt.Errorf("balance %d below %d: %w", info.Balance, want, retry.ErrNotConverged)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return a.printJSON(info)
}

type packageSummary struct {
	Identifier uint64        `json:"identifier"`
	To         string        `json:"to"`
	Amount     uint64        `json:"amount"`
	Signer     string        `json:"signer"`
	Payload    hexutil.Bytes `json:"faucetPayload"`
}

func runFaucetInspect(_ context.Context, a *app, args []string) error {
	fs, _ := a.newFlagSet("faucet-inspect", false)
	rest, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	pkg, err := readPackage(rest[0])
	if err != nil {
		return err
	}
	signer, err := pkg.Signer()
	if err != nil {
		return err
	}
	return a.printJSON(packageSummary{
		Identifier: pkg.Payload.Identifier,
		To:         pkg.Payload.To.Hex(),
		Amount:     pkg.Payload.Amount,
		Signer:     signer.Hex(),
		Payload:    pkg.PayloadBytes(),
	})
}

// readPackage loads a JSON faucet package from path, or from stdin for "-".
func readPackage(path string) (*faucet.Package, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(io.LimitReader(os.Stdin, 1<<16))
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read faucet package: %w", err)
	}
	var pkg faucet.Package
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("parse faucet package: %w", err)
	}
	return &pkg, nil
}
