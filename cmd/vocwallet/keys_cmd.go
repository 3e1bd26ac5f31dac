package main

import (
	"context"
	"errors"
	"fmt"

	"vocwallet/crypto"
)

func runGenerateKey(_ context.Context, a *app, args []string) error {
	fs, _ := a.newFlagSet("generate-key", false)
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	standard := fs.Bool("standard-scrypt", false, "Use the standard (slower) scrypt cost instead of the light profile")
	rest, err := a.keystoreArgs(fs, args, 1)
	if err != nil {
		return err
	}
	path := rest[0]
	pass, err := a.passphrase.Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	opts := []crypto.KeystoreOption{crypto.WithOverwrite(*force)}
	if *standard {
		opts = append(opts, crypto.WithStandardScrypt())
	}
	if err := crypto.SaveToKeystore(path, key, pass, opts...); err != nil {
		if errors.Is(err, crypto.ErrKeystoreExists) {
			return fmt.Errorf("%w (use --force to overwrite)", err)
		}
		return fmt.Errorf("failed to write keystore: %w", err)
	}
	fmt.Fprintln(a.stdout, key.Address().Hex())
	return nil
}

func runAddress(_ context.Context, a *app, args []string) error {
	fs, _ := a.newFlagSet("address", false)
	rest, err := a.keystoreArgs(fs, args, 1)
	if err != nil {
		return err
	}
	key, err := a.loadKey(rest[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, key.Address().Hex())
	return nil
}
