package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"stylustx/cmd/internal/passphrase"
	"stylustx/config"
	"stylustx/crypto"
)

func runGenerateKey(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("generate-key", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var out string
	fs.StringVar(&out, "out", "wallet.keystore", "keystore file to create")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := os.Stat(out); err == nil {
		fmt.Fprintf(stderr, "Error: %s already exists\n", out)
		return 1
	}
	pass, err := passphrase.NewSource(config.DefaultPassphraseEnv, passphrase.WithConfirmation()).Get()
	if err != nil {
		return handleError(stderr, err)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return handleError(stderr, err)
	}
	if err := crypto.SaveToKeystore(out, key, pass); err != nil {
		return handleError(stderr, err)
	}
	fmt.Fprintf(stdout, "Address: %s\nKeystore: %s\n", key.Address().Hex(), out)
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var path string
	fs.StringVar(&path, "keystore", "", "keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(path) == "" {
		fmt.Fprintln(stderr, "Error: --keystore is required")
		return 1
	}
	addr, err := crypto.KeystoreAddress(path)
	if err != nil {
		return handleError(stderr, err)
	}
	fmt.Fprintln(stdout, addr.Hex())
	return 0
}
