package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"stylustx/cmd/internal/passphrase"
	"stylustx/config"
	"stylustx/crypto"
	"stylustx/native/paymaster"
	"stylustx/rpc"
)

const requestTimeout = 30 * time.Second

var rpcEndpoint = defaultRPCEndpoint() // Defaults to localhost, can be overridden via STYLUSTX_RPC_URL or --rpc flag
var adminToken = os.Getenv("STYLUSTX_ADMIN_TOKEN")

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(run(args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "generate-key":
		return runGenerateKey(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "hash":
		return runHash(args[1:], stdout, stderr)
	case "sign":
		return runSign(args[1:], stdout, stderr)
	case "verify":
		return runVerify(args[1:], stdout, stderr)
	case "submit":
		return runSubmit(args[1:], stdout, stderr)
	case "send":
		return runSend(args[1:], stdout, stderr)
	case "nonce":
		return runNonce(args[1:], stdout, stderr)
	case "config":
		return runConfig(args[1:], stdout, stderr)
	case "events":
		return runEvents(args[1:], stdout, stderr)
	case "admin":
		return runAdminCommand(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.TrimSpace(`
Usage: stylustx-cli [--rpc URL] <command> [flags]

Keys:
  generate-key --out FILE         Create a passphrase-protected keystore
  address --keystore FILE         Print the address held by a keystore

Meta-transactions:
  hash --tx FILE                  Print the canonical message hash
  sign --keystore FILE [flags]    Build and sign a request, print it as JSON
  verify --tx FILE                Run the relay's preflight checks
  submit --tx FILE                Relay a signed request
  send --keystore FILE [flags]    Sign with the next nonce and relay in one step

Queries:
  nonce ADDRESS                   Next nonce expected from ADDRESS
  config                          Relay configuration
  events [--cursor N] [--limit N] Page through the relay event log

Admin (requires STYLUSTX_ADMIN_TOKEN or --token):
  admin pause | unpause
  admin target --address ADDR
  admin owner --address ADDR`)
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("STYLUSTX_RPC_URL")); v != "" {
		return v
	}
	return "http://localhost" + config.DefaultListenAddress
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func newClient(token string) *rpc.Client {
	return rpc.NewClient(rpcEndpoint, rpc.WithAdminToken(token))
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("--keystore is required")
	}
	pass, err := passphrase.NewSource(config.DefaultPassphraseEnv).Get()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}

func readMetaTx(path string) (*paymaster.MetaTx, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("--tx is required")
	}
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	var body rpc.MetaTxJSON
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return body.ToMetaTx()
}

func writeJSON(w io.Writer, v interface{}) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// handleError prints err and returns the exit code. Relay rejections print
// their kind so scripts can match on it.
func handleError(stderr io.Writer, err error) int {
	var pmErr *paymaster.Error
	if errors.As(err, &pmErr) {
		fmt.Fprintf(stderr, "Error: %s: %v\n", pmErr.Kind, pmErr)
		return 2
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}
