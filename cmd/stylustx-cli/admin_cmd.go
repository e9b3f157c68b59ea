package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"stylustx/rpc"
)

func runAdminCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, adminUsage())
		return 1
	}
	fs := flag.NewFlagSet("admin "+args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	var token, address string
	fs.StringVar(&token, "token", adminToken, "admin bearer token")
	needsAddress := args[0] == "target" || args[0] == "owner"
	if needsAddress {
		fs.StringVar(&address, "address", "", "new address")
	}

	var call func(ctx context.Context, client *rpc.Client) (*rpc.ConfigResponse, error)
	switch args[0] {
	case "pause":
		call = func(ctx context.Context, client *rpc.Client) (*rpc.ConfigResponse, error) {
			return client.Pause(ctx)
		}
	case "unpause":
		call = func(ctx context.Context, client *rpc.Client) (*rpc.ConfigResponse, error) {
			return client.Unpause(ctx)
		}
	case "target":
		call = func(ctx context.Context, client *rpc.Client) (*rpc.ConfigResponse, error) {
			return client.SetAllowedTarget(ctx, common.HexToAddress(address))
		}
	case "owner":
		call = func(ctx context.Context, client *rpc.Client) (*rpc.ConfigResponse, error) {
			return client.TransferOwnership(ctx, common.HexToAddress(address))
		}
	default:
		fmt.Fprintf(stderr, "Unknown admin subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, adminUsage())
		return 1
	}

	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	if needsAddress && !common.IsHexAddress(address) {
		fmt.Fprintln(stderr, "Error: --address must be a hex address")
		return 1
	}
	if strings.TrimSpace(token) == "" {
		fmt.Fprintln(stderr, "Error: admin token required (set STYLUSTX_ADMIN_TOKEN or pass --token)")
		return 1
	}

	ctx, cancel := requestContext()
	defer cancel()
	cfg, err := call(ctx, newClient(strings.TrimSpace(token)))
	if err != nil {
		return handleError(stderr, err)
	}
	writeJSON(stdout, cfg)
	return 0
}

func adminUsage() string {
	return "Usage: stylustx-cli admin <pause|unpause|target|owner> [--token TOKEN] [--address ADDR]"
}
