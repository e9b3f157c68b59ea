package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"stylustx/crypto"
	"stylustx/native/paymaster"
	"stylustx/rpc"
)

func runHash(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var path string
	var remote bool
	fs.StringVar(&path, "tx", "", "meta-transaction JSON file, or - for stdin")
	fs.BoolVar(&remote, "remote", false, "ask the relay instead of hashing locally")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	tx, err := readMetaTx(path)
	if err != nil {
		return handleError(stderr, err)
	}
	hash := tx.Hash()
	if remote {
		ctx, cancel := requestContext()
		defer cancel()
		if hash, err = newClient("").MessageHash(ctx, tx); err != nil {
			return handleError(stderr, err)
		}
	}
	fmt.Fprintln(stdout, hash.Hex())
	return 0
}

type requestFlags struct {
	keystore string
	to       string
	value    string
	data     string
	nonce    string
	deadline string
	ttl      time.Duration
}

func (f *requestFlags) register(fs *flag.FlagSet, withNonce bool) {
	fs.StringVar(&f.keystore, "keystore", "", "signer keystore file")
	fs.StringVar(&f.value, "value", "0", "wei forwarded with the call")
	fs.StringVar(&f.data, "data", "0x", "hex-encoded calldata for the target")
	fs.DurationVar(&f.ttl, "ttl", crypto.DefaultDeadlineOffset, "deadline offset from now")
	if withNonce {
		fs.StringVar(&f.to, "to", "", "target address (defaults to the relay's allowed target)")
		fs.StringVar(&f.nonce, "nonce", "", "nonce (defaults to the relay's next nonce)")
		fs.StringVar(&f.deadline, "deadline", "", "absolute deadline in unix seconds (overrides --ttl)")
	}
}

func (f *requestFlags) payload() (*uint256.Int, []byte, error) {
	value, err := uint256.FromDecimal(strings.TrimSpace(f.value))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid --value: %w", err)
	}
	data, err := decodeHexFlag(f.data)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid --data: %w", err)
	}
	return value, data, nil
}

func decodeHexFlag(raw string) ([]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "0x" {
		return nil, nil
	}
	if !strings.HasPrefix(trimmed, "0x") {
		trimmed = "0x" + trimmed
	}
	return hexutil.Decode(trimmed)
}

func runSign(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var f requestFlags
	f.register(fs, true)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key, err := loadKey(f.keystore)
	if err != nil {
		return handleError(stderr, err)
	}
	value, data, err := f.payload()
	if err != nil {
		return handleError(stderr, err)
	}
	tx := &paymaster.MetaTx{
		From:     key.Address(),
		Value:    value,
		Data:     data,
		Deadline: crypto.DefaultDeadline(time.Now(), f.ttl),
	}
	if f.deadline != "" {
		if tx.Deadline, err = uint256.FromDecimal(f.deadline); err != nil {
			return handleError(stderr, fmt.Errorf("invalid --deadline: %w", err))
		}
	}

	ctx, cancel := requestContext()
	defer cancel()
	client := newClient("")
	if f.to != "" {
		if !common.IsHexAddress(f.to) {
			return handleError(stderr, fmt.Errorf("invalid --to %q", f.to))
		}
		tx.To = common.HexToAddress(f.to)
	} else {
		cfg, err := client.Config(ctx)
		if err != nil {
			return handleError(stderr, err)
		}
		tx.To = cfg.AllowedTarget
	}
	if f.nonce != "" {
		if tx.Nonce, err = uint256.FromDecimal(f.nonce); err != nil {
			return handleError(stderr, fmt.Errorf("invalid --nonce: %w", err))
		}
	} else if tx.Nonce, err = client.Nonce(ctx, tx.From); err != nil {
		return handleError(stderr, err)
	}

	if err := crypto.SignMetaTx(key, tx); err != nil {
		return handleError(stderr, err)
	}
	writeJSON(stdout, rpc.NewMetaTxJSON(tx))
	return 0
}

func runVerify(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var path string
	fs.StringVar(&path, "tx", "", "signed meta-transaction JSON file, or - for stdin")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	tx, err := readMetaTx(path)
	if err != nil {
		return handleError(stderr, err)
	}
	ctx, cancel := requestContext()
	defer cancel()
	verdict, err := newClient("").Verify(ctx, tx)
	if err != nil {
		return handleError(stderr, err)
	}
	writeJSON(stdout, verdict)
	if verdict.Status != string(paymaster.AssessmentReady) {
		return 2
	}
	return 0
}

func runSubmit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var path string
	fs.StringVar(&path, "tx", "", "signed meta-transaction JSON file, or - for stdin")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	tx, err := readMetaTx(path)
	if err != nil {
		return handleError(stderr, err)
	}
	ctx, cancel := requestContext()
	defer cancel()
	resp, err := newClient("").Execute(ctx, tx)
	if err != nil {
		return handleError(stderr, err)
	}
	writeJSON(stdout, resp)
	return 0
}

func runSend(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var f requestFlags
	f.register(fs, false)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key, err := loadKey(f.keystore)
	if err != nil {
		return handleError(stderr, err)
	}
	value, data, err := f.payload()
	if err != nil {
		return handleError(stderr, err)
	}
	ctx, cancel := requestContext()
	defer cancel()
	resp, _, err := newClient("").SignAndExecute(ctx, key, value, data, f.ttl)
	if err != nil {
		return handleError(stderr, err)
	}
	writeJSON(stdout, resp)
	return 0
}

func runNonce(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 || !common.IsHexAddress(args[0]) {
		fmt.Fprintln(stderr, "Error: Please provide an address.")
		return 1
	}
	ctx, cancel := requestContext()
	defer cancel()
	nonce, err := newClient("").Nonce(ctx, common.HexToAddress(args[0]))
	if err != nil {
		return handleError(stderr, err)
	}
	fmt.Fprintln(stdout, nonce.Dec())
	return 0
}

func runConfig(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	ctx, cancel := requestContext()
	defer cancel()
	cfg, err := newClient("").Config(ctx)
	if err != nil {
		return handleError(stderr, err)
	}
	writeJSON(stdout, cfg)
	return 0
}

func runEvents(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cursor uint64
	var limit int
	fs.Uint64Var(&cursor, "cursor", 0, "first sequence number to return")
	fs.IntVar(&limit, "limit", 0, "maximum entries to return")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	ctx, cancel := requestContext()
	defer cancel()
	page, err := newClient("").Events(ctx, cursor, limit)
	if err != nil {
		return handleError(stderr, err)
	}
	writeJSON(stdout, page)
	return 0
}
