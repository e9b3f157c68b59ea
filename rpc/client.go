package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stylustx/crypto"
	"stylustx/native/paymaster"
)

// APIError is returned for failures that are not part of the relay's
// closed error set, such as rate limiting or malformed requests.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rpc: status %d: %s", e.Status, e.Message)
}

// Client talks to a relay's HTTP surface.
type Client struct {
	baseURL    string
	httpClient *http.Client
	adminToken string
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the transport used for requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithAdminToken attaches a bearer token to admin requests.
func WithAdminToken(token string) ClientOption {
	return func(c *Client) {
		c.adminToken = strings.TrimSpace(token)
	}
}

// NewClient constructs a client for the relay at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Nonce returns the next nonce the relay expects from user.
func (c *Client) Nonce(ctx context.Context, user common.Address) (*uint256.Int, error) {
	var resp NonceResponse
	if err := c.do(ctx, http.MethodGet, "/v1/nonce/"+url.PathEscape(user.Hex()), nil, &resp, false); err != nil {
		return nil, err
	}
	return parseWord("nonce", resp.Nonce)
}

// Config returns the relay's configuration.
func (c *Client) Config(ctx context.Context) (*ConfigResponse, error) {
	var resp ConfigResponse
	if err := c.do(ctx, http.MethodGet, "/v1/config", nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MessageHash asks the relay for the canonical hash of tx.
func (c *Client) MessageHash(ctx context.Context, tx *paymaster.MetaTx) (common.Hash, error) {
	var resp HashResponse
	body := NewMetaTxJSON(tx)
	body.Signature = nil
	if err := c.do(ctx, http.MethodPost, "/v1/metatx/hash", body, &resp, false); err != nil {
		return common.Hash{}, err
	}
	return resp.Hash, nil
}

// Verify runs the relay's preflight checks against tx without submitting it.
func (c *Client) Verify(ctx context.Context, tx *paymaster.MetaTx) (*VerifyResponse, error) {
	var resp VerifyResponse
	if err := c.do(ctx, http.MethodPost, "/v1/metatx/verify", NewMetaTxJSON(tx), &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Execute submits a signed meta-transaction and returns the target's output.
// Relay rejections come back as *paymaster.Error values.
func (c *Client) Execute(ctx context.Context, tx *paymaster.MetaTx) (*ExecuteResponse, error) {
	var resp ExecuteResponse
	if err := c.do(ctx, http.MethodPost, "/v1/metatx/execute", NewMetaTxJSON(tx), &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SignAndExecute fetches the author's nonce, builds a request to the relay's
// allowed target with a deadline offset from now, signs it with key and
// submits it.
func (c *Client) SignAndExecute(ctx context.Context, key *crypto.PrivateKey, value *uint256.Int, data []byte, offset time.Duration) (*ExecuteResponse, *paymaster.MetaTx, error) {
	if key == nil {
		return nil, nil, fmt.Errorf("rpc: signing key required")
	}
	cfg, err := c.Config(ctx)
	if err != nil {
		return nil, nil, err
	}
	if offset <= 0 {
		offset = time.Duration(cfg.DefaultDeadlineSeconds) * time.Second
	}
	nonce, err := c.Nonce(ctx, key.Address())
	if err != nil {
		return nil, nil, err
	}
	tx := &paymaster.MetaTx{
		From:     key.Address(),
		To:       cfg.AllowedTarget,
		Value:    value,
		Data:     data,
		Nonce:    nonce,
		Deadline: crypto.DefaultDeadline(time.Now(), offset),
	}
	if err := crypto.SignMetaTx(key, tx); err != nil {
		return nil, nil, err
	}
	resp, err := c.Execute(ctx, tx)
	return resp, tx, err
}

// Events returns up to limit log entries starting at cursor. A zero limit
// lets the server pick its default page size.
func (c *Client) Events(ctx context.Context, cursor uint64, limit int) (*EventsResponse, error) {
	query := url.Values{}
	query.Set("cursor", strconv.FormatUint(cursor, 10))
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var resp EventsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/events?"+query.Encode(), nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pause stops the relay. Requires an admin token.
func (c *Client) Pause(ctx context.Context) (*ConfigResponse, error) {
	return c.admin(ctx, "/v1/admin/pause", nil)
}

// Unpause resumes the relay. Requires an admin token.
func (c *Client) Unpause(ctx context.Context) (*ConfigResponse, error) {
	return c.admin(ctx, "/v1/admin/unpause", nil)
}

// SetAllowedTarget replaces the relay's target. Requires an admin token.
func (c *Client) SetAllowedTarget(ctx context.Context, target common.Address) (*ConfigResponse, error) {
	return c.admin(ctx, "/v1/admin/target", addressRequest{Address: target})
}

// TransferOwnership hands the relay to owner. Requires an admin token.
func (c *Client) TransferOwnership(ctx context.Context, owner common.Address) (*ConfigResponse, error) {
	return c.admin(ctx, "/v1/admin/owner", addressRequest{Address: owner})
}

func (c *Client) admin(ctx context.Context, path string, body interface{}) (*ConfigResponse, error) {
	var resp ConfigResponse
	if body == nil {
		body = struct{}{}
	}
	if err := c.do(ctx, http.MethodPost, path, body, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, admin bool) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("rpc: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin && c.adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRequestBytes))
	if err != nil {
		return fmt.Errorf("rpc: read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeErrorResponse(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("rpc: decode response: %w", err)
	}
	return nil
}

// decodeErrorResponse prefers the ABI revert data so callers can match the
// result with errors.Is against the paymaster sentinels.
func decodeErrorResponse(status int, raw []byte) error {
	var body errorResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return &APIError{Status: status, Message: strings.TrimSpace(string(raw))}
	}
	if len(body.Error.RevertData) > 0 {
		if pmErr, err := paymaster.DecodeError(body.Error.RevertData); err == nil {
			return pmErr
		}
	}
	return &APIError{Status: status, Message: body.Error.Message}
}
