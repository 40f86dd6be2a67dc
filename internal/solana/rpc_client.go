package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"

	"chainproof-ledger/internal/observability"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
	defaultMaxDelay   = 10 * time.Second

	// getProgramAccounts over a busy program can return tens of megabytes.
	maxResponseBytes = 64 << 20
)

// HTTPClient calls a Solana JSON-RPC endpoint. Transport failures, 429 and
// 5xx responses are retried with exponential backoff, honoring Retry-After.
// Errors reported by the node come back as *RPCError and are not retried.
type HTTPClient struct {
	endpoint string
	http     *http.Client
	retry    backoff
	ids      atomic.Uint64
}

type backoff struct {
	retries int
	initial time.Duration
	max     time.Duration
}

// delay returns the wait before retry number n (1-based).
func (b backoff) delay(n int) time.Duration {
	d := b.initial
	for i := 1; i < n && d < b.max; i++ {
		d *= 2
	}
	return min(d, b.max)
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.http.Timeout = d }
}

// WithMaxRetries sets how many times a retryable failure is retried.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) { c.retry.retries = n }
}

// WithRetryDelay sets the first retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.retry.initial = d }
}

// WithMaxDelay caps the retry delay, including server-requested waits.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.retry.max = d }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) { c.http = client }
}

// NewHTTPClient creates a client for endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: defaultTimeout},
		retry:    backoff{retries: defaultMaxRetries, initial: defaultRetryDelay, max: defaultMaxDelay},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// retryableError marks a failure worth another attempt.
type retryableError struct {
	err   error
	after time.Duration // server-requested wait
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// invoke calls method and decodes its result. A null result leaves T zero.
func invoke[T any](ctx context.Context, c *HTTPClient, method string, params ...interface{}) (T, error) {
	var out T
	raw, err := c.call(ctx, method, params)
	if err != nil {
		return out, err
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%s: decode result: %w", method, err)
	}
	return out, nil
}

func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(request{JSONRPC: "2.0", ID: c.ids.Add(1), Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", method, err)
	}

	start := time.Now()
	defer func() { observability.RecordRPCLatency(method, time.Since(start).Seconds()) }()

	for attempt := 1; ; attempt++ {
		raw, err := c.post(ctx, body)
		if err == nil {
			return raw, nil
		}
		var retry *retryableError
		if !errors.As(err, &retry) {
			return nil, fmt.Errorf("%s: %w", method, err)
		}
		if attempt > c.retry.retries {
			return nil, fmt.Errorf("%s: giving up after %d attempts: %w", method, attempt, err)
		}

		wait := c.retry.delay(attempt)
		if retry.after > 0 {
			wait = min(retry.after, c.retry.max)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *HTTPClient) post(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &retryableError{err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &retryableError{err: errors.New("rate limited"), after: retryAfter(resp.Header)}
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &retryableError{err: fmt.Errorf("status %d: %s", resp.StatusCode, snippet(payload))}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, snippet(payload))
	}

	var r response
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if r.Error != nil {
		return nil, r.Error
	}
	return r.Result, nil
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func snippet(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

// GetTransaction retrieves a confirmed transaction. Returns nil if unknown.
func (c *HTTPClient) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	type result struct {
		Slot      int64  `json:"slot"`
		BlockTime *int64 `json:"blockTime"`
		Meta      *struct {
			Err         interface{} `json:"err"`
			LogMessages []string    `json:"logMessages"`
		} `json:"meta"`
	}
	res, err := invoke[*result](ctx, c, "getTransaction", signature, map[string]interface{}{
		"encoding":                       "json",
		"maxSupportedTransactionVersion": 0,
	})
	if err != nil || res == nil {
		return nil, err
	}

	tx := &Transaction{Slot: res.Slot, Signature: signature}
	if res.BlockTime != nil {
		tx.BlockTime = *res.BlockTime
	}
	if res.Meta != nil {
		tx.Meta = &TransactionMeta{Err: res.Meta.Err, LogMessages: res.Meta.LogMessages}
	}
	return tx, nil
}

// GetSignaturesForAddress lists signatures touching address, newest first.
func (c *HTTPClient) GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error) {
	params := []interface{}{address}
	if opts != nil {
		cfg := make(map[string]interface{})
		if opts.Before != "" {
			cfg["before"] = opts.Before
		}
		if opts.Until != "" {
			cfg["until"] = opts.Until
		}
		if opts.Limit > 0 {
			cfg["limit"] = opts.Limit
		}
		if len(cfg) > 0 {
			params = append(params, cfg)
		}
	}

	type entry struct {
		Signature string      `json:"signature"`
		Slot      int64       `json:"slot"`
		BlockTime *int64      `json:"blockTime"`
		Err       interface{} `json:"err"`
	}
	res, err := invoke[[]entry](ctx, c, "getSignaturesForAddress", params...)
	if err != nil {
		return nil, err
	}
	sigs := make([]SignatureInfo, len(res))
	for i, e := range res {
		sigs[i] = SignatureInfo{Signature: e.Signature, Slot: e.Slot, BlockTime: e.BlockTime, Err: e.Err}
	}
	return sigs, nil
}

// accountValue is an account in base64 encoding: data is [payload, "base64"].
type accountValue struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Data       []string `json:"data"`
	Executable bool     `json:"executable"`
}

func (v accountValue) info() AccountInfo {
	info := AccountInfo{Lamports: v.Lamports, Owner: v.Owner, Executable: v.Executable}
	if len(v.Data) > 0 {
		info.Data = v.Data[0]
	}
	return info
}

var base64Encoding = map[string]interface{}{"encoding": "base64"}

// GetAccountInfo retrieves one account. Returns nil if it does not exist.
func (c *HTTPClient) GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error) {
	res, err := invoke[struct {
		Value *accountValue `json:"value"`
	}](ctx, c, "getAccountInfo", pubkey, base64Encoding)
	if err != nil || res.Value == nil {
		return nil, err
	}
	info := res.Value.info()
	return &info, nil
}

// GetSlot retrieves the current slot.
func (c *HTTPClient) GetSlot(ctx context.Context) (int64, error) {
	return invoke[int64](ctx, c, "getSlot")
}

func (f AccountFilter) param() map[string]interface{} {
	if f.Memcmp != nil {
		return map[string]interface{}{
			"memcmp": map[string]interface{}{
				"offset": f.Memcmp.Offset,
				"bytes":  base58.Encode(f.Memcmp.Bytes),
			},
		}
	}
	return map[string]interface{}{"dataSize": f.DataSize}
}

// GetProgramAccounts retrieves all accounts owned by program that match every filter.
func (c *HTTPClient) GetProgramAccounts(ctx context.Context, program string, filters []AccountFilter) ([]ProgramAccount, error) {
	cfg := map[string]interface{}{"encoding": "base64"}
	if len(filters) > 0 {
		fs := make([]map[string]interface{}, len(filters))
		for i, f := range filters {
			fs[i] = f.param()
		}
		cfg["filters"] = fs
	}

	type entry struct {
		Pubkey  string       `json:"pubkey"`
		Account accountValue `json:"account"`
	}
	res, err := invoke[[]entry](ctx, c, "getProgramAccounts", program, cfg)
	if err != nil {
		return nil, err
	}
	accounts := make([]ProgramAccount, len(res))
	for i, e := range res {
		accounts[i] = ProgramAccount{Pubkey: e.Pubkey, Account: e.Account.info()}
	}
	return accounts, nil
}
