package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"vocwallet/core/types"
)

const (
	jsonRPCVersion = "2.0"
	defaultRPCID   = 1

	methodSubmitTx   = "vochain_submitTx"
	methodGetAccount = "vochain_getAccount"

	// CodeAccountNotFound is the JSON-RPC error code the gateway uses for unknown accounts.
	CodeAccountNotFound = -32004

	maxResponseBytes = 1 << 20
	defaultTimeout   = 30 * time.Second
)

// Client wraps a gateway JSON-RPC endpoint. It implements the gateway
// capability consumed by account.Account.
type Client struct {
	endpoint   string
	httpClient *http.Client
	authToken  string
	limiter    *rate.Limiter
	tracer     trace.Tracer
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for RPC calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAuthToken sets the bearer token attached to transaction submissions.
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.authToken = strings.TrimSpace(token)
	}
}

// WithRateLimit paces outgoing calls to rps requests per second with the given burst.
// Polling loops over many accounts share the limiter when they share the client.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// New initialises a client bound to the provided JSON-RPC endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("client: endpoint required")
	}
	c := &Client{
		endpoint: trimmed,
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tracer: otel.Tracer("vocwallet/sdk/client"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	return c, nil
}

// Endpoint returns the configured RPC URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// SubmitTransaction broadcasts a signed transaction and returns its hash.
func (c *Client) SubmitTransaction(ctx context.Context, tx *types.Transaction) (string, error) {
	if tx == nil {
		return "", fmt.Errorf("client: transaction required")
	}
	if len(tx.Signature) == 0 {
		return "", fmt.Errorf("client: %w", types.ErrUnsigned)
	}
	var hash string
	if err := c.call(ctx, methodSubmitTx, []interface{}{tx}, c.authToken != "", &hash); err != nil {
		return "", err
	}
	return hash, nil
}

// AccountInfo queries the ledger's current view of addr. Unknown accounts
// report types.ErrAccountNotFound.
func (c *Client) AccountInfo(ctx context.Context, addr common.Address) (*types.AccountInfo, error) {
	var info types.AccountInfo
	if err := c.call(ctx, methodGetAccount, []interface{}{addr.Hex()}, false, &info); err != nil {
		return nil, err
	}
	if info.Address == (common.Address{}) {
		info.Address = addr
	}
	return &info, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc,omitempty"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// RPCError is an error object returned by the gateway.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("client: rpc error %d: %s", e.Code, e.Message)
}

// Is maps the not-found code onto types.ErrAccountNotFound.
func (e *RPCError) Is(target error) bool {
	return target == types.ErrAccountNotFound && e.Code == CodeAccountNotFound
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, withAuth bool, out interface{}) (err error) {
	ctx, span := c.tracer.Start(ctx, method, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.method", method)))
	defer func() {
		if err != nil && !errors.Is(err, types.ErrAccountNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("client: rate limit: %w", err)
		}
	}
	payload := rpcRequest{
		JSONRPC: jsonRPCVersion,
		ID:      defaultRPCID,
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("client: encode rpc payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if withAuth {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: POST %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("client: read rpc response: %w", err)
	}
	var decoded rpcResponse
	decodeErr := json.Unmarshal(raw, &decoded)
	if decodeErr == nil && decoded.Error != nil {
		return decoded.Error
	}
	if resp.StatusCode != http.StatusOK {
		snippet := raw
		if len(snippet) > 1024 {
			snippet = snippet[:1024]
		}
		return fmt.Errorf("client: rpc error status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if decodeErr != nil {
		return fmt.Errorf("client: decode rpc response: %w", decodeErr)
	}
	if out == nil || len(decoded.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("client: decode rpc result: %w", err)
	}
	return nil
}
