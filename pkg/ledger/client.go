// Package ledger is a small JSON-RPC client for the claim program's
// transaction and object queries.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/portfolio-globe/backend/internal/util"

	"github.com/tidwall/gjson"
)

const retryBackoff = 200 * time.Millisecond

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int64
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Program identifies the function whose calls create claim objects.
type Program struct {
	Package  string `json:"package"`
	Module   string `json:"module"`
	Function string `json:"function"`
}

// Client talks to one RPC endpoint.
type Client struct {
	url     string
	program Program
	http    *http.Client
	tries   int
	nextID  atomic.Int64

	// PageSize is sent with every transaction query.
	PageSize int
	// BatchSize bounds the ids sent in one object lookup.
	BatchSize int
}

// ClientParams configures NewClient.
type ClientParams struct {
	URL     string
	Program Program
	// Tries is how often a failed call is attempted. Values below 1 mean 1.
	Tries      int
	PageSize   int
	BatchSize  int
	HTTPClient *http.Client
}

// NewClient returns a client for the endpoint at params.URL.
func NewClient(params ClientParams) *Client {
	hc := params.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	if params.PageSize <= 0 {
		params.PageSize = 50
	}
	if params.BatchSize <= 0 {
		params.BatchSize = 50
	}
	return &Client{
		url:       params.URL,
		program:   params.Program,
		http:      hc,
		tries:     params.Tries,
		PageSize:  params.PageSize,
		BatchSize: params.BatchSize,
	}
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// Call performs one JSON-RPC call and returns its result member.
func (c *Client) Call(ctx context.Context, method string, params ...any) (gjson.Result, error) {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return gjson.Result{}, err
	}

	// errors reported by the node are answers, not transport failures
	return util.RetryWithContext(ctx, c.tries, func(ctx context.Context) (gjson.Result, error) {
		return c.do(ctx, body)
	}, util.WithBackoff(retryBackoff), util.RetryIf(func(err error) bool {
		var rpcErr *RPCError
		return !errors.As(err, &rpcErr)
	}))
}

func (c *Client) do(ctx context.Context, body []byte) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return gjson.Result{}, fmt.Errorf("rpc status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("rpc response is not JSON")
	}

	doc := gjson.ParseBytes(raw)
	if e := doc.Get("error"); e.Exists() {
		return gjson.Result{}, &RPCError{Code: e.Get("code").Int(), Message: e.Get("message").String()}
	}
	result := doc.Get("result")
	if !result.Exists() {
		return gjson.Result{}, fmt.Errorf("rpc response has no result")
	}
	return result, nil
}
