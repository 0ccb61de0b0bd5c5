package api

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

	"github.com/sealcoin/seal/pkg/contract"
	"github.com/sealcoin/seal/pkg/host"
	"github.com/sealcoin/seal/pkg/journal"
	"github.com/sealcoin/seal/pkg/logic"
	"github.com/sealcoin/seal/pkg/oracle"
)

var _ oracle.Ledger = (*Client)(nil)

// RemoteError is a problem response from the server. It unwraps to the
// matching sentinel error when the problem kind is known.
type RemoteError struct {
	Problem ProblemDetail
	err     error
}

func (e *RemoteError) Error() string { return e.Problem.Error() }

func (e *RemoteError) Unwrap() error { return e.err }

// Client talks to a Server.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client for the server at baseURL. A nil hc uses a
// client with a 30s timeout.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *Client) Invoke(ctx context.Context, inv host.Invocation) (*host.Result, error) {
	var res host.Result
	if err := c.do(ctx, http.MethodPost, "/v1/invoke", inv, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) InvokeToken(ctx context.Context, inv host.TokenInvocation) (*host.TokenResult, error) {
	var res host.TokenResult
	if err := c.do(ctx, http.MethodPost, "/v1/token/invoke", inv, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// PublishLogic uploads a bundle and returns its hash.
func (c *Client) PublishLogic(ctx context.Context, b logic.Bundle) (string, error) {
	data, err := b.Encode()
	if err != nil {
		return "", err
	}
	var res PublishResponse
	if err := c.do(ctx, http.MethodPost, "/v1/logic", json.RawMessage(data), &res); err != nil {
		return "", err
	}
	return res.Hash, nil
}

func (c *Client) Version(ctx context.Context) (*VersionResponse, error) {
	var res VersionResponse
	if err := c.do(ctx, http.MethodGet, "/v1/version", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) State(ctx context.Context) (contract.State, error) {
	var res StateResponse
	if err := c.do(ctx, http.MethodGet, "/v1/state", nil, &res); err != nil {
		return contract.State{}, err
	}
	return res.State, nil
}

func (c *Client) Balance(ctx context.Context, tok, holder contract.Address) (int64, error) {
	path := fmt.Sprintf("/v1/tokens/%s/balances/%s", url.PathEscape(string(tok)), url.PathEscape(string(holder)))
	var res BalanceResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return 0, err
	}
	return res.Balance, nil
}

// Journal lists up to limit receipts, newest first.
func (c *Client) Journal(ctx context.Context, limit int) ([]journal.Entry, error) {
	var res JournalResponse
	if err := c.do(ctx, http.MethodGet, "/v1/journal?limit="+strconv.Itoa(limit), nil, &res); err != nil {
		return nil, err
	}
	return res.Entries, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeProblem(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode %s response: %w", path, err)
	}
	return nil
}

func decodeProblem(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	re := &RemoteError{}
	if err := json.Unmarshal(data, &re.Problem); err != nil || re.Problem.Status == 0 {
		re.Problem = ProblemDetail{
			Status: resp.StatusCode,
			Title:  http.StatusText(resp.StatusCode),
			Detail: strings.TrimSpace(string(data)),
		}
	}
	re.err = sentinelFor(re.Problem.Kind)
	return re
}
