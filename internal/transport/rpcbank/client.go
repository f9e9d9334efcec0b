package rpcbank

import (
	"context"
	"net/http"

	"market_client/internal/core"
	"market_client/pkg/resilience"

	"github.com/filecoin-project/go-jsonrpc"
	"github.com/shopspring/decimal"
)

// Client implements core.IBank against a remote JSON-RPC bank
type Client struct {
	api      API
	closer   jsonrpc.ClientCloser
	pipeline *resilience.Pipeline
	logger   core.ILogger
}

// Dial connects to addr (ws:// or http://). token, when set, is sent as a bearer token.
func Dial(ctx context.Context, addr, token string, policy resilience.Config, logger core.ILogger) (*Client, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	var api APIStruct
	closer, err := jsonrpc.NewMergeClient(ctx, addr, Namespace,
		[]interface{}{
			&api.Internal,
		},
		header,
		jsonrpc.WithErrors(Errors),
	)
	if err != nil {
		return nil, fromWire(err)
	}

	return &Client{
		api:      &api,
		closer:   closer,
		pipeline: resilience.NewPipeline(policy),
		logger:   logger.WithField("component", "bank_client"),
	}, nil
}

// Close releases the connection
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// BreakerOpen reports whether calls to the bank are short-circuited
func (c *Client) BreakerOpen() bool {
	return c.pipeline.BreakerOpen()
}

func (c *Client) NewAccount(ctx context.Context, username string) (core.IAccount, error) {
	err := resilience.Exec(ctx, c.pipeline, func(ctx context.Context) error {
		return fromWire(c.api.NewAccount(ctx, username))
	})
	if err != nil {
		return nil, err
	}
	return &account{client: c, owner: username}, nil
}

func (c *Client) GetAccount(ctx context.Context, username string) (core.IAccount, error) {
	_, err := resilience.Read(ctx, c.pipeline, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fromWire(c.api.GetAccount(ctx, username))
	})
	if err != nil {
		return nil, err
	}
	return &account{client: c, owner: username}, nil
}

// account is a remote account handle addressed by owner
type account struct {
	client *Client
	owner  string
}

func (a *account) Owner() string {
	return a.owner
}

func (a *account) Deposit(ctx context.Context, amount decimal.Decimal) error {
	return resilience.Exec(ctx, a.client.pipeline, func(ctx context.Context) error {
		return fromWire(a.client.api.Deposit(ctx, a.owner, amount))
	})
}

func (a *account) Balance(ctx context.Context) (decimal.Decimal, error) {
	return resilience.Read(ctx, a.client.pipeline, func(ctx context.Context) (decimal.Decimal, error) {
		bal, err := a.client.api.Balance(ctx, a.owner)
		return bal, fromWire(err)
	})
}

var (
	_ core.IBank    = (*Client)(nil)
	_ core.IAccount = (*account)(nil)
)
