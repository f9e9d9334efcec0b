package grpcmarket

import (
	"context"
	"errors"
	"fmt"

	"market_client/internal/core"
	"market_client/pkg/resilience"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

// ClientOptions configures the connection to a remote marketplace
type ClientOptions struct {
	Address       string
	TLSCertFile   string
	TLSServerName string
	APIKey        string
	Policy        resilience.Config
	// DialOptions are appended after the transport credentials, e.g. a bufconn dialer
	DialOptions []grpc.DialOption
}

// Client implements core.IMarketplace over gRPC. Listeners passed to Register are attached
// to the callback server, whose address is sent to the marketplace.
type Client struct {
	conn      *grpc.ClientConn
	health    grpc_health_v1.HealthClient
	callbacks *CallbackServer
	pipeline  *resilience.Pipeline
	apiKey    string
	name      string
	logger    core.ILogger
}

// Dial connects to the marketplace and fetches its name. callbacks must already be bound.
func Dial(ctx context.Context, opts ClientOptions, callbacks *CallbackServer, logger core.ILogger) (*Client, error) {
	if callbacks == nil {
		return nil, errors.New("callback server is required")
	}
	logger = logger.WithField("component", "marketplace_client")

	var dialOpts []grpc.DialOption
	if opts.TLSCertFile != "" {
		creds, err := credentials.NewClientTLSFromFile(opts.TLSCertFile, opts.TLSServerName)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS cert from %s: %w", opts.TLSCertFile, err)
		}
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(creds))
		logger.Info("Using TLS for marketplace connection", "cert", opts.TLSCertFile, "server_name", opts.TLSServerName)
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		logger.Warn("Using insecure marketplace connection (plaintext)")
	}
	dialOpts = append(dialOpts, opts.DialOptions...)

	conn, err := grpc.NewClient(opts.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create marketplace client for %s: %w", opts.Address, err)
	}

	c := &Client{
		conn:      conn,
		health:    grpc_health_v1.NewHealthClient(conn),
		callbacks: callbacks,
		pipeline:  resilience.NewPipeline(opts.Policy),
		apiKey:    opts.APIKey,
		logger:    logger,
	}

	reply, err := resilience.Read(ctx, c.pipeline, func(ctx context.Context) (*NameReply, error) {
		r, err := invoke[NameReply](c.withAuth(ctx), c.conn, MarketplaceServiceName, "Name", &Empty{})
		return r, fromStatus(err)
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("marketplace at %s: %w", opts.Address, err)
	}
	c.name = reply.Name
	c.logger = logger.WithField("marketplace", c.name)
	c.logger.Info("Connected to marketplace", "address", opts.Address)
	return c, nil
}

// Close releases the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// BreakerOpen reports whether calls to the marketplace are short-circuited
func (c *Client) BreakerOpen() bool {
	return c.pipeline.BreakerOpen()
}

// CheckHealth asks the marketplace's health service whether it is serving
func (c *Client) CheckHealth(ctx context.Context) error {
	resp, err := c.health.Check(c.withAuth(ctx), &grpc_health_v1.HealthCheckRequest{
		Service: MarketplaceServiceName,
	})
	if err != nil {
		return fmt.Errorf("remote health check failed: %w", err)
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("remote service status: %s", resp.Status)
	}
	return nil
}

func (c *Client) withAuth(ctx context.Context) context.Context {
	if c.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, MetadataKeyAPIKey, c.apiKey)
}

func (c *Client) exec(ctx context.Context, method string, req any) error {
	return resilience.Exec(ctx, c.pipeline, func(ctx context.Context) error {
		_, err := invoke[Empty](c.withAuth(ctx), c.conn, MarketplaceServiceName, method, req)
		return fromStatus(err)
	})
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) Register(ctx context.Context, username, displayName string, account core.IAccount, listener core.IListener) error {
	addr := c.callbacks.Address()
	if addr == "" {
		return errors.New("callback server is not bound")
	}

	c.callbacks.Attach(username, listener)
	err := c.exec(ctx, "Register", &RegisterRequest{
		Username:        username,
		DisplayName:     displayName,
		Account:         account.Owner(),
		CallbackAddress: addr,
	})
	if err != nil {
		c.callbacks.Detach(username)
		return err
	}
	return nil
}

func (c *Client) Unregister(ctx context.Context, username string) error {
	defer c.callbacks.Detach(username)
	return c.exec(ctx, "Unregister", &UnregisterRequest{Username: username})
}

func (c *Client) BuyItem(ctx context.Context, item core.Item, username string) error {
	return c.exec(ctx, "BuyItem", &ItemRequest{Item: item, Username: username})
}

func (c *Client) RemoveItem(ctx context.Context, item core.Item, username string) error {
	return c.exec(ctx, "RemoveItem", &ItemRequest{Item: item, Username: username})
}

func (c *Client) AddItem(ctx context.Context, item core.Item) error {
	return c.exec(ctx, "AddItem", &ItemRequest{Item: item})
}

func (c *Client) AddWish(ctx context.Context, wish core.ItemWish, username string) error {
	return c.exec(ctx, "AddWish", &WishRequest{Wish: wish, Username: username})
}

var _ core.IMarketplace = (*Client)(nil)
