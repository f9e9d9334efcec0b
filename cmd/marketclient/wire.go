package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"market_client/internal/bootstrap"
	"market_client/internal/config"
	"market_client/internal/core"
	"market_client/internal/infrastructure/health"
	"market_client/internal/infrastructure/metrics"
	"market_client/internal/journal"
	"market_client/internal/mock"
	"market_client/internal/session"
	"market_client/internal/transport/grpcmarket"
	"market_client/internal/transport/rpcbank"
	"market_client/internal/wish"
	"market_client/pkg/concurrency"
	"market_client/pkg/liveserver"
	"market_client/pkg/resilience"

	"go.uber.org/multierr"
)

// client is everything one marketclient process runs
type client struct {
	manager *session.Manager
	journal *journal.SQLiteJournal
	health  *health.HealthManager
	runners []bootstrap.Runner
	closers []func() error
}

// close releases resources in reverse construction order
func (c *client) close() error {
	var err error
	for i := len(c.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, c.closers[i]())
	}
	return err
}

func policyFor(maxRetries int, timeout time.Duration) resilience.Config {
	policy := resilience.DefaultConfig()
	policy.MaxRetries = maxRetries
	policy.Timeout = timeout
	return policy
}

// gateways builds the bank and marketplace selected by cfg
func (c *client) gateways(ctx context.Context, cfg *config.Config, logger core.ILogger) (core.IBank, core.IMarketplace, error) {
	var (
		bank    core.IBank
		sandbox *mock.Bank
	)
	switch cfg.Bank.Transport {
	case config.TransportJSONRPC:
		dialCtx, cancel := context.WithTimeout(ctx, cfg.Bank.RequestTimeout)
		defer cancel()
		rc, err := rpcbank.Dial(dialCtx, cfg.Bank.URL, cfg.Bank.Token.Value(), policyFor(cfg.Bank.MaxRetries, cfg.Bank.RequestTimeout), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("bank: %w", err)
		}
		c.closers = append(c.closers, func() error { rc.Close(); return nil })
		c.health.Register("bank", func() error {
			if rc.BreakerOpen() {
				return fmt.Errorf("bank circuit breaker open")
			}
			return nil
		})
		bank = rc
	default:
		sandbox = mock.NewBank()
		bank = sandbox
	}

	switch cfg.Marketplace.Transport {
	case config.TransportGRPC:
		lis, err := net.Listen("tcp", cfg.Marketplace.CallbackListen)
		if err != nil {
			return nil, nil, fmt.Errorf("callback listener: %w", err)
		}
		callbacks := grpcmarket.NewCallbackServer(logger)
		if err := callbacks.Bind(lis, cfg.Marketplace.CallbackAdvertise); err != nil {
			_ = lis.Close()
			return nil, nil, err
		}
		c.closers = append(c.closers, func() error { callbacks.Stop(); return nil })

		dialCtx, cancel := context.WithTimeout(ctx, cfg.Marketplace.RequestTimeout)
		defer cancel()
		mc, err := grpcmarket.Dial(dialCtx, grpcmarket.ClientOptions{
			Address:       cfg.Marketplace.Address,
			TLSCertFile:   cfg.Marketplace.TLSCertFile,
			TLSServerName: cfg.Marketplace.TLSServerName,
			APIKey:        cfg.Marketplace.APIKey.Value(),
			Policy:        policyFor(0, cfg.Marketplace.RequestTimeout),
		}, callbacks, logger)
		if err != nil {
			return nil, nil, err
		}
		c.closers = append(c.closers, mc.Close)
		c.health.Register("marketplace", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return mc.CheckHealth(checkCtx)
		})
		return bank, mc, nil
	default:
		name := cfg.Marketplace.Name
		if name == "" {
			name = "sandbox"
		}
		market := mock.NewMarketplace(name, sandbox, true)
		if err := mock.OpenHouse(ctx, sandbox, market, mock.Catalogue()); err != nil {
			return nil, nil, err
		}
		return bank, market, nil
	}
}

// wire assembles the session manager and its observers from configuration
func wire(ctx context.Context, app *bootstrap.App, console core.IObserver) (*client, error) {
	cfg, logger := app.Cfg, app.Logger
	c := &client{health: health.NewHealthManager(logger)}

	ok := false
	defer func() {
		if !ok {
			_ = c.close()
		}
	}()

	bank, market, err := c.gateways(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "remote",
		MaxWorkers:  cfg.Concurrency.RemotePoolSize,
		MaxCapacity: cfg.Concurrency.RemotePoolBuffer,
	}, logger)
	c.closers = append(c.closers, func() error { pool.Stop(); return nil })
	c.health.Register("remote_pool", pool.HealthCheck)

	observers := session.Fanout{console}

	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path, 0, logger)
		if err != nil {
			return nil, err
		}
		c.journal = j
		c.closers = append(c.closers, j.Close)
		observers = append(observers, j)
	}

	if cfg.Observer.Listen != "" {
		hub := liveserver.NewHub(logger)
		opts := liveserver.DefaultOptions()
		opts.Addr = cfg.Observer.Listen
		opts.AllowedOrigins = cfg.Observer.AllowedOrigins
		opts.Production = cfg.Observer.Production
		feed := liveserver.NewServer(hub, opts, logger)
		c.runners = append(c.runners, bootstrap.RunnerFunc(hub.Run), feed)
		observers = append(observers, liveserver.NewObserver(hub))
	}

	policy, err := wish.ParsePolicy(cfg.App.WishPolicy)
	if err != nil {
		return nil, err
	}
	opts := session.DefaultOptions()
	opts.DisplayName = cfg.App.DisplayName
	opts.InitialFunds = cfg.InitialFundsDecimal()
	opts.WishPolicy = policy
	opts.MailboxBuffer = cfg.Concurrency.MailboxBuffer

	mgr, err := session.NewManager(bank, market, observers, pool, logger, opts)
	if err != nil {
		return nil, err
	}
	c.manager = mgr
	c.closers = append(c.closers, func() error {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return mgr.Close(closeCtx)
	})
	c.health.Register("session", mgr.HealthCheck)

	if cfg.Telemetry.Enable {
		c.runners = append(c.runners, metrics.NewServer(cfg.Telemetry.MetricsPort, c.health, logger))
	}

	ok = true
	return c, nil
}
