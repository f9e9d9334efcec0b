package grpcmarket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"market_client/internal/core"
	apperrors "market_client/pkg/errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultCallbackTimeout = 5 * time.Second

// CallbackServer hosts the listener service on the participant side and routes each
// notification to the listener attached for the addressed username.
type CallbackServer struct {
	server *grpc.Server
	logger core.ILogger

	mu        sync.RWMutex
	listeners map[string]core.IListener
	lis       net.Listener
	advertise string
}

// NewCallbackServer creates an unbound callback server
func NewCallbackServer(logger core.ILogger, opts ...grpc.ServerOption) *CallbackServer {
	s := &CallbackServer{
		server:    grpc.NewServer(opts...),
		logger:    logger.WithField("component", "callback_server"),
		listeners: make(map[string]core.IListener),
	}
	s.server.RegisterService(&ListenerServiceDesc, &listenerHandler{callbacks: s})
	return s
}

// Bind serves on lis in the background. advertise, when set, is the address handed to the
// marketplace instead of the bound one.
func (s *CallbackServer) Bind(lis net.Listener, advertise string) error {
	s.mu.Lock()
	if s.lis != nil {
		s.mu.Unlock()
		return errors.New("callback server already bound")
	}
	s.lis = lis
	s.advertise = advertise
	s.mu.Unlock()

	s.logger.Info("Callback server listening", "addr", lis.Addr().String(), "advertise", s.Address())
	go func() {
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error("Callback server stopped", "error", err)
		}
	}()
	return nil
}

// Address is where the marketplace should dial back. Empty until bound.
func (s *CallbackServer) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.advertise != "" {
		return s.advertise
	}
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

// Attach routes notifications addressed to username to listener
func (s *CallbackServer) Attach(username string, listener core.IListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[username] = listener
}

// Detach stops routing notifications for username
func (s *CallbackServer) Detach(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, username)
}

func (s *CallbackServer) listener(username string) (core.IListener, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listeners[username]
	if !ok {
		return nil, apperrors.ErrListenerInactive
	}
	return l, nil
}

// Stop drains in-flight notifications and closes the listener
func (s *CallbackServer) Stop() {
	s.server.GracefulStop()
}

// Run blocks until ctx is done, then stops the server
func (s *CallbackServer) Run(ctx context.Context) error {
	<-ctx.Done()
	s.Stop()
	return nil
}

type listenerHandler struct {
	callbacks *CallbackServer
}

func (h *listenerHandler) deliver(username string, fn func(core.IListener) error) (*Empty, error) {
	l, err := h.callbacks.listener(username)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := fn(l); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (h *listenerHandler) OnItemSold(_ context.Context, req *ItemEvent) (*Empty, error) {
	return h.deliver(req.Username, func(l core.IListener) error { return l.OnItemSold(req.Item) })
}

func (h *listenerHandler) OnItemPurchased(_ context.Context, req *ItemEvent) (*Empty, error) {
	return h.deliver(req.Username, func(l core.IListener) error { return l.OnItemPurchased(req.Item) })
}

func (h *listenerHandler) OnWishNotify(_ context.Context, req *ItemEvent) (*Empty, error) {
	return h.deliver(req.Username, func(l core.IListener) error { return l.OnWishNotify(req.Item) })
}

func (h *listenerHandler) OnLackOfFunds(_ context.Context, req *ParticipantEvent) (*Empty, error) {
	return h.deliver(req.Username, func(l core.IListener) error { return l.OnLackOfFunds() })
}

func (h *listenerHandler) OnListingUpdate(_ context.Context, req *ListingEvent) (*Empty, error) {
	return h.deliver(req.Username, func(l core.IListener) error { return l.OnListingUpdate(req.Items) })
}

func (h *listenerHandler) OnException(_ context.Context, req *ExceptionEvent) (*Empty, error) {
	return h.deliver(req.Username, func(l core.IListener) error { return l.OnException(req.Message) })
}

// CallbackClient is the marketplace-side handle to one participant's listener service
type CallbackClient struct {
	conn     grpc.ClientConnInterface
	closer   func() error
	username string
	timeout  time.Duration
}

// DialCallback connects to the listener service at address. Plaintext unless opts say otherwise.
func DialCallback(address, username string, opts ...grpc.DialOption) (*CallbackClient, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial callback %s: %w", address, err)
	}
	return &CallbackClient{
		conn:     conn,
		closer:   conn.Close,
		username: username,
		timeout:  defaultCallbackTimeout,
	}, nil
}

// Close releases the connection
func (c *CallbackClient) Close() error {
	return c.closer()
}

func (c *CallbackClient) call(method string, req any) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	_, err := invoke[Empty](ctx, c.conn, ListenerServiceName, method, req)
	return fromStatus(err)
}

func (c *CallbackClient) OnItemSold(item core.Item) error {
	return c.call("OnItemSold", &ItemEvent{Username: c.username, Item: item})
}

func (c *CallbackClient) OnItemPurchased(item core.Item) error {
	return c.call("OnItemPurchased", &ItemEvent{Username: c.username, Item: item})
}

func (c *CallbackClient) OnWishNotify(item core.Item) error {
	return c.call("OnWishNotify", &ItemEvent{Username: c.username, Item: item})
}

func (c *CallbackClient) OnLackOfFunds() error {
	return c.call("OnLackOfFunds", &ParticipantEvent{Username: c.username})
}

func (c *CallbackClient) OnListingUpdate(items []core.Item) error {
	return c.call("OnListingUpdate", &ListingEvent{Username: c.username, Items: items})
}

func (c *CallbackClient) OnException(message string) error {
	return c.call("OnException", &ExceptionEvent{Username: c.username, Message: message})
}

var (
	_ ListenerService = (*listenerHandler)(nil)
	_ core.IListener  = (*CallbackClient)(nil)
)
