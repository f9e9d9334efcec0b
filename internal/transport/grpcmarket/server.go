package grpcmarket

import (
	"context"
	"crypto/subtle"
	"strings"
	"sync"

	"market_client/internal/core"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// MetadataKeyAPIKey is the metadata key carrying the client's API key
const MetadataKeyAPIKey = "x-api-key"

// AccountResolver returns the bank account handle a registering participant settles with
type AccountResolver func(ctx context.Context, owner string) (core.IAccount, error)

// Server exposes a core.IMarketplace as the marketplace service. For each registered
// participant it dials the advertised listener service and hands the marketplace a
// CallbackClient.
type Server struct {
	market   core.IMarketplace
	accounts AccountResolver
	dialOpts []grpc.DialOption
	logger   core.ILogger

	mu        sync.Mutex
	callbacks map[string]*CallbackClient
}

// NewServer wraps market. dialOpts are used to reach participants' listener services.
func NewServer(market core.IMarketplace, accounts AccountResolver, logger core.ILogger, dialOpts ...grpc.DialOption) *Server {
	return &Server{
		market:    market,
		accounts:  accounts,
		dialOpts:  dialOpts,
		logger:    logger.WithField("component", "marketplace_grpc"),
		callbacks: make(map[string]*CallbackClient),
	}
}

// RegisterOn registers the marketplace service and a health service on gs
func (s *Server) RegisterOn(gs *grpc.Server) *health.Server {
	gs.RegisterService(&MarketplaceServiceDesc, s)
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(gs, hs)
	hs.SetServingStatus(MarketplaceServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	return hs
}

func (s *Server) Name(_ context.Context, _ *Empty) (*NameReply, error) {
	return &NameReply{Name: s.market.Name()}, nil
}

func (s *Server) Register(ctx context.Context, req *RegisterRequest) (*Empty, error) {
	if req.Username == "" || req.CallbackAddress == "" {
		return nil, status.Error(codes.InvalidArgument, "username and callback address are required")
	}
	account, err := s.accounts(ctx, req.Account)
	if err != nil {
		return nil, toStatus(err)
	}
	cb, err := DialCallback(req.CallbackAddress, req.Username, s.dialOpts...)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.market.Register(ctx, req.Username, req.DisplayName, account, cb); err != nil {
		_ = cb.Close()
		return nil, toStatus(err)
	}

	s.mu.Lock()
	old := s.callbacks[req.Username]
	s.callbacks[req.Username] = cb
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	s.logger.Info("Participant registered", "username", req.Username, "callback", req.CallbackAddress)
	return &Empty{}, nil
}

func (s *Server) Unregister(ctx context.Context, req *UnregisterRequest) (*Empty, error) {
	err := s.market.Unregister(ctx, req.Username)

	s.mu.Lock()
	cb := s.callbacks[req.Username]
	delete(s.callbacks, req.Username)
	s.mu.Unlock()
	if cb != nil {
		_ = cb.Close()
	}

	if err != nil {
		return nil, toStatus(err)
	}
	s.logger.Info("Participant unregistered", "username", req.Username)
	return &Empty{}, nil
}

func (s *Server) BuyItem(ctx context.Context, req *ItemRequest) (*Empty, error) {
	return &Empty{}, toStatus(s.market.BuyItem(ctx, req.Item, req.Username))
}

func (s *Server) RemoveItem(ctx context.Context, req *ItemRequest) (*Empty, error) {
	return &Empty{}, toStatus(s.market.RemoveItem(ctx, req.Item, req.Username))
}

func (s *Server) AddItem(ctx context.Context, req *ItemRequest) (*Empty, error) {
	return &Empty{}, toStatus(s.market.AddItem(ctx, req.Item))
}

func (s *Server) AddWish(ctx context.Context, req *WishRequest) (*Empty, error) {
	return &Empty{}, toStatus(s.market.AddWish(ctx, req.Wish, req.Username))
}

// Close drops every participant callback connection
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, cb := range s.callbacks {
		_ = cb.Close()
		delete(s.callbacks, name)
	}
}

// APIKeyInterceptor rejects calls without a matching x-api-key. Health checks pass through.
func APIKeyInterceptor(apiKey string, logger core.ILogger) grpc.UnaryServerInterceptor {
	log := logger.WithField("component", "auth")
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if strings.HasPrefix(info.FullMethod, "/grpc.health.v1.Health/") {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			log.Warn("Authentication failed: missing metadata", "method", info.FullMethod)
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		keys := md.Get(MetadataKeyAPIKey)
		if len(keys) == 0 {
			log.Warn("Authentication failed: missing API key", "method", info.FullMethod)
			return nil, status.Error(codes.Unauthenticated, "missing API key")
		}

		if subtle.ConstantTimeCompare([]byte(keys[0]), []byte(apiKey)) != 1 {
			log.Warn("Authentication failed: invalid API key", "method", info.FullMethod)
			return nil, status.Error(codes.Unauthenticated, "invalid API key")
		}

		return handler(ctx, req)
	}
}

var _ MarketplaceService = (*Server)(nil)
