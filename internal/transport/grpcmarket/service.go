package grpcmarket

import (
	"context"

	"market_client/internal/core"

	"google.golang.org/grpc"
)

// Service names
const (
	MarketplaceServiceName = "marketplace.v1.Marketplace"
	ListenerServiceName    = "marketplace.v1.Listener"
)

// Empty is the request or reply of calls that carry nothing
type Empty struct{}

type NameReply struct {
	Name string `json:"name"`
}

type RegisterRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	// Account is the owner of the bank account the marketplace settles against
	Account string `json:"account"`
	// CallbackAddress is where the marketplace dials the participant's listener service
	CallbackAddress string `json:"callback_address"`
}

type UnregisterRequest struct {
	Username string `json:"username"`
}

type ItemRequest struct {
	Item     core.Item `json:"item"`
	Username string    `json:"username,omitempty"`
}

type WishRequest struct {
	Wish     core.ItemWish `json:"wish"`
	Username string        `json:"username"`
}

// ItemEvent is an item notification addressed to one participant
type ItemEvent struct {
	Username string    `json:"username"`
	Item     core.Item `json:"item"`
}

type ListingEvent struct {
	Username string      `json:"username"`
	Items    []core.Item `json:"items"`
}

type ExceptionEvent struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

type ParticipantEvent struct {
	Username string `json:"username"`
}

// MarketplaceService is the server side of the marketplace service
type MarketplaceService interface {
	Name(ctx context.Context, req *Empty) (*NameReply, error)
	Register(ctx context.Context, req *RegisterRequest) (*Empty, error)
	Unregister(ctx context.Context, req *UnregisterRequest) (*Empty, error)
	BuyItem(ctx context.Context, req *ItemRequest) (*Empty, error)
	RemoveItem(ctx context.Context, req *ItemRequest) (*Empty, error)
	AddItem(ctx context.Context, req *ItemRequest) (*Empty, error)
	AddWish(ctx context.Context, req *WishRequest) (*Empty, error)
}

// ListenerService is the server side of the participant callback service
type ListenerService interface {
	OnItemSold(ctx context.Context, req *ItemEvent) (*Empty, error)
	OnItemPurchased(ctx context.Context, req *ItemEvent) (*Empty, error)
	OnWishNotify(ctx context.Context, req *ItemEvent) (*Empty, error)
	OnLackOfFunds(ctx context.Context, req *ParticipantEvent) (*Empty, error)
	OnListingUpdate(ctx context.Context, req *ListingEvent) (*Empty, error)
	OnException(ctx context.Context, req *ExceptionEvent) (*Empty, error)
}

// MarketplaceServiceDesc describes the marketplace service for grpc.Server.RegisterService
var MarketplaceServiceDesc = grpc.ServiceDesc{
	ServiceName: MarketplaceServiceName,
	HandlerType: (*MarketplaceService)(nil),
	Methods: []grpc.MethodDesc{
		unary(MarketplaceServiceName, "Name", MarketplaceService.Name),
		unary(MarketplaceServiceName, "Register", MarketplaceService.Register),
		unary(MarketplaceServiceName, "Unregister", MarketplaceService.Unregister),
		unary(MarketplaceServiceName, "BuyItem", MarketplaceService.BuyItem),
		unary(MarketplaceServiceName, "RemoveItem", MarketplaceService.RemoveItem),
		unary(MarketplaceServiceName, "AddItem", MarketplaceService.AddItem),
		unary(MarketplaceServiceName, "AddWish", MarketplaceService.AddWish),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "marketplace/v1/marketplace.json",
}

// ListenerServiceDesc describes the callback service hosted by each participant
var ListenerServiceDesc = grpc.ServiceDesc{
	ServiceName: ListenerServiceName,
	HandlerType: (*ListenerService)(nil),
	Methods: []grpc.MethodDesc{
		unary(ListenerServiceName, "OnItemSold", ListenerService.OnItemSold),
		unary(ListenerServiceName, "OnItemPurchased", ListenerService.OnItemPurchased),
		unary(ListenerServiceName, "OnWishNotify", ListenerService.OnWishNotify),
		unary(ListenerServiceName, "OnLackOfFunds", ListenerService.OnLackOfFunds),
		unary(ListenerServiceName, "OnListingUpdate", ListenerService.OnListingUpdate),
		unary(ListenerServiceName, "OnException", ListenerService.OnException),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "marketplace/v1/listener.json",
}

// unary builds a method descriptor around a method expression of the service interface
func unary[S any, Req any, Resp any](service, method string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	name := fullMethod(service, method)
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func fullMethod(service, method string) string {
	return "/" + service + "/" + method
}

// invoke performs a unary call with the JSON codec
func invoke[Resp any](ctx context.Context, conn grpc.ClientConnInterface, service, method string, req any) (*Resp, error) {
	out := new(Resp)
	if err := conn.Invoke(ctx, fullMethod(service, method), req, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return out, nil
}
