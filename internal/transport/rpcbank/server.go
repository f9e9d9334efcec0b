package rpcbank

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"market_client/internal/core"

	"github.com/filecoin-project/go-jsonrpc"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// Handler exposes a core.IBank as the API method set
type Handler struct {
	bank   core.IBank
	logger core.ILogger
}

// NewHandler wraps bank
func NewHandler(bank core.IBank, logger core.ILogger) *Handler {
	return &Handler{
		bank:   bank,
		logger: logger.WithField("component", "bank_rpc"),
	}
}

func (h *Handler) NewAccount(ctx context.Context, username string) error {
	_, err := h.bank.NewAccount(ctx, username)
	if err != nil {
		h.logger.Debug("new account refused", "username", username, "error", err)
	}
	return toWire(err)
}

func (h *Handler) GetAccount(ctx context.Context, username string) error {
	_, err := h.bank.GetAccount(ctx, username)
	return toWire(err)
}

func (h *Handler) Deposit(ctx context.Context, username string, amount decimal.Decimal) error {
	acct, err := h.bank.GetAccount(ctx, username)
	if err != nil {
		return toWire(err)
	}
	return toWire(acct.Deposit(ctx, amount))
}

func (h *Handler) Balance(ctx context.Context, username string) (decimal.Decimal, error) {
	acct, err := h.bank.GetAccount(ctx, username)
	if err != nil {
		return decimal.Zero, toWire(err)
	}
	bal, err := acct.Balance(ctx)
	return bal, toWire(err)
}

var _ API = (*Handler)(nil)

// NewRouter mounts the JSON-RPC server at /rpc/v0. A non-empty token is required as a
// bearer token on every request.
func NewRouter(bank core.IBank, token string, logger core.ILogger) http.Handler {
	rpcServer := jsonrpc.NewServer(jsonrpc.WithServerErrors(Errors))
	rpcServer.Register(Namespace, NewHandler(bank, logger))

	m := mux.NewRouter()
	m.Handle("/rpc/v0", rpcServer)
	if token != "" {
		m.Use(bearerAuth(token))
	}
	return m
}

func bearerAuth(token string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
