package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"market_client/internal/cache"
	"market_client/internal/core"
	"market_client/internal/wish"
	"market_client/pkg/concurrency"
	apperrors "market_client/pkg/errors"
	"market_client/pkg/telemetry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "market_client/session"

// Session is one participant's membership in one marketplace.
type Session struct {
	username    string
	displayName string
	bank        core.IBank
	market      core.IMarketplace
	observer    core.IObserver
	pool        *concurrency.WorkerPool
	matcher     wish.Matcher
	cache       *cache.StateCache
	mailbox     *Mailbox
	dispatcher  *Dispatcher
	logger      core.ILogger
	opts        Options

	state atomic.Int32

	// mailbox-owned
	account core.IAccount
}

func newSession(username string, bank core.IBank, market core.IMarketplace, observer core.IObserver,
	pool *concurrency.WorkerPool, logger core.ILogger, opts Options) *Session {
	log := logger.WithField("username", username)

	displayName := opts.DisplayName
	if displayName == "" {
		displayName = username
	}

	s := &Session{
		username:    username,
		displayName: displayName,
		bank:        bank,
		market:      market,
		observer:    observer,
		pool:        pool,
		matcher:     wish.NewMatcher(opts.WishPolicy),
		cache:       cache.New(),
		mailbox:     NewMailbox(username, opts.MailboxBuffer, log),
		logger:      log.WithField("component", "session"),
		opts:        opts,
	}
	s.dispatcher = newDispatcher(username, s.mailbox, s, log)
	return s
}

// State returns the current lifecycle state
func (s *Session) State() core.SessionState {
	return core.SessionState(s.state.Load())
}

// setState must run on the mailbox
func (s *Session) setState(state core.SessionState) {
	s.state.Store(int32(state))
	telemetry.GetGlobalMetrics().SetSessionState(s.username, int64(state))
	s.observer.OnSessionStateChanged(state)
}

// emit must run on the mailbox
func (s *Session) emit(level core.LogLevel, kind, itemID, format string, args ...interface{}) {
	s.observer.OnLogEvent(core.LogEvent{
		Level:   level,
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		ItemID:  itemID,
	})
}

// post queues an observer log event from outside the mailbox
func (s *Session) post(level core.LogLevel, kind, itemID, format string, args ...interface{}) {
	if err := s.mailbox.Post(func() { s.emit(level, kind, itemID, format, args...) }); err != nil {
		s.logger.Debug("log event dropped", "kind", kind, "error", err)
	}
}

// traced runs fn on the calling goroutine with a span and the remote call metrics
// around it. Deadlines belong to the gateway adapters.
func (s *Session) traced(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := telemetry.GetTracer(tracerName).Start(ctx, op)
	span.SetAttributes(attribute.String("username", s.username))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	telemetry.GetGlobalMetrics().RecordRemoteCall(ctx, op, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("remote call failed", "op", op, "error", err)
	}
	return err
}

// call runs fn on the remote pool and waits for it. The mailbox stays free meanwhile.
// Pool tasks must use traced instead; waiting on the pool from inside it starves it.
func (s *Session) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return s.traced(ctx, op, func(ctx context.Context) error {
		result := make(chan error, 1)
		if err := s.pool.Run(ctx, func() { result <- fn(ctx) }); err != nil {
			return err
		}
		return <-result
	})
}

// register performs the registration sequence. On failure it rolls back and the
// mailbox is closed; the session must then be discarded.
func (s *Session) register(ctx context.Context) error {
	s.mailbox.Start()
	if err := s.mailbox.Do(func() { s.setState(core.StateRegistering) }); err != nil {
		return err
	}

	s.dispatcher.Activate()

	account, err := s.openAccount(ctx)
	if err == nil {
		err = s.call(ctx, "market.register", func(ctx context.Context) error {
			return s.market.Register(ctx, s.username, s.displayName, account, s.dispatcher)
		})
	}
	if err != nil {
		s.rollback(err)
		return err
	}

	balance, balanceErr := s.fetchBalance(ctx, account)

	if err := s.mailbox.Do(func() {
		s.account = account
		s.setState(core.StateRegistered)
		if balanceErr != nil {
			s.emit(core.LogWarn, core.KindRemoteFault, "", "Could not fetch balance: %v", balanceErr)
		} else {
			s.applyBalance(balance)
		}
		s.observer.OnWishListChanged(s.cache.Wishes())
		s.emit(core.LogInfo, core.KindSession, "", "Registered as '%s' on %s", s.username, s.market.Name())
	}); err != nil {
		return err
	}

	s.logger.Info("session registered", "marketplace", s.market.Name())
	return nil
}

// openAccount creates the account, falling back to the existing one. Only a freshly
// created account receives the opening deposit.
func (s *Session) openAccount(ctx context.Context) (core.IAccount, error) {
	var account core.IAccount
	err := s.call(ctx, "bank.new_account", func(ctx context.Context) error {
		var err error
		account, err = s.bank.NewAccount(ctx, s.username)
		return err
	})

	switch {
	case err == nil:
		if s.opts.InitialFunds.IsPositive() {
			if err := s.call(ctx, "bank.deposit", func(ctx context.Context) error {
				return account.Deposit(ctx, s.opts.InitialFunds)
			}); err != nil {
				// The account stays open unfunded; later registrations reuse it as is.
				return nil, fmt.Errorf("opening deposit: %w", err)
			}
		}
		return account, nil

	case errors.Is(err, apperrors.ErrAccountExists):
		s.logger.Info("account exists, reusing it")
		err = s.call(ctx, "bank.get_account", func(ctx context.Context) error {
			var err error
			account, err = s.bank.GetAccount(ctx, s.username)
			return err
		})
		if err != nil {
			return nil, err
		}
		return account, nil

	default:
		return nil, err
	}
}

func (s *Session) fetchBalance(ctx context.Context, account core.IAccount) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.call(ctx, "bank.balance", func(ctx context.Context) error {
		var err error
		balance, err = account.Balance(ctx)
		return err
	})
	return balance, err
}

func (s *Session) rollback(cause error) {
	s.dispatcher.Deactivate()
	_ = s.mailbox.Do(func() {
		s.emit(core.LogError, core.KindSession, "", "Registration failed: %v", cause)
		s.cache.Reset()
		s.setState(core.StateUnregistered)
	})
	s.mailbox.Close()
	<-s.mailbox.Done()
	telemetry.GetGlobalMetrics().ForgetSession(s.username)
	s.logger.Warn("registration rolled back", "error", cause)
}

// unregister is best-effort: the session always ends up Unregistered and the remote
// error, if any, is returned for reporting.
func (s *Session) unregister(ctx context.Context) error {
	if err := s.mailbox.Do(func() { s.setState(core.StateUnregistering) }); err != nil {
		return err
	}

	remoteErr := s.call(ctx, "market.unregister", func(ctx context.Context) error {
		return s.market.Unregister(ctx, s.username)
	})

	s.dispatcher.Deactivate()
	_ = s.mailbox.Do(func() {
		if remoteErr != nil {
			s.emit(core.LogError, core.KindRemoteFault, "", "Unregistration failed: %v", remoteErr)
		}
		s.cache.Reset()
		s.account = nil
		s.setState(core.StateUnregistered)
	})
	s.mailbox.Close()
	<-s.mailbox.Done()
	telemetry.GetGlobalMetrics().ForgetSession(s.username)

	s.logger.Info("session unregistered", "remote_error", remoteErr)
	return remoteErr
}

// fail reports a user action failure to the observer and wraps it
func (s *Session) fail(opErr *apperrors.OperationError, message string) error {
	kind := core.KindOperationError
	if apperrors.IsRemoteFault(opErr.Err) {
		kind = core.KindRemoteFault
	}
	s.post(core.LogError, kind, opErr.ItemID, "%s: %v", message, opErr.Err)
	return opErr
}

func (s *Session) buyItem(ctx context.Context, item core.Item) error {
	opErr := &apperrors.OperationError{Op: "buy", Item: item.Name, ItemID: item.ID}
	if item.Seller == s.username {
		opErr.Err = apperrors.ErrOwnItem
		return s.fail(opErr, fmt.Sprintf("Could not purchase the item %s", item.Name))
	}

	if err := s.call(ctx, "market.buy_item", func(ctx context.Context) error {
		return s.market.BuyItem(ctx, item, s.username)
	}); err != nil {
		opErr.Err = err
		return s.fail(opErr, fmt.Sprintf("Could not purchase the item %s", item.Name))
	}
	return nil
}

func (s *Session) listItem(ctx context.Context, name string, category core.Category, price decimal.Decimal) (core.Item, error) {
	item := core.Item{
		ID:       uuid.NewString(),
		Name:     name,
		Price:    price,
		Category: category,
		Seller:   s.username,
	}
	opErr := &apperrors.OperationError{Op: "list", Item: name, ItemID: item.ID}

	if name == "" || !category.Valid() || !price.IsPositive() {
		opErr.Err = apperrors.ErrInvalidItem
		return core.Item{}, s.fail(opErr, fmt.Sprintf("Could not sell the item %s", name))
	}

	if err := s.call(ctx, "market.add_item", func(ctx context.Context) error {
		return s.market.AddItem(ctx, item)
	}); err != nil {
		opErr.Err = err
		return core.Item{}, s.fail(opErr, fmt.Sprintf("Could not sell the item %s", name))
	}

	s.post(core.LogInfo, core.KindSession, item.ID, "Listed item '%s' for %s", item.Name, item.Price.StringFixed(2))
	return item, nil
}

func (s *Session) removeItem(ctx context.Context, item core.Item) error {
	opErr := &apperrors.OperationError{Op: "remove", Item: item.Name, ItemID: item.ID}
	if item.Seller != s.username {
		opErr.Err = apperrors.ErrNotOwner
		return s.fail(opErr, fmt.Sprintf("Could not remove the item %s", item.Name))
	}

	if err := s.call(ctx, "market.remove_item", func(ctx context.Context) error {
		return s.market.RemoveItem(ctx, item, s.username)
	}); err != nil {
		opErr.Err = err
		return s.fail(opErr, fmt.Sprintf("Could not remove the item %s", item.Name))
	}
	return nil
}

func (s *Session) addWish(ctx context.Context, w core.ItemWish) error {
	opErr := &apperrors.OperationError{Op: "add_wish", Wish: w.String()}
	if !w.Category.Valid() || !w.MaxPrice.IsPositive() {
		opErr.Err = apperrors.ErrInvalidWish
		return s.fail(opErr, "Could not add the wish")
	}

	// The wish is on the local list before the marketplace sees it: a purchase pushed
	// while AddWish is in flight is matched against it.
	if err := s.mailbox.Do(func() {
		s.cache.AppendWish(w)
		s.observer.OnWishListChanged(s.cache.Wishes())
	}); err != nil {
		return err
	}

	if err := s.call(ctx, "market.add_wish", func(ctx context.Context) error {
		return s.market.AddWish(ctx, w, s.username)
	}); err != nil {
		_ = s.mailbox.Do(func() {
			s.cache.ApplyWishRemoval([]core.ItemWish{w})
			s.observer.OnWishListChanged(s.cache.Wishes())
		})
		opErr.Err = err
		return s.fail(opErr, "Could not add the wish")
	}
	return nil
}

// refreshBalance must run on the mailbox and never waits: the read is handed to the pool
// and its result is queued back, so the last completion wins. A full pool is reported.
func (s *Session) refreshBalance() {
	account := s.account
	if account == nil {
		return
	}

	err := s.pool.TrySubmit(func() {
		var balance decimal.Decimal
		err := s.traced(context.Background(), "bank.balance", func(ctx context.Context) error {
			var err error
			balance, err = account.Balance(ctx)
			return err
		})
		postErr := s.mailbox.Post(func() {
			if err != nil {
				s.emit(core.LogWarn, core.KindRemoteFault, "", "Could not refresh balance: %v", err)
				return
			}
			s.applyBalance(balance)
		})
		if postErr != nil {
			s.logger.Debug("balance refresh discarded", "error", postErr)
		}
	})
	if err != nil {
		s.logger.Warn("balance refresh not scheduled", "error", err)
		s.emit(core.LogWarn, core.KindRemoteFault, "", "Could not refresh balance: %v", err)
	}
}

func (s *Session) applyBalance(balance decimal.Decimal) {
	s.cache.SetBalance(balance)
	telemetry.GetGlobalMetrics().SetBalance(s.username, balance.InexactFloat64())
	s.observer.OnBalanceChanged(balance)
}

// Worker-side notification handlers

func (s *Session) handleItemSold(item core.Item) {
	s.emit(core.LogInfo, core.KindItemSold, item.ID, "Your item '%s' sold for %s", item.Name, item.Price.StringFixed(2))
	s.refreshBalance()
}

func (s *Session) handleItemPurchased(item core.Item) {
	s.emit(core.LogInfo, core.KindItemPurchased, item.ID, "Purchased item '%s' for %s", item.Name, item.Price.StringFixed(2))
	s.refreshBalance()

	_, removed := s.matcher.Match(item, s.cache.Wishes())
	if len(removed) == 0 {
		return
	}
	s.cache.ApplyWishRemoval(removed)
	telemetry.GetGlobalMetrics().RecordWishRemovals(context.Background(), len(removed))
	for _, w := range removed {
		s.emit(core.LogInfo, core.KindWishFulfilled, item.ID, "Wish fulfilled: %s", w)
	}
	s.observer.OnWishListChanged(s.cache.Wishes())
}

func (s *Session) handleWishNotify(item core.Item) {
	s.emit(core.LogInfo, core.KindWishAvailable, item.ID, "An item from your wish list is available!")
}

func (s *Session) handleLackOfFunds() {
	s.emit(core.LogWarn, core.KindLackOfFunds, "", "Lack of funds! Cannot purchase")
}

func (s *Session) handleListingUpdate(items []core.Item) {
	s.cache.ReplaceListing(items)
	s.observer.OnListingChanged(s.cache.Listing())
}

func (s *Session) handleException(message string) {
	s.emit(core.LogError, core.KindRemoteFault, "", "Marketplace error: %s", message)
}
