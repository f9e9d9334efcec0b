package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"market_client/internal/core"
	"market_client/internal/mock"
	"market_client/pkg/concurrency"
	apperrors "market_client/pkg/errors"
	"market_client/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fixture struct {
	bank   *mock.Bank
	market *mock.Marketplace
	pool   *concurrency.WorkerPool
}

func newFixture(t *testing.T, autoPurchase bool) *fixture {
	t.Helper()
	return newFixtureWithPool(t, autoPurchase, concurrency.PoolConfig{Name: "remote", MaxWorkers: 4, MaxCapacity: 128})
}

func newFixtureWithPool(t *testing.T, autoPurchase bool, cfg concurrency.PoolConfig) *fixture {
	t.Helper()
	bank := mock.NewBank()
	pool := concurrency.NewWorkerPool(cfg, logging.NewNopLogger())
	t.Cleanup(pool.Stop)
	return &fixture{
		bank:   bank,
		market: mock.NewMarketplace("sandbox", bank, autoPurchase),
		pool:   pool,
	}
}

func (f *fixture) manager(t *testing.T) (*Manager, *mock.Recorder) {
	t.Helper()
	return f.managerWith(t, f.bank, f.market)
}

func (f *fixture) managerWith(t *testing.T, bank core.IBank, market core.IMarketplace) (*Manager, *mock.Recorder) {
	t.Helper()
	rec := mock.NewRecorder()
	opts := DefaultOptions()
	opts.MailboxBuffer = 128
	mgr, err := NewManager(bank, market, rec, f.pool, logging.NewNopLogger(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })
	return mgr, rec
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func booksWish(max int64) core.ItemWish {
	return core.ItemWish{Category: core.CategoryBooks, MaxPrice: dec(max)}
}

func balanceIs(rec *mock.Recorder, want int64) func() bool {
	return func() bool {
		b, ok := rec.LastBalance()
		return ok && b.Equal(dec(want))
	}
}

func TestNewManager_RequiresGateways(t *testing.T) {
	f := newFixture(t, false)
	_, err := NewManager(nil, f.market, nil, f.pool, logging.NewNopLogger(), DefaultOptions())
	assert.ErrorIs(t, err, apperrors.ErrMissingCollaborator)
	_, err = NewManager(f.bank, nil, nil, f.pool, logging.NewNopLogger(), DefaultOptions())
	assert.ErrorIs(t, err, apperrors.ErrMissingCollaborator)
}

func TestRegister_FreshAccount(t *testing.T) {
	f := newFixture(t, false)
	mgr, rec := f.manager(t)

	require.NoError(t, mgr.Register(context.Background(), "alice"))

	assert.Equal(t, core.StateRegistered, mgr.State())
	assert.Equal(t, "alice", mgr.Username())
	assert.True(t, f.market.Registered("alice"))

	bal, ok := mgr.Balance()
	require.True(t, ok)
	assert.True(t, bal.Equal(dec(1000)))
	assert.True(t, balanceIs(rec, 1000)())

	wishes, ok := rec.LastWishList()
	require.True(t, ok)
	assert.Empty(t, wishes)

	assert.Equal(t, []core.SessionState{core.StateRegistering, core.StateRegistered}, rec.States())
	assert.NotEmpty(t, rec.Listings(), "listing pushed during registration is applied")
}

func TestRegister_ExistingAccountFallsBack(t *testing.T) {
	f := newFixture(t, false)
	mgr, rec := f.manager(t)
	ctx := context.Background()

	require.NoError(t, mgr.Register(ctx, "alice"))
	require.NoError(t, mgr.Unregister(ctx))
	require.NoError(t, mgr.Register(ctx, "alice"))

	assert.Equal(t, 1, f.bank.AccountCount())
	assert.True(t, balanceIs(rec, 1000)(), "fallback path must not deposit again")
}

func TestRegister_SameUsernameFromTwoClients(t *testing.T) {
	f := newFixture(t, false)
	first, _ := f.manager(t)
	second, _ := f.manager(t)
	ctx := context.Background()

	require.NoError(t, first.Register(ctx, "alice"))
	require.NoError(t, first.Unregister(ctx))
	require.NoError(t, second.Register(ctx, "alice"))

	assert.Equal(t, 1, f.bank.AccountCount())
}

func TestRegister_Preconditions(t *testing.T) {
	f := newFixture(t, false)
	mgr, _ := f.manager(t)
	ctx := context.Background()

	err := mgr.Register(ctx, "   ")
	assert.ErrorIs(t, err, apperrors.ErrEmptyUsername)
	assert.Equal(t, core.StateUnregistered, mgr.State())
	assert.Equal(t, 0, f.bank.AccountCount())

	require.NoError(t, mgr.Register(ctx, "alice"))
	err = mgr.Register(ctx, "bob")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	assert.Equal(t, "alice", mgr.Username())
}

func TestRegister_RemoteFailureRollsBack(t *testing.T) {
	tests := []struct {
		name  string
		fault func(f *fixture)
	}{
		{"bank unavailable", func(f *fixture) { f.bank.SetFault("new_account", apperrors.ErrUnavailable) }},
		{"lookup unavailable", func(f *fixture) {
			_, _ = f.bank.NewAccount(context.Background(), "alice")
			f.bank.SetFault("get_account", apperrors.ErrUnavailable)
		}},
		{"deposit unavailable", func(f *fixture) { f.bank.SetFault("deposit", apperrors.ErrUnavailable) }},
		{"marketplace unavailable", func(f *fixture) { f.market.SetFault("register", apperrors.ErrUnavailable) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			mgr, rec := f.manager(t)
			tt.fault(f)

			err := mgr.Register(context.Background(), "alice")

			var sessErr *apperrors.SessionError
			require.ErrorAs(t, err, &sessErr)
			assert.Equal(t, "register", sessErr.Op)
			assert.ErrorIs(t, err, apperrors.ErrUnavailable)

			assert.Equal(t, core.StateUnregistered, mgr.State())
			assert.Nil(t, mgr.Listener())
			assert.Equal(t, []core.SessionState{core.StateRegistering, core.StateUnregistered}, rec.States())
			assert.NotEmpty(t, rec.LogsOfKind(core.KindSession))
		})
	}
}

func TestRegister_FailedOpeningDepositIsNotRetried(t *testing.T) {
	f := newFixture(t, false)
	mgr, rec := f.manager(t)
	ctx := context.Background()

	f.bank.SetFault("deposit", apperrors.ErrUnavailable)
	err := mgr.Register(ctx, "alice")
	require.ErrorIs(t, err, apperrors.ErrUnavailable)
	assert.Contains(t, err.Error(), "opening deposit")
	assert.Equal(t, 1, f.bank.AccountCount())

	f.bank.SetFault("deposit", nil)
	require.NoError(t, mgr.Register(ctx, "alice"))
	assert.True(t, balanceIs(rec, 0)(), "existing account is reused without a deposit")
}

func TestRegister_BalanceFailureIsReported(t *testing.T) {
	f := newFixture(t, false)
	mgr, rec := f.manager(t)
	f.bank.SetFault("balance", apperrors.ErrUnavailable)

	require.NoError(t, mgr.Register(context.Background(), "alice"))
	assert.Equal(t, core.StateRegistered, mgr.State())
	assert.NotEmpty(t, rec.LogsOfKind(core.KindRemoteFault))
	_, known := mgr.Balance()
	assert.False(t, known)
}

func TestUnregister_AlwaysEndsUnregistered(t *testing.T) {
	f := newFixture(t, false)
	mgr, rec := f.manager(t)
	ctx := context.Background()

	require.NoError(t, mgr.Register(ctx, "alice"))
	f.market.SetFault("unregister", apperrors.ErrUnavailable)

	err := mgr.Unregister(ctx)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
	assert.Equal(t, core.StateUnregistered, mgr.State())
	assert.Equal(t, core.StateUnregistered, rec.States()[len(rec.States())-1])
	assert.NotEmpty(t, rec.LogsOfKind(core.KindRemoteFault))

	f.market.SetFault("unregister", nil)
	assert.ErrorIs(t, mgr.Unregister(ctx), apperrors.ErrInvalidState)
}

func TestUnregister_StopsCallbacks(t *testing.T) {
	f := newFixture(t, false)
	mgr, rec := f.manager(t)
	ctx := context.Background()

	require.NoError(t, mgr.Register(ctx, "alice"))
	listener := mgr.Listener()
	require.NotNil(t, listener)

	require.NoError(t, mgr.Unregister(ctx))
	logs := len(rec.Logs())

	assert.ErrorIs(t, listener.OnItemSold(core.Item{ID: "x", Name: "late"}), apperrors.ErrListenerInactive)
	assert.ErrorIs(t, listener.OnLackOfFunds(), apperrors.ErrListenerInactive)
	assert.ErrorIs(t, listener.OnListingUpdate(nil), apperrors.ErrListenerInactive)
	assert.Len(t, rec.Logs(), logs)
}

func TestScenario_Alice(t *testing.T) {
	f := newFixture(t, false)
	mgr, rec := f.manager(t)
	ctx := context.Background()

	require.NoError(t, mgr.Register(ctx, "alice"))
	assert.True(t, balanceIs(rec, 1000)())

	require.NoError(t, mgr.AddWish(ctx, booksWish(20)))
	require.Len(t, mgr.Wishes(), 1)

	listener := mgr.Listener()
	require.NoError(t, listener.OnItemPurchased(core.Item{
		ID: "p1", Name: "Dune", Price: dec(15), Category: core.CategoryBooks, Seller: "bob",
	}))
	assert.Eventually(t, func() bool {
		wl, ok := rec.LastWishList()
		return ok && len(wl) == 0 && len(rec.LogsOfKind(core.KindItemPurchased)) == 1
	}, waitFor, tick)
	assert.Empty(t, mgr.Wishes())
	assert.Eventually(t, func() bool { return len(rec.Balances()) == 2 }, waitFor, tick, "purchase refreshes the balance")

	require.NoError(t, listener.OnItemSold(core.Item{
		ID: "s1", Name: "Lamp", Price: dec(30), Category: core.CategoryHome, Seller: "alice",
	}))
	assert.Eventually(t, func() bool { return len(rec.Balances()) == 3 }, waitFor, tick, "sale refreshes the balance")
	assert.True(t, balanceIs(rec, 1000)())
	sold := rec.LogsOfKind(core.KindItemSold)
	require.Len(t, sold, 1)
	assert.Equal(t, "Your item 'Lamp' sold for 30.00", sold[0].Message)

	wishesBefore, balancesBefore := len(rec.WishLists()), len(rec.Balances())
	require.NoError(t, listener.OnLackOfFunds())
	assert.Eventually(t, func() bool { return len(rec.LogsOfKind(core.KindLackOfFunds)) == 1 }, waitFor, tick)
	assert.Equal(t, "Lack of funds! Cannot purchase", rec.LogsOfKind(core.KindLackOfFunds)[0].Message)
	assert.Len(t, rec.WishLists(), wishesBefore)
	assert.Len(t, rec.Balances(), balancesBefore)

	require.NoError(t, mgr.Unregister(ctx))
	assert.Equal(t, core.StateUnregistered, mgr.State())
	assert.ErrorIs(t, listener.OnItemSold(core.Item{ID: "s2"}), apperrors.ErrListenerInactive)
}

func TestCallbacks_ConcurrentDeliveryLosesNothing(t *testing.T) {
	f := newFixture(t, false)
	mgr, rec := f.manager(t)
	ctx := context.Background()

	const n = 20
	require.NoError(t, mgr.Register(ctx, "alice"))
	for i := 0; i < n; i++ {
		require.NoError(t, mgr.AddWish(ctx, booksWish(int64(100+i))))
	}
	listener := mgr.Listener()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, listener.OnItemSold(core.Item{
				ID: fmt.Sprintf("s%d", i), Name: "sold", Price: dec(5), Category: core.CategoryToys, Seller: "alice",
			}))
		}(i)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, listener.OnItemPurchased(core.Item{
				ID: fmt.Sprintf("p%d", i), Name: "bought", Price: dec(50), Category: core.CategoryBooks, Seller: "bob",
			}))
		}(i)
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		return len(mgr.Wishes()) == 0 &&
			len(rec.LogsOfKind(core.KindItemSold)) == n &&
			len(rec.LogsOfKind(core.KindItemPurchased)) == n &&
			len(rec.LogsOfKind(core.KindWishFulfilled)) == n
	}, waitFor, tick)

	// one balance event from registration plus one per refresh
	assert.Eventually(t, func() bool { return len(rec.Balances()) == 2*n+1 }, waitFor, tick)
	assert.True(t, balanceIs(rec, 1000)())
	assert.Empty(t, rec.LogsOfKind(core.KindRemoteFault))
}

func TestCallbacks_RefreshOnSingleWorkerPool(t *testing.T) {
	f := newFixtureWithPool(t, false, concurrency.PoolConfig{Name: "single", MaxWorkers: 1, MaxCapacity: 16})
	mgr, rec := f.manager(t)
	ctx := context.Background()
	require.NoError(t, mgr.Register(ctx, "alice"))

	account, err := f.bank.GetAccount(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, account.Deposit(ctx, dec(5)))

	listener := mgr.Listener()
	for i := 0; i < 8; i++ {
		require.NoError(t, listener.OnItemSold(core.Item{ID: fmt.Sprintf("s%d", i), Name: "sold", Price: dec(5)}))
	}

	assert.Eventually(t, func() bool { return len(rec.Balances()) == 9 }, waitFor, tick)
	assert.True(t, balanceIs(rec, 1005)())
	assert.Empty(t, rec.LogsOfKind(core.KindRemoteFault))
}

func TestCallbacks_RefreshOnFullPoolIsReported(t *testing.T) {
	f := newFixtureWithPool(t, false, concurrency.PoolConfig{Name: "tight", MaxWorkers: 1, MaxCapacity: 1})
	mgr, rec := f.manager(t)
	require.NoError(t, mgr.Register(context.Background(), "alice"))

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, f.pool.Submit(func() {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, f.pool.TrySubmit(func() { <-release }))

	require.NoError(t, mgr.Listener().OnItemSold(core.Item{ID: "s1", Name: "sold", Price: dec(5)}))
	assert.Eventually(t, func() bool {
		faults := rec.LogsOfKind(core.KindRemoteFault)
		return len(faults) == 1 && strings.HasPrefix(faults[0].Message, "Could not refresh balance")
	}, waitFor, tick)
	assert.Len(t, rec.LogsOfKind(core.KindItemSold), 1)
	close(release)
}

// gatedBank opens accounts whose balance reads follow a script: the first refresh
// blocks until released.
type gatedBank struct {
	*mock.Bank
	reads   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

type gatedAccount struct {
	core.IAccount
	bank *gatedBank
}

func (b *gatedBank) NewAccount(ctx context.Context, username string) (core.IAccount, error) {
	acct, err := b.Bank.NewAccount(ctx, username)
	if err != nil {
		return nil, err
	}
	return &gatedAccount{IAccount: acct, bank: b}, nil
}

func (a *gatedAccount) Balance(ctx context.Context) (decimal.Decimal, error) {
	switch a.bank.reads.Add(1) {
	case 1:
		return dec(1000), nil
	case 2:
		close(a.bank.entered)
		<-a.bank.release
		return dec(111), nil
	default:
		return dec(222), nil
	}
}

func TestCallbacks_BalanceLastCompletionWins(t *testing.T) {
	f := newFixture(t, false)
	bank := &gatedBank{Bank: f.bank, entered: make(chan struct{}), release: make(chan struct{})}
	mgr, rec := f.managerWith(t, bank, mock.NewMarketplace("sandbox", f.bank, false))
	require.NoError(t, mgr.Register(context.Background(), "alice"))
	listener := mgr.Listener()

	require.NoError(t, listener.OnItemSold(core.Item{ID: "slow", Name: "sold", Price: dec(1)}))
	<-bank.entered
	require.NoError(t, listener.OnItemSold(core.Item{ID: "fast", Name: "sold", Price: dec(1)}))
	assert.Eventually(t, balanceIs(rec, 222), waitFor, tick)

	close(bank.release)
	assert.Eventually(t, balanceIs(rec, 111), waitFor, tick)
	bal, ok := mgr.Balance()
	require.True(t, ok)
	assert.True(t, bal.Equal(dec(111)))
}

func TestCallbacks_ListingWishNotifyException(t *testing.T) {
	f := newFixture(t, false)
	mgr, rec := f.manager(t)
	require.NoError(t, mgr.Register(context.Background(), "alice"))
	listener := mgr.Listener()

	items := []core.Item{
		{ID: "1", Name: "Dune", Price: dec(10), Category: core.CategoryBooks, Seller: "bob"},
		{ID: "2", Name: "Ball", Price: dec(4), Category: core.CategorySports, Seller: "carol"},
	}
	require.NoError(t, listener.OnListingUpdate(items))
	items[0].Name = "mutated by caller"

	assert.Eventually(t, func() bool { return len(mgr.Listing()) == 2 }, waitFor, tick)
	it, ok := mgr.Item("1")
	require.True(t, ok)
	assert.Equal(t, "Dune", it.Name)

	require.NoError(t, listener.OnWishNotify(items[1]))
	require.NoError(t, listener.OnException("settlement backlog"))
	assert.Eventually(t, func() bool {
		return len(rec.LogsOfKind(core.KindWishAvailable)) == 1 && len(rec.LogsOfKind(core.KindRemoteFault)) == 1
	}, waitFor, tick)
	assert.Equal(t, "An item from your wish list is available!", rec.LogsOfKind(core.KindWishAvailable)[0].Message)
	assert.Equal(t, core.StateRegistered, mgr.State())
}

func TestActions_RequireRegistration(t *testing.T) {
	f := newFixture(t, false)
	mgr, _ := f.manager(t)
	ctx := context.Background()

	assert.ErrorIs(t, mgr.BuyItem(ctx, core.Item{ID: "1"}), apperrors.ErrInvalidState)
	assert.ErrorIs(t, mgr.RemoveItem(ctx, core.Item{ID: "1"}), apperrors.ErrInvalidState)
	assert.ErrorIs(t, mgr.AddWish(ctx, booksWish(1)), apperrors.ErrInvalidState)
	_, err := mgr.ListItem(ctx, "Dune", core.CategoryBooks, dec(1))
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	assert.ErrorIs(t, mgr.Unregister(ctx), apperrors.ErrInvalidState)
}

func TestActions_EndToEndPurchase(t *testing.T) {
	f := newFixture(t, false)
	alice, aliceRec := f.manager(t)
	bob, bobRec := f.manager(t)
	ctx := context.Background()

	require.NoError(t, alice.Register(ctx, "alice"))
	require.NoError(t, bob.Register(ctx, "bob"))

	item, err := bob.ListItem(ctx, "Lamp", core.CategoryHome, dec(30))
	require.NoError(t, err)
	assert.Equal(t, "bob", item.Seller)
	assert.NotEmpty(t, item.ID)

	assert.Eventually(t, func() bool { _, ok := alice.Item(item.ID); return ok }, waitFor, tick)
	require.NoError(t, alice.BuyItem(ctx, item))

	assert.Eventually(t, balanceIs(aliceRec, 970), waitFor, tick)
	assert.Eventually(t, balanceIs(bobRec, 1030), waitFor, tick)
	assert.Eventually(t, func() bool { return len(alice.Listing()) == 0 }, waitFor, tick)

	purchased := aliceRec.LogsOfKind(core.KindItemPurchased)
	require.Len(t, purchased, 1)
	assert.Equal(t, "Purchased item 'Lamp' for 30.00", purchased[0].Message)
}

func TestActions_WishAutoPurchase(t *testing.T) {
	f := newFixture(t, true)
	alice, aliceRec := f.manager(t)
	bob, _ := f.manager(t)
	ctx := context.Background()

	require.NoError(t, alice.Register(ctx, "alice"))
	require.NoError(t, bob.Register(ctx, "bob"))
	require.NoError(t, alice.AddWish(ctx, booksWish(50)))
	require.NoError(t, alice.AddWish(ctx, booksWish(80)))

	_, err := bob.ListItem(ctx, "Dune", core.CategoryBooks, dec(40))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		w := alice.Wishes()
		return len(w) == 1 && w[0].Equal(booksWish(50))
	}, waitFor, tick)
	assert.Eventually(t, balanceIs(aliceRec, 960), waitFor, tick)
	assert.NotEmpty(t, aliceRec.LogsOfKind(core.KindWishAvailable))
}

// fillingMarket fills a standing order before AddWish returns
type fillingMarket struct {
	*mock.Marketplace
	fill     core.Item
	listener core.IListener
}

func (m *fillingMarket) Register(ctx context.Context, username, displayName string, account core.IAccount, l core.IListener) error {
	m.listener = l
	return m.Marketplace.Register(ctx, username, displayName, account, l)
}

func (m *fillingMarket) AddWish(ctx context.Context, w core.ItemWish, username string) error {
	if err := m.Marketplace.AddWish(ctx, w, username); err != nil {
		return err
	}
	return m.listener.OnItemPurchased(m.fill)
}

func TestActions_WishFilledDuringAddWish(t *testing.T) {
	f := newFixture(t, false)
	market := &fillingMarket{
		Marketplace: f.market,
		fill:        core.Item{ID: "b1", Name: "Dune", Price: dec(15), Category: core.CategoryBooks, Seller: "bob"},
	}
	mgr, rec := f.managerWith(t, f.bank, market)
	ctx := context.Background()
	require.NoError(t, mgr.Register(ctx, "alice"))

	require.NoError(t, mgr.AddWish(ctx, booksWish(20)))

	assert.Eventually(t, func() bool { return len(rec.LogsOfKind(core.KindWishFulfilled)) == 1 }, waitFor, tick)
	assert.Empty(t, mgr.Wishes())
	last, ok := rec.LastWishList()
	require.True(t, ok)
	assert.Empty(t, last)
}

func TestActions_LocalPreconditionFailures(t *testing.T) {
	f := newFixture(t, false)
	mgr, rec := f.manager(t)
	ctx := context.Background()
	require.NoError(t, mgr.Register(ctx, "alice"))

	own := core.Item{ID: "1", Name: "Mine", Price: dec(5), Category: core.CategoryToys, Seller: "alice"}
	theirs := core.Item{ID: "2", Name: "Theirs", Price: dec(5), Category: core.CategoryToys, Seller: "bob"}

	var opErr *apperrors.OperationError
	err := mgr.BuyItem(ctx, own)
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "buy", opErr.Op)
	assert.ErrorIs(t, err, apperrors.ErrOwnItem)

	assert.ErrorIs(t, mgr.RemoveItem(ctx, theirs), apperrors.ErrNotOwner)

	_, err = mgr.ListItem(ctx, "", core.CategoryToys, dec(5))
	assert.ErrorIs(t, err, apperrors.ErrInvalidItem)
	_, err = mgr.ListItem(ctx, "Free", core.CategoryToys, decimal.Zero)
	assert.ErrorIs(t, err, apperrors.ErrInvalidItem)

	assert.ErrorIs(t, mgr.AddWish(ctx, core.ItemWish{Category: core.CategoryBooks}), apperrors.ErrInvalidWish)

	assert.Equal(t, core.StateRegistered, mgr.State())
	assert.Eventually(t, func() bool { return len(rec.LogsOfKind(core.KindOperationError)) == 5 }, waitFor, tick)
}

func TestActions_RemoteFailureKeepsSession(t *testing.T) {
	f := newFixture(t, false)
	mgr, rec := f.manager(t)
	ctx := context.Background()
	require.NoError(t, mgr.Register(ctx, "alice"))

	f.market.SetFault("buy_item", apperrors.ErrUnavailable)
	f.market.SetFault("add_wish", apperrors.ErrRejected)

	err := mgr.BuyItem(ctx, core.Item{ID: "9", Name: "Dune", Seller: "bob"})
	var opErr *apperrors.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "9", opErr.ItemID)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)

	err = mgr.AddWish(ctx, booksWish(20))
	assert.ErrorIs(t, err, apperrors.ErrRejected)
	assert.Empty(t, mgr.Wishes())
	last, ok := rec.LastWishList()
	require.True(t, ok)
	assert.Empty(t, last, "rejected wish is withdrawn from the local list")

	assert.Equal(t, core.StateRegistered, mgr.State())
	assert.Eventually(t, func() bool {
		faults := rec.LogsOfKind(core.KindRemoteFault)
		return len(faults) == 2 && faults[0].Message == "Could not purchase the item Dune: remote service unavailable"
	}, waitFor, tick)
}

func TestActions_RemoveOwnItem(t *testing.T) {
	f := newFixture(t, false)
	mgr, _ := f.manager(t)
	ctx := context.Background()
	require.NoError(t, mgr.Register(ctx, "alice"))

	item, err := mgr.ListItem(ctx, "Lamp", core.CategoryHome, dec(12))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return len(mgr.Listing()) == 1 }, waitFor, tick)

	require.NoError(t, mgr.RemoveItem(ctx, item))
	assert.Eventually(t, func() bool { return len(mgr.Listing()) == 0 }, waitFor, tick)
	assert.Empty(t, f.market.Items())
}

func TestManager_HealthCheck(t *testing.T) {
	f := newFixture(t, false)
	mgr, _ := f.manager(t)
	assert.NoError(t, mgr.HealthCheck())

	require.NoError(t, mgr.Register(context.Background(), "alice"))
	assert.NoError(t, mgr.HealthCheck())
	assert.Equal(t, "sandbox", mgr.MarketplaceName())
}
