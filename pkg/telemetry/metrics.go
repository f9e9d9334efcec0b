package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricCallbacksTotal    = "market_client_callbacks_total"
	MetricRemoteCallsTotal  = "market_client_remote_calls_total"
	MetricRemoteLatency     = "market_client_remote_latency_ms"
	MetricMailboxDepth      = "market_client_mailbox_depth"
	MetricBalance           = "market_client_balance"
	MetricWishRemovalsTotal = "market_client_wish_removals_total"
	MetricSessionState      = "market_client_session_state"
)

// MetricsHolder holds initialized instruments.
// Recording helpers are safe to call before InitMetrics; they become no-ops.
type MetricsHolder struct {
	CallbacksTotal    metric.Int64Counter
	RemoteCallsTotal  metric.Int64Counter
	RemoteLatency     metric.Float64Histogram
	WishRemovalsTotal metric.Int64Counter
	MailboxDepth      metric.Int64ObservableGauge
	Balance           metric.Float64ObservableGauge
	SessionState      metric.Int64ObservableGauge

	// State for observable gauges
	mu              sync.RWMutex
	mailboxDepthMap map[string]int64
	balanceMap      map[string]float64
	sessionStateMap map[string]int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = newMetricsHolder()
	})
	return globalMetrics
}

func newMetricsHolder() *MetricsHolder {
	return &MetricsHolder{
		mailboxDepthMap: make(map[string]int64),
		balanceMap:      make(map[string]float64),
		sessionStateMap: make(map[string]int64),
	}
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.CallbacksTotal, err = meter.Int64Counter(MetricCallbacksTotal, metric.WithDescription("Marketplace callbacks received"))
	if err != nil {
		return err
	}

	m.RemoteCallsTotal, err = meter.Int64Counter(MetricRemoteCallsTotal, metric.WithDescription("Remote gateway calls by operation and outcome"))
	if err != nil {
		return err
	}

	m.RemoteLatency, err = meter.Float64Histogram(MetricRemoteLatency, metric.WithDescription("Latency of remote gateway calls"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.WishRemovalsTotal, err = meter.Int64Counter(MetricWishRemovalsTotal, metric.WithDescription("Wishes removed after a purchase"))
	if err != nil {
		return err
	}

	// Observables
	m.MailboxDepth, err = meter.Int64ObservableGauge(MetricMailboxDepth, metric.WithDescription("Queued session mailbox tasks"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for user, val := range m.mailboxDepthMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("username", user)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.Balance, err = meter.Float64ObservableGauge(MetricBalance, metric.WithDescription("Last known account balance"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for user, val := range m.balanceMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("username", user)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.SessionState, err = meter.Int64ObservableGauge(MetricSessionState, metric.WithDescription("Session lifecycle state (0=unregistered, 2=registered)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for user, val := range m.sessionStateMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("username", user)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// RecordCallback counts one inbound marketplace notification
func (m *MetricsHolder) RecordCallback(ctx context.Context, kind string) {
	if m.CallbacksTotal == nil {
		return
	}
	m.CallbacksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordRemoteCall counts a gateway call and records its latency
func (m *MetricsHolder) RecordRemoteCall(ctx context.Context, op string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(attribute.String("op", op), attribute.String("outcome", outcome))
	if m.RemoteCallsTotal != nil {
		m.RemoteCallsTotal.Add(ctx, 1, attrs)
	}
	if m.RemoteLatency != nil {
		m.RemoteLatency.Record(ctx, float64(elapsed.Microseconds())/1000.0, metric.WithAttributes(attribute.String("op", op)))
	}
}

// RecordWishRemovals counts wishes dropped by the matcher
func (m *MetricsHolder) RecordWishRemovals(ctx context.Context, n int) {
	if m.WishRemovalsTotal == nil || n == 0 {
		return
	}
	m.WishRemovalsTotal.Add(ctx, int64(n))
}

// Helpers to update observable state

func (m *MetricsHolder) SetMailboxDepth(username string, depth int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mailboxDepthMap[username] = depth
}

func (m *MetricsHolder) SetBalance(username string, balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balanceMap[username] = balance
}

func (m *MetricsHolder) SetSessionState(username string, state int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionStateMap[username] = state
}

// ForgetSession drops gauge series for a user that left
func (m *MetricsHolder) ForgetSession(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mailboxDepthMap, username)
	delete(m.balanceMap, username)
	delete(m.sessionStateMap, username)
}

func (m *MetricsHolder) GetBalances() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]float64)
	for k, v := range m.balanceMap {
		res[k] = v
	}
	return res
}

func (m *MetricsHolder) GetSessionStates() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]int64)
	for k, v := range m.sessionStateMap {
		res[k] = v
	}
	return res
}
