package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"market_client/internal/core"
	"market_client/pkg/logging"
)

const (
	statusHealthy   = "Healthy"
	unhealthyPrefix = "Unhealthy: "
)

// Report is one evaluation of every registered check
type Report struct {
	Healthy    bool              `json:"healthy"`
	Components map[string]string `json:"components"`
	CheckedAt  time.Time         `json:"checked_at"`
}

// HealthManager aggregates the client's component checks: session, bank, marketplace
type HealthManager struct {
	logger core.ILogger
	mu     sync.RWMutex
	checks map[string]func() error
}

// NewHealthManager falls back to the process logger when logger is nil
func NewHealthManager(logger core.ILogger) *HealthManager {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &HealthManager{
		logger: logger.WithField("component", "health_manager"),
		checks: make(map[string]func() error),
	}
}

// Register adds or replaces the check for component
func (hm *HealthManager) Register(component string, check func() error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checks[component] = check
}

// Check runs every check exactly once
func (hm *HealthManager) Check() Report {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	report := Report{
		Healthy:    true,
		Components: make(map[string]string, len(hm.checks)),
		CheckedAt:  time.Now().UTC(),
	}
	for component, check := range hm.checks {
		err := check()
		if err == nil {
			report.Components[component] = statusHealthy
			continue
		}
		report.Healthy = false
		report.Components[component] = unhealthyPrefix + err.Error()
		hm.logger.Debug("component unhealthy", "check", component, "error", err)
	}
	return report
}

func (hm *HealthManager) GetStatus() map[string]string {
	return hm.Check().Components
}

func (hm *HealthManager) IsHealthy() bool {
	return hm.Check().Healthy
}

// ServeHTTP writes the report as JSON, 503 when any check fails
func (hm *HealthManager) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	report := hm.Check()
	code := http.StatusOK
	if !report.Healthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

var _ core.IHealthMonitor = (*HealthManager)(nil)
