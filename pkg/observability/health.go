package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// ErrDegraded marks a probe failure that leaves the dependency usable.
var ErrDegraded = errors.New("degraded")

// Probe checks a single dependency. A failing critical probe makes the
// service unhealthy; any other failure only degrades it.
type Probe struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// DatabaseProbe pings the pool, runs a trivial query and reports pool
// exhaustion as degraded.
func DatabaseProbe(db *sql.DB) Probe {
	return Probe{
		Name:     "database",
		Critical: true,
		Check: func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				return err
			}
			var one int
			if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
				return err
			}
			if stats := db.Stats(); stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
				return fmt.Errorf("connection pool exhausted: %w", ErrDegraded)
			}
			return nil
		},
	}
}

// RedisProbe pings Redis. Redis only backs rate limiting, so it is not critical.
func RedisProbe(client *redis.Client) Probe {
	return Probe{
		Name: "redis",
		Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}

// HealthChecker serves liveness and readiness probes.
type HealthChecker struct {
	probes  []Probe
	timeout time.Duration
	version string
}

// NewHealthChecker creates a checker over the given probes.
func NewHealthChecker(probes ...Probe) *HealthChecker {
	return &HealthChecker{
		probes:  probes,
		timeout: 5 * time.Second,
		version: buildVersion(),
	}
}

// Add registers another probe. It must be called before serving.
func (h *HealthChecker) Add(p Probe) {
	h.probes = append(h.probes, p)
}

// HealthStatus is the readiness report.
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus is the result of one probe.
type DependencyStatus struct {
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Check runs every probe concurrently and folds the results.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	report := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(h.probes)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, p := range h.probes {
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()
			dep := runProbe(ctx, p)

			mu.Lock()
			defer mu.Unlock()
			report.Dependencies[p.Name] = dep
			report.Status = worse(report.Status, dep.Status)
		}(p)
	}
	wg.Wait()
	return report
}

func runProbe(ctx context.Context, p Probe) DependencyStatus {
	start := time.Now()
	err := p.Check(ctx)
	dep := DependencyStatus{
		Status:    StatusHealthy,
		Latency:   time.Since(start),
		Timestamp: start.UTC(),
	}
	if err == nil {
		return dep
	}
	dep.Message = err.Error()
	if p.Critical && !errors.Is(err, ErrDegraded) {
		dep.Status = StatusUnhealthy
	} else {
		dep.Status = StatusDegraded
	}
	return dep
}

func worse(a, b string) string {
	rank := map[string]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// Liveness always answers 200 while the process is serving.
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	})
}

// Readiness answers 503 only when a critical dependency is down.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report := h.Check(ctx)
	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, report)
}

func writeHealth(w http.ResponseWriter, code int, body HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// RegisterHealthRoutes mounts /health, /health/live and /health/ready.
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "devel"
}
