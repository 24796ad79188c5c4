package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker(t *testing.T) {
	t.Run("healthy with database and redis", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		status := NewHealthChecker(DatabaseProbe(db), RedisProbe(client)).Check(context.Background())
		assert.Equal(t, StatusHealthy, status.Status)
		assert.Equal(t, StatusHealthy, status.Dependencies["database"].Status)
		assert.Equal(t, StatusHealthy, status.Dependencies["redis"].Status)
	})

	t.Run("unhealthy database returns 503", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		rec := httptest.NewRecorder()
		NewHealthChecker(DatabaseProbe(db)).Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var status HealthStatus
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
		assert.Equal(t, StatusUnhealthy, status.Status)
	})

	t.Run("redis outage degrades", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		defer client.Close()
		mr.Close()

		status := NewHealthChecker(RedisProbe(client)).Check(context.Background())
		assert.Equal(t, StatusDegraded, status.Status)
	})

	t.Run("failing non-critical probe degrades", func(t *testing.T) {
		checker := NewHealthChecker(Probe{
			Name:  "artifacts",
			Check: func(context.Context) error { return errors.New("bucket missing") },
		})
		rec := httptest.NewRecorder()
		checker.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusOK, rec.Code)

		var status HealthStatus
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
		assert.Equal(t, StatusDegraded, status.Status)
		assert.Equal(t, "bucket missing", status.Dependencies["artifacts"].Message)
	})

	t.Run("degraded error on a critical probe does not fail readiness", func(t *testing.T) {
		checker := NewHealthChecker(Probe{
			Name:     "database",
			Critical: true,
			Check:    func(context.Context) error { return fmt.Errorf("pool exhausted: %w", ErrDegraded) },
		})
		status := checker.Check(context.Background())
		assert.Equal(t, StatusDegraded, status.Status)
	})

	t.Run("liveness", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthChecker().Liveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
