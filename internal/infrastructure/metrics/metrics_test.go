package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-saga/internal/application/retry"
	"github.com/jhoicas/inventario-saga/internal/infrastructure/metrics"
)

func TestMetrics_ContadoresYHandler(t *testing.T) {
	m := metrics.New()
	m.RequestStarted()
	m.RequestFinished(http.MethodPost, "/api/orders/:orderId/ship", http.StatusAccepted, 120*time.Millisecond)
	m.ObserveShip("will_retry")
	m.ObserveRetry(retry.RejectBusiness)
	m.ObserveRetry(retry.Ack)
	m.ObserveRetry(retry.Ack)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "inventory_retry_deliveries_total" {
			assert.Len(t, f.GetMetric(), 2, "una serie por disposición")
		}
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `order_ship_total{outcome="will_retry"} 1`)
	assert.Contains(t, string(body), `inventory_retry_deliveries_total{disposition="ack"} 2`)
	assert.Contains(t, string(body), `http_requests_active 0`)
}
