package httpclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-saga/internal/application/dto"
	"github.com/jhoicas/inventario-saga/internal/domain"
	"github.com/jhoicas/inventario-saga/internal/infrastructure/httpclient"
	"github.com/jhoicas/inventario-saga/pkg/config"
	pkgjwt "github.com/jhoicas/inventario-saga/pkg/jwt"
)

func updateReq() dto.UpdateInventoryRequest {
	return dto.UpdateInventoryRequest{OrderID: "o1", IdempotencyKey: "ship-o1", Items: []dto.ItemQuantity{{ProductID: "p1", Quantity: 2}}}
}

func TestInventoryClient_Exito(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/inventory/update", r.URL.Path)
		assert.Equal(t, "ship-o1", r.Header.Get(httpclient.IdempotencyKeyHeader))
		var in dto.UpdateInventoryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "o1", in.OrderID)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"message":"ok","cached":true,"data":{"orderId":"o1","items":[{"productId":"p1","quantity":2}],"success":true}}`))
	}))
	defer srv.Close()

	res, err := httpclient.NewInventoryClient(srv.URL+"/", nil).UpdateStock(context.Background(), updateReq())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "o1", res.OrderID)
	assert.Equal(t, 2, res.Items[0].Quantity)
}

func TestInventoryClient_ClasificaRespuestas(t *testing.T) {
	cases := []struct {
		name   string
		status int
		code   string
		want   error
	}{
		{"no encontrado", http.StatusNotFound, "PRODUCT_NOT_FOUND", domain.ErrProductNotFound},
		{"stock insuficiente", http.StatusConflict, "INSUFFICIENT_STOCK", domain.ErrInsufficientStock},
		{"conflicto de estado", http.StatusConflict, "INVALID_STATE", domain.ErrInventoryRejected},
		{"conflicto duplicado", http.StatusConflict, "DUPLICATE", domain.ErrInventoryRejected},
		{"conflicto desconocido", http.StatusConflict, "X", domain.ErrInventoryRejected},
		{"petición inválida", http.StatusBadRequest, "X", domain.ErrInventoryRejected},
		{"no autorizado", http.StatusUnauthorized, "X", domain.ErrInventoryRejected},
		{"error interno", http.StatusInternalServerError, "X", domain.ErrInventoryUnavailable},
		{"no disponible", http.StatusServiceUnavailable, "X", domain.ErrInventoryUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"code":"` + tc.code + `","message":"detalle"}`))
			}))
			defer srv.Close()

			_, err := httpclient.NewInventoryClient(srv.URL, nil).UpdateStock(context.Background(), updateReq())
			assert.ErrorIs(t, err, tc.want)
			assert.Contains(t, err.Error(), "detalle")
		})
	}
}

// Solo INSUFFICIENT_STOCK es stock insuficiente; los demás 409 no deben confundirse con él.
func TestInventoryClient_ConflictoSinCodigoNoEsStockInsuficiente(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("conflicto"))
	}))
	defer srv.Close()

	_, err := httpclient.NewInventoryClient(srv.URL, nil).UpdateStock(context.Background(), updateReq())
	assert.ErrorIs(t, err, domain.ErrInventoryRejected)
	assert.NotErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestInventoryClient_TimeoutEsTransitorio(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := httpclient.NewInventoryClient(srv.URL, nil).UpdateStock(ctx, updateReq())
	assert.ErrorIs(t, err, domain.ErrInventoryUnavailable)
}

// Un servidor que cierra la conexión sin responder (caída simulada) es transitorio.
func TestInventoryClient_ConexionCortadaEsTransitoria(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		_ = conn.Close()
	}))
	defer srv.Close()

	_, err := httpclient.NewInventoryClient(srv.URL, nil).UpdateStock(context.Background(), updateReq())
	assert.ErrorIs(t, err, domain.ErrInventoryUnavailable)
}

func TestStatusClient_EnviaTokenDeServicio(t *testing.T) {
	jwtCfg := config.ServiceJWTConfig{Secret: "s3cret", Issuer: "inventario-saga", Expiration: 5}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/orders/ORD-1", r.URL.Path)
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		svc, err := pkgjwt.Parse(jwtCfg.Secret, jwtCfg.Issuer, tok)
		require.NoError(t, err)
		assert.Equal(t, "inventory-service", svc)
		var body dto.UpdateStatusRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "shipped", body.Status)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := httpclient.NewStatusClient(srv.URL, "inventory-service", jwtCfg, time.Second)
	require.NoError(t, c.MarkShipped(context.Background(), "ORD-1"))
}

func TestStatusClient_ErrorEnNo2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"INVALID_STATE","message":"orden cancelada"}`))
	}))
	defer srv.Close()

	err := httpclient.NewStatusClient(srv.URL, "inventory-service", config.ServiceJWTConfig{}, time.Second).MarkShipped(context.Background(), "ORD-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orden cancelada")
}
