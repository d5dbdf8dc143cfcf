package http_test

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-saga/internal/application/dto"
	"github.com/jhoicas/inventario-saga/internal/application/inventory"
	"github.com/jhoicas/inventario-saga/internal/domain/entity"
	"github.com/jhoicas/inventario-saga/internal/faults"
	"github.com/jhoicas/inventario-saga/internal/infrastructure/memory"
	apphttp "github.com/jhoicas/inventario-saga/internal/interfaces/http"
)

// recordingObserver acumula los resultados reportados por los handlers.
type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingObserver) ObserveApply(outcome string) { r.add(outcome) }
func (r *recordingObserver) ObserveShip(outcome string)  { r.add(outcome) }

func (r *recordingObserver) add(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordingObserver) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outcomes...)
}

// newInventoryApp arma el servicio de inventario sobre el store en memoria.
// wrap permite envolver el procesador (inyección de fallos).
func newInventoryApp(t *testing.T, wrap func(inventory.Applier) inventory.Applier) (*fiber.App, *memory.Store, *recordingObserver) {
	t.Helper()
	store := memory.NewStore()
	store.Seed(
		entity.Stock{ProductID: "PROD-001", ProductName: "Teclado", Quantity: 10},
		entity.Stock{ProductID: "PROD-002", ProductName: "Mouse", Quantity: 3},
	)
	proc := inventory.NewProcessor(store, store.Ledger(), store.Stocks(), store.Audit(), zerolog.Nop())
	var applier inventory.Applier = proc
	if wrap != nil {
		applier = wrap(proc)
	}
	obs := &recordingObserver{}
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	apphttp.InventoryRouter(app, apphttp.InventoryRouterDeps{Applier: applier, Reader: proc, Observer: obs, Log: zerolog.Nop()})
	return app, store, obs
}

func updateBody(t *testing.T, key string, items ...dto.ItemQuantity) []byte {
	t.Helper()
	b, err := json.Marshal(dto.UpdateInventoryRequest{OrderID: "ORD-1", Items: items, IdempotencyKey: key})
	require.NoError(t, err)
	return b
}

func postUpdate(t *testing.T, app *fiber.App, body []byte, header string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/inventory/update", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if header != "" {
		req.Header.Set("Idempotency-Key", header)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestInventoryUpdate_AplicaYLuegoDevuelveCache(t *testing.T) {
	app, store, obs := newInventoryApp(t, nil)
	body := updateBody(t, "ship-ORD-1", dto.ItemQuantity{ProductID: "PROD-001", Quantity: 4})

	first := decodeJSON(t, postUpdate(t, app, body, ""))
	assert.Equal(t, true, first["success"])
	assert.Equal(t, "Inventory updated successfully", first["message"])
	assert.Nil(t, first["cached"])

	resp := postUpdate(t, app, body, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decodeJSON(t, resp)
	assert.Equal(t, "Already processed", second["message"])
	assert.Equal(t, true, second["cached"])
	assert.Equal(t, first["data"], second["data"], "el replay devuelve exactamente el resultado original")

	q, _ := store.Quantity("PROD-001")
	assert.Equal(t, 6, q, "solo se descuenta una vez")
	assert.Equal(t, []string{"applied", "cached"}, obs.all())
}

func TestInventoryUpdate_ClaveDesdeHeader(t *testing.T) {
	app, store, _ := newInventoryApp(t, nil)
	body := updateBody(t, "", dto.ItemQuantity{ProductID: "PROD-002", Quantity: 1})

	resp := postUpdate(t, app, body, "ship-ORD-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, store.LedgerSize())
}

func TestInventoryUpdate_StockInsuficiente(t *testing.T) {
	app, store, obs := newInventoryApp(t, nil)
	body := updateBody(t, "ship-ORD-1",
		dto.ItemQuantity{ProductID: "PROD-001", Quantity: 1},
		dto.ItemQuantity{ProductID: "PROD-002", Quantity: 5},
	)

	resp := postUpdate(t, app, body, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INSUFFICIENT_STOCK", decodeJSON(t, resp)["code"])

	q, _ := store.Quantity("PROD-001")
	assert.Equal(t, 10, q, "el fallo de una línea revierte todas")
	assert.Zero(t, store.LedgerSize())
	assert.Equal(t, []string{"business"}, obs.all())
}

func TestInventoryUpdate_ProductoInexistente(t *testing.T) {
	app, _, _ := newInventoryApp(t, nil)
	resp := postUpdate(t, app, updateBody(t, "ship-ORD-1", dto.ItemQuantity{ProductID: "NOPE", Quantity: 1}), "")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "PRODUCT_NOT_FOUND", decodeJSON(t, resp)["code"])
}

func TestInventoryUpdate_EntradaInvalida(t *testing.T) {
	app, _, _ := newInventoryApp(t, nil)

	resp := postUpdate(t, app, []byte(`{"orderId":"ORD-1","items":[]}`), "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postUpdate(t, app, []byte(`{no es json`), "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_BODY", decodeJSON(t, resp)["code"])
}

func TestInventoryGetStock(t *testing.T) {
	app, _, _ := newInventoryApp(t, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/inventory/PROD-001", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := decodeJSON(t, resp)["data"].(map[string]any)
	assert.Equal(t, float64(10), data["quantity"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/inventory/NOPE", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInventoryAuditTrail(t *testing.T) {
	app, _, _ := newInventoryApp(t, nil)
	postUpdate(t, app, updateBody(t, "ship-ORD-1",
		dto.ItemQuantity{ProductID: "PROD-002", Quantity: 1},
		dto.ItemQuantity{ProductID: "PROD-001", Quantity: 2},
	), "")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/inventory/orders/ORD-1/audit", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decodeJSON(t, resp)["data"].([]any)
	require.Len(t, entries, 2)
	first := entries[0].(map[string]any)
	assert.Equal(t, "PROD-002", first["productId"])
	assert.Equal(t, float64(3), first["quantityBefore"])
	assert.Equal(t, float64(2), first["quantityAfter"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/inventory/orders/OTRA/audit", nil), -1)
	require.NoError(t, err)
	assert.Empty(t, decodeJSON(t, resp)["data"])
}

func TestInventoryProductHistory_Paginada(t *testing.T) {
	app, _, _ := newInventoryApp(t, nil)
	for _, key := range []string{"k1", "k2", "k3"} {
		postUpdate(t, app, updateBody(t, key, dto.ItemQuantity{ProductID: "PROD-001", Quantity: 1}), "")
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/inventory/PROD-001/audit?limit=2", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decodeJSON(t, resp)["data"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, float64(7), entries[0].(map[string]any)["quantityAfter"], "la más reciente va primero")

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/inventory/PROD-001/audit?limit=2&offset=2", nil), -1)
	require.NoError(t, err)
	entries = decodeJSON(t, resp)["data"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, float64(9), entries[0].(map[string]any)["quantityAfter"])
}

// El crash tras el commit corta la conexión sin respuesta; el reintento con la misma
// clave recibe el resultado ya confirmado.
func TestInventoryUpdate_CrashTrasCommitCierraConexion(t *testing.T) {
	app, store, obs := newInventoryApp(t, func(next inventory.Applier) inventory.Applier {
		return faults.NewCrashAfterCommit(next, faults.NewSequence(true), zerolog.Nop())
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	url := "http://" + ln.Addr().String() + "/api/inventory/update"
	body := updateBody(t, "ship-ORD-1", dto.ItemQuantity{ProductID: "PROD-001", Quantity: 4})
	client := &http.Client{Timeout: 5 * time.Second}

	_, err = client.Post(url, "application/json", bytes.NewReader(body))
	require.Error(t, err, "el llamador no recibe respuesta")

	q, _ := store.Quantity("PROD-001")
	assert.Equal(t, 6, q, "la mutación quedó confirmada")

	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeJSON(t, resp)["cached"])

	q, _ = store.Quantity("PROD-001")
	assert.Equal(t, 6, q)
	assert.Equal(t, []string{"crash", "cached"}, obs.all())
}
