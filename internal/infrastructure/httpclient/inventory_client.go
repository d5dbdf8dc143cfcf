// Package httpclient contiene los clientes HTTP entre servicios: order → inventory (descuento
// síncrono) e inventory → order (callback de estado).
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jhoicas/inventario-saga/internal/application/dto"
	"github.com/jhoicas/inventario-saga/internal/application/order"
	"github.com/jhoicas/inventario-saga/internal/domain"
)

var _ order.InventoryClient = (*InventoryClient)(nil)

// IdempotencyKeyHeader cabecera con la clave, además del campo del body.
const IdempotencyKeyHeader = "Idempotency-Key"

// InventoryClient llama a POST /api/inventory/update. El plazo lo impone el ctx del llamador;
// un plazo vencido o una conexión cortada es domain.ErrInventoryUnavailable.
type InventoryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewInventoryClient construye el cliente. httpClient nil usa uno sin timeout propio.
func NewInventoryClient(baseURL string, httpClient *http.Client) *InventoryClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &InventoryClient{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// UpdateStock envía la mutación y clasifica la respuesta:
// 200 resultado; 404 ErrProductNotFound; 409 ErrInsufficientStock; otro 4xx ErrInventoryRejected;
// 5xx, timeout o error de red ErrInventoryUnavailable.
func (c *InventoryClient) UpdateStock(ctx context.Context, in dto.UpdateInventoryRequest) (*dto.InventoryResult, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal inventory request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/inventory/update", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build inventory request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyKeyHeader, in.IdempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInventoryUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrInventoryUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var env dto.UpdateInventoryResponse
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("%w: decode response: %v", domain.ErrInventoryUnavailable, err)
		}
		var res dto.InventoryResult
		if err := json.Unmarshal(env.Data, &res); err != nil {
			return nil, fmt.Errorf("%w: decode result: %v", domain.ErrInventoryUnavailable, err)
		}
		return &res, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, errorMessage(raw))
	case resp.StatusCode == http.StatusConflict:
		if errorCode(raw) == "INSUFFICIENT_STOCK" {
			return nil, fmt.Errorf("%w: %s", domain.ErrInsufficientStock, errorMessage(raw))
		}
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrInventoryRejected, resp.StatusCode, errorMessage(raw))
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrInventoryUnavailable, resp.StatusCode, errorMessage(raw))
	default:
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrInventoryRejected, resp.StatusCode, errorMessage(raw))
	}
}

func errorMessage(raw []byte) string {
	var e dto.ErrorResponse
	if err := json.Unmarshal(raw, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(raw))
}

// errorCode código de dto.ErrorResponse; vacío si el cuerpo no lo trae.
func errorCode(raw []byte) string {
	var e dto.ErrorResponse
	if err := json.Unmarshal(raw, &e); err != nil {
		return ""
	}
	return e.Code
}

func orderURL(base, orderID string) string {
	return strings.TrimRight(base, "/") + "/api/orders/" + url.PathEscape(orderID)
}
