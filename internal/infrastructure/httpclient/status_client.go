package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jhoicas/inventario-saga/internal/application/dto"
	"github.com/jhoicas/inventario-saga/internal/application/retry"
	"github.com/jhoicas/inventario-saga/internal/domain/entity"
	"github.com/jhoicas/inventario-saga/pkg/config"
	pkgjwt "github.com/jhoicas/inventario-saga/pkg/jwt"
)

var _ retry.StatusUpdater = (*StatusClient)(nil)

// StatusClient llama a PATCH /api/orders/:orderId con {status:"shipped"}.
type StatusClient struct {
	baseURL    string
	service    string
	jwt        config.ServiceJWTConfig
	httpClient *http.Client
}

// NewStatusClient construye el cliente. Si jwt.Secret está vacío no envía Authorization.
func NewStatusClient(baseURL, service string, jwt config.ServiceJWTConfig, timeout time.Duration) *StatusClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &StatusClient{
		baseURL:    baseURL,
		service:    service,
		jwt:        jwt,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// MarkShipped notifica al servicio de órdenes. Cualquier respuesta que no sea 2xx es error.
func (c *StatusClient) MarkShipped(ctx context.Context, orderID string) error {
	body, err := json.Marshal(dto.UpdateStatusRequest{Status: entity.OrderStatusShipped})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, orderURL(c.baseURL, orderID), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.jwt.Secret != "" {
		tok, err := pkgjwt.Generate(c.jwt.Secret, c.service, c.jwt.Issuer, c.jwt.Expiration)
		if err != nil {
			return fmt.Errorf("sign service token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("status callback: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status callback: status %d: %s", resp.StatusCode, errorMessage(raw))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
