package retry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jhoicas/inventario-saga/internal/application/dto"
	"github.com/jhoicas/inventario-saga/internal/domain"
)

// Message instantánea suficiente para re-aplicar la mutación sin otro estado.
type Message struct {
	OrderID        string             `json:"orderId"`
	Items          []dto.ItemQuantity `json:"items"`
	IdempotencyKey string             `json:"idempotencyKey"`
	Timestamp      time.Time          `json:"timestamp"`
}

// Encode serializa el mensaje para publicarlo.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode deserializa y valida un mensaje recibido.
func Decode(body []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return Message{}, fmt.Errorf("%w: decode retry message: %v", domain.ErrInvalidInput, err)
	}
	if m.OrderID == "" || m.IdempotencyKey == "" || len(m.Items) == 0 {
		return Message{}, fmt.Errorf("%w: retry message missing orderId, idempotencyKey or items", domain.ErrInvalidInput)
	}
	return m, nil
}
