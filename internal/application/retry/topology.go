// Package retry define el canal de reintentos entre el saga de órdenes y el servicio de
// inventario: la topología compartida, el mensaje en el cable y el manejo de cada entrega.
package retry

// Topología fija del canal. Productor y consumidor usan estas mismas constantes; un nombre
// distinto en un lado deja los mensajes sin entregar.
const (
	ExchangeName = "inventory_exchange"
	ExchangeKind = "direct"
	QueueName    = "inventory_updates_queue"
	RoutingKey   = "inventory.update"

	DeadLetterExchange = "inventory_exchange.dlx"
	DeadLetterQueue    = "inventory_updates_dead"
)
