package orders

const (
	TopicOrderCreated   = "order.created"
	TopicOrderPaid      = "order.paid"
	TopicOrderCancelled = "order.cancelled"
	TopicOrderFailed    = "order.failed"
)

var Topics = []string{TopicOrderCreated, TopicOrderPaid, TopicOrderCancelled, TopicOrderFailed}

// Partition key = order_id, so every event of one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
