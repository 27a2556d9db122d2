package events

// Topic constants for checkout domain events.
const (
	TopicOrderPlaced    = "checkout.order_placed"
	TopicPaymentPending = "checkout.payment_pending"
)

// DefaultTopics returns the topics emitted by the checkout service.
func DefaultTopics() []string {
	return []string{TopicOrderPlaced, TopicPaymentPending}
}
