package events

// Topics emitted by the service.
const (
	TopicOrderCreated     = "order.created"
	TopicBasketCheckedOut = "basket.checked_out"
	TopicPaymentFailed    = "payment.failed"
	TopicUserRegistered   = "user.registered"
)
