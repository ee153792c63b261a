package domain

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Order payment lifecycle. Valid transitions are pending->paid,
// pending->failed and paid->refunded; OrderRepository enforces them with
// conditional updates.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

// Fulfillment lifecycle, advanced by the admin operational flow.
const (
	OrderPreparing = "preparing"
	OrderReady     = "ready"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
)

// Provider-side payment record statuses (mirrors Razorpay).
const (
	RecordCreated          = "created"
	RecordAuthorized       = "authorized"
	RecordCaptured         = "captured"
	RecordFailed           = "failed"
	RecordRefunded         = "refunded"
	RecordRefundProcessing = "refund_processing"
)

// Policy rejection reasons, recorded on the payment record and returned to
// the verify caller.
const (
	RejectCurrencyMismatch      = "currency-mismatch"
	RejectIssuerCountryMismatch = "issuer-country-mismatch"
)

// Reconcile channels. A payment result can arrive over either, in any order,
// more than once.
const (
	ChannelClient  = "client"
	ChannelWebhook = "webhook"
)
