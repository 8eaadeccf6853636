package types

import "time"

// WebhookPriority orders deliveries within one organization's queues.
// Lower value = higher priority.
type WebhookPriority int

// Delivery priorities, strictly drained in this order per org.
const (
	WebhookCritical WebhookPriority = iota
	WebhookHigh
	WebhookNormal
	WebhookLow
)

// String implements fmt.Stringer.
func (p WebhookPriority) String() string {
	switch p {
	case WebhookCritical:
		return "CRITICAL"
	case WebhookHigh:
		return "HIGH"
	case WebhookNormal:
		return "NORMAL"
	case WebhookLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// DeliveryStatus is the monotonic lifecycle of one webhook delivery.
type DeliveryStatus string

// Delivery states.
const (
	DeliveryPending    DeliveryStatus = "PENDING"
	DeliverySending    DeliveryStatus = "SENDING"
	DeliverySuccess    DeliveryStatus = "SUCCESS"
	DeliveryFailed     DeliveryStatus = "FAILED"
	DeliveryRetrying   DeliveryStatus = "RETRYING"
	DeliveryDeadLetter DeliveryStatus = "DEAD_LETTER"
)

// Delivery error codes recorded on failure.
const (
	DeliveryErrTimeout = "TIMEOUT"
	DeliveryErrConnect = "CONNECT_ERROR"
	DeliveryErrHTTP    = "HTTP_ERROR"
	DeliveryErrUnknown = "UNKNOWN_ERROR"
)

// Recognized webhook event types.
var WebhookEventTypes = []string{
	"trade.created", "trade.updated", "trade.confirmed", "trade.cancelled",
	"payment.completed", "payment.failed",
	"contract.signed", "contract.expired",
	"quality.inspection.completed", "shipment.delivered",
	"user.created", "user.updated",
	"match.found",
}

// WebhookSubscription is one tenant endpoint registration.
type WebhookSubscription struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	URL            string    `json:"url"`
	EventTypes     []string  `json:"event_types"`
	Active         bool      `json:"active"`
	Secret         string    `json:"-"`
	MaxRetries     int       `json:"max_retries"`
	RetryBaseSecs  int       `json:"retry_base_seconds"`
	Description    string    `json:"description,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Accepts reports whether the subscription wants the given event type.
func (s *WebhookSubscription) Accepts(eventType string) bool {
	if !s.Active {
		return false
	}
	for _, t := range s.EventTypes {
		if t == eventType || t == "*" {
			return true
		}
	}
	return false
}

// WebhookEvent is the body delivered to subscribers.
type WebhookEvent struct {
	ID             string         `json:"id"`
	EventType      string         `json:"event_type"`
	Timestamp      time.Time      `json:"timestamp"`
	Data           map[string]any `json:"data"`
	OrganizationID string         `json:"organization_id,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
}

// WebhookDelivery is the persistent record of one delivery attempt chain.
type WebhookDelivery struct {
	ID             string            `json:"id"`
	SubscriptionID string            `json:"subscription_id"`
	EventID        string            `json:"event_id"`
	OrganizationID string            `json:"organization_id"`
	Status         DeliveryStatus    `json:"status"`
	Priority       WebhookPriority   `json:"priority"`
	Attempt        int               `json:"attempt"`
	MaxAttempts    int               `json:"max_attempts"`
	URL            string            `json:"url"`
	Body           []byte            `json:"body"`
	RequestHeaders map[string]string `json:"request_headers"`
	ResponseStatus *int              `json:"response_status,omitempty"`
	ResponseBody   string            `json:"response_body,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	SentAt         *time.Time        `json:"sent_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	NextRetryAt    *time.Time        `json:"next_retry_at,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	ErrorCode      string            `json:"error_code,omitempty"`
}
