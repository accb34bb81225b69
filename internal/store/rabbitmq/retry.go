package rabbitmq

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// MaxRetries bounds how often a failed job goes through the retry queue before it is
// dead-lettered.
const MaxRetries = 3

const (
	retryHeader    = "x-retry-count"
	baseRetryDelay = 2 * time.Second
)

// RetryDelay doubles per attempt: 2s, 4s, 8s.
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return baseRetryDelay << (attempt - 1)
}

// RetryCount reads how many times d has already been retried.
func RetryCount(d amqp.Delivery) int {
	switch v := d.Headers[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	case int8:
		return int(v)
	default:
		return 0
	}
}
