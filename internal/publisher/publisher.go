// Package publisher defines the outbound notification seam used to announce
// run lifecycle changes and account outcomes to other systems.
package publisher

import "context"

// Publisher sends one payload to a topic and returns the broker message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Attributed payloads contribute message attributes (for example run_id) that
// brokers can filter on without decoding the body.
type Attributed interface {
	Attributes() map[string]string
}
