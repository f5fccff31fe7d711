package events

import "context"

// NoopPublisher is a Publisher that drops everything (used by the streaming
// service when no broker is configured, e.g. in local development).
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, exchange, routingKey string, payload []byte) error {
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}
