package events

import "context"

// EventPublisher reports served calls.
type EventPublisher interface {
	PublishCall(ctx context.Context, event *CallEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (events disabled).
type NoOpPublisher struct{}

// PublishCall is a no-op.
func (p *NoOpPublisher) PublishCall(_ context.Context, _ *CallEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *CallEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *CallEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishCall calls the callback.
func (p *CallbackPublisher) PublishCall(ctx context.Context, event *CallEvent) error {
	return p.callback(ctx, event)
}
