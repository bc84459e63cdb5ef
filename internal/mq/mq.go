// Package mq publishes account lifecycle events to a message broker.
package mq

import (
	"context"
	"encoding/json"
	"time"
)

// AccountEventsChannel is the queue/topic carrying account lifecycle
// events.
const AccountEventsChannel = "identity.account-events"

// Account event names.
const (
	EventAccountRegistered = "account.registered"
	EventAccountLogin      = "account.login"
	EventAccountDeleted    = "account.deleted"
)

// AccountEvent describes one account lifecycle change.
type AccountEvent struct {
	Event      string    `json:"event"`
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Backend defines the broker-agnostic operations used by the publisher.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// Publisher wraps a backend with the account-event API.
type Publisher struct {
	backend Backend
}

// NewPublisher constructs a Publisher for the provided backend.
func NewPublisher(backend Backend) *Publisher {
	return &Publisher{backend: backend}
}

// PublishAccountEvent sends one event to the account events channel and
// returns the broker-assigned message id.
func (p *Publisher) PublishAccountEvent(ctx context.Context, event AccountEvent) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	return p.backend.Publish(ctx, AccountEventsChannel, data, map[string]string{"event": event.Event})
}

// Close closes the underlying backend.
func (p *Publisher) Close() error {
	return p.backend.Close()
}
