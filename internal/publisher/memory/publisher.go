// Package memory records indexed-document events in process. The app uses it
// when the pubsub driver is "memory"; tests use it to inspect events.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PublishedMessage captures one accepted publish call.
type PublishedMessage struct {
	ID          string
	Topic       string
	Payload     any
	PublishedAt time.Time
}

// Publisher keeps every accepted message in publish order.
type Publisher struct {
	mu       sync.Mutex
	seq      int
	messages []PublishedMessage
	failWith error
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records payload under topic. When a failure is armed with FailWith
// the message is dropped and the error returned.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, p.failWith)
	}
	p.seq++
	id := fmt.Sprintf("%s-%d", topic, p.seq)
	p.messages = append(p.messages, PublishedMessage{
		ID:          id,
		Topic:       topic,
		Payload:     payload,
		PublishedAt: time.Now().UTC(),
	})
	return id, nil
}

// FailWith makes subsequent publishes return err. Nil restores normal behavior.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith = err
}

// Messages returns a copy of everything published so far.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PublishedMessage(nil), p.messages...)
}

// Topic returns the messages published to topic.
func (p *Publisher) Topic(topic string) []PublishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []PublishedMessage
	for _, msg := range p.messages {
		if msg.Topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

// Reset drops recorded messages and any armed failure.
func (p *Publisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = nil
	p.failWith = nil
	p.seq = 0
}
