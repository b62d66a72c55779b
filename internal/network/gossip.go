package network

import (
	"context"
	"fmt"
	"sync"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/rs/zerolog/log"
)

// Topic wraps a joined gossipsub topic and its subscription, fanning
// inbound messages out to internal listeners the same non-blocking way
// every other broadcast hub in this stack does: a slow listener gets its
// message dropped rather than stalling delivery to everyone else.
type Topic struct {
	name string
	t    *pubsub.Topic
	sub  *pubsub.Subscription

	mu   sync.RWMutex
	subs []chan []byte
}

// Join subscribes to the given topic name on the host's gossipsub router.
func (h *Host) Join(topicName string) (*Topic, error) {
	t, err := h.pubsub.Join(topicName)
	if err != nil {
		return nil, fmt.Errorf("network: join topic %s: %w", topicName, err)
	}
	sub, err := t.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("network: subscribe to topic %s: %w", topicName, err)
	}
	return &Topic{name: topicName, t: t, sub: sub}, nil
}

// Publish broadcasts data on the topic.
func (t *Topic) Publish(ctx context.Context, data []byte) error {
	if err := t.t.Publish(ctx, data); err != nil {
		return fmt.Errorf("network: publish on %s: %w", t.name, err)
	}
	return nil
}

// Subscribe returns a buffered channel of inbound message payloads for
// this topic. Messages are not filtered by sender.
func (t *Topic) Subscribe() <-chan []byte {
	ch := make(chan []byte, 256)
	t.mu.Lock()
	t.subs = append(t.subs, ch)
	t.mu.Unlock()
	return ch
}

// Run pumps inbound gossipsub messages into every registered subscriber.
// It blocks until ctx is cancelled or the subscription errors out.
func (t *Topic) Run(ctx context.Context) {
	for {
		msg, err := t.sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("topic", t.name).Msg("network: gossip subscription error")
			return
		}

		t.mu.RLock()
		for _, ch := range t.subs {
			select {
			case ch <- msg.Data:
			default:
				log.Warn().Str("topic", t.name).Msg("network: dropping gossip message for slow subscriber")
			}
		}
		t.mu.RUnlock()
	}
}

// Close cancels the subscription and leaves the topic.
func (t *Topic) Close() {
	t.sub.Cancel()
	if err := t.t.Close(); err != nil {
		log.Warn().Err(err).Str("topic", t.name).Msg("network: error closing topic")
	}
}
