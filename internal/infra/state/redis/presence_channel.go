package redisstate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/domain"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/repository"
)

// presencePayload is the wire form of one presence broadcast.
type presencePayload struct {
	Record domain.PresenceRecord `json:"record"`
	Left   bool                  `json:"left,omitempty"`
}

// PresenceChannel is the Redis pub/sub implementation of
// repository.PresenceChannel. Redis stores nothing for presence: the
// channel only carries announces and leaves between live subscribers,
// which is exactly the ephemeral broadcast group the trackers need.
type PresenceChannel struct {
	client    *redis.Client
	keyPrefix string
	eventKey  string
}

// NewPresenceChannel creates the presence channel for one event.
func NewPresenceChannel(client *redis.Client, keyPrefix, eventKey string) *PresenceChannel {
	if client == nil {
		panic("redis client cannot be nil for PresenceChannel")
	}
	if keyPrefix == "" {
		keyPrefix = "bout:"
	}
	if eventKey == "" {
		eventKey = "global_event"
	}
	return &PresenceChannel{client: client, keyPrefix: keyPrefix, eventKey: eventKey}
}

func (p *PresenceChannel) channel() string {
	return fmt.Sprintf("%sevent:%s:presence", p.keyPrefix, p.eventKey)
}

// Announce broadcasts the device's current record to all subscribers.
func (p *PresenceChannel) Announce(ctx context.Context, rec domain.PresenceRecord) error {
	return p.publish(ctx, presencePayload{Record: rec})
}

// Leave broadcasts an explicit leave so peers can drop the record
// without waiting for heartbeat eviction.
func (p *PresenceChannel) Leave(ctx context.Context, deviceID string) error {
	return p.publish(ctx, presencePayload{
		Record: domain.PresenceRecord{DeviceID: deviceID},
		Left:   true,
	})
}

func (p *PresenceChannel) publish(ctx context.Context, payload presencePayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal presence payload: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel(), string(raw)).Err(); err != nil {
		return fmt.Errorf("redis: failed to publish presence to %s: %w", p.channel(), err)
	}
	return nil
}

// Subscribe opens the presence feed for the event's broadcast group.
func (p *PresenceChannel) Subscribe(ctx context.Context) (repository.PresenceSubscription, error) {
	pubsub := p.client.Subscribe(ctx, p.channel())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: failed to subscribe to %s: %w", p.channel(), err)
	}

	sub := &presenceSubscription{
		pubsub:  pubsub,
		updates: make(chan repository.PresenceUpdate, 64),
	}
	go sub.pump(p.channel())
	return sub, nil
}

type presenceSubscription struct {
	pubsub  *redis.PubSub
	updates chan repository.PresenceUpdate
}

func (s *presenceSubscription) Updates() <-chan repository.PresenceUpdate { return s.updates }

func (s *presenceSubscription) Close() error { return s.pubsub.Close() }

func (s *presenceSubscription) pump(channel string) {
	defer close(s.updates)
	for raw := range s.pubsub.Channel() {
		var payload presencePayload
		if err := json.Unmarshal([]byte(raw.Payload), &payload); err != nil {
			logrus.WithError(err).WithField("channel", channel).Warn("Dropping malformed presence payload")
			continue
		}
		if payload.Record.DeviceID == "" {
			logrus.WithField("channel", channel).Warn("Dropping presence payload without device id")
			continue
		}
		s.updates <- repository.PresenceUpdate{Record: payload.Record, Left: payload.Left}
	}
}
