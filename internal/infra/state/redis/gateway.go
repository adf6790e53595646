package redisstate

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/domain"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/repository"
)

// Hash fields of the event_state row.
const (
	fieldDoorCount = "door_count"
	fieldCapacity  = "capacity"
	fieldWifiSSID  = "wifi_ssid"
	fieldWifiPass  = "wifi_pass"
)

// changePayload is the wire form of a change notification on the
// event's changes channel. Kind matches the row event it mirrors:
// "snapshot" for an UPDATE on event_state, "insert" for an INSERT on
// messages.
type changePayload struct {
	Kind     string                 `json:"kind"`
	Snapshot *domain.SnapshotChange `json:"snapshot,omitempty"`
	Message  *domain.Message        `json:"message,omitempty"`
}

// Gateway is the Redis implementation of repository.StateGateway. The
// event_state row lives in a hash, the messages table in a list plus
// an INCR counter for monotonic ids, and change notifications fan out
// over a pub/sub channel. Every write publishes its own notification,
// so the writer receives an echo of its write like any other
// subscriber.
type Gateway struct {
	client    *redis.Client
	keyPrefix string
	eventKey  string
}

// NewGateway creates a Gateway for one event.
func NewGateway(client *redis.Client, keyPrefix, eventKey string) *Gateway {
	if client == nil {
		panic("redis client cannot be nil for Gateway")
	}
	if keyPrefix == "" {
		keyPrefix = "bout:"
	}
	if eventKey == "" {
		eventKey = "global_event"
	}
	return &Gateway{
		client:    client,
		keyPrefix: keyPrefix,
		eventKey:  eventKey,
	}
}

// --- Key Generation Helpers ---

func (g *Gateway) stateKey() string {
	return fmt.Sprintf("%sevent:%s:state", g.keyPrefix, g.eventKey)
}

func (g *Gateway) messagesKey() string {
	return fmt.Sprintf("%sevent:%s:messages", g.keyPrefix, g.eventKey)
}

func (g *Gateway) messageSeqKey() string {
	return fmt.Sprintf("%sevent:%s:messages:seq", g.keyPrefix, g.eventKey)
}

func (g *Gateway) changesChannel() string {
	return fmt.Sprintf("%sevent:%s:changes", g.keyPrefix, g.eventKey)
}

// --- StateGateway Interface Implementation ---

// FetchSnapshot reads the event_state hash. An empty hash means the
// row has never been written and maps to repository.ErrNotFound.
func (g *Gateway) FetchSnapshot(ctx context.Context) (domain.EventState, error) {
	key := g.stateKey()
	fields, err := g.client.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.EventState{}, fmt.Errorf("redis: failed to fetch snapshot from %s: %w", key, err)
	}
	if len(fields) == 0 {
		return domain.EventState{}, repository.ErrNotFound
	}

	state := domain.DefaultEventState()
	if v, ok := fields[fieldDoorCount]; ok {
		n, parseErr := strconv.Atoi(v)
		if parseErr != nil {
			return domain.EventState{}, fmt.Errorf("redis: failed to parse door_count %q from %s: %w", v, key, parseErr)
		}
		state.DoorCount = n
	}
	if v, ok := fields[fieldCapacity]; ok {
		n, parseErr := strconv.Atoi(v)
		if parseErr != nil {
			return domain.EventState{}, fmt.Errorf("redis: failed to parse capacity %q from %s: %w", v, key, parseErr)
		}
		state.Capacity = n
	}
	if v, ok := fields[fieldWifiSSID]; ok {
		state.WifiSSID = v
	}
	if v, ok := fields[fieldWifiPass]; ok {
		state.WifiPassword = v
	}
	return state, nil
}

// UpdateSnapshot writes the fields present in the change and publishes
// the matching snapshot notification. The notification carries the
// written values, not deltas. Write and publish run in one MULTI/EXEC
// transaction, so competing writers commit and notify in the same
// order and subscribers converge on the value the hash actually holds.
func (g *Gateway) UpdateSnapshot(ctx context.Context, change domain.SnapshotChange) error {
	if change.IsEmpty() {
		return nil
	}
	values := make(map[string]interface{}, 4)
	if change.DoorCount != nil {
		values[fieldDoorCount] = *change.DoorCount
	}
	if change.Capacity != nil {
		values[fieldCapacity] = *change.Capacity
	}
	if change.WifiSSID != nil {
		values[fieldWifiSSID] = *change.WifiSSID
	}
	if change.WifiPassword != nil {
		values[fieldWifiPass] = *change.WifiPassword
	}

	raw, err := marshalPayload(changePayload{Kind: "snapshot", Snapshot: &change})
	if err != nil {
		return err
	}
	key := g.stateKey()
	_, err = g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values)
		pipe.Publish(ctx, g.changesChannel(), raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: failed to update snapshot on %s: %w", key, err)
	}
	return nil
}

// FetchRecentMessages returns at most limit of the newest messages,
// oldest first. LRANGE over the tail of the list yields exactly the
// recency window already in display order.
func (g *Gateway) FetchRecentMessages(ctx context.Context, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	key := g.messagesKey()
	raw, err := g.client.LRange(ctx, key, int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to fetch recent messages from %s: %w", key, err)
	}
	msgs := make([]domain.Message, 0, len(raw))
	for _, entry := range raw {
		var msg domain.Message
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			logrus.WithError(err).Warnf("redis: failed to unmarshal message from %s, skipping entry", key)
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// AppendMessage assigns the next monotonic ID, appends the message to
// the log and publishes the insert notification. Append and publish
// run in one MULTI/EXEC transaction so inserts are announced in the
// order they land in the list.
func (g *Gateway) AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	id, err := g.client.Incr(ctx, g.messageSeqKey()).Result()
	if err != nil {
		return domain.Message{}, fmt.Errorf("redis: failed to assign message id: %w", err)
	}
	msg.ID = uint64(id)

	payload, err := json.Marshal(msg)
	if err != nil {
		return domain.Message{}, fmt.Errorf("redis: failed to marshal message %d: %w", msg.ID, err)
	}
	raw, err := marshalPayload(changePayload{Kind: "insert", Message: &msg})
	if err != nil {
		return domain.Message{}, err
	}
	key := g.messagesKey()
	_, err = g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, string(payload))
		pipe.Publish(ctx, g.changesChannel(), raw)
		return nil
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("redis: failed to append message %d to %s: %w", msg.ID, key, err)
	}
	return msg, nil
}

// DeleteAllMessages wipes the message log. The sequence counter is
// kept so IDs stay monotonic across resets. The change feed carries
// no delete events; peers pick up a wiped log on their next connect.
func (g *Gateway) DeleteAllMessages(ctx context.Context) error {
	key := g.messagesKey()
	if err := g.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: failed to delete messages on %s: %w", key, err)
	}
	return nil
}

func marshalPayload(payload changePayload) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("redis: failed to marshal change payload: %w", err)
	}
	return string(raw), nil
}

// Subscribe opens the change feed for the event. Events arriving with
// an unknown kind or a malformed payload are logged and dropped, never
// fatal.
func (g *Gateway) Subscribe(ctx context.Context) (repository.Subscription, error) {
	pubsub := g.client.Subscribe(ctx, g.changesChannel())
	// Force the subscription onto the wire so a bad endpoint surfaces
	// here as a connect error instead of a silent dead feed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: failed to subscribe to %s: %w", g.changesChannel(), err)
	}

	sub := &subscription{
		pubsub: pubsub,
		events: make(chan repository.ChangeEvent, 64),
	}
	go sub.pump(g.changesChannel())
	return sub, nil
}

type subscription struct {
	pubsub *redis.PubSub
	events chan repository.ChangeEvent
}

func (s *subscription) Events() <-chan repository.ChangeEvent { return s.events }

func (s *subscription) Close() error { return s.pubsub.Close() }

// pump converts raw pub/sub messages into typed change events. It
// exits when the pub/sub channel closes (Close or connection loss).
func (s *subscription) pump(channel string) {
	defer close(s.events)
	for raw := range s.pubsub.Channel() {
		var payload changePayload
		if err := json.Unmarshal([]byte(raw.Payload), &payload); err != nil {
			logrus.WithError(err).WithField("channel", channel).Warn("Dropping malformed change payload")
			continue
		}
		var event repository.ChangeEvent
		switch {
		case payload.Kind == "snapshot" && payload.Snapshot != nil:
			event = repository.ChangeEvent{Kind: repository.SnapshotChanged, Snapshot: *payload.Snapshot}
		case payload.Kind == "insert" && payload.Message != nil:
			event = repository.ChangeEvent{Kind: repository.MessageInserted, Message: *payload.Message}
		default:
			logrus.WithField("kind", payload.Kind).Warn("Dropping change payload with unknown kind")
			continue
		}
		s.events <- event
	}
}
