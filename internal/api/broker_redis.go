package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"haulboard/internal/boards"
)

// EventBroker distributes per-search progress events. The aggregator is the
// publisher; streaming connections subscribe by search ID.
type EventBroker interface {
	Subscribe(searchID string) chan boards.Event
	Unsubscribe(searchID string, ch chan boards.Event)
	Publish(searchID string, evt boards.Event)
}

// RedisBroker implements EventBroker over Redis Pub/Sub so events reach
// subscribers on other instances.
type RedisBroker struct {
	rdb *redis.Client

	mu  sync.Mutex
	sub map[chan boards.Event]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisBroker{rdb: redis.NewClient(opt), sub: map[chan boards.Event]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(searchID string) chan boards.Event {
	ch := make(chan boards.Event, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(searchID))
	// initial consume to ensure subscription
	_, _ = ps.Receive(ctx)
	b.mu.Lock()
	b.sub[ch] = ps
	b.mu.Unlock()
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt boards.Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
				select {
				case ch <- evt:
				default:
				}
			}
		}
	}()
	return ch
}

func (b *RedisBroker) Unsubscribe(searchID string, ch chan boards.Event) {
	b.mu.Lock()
	ps := b.sub[ch]
	delete(b.sub, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close() // closes ps.Channel, which closes ch
	}
}

func (b *RedisBroker) Publish(searchID string, evt boards.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(evt)
	_ = b.rdb.Publish(ctx, b.chanName(searchID), data).Err()
}

func (b *RedisBroker) chanName(searchID string) string { return "search:" + searchID }
