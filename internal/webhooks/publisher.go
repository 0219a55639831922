package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"haulboard/internal/store"
)

// Publisher fans an alert event out to every matching subscription by
// enqueueing deliveries; the worker drains the queue.
type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit sends an event to all subscriptions for the company and event type.
func (p *Publisher) Emit(ctx context.Context, companyID, eventType string, data any) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, companyID, eventType)
	if err != nil || len(subs) == 0 {
		return
	}
	payload := map[string]any{
		"id":        fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		"type":      eventType,
		"companyId": companyID,
		"ts":        time.Now().UTC().Format(time.RFC3339),
		"data":      data,
	}
	body, _ := json.Marshal(payload)
	for _, s := range subs {
		_, _ = p.Store.EnqueueAlert(ctx, companyID, s.ID, eventType, s.URL, s.Secret, body)
	}
}
