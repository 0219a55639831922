package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"haulboard/internal/boards"
	"haulboard/internal/model"
)

// WebSocket stream of search lifecycle events (graphql-transport-ws style
// framing: connection_init/ack, subscribe, next, complete).

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type streamSubscribePayload struct {
	// SearchID attaches to an already-running search's events.
	SearchID string `json:"searchId,omitempty"`
	// Filter, when present, starts a new search on the server; its result is
	// delivered as a final "search.result" event before complete.
	Filter *model.LoadFilter `json:"filter,omitempty"`
}

// LoadsStreamHandler handles /v1/loads/stream
func (s *Server) LoadsStreamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	// Track subscriptions: id -> searchID and channel
	type sub struct {
		searchID string
		ch       chan boards.Event
	}
	subs := map[string]sub{}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	write := func(v any) error { return conn.WriteJSON(v) }

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack"})
			go func() {
				ticker := time.NewTicker(20 * time.Second)
				defer ticker.Stop()
				for range ticker.C {
					if err := write(wsMessage{Type: "ping"}); err != nil {
						return
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			var pl streamSubscribePayload
			_ = json.Unmarshal(msg.Payload, &pl)
			searchID := pl.SearchID
			if searchID == "" && pl.Filter == nil {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"searchId or filter required"}`)})
				_ = write(wsMessage{Type: "complete", ID: msg.ID})
				continue
			}
			if searchID == "" {
				searchID = uuid.NewString()
			}
			ch := s.Broker.Subscribe(searchID)
			subs[msg.ID] = sub{searchID: searchID, ch: ch}
			go func(id string, c chan boards.Event) {
				for evt := range c {
					payload, _ := json.Marshal(evt)
					_ = write(wsMessage{Type: "next", ID: id, Payload: payload})
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch)

			if pl.Filter != nil {
				_, company := s.withCompany(r)
				go func(id, sid string, filter model.LoadFilter) {
					ctx, cancel := context.WithTimeout(context.Background(), 2*s.Agg.Timeout)
					defer cancel()
					res, err := s.Agg.Search(ctx, company, filter, sid)
					if err != nil {
						s.Broker.Publish(sid, boards.Event{Type: "search.error", Data: map[string]any{"message": err.Error()}})
						return
					}
					s.Broker.Publish(sid, boards.Event{Type: "search.result", Data: map[string]any{
						"searchId":  sid,
						"loads":     res.Loads,
						"providers": res.Providers,
					}})
				}(msg.ID, searchID, *pl.Filter)
			}
		case "complete":
			if s0, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(s0.searchID, s0.ch)
				delete(subs, msg.ID)
			}
		default:
			// ignore
		}
	}
	for id, s0 := range subs {
		s.Broker.Unsubscribe(s0.searchID, s0.ch)
		delete(subs, id)
	}
}
