// Package websocket streams appointment events to connected dashboards.
// Clients subscribe to topics and receive every event published to them.
package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinic/carecore/internal/platform/auth"
)

// Topics. Per-patient and per-clinician topics carry the record id after
// the slash.
const (
	TopicAppointments = "appointments"
	patientPrefix     = "patient/"
	clinicianPrefix   = "clinician/"
)

func PatientTopic(id string) string   { return patientPrefix + id }
func ClinicianTopic(id string) string { return clinicianPrefix + id }

// Event is one message pushed to subscribers.
type Event struct {
	Type         string          `json:"type"`
	Topic        string          `json:"topic,omitempty"`
	ResourceType string          `json:"resource_type,omitempty"`
	ResourceID   string          `json:"resource_id,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound subscription change.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Client is one connected subscriber.
type Client struct {
	ID     string
	User   auth.User
	Topics []string
	Send   chan []byte
}

// CanSubscribe reports whether u may receive events on topic. Patients are
// limited to their own topic; clinicians and admins see everything.
func CanSubscribe(u auth.User, topic string) bool {
	switch {
	case topic == TopicAppointments:
	case strings.HasPrefix(topic, patientPrefix) && len(topic) > len(patientPrefix):
		if u.Role == auth.RolePatient {
			return topic == PatientTopic(u.ID)
		}
	case strings.HasPrefix(topic, clinicianPrefix) && len(topic) > len(clinicianPrefix):
	default:
		return false
	}
	return u.Role == auth.RoleDoctor || u.Role == auth.RoleAdmin
}

// Hub tracks clients and their topic subscriptions.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> subscribers
	all     map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger.With().Str("component", "websocket").Logger(),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		h.addLocked(client, topic)
	}
}

// Unregister drops the client from every topic and closes its Send channel.
// Unregistering twice is a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.removeLocked(client, topic)
	}
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) addLocked(client *Client, topic string) {
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) removeLocked(client *Client, topic string) {
	if subscribers, ok := h.clients[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
}

// Subscribe adds the topics the client's user is allowed to see and
// returns them. Forbidden and duplicate topics are dropped.
func (h *Hub) Subscribe(client *Client, topics []string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	have := make(map[string]bool, len(client.Topics))
	for _, t := range client.Topics {
		have[t] = true
	}
	accepted := []string{}
	for _, topic := range topics {
		if have[topic] || !CanSubscribe(client.User, topic) {
			continue
		}
		have[topic] = true
		h.addLocked(client, topic)
		client.Topics = append(client.Topics, topic)
		accepted = append(accepted, topic)
	}
	return accepted
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	drop := make(map[string]bool, len(topics))
	for _, topic := range topics {
		drop[topic] = true
		h.removeLocked(client, topic)
	}
	remaining := make([]string, 0, len(client.Topics))
	for _, t := range client.Topics {
		if !drop[t] {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

// ProcessMessage applies msg and returns the acknowledgement to send back.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage, now time.Time) Event {
	switch msg.Action {
	case "subscribe":
		return h.ack("subscribed", h.Subscribe(client, msg.Topics), now)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
		return h.ack("unsubscribed", msg.Topics, now)
	}
	return Event{Type: "error", Timestamp: now, Data: json.RawMessage(`"unknown action"`)}
}

// ack carries the affected topics; an empty list is sent as [].
func (h *Hub) ack(typ string, topics []string, now time.Time) Event {
	if topics == nil {
		topics = []string{}
	}
	data, err := json.Marshal(topics)
	if err != nil {
		h.logger.Error().Err(err).Str("type", typ).Msg("marshal ack")
		return Event{Type: "error", Timestamp: now, Data: json.RawMessage(`"internal error"`)}
	}
	return Event{Type: typ, Timestamp: now, Data: data}
}

// Publish delivers event once to every client subscribed to any of topics.
// Slow clients with a full buffer miss the event.
func (h *Hub) Publish(_ context.Context, event Event, topics ...string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	seen := make(map[*Client]bool)
	for _, topic := range topics {
		for client := range h.clients[topic] {
			if seen[client] {
				continue
			}
			seen[client] = true
			ev := event
			ev.Topic = topic
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error().Err(err).Str("type", event.Type).Msg("marshal event")
				return delivered
			}
			select {
			case client.Send <- data:
				delivered++
			default:
				h.logger.Warn().Str("client_id", client.ID).Str("type", event.Type).Msg("client buffer full, event dropped")
			}
		}
	}
	return delivered
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}
