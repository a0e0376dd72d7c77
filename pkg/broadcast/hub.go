// Package broadcast fans committed store events and ephemeral presence out
// to per-channel subscribers. Delivery is at most once per subscriber: a
// subscriber whose buffer is full is dropped and must resubscribe and reload.
package broadcast

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/valyala/bytebufferpool"

	"groupchat/pkg/metrics"
	"groupchat/pkg/models"
	"groupchat/pkg/state/logger"
)

const DefaultBuffer = 256

const (
	messagesPrefix = "messages:"
	presencePrefix = "presence:"
)

// MessagesTopic carries message and reaction events for a channel.
func MessagesTopic(channelID string) string { return messagesPrefix + channelID }

// PresenceTopic carries presence events for a channel.
func PresenceTopic(channelID string) string { return presencePrefix + channelID }

// TopicFor routes an event to its topic.
func TopicFor(ev models.Event) string {
	if ev.Kind() == models.EventPresenceChanged {
		return PresenceTopic(ev.Channel())
	}
	return MessagesTopic(ev.Channel())
}

// Subscriber receives encoded frames on C until it is unsubscribed or
// dropped, at which point C is closed.
type Subscriber struct {
	topic   string
	send    chan []byte
	dropped bool
	closed  bool
}

func (s *Subscriber) Topic() string { return s.topic }

// C yields encoded frames.
func (s *Subscriber) C() <-chan []byte { return s.send }

type Hub struct {
	mu     sync.Mutex
	buffer int
	topics map[string]map[*Subscriber]struct{}
	seq    map[string]uint64
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		buffer: buffer,
		topics: make(map[string]map[*Subscriber]struct{}),
		seq:    make(map[string]uint64),
	}
}

// Subscribe registers a new subscriber on topic.
func (h *Hub) Subscribe(topic string) *Subscriber {
	s := &Subscriber{topic: topic, send: make(chan []byte, h.buffer)}
	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		h.topics[topic] = subs
	}
	subs[s] = struct{}{}
	h.mu.Unlock()
	metrics.Subscribers.Inc()
	return s
}

// Unsubscribe removes s and closes its channel. Safe to call after a drop.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(s)
}

// Dropped reports whether s was disconnected for falling behind.
func (h *Hub) Dropped(s *Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return s.dropped
}

// remove must be called with h.mu held.
func (h *Hub) remove(s *Subscriber) {
	if s.closed {
		return
	}
	s.closed = true
	if subs, ok := h.topics[s.topic]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.topics, s.topic)
			if strings.HasPrefix(s.topic, presencePrefix) {
				delete(h.seq, s.topic)
			}
		}
	}
	close(s.send)
	metrics.Subscribers.Dec()
}

func encode(f models.Frame) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := json.NewEncoder(buf).Encode(f); err != nil {
		return nil, err
	}
	b := buf.B
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	return append([]byte(nil), b...), nil
}

// Publish validates ev, stamps it with the next topic sequence number and
// delivers it to every current subscriber of its topic. It returns the
// number of subscribers that received it.
func (h *Hub) Publish(ev models.Event) (int, error) {
	topic := TopicFor(ev)

	h.mu.Lock()
	defer h.mu.Unlock()

	seq := h.seq[topic] + 1
	f, err := models.NewFrame(ev, seq)
	if err != nil {
		return 0, err
	}
	data, err := encode(f)
	if err != nil {
		return 0, err
	}
	h.seq[topic] = seq
	metrics.BroadcastEvents.WithLabelValues(string(ev.Kind())).Inc()

	delivered := 0
	for s := range h.topics[topic] {
		select {
		case s.send <- data:
			delivered++
		default:
			s.dropped = true
			h.remove(s)
			metrics.BroadcastDropped.Inc()
			logger.Warn("ws_subscriber_dropped", "topic", topic, "seq", seq)
		}
	}
	return delivered, nil
}

// SendTo delivers ev to a single subscriber without advancing the topic
// sequence. Used for presence snapshots on connect.
func (h *Hub) SendTo(s *Subscriber, ev models.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return nil
	}
	f, err := models.NewFrame(ev, h.seq[s.topic])
	if err != nil {
		return err
	}
	data, err := encode(f)
	if err != nil {
		return err
	}
	select {
	case s.send <- data:
	default:
		s.dropped = true
		h.remove(s)
		metrics.BroadcastDropped.Inc()
	}
	return nil
}

// Subscribers counts subscribers on topic, or on all topics when topic is "".
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if topic != "" {
		return len(h.topics[topic])
	}
	n := 0
	for _, subs := range h.topics {
		n += len(subs)
	}
	return n
}

// Close drops every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, subs := range h.topics {
		for s := range subs {
			h.remove(s)
		}
	}
}
