// Package liveevents fans usage events out to UI subscribers. It replaces the
// ambient "open a modal from anywhere" hook with an explicit per-organization
// event stream the presentation layer subscribes to.
package liveevents

import (
	"sync"
)

const (
	TypeUsageChanged = "usage_changed"
	TypeNearLimit    = "near_limit"
	TypeLimitReached = "limit_reached"
)

const (
	DefaultBufferSize       = 50
	DefaultSubscriberBuffer = 16
)

type Event struct {
	Type     string `json:"type"`
	OrgID    string `json:"org_id"`
	MemberID string `json:"member_id,omitempty"`
	Resource string `json:"resource"`
	Current  int    `json:"current"`
	Limit    int    `json:"limit"`
	Percent  int    `json:"percent"`
}

type Hub struct {
	mu               sync.RWMutex
	streams          map[string]*stream
	bufferSize       int
	subscriberBuffer int
}

type stream struct {
	mu     sync.Mutex
	buffer []Event
	subs   map[uint64]chan Event
	nextID uint64
}

type Subscription struct {
	hub   *Hub
	orgID string
	id    uint64
	ch    chan Event
	once  sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[string]*stream),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// Publish delivers the event to every subscriber of the org's stream. Slow
// subscribers are skipped, never blocked on.
func (h *Hub) Publish(orgID string, event Event) {
	if h == nil || orgID == "" {
		return
	}
	h.mu.RLock()
	st := h.streams[orgID]
	h.mu.RUnlock()
	if st == nil {
		return
	}

	st.mu.Lock()
	st.buffer = append(st.buffer, event)
	if len(st.buffer) > h.bufferSize {
		st.buffer = st.buffer[len(st.buffer)-h.bufferSize:]
	}
	for _, ch := range st.subs {
		select {
		case ch <- event:
		default:
		}
	}
	st.mu.Unlock()
}

// Subscribe attaches to the org's stream and replays the buffered tail.
func (h *Hub) Subscribe(orgID string) *Subscription {
	h.mu.Lock()
	st, ok := h.streams[orgID]
	if !ok {
		st = &stream{subs: make(map[uint64]chan Event)}
		h.streams[orgID] = st
	}
	h.mu.Unlock()

	ch := make(chan Event, h.subscriberBuffer)

	st.mu.Lock()
	id := st.nextID
	st.nextID++
	st.subs[id] = ch
	replay := make([]Event, len(st.buffer))
	copy(replay, st.buffer)
	st.mu.Unlock()

	for _, event := range replay {
		select {
		case ch <- event:
		default:
		}
	}

	return &Subscription{hub: h, orgID: orgID, id: id, ch: ch}
}

func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.RLock()
		st := s.hub.streams[s.orgID]
		s.hub.mu.RUnlock()
		if st == nil {
			return
		}
		st.mu.Lock()
		delete(st.subs, s.id)
		st.mu.Unlock()
		close(s.ch)
	})
}
