package streaming

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventType classifies progress events emitted during a research run.
type EventType string

const (
	EventStatus   EventType = "status"
	EventLog      EventType = "log"
	EventResults  EventType = "results"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one progress message for a research run.
type Event struct {
	Type      EventType              `json:"type"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp string                 `json:"timestamp"`
	Seq       uint64                 `json:"seq"`
}

// terminal reports whether no further events follow this one.
func (e Event) terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

type stream struct {
	mu       sync.Mutex
	seq      uint64
	buffer   []Event // ring of recent events for late subscribers
	head     int
	size     int
	subs     map[chan Event]struct{}
	finished bool
}

// Manager fans research events out to subscribers, per research ID. A
// bounded ring buffer replays recent history to subscribers that attach
// after the run started. Slow subscribers have events dropped rather than
// blocking the publisher.
type Manager struct {
	mu       sync.RWMutex
	streams  map[string]*stream
	capacity int
	logger   *zap.Logger
}

func NewManager(capacity int, logger *zap.Logger) *Manager {
	if capacity < 1 {
		capacity = 256
	}
	return &Manager{
		streams:  make(map[string]*stream),
		capacity: capacity,
		logger:   logger,
	}
}

func (m *Manager) get(researchID string) *stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[researchID]
	if !ok {
		s = &stream{
			buffer: make([]Event, m.capacity),
			subs:   make(map[chan Event]struct{}),
		}
		m.streams[researchID] = s
	}
	return s
}

// Publish stamps the event with a timestamp and per-stream sequence number
// and delivers it to all subscribers. Events published after a terminal
// event are dropped.
func (m *Manager) Publish(researchID string, ev Event) {
	s := m.get(researchID)

	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.seq++
	ev.Seq = s.seq
	ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	if ev.terminal() {
		s.finished = true
	}

	s.buffer[s.head] = ev
	s.head = (s.head + 1) % len(s.buffer)
	if s.size < len(s.buffer) {
		s.size++
	}

	var dropped int
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
			dropped++
		}
	}
	closing := ev.terminal()
	if closing {
		for ch := range s.subs {
			close(ch)
		}
		s.subs = make(map[chan Event]struct{})
	}
	s.mu.Unlock()

	if dropped > 0 {
		m.logger.Warn("dropped events for slow subscribers",
			zap.String("research_id", researchID), zap.Int("count", dropped))
	}
}

// Subscribe attaches to a research run's event stream. Buffered history is
// replayed first. The returned cancel function detaches the subscriber; the
// channel is closed after a terminal event or on cancel.
func (m *Manager) Subscribe(researchID string) (<-chan Event, func()) {
	s := m.get(researchID)
	ch := make(chan Event, m.capacity)

	s.mu.Lock()
	start := s.head - s.size
	if start < 0 {
		start += len(s.buffer)
	}
	for i := 0; i < s.size; i++ {
		ch <- s.buffer[(start+i)%len(s.buffer)]
	}
	if s.finished {
		close(ch)
		s.mu.Unlock()
		return ch, func() {}
	}
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Release drops the stored history for a finished run.
func (m *Manager) Release(researchID string) {
	m.mu.Lock()
	delete(m.streams, researchID)
	m.mu.Unlock()
}

// Active returns the number of streams that have not seen a terminal event.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.streams {
		s.mu.Lock()
		if !s.finished {
			n++
		}
		s.mu.Unlock()
	}
	return n
}
