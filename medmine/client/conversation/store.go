// Package conversation holds the ordered, in-memory message log of one chat.
//
// The log is never empty: Reset seeds it with the greeting. Asynchronous
// writers tag their writes with the epoch they started in; Reset and LoadFrom
// advance the epoch so late answers from an abandoned chat are dropped.
package conversation

import (
	"encoding/json"
	"sync"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Greeting seeds every fresh log.
const Greeting = "Hello! I'm Earl, your AI assistant for purchase order data analysis. Upload a file or ask me about your procurement data."

type Message struct {
	ID          int64
	Role        Role
	Text        string
	CreatedAt   time.Time
	Suggestions []string
	Context     json.RawMessage
}

// TxID identifies a message that a pending operation will later resolve.
type TxID uint64

type EventKind string

const (
	EventAppended EventKind = "appended"
	EventReplaced EventKind = "replaced"
	EventReset    EventKind = "reset"
	EventLoaded   EventKind = "loaded"
)

// Event is the "scroll to newest" signal. Message is the newest entry after
// the mutation, Len the log length.
type Event struct {
	Kind    EventKind
	Message Message
	Len     int
}

type pending struct {
	epoch uint64
	id    int64
}

type Store struct {
	mu       sync.Mutex
	messages []Message
	nextID   int64
	nextTx   TxID
	epoch    uint64
	pending  map[TxID]pending
	subs     map[int]func(Event)
	nextSub  int
	now      func() time.Time
}

type Option func(*Store)

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		pending: make(map[TxID]pending),
		subs:    make(map[int]func(Event)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.seedLocked()
	return s
}

// Subscribe registers fn for every mutation. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Epoch returns the current logical generation of the log.
func (s *Store) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Messages returns a copy of the log.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Last returns the newest message.
func (s *Store) Last() Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[len(s.messages)-1]
}

// Append adds m to the end of the current log and returns it with its
// assigned id and timestamp.
func (s *Store) Append(m Message) Message {
	s.mu.Lock()
	m = s.appendLocked(m)
	ev, subs := s.eventLocked(EventAppended)
	s.mu.Unlock()
	notify(subs, ev)
	return m
}

// AppendAt appends only if epoch is still current.
func (s *Store) AppendAt(epoch uint64, m Message) (Message, bool) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return Message{}, false
	}
	m = s.appendLocked(m)
	ev, subs := s.eventLocked(EventAppended)
	s.mu.Unlock()
	notify(subs, ev)
	return m, true
}

// ReplaceLast overwrites the newest entry, keeping its id.
func (s *Store) ReplaceLast(m Message) Message {
	s.mu.Lock()
	last := len(s.messages) - 1
	m = s.stamp(m, s.messages[last].ID)
	s.messages[last] = m
	ev, subs := s.eventLocked(EventReplaced)
	s.mu.Unlock()
	notify(subs, ev)
	return m
}

// Begin appends a transient message and returns the transaction that owns
// it. It fails when epoch is stale.
func (s *Store) Begin(epoch uint64, m Message) (TxID, bool) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return 0, false
	}
	m = s.appendLocked(m)
	s.nextTx++
	tx := s.nextTx
	s.pending[tx] = pending{epoch: epoch, id: m.ID}
	ev, subs := s.eventLocked(EventAppended)
	s.mu.Unlock()
	notify(subs, ev)
	return tx, true
}

// Resolve replaces, in place, the message created by tx. A transaction is
// resolved at most once; unknown or stale transactions return false.
func (s *Store) Resolve(tx TxID, m Message) bool {
	s.mu.Lock()
	p, ok := s.pending[tx]
	if !ok || p.epoch != s.epoch {
		delete(s.pending, tx)
		s.mu.Unlock()
		return false
	}
	delete(s.pending, tx)
	idx := s.indexLocked(p.id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	m = s.stamp(m, p.id)
	s.messages[idx] = m
	ev, subs := s.eventLocked(EventReplaced)
	ev.Message = m
	s.mu.Unlock()
	notify(subs, ev)
	return true
}

// Reset discards the log, seeds the greeting and starts a new epoch.
func (s *Store) Reset() {
	s.mu.Lock()
	s.epoch++
	s.pending = make(map[TxID]pending)
	s.messages = nil
	s.seedLocked()
	ev, subs := s.eventLocked(EventReset)
	s.mu.Unlock()
	notify(subs, ev)
}

// LoadFrom swaps the whole log for history; it never merges. Loaded messages
// are renumbered. An empty history is treated like Reset.
func (s *Store) LoadFrom(history []Message) {
	s.mu.Lock()
	s.loadLocked(history)
	ev, subs := s.eventLocked(EventLoaded)
	s.mu.Unlock()
	notify(subs, ev)
}

// LoadFromAt is LoadFrom for a history fetched while epoch was current. It
// returns the new epoch, or false when the log moved on meanwhile.
func (s *Store) LoadFromAt(epoch uint64, history []Message) (uint64, bool) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return 0, false
	}
	s.loadLocked(history)
	loaded := s.epoch
	ev, subs := s.eventLocked(EventLoaded)
	s.mu.Unlock()
	notify(subs, ev)
	return loaded, true
}

func (s *Store) loadLocked(history []Message) {
	s.epoch++
	s.pending = make(map[TxID]pending)
	s.messages = nil
	if len(history) == 0 {
		s.seedLocked()
	}
	for _, m := range history {
		s.nextID++
		m.ID = s.nextID
		if m.CreatedAt.IsZero() {
			m.CreatedAt = s.now()
		}
		s.messages = append(s.messages, m)
	}
}

func (s *Store) seedLocked() {
	s.appendLocked(Message{Role: RoleAssistant, Text: Greeting})
}

func (s *Store) appendLocked(m Message) Message {
	s.nextID++
	m = s.stamp(m, s.nextID)
	s.messages = append(s.messages, m)
	return m
}

func (s *Store) stamp(m Message, id int64) Message {
	m.ID = id
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	return m
}

func (s *Store) indexLocked(id int64) int {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) eventLocked(kind EventKind) (Event, []func(Event)) {
	ev := Event{Kind: kind, Message: s.messages[len(s.messages)-1], Len: len(s.messages)}
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return ev, subs
}

func notify(subs []func(Event), ev Event) {
	for _, fn := range subs {
		fn(ev)
	}
}
