// Package identity keeps the durable session id that scopes server-side
// chat history to one user profile.
package identity

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionKey is the storage key holding the session id.
const SessionKey = "mmSession"

// Storage is a durable string key/value store.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

type Store struct {
	storage Storage
	log     *zap.Logger
	newID   func() (string, error)

	mu sync.Mutex
	id string
}

type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// WithGenerator replaces the random id source.
func WithGenerator(fn func() (string, error)) Option {
	return func(s *Store) {
		s.newID = fn
	}
}

func NewStore(storage Storage, opts ...Option) *Store {
	s := &Store{
		storage: storage,
		log:     zap.NewNop(),
		newID:   randomID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreateSessionID returns the persisted session id, creating and
// storing one on first use. Storage failures are not fatal: the id then
// lives only as long as this Store.
func (s *Store) GetOrCreateSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id != "" {
		return s.id
	}

	if s.storage != nil {
		id, ok, err := s.storage.Get(SessionKey)
		switch {
		case err != nil:
			s.log.Warn("session storage unreadable, using in-memory session", zap.Error(err))
		case ok && id != "":
			s.id = id
			return s.id
		}
	}

	id, err := s.newID()
	if err != nil {
		// crypto/rand failing is not recoverable by retrying
		s.log.Error("session id generation failed", zap.Error(err))
		id = uuid.NewString()
	}
	s.id = id

	if s.storage != nil {
		if err := s.storage.Set(SessionKey, id); err != nil {
			s.log.Warn("session storage unwritable, session will not survive restart", zap.Error(err))
		}
	}
	return s.id
}

func randomID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
