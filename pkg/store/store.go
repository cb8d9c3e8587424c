// Package store holds the client-side conversation state and keeps it in
// sync with the persistence backend. It is an explicit state container: the
// UI root owns a Store, mutates it through typed methods, and observes it
// through subscriptions. There is no package-level state and no side effect
// on import; Initialize wires the session in one visible call.
//
// Writes are serialized by a mutex, but the design assumption is the
// original one: the UI drives at most one outstanding send per conversation
// at a time, and a second concurrent send is rejected, not interleaved.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saiaslabs/saias/pkg/backend"
	"github.com/saiaslabs/saias/pkg/chat"
)

var (
	// ErrNoSession is returned when an operation needs a logged-in user.
	ErrNoSession = errors.New("store: no session")

	// ErrNotConnected is returned when the backend health check has not
	// succeeded.
	ErrNotConnected = errors.New("store: backend not connected")

	// ErrSendInFlight rejects a second send while one is outstanding.
	ErrSendInFlight = errors.New("store: a send is already in flight")
)

// Backend is the slice of the persistence service the store needs.
type Backend interface {
	Health(ctx context.Context) error
	Conversations(ctx context.Context, token string) ([]chat.ConversationSummary, error)
	ConversationMessages(ctx context.Context, token, id string) ([]*chat.Message, error)
	History(ctx context.Context, token string) ([]*chat.Message, error)
	Send(ctx context.Context, token, message, conversationID string) (*backend.ChatResult, error)
}

// Cache is the on-device snapshot store mirrored on every mutation.
type Cache interface {
	Save(ctx context.Context, messages []*chat.Message) error
	Load(ctx context.Context) ([]*chat.Message, error)
	Clear(ctx context.Context) error
}

// Options configure a Store.
type Options struct {
	// RevealInterval is the delay between revealed words when a reply
	// arrives atomically. Zero disables the cosmetic reveal and fills
	// the placeholder in one step.
	RevealInterval time.Duration

	Logger *zap.Logger
}

// Store is the conversation state container.
type Store struct {
	backend Backend
	cache   Cache
	logger  *zap.Logger

	revealInterval time.Duration

	mu            sync.Mutex
	session       *chat.Session
	messages      []*chat.Message
	conversations []chat.ConversationSummary
	activeID      string
	input         string
	loading       bool
	errMsg        string
	connected     bool
	sending       bool
	reveal        *revealTask

	observers map[int]func()
	nextObs   int
}

// New creates a Store around a backend client and a local cache.
func New(b Backend, c Cache, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		backend:        b,
		cache:          c,
		logger:         logger,
		revealInterval: opts.RevealInterval,
		observers:      make(map[int]func()),
	}
}

// Snapshot is a point-in-time copy of the observable state.
type Snapshot struct {
	SessionPresent       bool
	Messages             []*chat.Message
	Conversations        []chat.ConversationSummary
	ActiveConversationID string
	Input                string
	Loading              bool
	Err                  string
	Connected            bool
}

// Snapshot returns a copy of the current state. The message pointers are
// shared; treat their contents as read-only.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SessionPresent:       s.session.Present(),
		Messages:             append([]*chat.Message(nil), s.messages...),
		Conversations:        append([]chat.ConversationSummary(nil), s.conversations...),
		ActiveConversationID: s.activeID,
		Input:                s.input,
		Loading:              s.loading,
		Err:                  s.errMsg,
		Connected:            s.connected,
	}
}

// Subscribe registers an observer invoked after every state change. The
// returned function unsubscribes.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// SetInput replaces the input buffer.
func (s *Store) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
	s.changed()
}

// Initialize installs the session and brings the store up: with a session
// it pre-seeds the transcript from the cache so the last-seen conversation
// shows before any network call resolves, then checks the backend; without
// one it clears the cache and resets.
func (s *Store) Initialize(ctx context.Context, session *chat.Session) {
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	if !session.Present() {
		s.resetLocal(ctx)
		s.changed()
		return
	}

	if cached, err := s.cache.Load(ctx); err != nil {
		s.logger.Warn("cache pre-seed failed", zap.Error(err))
	} else {
		s.mu.Lock()
		s.messages = cached
		s.mu.Unlock()
		s.changed()
	}

	s.CheckBackend(ctx)
}

// CheckBackend probes the backend health endpoint. On success it marks the
// store connected and refreshes history and conversation list; on failure
// the cached transcript stays visible and the error slot says so.
func (s *Store) CheckBackend(ctx context.Context) {
	if err := s.backend.Health(ctx); err != nil {
		s.mu.Lock()
		s.connected = false
		s.errMsg = "cannot reach backend, showing cached history: " + err.Error()
		s.mu.Unlock()
		s.changed()
		return
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	s.changed()

	s.LoadHistory(ctx)
	s.LoadConversations(ctx)
}

// LoadConversations refreshes the conversation summaries. An absent
// conversations feature (or any listing failure) degrades to an empty list
// without touching the error slot.
func (s *Store) LoadConversations(ctx context.Context) {
	s.mu.Lock()
	token := s.token()
	s.mu.Unlock()
	if token == "" {
		return
	}

	list, err := s.backend.Conversations(ctx, token)
	if err != nil {
		s.logger.Warn("conversation listing unavailable", zap.Error(err))
		list = nil
	}

	s.mu.Lock()
	s.conversations = list
	s.mu.Unlock()
	s.changed()
}

// LoadHistory refreshes the general transcript. Skipped while a specific
// conversation is active.
func (s *Store) LoadHistory(ctx context.Context) {
	s.mu.Lock()
	token := s.token()
	skip := token == "" || !s.connected || s.activeID != ""
	s.mu.Unlock()
	if skip {
		return
	}

	history, err := s.backend.History(ctx, token)
	if err != nil {
		s.setError("failed to load latest history: " + err.Error())
		return
	}

	s.mu.Lock()
	s.cancelRevealLocked()
	s.messages = history
	s.mu.Unlock()
	s.mirror(ctx)
	s.changed()
}

// SelectConversation makes a conversation active and loads its messages.
func (s *Store) SelectConversation(ctx context.Context, id string) {
	s.mu.Lock()
	s.cancelRevealLocked()
	s.activeID = id
	s.messages = nil
	s.loading = true
	token := s.token()
	s.mu.Unlock()
	s.changed()

	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
		s.changed()
	}()

	messages, err := s.backend.ConversationMessages(ctx, token, id)
	if errors.Is(err, backend.ErrNotFound) {
		s.setError("conversation not found")
		return
	}
	if err != nil {
		s.setError(err.Error())
		return
	}

	s.mu.Lock()
	s.messages = messages
	s.mu.Unlock()
	s.mirror(ctx)
}

// StartNewChat clears the active conversation and starts an untitled one.
func (s *Store) StartNewChat(ctx context.Context) {
	s.mu.Lock()
	s.cancelRevealLocked()
	s.activeID = ""
	s.messages = nil
	s.input = ""
	s.errMsg = ""
	s.mu.Unlock()
	s.mirror(ctx)
	s.changed()
}

// Logout drops the session and clears all local state, the cache included.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
	s.resetLocal(ctx)
	s.changed()
}

// resetLocal clears the transcript, list, active id, connectivity and the
// on-device cache. Runs on logout and on no-session detection.
func (s *Store) resetLocal(ctx context.Context) {
	s.mu.Lock()
	s.cancelRevealLocked()
	s.messages = nil
	s.conversations = nil
	s.activeID = ""
	s.connected = false
	s.mu.Unlock()

	if err := s.cache.Clear(ctx); err != nil {
		s.logger.Warn("cache clear failed", zap.Error(err))
	}
}

// token returns the bearer token. Caller holds the lock.
func (s *Store) token() string {
	if !s.session.Present() {
		return ""
	}
	return s.session.AccessToken
}

func (s *Store) setError(msg string) {
	s.mu.Lock()
	s.errMsg = msg
	s.mu.Unlock()
	s.changed()
}

// mirror writes the current transcript to the cache while a session is
// present. Best effort: a cache failure is logged, never surfaced.
func (s *Store) mirror(ctx context.Context) {
	s.mu.Lock()
	if !s.session.Present() {
		s.mu.Unlock()
		return
	}
	snapshot := append([]*chat.Message(nil), s.messages...)
	s.mu.Unlock()

	if err := s.cache.Save(ctx, snapshot); err != nil {
		s.logger.Warn("cache mirror failed", zap.Error(err))
	}
}

// changed notifies observers. Called without the lock held.
func (s *Store) changed() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
