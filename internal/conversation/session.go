package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smartdevs17/nft-trade-watcher/internal/models"
)

// Flow identifies a multi-step configuration flow.
type Flow string

const (
	FlowAddCollection    Flow = "add_collection"
	FlowRemoveCollection Flow = "remove_collection"
	FlowSettings         Flow = "settings"
)

// State is a non-terminal position inside a flow. Terminal transitions
// delete the session instead of storing a terminal state.
type State string

const (
	StateAwaitBlockchain  State = "await_blockchain"
	StateAwaitMarketplace State = "await_marketplace"
	StateAwaitAddress     State = "await_address"
	StateAwaitSelection   State = "await_selection"
	StateAwaitCategory    State = "await_category"
	StateAwaitAlertType   State = "await_alert_type"
	StateAwaitFrequency   State = "await_frequency"
)

// Session holds the interim selections of one user's active flow.
// Starting a new flow overwrites any previous session for the user.
type Session struct {
	ID        string
	UserID    int64
	Flow      Flow
	State     State
	StartedAt time.Time

	// Add-collection scratch.
	Blockchain  string
	Marketplace string

	// Remove-collection scratch: snapshot taken at flow start, indexed
	// by the user's selection.
	Candidates []*models.TrackedCollection

	// Settings scratch: the record read at flow start, mutated one
	// field at a time.
	Settings models.Settings
}

func newSession(userID int64, flow Flow, state State) *Session {
	return &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Flow:      flow,
		State:     state,
		StartedAt: time.Now(),
	}
}

// SessionStore keeps at most one active session per user.
type SessionStore interface {
	Get(userID int64) (*Session, bool)
	Put(session *Session)
	Delete(userID int64)
}

// MemorySessionStore is the in-process SessionStore. State does not
// survive restarts; an interrupted flow simply starts over.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[int64]*Session)}
}

func (s *MemorySessionStore) Get(userID int64) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[userID]
	return session, ok
}

func (s *MemorySessionStore) Put(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.UserID] = session
}

func (s *MemorySessionStore) Delete(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}
