package services

import (
	"log"
	"sync"
	"time"
)

// Step identifies the last prompt sent to a member, which is what
// disambiguates which question a bare text reply is answering.
type Step string

const (
	StepNone            Step = ""
	StepGetName         Step = "get_name"
	StepGetMembershipNo Step = "get_membership_no"
	StepSelectCategory  Step = "select"
	StepDescribeIssue   Step = "describe_issue"
	StepImageUpload     Step = "image_upload"
)

// Session is the ephemeral per-phone conversation state. It is created on
// the first inbound message from a number, and destroyed on submission,
// opt-out, or idle timeout - whichever comes first.
type Session struct {
	Name                string
	MembershipNumber    string
	Category            string
	Suggestion          string
	LastTemplate        Step
	AwaitingImageUpload bool
	ImageURL            string
	Caption             string
	OptinChecked        bool
	OptinStatus         string
	UpdatedAt           time.Time
	LastMessageAt       time.Time
}

// HasAllRequiredData is the sole gate for persisting a feedback record.
func (s *Session) HasAllRequiredData() bool {
	return s.Name != "" && s.MembershipNumber != "" && s.Category != "" && s.Suggestion != ""
}

// SessionStore is the key-value abstraction the conversation engine mutates.
// The in-memory implementation below is process-local; a shared cache with a
// matching TTL can be swapped in without touching the engine.
type SessionStore interface {
	Get(phone string) (*Session, bool)
	Set(phone string, session *Session)
	Clear(phone string)
}

// MemorySessionStore keeps sessions in a process-local map.
type MemorySessionStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	ttl      time.Duration
}

// NewMemorySessionStore creates a session store and starts its cleanup
// routine. Entries older than ttl are dropped; the engine applies the same
// limit inline, so the janitor only reclaims memory for abandoned chats.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	store := &MemorySessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}

	go store.cleanupExpiredSessions()

	return store
}

func (m *MemorySessionStore) Get(phone string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[phone]
	return session, exists
}

func (m *MemorySessionStore) Set(phone string, session *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[phone] = session
}

func (m *MemorySessionStore) Clear(phone string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, phone)
}

// ActiveSessions returns the number of live sessions (for monitoring)
func (m *MemorySessionStore) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}

// cleanupExpiredSessions runs periodically to drop idle sessions
func (m *MemorySessionStore) cleanupExpiredSessions() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.Lock()
		cleaned := 0
		for phone, session := range m.sessions {
			if time.Since(session.UpdatedAt) > m.ttl {
				delete(m.sessions, phone)
				cleaned++
			}
		}
		m.mu.Unlock()

		if cleaned > 0 {
			log.Printf("Cleaned up %d expired session(s)", cleaned)
		}
	}
}
