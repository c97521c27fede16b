package storage

import (
	"context"
	"sync"
	"time"

	"github.com/hyperjump/kaiwa/internal/models"
)

type sessionEntry struct {
	session   *models.Session
	expiresAt time.Time
}

type feedbackEntry struct {
	userID  string
	history []models.QuestionFeedback
}

// MemoryStore keeps everything in process memory. Values are copied in and out.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]sessionEntry
	rags     map[string]models.PersonalizedRAG
	feedback map[string]*feedbackEntry
	now      func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string]sessionEntry{},
		rags:     map[string]models.PersonalizedRAG{},
		feedback: map[string]*feedbackEntry{},
		now:      time.Now,
	}
}

func (m *MemoryStore) SaveSession(_ context.Context, s *models.Session, ttl time.Duration) error {
	e := sessionEntry{session: s.Clone()}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.sessions[s.ID] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, models.NewNotFound("session", id)
	}
	if !e.expiresAt.IsZero() && m.now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return nil, models.NewNotFound("session", id)
	}
	return e.session.Clone(), nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	delete(m.feedback, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) SaveRAG(_ context.Context, rag *models.PersonalizedRAG) error {
	c := *rag
	c.CategoriesCovered = append([]models.Category(nil), rag.CategoriesCovered...)
	c.FocusAreas = append([]string(nil), rag.FocusAreas...)
	m.mu.Lock()
	m.rags[rag.RAGID] = c
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetRAG(_ context.Context, ragID string) (*models.PersonalizedRAG, error) {
	m.mu.RLock()
	rag, ok := m.rags[ragID]
	m.mu.RUnlock()
	if !ok {
		return nil, models.NewNotFound("personalized rag", ragID)
	}
	return &rag, nil
}

func (m *MemoryStore) DeleteRAG(_ context.Context, ragID string) error {
	m.mu.Lock()
	delete(m.rags, ragID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) CountRAGs(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rags), nil
}

func (m *MemoryStore) AppendFeedback(_ context.Context, sessionID, userID string, fb *models.QuestionFeedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.feedback[sessionID]
	if !ok {
		e = &feedbackEntry{userID: userID}
		m.feedback[sessionID] = e
	}
	e.history = append(e.history, *fb)
	return nil
}

func (m *MemoryStore) LoadFeedback(_ context.Context, sessionID string) (string, []models.QuestionFeedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.feedback[sessionID]
	if !ok {
		return "", nil, models.NewNotFound("feedback", sessionID)
	}
	return e.userID, append([]models.QuestionFeedback(nil), e.history...), nil
}

func (m *MemoryStore) Close() error { return nil }
