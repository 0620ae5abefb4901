package storage

import (
	"context"
	"sync"

	"github.com/annel0/descent/internal/world"
)

// MemoryStore хранит игры в памяти процесса. Зоны и состояние игрока
// лежат в сериализованном виде, поэтому вызывающий код не может
// изменить сохранённые данные через возвращённые указатели.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*world.Session
	areas    map[string]map[string][]byte
	players  map[string][]byte
	isReady  bool
}

// NewMemoryStore создаёт пустое хранилище в памяти
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*world.Session),
		areas:    make(map[string]map[string][]byte),
		players:  make(map[string][]byte),
		isReady:  true,
	}
}

func (m *MemoryStore) CreateSession(_ context.Context, theme world.Theme, difficulty world.Difficulty) (*world.Session, error) {
	s, err := newSession(theme, difficulty)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isReady {
		return nil, ErrNotInitialized
	}
	m.sessions[s.ID] = s.Clone()
	return s, nil
}

func (m *MemoryStore) LoadSession(_ context.Context, id string) (*world.Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.isReady {
		return nil, false, ErrNotInitialized
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, false, nil
	}
	return s.Clone(), true, nil
}

func (m *MemoryStore) SaveSession(_ context.Context, s *world.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isReady {
		return ErrNotInitialized
	}
	if _, ok := m.sessions[s.ID]; !ok {
		return ErrSessionNotFound
	}
	m.sessions[s.ID] = normalizeSession(s)
	return nil
}

func (m *MemoryStore) ListSessions(_ context.Context) ([]*world.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.isReady {
		return nil, ErrNotInitialized
	}
	out := make([]*world.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	sortSessions(out)
	return out, nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isReady {
		return ErrNotInitialized
	}
	delete(m.sessions, id)
	delete(m.areas, id)
	delete(m.players, id)
	return nil
}

func (m *MemoryStore) SaveArea(_ context.Context, sessionID string, a *world.Area) error {
	data, err := encodeArea(a)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isReady {
		return ErrNotInitialized
	}
	if _, ok := m.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	bucket, ok := m.areas[sessionID]
	if !ok {
		bucket = make(map[string][]byte)
		m.areas[sessionID] = bucket
	}
	bucket[a.ID] = data
	return nil
}

func (m *MemoryStore) SaveGeneration(_ context.Context, s *world.Session, areas ...*world.Area) error {
	encoded := make(map[string][]byte, len(areas))
	for _, a := range areas {
		data, err := encodeArea(a)
		if err != nil {
			return err
		}
		encoded[a.ID] = data
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isReady {
		return ErrNotInitialized
	}
	if _, ok := m.sessions[s.ID]; !ok {
		return ErrSessionNotFound
	}
	bucket, ok := m.areas[s.ID]
	if !ok {
		bucket = make(map[string][]byte)
		m.areas[s.ID] = bucket
	}
	for id, data := range encoded {
		bucket[id] = data
	}
	m.sessions[s.ID] = normalizeSession(s)
	return nil
}

func (m *MemoryStore) GetArea(_ context.Context, sessionID, areaID string) (*world.Area, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.isReady {
		return nil, false, ErrNotInitialized
	}
	data, ok := m.areas[sessionID][areaID]
	if !ok {
		return nil, false, nil
	}
	a, err := decodeArea(data)
	if err != nil {
		return nil, false, err
	}
	return a, true, nil
}

func (m *MemoryStore) GetAreasForSession(_ context.Context, sessionID string) ([]*world.Area, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.isReady {
		return nil, ErrNotInitialized
	}
	out := make([]*world.Area, 0, len(m.areas[sessionID]))
	for _, data := range m.areas[sessionID] {
		a, err := decodeArea(data)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	sortAreas(out)
	return out, nil
}

func (m *MemoryStore) SavePlayerState(_ context.Context, sessionID string, ps *world.PlayerState) error {
	data, err := encodePlayer(ps)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isReady {
		return ErrNotInitialized
	}
	if _, ok := m.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	m.players[sessionID] = data
	return nil
}

func (m *MemoryStore) LoadPlayerState(_ context.Context, sessionID string) (*world.PlayerState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.isReady {
		return nil, false, ErrNotInitialized
	}
	data, ok := m.players[sessionID]
	if !ok {
		return nil, false, nil
	}
	ps, err := decodePlayer(data)
	if err != nil {
		return nil, false, err
	}
	return ps, true, nil
}

// Close освобождает данные; повторный вызов безопасен
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isReady = false
	m.sessions = nil
	m.areas = nil
	m.players = nil
	return nil
}
