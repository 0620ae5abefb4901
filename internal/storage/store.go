package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/annel0/descent/internal/world"
	"github.com/google/uuid"
)

var (
	// ErrNotInitialized возвращается при обращении к закрытому хранилищу
	ErrNotInitialized = errors.New("storage: not initialized")
	// ErrSessionNotFound возвращается при записи данных несуществующей сессии
	ErrSessionNotFound = errors.New("storage: session not found")
)

// GameStore хранит сессии, их зоны и состояние игрока.
//
// Операции чтения возвращают (значение, found, err): отсутствие записи
// не является ошибкой. Удаление сессии каскадно удаляет её зоны и
// состояние игрока. Всё, что сохранено, читается обратно без потерь.
type GameStore interface {
	// CreateSession создаёт сессию с новым id и текущим временем
	CreateSession(ctx context.Context, theme world.Theme, difficulty world.Difficulty) (*world.Session, error)
	LoadSession(ctx context.Context, id string) (*world.Session, bool, error)
	// SaveSession полностью перезаписывает существующую сессию
	SaveSession(ctx context.Context, s *world.Session) error
	ListSessions(ctx context.Context) ([]*world.Session, error)
	DeleteSession(ctx context.Context, id string) error

	// SaveArea записывает зону (upsert по паре сессия/зона)
	SaveArea(ctx context.Context, sessionID string, a *world.Area) error
	// SaveGeneration записывает сессию и зоны одной операцией: либо всё,
	// либо ничего. Сессия должна существовать.
	SaveGeneration(ctx context.Context, s *world.Session, areas ...*world.Area) error
	GetArea(ctx context.Context, sessionID, areaID string) (*world.Area, bool, error)
	GetAreasForSession(ctx context.Context, sessionID string) ([]*world.Area, error)

	SavePlayerState(ctx context.Context, sessionID string, ps *world.PlayerState) error
	LoadPlayerState(ctx context.Context, sessionID string) (*world.PlayerState, bool, error)

	Close() error
}

// newSession собирает сессию для CreateSession во всех бэкендах
func newSession(theme world.Theme, difficulty world.Difficulty) (*world.Session, error) {
	if !theme.Valid() {
		return nil, fmt.Errorf("недопустимая тема %q", theme)
	}
	if _, err := world.ParseDifficulty(string(difficulty)); err != nil {
		return nil, err
	}
	now := world.Now()
	return &world.Session{
		ID:         uuid.NewString(),
		Theme:      theme,
		Difficulty: difficulty,
		CreatedAt:  now,
		LastPlayed: now,
	}, nil
}

// normalizeSession приводит время сессии к точности хранения
func normalizeSession(s *world.Session) *world.Session {
	c := s.Clone()
	c.CreatedAt = c.CreatedAt.UTC().Truncate(time.Millisecond)
	c.LastPlayed = c.LastPlayed.UTC().Truncate(time.Millisecond)
	return c
}

func encodeArea(a *world.Area) ([]byte, error) {
	if a == nil || a.ID == "" {
		return nil, errors.New("зона без id")
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации зоны %s: %w", a.ID, err)
	}
	return data, nil
}

func decodeArea(data []byte) (*world.Area, error) {
	var a world.Area
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("ошибка десериализации зоны: %w", err)
	}
	return &a, nil
}

func encodePlayer(ps *world.PlayerState) ([]byte, error) {
	if ps == nil {
		return nil, errors.New("пустое состояние игрока")
	}
	data, err := json.Marshal(ps)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации состояния игрока: %w", err)
	}
	return data, nil
}

func decodePlayer(data []byte) (*world.PlayerState, error) {
	var ps world.PlayerState
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("ошибка десериализации состояния игрока: %w", err)
	}
	return &ps, nil
}

// sortSessions упорядочивает сессии от последней сыгранной к самой старой
func sortSessions(list []*world.Session) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].LastPlayed.Equal(list[j].LastPlayed) {
			return list[i].LastPlayed.After(list[j].LastPlayed)
		}
		return list[i].ID < list[j].ID
	})
}

// sortAreas упорядочивает зоны по id
func sortAreas(list []*world.Area) {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}
