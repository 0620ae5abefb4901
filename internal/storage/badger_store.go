package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/annel0/descent/internal/world"
	"github.com/dgraph-io/badger/v3"
)

// Схема ключей:
//
//	session:<id>            сессия (JSON)
//	area:<session>:<area>   зона (JSON, zstd)
//	player:<session>        состояние игрока (JSON, zstd)
const (
	sessionPrefix = "session:"
	areaPrefix    = "area:"
	playerPrefix  = "player:"
)

func sessionKey(id string) []byte { return []byte(sessionPrefix + id) }

func areaKey(sessionID, areaID string) []byte {
	return []byte(areaPrefix + sessionID + ":" + areaID)
}

func areaSessionPrefix(sessionID string) []byte {
	return []byte(areaPrefix + sessionID + ":")
}

func playerKey(sessionID string) []byte { return []byte(playerPrefix + sessionID) }

// BadgerStore встраиваемое хранилище игр на BadgerDB
type BadgerStore struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
}

// NewBadgerStore открывает хранилище в каталоге dataPath/games.
// Пустой dataPath открывает базу в памяти (для тестов).
func NewBadgerStore(dataPath string) (*BadgerStore, error) {
	var opts badger.Options
	dbPath := ""
	if dataPath == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dbPath = filepath.Join(dataPath, "games")
		opts = badger.DefaultOptions(dbPath)
	}
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &BadgerStore{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
	}, nil
}

// Close закрывает хранилище данных
func (bs *BadgerStore) Close() error {
	bs.mutex.Lock()
	defer bs.mutex.Unlock()

	if !bs.isReady {
		return nil
	}

	bs.isReady = false
	return bs.db.Close()
}

func (bs *BadgerStore) CreateSession(_ context.Context, theme world.Theme, difficulty world.Difficulty) (*world.Session, error) {
	s, err := newSession(theme, difficulty)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации сессии: %w", err)
	}

	bs.mutex.RLock()
	defer bs.mutex.RUnlock()
	if !bs.isReady {
		return nil, ErrNotInitialized
	}

	err = bs.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(s.ID), data)
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка сохранения сессии: %w", err)
	}
	return s, nil
}

func (bs *BadgerStore) LoadSession(_ context.Context, id string) (*world.Session, bool, error) {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()
	if !bs.isReady {
		return nil, false, ErrNotInitialized
	}

	var s *world.Session
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			s = &world.Session{}
			return json.Unmarshal(val, s)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка загрузки сессии %s: %w", id, err)
	}
	return s, true, nil
}

func (bs *BadgerStore) SaveSession(_ context.Context, s *world.Session) error {
	data, err := json.Marshal(normalizeSession(s))
	if err != nil {
		return fmt.Errorf("ошибка сериализации сессии: %w", err)
	}

	bs.mutex.RLock()
	defer bs.mutex.RUnlock()
	if !bs.isReady {
		return ErrNotInitialized
	}

	return bs.db.Update(func(txn *badger.Txn) error {
		if err := requireSession(txn, s.ID); err != nil {
			return err
		}
		return txn.Set(sessionKey(s.ID), data)
	})
}

func (bs *BadgerStore) ListSessions(_ context.Context) ([]*world.Session, error) {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()
	if !bs.isReady {
		return nil, ErrNotInitialized
	}

	out := make([]*world.Session, 0)
	err := bs.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(sessionPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var s world.Session
				if err := json.Unmarshal(val, &s); err != nil {
					return err
				}
				out = append(out, &s)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения списка сессий: %w", err)
	}
	sortSessions(out)
	return out, nil
}

// DeleteSession удаляет сессию, её зоны и состояние игрока одной транзакцией
func (bs *BadgerStore) DeleteSession(_ context.Context, id string) error {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()
	if !bs.isReady {
		return ErrNotInitialized
	}

	return bs.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		var keys [][]byte
		prefix := areaSessionPrefix(id)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		keys = append(keys, playerKey(id), sessionKey(id))
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (bs *BadgerStore) SaveArea(_ context.Context, sessionID string, a *world.Area) error {
	raw, err := encodeArea(a)
	if err != nil {
		return err
	}
	data, err := compress(raw)
	if err != nil {
		return err
	}

	bs.mutex.RLock()
	defer bs.mutex.RUnlock()
	if !bs.isReady {
		return ErrNotInitialized
	}

	return bs.db.Update(func(txn *badger.Txn) error {
		if err := requireSession(txn, sessionID); err != nil {
			return err
		}
		return txn.Set(areaKey(sessionID, a.ID), data)
	})
}

// SaveGeneration пишет сессию и зоны в одной транзакции Badger
func (bs *BadgerStore) SaveGeneration(_ context.Context, s *world.Session, areas ...*world.Area) error {
	sessionData, err := json.Marshal(normalizeSession(s))
	if err != nil {
		return fmt.Errorf("ошибка сериализации сессии: %w", err)
	}
	areaData := make([][]byte, len(areas))
	for i, a := range areas {
		raw, err := encodeArea(a)
		if err != nil {
			return err
		}
		if areaData[i], err = compress(raw); err != nil {
			return err
		}
	}

	bs.mutex.RLock()
	defer bs.mutex.RUnlock()
	if !bs.isReady {
		return ErrNotInitialized
	}

	return bs.db.Update(func(txn *badger.Txn) error {
		if err := requireSession(txn, s.ID); err != nil {
			return err
		}
		for i, a := range areas {
			if err := txn.Set(areaKey(s.ID, a.ID), areaData[i]); err != nil {
				return err
			}
		}
		return txn.Set(sessionKey(s.ID), sessionData)
	})
}

func (bs *BadgerStore) GetArea(_ context.Context, sessionID, areaID string) (*world.Area, bool, error) {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()
	if !bs.isReady {
		return nil, false, ErrNotInitialized
	}

	var a *world.Area
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(areaKey(sessionID, areaID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			raw, err := decompress(val)
			if err != nil {
				return err
			}
			a, err = decodeArea(raw)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка загрузки зоны %s: %w", areaID, err)
	}
	return a, true, nil
}

func (bs *BadgerStore) GetAreasForSession(_ context.Context, sessionID string) ([]*world.Area, error) {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()
	if !bs.isReady {
		return nil, ErrNotInitialized
	}

	out := make([]*world.Area, 0)
	err := bs.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := areaSessionPrefix(sessionID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				raw, err := decompress(val)
				if err != nil {
					return err
				}
				a, err := decodeArea(raw)
				if err != nil {
					return err
				}
				out = append(out, a)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения зон сессии %s: %w", sessionID, err)
	}
	sortAreas(out)
	return out, nil
}

func (bs *BadgerStore) SavePlayerState(_ context.Context, sessionID string, ps *world.PlayerState) error {
	raw, err := encodePlayer(ps)
	if err != nil {
		return err
	}
	data, err := compress(raw)
	if err != nil {
		return err
	}

	bs.mutex.RLock()
	defer bs.mutex.RUnlock()
	if !bs.isReady {
		return ErrNotInitialized
	}

	return bs.db.Update(func(txn *badger.Txn) error {
		if err := requireSession(txn, sessionID); err != nil {
			return err
		}
		return txn.Set(playerKey(sessionID), data)
	})
}

func (bs *BadgerStore) LoadPlayerState(_ context.Context, sessionID string) (*world.PlayerState, bool, error) {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()
	if !bs.isReady {
		return nil, false, ErrNotInitialized
	}

	var ps *world.PlayerState
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(playerKey(sessionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			raw, err := decompress(val)
			if err != nil {
				return err
			}
			ps, err = decodePlayer(raw)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка загрузки состояния игрока: %w", err)
	}
	return ps, true, nil
}

// requireSession проверяет наличие сессии внутри транзакции
func requireSession(txn *badger.Txn, id string) error {
	_, err := txn.Get(sessionKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrSessionNotFound
	}
	return err
}
