package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/descent/internal/world"
	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// sessionRecord строка таблицы sessions. Время хранится в миллисекундах
// UTC, чтобы SQLite и PostgreSQL возвращали одинаковые значения.
type sessionRecord struct {
	ID               string `gorm:"primaryKey;size:64"`
	Theme            string `gorm:"size:32;not null"`
	Difficulty       string `gorm:"size:16;not null"`
	CreatedAtMs      int64  `gorm:"column:created_at_ms;not null"`
	LastPlayedMs     int64  `gorm:"column:last_played_ms;not null;index"`
	Score            int    `gorm:"not null;default:0"`
	ExplorationDepth int    `gorm:"not null;default:0"`

	Areas  []areaRecord  `gorm:"foreignKey:SessionID;references:ID;constraint:OnDelete:CASCADE"`
	Player *playerRecord `gorm:"foreignKey:SessionID;references:ID;constraint:OnDelete:CASCADE"`
}

func (sessionRecord) TableName() string { return "sessions" }

type areaRecord struct {
	SessionID string         `gorm:"primaryKey;size:64"`
	AreaID    string         `gorm:"primaryKey;size:64"`
	Data      datatypes.JSON `gorm:"not null"`
}

func (areaRecord) TableName() string { return "areas" }

type playerRecord struct {
	SessionID   string         `gorm:"primaryKey;size:64"`
	Data        datatypes.JSON `gorm:"not null"`
	UpdatedAtMs int64          `gorm:"column:updated_at_ms;not null"`
}

func (playerRecord) TableName() string { return "player_state" }

func toSessionRecord(s *world.Session) sessionRecord {
	return sessionRecord{
		ID:               s.ID,
		Theme:            string(s.Theme),
		Difficulty:       string(s.Difficulty),
		CreatedAtMs:      s.CreatedAt.UnixMilli(),
		LastPlayedMs:     s.LastPlayed.UnixMilli(),
		Score:            s.Score,
		ExplorationDepth: s.ExplorationDepth,
	}
}

func (r sessionRecord) toSession() *world.Session {
	return &world.Session{
		ID:               r.ID,
		Theme:            world.Theme(r.Theme),
		Difficulty:       world.Difficulty(r.Difficulty),
		CreatedAt:        time.UnixMilli(r.CreatedAtMs).UTC(),
		LastPlayed:       time.UnixMilli(r.LastPlayedMs).UTC(),
		Score:            r.Score,
		ExplorationDepth: r.ExplorationDepth,
	}
}

// GormStore реляционное хранилище игр (SQLite или PostgreSQL) на GORM.
// Зоны и состояние игрока хранятся как JSON-документы.
type GormStore struct {
	db      *gorm.DB
	mutex   sync.RWMutex
	isReady bool
}

// gormConfig общие настройки GORM. Кеш подготовленных запросов
// выключается для SQLite, где пул ограничен одним соединением.
func gormConfig(prepare bool) *gorm.Config {
	return &gorm.Config{
		PrepareStmt:            prepare,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	}
}

// NewSQLiteStore открывает хранилище в файле SQLite. Пустой путь
// открывает базу в памяти.
func NewSQLiteStore(path string) (*GormStore, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(false))
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть SQLite: %w", err)
	}

	// SQLite не допускает параллельных писателей, а база в памяти живёт
	// ровно одно соединение
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("не удалось включить внешние ключи: %w", err)
	}
	return newGormStore(db)
}

// NewPostgresStore подключается к PostgreSQL по DSN
func NewPostgresStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), gormConfig(true))
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к PostgreSQL: %w", err)
	}
	return newGormStore(db)
}

func newGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&sessionRecord{}, &areaRecord{}, &playerRecord{}); err != nil {
		if sqlDB, derr := db.DB(); derr == nil {
			sqlDB.Close()
		}
		return nil, fmt.Errorf("ошибка миграции схемы: %w", err)
	}
	return &GormStore{db: db, isReady: true}, nil
}

// Close закрывает соединение с базой
func (gs *GormStore) Close() error {
	gs.mutex.Lock()
	defer gs.mutex.Unlock()

	if !gs.isReady {
		return nil
	}
	gs.isReady = false

	sqlDB, err := gs.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// acquire берёт блокировку чтения и проверяет, что хранилище открыто
func (gs *GormStore) acquire() (func(), error) {
	gs.mutex.RLock()
	if !gs.isReady {
		gs.mutex.RUnlock()
		return nil, ErrNotInitialized
	}
	return gs.mutex.RUnlock, nil
}

func (gs *GormStore) CreateSession(ctx context.Context, theme world.Theme, difficulty world.Difficulty) (*world.Session, error) {
	s, err := newSession(theme, difficulty)
	if err != nil {
		return nil, err
	}
	release, err := gs.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	rec := toSessionRecord(s)
	if err := gs.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("ошибка создания сессии: %w", err)
	}
	return s, nil
}

func (gs *GormStore) LoadSession(ctx context.Context, id string) (*world.Session, bool, error) {
	release, err := gs.acquire()
	if err != nil {
		return nil, false, err
	}
	defer release()

	var rec sessionRecord
	err = gs.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка загрузки сессии %s: %w", id, err)
	}
	return rec.toSession(), true, nil
}

func (gs *GormStore) SaveSession(ctx context.Context, s *world.Session) error {
	release, err := gs.acquire()
	if err != nil {
		return err
	}
	defer release()

	rec := toSessionRecord(s)
	return gs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireSessionRecord(tx, s.ID); err != nil {
			return err
		}
		return tx.Model(&sessionRecord{}).Where("id = ?", s.ID).Updates(map[string]interface{}{
			"theme":             rec.Theme,
			"difficulty":        rec.Difficulty,
			"created_at_ms":     rec.CreatedAtMs,
			"last_played_ms":    rec.LastPlayedMs,
			"score":             rec.Score,
			"exploration_depth": rec.ExplorationDepth,
		}).Error
	})
}

func (gs *GormStore) ListSessions(ctx context.Context) ([]*world.Session, error) {
	release, err := gs.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	var recs []sessionRecord
	err = gs.db.WithContext(ctx).Order("last_played_ms DESC").Order("id ASC").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения списка сессий: %w", err)
	}
	out := make([]*world.Session, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toSession())
	}
	return out, nil
}

// DeleteSession удаляет дочерние записи явно, не полагаясь на то,
// включены ли внешние ключи в конкретном соединении
func (gs *GormStore) DeleteSession(ctx context.Context, id string) error {
	release, err := gs.acquire()
	if err != nil {
		return err
	}
	defer release()

	return gs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&areaRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", id).Delete(&playerRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&sessionRecord{}).Error
	})
}

func (gs *GormStore) SaveArea(ctx context.Context, sessionID string, a *world.Area) error {
	data, err := encodeArea(a)
	if err != nil {
		return err
	}
	release, err := gs.acquire()
	if err != nil {
		return err
	}
	defer release()

	rec := areaRecord{SessionID: sessionID, AreaID: a.ID, Data: datatypes.JSON(data)}
	return gs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireSessionRecord(tx, sessionID); err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
	})
}

// SaveGeneration пишет зоны и сессию в одной транзакции
func (gs *GormStore) SaveGeneration(ctx context.Context, s *world.Session, areas ...*world.Area) error {
	recs := make([]areaRecord, 0, len(areas))
	for _, a := range areas {
		data, err := encodeArea(a)
		if err != nil {
			return err
		}
		recs = append(recs, areaRecord{SessionID: s.ID, AreaID: a.ID, Data: datatypes.JSON(data)})
	}
	release, err := gs.acquire()
	if err != nil {
		return err
	}
	defer release()

	rec := toSessionRecord(s)
	return gs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireSessionRecord(tx, s.ID); err != nil {
			return err
		}
		for i := range recs {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&recs[i]).Error; err != nil {
				return err
			}
		}
		return tx.Model(&sessionRecord{}).Where("id = ?", s.ID).Updates(map[string]interface{}{
			"theme":             rec.Theme,
			"difficulty":        rec.Difficulty,
			"created_at_ms":     rec.CreatedAtMs,
			"last_played_ms":    rec.LastPlayedMs,
			"score":             rec.Score,
			"exploration_depth": rec.ExplorationDepth,
		}).Error
	})
}

func (gs *GormStore) GetArea(ctx context.Context, sessionID, areaID string) (*world.Area, bool, error) {
	release, err := gs.acquire()
	if err != nil {
		return nil, false, err
	}
	defer release()

	var rec areaRecord
	err = gs.db.WithContext(ctx).
		Where("session_id = ? AND area_id = ?", sessionID, areaID).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка загрузки зоны %s: %w", areaID, err)
	}
	a, err := decodeArea(rec.Data)
	if err != nil {
		return nil, false, err
	}
	return a, true, nil
}

func (gs *GormStore) GetAreasForSession(ctx context.Context, sessionID string) ([]*world.Area, error) {
	release, err := gs.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	var recs []areaRecord
	err = gs.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("area_id ASC").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения зон сессии %s: %w", sessionID, err)
	}
	out := make([]*world.Area, 0, len(recs))
	for _, r := range recs {
		a, err := decodeArea(r.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	// порядок сортировки строк зависит от collation базы
	sortAreas(out)
	return out, nil
}

func (gs *GormStore) SavePlayerState(ctx context.Context, sessionID string, ps *world.PlayerState) error {
	data, err := encodePlayer(ps)
	if err != nil {
		return err
	}
	release, err := gs.acquire()
	if err != nil {
		return err
	}
	defer release()

	rec := playerRecord{SessionID: sessionID, Data: datatypes.JSON(data), UpdatedAtMs: world.Now().UnixMilli()}
	return gs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireSessionRecord(tx, sessionID); err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
	})
}

func (gs *GormStore) LoadPlayerState(ctx context.Context, sessionID string) (*world.PlayerState, bool, error) {
	release, err := gs.acquire()
	if err != nil {
		return nil, false, err
	}
	defer release()

	var rec playerRecord
	err = gs.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка загрузки состояния игрока: %w", err)
	}
	ps, err := decodePlayer(rec.Data)
	if err != nil {
		return nil, false, err
	}
	return ps, true, nil
}

func requireSessionRecord(tx *gorm.DB, id string) error {
	var count int64
	if err := tx.Model(&sessionRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrSessionNotFound
	}
	return nil
}
