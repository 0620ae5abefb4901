package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/descent/internal/world"
	"github.com/go-sql-driver/mysql"
)

// Код ошибки MySQL/MariaDB: нарушение внешнего ключа при вставке
const mysqlErrNoReferencedRow = 1452

// MariaStore реализует GameStore для базы данных MariaDB/MySQL.
// Каскадное удаление обеспечивают внешние ключи InnoDB.
type MariaStore struct {
	db      *sql.DB
	mutex   sync.RWMutex
	isReady bool
}

// NewMariaStore создает хранилище игр для MariaDB.
// Автоматически создает таблицы, если они не существуют.
//
// Параметры:
//
//	dsn - строка подключения к базе данных (user:pass@tcp(host:port)/dbname)
func NewMariaStore(dsn string) (*MariaStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	// Проверяем соединение
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	store := &MariaStore{db: db, isReady: true}

	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицы: %w", err)
	}

	return store, nil
}

// createTables создает таблицы sessions, areas и player_state
func (r *MariaStore) createTables() error {
	queries := []string{`
		CREATE TABLE IF NOT EXISTS sessions (
			id                VARCHAR(64) PRIMARY KEY,
			theme             VARCHAR(32) NOT NULL,
			difficulty        VARCHAR(16) NOT NULL,
			created_at_ms     BIGINT      NOT NULL,
			last_played_ms    BIGINT      NOT NULL,
			score             INT         NOT NULL DEFAULT 0,
			exploration_depth INT         NOT NULL DEFAULT 0,
			INDEX idx_last_played (last_played_ms)
		) ENGINE=InnoDB
	`, `
		CREATE TABLE IF NOT EXISTS areas (
			session_id VARCHAR(64) NOT NULL,
			area_id    VARCHAR(64) NOT NULL,
			data       LONGTEXT    NOT NULL,
			PRIMARY KEY (session_id, area_id),
			CONSTRAINT fk_areas_session FOREIGN KEY (session_id)
				REFERENCES sessions(id) ON DELETE CASCADE
		) ENGINE=InnoDB
	`, `
		CREATE TABLE IF NOT EXISTS player_state (
			session_id    VARCHAR(64) PRIMARY KEY,
			data          LONGTEXT    NOT NULL,
			updated_at_ms BIGINT      NOT NULL,
			CONSTRAINT fk_player_session FOREIGN KEY (session_id)
				REFERENCES sessions(id) ON DELETE CASCADE
		) ENGINE=InnoDB
	`}

	for _, q := range queries {
		if _, err := r.db.Exec(q); err != nil {
			return fmt.Errorf("ошибка создания таблицы: %w", err)
		}
	}
	return nil
}

func (r *MariaStore) acquire() (func(), error) {
	r.mutex.RLock()
	if !r.isReady {
		r.mutex.RUnlock()
		return nil, ErrNotInitialized
	}
	return r.mutex.RUnlock, nil
}

// Close закрывает соединение с базой данных.
func (r *MariaStore) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if !r.isReady {
		return nil
	}
	r.isReady = false
	return r.db.Close()
}

func (r *MariaStore) CreateSession(ctx context.Context, theme world.Theme, difficulty world.Difficulty) (*world.Session, error) {
	s, err := newSession(theme, difficulty)
	if err != nil {
		return nil, err
	}
	release, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	query := `
		INSERT INTO sessions (id, theme, difficulty, created_at_ms, last_played_ms, score, exploration_depth)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query, s.ID, string(s.Theme), string(s.Difficulty),
		s.CreatedAt.UnixMilli(), s.LastPlayed.UnixMilli(), s.Score, s.ExplorationDepth)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания сессии: %w", err)
	}
	return s, nil
}

const selectSession = `
	SELECT id, theme, difficulty, created_at_ms, last_played_ms, score, exploration_depth
	FROM sessions
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*world.Session, error) {
	var (
		s                   world.Session
		theme, difficulty   string
		createdMs, playedMs int64
	)
	if err := row.Scan(&s.ID, &theme, &difficulty, &createdMs, &playedMs, &s.Score, &s.ExplorationDepth); err != nil {
		return nil, err
	}
	s.Theme = world.Theme(theme)
	s.Difficulty = world.Difficulty(difficulty)
	s.CreatedAt = time.UnixMilli(createdMs).UTC()
	s.LastPlayed = time.UnixMilli(playedMs).UTC()
	return &s, nil
}

func (r *MariaStore) LoadSession(ctx context.Context, id string) (*world.Session, bool, error) {
	release, err := r.acquire()
	if err != nil {
		return nil, false, err
	}
	defer release()

	s, err := scanSession(r.db.QueryRowContext(ctx, selectSession+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка загрузки сессии %s: %w", id, err)
	}
	return s, true, nil
}

// SaveSession проверяет существование сессии отдельным запросом:
// MySQL не считает строку затронутой, если значения не изменились
func (r *MariaStore) SaveSession(ctx context.Context, s *world.Session) error {
	release, err := r.acquire()
	if err != nil {
		return err
	}
	defer release()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback() // Откат в случае ошибки

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ? FOR UPDATE`, s.ID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("ошибка проверки сессии %s: %w", s.ID, err)
	}

	query := `
		UPDATE sessions
		SET theme = ?, difficulty = ?, created_at_ms = ?, last_played_ms = ?,
			score = ?, exploration_depth = ?
		WHERE id = ?
	`
	_, err = tx.ExecContext(ctx, query, string(s.Theme), string(s.Difficulty),
		s.CreatedAt.UnixMilli(), s.LastPlayed.UnixMilli(), s.Score, s.ExplorationDepth, s.ID)
	if err != nil {
		return fmt.Errorf("ошибка сохранения сессии %s: %w", s.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

func (r *MariaStore) ListSessions(ctx context.Context) ([]*world.Session, error) {
	release, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := r.db.QueryContext(ctx, selectSession+` ORDER BY last_played_ms DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения списка сессий: %w", err)
	}
	defer rows.Close()

	out := make([]*world.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения сессии: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteSession удаляет сессию; зоны и состояние игрока удаляет каскад InnoDB
func (r *MariaStore) DeleteSession(ctx context.Context, id string) error {
	release, err := r.acquire()
	if err != nil {
		return err
	}
	defer release()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("ошибка удаления сессии %s: %w", id, err)
	}
	return nil
}

func (r *MariaStore) SaveArea(ctx context.Context, sessionID string, a *world.Area) error {
	data, err := encodeArea(a)
	if err != nil {
		return err
	}
	release, err := r.acquire()
	if err != nil {
		return err
	}
	defer release()

	query := `
		INSERT INTO areas (session_id, area_id, data)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE data = VALUES(data)
	`
	_, err = r.db.ExecContext(ctx, query, sessionID, a.ID, string(data))
	if isMissingParent(err) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("ошибка сохранения зоны %s: %w", a.ID, err)
	}
	return nil
}

// SaveGeneration пишет зоны и сессию в одной транзакции InnoDB
func (r *MariaStore) SaveGeneration(ctx context.Context, s *world.Session, areas ...*world.Area) error {
	encoded := make([]string, len(areas))
	for i, a := range areas {
		data, err := encodeArea(a)
		if err != nil {
			return err
		}
		encoded[i] = string(data)
	}
	release, err := r.acquire()
	if err != nil {
		return err
	}
	defer release()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ? FOR UPDATE`, s.ID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("ошибка проверки сессии %s: %w", s.ID, err)
	}

	for i, a := range areas {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO areas (session_id, area_id, data)
			VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE data = VALUES(data)
		`, s.ID, a.ID, encoded[i])
		if err != nil {
			return fmt.Errorf("ошибка сохранения зоны %s: %w", a.ID, err)
		}
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE sessions
		SET theme = ?, difficulty = ?, created_at_ms = ?, last_played_ms = ?,
			score = ?, exploration_depth = ?
		WHERE id = ?
	`, string(s.Theme), string(s.Difficulty),
		s.CreatedAt.UnixMilli(), s.LastPlayed.UnixMilli(), s.Score, s.ExplorationDepth, s.ID)
	if err != nil {
		return fmt.Errorf("ошибка сохранения сессии %s: %w", s.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

func (r *MariaStore) GetArea(ctx context.Context, sessionID, areaID string) (*world.Area, bool, error) {
	release, err := r.acquire()
	if err != nil {
		return nil, false, err
	}
	defer release()

	var data string
	err = r.db.QueryRowContext(ctx,
		`SELECT data FROM areas WHERE session_id = ? AND area_id = ?`, sessionID, areaID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка загрузки зоны %s: %w", areaID, err)
	}
	a, err := decodeArea([]byte(data))
	if err != nil {
		return nil, false, err
	}
	return a, true, nil
}

func (r *MariaStore) GetAreasForSession(ctx context.Context, sessionID string) ([]*world.Area, error) {
	release, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := r.db.QueryContext(ctx, `SELECT data FROM areas WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения зон сессии %s: %w", sessionID, err)
	}
	defer rows.Close()

	out := make([]*world.Area, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		a, err := decodeArea([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortAreas(out)
	return out, nil
}

func (r *MariaStore) SavePlayerState(ctx context.Context, sessionID string, ps *world.PlayerState) error {
	data, err := encodePlayer(ps)
	if err != nil {
		return err
	}
	release, err := r.acquire()
	if err != nil {
		return err
	}
	defer release()

	query := `
		INSERT INTO player_state (session_id, data, updated_at_ms)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			data = VALUES(data),
			updated_at_ms = VALUES(updated_at_ms)
	`
	_, err = r.db.ExecContext(ctx, query, sessionID, string(data), world.Now().UnixMilli())
	if isMissingParent(err) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("ошибка сохранения состояния игрока: %w", err)
	}
	return nil
}

func (r *MariaStore) LoadPlayerState(ctx context.Context, sessionID string) (*world.PlayerState, bool, error) {
	release, err := r.acquire()
	if err != nil {
		return nil, false, err
	}
	defer release()

	var data string
	err = r.db.QueryRowContext(ctx, `SELECT data FROM player_state WHERE session_id = ?`, sessionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		// Состояние ещё не сохранялось
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка загрузки состояния игрока: %w", err)
	}
	ps, err := decodePlayer([]byte(data))
	if err != nil {
		return nil, false, err
	}
	return ps, true, nil
}

func isMissingParent(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrNoReferencedRow
}
