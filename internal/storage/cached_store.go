package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/annel0/descent/internal/logging"
	"github.com/annel0/descent/internal/world"
	"github.com/go-redis/redis/v8"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string        `yaml:"addr" env:"ADDR"`             // Адрес Redis сервера; пусто - кеш выключен
	Password  string        `yaml:"password" env:"PASSWORD"`     // Пароль (пустой если не требуется)
	DB        int           `yaml:"db" env:"DB"`                 // Номер базы данных
	KeyPrefix string        `yaml:"key_prefix" env:"KEY_PREFIX"` // Префикс для ключей
	TTL       time.Duration `yaml:"ttl" env:"TTL"`               // Время жизни записей
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "descent:",
		TTL:       10 * time.Minute,
	}
}

// tombstoneTTL должен перекрывать самое долгое чтение из основного хранилища
const tombstoneTTL = 30 * time.Second

// fillScript кладёт значение, только если сессия не помечена удалённой
var fillScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// CacheStats статистика попаданий в кеш
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Errors int64 `json:"errors"`
}

// CachedStore кеширует чтения сессий, зон и состояния игрока в Redis.
// Запись идёт в основное хранилище, после чего ключ в Redis удаляется.
// Недоступность Redis не ломает чтение: запрос уходит в основное хранилище.
type CachedStore struct {
	inner  GameStore
	client *redis.Client
	prefix string
	ttl    time.Duration
	closed atomic.Bool

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// NewCachedStore подключается к Redis и оборачивает inner
func NewCachedStore(inner GameStore, cfg RedisConfig) (*CachedStore, error) {
	def := DefaultRedisConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	// Проверяем соединение
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetStorageLogger().Info("Redis cache initialized: %s (ttl %s)", cfg.Addr, cfg.TTL)
	return &CachedStore{
		inner:  inner,
		client: client,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.TTL,
	}, nil
}

func (c *CachedStore) sessionKey(id string) string { return c.prefix + "session:" + id }

func (c *CachedStore) areaKey(sid, aid string) string { return c.prefix + "area:" + sid + ":" + aid }

func (c *CachedStore) playerKey(sid string) string { return c.prefix + "player:" + sid }

func (c *CachedStore) tombstoneKey(sid string) string { return c.prefix + "tomb:session:" + sid }

// Stats возвращает счётчики кеша
func (c *CachedStore) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Errors: c.errors.Load(),
	}
}

// lookup читает ключ из Redis; false означает промах или ошибку Redis
func (c *CachedStore) lookup(ctx context.Context, key string, v interface{}) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		return false
	}
	if err != nil {
		c.errors.Add(1)
		logging.GetStorageLogger().Warn("Redis Get error for key %s: %v", key, err)
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.errors.Add(1)
		c.client.Del(ctx, key)
		return false
	}
	c.hits.Add(1)
	return true
}

// fill кеширует значение, прочитанное из основного хранилища. Чтение могло
// начаться до DeleteSession, поэтому запись отбрасывается при надгробии сессии.
func (c *CachedStore) fill(ctx context.Context, sessionID, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	keys := []string{key, c.tombstoneKey(sessionID)}
	if err := fillScript.Run(ctx, c.client, keys, data, c.ttl.Milliseconds()).Err(); err != nil {
		c.errors.Add(1)
		logging.GetStorageLogger().Warn("Redis Set error for key %s: %v", key, err)
	}
}

func (c *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.errors.Add(1)
		logging.GetStorageLogger().Warn("Redis Del error for keys %v: %v", keys, err)
	}
}

func (c *CachedStore) CreateSession(ctx context.Context, theme world.Theme, difficulty world.Difficulty) (*world.Session, error) {
	if c.closed.Load() {
		return nil, ErrNotInitialized
	}
	return c.inner.CreateSession(ctx, theme, difficulty)
}

func (c *CachedStore) LoadSession(ctx context.Context, id string) (*world.Session, bool, error) {
	if c.closed.Load() {
		return nil, false, ErrNotInitialized
	}
	key := c.sessionKey(id)
	var s world.Session
	if c.lookup(ctx, key, &s) {
		return &s, true, nil
	}
	loaded, found, err := c.inner.LoadSession(ctx, id)
	if err != nil || !found {
		return loaded, found, err
	}
	c.fill(ctx, id, key, loaded)
	return loaded, true, nil
}

func (c *CachedStore) SaveSession(ctx context.Context, s *world.Session) error {
	if c.closed.Load() {
		return ErrNotInitialized
	}
	if err := c.inner.SaveSession(ctx, s); err != nil {
		return err
	}
	c.invalidate(ctx, c.sessionKey(s.ID))
	return nil
}

func (c *CachedStore) ListSessions(ctx context.Context) ([]*world.Session, error) {
	if c.closed.Load() {
		return nil, ErrNotInitialized
	}
	return c.inner.ListSessions(ctx)
}

func (c *CachedStore) DeleteSession(ctx context.Context, id string) error {
	if c.closed.Load() {
		return ErrNotInitialized
	}
	if err := c.inner.DeleteSession(ctx, id); err != nil {
		return err
	}

	// надгробие ставится до очистки: заполнение, начатое раньше, будет
	// стёрто ниже, а начатое позже отбросит fillScript
	if err := c.client.Set(ctx, c.tombstoneKey(id), 1, tombstoneTTL).Err(); err != nil {
		c.errors.Add(1)
		logging.GetStorageLogger().Warn("Redis Set error for tombstone %s: %v", id, err)
	}

	keys := []string{c.sessionKey(id), c.playerKey(id)}
	iter := c.client.Scan(ctx, 0, c.areaKey(id, "*"), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.errors.Add(1)
		logging.GetStorageLogger().Warn("Redis Scan error for session %s: %v", id, err)
	}
	c.invalidate(ctx, keys...)
	return nil
}

func (c *CachedStore) SaveArea(ctx context.Context, sessionID string, a *world.Area) error {
	if c.closed.Load() {
		return ErrNotInitialized
	}
	if err := c.inner.SaveArea(ctx, sessionID, a); err != nil {
		return err
	}
	c.invalidate(ctx, c.areaKey(sessionID, a.ID))
	return nil
}

func (c *CachedStore) SaveGeneration(ctx context.Context, s *world.Session, areas ...*world.Area) error {
	if c.closed.Load() {
		return ErrNotInitialized
	}
	if err := c.inner.SaveGeneration(ctx, s, areas...); err != nil {
		return err
	}
	keys := []string{c.sessionKey(s.ID)}
	for _, a := range areas {
		keys = append(keys, c.areaKey(s.ID, a.ID))
	}
	c.invalidate(ctx, keys...)
	return nil
}

func (c *CachedStore) GetArea(ctx context.Context, sessionID, areaID string) (*world.Area, bool, error) {
	if c.closed.Load() {
		return nil, false, ErrNotInitialized
	}
	key := c.areaKey(sessionID, areaID)
	var a world.Area
	if c.lookup(ctx, key, &a) {
		return &a, true, nil
	}
	loaded, found, err := c.inner.GetArea(ctx, sessionID, areaID)
	if err != nil || !found {
		return loaded, found, err
	}
	c.fill(ctx, sessionID, key, loaded)
	return loaded, true, nil
}

func (c *CachedStore) GetAreasForSession(ctx context.Context, sessionID string) ([]*world.Area, error) {
	if c.closed.Load() {
		return nil, ErrNotInitialized
	}
	return c.inner.GetAreasForSession(ctx, sessionID)
}

func (c *CachedStore) SavePlayerState(ctx context.Context, sessionID string, ps *world.PlayerState) error {
	if c.closed.Load() {
		return ErrNotInitialized
	}
	if err := c.inner.SavePlayerState(ctx, sessionID, ps); err != nil {
		return err
	}
	c.invalidate(ctx, c.playerKey(sessionID))
	return nil
}

func (c *CachedStore) LoadPlayerState(ctx context.Context, sessionID string) (*world.PlayerState, bool, error) {
	if c.closed.Load() {
		return nil, false, ErrNotInitialized
	}
	key := c.playerKey(sessionID)
	var ps world.PlayerState
	if c.lookup(ctx, key, &ps) {
		return &ps, true, nil
	}
	loaded, found, err := c.inner.LoadPlayerState(ctx, sessionID)
	if err != nil || !found {
		return loaded, found, err
	}
	c.fill(ctx, sessionID, key, loaded)
	return loaded, true, nil
}

// Close закрывает соединение с Redis и основное хранилище
func (c *CachedStore) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	rerr := c.client.Close()
	if err := c.inner.Close(); err != nil {
		return err
	}
	return rerr
}
