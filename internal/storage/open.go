package storage

import (
	"fmt"
	"strings"

	"github.com/annel0/descent/internal/logging"
)

// Поддерживаемые бэкенды
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMariaDB  = "mariadb"
	BackendMongo    = "mongo"
)

// Config выбор и настройки хранилища игр
type Config struct {
	Backend string `yaml:"backend" env:"STORAGE_BACKEND"`
	// Path каталог BadgerDB или файл SQLite
	Path string `yaml:"path" env:"STORAGE_PATH"`
	// DSN строка подключения PostgreSQL или MariaDB
	DSN   string      `yaml:"dsn" env:"STORAGE_DSN"`
	Mongo MongoConfig `yaml:"mongo" envPrefix:"MONGO_"`
	// Redis кеш чтения; включается непустым адресом
	Redis RedisConfig `yaml:"redis" envPrefix:"REDIS_"`
}

// Open создаёт хранилище по конфигурации. Если задан адрес Redis,
// хранилище оборачивается кешем; если metrics не nil, то метриками.
func Open(cfg Config, metrics *StoreMetrics) (GameStore, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = BackendMemory
	}

	var (
		store GameStore
		err   error
	)
	switch backend {
	case BackendMemory:
		store = NewMemoryStore()
	case BackendBadger:
		store, err = NewBadgerStore(cfg.Path)
	case BackendSQLite:
		store, err = NewSQLiteStore(cfg.Path)
	case BackendPostgres:
		store, err = NewPostgresStore(cfg.DSN)
	case BackendMariaDB:
		store, err = NewMariaStore(cfg.DSN)
	case BackendMongo:
		store, err = NewMongoStore(cfg.Mongo)
	default:
		return nil, fmt.Errorf("неизвестный бэкенд хранилища %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Addr != "" {
		cached, err := NewCachedStore(store, cfg.Redis)
		if err != nil {
			store.Close()
			return nil, err
		}
		store = cached
	}
	if metrics != nil {
		store = NewInstrumentedStore(store, backend, metrics)
	}

	logging.GetStorageLogger().Info("Хранилище игр открыто: %s (redis: %t)", backend, cfg.Redis.Addr != "")
	return store, nil
}
