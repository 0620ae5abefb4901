package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/annel0/descent/internal/api"
	"github.com/annel0/descent/internal/eventbus"
	"github.com/annel0/descent/internal/logging"
	"github.com/annel0/descent/internal/storage"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации приложения.
// Порядок: значения по умолчанию, затем YAML файл, затем переменные окружения.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       logging.Config  `yaml:"log"`
	Storage   storage.Config  `yaml:"storage"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	World     WorldConfig     `yaml:"world"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	// Webhooks исходящие webhook'и, создаваемые при старте
	Webhooks []api.OutboundWebhook `yaml:"webhooks"`
}

type ServerConfig struct {
	ID              string        `yaml:"id" env:"GAME_SERVER_ID"`
	RESTPort        int           `yaml:"rest_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"GAME_SHUTDOWN_TIMEOUT"`
}

// EventBusConfig выбор шины событий. Backend "nats" требует URL либо
// встроенный сервер.
type EventBusConfig struct {
	Backend  string             `yaml:"backend" env:"EVENTBUS_BACKEND"`
	Capacity int                `yaml:"capacity" env:"EVENTBUS_CAPACITY"`
	NATS     eventbus.NATSConfig `yaml:"nats"`
	// Embedded запускает nats-server внутри процесса
	Embedded EmbeddedNATSConfig `yaml:"embedded"`
}

type EmbeddedNATSConfig struct {
	Enabled  bool   `yaml:"enabled" env:"NATS_EMBEDDED"`
	Host     string `yaml:"host" env:"NATS_EMBEDDED_HOST"`
	Port     int    `yaml:"port" env:"NATS_EMBEDDED_PORT"`
	StoreDir string `yaml:"store_dir" env:"NATS_EMBEDDED_STORE_DIR"`
}

// WorldConfig параметры генерации и менеджера мира
type WorldConfig struct {
	Seed              int64         `yaml:"seed" env:"WORLD_SEED"`
	TriggerDistance   float64       `yaml:"trigger_distance" env:"WORLD_TRIGGER_DISTANCE"`
	HeadingThreshold  float64       `yaml:"heading_threshold" env:"WORLD_HEADING_THRESHOLD"`
	GenerationTimeout time.Duration `yaml:"generation_timeout" env:"WORLD_GENERATION_TIMEOUT"`
}

// AuthConfig настройки JWT. Пустой секрет отключает авторизацию API.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"JWT_ISSUER"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"OTEL_ENABLED"`
	ServiceName string `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ID:              "descent-01",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: logging.Config{
			Level: "info",
		},
		Storage: storage.Config{
			Backend: storage.BackendBadger,
			Path:    "data",
		},
		EventBus: EventBusConfig{
			Backend:  "memory",
			Capacity: 1024,
			NATS: eventbus.NATSConfig{
				Stream:    "DESCENT_EVENTS",
				Retention: 24 * time.Hour,
			},
			Embedded: EmbeddedNATSConfig{
				Host: "127.0.0.1",
			},
		},
		World: WorldConfig{
			TriggerDistance:   15,
			HeadingThreshold:  0.5,
			GenerationTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			Issuer: "descent",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "descent",
		},
	}
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "GAME_REST_PORT", 8088)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	// Если порт задан в конфиге и больше 0, используем его
	if configPort > 0 {
		return configPort
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	// Используем дефолтное значение
	return defaultPort
}

// Load читает YAML файл конфигурации поверх значений по умолчанию и
// применяет переменные окружения. Если path == "", путь берётся из
// GAME_CONFIG; без файла используются только дефолты и окружение.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("GAME_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения конфигурации %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("ошибка разбора конфигурации %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("ошибка чтения переменных окружения: %w", err)
	}
	return cfg, nil
}
