package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel определяет уровни логирования
type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel разбирает уровень из строки; неизвестное значение даёт INFO
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return TRACE
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case TRACE:
		return zerolog.TraceLevel
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Config настройки логирования
type Config struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
	// Dir каталог для файла логов; пусто: без файла
	Dir string `yaml:"dir" env:"LOG_DIR"`
	// JSON писать в консоль JSON вместо человекочитаемого формата
	JSON    bool `yaml:"json" env:"LOG_JSON"`
	NoColor bool `yaml:"no_color" env:"LOG_NO_COLOR"`
}

var (
	baseMu   sync.RWMutex
	base     = zerolog.Nop() // до инициализации логи никуда не пишутся
	baseFile *os.File
)

// InitDefaultLogger инициализирует глобальный логгер для сервиса
func InitDefaultLogger(service string, cfg Config) error {
	var writers []io.Writer

	if cfg.JSON {
		writers = append(writers, os.Stdout)
	} else {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
			NoColor:    cfg.NoColor,
		})
	}

	var file *os.File
	if cfg.Dir != "" {
		// Создаем директорию для логов
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return fmt.Errorf("ошибка создания директории %s: %w", cfg.Dir, err)
		}

		// Создаем файл для логов с временной меткой
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		filename := filepath.Join(cfg.Dir, fmt.Sprintf("%s_%s.log", service, timestamp))

		f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("ошибка создания файла логов: %w", err)
		}
		file = f
		writers = append(writers, f)
	}

	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(cfg.Level).zerolog()).
		With().Timestamp().Str("service", service).Logger()

	SetBase(logger)

	baseMu.Lock()
	baseFile = file
	baseMu.Unlock()
	return nil
}

// SetBase подменяет глобальный zerolog-логгер (используется в тестах)
func SetBase(l zerolog.Logger) {
	baseMu.Lock()
	defer baseMu.Unlock()
	base = l
}

// CloseDefaultLogger закрывает файл логов, если он был открыт
func CloseDefaultLogger() {
	baseMu.Lock()
	defer baseMu.Unlock()
	if baseFile != nil {
		_ = baseFile.Close()
		baseFile = nil
	}
	base = zerolog.Nop()
}

func current() zerolog.Logger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return base
}

// Logger логгер компонента. Базовый логгер берётся в момент вызова,
// поэтому компонентные логгеры можно получать до InitDefaultLogger.
type Logger struct {
	component string

	mu       sync.RWMutex
	minLevel *LogLevel
}

func (l *Logger) zl() zerolog.Logger {
	zl := current().With().Str("component", l.component).Logger()
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.minLevel != nil {
		zl = zl.Level(l.minLevel.zerolog())
	}
	return zl
}

// SetLevel задаёт минимальный уровень только для этого компонента
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = &level
}

// Component возвращает имя компонента
func (l *Logger) Component() string {
	return l.component
}

// Trace логирует сообщение уровня TRACE
func (l *Logger) Trace(format string, args ...interface{}) {
	zl := l.zl()
	zl.Trace().Msgf(format, args...)
}

// Debug логирует сообщение уровня DEBUG
func (l *Logger) Debug(format string, args ...interface{}) {
	zl := l.zl()
	zl.Debug().Msgf(format, args...)
}

// Info логирует сообщение уровня INFO
func (l *Logger) Info(format string, args ...interface{}) {
	zl := l.zl()
	zl.Info().Msgf(format, args...)
}

// Warn логирует сообщение уровня WARN
func (l *Logger) Warn(format string, args ...interface{}) {
	zl := l.zl()
	zl.Warn().Msgf(format, args...)
}

// Error логирует сообщение уровня ERROR
func (l *Logger) Error(format string, args ...interface{}) {
	zl := l.zl()
	zl.Error().Msgf(format, args...)
}

// Err логирует ошибку со структурированным полем error
func (l *Logger) Err(err error, format string, args ...interface{}) {
	zl := l.zl()
	zl.Error().Err(err).Msgf(format, args...)
}

// Trace логирует сообщение уровня TRACE в глобальный логгер
func Trace(format string, args ...interface{}) {
	zl := current()
	zl.Trace().Msgf(format, args...)
}

// Debug логирует сообщение уровня DEBUG в глобальный логгер
func Debug(format string, args ...interface{}) {
	zl := current()
	zl.Debug().Msgf(format, args...)
}

// Info логирует сообщение уровня INFO в глобальный логгер
func Info(format string, args ...interface{}) {
	zl := current()
	zl.Info().Msgf(format, args...)
}

// Warn логирует сообщение уровня WARN в глобальный логгер
func Warn(format string, args ...interface{}) {
	zl := current()
	zl.Warn().Msgf(format, args...)
}

// Error логирует сообщение уровня ERROR в глобальный логгер
func Error(format string, args ...interface{}) {
	zl := current()
	zl.Error().Msgf(format, args...)
}
