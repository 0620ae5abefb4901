package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/descent/internal/api"
	"github.com/annel0/descent/internal/combat"
	"github.com/annel0/descent/internal/config"
	"github.com/annel0/descent/internal/eventbus"
	"github.com/annel0/descent/internal/game"
	"github.com/annel0/descent/internal/logging"
	"github.com/annel0/descent/internal/observability"
	"github.com/annel0/descent/internal/storage"
	"github.com/annel0/descent/internal/world"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (иначе GAME_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	if err := logging.InitDefaultLogger("server", cfg.Log); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	if err := run(cfg); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logging.Info("🎮 Запуск Descent (сервер %s)...", cfg.Server.ID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === ТЕЛЕМЕТРИЯ ===
	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Enabled)
	if err != nil {
		return fmt.Errorf("инициализация OpenTelemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logging.Warn("остановка OpenTelemetry: %v", err)
		}
	}()

	reg := prometheus.DefaultRegisterer

	// === ХРАНИЛИЩЕ ===
	store, err := storage.Open(cfg.Storage, storage.NewStoreMetrics(reg))
	if err != nil {
		return fmt.Errorf("открытие хранилища: %w", err)
	}
	defer store.Close()

	// === ШИНА СОБЫТИЙ ===
	bus, closeBus, err := openEventBus(cfg.EventBus)
	if err != nil {
		return err
	}
	defer closeBus()
	eventbus.Init(bus)

	if _, err := eventbus.StartLoggingListener(ctx, bus); err != nil {
		logging.Warn("логирование событий недоступно: %v", err)
	}
	busMetrics := eventbus.NewMetricsExporter(bus, reg)
	busMetrics.Start(5 * time.Second)
	defer busMetrics.Stop()

	webhooks := api.NewOutboundWebhookManager(cfg.Server.ID)
	defer webhooks.Close()
	for _, hook := range cfg.Webhooks {
		created := webhooks.AddWebhook(hook)
		logging.Info("🔗 Исходящий webhook %s → %s (%s)", created.Name, created.URL, strings.Join(created.Events, ","))
	}
	if err := webhooks.Attach(ctx, bus); err != nil {
		return err
	}

	// === МИР ===
	seed := cfg.World.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	generator := world.NewGenerator(seed, world.WithLootTable(combat.LootTable()))
	service := game.NewService(store, generator, bus, game.WithManagerOptions(
		world.WithTriggerDistance(cfg.World.TriggerDistance),
		world.WithHeadingThreshold(cfg.World.HeadingThreshold),
		world.WithGenerationTimeout(cfg.World.GenerationTimeout),
		world.WithMetrics(world.NewManagerMetrics(reg)),
	))
	logging.Info("🌍 Генератор мира: seed=%d, хранилище=%s, шина=%s", seed, cfg.Storage.Backend, cfg.EventBus.Backend)

	// === REST API ===
	var authenticator *api.Authenticator
	if cfg.Auth.JWTSecret != "" {
		authenticator, err = api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		if err != nil {
			return err
		}
		logging.Info("🔐 JWT авторизация API включена")
	} else {
		logging.Warn("🔓 JWT_SECRET не задан: API доступен без авторизации")
	}

	gin.SetMode(gin.ReleaseMode)
	server := api.NewRestServer(api.Config{
		Port:     cfg.Server.GetRESTPort(),
		Service:  service,
		Bus:      bus,
		Auth:     authenticator,
		Webhooks: webhooks,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logging.Info("✅ Сервисы запущены")
	logging.Info("   🌐 REST API: http://localhost:%d/api/sessions", cfg.Server.GetRESTPort())
	logging.Info("   ❤️  Health check: http://localhost:%d/health", cfg.Server.GetRESTPort())

	select {
	case <-ctx.Done():
		logging.Info("📡 Получен сигнал завершения, остановка...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("REST API: %w", err)
		}
	}

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}

	// дожидаемся фоновой генерации, чтобы зоны успели сохраниться
	done := make(chan struct{})
	go func() {
		service.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logging.Warn("фоновая генерация не завершилась до таймаута")
	}

	logging.Info("👋 Сервер успешно остановлен")
	return nil
}

// openEventBus создаёт шину по конфигурации; close освобождает её
// вместе со встроенным NATS сервером.
func openEventBus(cfg config.EventBusConfig) (eventbus.EventBus, func(), error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		bus := eventbus.NewMemoryBus(cfg.Capacity)
		return bus, func() { bus.Close() }, nil
	case "nats":
		natsCfg := cfg.NATS
		var embedded *eventbus.EmbeddedServer
		if cfg.Embedded.Enabled {
			srv, err := eventbus.StartEmbeddedServer(cfg.Embedded.Host, cfg.Embedded.Port, cfg.Embedded.StoreDir)
			if err != nil {
				return nil, nil, fmt.Errorf("встроенный NATS: %w", err)
			}
			embedded = srv
			natsCfg.URL = srv.ClientURL()
			logging.Info("📨 Встроенный NATS сервер: %s", natsCfg.URL)
		}
		bus, err := eventbus.NewNATSBus(natsCfg)
		if err != nil {
			if embedded != nil {
				embedded.Shutdown()
			}
			return nil, nil, err
		}
		return bus, func() {
			bus.Close()
			if embedded != nil {
				embedded.Shutdown()
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("неизвестная шина событий %q", cfg.Backend)
}
