package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/annel0/descent/internal/eventbus"
	"github.com/annel0/descent/internal/game"
	"github.com/annel0/descent/internal/logging"
	"github.com/annel0/descent/internal/middleware"
	"github.com/annel0/descent/internal/world"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// GameService операции сессий, которые обслуживает REST API
type GameService interface {
	StartGame(ctx context.Context, theme world.Theme, difficulty world.Difficulty) (*game.GameState, error)
	LoadGame(ctx context.Context, sessionID string) (*game.GameState, error)
	ListGames(ctx context.Context) ([]*world.Session, error)
	DeleteGame(ctx context.Context, sessionID string) error
	GenerateArea(ctx context.Context, sessionID, fromAreaID string, dir world.Direction, gctx *world.GenerationContext) (*world.GenerationResult, error)
	SyncState(ctx context.Context, sessionID string, in game.SyncInput) (*game.SyncResult, error)
	ActiveSessions() int
}

// RestServer представляет REST API сервер
type RestServer struct {
	router   *gin.Engine
	http     *http.Server
	service  GameService
	bus      eventbus.EventBus
	auth     *Authenticator
	webhooks *OutboundWebhookManager
	metrics  *ServerMetrics
	log      *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port    int         // порт для запуска сервера
	Service GameService // сервис сессий
	// Bus шина событий для статистики, может быть nil
	Bus eventbus.EventBus
	// Auth nil отключает авторизацию /api
	Auth *Authenticator
	// Webhooks nil отключает управление исходящими webhook'ами
	Webhooks *OutboundWebhookManager
	// Registerer и Gatherer для HTTP-метрик и /metrics; nil: дефолтный регистр
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == 0 {
		config.Port = 8088
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware("descent_api"))
	router.Use(middleware.NewRequestLogger().Handler())

	promMw := middleware.NewPrometheusMiddleware("descent_api", config.Registerer)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, config.Gatherer)

	rs := &RestServer{
		router:   router,
		service:  config.Service,
		bus:      config.Bus,
		auth:     config.Auth,
		webhooks: config.Webhooks,
		metrics:  NewServerMetrics(),
		log:      logging.GetAPILogger(),
	}
	rs.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	rs.setupRoutes()
	return rs
}

// Handler http.Handler сервера (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	// Middleware для CORS
	rs.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	if rs.auth != nil {
		api.Use(rs.jwtMiddleware())
	}
	{
		api.GET("/stats", rs.handleStats)

		sessions := api.Group("/sessions")
		sessions.POST("", rs.handleStartGame)
		sessions.GET("", rs.handleListGames)
		sessions.GET("/:id", rs.handleLoadGame)
		sessions.DELETE("/:id", rs.handleDeleteGame)
		sessions.POST("/:id/areas", rs.handleGenerateArea)
		sessions.POST("/:id/sync", rs.handleSyncState)

		if rs.webhooks != nil {
			hooks := api.Group("/webhooks")
			hooks.GET("", rs.handleGetOutboundWebhooks)
			hooks.POST("", rs.handleCreateOutboundWebhook)
			hooks.GET("/:id", rs.handleGetOutboundWebhook)
			hooks.DELETE("/:id", rs.handleDeleteOutboundWebhook)
		}
	}
}

// StartGameRequest запрос на создание сессии
type StartGameRequest struct {
	Theme      string `json:"theme" binding:"required"`
	Difficulty string `json:"difficulty" binding:"required"`
}

// GenerateAreaRequest запрос на генерацию зоны за выходом
type GenerateAreaRequest struct {
	FromAreaID string                   `json:"fromAreaId" binding:"required"`
	Direction  string                   `json:"direction" binding:"required"`
	Context    *world.GenerationContext `json:"context,omitempty"`
}

func (rs *RestServer) handleStartGame(c *gin.Context) {
	var req StartGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rs.badRequest(c, "Неверный формат запроса")
		return
	}
	theme, err := world.ParseTheme(req.Theme)
	if err != nil {
		rs.badRequest(c, err.Error())
		return
	}
	difficulty, err := world.ParseDifficulty(req.Difficulty)
	if err != nil {
		rs.badRequest(c, err.Error())
		return
	}

	state, err := rs.service.StartGame(c.Request.Context(), theme, difficulty)
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Сессия создана",
		Data:    state,
	})
}

func (rs *RestServer) handleListGames(c *gin.Context) {
	sessions, err := rs.service.ListGames(c.Request.Context())
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Список сессий",
		Data:    sessions,
	})
}

func (rs *RestServer) handleLoadGame(c *gin.Context) {
	state, err := rs.service.LoadGame(c.Request.Context(), c.Param("id"))
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Сессия загружена",
		Data:    state,
	})
}

func (rs *RestServer) handleDeleteGame(c *gin.Context) {
	if err := rs.service.DeleteGame(c.Request.Context(), c.Param("id")); err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Сессия удалена",
	})
}

func (rs *RestServer) handleGenerateArea(c *gin.Context) {
	var req GenerateAreaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rs.badRequest(c, "Неверный формат запроса")
		return
	}
	dir, err := world.ParseDirection(req.Direction)
	if err != nil {
		rs.badRequest(c, err.Error())
		return
	}

	result, err := rs.service.GenerateArea(c.Request.Context(), c.Param("id"), req.FromAreaID, dir, req.Context)
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Зона сгенерирована",
		Data:    result,
	})
}

func (rs *RestServer) handleSyncState(c *gin.Context) {
	var req game.SyncInput
	if err := c.ShouldBindJSON(&req); err != nil {
		rs.badRequest(c, "Неверный формат запроса")
		return
	}

	result, err := rs.service.SyncState(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Состояние синхронизировано",
		Data:    result,
	})
}

// handleStats возвращает статистику сервера
func (rs *RestServer) handleStats(c *gin.Context) {
	stats := make(map[string]interface{})

	stats["sessions"] = map[string]interface{}{
		"active": rs.service.ActiveSessions(),
	}
	if rs.bus != nil {
		stats["eventbus"] = rs.bus.Metrics()
	}

	memoryMB, _ := rs.metrics.GetMemoryUsage()
	cpuPercent, _ := rs.metrics.GetCPUUsage()

	stats["server"] = map[string]interface{}{
		"uptime":      rs.metrics.GetUptime(),
		"memory_mb":   fmt.Sprintf("%.2f", memoryMB),
		"cpu_percent": fmt.Sprintf("%.2f", cpuPercent),
		"server_time": time.Now().Unix(),
	}
	stats["memory_details"] = rs.metrics.GetDetailedMemoryStats()

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data:    stats,
	})
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

func (rs *RestServer) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, GenericResponse{
		Success: false,
		Message: message,
	})
}

// fail переводит ошибку сервиса в HTTP статус
func (rs *RestServer) fail(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		rs.log.Err(err, "%s %s", c.Request.Method, c.FullPath())
		message = "Внутренняя ошибка сервера"
	}
	c.JSON(status, GenericResponse{
		Success: false,
		Message: message,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrSessionNotFound), errors.Is(err, game.ErrAreaNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrGenerationInProgress):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// Start запускает REST сервер; возвращает nil после Shutdown
func (rs *RestServer) Start() error {
	rs.log.Info("🌐 REST API слушает %s", rs.http.Addr)
	if err := rs.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown останавливает сервер, дожидаясь активных запросов
func (rs *RestServer) Shutdown(ctx context.Context) error {
	return rs.http.Shutdown(ctx)
}
