package world

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/annel0/descent/internal/eventbus"
	"github.com/annel0/descent/internal/logging"
	"github.com/annel0/descent/internal/vec"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Параметры триггера генерации по умолчанию
const (
	DefaultTriggerDistance   = 15.0
	DefaultHeadingThreshold  = 0.5
	DefaultGenerationTimeout = 30 * time.Second
)

// Ошибки менеджера мира
var (
	ErrExitExplored    = errors.New("exit already explored")
	ErrInvalidResult   = errors.New("invalid generation result")
	ErrUnknownOrigin   = errors.New("origin area is nil")
	errNoRequesterArea = errors.New("requester returned no area")
)

// GenerationRequest запрос на генерацию зоны за выходом
type GenerationRequest struct {
	SessionID  string            `json:"sessionId"`
	FromAreaID string            `json:"fromAreaId"`
	Direction  Direction         `json:"direction"`
	Context    GenerationContext `json:"context"`
}

// AreaRequester бэкенд генерации (сервис сессий или удалённый вызов)
type AreaRequester interface {
	RequestArea(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
}

// AreaRequesterFunc адаптер функции к AreaRequester
type AreaRequesterFunc func(ctx context.Context, req GenerationRequest) (*GenerationResult, error)

// RequestArea вызывает f(ctx, req)
func (f AreaRequesterFunc) RequestArea(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	return f(ctx, req)
}

// AreaGeneratedEvent полезная нагрузка события AreaGenerated
type AreaGeneratedEvent struct {
	SessionID   string      `json:"sessionId"`
	FromAreaID  string      `json:"fromAreaId"`
	Direction   Direction   `json:"direction"`
	AreaID      string      `json:"areaId"`
	AreaType    AreaType    `json:"areaType"`
	Enemies     int         `json:"enemies"`
	PowerUps    int         `json:"powerUps"`
	Connections []Direction `json:"connections"`
}

// Manager граф зон одной сессии и запуск генерации по мере приближения игрока
type Manager struct {
	sessionID string
	requester AreaRequester

	mu           sync.Mutex
	areas        map[string]*Area
	inFlight     map[string]struct{}
	visited      map[AreaType]struct{}
	recentCombat bool

	wg sync.WaitGroup

	triggerDistance  float64
	headingThreshold float64
	timeout          time.Duration
	onGenerated      func(GenerationResult)
	bus              eventbus.EventBus
	metrics          *ManagerMetrics
	tracer           trace.Tracer
	log              *logging.Logger
}

// ManagerOption настраивает Manager
type ManagerOption func(*Manager)

// WithTriggerDistance расстояние до выхода, с которого запускается генерация
func WithTriggerDistance(d float64) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.triggerDistance = d
		}
	}
}

// WithHeadingThreshold минимальное скалярное произведение курса и направления на выход
func WithHeadingThreshold(t float64) ManagerOption {
	return func(m *Manager) {
		m.headingThreshold = t
	}
}

// WithGenerationTimeout таймаут одного запроса генерации
func WithGenerationTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithOnGenerated вызывается после вставки каждой новой зоны в граф
func WithOnGenerated(f func(GenerationResult)) ManagerOption {
	return func(m *Manager) {
		m.onGenerated = f
	}
}

// WithEventBus публиковать AreaGenerated в шину
func WithEventBus(bus eventbus.EventBus) ManagerOption {
	return func(m *Manager) {
		m.bus = bus
	}
}

// WithMetrics подключает метрики генерации
func WithMetrics(metrics *ManagerMetrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// NewManager создаёт менеджер мира для сессии
func NewManager(sessionID string, requester AreaRequester, opts ...ManagerOption) *Manager {
	m := &Manager{
		sessionID:        sessionID,
		requester:        requester,
		areas:            make(map[string]*Area),
		inFlight:         make(map[string]struct{}),
		visited:          make(map[AreaType]struct{}),
		triggerDistance:  DefaultTriggerDistance,
		headingThreshold: DefaultHeadingThreshold,
		timeout:          DefaultGenerationTimeout,
		tracer:           otel.Tracer("github.com/annel0/descent/internal/world"),
		log:              logging.GetWorldLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SessionID id сессии, которой принадлежит граф
func (m *Manager) SessionID() string {
	return m.sessionID
}

// AddArea вставляет или заменяет зону по id
func (m *Manager) AddArea(area *Area) {
	if area == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.areas[area.ID] = area.Clone()
	m.visited[area.Type] = struct{}{}
}

// Area возвращает копию зоны по id
func (m *Manager) Area(id string) (*Area, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.areas[id]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// Areas возвращает копию графа
func (m *Manager) Areas() map[string]*Area {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*Area, len(m.areas))
	for id, a := range m.areas {
		out[id] = a.Clone()
	}
	return out
}

// Size число зон в графе
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.areas)
}

// AreaContaining возвращает зону, в габаритах которой находится точка.
// На общей грани соседних зон выбирается зона с меньшим id.
func (m *Manager) AreaContaining(p vec.Vec3) (*Area, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *Area
	for _, a := range m.areas {
		if !a.Contains(p) {
			continue
		}
		if found == nil || a.ID < found.ID {
			found = a
		}
	}
	if found == nil {
		return nil, false
	}
	return found.Clone(), true
}

// SetRecentCombat отмечает, был ли недавно бой
func (m *Manager) SetRecentCombat(v bool) {
	m.mu.Lock()
	m.recentCombat = v
	m.mu.Unlock()
}

// RecentCombat текущий флаг недавнего боя
func (m *Manager) RecentCombat() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recentCombat
}

// InFlight сообщает, выполняется ли запрос для выхода
func (m *Manager) InFlight(fromAreaID string, dir Direction) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inFlight[inFlightKey(fromAreaID, dir)]
	return ok
}

func inFlightKey(fromAreaID string, dir Direction) string {
	return fromAreaID + "|" + string(dir)
}

// CheckGenerationNeeded проверяет неисследованные выходы зоны игрока и
// асинхронно запрашивает генерацию для тех, к которым игрок близко и
// направлен. Возвращает направления, для которых запрос был запущен.
func (m *Manager) CheckGenerationNeeded(ctx context.Context, position, heading vec.Vec3, ps *PlayerState) []Direction {
	area, ok := m.AreaContaining(position)
	if !ok {
		return nil
	}
	h := heading.Normalized()
	if h.Length() == 0 {
		return nil
	}

	// Снимок игрока: горутины не должны читать изменяемое состояние вызывающего
	snapshot := ps.Clone()

	var triggered []Direction
	for _, e := range area.UnexploredExits() {
		exitPos := area.ExitPosition(e.Direction)
		if position.DistanceTo(exitPos) > m.triggerDistance {
			continue
		}
		toExit := exitPos.Sub(position).Normalized()
		// Игрок в центре грани выхода: направление к выходу не определено
		if toExit.Length() == 0 {
			toExit = e.Direction.Unit()
		}
		if h.Dot(toExit) < m.headingThreshold {
			continue
		}

		key := inFlightKey(area.ID, e.Direction)
		gctx, ok := m.reserve(key, func() GenerationContext {
			return m.generationContextLocked(snapshot)
		})
		if !ok {
			continue
		}
		triggered = append(triggered, e.Direction)
		m.wg.Add(1)
		go func(dir Direction, gctx GenerationContext) {
			defer m.wg.Done()
			// Ошибка уже залогирована; повтор произойдёт при следующей проверке
			_, _ = m.generate(context.WithoutCancel(ctx), area, dir, key, gctx)
		}(e.Direction, gctx)
	}
	return triggered
}

// Wait блокируется до завершения запросов, запущенных CheckGenerationNeeded
func (m *Manager) Wait() {
	m.wg.Wait()
}

// RequestGeneration запрашивает зону за выходом dir зоны from.
// Если запрос для того же выхода уже выполняется, вызов отбрасывается
// и возвращает (nil, nil) без обращения к бэкенду. Маркер выполнения
// снимается на любом пути; при ошибке граф не изменяется.
func (m *Manager) RequestGeneration(ctx context.Context, from *Area, dir Direction, ps *PlayerState) (*GenerationResult, error) {
	return m.request(ctx, from, dir, func() GenerationContext {
		return m.generationContextLocked(ps)
	})
}

// RequestGenerationWithContext как RequestGeneration, но с контекстом
// генерации, переданным вызывающей стороной
func (m *Manager) RequestGenerationWithContext(ctx context.Context, from *Area, dir Direction, gctx GenerationContext) (*GenerationResult, error) {
	if err := gctx.Validate(); err != nil {
		return nil, err
	}
	return m.request(ctx, from, dir, func() GenerationContext { return gctx })
}

func (m *Manager) request(ctx context.Context, from *Area, dir Direction, buildCtx func() GenerationContext) (*GenerationResult, error) {
	if from == nil {
		return nil, ErrUnknownOrigin
	}
	exit, ok := from.Exit(dir)
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrExitNotFound, from.ID, dir)
	}
	if exit.Explored() {
		return nil, fmt.Errorf("%w: %s %s", ErrExitExplored, from.ID, dir)
	}

	key := inFlightKey(from.ID, dir)
	gctx, ok := m.reserve(key, buildCtx)
	if !ok {
		m.metrics.count(OutcomeDeduplicated)
		m.log.Debug("генерация %s уже выполняется, запрос отброшен", key)
		return nil, nil
	}
	return m.generate(ctx, from, dir, key, gctx)
}

// reserve помечает выход как выполняемый. false, если он уже помечен.
// buildCtx вызывается под блокировкой.
func (m *Manager) reserve(key string, buildCtx func() GenerationContext) (GenerationContext, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inFlight[key]; busy {
		return GenerationContext{}, false
	}
	m.inFlight[key] = struct{}{}
	return buildCtx(), true
}

// generate выполняет зарезервированный запрос и снимает маркер
func (m *Manager) generate(ctx context.Context, from *Area, dir Direction, key string, gctx GenerationContext) (*GenerationResult, error) {
	m.metrics.count(OutcomeStarted)
	m.metrics.addInFlight(1)
	defer func() {
		m.mu.Lock()
		delete(m.inFlight, key)
		m.mu.Unlock()
		m.metrics.addInFlight(-1)
	}()

	ctx, span := m.tracer.Start(ctx, "world.RequestGeneration", trace.WithAttributes(
		attribute.String("session.id", m.sessionID),
		attribute.String("area.from", from.ID),
		attribute.String("area.direction", string(dir)),
		attribute.Int("generation.depth", gctx.ExplorationDepth),
	))
	defer span.End()

	m.log.Info("сессия %s: генерация зоны %s от %s (глубина %d)", m.sessionID, dir, from.ID, gctx.ExplorationDepth)

	reqCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	result, err := m.requester.RequestArea(reqCtx, GenerationRequest{
		SessionID:  m.sessionID,
		FromAreaID: from.ID,
		Direction:  dir,
		Context:    gctx,
	})
	m.metrics.observe(time.Since(start).Seconds())
	if err == nil {
		err = m.insert(from, dir, result)
	}
	if err != nil {
		m.metrics.count(OutcomeFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.log.Err(err, "сессия %s: генерация %s не удалась", m.sessionID, key)
		return nil, err
	}

	m.metrics.count(OutcomeSucceeded)
	span.SetAttributes(attribute.String("area.id", result.Area.ID))
	m.log.Info("сессия %s: зона %s (%s) присоединена к %s/%s", m.sessionID, result.Area.ID, result.Area.Type, from.ID, dir)

	m.notify(ctx, from.ID, dir, *result)
	return result, nil
}

func (m *Manager) generationContextLocked(ps *PlayerState) GenerationContext {
	health := float64(DefaultMaxHealth)
	if ps != nil {
		health = ps.Health
	}
	visited := make([]string, 0, len(m.visited))
	for t := range m.visited {
		visited = append(visited, string(t))
	}
	sort.Strings(visited)
	return GenerationContext{
		PlayerHealth:     health,
		RecentCombat:     m.recentCombat,
		ExplorationDepth: len(m.areas),
		VisitedAreaTypes: visited,
	}
}

// insert проверяет результат и атомарно связывает новую зону с исходной
func (m *Manager) insert(from *Area, dir Direction, result *GenerationResult) error {
	if result == nil || result.Area == nil {
		return errNoRequesterArea
	}
	if err := result.Area.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	back, ok := result.Area.Exit(dir.Opposite())
	if !ok || back.Target() != from.ID {
		return fmt.Errorf("%w: area %s has no %s exit back to %s", ErrInvalidResult, result.Area.ID, dir.Opposite(), from.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.areas[result.Area.ID]; exists {
		return fmt.Errorf("%w: area %s already in graph", ErrInvalidResult, result.Area.ID)
	}
	origin, ok := m.areas[from.ID]
	if !ok {
		origin = from.Clone()
	} else {
		origin = origin.Clone()
	}
	if err := origin.SetExitTarget(dir, result.Area.ID); err != nil {
		return err
	}
	m.areas[from.ID] = origin
	m.areas[result.Area.ID] = result.Area.Clone()
	m.visited[result.Area.Type] = struct{}{}
	return nil
}

func (m *Manager) notify(ctx context.Context, fromID string, dir Direction, result GenerationResult) {
	if m.onGenerated != nil {
		m.onGenerated(result)
	}
	if m.bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope(eventbus.TypeAreaGenerated, "world", m.sessionID, AreaGeneratedEvent{
		SessionID:   m.sessionID,
		FromAreaID:  fromID,
		Direction:   dir,
		AreaID:      result.Area.ID,
		AreaType:    result.Area.Type,
		Enemies:     len(result.Enemies),
		PowerUps:    len(result.PowerUps),
		Connections: result.Connections,
	})
	if err == nil {
		err = m.bus.Publish(ctx, ev)
	}
	if err != nil {
		m.log.Warn("сессия %s: событие AreaGenerated не опубликовано: %v", m.sessionID, err)
	}
}
