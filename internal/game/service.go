package game

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/annel0/descent/internal/combat"
	"github.com/annel0/descent/internal/eventbus"
	"github.com/annel0/descent/internal/logging"
	"github.com/annel0/descent/internal/storage"
	"github.com/annel0/descent/internal/world"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// GameState полное состояние сессии для клиента
type GameState struct {
	Session  *world.Session     `json:"session"`
	Areas    []*world.Area      `json:"areas"`
	Player   *world.PlayerState `json:"player"`
	Enemies  []world.Enemy      `json:"enemies"`
	PowerUps []world.Pickup     `json:"powerUps"`
}

// SyncInput состояние клиента за прошедший тик
type SyncInput struct {
	Player *world.PlayerState `json:"player"`
	DT     float64            `json:"dt"`
	Shots  []Shot             `json:"shots,omitempty"`
}

// SyncResult авторитетное состояние после синхронизации
type SyncResult struct {
	Session     *world.Session     `json:"session"`
	Player      *world.PlayerState `json:"player"`
	Enemies     []world.Enemy      `json:"enemies"`
	PowerUps    []world.Pickup     `json:"powerUps"`
	Projectiles []world.Projectile `json:"projectiles"`
	Collected   []world.Pickup     `json:"collected,omitempty"`
	DamageTaken float64            `json:"damageTaken"`
	// Triggered выходы, для которых запущена фоновая генерация
	Triggered []world.Direction `json:"triggered,omitempty"`
}

// SessionEvent полезная нагрузка SessionCreated/SessionDeleted
type SessionEvent struct {
	SessionID  string           `json:"sessionId"`
	Theme      world.Theme      `json:"theme,omitempty"`
	Difficulty world.Difficulty `json:"difficulty,omitempty"`
}

// StateSyncedEvent полезная нагрузка StateSynced
type StateSyncedEvent struct {
	SessionID string            `json:"sessionId"`
	AreaID    string            `json:"areaId"`
	Health    float64           `json:"health"`
	Shields   float64           `json:"shields"`
	Score     int               `json:"score"`
	Triggered []world.Direction `json:"triggered,omitempty"`
}

// Service управляет игровыми сессиями: сохраняет их в GameStore,
// держит в памяти граф зон каждой активной сессии и служит бэкендом
// генерации для её менеджера мира.
type Service struct {
	store       storage.GameStore
	generator   *world.Generator
	bus         eventbus.EventBus
	managerOpts []world.ManagerOption
	tracer      trace.Tracer
	log         *logging.Logger

	mu       sync.Mutex
	runtimes map[string]*runtime
}

// Option настраивает Service
type Option func(*Service)

// WithManagerOptions опции менеджера мира каждой сессии
func WithManagerOptions(opts ...world.ManagerOption) Option {
	return func(s *Service) {
		s.managerOpts = append(s.managerOpts, opts...)
	}
}

// NewService создаёт сервис сессий. bus может быть nil.
func NewService(store storage.GameStore, generator *world.Generator, bus eventbus.EventBus, opts ...Option) *Service {
	s := &Service{
		store:     store,
		generator: generator,
		bus:       bus,
		tracer:    otel.Tracer("github.com/annel0/descent/internal/game"),
		log:       logging.GetGameLogger(),
		runtimes:  make(map[string]*runtime),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ world.AreaRequester = (*Service)(nil)

// StartGame создаёт сессию со стартовой зоной и начальным состоянием игрока
func (s *Service) StartGame(ctx context.Context, theme world.Theme, difficulty world.Difficulty) (*GameState, error) {
	if !theme.Valid() {
		return nil, fmt.Errorf("%w: unknown theme %q", ErrInvalidRequest, theme)
	}
	if _, err := world.ParseDifficulty(string(difficulty)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	session, err := s.store.CreateSession(ctx, theme, difficulty)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	start := world.NewStartingArea(s.generator.ResolveTheme(theme))
	player := world.NewPlayerState(combat.NewInventory().Serialize())

	if err := s.store.SaveArea(ctx, session.ID, start); err != nil {
		s.rollback(ctx, session.ID)
		return nil, fmt.Errorf("save starting area: %w", err)
	}
	if err := s.store.SavePlayerState(ctx, session.ID, player); err != nil {
		s.rollback(ctx, session.ID)
		return nil, fmt.Errorf("save player state: %w", err)
	}

	rt := s.register(session, player, []*world.Area{start})
	s.log.Info("сессия %s создана (%s, %s)", session.ID, theme, difficulty)
	s.publish(ctx, eventbus.TypeSessionCreated, session.ID, SessionEvent{
		SessionID:  session.ID,
		Theme:      session.Theme,
		Difficulty: session.Difficulty,
	})
	return rt.state(), nil
}

func (s *Service) rollback(ctx context.Context, sessionID string) {
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		s.log.Err(err, "не удалось удалить недостроенную сессию %s", sessionID)
	}
}

// LoadGame возвращает состояние сессии, поднимая её из хранилища при необходимости
func (s *Service) LoadGame(ctx context.Context, sessionID string) (*GameState, error) {
	rt, err := s.runtime(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return rt.state(), nil
}

// ListGames сессии в порядке убывания времени последней игры
func (s *Service) ListGames(ctx context.Context) ([]*world.Session, error) {
	return s.store.ListSessions(ctx)
}

// DeleteGame удаляет сессию вместе с её зонами и состоянием игрока
func (s *Service) DeleteGame(ctx context.Context, sessionID string) error {
	_, found, err := s.store.LoadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}

	s.mu.Lock()
	delete(s.runtimes, sessionID)
	s.mu.Unlock()

	s.log.Info("сессия %s удалена", sessionID)
	s.publish(ctx, eventbus.TypeSessionDeleted, sessionID, SessionEvent{SessionID: sessionID})
	return nil
}

// GenerateArea генерирует зону за выходом dir зоны fromAreaID.
// gctx == nil строит контекст генерации из состояния сессии.
func (s *Service) GenerateArea(ctx context.Context, sessionID, fromAreaID string, dir world.Direction, gctx *world.GenerationContext) (*world.GenerationResult, error) {
	if !dir.Valid() {
		return nil, fmt.Errorf("%w: unknown direction %q", ErrInvalidRequest, dir)
	}
	if gctx != nil {
		if err := gctx.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}

	ctx, span := s.tracer.Start(ctx, "game.GenerateArea", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("area.from", fromAreaID),
		attribute.String("area.direction", string(dir)),
	))
	defer span.End()

	rt, err := s.runtime(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	from, ok := rt.manager.Area(fromAreaID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAreaNotFound, fromAreaID)
	}

	var result *world.GenerationResult
	if gctx != nil {
		result, err = rt.manager.RequestGenerationWithContext(ctx, from, dir, *gctx)
	} else {
		rt.mu.Lock()
		player := rt.player.Clone()
		rt.mu.Unlock()
		result, err = rt.manager.RequestGeneration(ctx, from, dir, player)
	}

	switch {
	case errors.Is(err, world.ErrExitNotFound), errors.Is(err, world.ErrExitExplored):
		err = fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	case err == nil && result == nil:
		err = fmt.Errorf("%w: %s/%s", ErrGenerationInProgress, fromAreaID, dir)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return result, nil
}

// RequestArea генерирует и сохраняет зону по запросу менеджера мира
func (s *Service) RequestArea(ctx context.Context, req world.GenerationRequest) (*world.GenerationResult, error) {
	rt, err := s.runtime(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	from, ok := rt.manager.Area(req.FromAreaID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAreaNotFound, req.FromAreaID)
	}

	rt.mu.Lock()
	theme, difficulty := rt.session.Theme, rt.session.Difficulty
	rt.mu.Unlock()

	result := s.generator.Generate(from, req.Direction, req.Context, theme, difficulty)

	origin := from.Clone()
	if err := origin.SetExitTarget(req.Direction, result.Area.ID); err != nil {
		return nil, err
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	session := rt.session.Clone()
	session.Touch()
	session.ExplorationDepth = max(session.ExplorationDepth, req.Context.ExplorationDepth+1)
	session.Score += AreaScore
	// новая зона, связь из исходной и счёт пишутся вместе: иначе после
	// сбоя в хранилище остаётся ссылка на зону, которой нет в графе
	if err := s.store.SaveGeneration(ctx, session, result.Area, origin); err != nil {
		return nil, storeErr(err)
	}
	rt.session = session
	rt.addContent(&result)
	return &result, nil
}

// SyncState принимает состояние клиента, продвигает симуляцию на in.DT
// и сохраняет результат. Возвращённое состояние авторитетно.
func (s *Service) SyncState(ctx context.Context, sessionID string, in SyncInput) (*SyncResult, error) {
	if in.Player == nil {
		return nil, fmt.Errorf("%w: player state is required", ErrInvalidRequest)
	}
	if in.DT < 0 || math.IsNaN(in.DT) || math.IsInf(in.DT, 0) {
		return nil, fmt.Errorf("%w: dt must be a finite non-negative number", ErrInvalidRequest)
	}

	ctx, span := s.tracer.Start(ctx, "game.SyncState", trace.WithAttributes(
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	rt, err := s.runtime(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	ps := in.Player.Clone()
	combat.NormalizePlayer(ps)
	inv := combat.Deserialize(ps.Inventory)
	inv.UpdatePowerUps(in.DT)
	if area, ok := rt.manager.AreaContaining(ps.Position); ok {
		ps.CurrentAreaID = area.ID
	}

	rt.mu.Lock()
	rep := rt.tick(ps, inv, in.Shots, in.DT)
	ps.Inventory = inv.Serialize()
	combat.NormalizePlayer(ps)

	session := rt.session.Clone()
	session.Touch()
	session.Score += rep.kills * KillScore
	ps.Score = session.Score

	if err := s.store.SavePlayerState(ctx, sessionID, ps); err != nil {
		rt.mu.Unlock()
		return nil, storeErr(err)
	}
	if err := s.store.SaveSession(ctx, session); err != nil {
		rt.mu.Unlock()
		return nil, storeErr(err)
	}
	rt.session = session
	rt.player = ps.Clone()
	rt.manager.SetRecentCombat(rep.combat)

	result := &SyncResult{
		Session:     session.Clone(),
		Player:      ps.Clone(),
		Enemies:     rt.enemiesIn(ps.CurrentAreaID),
		PowerUps:    rt.pickupsIn(ps.CurrentAreaID),
		Projectiles: rt.projectilesSnapshot(),
		Collected:   rep.collected,
		DamageTaken: rep.damageTaken,
	}
	rt.mu.Unlock()

	if ps.Alive() {
		result.Triggered = rt.manager.CheckGenerationNeeded(ctx, ps.Position, ps.Heading(), ps)
	}
	span.SetAttributes(attribute.Int("generation.triggered", len(result.Triggered)))

	s.publish(ctx, eventbus.TypeStateSynced, sessionID, StateSyncedEvent{
		SessionID: sessionID,
		AreaID:    ps.CurrentAreaID,
		Health:    ps.Health,
		Shields:   ps.Shields,
		Score:     ps.Score,
		Triggered: result.Triggered,
	})
	return result, nil
}

// ActiveSessions число сессий, загруженных в память
func (s *Service) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runtimes)
}

// Wait ждёт завершения фоновой генерации во всех активных сессиях
func (s *Service) Wait() {
	s.mu.Lock()
	managers := make([]*world.Manager, 0, len(s.runtimes))
	for _, rt := range s.runtimes {
		managers = append(managers, rt.manager)
	}
	s.mu.Unlock()

	for _, m := range managers {
		m.Wait()
	}
}

// runtime возвращает активное состояние сессии, загружая его из хранилища
func (s *Service) runtime(ctx context.Context, sessionID string) (*runtime, error) {
	s.mu.Lock()
	rt, ok := s.runtimes[sessionID]
	s.mu.Unlock()
	if ok {
		return rt, nil
	}

	session, found, err := s.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	areas, err := s.store.GetAreasForSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load areas of %s: %w", sessionID, err)
	}
	player, found, err := s.store.LoadPlayerState(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load player of %s: %w", sessionID, err)
	}
	if !found {
		player = world.NewPlayerState(combat.NewInventory().Serialize())
	}
	s.log.Debug("сессия %s загружена: %d зон", sessionID, len(areas))
	return s.register(session, player, areas), nil
}

// register создаёт runtime с менеджером мира. Если сессию уже
// зарегистрировал другой вызов, возвращается существующий runtime.
func (s *Service) register(session *world.Session, player *world.PlayerState, areas []*world.Area) *runtime {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rt, ok := s.runtimes[session.ID]; ok {
		return rt
	}

	opts := append([]world.ManagerOption{world.WithEventBus(s.bus)}, s.managerOpts...)
	rt := newRuntime(session.Clone(), player.Clone())
	rt.manager = world.NewManager(session.ID, s, opts...)
	for _, a := range areas {
		rt.manager.AddArea(a)
	}
	s.runtimes[session.ID] = rt
	return rt
}

// state снимок сессии для клиента
func (rt *runtime) state() *GameState {
	graph := rt.manager.Areas()
	areas := make([]*world.Area, 0, len(graph))
	for _, a := range graph {
		areas = append(areas, a)
	}
	sort.Slice(areas, func(i, j int) bool { return areas[i].ID < areas[j].ID })

	rt.mu.Lock()
	defer rt.mu.Unlock()
	return &GameState{
		Session:  rt.session.Clone(),
		Areas:    areas,
		Player:   rt.player.Clone(),
		Enemies:  rt.enemiesIn(rt.player.CurrentAreaID),
		PowerUps: rt.pickupsIn(rt.player.CurrentAreaID),
	}
}

func (s *Service) publish(ctx context.Context, eventType, sessionID string, payload interface{}) {
	if s.bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope(eventType, "game", sessionID, payload)
	if err == nil {
		err = s.bus.Publish(ctx, ev)
	}
	if err != nil {
		s.log.Warn("событие %s сессии %s не опубликовано: %v", eventType, sessionID, err)
	}
}

// storeErr переводит отсутствие сессии в хранилище в ошибку сервиса
func storeErr(err error) error {
	if errors.Is(err, storage.ErrSessionNotFound) {
		return fmt.Errorf("%w: %w", ErrSessionNotFound, err)
	}
	return err
}
