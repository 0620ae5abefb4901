package storage

import (
	"context"
	"errors"
	"time"

	"github.com/annel0/descent/internal/world"
	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics метрики операций хранилища
type StoreMetrics struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

// NewStoreMetrics создаёт и регистрирует метрики. nil reg означает
// метрики без регистрации.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "descent_storage_operation_duration_seconds",
			Help:    "Duration of game store operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend", "operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "descent_storage_errors_total",
			Help: "Total number of failed game store operations",
		}, []string{"backend", "operation"}),
	}
	if reg != nil {
		reg.MustRegister(m.duration, m.errors)
	}
	return m
}

// InstrumentedStore измеряет длительность и ошибки операций inner
type InstrumentedStore struct {
	inner   GameStore
	backend string
	metrics *StoreMetrics
}

// NewInstrumentedStore оборачивает хранилище метриками
func NewInstrumentedStore(inner GameStore, backend string, metrics *StoreMetrics) *InstrumentedStore {
	return &InstrumentedStore{inner: inner, backend: backend, metrics: metrics}
}

func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	s.metrics.duration.WithLabelValues(s.backend, op).Observe(time.Since(start).Seconds())
	// закрытое хранилище и отсутствующая сессия не считаются сбоем бэкенда
	if err != nil && !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrNotInitialized) {
		s.metrics.errors.WithLabelValues(s.backend, op).Inc()
	}
}

func (s *InstrumentedStore) CreateSession(ctx context.Context, theme world.Theme, difficulty world.Difficulty) (*world.Session, error) {
	start := time.Now()
	sess, err := s.inner.CreateSession(ctx, theme, difficulty)
	s.observe("create_session", start, err)
	return sess, err
}

func (s *InstrumentedStore) LoadSession(ctx context.Context, id string) (*world.Session, bool, error) {
	start := time.Now()
	sess, found, err := s.inner.LoadSession(ctx, id)
	s.observe("load_session", start, err)
	return sess, found, err
}

func (s *InstrumentedStore) SaveSession(ctx context.Context, sess *world.Session) error {
	start := time.Now()
	err := s.inner.SaveSession(ctx, sess)
	s.observe("save_session", start, err)
	return err
}

func (s *InstrumentedStore) ListSessions(ctx context.Context) ([]*world.Session, error) {
	start := time.Now()
	list, err := s.inner.ListSessions(ctx)
	s.observe("list_sessions", start, err)
	return list, err
}

func (s *InstrumentedStore) DeleteSession(ctx context.Context, id string) error {
	start := time.Now()
	err := s.inner.DeleteSession(ctx, id)
	s.observe("delete_session", start, err)
	return err
}

func (s *InstrumentedStore) SaveArea(ctx context.Context, sessionID string, a *world.Area) error {
	start := time.Now()
	err := s.inner.SaveArea(ctx, sessionID, a)
	s.observe("save_area", start, err)
	return err
}

func (s *InstrumentedStore) SaveGeneration(ctx context.Context, sess *world.Session, areas ...*world.Area) error {
	start := time.Now()
	err := s.inner.SaveGeneration(ctx, sess, areas...)
	s.observe("save_generation", start, err)
	return err
}

func (s *InstrumentedStore) GetArea(ctx context.Context, sessionID, areaID string) (*world.Area, bool, error) {
	start := time.Now()
	a, found, err := s.inner.GetArea(ctx, sessionID, areaID)
	s.observe("get_area", start, err)
	return a, found, err
}

func (s *InstrumentedStore) GetAreasForSession(ctx context.Context, sessionID string) ([]*world.Area, error) {
	start := time.Now()
	list, err := s.inner.GetAreasForSession(ctx, sessionID)
	s.observe("get_areas", start, err)
	return list, err
}

func (s *InstrumentedStore) SavePlayerState(ctx context.Context, sessionID string, ps *world.PlayerState) error {
	start := time.Now()
	err := s.inner.SavePlayerState(ctx, sessionID, ps)
	s.observe("save_player", start, err)
	return err
}

func (s *InstrumentedStore) LoadPlayerState(ctx context.Context, sessionID string) (*world.PlayerState, bool, error) {
	start := time.Now()
	ps, found, err := s.inner.LoadPlayerState(ctx, sessionID)
	s.observe("load_player", start, err)
	return ps, found, err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}

// Unwrap возвращает обёрнутое хранилище
func (s *InstrumentedStore) Unwrap() GameStore {
	return s.inner
}
