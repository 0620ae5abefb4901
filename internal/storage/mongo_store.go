package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/descent/internal/world"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig contains connection settings for MongoDB game store.
type MongoConfig struct {
	URI      string `yaml:"uri" env:"URI"`           // e.g. mongodb://localhost:27017
	Database string `yaml:"database" env:"DATABASE"` // e.g. descent
}

type sessionDoc struct {
	ID               string `bson:"_id"`
	Theme            string `bson:"theme"`
	Difficulty       string `bson:"difficulty"`
	CreatedAtMs      int64  `bson:"created_at_ms"`
	LastPlayedMs     int64  `bson:"last_played_ms"`
	Score            int    `bson:"score"`
	ExplorationDepth int    `bson:"exploration_depth"`
}

type areaDoc struct {
	SessionID string `bson:"session_id"`
	AreaID    string `bson:"area_id"`
	Data      string `bson:"data"`
}

type playerDoc struct {
	SessionID   string `bson:"_id"`
	Data        string `bson:"data"`
	UpdatedAtMs int64  `bson:"updated_at_ms"`
}

func toSessionDoc(s *world.Session) sessionDoc {
	return sessionDoc{
		ID:               s.ID,
		Theme:            string(s.Theme),
		Difficulty:       string(s.Difficulty),
		CreatedAtMs:      s.CreatedAt.UnixMilli(),
		LastPlayedMs:     s.LastPlayed.UnixMilli(),
		Score:            s.Score,
		ExplorationDepth: s.ExplorationDepth,
	}
}

func (d sessionDoc) toSession() *world.Session {
	return &world.Session{
		ID:               d.ID,
		Theme:            world.Theme(d.Theme),
		Difficulty:       world.Difficulty(d.Difficulty),
		CreatedAt:        time.UnixMilli(d.CreatedAtMs).UTC(),
		LastPlayed:       time.UnixMilli(d.LastPlayedMs).UTC(),
		Score:            d.Score,
		ExplorationDepth: d.ExplorationDepth,
	}
}

// MongoStore implements GameStore on MongoDB backend. MongoDB has no
// foreign keys, so writes check the parent session and DeleteSession
// removes child documents explicitly.
type MongoStore struct {
	client     *mongo.Client
	sessions   *mongo.Collection
	areas      *mongo.Collection
	players    *mongo.Collection
	ctxTimeout time.Duration

	mutex   sync.RWMutex
	isReady bool
}

// NewMongoStore establishes connection and returns store.
func NewMongoStore(cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "descent"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	// ping
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	db := client.Database(cfg.Database)
	store := &MongoStore{
		client:     client,
		sessions:   db.Collection("sessions"),
		areas:      db.Collection("areas"),
		players:    db.Collection("player_state"),
		ctxTimeout: 5 * time.Second,
		isReady:    true,
	}

	// Ensure indexes
	if err := store.ensureIndexes(); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

func (m *MongoStore) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()
	areaIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "area_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("session_area_unique"),
	}
	if _, err := m.areas.Indexes().CreateOne(ctx, areaIdx); err != nil {
		return err
	}
	playedIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "last_played_ms", Value: -1}},
		Options: options.Index().SetName("last_played_desc"),
	}
	_, err := m.sessions.Indexes().CreateOne(ctx, playedIdx)
	return err
}

// op берёт блокировку чтения и ограничивает запрос таймаутом
func (m *MongoStore) op(ctx context.Context) (context.Context, func(), error) {
	m.mutex.RLock()
	if !m.isReady {
		m.mutex.RUnlock()
		return nil, nil, ErrNotInitialized
	}
	cctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	return cctx, func() {
		cancel()
		m.mutex.RUnlock()
	}, nil
}

// Close disconnects client.
func (m *MongoStore) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if !m.isReady {
		return nil
	}
	m.isReady = false
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *MongoStore) CreateSession(ctx context.Context, theme world.Theme, difficulty world.Difficulty) (*world.Session, error) {
	s, err := newSession(theme, difficulty)
	if err != nil {
		return nil, err
	}
	ctx, done, err := m.op(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	if _, err := m.sessions.InsertOne(ctx, toSessionDoc(s)); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s, nil
}

func (m *MongoStore) LoadSession(ctx context.Context, id string) (*world.Session, bool, error) {
	ctx, done, err := m.op(ctx)
	if err != nil {
		return nil, false, err
	}
	defer done()

	var doc sessionDoc
	err = m.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return doc.toSession(), true, nil
}

func (m *MongoStore) SaveSession(ctx context.Context, s *world.Session) error {
	ctx, done, err := m.op(ctx)
	if err != nil {
		return err
	}
	defer done()

	res, err := m.sessions.ReplaceOne(ctx, bson.M{"_id": s.ID}, toSessionDoc(s))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (m *MongoStore) ListSessions(ctx context.Context) ([]*world.Session, error) {
	ctx, done, err := m.op(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	opts := options.Find().SetSort(bson.D{{Key: "last_played_ms", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := m.sessions.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []sessionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*world.Session, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toSession())
	}
	return out, nil
}

// DeleteSession removes children first so an interrupted delete never
// leaves orphans behind a missing session.
func (m *MongoStore) DeleteSession(ctx context.Context, id string) error {
	ctx, done, err := m.op(ctx)
	if err != nil {
		return err
	}
	defer done()

	if _, err := m.areas.DeleteMany(ctx, bson.M{"session_id": id}); err != nil {
		return err
	}
	if _, err := m.players.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return err
	}
	_, err = m.sessions.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (m *MongoStore) requireSession(ctx context.Context, id string) error {
	n, err := m.sessions.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (m *MongoStore) SaveArea(ctx context.Context, sessionID string, a *world.Area) error {
	data, err := encodeArea(a)
	if err != nil {
		return err
	}
	ctx, done, err := m.op(ctx)
	if err != nil {
		return err
	}
	defer done()

	if err := m.requireSession(ctx, sessionID); err != nil {
		return err
	}
	filter := bson.M{"session_id": sessionID, "area_id": a.ID}
	doc := areaDoc{SessionID: sessionID, AreaID: a.ID, Data: string(data)}
	_, err = m.areas.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	return err
}

// SaveGeneration writes areas and session inside a transaction. Standalone
// servers reject transactions (IllegalOperation), then the writes run in
// sequence with the session last.
func (m *MongoStore) SaveGeneration(ctx context.Context, s *world.Session, areas ...*world.Area) error {
	docs := make([]areaDoc, len(areas))
	for i, a := range areas {
		data, err := encodeArea(a)
		if err != nil {
			return err
		}
		docs[i] = areaDoc{SessionID: s.ID, AreaID: a.ID, Data: string(data)}
	}
	ctx, done, err := m.op(ctx)
	if err != nil {
		return err
	}
	defer done()

	sess, err := m.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, m.writeGeneration(sc, s, docs)
	})
	if isTransactionUnsupported(err) {
		return m.writeGeneration(ctx, s, docs)
	}
	return err
}

func (m *MongoStore) writeGeneration(ctx context.Context, s *world.Session, docs []areaDoc) error {
	if err := m.requireSession(ctx, s.ID); err != nil {
		return err
	}
	for _, doc := range docs {
		filter := bson.M{"session_id": doc.SessionID, "area_id": doc.AreaID}
		if _, err := m.areas.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true)); err != nil {
			return err
		}
	}
	res, err := m.sessions.ReplaceOne(ctx, bson.M{"_id": s.ID}, toSessionDoc(s))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// isTransactionUnsupported matches the IllegalOperation error a standalone
// mongod returns for transaction numbers.
func isTransactionUnsupported(err error) bool {
	var ce mongo.CommandError
	return errors.As(err, &ce) && ce.Code == 20
}

func (m *MongoStore) GetArea(ctx context.Context, sessionID, areaID string) (*world.Area, bool, error) {
	ctx, done, err := m.op(ctx)
	if err != nil {
		return nil, false, err
	}
	defer done()

	var doc areaDoc
	err = m.areas.FindOne(ctx, bson.M{"session_id": sessionID, "area_id": areaID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	a, err := decodeArea([]byte(doc.Data))
	if err != nil {
		return nil, false, err
	}
	return a, true, nil
}

func (m *MongoStore) GetAreasForSession(ctx context.Context, sessionID string) ([]*world.Area, error) {
	ctx, done, err := m.op(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	cur, err := m.areas.Find(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []areaDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*world.Area, 0, len(docs))
	for _, d := range docs {
		a, err := decodeArea([]byte(d.Data))
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	sortAreas(out)
	return out, nil
}

func (m *MongoStore) SavePlayerState(ctx context.Context, sessionID string, ps *world.PlayerState) error {
	data, err := encodePlayer(ps)
	if err != nil {
		return err
	}
	ctx, done, err := m.op(ctx)
	if err != nil {
		return err
	}
	defer done()

	if err := m.requireSession(ctx, sessionID); err != nil {
		return err
	}
	doc := playerDoc{SessionID: sessionID, Data: string(data), UpdatedAtMs: world.Now().UnixMilli()}
	_, err = m.players.ReplaceOne(ctx, bson.M{"_id": sessionID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (m *MongoStore) LoadPlayerState(ctx context.Context, sessionID string) (*world.PlayerState, bool, error) {
	ctx, done, err := m.op(ctx)
	if err != nil {
		return nil, false, err
	}
	defer done()

	var doc playerDoc
	err = m.players.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	ps, err := decodePlayer([]byte(doc.Data))
	if err != nil {
		return nil, false, err
	}
	return ps, true, nil
}
