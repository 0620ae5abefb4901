package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, jetstream bool) *EmbeddedServer {
	t.Helper()
	storeDir := ""
	if jetstream {
		storeDir = t.TempDir()
	}
	srv, err := StartEmbeddedServer("127.0.0.1", 0, storeDir)
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestNATSBus_Core(t *testing.T) {
	srv := startServer(t, false)

	bus, err := NewNATSBus(NATSConfig{URL: srv.ClientURL()})
	require.NoError(t, err)
	defer bus.Close()

	var c collector
	_, err = bus.Subscribe(context.Background(), Filter{Types: []string{TypeAreaGenerated}}, c.handle)
	require.NoError(t, err)

	ev, err := NewEnvelope(TypeAreaGenerated, "world", "s1", areaPayload{SessionID: "s1", AreaID: "a7"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), ev))

	other, _ := NewEnvelope(TypeSessionDeleted, "game", "s1", nil)
	require.NoError(t, bus.Publish(context.Background(), other))

	require.Eventually(t, func() bool { return c.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	got := c.first()
	assert.Equal(t, ev.ID, got.ID)
	var p areaPayload
	require.NoError(t, got.Decode(&p))
	assert.Equal(t, "a7", p.AreaID)

	assert.Equal(t, uint64(2), bus.Metrics().Published)
}

func TestNATSBus_SourceFilter(t *testing.T) {
	srv := startServer(t, false)

	bus, err := NewNATSBus(NATSConfig{URL: srv.ClientURL()})
	require.NoError(t, err)
	defer bus.Close()

	var c collector
	_, err = bus.Subscribe(context.Background(), Filter{Sources: []string{"game"}}, c.handle)
	require.NoError(t, err)

	fromWorld, _ := NewEnvelope(TypeAreaGenerated, "world", "s1", nil)
	fromGame, _ := NewEnvelope(TypeSessionCreated, "game", "s1", nil)
	require.NoError(t, bus.Publish(context.Background(), fromWorld))
	require.NoError(t, bus.Publish(context.Background(), fromGame))

	require.Eventually(t, func() bool { return c.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, TypeSessionCreated, c.first().EventType)
}

func TestNATSBus_JetStream(t *testing.T) {
	srv := startServer(t, true)

	bus, err := NewNATSBus(NATSConfig{URL: srv.ClientURL(), JetStream: true, Stream: "TEST_EVENTS"})
	require.NoError(t, err)
	defer bus.Close()

	var c collector
	_, err = bus.Subscribe(context.Background(), Filter{Types: []string{TypeStateSynced}}, c.handle)
	require.NoError(t, err)

	ev, _ := NewEnvelope(TypeStateSynced, "game", "s1", nil)
	require.NoError(t, bus.Publish(context.Background(), ev))

	require.Eventually(t, func() bool { return c.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, ev.ID, c.first().ID)
}
