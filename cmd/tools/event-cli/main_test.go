package main

import (
	"context"
	"testing"
	"time"

	"github.com/annel0/descent/internal/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStringList(t *testing.T) {
	assert.Nil(t, parseStringList(""))
	assert.Equal(t, []string{"AreaGenerated", "StateSynced"}, parseStringList(" AreaGenerated, ,StateSynced "))
}

func TestFormatEvent(t *testing.T) {
	ev, err := eventbus.NewEnvelope(eventbus.TypeAreaGenerated, "world", "session-1", map[string]string{"areaId": "a-1"})
	require.NoError(t, err)

	out := formatEvent(ev)
	assert.Contains(t, out, "[AreaGenerated]")
	assert.Contains(t, out, "Session: session-1")
	assert.Contains(t, out, `{"areaId":"a-1"}`)

	opts := &TailOptions{SessionID: "other"}
	assert.False(t, opts.matches(ev))
	opts.SessionID = ""
	assert.True(t, opts.matches(ev))
}

func TestTailEventsFromEmbeddedNATS(t *testing.T) {
	srv, err := eventbus.StartEmbeddedServer("127.0.0.1", 0, "")
	require.NoError(t, err)
	defer srv.Shutdown()

	done := make(chan error, 1)
	go func() {
		done <- tailEvents(srv.ClientURL(), &TailOptions{EventTypes: []string{eventbus.TypeSessionCreated}, Limit: 1})
	}()

	pub, err := eventbus.NewNATSBus(eventbus.NATSConfig{URL: srv.ClientURL()})
	require.NoError(t, err)
	defer pub.Close()

	ev, err := eventbus.NewEnvelope(eventbus.TypeSessionCreated, "game", "s-1", struct{}{})
	require.NoError(t, err)

	// подписка в tailEvents появляется асинхронно, публикуем до получения
	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			require.NoError(t, err)
			return
		case <-ticker.C:
			require.NoError(t, pub.Publish(context.Background(), ev))
		case <-deadline:
			t.Fatal("tail не получил событие")
		}
	}
}
