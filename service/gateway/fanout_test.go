package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizlink/tools/security"
)

func TestFanoutDeliversToAllClients(t *testing.T) {
	f := NewFanout(2, 8)
	defer f.Close()

	a := newTestClient("c-a", "a")
	b := newTestClient("c-b", "b")
	f.Broadcast([]*Client{a, b}, []byte(`{"event":"new_notification"}`))

	for _, c := range []*Client{a, b} {
		select {
		case <-c.Send:
		case <-time.After(time.Second):
			t.Fatalf("conn %s got nothing", c.ConnID)
		}
	}
}

func TestFanoutBroadcastAfterCloseIsDropped(t *testing.T) {
	f := NewFanout(2, 8)
	c := newTestClient("c-1", "u1")

	f.Close()
	assert.NotPanics(t, func() {
		f.Broadcast([]*Client{c}, []byte("late"))
	})
	assert.NotPanics(t, f.Close, "Close is idempotent")
}

func TestDisconnectDuringShutdownDoesNotPanic(t *testing.T) {
	s := newAuthServer(t, security.DefaultOptions([]byte("test-secret")))

	a := NewClient("c-a", "alice", "alice@example.com", "member", nil, 32)
	b := NewClient("c-b", "bob", "bob@example.com", "member", nil, 32)
	s.onConnect(a)
	s.onConnect(b)

	// shutdown already stopped the pool, but alice's read loop is still
	// unwinding and runs its disconnect with offline=true
	s.fanout.Close()
	require.NotPanics(t, func() { s.onDisconnect("c-a") })
	require.NotPanics(t, func() { s.notifier.Broadcast(NotificationInput{Title: "bye"}) })
}
