package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizlink/service/storage"
	"bizlink/tools/errs"
)

type fakeNotificationStore struct {
	mu         sync.Mutex
	inserted   []*storage.Notification
	read       map[string]bool
	markCalls  int
	failWrites bool
}

func newFakeNotificationStore() *fakeNotificationStore {
	return &fakeNotificationStore{read: make(map[string]bool)}
}

func (f *fakeNotificationStore) InsertNotification(_ context.Context, n *storage.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errors.New("store down")
	}
	cp := *n
	f.inserted = append(f.inserted, &cp)
	return nil
}

func (f *fakeNotificationStore) MarkNotificationRead(_ context.Context, _, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errors.New("store down")
	}
	f.markCalls++
	f.read[id] = true
	return nil
}

func (f *fakeNotificationStore) ListNotifications(_ context.Context, _ string, _ storage.NotificationQuery) (*storage.NotificationPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return nil, errors.New("store down")
	}
	items := make([]storage.Notification, 0, len(f.inserted))
	for _, n := range f.inserted {
		items = append(items, *n)
	}
	return &storage.NotificationPage{Items: items, Total: len(items)}, nil
}

func (f *fakeNotificationStore) markedCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markCalls
}

func newTestNotifier(m *ConnManager, store storage.NotificationStore) *NotificationFanout {
	return NewNotificationFanout(m, NewFanout(2, 64), store, storage.NewHealth(), nil)
}

func TestNotifyDeliversAndPersists(t *testing.T) {
	m := newTestManager()
	defer m.Close()
	bob := newTestClient("c-bob", "bob")
	m.Add(bob)

	store := newFakeNotificationStore()
	n := newTestNotifier(m, store)

	rec, err := n.Notify("bob", NotificationInput{Title: "T", Message: "M", FromUserID: "alice"})
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	assert.Equal(t, "general", rec.Type)
	assert.False(t, rec.Read)

	env := recvFrame(t, bob)
	assert.Equal(t, EvtNewNotification, env.Event)
	var got storage.Notification
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "T", got.Title)
	assert.Equal(t, "alice", got.FromUserID)

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.inserted) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestNotifyStoreDownStillDelivers(t *testing.T) {
	m := newTestManager()
	defer m.Close()
	x := newTestClient("c-x", "x")
	m.Add(x)

	store := newFakeNotificationStore()
	store.failWrites = true
	n := newTestNotifier(m, store)

	rec, err := n.Notify("x", NotificationInput{Title: "T", Message: "M"})
	require.NoError(t, err, "persistence failure must not surface")
	require.NotEmpty(t, rec.ID)

	env := recvFrame(t, x)
	assert.Equal(t, EvtNewNotification, env.Event)
	var got storage.Notification
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "T", got.Title)
}

func TestNotifyRejectsMissingRecipient(t *testing.T) {
	m := newTestManager()
	defer m.Close()
	n := newTestNotifier(m, nil)

	_, err := n.Notify("", NotificationInput{Title: "T"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrBadPayload))
}

func TestNotifyManyContinuesPastFailures(t *testing.T) {
	m := newTestManager()
	defer m.Close()
	bob := newTestClient("c-bob", "bob")
	carol := newTestClient("c-carol", "carol")
	m.Add(bob)
	m.Add(carol)

	n := newTestNotifier(m, nil)
	recs := n.NotifyMany([]string{"bob", "", "carol"}, NotificationInput{Title: "T"})
	assert.Len(t, recs, 2, "empty recipient skipped, rest delivered")

	assert.Equal(t, EvtNewNotification, recvFrame(t, bob).Event)
	assert.Equal(t, EvtNewNotification, recvFrame(t, carol).Event)
}

func TestBroadcastReachesEveryConnectedClientExactlyOnce(t *testing.T) {
	m := newTestManager()
	defer m.Close()
	a := newTestClient("c-a", "a")
	b := newTestClient("c-b", "b")
	gone := newTestClient("c-gone", "gone")
	m.Add(a)
	m.Add(b)
	m.Add(gone)
	m.Remove("c-gone")

	// connected just before the broadcast: still included
	late := newTestClient("c-late", "late")
	m.Add(late)

	n := newTestNotifier(m, nil)
	rec := n.Broadcast(NotificationInput{Title: "maintenance", Message: "tonight"})
	require.NotEmpty(t, rec.ID)
	assert.Empty(t, rec.RecipientID, "broadcasts are not attributed to a recipient")

	for _, c := range []*Client{a, b, late} {
		env := recvFrame(t, c)
		assert.Equal(t, EvtNewNotification, env.Event)
		requireNoFrame(t, c)
	}
	requireNoFrame(t, gone)
}

func TestMarkNotificationReadIsIdempotent(t *testing.T) {
	m := newTestManager()
	defer m.Close()

	store := newFakeNotificationStore()
	n := newTestNotifier(m, store)

	require.NoError(t, n.MarkRead("bob", "n-1"))
	require.Eventually(t, func() bool { return store.markedCalls() == 1 },
		time.Second, 10*time.Millisecond)

	// second mark: no error, read stays true
	require.NoError(t, n.MarkRead("bob", "n-1"))
	require.Eventually(t, func() bool { return store.markedCalls() == 2 },
		time.Second, 10*time.Millisecond)
	store.mu.Lock()
	assert.True(t, store.read["n-1"])
	store.mu.Unlock()
}

func TestMarkNotificationReadRequiresID(t *testing.T) {
	m := newTestManager()
	defer m.Close()
	n := newTestNotifier(m, newFakeNotificationStore())
	err := n.MarkRead("bob", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrBadPayload))
}

func TestListDegradesToEmptyPage(t *testing.T) {
	m := newTestManager()
	defer m.Close()

	// no store at all
	n := newTestNotifier(m, nil)
	page, degraded := n.List(context.Background(), "bob", storage.NotificationQuery{})
	assert.True(t, degraded)
	assert.Empty(t, page.Items)

	// store erroring
	store := newFakeNotificationStore()
	store.failWrites = true
	n = newTestNotifier(m, store)
	page, degraded = n.List(context.Background(), "bob", storage.NotificationQuery{})
	assert.True(t, degraded)
	assert.Empty(t, page.Items)
}

func TestConnectionRequestCopy(t *testing.T) {
	m := newTestManager()
	defer m.Close()
	bob := newTestClient("c-bob", "bob")
	m.Add(bob)

	n := newTestNotifier(m, nil)
	rec, err := n.ConnectionRequest("alice", "Alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "connection_request", rec.Type)
	assert.Contains(t, rec.Message, "Alice")
	assert.Equal(t, "alice", rec.FromUserID)
}

func TestOpportunityUpdateActionTable(t *testing.T) {
	m := newTestManager()
	defer m.Close()
	bob := newTestClient("c-bob", "bob")
	m.Add(bob)

	n := newTestNotifier(m, nil)

	for _, action := range []string{"apply", "accept", "reject"} {
		rec, err := n.OpportunityUpdate("alice", "bob", "opp-1", action)
		require.NoError(t, err, action)
		assert.Equal(t, "opportunity", rec.Type)
		assert.Equal(t, action, rec.Payload["action"])
	}

	_, err := n.OpportunityUpdate("alice", "bob", "opp-1", "withdraw")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrBadPayload))
}
