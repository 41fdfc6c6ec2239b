package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStore(t *testing.T, access, refresh string) TokenStore {
	t.Helper()
	store := NewMemoryTokenStore()
	require.NoError(t, store.Save(&Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(time.Minute),
	}))
	return store
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func authBody(access, refresh string) map[string]any {
	return map[string]any{
		"success": true,
		"user":    map[string]any{"id": "u1", "email": "u1@example.com"},
		"tokens": map[string]any{
			"accessToken":  access,
			"refreshToken": refresh,
			"expiresIn":    900,
		},
	}
}

func TestConcurrentExpiryIssuesOneRefresh(t *testing.T) {
	const n = 20

	var refreshCalls int64
	var arrived int64
	release := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer old-access":
			// Hold every first-round request until all n are in flight, so the
			// expiry responses land while the refresh is still pending.
			if atomic.AddInt64(&arrived, 1) == n {
				close(release)
			}
			select {
			case <-release:
			case <-time.After(2 * time.Second):
			}
			writeJSON(w, http.StatusUnauthorized, map[string]any{"code": "TOKEN_EXPIRED"})
		case "Bearer new-access":
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeJSON(w, http.StatusUnauthorized, map[string]any{"code": "INVALID_TOKEN"})
		}
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&refreshCalls, 1)
		time.Sleep(200 * time.Millisecond)
		writeJSON(w, http.StatusOK, authBody("new-access", "new-refresh"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := seedStore(t, "old-access", "r1")
	c, err := New(srv.URL, store)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errsCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var out map[string]any
			errsCh <- c.Request(context.Background(), http.MethodGet, "/api/ping", nil, &out)
		}()
	}
	wg.Wait()
	close(errsCh)

	for err := range errsCh {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, atomic.LoadInt64(&refreshCalls))

	s := c.Session()
	require.NotNil(t, s)
	assert.Equal(t, "new-access", s.AccessToken)
	assert.Equal(t, "new-refresh", s.RefreshToken)

	persisted, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "new-access", persisted.AccessToken)
}

func TestRefreshRejectionExpiresSession(t *testing.T) {
	const n = 8

	mux := http.NewServeMux()
	mux.HandleFunc("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"code": "TOKEN_EXPIRED"})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"code": "INVALID_TOKEN"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := seedStore(t, "old-access", "r1")
	c, err := New(srv.URL, store)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errsCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errsCh <- c.Request(context.Background(), http.MethodGet, "/api/ping", nil, nil)
		}()
	}
	wg.Wait()
	close(errsCh)

	for err := range errsCh {
		assert.ErrorIs(t, err, ErrSessionExpired)
	}

	assert.Nil(t, c.Session())
	persisted, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, persisted)
}

// saveFailStore loads a seeded session but rejects every save.
type saveFailStore struct {
	s *Session
}

func (f *saveFailStore) Load() (*Session, error) {
	if f.s == nil {
		return nil, nil
	}
	cp := *f.s
	return &cp, nil
}

func (f *saveFailStore) Save(*Session) error { return errors.New("disk full") }

func (f *saveFailStore) Clear() error {
	f.s = nil
	return nil
}

func TestRefreshPersistFailureExpiresSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"code": "TOKEN_EXPIRED"})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, authBody("new-access", "new-refresh"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := &saveFailStore{s: &Session{
		AccessToken:  "old-access",
		RefreshToken: "r1",
		ExpiresAt:    time.Now().Add(time.Minute),
	}}
	c, err := New(srv.URL, store)
	require.NoError(t, err)

	// refresh HTTP call succeeds, persisting the pair does not: same terminal
	// outcome as a rejected refresh
	err = c.Request(context.Background(), http.MethodGet, "/api/ping", nil, nil)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Nil(t, c.Session())
	assert.Nil(t, store.s)
}

func TestRequestRetriesAtMostOnce(t *testing.T) {
	var pings int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&pings, 1)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"code": "TOKEN_EXPIRED"})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, authBody("new-access", "new-refresh"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(srv.URL, seedStore(t, "old-access", "r1"))
	require.NoError(t, err)

	err = c.Request(context.Background(), http.MethodGet, "/api/ping", nil, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionExpired)
	assert.EqualValues(t, 2, atomic.LoadInt64(&pings))
}

func TestRequestWithoutSessionFailsFast(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"code": "TOKEN_EXPIRED"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(srv.URL, nil)
	require.NoError(t, err)

	err = c.Request(context.Background(), http.MethodGet, "/api/ping", nil, nil)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestLoginInstallsAndPersistsSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"success": false, "message": "invalid email or password",
			})
			return
		}
		writeJSON(w, http.StatusOK, authBody("acc-1", "ref-1"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := NewMemoryTokenStore()
	c, err := New(srv.URL, store)
	require.NoError(t, err)

	err = c.Login(context.Background(), "u1@example.com", "wrong")
	assert.EqualError(t, err, "invalid email or password")
	assert.Nil(t, c.Session())

	require.NoError(t, c.Login(context.Background(), "u1@example.com", "secret"))
	s := c.Session()
	require.NotNil(t, s)
	assert.Equal(t, "acc-1", s.AccessToken)

	persisted, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, "ref-1", persisted.RefreshToken)

	require.NoError(t, c.Logout())
	assert.Nil(t, c.Session())
	persisted, err = store.Load()
	require.NoError(t, err)
	assert.Nil(t, persisted)
}
