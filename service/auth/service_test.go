package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizlink/service/storage"
	"bizlink/tools/security"
)

type fakeCredStore struct {
	byEmail map[string]*storage.User
	byID    map[string]*storage.User

	// hideFromLookup makes GetUserByEmail miss rows that CreateUser still
	// conflicts on, like a concurrent insert landing between the two.
	hideFromLookup bool
}

func newFakeCredStore() *fakeCredStore {
	return &fakeCredStore{
		byEmail: map[string]*storage.User{},
		byID:    map[string]*storage.User{},
	}
}

func (f *fakeCredStore) GetUserByEmail(_ context.Context, email string) (*storage.User, error) {
	u, ok := f.byEmail[email]
	if !ok || f.hideFromLookup {
		return nil, storage.ErrNotFound
	}
	return u, nil
}

func (f *fakeCredStore) GetUserByID(_ context.Context, id string) (*storage.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return u, nil
}

func (f *fakeCredStore) CreateUser(_ context.Context, u *storage.User) error {
	if _, ok := f.byEmail[u.Email]; ok {
		return storage.ErrDuplicate
	}
	f.byEmail[u.Email] = u
	f.byID[u.ID] = u
	return nil
}

func newTestService() (*Service, *fakeCredStore) {
	creds := newFakeCredStore()
	return NewService(creds, security.DefaultOptions([]byte("test-secret"))), creds
}

func TestRegisterAndLogin(t *testing.T) {
	svc, creds := newTestService()
	ctx := context.Background()

	u, pair, err := svc.Register(ctx, "a@example.com", "pw123456", "Alice", "")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "member", u.Type)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEqual(t, "pw123456", creds.byEmail["a@example.com"].PasswordHash)

	got, loginPair, err := svc.Login(ctx, "a@example.com", "pw123456")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.NotEmpty(t, loginPair.RefreshToken)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "a@example.com", "pw123456", "Alice", "member")
	require.NoError(t, err)

	_, _, err = svc.Register(ctx, "a@example.com", "other-pass", "Imposter", "member")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterRacingDuplicateMapsToEmailTaken(t *testing.T) {
	svc, creds := newTestService()
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "a@example.com", "pw123456", "Alice", "member")
	require.NoError(t, err)

	// second registration passes the email pre-check but loses the insert
	creds.hideFromLookup = true
	_, _, err = svc.Register(ctx, "a@example.com", "other-pass", "Imposter", "member")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "a@example.com", "pw123456", "Alice", "member")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "a@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "nobody@example.com", "pw123456")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshRotatesPair(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	u, pair, err := svc.Register(ctx, "a@example.com", "pw123456", "Alice", "mentor")
	require.NoError(t, err)

	got, next, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.NotEmpty(t, next.AccessToken)
	assert.NotEmpty(t, next.RefreshToken)

	claims, err := security.Verify(security.DefaultOptions([]byte("test-secret")), next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "mentor", claims.UserType)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, "a@example.com", "pw123456", "Alice", "member")
	require.NoError(t, err)

	// an access token must not pass as a refresh token
	_, _, err = svc.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidRefresh)

	_, _, err = svc.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestRefreshRejectsDeletedUser(t *testing.T) {
	svc, creds := newTestService()
	ctx := context.Background()

	u, pair, err := svc.Register(ctx, "a@example.com", "pw123456", "Alice", "member")
	require.NoError(t, err)

	delete(creds.byID, u.ID)
	_, _, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefresh)
}
