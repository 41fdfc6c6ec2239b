// Package auth issues and renews the access/refresh token pairs the gateway
// handshake and the client-side refresh coordinator consume.
package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"bizlink/service/storage"
	"bizlink/tools/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidRefresh     = errors.New("invalid or expired refresh token")
)

type Service struct {
	creds storage.CredentialStore
	jwt   security.Options
}

func NewService(creds storage.CredentialStore, jwt security.Options) *Service {
	return &Service{creds: creds, jwt: jwt}
}

func (s *Service) Register(ctx context.Context, email, password, name, userType string) (*storage.User, security.TokenPair, error) {
	if existing, err := s.creds.GetUserByEmail(ctx, email); err == nil && existing != nil {
		return nil, security.TokenPair{}, ErrEmailTaken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, security.TokenPair{}, err
	}
	if userType == "" {
		userType = "member"
	}
	u := &storage.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Type:         userType,
		PasswordHash: string(hash),
	}
	if err := s.creds.CreateUser(ctx, u); err != nil {
		// the email pre-check is racy; the insert's unique key is the truth
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, security.TokenPair{}, ErrEmailTaken
		}
		return nil, security.TokenPair{}, err
	}
	pair, err := security.GeneratePair(s.jwt, u.ID, u.Email, u.Type)
	return u, pair, err
}

func (s *Service) Login(ctx context.Context, email, password string) (*storage.User, security.TokenPair, error) {
	u, err := s.creds.GetUserByEmail(ctx, email)
	if err != nil || u == nil {
		return nil, security.TokenPair{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, security.TokenPair{}, ErrInvalidCredentials
	}
	pair, err := security.GeneratePair(s.jwt, u.ID, u.Email, u.Type)
	return u, pair, err
}

// Refresh validates a refresh token and rotates the pair. Any verification
// failure is terminal for the session; the client clears its credentials.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*storage.User, security.TokenPair, error) {
	claims, err := security.Verify(s.jwt, refreshToken)
	if err != nil || claims.Kind != "refresh" {
		return nil, security.TokenPair{}, ErrInvalidRefresh
	}
	u, err := s.creds.GetUserByID(ctx, claims.UserID)
	if err != nil || u == nil {
		return nil, security.TokenPair{}, ErrInvalidRefresh
	}
	pair, err := security.GeneratePair(s.jwt, u.ID, u.Email, u.Type)
	return u, pair, err
}
