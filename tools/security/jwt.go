package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Options controls signing and TTLs.
type Options struct {
	Secret     []byte        // HMAC key (from ENV/KMS in production)
	Alg        string        // HS256/HS384/HS512 (default HS256)
	AccessTTL  time.Duration // access token lifetime (default 15m)
	RefreshTTL time.Duration // refresh token lifetime (default 7d)
}

func DefaultOptions(secret []byte) Options {
	return Options{Secret: secret, Alg: "HS256", AccessTTL: 15 * time.Minute, RefreshTTL: 7 * 24 * time.Hour}
}

func (o *Options) norm() {
	if o.AccessTTL <= 0 {
		o.AccessTTL = 15 * time.Minute
	}
	if o.RefreshTTL <= 0 {
		o.RefreshTTL = 7 * 24 * time.Hour
	}
}

// Claims is the identity attached to a verified token.
type Claims struct {
	UserID   string
	Email    string
	UserType string
	Kind     string // "access" | "refresh"
	ExpireAt time.Time
}

// TokenPair is a freshly signed access/refresh pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // access token expiry
}

var (
	ErrExpired = errors.New("token expired")
	ErrInvalid = errors.New("invalid token")
)

// GeneratePair signs a new access/refresh pair for the given identity.
func GeneratePair(opts Options, userID, email, userType string) (TokenPair, error) {
	opts.norm()
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return TokenPair{}, err
	}
	now := time.Now()
	accessExp := now.Add(opts.AccessTTL)

	access, err := sign(method, opts.Secret, jwtlib.MapClaims{
		"sub":   userID,
		"email": email,
		"typ":   userType,
		"kind":  "access",
		"iat":   now.Unix(),
		"nbf":   now.Unix(),
		"exp":   accessExp.Unix(),
	})
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := sign(method, opts.Secret, jwtlib.MapClaims{
		"sub":  userID,
		"kind": "refresh",
		"iat":  now.Unix(),
		"nbf":  now.Unix(),
		"exp":  now.Add(opts.RefreshTTL).Unix(),
	})
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: accessExp}, nil
}

// Verify parses and validates a token. Expired tokens come back as ErrExpired
// so callers can tell "refresh-worthy" from "fatal".
func Verify(opts Options, token string) (*Claims, error) {
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		// HMAC family only
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return opts.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}
	if !parsed.Valid {
		return nil, ErrInvalid
	}
	mc, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, ErrInvalid
	}

	c := &Claims{}
	if v, ok := mc["sub"].(string); ok {
		c.UserID = v
	}
	if v, ok := mc["email"].(string); ok {
		c.Email = v
	}
	if v, ok := mc["typ"].(string); ok {
		c.UserType = v
	}
	if v, ok := mc["kind"].(string); ok {
		c.Kind = v
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpireAt = exp.Time
	}
	if c.UserID == "" {
		return nil, ErrInvalid
	}
	return c, nil
}

func sign(method jwtlib.SigningMethod, secret []byte, claims jwtlib.MapClaims) (string, error) {
	return jwtlib.NewWithClaims(method, claims).SignedString(secret)
}

func signingMethod(alg string) (jwtlib.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwtlib.SigningMethodHS256, nil
	case "HS384":
		return jwtlib.SigningMethodHS384, nil
	case "HS512":
		return jwtlib.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported alg: %s (use HS256/HS384/HS512)", alg)
	}
}
