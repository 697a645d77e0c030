package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/xpanvictor/xarvis-gateway/internal/protocol"
	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrLoginTaken         = errors.New("login already exists")
	ErrKeyNotFound        = errors.New("api key not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUnsupportedAuth    = errors.New("unsupported auth type")
)

// AuthResult is the outcome of a successful credential check.
type AuthResult struct {
	UserID        string
	Authenticated bool
}

// Claims are carried by gateway tokens accepted as API keys.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// Authenticator verifies REGISTER credentials.
type Authenticator interface {
	Verify(ctx context.Context, authType protocol.AuthType, credential, password string) (AuthResult, error)
}

type Options struct {
	// StaticKeys are accepted as is; each maps to a stable derived user id.
	StaticKeys []string
	JWTSecret  string
	Keys       KeyStore
	Accounts   AccountRepository
}

type authService struct {
	static    map[string]string
	jwtSecret []byte
	keys      KeyStore
	accounts  AccountRepository
	logger    *Logger.Logger
}

func NewAuthenticator(opts Options, logger *Logger.Logger) Authenticator {
	static := make(map[string]string, len(opts.StaticKeys))
	for _, k := range opts.StaticKeys {
		if k != "" {
			static[k] = KeyUserID(k)
		}
	}
	var secret []byte
	if opts.JWTSecret != "" {
		secret = []byte(opts.JWTSecret)
	}
	return &authService{
		static:    static,
		jwtSecret: secret,
		keys:      opts.Keys,
		accounts:  opts.Accounts,
		logger:    logger,
	}
}

// KeyUserID derives the user id reported for a static API key.
func KeyUserID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("xarvis-gateway/api-key/"+key)).String()
}

// Verify implements Authenticator.
func (s *authService) Verify(ctx context.Context, authType protocol.AuthType, credential, password string) (AuthResult, error) {
	switch authType {
	case protocol.AuthAPIKey:
		return s.verifyKey(ctx, credential)
	case protocol.AuthAccount:
		return s.verifyAccount(ctx, credential, password)
	default:
		return AuthResult{}, fmt.Errorf("%w: %q", ErrUnsupportedAuth, authType)
	}
}

func (s *authService) verifyKey(ctx context.Context, key string) (AuthResult, error) {
	if key == "" {
		return AuthResult{}, ErrInvalidCredentials
	}
	if uid, ok := s.static[key]; ok {
		return AuthResult{UserID: uid, Authenticated: true}, nil
	}

	if s.keys != nil {
		uid, err := s.keys.LookupKey(ctx, key)
		switch {
		case err == nil:
			return AuthResult{UserID: uid, Authenticated: true}, nil
		case !errors.Is(err, ErrKeyNotFound):
			s.logger.Errorf("api key store lookup failed: %v", err)
			return AuthResult{}, fmt.Errorf("key lookup: %w", err)
		}
	}

	if s.jwtSecret != nil && strings.Count(key, ".") == 2 {
		claims, err := s.ValidateToken(key)
		if err != nil {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{UserID: claims.UserID, Authenticated: true}, nil
	}
	return AuthResult{}, ErrInvalidCredentials
}

func (s *authService) verifyAccount(ctx context.Context, login, password string) (AuthResult, error) {
	if s.accounts == nil {
		return AuthResult{}, fmt.Errorf("%w: no account store configured", ErrUnsupportedAuth)
	}
	acct, err := s.accounts.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		s.logger.Errorf("error getting account %s: %v", login, err)
		return AuthResult{}, fmt.Errorf("failed to get account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return AuthResult{}, ErrInvalidCredentials
	}
	return AuthResult{UserID: acct.ID, Authenticated: true}, nil
}

// ValidateToken checks an HS256 gateway token.
func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	return parseToken(s.jwtSecret, tokenString)
}

func parseToken(secret []byte, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueToken signs a gateway token for userID valid for ttl.
func IssueToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   userID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// HashPassword returns the bcrypt hash stored for an account.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}
