package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNoTokenSecret = errors.New("token issuing is not configured")
	ErrNoKeyStore    = errors.New("api key store is not configured")
)

// SignUpRequest creates an account usable with ACCOUNT auth.
type SignUpRequest struct {
	Login       string `json:"login" binding:"required,min=3,max=64"`
	Password    string `json:"password" binding:"required,min=8,max=72"`
	DisplayName string `json:"display_name" binding:"max=128"`
}

type LoginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AccountResponse struct {
	ID          string    `json:"id"`
	Login       string    `json:"login"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TokenResponse carries a gateway token. The token is accepted as an
// API_KEY credential in REGISTER.
type TokenResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// KeyIssuer manages API keys that live outside the config file.
type KeyIssuer interface {
	KeyStore
	Issue(ctx context.Context, key, userID string) error
	Revoke(ctx context.Context, key string) error
}

// AccountService backs the account REST surface.
type AccountService interface {
	SignUp(ctx context.Context, req SignUpRequest) (*AccountResponse, error)
	Login(ctx context.Context, req LoginRequest) (*TokenResponse, error)
	ValidateToken(tokenString string) (*Claims, error)
	IssueKey(ctx context.Context, userID string) (string, error)
	RevokeKey(ctx context.Context, userID, key string) error
}

type accountService struct {
	repo     AccountRepository
	keys     KeyIssuer
	secret   []byte
	tokenTTL time.Duration
	logger   *Logger.Logger
}

// NewAccountService wires the account service. keys may be nil, which
// disables key management; an empty secret disables token login.
func NewAccountService(repo AccountRepository, keys KeyIssuer, secret string, tokenTTL time.Duration, logger *Logger.Logger) AccountService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	var s []byte
	if secret != "" {
		s = []byte(secret)
	}
	return &accountService{
		repo:     repo,
		keys:     keys,
		secret:   s,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

func (s *accountService) SignUp(ctx context.Context, req SignUpRequest) (*AccountResponse, error) {
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	acct := &Account{
		Login:        strings.TrimSpace(req.Login),
		DisplayName:  req.DisplayName,
		PasswordHash: hash,
	}
	if err := s.repo.Create(ctx, acct); err != nil {
		if errors.Is(err, ErrLoginTaken) {
			return nil, ErrLoginTaken
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	s.logger.Infof("created account %s (%s)", acct.ID, acct.Login)
	return &AccountResponse{
		ID:          acct.ID,
		Login:       acct.Login,
		DisplayName: acct.DisplayName,
		CreatedAt:   acct.CreatedAt,
	}, nil
}

func (s *accountService) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	if s.secret == nil {
		return nil, ErrNoTokenSecret
	}
	acct, err := s.repo.GetByLogin(ctx, req.Login)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := IssueToken(string(s.secret), acct.ID, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &TokenResponse{
		Token:     token,
		UserID:    acct.ID,
		ExpiresAt: time.Now().Add(s.tokenTTL),
	}, nil
}

func (s *accountService) ValidateToken(tokenString string) (*Claims, error) {
	if s.secret == nil {
		return nil, ErrInvalidToken
	}
	return parseToken(s.secret, tokenString)
}

// IssueKey mints a new API key bound to userID.
func (s *accountService) IssueKey(ctx context.Context, userID string) (string, error) {
	if s.keys == nil {
		return "", ErrNoKeyStore
	}
	key := "gk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := s.keys.Issue(ctx, key, userID); err != nil {
		return "", fmt.Errorf("failed to store key: %w", err)
	}
	return key, nil
}

// RevokeKey removes key if it belongs to userID.
func (s *accountService) RevokeKey(ctx context.Context, userID, key string) error {
	if s.keys == nil {
		return ErrNoKeyStore
	}
	owner, err := s.keys.LookupKey(ctx, key)
	if err != nil {
		return err
	}
	if owner != userID {
		return ErrKeyNotFound
	}
	return s.keys.Revoke(ctx, key)
}
