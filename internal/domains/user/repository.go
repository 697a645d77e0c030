package user

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Account is a login that can open gateway sessions with ACCOUNT auth.
type Account struct {
	ID           string
	Login        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccountRepository defines the account lookups the authenticator needs.
type AccountRepository interface {
	Create(ctx context.Context, a *Account) error
	GetByLogin(ctx context.Context, login string) (*Account, error)
}

// KeyStore resolves API keys issued outside the config file.
type KeyStore interface {
	// LookupKey returns the user id bound to key, or ErrKeyNotFound.
	LookupKey(ctx context.Context, key string) (string, error)
}

type memoryRepo struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

// NewMemoryRepository keeps accounts in process memory. Logins are
// case-insensitive.
func NewMemoryRepository() AccountRepository {
	return &memoryRepo{accounts: make(map[string]Account)}
}

func (m *memoryRepo) Create(_ context.Context, a *Account) error {
	key := strings.ToLower(a.Login)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[key]; ok {
		return ErrLoginTaken
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	m.accounts[key] = *a
	return nil
}

func (m *memoryRepo) GetByLogin(_ context.Context, login string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[strings.ToLower(login)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &a, nil
}
