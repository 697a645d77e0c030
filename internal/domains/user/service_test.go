package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xpanvictor/xarvis-gateway/internal/protocol"
	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
	"golang.org/x/crypto/bcrypt"
)

type mapKeyStore struct {
	keys map[string]string
	err  error
}

func (m mapKeyStore) LookupKey(_ context.Context, key string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	uid, ok := m.keys[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return uid, nil
}

const secret = "test-secret"

func newAuth(t *testing.T, store KeyStore) Authenticator {
	t.Helper()
	repo := NewMemoryRepository()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), &Account{ID: "acct-1", Login: "Ada", PasswordHash: string(hash)}))

	return NewAuthenticator(Options{
		StaticKeys: []string{"static-key", ""},
		JWTSecret:  secret,
		Keys:       store,
		Accounts:   repo,
	}, Logger.NewNop())
}

func TestVerifyAPIKey(t *testing.T) {
	auth := newAuth(t, mapKeyStore{keys: map[string]string{"stored": "u-42"}})
	ctx := context.Background()

	res, err := auth.Verify(ctx, protocol.AuthAPIKey, "static-key", "")
	require.NoError(t, err)
	assert.True(t, res.Authenticated)
	assert.Equal(t, KeyUserID("static-key"), res.UserID)

	res, err = auth.Verify(ctx, protocol.AuthAPIKey, "stored", "")
	require.NoError(t, err)
	assert.Equal(t, "u-42", res.UserID)

	_, err = auth.Verify(ctx, protocol.AuthAPIKey, "nope", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Verify(ctx, protocol.AuthAPIKey, "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyAPIKeyStoreFailure(t *testing.T) {
	down := errors.New("connection refused")
	auth := newAuth(t, mapKeyStore{err: down})

	_, err := auth.Verify(context.Background(), protocol.AuthAPIKey, "whatever", "")
	assert.ErrorIs(t, err, down)

	// static keys never touch the store
	_, err = auth.Verify(context.Background(), protocol.AuthAPIKey, "static-key", "")
	assert.NoError(t, err)
}

func TestVerifyToken(t *testing.T) {
	auth := newAuth(t, nil)
	ctx := context.Background()

	tok, err := IssueToken(secret, "u-7", time.Hour)
	require.NoError(t, err)
	res, err := auth.Verify(ctx, protocol.AuthAPIKey, tok, "")
	require.NoError(t, err)
	assert.Equal(t, "u-7", res.UserID)

	expired, err := IssueToken(secret, "u-7", -time.Minute)
	require.NoError(t, err)
	_, err = auth.Verify(ctx, protocol.AuthAPIKey, expired, "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	forged, err := IssueToken("other-secret", "u-7", time.Hour)
	require.NoError(t, err)
	_, err = auth.Verify(ctx, protocol.AuthAPIKey, forged, "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyAccount(t *testing.T) {
	auth := newAuth(t, nil)
	ctx := context.Background()

	res, err := auth.Verify(ctx, protocol.AuthAccount, "ada", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", res.UserID)

	_, err = auth.Verify(ctx, protocol.AuthAccount, "ada", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Verify(ctx, protocol.AuthAccount, "bob", "hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Verify(ctx, protocol.AuthType("OAUTH"), "x", "")
	assert.ErrorIs(t, err, ErrUnsupportedAuth)
}

func TestMemoryRepository(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	a := &Account{Login: "Grace"}
	require.NoError(t, repo.Create(ctx, a))
	assert.NotEmpty(t, a.ID)
	assert.ErrorIs(t, repo.Create(ctx, &Account{Login: "grace"}), ErrLoginTaken)

	got, err := repo.GetByLogin(ctx, "GRACE")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = repo.GetByLogin(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("pw")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte("pw")))
}
