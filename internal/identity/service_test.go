package identity

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type failingStore struct {
	err error
}

func (s *failingStore) Create(ctx context.Context, record *Record) error {
	return s.err
}

func (s *failingStore) FindByUsername(ctx context.Context, username string) (*Record, error) {
	return nil, s.err
}

func newTestService(store Store) *Service {
	return NewService(store, WithBcryptCost(bcrypt.MinCost))
}

func TestRegisterIdentityStoresHash(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store)

	identity, err := svc.RegisterIdentity(context.Background(), validRegistration())
	require.NoError(t, err)
	assert.NotEmpty(t, identity.ID)
	assert.Equal(t, "bob", identity.Username)
	assert.Equal(t, "bob@example.com", identity.Email)
	assert.False(t, identity.CreatedAt.IsZero())

	record, err := store.FindByUsername(context.Background(), "BOB")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", record.PasswordHash)
	assert.Equal(t, HashVersionBcrypt, record.HashVersion)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte("correct horse")))
}

func TestRegisterIdentityDuplicate(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	ctx := context.Background()

	_, err := svc.RegisterIdentity(ctx, validRegistration())
	require.NoError(t, err)

	_, err = svc.RegisterIdentity(ctx, validRegistration())
	require.Error(t, err)

	var regErr *RegistrationError
	require.True(t, errors.As(err, &regErr))
	assert.True(t, regErr.IsDuplicate())
	assert.ErrorIs(t, err, ErrDuplicateIdentity)
	assert.Equal(t, "bob", regErr.Username)
}

func TestRegisterIdentityStoreFailure(t *testing.T) {
	boom := errors.New("connection refused")
	svc := newTestService(&failingStore{err: boom})

	_, err := svc.RegisterIdentity(context.Background(), validRegistration())

	var regErr *RegistrationError
	require.True(t, errors.As(err, &regErr))
	assert.False(t, regErr.IsDuplicate())
	assert.ErrorIs(t, err, boom)
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	ctx := context.Background()
	_, err := svc.RegisterIdentity(ctx, validRegistration())
	require.NoError(t, err)

	t.Run("correct passphrase", func(t *testing.T) {
		identity, err := svc.Authenticate(ctx, "bob", "correct horse")
		require.NoError(t, err)
		assert.Equal(t, "bob", identity.Username)
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "bob", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "alice", "correct horse")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("store failure is not a credential error", func(t *testing.T) {
		broken := newTestService(&failingStore{err: errors.New("timeout")})
		_, err := broken.Authenticate(ctx, "bob", "correct horse")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestRequestsOmitPassphraseInJSON(t *testing.T) {
	data, err := json.Marshal(validRegistration())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "correct horse")
	assert.Contains(t, string(data), `"username":"bob"`)

	data, err = json.Marshal(LoginRequest{Username: "bob", Passphrase: "secret"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"username":"bob"}`, string(data))
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(NewMemoryStore())
	_, err := svc.RegisterIdentity(ctx, validRegistration())
	require.NoError(t, err)

	ok, err := svc.Exists(ctx, "Bob")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Exists(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)

	boom := errors.New("connection refused")
	_, err = newTestService(&failingStore{err: boom}).Exists(ctx, "bob")
	assert.ErrorIs(t, err, boom)
}
