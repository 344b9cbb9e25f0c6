package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/covidtrack/apiserver/internal/store"
	"github.com/covidtrack/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeUserRepo struct {
	mu     sync.Mutex
	users  []types.User
	getErr error
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return types.User{}, r.getErr
	}
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	user.ID = len(r.users) + 1
	r.users = append(r.users, user)
	return user, nil
}

func newTestUserService(repo UserRepository) *UserService {
	return NewUserService(repo, WithHashCost(bcrypt.MinCost))
}

func TestUserService_RegisterHashesPassword(t *testing.T) {
	repo := &fakeUserRepo{}
	svc := newTestUserService(repo)

	user, err := svc.Register(context.Background(), "  Alice@Example.COM ", " Alice ", "hunter22")
	require.NoError(t, err)

	assert.Equal(t, 1, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "Alice", user.Name)
	assert.NotEqual(t, "hunter22", user.PasswordHash)
	assert.True(t, svc.VerifySecret(user, "hunter22"))
	assert.False(t, svc.VerifySecret(user, "hunter23"))
	require.Len(t, repo.users, 1)
}

func TestUserService_SaltsEachDigest(t *testing.T) {
	svc := newTestUserService(&fakeUserRepo{})

	a, err := svc.Register(context.Background(), "a@example.com", "A", "same-password")
	require.NoError(t, err)
	b, err := svc.Register(context.Background(), "b@example.com", "B", "same-password")
	require.NoError(t, err)

	assert.NotEqual(t, a.PasswordHash, b.PasswordHash)
}

func TestUserService_RegisterDuplicateEmail(t *testing.T) {
	repo := &fakeUserRepo{}
	svc := newTestUserService(repo)

	_, err := svc.Register(context.Background(), "alice@example.com", "Alice", "hunter22")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "ALICE@example.com", "Other", "password")
	assert.ErrorIs(t, err, store.ErrDuplicate)
	assert.Len(t, repo.users, 1)
}

func TestUserService_RegisterLookupFailure(t *testing.T) {
	svc := newTestUserService(&fakeUserRepo{getErr: errors.New("db down")})

	_, err := svc.Register(context.Background(), "alice@example.com", "Alice", "hunter22")
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrDuplicate)
}

func TestUserService_Authenticate(t *testing.T) {
	svc := newTestUserService(&fakeUserRepo{})
	registered, err := svc.Register(context.Background(), "alice@example.com", "Alice", "hunter22")
	require.NoError(t, err)

	user, err := svc.Authenticate(context.Background(), "Alice@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)

	_, err = svc.Authenticate(context.Background(), "alice@example.com", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(context.Background(), "ghost@example.com", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("alice@example.com"))
	for _, email := range []string{"", "alice", "@example.com", "alice@", "a b@example.com", "Alice <alice@example.com>"} {
		assert.False(t, ValidEmail(email), email)
	}
}

func TestValidateRegistration(t *testing.T) {
	assert.Empty(t, ValidateRegistration("alice@example.com", "Alice", "hunter22"))
	assert.Equal(t, "valid email is required", ValidateRegistration("alice", "Alice", "hunter22"))
	assert.Equal(t, "valid email is required", ValidateRegistration("Alice <alice@example.com>", "Alice", "hunter22"))
	assert.Equal(t, "name is required", ValidateRegistration("alice@example.com", "  ", "hunter22"))
	assert.Equal(t, "password must be at least 6 characters", ValidateRegistration("alice@example.com", "Alice", "12345"))
}
