package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/covidtrack/apiserver/internal/store"
	"github.com/covidtrack/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

// UserService is the credential store: it registers users with a bcrypt
// digest of their password and checks candidate passwords against it.
type UserService struct {
	repo     UserRepository
	hashCost int
}

// UserOption customises a UserService.
type UserOption func(*UserService)

// WithHashCost overrides the bcrypt cost used for new digests.
func WithHashCost(cost int) UserOption {
	return func(s *UserService) {
		s.hashCost = cost
	}
}

func NewUserService(repo UserRepository, opts ...UserOption) *UserService {
	s := &UserService{repo: repo, hashCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email is a bare address such as
// "alice@example.com". Display-name forms are rejected.
func ValidEmail(email string) bool {
	if _, err := mail.ParseAddress(email); err != nil {
		return false
	}
	return !strings.ContainsAny(email, "<> ")
}

// ValidateRegistration returns a message describing the first invalid input,
// or an empty string.
func ValidateRegistration(email, name, password string) string {
	if !ValidEmail(email) {
		return "valid email is required"
	}
	if strings.TrimSpace(name) == "" {
		return "name is required"
	}
	if len(password) < minPasswordLength {
		return fmt.Sprintf("password must be at least %d characters", minPasswordLength)
	}
	return ""
}

// Register stores a new user. It returns store.ErrDuplicate when the email is
// already registered.
func (s *UserService) Register(ctx context.Context, email, name, password string) (types.User, error) {
	email = NormalizeEmail(email)

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return types.User{}, store.ErrDuplicate
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, fmt.Errorf("check user: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, types.User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hashed),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, err
		}
		return types.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *UserService) FindByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, NormalizeEmail(email))
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// VerifySecret reports whether candidate matches the user's stored digest.
func (s *UserService) VerifySecret(user types.User, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(candidate)) == nil
}

// Authenticate looks up the user by email and verifies the password.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	user, err := s.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, fmt.Errorf("find user: %w", err)
	}
	if !s.VerifySecret(user, password) {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}
