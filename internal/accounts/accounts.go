// Package accounts registers users and verifies their passwords.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"finitefield.org/route-planner/internal/store"
)

const (
	maxUsernameLength = 64
	// bcrypt only hashes the first 72 bytes and rejects longer input.
	maxPasswordBytes = 72
)

var (
	// ErrUsernameTaken is returned when registering an existing username.
	ErrUsernameTaken = errors.New("accounts: username already exists")
	// ErrInvalidCredentials is returned for an unknown user or wrong password.
	ErrInvalidCredentials = errors.New("accounts: invalid username or password")
	// ErrMissingFields is returned when username or password is blank.
	ErrMissingFields = errors.New("accounts: username and password are required")
	// ErrUsernameTooLong is returned for usernames over the length limit.
	ErrUsernameTooLong = errors.New("accounts: username too long")
	// ErrPasswordTooLong is returned for passwords bcrypt cannot hash.
	ErrPasswordTooLong = errors.New("accounts: password too long")
)

// UserStore is the persistence the service needs.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (store.User, error)
	UserByUsername(ctx context.Context, username string) (store.User, error)
	UserByID(ctx context.Context, id int64) (store.User, error)
}

// Service implements registration and login.
type Service struct {
	users     UserStore
	cost      int
	logger    *zap.Logger
	dummyHash []byte
}

// Option customises the service.
type Option func(*Service)

// WithCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.cost = cost
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs the account service.
func NewService(users UserStore, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, errors.New("accounts: user store is required")
	}
	s := &Service{users: users, cost: bcrypt.DefaultCost, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	// Compared against for unknown users so both failure paths cost one bcrypt check.
	hash, err := bcrypt.GenerateFromPassword([]byte("route-planner"), s.cost)
	if err != nil {
		return nil, fmt.Errorf("accounts: prepare dummy hash: %w", err)
	}
	s.dummyHash = hash
	return s, nil
}

// Register creates a new account.
func (s *Service) Register(ctx context.Context, username, password string) (store.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return store.User{}, ErrMissingFields
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return store.User{}, ErrUsernameTooLong
	}
	if len(password) > maxPasswordBytes {
		return store.User{}, ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return store.User{}, fmt.Errorf("accounts: hash password: %w", err)
	}
	user, err := s.users.CreateUser(ctx, username, string(hash))
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			return store.User{}, ErrUsernameTaken
		}
		return store.User{}, err
	}
	s.logger.Info("user registered", zap.Int64("user_id", user.ID))
	return user, nil
}

// Authenticate verifies the password and returns the user.
func (s *Service) Authenticate(ctx context.Context, username, password string) (store.User, error) {
	username = strings.TrimSpace(username)
	user, err := s.users.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return store.User{}, ErrInvalidCredentials
		}
		return store.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Lookup returns the user for a session id.
func (s *Service) Lookup(ctx context.Context, id int64) (store.User, error) {
	return s.users.UserByID(ctx, id)
}
