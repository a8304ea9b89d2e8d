// Package authpw provides email/password authentication.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"teamchat/api/internal/store"
	"teamchat/api/internal/util"

	"golang.org/x/crypto/bcrypt"
)

// Service verifies credentials against the user store.
type Service struct {
	store UserStore
}

// UserStore is the slice of storage the auth flow needs.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	UpsertUser(ctx context.Context, user store.User) (store.User, error)
}

func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// SignUpRequest contains sign-up parameters.
type SignUpRequest struct {
	Email    string
	Password string
	Username string
	FullName string
	ImageURL string
}

// SignUp creates a new account. Email uniqueness is checked here; the unique
// index on users.email backstops the race.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.User, error) {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Username = strings.TrimSpace(req.Username)

	if req.Email == "" || req.Password == "" || req.Username == "" {
		return store.User{}, errors.New("email, password, and username are required")
	}
	if len(req.Password) < 8 {
		return store.User{}, errors.New("password must be at least 8 characters")
	}

	if _, err := s.store.GetUserByEmail(ctx, req.Email); err == nil {
		return store.User{}, errors.New("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.UpsertUser(ctx, store.User{
		ID:           util.NewID(),
		Username:     req.Username,
		Email:        req.Email,
		FullName:     req.FullName,
		ImageURL:     req.ImageURL,
		PasswordHash: string(hash),
	})
	if err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// SignInRequest contains sign-in parameters.
type SignInRequest struct {
	Email    string
	Password string
}

// SignIn authenticates a user. The same error covers unknown email and wrong
// password so callers cannot probe for accounts.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.User, error) {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		return store.User{}, errors.New("email and password are required")
	}

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return store.User{}, errors.New("invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return store.User{}, errors.New("invalid email or password")
	}
	return user, nil
}
