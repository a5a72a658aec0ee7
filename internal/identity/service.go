package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dropwise/dispatch/internal/apperr"
	"github.com/dropwise/dispatch/internal/validation"
)

var errInvalidCredentials = apperr.New(apperr.CodeUnauthenticated, "invalid email or password")

// Service manages identity lifecycle.
type Service struct {
	repo Repository
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register validates the signup form and stores a user with a hashed password.
func (s *Service) Register(ctx context.Context, in SignupInput) (User, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	in.Phone = strings.TrimSpace(in.Phone)
	if err := validation.Struct(in); err != nil {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(in.Email),
		PasswordHash: hash,
		FullName:     in.FullName,
		Phone:        in.Phone,
		UserType:     in.UserType,
		BusinessName: strings.TrimSpace(in.BusinessName),
		VehicleType:  in.VehicleType,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Authenticate verifies an email/password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return User{}, errInvalidCredentials
		}
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return User{}, errInvalidCredentials
	}
	return user, nil
}

// Get loads a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}
