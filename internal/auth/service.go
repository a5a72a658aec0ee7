package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dropwise/dispatch/internal/apperr"
	"github.com/dropwise/dispatch/internal/config"
	"github.com/dropwise/dispatch/internal/identity"
)

// Principal is what a verified bearer credential resolves to.
type Principal struct {
	ID       string
	Email    string
	Metadata map[string]string
}

type claims struct {
	jwt.RegisteredClaims
	Email    string `json:"email"`
	UserType string `json:"user_type"`
}

// Service issues and verifies HS256 access tokens.
type Service struct {
	secret []byte
	issuer string
	ttl    time.Duration
	ids    *identity.Service
	now    func() time.Time
}

// NewService builds the token service.
func NewService(cfg config.Config, ids *identity.Service) *Service {
	return &Service{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.AppName,
		ttl:    cfg.AccessTokenTTL,
		ids:    ids,
		now:    time.Now,
	}
}

// TokenPair is returned on successful login.
type TokenPair struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresIn   int64     `json:"expiresIn"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Login checks credentials and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (identity.User, TokenPair, error) {
	user, err := s.ids.Authenticate(ctx, email, password)
	if err != nil {
		return identity.User{}, TokenPair{}, err
	}
	pair, err := s.Issue(user)
	if err != nil {
		return identity.User{}, TokenPair{}, err
	}
	return user, pair, nil
}

// Issue signs an access token for user.
func (s *Service) Issue(user identity.User) (TokenPair, error) {
	now := s.now().UTC()
	exp := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email:    user.Email,
		UserType: string(user.UserType),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.ttl.Seconds()),
		ExpiresAt:   exp,
	}, nil
}

// Verify validates a bearer token and returns the principal it names.
func (s *Service) Verify(_ context.Context, raw string) (Principal, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, apperr.Wrap(apperr.CodeUnauthenticated, "token expired", err)
		}
		return Principal{}, apperr.Wrap(apperr.CodeUnauthenticated, "invalid token", err)
	}
	if c.Subject == "" {
		return Principal{}, apperr.New(apperr.CodeUnauthenticated, "token has no subject")
	}
	return Principal{
		ID:       c.Subject,
		Email:    c.Email,
		Metadata: map[string]string{"userType": c.UserType},
	}, nil
}
