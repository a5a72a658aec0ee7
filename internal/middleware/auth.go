package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/dropwise/dispatch/internal/apperr"
	"github.com/dropwise/dispatch/internal/auth"
	"github.com/dropwise/dispatch/internal/identity"
)

// TokenVerifier resolves a bearer token to a principal.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (auth.Principal, error)
}

// UserLookup loads the user behind a verified principal.
type UserLookup interface {
	Get(ctx context.Context, id string) (identity.User, error)
}

// Authenticate verifies the bearer token and stores the caller's user id and
// resolved actor in the request locals.
func Authenticate(verifier TokenVerifier, users UserLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "bearer ") {
			return apperr.New(apperr.CodeUnauthenticated, "missing bearer token")
		}
		raw := strings.TrimSpace(authz[len("Bearer "):])

		principal, err := verifier.Verify(c.UserContext(), raw)
		if err != nil {
			return err
		}
		user, err := users.Get(c.UserContext(), principal.ID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return apperr.New(apperr.CodeUnauthenticated, "account no longer exists")
			}
			return err
		}

		c.Locals(identity.LocalUserID, user.ID)
		c.Locals(identity.LocalActor, user.Actor())
		return c.Next()
	}
}

// RequireUserType rejects callers whose user type is not listed.
func RequireUserType(types ...identity.UserType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor := identity.ActorFrom(c)
		for _, t := range types {
			if actor.Type == t {
				return c.Next()
			}
		}
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		return apperr.New(apperr.CodeAccessDenied, "this endpoint is only available to "+strings.Join(names, ", ")+" accounts")
	}
}
