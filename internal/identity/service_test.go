package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/dropwise/dispatch/internal/apperr"
)

func validSignup() SignupInput {
	return SignupInput{
		Email:    "Ada@Example.com ",
		Password: "s3cret-pass",
		FullName: "Ada Obi",
		Phone:    "08030000000",
		UserType: TypeCustomer,
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	user, err := svc.Register(ctx, validSignup())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if string(user.PasswordHash) == "s3cret-pass" {
		t.Fatalf("password stored in clear")
	}

	authed, err := svc.Authenticate(ctx, "ADA@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.ID != user.ID || authed.UserType != TypeCustomer {
		t.Fatalf("unexpected user %+v", authed)
	}

	if _, err := svc.Authenticate(ctx, "ada@example.com", "wrong-pass"); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody@example.com", "s3cret-pass"); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated for unknown email, got %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	if _, err := svc.Register(ctx, validSignup()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, validSignup()); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	sme := validSignup()
	sme.UserType = TypeSME
	if _, err := svc.Register(ctx, sme); !errors.Is(err, apperr.ErrValidationFailed) {
		t.Fatalf("expected business name requirement, got %v", err)
	}

	bad := validSignup()
	bad.UserType = "admin"
	bad.Password = "short"
	if _, err := svc.Register(ctx, bad); !errors.Is(err, apperr.ErrValidationFailed) {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

func TestActorUsesBusinessNameForSME(t *testing.T) {
	u := User{ID: "1", FullName: "Ngozi", BusinessName: "Ngozi Foods", UserType: TypeSME, Phone: "0801"}
	a := u.Actor()
	if a.Name != "Ngozi Foods" || a.Type != TypeSME || a.Phone != "0801" {
		t.Fatalf("unexpected actor %+v", a)
	}
}
