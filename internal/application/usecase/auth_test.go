package usecase_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ngoclaw/aichat/internal/application/usecase"
	"github.com/ngoclaw/aichat/internal/domain/repository"
	"github.com/ngoclaw/aichat/internal/domain/valueobject"
	"github.com/ngoclaw/aichat/internal/infrastructure/auth"
	"github.com/ngoclaw/aichat/internal/infrastructure/persistence"
	apperrors "github.com/ngoclaw/aichat/pkg/errors"
)

func newAuthService(t *testing.T) (*usecase.AuthService, *auth.TokenIssuer) {
	svc, issuer, _ := newAuthServiceWithUsers(t)
	return svc, issuer
}

func newAuthServiceWithUsers(t *testing.T) (*usecase.AuthService, *auth.TokenIssuer, repository.UserRepository) {
	t.Helper()
	issuer, err := auth.NewTokenIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	users := persistence.NewMemoryStore().Repositories().Users
	svc := usecase.NewAuthService(users, issuer, auth.NewPasswordHasher(bcrypt.MinCost), zap.NewNop())
	return svc, issuer, users
}

func TestRegisterAndLogin(t *testing.T) {
	svc, issuer := newAuthService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, usecase.RegisterCommand{Username: "alice", Email: "Alice@Example.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.User.Email() != "alice@example.com" {
		t.Errorf("email = %q", reg.User.Email())
	}
	claims, err := issuer.Parse(reg.Token)
	if err != nil || claims.UserID != reg.User.ID() {
		t.Fatalf("claims = %+v, err %v", claims, err)
	}

	sess, err := svc.Login(ctx, usecase.LoginCommand{Email: "ALICE@example.com", Password: "correct horse", IP: "10.0.0.1", UserAgent: "test"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	me, _ := svc.Me(ctx, sess.User.ID())
	if h := me.LoginHistory(); len(h) != 1 || h[0].IP != "10.0.0.1" {
		t.Errorf("login history = %+v", h)
	}
}

func TestRegisterRejects(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, usecase.RegisterCommand{Username: "alice", Email: "alice@example.com", Password: "password1"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	tests := []struct {
		name  string
		cmd   usecase.RegisterCommand
		check func(error) bool
	}{
		{"duplicate username", usecase.RegisterCommand{Username: "alice", Email: "other@example.com", Password: "password1"}, apperrors.IsAlreadyExists},
		{"duplicate email", usecase.RegisterCommand{Username: "alice2", Email: "ALICE@example.com", Password: "password1"}, apperrors.IsAlreadyExists},
		{"short password", usecase.RegisterCommand{Username: "bob", Email: "bob@example.com", Password: "short"}, apperrors.IsInvalidInput},
		{"bad email", usecase.RegisterCommand{Username: "bob", Email: "not-an-email", Password: "password1"}, apperrors.IsInvalidInput},
		{"short username", usecase.RegisterCommand{Username: "b", Email: "b@example.com", Password: "password1"}, apperrors.IsInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tt.cmd); !tt.check(err) {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestLoginRejects(t *testing.T) {
	svc, _, users := newAuthServiceWithUsers(t)
	ctx := context.Background()
	reg, _ := svc.Register(ctx, usecase.RegisterCommand{Username: "alice", Email: "alice@example.com", Password: "password1"})

	if _, err := svc.Login(ctx, usecase.LoginCommand{Email: "alice@example.com", Password: "wrong-password"}); !apperrors.IsUnauthorized(err) {
		t.Errorf("wrong password err = %v", err)
	}
	if _, err := svc.Login(ctx, usecase.LoginCommand{Email: "nobody@example.com", Password: "password1"}); !apperrors.IsUnauthorized(err) {
		t.Errorf("unknown email err = %v", err)
	}

	user := reg.User
	user.Deactivate(time.Now())
	if err := users.Update(ctx, user); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := svc.Login(ctx, usecase.LoginCommand{Email: "alice@example.com", Password: "password1"}); !apperrors.IsForbidden(err) {
		t.Errorf("deactivated login err = %v", err)
	}
}

func TestUpdatePreferences(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()
	reg, _ := svc.Register(ctx, usecase.RegisterCommand{Username: "alice", Email: "alice@example.com", Password: "password1"})

	prefs := valueobject.Preferences{Theme: valueobject.ThemeDark, Personality: valueobject.PersonalityConcise, Language: "fr"}
	user, err := svc.UpdatePreferences(ctx, reg.User.ID(), prefs)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if user.Preferences() != prefs {
		t.Errorf("preferences = %+v", user.Preferences())
	}

	bad := prefs
	bad.Personality = "sarcastic"
	if _, err := svc.UpdatePreferences(ctx, reg.User.ID(), bad); !apperrors.IsInvalidInput(err) {
		t.Errorf("bad personality err = %v", err)
	}
}

func TestSetActive(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()
	login := usecase.LoginCommand{Email: "alice@example.com", Password: "password1"}
	if _, err := svc.Register(ctx, usecase.RegisterCommand{Username: "alice", Email: "alice@example.com", Password: "password1"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	user, err := svc.SetActive(ctx, " Alice@Example.com ", false)
	if err != nil || user.IsActive() {
		t.Fatalf("deactivate = %v, err %v", user, err)
	}
	if _, err := svc.Login(ctx, login); !apperrors.IsForbidden(err) {
		t.Errorf("deactivated login err = %v", err)
	}

	if user, err = svc.SetActive(ctx, "alice@example.com", true); err != nil || !user.IsActive() {
		t.Fatalf("reactivate = %v, err %v", user, err)
	}
	if _, err := svc.Login(ctx, login); err != nil {
		t.Errorf("reactivated login: %v", err)
	}

	if _, err := svc.SetActive(ctx, "nobody@example.com", true); !apperrors.IsNotFound(err) {
		t.Errorf("unknown email err = %v", err)
	}
}
