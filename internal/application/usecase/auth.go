package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/internal/domain/entity"
	"github.com/ngoclaw/aichat/internal/domain/repository"
	"github.com/ngoclaw/aichat/internal/domain/valueobject"
	apperrors "github.com/ngoclaw/aichat/pkg/errors"
)

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(userID, username string) (string, time.Time, error)
}

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

// RegisterCommand creates an account.
type RegisterCommand struct {
	Username string
	Email    string
	Password string
}

// LoginCommand opens a session. IP and UserAgent go to the login history.
type LoginCommand struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// Session is a signed token for a user.
type Session struct {
	User      *entity.User
	Token     string
	ExpiresAt time.Time
}

var errBadCredentials = apperrors.NewUnauthorizedError("invalid email or password")

// AuthService registers users and opens sessions.
type AuthService struct {
	users  repository.UserRepository
	tokens TokenIssuer
	hasher PasswordHasher
	now    func() time.Time
	logger *zap.Logger
}

// NewAuthService creates the service.
func NewAuthService(users repository.UserRepository, tokens TokenIssuer, hasher PasswordHasher, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		hasher: hasher,
		now:    time.Now,
		logger: logger.With(zap.String("component", "auth")),
	}
}

// Register creates a user and signs them in.
func (s *AuthService) Register(ctx context.Context, cmd RegisterCommand) (*Session, error) {
	username := strings.TrimSpace(cmd.Username)
	email := strings.ToLower(strings.TrimSpace(cmd.Email))

	if err := s.ensureFree(ctx, username, email); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(cmd.Password)
	if err != nil {
		return nil, err
	}
	user, err := entity.NewUser(uuid.NewString(), username, email, hash, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User registered", zap.String("user_id", user.ID()), zap.String("username", user.Username()))
	return s.session(user)
}

func (s *AuthService) ensureFree(ctx context.Context, username, email string) error {
	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return apperrors.NewAlreadyExistsError("username is already taken")
	} else if !apperrors.IsNotFound(err) {
		return err
	}
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return apperrors.NewAlreadyExistsError("email is already registered")
	} else if !apperrors.IsNotFound(err) {
		return err
	}
	return nil
}

// Login checks credentials and records the login.
func (s *AuthService) Login(ctx context.Context, cmd LoginCommand) (*Session, error) {
	user, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(cmd.Email)))
	if apperrors.IsNotFound(err) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(user.PasswordHash(), cmd.Password) {
		return nil, errBadCredentials
	}
	if !user.IsActive() {
		return nil, entity.ErrUserInactive
	}

	user.RecordLogin(cmd.IP, cmd.UserAgent, s.now())
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return s.session(user)
}

// Me returns the user behind a session.
func (s *AuthService) Me(ctx context.Context, userID string) (*entity.User, error) {
	return s.users.FindByID(ctx, userID)
}

// UpdatePreferences replaces the user's preferences.
func (s *AuthService) UpdatePreferences(ctx context.Context, userID string, p valueobject.Preferences) (*entity.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := user.UpdatePreferences(p, s.now()); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SetActive enables or disables the account registered under email.
// A disabled account can neither log in nor run turns.
func (s *AuthService) SetActive(ctx context.Context, email string, active bool) (*entity.User, error) {
	user, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if user.IsActive() == active {
		return user, nil
	}
	if active {
		user.Reactivate(s.now())
	} else {
		user.Deactivate(s.now())
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("User activation changed", zap.String("user_id", user.ID()), zap.Bool("active", active))
	return user, nil
}

func (s *AuthService) session(user *entity.User) (*Session, error) {
	token, exp, err := s.tokens.Issue(user.ID(), user.Username())
	if err != nil {
		return nil, apperrors.NewInternalErrorWithCause("issue token", err)
	}
	return &Session{User: user, Token: token, ExpiresAt: exp}, nil
}
