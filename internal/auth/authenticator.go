// Package auth выдаёт и проверяет bearer-токены: bcrypt для паролей,
// подписанный HS256 JWT для токена и реестр сессий для отзыва при logout.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// CredentialSource находит пользователя и хэш пароля по email.
type CredentialSource interface {
	Credentials(ctx context.Context, email string) (domain.User, []byte, error)
}

// Session - результат успешного входа.
type Session struct {
	Token     string
	UserID    string
	Username  string
	ExpiresAt time.Time
}

// Authenticator связывает учётные данные, токены и реестр сессий.
type Authenticator struct {
	credentials CredentialSource
	hasher      BcryptHasher
	tokens      *TokenIssuer
	sessions    SessionStore
	logger      *log.Entry
}

func NewAuthenticator(credentials CredentialSource, hasher BcryptHasher, tokens *TokenIssuer, sessions SessionStore, logger *log.Entry) *Authenticator {
	if logger == nil {
		logger = log.WithField("component", "auth")
	}
	return &Authenticator{
		credentials: credentials,
		hasher:      hasher,
		tokens:      tokens,
		sessions:    sessions,
		logger:      logger,
	}
}

// Login проверяет email и пароль и выдаёт новый токен.
func (a *Authenticator) Login(ctx context.Context, email, password string) (Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return Session{}, domain.ErrInvalidCredentials
	}

	user, hash, err := a.credentials.Credentials(ctx, email)
	if err != nil {
		return Session{}, err
	}
	ok, err := a.hasher.Compare(hash, password)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		a.logger.WithField("user_id", user.ID).Info("login rejected")
		return Session{}, domain.ErrInvalidCredentials
	}

	principal := domain.Principal{UserID: user.ID, Username: user.Email}
	token, claims, err := a.tokens.Issue(principal)
	if err != nil {
		return Session{}, err
	}
	expiresAt := claims.ExpiresAt.Time
	if err := a.sessions.Register(ctx, claims.ID, user.ID, expiresAt); err != nil {
		return Session{}, err
	}

	a.logger.WithField("user_id", user.ID).Info("user logged in")
	return Session{
		Token:     token,
		UserID:    user.ID,
		Username:  principal.Username,
		ExpiresAt: expiresAt,
	}, nil
}

// Authenticate проверяет токен и возвращает вызывающего.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (domain.Principal, error) {
	claims, err := a.verify(ctx, token)
	if err != nil {
		return domain.Principal{}, err
	}
	return domain.Principal{UserID: claims.Subject, Username: claims.Username}, nil
}

// Logout отзывает токен. Повторный logout тем же токеном отклоняется.
func (a *Authenticator) Logout(ctx context.Context, token string) error {
	claims, err := a.verify(ctx, token)
	if err != nil {
		return err
	}
	if err := a.sessions.Revoke(ctx, claims.ID); err != nil {
		return err
	}
	a.logger.WithField("user_id", claims.Subject).Info("user logged out")
	return nil
}

func (a *Authenticator) verify(ctx context.Context, token string) (Claims, error) {
	if token == "" {
		return Claims{}, domain.ErrTokenMissing
	}
	claims, err := a.tokens.Parse(token)
	if err != nil {
		return Claims{}, err
	}
	active, err := a.sessions.Active(ctx, claims.ID)
	if err != nil {
		return Claims{}, fmt.Errorf("session lookup: %w", err)
	}
	if !active {
		return Claims{}, domain.ErrTokenInvalid
	}
	return claims, nil
}
