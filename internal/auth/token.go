package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

const issuer = "orderdesk"

// ErrWeakSecret возвращается, если секрет подписи слишком короткий.
var ErrWeakSecret = errors.New("jwt secret must be at least 32 bytes")

// Claims - содержимое bearer-токена.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenIssuer выпускает и проверяет HS256-токены.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer создаёт TokenIssuer. ttl задаёт срок жизни токена.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) < 32 {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue подписывает токен для пользователя. Каждый токен получает свой jti.
func (i *TokenIssuer) Issue(principal domain.Principal) (string, Claims, error) {
	now := i.now().UTC()
	claims := Claims{
		Username: principal.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   principal.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Parse проверяет подпись, срок действия и издателя токена.
func (i *TokenIssuer) Parse(raw string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return Claims{}, domain.ErrTokenInvalid
	}
	return claims, nil
}
