package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// BcryptHasher хэширует пароли bcrypt. Нулевое значение использует bcrypt.DefaultCost.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) cost() int {
	if h.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return h.Cost
}

// Hash возвращает bcrypt-хэш пароля.
func (h BcryptHasher) Hash(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost())
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, domain.ErrPasswordTooLong
	}
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// Compare сообщает, соответствует ли пароль хэшу. bcrypt учитывает только первые
// 72 байта, поэтому более длинный пароль сразу считается неверным.
func (h BcryptHasher) Compare(hash []byte, password string) (bool, error) {
	if len(password) > domain.MaxPasswordBytes {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword(hash, []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("compare password hash: %w", err)
	}
}
