package domain

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxNameLength  = 255
	maxPhoneLength = 15
	// MinPasswordLength - минимальная длина пароля при регистрации.
	MinPasswordLength = 8
	// MaxPasswordBytes - предел bcrypt, более длинный пароль не хэшируется.
	MaxPasswordBytes = 72
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+(\.[a-zA-Z0-9-]+)+$`)

// User - владелец заказов.
type User struct {
	ID          string
	Name        string
	Email       string
	Address     *string
	PhoneNumber *string
	CreatedAt   time.Time
}

// Validate проверяет поля пользователя и возвращает список замечаний.
func (u *User) Validate() []error {
	var errs []error

	name := strings.TrimSpace(u.Name)
	switch {
	case name == "":
		errs = append(errs, ErrNameRequired)
	case utf8.RuneCountInString(name) > maxNameLength:
		errs = append(errs, ErrNameTooLong)
	}

	email := strings.TrimSpace(u.Email)
	switch {
	case email == "":
		errs = append(errs, ErrEmailRequired)
	case !emailPattern.MatchString(email):
		errs = append(errs, ErrEmailInvalid)
	}

	if u.PhoneNumber != nil && utf8.RuneCountInString(*u.PhoneNumber) > maxPhoneLength {
		errs = append(errs, ErrPhoneTooLong)
	}

	return errs
}

// ValidatePassword проверяет длину пароля: не короче MinPasswordLength символов
// и не длиннее MaxPasswordBytes байт.
func ValidatePassword(password string) error {
	switch {
	case utf8.RuneCountInString(password) < MinPasswordLength:
		return ErrPasswordTooShort
	case len(password) > MaxPasswordBytes:
		return ErrPasswordTooLong
	}
	return nil
}

// NormalizeEmail приводит email к виду, в котором он хранится и сравнивается.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Principal - аутентифицированный вызывающий. Передаётся в сервис явно.
type Principal struct {
	UserID   string
	Username string
}

// IsZero сообщает, что вызывающий не аутентифицирован.
func (p Principal) IsZero() bool {
	return p.UserID == ""
}
