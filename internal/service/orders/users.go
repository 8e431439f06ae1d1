package orders

import (
	"context"
	"errors"
	"strings"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// NullableString различает отсутствующее поле и явный null.
type NullableString struct {
	Set   bool
	Value *string
}

// UserInput - поля пользователя из запроса. nil означает, что поле не передано.
type UserInput struct {
	Name        *string
	Email       *string
	Address     NullableString
	PhoneNumber NullableString
	// Password принимается только на запись и хранится в виде bcrypt-хэша.
	Password *string
}

// apply переносит переданные поля в user. Для полного обновления (partial=false)
// обязательные поля должны присутствовать, необязательные без значения не меняются.
func (in UserInput) apply(user *domain.User, partial bool) []error {
	var errs []error

	switch {
	case in.Name != nil:
		user.Name = strings.TrimSpace(*in.Name)
	case !partial:
		errs = append(errs, domain.ErrNameRequired)
	}
	switch {
	case in.Email != nil:
		user.Email = strings.TrimSpace(*in.Email)
	case !partial:
		errs = append(errs, domain.ErrEmailRequired)
	}
	if in.Address.Set {
		user.Address = in.Address.Value
	}
	if in.PhoneNumber.Set {
		user.PhoneNumber = in.PhoneNumber.Value
	}
	if in.Password != nil {
		if err := domain.ValidatePassword(*in.Password); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// hashPassword вызывается до открытия транзакции.
func (s *Service) hashPassword(password *string) ([]byte, error) {
	if password == nil {
		return nil, nil
	}
	if s.hasher == nil {
		return nil, domain.NewFieldError("password", "password login is not enabled")
	}
	return s.hasher.Hash(*password)
}

// CreateUser создаёт пользователя.
func (s *Service) CreateUser(ctx context.Context, in UserInput) (domain.User, error) {
	user := domain.User{ID: s.newID(), CreatedAt: s.now()}
	if errs := in.apply(&user, false); len(errs) > 0 {
		return domain.User{}, domain.JoinValidation(errs)
	}
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return domain.User{}, err
	}

	err = s.store.WithinTx(ctx, func(tx domain.Tx) error {
		if err := s.enforcer.CheckUser(ctx, tx, user, false); err != nil {
			return err
		}
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		return storePassword(ctx, tx, user.ID, hash)
	})
	if err != nil {
		return domain.User{}, err
	}

	s.logger.WithField("user_id", user.ID).Info("user created")
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (domain.User, error) {
	var user domain.User
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		user, err = tx.GetUser(ctx, id)
		return err
	})
	return user, err
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		users, err = tx.ListUsers(ctx)
		return err
	})
	return users, err
}

// UpdateUser меняет пользователя. partial=true соответствует PATCH.
func (s *Service) UpdateUser(ctx context.Context, id string, in UserInput, partial bool) (domain.User, error) {
	if in.Password != nil {
		if err := domain.ValidatePassword(*in.Password); err != nil {
			return domain.User{}, err
		}
	}
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return domain.User{}, err
	}

	var user domain.User
	err = s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		user, err = tx.LockUser(ctx, id)
		if err != nil {
			return err
		}
		if errs := in.apply(&user, partial); len(errs) > 0 {
			return domain.JoinValidation(errs)
		}
		if err := s.enforcer.CheckUser(ctx, tx, user, true); err != nil {
			return err
		}
		if err := tx.UpdateUser(ctx, user); err != nil {
			return err
		}
		return storePassword(ctx, tx, user.ID, hash)
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// DeleteUser удаляет пользователя вместе с заказами, позициями и таймлайном.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		if err := tx.DeleteUser(ctx, id); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, domain.AggregateUser, id, domain.EventUserDeleted, userEvent{
			UserID:     id,
			OccurredAt: s.now(),
		})
	})
	if err != nil {
		return err
	}

	s.logger.WithField("user_id", id).Info("user deleted")
	return nil
}

// Credentials возвращает пользователя и хэш его пароля по email.
// Неизвестный email и пользователь без пароля неразличимы: оба дают ErrInvalidCredentials.
func (s *Service) Credentials(ctx context.Context, email string) (domain.User, []byte, error) {
	var (
		user domain.User
		hash []byte
	)
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		if user, err = tx.GetUserByEmail(ctx, email); err != nil {
			return err
		}
		hash, err = tx.GetPasswordHash(ctx, user.ID)
		return err
	})
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, nil, err
	}
	return user, hash, nil
}

func storePassword(ctx context.Context, tx domain.Tx, userID string, hash []byte) error {
	if hash == nil {
		return nil
	}
	return tx.SetPasswordHash(ctx, userID, hash)
}
