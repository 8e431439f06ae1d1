package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

func (t *tx) CreateUser(_ context.Context, user domain.User) error {
	t.writable()
	if _, exists := t.state.users[user.ID]; exists {
		return domain.ErrConflict
	}
	email := domain.NormalizeEmail(user.Email)
	if _, taken := t.state.emails[email]; taken {
		return domain.ErrEmailTaken
	}

	t.state.users[user.ID] = userRecord{user: copyUser(user)}
	t.state.emails[email] = user.ID
	return nil
}

func (t *tx) GetUser(_ context.Context, id string) (domain.User, error) {
	rec, ok := t.state.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return copyUser(rec.user), nil
}

// LockUser совпадает с GetUser: транзакция уже держит эксклюзивную блокировку.
func (t *tx) LockUser(ctx context.Context, id string) (domain.User, error) {
	return t.GetUser(ctx, id)
}

func (t *tx) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	id, ok := t.state.emails[domain.NormalizeEmail(email)]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return t.GetUser(ctx, id)
}

func (t *tx) ListUsers(context.Context) ([]domain.User, error) {
	result := make([]domain.User, 0, len(t.state.users))
	for _, rec := range t.state.users {
		result = append(result, copyUser(rec.user))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (t *tx) UpdateUser(_ context.Context, user domain.User) error {
	t.writable()
	rec, ok := t.state.users[user.ID]
	if !ok {
		return domain.ErrUserNotFound
	}

	oldEmail := domain.NormalizeEmail(rec.user.Email)
	newEmail := domain.NormalizeEmail(user.Email)
	if oldEmail != newEmail {
		if _, taken := t.state.emails[newEmail]; taken {
			return domain.ErrEmailTaken
		}
		delete(t.state.emails, oldEmail)
		t.state.emails[newEmail] = user.ID
	}

	user.CreatedAt = rec.user.CreatedAt
	rec.user = copyUser(user)
	t.state.users[user.ID] = rec
	return nil
}

// DeleteUser каскадно удаляет заказы пользователя, их позиции и таймлайн.
func (t *tx) DeleteUser(ctx context.Context, id string) error {
	t.writable()
	rec, ok := t.state.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}

	for orderID, order := range t.state.orders {
		if order.order.UserID != id {
			continue
		}
		if err := t.DeleteOrder(ctx, orderID); err != nil {
			return err
		}
	}

	delete(t.state.emails, domain.NormalizeEmail(rec.user.Email))
	delete(t.state.users, id)
	return nil
}

func (t *tx) SetPasswordHash(_ context.Context, userID string, hash []byte) error {
	t.writable()
	rec, ok := t.state.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	rec.passwordHash = append([]byte(nil), hash...)
	t.state.users[userID] = rec
	return nil
}

func (t *tx) GetPasswordHash(_ context.Context, userID string) ([]byte, error) {
	rec, ok := t.state.users[userID]
	if !ok || len(rec.passwordHash) == 0 {
		return nil, domain.ErrUserNotFound
	}
	return append([]byte(nil), rec.passwordHash...), nil
}
