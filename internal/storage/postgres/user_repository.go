package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

const userColumns = `id, name, email, address, phone_number, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		user    domain.User
		address sql.NullString
		phone   sql.NullString
	)
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &address, &phone, &user.CreatedAt); err != nil {
		return domain.User{}, err
	}
	if address.Valid {
		user.Address = &address.String
	}
	if phone.Valid {
		user.PhoneNumber = &phone.String
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

func (t *tx) CreateUser(ctx context.Context, user domain.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = t.now()
	}

	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO users (id, name, email, address, phone_number, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.ID, user.Name, user.Email, user.Address, user.PhoneNumber, user.CreatedAt); err != nil {
		return mapError(err, "insert user")
	}
	return nil
}

func (t *tx) GetUser(ctx context.Context, id string) (domain.User, error) {
	return t.selectUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// LockUser берёт FOR UPDATE на строку пользователя: параллельные проверки
// правила одного Pending-заказа для него выстраиваются в очередь.
func (t *tx) LockUser(ctx context.Context, id string) (domain.User, error) {
	return t.selectUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
}

func (t *tx) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return t.selectUser(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = $1`, domain.NormalizeEmail(email))
}

func (t *tx) selectUser(ctx context.Context, query string, arg string) (domain.User, error) {
	user, err := scanUser(t.tx.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, mapError(err, "select user")
	}
	return user, nil
}

func (t *tx) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, mapError(err, "list users")
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}
	return users, nil
}

func (t *tx) UpdateUser(ctx context.Context, user domain.User) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE users
		SET name = $2,
		    email = $3,
		    address = $4,
		    phone_number = $5
		WHERE id = $1
	`, user.ID, user.Name, user.Email, user.Address, user.PhoneNumber)
	if err != nil {
		return mapError(err, "update user")
	}
	return expectAffected(res, domain.ErrUserNotFound)
}

// DeleteUser полагается на ON DELETE CASCADE для заказов, позиций и таймлайна.
func (t *tx) DeleteUser(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return mapError(err, "delete user")
	}
	return expectAffected(res, domain.ErrUserNotFound)
}

func (t *tx) SetPasswordHash(ctx context.Context, userID string, hash []byte) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, hash)
	if err != nil {
		return mapError(err, "set password hash")
	}
	return expectAffected(res, domain.ErrUserNotFound)
}

func (t *tx) GetPasswordHash(ctx context.Context, userID string) ([]byte, error) {
	var hash []byte
	err := t.tx.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id = $1`, userID).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, mapError(err, "select password hash")
	}
	if len(hash) == 0 {
		return nil, domain.ErrUserNotFound
	}
	return hash, nil
}

func expectAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
