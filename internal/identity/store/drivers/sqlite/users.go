package sqlite

import (
	"context"
	"database/sql"

	"github.com/poolworks/identity/internal/identity/domain"
)

type usersRepo struct {
	q dbtx
}

const userColumns = `id, email, username, full_name, password_hash, role,
	approval_status, require_two_factor, two_factor_verified,
	two_factor_secret, device_ids, created_at, updated_at`

func (r *usersRepo) scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	var secret sql.NullString
	var deviceIDs string

	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.FullName, &u.PasswordHash, &u.Role,
		&u.ApprovalStatus, &u.RequireTwoFactor, &u.TwoFactorVerified,
		&secret, &deviceIDs, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.TwoFactorSecret = mapNullString(secret)
	u.DeviceIDs = splitDeviceIDs(deviceIDs)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return r.scanUser(row)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE`, email)
	return r.scanUser(row)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return r.scanUser(row)
}

func (r *usersRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		var secret sql.NullString
		var deviceIDs string

		err := rows.Scan(
			&u.ID, &u.Email, &u.Username, &u.FullName, &u.PasswordHash, &u.Role,
			&u.ApprovalStatus, &u.RequireTwoFactor, &u.TwoFactorVerified,
			&secret, &deviceIDs, &u.CreatedAt, &u.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		u.TwoFactorSecret = mapNullString(secret)
		u.DeviceIDs = splitDeviceIDs(deviceIDs)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO users (
			id, email, username, full_name, password_hash, role,
			approval_status, require_two_factor, two_factor_verified,
			two_factor_secret, device_ids
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Username, u.FullName, u.PasswordHash, u.Role,
		u.ApprovalStatus, u.RequireTwoFactor, u.TwoFactorVerified,
		mapOptionalString(u.TwoFactorSecret), joinDeviceIDs(u.DeviceIDs),
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	return r.exec(ctx,
		`UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		newHash, userID)
}

func (r *usersRepo) UpdateTwoFactorSecret(ctx context.Context, userID string, secret string) error {
	var val sql.NullString
	if secret != "" {
		val = sql.NullString{String: secret, Valid: true}
	}
	return r.exec(ctx,
		`UPDATE users SET two_factor_secret = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		val, userID)
}

func (r *usersRepo) SetTwoFactorVerified(ctx context.Context, userID string, verified bool) error {
	return r.exec(ctx,
		`UPDATE users SET two_factor_verified = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		verified, userID)
}

func (r *usersRepo) UpdateDeviceIDs(ctx context.Context, userID string, deviceIDs []string) error {
	return r.exec(ctx,
		`UPDATE users SET device_ids = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		joinDeviceIDs(deviceIDs), userID)
}

func (r *usersRepo) DeleteUser(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	return err
}

// exec runs an UPDATE that must touch exactly one existing row.
func (r *usersRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}
