package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/onhold/core"
	"github.com/trezcool/onhold/core/user"
)

const userColumns = `id, name, username, email, is_active, roles, password_hash, created_at_ms, updated_at_ms, last_login_ms`

type userRow struct {
	ID           string      `db:"id"`
	Name         string      `db:"name"`
	Username     null.String `db:"username"`
	Email        null.String `db:"email"`
	IsActive     bool        `db:"is_active"`
	Roles        string      `db:"roles"` // comma separated
	PasswordHash null.Bytes  `db:"password_hash"`
	CreatedAtMs  int64       `db:"created_at_ms"`
	UpdatedAtMs  int64       `db:"updated_at_ms"`
	LastLoginMs  null.Int64  `db:"last_login_ms"`
}

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{exec: exec}
}

func (repo userRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

func (repo userRepository) toRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		IsActive:     usr.IsActive,
		Roles:        strings.Join(usr.Roles, ","),
		PasswordHash: null.NewBytes(usr.PasswordHash, usr.PasswordHash != nil),
		CreatedAtMs:  usr.CreatedAt.UnixMilli(),
		UpdatedAtMs:  usr.UpdatedAt.UnixMilli(),
		LastLoginMs:  null.NewInt64(usr.LastLogin.UnixMilli(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) fromRow(row userRow) user.User {
	usr := user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username.String,
		Email:        row.Email.String,
		IsActive:     row.IsActive,
		Roles:        core.SplitCSV(row.Roles),
		PasswordHash: row.PasswordHash.Bytes,
		CreatedAt:    time.UnixMilli(row.CreatedAtMs).UTC(),
		UpdatedAt:    time.UnixMilli(row.UpdatedAtMs).UTC(),
	}
	if row.LastLoginMs.Valid {
		usr.LastLogin = time.UnixMilli(row.LastLoginMs.Int64).UTC()
	}
	return usr
}

func (repo userRepository) CheckUniqueness(ctx context.Context, username, email, excludedID string, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	var (
		match []string
		args  []interface{}
	)
	if username != "" {
		match = append(match, "username = ?")
		args = append(args, username)
	}
	if email != "" {
		match = append(match, "email = ?")
		args = append(args, email)
	}
	if len(match) == 0 {
		return nil
	}

	q := `SELECT COUNT(*) FROM users WHERE (` + strings.Join(match, " OR ") + `)`
	if excludedID != "" {
		q += ` AND id <> ?`
		args = append(args, excludedID)
	}
	var count int
	if err := sqlx.GetContext(ctx, exe, &count, exe.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	if count > 0 {
		return user.ErrUserExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	exe := repo.getExec(exec)
	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	q := `INSERT INTO users (` + userColumns + `)
	VALUES (:id, :name, :username, :email, :is_active, :roles, :password_hash, :created_at_ms, :updated_at_ms, :last_login_ms)`
	if _, err := sqlx.NamedExecContext(ctx, exe, q, repo.toRow(usr)); err != nil {
		if IsUniqueViolation(err) {
			return user.User{}, user.ErrUserExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID}, exe)
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	exe := repo.getExec(exec)
	var (
		row  userRow
		q    string
		args []interface{}
	)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		q, args = `SELECT `+userColumns+` FROM users WHERE id = ?`, []interface{}{filter.ID}
	case filter.UsernameOrEmail != "":
		q = `SELECT ` + userColumns + ` FROM users WHERE username = ? OR email = ?`
		args = []interface{}{filter.UsernameOrEmail, filter.UsernameOrEmail}
	default:
		return user.User{}, user.ErrNotFound
	}

	if err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(q), args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	exe := repo.getExec(exec)
	q := `UPDATE users SET
		name = :name,
		username = :username,
		email = :email,
		is_active = :is_active,
		roles = :roles,
		password_hash = :password_hash,
		updated_at_ms = :updated_at_ms,
		last_login_ms = :last_login_ms
	WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, exe, q, repo.toRow(usr))
	if err != nil {
		if IsUniqueViolation(err) {
			return user.User{}, user.ErrUserExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if err = checkAffected(res, user.ErrNotFound, "updating user"); err != nil {
		return user.User{}, err
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID}, exe)
}
