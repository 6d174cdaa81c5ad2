package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/demande-workflow/internal/application/port"
	"github.com/garyjia/demande-workflow/internal/domain/entity"
	"github.com/garyjia/demande-workflow/internal/domain/workflow"
	"github.com/garyjia/demande-workflow/internal/infrastructure/persistence/sqlite"
)

// UserRepository implements port.UserRepository on the users table
type UserRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlite.DB, logger *zap.Logger) port.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	var u entity.User
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT id, name, role, lark_open_id, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &u.Role, &u.LarkOpenID, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.String("user_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (r *UserRepository) ListByRole(ctx context.Context, role workflow.Role) ([]*entity.User, error) {
	return r.list(ctx, `SELECT id, name, role, lark_open_id, created_at FROM users WHERE role = ? ORDER BY id`, role)
}

func (r *UserRepository) List(ctx context.Context) ([]*entity.User, error) {
	return r.list(ctx, `SELECT id, name, role, lark_open_id, created_at FROM users ORDER BY id`)
}

// Upsert inserts a user or refreshes its name, role and Lark id
func (r *UserRepository) Upsert(ctx context.Context, u *entity.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO users (id, name, role, lark_open_id, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, role = excluded.role, lark_open_id = excluded.lark_open_id`,
		u.ID, u.Name, u.Role, u.LarkOpenID, timeValue(u.CreatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to upsert user", zap.String("user_id", u.ID), zap.Error(err))
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (r *UserRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.User, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list users", zap.Error(err))
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		var u entity.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Role, &u.LarkOpenID, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, &u)
	}
	return users, rows.Err()
}

var _ port.UserRepository = (*UserRepository)(nil)
