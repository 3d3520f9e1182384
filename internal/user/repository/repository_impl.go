package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/hormisur/backoffice/internal/user/domain"
	"github.com/hormisur/backoffice/pkg/db/option"
	"github.com/hormisur/backoffice/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO users (id, name, email, password_hash, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Active,
		user.CreatedAt,
		user.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, email, password_hash, active, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, email, password_hash, active, created_at, updated_at
		 FROM users WHERE lower(email) = lower(?)`,
		strings.TrimSpace(email),
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, page pagination.Pagination) ([]*domain.User, error) {
	var users []*domain.User
	stmt := db.WithContext(ctx).Model(&domain.User{})
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *repo) FindByRoles(ctx context.Context, db *gorm.DB, roles []string) ([]*domain.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	var users []*domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT u.id, u.name, u.email, u.password_hash, u.active, u.created_at, u.updated_at
		 FROM users u
		 JOIN user_roles ur ON ur.user_id = u.id
		 JOIN roles r ON r.id = ur.role_id
		 WHERE u.active AND r.name IN ?
		 ORDER BY u.id`,
		roles,
	).Scan(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *repo) RolesForUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]domain.Role, error) {
	var roles []domain.Role
	err := db.WithContext(ctx).Raw(
		`SELECT r.id, r.name
		 FROM roles r
		 JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = ?
		 ORDER BY r.name`,
		userID,
	).Scan(&roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *repo) FindRoleByName(ctx context.Context, db *gorm.DB, name string) (*domain.Role, error) {
	var role domain.Role
	err := db.WithContext(ctx).Raw(
		`SELECT id, name FROM roles WHERE lower(name) = lower(?)`,
		strings.TrimSpace(name),
	).Scan(&role).Error
	if err != nil {
		return nil, err
	}
	if role.ID == 0 {
		return nil, nil
	}
	return &role, nil
}

func (r *repo) AssignRole(ctx context.Context, db *gorm.DB, userID, roleID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO user_roles (user_id, role_id)
		 SELECT ?, ?
		 WHERE NOT EXISTS (
			SELECT 1 FROM user_roles WHERE user_id = ? AND role_id = ?
		 )`,
		userID, roleID, userID, roleID,
	).Error
}
