package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/hormisur/backoffice/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error)
	List(ctx context.Context, db *gorm.DB, page pagination.Pagination) ([]*User, error)
	FindByRoles(ctx context.Context, db *gorm.DB, roles []string) ([]*User, error)
	RolesForUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Role, error)
	FindRoleByName(ctx context.Context, db *gorm.DB, name string) (*Role, error)
	AssignRole(ctx context.Context, db *gorm.DB, userID, roleID snowflake.ID) error
}
