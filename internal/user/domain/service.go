package domain

import (
	"context"
	"errors"

	"github.com/hormisur/backoffice/pkg/db/pagination"
)

type CreateUserRequest struct {
	Name     string
	Email    string
	Password string
	Roles    []string
}

type ListUserRequest struct {
	PageToken string
	PageSize  int
}

type ListUserResponse struct {
	pagination.PageInfo
	Users []User `json:"users"`
}

type GetUserRequest struct {
	ID string
}

type AssignRoleRequest struct {
	UserID string
	Role   string
}

type Service interface {
	Create(context.Context, CreateUserRequest) (User, error)
	List(context.Context, ListUserRequest) (ListUserResponse, error)
	GetByID(context.Context, GetUserRequest) (User, error)
	AssignRole(context.Context, AssignRoleRequest) error
	FindByRoles(ctx context.Context, roles []string) ([]User, error)
	VerifyCredentials(ctx context.Context, email, password string) (User, error)
}

var (
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrInvalidPassword    = errors.New("invalid_password")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidRole        = errors.New("invalid_role")
	ErrNotFound           = errors.New("not_found")
	ErrEmailTaken         = errors.New("email_taken")
	ErrInvalidCredentials = errors.New("invalid_credentials")
)
