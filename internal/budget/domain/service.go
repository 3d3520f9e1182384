package domain

import (
	"context"
	"errors"
	"time"

	"github.com/hormisur/backoffice/pkg/db/pagination"
)

type CreateBudgetRequest struct {
	Title        string
	CustomerName string
	TotalAmount  float64
	Currency     string
	ValidUntil   time.Time
}

type ListBudgetRequest struct {
	PageToken    string
	PageSize     int
	Status       string
	CreatorID    string
	CustomerName string
}

type ListBudgetResponse struct {
	pagination.PageInfo
	Budgets []Budget `json:"budgets"`
}

type GetBudgetRequest struct {
	ID string
}

type ApproveBudgetRequest struct {
	ID string
}

type Service interface {
	Create(context.Context, CreateBudgetRequest) (Budget, error)
	List(context.Context, ListBudgetRequest) (ListBudgetResponse, error)
	GetByID(context.Context, GetBudgetRequest) (Budget, error)
	Approve(context.Context, ApproveBudgetRequest) (Budget, error)
}

var (
	ErrInvalidTitle      = errors.New("invalid_title")
	ErrInvalidCustomer   = errors.New("invalid_customer")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidValidUntil = errors.New("invalid_valid_until")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidID         = errors.New("invalid_id")
	ErrNotFound          = errors.New("not_found")
	ErrNotPending        = errors.New("not_pending")
	ErrMissingActor      = errors.New("missing_actor")
)
