package domain

import (
	"context"
	"errors"
)

type SubmitPaymentRequest struct {
	BudgetID     string
	Amount       float64
	PaidAmount   float64
	Currency     string
	ExchangeRate float64
	Method       string
	Reference    string
}

type ValidatePaymentRequest struct {
	ID string
}

type RejectPaymentRequest struct {
	ID string
}

type ListPaymentRequest struct {
	BudgetID string
}

type ListPaymentResponse struct {
	Payments []Payment `json:"payments"`
}

type Service interface {
	Submit(context.Context, SubmitPaymentRequest) (Payment, error)
	Validate(context.Context, ValidatePaymentRequest) (Payment, error)
	Reject(context.Context, RejectPaymentRequest) (Payment, error)
	ListByBudget(context.Context, ListPaymentRequest) (ListPaymentResponse, error)
}

var (
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidMethod    = errors.New("invalid_method")
	ErrNotFound         = errors.New("not_found")
	ErrBudgetNotFound   = errors.New("budget_not_found")
	ErrBudgetClosed     = errors.New("budget_closed")
	ErrNotPending       = errors.New("not_pending")
	ErrMissingValidator = errors.New("missing_validator")
)
