package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/hormisur/backoffice/internal/payment/domain"
)

type submitPaymentRequest struct {
	Amount       float64 `json:"amount"`
	PaidAmount   float64 `json:"paid_amount"`
	Currency     string  `json:"currency"`
	ExchangeRate float64 `json:"exchange_rate"`
	Method       string  `json:"method"`
	Reference    string  `json:"reference"`
}

func (s *Server) SubmitPayment(c *gin.Context) {
	var req submitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	payment, err := s.paymentSvc.Submit(c.Request.Context(), paymentdomain.SubmitPaymentRequest{
		BudgetID:     strings.TrimSpace(c.Param("id")),
		Amount:       req.Amount,
		PaidAmount:   req.PaidAmount,
		Currency:     req.Currency,
		ExchangeRate: req.ExchangeRate,
		Method:       req.Method,
		Reference:    req.Reference,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"payment": payment})
}

func (s *Server) ValidatePayment(c *gin.Context) {
	payment, err := s.paymentSvc.Validate(c.Request.Context(), paymentdomain.ValidatePaymentRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

func (s *Server) RejectPayment(c *gin.Context) {
	payment, err := s.paymentSvc.Reject(c.Request.Context(), paymentdomain.RejectPaymentRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

func (s *Server) ListBudgetPayments(c *gin.Context) {
	resp, err := s.paymentSvc.ListByBudget(c.Request.Context(), paymentdomain.ListPaymentRequest{
		BudgetID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Payments})
}
