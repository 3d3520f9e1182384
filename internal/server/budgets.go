package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	budgetdomain "github.com/hormisur/backoffice/internal/budget/domain"
	"github.com/hormisur/backoffice/internal/providers/pdf"
)

type createBudgetRequest struct {
	Title        string  `json:"title"`
	CustomerName string  `json:"customer_name"`
	TotalAmount  float64 `json:"total_amount"`
	Currency     string  `json:"currency"`
	ValidUntil   string  `json:"valid_until"`
}

type listBudgetsQuery struct {
	PageToken    string `form:"page_token"`
	PageSize     int    `form:"page_size"`
	Status       string `form:"status"`
	CreatorID    string `form:"creator_id"`
	CustomerName string `form:"customer_name"`
}

func (s *Server) CreateBudget(c *gin.Context) {
	var req createBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	validUntil, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ValidUntil))
	if err != nil {
		AbortWithError(c, newValidationError("valid_until", "invalid_valid_until", "invalid valid_until"))
		return
	}

	budget, err := s.budgetSvc.Create(c.Request.Context(), budgetdomain.CreateBudgetRequest{
		Title:        req.Title,
		CustomerName: req.CustomerName,
		TotalAmount:  req.TotalAmount,
		Currency:     req.Currency,
		ValidUntil:   validUntil,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"budget": budget})
}

func (s *Server) ListBudgets(c *gin.Context) {
	var query listBudgetsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.budgetSvc.List(c.Request.Context(), budgetdomain.ListBudgetRequest{
		PageToken:    strings.TrimSpace(query.PageToken),
		PageSize:     query.PageSize,
		Status:       strings.TrimSpace(query.Status),
		CreatorID:    strings.TrimSpace(query.CreatorID),
		CustomerName: strings.TrimSpace(query.CustomerName),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Budgets, "page_info": resp.PageInfo})
}

func (s *Server) GetBudget(c *gin.Context) {
	budget, err := s.budgetSvc.GetByID(c.Request.Context(), budgetdomain.GetBudgetRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"budget": budget})
}

func (s *Server) ApproveBudget(c *gin.Context) {
	budget, err := s.budgetSvc.Approve(c.Request.Context(), budgetdomain.ApproveBudgetRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"budget": budget})
}

func (s *Server) ExportBudgetPDF(c *gin.Context) {
	if s.pdfProvider == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	budget, err := s.budgetSvc.GetByID(c.Request.Context(), budgetdomain.GetBudgetRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	reader, err := s.pdfProvider.GenerateQuote(c.Request.Context(), pdf.QuoteData{
		CompanyName:    "Hormisur",
		CompanyAddress: "Polígono Industrial Sur, Sevilla",
		CompanyEmail:   "oficina@hormisur.com",
		Code:           budget.Code,
		Title:          budget.Title,
		CustomerName:   budget.CustomerName,
		Status:         string(budget.Status),
		IssueDate:      budget.CreatedAt.Format("02/01/2006"),
		ValidUntil:     budget.ValidUntil.Format("02/01/2006"),
		TotalAmount:    fmt.Sprintf("%.2f", budget.TotalAmount),
		Currency:       budget.Currency,
	})
	if err != nil {
		AbortWithError(c, ErrInternal)
		return
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		AbortWithError(c, ErrInternal)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", budget.Code))
	c.Data(http.StatusOK, "application/pdf", data)
}
