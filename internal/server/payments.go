package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/condopay/internal/authorization"
	paymentdomain "github.com/smallbiznis/condopay/internal/payment/domain"
)

type createPaymentRequest struct {
	ResidentID     snowflake.ID    `json:"resident_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	ReferenceMonth string          `json:"reference_month"`
	DueDate        string          `json:"due_date"`
	Description    string          `json:"description"`
}

type approvePaymentRequest struct {
	PaymentDate string `json:"payment_date"`
}

func (s *Server) CreatePayment(c *gin.Context) {
	condominiumID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	dueDate, err := parseOptionalTime(req.DueDate)
	if err != nil {
		AbortWithError(c, newValidationError("due_date", "invalid_due_date", "invalid due_date"))
		return
	}

	resp, err := s.paymentSvc.Create(c.Request.Context(), condominiumID, paymentdomain.CreatePaymentRequest{
		ResidentID:     req.ResidentID,
		Amount:         req.Amount,
		Currency:       strings.TrimSpace(req.Currency),
		ReferenceMonth: strings.TrimSpace(req.ReferenceMonth),
		DueDate:        dueDate,
		Description:    strings.TrimSpace(req.Description),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ApprovePayment(c *gin.Context) {
	payment, ok := s.loadAuthorizedPayment(c, authorization.ActionPaymentApprove)
	if !ok {
		return
	}

	var req approvePaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	paymentDate, err := parseOptionalTime(req.PaymentDate)
	if err != nil {
		AbortWithError(c, newValidationError("payment_date", "invalid_payment_date", "invalid payment_date"))
		return
	}

	resp, err := s.paymentSvc.Approve(c.Request.Context(), payment.ID, paymentdomain.ApprovePaymentRequest{
		PaymentDate: paymentDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelPayment(c *gin.Context) {
	payment, ok := s.loadAuthorizedPayment(c, authorization.ActionPaymentCancel)
	if !ok {
		return
	}

	resp, err := s.paymentSvc.Cancel(c.Request.Context(), payment.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// loadAuthorizedPayment resolves :id and checks action against the payment's
// condominium. It aborts the request on failure.
func (s *Server) loadAuthorizedPayment(c *gin.Context, action string) (paymentdomain.Payment, bool) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return paymentdomain.Payment{}, false
	}

	payment, err := s.paymentSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return paymentdomain.Payment{}, false
	}
	if err := s.authorize(c, authorization.Request{
		CondominiumID: payment.CondominiumID,
		Object:        authorization.ObjectPayment,
		Action:        action,
	}); err != nil {
		AbortWithError(c, err)
		return paymentdomain.Payment{}, false
	}
	return payment, true
}
