package controllers

import (
	"net/http"
	"strconv"

	"payment-bot-service/models"
	"payment-bot-service/repository"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PaymentsController struct {
	payments repository.PaymentRepository
	logger   *zap.Logger
}

func NewPaymentsController(payments repository.PaymentRepository, logger *zap.Logger) *PaymentsController {
	return &PaymentsController{payments: payments, logger: logger}
}

// ListPayments returns payments newest first, optionally filtered by
// status, with limit capped at 200.
func (pc *PaymentsController) ListPayments(c *gin.Context) {
	status := models.Status(c.Query("status"))
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	skip, _ := strconv.ParseInt(c.DefaultQuery("skip", "0"), 10, 64)

	items, err := pc.payments.List(c.Request.Context(), status, limit, skip)
	if err != nil {
		pc.logger.Error("Failed to list payments", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Failed to list payments"}})
		return
	}
	if items == nil {
		items = []models.Payment{}
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

// GetStats returns payment counts per status.
func (pc *PaymentsController) GetStats(c *gin.Context) {
	stats, err := pc.payments.CountByStatus(c.Request.Context())
	if err != nil {
		pc.logger.Error("Failed to get payment stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Failed to get stats"}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stats})
}
