package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"payment-bot-service/repository"
	"payment-bot-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type MessagesController struct {
	payments repository.PaymentRepository
	bot      *services.BotService
	logger   *zap.Logger
}

func NewMessagesController(payments repository.PaymentRepository, bot *services.BotService, logger *zap.Logger) *MessagesController {
	return &MessagesController{payments: payments, bot: bot, logger: logger}
}

// ResendSuccessMessage re-sends the rendered success notification for the
// latest succeeded payment of a chat, over the running bot session.
func (mc *MessagesController) ResendSuccessMessage(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Query("chatId"), 10, 64)
	if err != nil || chatID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "chatId parameter is required"}})
		return
	}

	payment, err := mc.payments.FindLatestSucceeded(c.Request.Context(), chatID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "No successful payment found for this chatId"}})
			return
		}
		mc.logger.Error("Failed to find succeeded payment", zap.Int64("chat_id", chatID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Failed to resend success message"}})
		return
	}

	text := mc.bot.RenderSuccessMessage(c.Request.Context(), payment)
	if err := mc.bot.SendChatMessage(chatID, text); err != nil {
		if errors.Is(err, services.ErrSessionNotRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": gin.H{"message": "Bot is not running"}})
			return
		}
		mc.logger.Error("Failed to resend success message", zap.Int64("chat_id", chatID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Failed to send message"}})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"success":   true,
		"chatId":    chatID,
		"paymentId": payment.ID,
	}})
}
