package controllers

import (
	"net/http"

	"payment-bot-service/repository"
	"payment-bot-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type BotController struct {
	settings repository.SettingRepository
	bot      *services.BotService
	logger   *zap.Logger
}

func NewBotController(settings repository.SettingRepository, bot *services.BotService, logger *zap.Logger) *BotController {
	return &BotController{settings: settings, bot: bot, logger: logger}
}

// RestartBot reloads settings and restarts the Telegram session under them.
func (bc *BotController) RestartBot(c *gin.Context) {
	setting, err := bc.settings.Get(c.Request.Context())
	if err != nil {
		bc.logger.Error("Failed to load settings for restart", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Failed to restart bot"}})
		return
	}

	bc.bot.Reconfigure(c.Request.Context(), setting)

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"restarted": true,
		"hasTokens": setting.HasValidTokens(),
		"state":     bc.bot.State(),
	}})
}
