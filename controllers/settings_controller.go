package controllers

import (
	"errors"
	"net/http"

	"payment-bot-service/models"
	"payment-bot-service/repository"
	"payment-bot-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SettingsController struct {
	settings repository.SettingRepository
	bot      *services.BotService
	logger   *zap.Logger
}

func NewSettingsController(settings repository.SettingRepository, bot *services.BotService, logger *zap.Logger) *SettingsController {
	return &SettingsController{settings: settings, bot: bot, logger: logger}
}

// GetSettings returns the single settings document, creating it with
// defaults on first read.
func (sc *SettingsController) GetSettings(c *gin.Context) {
	setting, err := sc.settings.Get(c.Request.Context())
	if err != nil {
		sc.logger.Error("Failed to load settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Failed to load settings"}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": setting})
}

// UpdateSettings applies a partial settings update and restarts the bot
// session so new tokens take effect. The update commits even when the
// restart fails.
func (sc *SettingsController) UpdateSettings(c *gin.Context) {
	var req models.UpdateSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}

	setting, err := sc.settings.Replace(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidPriceAmount) {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}
		sc.logger.Error("Failed to update settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Failed to update settings"}})
		return
	}

	sc.bot.Reconfigure(c.Request.Context(), setting)

	c.JSON(http.StatusOK, gin.H{"data": setting})
}
