package routes

import (
	"net/http"
	"time"

	"payment-bot-service/controllers"

	"github.com/gin-gonic/gin"
)

func Register(
	r *gin.Engine,
	sc *controllers.SettingsController,
	pc *controllers.PaymentsController,
	bc *controllers.BotController,
	mc *controllers.MessagesController,
) {
	api := r.Group("/api")

	api.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
	})

	api.GET("/settings", sc.GetSettings)
	api.PUT("/settings", sc.UpdateSettings)

	api.GET("/payments", pc.ListPayments)
	api.GET("/stats", pc.GetStats)

	api.POST("/bot/restart", bc.RestartBot)
	api.POST("/messages/resend-success", mc.ResendSuccessMessage)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "service": "payment-bot-service"})
	})
}
