package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, ctrl Controller, history HistoryReader, wsHub *WebSocketHub) {
	// Enable CORS
	router.Use(CORSMiddleware())

	router.GET("/health", Health)

	api := router.Group("/api")
	{
		api.GET("/session", func(c *gin.Context) {
			GetSession(c, ctrl)
		})
		api.GET("/history", func(c *gin.Context) {
			GetHistory(c, history)
		})
		api.POST("/commands", func(c *gin.Context) {
			PostCommand(c, ctrl)
		})

		windows := api.Group("/windows")
		{
			windows.GET("", func(c *gin.Context) {
				GetWindows(c, ctrl)
			})
			windows.POST("/:alias/restart", func(c *gin.Context) {
				RestartWindow(c, ctrl)
			})
		}
	}

	// WebSocket route
	router.GET("/ws", func(c *gin.Context) {
		HandleWebSocket(wsHub, ctrl, c)
	})
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
