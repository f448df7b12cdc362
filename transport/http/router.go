package http

import (
	"github.com/gin-gonic/gin"
	"github.com/layer-3/clearview/service"
	"github.com/sirupsen/logrus"
)

// SetupRouter sets up the Gin router
func SetupRouter(auth *service.Authenticator, agg *service.Aggregator, log logrus.FieldLogger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log))

	// Create handlers
	handlers := NewSessionHandlers(auth, agg)

	session := router.Group("/session")
	{
		session.GET("", handlers.Session)
		session.GET("/statuses", handlers.Statuses)
		session.POST("/connect", handlers.Connect)
		session.POST("/disconnect", handlers.Disconnect)
	}

	router.GET("/balances", handlers.Balances)

	return router
}
