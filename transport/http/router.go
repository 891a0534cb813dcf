package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetupRouter sets up the Gin router
func SetupRouter(handlers *Handlers, auth gin.HandlerFunc, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	// Auth routes
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/signin", handlers.SignIn)
		authGroup.POST("/refresh", handlers.Refresh)
		authGroup.POST("/logout", handlers.Logout)
	}

	// Protected user routes
	user := router.Group("/user")
	user.Use(auth)
	{
		user.PUT("/role", handlers.ChooseRole)
		user.GET("/bonds", handlers.Bonds)
		user.POST("/bonds/code", handlers.BondingCode)
		user.POST("/bonds/establish", handlers.EstablishBond)
	}

	return router
}

// requestLogger logs each request and any internal error attached to it
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
		}
		if len(c.Errors) > 0 {
			logger.Error("request failed", append(fields, zap.Error(c.Errors.Last().Err))...)
			return
		}
		logger.Debug("request", fields...)
	}
}
