package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func LoggerMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		latency := time.Since(startTime)

		fields := logrus.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"latency": latency,
			"ip":      c.ClientIP(),
		}
		if userID, ok := UserID(c); ok {
			fields["user_id"] = userID
		}

		logger.WithFields(fields).Info("request processed")
	}
}

func RecoveryMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.WithFields(logrus.Fields{
					"error": err,
					"path":  c.Request.URL.Path,
				}).Error("panic recovered")
				c.AbortWithStatusJSON(500, gin.H{"error": "内部错误", "code": "INTERNAL"})
			}
		}()
		c.Next()
	}
}
