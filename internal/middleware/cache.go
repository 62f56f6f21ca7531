package middleware

import "github.com/gin-gonic/gin"

// NoStore forbids caching. Attempt state and answers must always be fresh.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
