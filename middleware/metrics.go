package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/challengehub/metrics"
)

// RequestMetrics counts requests per route template and status.
func RequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()))
	}
}
