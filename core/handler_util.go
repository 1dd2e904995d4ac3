package core

import "github.com/gin-gonic/gin"

// respondError sends the error envelope {"error": {"code", "message", "request_id"}}.
func respondError(c *gin.Context, status int, code, message string) {
	body := gin.H{"code": code, "message": message}
	if id := c.Writer.Header().Get("X-Request-ID"); id != "" {
		body["request_id"] = id
	}
	c.JSON(status, gin.H{"error": body})
}
