package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const ctxUserID = "userID"

// ExtractUserID reads the user id set by AuthMiddleware, answering 401
// when it is missing.
func ExtractUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(ctxUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "User not authenticated"})
		return "", false
	}
	return userID, true
}
