package controller

import (
	"errors"
	"net/http"
	"strings"

	"github/itish2003/ainotes/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const ownerIDKey = "ownerID"

// IdentityMiddleware trusts the user ID set by the authenticating proxy in
// header and rejects requests that carry none.
func IdentityMiddleware(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := strings.TrimSpace(c.GetHeader(header))
		if ownerID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
			return
		}
		c.Set(ownerIDKey, ownerID)
		c.Next()
	}
}

// OwnerID returns the caller identity set by IdentityMiddleware.
func OwnerID(c *gin.Context) string {
	return c.GetString(ownerIDKey)
}

// CORSMiddleware allows browser clients on other origins.
func CORSMiddleware(userHeader string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+userHeader)
		c.Header("Access-Control-Expose-Headers", relevantNotesHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Recovery turns panics into 500 responses, except http.ErrAbortHandler,
// which is re-raised so the server drops the connection mid-stream.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		if err, ok := recovered.(error); ok && errors.Is(err, http.ErrAbortHandler) {
			panic(http.ErrAbortHandler)
		}
		logrus.WithField("component", "http").Errorf("HTTP: panic recovered on %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
	})
}
