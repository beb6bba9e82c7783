package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderUserID lets local tooling act as another pseudo-user.
const HeaderUserID = "X-User-ID"

// PseudoUser injects a fixed identity into the request context. There is no
// credential check; every request acts as userID unless allowOverride is set
// and the caller sends HeaderUserID.
func PseudoUser(userID string, allowOverride bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := userID
		if allowOverride {
			if v := strings.TrimSpace(c.GetHeader(HeaderUserID)); v != "" {
				uid = v
			}
		}
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"type": "unauthorized", "message": "no user identity"}})
			return
		}
		c.Request = c.Request.WithContext(WithUser(c.Request.Context(), uid))
		c.Set("user_id", uid)
		c.Next()
	}
}
