package middleware

import (
	"net/http"
	"taxonomy_admin/pkg/token"

	"github.com/gin-gonic/gin"
)

// TaxonomyAdminMiddleware 只放行持有分类树管理员权限的调用方。
// 必须在 AuthMiddleware 之后执行。
func TaxonomyAdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claimsVal, exists := c.Get("claims")
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    http.StatusUnauthorized,
				"message": "Claims not found in context",
			})
			return
		}
		claims, ok := claimsVal.(*token.CustomClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":    http.StatusInternalServerError,
				"message": "Failed to read caller identity",
			})
			return
		}
		if !claims.TaxonomyAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    http.StatusForbidden,
				"message": "Forbidden: taxonomy admin capability required",
			})
			return
		}
		c.Next()
	}
}
