package handler

import (
	"net/http"
	"taxonomy_admin/pkg/log"
	"taxonomy_admin/pkg/token"

	"github.com/gin-gonic/gin"
)

// AuthHandler 只负责令牌续期，初次签发由外部身份系统完成。
type AuthHandler struct {
	jwtManager *token.JWTManager
}

func NewAuthHandler(jwtManager *token.JWTManager) *AuthHandler {
	return &AuthHandler{jwtManager: jwtManager}
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// Refresh 用 refresh token 换一对新令牌
func (h *AuthHandler) Refresh(c *gin.Context) {
	if h.jwtManager == nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "JWT manager not configured",
		})
		return
	}

	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}

	accessToken, refreshToken, err := h.jwtManager.Refresh(req.RefreshToken)
	if err != nil {
		log.Warnf("AuthHandler.Refresh: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    http.StatusUnauthorized,
			"message": "Invalid refresh token",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Token refreshed successfully",
		"data": gin.H{
			"accessToken":  accessToken,
			"refreshToken": refreshToken,
		},
	})
}
