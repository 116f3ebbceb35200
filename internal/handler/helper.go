package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"taxonomy_admin/internal/service"
	"taxonomy_admin/pkg/token"

	"github.com/gin-gonic/gin"
)

// mapServiceError 把 Service 层哨兵错误转换为 HTTP 状态码和对外消息。
// 统一映射的价值：
// 1. Handler 不必散落大量 if/else 判断。
// 2. 对外返回口径稳定，避免泄露内部实现细节。
func mapServiceError(err error) (httpStatus int, message string) {
	var cascadeErr *service.CascadeError
	switch {
	case errors.As(err, &cascadeErr):
		if len(cascadeErr.Applied) > 0 {
			return http.StatusInternalServerError, "Editor cascade partially applied"
		}
		return http.StatusInternalServerError, "Editor cascade failed"
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid request parameters"
	case errors.Is(err, service.ErrTaxonomyNotFound):
		return http.StatusNotFound, "Taxonomy not found"
	case errors.Is(err, service.ErrTaxonomyAlreadyExists):
		return http.StatusConflict, "Taxonomy already exists"
	case errors.Is(err, service.ErrTaxonomyNotEmpty):
		return http.StatusConflict, "Taxonomy still has nodes"
	case errors.Is(err, service.ErrNodeNotFound):
		return http.StatusNotFound, "Node not found"
	case errors.Is(err, service.ErrCrossTaxonomy):
		return http.StatusBadRequest, "Node belongs to another taxonomy"
	case errors.Is(err, service.ErrCyclicParent):
		return http.StatusConflict, "Node cannot be moved under itself or its descendants"
	case errors.Is(err, service.ErrNodeHasChildren):
		return http.StatusConflict, "Node has child nodes"
	case errors.Is(err, service.ErrNodeInUse):
		return http.StatusConflict, "Node is still referenced by content"
	case errors.Is(err, service.ErrInvalidEdge):
		return http.StatusBadRequest, "Invalid node edge"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// respondServiceError 写出错误响应。级联失败时附带已生效/失败的节点 id。
func respondServiceError(c *gin.Context, err error) {
	status, msg := mapServiceError(err)
	body := gin.H{
		"code":    status,
		"message": msg,
	}
	var cascadeErr *service.CascadeError
	if errors.As(err, &cascadeErr) {
		body["data"] = gin.H{
			"failedNodeId": cascadeErr.NodeID,
			"failed":       cascadeErr.Failed,
			"applied":      cascadeErr.Applied,
		}
	}
	c.JSON(status, body)
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    http.StatusBadRequest,
		"message": message,
	})
}

// parseIDList 把逗号分隔的 id 列表解析成数组，去除空白和重复项。
func parseIDList(raw string) ([]uint, error) {
	if strings.TrimSpace(raw) == "" {
		return []uint{}, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]uint, 0, len(parts))
	seen := make(map[uint]struct{}, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := parseID(p)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseID(raw string) (uint, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || v == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(v), nil
}

// parseOptionalID 解析可选的 id 查询参数，空字符串返回 nil
func parseOptionalID(raw string) (*uint, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	id, err := parseID(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// pathID 读取路径参数中的 id，非法时直接写 400 并返回 false
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := parseID(c.Param(name))
	if err != nil {
		respondBadRequest(c, "Invalid "+name)
		return 0, false
	}
	return id, true
}

// getClaimsFromContext 从 Gin 上下文中读取 AuthMiddleware 注入的 claims。
// 如果上下文异常，该函数会直接写错误响应并返回 false，调用方只需 `if !ok { return }`。
func getClaimsFromContext(c *gin.Context) (*token.CustomClaims, bool) {
	claimsVal, exists := c.Get("claims")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    http.StatusUnauthorized,
			"error":   "Unauthorized",
			"message": "Claims not found in context",
		})
		return nil, false
	}

	claims, ok := claimsVal.(*token.CustomClaims)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"error":   "Internal server error",
			"message": "Failed to read caller identity",
		})
		return nil, false
	}
	return claims, true
}
