package handler

import (
	"net/http"
	"taxonomy_admin/internal/service"
	"taxonomy_admin/pkg/log"

	"github.com/gin-gonic/gin"
)

// TaxonomyHandler 负责分类树定义接口：树本身和属性定义。
// 写接口挂在 TaxonomyAdminMiddleware 之后。
type TaxonomyHandler struct {
	taxonomyService service.TaxonomyService
}

func NewTaxonomyHandler(taxonomyService service.TaxonomyService) *TaxonomyHandler {
	return &TaxonomyHandler{taxonomyService: taxonomyService}
}

// CreateTaxonomyRequest 是创建分类树的请求体
type CreateTaxonomyRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// AddAttributeRequest 是新增属性定义的请求体
type AddAttributeRequest struct {
	Name       string `json:"name" binding:"required"`
	IsNodeName bool   `json:"isNodeName"`
	IsMultiple bool   `json:"isMultiple"`
}

func (h *TaxonomyHandler) Create(c *gin.Context) {
	var req CreateTaxonomyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}

	claims, ok := getClaimsFromContext(c)
	if !ok {
		return
	}

	taxonomy, err := h.taxonomyService.Create(req.Name, req.Description, claims.Username)
	if err != nil {
		log.Warnf("TaxonomyHandler.Create: failed to create taxonomy: %v", err)
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    http.StatusCreated,
		"message": "Taxonomy created successfully",
		"data":    taxonomy,
	})
}

func (h *TaxonomyHandler) List(c *gin.Context) {
	taxonomies, err := h.taxonomyService.List()
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Taxonomies retrieved successfully",
		"data":    taxonomies,
	})
}

func (h *TaxonomyHandler) Get(c *gin.Context) {
	taxonomyID, ok := pathID(c, "tid")
	if !ok {
		return
	}

	taxonomy, err := h.taxonomyService.FindByID(taxonomyID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Taxonomy retrieved successfully",
		"data":    taxonomy,
	})
}

// Delete 保护删除：树下还有节点时返回 409
func (h *TaxonomyHandler) Delete(c *gin.Context) {
	taxonomyID, ok := pathID(c, "tid")
	if !ok {
		return
	}

	if err := h.taxonomyService.Delete(taxonomyID); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Taxonomy deleted successfully",
	})
}

func (h *TaxonomyHandler) AddAttribute(c *gin.Context) {
	taxonomyID, ok := pathID(c, "tid")
	if !ok {
		return
	}

	var req AddAttributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}

	attr, err := h.taxonomyService.AddAttribute(taxonomyID, req.Name, req.IsNodeName, req.IsMultiple)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    http.StatusCreated,
		"message": "Attribute created successfully",
		"data":    attr,
	})
}

func (h *TaxonomyHandler) ListAttributes(c *gin.Context) {
	taxonomyID, ok := pathID(c, "tid")
	if !ok {
		return
	}

	attrs, err := h.taxonomyService.ListAttributes(taxonomyID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Attributes retrieved successfully",
		"data":    attrs,
	})
}
