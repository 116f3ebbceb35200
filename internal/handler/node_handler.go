package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"taxonomy_admin/internal/model"
	"taxonomy_admin/internal/service"
	"taxonomy_admin/pkg/log"
	"taxonomy_admin/pkg/token"

	"github.com/gin-gonic/gin"
)

// NodeOptions 是节点接口的默认参数，来自 taxonomy 配置段
type NodeOptions struct {
	DefaultLanguageID uint
	ExcludeDisabled   bool
}

// NodeHandler 负责节点接口：树查询、结构变更、属性、编辑者和关联。
type NodeHandler struct {
	nodeService   service.NodeService
	treeService   service.TreeService
	editorService service.EditorService
	opts          NodeOptions
}

func NewNodeHandler(nodeService service.NodeService, treeService service.TreeService, editorService service.EditorService, opts NodeOptions) *NodeHandler {
	if opts.DefaultLanguageID == 0 {
		opts.DefaultLanguageID = 1
	}
	return &NodeHandler{
		nodeService:   nodeService,
		treeService:   treeService,
		editorService: editorService,
		opts:          opts,
	}
}

// CreateNodeRequest 是新建节点的请求体，parentId 为空表示新建根节点
type CreateNodeRequest struct {
	ParentID   *uint                    `json:"parentId"`
	LanguageID uint                     `json:"languageId"`
	Values     []service.AttributeInput `json:"values"`
}

// ReparentRequest 的 parentId 为空表示升为根节点
type ReparentRequest struct {
	ParentID *uint `json:"parentId"`
}

type ArchiveRequest struct {
	Archived *bool `json:"archived" binding:"required"`
}

type SelectableRequest struct {
	Selectable *bool `json:"selectable" binding:"required"`
}

type InUseRequest struct {
	InUse *bool `json:"inUse" binding:"required"`
}

type UpdateAttributesRequest struct {
	LanguageID uint                     `json:"languageId"`
	Values     []service.AttributeInput `json:"values"`
}

// SetEditorsRequest 的 applyToChildren 需要分类树管理员权限
type SetEditorsRequest struct {
	Roles           []string `json:"roles"`
	ApplyToChildren bool     `json:"applyToChildren"`
}

type SetEdgeRequest struct {
	TargetID uint   `json:"targetId" binding:"required"`
	EdgeType string `json:"edgeType" binding:"required"`
}

// Query 是树查询接口：
// GET /:tid/nodes?mode=&anchor=&skip=&picked=&lang=&excludeDisabled=
// mode 取 normal / no_children / only_children / top_level / minimal，默认 normal。
func (h *NodeHandler) Query(c *gin.Context) {
	taxonomyID, ok := pathID(c, "tid")
	if !ok {
		return
	}

	mode, err := parseTreeMode(c)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	languageID, excludeDisabled, ok := h.viewParams(c)
	if !ok {
		return
	}

	req := service.TreeRequest{
		TaxonomyID:      taxonomyID,
		LanguageID:      languageID,
		ExcludeDisabled: excludeDisabled,
		Mode:            mode,
	}
	views, err := h.treeService.QueryNodes(req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Nodes retrieved successfully",
		"data":    views,
	})
}

// parseTreeMode 把查询参数解析成封闭的 TreeMode 变体，每种模式只读取自己需要的参数。
func parseTreeMode(c *gin.Context) (service.TreeMode, error) {
	mode := strings.ToLower(strings.TrimSpace(c.DefaultQuery("mode", "normal")))
	mode = strings.ReplaceAll(mode, "-", "_")

	skip, err := parseOptionalID(c.Query("skip"))
	if err != nil {
		return nil, errors.New("invalid skip")
	}

	switch mode {
	case "normal":
		return service.NormalMode{}, nil
	case "no_children", "only_children":
		anchor, err := parseID(c.Query("anchor"))
		if err != nil {
			return nil, errors.New("anchor is required for mode " + mode)
		}
		if mode == "no_children" {
			return service.NoChildrenMode{Anchor: anchor}, nil
		}
		return service.OnlyChildrenMode{Anchor: anchor, Skip: skip}, nil
	case "top_level", "top_level_only":
		return service.TopLevelMode{Skip: skip}, nil
	case "minimal":
		picked, err := parseIDList(c.Query("picked"))
		if err != nil {
			return nil, errors.New("invalid picked")
		}
		return service.MinimalMode{AlreadyPicked: picked}, nil
	default:
		return nil, errors.New("unknown mode " + mode)
	}
}

// viewParams 读取 lang 和 excludeDisabled 查询参数，缺省时使用配置值。非法时写 400 并返回 false。
func (h *NodeHandler) viewParams(c *gin.Context) (languageID uint, excludeDisabled bool, ok bool) {
	lang, err := parseOptionalID(c.Query("lang"))
	if err != nil {
		respondBadRequest(c, "Invalid lang")
		return 0, false, false
	}
	excludeDisabled = h.opts.ExcludeDisabled
	if raw := c.Query("excludeDisabled"); raw != "" {
		excludeDisabled, err = strconv.ParseBool(raw)
		if err != nil {
			respondBadRequest(c, "Invalid excludeDisabled")
			return 0, false, false
		}
	}
	return h.languageOrDefault(lang), excludeDisabled, true
}

// authorizeNodeEdit 检查调用方能否修改节点：
// 分类树管理员总是可以；节点配置了编辑者角色时，调用方必须持有其中之一；没有配置时不限制。
// 不通过时直接写响应并返回 false。
func (h *NodeHandler) authorizeNodeEdit(c *gin.Context, claims *token.CustomClaims, taxonomyID, nodeID uint) bool {
	if claims.TaxonomyAdmin {
		return true
	}
	roles, err := h.editorService.Editors(taxonomyID, nodeID)
	if err != nil {
		respondServiceError(c, err)
		return false
	}
	if len(roles) == 0 {
		return true
	}
	for _, role := range roles {
		if claims.HasRole(role) {
			return true
		}
	}
	c.JSON(http.StatusForbidden, gin.H{
		"code":    http.StatusForbidden,
		"message": "Forbidden: caller is not an editor of this node",
	})
	return false
}

func (h *NodeHandler) languageOrDefault(lang *uint) uint {
	if lang == nil || *lang == 0 {
		return h.opts.DefaultLanguageID
	}
	return *lang
}

func (h *NodeHandler) Get(c *gin.Context) {
	taxonomyID, nodeID, ok := nodePath(c)
	if !ok {
		return
	}

	languageID, excludeDisabled, ok := h.viewParams(c)
	if !ok {
		return
	}

	node, err := h.treeService.Describe(taxonomyID, nodeID, languageID, excludeDisabled)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Node retrieved successfully",
		"data":    node,
	})
}

func (h *NodeHandler) Create(c *gin.Context) {
	taxonomyID, ok := pathID(c, "tid")
	if !ok {
		return
	}

	var req CreateNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}

	claims, ok := getClaimsFromContext(c)
	if !ok {
		return
	}

	if req.ParentID != nil && !h.authorizeNodeEdit(c, claims, taxonomyID, *req.ParentID) {
		return
	}

	node, err := h.nodeService.CreateChild(taxonomyID, req.ParentID, h.languageOrDefault(&req.LanguageID), req.Values, claims.Username)
	if err != nil {
		log.Warnf("NodeHandler.Create: failed to create node in taxonomy %d: %v", taxonomyID, err)
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    http.StatusCreated,
		"message": "Node created successfully",
		"data":    node,
	})
}

func (h *NodeHandler) Reparent(c *gin.Context) {
	taxonomyID, nodeID, ok := nodePath(c)
	if !ok {
		return
	}

	var req ReparentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}

	claims, ok := getClaimsFromContext(c)
	if !ok {
		return
	}

	if !h.authorizeNodeEdit(c, claims, taxonomyID, nodeID) {
		return
	}
	if req.ParentID != nil && !h.authorizeNodeEdit(c, claims, taxonomyID, *req.ParentID) {
		return
	}

	node, err := h.nodeService.Reparent(taxonomyID, nodeID, req.ParentID, claims.Username)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Node moved successfully",
		"data":    node,
	})
}

func (h *NodeHandler) Archive(c *gin.Context) {
	taxonomyID, nodeID, ok := nodePath(c)
	if !ok {
		return
	}

	var req ArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}

	claims, ok := getClaimsFromContext(c)
	if !ok {
		return
	}

	if !h.authorizeNodeEdit(c, claims, taxonomyID, nodeID) {
		return
	}

	node, err := h.nodeService.Archive(taxonomyID, nodeID, *req.Archived, claims.Username)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Node status updated successfully",
		"data":    node,
	})
}

func (h *NodeHandler) SetSelectable(c *gin.Context) {
	taxonomyID, nodeID, ok := nodePath(c)
	if !ok {
		return
	}

	var req SelectableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}

	claims, ok := getClaimsFromContext(c)
	if !ok {
		return
	}

	if !h.authorizeNodeEdit(c, claims, taxonomyID, nodeID) {
		return
	}

	node, err := h.nodeService.SetSelectable(taxonomyID, nodeID, *req.Selectable, claims.Username)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Node selectable flag updated successfully",
		"data":    node,
	})
}

// MarkInUse 供内容侧回调，标记或解除节点引用
func (h *NodeHandler) MarkInUse(c *gin.Context) {
	taxonomyID, nodeID, ok := nodePath(c)
	if !ok {
		return
	}

	var req InUseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}

	if err := h.nodeService.MarkInUse(taxonomyID, nodeID, *req.InUse); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Node usage updated successfully",
	})
}

func (h *NodeHandler) UpdateAttributes(c *gin.Context) {
	taxonomyID, nodeID, ok := nodePath(c)
	if !ok {
		return
	}

	var req UpdateAttributesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}

	claims, ok := getClaimsFromContext(c)
	if !ok {
		return
	}

	if !h.authorizeNodeEdit(c, claims, taxonomyID, nodeID) {
		return
	}

	err := h.nodeService.UpdateAttributes(taxonomyID, nodeID, h.languageOrDefault(&req.LanguageID), req.Values, claims.Username)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Node attributes updated successfully",
	})
}

// Delete 删除节点，策略通过 query 参数 strategy 控制：
// 1. cascade（默认）：连同子树一起删除。
// 2. protect：有子节点时拒绝删除。
// 3. reparent：先把子节点挂到父节点下，再删除当前节点。
func (h *NodeHandler) Delete(c *gin.Context) {
	taxonomyID, nodeID, ok := nodePath(c)
	if !ok {
		return
	}

	strategy := service.DeleteStrategy(strings.ToLower(strings.TrimSpace(c.DefaultQuery("strategy", string(service.DeleteCascade)))))
	switch strategy {
	case service.DeleteCascade, service.DeleteProtect, service.DeleteReparent:
	default:
		respondBadRequest(c, "Invalid delete strategy, use 'cascade', 'protect' or 'reparent'")
		return
	}

	claims, ok := getClaimsFromContext(c)
	if !ok {
		return
	}
	if !h.authorizeNodeEdit(c, claims, taxonomyID, nodeID) {
		return
	}

	if err := h.nodeService.Delete(taxonomyID, nodeID, strategy); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Node deleted successfully",
	})
}

func (h *NodeHandler) Ancestors(c *gin.Context) {
	taxonomyID, nodeID, ok := nodePath(c)
	if !ok {
		return
	}

	ids, err := h.treeService.Ancestors(taxonomyID, nodeID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "Ancestors retrieved successfully", "data": ids})
}

func (h *NodeHandler) Elders(c *gin.Context) {
	taxonomyID, nodeID, ok := nodePath(c)
	if !ok {
		return
	}

	ids, err := h.treeService.Elders(taxonomyID, nodeID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "Elders retrieved successfully", "data": ids})
}

func (h *NodeHandler) Descendants(c *gin.Context) {
	taxonomyID, nodeID, ok := nodePath(c)
	if !ok {
		return
	}
	firstLevelOnly, err := strconv.ParseBool(c.DefaultQuery("firstLevelOnly", "false"))
	if err != nil {
		respondBadRequest(c, "Invalid firstLevelOnly")
		return
	}

	ids, err := h.treeService.Descendants(taxonomyID, nodeID, firstLevelOnly)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "Descendants retrieved successfully", "data": ids})
}

func (h *NodeHandler) Editors(c *gin.Context) {
	taxonomyID, nodeID, ok := nodePath(c)
	if !ok {
		return
	}

	roles, err := h.editorService.Editors(taxonomyID, nodeID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "Editors retrieved successfully", "data": roles})
}

// SetEditors 替换节点的编辑者角色。
// applyToChildren=true 会改动整棵子树，只有分类树管理员可以请求。
func (h *NodeHandler) SetEditors(c *gin.Context) {
	taxonomyID, nodeID, ok := nodePath(c)
	if !ok {
		return
	}

	var req SetEditorsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}

	claims, ok := getClaimsFromContext(c)
	if !ok {
		return
	}
	if req.ApplyToChildren && !claims.TaxonomyAdmin {
		c.JSON(http.StatusForbidden, gin.H{
			"code":    http.StatusForbidden,
			"message": "Forbidden: applying editors to children requires taxonomy admin capability",
		})
		return
	}

	if !h.authorizeNodeEdit(c, claims, taxonomyID, nodeID) {
		return
	}

	if err := h.editorService.SetEditors(taxonomyID, nodeID, req.Roles, req.ApplyToChildren); err != nil {
		log.Warnf("NodeHandler.SetEditors: node %d by %s: %v", nodeID, claims.Username, err)
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Editors updated successfully",
	})
}

func (h *NodeHandler) SetEdge(c *gin.Context) {
	taxonomyID, nodeID, ok := nodePath(c)
	if !ok {
		return
	}

	var req SetEdgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}

	claims, ok := getClaimsFromContext(c)
	if !ok {
		return
	}
	if !h.authorizeNodeEdit(c, claims, taxonomyID, nodeID) {
		return
	}

	edgeType := model.EdgeType(strings.ToUpper(strings.TrimSpace(req.EdgeType)))
	if err := h.nodeService.SetEdge(taxonomyID, nodeID, req.TargetID, edgeType); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    http.StatusCreated,
		"message": "Edge created successfully",
	})
}

// ClearEdges 删除节点发出的关联，不带 type 时删除所有类型
func (h *NodeHandler) ClearEdges(c *gin.Context) {
	taxonomyID, nodeID, ok := nodePath(c)
	if !ok {
		return
	}

	var edgeType *model.EdgeType
	if raw := strings.TrimSpace(c.Query("type")); raw != "" {
		t := model.EdgeType(strings.ToUpper(raw))
		edgeType = &t
	}

	claims, ok := getClaimsFromContext(c)
	if !ok {
		return
	}
	if !h.authorizeNodeEdit(c, claims, taxonomyID, nodeID) {
		return
	}

	if err := h.nodeService.ClearEdges(taxonomyID, nodeID, edgeType); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Edges removed successfully",
	})
}

func (h *NodeHandler) RelatedNodes(c *gin.Context) {
	taxonomyID, nodeID, ok := nodePath(c)
	if !ok {
		return
	}

	edgeType := model.EdgeType(strings.ToUpper(strings.TrimSpace(c.DefaultQuery("type", string(model.EdgeTypeRelated)))))
	nodes, err := h.nodeService.RelatedNodes(taxonomyID, nodeID, edgeType)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "Edges retrieved successfully", "data": nodes})
}

// RepairLeafFlags 按真实邻接关系重算叶子标记，供运维在数据不一致时使用
func (h *NodeHandler) RepairLeafFlags(c *gin.Context) {
	taxonomyID, ok := pathID(c, "tid")
	if !ok {
		return
	}

	fixed, err := h.nodeService.RepairLeafFlags(taxonomyID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Leaf flags repaired",
		"data":    gin.H{"fixed": fixed},
	})
}

func nodePath(c *gin.Context) (taxonomyID, nodeID uint, ok bool) {
	if taxonomyID, ok = pathID(c, "tid"); !ok {
		return 0, 0, false
	}
	if nodeID, ok = pathID(c, "nid"); !ok {
		return 0, 0, false
	}
	return taxonomyID, nodeID, true
}
