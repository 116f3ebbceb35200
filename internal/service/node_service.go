package service

import (
	"errors"
	"strings"
	"taxonomy_admin/internal/hierarchy"
	"taxonomy_admin/internal/model"
	"taxonomy_admin/internal/repository"
	"taxonomy_admin/pkg/log"

	"gorm.io/gorm"
)

// DeleteStrategy 删除节点时如何处理它的子树
type DeleteStrategy string

const (
	// DeleteCascade 连同整棵子树一起删除（叶子优先）
	DeleteCascade DeleteStrategy = "cascade"
	// DeleteProtect 有子节点时拒绝删除
	DeleteProtect DeleteStrategy = "protect"
	// DeleteReparent 先把子节点挂到当前节点的父节点下，再删除当前节点
	DeleteReparent DeleteStrategy = "reparent"
)

// AttributeInput 是一个待写入的属性值，同一属性出现多次表示多值。
type AttributeInput struct {
	AttributeID uint   `json:"attributeId"`
	Value       string `json:"value"`
}

// NodeService 封装节点的结构性变更：新建、移动、归档、删除、属性、关联。
// 每个变更都在一个仓库事务里完成，叶子标记在同一事务里维护。
type NodeService interface {
	CreateChild(taxonomyID uint, parentID *uint, languageID uint, values []AttributeInput, actor string) (*model.Node, error)
	Reparent(taxonomyID, nodeID uint, newParentID *uint, actor string) (*model.Node, error)
	Archive(taxonomyID, nodeID uint, archived bool, actor string) (*model.Node, error)
	SetSelectable(taxonomyID, nodeID uint, selectable bool, actor string) (*model.Node, error)
	UpdateAttributes(taxonomyID, nodeID, languageID uint, values []AttributeInput, actor string) error
	MarkInUse(taxonomyID, nodeID uint, inUse bool) error
	Delete(taxonomyID, nodeID uint, strategy DeleteStrategy) error
	SetEdge(taxonomyID, nodeID, targetID uint, edgeType model.EdgeType) error
	ClearEdges(taxonomyID, nodeID uint, edgeType *model.EdgeType) error
	RelatedNodes(taxonomyID, nodeID uint, edgeType model.EdgeType) ([]model.Node, error)
	RepairLeafFlags(taxonomyID uint) (int, error)
}

type nodeService struct {
	nodeRepo     repository.NodeRepository
	taxonomyRepo repository.TaxonomyRepository
}

func NewNodeService(nodeRepo repository.NodeRepository, taxonomyRepo repository.TaxonomyRepository) NodeService {
	return &nodeService{nodeRepo: nodeRepo, taxonomyRepo: taxonomyRepo}
}

// CreateChild 在 parentID 下新建节点，parentID 为 nil 时新建根节点。
// 关键规则：
// 1. 分类树必须存在，属性必须属于该分类树。
// 2. 分类树定义了显示名称属性时，必须提供它的值。
// 3. 新节点是叶子、ACTIVE、可选；父节点原来是叶子则改为非叶子。
func (s *nodeService) CreateChild(taxonomyID uint, parentID *uint, languageID uint, values []AttributeInput, actor string) (*model.Node, error) {
	if s.nodeRepo == nil || s.taxonomyRepo == nil {
		return nil, ErrInternal
	}
	if taxonomyID == 0 || languageID == 0 || !validParentID(parentID) {
		return nil, ErrInvalidInput
	}

	rows, err := s.validateAttributes(taxonomyID, values)
	if err != nil {
		return nil, err
	}

	actor = normalizeActor(actor)
	node := &model.Node{
		TaxonomyID: taxonomyID,
		ParentID:   parentID,
		NotLeaf:    false,
		StatusID:   model.NodeStatusActive,
		Selectable: true,
		CreatedBy:  actor,
		ModifiedBy: actor,
	}

	err = s.nodeRepo.Transaction(func(repo repository.NodeRepository) error {
		var parent *model.Node
		if parentID != nil {
			p, err := repo.FindByID(taxonomyID, *parentID)
			if err != nil {
				return mapNodeError(err)
			}
			parent = p
		}

		if err := repo.Create(node); err != nil {
			return err
		}
		if err := markHasChild(repo, parent); err != nil {
			return err
		}
		return repo.ReplaceAttributeValues(node.ID, languageID, rows)
	})
	if err != nil {
		return nil, err
	}

	log.Infow("taxonomy node created", "taxonomy_id", taxonomyID, "node_id", node.ID, "parent_id", parentID, "actor", actor)
	return node, nil
}

// Reparent 把节点移动到 newParentID 下，nil 表示升为根节点。
// 挂到自己或自己的后代下会返回 ErrCyclicParent，且不做任何修改。
func (s *nodeService) Reparent(taxonomyID, nodeID uint, newParentID *uint, actor string) (*model.Node, error) {
	if s.nodeRepo == nil {
		return nil, ErrInternal
	}
	if taxonomyID == 0 || nodeID == 0 || !validParentID(newParentID) {
		return nil, ErrInvalidInput
	}
	if newParentID != nil && *newParentID == nodeID {
		return nil, ErrCyclicParent
	}

	var moved *model.Node
	err := s.nodeRepo.Transaction(func(repo repository.NodeRepository) error {
		node, err := repo.FindByID(taxonomyID, nodeID)
		if err != nil {
			return mapNodeError(err)
		}
		moved = node
		if sameParent(node.ParentID, newParentID) {
			return nil
		}

		var newParent *model.Node
		if newParentID != nil {
			p, err := repo.FindByID(taxonomyID, *newParentID)
			if err != nil {
				return mapNodeError(err)
			}
			nodes, err := repo.FindAllByTaxonomy(taxonomyID)
			if err != nil {
				return err
			}
			if hierarchy.Build(nodes).IsDescendantOrSelf(nodeID, p.ID) {
				return ErrCyclicParent
			}
			newParent = p
		}

		oldParentID := node.ParentID
		node.ParentID = newParentID
		node.ModifiedBy = normalizeActor(actor)
		if err := repo.Update(node); err != nil {
			return mapNodeError(err)
		}
		if err := repairAfterChildRemoved(repo, taxonomyID, oldParentID); err != nil {
			return err
		}
		return markHasChild(repo, newParent)
	})
	if err != nil {
		return nil, err
	}

	log.Infow("taxonomy node moved", "taxonomy_id", taxonomyID, "node_id", nodeID, "parent_id", newParentID)
	return moved, nil
}

// Archive 归档/取消归档节点，只切换状态。已经是目标状态时不写库（modified_at 不变）。
func (s *nodeService) Archive(taxonomyID, nodeID uint, archived bool, actor string) (*model.Node, error) {
	target := model.NodeStatusActive
	if archived {
		target = model.NodeStatusDisabled
	}
	return s.updateFlags(taxonomyID, nodeID, actor, func(n *model.Node) bool {
		if n.StatusID == target {
			return false
		}
		n.StatusID = target
		return true
	})
}

// SetSelectable 设置节点是否可被选择，幂等。
func (s *nodeService) SetSelectable(taxonomyID, nodeID uint, selectable bool, actor string) (*model.Node, error) {
	return s.updateFlags(taxonomyID, nodeID, actor, func(n *model.Node) bool {
		if n.Selectable == selectable {
			return false
		}
		n.Selectable = selectable
		return true
	})
}

// MarkInUse 由内容侧调用，标记或解除节点被内容引用的状态。
func (s *nodeService) MarkInUse(taxonomyID, nodeID uint, inUse bool) error {
	_, err := s.updateFlags(taxonomyID, nodeID, "", func(n *model.Node) bool {
		if n.InUse == inUse {
			return false
		}
		n.InUse = inUse
		return true
	})
	return err
}

// updateFlags 读出节点交给 mutate，mutate 返回 false 表示没有变化，不写库。
func (s *nodeService) updateFlags(taxonomyID, nodeID uint, actor string, mutate func(n *model.Node) bool) (*model.Node, error) {
	if s.nodeRepo == nil {
		return nil, ErrInternal
	}
	if taxonomyID == 0 || nodeID == 0 {
		return nil, ErrInvalidInput
	}

	node, err := s.nodeRepo.FindByID(taxonomyID, nodeID)
	if err != nil {
		return nil, mapNodeError(err)
	}
	if !mutate(node) {
		return node, nil
	}
	if actor != "" {
		node.ModifiedBy = normalizeActor(actor)
	}
	if err := s.nodeRepo.Update(node); err != nil {
		return nil, mapNodeError(err)
	}

	log.Infow("taxonomy node updated", "taxonomy_id", taxonomyID, "node_id", nodeID,
		"status", node.StatusID.String(), "selectable", node.Selectable, "in_use", node.InUse)
	return node, nil
}

// UpdateAttributes 整体替换节点在 languageID 下的属性值。
func (s *nodeService) UpdateAttributes(taxonomyID, nodeID, languageID uint, values []AttributeInput, actor string) error {
	if s.nodeRepo == nil || s.taxonomyRepo == nil {
		return ErrInternal
	}
	if taxonomyID == 0 || nodeID == 0 || languageID == 0 {
		return ErrInvalidInput
	}

	rows, err := s.validateAttributes(taxonomyID, values)
	if err != nil {
		return err
	}

	return s.nodeRepo.Transaction(func(repo repository.NodeRepository) error {
		node, err := repo.FindByID(taxonomyID, nodeID)
		if err != nil {
			return mapNodeError(err)
		}
		if err := repo.ReplaceAttributeValues(node.ID, languageID, rows); err != nil {
			return err
		}
		// 刷新审计字段
		node.ModifiedBy = normalizeActor(actor)
		return mapNodeError(repo.Update(node))
	})
}

// Delete 按策略删除节点，并在同一事务里修复原父节点的叶子标记。
// 节点（cascade 时为整棵子树中任一节点）仍被内容引用时返回 ErrNodeInUse，
// 调用方需先通过内容侧解除引用。
func (s *nodeService) Delete(taxonomyID, nodeID uint, strategy DeleteStrategy) error {
	if s.nodeRepo == nil {
		return ErrInternal
	}
	if taxonomyID == 0 || nodeID == 0 {
		return ErrInvalidInput
	}
	if strategy == "" {
		strategy = DeleteCascade
	}

	var deleted int
	err := s.nodeRepo.Transaction(func(repo repository.NodeRepository) error {
		node, err := repo.FindByID(taxonomyID, nodeID)
		if err != nil {
			return mapNodeError(err)
		}

		switch strategy {
		case DeleteCascade:
			deleted, err = deleteSubtree(repo, node)
			if err != nil {
				return err
			}
		case DeleteProtect:
			if node.InUse {
				return ErrNodeInUse
			}
			childCount, err := repo.CountChildren(taxonomyID, nodeID)
			if err != nil {
				return err
			}
			if childCount > 0 {
				return ErrNodeHasChildren
			}
			if err := repo.Delete(taxonomyID, nodeID); err != nil {
				return mapNodeError(err)
			}
			deleted = 1
		case DeleteReparent:
			if node.InUse {
				return ErrNodeInUse
			}
			if err := repo.ReparentChildren(taxonomyID, nodeID, node.ParentID); err != nil {
				return err
			}
			if err := repo.Delete(taxonomyID, nodeID); err != nil {
				return mapNodeError(err)
			}
			deleted = 1
		default:
			return ErrInvalidInput
		}

		return repairAfterChildRemoved(repo, taxonomyID, node.ParentID)
	})
	if err != nil {
		return err
	}

	log.Infow("taxonomy node deleted", "taxonomy_id", taxonomyID, "node_id", nodeID,
		"strategy", string(strategy), "deleted", deleted)
	return nil
}

// deleteSubtree 删除 root 及其全部后代，叶子优先。任一节点被引用则整体拒绝。
func deleteSubtree(repo repository.NodeRepository, root *model.Node) (int, error) {
	nodes, err := repo.FindAllByTaxonomy(root.TaxonomyID)
	if err != nil {
		return 0, err
	}
	tree := hierarchy.Build(nodes)
	subtree := tree.DescendantsAndSelf(root.ID, false)

	for _, n := range nodes {
		if subtree.Has(n.ID) && n.InUse {
			return 0, ErrNodeInUse
		}
	}

	order := postOrder(tree, root.ID)
	for _, id := range order {
		if err := repo.Delete(root.TaxonomyID, id); err != nil {
			return 0, mapNodeError(err)
		}
	}
	return len(order), nil
}

// postOrder 返回后序遍历（子节点先于父节点）的 id 列表。
func postOrder(tree *hierarchy.Tree, root uint) []uint {
	var order []uint
	visited := hierarchy.NewIDSet()
	var walk func(id uint)
	walk = func(id uint) {
		if visited.Has(id) {
			return
		}
		visited.Add(id)
		for _, child := range tree.Children(id) {
			walk(child)
		}
		order = append(order, id)
	}
	walk(root)
	return order
}

// SetEdge 建立 nodeID -> targetID 的关联，幂等。两端必须在同一分类树且不能相同。
func (s *nodeService) SetEdge(taxonomyID, nodeID, targetID uint, edgeType model.EdgeType) error {
	if s.nodeRepo == nil {
		return ErrInternal
	}
	if taxonomyID == 0 || nodeID == 0 || targetID == 0 {
		return ErrInvalidInput
	}
	if !edgeType.Valid() || nodeID == targetID {
		return ErrInvalidEdge
	}

	for _, id := range []uint{nodeID, targetID} {
		if _, err := s.nodeRepo.FindByID(taxonomyID, id); err != nil {
			return mapNodeError(err)
		}
	}

	edge := &model.NodeEdge{
		TaxonomyID:   taxonomyID,
		SourceNodeID: nodeID,
		TargetNodeID: targetID,
		EdgeType:     edgeType,
	}
	if err := s.nodeRepo.AddEdge(edge); err != nil {
		return err
	}
	log.Infow("taxonomy edge set", "taxonomy_id", taxonomyID, "source", nodeID, "target", targetID, "type", string(edgeType))
	return nil
}

// ClearEdges 删除节点发出的关联，edgeType 为 nil 时删除所有类型。
func (s *nodeService) ClearEdges(taxonomyID, nodeID uint, edgeType *model.EdgeType) error {
	if s.nodeRepo == nil {
		return ErrInternal
	}
	if taxonomyID == 0 || nodeID == 0 {
		return ErrInvalidInput
	}
	if edgeType != nil && !edgeType.Valid() {
		return ErrInvalidEdge
	}
	if _, err := s.nodeRepo.FindByID(taxonomyID, nodeID); err != nil {
		return mapNodeError(err)
	}
	return s.nodeRepo.RemoveEdges(taxonomyID, nodeID, edgeType)
}

func (s *nodeService) RelatedNodes(taxonomyID, nodeID uint, edgeType model.EdgeType) ([]model.Node, error) {
	if s.nodeRepo == nil {
		return nil, ErrInternal
	}
	if taxonomyID == 0 || nodeID == 0 {
		return nil, ErrInvalidInput
	}
	if !edgeType.Valid() {
		return nil, ErrInvalidEdge
	}
	if _, err := s.nodeRepo.FindByID(taxonomyID, nodeID); err != nil {
		return nil, mapNodeError(err)
	}
	return s.nodeRepo.FindEdgeTargets(taxonomyID, nodeID, edgeType)
}

// RepairLeafFlags 按真实邻接关系重算整棵树的叶子标记，返回修正的节点数。
func (s *nodeService) RepairLeafFlags(taxonomyID uint) (int, error) {
	if s.nodeRepo == nil {
		return 0, ErrInternal
	}
	if taxonomyID == 0 {
		return 0, ErrInvalidInput
	}

	var fixed int
	err := s.nodeRepo.Transaction(func(repo repository.NodeRepository) error {
		n, err := repairAllLeafFlags(repo, taxonomyID)
		fixed = n
		return err
	})
	if err != nil {
		return 0, err
	}
	if fixed > 0 {
		log.Warnw("taxonomy leaf flags repaired", "taxonomy_id", taxonomyID, "fixed", fixed)
	}
	return fixed, nil
}

// validateAttributes 校验并整理属性输入：
// 1. 分类树必须存在，属性必须属于该树。
// 2. 去掉首尾空白，丢弃空值。
// 3. 单值属性不能出现多个值。
// 4. 定义了显示名称属性时必须有值。
func (s *nodeService) validateAttributes(taxonomyID uint, values []AttributeInput) ([]model.NodeAttributeValue, error) {
	if _, err := s.taxonomyRepo.FindByID(taxonomyID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaxonomyNotFound
		}
		return nil, err
	}
	attrs, err := s.taxonomyRepo.FindAttributes(taxonomyID)
	if err != nil {
		return nil, err
	}

	defs := make(map[uint]model.TaxonomyAttribute, len(attrs))
	var nameAttr *model.TaxonomyAttribute
	for i := range attrs {
		defs[attrs[i].ID] = attrs[i]
		if attrs[i].IsNodeName {
			nameAttr = &attrs[i]
		}
	}

	rows := make([]model.NodeAttributeValue, 0, len(values))
	counts := make(map[uint]int, len(values))
	for _, v := range values {
		def, ok := defs[v.AttributeID]
		if !ok {
			return nil, ErrInvalidInput
		}
		value := strings.TrimSpace(v.Value)
		if value == "" {
			continue
		}
		counts[def.ID]++
		if counts[def.ID] > 1 && !def.IsMultiple {
			return nil, ErrInvalidInput
		}
		rows = append(rows, model.NodeAttributeValue{AttributeID: def.ID, Value: value})
	}

	if nameAttr != nil && counts[nameAttr.ID] == 0 {
		return nil, ErrInvalidInput
	}
	return rows, nil
}

// validParentID 父节点 id 可以为空（根节点），但不能是 0
func validParentID(parentID *uint) bool {
	return parentID == nil || *parentID != 0
}

func sameParent(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func normalizeActor(actor string) string {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return "system"
	}
	return actor
}
