package repository

import (
	"errors"
	"fmt"
	"taxonomy_admin/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrCrossTaxonomy 表示节点存在，但属于另一棵分类树。
	ErrCrossTaxonomy = errors.New("node belongs to another taxonomy")
	// ErrInvalidNodeID 表示传入的节点 id 为 0。
	ErrInvalidNodeID = errors.New("node id is required")
)

// NodeRepository 是分类树节点的存储接口（Node Store）。
// 只提供读写原语，不做任何业务策略：NotLeaf 缓存由上层在每次结构变更后维护。
// 所有方法都限定在一棵 taxonomy 内，跨树的节点 id 会被拒绝。
type NodeRepository interface {
	// Transaction 在一个事务中执行 fn，fn 拿到的仓库绑定在该事务上。
	// fn 返回 error 时整个事务回滚。
	Transaction(fn func(repo NodeRepository) error) error

	Create(node *model.Node) error
	FindByID(taxonomyID, nodeID uint) (*model.Node, error)
	FindAllByTaxonomy(taxonomyID uint) ([]model.Node, error)
	FindChildren(taxonomyID, parentID uint) ([]model.Node, error)
	CountChildren(taxonomyID, parentID uint) (int64, error)
	CountByTaxonomy(taxonomyID uint) (int64, error)
	// Update 更新 parent_id、status_id、selectable、in_use、modified_by
	Update(node *model.Node) error
	// UpdateNotLeaf 只写缓存列，不刷新 modified_at
	UpdateNotLeaf(taxonomyID, nodeID uint, notLeaf bool) error
	// ReparentChildren 把 parentID 的所有直接子节点挂到 newParentID 下（nil 表示升为根）
	ReparentChildren(taxonomyID, parentID uint, newParentID *uint) error
	// Delete 删除节点以及它持有的属性值、编辑者和所有指向/来自它的关联
	Delete(taxonomyID, nodeID uint) error

	FindAttributeRows(taxonomyID, languageID uint) ([]model.NodeAttributeRow, error)
	FindNodeAttributeRows(taxonomyID, nodeID, languageID uint) ([]model.NodeAttributeRow, error)
	ReplaceAttributeValues(nodeID, languageID uint, values []model.NodeAttributeValue) error

	FindEditors(nodeID uint) ([]string, error)
	ReplaceEditors(nodeID uint, roles []string) error

	// AddEdge 幂等：相同 (source, target, type) 已存在时不报错
	AddEdge(edge *model.NodeEdge) error
	// RemoveEdges 删除 nodeID 发出的关联，edgeType 为 nil 时删除所有类型
	RemoveEdges(taxonomyID, nodeID uint, edgeType *model.EdgeType) error
	FindEdgeTargets(taxonomyID, nodeID uint, edgeType model.EdgeType) ([]model.Node, error)
}

// nodeRepository 是 NodeRepository 的 GORM 实现
type nodeRepository struct {
	db *gorm.DB
}

func NewNodeRepository(db *gorm.DB) NodeRepository {
	return &nodeRepository{db: db}
}

func (r *nodeRepository) Transaction(fn func(repo NodeRepository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&nodeRepository{db: tx})
	})
}

func (r *nodeRepository) Create(node *model.Node) error {
	if node == nil {
		return fmt.Errorf("node is nil")
	}
	if node.TaxonomyID == 0 {
		return fmt.Errorf("taxonomy id is required")
	}
	return r.db.Create(node).Error
}

// FindByID 按 id 查询节点，再校验它是否属于 taxonomyID。
// 不存在返回 gorm.ErrRecordNotFound，属于别的树返回 ErrCrossTaxonomy。
func (r *nodeRepository) FindByID(taxonomyID, nodeID uint) (*model.Node, error) {
	if nodeID == 0 {
		return nil, ErrInvalidNodeID
	}

	var node model.Node
	if err := r.db.Where("id = ?", nodeID).First(&node).Error; err != nil {
		return nil, err
	}
	if node.TaxonomyID != taxonomyID {
		return nil, ErrCrossTaxonomy
	}
	return &node, nil
}

func (r *nodeRepository) FindAllByTaxonomy(taxonomyID uint) ([]model.Node, error) {
	var nodes []model.Node
	if err := r.db.Where("taxonomy_id = ?", taxonomyID).Order("id ASC").Find(&nodes).Error; err != nil {
		return nil, err
	}
	return nodes, nil
}

func (r *nodeRepository) FindChildren(taxonomyID, parentID uint) ([]model.Node, error) {
	var nodes []model.Node
	if err := r.db.Where("taxonomy_id = ? AND parent_id = ?", taxonomyID, parentID).
		Order("id ASC").
		Find(&nodes).Error; err != nil {
		return nil, err
	}
	return nodes, nil
}

func (r *nodeRepository) CountChildren(taxonomyID, parentID uint) (int64, error) {
	var count int64
	if err := r.db.Model(&model.Node{}).
		Where("taxonomy_id = ? AND parent_id = ?", taxonomyID, parentID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *nodeRepository) CountByTaxonomy(taxonomyID uint) (int64, error) {
	var count int64
	if err := r.db.Model(&model.Node{}).
		Where("taxonomy_id = ?", taxonomyID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Update 使用 Select 限定更新列，避免零值（false、nil）被 GORM 忽略或覆盖其他字段。
// 记录不存在返回 gorm.ErrRecordNotFound。
func (r *nodeRepository) Update(node *model.Node) error {
	if node == nil {
		return fmt.Errorf("node is nil")
	}
	if node.ID == 0 {
		return ErrInvalidNodeID
	}

	tx := r.db.Model(&model.Node{}).
		Where("id = ? AND taxonomy_id = ?", node.ID, node.TaxonomyID).
		Select("parent_id", "status_id", "selectable", "in_use", "modified_by", "modified_at").
		Updates(node)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *nodeRepository) UpdateNotLeaf(taxonomyID, nodeID uint, notLeaf bool) error {
	return r.db.Model(&model.Node{}).
		Where("id = ? AND taxonomy_id = ?", nodeID, taxonomyID).
		UpdateColumn("not_leaf", notLeaf).Error
}

func (r *nodeRepository) ReparentChildren(taxonomyID, parentID uint, newParentID *uint) error {
	return r.db.Model(&model.Node{}).
		Where("taxonomy_id = ? AND parent_id = ?", taxonomyID, parentID).
		Update("parent_id", newParentID).Error
}

// Delete 在事务中先确认节点存在，再清理它持有的数据，最后删除节点本身。
// 子节点不在这里处理，调用方负责先删除或重挂子节点。
func (r *nodeRepository) Delete(taxonomyID, nodeID uint) error {
	if nodeID == 0 {
		return ErrInvalidNodeID
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		var current model.Node
		if err := tx.Where("id = ? AND taxonomy_id = ?", nodeID, taxonomyID).First(&current).Error; err != nil {
			return err
		}

		// 关联是双向引用：它作为 source 或 target 的边都要删掉
		if err := tx.Where("source_node_id = ? OR target_node_id = ?", nodeID, nodeID).
			Delete(&model.NodeEdge{}).Error; err != nil {
			return err
		}
		if err := tx.Where("node_id = ?", nodeID).Delete(&model.NodeAttributeValue{}).Error; err != nil {
			return err
		}
		if err := tx.Where("node_id = ?", nodeID).Delete(&model.NodeEditor{}).Error; err != nil {
			return err
		}

		res := tx.Where("id = ?", nodeID).Delete(&model.Node{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *nodeRepository) FindEditors(nodeID uint) ([]string, error) {
	var roles []string
	if err := r.db.Model(&model.NodeEditor{}).
		Where("node_id = ?", nodeID).
		Order("role_name ASC").
		Pluck("role_name", &roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

// ReplaceEditors 用 roles 整体替换节点的编辑者集合，roles 为空表示清空。
func (r *nodeRepository) ReplaceEditors(nodeID uint, roles []string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("node_id = ?", nodeID).Delete(&model.NodeEditor{}).Error; err != nil {
			return err
		}
		if len(roles) == 0 {
			return nil
		}
		editors := make([]model.NodeEditor, 0, len(roles))
		for _, role := range roles {
			editors = append(editors, model.NodeEditor{NodeID: nodeID, RoleName: role})
		}
		return tx.Create(&editors).Error
	})
}

func (r *nodeRepository) AddEdge(edge *model.NodeEdge) error {
	if edge == nil {
		return fmt.Errorf("edge is nil")
	}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(edge).Error
}

func (r *nodeRepository) RemoveEdges(taxonomyID, nodeID uint, edgeType *model.EdgeType) error {
	tx := r.db.Where("taxonomy_id = ? AND source_node_id = ?", taxonomyID, nodeID)
	if edgeType != nil {
		tx = tx.Where("edge_type = ?", *edgeType)
	}
	return tx.Delete(&model.NodeEdge{}).Error
}

func (r *nodeRepository) FindEdgeTargets(taxonomyID, nodeID uint, edgeType model.EdgeType) ([]model.Node, error) {
	var nodes []model.Node
	if err := r.db.Model(&model.Node{}).
		Joins("JOIN taxonomy_node_edges e ON e.target_node_id = taxonomy_nodes.id").
		Where("e.taxonomy_id = ? AND e.source_node_id = ? AND e.edge_type = ?", taxonomyID, nodeID, edgeType).
		Order("taxonomy_nodes.id ASC").
		Find(&nodes).Error; err != nil {
		return nil, err
	}
	return nodes, nil
}
