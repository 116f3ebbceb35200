package model

import "time"

// NodeStatus 节点状态。归档只切换状态，不会把节点从树中移除。
type NodeStatus int

const (
	NodeStatusActive   NodeStatus = 1
	NodeStatusDisabled NodeStatus = 2
)

func (s NodeStatus) String() string {
	switch s {
	case NodeStatusActive:
		return "ACTIVE"
	case NodeStatusDisabled:
		return "DISABLED"
	default:
		return "UNKNOWN"
	}
}

// EdgeType 是节点之间非层级关联的类型。
type EdgeType string

const (
	EdgeTypeRelated EdgeType = "RELATED"
	EdgeTypeSimilar EdgeType = "SIMILAR"
)

// Valid 判断关联类型是否合法
func (t EdgeType) Valid() bool {
	return t == EdgeTypeRelated || t == EdgeTypeSimilar
}

// Node 对应数据库中 taxonomy_nodes 表，是分类树中的一个节点。
// ParentID 为 nil 表示根节点。
// NotLeaf 是"当前至少有一个直接子节点"的缓存值，真实来源是 parent_id 邻接关系，
// 每次改变邻接关系的操作都必须同步维护它。
type Node struct {
	ID         uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	TaxonomyID uint       `gorm:"not null;index" json:"taxonomyId"`
	ParentID   *uint      `gorm:"index" json:"parentId"`
	NotLeaf    bool       `gorm:"not null;default:false" json:"notLeaf"`
	StatusID   NodeStatus `gorm:"not null;default:1" json:"statusId"`
	Selectable bool       `gorm:"not null" json:"selectable"`
	InUse      bool       `gorm:"not null;default:false" json:"inUse"`
	CreatedBy  string     `gorm:"type:varchar(255);not null" json:"createdBy"`
	ModifiedBy string     `gorm:"type:varchar(255);not null" json:"modifiedBy"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	ModifiedAt time.Time  `gorm:"autoUpdateTime" json:"modifiedAt"`
}

// TableName 指定 GORM 使用的表名
func (Node) TableName() string {
	return "taxonomy_nodes"
}

// IsRoot 判断是否为根节点
func (n *Node) IsRoot() bool {
	return n.ParentID == nil
}

// NodeAttributeValue 节点在某个语言下的一个属性值，多值属性会有多行。
type NodeAttributeValue struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	NodeID      uint   `gorm:"not null;index" json:"nodeId"`
	AttributeID uint   `gorm:"not null;index" json:"attributeId"`
	LanguageID  uint   `gorm:"not null;index" json:"languageId"`
	Value       string `gorm:"type:varchar(1024);not null" json:"value"`
}

// TableName 指定 GORM 使用的表名
func (NodeAttributeValue) TableName() string {
	return "taxonomy_node_values"
}

// NodeEditor 授予某个角色编辑节点的权限，由节点持有。
type NodeEditor struct {
	NodeID   uint   `gorm:"primaryKey" json:"nodeId"`
	RoleName string `gorm:"type:varchar(100);primaryKey" json:"roleName"`
}

// TableName 指定 GORM 使用的表名
func (NodeEditor) TableName() string {
	return "taxonomy_node_editors"
}

// NodeEdge 是同一棵树内两个节点之间的有向关联（RELATED / SIMILAR）。
// 关联不是树边，不影响 NotLeaf。
type NodeEdge struct {
	TaxonomyID   uint     `gorm:"not null;index" json:"taxonomyId"`
	SourceNodeID uint     `gorm:"primaryKey" json:"sourceNodeId"`
	TargetNodeID uint     `gorm:"primaryKey" json:"targetNodeId"`
	EdgeType     EdgeType `gorm:"type:varchar(20);primaryKey" json:"edgeType"`
}

// TableName 指定 GORM 使用的表名
func (NodeEdge) TableName() string {
	return "taxonomy_node_edges"
}

// NodeAttributeRow 是按语言联表查出的"节点-属性-值"行，供标题和显示名称使用。
type NodeAttributeRow struct {
	NodeID        uint
	AttributeID   uint
	AttributeName string
	IsNodeName    bool
	Value         string
}

// NodeView 是树形控件需要的节点视图。
// 与 Node（数据库模型）的区别：
//   - 不含审计字段和 InUse
//   - 增加 DisplayName、Title 与 HasChildren，用于前端判断是否可展开
type NodeView struct {
	ID          uint       `json:"id"`
	ParentID    *uint      `json:"parentId"`
	DisplayName string     `json:"displayName"`
	Title       string     `json:"title"`
	HasChildren bool       `json:"hasChildren"`
	Selectable  bool       `json:"selectable"`
	StatusID    NodeStatus `json:"statusId"`
}

// NodeDetail 是单个节点的详情：数据库字段加上当前语言下的显示名称和标题。
type NodeDetail struct {
	Node
	DisplayName string `json:"displayName"`
	Title       string `json:"title"`
	HasChildren bool   `json:"hasChildren"`
}
