package model

import "time"

// Taxonomy 对应数据库中 taxonomies 表，表示一棵独立的分类树。
// 不同 Taxonomy 之间的节点互不相交，不允许跨树建立父子或关联关系。
type Taxonomy struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"name"`
	Description string    `gorm:"type:varchar(255);not null" json:"description"`
	CreatedBy   string    `gorm:"type:varchar(255);not null" json:"createdBy"`
	UpdatedBy   string    `gorm:"type:varchar(255);not null" json:"updatedBy"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定 GORM 使用的表名
func (Taxonomy) TableName() string {
	return "taxonomies"
}

// TaxonomyAttribute 是分类树上定义的节点属性。
// 每棵树最多有一个 IsNodeName=true 的属性，它的值就是节点的显示名称。
type TaxonomyAttribute struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	TaxonomyID uint   `gorm:"not null;index" json:"taxonomyId"`
	Name       string `gorm:"type:varchar(100);not null" json:"name"`
	IsNodeName bool   `gorm:"not null;default:false" json:"isNodeName"`
	IsMultiple bool   `gorm:"not null;default:false" json:"isMultiple"`
}

// TableName 指定 GORM 使用的表名
func (TaxonomyAttribute) TableName() string {
	return "taxonomy_attributes"
}
