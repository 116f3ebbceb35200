package repository

import (
	"taxonomy_admin/internal/model"

	"gorm.io/gorm"
)

const attributeRowSelect = "v.node_id, v.attribute_id, a.name AS attribute_name, a.is_node_name, v.value"

// FindAttributeRows 一次查出整棵树在某语言下的全部属性值，树查询时只访问一次数据库。
// 结果按节点、属性定义顺序、值写入顺序排列，标题拼接依赖这个顺序。
func (r *nodeRepository) FindAttributeRows(taxonomyID, languageID uint) ([]model.NodeAttributeRow, error) {
	var rows []model.NodeAttributeRow
	if err := r.db.Table("taxonomy_node_values AS v").
		Select(attributeRowSelect).
		Joins("JOIN taxonomy_attributes a ON a.id = v.attribute_id").
		Where("a.taxonomy_id = ? AND v.language_id = ?", taxonomyID, languageID).
		Order("v.node_id ASC, v.attribute_id ASC, v.id ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *nodeRepository) FindNodeAttributeRows(taxonomyID, nodeID, languageID uint) ([]model.NodeAttributeRow, error) {
	var rows []model.NodeAttributeRow
	if err := r.db.Table("taxonomy_node_values AS v").
		Select(attributeRowSelect).
		Joins("JOIN taxonomy_attributes a ON a.id = v.attribute_id").
		Where("a.taxonomy_id = ? AND v.node_id = ? AND v.language_id = ?", taxonomyID, nodeID, languageID).
		Order("v.attribute_id ASC, v.id ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ReplaceAttributeValues 整体替换节点在某语言下的属性值。
func (r *nodeRepository) ReplaceAttributeValues(nodeID, languageID uint, values []model.NodeAttributeValue) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("node_id = ? AND language_id = ?", nodeID, languageID).
			Delete(&model.NodeAttributeValue{}).Error; err != nil {
			return err
		}
		if len(values) == 0 {
			return nil
		}
		for i := range values {
			values[i].ID = 0
			values[i].NodeID = nodeID
			values[i].LanguageID = languageID
		}
		return tx.Create(&values).Error
	})
}
