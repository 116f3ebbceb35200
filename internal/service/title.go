package service

import (
	"strings"
	"taxonomy_admin/internal/model"
)

// AttributeValues 是某个属性在当前语言下的全部取值
type AttributeValues struct {
	Name   string
	Values []string
}

// BuildTitle 把属性拼成 "name: v1,v2 | name2: v3" 形式的标题。
// excludeDisabled 为 true 且节点不可选或非 ACTIVE 时，整个标题替换为 disabledLabel，
// 这只是显示层面的屏蔽，属性数据本身不受影响。
func BuildTitle(attrs []AttributeValues, selectable bool, status model.NodeStatus, excludeDisabled bool, disabledLabel string) string {
	if excludeDisabled && (!selectable || status != model.NodeStatusActive) {
		return disabledLabel
	}

	parts := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		if len(attr.Values) == 0 {
			continue
		}
		parts = append(parts, attr.Name+": "+strings.Join(attr.Values, ","))
	}
	return strings.Join(parts, " | ")
}

// nodeLabels 是单个节点的显示名称和按属性分组的取值
type nodeLabels struct {
	displayName string
	attrs       []AttributeValues
}

// groupAttributeRows 按节点分组属性行，保持行的原始顺序（属性定义顺序、值写入顺序）。
// 显示名称取 IsNodeName 属性的第一个值。
func groupAttributeRows(rows []model.NodeAttributeRow) map[uint]*nodeLabels {
	grouped := make(map[uint]*nodeLabels)
	for _, row := range rows {
		labels, ok := grouped[row.NodeID]
		if !ok {
			labels = &nodeLabels{}
			grouped[row.NodeID] = labels
		}
		if row.IsNodeName && labels.displayName == "" {
			labels.displayName = row.Value
		}

		n := len(labels.attrs)
		if n > 0 && labels.attrs[n-1].Name == row.AttributeName {
			labels.attrs[n-1].Values = append(labels.attrs[n-1].Values, row.Value)
			continue
		}
		labels.attrs = append(labels.attrs, AttributeValues{Name: row.AttributeName, Values: []string{row.Value}})
	}
	return grouped
}
